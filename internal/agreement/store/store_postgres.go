package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"ndaflow/internal/agreement/models"
	id "ndaflow/pkg/domain"
	"ndaflow/pkg/platform/sentinel"
	txcontext "ndaflow/pkg/platform/tx"
)

// Postgres persists agreements and their status history.
type Postgres struct {
	pool *pgxpool.Pool
}

func NewPostgres(pool *pgxpool.Pool) *Postgres {
	return &Postgres{pool: pool}
}

type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

func (s *Postgres) db(ctx context.Context) querier {
	if tx, ok := txcontext.From(ctx); ok {
		return tx
	}
	return s.pool
}

const agreementColumns = `
	id, display_id, company_name, abbreviated_name, agency_name, authorized_purpose,
	relationship_contact_id, opportunity_contact_id, contracts_contact_id, created_by_id,
	expires_at, status, version, created_at, updated_at
`

func (s *Postgres) Create(ctx context.Context, a *models.Agreement) error {
	const query = `
		INSERT INTO agreements (
			id, company_name, abbreviated_name, agency_name, authorized_purpose,
			relationship_contact_id, opportunity_contact_id, contracts_contact_id, created_by_id,
			expires_at, status, version, created_at, updated_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		RETURNING display_id
	`
	err := s.db(ctx).QueryRow(ctx, query,
		uuid.UUID(a.ID), a.CompanyName, a.AbbreviatedName, a.AgencyName, a.AuthorizedPurpose,
		nullableContact(a.RelationshipContactID), nullableContact(a.OpportunityContactID),
		nullableContact(a.ContractsContactID), nullableContact(a.CreatedByID),
		a.ExpiresAt, string(a.Status), a.Version, a.CreatedAt, a.UpdatedAt,
	).Scan(&a.DisplayID)
	if err != nil {
		if isUniqueViolation(err) {
			return sentinel.ErrAlreadyUsed
		}
		return fmt.Errorf("insert agreement: %w", err)
	}
	for _, h := range a.History {
		if err := s.insertHistory(ctx, a.ID, h); err != nil {
			return err
		}
	}
	return nil
}

func (s *Postgres) FindByID(ctx context.Context, agreementID id.AgreementID) (*models.Agreement, error) {
	return s.find(ctx, `SELECT `+agreementColumns+` FROM agreements WHERE id = $1`, agreementID)
}

// FindForUpdate locks the agreement row until the surrounding transaction ends.
func (s *Postgres) FindForUpdate(ctx context.Context, agreementID id.AgreementID) (*models.Agreement, error) {
	if _, ok := txcontext.From(ctx); !ok {
		return nil, fmt.Errorf("find for update requires a transaction")
	}
	return s.find(ctx, `SELECT `+agreementColumns+` FROM agreements WHERE id = $1 FOR UPDATE`, agreementID)
}

// SaveTransition writes the new status with a version compare-and-swap and
// appends the history row. A lost race surfaces as sentinel.ErrConflict.
func (s *Postgres) SaveTransition(ctx context.Context, a *models.Agreement, entry models.HistoryEntry) error {
	const query = `
		UPDATE agreements
		SET status = $2, version = $3, updated_at = $4
		WHERE id = $1 AND version = $5
	`
	tag, err := s.db(ctx).Exec(ctx, query,
		uuid.UUID(a.ID), string(a.Status), a.Version, a.UpdatedAt, entry.Sequence-1)
	if err != nil {
		return fmt.Errorf("update agreement status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return sentinel.ErrConflict
	}
	return s.insertHistory(ctx, a.ID, entry)
}

func (s *Postgres) ListExpiring(ctx context.Context, now time.Time, limit int) ([]id.AgreementID, error) {
	const query = `
		SELECT id FROM agreements
		WHERE expires_at IS NOT NULL AND expires_at <= $1
		  AND status IN ('CREATED', 'PENDING_APPROVAL', 'SENT_PENDING_SIGNATURE', 'IN_REVISION')
		ORDER BY expires_at
		LIMIT $2
	`
	rows, err := s.db(ctx).Query(ctx, query, now, limit)
	if err != nil {
		return nil, fmt.Errorf("query expiring agreements: %w", err)
	}
	defer rows.Close()

	ids := make([]id.AgreementID, 0)
	for rows.Next() {
		var u uuid.UUID
		if err := rows.Scan(&u); err != nil {
			return nil, fmt.Errorf("scan agreement id: %w", err)
		}
		ids = append(ids, id.AgreementID(u))
	}
	return ids, rows.Err()
}

func (s *Postgres) find(ctx context.Context, query string, agreementID id.AgreementID) (*models.Agreement, error) {
	var (
		a                                    models.Agreement
		rawID                                uuid.UUID
		relationship, opportunity, contracts *uuid.UUID
		createdBy                            *uuid.UUID
		status                               string
	)
	err := s.db(ctx).QueryRow(ctx, query, uuid.UUID(agreementID)).Scan(
		&rawID, &a.DisplayID, &a.CompanyName, &a.AbbreviatedName, &a.AgencyName, &a.AuthorizedPurpose,
		&relationship, &opportunity, &contracts, &createdBy,
		&a.ExpiresAt, &status, &a.Version, &a.CreatedAt, &a.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("find agreement: %w", err)
	}
	a.ID = id.AgreementID(rawID)
	a.Status = models.Status(status)
	a.RelationshipContactID = contactOrNil(relationship)
	a.OpportunityContactID = contactOrNil(opportunity)
	a.ContractsContactID = contactOrNil(contracts)
	a.CreatedByID = contactOrNil(createdBy)

	history, err := s.history(ctx, a.ID)
	if err != nil {
		return nil, err
	}
	a.History = history
	return &a, nil
}

func (s *Postgres) history(ctx context.Context, agreementID id.AgreementID) ([]models.HistoryEntry, error) {
	const query = `
		SELECT sequence, status, previous_status, trigger, actor_id, reason, changed_at
		FROM agreement_status_history
		WHERE agreement_id = $1
		ORDER BY sequence
	`
	rows, err := s.db(ctx).Query(ctx, query, uuid.UUID(agreementID))
	if err != nil {
		return nil, fmt.Errorf("query status history: %w", err)
	}
	defer rows.Close()

	entries := make([]models.HistoryEntry, 0)
	for rows.Next() {
		var (
			h                         models.HistoryEntry
			status, previous, trigger string
		)
		if err := rows.Scan(&h.Sequence, &status, &previous, &trigger, &h.ActorID, &h.Reason, &h.ChangedAt); err != nil {
			return nil, fmt.Errorf("scan status history: %w", err)
		}
		h.Status = models.Status(status)
		h.PreviousStatus = models.Status(previous)
		h.Trigger = models.Trigger(trigger)
		entries = append(entries, h)
	}
	return entries, rows.Err()
}

func (s *Postgres) insertHistory(ctx context.Context, agreementID id.AgreementID, h models.HistoryEntry) error {
	const query = `
		INSERT INTO agreement_status_history (
			agreement_id, sequence, status, previous_status, trigger, actor_id, reason, changed_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`
	_, err := s.db(ctx).Exec(ctx, query,
		uuid.UUID(agreementID), h.Sequence, string(h.Status), string(h.PreviousStatus),
		string(h.Trigger), h.ActorID, h.Reason, h.ChangedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return sentinel.ErrConflict
		}
		return fmt.Errorf("insert status history: %w", err)
	}
	return nil
}

func nullableContact(c id.ContactID) *uuid.UUID {
	if c.IsNil() {
		return nil
	}
	u := uuid.UUID(c)
	return &u
}

func contactOrNil(u *uuid.UUID) id.ContactID {
	if u == nil {
		return id.ContactID{}
	}
	return id.ContactID(*u)
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
