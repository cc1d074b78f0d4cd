package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"ndaflow/internal/audit"
	id "ndaflow/pkg/domain"
	txcontext "ndaflow/pkg/platform/tx"
)

// Store writes audit entries to the audit_entries table, inside the caller's
// transaction when one is carried in ctx.
type Store struct {
	pool *pgxpool.Pool
}

func New(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

type dbExecutor interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

func (s *Store) execer(ctx context.Context) dbExecutor {
	if tx, ok := txcontext.From(ctx); ok {
		return tx
	}
	return s.pool
}

func (s *Store) Append(ctx context.Context, entry audit.Entry) error {
	details := entry.Details
	if details == nil {
		details = map[string]any{}
	}
	payload, err := json.Marshal(details)
	if err != nil {
		return fmt.Errorf("marshal audit details: %w", err)
	}

	var agreementID *uuid.UUID
	if !entry.AgreementID.IsNil() {
		u := uuid.UUID(entry.AgreementID)
		agreementID = &u
	}

	const query = `
		INSERT INTO audit_entries (
			id, entity_type, entity_id, agreement_id, action, category, actor_id,
			occurred_at, request_id, client_ip, user_agent, client_summary, details
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
	`
	_, err = s.execer(ctx).Exec(ctx, query,
		uuid.UUID(entry.ID),
		string(entry.EntityType),
		entry.EntityID,
		agreementID,
		string(entry.Action),
		string(entry.Action.Category()),
		entry.ActorID,
		entry.Timestamp,
		entry.RequestID,
		entry.ClientIP,
		entry.UserAgent,
		entry.ClientSummary,
		payload,
	)
	if err != nil {
		return fmt.Errorf("insert audit entry: %w", err)
	}
	return nil
}

const selectColumns = `
	SELECT id, entity_type, entity_id, agreement_id, action, actor_id, occurred_at,
	       request_id, client_ip, user_agent, client_summary, details
	FROM audit_entries
`

func (s *Store) ListByAgreement(ctx context.Context, agreementID id.AgreementID) ([]audit.Entry, error) {
	return s.list(ctx, selectColumns+` WHERE agreement_id = $1 ORDER BY occurred_at, id`, uuid.UUID(agreementID))
}

func (s *Store) ListByEntity(ctx context.Context, entityType audit.EntityType, entityID string) ([]audit.Entry, error) {
	return s.list(ctx, selectColumns+` WHERE entity_type = $1 AND entity_id = $2 ORDER BY occurred_at, id`, string(entityType), entityID)
}

func (s *Store) list(ctx context.Context, query string, args ...any) ([]audit.Entry, error) {
	rows, err := s.execer(ctx).Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query audit entries: %w", err)
	}
	defer rows.Close()

	entries := make([]audit.Entry, 0)
	for rows.Next() {
		var (
			e           audit.Entry
			entryID     uuid.UUID
			agreementID *uuid.UUID
			entityType  string
			action      string
			details     []byte
		)
		if err := rows.Scan(&entryID, &entityType, &e.EntityID, &agreementID, &action, &e.ActorID,
			&e.Timestamp, &e.RequestID, &e.ClientIP, &e.UserAgent, &e.ClientSummary, &details); err != nil {
			return nil, fmt.Errorf("scan audit entry: %w", err)
		}
		e.ID = id.AuditEntryID(entryID)
		e.EntityType = audit.EntityType(entityType)
		e.Action = audit.Action(action)
		if agreementID != nil {
			e.AgreementID = id.AgreementID(*agreementID)
		}
		if len(details) > 0 {
			if err := json.Unmarshal(details, &e.Details); err != nil {
				return nil, fmt.Errorf("decode audit details: %w", err)
			}
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}
