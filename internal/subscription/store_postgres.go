package subscription

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"ndaflow/internal/notify"
	id "ndaflow/pkg/domain"
	"ndaflow/pkg/platform/sentinel"
	txcontext "ndaflow/pkg/platform/tx"
)

const uniqueViolation = "23505"

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

func (s *Postgres) Add(ctx context.Context, sub Subscription) error {
	const query = `
		INSERT INTO agreement_subscriptions (agreement_id, contact_id, created_at)
		VALUES ($1, $2, $3)
	`
	_, err := s.db(ctx).Exec(ctx, query, uuid.UUID(sub.AgreementID), uuid.UUID(sub.ContactID), sub.CreatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return sentinel.ErrAlreadyUsed
		}
		return fmt.Errorf("add subscription: %w", err)
	}
	return nil
}

func (s *Postgres) Remove(ctx context.Context, agreementID id.AgreementID, contactID id.ContactID) error {
	const query = `DELETE FROM agreement_subscriptions WHERE agreement_id = $1 AND contact_id = $2`
	tag, err := s.db(ctx).Exec(ctx, query, uuid.UUID(agreementID), uuid.UUID(contactID))
	if err != nil {
		return fmt.Errorf("remove subscription: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return sentinel.ErrNotFound
	}
	return nil
}

func (s *Postgres) List(ctx context.Context, agreementID id.AgreementID) ([]Subscription, error) {
	const query = `
		SELECT contact_id, created_at FROM agreement_subscriptions
		WHERE agreement_id = $1
		ORDER BY created_at, contact_id
	`
	rows, err := s.db(ctx).Query(ctx, query, uuid.UUID(agreementID))
	if err != nil {
		return nil, fmt.Errorf("list subscriptions: %w", err)
	}
	defer rows.Close()

	var out []Subscription
	for rows.Next() {
		sub := Subscription{AgreementID: agreementID}
		var contactID uuid.UUID
		if err := rows.Scan(&contactID, &sub.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan subscription: %w", err)
		}
		sub.ContactID = id.ContactID(contactID)
		out = append(out, sub)
	}
	return out, rows.Err()
}

func (s *Postgres) ListByAgreement(ctx context.Context, agreementID id.AgreementID) ([]id.ContactID, error) {
	subs, err := s.List(ctx, agreementID)
	if err != nil {
		return nil, err
	}
	return contactIDs(subs), nil
}

// PreferencesPostgres stores one row per contact that changed its preferences.
type PreferencesPostgres struct {
	pool *pgxpool.Pool
}

func NewPreferencesPostgres(pool *pgxpool.Pool) *PreferencesPostgres {
	return &PreferencesPostgres{pool: pool}
}

func (s *PreferencesPostgres) db(ctx context.Context) querier {
	if tx, ok := txcontext.From(ctx); ok {
		return tx
	}
	return s.pool
}

func (s *PreferencesPostgres) Get(ctx context.Context, contactID id.ContactID) (notify.Preferences, error) {
	const query = `
		SELECT on_status_changed, on_fully_executed, on_email_sent, on_delivery_failed, updated_at
		FROM notification_preferences
		WHERE contact_id = $1
	`
	p := notify.Preferences{ContactID: contactID}
	err := s.db(ctx).QueryRow(ctx, query, uuid.UUID(contactID)).
		Scan(&p.OnStatusChanged, &p.OnFullyExecuted, &p.OnEmailSent, &p.OnDeliveryFailed, &p.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return notify.Preferences{}, sentinel.ErrNotFound
	}
	if err != nil {
		return notify.Preferences{}, fmt.Errorf("get notification preferences: %w", err)
	}
	return p, nil
}

func (s *PreferencesPostgres) Save(ctx context.Context, p notify.Preferences) error {
	const query = `
		INSERT INTO notification_preferences
			(contact_id, on_status_changed, on_fully_executed, on_email_sent, on_delivery_failed, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (contact_id) DO UPDATE SET
			on_status_changed  = EXCLUDED.on_status_changed,
			on_fully_executed  = EXCLUDED.on_fully_executed,
			on_email_sent      = EXCLUDED.on_email_sent,
			on_delivery_failed = EXCLUDED.on_delivery_failed,
			updated_at         = EXCLUDED.updated_at
	`
	_, err := s.db(ctx).Exec(ctx, query, uuid.UUID(p.ContactID),
		p.OnStatusChanged, p.OnFullyExecuted, p.OnEmailSent, p.OnDeliveryFailed, p.UpdatedAt)
	if err != nil {
		return fmt.Errorf("save notification preferences: %w", err)
	}
	return nil
}
