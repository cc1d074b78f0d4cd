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

	"ndaflow/internal/attachment"
	"ndaflow/internal/delivery/models"
	id "ndaflow/pkg/domain"
	"ndaflow/pkg/platform/sentinel"
	txcontext "ndaflow/pkg/platform/tx"
)

// NotifyChannel is the LISTEN/NOTIFY channel raised when a job becomes claimable.
const NotifyChannel = "delivery_jobs"

// Postgres stores jobs in delivery_jobs. Claims use FOR UPDATE SKIP LOCKED so
// any number of workers can poll the same table.
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

const jobColumns = `
	id, agreement_id, subject, to_addresses, cc_addresses, bcc_addresses, body, template_id,
	attachment_key, attachment_filename, attachment_content_type, status, retry_count,
	last_error, next_attempt_at, claimed_at, claim_token, transport_message_id, requested_by,
	created_at, updated_at, sent_at
`

// Create inserts the job and raises NOTIFY, which Postgres delivers on commit.
func (s *Postgres) Create(ctx context.Context, job *models.Job) error {
	const query = `
		INSERT INTO delivery_jobs (` + jobColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20, $21, $22)
	`
	_, err := s.db(ctx).Exec(ctx, query,
		uuid.UUID(job.ID), uuid.UUID(job.AgreementID), job.Subject, job.To, job.Cc, job.Bcc, job.Body,
		nullableTemplate(job.TemplateID), job.Attachment.Key, job.Attachment.Filename, job.Attachment.ContentType,
		string(job.Status), job.RetryCount, job.LastError, job.NextAttemptAt, job.ClaimedAt,
		nullableToken(job.ClaimToken), job.TransportMessageID, job.RequestedBy, job.CreatedAt, job.UpdatedAt, job.SentAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return sentinel.ErrAlreadyUsed
		}
		return fmt.Errorf("insert delivery job: %w", err)
	}
	return s.notify(ctx, job.ID)
}

func (s *Postgres) FindByID(ctx context.Context, jobID id.JobID) (*models.Job, error) {
	job, err := scanJob(s.db(ctx).QueryRow(ctx, `SELECT `+jobColumns+` FROM delivery_jobs WHERE id = $1`, uuid.UUID(jobID)))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("find delivery job: %w", err)
	}
	return job, nil
}

func (s *Postgres) ListByAgreement(ctx context.Context, agreementID id.AgreementID) ([]*models.Job, error) {
	return s.list(ctx, `SELECT `+jobColumns+` FROM delivery_jobs WHERE agreement_id = $1 ORDER BY created_at DESC`, uuid.UUID(agreementID))
}

func (s *Postgres) ClaimNext(ctx context.Context, now time.Time) (*models.Job, error) {
	const query = `
		UPDATE delivery_jobs
		SET status = 'SENDING', claimed_at = $1, claim_token = $2, updated_at = $1
		WHERE id = (
			SELECT id FROM delivery_jobs
			WHERE status = 'QUEUED' AND next_attempt_at <= $1
			ORDER BY next_attempt_at, created_at
			LIMIT 1
			FOR UPDATE SKIP LOCKED
		)
		RETURNING ` + jobColumns
	job, err := scanJob(s.db(ctx).QueryRow(ctx, query, now, uuid.New()))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("claim delivery job: %w", err)
	}
	return job, nil
}

// Complete writes an attempt outcome guarded by the claim token.
func (s *Postgres) Complete(ctx context.Context, job *models.Job) error {
	const query = `
		UPDATE delivery_jobs
		SET status = $3, retry_count = $4, last_error = $5, next_attempt_at = $6,
		    claimed_at = NULL, claim_token = NULL, transport_message_id = $7,
		    updated_at = $8, sent_at = $9
		WHERE id = $1 AND claim_token = $2 AND status = 'SENDING'
	`
	tag, err := s.db(ctx).Exec(ctx, query,
		uuid.UUID(job.ID), uuid.UUID(job.ClaimToken), string(job.Status), job.RetryCount, job.LastError,
		job.NextAttemptAt, job.TransportMessageID, job.UpdatedAt, job.SentAt,
	)
	if err != nil {
		return fmt.Errorf("complete delivery job: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return sentinel.ErrConflict
	}
	if job.Status == models.StatusQueued {
		return s.notify(ctx, job.ID)
	}
	return nil
}

func (s *Postgres) Cancel(ctx context.Context, job *models.Job) error {
	const query = `
		UPDATE delivery_jobs SET status = $2, updated_at = $3
		WHERE id = $1 AND status = 'QUEUED'
	`
	tag, err := s.db(ctx).Exec(ctx, query, uuid.UUID(job.ID), string(job.Status), job.UpdatedAt)
	if err != nil {
		return fmt.Errorf("cancel delivery job: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return sentinel.ErrConflict
	}
	return nil
}

func (s *Postgres) ListStale(ctx context.Context, claimedBefore time.Time) ([]*models.Job, error) {
	return s.list(ctx, `SELECT `+jobColumns+` FROM delivery_jobs WHERE status = 'SENDING' AND claimed_at < $1 ORDER BY claimed_at`, claimedBefore)
}

func (s *Postgres) notify(ctx context.Context, jobID id.JobID) error {
	if _, err := s.db(ctx).Exec(ctx, `SELECT pg_notify($1, $2)`, NotifyChannel, jobID.String()); err != nil {
		return fmt.Errorf("notify delivery workers: %w", err)
	}
	return nil
}

func (s *Postgres) list(ctx context.Context, query string, args ...any) ([]*models.Job, error) {
	rows, err := s.db(ctx).Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query delivery jobs: %w", err)
	}
	defer rows.Close()

	jobs := make([]*models.Job, 0)
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, fmt.Errorf("scan delivery job: %w", err)
		}
		jobs = append(jobs, job)
	}
	return jobs, rows.Err()
}

func scanJob(row pgx.Row) (*models.Job, error) {
	var (
		job                       models.Job
		rawID, agreementID        uuid.UUID
		templateID, claimToken    *uuid.UUID
		status                    string
		key, filename, contentTyp string
	)
	err := row.Scan(
		&rawID, &agreementID, &job.Subject, &job.To, &job.Cc, &job.Bcc, &job.Body, &templateID,
		&key, &filename, &contentTyp, &status, &job.RetryCount,
		&job.LastError, &job.NextAttemptAt, &job.ClaimedAt, &claimToken, &job.TransportMessageID, &job.RequestedBy,
		&job.CreatedAt, &job.UpdatedAt, &job.SentAt,
	)
	if err != nil {
		return nil, err
	}
	job.ID = id.JobID(rawID)
	job.AgreementID = id.AgreementID(agreementID)
	if templateID != nil {
		job.TemplateID = id.TemplateID(*templateID)
	}
	if claimToken != nil {
		job.ClaimToken = *claimToken
	}
	job.Status = models.Status(status)
	job.Attachment = attachment.Ref{Key: key, Filename: filename, ContentType: contentTyp}
	return &job, nil
}

func nullableTemplate(t id.TemplateID) *uuid.UUID {
	if t.IsNil() {
		return nil
	}
	u := uuid.UUID(t)
	return &u
}

func nullableToken(t uuid.UUID) *uuid.UUID {
	if t == uuid.Nil {
		return nil
	}
	return &t
}
