package contacts

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	id "ndaflow/pkg/domain"
	"ndaflow/pkg/platform/sentinel"
)

type Postgres struct {
	pool *pgxpool.Pool
}

func NewPostgres(pool *pgxpool.Pool) *Postgres {
	return &Postgres{pool: pool}
}

// Save upserts a contact.
func (s *Postgres) Save(ctx context.Context, c Contact) error {
	const query = `
		INSERT INTO contacts (id, email, first_name, last_name)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (id) DO UPDATE
		SET email = EXCLUDED.email, first_name = EXCLUDED.first_name, last_name = EXCLUDED.last_name
	`
	if _, err := s.pool.Exec(ctx, query, uuid.UUID(c.ID), c.Email, c.FirstName, c.LastName); err != nil {
		return fmt.Errorf("save contact: %w", err)
	}
	return nil
}

func (s *Postgres) Resolve(ctx context.Context, contactID id.ContactID) (Contact, error) {
	const query = `SELECT email, first_name, last_name FROM contacts WHERE id = $1`
	c := Contact{ID: contactID}
	err := s.pool.QueryRow(ctx, query, uuid.UUID(contactID)).Scan(&c.Email, &c.FirstName, &c.LastName)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Contact{}, sentinel.ErrNotFound
		}
		return Contact{}, fmt.Errorf("resolve contact: %w", err)
	}
	return c, nil
}
