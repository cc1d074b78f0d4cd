package compose

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	id "ndaflow/pkg/domain"
	"ndaflow/pkg/platform/sentinel"
)

// TemplateStore returns sentinel.ErrNotFound for unknown templates and from
// Default when no default template is configured.
type TemplateStore interface {
	FindByID(ctx context.Context, templateID id.TemplateID) (*Template, error)
	Default(ctx context.Context) (*Template, error)
}

type InMemoryTemplates struct {
	mu        sync.RWMutex
	templates map[id.TemplateID]Template
}

func NewInMemoryTemplates() *InMemoryTemplates {
	return &InMemoryTemplates{templates: make(map[id.TemplateID]Template)}
}

// Save stores t. Saving a default template clears the flag on the others.
func (s *InMemoryTemplates) Save(_ context.Context, t Template) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if t.IsDefault {
		for k, other := range s.templates {
			other.IsDefault = false
			s.templates[k] = other
		}
	}
	s.templates[t.ID] = t
	return nil
}

func (s *InMemoryTemplates) FindByID(_ context.Context, templateID id.TemplateID) (*Template, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.templates[templateID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return &t, nil
}

func (s *InMemoryTemplates) Default(_ context.Context) (*Template, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, t := range s.templates {
		if t.IsDefault {
			return &t, nil
		}
	}
	return nil, sentinel.ErrNotFound
}

type PostgresTemplates struct {
	pool *pgxpool.Pool
}

func NewPostgresTemplates(pool *pgxpool.Pool) *PostgresTemplates {
	return &PostgresTemplates{pool: pool}
}

// Save upserts t, moving the default flag to it when t.IsDefault is set.
func (s *PostgresTemplates) Save(ctx context.Context, t Template) error {
	return pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		if t.IsDefault {
			if _, err := tx.Exec(ctx, `UPDATE email_templates SET is_default = FALSE WHERE is_default AND id <> $1`, uuid.UUID(t.ID)); err != nil {
				return fmt.Errorf("clear default template: %w", err)
			}
		}
		const query = `
			INSERT INTO email_templates (id, name, subject, body, is_default, created_at)
			VALUES ($1, $2, $3, $4, $5, $6)
			ON CONFLICT (id) DO UPDATE
			SET name = EXCLUDED.name, subject = EXCLUDED.subject, body = EXCLUDED.body, is_default = EXCLUDED.is_default
		`
		if _, err := tx.Exec(ctx, query, uuid.UUID(t.ID), t.Name, t.Subject, t.Body, t.IsDefault, t.CreatedAt); err != nil {
			return fmt.Errorf("save template: %w", err)
		}
		return nil
	})
}

func (s *PostgresTemplates) FindByID(ctx context.Context, templateID id.TemplateID) (*Template, error) {
	return s.one(ctx, `SELECT id, name, subject, body, is_default, created_at FROM email_templates WHERE id = $1`, uuid.UUID(templateID))
}

func (s *PostgresTemplates) Default(ctx context.Context) (*Template, error) {
	return s.one(ctx, `SELECT id, name, subject, body, is_default, created_at FROM email_templates WHERE is_default`)
}

func (s *PostgresTemplates) one(ctx context.Context, query string, args ...any) (*Template, error) {
	var (
		t     Template
		rawID uuid.UUID
	)
	err := s.pool.QueryRow(ctx, query, args...).Scan(&rawID, &t.Name, &t.Subject, &t.Body, &t.IsDefault, &t.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("load template: %w", err)
	}
	t.ID = id.TemplateID(rawID)
	return &t, nil
}
