// Package service implements the agreement status transition engine.
//
// Every status change goes through one unit of work that reads the current
// agreement, validates the change against the transition table, appends one
// history entry with a version compare-and-swap, and appends one audit entry.
// Notifications are sent only after the unit of work commits.
package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"ndaflow/internal/agreement/metrics"
	"ndaflow/internal/agreement/models"
	"ndaflow/internal/audit"
	"ndaflow/internal/notify"
	"ndaflow/internal/permission"
	id "ndaflow/pkg/domain"
	dErrors "ndaflow/pkg/domain-errors"
	"ndaflow/pkg/platform/sentinel"
	"ndaflow/pkg/platform/tx"
	"ndaflow/pkg/requestcontext"
)

// Store persists agreements. SaveTransition must fail with sentinel.ErrConflict
// when the stored version is not entry.Sequence-1.
type Store interface {
	FindByID(ctx context.Context, agreementID id.AgreementID) (*models.Agreement, error)
	FindForUpdate(ctx context.Context, agreementID id.AgreementID) (*models.Agreement, error)
	SaveTransition(ctx context.Context, a *models.Agreement, entry models.HistoryEntry) error
	ListExpiring(ctx context.Context, now time.Time, limit int) ([]id.AgreementID, error)
}

type AuditPublisher interface {
	Emit(ctx context.Context, entry audit.Entry) error
}

type PermissionChecker interface {
	Has(identity requestcontext.ActingIdentity, capability permission.Capability) bool
}

// Notifier accepts events without blocking.
type Notifier interface {
	Notify(ctx context.Context, event notify.Event)
}

// Service is the status transition engine.
type Service struct {
	store       Store
	tx          tx.Runner
	audit       AuditPublisher
	permissions PermissionChecker
	notifier    Notifier
	logger      *slog.Logger
	metrics     *metrics.Metrics
	tracer      trace.Tracer
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) { s.logger = logger }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

func WithNotifier(n Notifier) Option {
	return func(s *Service) { s.notifier = n }
}

func WithTracer(t trace.Tracer) Option {
	return func(s *Service) { s.tracer = t }
}

// New creates the engine. Store, tx runner, audit publisher and permission checker are required.
func New(store Store, runner tx.Runner, auditor AuditPublisher, permissions PermissionChecker, opts ...Option) (*Service, error) {
	if store == nil || runner == nil || auditor == nil || permissions == nil {
		return nil, errors.New("agreement service: store, tx runner, audit publisher and permission checker are required")
	}
	s := &Service{
		store:       store,
		tx:          runner,
		audit:       auditor,
		permissions: permissions,
		logger:      slog.Default(),
		tracer:      otel.Tracer("ndaflow/agreement"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Get returns the agreement with its full history.
func (s *Service) Get(ctx context.Context, agreementID id.AgreementID) (*models.Agreement, error) {
	a, err := s.store.FindByID(ctx, agreementID)
	if err != nil {
		return nil, translateStoreErr(err)
	}
	return a, nil
}

// History returns the agreement's status history, oldest first.
func (s *Service) History(ctx context.Context, agreementID id.AgreementID) ([]models.HistoryEntry, error) {
	a, err := s.Get(ctx, agreementID)
	if err != nil {
		return nil, err
	}
	return a.History, nil
}

// IsTerminal, LegalDestinations and CanReactivate expose the policy tables.
func (s *Service) IsTerminal(status models.Status) bool { return models.IsTerminal(status) }

func (s *Service) LegalDestinations(status models.Status) []models.Status {
	return models.LegalDestinations(status)
}

func (s *Service) CanReactivate(status models.Status) bool { return models.CanReactivate(status) }

func translateStoreErr(err error) error {
	switch {
	case errors.Is(err, sentinel.ErrNotFound):
		return dErrors.New(dErrors.CodeNotFound, "agreement not found")
	case errors.Is(err, sentinel.ErrConflict):
		return errStale
	default:
		return dErrors.Wrap(err, dErrors.CodeInternal, "agreement store failure")
	}
}
