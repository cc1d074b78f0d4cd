// Package service accepts send requests into the durable delivery queue.
//
// Enqueue validates everything it can before a row is written; the worker
// only ever sees jobs whose recipients, subject and attachment were valid
// at enqueue time.
package service

import (
	"context"
	"errors"
	"log/slog"

	agreementmodels "ndaflow/internal/agreement/models"
	"ndaflow/internal/attachment"
	"ndaflow/internal/audit"
	"ndaflow/internal/delivery/metrics"
	"ndaflow/internal/delivery/models"
	"ndaflow/internal/permission"
	id "ndaflow/pkg/domain"
	dErrors "ndaflow/pkg/domain-errors"
	"ndaflow/pkg/platform/sentinel"
	"ndaflow/pkg/platform/tx"
	"ndaflow/pkg/requestcontext"
)

type Store interface {
	Create(ctx context.Context, job *models.Job) error
	FindByID(ctx context.Context, jobID id.JobID) (*models.Job, error)
	ListByAgreement(ctx context.Context, agreementID id.AgreementID) ([]*models.Job, error)
	Cancel(ctx context.Context, job *models.Job) error
}

type AgreementReader interface {
	Get(ctx context.Context, agreementID id.AgreementID) (*agreementmodels.Agreement, error)
}

type AuditPublisher interface {
	Emit(ctx context.Context, entry audit.Entry) error
}

type PermissionChecker interface {
	Has(identity requestcontext.ActingIdentity, capability permission.Capability) bool
}

type Service struct {
	store       Store
	tx          tx.Runner
	agreements  AgreementReader
	attachments attachment.Store
	audit       AuditPublisher
	permissions PermissionChecker
	logger      *slog.Logger
	metrics     *metrics.Metrics
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) { s.logger = logger }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

func New(store Store, runner tx.Runner, agreements AgreementReader, attachments attachment.Store,
	auditor AuditPublisher, permissions PermissionChecker, opts ...Option) (*Service, error) {
	if store == nil || runner == nil || agreements == nil || attachments == nil || auditor == nil || permissions == nil {
		return nil, errors.New("delivery service: store, tx runner, agreements, attachments, audit publisher and permission checker are required")
	}
	s := &Service{
		store:       store,
		tx:          runner,
		agreements:  agreements,
		attachments: attachments,
		audit:       auditor,
		permissions: permissions,
		logger:      slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Enqueue validates req and stores a QUEUED job with its audit entry in one
// unit of work. Nothing is written when any check fails.
func (s *Service) Enqueue(ctx context.Context, req models.SendRequest, actor requestcontext.ActingIdentity) (*models.Job, error) {
	if !s.permissions.Has(actor, permission.SendEmail) {
		return nil, dErrors.New(dErrors.CodeForbidden, "missing permission "+string(permission.SendEmail))
	}
	if err := models.Validate(req); err != nil {
		return nil, err
	}
	if _, err := s.agreements.Get(ctx, req.AgreementID); err != nil {
		return nil, err
	}
	ref, err := s.latestDocument(ctx, req.AgreementID)
	if err != nil {
		return nil, err
	}

	job, err := models.NewJob(req, ref, actor.ID, requestcontext.Now(ctx))
	if err != nil {
		return nil, err
	}

	err = s.tx.RunInTx(ctx, job.AgreementID.String(), func(ctx context.Context) error {
		if err := s.store.Create(ctx, job); err != nil {
			return err
		}
		return s.audit.Emit(ctx, audit.Entry{
			EntityType:  audit.EntityDeliveryJob,
			EntityID:    job.ID.String(),
			AgreementID: job.AgreementID,
			Action:      audit.ActionEmailQueued,
			ActorID:     actor.ID,
			Details: map[string]any{
				"subject":    job.Subject,
				"recipients": len(job.Recipients()),
				"attachment": job.Attachment.Filename,
			},
		})
	})
	if err != nil {
		return nil, translateStoreErr(err)
	}

	if s.metrics != nil {
		s.metrics.IncrementEnqueued()
	}
	s.logger.InfoContext(ctx, "email queued",
		"request_id", requestcontext.RequestID(ctx),
		"agreement_id", job.AgreementID.String(),
		"job_id", job.ID.String(),
		"recipients", len(job.Recipients()),
	)
	return job, nil
}

func (s *Service) latestDocument(ctx context.Context, agreementID id.AgreementID) (attachment.Ref, error) {
	ref, err := s.attachments.Latest(ctx, agreementID)
	if errors.Is(err, sentinel.ErrNotFound) {
		return attachment.Ref{}, dErrors.New(dErrors.CodeValidation, "agreement has no generated document to attach")
	}
	if err != nil {
		return attachment.Ref{}, dErrors.Wrap(err, dErrors.CodeInternal, "attachment lookup failed")
	}
	ok, err := s.attachments.Exists(ctx, ref)
	if err != nil {
		return attachment.Ref{}, dErrors.Wrap(err, dErrors.CodeInternal, "attachment lookup failed")
	}
	if !ok {
		return attachment.Ref{}, dErrors.New(dErrors.CodeValidation, "latest document is missing from storage")
	}
	return ref, nil
}

// Cancel withdraws a job that no worker has claimed yet.
func (s *Service) Cancel(ctx context.Context, jobID id.JobID, actor requestcontext.ActingIdentity) (*models.Job, error) {
	if !s.permissions.Has(actor, permission.SendEmail) {
		return nil, dErrors.New(dErrors.CodeForbidden, "missing permission "+string(permission.SendEmail))
	}

	var cancelled *models.Job
	err := s.tx.RunInTx(ctx, jobID.String(), func(ctx context.Context) error {
		job, err := s.store.FindByID(ctx, jobID)
		if err != nil {
			return err
		}
		if err := job.Cancel(requestcontext.Now(ctx)); err != nil {
			return err
		}
		if err := s.store.Cancel(ctx, job); err != nil {
			return err
		}
		cancelled = job
		return s.audit.Emit(ctx, audit.Entry{
			EntityType:  audit.EntityDeliveryJob,
			EntityID:    job.ID.String(),
			AgreementID: job.AgreementID,
			Action:      audit.ActionEmailCancelled,
			ActorID:     actor.ID,
		})
	})
	if err != nil {
		return nil, translateStoreErr(err)
	}

	s.logger.InfoContext(ctx, "email cancelled",
		"request_id", requestcontext.RequestID(ctx),
		"agreement_id", cancelled.AgreementID.String(),
		"job_id", jobID.String(),
	)
	return cancelled, nil
}

// List returns the agreement's delivery history, newest first.
func (s *Service) List(ctx context.Context, agreementID id.AgreementID) ([]*models.Job, error) {
	jobs, err := s.store.ListByAgreement(ctx, agreementID)
	if err != nil {
		return nil, translateStoreErr(err)
	}
	return jobs, nil
}

func (s *Service) Get(ctx context.Context, jobID id.JobID) (*models.Job, error) {
	job, err := s.store.FindByID(ctx, jobID)
	if err != nil {
		return nil, translateStoreErr(err)
	}
	return job, nil
}

func translateStoreErr(err error) error {
	var de *dErrors.Error
	switch {
	case errors.As(err, &de):
		return err
	case errors.Is(err, sentinel.ErrNotFound):
		return dErrors.New(dErrors.CodeNotFound, "delivery job not found")
	case errors.Is(err, sentinel.ErrConflict), errors.Is(err, sentinel.ErrAlreadyUsed):
		return dErrors.New(dErrors.CodeConflict, "delivery job is no longer queued")
	default:
		return dErrors.Wrap(err, dErrors.CodeInternal, "delivery store failure")
	}
}
