package service

import (
	"context"
	"errors"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"ndaflow/internal/agreement/models"
	"ndaflow/internal/audit"
	"ndaflow/internal/notify"
	"ndaflow/internal/permission"
	id "ndaflow/pkg/domain"
	dErrors "ndaflow/pkg/domain-errors"
	"ndaflow/pkg/platform/tx"
	"ndaflow/pkg/requestcontext"
)

var errStale = dErrors.New(dErrors.CodeConflict, "agreement changed concurrently; reload and retry")

// RequestTransition applies a manual status change on behalf of actor.
//
// The change is validated against the status the caller acted on. If another
// writer commits first, the request is rejected as stale rather than re-applied
// to the new status.
func (s *Service) RequestTransition(ctx context.Context, agreementID id.AgreementID, target models.Status,
	actor requestcontext.ActingIdentity, reason string) (*models.Agreement, models.HistoryEntry, error) {
	start := time.Now()
	ctx, span := s.tracer.Start(ctx, "agreement.RequestTransition", trace.WithAttributes(
		attribute.String("agreement.id", agreementID.String()),
		attribute.String("agreement.target", string(target)),
	))
	defer span.End()

	if !s.permissions.Has(actor, permission.MarkStatus) {
		return nil, models.HistoryEntry{}, s.reject(span, dErrors.New(dErrors.CodeForbidden, "missing permission "+string(permission.MarkStatus)))
	}
	if !target.IsValid() {
		return nil, models.HistoryEntry{}, s.reject(span, dErrors.New(dErrors.CodeValidation, "unknown target status"))
	}

	observed, err := s.store.FindByID(ctx, agreementID)
	if err != nil {
		return nil, models.HistoryEntry{}, s.reject(span, translateStoreErr(err))
	}
	if err := observed.CanTransitionTo(target); err != nil {
		return nil, models.HistoryEntry{}, s.reject(span, err)
	}

	now := requestcontext.Now(ctx)
	updated, entry, err := s.commit(ctx, agreementID, func(current *models.Agreement) (models.HistoryEntry, bool, error) {
		if current.Version != observed.Version {
			return models.HistoryEntry{}, false, errStale
		}
		entry, err := current.ApplyTransition(target, actor.ID, reason, now)
		return entry, err == nil, err
	}, actor, audit.ActionStatusChanged, false)
	if err != nil {
		return nil, models.HistoryEntry{}, s.reject(span, err)
	}

	if s.metrics != nil {
		s.metrics.ObserveTransition(start)
	}
	s.logger.InfoContext(ctx, "agreement status changed",
		"agreement_id", agreementID.String(),
		"from", string(entry.PreviousStatus),
		"to", string(entry.Status),
		"actor_id", actor.ID,
		"request_id", requestcontext.RequestID(ctx),
	)
	s.publish(ctx, notify.EventStatusChanged, updated, entry)
	return updated, entry, nil
}

// Reactivate restores a canceled agreement to its last active status.
func (s *Service) Reactivate(ctx context.Context, agreementID id.AgreementID,
	actor requestcontext.ActingIdentity, reason string) (*models.Agreement, models.HistoryEntry, error) {
	ctx, span := s.tracer.Start(ctx, "agreement.Reactivate", trace.WithAttributes(
		attribute.String("agreement.id", agreementID.String()),
	))
	defer span.End()

	if !s.permissions.Has(actor, permission.MarkStatus) {
		return nil, models.HistoryEntry{}, s.reject(span, dErrors.New(dErrors.CodeForbidden, "missing permission "+string(permission.MarkStatus)))
	}

	now := requestcontext.Now(ctx)
	updated, entry, err := s.commit(ctx, agreementID, func(current *models.Agreement) (models.HistoryEntry, bool, error) {
		entry, err := current.ApplyReactivation(actor.ID, reason, now)
		return entry, err == nil, err
	}, actor, audit.ActionReactivated, false)
	if err != nil {
		return nil, models.HistoryEntry{}, s.reject(span, err)
	}

	s.logger.InfoContext(ctx, "agreement reactivated",
		"agreement_id", agreementID.String(),
		"to", string(entry.Status),
		"actor_id", actor.ID,
	)
	s.publish(ctx, notify.EventReactivated, updated, entry)
	return updated, entry, nil
}

// AttemptAutoTransition applies the change an external trigger implies. It is a
// no-op returning false when the current status is not an eligible source,
// which makes repeated triggers harmless.
func (s *Service) AttemptAutoTransition(ctx context.Context, agreementID id.AgreementID, trigger models.Trigger,
	actor requestcontext.ActingIdentity) (*models.Agreement, bool, error) {
	ctx, span := s.tracer.Start(ctx, "agreement.AttemptAutoTransition", trace.WithAttributes(
		attribute.String("agreement.id", agreementID.String()),
		attribute.String("agreement.trigger", string(trigger)),
	))
	defer span.End()

	if !models.IsAutoTrigger(trigger) {
		return nil, false, dErrors.New(dErrors.CodeValidation, "unknown trigger "+string(trigger))
	}

	now := requestcontext.Now(ctx)
	var skippedFrom models.Status
	updated, entry, err := s.commit(ctx, agreementID, func(current *models.Agreement) (models.HistoryEntry, bool, error) {
		entry, applied := current.ApplyAutoTransition(trigger, actor.ID, now)
		if !applied {
			skippedFrom = current.Status
		}
		return entry, applied, nil
	}, actor, audit.ActionStatusChanged, true)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, false, err
	}
	if updated == nil {
		s.logger.DebugContext(ctx, "auto transition not applicable",
			"agreement_id", agreementID.String(),
			"trigger", string(trigger),
			"status", string(skippedFrom),
		)
		return nil, false, nil
	}

	s.logger.InfoContext(ctx, "agreement auto transition applied",
		"agreement_id", agreementID.String(),
		"trigger", string(trigger),
		"from", string(entry.PreviousStatus),
		"to", string(entry.Status),
	)
	s.publish(ctx, notify.EventStatusChanged, updated, entry)
	return updated, true, nil
}

// mutation applies a change to the locked agreement. It returns applied=false
// with a nil error when there is nothing to write.
type mutation func(current *models.Agreement) (models.HistoryEntry, bool, error)

// commit runs mutate inside one unit of work and persists the result together
// with its audit entry. A transient database abort is retried once; a version
// conflict is retried once only when retryConflict is set.
func (s *Service) commit(ctx context.Context, agreementID id.AgreementID, mutate mutation,
	actor requestcontext.ActingIdentity, action audit.Action, retryConflict bool) (*models.Agreement, models.HistoryEntry, error) {
	var (
		updated *models.Agreement
		entry   models.HistoryEntry
	)
	run := func() error {
		updated = nil
		return s.tx.RunInTx(ctx, agreementID.String(), func(ctx context.Context) error {
			current, err := s.store.FindForUpdate(ctx, agreementID)
			if err != nil {
				return translateStoreErr(err)
			}
			e, applied, err := mutate(current)
			if err != nil || !applied {
				return err
			}
			if err := s.store.SaveTransition(ctx, current, e); err != nil {
				return translateStoreErr(err)
			}
			if err := s.audit.Emit(ctx, audit.Entry{
				EntityType:  audit.EntityAgreement,
				EntityID:    agreementID.String(),
				AgreementID: agreementID,
				Action:      action,
				ActorID:     actor.ID,
				Timestamp:   e.ChangedAt,
				Details: map[string]any{
					"from":     string(e.PreviousStatus),
					"to":       string(e.Status),
					"trigger":  string(e.Trigger),
					"reason":   e.Reason,
					"sequence": e.Sequence,
				},
			}); err != nil {
				return dErrors.Wrap(err, dErrors.CodeInternal, "append audit entry")
			}
			updated, entry = current, e
			return nil
		})
	}

	err := run()
	if tx.IsRetryable(err) || (retryConflict && errors.Is(err, errStale)) {
		s.logger.WarnContext(ctx, "retrying status change",
			"agreement_id", agreementID.String(),
			"error", err,
		)
		err = run()
	}
	if err != nil {
		return nil, models.HistoryEntry{}, err
	}
	if updated != nil && s.metrics != nil {
		s.metrics.IncrementTransition(string(entry.Trigger), string(entry.Status))
	}
	return updated, entry, nil
}

func (s *Service) publish(ctx context.Context, eventType notify.EventType, a *models.Agreement, entry models.HistoryEntry) {
	if s.notifier == nil {
		return
	}
	s.notifier.Notify(ctx, notify.Event{
		Type:           eventType,
		AgreementID:    a.ID,
		DisplayID:      a.DisplayID,
		CompanyName:    a.CompanyName,
		PreviousStatus: string(entry.PreviousStatus),
		NewStatus:      string(entry.Status),
		StatusLabel:    entry.Status.Label(),
		Trigger:        string(entry.Trigger),
		ActorID:        entry.ActorID,
		OccurredAt:     entry.ChangedAt,
	})
}

func (s *Service) reject(span trace.Span, err error) error {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	if s.metrics != nil {
		s.metrics.IncrementRejected(string(dErrors.CodeOf(err)))
	}
	return err
}
