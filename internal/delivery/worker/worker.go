// Package worker drains the delivery queue.
//
// A job is attempted only while this worker holds its claim. Every outcome is
// written back with a compare-and-swap on the claim token, so a job that was
// recovered by another worker is never completed twice.
package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	agreementmodels "ndaflow/internal/agreement/models"
	"ndaflow/internal/attachment"
	"ndaflow/internal/audit"
	"ndaflow/internal/delivery/message"
	"ndaflow/internal/delivery/metrics"
	"ndaflow/internal/delivery/models"
	"ndaflow/internal/notify"
	id "ndaflow/pkg/domain"
	dErrors "ndaflow/pkg/domain-errors"
	"ndaflow/pkg/platform/sentinel"
	"ndaflow/pkg/platform/tx"
	"ndaflow/pkg/requestcontext"
)

// Store is the worker's view of the queue.
type Store interface {
	ClaimNext(ctx context.Context, now time.Time) (*models.Job, error)
	Complete(ctx context.Context, job *models.Job) error
	ListStale(ctx context.Context, claimedBefore time.Time) ([]*models.Job, error)
}

type Transport interface {
	Send(ctx context.Context, env message.Envelope, raw []byte) (string, error)
}

type AttachmentFetcher interface {
	Get(ctx context.Context, ref attachment.Ref) ([]byte, error)
}

// Escalator is told about every job that ends FAILED, exactly once.
type Escalator interface {
	Escalate(ctx context.Context, job *models.Job, finalErr error)
}

type AutoTransitioner interface {
	AttemptAutoTransition(ctx context.Context, agreementID id.AgreementID, trigger agreementmodels.Trigger,
		actor requestcontext.ActingIdentity) (*agreementmodels.Agreement, bool, error)
}

type AuditPublisher interface {
	Emit(ctx context.Context, entry audit.Entry) error
}

type Notifier interface {
	Notify(ctx context.Context, event notify.Event)
}

// Config holds the retry and timing policy.
type Config struct {
	From         string
	MaxRetries   int
	BackoffBase  time.Duration
	BackoffMax   time.Duration
	PollInterval time.Duration
	SendTimeout  time.Duration
	ClaimTimeout time.Duration
}

func DefaultConfig() Config {
	return Config{
		MaxRetries:   3,
		BackoffBase:  time.Second,
		BackoffMax:   5 * time.Minute,
		PollInterval: 5 * time.Second,
		SendTimeout:  30 * time.Second,
		ClaimTimeout: 10 * time.Minute,
	}
}

var actor = requestcontext.System("delivery")

type Worker struct {
	store       Store
	tx          tx.Runner
	attachments AttachmentFetcher
	transport   Transport
	audit       AuditPublisher
	cfg         Config

	escalator Escalator
	auto      AutoTransitioner
	notifier  Notifier
	wake      <-chan struct{}
	logger    *slog.Logger
	metrics   *metrics.Metrics
	tracer    trace.Tracer
	now       func() time.Time
}

type Option func(*Worker)

func WithLogger(logger *slog.Logger) Option {
	return func(w *Worker) { w.logger = logger }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(w *Worker) { w.metrics = m }
}

func WithTracer(t trace.Tracer) Option {
	return func(w *Worker) { w.tracer = t }
}

// WithClock overrides time.Now for claims, backoff and audit timestamps.
func WithClock(now func() time.Time) Option {
	return func(w *Worker) {
		if now != nil {
			w.now = now
		}
	}
}

// WithWake sets the channel that signals newly claimable jobs.
func WithWake(wake <-chan struct{}) Option {
	return func(w *Worker) { w.wake = wake }
}

func WithEscalator(e Escalator) Option {
	return func(w *Worker) { w.escalator = e }
}

func WithAutoTransitioner(a AutoTransitioner) Option {
	return func(w *Worker) { w.auto = a }
}

func WithNotifier(n Notifier) Option {
	return func(w *Worker) { w.notifier = n }
}

func New(store Store, runner tx.Runner, attachments AttachmentFetcher, transport Transport,
	auditor AuditPublisher, cfg Config, opts ...Option) (*Worker, error) {
	if store == nil || runner == nil || attachments == nil || transport == nil || auditor == nil {
		return nil, errors.New("delivery worker: store, tx runner, attachments, transport and audit publisher are required")
	}
	if cfg.MaxRetries < 1 {
		return nil, errors.New("delivery worker: max retries must be at least 1")
	}
	if cfg.PollInterval <= 0 || cfg.SendTimeout <= 0 || cfg.ClaimTimeout <= 0 {
		return nil, errors.New("delivery worker: poll interval, send timeout and claim timeout must be positive")
	}
	w := &Worker{
		store:       store,
		tx:          runner,
		attachments: attachments,
		transport:   transport,
		audit:       auditor,
		cfg:         cfg,
		logger:      slog.Default(),
		tracer:      otel.Tracer("ndaflow/delivery"),
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(w)
	}
	return w, nil
}

// Run recovers stale claims, then drains the queue whenever it is woken or
// the poll interval elapses. It returns nil when ctx is cancelled.
func (w *Worker) Run(ctx context.Context) error {
	w.logger.InfoContext(ctx, "delivery worker started",
		"poll_interval", w.cfg.PollInterval.String(),
		"max_retries", w.cfg.MaxRetries,
	)
	w.recover(ctx)

	ticker := time.NewTicker(w.cfg.PollInterval)
	defer ticker.Stop()
	for {
		w.drain(ctx)
		select {
		case <-ctx.Done():
			w.logger.InfoContext(ctx, "delivery worker stopped")
			return nil
		case <-w.wake:
		case <-ticker.C:
			w.recover(ctx)
		}
	}
}

func (w *Worker) drain(ctx context.Context) {
	for ctx.Err() == nil {
		processed, err := w.ProcessNext(ctx)
		if err != nil {
			w.logger.ErrorContext(ctx, "failed to claim delivery job", "error", err)
			return
		}
		if !processed {
			return
		}
	}
}

func (w *Worker) recover(ctx context.Context) {
	if _, err := w.Recover(ctx); err != nil {
		w.logger.ErrorContext(ctx, "failed to recover stale delivery claims", "error", err)
	}
}

// ProcessNext claims and attempts one due job. It reports false when nothing was due.
func (w *Worker) ProcessNext(ctx context.Context) (bool, error) {
	job, err := w.store.ClaimNext(ctx, w.now())
	if errors.Is(err, sentinel.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	w.attempt(ctx, job)
	return true, nil
}

func (w *Worker) attempt(ctx context.Context, job *models.Job) {
	start := time.Now()
	ctx, span := w.tracer.Start(ctx, "delivery.Attempt", trace.WithAttributes(
		attribute.String("delivery.job_id", job.ID.String()),
		attribute.String("agreement.id", job.AgreementID.String()),
		attribute.Int("delivery.retry_count", job.RetryCount),
	))
	defer span.End()
	if w.metrics != nil {
		defer w.metrics.ObserveAttempt(start)
	}

	messageID, err := w.send(ctx, job)
	// outcome writes must land even when shutdown cancels ctx mid-attempt
	ctx = context.WithoutCancel(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, string(dErrors.CodeOf(err)))
		w.fail(ctx, job, err)
		return
	}
	w.succeed(ctx, job, messageID)
}

func (w *Worker) send(ctx context.Context, job *models.Job) (string, error) {
	data, err := w.attachments.Get(ctx, job.Attachment)
	if err != nil {
		return "", dErrors.Wrap(err, dErrors.CodeTransportFailure, "attachment fetch failed")
	}

	msg := &message.Message{
		From:      w.cfg.From,
		To:        job.To,
		Cc:        job.Cc,
		Bcc:       job.Bcc,
		Subject:   job.Subject,
		Body:      job.Body,
		MessageID: messageID(job, w.cfg.From),
		Date:      w.now(),
		Attachment: &message.Attachment{
			Filename:    job.Attachment.Filename,
			ContentType: job.Attachment.ContentType,
			Data:        data,
		},
	}
	raw, err := msg.Render()
	if err != nil {
		return "", dErrors.Wrap(err, dErrors.CodePermanentFailure, "message rejected before send")
	}

	sendCtx, cancel := context.WithTimeout(ctx, w.cfg.SendTimeout)
	defer cancel()
	accepted, err := w.transport.Send(sendCtx, msg.Envelope(), raw)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) && !dErrors.HasCode(err, dErrors.CodeTimeout) {
			err = dErrors.Wrap(err, dErrors.CodeTimeout, "send timed out")
		}
		return "", err
	}
	if accepted == "" {
		accepted = msg.MessageID
	}
	return accepted, nil
}

func (w *Worker) succeed(ctx context.Context, job *models.Job, messageID string) {
	now := w.now()
	job.MarkSent(messageID, now)
	err := w.complete(ctx, job, audit.ActionEmailSent, now, map[string]any{
		"messageId":  messageID,
		"attempts":   job.RetryCount + 1,
		"recipients": len(job.Recipients()),
	})
	if err != nil {
		w.logger.ErrorContext(ctx, "sent email could not be recorded",
			"job_id", job.ID.String(),
			"agreement_id", job.AgreementID.String(),
			"message_id", messageID,
			"error", err,
		)
		return
	}
	w.outcome("sent")
	w.logger.InfoContext(ctx, "email sent",
		"job_id", job.ID.String(),
		"agreement_id", job.AgreementID.String(),
		"message_id", messageID,
	)

	if w.auto != nil {
		if _, _, err := w.auto.AttemptAutoTransition(ctx, job.AgreementID, agreementmodels.TriggerEmailSent, actor); err != nil {
			w.logger.WarnContext(ctx, "status update after send failed",
				"job_id", job.ID.String(),
				"agreement_id", job.AgreementID.String(),
				"error", err,
			)
		}
	}
	w.notify(ctx, notify.EventEmailSent, job, now)
}

func (w *Worker) fail(ctx context.Context, job *models.Job, cause error) {
	now := w.now()
	exhausted := true
	if dErrors.HasCode(cause, dErrors.CodePermanentFailure) {
		job.MarkFailed(cause.Error(), now)
	} else {
		retryAt := now.Add(Backoff(w.cfg.BackoffBase, w.cfg.BackoffMax, job.RetryCount+1))
		exhausted = job.RecordFailure(cause.Error(), w.cfg.MaxRetries, retryAt, now)
	}
	w.finishFailure(ctx, job, cause, exhausted, now)
}

// finishFailure persists a failed attempt. Escalation follows only a successful
// FAILED write, which the claim-token check makes unique per job.
func (w *Worker) finishFailure(ctx context.Context, job *models.Job, cause error, exhausted bool, now time.Time) {
	action := audit.ActionEmailRetryScheduled
	details := map[string]any{
		"error":      job.LastError,
		"code":       string(dErrors.CodeOf(cause)),
		"retryCount": job.RetryCount,
	}
	if exhausted {
		action = audit.ActionEmailFailed
	} else {
		details["nextAttemptAt"] = job.NextAttemptAt.UTC().Format(time.RFC3339)
	}

	if err := w.complete(ctx, job, action, now, details); err != nil {
		w.logger.ErrorContext(ctx, "failed attempt could not be recorded",
			"job_id", job.ID.String(),
			"agreement_id", job.AgreementID.String(),
			"error", err,
		)
		return
	}

	if !exhausted {
		w.outcome("retry")
		w.logger.WarnContext(ctx, "email attempt failed; retry scheduled",
			"job_id", job.ID.String(),
			"agreement_id", job.AgreementID.String(),
			"retry_count", job.RetryCount,
			"next_attempt_at", job.NextAttemptAt,
			"error", cause,
		)
		return
	}

	w.outcome("failed")
	w.logger.ErrorContext(ctx, "email delivery failed permanently",
		"job_id", job.ID.String(),
		"agreement_id", job.AgreementID.String(),
		"retry_count", job.RetryCount,
		"error", cause,
	)
	if w.escalator != nil {
		w.escalator.Escalate(ctx, job, cause)
	}
	w.notify(ctx, notify.EventDeliveryFailed, job, now)
}

func (w *Worker) complete(ctx context.Context, job *models.Job, action audit.Action, now time.Time, details map[string]any) error {
	return w.tx.RunInTx(ctx, job.AgreementID.String(), func(ctx context.Context) error {
		if err := w.store.Complete(ctx, job); err != nil {
			return err
		}
		return w.audit.Emit(ctx, audit.Entry{
			EntityType:  audit.EntityDeliveryJob,
			EntityID:    job.ID.String(),
			AgreementID: job.AgreementID,
			Action:      action,
			ActorID:     actor.ID,
			Timestamp:   now,
			Details:     details,
		})
	})
}

// Recover requeues SENDING jobs whose claim is older than the claim timeout.
// Each counts as a failed attempt: the transport gives no way to tell whether
// the crashed attempt was accepted.
func (w *Worker) Recover(ctx context.Context) (int, error) {
	now := w.now()
	stale, err := w.store.ListStale(ctx, now.Add(-w.cfg.ClaimTimeout))
	if err != nil {
		return 0, err
	}
	recovered := 0
	for _, job := range stale {
		cause := dErrors.New(dErrors.CodeTimeout, "claim expired before the attempt completed")
		retryAt := now.Add(Backoff(w.cfg.BackoffBase, w.cfg.BackoffMax, job.RetryCount+1))
		exhausted := job.RecordFailure(cause.Error(), w.cfg.MaxRetries, retryAt, now)
		w.logger.WarnContext(ctx, "recovering stale delivery claim",
			"job_id", job.ID.String(),
			"claimed_at", job.ClaimedAt,
		)
		w.finishFailure(ctx, job, cause, exhausted, now)
		recovered++
		if w.metrics != nil {
			w.metrics.IncrementRecovered()
		}
	}
	return recovered, nil
}

func (w *Worker) notify(ctx context.Context, eventType notify.EventType, job *models.Job, now time.Time) {
	if w.notifier == nil {
		return
	}
	w.notifier.Notify(ctx, notify.Event{
		Type:        eventType,
		AgreementID: job.AgreementID,
		ActorID:     job.RequestedBy,
		OccurredAt:  now,
	})
}

func (w *Worker) outcome(name string) {
	if w.metrics != nil {
		w.metrics.IncrementOutcome(name)
	}
}

// Backoff returns base·2^(attempt-1), capped at ceiling.
func Backoff(base, ceiling time.Duration, attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	d := base
	for i := 1; i < attempt; i++ {
		if d >= ceiling/2 {
			return ceiling
		}
		d *= 2
	}
	return min(d, ceiling)
}

// messageID is unique per attempt so a retried message is not deduplicated
// away by the receiving server.
func messageID(job *models.Job, from string) string {
	domain := "localhost"
	if at := strings.LastIndexByte(from, '@'); at >= 0 && at < len(from)-1 {
		domain = from[at+1:]
	}
	return fmt.Sprintf("<%s.%d@%s>", job.ID, job.RetryCount, domain)
}
