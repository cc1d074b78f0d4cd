// Package escalation alerts operators when a delivery job exhausts its retries.
package escalation

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"ndaflow/internal/delivery/message"
	"ndaflow/internal/delivery/metrics"
	"ndaflow/internal/delivery/models"
)

const alertTimeout = 30 * time.Second

type Transport interface {
	Send(ctx context.Context, env message.Envelope, raw []byte) (string, error)
}

// Escalator sends one plain-text alert per failed job. It never retries and
// never returns an error; problems are logged.
type Escalator struct {
	transport  Transport
	from       string
	recipients []string
	logger     *slog.Logger
	metrics    *metrics.Metrics
	now        func() time.Time
}

type Option func(*Escalator)

func WithLogger(logger *slog.Logger) Option {
	return func(e *Escalator) { e.logger = logger }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(e *Escalator) { e.metrics = m }
}

func WithClock(now func() time.Time) Option {
	return func(e *Escalator) {
		if now != nil {
			e.now = now
		}
	}
}

func New(transport Transport, from string, recipients []string, opts ...Option) *Escalator {
	e := &Escalator{
		transport:  transport,
		from:       from,
		recipients: recipients,
		logger:     slog.Default(),
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

func (e *Escalator) Escalate(ctx context.Context, job *models.Job, finalErr error) {
	if len(e.recipients) == 0 {
		e.logger.WarnContext(ctx, "escalation skipped: no alert recipients configured",
			"job_id", job.ID.String(),
			"agreement_id", job.AgreementID.String(),
		)
		e.record("skipped")
		return
	}

	msg := e.alert(job, finalErr)
	raw, err := msg.Render()
	if err != nil {
		e.logger.ErrorContext(ctx, "failed to render escalation alert", "job_id", job.ID.String(), "error", err)
		e.record("error")
		return
	}

	sendCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), alertTimeout)
	defer cancel()
	if _, err := e.transport.Send(sendCtx, msg.Envelope(), raw); err != nil {
		e.logger.ErrorContext(ctx, "failed to send escalation alert",
			"job_id", job.ID.String(),
			"agreement_id", job.AgreementID.String(),
			"error", err,
		)
		e.record("error")
		return
	}
	e.logger.InfoContext(ctx, "escalation alert sent",
		"job_id", job.ID.String(),
		"recipients", len(e.recipients),
	)
	e.record("sent")
}

func (e *Escalator) alert(job *models.Job, finalErr error) *message.Message {
	cause := job.LastError
	if finalErr != nil {
		cause = finalErr.Error()
	}
	// keep the alert single-line safe; the cause may come from a remote server
	cause = strings.NewReplacer("\r", " ", "\n", " ").Replace(cause)

	var b strings.Builder
	b.WriteString("An NDA email could not be delivered and will not be retried.\n\n")
	fmt.Fprintf(&b, "Agreement: %s\n", job.AgreementID)
	fmt.Fprintf(&b, "Job: %s\n", job.ID)
	fmt.Fprintf(&b, "Subject: %s\n", job.Subject)
	fmt.Fprintf(&b, "Recipients: %s\n", strings.Join(job.To, ", "))
	fmt.Fprintf(&b, "Attempts: %d\n", job.RetryCount)
	fmt.Fprintf(&b, "Requested by: %s\n", job.RequestedBy)
	fmt.Fprintf(&b, "Last error: %s\n", cause)

	return &message.Message{
		From:      e.from,
		To:        e.recipients,
		Subject:   fmt.Sprintf("[ndaflow] Email delivery failed for agreement %s", job.AgreementID),
		Body:      b.String(),
		MessageID: fmt.Sprintf("<escalation.%s@%s>", job.ID, domainOf(e.from)),
		Date:      e.now(),
	}
}

func (e *Escalator) record(result string) {
	if e.metrics != nil {
		e.metrics.IncrementEscalation(result)
	}
}

func domainOf(address string) string {
	if at := strings.LastIndexByte(address, '@'); at >= 0 && at < len(address)-1 {
		return address[at+1:]
	}
	return "localhost"
}
