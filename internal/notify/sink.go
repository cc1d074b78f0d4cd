package notify

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"ndaflow/internal/delivery/message"
)

// LogSink writes notifications to the log. It is the development sink.
type LogSink struct {
	logger *slog.Logger
}

func NewLogSink(logger *slog.Logger) *LogSink {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogSink{logger: logger}
}

func (s *LogSink) Deliver(ctx context.Context, n Notification) error {
	subject, _ := Summarize(n.Event)
	s.logger.InfoContext(ctx, "notification",
		"agreement_id", n.Event.AgreementID.String(),
		"event", string(n.Event.Type),
		"recipient", n.Recipient.Email,
		"subject", subject,
	)
	return nil
}

type MailTransport interface {
	Send(ctx context.Context, env message.Envelope, raw []byte) (string, error)
}

// MailSink emails a plain-text notice through the alert transport.
type MailSink struct {
	transport MailTransport
	from      string
	timeout   time.Duration
	now       func() time.Time
}

func NewMailSink(transport MailTransport, from string, timeout time.Duration) *MailSink {
	return &MailSink{transport: transport, from: from, timeout: timeout, now: time.Now}
}

func (s *MailSink) Deliver(ctx context.Context, n Notification) error {
	subject, body := Summarize(n.Event)
	msg := &message.Message{
		From:    s.from,
		To:      []string{n.Recipient.Email},
		Subject: subject,
		Body:    greeting(n.Recipient) + body,
		Date:    s.now(),
	}
	raw, err := msg.Render()
	if err != nil {
		return err
	}
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}
	_, err = s.transport.Send(ctx, msg.Envelope(), raw)
	return err
}

func greeting(r Recipient) string {
	if r.Name == "" {
		return "Hello,\n\n"
	}
	return "Hello " + r.Name + ",\n\n"
}

// Summarize renders the subject and body text shared by the human-facing sinks.
func Summarize(e Event) (subject, body string) {
	ref := e.CompanyName
	if e.DisplayID > 0 {
		ref = fmt.Sprintf("NDA #%d (%s)", e.DisplayID, e.CompanyName)
	}
	if ref == "" {
		ref = "NDA " + e.AgreementID.String()
	}

	var b strings.Builder
	switch e.Type {
	case EventStatusChanged, EventReactivated:
		label := e.StatusLabel
		if label == "" {
			label = e.NewStatus
		}
		subject = fmt.Sprintf("%s is now %s", ref, label)
		fmt.Fprintf(&b, "%s moved from %s to %s.\n", ref, e.PreviousStatus, label)
		if e.Type == EventReactivated {
			b.WriteString("The agreement was reactivated.\n")
		}
	case EventEmailSent:
		subject = fmt.Sprintf("%s was emailed to the partner", ref)
		fmt.Fprintf(&b, "The document for %s was delivered.\n", ref)
	case EventDeliveryFailed:
		subject = fmt.Sprintf("Email for %s could not be delivered", ref)
		fmt.Fprintf(&b, "The email for %s failed after all retries. Operations has been alerted.\n", ref)
	default:
		subject = fmt.Sprintf("%s was updated", ref)
		fmt.Fprintf(&b, "%s was updated.\n", ref)
	}
	if !e.OccurredAt.IsZero() {
		fmt.Fprintf(&b, "\nWhen: %s\n", e.OccurredAt.UTC().Format(time.RFC1123))
	}
	return subject, b.String()
}
