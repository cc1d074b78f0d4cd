// Package notify fans agreement events out to the people who follow them.
//
// Notify never blocks the caller: events go onto a bounded inbox and Run
// delivers them. When the inbox is full the event is dropped and logged.
package notify

import (
	"context"
	"errors"
	"log/slog"
	"slices"

	agreementmodels "ndaflow/internal/agreement/models"
	"ndaflow/internal/audit"
	"ndaflow/internal/contacts"
	id "ndaflow/pkg/domain"
	"ndaflow/pkg/platform/sentinel"
	"ndaflow/pkg/requestcontext"
)

const defaultInboxSize = 256

type AgreementReader interface {
	Get(ctx context.Context, agreementID id.AgreementID) (*agreementmodels.Agreement, error)
}

type SubscriptionReader interface {
	ListByAgreement(ctx context.Context, agreementID id.AgreementID) ([]id.ContactID, error)
}

type AuditPublisher interface {
	Emit(ctx context.Context, entry audit.Entry) error
}

// Sink delivers one notification. Implementations must be safe for
// sequential use by the dispatcher goroutine.
type Sink interface {
	Deliver(ctx context.Context, n Notification) error
}

var dispatcherActor = requestcontext.System("notify")

type envelope struct {
	ctx   context.Context
	event Event
}

type Dispatcher struct {
	inbox         chan envelope
	agreements    AgreementReader
	subscriptions SubscriptionReader
	directory     contacts.Directory
	sink          Sink
	preferences   PreferenceReader
	audit         AuditPublisher
	logger        *slog.Logger
	metrics       *Metrics
}

type Option func(*Dispatcher)

func WithLogger(logger *slog.Logger) Option {
	return func(d *Dispatcher) { d.logger = logger }
}

func WithMetrics(m *Metrics) Option {
	return func(d *Dispatcher) { d.metrics = m }
}

// WithPreferences filters recipients by their per-event opt-outs.
func WithPreferences(p PreferenceReader) Option {
	return func(d *Dispatcher) { d.preferences = p }
}

func WithInboxSize(n int) Option {
	return func(d *Dispatcher) {
		if n > 0 {
			d.inbox = make(chan envelope, n)
		}
	}
}

func NewDispatcher(agreements AgreementReader, subscriptions SubscriptionReader, directory contacts.Directory,
	sink Sink, auditor AuditPublisher, opts ...Option) (*Dispatcher, error) {
	if agreements == nil || subscriptions == nil || directory == nil || sink == nil || auditor == nil {
		return nil, errors.New("notify: agreements, subscriptions, directory, sink and audit publisher are required")
	}
	d := &Dispatcher{
		inbox:         make(chan envelope, defaultInboxSize),
		agreements:    agreements,
		subscriptions: subscriptions,
		directory:     directory,
		sink:          sink,
		audit:         auditor,
		logger:        slog.Default(),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d, nil
}

// Notify queues event without blocking.
func (d *Dispatcher) Notify(ctx context.Context, event Event) {
	// request values (request id) survive; request cancellation does not
	item := envelope{ctx: context.WithoutCancel(ctx), event: event}
	select {
	case d.inbox <- item:
	default:
		d.logger.ErrorContext(ctx, "notification inbox full; event dropped",
			"agreement_id", event.AgreementID.String(),
			"event", string(event.Type),
		)
		if d.metrics != nil {
			d.metrics.IncrementDropped()
		}
	}
}

// Run delivers queued events until ctx is cancelled.
func (d *Dispatcher) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case item := <-d.inbox:
			d.Dispatch(item.ctx, item.event)
		}
	}
}

// Dispatch delivers one event synchronously. Failures are logged and counted,
// never returned.
func (d *Dispatcher) Dispatch(ctx context.Context, event Event) {
	a, err := d.agreements.Get(ctx, event.AgreementID)
	if err != nil {
		d.logger.ErrorContext(ctx, "failed to load agreement for notification",
			"agreement_id", event.AgreementID.String(),
			"error", err,
		)
		return
	}
	if event.CompanyName == "" {
		event.CompanyName = a.CompanyName
	}
	if event.DisplayID == 0 {
		event.DisplayID = a.DisplayID
	}

	picked := d.recipients(ctx, a, event)
	notified, failed := 0, 0
	for _, r := range picked.recipients {
		if err := d.sink.Deliver(ctx, Notification{Event: event, Recipient: r}); err != nil {
			failed++
			d.logger.WarnContext(ctx, "notification delivery failed",
				"agreement_id", event.AgreementID.String(),
				"contact_id", r.ContactID.String(),
				"error", err,
			)
			continue
		}
		notified++
	}
	if d.metrics != nil {
		d.metrics.AddDelivered("ok", notified)
		d.metrics.AddDelivered("error", failed)
		d.metrics.AddDelivered("opted_out", picked.optedOut)
	}

	err = d.audit.Emit(ctx, audit.Entry{
		EntityType:  audit.EntityNotification,
		EntityID:    event.AgreementID.String(),
		AgreementID: event.AgreementID,
		Action:      audit.ActionNotificationDispatched,
		ActorID:     dispatcherActor.ID,
		Details: map[string]any{
			"event":    string(event.Type),
			"notified":   notified,
			"failed":     failed,
			"skipped":    picked.optedOut,
			"unresolved": picked.unresolved,
		},
	})
	if err != nil {
		d.logger.ErrorContext(ctx, "failed to audit notification dispatch",
			"agreement_id", event.AgreementID.String(),
			"error", err,
		)
	}
}

type selection struct {
	recipients []Recipient
	optedOut   int
	unresolved int
}

// recipients is subscribers then role stakeholders, deduplicated, without the
// actor and without contacts who opted out of the event.
func (d *Dispatcher) recipients(ctx context.Context, a *agreementmodels.Agreement, event Event) selection {
	ids, err := d.subscriptions.ListByAgreement(ctx, a.ID)
	if err != nil {
		d.logger.WarnContext(ctx, "failed to list subscriptions; notifying stakeholders only",
			"agreement_id", a.ID.String(),
			"error", err,
		)
		ids = nil
	}
	ids = append(slices.Clone(ids), a.Stakeholders()...)

	var out selection
	seen := make(map[id.ContactID]struct{}, len(ids))
	for _, contactID := range ids {
		if _, dup := seen[contactID]; dup {
			continue
		}
		seen[contactID] = struct{}{}
		if contactID.String() == event.ActorID {
			continue
		}
		if !d.wants(ctx, contactID, event) {
			out.optedOut++
			continue
		}
		c, err := d.directory.Resolve(ctx, contactID)
		if err != nil {
			out.unresolved++
			msg := "failed to resolve notification recipient"
			if errors.Is(err, sentinel.ErrNotFound) {
				msg = "notification recipient not in contact directory; skipped"
			}
			d.logger.WarnContext(ctx, msg,
				"agreement_id", a.ID.String(),
				"contact_id", contactID.String(),
				"error", err,
			)
			continue
		}
		out.recipients = append(out.recipients, Recipient{ContactID: c.ID, Email: c.Email, Name: c.Name()})
	}
	return out
}

// wants fails open: a preference lookup error still notifies the contact.
func (d *Dispatcher) wants(ctx context.Context, contactID id.ContactID, event Event) bool {
	if d.preferences == nil {
		return true
	}
	prefs, err := d.preferences.Preferences(ctx, contactID)
	if err != nil {
		d.logger.WarnContext(ctx, "failed to load notification preferences; notifying anyway",
			"contact_id", contactID.String(),
			"error", err,
		)
		return true
	}
	return prefs.Allows(event)
}
