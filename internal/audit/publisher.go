package audit

import (
	"context"
	"fmt"
	"strings"

	"github.com/mssola/useragent"

	id "ndaflow/pkg/domain"
	"ndaflow/pkg/requestcontext"
)

// Store persists audit entries. Postgres implementations join the transaction
// carried in ctx so an entry commits or rolls back with the change it records.
type Store interface {
	Append(ctx context.Context, entry Entry) error
	ListByAgreement(ctx context.Context, agreementID id.AgreementID) ([]Entry, error)
	ListByEntity(ctx context.Context, entityType EntityType, entityID string) ([]Entry, error)
}

// Publisher enriches entries with request metadata and appends them synchronously.
type Publisher struct {
	store Store
}

func NewPublisher(store Store) *Publisher {
	return &Publisher{store: store}
}

// Emit fills ID, timestamp, request id and client metadata from ctx when unset,
// then appends the entry.
func (p *Publisher) Emit(ctx context.Context, entry Entry) error {
	if entry.Action == "" || entry.EntityType == "" || entry.EntityID == "" {
		return fmt.Errorf("audit entry requires action, entity type and entity id")
	}
	if entry.ID.IsNil() {
		entry.ID = id.NewAuditEntryID()
	}
	if entry.Timestamp.IsZero() {
		entry.Timestamp = requestcontext.Now(ctx)
	}
	if entry.ActorID == "" {
		entry.ActorID = requestcontext.Identity(ctx).ID
	}
	if entry.RequestID == "" {
		entry.RequestID = requestcontext.RequestID(ctx)
	}
	if entry.ClientIP == "" {
		entry.ClientIP = requestcontext.ClientIP(ctx)
	}
	if entry.UserAgent == "" {
		entry.UserAgent = requestcontext.UserAgent(ctx)
	}
	if entry.ClientSummary == "" && entry.UserAgent != "" {
		entry.ClientSummary = summarizeUserAgent(entry.UserAgent)
	}
	return p.store.Append(ctx, entry)
}

// List returns an agreement's audit trail in append order.
func (p *Publisher) List(ctx context.Context, agreementID id.AgreementID) ([]Entry, error) {
	return p.store.ListByAgreement(ctx, agreementID)
}

// ListByEntity returns the entries recorded against one entity.
func (p *Publisher) ListByEntity(ctx context.Context, entityType EntityType, entityID string) ([]Entry, error) {
	return p.store.ListByEntity(ctx, entityType, entityID)
}

func summarizeUserAgent(raw string) string {
	ua := useragent.New(raw)
	if ua.Bot() {
		name, _ := ua.Browser()
		return "bot " + name
	}
	name, version := ua.Browser()
	if major, _, ok := strings.Cut(version, "."); ok {
		version = major
	}
	summary := strings.TrimSpace(name + " " + version)
	if osName := ua.OS(); osName != "" {
		summary += " on " + osName
	}
	return summary
}
