package audit

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"ndaflow/internal/permission"
	id "ndaflow/pkg/domain"
	dErrors "ndaflow/pkg/domain-errors"
	"ndaflow/pkg/platform/httputil"
	"ndaflow/pkg/requestcontext"
)

// Reader is the query side of the audit log.
type Reader interface {
	List(ctx context.Context, agreementID id.AgreementID) ([]Entry, error)
	ListByEntity(ctx context.Context, entityType EntityType, entityID string) ([]Entry, error)
}

// Handler serves read-only audit trails.
type Handler struct {
	reader      Reader
	permissions permission.ClaimsChecker
	logger      *slog.Logger
}

func NewHandler(reader Reader, logger *slog.Logger) *Handler {
	return &Handler{reader: reader, logger: logger}
}

func (h *Handler) Register(r chi.Router) {
	r.Get("/agreements/{id}/audit", h.HandleAgreementTrail)
	r.Get("/emails/{jobId}/audit", h.HandleJobTrail)
}

// HandleAgreementTrail handles GET /agreements/{id}/audit[?category=compliance].
func (h *Handler) HandleAgreementTrail(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if !h.permissions.Has(requestcontext.Identity(ctx), permission.View) {
		httputil.WriteError(w, dErrors.New(dErrors.CodeForbidden, "missing permission "+string(permission.View)))
		return
	}
	agreementID, err := id.ParseAgreementID(chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	category := Category(r.URL.Query().Get("category"))
	if category != "" && category != CategoryCompliance && category != CategoryOperations {
		httputil.WriteError(w, dErrors.New(dErrors.CodeValidation, "category must be compliance or operations"))
		return
	}

	entries, err := h.reader.List(ctx, agreementID)
	if err != nil {
		h.fail(w, r, "failed to list agreement audit trail", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, toListResponse(entries, category))
}

// HandleJobTrail handles GET /emails/{jobId}/audit.
func (h *Handler) HandleJobTrail(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	actor := requestcontext.Identity(ctx)
	if !h.permissions.Has(actor, permission.View) && !h.permissions.Has(actor, permission.SendEmail) {
		httputil.WriteError(w, dErrors.New(dErrors.CodeForbidden, "missing permission "+string(permission.View)))
		return
	}
	jobID, err := id.ParseJobID(chi.URLParam(r, "jobId"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	entries, err := h.reader.ListByEntity(ctx, EntityDeliveryJob, jobID.String())
	if err != nil {
		h.fail(w, r, "failed to list delivery job audit trail", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, toListResponse(entries, ""))
}

func (h *Handler) fail(w http.ResponseWriter, r *http.Request, msg string, err error) {
	h.logger.ErrorContext(r.Context(), msg,
		"request_id", requestcontext.RequestID(r.Context()),
		"error", err,
	)
	httputil.WriteError(w, dErrors.Wrap(err, dErrors.CodeInternal, "failed to read audit trail"))
}

// EntryResponse is the HTTP view of one audit entry. Client IP and raw user
// agent stay server side.
type EntryResponse struct {
	ID            string         `json:"id"`
	EntityType    string         `json:"entityType"`
	EntityID      string         `json:"entityId"`
	Action        string         `json:"action"`
	Category      string         `json:"category"`
	ActorID       string         `json:"actorId"`
	Timestamp     time.Time      `json:"timestamp"`
	RequestID     string         `json:"requestId,omitempty"`
	ClientSummary string         `json:"client,omitempty"`
	Details       map[string]any `json:"details,omitempty"`
}

type ListResponse struct {
	Entries []EntryResponse `json:"entries"`
	Total   int             `json:"total"`
}

func toListResponse(entries []Entry, category Category) ListResponse {
	out := make([]EntryResponse, 0, len(entries))
	for _, e := range entries {
		if category != "" && e.Action.Category() != category {
			continue
		}
		out = append(out, EntryResponse{
			ID:            e.ID.String(),
			EntityType:    string(e.EntityType),
			EntityID:      e.EntityID,
			Action:        string(e.Action),
			Category:      string(e.Action.Category()),
			ActorID:       e.ActorID,
			Timestamp:     e.Timestamp,
			RequestID:     e.RequestID,
			ClientSummary: e.ClientSummary,
			Details:       e.Details,
		})
	}
	return ListResponse{Entries: out, Total: len(out)}
}
