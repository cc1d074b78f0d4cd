package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"ndaflow/internal/agreement/models"
	"ndaflow/internal/permission"
	id "ndaflow/pkg/domain"
	dErrors "ndaflow/pkg/domain-errors"
	"ndaflow/pkg/platform/httputil"
	"ndaflow/pkg/requestcontext"
)

// Service is the part of the transition engine the HTTP layer needs.
type Service interface {
	Get(ctx context.Context, agreementID id.AgreementID) (*models.Agreement, error)
	RequestTransition(ctx context.Context, agreementID id.AgreementID, target models.Status, actor requestcontext.ActingIdentity, reason string) (*models.Agreement, models.HistoryEntry, error)
	Reactivate(ctx context.Context, agreementID id.AgreementID, actor requestcontext.ActingIdentity, reason string) (*models.Agreement, models.HistoryEntry, error)
}

// Handler serves agreement status endpoints.
type Handler struct {
	service     Service
	permissions permission.ClaimsChecker
	logger      *slog.Logger
}

func New(service Service, logger *slog.Logger) *Handler {
	return &Handler{service: service, logger: logger}
}

// Register mounts agreement endpoints on an authenticated router.
func (h *Handler) Register(r chi.Router) {
	r.Get("/agreements/{id}", h.HandleGet)
	r.Post("/agreements/{id}/transitions", h.HandleTransition)
	r.Post("/agreements/{id}/reactivate", h.HandleReactivate)
}

// HandleGet handles GET /agreements/{id}.
func (h *Handler) HandleGet(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	actor := requestcontext.Identity(ctx)
	if !h.permissions.Has(actor, permission.View) && !h.permissions.Has(actor, permission.MarkStatus) {
		httputil.WriteError(w, dErrors.New(dErrors.CodeForbidden, "missing permission "+string(permission.View)))
		return
	}

	agreementID, err := id.ParseAgreementID(chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	a, err := h.service.Get(ctx, agreementID)
	if err != nil {
		h.logFailure(ctx, "failed to load agreement", agreementID, err)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, toAgreementResponse(a))
}

// HandleTransition handles POST /agreements/{id}/transitions.
func (h *Handler) HandleTransition(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	agreementID, err := id.ParseAgreementID(chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	req, ok := httputil.DecodeAndPrepare[TransitionRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}

	a, entry, err := h.service.RequestTransition(ctx, agreementID, req.target, requestcontext.Identity(ctx), req.Reason)
	if err != nil {
		h.logFailure(ctx, "status change rejected", agreementID, err)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, TransitionResponse{
		Agreement:    toAgreementResponse(a),
		HistoryEntry: toHistoryResponse(entry),
	})
}

// HandleReactivate handles POST /agreements/{id}/reactivate.
func (h *Handler) HandleReactivate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	agreementID, err := id.ParseAgreementID(chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	req, ok := httputil.DecodeAndPrepare[ReactivateRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}

	a, entry, err := h.service.Reactivate(ctx, agreementID, requestcontext.Identity(ctx), req.Reason)
	if err != nil {
		h.logFailure(ctx, "reactivation rejected", agreementID, err)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, TransitionResponse{
		Agreement:    toAgreementResponse(a),
		HistoryEntry: toHistoryResponse(entry),
	})
}

func (h *Handler) logFailure(ctx context.Context, msg string, agreementID id.AgreementID, err error) {
	level := slog.LevelWarn
	if dErrors.HTTPStatus(dErrors.CodeOf(err)) >= http.StatusInternalServerError {
		level = slog.LevelError
	}
	h.logger.Log(ctx, level, msg,
		"request_id", requestcontext.RequestID(ctx),
		"agreement_id", agreementID.String(),
		"error", err,
	)
}
