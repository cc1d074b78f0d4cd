package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"ndaflow/internal/compose"
	"ndaflow/internal/delivery/models"
	"ndaflow/internal/permission"
	id "ndaflow/pkg/domain"
	dErrors "ndaflow/pkg/domain-errors"
	"ndaflow/pkg/platform/httputil"
	"ndaflow/pkg/requestcontext"
)

type Service interface {
	Enqueue(ctx context.Context, req models.SendRequest, actor requestcontext.ActingIdentity) (*models.Job, error)
	Cancel(ctx context.Context, jobID id.JobID, actor requestcontext.ActingIdentity) (*models.Job, error)
	List(ctx context.Context, agreementID id.AgreementID) ([]*models.Job, error)
}

type Previewer interface {
	Preview(ctx context.Context, agreementID id.AgreementID, templateID id.TemplateID, actor requestcontext.ActingIdentity) (compose.ComposedEmail, error)
}

// Handler serves email preview, send and delivery history endpoints.
type Handler struct {
	service     Service
	previewer   Previewer
	permissions permission.ClaimsChecker
	logger      *slog.Logger
}

func New(service Service, previewer Previewer, logger *slog.Logger) *Handler {
	return &Handler{service: service, previewer: previewer, logger: logger}
}

func (h *Handler) Register(r chi.Router) {
	r.Get("/agreements/{id}/email-preview", h.HandlePreview)
	r.Post("/agreements/{id}/emails", h.HandleSend)
	r.Get("/agreements/{id}/emails", h.HandleList)
	r.Post("/emails/{jobId}/cancel", h.HandleCancel)
}

// HandlePreview handles GET /agreements/{id}/email-preview?templateId=.
func (h *Handler) HandlePreview(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	agreementID, err := id.ParseAgreementID(chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	var templateID id.TemplateID
	if raw := r.URL.Query().Get("templateId"); raw != "" {
		if templateID, err = id.ParseTemplateID(raw); err != nil {
			httputil.WriteError(w, err)
			return
		}
	}

	preview, err := h.previewer.Preview(ctx, agreementID, templateID, requestcontext.Identity(ctx))
	if err != nil {
		h.logFailure(ctx, "failed to compose preview", "agreement_id", agreementID.String(), err)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, preview)
}

// HandleSend handles POST /agreements/{id}/emails.
func (h *Handler) HandleSend(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	agreementID, err := id.ParseAgreementID(chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	req, ok := httputil.DecodeAndPrepare[SendEmailRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}

	job, err := h.service.Enqueue(ctx, req.toModel(agreementID), requestcontext.Identity(ctx))
	if err != nil {
		h.logFailure(ctx, "send request rejected", "agreement_id", agreementID.String(), err)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusAccepted, toJobStatusResponse(job))
}

// HandleList handles GET /agreements/{id}/emails.
func (h *Handler) HandleList(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	actor := requestcontext.Identity(ctx)
	if !h.permissions.Has(actor, permission.View) && !h.permissions.Has(actor, permission.SendEmail) {
		httputil.WriteError(w, dErrors.New(dErrors.CodeForbidden, "missing permission "+string(permission.View)))
		return
	}
	agreementID, err := id.ParseAgreementID(chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	jobs, err := h.service.List(ctx, agreementID)
	if err != nil {
		h.logFailure(ctx, "failed to list delivery jobs", "agreement_id", agreementID.String(), err)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, toJobResponses(jobs))
}

// HandleCancel handles POST /emails/{jobId}/cancel.
func (h *Handler) HandleCancel(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	jobID, err := id.ParseJobID(chi.URLParam(r, "jobId"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	job, err := h.service.Cancel(ctx, jobID, requestcontext.Identity(ctx))
	if err != nil {
		h.logFailure(ctx, "cancel rejected", "job_id", jobID.String(), err)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, toJobStatusResponse(job))
}

func (h *Handler) logFailure(ctx context.Context, msg, key, value string, err error) {
	level := slog.LevelWarn
	if dErrors.HTTPStatus(dErrors.CodeOf(err)) >= http.StatusInternalServerError {
		level = slog.LevelError
	}
	h.logger.Log(ctx, level, msg,
		"request_id", requestcontext.RequestID(ctx),
		key, value,
		"error", err,
	)
}
