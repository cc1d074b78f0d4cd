package subscription

import (
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"ndaflow/internal/notify"
	"ndaflow/internal/permission"
	id "ndaflow/pkg/domain"
	dErrors "ndaflow/pkg/domain-errors"
	"ndaflow/pkg/platform/httputil"
	"ndaflow/pkg/requestcontext"
)

// Handler serves the subscription endpoints.
type Handler struct {
	service     *Service
	permissions permission.ClaimsChecker
	logger      *slog.Logger
}

func NewHandler(service *Service, logger *slog.Logger) *Handler {
	return &Handler{service: service, logger: logger}
}

func (h *Handler) Register(r chi.Router) {
	r.Get("/agreements/{id}/subscriptions", h.HandleList)
	r.Post("/agreements/{id}/subscriptions", h.HandleSubscribe)
	r.Delete("/agreements/{id}/subscriptions/{contactId}", h.HandleUnsubscribe)
	r.Get("/contacts/{contactId}/notification-preferences", h.HandleGetPreferences)
	r.Put("/contacts/{contactId}/notification-preferences", h.HandleUpdatePreferences)
}

type SubscribeRequest struct {
	ContactID string `json:"contactId"`

	contactID id.ContactID
}

func (r *SubscribeRequest) Validate() error {
	contactID, err := id.ParseContactID(strings.TrimSpace(r.ContactID))
	if err != nil {
		return err
	}
	r.contactID = contactID
	return nil
}

type SubscriptionResponse struct {
	ContactID string    `json:"contactId"`
	CreatedAt time.Time `json:"createdAt"`
}

func (h *Handler) HandleList(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	actor := requestcontext.Identity(ctx)
	if !h.permissions.Has(actor, permission.View) && !h.permissions.Has(actor, permission.ManageSubscriptions) {
		httputil.WriteError(w, dErrors.New(dErrors.CodeForbidden, "missing permission "+string(permission.View)))
		return
	}
	agreementID, err := id.ParseAgreementID(chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	subs, err := h.service.List(ctx, agreementID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	out := make([]SubscriptionResponse, 0, len(subs))
	for _, sub := range subs {
		out = append(out, SubscriptionResponse{ContactID: sub.ContactID.String(), CreatedAt: sub.CreatedAt})
	}
	httputil.WriteJSON(w, http.StatusOK, out)
}

func (h *Handler) HandleSubscribe(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	agreementID, err := id.ParseAgreementID(chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	req, ok := httputil.DecodeAndPrepare[SubscribeRequest](w, r, h.logger, ctx, requestcontext.RequestID(ctx))
	if !ok {
		return
	}
	sub, err := h.service.Subscribe(ctx, agreementID, req.contactID, requestcontext.Identity(ctx))
	if err != nil {
		h.logger.WarnContext(ctx, "subscribe rejected",
			"request_id", requestcontext.RequestID(ctx),
			"agreement_id", agreementID.String(),
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, SubscriptionResponse{ContactID: sub.ContactID.String(), CreatedAt: sub.CreatedAt})
}

func (h *Handler) HandleUnsubscribe(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	agreementID, err := id.ParseAgreementID(chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	contactID, err := id.ParseContactID(chi.URLParam(r, "contactId"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	if err := h.service.Unsubscribe(ctx, agreementID, contactID, requestcontext.Identity(ctx)); err != nil {
		httputil.WriteError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// UpdatePreferencesRequest carries only the flags to change.
type UpdatePreferencesRequest struct {
	OnStatusChanged  *bool `json:"onStatusChanged"`
	OnFullyExecuted  *bool `json:"onFullyExecuted"`
	OnEmailSent      *bool `json:"onEmailSent"`
	OnDeliveryFailed *bool `json:"onDeliveryFailed"`
}

func (r *UpdatePreferencesRequest) Validate() error {
	if r.OnStatusChanged == nil && r.OnFullyExecuted == nil && r.OnEmailSent == nil && r.OnDeliveryFailed == nil {
		return dErrors.New(dErrors.CodeValidation, "at least one preference is required")
	}
	return nil
}

type PreferencesResponse struct {
	ContactID        string     `json:"contactId"`
	OnStatusChanged  bool       `json:"onStatusChanged"`
	OnFullyExecuted  bool       `json:"onFullyExecuted"`
	OnEmailSent      bool       `json:"onEmailSent"`
	OnDeliveryFailed bool       `json:"onDeliveryFailed"`
	UpdatedAt        *time.Time `json:"updatedAt,omitempty"`
}

func toPreferencesResponse(p notify.Preferences) PreferencesResponse {
	resp := PreferencesResponse{
		ContactID:        p.ContactID.String(),
		OnStatusChanged:  p.OnStatusChanged,
		OnFullyExecuted:  p.OnFullyExecuted,
		OnEmailSent:      p.OnEmailSent,
		OnDeliveryFailed: p.OnDeliveryFailed,
	}
	if !p.UpdatedAt.IsZero() {
		resp.UpdatedAt = &p.UpdatedAt
	}
	return resp
}

func (h *Handler) HandleGetPreferences(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	contactID, err := id.ParseContactID(chi.URLParam(r, "contactId"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	prefs, err := h.service.PreferencesFor(ctx, contactID, requestcontext.Identity(ctx))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, toPreferencesResponse(prefs))
}

func (h *Handler) HandleUpdatePreferences(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	contactID, err := id.ParseContactID(chi.URLParam(r, "contactId"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	req, ok := httputil.DecodeAndPrepare[UpdatePreferencesRequest](w, r, h.logger, ctx, requestcontext.RequestID(ctx))
	if !ok {
		return
	}
	prefs, err := h.service.UpdatePreferences(ctx, contactID, PreferenceUpdate{
		OnStatusChanged:  req.OnStatusChanged,
		OnFullyExecuted:  req.OnFullyExecuted,
		OnEmailSent:      req.OnEmailSent,
		OnDeliveryFailed: req.OnDeliveryFailed,
	}, requestcontext.Identity(ctx))
	if err != nil {
		h.logger.WarnContext(ctx, "preference update rejected",
			"request_id", requestcontext.RequestID(ctx),
			"contact_id", contactID.String(),
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, toPreferencesResponse(prefs))
}
