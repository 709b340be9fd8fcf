package billing

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/aether-labs/aether/internal/api"
	"github.com/aether-labs/aether/internal/auth"
	"github.com/aether-labs/aether/internal/tier"
)

// maxWebhookBody bounds the webhook payload read. Stripe events are small.
const maxWebhookBody = 1 << 20

// Handler provides HTTP handlers for billing endpoints.
type Handler struct {
	svc      *Service
	validate *validator.Validate
}

// NewHandler creates a new billing Handler.
func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc, validate: validator.New()}
}

type CheckoutRequest struct {
	Tier string `json:"tier" validate:"required"`
}

type PortalRequest struct {
	ReturnURL string `json:"return_url" validate:"omitempty,url"`
}

// Checkout handles POST /billing/checkout.
func (h *Handler) Checkout(w http.ResponseWriter, r *http.Request) {
	userID, ok := authedUserID(w, r)
	if !ok {
		return
	}

	var req CheckoutRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		api.HandleError(w, api.ErrBadRequest)
		return
	}
	if err := h.validate.Struct(req); err != nil {
		api.HandleError(w, api.NewValidationError(err.Error()))
		return
	}

	target, known := tier.ParseTier(req.Tier)
	if !known || target == tier.Standard {
		api.HandleError(w, api.NewBadRequestError("tier must be legend or vip"))
		return
	}

	sess, err := h.svc.CreateCheckoutSession(r.Context(), userID, target)
	if err != nil {
		slog.Error("creating checkout session", "error", err)
		api.HandleError(w, api.ErrInternalServer)
		return
	}

	api.JSON(w, http.StatusOK, sess)
}

// Portal handles POST /billing/portal.
func (h *Handler) Portal(w http.ResponseWriter, r *http.Request) {
	userID, ok := authedUserID(w, r)
	if !ok {
		return
	}

	var req PortalRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		api.HandleError(w, api.ErrBadRequest)
		return
	}
	if err := h.validate.Struct(req); err != nil {
		api.HandleError(w, api.NewValidationError(err.Error()))
		return
	}

	sess, err := h.svc.CreatePortalSession(r.Context(), userID, req.ReturnURL)
	if err != nil {
		slog.Error("creating portal session", "error", err)
		api.HandleError(w, api.ErrInternalServer)
		return
	}

	api.JSON(w, http.StatusOK, sess)
}

// Webhook handles POST /billing/webhook. It is unauthenticated; the Stripe
// signature is the authentication.
func (h *Handler) Webhook(w http.ResponseWriter, r *http.Request) {
	payload, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
	if err != nil {
		api.HandleError(w, api.ErrBadRequest)
		return
	}

	if err := h.svc.HandleWebhook(r.Context(), payload, r.Header.Get("Stripe-Signature")); err != nil {
		slog.Error("handling stripe webhook", "error", err)
		// Non-2xx makes Stripe retry, which is what we want for transient
		// failures. Signature failures also land here; retries of those
		// fail identically and then stop.
		api.HandleError(w, api.ErrBadRequest)
		return
	}

	api.JSONMessage(w, http.StatusOK, "ok")
}

func authedUserID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	claims := auth.GetUserClaims(r.Context())
	if claims == nil {
		api.HandleError(w, api.ErrUnauthorized)
		return uuid.Nil, false
	}
	userID, err := uuid.Parse(claims.UserID)
	if err != nil {
		api.HandleError(w, api.ErrUnauthorized)
		return uuid.Nil, false
	}
	return userID, true
}
