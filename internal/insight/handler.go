package insight

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/aether-labs/aether/internal/api"
	"github.com/aether-labs/aether/internal/auth"
	"github.com/aether-labs/aether/internal/tier"
)

// Handler provides HTTP handlers for insight endpoints.
type Handler struct {
	svc *Service
}

// NewHandler creates a new insight Handler.
func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

// Generate handles POST /insights/{category}. The force query parameter
// skips the cooldown gate; quota is charged either way.
func (h *Handler) Generate(w http.ResponseWriter, r *http.Request) {
	userID, ok := authedUserID(w, r)
	if !ok {
		return
	}

	category, ok := ParseCategory(chi.URLParam(r, "category"))
	if !ok {
		api.HandleError(w, api.NewBadRequestError("unknown insight category"))
		return
	}
	force := r.URL.Query().Get("force") == "true"

	result, err := h.svc.RequestInsight(r.Context(), userID, category, force)
	if err != nil {
		switch {
		case errors.Is(err, ErrQuotaExhausted):
			api.JSONErrorData(w, http.StatusTooManyRequests, "response limit reached for the current period", tier.UsagePayload(err))
		case errors.Is(err, ErrUsageUnavailable):
			api.HandleError(w, &api.AppError{Code: http.StatusServiceUnavailable, Message: "usage information unavailable"})
		default:
			slog.Error("generating insight", "error", err)
			api.HandleError(w, api.ErrInternalServer)
		}
		return
	}

	api.JSON(w, http.StatusOK, result)
}

// Cooldowns handles GET /insights/cooldowns.
func (h *Handler) Cooldowns(w http.ResponseWriter, r *http.Request) {
	userID, ok := authedUserID(w, r)
	if !ok {
		return
	}

	statuses, err := h.svc.CooldownStatuses(r.Context(), userID)
	if err != nil {
		slog.Error("listing cooldowns", "error", err)
		api.HandleError(w, api.ErrInternalServer)
		return
	}

	api.JSON(w, http.StatusOK, statuses)
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
