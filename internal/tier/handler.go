package tier

import (
	"log/slog"
	"net/http"

	"github.com/google/uuid"

	"github.com/aether-labs/aether/internal/api"
	"github.com/aether-labs/aether/internal/auth"
)

// Handler provides HTTP handlers for usage endpoints.
type Handler struct {
	svc *Service
}

// NewHandler creates a new usage Handler.
func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

// GetUsage returns the authenticated user's usage snapshot for every
// rate-limited resource.
func (h *Handler) GetUsage(w http.ResponseWriter, r *http.Request) {
	claims := auth.GetUserClaims(r.Context())
	if claims == nil {
		api.HandleError(w, api.ErrUnauthorized)
		return
	}

	userID, err := uuid.Parse(claims.UserID)
	if err != nil {
		api.HandleError(w, api.ErrUnauthorized)
		return
	}

	usage, err := h.svc.GetAllUsage(r.Context(), userID)
	if err != nil {
		slog.Error("getting usage", "error", err)
		api.HandleError(w, api.ErrInternalServer)
		return
	}
	if usage == nil {
		api.HandleError(w, api.ErrNotFound)
		return
	}

	api.JSON(w, http.StatusOK, usage)
}
