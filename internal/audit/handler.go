package audit

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/aether-labs/aether/internal/api"
	"github.com/aether-labs/aether/internal/auth"
)

// Handler provides HTTP handlers for audit endpoints.
type Handler struct {
	repo *Repository
}

// NewHandler creates a new audit Handler.
func NewHandler(repo *Repository) *Handler {
	return &Handler{repo: repo}
}

// List handles GET /audit. Filters come from query parameters: event_type,
// severity, from, to (RFC 3339), page, page_size.
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
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

	params, err := parseListParams(r)
	if err != nil {
		api.HandleError(w, api.NewBadRequestError(err.Error()))
		return
	}

	logs, total, err := h.repo.ListByUser(r.Context(), userID, params)
	if err != nil {
		slog.Error("listing audit logs", "error", err)
		api.HandleError(w, api.ErrInternalServer)
		return
	}

	api.JSONPaginated(w, http.StatusOK, logs, total, params.Page, params.PageSize)
}

func parseListParams(r *http.Request) (ListParams, error) {
	q := r.URL.Query()
	params := ListParams{
		EventType: q.Get("event_type"),
		Severity:  q.Get("severity"),
	}

	params.Page, _ = strconv.Atoi(q.Get("page"))
	if params.Page < 1 {
		params.Page = 1
	}
	params.PageSize, _ = strconv.Atoi(q.Get("page_size"))
	if params.PageSize < 1 {
		params.PageSize = 20
	}

	for _, f := range []struct {
		raw  string
		dest **time.Time
	}{
		{q.Get("from"), &params.From},
		{q.Get("to"), &params.To},
	} {
		if f.raw == "" {
			continue
		}
		ts, err := time.Parse(time.RFC3339, f.raw)
		if err != nil {
			return params, err
		}
		*f.dest = &ts
	}
	return params, nil
}
