package conversation

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/aether-labs/aether/internal/api"
	"github.com/aether-labs/aether/internal/auth"
	"github.com/aether-labs/aether/internal/tier"
)

const (
	defaultPageSize = 20
	maxPageSize     = 100
)

// Handler provides HTTP handlers for conversation endpoints.
type Handler struct {
	svc      *Service
	validate *validator.Validate
}

// NewHandler creates a new conversation Handler.
func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc, validate: validator.New()}
}

type CreateConversationRequest struct {
	Title string `json:"title" validate:"max=200"`
}

type RenameConversationRequest struct {
	Title string `json:"title" validate:"required,max=200"`
}

type SendMessageRequest struct {
	Content   string   `json:"content" validate:"required,max=20000"`
	ImageURLs []string `json:"image_urls" validate:"max=4,dive,url"`
	Premium   bool     `json:"premium"`
}

type SearchRequest struct {
	Query string `json:"query" validate:"required,max=2000"`
	Limit int    `json:"limit" validate:"min=0,max=50"`
}

func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	userID, ok := authedUserID(w, r)
	if !ok {
		return
	}

	var req CreateConversationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		api.HandleError(w, api.ErrBadRequest)
		return
	}
	if err := h.validate.Struct(req); err != nil {
		api.HandleError(w, api.NewValidationError(err.Error()))
		return
	}

	conv, err := h.svc.CreateConversation(r.Context(), userID, req.Title)
	if err != nil {
		slog.Error("creating conversation", "error", err)
		api.HandleError(w, api.ErrInternalServer)
		return
	}

	api.JSON(w, http.StatusCreated, conv)
}

func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	userID, ok := authedUserID(w, r)
	if !ok {
		return
	}

	page, pageSize := pagination(r)
	convs, total, err := h.svc.ListConversations(r.Context(), userID, page, pageSize)
	if err != nil {
		slog.Error("listing conversations", "error", err)
		api.HandleError(w, api.ErrInternalServer)
		return
	}

	api.JSONPaginated(w, http.StatusOK, convs, total, page, pageSize)
}

func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	userID, ok := authedUserID(w, r)
	if !ok {
		return
	}
	convID, ok := conversationID(w, r)
	if !ok {
		return
	}

	conv, err := h.svc.GetConversation(r.Context(), convID, userID)
	if err != nil {
		h.handleError(w, err, "getting conversation")
		return
	}

	api.JSON(w, http.StatusOK, conv)
}

func (h *Handler) Rename(w http.ResponseWriter, r *http.Request) {
	userID, ok := authedUserID(w, r)
	if !ok {
		return
	}
	convID, ok := conversationID(w, r)
	if !ok {
		return
	}

	var req RenameConversationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		api.HandleError(w, api.ErrBadRequest)
		return
	}
	if err := h.validate.Struct(req); err != nil {
		api.HandleError(w, api.NewValidationError(err.Error()))
		return
	}

	if err := h.svc.RenameConversation(r.Context(), convID, userID, req.Title); err != nil {
		h.handleError(w, err, "renaming conversation")
		return
	}

	api.JSONMessage(w, http.StatusOK, "conversation renamed")
}

func (h *Handler) Delete(w http.ResponseWriter, r *http.Request) {
	userID, ok := authedUserID(w, r)
	if !ok {
		return
	}
	convID, ok := conversationID(w, r)
	if !ok {
		return
	}

	if err := h.svc.DeleteConversation(r.Context(), convID, userID); err != nil {
		h.handleError(w, err, "deleting conversation")
		return
	}

	api.JSONMessage(w, http.StatusOK, "conversation deleted")
}

func (h *Handler) ListMessages(w http.ResponseWriter, r *http.Request) {
	userID, ok := authedUserID(w, r)
	if !ok {
		return
	}
	convID, ok := conversationID(w, r)
	if !ok {
		return
	}

	page, pageSize := pagination(r)
	msgs, err := h.svc.ListMessages(r.Context(), convID, userID, page, pageSize)
	if err != nil {
		h.handleError(w, err, "listing messages")
		return
	}

	api.JSON(w, http.StatusOK, msgs)
}

func (h *Handler) SendMessage(w http.ResponseWriter, r *http.Request) {
	userID, ok := authedUserID(w, r)
	if !ok {
		return
	}
	convID, ok := conversationID(w, r)
	if !ok {
		return
	}

	var req SendMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		api.HandleError(w, api.ErrBadRequest)
		return
	}
	if err := h.validate.Struct(req); err != nil {
		api.HandleError(w, api.NewValidationError(err.Error()))
		return
	}

	reply, err := h.svc.SendMessage(r.Context(), userID, convID, req.Content, req.ImageURLs, req.Premium)
	if err != nil {
		h.handleError(w, err, "sending message")
		return
	}

	api.JSON(w, http.StatusOK, reply)
}

func (h *Handler) Search(w http.ResponseWriter, r *http.Request) {
	userID, ok := authedUserID(w, r)
	if !ok {
		return
	}

	var req SearchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		api.HandleError(w, api.ErrBadRequest)
		return
	}
	if err := h.validate.Struct(req); err != nil {
		api.HandleError(w, api.NewValidationError(err.Error()))
		return
	}
	if req.Limit == 0 {
		req.Limit = 10
	}

	results, err := h.svc.Search(r.Context(), userID, req.Query, req.Limit)
	if err != nil {
		slog.Error("searching messages", "error", err)
		api.HandleError(w, api.ErrInternalServer)
		return
	}

	api.JSON(w, http.StatusOK, results)
}

func (h *Handler) handleError(w http.ResponseWriter, err error, action string) {
	switch {
	case errors.Is(err, ErrNotFound):
		api.HandleError(w, api.ErrNotFound)
	case errors.Is(err, ErrResponseQuota):
		api.JSONErrorData(w, http.StatusTooManyRequests, "response limit reached for the current period", tier.UsagePayload(err))
	case errors.Is(err, ErrPremiumQuota):
		api.JSONErrorData(w, http.StatusTooManyRequests, "premium call limit reached for this month", tier.UsagePayload(err))
	case errors.Is(err, ErrUsageUnavailable):
		api.HandleError(w, &api.AppError{Code: http.StatusServiceUnavailable, Message: "usage information unavailable"})
	default:
		slog.Error(action, "error", err)
		api.HandleError(w, api.ErrInternalServer)
	}
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

func conversationID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "conversationID"))
	if err != nil {
		api.HandleError(w, api.NewBadRequestError("invalid conversation id"))
		return uuid.Nil, false
	}
	return id, true
}

func pagination(r *http.Request) (page, pageSize int) {
	page, _ = strconv.Atoi(r.URL.Query().Get("page"))
	if page < 1 {
		page = 1
	}
	pageSize, _ = strconv.Atoi(r.URL.Query().Get("page_size"))
	if pageSize < 1 {
		pageSize = defaultPageSize
	}
	if pageSize > maxPageSize {
		pageSize = maxPageSize
	}
	return page, pageSize
}
