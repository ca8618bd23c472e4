package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/helpdesk-ai/support-engine/internal/middleware"
	"github.com/helpdesk-ai/support-engine/internal/workflow"
	"github.com/helpdesk-ai/support-engine/pkg/logger"
)

// ConversationHandler handles conversation read endpoints.
type ConversationHandler struct {
	store  *workflow.ConversationStore
	logger *logger.Logger
}

// NewConversationHandler creates a new conversation handler.
func NewConversationHandler(store *workflow.ConversationStore, log *logger.Logger) *ConversationHandler {
	return &ConversationHandler{
		store:  store,
		logger: log,
	}
}

// List handles GET /api/v1/conversations
func (h *ConversationHandler) List(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	writeJSON(w, http.StatusOK, map[string]any{
		"conversations": h.store.List(userID),
	})
}

// Get handles GET /api/v1/conversations/:id
func (h *ConversationHandler) Get(w http.ResponseWriter, r *http.Request) {
	conversationID := chi.URLParam(r, "id")
	if err := middleware.ValidateConversationID(conversationID); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	conv, ok := h.store.Snapshot(conversationID)
	if !ok || conv.UserID != middleware.GetUserID(r.Context()) {
		writeError(w, http.StatusNotFound, "conversation not found")
		return
	}

	writeJSON(w, http.StatusOK, conv)
}
