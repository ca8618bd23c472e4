package handler

import (
	"errors"
	"net/http"

	"github.com/helpdesk-ai/support-engine/internal/errdefs"
	"github.com/helpdesk-ai/support-engine/internal/middleware"
	"github.com/helpdesk-ai/support-engine/internal/workflow"
	"github.com/helpdesk-ai/support-engine/pkg/logger"
)

// MessageHandler handles inbound message endpoints.
type MessageHandler struct {
	engine *workflow.Engine
	logger *logger.Logger
}

// NewMessageHandler creates a new message handler.
func NewMessageHandler(engine *workflow.Engine, log *logger.Logger) *MessageHandler {
	return &MessageHandler{
		engine: engine,
		logger: log,
	}
}

// HandleMessageRequest is the body of POST /api/v1/messages.
type HandleMessageRequest struct {
	ConversationID string `json:"conversation_id,omitempty"`
	Content        string `json:"content"`
}

// Handle handles POST /api/v1/messages. It blocks until the message has a
// terminal outcome: a composed response or an escalation notice.
func (h *MessageHandler) Handle(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := middleware.GetUserID(ctx)

	var req HandleMessageRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if err := middleware.ValidateMessageContent(req.Content); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.ConversationID != "" {
		if err := middleware.ValidateConversationID(req.ConversationID); err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		if conv, ok := h.engine.Store().Snapshot(req.ConversationID); ok && conv.UserID != userID {
			writeError(w, http.StatusNotFound, "conversation not found")
			return
		}
	}

	outcome, err := h.engine.HandleMessage(ctx, req.ConversationID, userID, req.Content)
	if err != nil {
		if errors.Is(err, errdefs.ErrRateLimited) {
			w.Header().Set("Retry-After", "1")
			writeError(w, http.StatusTooManyRequests, "message rate limit exceeded")
			return
		}
		h.logger.Error("failed to handle message")
		writeError(w, http.StatusInternalServerError, "failed to handle message")
		return
	}

	writeJSON(w, http.StatusOK, outcome)
}
