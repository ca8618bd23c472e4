package handler

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/helpdesk-ai/support-engine/internal/chunking"
	"github.com/helpdesk-ai/support-engine/internal/errdefs"
	"github.com/helpdesk-ai/support-engine/internal/ingest"
	"github.com/helpdesk-ai/support-engine/internal/middleware"
	"github.com/helpdesk-ai/support-engine/internal/model"
	"github.com/helpdesk-ai/support-engine/pkg/logger"
)

// DocumentHandler handles document ingestion endpoints.
type DocumentHandler struct {
	pipeline *ingest.Pipeline
	store    *ingest.Store
	logger   *logger.Logger
}

// NewDocumentHandler creates a new document handler.
func NewDocumentHandler(pipeline *ingest.Pipeline, store *ingest.Store, log *logger.Logger) *DocumentHandler {
	return &DocumentHandler{
		pipeline: pipeline,
		store:    store,
		logger:   log,
	}
}

// SubmitDocumentRequest is the body of POST /api/v1/documents.
type SubmitDocumentRequest struct {
	Content  string            `json:"content"`
	Metadata map[string]string `json:"metadata,omitempty"`
	Strategy string            `json:"strategy,omitempty"`
}

// Submit handles POST /api/v1/documents
func (h *DocumentHandler) Submit(w http.ResponseWriter, r *http.Request) {
	var req SubmitDocumentRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if err := middleware.ValidateDocumentContent(req.Content); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if req.Strategy != "" && req.Strategy != string(chunking.StrategySemantic) && req.Strategy != string(chunking.StrategyAgentic) {
		writeError(w, http.StatusBadRequest, "unknown chunking strategy")
		return
	}

	doc, err := h.pipeline.Submit(req.Content, req.Metadata, chunking.ParseStrategy(req.Strategy))
	if err != nil {
		if errors.Is(err, errdefs.ErrIngestionQueueFull) {
			w.Header().Set("Retry-After", "5")
			writeError(w, http.StatusTooManyRequests, "ingestion queue full")
			return
		}
		h.logger.Error("failed to submit document")
		writeError(w, http.StatusInternalServerError, "failed to submit document")
		return
	}

	writeJSON(w, http.StatusAccepted, doc)
}

// Resubmit handles PUT /api/v1/documents/:id
func (h *DocumentHandler) Resubmit(w http.ResponseWriter, r *http.Request) {
	documentID := chi.URLParam(r, "id")
	if err := middleware.ValidateDocumentID(documentID); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	var req SubmitDocumentRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if err := middleware.ValidateDocumentContent(req.Content); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	doc, err := h.pipeline.Resubmit(documentID, req.Content, req.Metadata)
	if err != nil {
		switch {
		case errors.Is(err, errdefs.ErrIngestionQueueFull):
			w.Header().Set("Retry-After", "5")
			writeError(w, http.StatusTooManyRequests, "ingestion queue full")
		case errors.Is(err, ingest.ErrDocumentNotFound):
			writeError(w, http.StatusNotFound, "document not found")
		default:
			h.logger.Error("failed to resubmit document")
			writeError(w, http.StatusInternalServerError, "failed to resubmit document")
		}
		return
	}

	writeJSON(w, http.StatusAccepted, doc)
}

// DocumentStatusResponse is the body of GET /api/v1/documents/:id.
type DocumentStatusResponse struct {
	Document *model.Document `json:"document"`
	Chunks   int             `json:"chunks"`
}

// Status handles GET /api/v1/documents/:id
func (h *DocumentHandler) Status(w http.ResponseWriter, r *http.Request) {
	documentID := chi.URLParam(r, "id")
	if err := middleware.ValidateDocumentID(documentID); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	doc, err := h.store.Get(documentID)
	if err != nil {
		writeError(w, http.StatusNotFound, "document not found")
		return
	}

	writeJSON(w, http.StatusOK, DocumentStatusResponse{
		Document: doc,
		Chunks:   len(h.store.Chunks(documentID)),
	})
}
