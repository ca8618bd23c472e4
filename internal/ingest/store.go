// Package ingest runs the asynchronous document ingestion pipeline.
package ingest

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/helpdesk-ai/support-engine/internal/model"
)

// ErrDocumentNotFound is returned for lookups of unknown document ids.
var ErrDocumentNotFound = errors.New("document not found")

// Store keeps documents and their chunks. In-memory for now; the interface
// surface is small enough to move behind a database later.
type Store struct {
	mu        sync.RWMutex
	documents map[string]*model.Document
	chunks    map[string][]model.Chunk
}

// NewStore creates an empty document store.
func NewStore() *Store {
	return &Store{
		documents: make(map[string]*model.Document),
		chunks:    make(map[string][]model.Chunk),
	}
}

// Create registers a new document in pending state.
func (s *Store) Create(content string, metadata map[string]string, strategy string) *model.Document {
	now := time.Now()
	doc := &model.Document{
		ID:        uuid.Must(uuid.NewV7()).String(),
		Version:   1,
		Content:   content,
		Size:      len(content),
		Status:    model.IngestionPending,
		Strategy:  strategy,
		Metadata:  metadata,
		CreatedAt: now,
		UpdatedAt: now,
	}

	s.mu.Lock()
	s.documents[doc.ID] = doc
	s.mu.Unlock()

	return doc
}

// Resubmit bumps the document version with new content. The prior version's
// chunks stay queryable until the new version is indexed.
func (s *Store) Resubmit(id, content string, metadata map[string]string) (*model.Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, ok := s.documents[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrDocumentNotFound, id)
	}

	doc.Version++
	doc.Content = content
	doc.Size = len(content)
	doc.Status = model.IngestionPending
	doc.Error = ""
	if metadata != nil {
		doc.Metadata = metadata
	}
	doc.UpdatedAt = time.Now()

	return doc.Clone(), nil
}

// Get returns a copy of the document.
func (s *Store) Get(id string) (*model.Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	doc, ok := s.documents[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrDocumentNotFound, id)
	}
	return doc.Clone(), nil
}

// CurrentVersion returns the live version number of a document.
func (s *Store) CurrentVersion(id string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if doc, ok := s.documents[id]; ok {
		return doc.Version
	}
	return 0
}

// SetStatus updates ingestion status for the given version. A stale version
// (superseded while processing) is ignored.
func (s *Store) SetStatus(id string, version int, status model.IngestionStatus, errMsg string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, ok := s.documents[id]
	if !ok || doc.Version != version {
		return false
	}

	doc.Status = status
	doc.Error = errMsg
	doc.UpdatedAt = time.Now()
	return true
}

// SetChunks records the chunks of an indexed document version.
func (s *Store) SetChunks(id string, chunks []model.Chunk) {
	s.mu.Lock()
	s.chunks[id] = chunks
	s.mu.Unlock()
}

// Chunks returns the chunks of a document.
func (s *Store) Chunks(id string) []model.Chunk {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.chunks[id]
}
