// Package model defines data structures for the support engine.
package model

import (
	"time"
)

// IngestionStatus tracks a document through the ingestion pipeline.
type IngestionStatus string

const (
	IngestionPending    IngestionStatus = "pending"
	IngestionProcessing IngestionStatus = "processing"
	IngestionIndexed    IngestionStatus = "indexed"
	IngestionFailed     IngestionStatus = "failed"
)

// Document is a knowledge document submitted for indexing. Once indexed it is
// immutable; re-submission bumps Version and supersedes the prior version in
// the index atomically.
type Document struct {
	ID        string            `json:"id"`
	Version   int               `json:"version"`
	Content   string            `json:"-"`
	Size      int               `json:"size"`
	Status    IngestionStatus   `json:"status"`
	Strategy  string            `json:"strategy"`
	Metadata  map[string]string `json:"metadata,omitempty"`
	Error     string            `json:"error,omitempty"`
	CreatedAt time.Time         `json:"created_at"`
	UpdatedAt time.Time         `json:"updated_at"`
}

// Clone returns a shallow copy safe to hand across goroutines.
func (d *Document) Clone() *Document {
	c := *d
	return &c
}

// Chunk is a bounded, retrieval-sized span of a document produced by the
// chunking engine. Chunks are never mutated; a content change produces new
// chunks tied to the new document version.
type Chunk struct {
	ID              string            `json:"id"`
	DocumentID      string            `json:"document_id"`
	DocumentVersion int               `json:"document_version"`
	Ordinal         int               `json:"ordinal"`
	Text            string            `json:"text"`
	Size            int               `json:"size"`
	Metadata        map[string]string `json:"metadata,omitempty"`
}
