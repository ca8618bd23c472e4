// Package index stores chunk embeddings and answers top-k similarity
// queries, and ranks raw matches into retrieval results with a confidence
// signal.
package index

import (
	"time"
)

// Entry is one indexed chunk embedding.
type Entry struct {
	ChunkID    string
	DocumentID string
	Text       string
	Vector     []float32
	Metadata   map[string]string
	IndexedAt  time.Time
}

// Scored pairs an entry with its similarity score.
type Scored struct {
	Entry *Entry
	Score float64
}

// Index answers approximate top-k similarity queries over chunk embeddings.
// Queries are lock-free reads against the current snapshot; writes swap in a
// new snapshot atomically so in-flight queries never observe a partially
// updated index. The contract does not assume brute-force search even where
// an implementation uses it.
type Index interface {
	// Upsert adds or replaces entries for their chunk ids.
	Upsert(entries []Entry)

	// Remove drops all chunks of a document, typically a superseded
	// version.
	Remove(documentID string)

	// Replace atomically removes a document's chunks and inserts the new
	// version's entries in one snapshot swap.
	Replace(documentID string, entries []Entry)

	// Query returns the k nearest entries by cosine similarity,
	// best first.
	Query(vector []float32, k int) []Scored

	// Size returns the number of indexed chunks.
	Size() int

	// Generation increases on every write. Cached query results from an
	// older generation are stale.
	Generation() uint64
}
