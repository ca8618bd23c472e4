// Package errdefs defines the error taxonomy shared by the engine's
// components. Every error here is handled inside the component that detects
// it and converted into a workflow-level outcome; none of them surface to
// the conversation boundary as an unhandled fault.
package errdefs

import (
	"context"
	"errors"
	"fmt"
)

var (
	// ErrIngestionQueueFull signals backpressure on the ingestion queue.
	ErrIngestionQueueFull = errors.New("ingestion queue full")

	// ErrRateLimited signals the per-user token bucket rejected a message.
	ErrRateLimited = errors.New("rate limit exceeded")

	// ErrRetrievalUnavailable signals the index could not be queried. The
	// workflow treats it as retrieval confidence zero, not a hard failure.
	ErrRetrievalUnavailable = errors.New("retrieval unavailable")

	// ErrClassification signals intent could not be determined. The
	// workflow escalates rather than guessing.
	ErrClassification = errors.New("classification failed")
)

// IngestionError marks a document permanently failed. No partial index state
// survives it.
type IngestionError struct {
	DocumentID string
	Err        error
}

func (e *IngestionError) Error() string {
	return fmt.Sprintf("ingestion failed for document %s: %v", e.DocumentID, e.Err)
}

func (e *IngestionError) Unwrap() error { return e.Err }

// EmbeddingError wraps a persistent embedding provider failure after retries
// were exhausted. The calling ingestion or retrieval step fails cleanly; the
// gateway never substitutes zero vectors.
type EmbeddingError struct {
	Attempts int
	Err      error
}

func (e *EmbeddingError) Error() string {
	return fmt.Sprintf("embedding failed after %d attempts: %v", e.Attempts, e.Err)
}

func (e *EmbeddingError) Unwrap() error { return e.Err }

// EscalationError wraps a ticket provider failure. Delivery is retried, then
// queued durably; escalations are never dropped.
type EscalationError struct {
	TicketID string
	Err      error
}

func (e *EscalationError) Error() string {
	return fmt.Sprintf("escalation delivery failed for ticket %s: %v", e.TicketID, e.Err)
}

func (e *EscalationError) Unwrap() error { return e.Err }

// IsTimeout reports whether err stems from a deadline at a suspension point.
// Timeouts force escalation with confidence zero.
func IsTimeout(err error) bool {
	return errors.Is(err, context.DeadlineExceeded)
}
