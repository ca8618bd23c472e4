package model

import (
	"time"
)

// EventKind is the decision point an audit entry records.
type EventKind string

const (
	EventClassification EventKind = "classification"
	EventRetrieval      EventKind = "retrieval"
	EventConfidence     EventKind = "confidence"
	EventOutcome        EventKind = "outcome"
	EventIngestion      EventKind = "ingestion"
)

// Terminal outcomes recorded on EventOutcome entries.
const (
	OutcomeResponded              = "responded"
	OutcomeEscalated              = "escalated"
	OutcomeEscalationFailedQueued = "escalation_failed_queued"
)

// AuditEntry records one decision point. Append-only; the engine never
// mutates or deletes entries.
type AuditEntry struct {
	ID             string         `json:"id"`
	ConversationID string         `json:"conversation_id,omitempty"`
	Kind           EventKind      `json:"kind"`
	Payload        map[string]any `json:"payload,omitempty"`
	CreatedAt      time.Time      `json:"created_at"`
}
