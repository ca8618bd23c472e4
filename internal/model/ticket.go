package model

import (
	"time"
)

// DeliveryStatus tracks an escalation ticket through delivery.
type DeliveryStatus string

const (
	DeliveryQueued       DeliveryStatus = "queued"
	DeliverySent         DeliveryStatus = "sent"
	DeliveryFailed       DeliveryStatus = "failed"
	DeliveryAcknowledged DeliveryStatus = "acknowledged"
)

// ReasonCode explains why a conversation was escalated.
type ReasonCode string

const (
	ReasonLowConfidence        ReasonCode = "low_confidence"
	ReasonClassificationFailed ReasonCode = "classification_failed"
	ReasonNoContext            ReasonCode = "no_context"
	ReasonTimeout              ReasonCode = "timeout"
	ReasonAccountUnavailable   ReasonCode = "account_unavailable"
)

// EscalationTicket is the handoff record for a human agent. The dedupe key
// (ConversationID, MessageID) guarantees at most one external ticket per
// triggering message, across retried deliveries.
type EscalationTicket struct {
	ID             string         `json:"id"`
	ConversationID string         `json:"conversation_id"`
	MessageID      string         `json:"message_id"`
	UserID         string         `json:"user_id"`
	Transcript     string         `json:"transcript"`
	Reason         ReasonCode     `json:"reason"`
	ExternalID     *string        `json:"external_id,omitempty"`
	Status         DeliveryStatus `json:"status"`
	Attempts       int            `json:"attempts"`
	CreatedAt      time.Time      `json:"created_at"`
	UpdatedAt      time.Time      `json:"updated_at"`
}

// DedupeKey returns the idempotency key for ticket creation.
func (t *EscalationTicket) DedupeKey() string {
	return t.ConversationID + ":" + t.MessageID
}
