package nats

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go/jetstream"

	"github.com/helpdesk-ai/support-engine/internal/model"
)

const (
	// AuditStream holds the append-only audit trail.
	AuditStream = "AUDIT"

	// EscalationStream is the durable fallback queue for tickets that
	// exhausted delivery retries.
	EscalationStream = "ESCALATIONS"

	// EscalationConsumerName identifies the redelivery consumer.
	EscalationConsumerName = "ticket-redelivery"

	auditSubjectPrefix      = "audit"
	escalationSubjectPrefix = "escalations.pending"
)

// StreamManager handles JetStream stream operations.
type StreamManager struct {
	client *Client
}

// NewStreamManager creates a new stream manager.
func NewStreamManager(client *Client) *StreamManager {
	return &StreamManager{client: client}
}

// EnsureStreams creates the audit and escalation streams if missing.
func (m *StreamManager) EnsureStreams(ctx context.Context) error {
	js := m.client.JetStream()

	if _, err := js.Stream(ctx, AuditStream); err != nil {
		_, err = js.CreateStream(ctx, jetstream.StreamConfig{
			Name:        AuditStream,
			Subjects:    []string{fmt.Sprintf("%s.>", auditSubjectPrefix)},
			Retention:   jetstream.LimitsPolicy,
			MaxAge:      365 * 24 * time.Hour,
			Storage:     jetstream.FileStorage,
			Replicas:    1,
			Compression: jetstream.S2Compression,
			DenyDelete:  true,
			DenyPurge:   true,
			Description: "Append-only audit trail of workflow decisions",
		})
		if err != nil {
			return fmt.Errorf("failed to create audit stream: %w", err)
		}
	}

	if _, err := js.Stream(ctx, EscalationStream); err != nil {
		_, err = js.CreateStream(ctx, jetstream.StreamConfig{
			Name:        EscalationStream,
			Subjects:    []string{fmt.Sprintf("%s.>", escalationSubjectPrefix)},
			Retention:   jetstream.WorkQueuePolicy,
			Storage:     jetstream.FileStorage,
			Replicas:    1,
			Description: "Durable queue for undelivered escalation tickets",
		})
		if err != nil {
			return fmt.Errorf("failed to create escalation stream: %w", err)
		}
	}

	return nil
}

// AuditSubject returns the subject for an audit entry.
func AuditSubject(kind model.EventKind) string {
	return fmt.Sprintf("%s.%s", auditSubjectPrefix, kind)
}

// EscalationSubject returns the subject for a queued ticket.
func EscalationSubject(ticketID string) string {
	return fmt.Sprintf("%s.%s", escalationSubjectPrefix, ticketID)
}

// PublishAudit appends an audit entry to the audit stream.
func (m *StreamManager) PublishAudit(ctx context.Context, entry *model.AuditEntry) error {
	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("failed to marshal audit entry: %w", err)
	}

	if _, err := m.client.JetStream().Publish(ctx, AuditSubject(entry.Kind), data); err != nil {
		return fmt.Errorf("failed to publish audit entry: %w", err)
	}

	return nil
}

// PublishEscalation enqueues a ticket on the durable escalation stream.
func (m *StreamManager) PublishEscalation(ctx context.Context, ticket *model.EscalationTicket) error {
	data, err := json.Marshal(ticket)
	if err != nil {
		return fmt.Errorf("failed to marshal ticket: %w", err)
	}

	if _, err := m.client.JetStream().Publish(ctx, EscalationSubject(ticket.ID), data); err != nil {
		return fmt.Errorf("failed to publish ticket: %w", err)
	}

	return nil
}

// EscalationConsumer returns the durable consumer used for ticket
// redelivery, creating it if needed.
func (m *StreamManager) EscalationConsumer(ctx context.Context) (jetstream.Consumer, error) {
	consumer, err := m.client.JetStream().CreateOrUpdateConsumer(ctx, EscalationStream, jetstream.ConsumerConfig{
		Durable:       EscalationConsumerName,
		AckPolicy:     jetstream.AckExplicitPolicy,
		AckWait:       time.Minute,
		FilterSubject: fmt.Sprintf("%s.>", escalationSubjectPrefix),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create escalation consumer: %w", err)
	}
	return consumer, nil
}
