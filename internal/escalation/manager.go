package escalation

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/helpdesk-ai/support-engine/internal/errdefs"
	"github.com/helpdesk-ai/support-engine/internal/model"
	"github.com/helpdesk-ai/support-engine/pkg/logger"
	"github.com/helpdesk-ai/support-engine/pkg/metrics"
)

// Config tunes delivery behavior.
type Config struct {
	MaxAttempts     int
	InitialInterval time.Duration
	RedeliveryEvery time.Duration
	MaxQueueRetries int
}

func (c Config) withDefaults() Config {
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = 3
	}
	if c.InitialInterval <= 0 {
		c.InitialInterval = 500 * time.Millisecond
	}
	if c.RedeliveryEvery <= 0 {
		c.RedeliveryEvery = 30 * time.Second
	}
	if c.MaxQueueRetries <= 0 {
		c.MaxQueueRetries = 50
	}
	return c
}

// Manager creates external tickets with bounded retries and a durable
// fallback queue. A given (conversation id, message id) pair produces at
// most one external ticket, across retried and redelivered attempts.
type Manager struct {
	client TicketingClient
	queue  Queue
	cfg    Config
	logger *logger.Logger

	mu      sync.Mutex
	tickets map[string]*model.EscalationTicket // dedupe key -> ticket
}

// NewManager creates an escalation manager.
func NewManager(client TicketingClient, queue Queue, cfg Config, log *logger.Logger) *Manager {
	return &Manager{
		client:  client,
		queue:   queue,
		cfg:     cfg.withDefaults(),
		logger:  log,
		tickets: make(map[string]*model.EscalationTicket),
	}
}

// Escalate hands a conversation off to the ticketing channel. It always
// returns a ticket: delivered (sent), parked durably (queued), or failed
// when even the durable queue rejected it. The caller still answers the
// user in every case.
func (m *Manager) Escalate(ctx context.Context, conv *model.Conversation, trigger *model.Message, reason model.ReasonCode) *model.EscalationTicket {
	key := conv.ID + ":" + trigger.ID

	m.mu.Lock()
	if existing, ok := m.tickets[key]; ok {
		m.mu.Unlock()
		return existing
	}

	now := time.Now()
	ticket := &model.EscalationTicket{
		ID:             uuid.Must(uuid.NewV7()).String(),
		ConversationID: conv.ID,
		MessageID:      trigger.ID,
		UserID:         conv.UserID,
		Transcript:     Transcript(conv),
		Reason:         reason,
		Status:         model.DeliveryQueued,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	m.tickets[key] = ticket
	m.mu.Unlock()

	log := m.logger.WithConversation(conv.ID, conv.UserID)

	externalID, err := m.deliver(ctx, ticket)
	if err == nil {
		m.mu.Lock()
		ticket.ExternalID = &externalID
		ticket.Status = model.DeliverySent
		ticket.UpdatedAt = time.Now()
		m.mu.Unlock()
		metrics.EscalationDeliveryTotal.WithLabelValues("sent").Inc()
		log.Info("escalation ticket created", zap.String("external_id", externalID))
		return ticket
	}

	log.Warn("ticket delivery exhausted retries, queueing durably",
		zap.Int("attempts", ticket.Attempts),
		zap.Error(err),
	)

	if qErr := m.queue.Enqueue(ctx, ticket); qErr != nil {
		m.mu.Lock()
		ticket.Status = model.DeliveryFailed
		ticket.UpdatedAt = time.Now()
		m.mu.Unlock()
		metrics.EscalationDeliveryTotal.WithLabelValues("failed").Inc()
		log.Error("escalation could not be queued, operator intervention required",
			zap.String("ticket_id", ticket.ID),
			zap.Error(qErr),
		)
		return ticket
	}

	metrics.EscalationDeliveryTotal.WithLabelValues("queued").Inc()
	return ticket
}

// Ticket returns the ticket for a dedupe key, if any.
func (m *Manager) Ticket(conversationID, messageID string) (*model.EscalationTicket, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tickets[conversationID+":"+messageID]
	return t, ok
}

func (m *Manager) deliver(ctx context.Context, ticket *model.EscalationTicket) (string, error) {
	var externalID string

	op := func() error {
		m.mu.Lock()
		ticket.Attempts++
		attempts := ticket.Attempts
		m.mu.Unlock()

		id, err := m.client.CreateTicket(ctx, TicketRequest{
			Subject:   fmt.Sprintf("Escalated conversation %s (%s)", ticket.ConversationID, ticket.Reason),
			Body:      ticket.Transcript,
			Requester: ticket.UserID,
			Tags:      []string{"support-engine", string(ticket.Reason)},
		})
		if err != nil {
			m.logger.Warn("ticket delivery attempt failed",
				zap.String("ticket_id", ticket.ID),
				zap.Int("attempt", attempts),
				zap.Error(err),
			)
			return err
		}
		externalID = id
		return nil
	}

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = m.cfg.InitialInterval
	if err := backoff.Retry(op, backoff.WithContext(backoff.WithMaxRetries(bo, uint64(m.cfg.MaxAttempts-1)), ctx)); err != nil {
		return "", &errdefs.EscalationError{TicketID: ticket.ID, Err: err}
	}

	return externalID, nil
}

// Run drains the durable queue until ctx is canceled, retrying delivery for
// parked tickets. Exhausting MaxQueueRetries marks a ticket failed, which is
// an operator-visible condition.
func (m *Manager) Run(ctx context.Context) {
	ticker := time.NewTicker(m.cfg.RedeliveryEvery)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.redeliver(ctx)
		}
	}
}

func (m *Manager) redeliver(ctx context.Context) {
	queued, err := m.queue.Fetch(ctx, 16)
	if err != nil {
		m.logger.Warn("failed to fetch queued escalations", zap.Error(err))
		return
	}
	metrics.EscalationQueueDepth.Set(float64(len(queued)))

	for _, q := range queued {
		ticket := q.Ticket

		// Dedupe across restarts: a ticket already delivered under
		// this key is dropped, not re-created.
		if known, ok := m.Ticket(ticket.ConversationID, ticket.MessageID); ok && known.ExternalID != nil {
			_ = q.Ack()
			continue
		}

		id, err := m.client.CreateTicket(ctx, TicketRequest{
			Subject:   fmt.Sprintf("Escalated conversation %s (%s)", ticket.ConversationID, ticket.Reason),
			Body:      ticket.Transcript,
			Requester: ticket.UserID,
			Tags:      []string{"support-engine", string(ticket.Reason)},
		})

		m.mu.Lock()
		tracked, ok := m.tickets[ticket.DedupeKey()]
		if !ok {
			tracked = ticket
			m.tickets[ticket.DedupeKey()] = tracked
		}
		tracked.Attempts++
		if err == nil {
			tracked.ExternalID = &id
			tracked.Status = model.DeliverySent
		} else if tracked.Attempts >= m.cfg.MaxQueueRetries {
			tracked.Status = model.DeliveryFailed
		}
		tracked.UpdatedAt = time.Now()
		attempts := tracked.Attempts
		status := tracked.Status
		m.mu.Unlock()

		switch {
		case err == nil:
			metrics.EscalationDeliveryTotal.WithLabelValues("sent").Inc()
			_ = q.Ack()
		case status == model.DeliveryFailed:
			metrics.EscalationDeliveryTotal.WithLabelValues("failed").Inc()
			m.logger.Error("escalation redelivery exhausted, operator intervention required",
				zap.String("ticket_id", ticket.ID),
				zap.Int("attempts", attempts),
				zap.Error(err),
			)
			_ = q.Ack()
		default:
			_ = q.Retry()
		}
	}
}

// Transcript renders a conversation for the ticket body.
func Transcript(conv *model.Conversation) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Conversation %s (user %s)\n\n", conv.ID, conv.UserID)
	for _, msg := range conv.Messages {
		fmt.Fprintf(&b, "[%s] %s: %s\n", msg.CreatedAt.Format(time.RFC3339), msg.Role, msg.Content)
	}
	return b.String()
}
