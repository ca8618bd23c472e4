package escalation

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/nats-io/nats.go/jetstream"

	"github.com/helpdesk-ai/support-engine/internal/model"
	natsclient "github.com/helpdesk-ai/support-engine/internal/nats"
)

// QueuedTicket is a ticket pulled from the durable queue. Ack removes it
// after successful delivery; Retry returns it for a later attempt.
type QueuedTicket struct {
	Ticket *model.EscalationTicket
	Ack    func() error
	Retry  func() error
}

// Queue is the durable fallback store for tickets whose delivery retries
// were exhausted. Enqueued tickets survive process restarts in the NATS
// implementation.
type Queue interface {
	Enqueue(ctx context.Context, t *model.EscalationTicket) error
	Fetch(ctx context.Context, max int) ([]QueuedTicket, error)
}

// NATSQueue backs the durable queue with the ESCALATIONS JetStream stream.
type NATSQueue struct {
	streams *natsclient.StreamManager

	mu       sync.Mutex
	consumer jetstream.Consumer
}

// NewNATSQueue creates the JetStream-backed queue.
func NewNATSQueue(streams *natsclient.StreamManager) *NATSQueue {
	return &NATSQueue{streams: streams}
}

// Enqueue implements Queue.
func (q *NATSQueue) Enqueue(ctx context.Context, t *model.EscalationTicket) error {
	return q.streams.PublishEscalation(ctx, t)
}

// Fetch implements Queue.
func (q *NATSQueue) Fetch(ctx context.Context, max int) ([]QueuedTicket, error) {
	consumer, err := q.ensureConsumer(ctx)
	if err != nil {
		return nil, err
	}

	batch, err := consumer.Fetch(max, jetstream.FetchMaxWait(2*time.Second))
	if err != nil {
		return nil, err
	}

	var out []QueuedTicket
	for msg := range batch.Messages() {
		msg := msg
		var ticket model.EscalationTicket
		if err := json.Unmarshal(msg.Data(), &ticket); err != nil {
			// Unparsable payloads are terminated so they do not
			// poison redelivery.
			_ = msg.Term()
			continue
		}
		out = append(out, QueuedTicket{
			Ticket: &ticket,
			Ack:    msg.Ack,
			Retry:  func() error { return msg.Nak() },
		})
	}

	return out, nil
}

func (q *NATSQueue) ensureConsumer(ctx context.Context) (jetstream.Consumer, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.consumer != nil {
		return q.consumer, nil
	}
	consumer, err := q.streams.EscalationConsumer(ctx)
	if err != nil {
		return nil, err
	}
	q.consumer = consumer
	return consumer, nil
}

// MemoryQueue is an in-process Queue for tests and single-node setups.
type MemoryQueue struct {
	mu      sync.Mutex
	tickets []*model.EscalationTicket
}

// NewMemoryQueue creates an empty in-memory queue.
func NewMemoryQueue() *MemoryQueue {
	return &MemoryQueue{}
}

// Enqueue implements Queue.
func (q *MemoryQueue) Enqueue(ctx context.Context, t *model.EscalationTicket) error {
	q.mu.Lock()
	q.tickets = append(q.tickets, t)
	q.mu.Unlock()
	return nil
}

// Fetch implements Queue.
func (q *MemoryQueue) Fetch(ctx context.Context, max int) ([]QueuedTicket, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	n := max
	if n > len(q.tickets) {
		n = len(q.tickets)
	}

	out := make([]QueuedTicket, 0, n)
	taken := q.tickets[:n]
	q.tickets = q.tickets[n:]

	for _, t := range taken {
		t := t
		out = append(out, QueuedTicket{
			Ticket: t,
			Ack:    func() error { return nil },
			Retry: func() error {
				q.mu.Lock()
				q.tickets = append(q.tickets, t)
				q.mu.Unlock()
				return nil
			},
		})
	}
	return out, nil
}

// Len returns the number of queued tickets.
func (q *MemoryQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.tickets)
}
