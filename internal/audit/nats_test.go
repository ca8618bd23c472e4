package audit

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/helpdesk-ai/support-engine/internal/model"
	"github.com/helpdesk-ai/support-engine/pkg/logger"
)

// gatedPublisher blocks every publish until the gate opens, so tests can
// pin entries in flight and force the sink's buffer to overflow.
type gatedPublisher struct {
	gate    chan struct{}
	waiting atomic.Int32

	mu      sync.Mutex
	entries []string
}

func newGatedPublisher() *gatedPublisher {
	return &gatedPublisher{gate: make(chan struct{})}
}

func (p *gatedPublisher) PublishAudit(_ context.Context, e *model.AuditEntry) error {
	p.waiting.Add(1)
	<-p.gate
	p.mu.Lock()
	defer p.mu.Unlock()
	p.entries = append(p.entries, e.ID)
	return nil
}

func (p *gatedPublisher) published() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, len(p.entries))
	copy(out, p.entries)
	return out
}

func sinkEntry(id string) model.AuditEntry {
	return model.AuditEntry{
		ID:        id,
		Kind:      model.EventOutcome,
		CreatedAt: time.Now(),
	}
}

func TestNATSSinkDeliversOverflowedEntries(t *testing.T) {
	pub := newGatedPublisher()
	close(pub.gate)

	sink := NewNATS(pub, 1, logger.NewNop())
	sink.Append(sinkEntry("a"))
	sink.Append(sinkEntry("b"))
	sink.Append(sinkEntry("c"))

	require.Eventually(t, func() bool {
		return len(pub.published()) == 3
	}, 2*time.Second, 5*time.Millisecond)

	sink.Close()
	assert.ElementsMatch(t, []string{"a", "b", "c"}, pub.published())
}

func TestNATSSinkCloseWithPendingOverflow(t *testing.T) {
	pub := newGatedPublisher()
	sink := NewNATS(pub, 1, logger.NewNop())

	// Pin the first entry in flight, fill the buffer, then overflow.
	sink.Append(sinkEntry("a"))
	require.Eventually(t, func() bool {
		return pub.waiting.Load() == 1
	}, 2*time.Second, time.Millisecond)
	sink.Append(sinkEntry("b"))
	sink.Append(sinkEntry("c"))

	go func() {
		time.Sleep(50 * time.Millisecond)
		close(pub.gate)
	}()

	// Must return without panicking on the pending overflow send; the
	// stranded entry is logged inline, the buffered ones still deliver.
	sink.Close()

	assert.Equal(t, []string{"a", "b"}, pub.published())
}
