package audit

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/helpdesk-ai/support-engine/internal/model"
	"github.com/helpdesk-ai/support-engine/pkg/logger"
)

// Publisher delivers one audit entry to the durable stream.
type Publisher interface {
	PublishAudit(ctx context.Context, entry *model.AuditEntry) error
}

// NATS is a fire-and-forget sink that delivers entries to the AUDIT
// JetStream stream. A buffered channel decouples the workflow from stream
// latency; a full buffer spills into tracked goroutines so Append never
// blocks and Close never races a pending send.
type NATS struct {
	publisher Publisher
	logger    *logger.Logger
	ch        chan model.AuditEntry
	stop      chan struct{}
	done      chan struct{}
	spills    sync.WaitGroup
}

// NewNATS creates and starts the NATS-backed sink.
func NewNATS(publisher Publisher, bufferSize int, log *logger.Logger) *NATS {
	if bufferSize <= 0 {
		bufferSize = 1024
	}

	s := &NATS{
		publisher: publisher,
		logger:    log,
		ch:        make(chan model.AuditEntry, bufferSize),
		stop:      make(chan struct{}),
		done:      make(chan struct{}),
	}
	go s.run()
	return s
}

// Append implements Sink. Callers stop producing before Close; an entry
// arriving during shutdown is logged inline rather than lost.
func (s *NATS) Append(entry model.AuditEntry) {
	select {
	case <-s.stop:
		s.logInline(entry)
		return
	default:
	}

	select {
	case s.ch <- entry:
	default:
		s.spills.Add(1)
		go func() {
			defer s.spills.Done()
			select {
			case s.ch <- entry:
			case <-s.stop:
				s.logInline(entry)
			}
		}()
	}
}

// Close flushes buffered entries and stops the delivery goroutine. Spilled
// sends are waited out before the channel closes.
func (s *NATS) Close() {
	close(s.stop)
	s.spills.Wait()
	close(s.ch)
	<-s.done
}

func (s *NATS) run() {
	defer close(s.done)
	for entry := range s.ch {
		s.publish(entry)
	}
}

func (s *NATS) publish(entry model.AuditEntry) {
	// At-least-once: a handful of quick attempts before logging the
	// entry itself as a last resort. The trail may duplicate, never
	// silently drop.
	for attempt := 0; attempt < 3; attempt++ {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		err := s.publisher.PublishAudit(ctx, &entry)
		cancel()
		if err == nil {
			return
		}
		time.Sleep(time.Duration(attempt+1) * 200 * time.Millisecond)
	}

	s.logInline(entry)
}

func (s *NATS) logInline(entry model.AuditEntry) {
	s.logger.Error("audit delivery failed, entry logged inline",
		zap.String("entry_id", entry.ID),
		zap.String("kind", string(entry.Kind)),
		zap.Any("payload", entry.Payload),
	)
}
