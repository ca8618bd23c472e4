// Package audit provides the append-only decision trail.
package audit

import (
	"sync"

	"github.com/helpdesk-ai/support-engine/internal/model"
)

// Sink receives audit entries. Append never blocks the caller; delivery to
// the underlying store is asynchronous with at-least-once semantics.
type Sink interface {
	Append(entry model.AuditEntry)
}

// Memory is a synchronous in-memory sink. Tests use it to assert that
// entries exist before a workflow's terminal transition completes.
type Memory struct {
	mu      sync.Mutex
	entries []model.AuditEntry
}

// NewMemory creates an in-memory sink.
func NewMemory() *Memory {
	return &Memory{}
}

// Append implements Sink.
func (m *Memory) Append(entry model.AuditEntry) {
	m.mu.Lock()
	m.entries = append(m.entries, entry)
	m.mu.Unlock()
}

// Entries returns a copy of everything appended so far.
func (m *Memory) Entries() []model.AuditEntry {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]model.AuditEntry, len(m.entries))
	copy(out, m.entries)
	return out
}

// ByKind filters entries by event kind.
func (m *Memory) ByKind(kind model.EventKind) []model.AuditEntry {
	var out []model.AuditEntry
	for _, e := range m.Entries() {
		if e.Kind == kind {
			out = append(out, e)
		}
	}
	return out
}
