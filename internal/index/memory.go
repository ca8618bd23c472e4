package index

import (
	"math"
	"sort"
	"sync"
	"sync/atomic"
)

// Memory is an in-memory Index using exact cosine search over an immutable
// snapshot. Suitable for corpora in the low tens of thousands of chunks;
// larger corpora swap in an ANN-backed implementation behind the same
// interface.
type Memory struct {
	mu       sync.Mutex // serializes writers
	snapshot atomic.Pointer[snapshot]
	gen      atomic.Uint64
}

type snapshot struct {
	entries []Entry
}

// NewMemory creates an empty in-memory index.
func NewMemory() *Memory {
	m := &Memory{}
	m.snapshot.Store(&snapshot{})
	return m
}

// Upsert implements Index.
func (m *Memory) Upsert(entries []Entry) {
	if len(entries) == 0 {
		return
	}
	m.mutate(func(cur []Entry) []Entry {
		replaced := make(map[string]bool, len(entries))
		for _, e := range entries {
			replaced[e.ChunkID] = true
		}

		next := make([]Entry, 0, len(cur)+len(entries))
		for _, e := range cur {
			if !replaced[e.ChunkID] {
				next = append(next, e)
			}
		}
		return append(next, entries...)
	})
}

// Remove implements Index.
func (m *Memory) Remove(documentID string) {
	m.Replace(documentID, nil)
}

// Replace implements Index.
func (m *Memory) Replace(documentID string, entries []Entry) {
	m.mutate(func(cur []Entry) []Entry {
		next := make([]Entry, 0, len(cur)+len(entries))
		for _, e := range cur {
			if e.DocumentID != documentID {
				next = append(next, e)
			}
		}
		return append(next, entries...)
	})
}

func (m *Memory) mutate(fn func(cur []Entry) []Entry) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cur := m.snapshot.Load()
	m.snapshot.Store(&snapshot{entries: fn(cur.entries)})
	m.gen.Add(1)
}

// Query implements Index. It never blocks writers and reads a consistent
// snapshot.
func (m *Memory) Query(vector []float32, k int) []Scored {
	snap := m.snapshot.Load()
	if k <= 0 || len(snap.entries) == 0 {
		return nil
	}

	scored := make([]Scored, 0, len(snap.entries))
	for i := range snap.entries {
		e := &snap.entries[i]
		scored = append(scored, Scored{Entry: e, Score: Cosine(vector, e.Vector)})
	}

	sort.Slice(scored, func(i, j int) bool {
		if scored[i].Score != scored[j].Score {
			return scored[i].Score > scored[j].Score
		}
		return scored[i].Entry.ChunkID < scored[j].Entry.ChunkID
	})

	if k > len(scored) {
		k = len(scored)
	}
	return scored[:k]
}

// Size implements Index.
func (m *Memory) Size() int {
	return len(m.snapshot.Load().entries)
}

// Generation implements Index.
func (m *Memory) Generation() uint64 {
	return m.gen.Load()
}

// Cosine returns the cosine similarity of two vectors.
func Cosine(a, b []float32) float64 {
	var dot, na, nb float64
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	for i := 0; i < n; i++ {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}
