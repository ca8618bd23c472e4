package index

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func entry(chunkID, docID string, vec []float32) Entry {
	return Entry{
		ChunkID:    chunkID,
		DocumentID: docID,
		Text:       "text-" + chunkID,
		Vector:     vec,
		IndexedAt:  time.Now(),
	}
}

func TestMemoryUpsertAndQuery(t *testing.T) {
	m := NewMemory()
	m.Upsert([]Entry{
		entry("c1", "d1", []float32{1, 0}),
		entry("c2", "d1", []float32{0, 1}),
		entry("c3", "d2", []float32{0.7, 0.7}),
	})

	got := m.Query([]float32{1, 0}, 3)
	require.Len(t, got, 3)
	assert.Equal(t, "c1", got[0].Entry.ChunkID)
	assert.Equal(t, "c3", got[1].Entry.ChunkID)
	assert.Equal(t, "c2", got[2].Entry.ChunkID)
	assert.InDelta(t, 1.0, got[0].Score, 1e-9)
	assert.InDelta(t, 0.0, got[2].Score, 1e-9)
}

func TestMemoryQueryTieBreaksOnChunkID(t *testing.T) {
	m := NewMemory()
	m.Upsert([]Entry{
		entry("b", "d1", []float32{1, 0}),
		entry("a", "d1", []float32{1, 0}),
	})

	got := m.Query([]float32{1, 0}, 2)
	require.Len(t, got, 2)
	assert.Equal(t, "a", got[0].Entry.ChunkID)
	assert.Equal(t, "b", got[1].Entry.ChunkID)
}

func TestMemoryUpsertReplacesSameChunk(t *testing.T) {
	m := NewMemory()
	m.Upsert([]Entry{entry("c1", "d1", []float32{1, 0})})
	m.Upsert([]Entry{entry("c1", "d1", []float32{0, 1})})

	assert.Equal(t, 1, m.Size())
	got := m.Query([]float32{0, 1}, 1)
	require.Len(t, got, 1)
	assert.InDelta(t, 1.0, got[0].Score, 1e-9)
}

func TestMemoryReplaceSupersedesDocument(t *testing.T) {
	m := NewMemory()
	m.Upsert([]Entry{
		entry("old1", "d1", []float32{1, 0}),
		entry("old2", "d1", []float32{1, 0}),
		entry("keep", "d2", []float32{0, 1}),
	})
	genBefore := m.Generation()

	m.Replace("d1", []Entry{entry("new1", "d1", []float32{1, 0})})

	assert.Greater(t, m.Generation(), genBefore)
	assert.Equal(t, 2, m.Size())

	got := m.Query([]float32{1, 0}, 10)
	ids := make([]string, 0, len(got))
	for _, s := range got {
		ids = append(ids, s.Entry.ChunkID)
	}
	assert.ElementsMatch(t, []string{"new1", "keep"}, ids)
}

func TestMemoryRemove(t *testing.T) {
	m := NewMemory()
	m.Upsert([]Entry{
		entry("c1", "d1", []float32{1, 0}),
		entry("c2", "d2", []float32{0, 1}),
	})

	m.Remove("d1")
	assert.Equal(t, 1, m.Size())
	got := m.Query([]float32{1, 0}, 10)
	require.Len(t, got, 1)
	assert.Equal(t, "c2", got[0].Entry.ChunkID)
}

func TestMemoryQueryEmpty(t *testing.T) {
	m := NewMemory()
	assert.Nil(t, m.Query([]float32{1, 0}, 5))
	assert.Nil(t, m.Query(nil, 0))
}

func TestCosine(t *testing.T) {
	assert.InDelta(t, 1.0, Cosine([]float32{1, 2}, []float32{2, 4}), 1e-9)
	assert.InDelta(t, 0.0, Cosine([]float32{1, 0}, []float32{0, 1}), 1e-9)
	assert.Equal(t, 0.0, Cosine([]float32{0, 0}, []float32{1, 1}))
}
