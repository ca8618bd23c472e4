package chunking

import (
	"context"
	"strconv"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/helpdesk-ai/support-engine/internal/model"
	"github.com/helpdesk-ai/support-engine/pkg/logger"
)

// stubEmbedder maps texts onto fixed vectors so breakpoints are controlled
// by the test, not by a live embedding provider.
type stubEmbedder struct {
	calls int
	vec   func(text string) []float32
}

func (s *stubEmbedder) Embed(_ context.Context, texts []string) ([][]float32, error) {
	s.calls++
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = s.vec(t)
	}
	return out, nil
}

func (s *stubEmbedder) Model() string { return "stub" }

func topicVec(text string) []float32 {
	if strings.Contains(text, "cat") {
		return []float32{1, 0}
	}
	return []float32{0, 1}
}

func testDoc(content string) *model.Document {
	return &model.Document{
		ID:       "0190a9c1-0000-7000-8000-000000000001",
		Version:  1,
		Content:  content,
		Metadata: map[string]string{"source": "kb"},
	}
}

const twoTopics = "The cat sleeps all day. The cat chases string toys. " +
	"Bond yields rose sharply this quarter. Bond markets remain volatile."

func TestSemanticChunkSplitsOnTopicShift(t *testing.T) {
	emb := &stubEmbedder{vec: topicVec}
	c := NewSemanticChunker(emb, Config{
		MinSize:         10,
		MaxSize:         1000,
		WindowSentences: 1,
		BreakpointMode:  "percentile",
		Percentile:      50,
	}, logger.NewNop())

	chunks, err := c.Chunk(context.Background(), testDoc(twoTopics))
	require.NoError(t, err)
	require.Len(t, chunks, 2)

	assert.Contains(t, chunks[0].Text, "cat")
	assert.Contains(t, chunks[1].Text, "Bond")
	assert.NotContains(t, chunks[0].Text, "Bond")

	for i, ch := range chunks {
		assert.Equal(t, i, ch.Ordinal)
		assert.Equal(t, 1, ch.DocumentVersion)
		assert.Equal(t, "semantic", ch.Metadata["strategy"])
		assert.Equal(t, "kb", ch.Metadata["source"])
		assert.Equal(t, utf8.RuneCountInString(ch.Text), ch.Size)
	}
}

func threeTopicVec(text string) []float32 {
	switch {
	case strings.Contains(text, "cat"):
		return []float32{1, 0, 0}
	case strings.Contains(text, "Bond"):
		return []float32{0, 1, 0}
	default:
		return []float32{0, 0, 1}
	}
}

func TestSemanticChunkTwoSplitPointsYieldThreeChunks(t *testing.T) {
	text := "The cat sleeps all day. The cat chases string toys. " +
		"Bond yields rose sharply this quarter. Bond markets remain volatile. " +
		"Glaciers retreat during warm summers. Glaciers carve deep valleys."

	emb := &stubEmbedder{vec: threeTopicVec}
	c := NewSemanticChunker(emb, Config{
		MinSize:         10,
		MaxSize:         1000,
		WindowSentences: 1,
		BreakpointMode:  "percentile",
		Percentile:      50,
	}, logger.NewNop())

	chunks, err := c.Chunk(context.Background(), testDoc(text))
	require.NoError(t, err)
	require.Len(t, chunks, 3)

	assert.Contains(t, chunks[0].Text, "cat")
	assert.Contains(t, chunks[1].Text, "Bond")
	assert.Contains(t, chunks[2].Text, "Glaciers")
	assert.NotContains(t, chunks[1].Text, "cat")
	assert.NotContains(t, chunks[2].Text, "Bond")

	var b strings.Builder
	for _, ch := range chunks {
		assert.GreaterOrEqual(t, ch.Size, 10)
		assert.LessOrEqual(t, ch.Size, 1000)
		b.WriteString(ch.Text)
	}
	assert.Equal(t, text, b.String())
}

func TestSemanticChunkSizesCountCharacters(t *testing.T) {
	// 250 two-byte runes, a single sentence. A byte-based budget would
	// split every 100 bytes; the character budget splits every 100 runes.
	text := strings.Repeat("ü", 250)

	emb := &stubEmbedder{vec: topicVec}
	c := NewSemanticChunker(emb, Config{
		MinSize:         10,
		MaxSize:         100,
		WindowSentences: 1,
	}, logger.NewNop())

	chunks, err := c.Chunk(context.Background(), testDoc(text))
	require.NoError(t, err)
	require.Len(t, chunks, 3)

	assert.Equal(t, 100, chunks[0].Size)
	assert.Equal(t, 200, len(chunks[0].Text), "100 two-byte runes")

	var b strings.Builder
	for _, ch := range chunks {
		assert.LessOrEqual(t, utf8.RuneCountInString(ch.Text), 100)
		b.WriteString(ch.Text)
	}
	assert.Equal(t, text, b.String())
}

func TestSemanticChunkReconstruction(t *testing.T) {
	emb := &stubEmbedder{vec: topicVec}
	c := NewSemanticChunker(emb, Config{
		MinSize:         10,
		MaxSize:         1000,
		WindowSentences: 1,
		BreakpointMode:  "percentile",
		Percentile:      50,
	}, logger.NewNop())

	chunks, err := c.Chunk(context.Background(), testDoc(twoTopics))
	require.NoError(t, err)

	var b strings.Builder
	for _, ch := range chunks {
		b.WriteString(ch.Text)
	}
	assert.Equal(t, twoTopics, b.String(), "concatenated chunks must reproduce the document")
}

func TestSemanticChunkOverlapReconstruction(t *testing.T) {
	emb := &stubEmbedder{vec: topicVec}
	c := NewSemanticChunker(emb, Config{
		MinSize:          10,
		MaxSize:          1000,
		WindowSentences:  1,
		OverlapSentences: 1,
		BreakpointMode:   "percentile",
		Percentile:       50,
	}, logger.NewNop())

	chunks, err := c.Chunk(context.Background(), testDoc(twoTopics))
	require.NoError(t, err)
	require.Len(t, chunks, 2)

	assert.NotEmpty(t, chunks[1].Metadata["overlap_chars"])

	var b strings.Builder
	for _, ch := range chunks {
		body := ch.Text
		if v, ok := ch.Metadata["overlap_chars"]; ok {
			n, err := strconv.Atoi(v)
			require.NoError(t, err)
			body = body[n:]
		}
		b.WriteString(body)
	}
	assert.Equal(t, twoTopics, b.String(), "stripping overlap prefixes must reproduce the document")
}

func TestSemanticChunkDeterministic(t *testing.T) {
	cfg := Config{
		MinSize:         10,
		MaxSize:         1000,
		WindowSentences: 1,
		BreakpointMode:  "percentile",
		Percentile:      50,
	}
	first, err := NewSemanticChunker(&stubEmbedder{vec: topicVec}, cfg, logger.NewNop()).
		Chunk(context.Background(), testDoc(twoTopics))
	require.NoError(t, err)
	second, err := NewSemanticChunker(&stubEmbedder{vec: topicVec}, cfg, logger.NewNop()).
		Chunk(context.Background(), testDoc(twoTopics))
	require.NoError(t, err)

	require.Equal(t, len(first), len(second))
	for i := range first {
		assert.Equal(t, first[i].Text, second[i].Text)
		assert.Equal(t, first[i].Ordinal, second[i].Ordinal)
	}
}

func TestSemanticChunkIQRMode(t *testing.T) {
	text := "The cat naps. The cat eats. The cat plays. The cat hides. " +
		"Bond yields rose. Bond prices fell. Bond desks hedged. Bond risk grew."

	emb := &stubEmbedder{vec: topicVec}
	c := NewSemanticChunker(emb, Config{
		MinSize:         10,
		MaxSize:         1000,
		WindowSentences: 1,
		BreakpointMode:  "iqr",
		IQRMultiplier:   1.5,
	}, logger.NewNop())

	chunks, err := c.Chunk(context.Background(), testDoc(text))
	require.NoError(t, err)
	require.Len(t, chunks, 2)
	assert.NotContains(t, chunks[0].Text, "Bond")
	assert.NotContains(t, chunks[1].Text, "cat")
}

func TestSemanticChunkRespectsMaxSize(t *testing.T) {
	text := strings.TrimSpace(strings.Repeat("The cat sat on the mat again today. ", 12))

	emb := &stubEmbedder{vec: topicVec}
	c := NewSemanticChunker(emb, Config{
		MinSize:         10,
		MaxSize:         80,
		WindowSentences: 1,
		BreakpointMode:  "percentile",
		Percentile:      90,
	}, logger.NewNop())

	chunks, err := c.Chunk(context.Background(), testDoc(text))
	require.NoError(t, err)
	require.NotEmpty(t, chunks)

	var b strings.Builder
	for _, ch := range chunks {
		assert.LessOrEqual(t, len(ch.Text), 80)
		b.WriteString(ch.Text)
	}
	assert.Equal(t, text, b.String())
}

func TestSemanticChunkHardSplitsGiantSentence(t *testing.T) {
	text := strings.Repeat("x", 350)

	emb := &stubEmbedder{vec: topicVec}
	c := NewSemanticChunker(emb, Config{
		MinSize:         10,
		MaxSize:         100,
		WindowSentences: 1,
	}, logger.NewNop())

	chunks, err := c.Chunk(context.Background(), testDoc(text))
	require.NoError(t, err)
	require.NotEmpty(t, chunks)
	assert.Zero(t, emb.calls, "a single window needs no embedding")

	var b strings.Builder
	for _, ch := range chunks {
		assert.LessOrEqual(t, len(ch.Text), 100)
		b.WriteString(ch.Text)
	}
	assert.Equal(t, text, b.String())
}

func TestSemanticChunkEmptyDocument(t *testing.T) {
	c := NewSemanticChunker(&stubEmbedder{vec: topicVec}, Config{}, logger.NewNop())
	chunks, err := c.Chunk(context.Background(), testDoc(""))
	require.NoError(t, err)
	assert.Empty(t, chunks)
}
