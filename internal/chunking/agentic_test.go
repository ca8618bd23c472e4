package chunking

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/helpdesk-ai/support-engine/internal/llm"
	"github.com/helpdesk-ai/support-engine/pkg/logger"
)

// agentLLM scripts the proposition pipeline: extraction yields a fixed set,
// summaries and titles collapse to the topic word, and matching returns the
// group whose title equals the proposition's topic.
type agentLLM struct {
	propositions []string
	failExtract  bool
}

func propTopic(s string) string {
	if strings.Contains(s, "cat") {
		return "cats"
	}
	return "bonds"
}

func (f *agentLLM) Complete(_ context.Context, req *llm.CompletionRequest) (*llm.CompletionResponse, error) {
	user := req.Messages[0].Content

	switch {
	case strings.Contains(req.System, "Decompose the content"):
		if f.failExtract {
			return nil, errors.New("provider unavailable")
		}
		quoted := make([]string, len(f.propositions))
		for i, p := range f.propositions {
			quoted[i] = fmt.Sprintf("%q", p)
		}
		return &llm.CompletionResponse{
			Content: fmt.Sprintf(`{"propositions": [%s]}`, strings.Join(quoted, ", ")),
		}, nil

	case strings.Contains(req.System, "one-sentence"):
		return &llm.CompletionResponse{Content: propTopic(user)}, nil

	case strings.Contains(req.System, "few-word title"):
		return &llm.CompletionResponse{Content: user}, nil

	case strings.Contains(req.System, "belongs to any"):
		_, propPart, _ := strings.Cut(user, "Proposition:\n")
		want := propTopic(propPart)
		id := ""
		lastID := ""
		for _, line := range strings.Split(user, "\n") {
			line = strings.TrimSpace(line)
			if rest, ok := strings.CutPrefix(line, "- Chunk ID: "); ok {
				lastID = rest
			}
			if rest, ok := strings.CutPrefix(line, "Title: "); ok && rest == want {
				id = lastID
			}
		}
		return &llm.CompletionResponse{Content: fmt.Sprintf(`{"chunk_id": %q}`, id)}, nil
	}

	return nil, fmt.Errorf("unexpected prompt: %s", req.System)
}

func (f *agentLLM) Name() string { return "scripted" }

func TestAgenticChunkGroupsByTopic(t *testing.T) {
	client := &agentLLM{propositions: []string{
		"The cat sleeps on the windowsill.",
		"The cat chases the red laser.",
		"Bond yields climbed again this week.",
		"Bond traders expect more volatility.",
	}}

	c := NewAgenticChunker(client, Config{MinSize: 10, MaxSize: 2000}, logger.NewNop())
	chunks, err := c.Chunk(context.Background(), testDoc("irrelevant, the script drives extraction"))
	require.NoError(t, err)
	require.Len(t, chunks, 2)

	assert.Equal(t, "The cat sleeps on the windowsill. The cat chases the red laser.", chunks[0].Text)
	assert.Equal(t, "Bond yields climbed again this week. Bond traders expect more volatility.", chunks[1].Text)

	assert.Equal(t, "cats", chunks[0].Metadata["title"])
	assert.Equal(t, "cats", chunks[0].Metadata["summary"])
	assert.Equal(t, "bonds", chunks[1].Metadata["title"])
	assert.Equal(t, "agentic", chunks[0].Metadata["strategy"])

	for i, ch := range chunks {
		assert.Equal(t, i, ch.Ordinal)
	}
}

func TestAgenticChunkClosesFullGroups(t *testing.T) {
	client := &agentLLM{propositions: []string{
		"The cat sleeps on the windowsill.",
		"The cat chases the red laser.",
	}}

	// MaxSize fits one proposition, so the second seeds a new group even
	// though the topics match.
	c := NewAgenticChunker(client, Config{MinSize: 10, MaxSize: 40}, logger.NewNop())
	chunks, err := c.Chunk(context.Background(), testDoc("x"))
	require.NoError(t, err)
	require.Len(t, chunks, 2)
	assert.Equal(t, "cats", chunks[0].Metadata["title"])
	assert.Equal(t, "cats", chunks[1].Metadata["title"])
}

func TestAgenticChunkExtractionFailure(t *testing.T) {
	c := NewAgenticChunker(&agentLLM{failExtract: true}, Config{}, logger.NewNop())
	chunks, err := c.Chunk(context.Background(), testDoc("x"))
	require.Error(t, err)
	assert.Nil(t, chunks)
}

func TestAgenticChunkNoPropositions(t *testing.T) {
	c := NewAgenticChunker(&agentLLM{}, Config{}, logger.NewNop())
	chunks, err := c.Chunk(context.Background(), testDoc("x"))
	require.NoError(t, err)
	assert.Empty(t, chunks)
}
