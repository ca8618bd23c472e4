package chunking

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/helpdesk-ai/support-engine/internal/llm"
	"github.com/helpdesk-ai/support-engine/internal/model"
	"github.com/helpdesk-ai/support-engine/pkg/logger"
)

// AgenticChunker decomposes a document into atomic propositions and groups
// them by topic. Each open group keeps a generated title and a rolling
// one-sentence summary; every proposition is matched against the group
// outline and either appended to the best group or seeds a new one.
type AgenticChunker struct {
	llm    llm.Client
	cfg    Config
	logger *logger.Logger
}

// NewAgenticChunker creates a proposition-grouping chunker.
func NewAgenticChunker(client llm.Client, cfg Config, log *logger.Logger) *AgenticChunker {
	return &AgenticChunker{
		llm:    client,
		cfg:    cfg.withDefaults(),
		logger: log,
	}
}

type propositionGroup struct {
	id           string
	title        string
	summary      string
	propositions []string
	size         int
}

// Chunk implements Chunker.
func (c *AgenticChunker) Chunk(ctx context.Context, doc *model.Document) ([]model.Chunk, error) {
	propositions, err := llm.ExtractPropositions(ctx, c.llm, doc.Content)
	if err != nil {
		return nil, fmt.Errorf("proposition extraction: %w", err)
	}
	if len(propositions) == 0 {
		return nil, nil
	}

	var groups []*propositionGroup
	for _, prop := range propositions {
		prop = strings.TrimSpace(prop)
		if prop == "" {
			continue
		}
		if err := c.place(ctx, &groups, prop); err != nil {
			return nil, err
		}
	}

	c.logger.Debug("agentic grouping complete",
		zap.Int("propositions", len(propositions)),
		zap.Int("groups", len(groups)),
	)

	return c.emit(doc, groups), nil
}

func (c *AgenticChunker) place(ctx context.Context, groups *[]*propositionGroup, prop string) error {
	// Groups at capacity stop accepting; the outline only lists open ones.
	open := make([]*propositionGroup, 0, len(*groups))
	for _, g := range *groups {
		if g.size+runeLen(prop)+1 <= c.cfg.MaxSize {
			open = append(open, g)
		}
	}

	if len(open) > 0 {
		id, err := llm.FindRelevantChunk(ctx, c.llm, prop, outline(open))
		if err != nil {
			return fmt.Errorf("chunk matching: %w", err)
		}
		for _, g := range open {
			if g.id == id {
				return c.append(ctx, g, prop)
			}
		}
	}

	g, err := c.newGroup(ctx, prop)
	if err != nil {
		return err
	}
	*groups = append(*groups, g)
	return nil
}

func (c *AgenticChunker) newGroup(ctx context.Context, prop string) (*propositionGroup, error) {
	summary, err := llm.SummarizeChunk(ctx, c.llm, prop, "")
	if err != nil {
		return nil, fmt.Errorf("chunk summary: %w", err)
	}
	title, err := llm.TitleChunk(ctx, c.llm, summary)
	if err != nil {
		return nil, fmt.Errorf("chunk title: %w", err)
	}

	return &propositionGroup{
		id:           uuid.Must(uuid.NewV7()).String(),
		title:        title,
		summary:      summary,
		propositions: []string{prop},
		size:         runeLen(prop),
	}, nil
}

func (c *AgenticChunker) append(ctx context.Context, g *propositionGroup, prop string) error {
	g.propositions = append(g.propositions, prop)
	g.size += runeLen(prop) + 1

	summary, err := llm.SummarizeChunk(ctx, c.llm, prop, g.summary)
	if err != nil {
		return fmt.Errorf("chunk summary update: %w", err)
	}
	g.summary = summary
	return nil
}

// emit converts groups into chunks, folding undersized trailing groups into
// their predecessor.
func (c *AgenticChunker) emit(doc *model.Document, groups []*propositionGroup) []model.Chunk {
	var chunks []model.Chunk
	for _, g := range groups {
		text := strings.Join(g.propositions, " ")
		if len(chunks) > 0 && runeLen(text) < c.cfg.MinSize {
			prev := &chunks[len(chunks)-1]
			if prev.Size+runeLen(text)+1 <= c.cfg.MaxSize {
				prev.Text += " " + text
				prev.Size = runeLen(prev.Text)
				continue
			}
		}

		ch := newChunk(doc, len(chunks), text, StrategyAgentic)
		ch.Metadata["title"] = g.title
		ch.Metadata["summary"] = g.summary
		chunks = append(chunks, ch)
	}
	return chunks
}

// outline renders the open groups for the relevance-matching prompt.
func outline(groups []*propositionGroup) string {
	var b strings.Builder
	for _, g := range groups {
		fmt.Fprintf(&b, "- Chunk ID: %s\n  Title: %s\n  Summary: %s\n", g.id, g.title, g.summary)
	}
	return b.String()
}
