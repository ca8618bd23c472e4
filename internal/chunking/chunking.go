// Package chunking splits raw document text into retrieval-sized chunks.
// Two strategies are provided: semantic boundary splitting, which adapts
// chunk boundaries to topic shifts, and agentic proposition grouping, which
// trades latency for thematic cohesion.
package chunking

import (
	"context"
	"strconv"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/helpdesk-ai/support-engine/internal/model"
)

// Strategy names a chunking strategy.
type Strategy string

const (
	StrategySemantic Strategy = "semantic"
	StrategyAgentic  Strategy = "agentic"
)

// ParseStrategy maps a request value onto a known strategy, defaulting to
// semantic.
func ParseStrategy(s string) Strategy {
	if Strategy(s) == StrategyAgentic {
		return StrategyAgentic
	}
	return StrategySemantic
}

// Chunker produces an ordered sequence of chunks for a document's text.
// Chunking is deterministic for a given text, strategy, and configuration.
type Chunker interface {
	Chunk(ctx context.Context, doc *model.Document) ([]model.Chunk, error)
}

// Config holds the shared chunking parameters. MinSize and MaxSize bound
// chunk length in characters, not bytes.
type Config struct {
	MinSize          int
	MaxSize          int
	WindowSentences  int
	OverlapSentences int

	// Semantic breakpoint tuning. Mode is "iqr" (threshold at
	// Q3 + IQRMultiplier*IQR) or "percentile".
	BreakpointMode string
	Percentile     float64
	IQRMultiplier  float64
}

func (c Config) withDefaults() Config {
	if c.MinSize <= 0 {
		c.MinSize = 200
	}
	if c.MaxSize <= c.MinSize {
		c.MaxSize = c.MinSize * 10
	}
	if c.WindowSentences <= 0 {
		c.WindowSentences = 3
	}
	if c.Percentile <= 0 || c.Percentile > 100 {
		c.Percentile = 90
	}
	if c.IQRMultiplier <= 0 {
		c.IQRMultiplier = 1.5
	}
	return c
}

func newChunk(doc *model.Document, ordinal int, text string, strategy Strategy) model.Chunk {
	meta := make(map[string]string, len(doc.Metadata)+1)
	for k, v := range doc.Metadata {
		meta[k] = v
	}
	meta["strategy"] = string(strategy)

	return model.Chunk{
		ID:              uuid.Must(uuid.NewV7()).String(),
		DocumentID:      doc.ID,
		DocumentVersion: doc.Version,
		Ordinal:         ordinal,
		Text:            text,
		Size:            runeLen(text),
		Metadata:        meta,
	}
}

func setOverlap(c *model.Chunk, chars int) {
	if chars > 0 {
		c.Metadata["overlap_chars"] = strconv.Itoa(chars)
	}
}

func runeLen(s string) int {
	return utf8.RuneCountInString(s)
}

// cutAfter returns the byte offset following the first n runes of s.
func cutAfter(s string, n int) int {
	i := 0
	for pos := range s {
		if i == n {
			return pos
		}
		i++
	}
	return len(s)
}
