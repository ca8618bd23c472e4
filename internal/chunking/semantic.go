package chunking

import (
	"context"
	"math"
	"sort"

	"go.uber.org/zap"

	"github.com/helpdesk-ai/support-engine/internal/embedding"
	"github.com/helpdesk-ai/support-engine/internal/model"
	"github.com/helpdesk-ai/support-engine/pkg/logger"
)

// SemanticChunker splits a document where consecutive sentence windows stop
// resembling each other. Windows are embedded, the dissimilarity between
// neighbors is computed, and a split is inserted wherever dissimilarity
// exceeds a statistical threshold over the whole document.
type SemanticChunker struct {
	embedder embedding.Embedder
	cfg      Config
	logger   *logger.Logger
}

// NewSemanticChunker creates a semantic boundary chunker.
func NewSemanticChunker(embedder embedding.Embedder, cfg Config, log *logger.Logger) *SemanticChunker {
	return &SemanticChunker{
		embedder: embedder,
		cfg:      cfg.withDefaults(),
		logger:   log,
	}
}

// Chunk implements Chunker.
func (c *SemanticChunker) Chunk(ctx context.Context, doc *model.Document) ([]model.Chunk, error) {
	text := doc.Content
	sents := splitSentences(text)
	if len(sents) == 0 {
		return nil, nil
	}

	windows := buildWindows(len(sents), c.cfg.WindowSentences)

	var splitAt []int // sentence indices where a new chunk starts
	if len(windows) > 1 {
		texts := make([]string, len(windows))
		for i, w := range windows {
			texts[i] = spanText(text, sents, w[0], w[1])
		}

		vectors, err := c.embedder.Embed(ctx, texts)
		if err != nil {
			return nil, err
		}

		dists := make([]float64, len(vectors)-1)
		for i := 0; i < len(dists); i++ {
			dists[i] = 1 - cosine(vectors[i], vectors[i+1])
		}

		threshold := breakpointThreshold(dists, c.cfg)
		for i, d := range dists {
			if d > threshold {
				splitAt = append(splitAt, windows[i+1][0])
			}
		}

		c.logger.Debug("semantic breakpoints computed",
			zap.Int("windows", len(windows)),
			zap.Float64("threshold", threshold),
			zap.Int("splits", len(splitAt)),
		)
	}

	spans := spansFromSplits(len(sents), splitAt)
	spans = mergeSmallSpans(text, sents, spans, c.cfg.MinSize)
	segments := packSegments(text, sents, spans, c.cfg.MinSize, c.cfg.MaxSize)

	chunks := make([]model.Chunk, 0, len(segments))
	for i, seg := range segments {
		body := seg
		overlap := ""
		if i > 0 && c.cfg.OverlapSentences > 0 {
			overlap = tailSentences(segments[i-1], c.cfg.OverlapSentences)
		}

		ch := newChunk(doc, i, overlap+body, StrategySemantic)
		setOverlap(&ch, runeLen(overlap))
		chunks = append(chunks, ch)
	}

	return chunks, nil
}

// buildWindows groups consecutive sentences into fixed-size windows.
func buildWindows(sentences, size int) [][2]int {
	var windows [][2]int
	for start := 0; start < sentences; start += size {
		end := start + size
		if end > sentences {
			end = sentences
		}
		windows = append(windows, [2]int{start, end})
	}
	return windows
}

// spansFromSplits converts sorted split positions into contiguous sentence
// ranges covering [0, sentences).
func spansFromSplits(sentences int, splitAt []int) [][2]int {
	var spans [][2]int
	prev := 0
	for _, s := range splitAt {
		if s > prev && s < sentences {
			spans = append(spans, [2]int{prev, s})
			prev = s
		}
	}
	spans = append(spans, [2]int{prev, sentences})
	return spans
}

// mergeSmallSpans folds spans under minSize into their neighbor.
func mergeSmallSpans(text string, sents []sentence, spans [][2]int, minSize int) [][2]int {
	if len(spans) < 2 {
		return spans
	}

	var out [][2]int
	for _, sp := range spans {
		if len(out) > 0 && runeLen(spanText(text, sents, sp[0], sp[1])) < minSize {
			out[len(out)-1][1] = sp[1]
			continue
		}
		out = append(out, sp)
	}

	// A small leading span merges forward instead.
	if len(out) > 1 && runeLen(spanText(text, sents, out[0][0], out[0][1])) < minSize {
		out[1][0] = out[0][0]
		out = out[1:]
	}
	return out
}

// packSegments turns spans into chunk texts within [minSize, maxSize]
// characters. Oversized spans are force-split at the nearest sentence
// boundary; a single sentence beyond maxSize is cut every maxSize runes.
func packSegments(text string, sents []sentence, spans [][2]int, minSize, maxSize int) []string {
	var segments []string

	flush := func(s string) {
		if len(segments) > 0 && runeLen(s) < minSize && runeLen(segments[len(segments)-1])+runeLen(s) <= maxSize {
			segments[len(segments)-1] += s
			return
		}
		segments = append(segments, s)
	}

	for _, sp := range spans {
		start := sp[0]
		for start < sp[1] {
			end := start
			size := 0
			for end < sp[1] {
				next := runeLen(spanText(text, sents, end, end+1))
				if size+next > maxSize {
					break
				}
				size += next
				end++
			}

			if end == start {
				// Single sentence beyond maxSize: hard split.
				s := spanText(text, sents, start, start+1)
				for runeLen(s) > maxSize {
					cut := cutAfter(s, maxSize)
					flush(s[:cut])
					s = s[cut:]
				}
				flush(s)
				start++
				continue
			}

			flush(spanText(text, sents, start, end))
			start = end
		}
	}
	return segments
}

// tailSentences returns the last n sentences of s.
func tailSentences(s string, n int) string {
	sents := splitSentences(s)
	if len(sents) <= n {
		return s
	}
	return s[sents[len(sents)-n].start:]
}

// breakpointThreshold derives the dissimilarity threshold for a document.
func breakpointThreshold(dists []float64, cfg Config) float64 {
	if cfg.BreakpointMode == "percentile" {
		return percentile(dists, cfg.Percentile)
	}
	q1 := percentile(dists, 25)
	q3 := percentile(dists, 75)
	return q3 + cfg.IQRMultiplier*(q3-q1)
}

// percentile computes the p-th percentile with linear interpolation.
func percentile(vals []float64, p float64) float64 {
	if len(vals) == 0 {
		return 0
	}
	sorted := make([]float64, len(vals))
	copy(sorted, vals)
	sort.Float64s(sorted)

	rank := p / 100 * float64(len(sorted)-1)
	lo := int(math.Floor(rank))
	hi := int(math.Ceil(rank))
	if lo == hi {
		return sorted[lo]
	}
	frac := rank - float64(lo)
	return sorted[lo]*(1-frac) + sorted[hi]*frac
}

func cosine(a, b []float32) float64 {
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
