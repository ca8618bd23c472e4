package index

import (
	"context"
	"fmt"
	"math"
	"time"

	"go.uber.org/zap"

	"github.com/helpdesk-ai/support-engine/internal/embedding"
	"github.com/helpdesk-ai/support-engine/internal/errdefs"
	"github.com/helpdesk-ai/support-engine/internal/model"
	"github.com/helpdesk-ai/support-engine/pkg/logger"
	"github.com/helpdesk-ai/support-engine/pkg/metrics"
)

// RankerConfig tunes ranking and the retrieval confidence function.
type RankerConfig struct {
	TopK         int
	TagBoost     float64
	RecencyBoost float64
	HalfLife     time.Duration

	// Confidence shape: confidence = top1 * (Floor + (1-Floor) *
	// min(gap/GapRef, 1)). A small gap between top-1 and top-2 lowers
	// confidence even when the top score is high.
	GapRef float64
	Floor  float64
}

func (c RankerConfig) withDefaults() RankerConfig {
	if c.TopK <= 0 {
		c.TopK = 5
	}
	if c.HalfLife <= 0 {
		c.HalfLife = 30 * 24 * time.Hour
	}
	if c.GapRef <= 0 {
		c.GapRef = 0.25
	}
	if c.Floor <= 0 || c.Floor >= 1 {
		c.Floor = 0.6
	}
	return c
}

// Ranker combines raw similarity with metadata boosts into a final ranked
// list and a scalar retrieval confidence.
type Ranker struct {
	index    Index
	embedder embedding.Embedder
	cache    *QueryCache
	cfg      RankerConfig
	logger   *logger.Logger
	now      func() time.Time
}

// NewRanker creates a ranker over the given index. cache may be nil.
func NewRanker(idx Index, embedder embedding.Embedder, cache *QueryCache, cfg RankerConfig, log *logger.Logger) *Ranker {
	return &Ranker{
		index:    idx,
		embedder: embedder,
		cache:    cache,
		cfg:      cfg.withDefaults(),
		logger:   log,
		now:      time.Now,
	}
}

// Retrieve embeds the query, searches the index, applies boosts, and returns
// the ranked result with its retrieval confidence. An empty result set has
// confidence zero.
func (r *Ranker) Retrieve(ctx context.Context, query string, tags []string) (*model.RetrievalResult, float64, error) {
	start := r.now()
	normalized := NormalizeQuery(query)
	generation := r.index.Generation()

	if r.cache != nil {
		if result, confidence, ok := r.cache.Get(normalized, generation); ok {
			return result, confidence, nil
		}
	}

	vectors, err := r.embedder.Embed(ctx, []string{normalized})
	if err != nil {
		return nil, 0, fmt.Errorf("%w: %v", errdefs.ErrRetrievalUnavailable, err)
	}

	// Over-fetch so boosts can reorder beyond the final cut.
	raw := r.index.Query(vectors[0], r.cfg.TopK*2)
	if len(raw) == 0 {
		empty := &model.RetrievalResult{Query: query, CreatedAt: r.now()}
		metrics.RecordRetrieval(r.now().Sub(start).Seconds(), 0)
		return empty, 0, nil
	}

	boosted := make([]Scored, len(raw))
	for i, s := range raw {
		boosted[i] = Scored{Entry: s.Entry, Score: s.Score + r.boost(s.Entry, tags)}
	}
	sortScored(boosted)

	k := r.cfg.TopK
	if k > len(boosted) {
		k = len(boosted)
	}

	result := &model.RetrievalResult{
		Query:     query,
		Results:   make([]model.ScoredChunk, k),
		CreatedAt: r.now(),
	}
	for i := 0; i < k; i++ {
		result.Results[i] = model.ScoredChunk{
			ChunkID: boosted[i].Entry.ChunkID,
			Text:    boosted[i].Entry.Text,
			Score:   boosted[i].Score,
		}
	}

	top2 := 0.0
	if len(boosted) > 1 {
		top2 = boosted[1].Score
	}
	confidence := r.Confidence(boosted[0].Score, top2)

	if r.cache != nil {
		r.cache.Put(normalized, generation, result, confidence)
	}

	metrics.RecordRetrieval(r.now().Sub(start).Seconds(), confidence)
	r.logger.Debug("retrieval ranked",
		zap.String("query", normalized),
		zap.Int("results", k),
		zap.Float64("confidence", confidence),
	)

	return result, confidence, nil
}

// Confidence maps the top-1 score and the gap to top-2 onto [0, 1]. For a
// fixed top-1, it is non-decreasing in the gap: a clear best match earns
// more confidence than an ambiguous pair of near-equal scores.
func (r *Ranker) Confidence(top1, top2 float64) float64 {
	if top1 <= 0 {
		return 0
	}
	gap := top1 - top2
	if gap < 0 {
		gap = 0
	}
	gapFactor := math.Min(gap/r.cfg.GapRef, 1)
	return clamp01(top1) * (r.cfg.Floor + (1-r.cfg.Floor)*gapFactor)
}

func (r *Ranker) boost(e *Entry, tags []string) float64 {
	var b float64

	if len(tags) > 0 && e.Metadata != nil {
		indexed := e.Metadata["tags"]
		for _, t := range tags {
			if t != "" && containsTag(indexed, t) {
				b += r.cfg.TagBoost
			}
		}
	}

	if r.cfg.RecencyBoost > 0 && !e.IndexedAt.IsZero() {
		age := r.now().Sub(e.IndexedAt)
		b += r.cfg.RecencyBoost * math.Exp2(-age.Hours()/r.cfg.HalfLife.Hours())
	}

	return b
}

func containsTag(indexed, tag string) bool {
	for _, t := range splitTags(indexed) {
		if t == tag {
			return true
		}
	}
	return false
}

func splitTags(s string) []string {
	var out []string
	start := 0
	for i := 0; i <= len(s); i++ {
		if i == len(s) || s[i] == ',' {
			if i > start {
				out = append(out, s[start:i])
			}
			start = i + 1
		}
	}
	return out
}

func sortScored(scored []Scored) {
	// Insertion sort; the over-fetched candidate list is tiny.
	for i := 1; i < len(scored); i++ {
		for j := i; j > 0 && scored[j].Score > scored[j-1].Score; j-- {
			scored[j], scored[j-1] = scored[j-1], scored[j]
		}
	}
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
