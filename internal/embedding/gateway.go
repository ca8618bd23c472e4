// Package embedding provides the gateway to the external embedding provider.
package embedding

import (
	"context"
	"errors"
	"fmt"

	"github.com/cenkalti/backoff/v4"
	"github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"github.com/helpdesk-ai/support-engine/internal/errdefs"
	"github.com/helpdesk-ai/support-engine/pkg/logger"
	"github.com/helpdesk-ai/support-engine/pkg/metrics"
)

// Embedder converts texts into fixed-length vectors. Implementations batch
// internally and retry transient provider failures; on persistent failure
// they return an error rather than zero vectors.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
	Model() string
}

// Config configures the gateway.
type Config struct {
	Model       string
	BatchSize   int
	MaxAttempts int
}

// Gateway is the OpenAI-backed embedder.
type Gateway struct {
	client      *openai.Client
	model       string
	batchSize   int
	maxAttempts int
	logger      *logger.Logger
}

// NewGateway creates a new embedding gateway.
func NewGateway(apiKey string, cfg Config, log *logger.Logger) (*Gateway, error) {
	if apiKey == "" {
		return nil, errors.New("OpenAI API key is required for embeddings")
	}
	if cfg.Model == "" {
		cfg.Model = string(openai.SmallEmbedding3)
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 64
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 4
	}

	return &Gateway{
		client:      openai.NewClient(apiKey),
		model:       cfg.Model,
		batchSize:   cfg.BatchSize,
		maxAttempts: cfg.MaxAttempts,
		logger:      log,
	}, nil
}

// Model returns the provider/model identifier used to produce vectors.
func (g *Gateway) Model() string {
	return g.model
}

// Embed returns one vector per input text, in order. Requests are split into
// batches; each batch is retried with exponential backoff and jitter up to
// the configured attempt count.
func (g *Gateway) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	vectors := make([][]float32, 0, len(texts))
	for start := 0; start < len(texts); start += g.batchSize {
		end := start + g.batchSize
		if end > len(texts) {
			end = len(texts)
		}

		batch, err := g.embedBatch(ctx, texts[start:end])
		if err != nil {
			return nil, err
		}
		vectors = append(vectors, batch...)
	}

	return vectors, nil
}

func (g *Gateway) embedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	var vectors [][]float32
	attempts := 0

	op := func() error {
		attempts++
		resp, err := g.client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
			Input: texts,
			Model: openai.EmbeddingModel(g.model),
		})
		if err != nil {
			metrics.EmbeddingRequestsTotal.WithLabelValues(g.model, "error").Inc()
			g.logger.Warn("embedding batch failed",
				zap.Int("attempt", attempts),
				zap.Int("batch_size", len(texts)),
				zap.Error(err),
			)
			return err
		}
		if len(resp.Data) != len(texts) {
			metrics.EmbeddingRequestsTotal.WithLabelValues(g.model, "error").Inc()
			return fmt.Errorf("provider returned %d vectors for %d inputs", len(resp.Data), len(texts))
		}

		vectors = make([][]float32, len(resp.Data))
		for i, d := range resp.Data {
			vectors[i] = d.Embedding
		}
		metrics.EmbeddingRequestsTotal.WithLabelValues(g.model, "success").Inc()
		return nil
	}

	bo := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewExponentialBackOff(), uint64(g.maxAttempts-1)),
		ctx,
	)
	if err := backoff.Retry(op, bo); err != nil {
		return nil, &errdefs.EmbeddingError{Attempts: attempts, Err: err}
	}

	return vectors, nil
}
