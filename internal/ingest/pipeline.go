package ingest

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/helpdesk-ai/support-engine/internal/audit"
	"github.com/helpdesk-ai/support-engine/internal/chunking"
	"github.com/helpdesk-ai/support-engine/internal/embedding"
	"github.com/helpdesk-ai/support-engine/internal/errdefs"
	"github.com/helpdesk-ai/support-engine/internal/index"
	"github.com/helpdesk-ai/support-engine/internal/model"
	"github.com/helpdesk-ai/support-engine/pkg/logger"
	"github.com/helpdesk-ai/support-engine/pkg/metrics"
)

// Config tunes the ingestion pipeline.
type Config struct {
	Workers     int
	QueueDepth  int
	EmbedFanOut int
}

var (
	errEmptyDocument   = errors.New("document produced no chunks")
	errUnknownStrategy = errors.New("unknown chunking strategy")
)

// Pipeline turns submitted documents into indexed chunks. Ingestion is
// all-or-nothing per document version: a failure discards every chunk
// produced so far and marks the document failed, never leaving a
// half-indexed version behind.
type Pipeline struct {
	store    *Store
	chunkers map[chunking.Strategy]chunking.Chunker
	embedder embedding.Embedder
	index    index.Index
	cache    *index.QueryCache
	sink     audit.Sink
	logger   *logger.Logger

	jobs     chan job
	docLocks sync.Map // document id -> *sync.Mutex
	wg       sync.WaitGroup
	fanOut   int
}

type job struct {
	documentID string
	version    int
}

// NewPipeline creates the ingestion pipeline. cache may be nil.
func NewPipeline(
	store *Store,
	chunkers map[chunking.Strategy]chunking.Chunker,
	embedder embedding.Embedder,
	idx index.Index,
	cache *index.QueryCache,
	sink audit.Sink,
	cfg Config,
	log *logger.Logger,
) *Pipeline {
	if cfg.Workers <= 0 {
		cfg.Workers = 4
	}
	if cfg.QueueDepth <= 0 {
		cfg.QueueDepth = 64
	}
	if cfg.EmbedFanOut <= 0 {
		cfg.EmbedFanOut = 2
	}

	p := &Pipeline{
		store:    store,
		chunkers: chunkers,
		embedder: embedder,
		index:    idx,
		cache:    cache,
		sink:     sink,
		logger:   log,
		jobs:     make(chan job, cfg.QueueDepth),
		fanOut:   cfg.EmbedFanOut,
	}

	for i := 0; i < cfg.Workers; i++ {
		p.wg.Add(1)
		go p.worker()
	}

	return p
}

// Submit registers a document and queues it for ingestion. Returns
// errdefs.ErrIngestionQueueFull when the bounded queue is at capacity.
func (p *Pipeline) Submit(content string, metadata map[string]string, strategy chunking.Strategy) (*model.Document, error) {
	doc := p.store.Create(content, metadata, string(strategy))
	if err := p.enqueue(job{documentID: doc.ID, version: doc.Version}); err != nil {
		p.store.SetStatus(doc.ID, doc.Version, model.IngestionFailed, err.Error())
		return nil, err
	}
	return doc, nil
}

// Resubmit queues a new version of an existing document. The new version
// supersedes the prior one atomically once indexed.
func (p *Pipeline) Resubmit(id, content string, metadata map[string]string) (*model.Document, error) {
	doc, err := p.store.Resubmit(id, content, metadata)
	if err != nil {
		return nil, err
	}
	if err := p.enqueue(job{documentID: doc.ID, version: doc.Version}); err != nil {
		p.store.SetStatus(doc.ID, doc.Version, model.IngestionFailed, err.Error())
		return nil, err
	}
	return doc, nil
}

func (p *Pipeline) enqueue(j job) error {
	select {
	case p.jobs <- j:
		metrics.IngestQueueDepth.Set(float64(len(p.jobs)))
		return nil
	default:
		return errdefs.ErrIngestionQueueFull
	}
}

// Close drains the queue and stops the workers.
func (p *Pipeline) Close() {
	close(p.jobs)
	p.wg.Wait()
}

func (p *Pipeline) worker() {
	defer p.wg.Done()
	for j := range p.jobs {
		metrics.IngestQueueDepth.Set(float64(len(p.jobs)))
		p.process(j)
	}
}

func (p *Pipeline) process(j job) {
	// Writes are serialized per document; different documents proceed in
	// parallel across workers.
	lockAny, _ := p.docLocks.LoadOrStore(j.documentID, &sync.Mutex{})
	lock := lockAny.(*sync.Mutex)
	lock.Lock()
	defer lock.Unlock()

	doc, err := p.store.Get(j.documentID)
	if err != nil || doc.Version != j.version {
		return // superseded while queued
	}

	log := p.logger.WithDocument(doc.ID, doc.Version)
	p.store.SetStatus(doc.ID, doc.Version, model.IngestionProcessing, "")

	chunker, ok := p.chunkers[chunking.ParseStrategy(doc.Strategy)]
	if !ok {
		p.fail(doc, log, &errdefs.IngestionError{DocumentID: doc.ID, Err: errUnknownStrategy})
		return
	}

	ctx := context.Background()

	chunks, err := chunker.Chunk(ctx, doc)
	if err != nil {
		p.fail(doc, log, &errdefs.IngestionError{DocumentID: doc.ID, Err: err})
		return
	}
	if len(chunks) == 0 {
		p.fail(doc, log, &errdefs.IngestionError{DocumentID: doc.ID, Err: errEmptyDocument})
		return
	}

	vectors, err := p.embedChunks(ctx, chunks)
	if err != nil {
		p.fail(doc, log, &errdefs.IngestionError{DocumentID: doc.ID, Err: err})
		return
	}

	if p.store.CurrentVersion(doc.ID) != doc.Version {
		return // superseded while processing; discard
	}

	now := time.Now()
	entries := make([]index.Entry, len(chunks))
	for i, ch := range chunks {
		entries[i] = index.Entry{
			ChunkID:    ch.ID,
			DocumentID: ch.DocumentID,
			Text:       ch.Text,
			Vector:     vectors[i],
			Metadata:   ch.Metadata,
			IndexedAt:  now,
		}
	}

	// One snapshot swap removes the superseded version and lands the new
	// one; in-flight queries see either version, never a mix.
	p.index.Replace(doc.ID, entries)
	if p.cache != nil {
		p.cache.Purge()
	}

	p.store.SetChunks(doc.ID, chunks)
	p.store.SetStatus(doc.ID, doc.Version, model.IngestionIndexed, "")

	metrics.DocumentsIngestedTotal.WithLabelValues(string(model.IngestionIndexed), doc.Strategy).Inc()
	metrics.ChunksPerDocument.Observe(float64(len(chunks)))

	p.sink.Append(model.AuditEntry{
		ID:   uuid.Must(uuid.NewV7()).String(),
		Kind: model.EventIngestion,
		Payload: map[string]any{
			"document_id": doc.ID,
			"version":     doc.Version,
			"status":      string(model.IngestionIndexed),
			"chunks":      len(chunks),
			"strategy":    doc.Strategy,
		},
		CreatedAt: time.Now(),
	})

	log.Info("document indexed", zap.Int("chunks", len(chunks)))
}

// embedChunks embeds chunk texts, fanning partitions out across a bounded
// number of concurrent gateway calls. Any failure aborts the whole version.
func (p *Pipeline) embedChunks(ctx context.Context, chunks []model.Chunk) ([][]float32, error) {
	texts := make([]string, len(chunks))
	for i, ch := range chunks {
		texts[i] = ch.Text
	}

	if p.fanOut <= 1 || len(texts) < p.fanOut*8 {
		return p.embedder.Embed(ctx, texts)
	}

	vectors := make([][]float32, len(texts))
	part := (len(texts) + p.fanOut - 1) / p.fanOut

	g, gctx := errgroup.WithContext(ctx)
	for start := 0; start < len(texts); start += part {
		start := start
		end := start + part
		if end > len(texts) {
			end = len(texts)
		}
		g.Go(func() error {
			vs, err := p.embedder.Embed(gctx, texts[start:end])
			if err != nil {
				return err
			}
			copy(vectors[start:end], vs)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return vectors, nil
}

func (p *Pipeline) fail(doc *model.Document, log *logger.Logger, err error) {
	p.store.SetStatus(doc.ID, doc.Version, model.IngestionFailed, err.Error())
	metrics.DocumentsIngestedTotal.WithLabelValues(string(model.IngestionFailed), doc.Strategy).Inc()

	p.sink.Append(model.AuditEntry{
		ID:   uuid.Must(uuid.NewV7()).String(),
		Kind: model.EventIngestion,
		Payload: map[string]any{
			"document_id": doc.ID,
			"version":     doc.Version,
			"status":      string(model.IngestionFailed),
			"error":       err.Error(),
		},
		CreatedAt: time.Now(),
	})

	log.Error("ingestion failed", zap.Error(err))
}
