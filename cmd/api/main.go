// Package main is the entry point for the support engine API server.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/helpdesk-ai/support-engine/internal/account"
	"github.com/helpdesk-ai/support-engine/internal/audit"
	"github.com/helpdesk-ai/support-engine/internal/chunking"
	"github.com/helpdesk-ai/support-engine/internal/config"
	"github.com/helpdesk-ai/support-engine/internal/embedding"
	"github.com/helpdesk-ai/support-engine/internal/escalation"
	"github.com/helpdesk-ai/support-engine/internal/handler"
	"github.com/helpdesk-ai/support-engine/internal/index"
	"github.com/helpdesk-ai/support-engine/internal/ingest"
	"github.com/helpdesk-ai/support-engine/internal/llm"
	"github.com/helpdesk-ai/support-engine/internal/middleware"
	natsclient "github.com/helpdesk-ai/support-engine/internal/nats"
	"github.com/helpdesk-ai/support-engine/internal/workflow"
	"github.com/helpdesk-ai/support-engine/pkg/logger"
	"github.com/helpdesk-ai/support-engine/pkg/tracing"
)

func main() {
	cfg := config.Load()

	log, err := logger.New(cfg.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	log.Info("starting support engine")

	ctx := context.Background()
	if cfg.TracingEnabled {
		tp, err := tracing.InitTracer(ctx, "support-engine", cfg.TracingEndpoint)
		if err != nil {
			log.Warn("failed to initialize tracing", zap.Error(err))
		} else {
			defer tracing.Shutdown(ctx, tp)
		}
	}

	// Connect to NATS and ensure the audit and escalation streams exist.
	natsClient, err := natsclient.Connect(ctx, natsclient.Config{
		URL:      cfg.NATSURL,
		CAFile:   cfg.NATSCAFile,
		CertFile: cfg.NATSCertFile,
		KeyFile:  cfg.NATSKeyFile,
		Token:    cfg.NATSToken,
	}, log)
	if err != nil {
		log.Error("failed to connect to NATS", zap.Error(err))
		os.Exit(1)
	}
	defer natsClient.Close()

	streams := natsclient.NewStreamManager(natsClient)
	if err := streams.EnsureStreams(ctx); err != nil {
		log.Error("failed to ensure streams", zap.Error(err))
		os.Exit(1)
	}

	// LLM client for classification, composition, and agentic chunking.
	provider := llm.Provider(cfg.DefaultLLM)
	apiKey := cfg.AnthropicAPIKey
	if provider == llm.ProviderOpenAI {
		apiKey = cfg.OpenAIAPIKey
	}
	llmClient, err := llm.NewClient(provider, apiKey)
	if err != nil {
		log.Error("failed to create LLM client", zap.Error(err))
		os.Exit(1)
	}

	embedder, err := embedding.NewGateway(cfg.OpenAIAPIKey, embedding.Config{
		Model:       cfg.EmbeddingModel,
		BatchSize:   cfg.EmbeddingBatchSize,
		MaxAttempts: cfg.EmbeddingMaxAttempts,
	}, log)
	if err != nil {
		log.Error("failed to create embedding gateway", zap.Error(err))
		os.Exit(1)
	}

	auditSink := audit.NewNATS(streams, 1024, log)
	defer auditSink.Close()

	vectorIndex := index.NewMemory()
	queryCache := index.NewQueryCache(cfg.QueryCacheSize, cfg.QueryCacheTTL)
	ranker := index.NewRanker(vectorIndex, embedder, queryCache, index.RankerConfig{
		TopK:         cfg.RetrievalTopK,
		TagBoost:     cfg.RetrievalTagBoost,
		RecencyBoost: cfg.RetrievalRecencyBoost,
		HalfLife:     cfg.RetrievalHalfLife,
		GapRef:       cfg.RetrievalGapRef,
		Floor:        cfg.RetrievalFloor,
	}, log)

	chunkCfg := chunking.Config{
		MinSize:          cfg.ChunkMinSize,
		MaxSize:          cfg.ChunkMaxSize,
		WindowSentences:  cfg.ChunkWindowSentences,
		OverlapSentences: cfg.ChunkOverlapSentences,
		BreakpointMode:   cfg.SemanticBreakpointMode,
		Percentile:       cfg.SemanticPercentile,
		IQRMultiplier:    cfg.SemanticIQRMultiplier,
	}
	chunkers := map[chunking.Strategy]chunking.Chunker{
		chunking.StrategySemantic: chunking.NewSemanticChunker(embedder, chunkCfg, log),
		chunking.StrategyAgentic:  chunking.NewAgenticChunker(llmClient, chunkCfg, log),
	}

	docStore := ingest.NewStore()
	pipeline := ingest.NewPipeline(docStore, chunkers, embedder, vectorIndex, queryCache, auditSink, ingest.Config{
		Workers:    cfg.IngestWorkers,
		QueueDepth: cfg.IngestQueueDepth,
	}, log)
	defer pipeline.Close()

	// Escalation: HTTP ticketing behind a circuit breaker, durable NATS
	// queue as the fallback, background redelivery loop.
	ticketing := escalation.NewHTTPTicketing(cfg.TicketingURL, cfg.TicketingToken, 10*time.Second)
	escalationQueue := escalation.NewNATSQueue(streams)
	manager := escalation.NewManager(ticketing, escalationQueue, escalation.Config{
		MaxAttempts: cfg.TicketMaxAttempts,
	}, log)

	redeliveryCtx, stopRedelivery := context.WithCancel(ctx)
	defer stopRedelivery()
	go manager.Run(redeliveryCtx)

	accounts := account.NewHTTPLookup(cfg.AccountServiceURL)
	convStore := workflow.NewConversationStore()
	limiter := workflow.NewUserLimiter(cfg.UserRatePerSecond, cfg.UserRateBurst)

	engine := workflow.NewEngine(convStore, llmClient, ranker, accounts, manager, auditSink, limiter, workflow.Config{
		ConfidenceThreshold: cfg.ConfidenceThreshold,
		RetrievalWeight:     cfg.ConfidenceRetrievalWeight,
		MessageDeadline:     cfg.MessageDeadline,
		MaxRewrites:         cfg.MaxRewrites,
	}, log)

	healthHandler := handler.NewHealthHandler(natsClient, vectorIndex)
	documentHandler := handler.NewDocumentHandler(pipeline, docStore, log)
	conversationHandler := handler.NewConversationHandler(convStore, log)
	messageHandler := handler.NewMessageHandler(engine, log)

	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.Logging(log))
	r.Use(middleware.SecurityHeaders)
	r.Use(chimiddleware.Recoverer)
	r.Use(middleware.CORS())

	r.Get("/health", healthHandler.Health)
	r.Get("/ready", healthHandler.Ready)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.Auth(cfg.JWTSecret))
		r.Use(middleware.RateLimit(cfg.RateLimitRequests, cfg.RateLimitWindow))

		r.Route("/documents", func(r chi.Router) {
			r.Use(middleware.RequireScope("documents:write"))
			r.Post("/", documentHandler.Submit)
			r.Put("/{id}", documentHandler.Resubmit)
			r.Get("/{id}", documentHandler.Status)
		})

		r.Post("/messages", messageHandler.Handle)

		r.Route("/conversations", func(r chi.Router) {
			r.Get("/", conversationHandler.List)
			r.Get("/{id}", conversationHandler.Get)
		})
	})

	server := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      r,
		ReadTimeout:  cfg.ServerReadTimeout,
		WriteTimeout: cfg.ServerWriteTimeout,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		log.Info("server listening", zap.String("port", cfg.ServerPort))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("server error", zap.Error(err))
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("server forced to shutdown", zap.Error(err))
	}

	log.Info("server stopped")
}
