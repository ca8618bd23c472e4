// Package config provides environment configuration for the support engine.
package config

import (
	"os"
	"strconv"
	"time"
)

// Config holds all configuration for the application.
type Config struct {
	// Server settings
	ServerPort         string
	ServerReadTimeout  time.Duration
	ServerWriteTimeout time.Duration

	// NATS settings
	NATSURL      string
	NATSCAFile   string
	NATSCertFile string
	NATSKeyFile  string
	NATSToken    string

	// JWT settings
	JWTSecret string

	// LLM settings
	AnthropicAPIKey string
	OpenAIAPIKey    string
	DefaultLLM      string

	// Embedding gateway
	EmbeddingModel       string
	EmbeddingBatchSize   int
	EmbeddingMaxAttempts int

	// Chunking
	ChunkMinSize           int
	ChunkMaxSize           int
	ChunkWindowSentences   int
	ChunkOverlapSentences  int
	SemanticBreakpointMode string // "percentile" or "iqr"
	SemanticPercentile     float64
	SemanticIQRMultiplier  float64

	// Retrieval
	RetrievalTopK         int
	RetrievalTagBoost     float64
	RetrievalRecencyBoost float64
	RetrievalHalfLife     time.Duration
	RetrievalGapRef       float64
	RetrievalFloor        float64
	QueryCacheSize        int
	QueryCacheTTL         time.Duration

	// Workflow
	ConfidenceThreshold       float64
	ConfidenceRetrievalWeight float64
	MessageDeadline           time.Duration
	MaxRewrites               int
	UserRatePerSecond         float64
	UserRateBurst             int

	// Ingestion
	IngestWorkers    int
	IngestQueueDepth int

	// Escalation
	TicketingURL      string
	TicketingToken    string
	TicketMaxAttempts int

	// Account lookup
	AccountServiceURL string

	// HTTP rate limiting
	RateLimitRequests int
	RateLimitWindow   time.Duration

	// Logging
	LogLevel string

	// Tracing
	TracingEndpoint string
	TracingEnabled  bool
}

// Load reads configuration from environment variables.
func Load() *Config {
	return &Config{
		// Server
		ServerPort:         getEnv("PORT", "8080"),
		ServerReadTimeout:  getDurationEnv("SERVER_READ_TIMEOUT", 30*time.Second),
		ServerWriteTimeout: getDurationEnv("SERVER_WRITE_TIMEOUT", 120*time.Second),

		// NATS
		NATSURL:      getEnv("NATS_URL", "nats://localhost:4222"),
		NATSCAFile:   getEnv("NATS_CA_FILE", ""),
		NATSCertFile: getEnv("NATS_CERT_FILE", ""),
		NATSKeyFile:  getEnv("NATS_KEY_FILE", ""),
		NATSToken:    getEnv("NATS_TOKEN", ""),

		// JWT
		JWTSecret: getEnv("JWT_SECRET", "development-secret-change-in-production"),

		// LLM
		AnthropicAPIKey: getEnv("ANTHROPIC_API_KEY", ""),
		OpenAIAPIKey:    getEnv("OPENAI_API_KEY", ""),
		DefaultLLM:      getEnv("DEFAULT_LLM", "anthropic"),

		// Embeddings
		EmbeddingModel:       getEnv("EMBEDDING_MODEL", "text-embedding-3-small"),
		EmbeddingBatchSize:   getIntEnv("EMBEDDING_BATCH_SIZE", 64),
		EmbeddingMaxAttempts: getIntEnv("EMBEDDING_MAX_ATTEMPTS", 4),

		// Chunking
		ChunkMinSize:           getIntEnv("CHUNK_MIN_SIZE", 200),
		ChunkMaxSize:           getIntEnv("CHUNK_MAX_SIZE", 2000),
		ChunkWindowSentences:   getIntEnv("CHUNK_WINDOW_SENTENCES", 3),
		ChunkOverlapSentences:  getIntEnv("CHUNK_OVERLAP_SENTENCES", 0),
		SemanticBreakpointMode: getEnv("SEMANTIC_BREAKPOINT_MODE", "iqr"),
		SemanticPercentile:     getFloatEnv("SEMANTIC_PERCENTILE", 90),
		SemanticIQRMultiplier:  getFloatEnv("SEMANTIC_IQR_MULTIPLIER", 1.5),

		// Retrieval
		RetrievalTopK:         getIntEnv("RETRIEVAL_TOP_K", 5),
		RetrievalTagBoost:     getFloatEnv("RETRIEVAL_TAG_BOOST", 0.05),
		RetrievalRecencyBoost: getFloatEnv("RETRIEVAL_RECENCY_BOOST", 0.03),
		RetrievalHalfLife:     getDurationEnv("RETRIEVAL_RECENCY_HALF_LIFE", 30*24*time.Hour),
		RetrievalGapRef:       getFloatEnv("RETRIEVAL_GAP_REFERENCE", 0.25),
		RetrievalFloor:        getFloatEnv("RETRIEVAL_CONFIDENCE_FLOOR", 0.6),
		QueryCacheSize:        getIntEnv("QUERY_CACHE_SIZE", 256),
		QueryCacheTTL:         getDurationEnv("QUERY_CACHE_TTL", 30*time.Second),

		// Workflow
		ConfidenceThreshold:       getFloatEnv("CONFIDENCE_THRESHOLD", 0.75),
		ConfidenceRetrievalWeight: getFloatEnv("CONFIDENCE_RETRIEVAL_WEIGHT", 0.5),
		MessageDeadline:           getDurationEnv("MESSAGE_DEADLINE", 30*time.Second),
		MaxRewrites:               getIntEnv("MAX_REWRITES", 2),
		UserRatePerSecond:         getFloatEnv("USER_RATE_PER_SECOND", 1),
		UserRateBurst:             getIntEnv("USER_RATE_BURST", 5),

		// Ingestion
		IngestWorkers:    getIntEnv("INGEST_WORKERS", 4),
		IngestQueueDepth: getIntEnv("INGEST_QUEUE_DEPTH", 64),

		// Escalation
		TicketingURL:      getEnv("TICKETING_URL", "http://localhost:9090"),
		TicketingToken:    getEnv("TICKETING_TOKEN", ""),
		TicketMaxAttempts: getIntEnv("TICKET_MAX_ATTEMPTS", 3),

		// Account lookup
		AccountServiceURL: getEnv("ACCOUNT_SERVICE_URL", "http://localhost:9091"),

		// HTTP rate limiting
		RateLimitRequests: getIntEnv("RATE_LIMIT_REQUESTS", 60),
		RateLimitWindow:   getDurationEnv("RATE_LIMIT_WINDOW", time.Minute),

		// Logging
		LogLevel: getEnv("LOG_LEVEL", "info"),

		// Tracing
		TracingEndpoint: getEnv("TRACING_ENDPOINT", "localhost:4318"),
		TracingEnabled:  getBoolEnv("TRACING_ENABLED", false),
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func getBoolEnv(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

func getFloatEnv(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

func getDurationEnv(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
