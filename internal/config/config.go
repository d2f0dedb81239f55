// Package config provides configuration types and loading for botrt.
package config

import "time"

// Config is the root configuration struct.
// Top-level groups: Paths, Storage, Database, Cache, Vector, Provider,
// Watcher, Scheduler, GenCache.
type Config struct {
	Paths     PathsConfig      `json:"paths"`
	Storage   StorageConfig    `json:"storage"`
	Database  DatabaseConfig   `json:"database"`
	Cache     CacheStoreConfig `json:"cache"`
	Vector    VectorConfig     `json:"vector"`
	Provider  ProviderConfig   `json:"provider"`
	Watcher   WatcherConfig    `json:"watcher"`
	Scheduler SchedulerConfig  `json:"scheduler"`
	GenCache  GenCacheConfig   `json:"genCache"`
}

// ---------------------------------------------------------------------------
// Paths – filesystem locations
// ---------------------------------------------------------------------------

// PathsConfig groups all filesystem path settings.
type PathsConfig struct {
	// WorkDir is the local working area where compiled script artifacts
	// are written, laid out as {bot}.gbai/{bot}.gbdialog/{tool}.*.
	WorkDir string `json:"workDir" envconfig:"WORK_DIR"`
}

// ---------------------------------------------------------------------------
// Storage – tenant object storage (S3-compatible)
// ---------------------------------------------------------------------------

// StorageConfig contains object storage connection settings.
type StorageConfig struct {
	Endpoint  string `json:"endpoint" envconfig:"STORAGE_ENDPOINT"`
	AccessKey string `json:"accessKey" envconfig:"STORAGE_ACCESS_KEY"`
	SecretKey string `json:"secretKey" envconfig:"STORAGE_SECRET_KEY"`
	UseSSL    bool   `json:"useSSL" envconfig:"STORAGE_USE_SSL"`
}

// ---------------------------------------------------------------------------
// Database – durable relational store
// ---------------------------------------------------------------------------

// DatabaseConfig contains settings for the sqlite store.
type DatabaseConfig struct {
	Path string `json:"path" envconfig:"DB_PATH"`
}

// ---------------------------------------------------------------------------
// Cache – ephemeral key-value store
// ---------------------------------------------------------------------------

// CacheStoreConfig contains redis connection settings for the ephemeral
// context and generation caches.
type CacheStoreConfig struct {
	Addr     string `json:"addr" envconfig:"CACHE_ADDR"`
	Password string `json:"password" envconfig:"CACHE_PASSWORD"`
	DB       int    `json:"db" envconfig:"CACHE_DB"`
}

// ---------------------------------------------------------------------------
// Vector – knowledge index
// ---------------------------------------------------------------------------

// VectorConfig contains qdrant connection settings.
type VectorConfig struct {
	URL       string `json:"url" envconfig:"VECTOR_URL"`
	APIKey    string `json:"apiKey" envconfig:"VECTOR_API_KEY"`
	Dimension int    `json:"dimension" envconfig:"VECTOR_DIMENSION"`
}

// ---------------------------------------------------------------------------
// Provider – LLM API
// ---------------------------------------------------------------------------

// ProviderConfig contains settings for the OpenAI-compatible LLM endpoint.
type ProviderConfig struct {
	APIKey         string `json:"apiKey" envconfig:"LLM_API_KEY"`
	APIBase        string `json:"apiBase" envconfig:"LLM_API_BASE"`
	Model          string `json:"model" envconfig:"LLM_MODEL"`
	EmbeddingModel string `json:"embeddingModel" envconfig:"LLM_EMBEDDING_MODEL"`
}

// ---------------------------------------------------------------------------
// Watcher – content change detection
// ---------------------------------------------------------------------------

// WatcherConfig contains settings for the content change watcher.
type WatcherConfig struct {
	Enabled      bool          `json:"enabled" envconfig:"WATCHER_ENABLED"`
	TickInterval time.Duration `json:"tickInterval" envconfig:"WATCHER_TICK_INTERVAL"`
}

// ---------------------------------------------------------------------------
// Scheduler – automation firing and history compaction
// ---------------------------------------------------------------------------

// SchedulerConfig contains settings for the automation scheduler.
type SchedulerConfig struct {
	Enabled        bool          `json:"enabled" envconfig:"SCHEDULER_ENABLED"`
	TickInterval   time.Duration `json:"tickInterval" envconfig:"SCHEDULER_TICK_INTERVAL"`
	Lookahead      time.Duration `json:"lookahead" envconfig:"SCHEDULER_LOOKAHEAD"`
	Debounce       time.Duration `json:"debounce" envconfig:"SCHEDULER_DEBOUNCE"`
	ScriptTimeout  time.Duration `json:"scriptTimeout" envconfig:"SCHEDULER_SCRIPT_TIMEOUT"`
	CompactInitial time.Duration `json:"compactInitial" envconfig:"COMPACT_INITIAL_DELAY"`
	CompactEvery   time.Duration `json:"compactEvery" envconfig:"COMPACT_INTERVAL"`
}

// ---------------------------------------------------------------------------
// GenCache – LLM response cache (static defaults; per-bot values from the
// bot_config table override these at request time)
// ---------------------------------------------------------------------------

// GenCacheConfig contains default settings for the generation cache.
type GenCacheConfig struct {
	Enabled             bool          `json:"enabled" envconfig:"GENCACHE_ENABLED"`
	TTL                 time.Duration `json:"ttl" envconfig:"GENCACHE_TTL"`
	SemanticMatching    bool          `json:"semanticMatching" envconfig:"GENCACHE_SEMANTIC"`
	SimilarityThreshold float64       `json:"similarityThreshold" envconfig:"GENCACHE_THRESHOLD"`
	MaxSimilarityChecks int           `json:"maxSimilarityChecks" envconfig:"GENCACHE_MAX_CHECKS"`
	KeyPrefix           string        `json:"keyPrefix" envconfig:"GENCACHE_KEY_PREFIX"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Paths: PathsConfig{
			WorkDir: "./work",
		},
		Storage: StorageConfig{
			Endpoint: "localhost:9000",
		},
		Database: DatabaseConfig{
			Path: "botrt.db",
		},
		Cache: CacheStoreConfig{
			Addr: "localhost:6379",
		},
		Vector: VectorConfig{
			URL:       "http://localhost:6334",
			Dimension: 1536,
		},
		Provider: ProviderConfig{
			APIBase:        "https://api.openai.com/v1",
			Model:          "gpt-4o-mini",
			EmbeddingModel: "text-embedding-3-small",
		},
		Watcher: WatcherConfig{
			Enabled:      true,
			TickInterval: 30 * time.Second,
		},
		Scheduler: SchedulerConfig{
			Enabled:        true,
			TickInterval:   5 * time.Second,
			Lookahead:      60 * time.Second,
			Debounce:       60 * time.Second,
			ScriptTimeout:  10 * time.Second,
			CompactInitial: 30 * time.Second,
			CompactEvery:   60 * time.Second,
		},
		GenCache: GenCacheConfig{
			Enabled:             true,
			TTL:                 time.Hour,
			SemanticMatching:    true,
			SimilarityThreshold: 0.95,
			MaxSimilarityChecks: 100,
			KeyPrefix:           "llm_cache",
		},
	}
}
