// Package config provides application configuration management with
// multi-source priority.
//
// Configuration sources (highest to lowest priority):
//  1. Environment variables (runtime override)
//  2. Config file (~/.medigenius/config.yaml, or ./config.yaml)
//  3. Default values
//
// Main configuration categories:
//   - AI: generative model and embedder selection
//   - Storage: PostgreSQL connection (see storage.go)
//   - Retrieval: sufficiency thresholds for the knowledge index
//   - WebSearch: fallback search timeout and result cap
//   - Compose: generation timeout
//
// Sensitive values (passwords, API keys) are never logged.
// Validation lives in validation.go with sentinel errors for errors.Is().
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/viper"
)

// AI provider identifiers used in Config.Provider.
const (
	ProviderGemini = "gemini"
	ProviderOllama = "ollama"
)

const (
	// DefaultGeminiEmbedderModel is the default Gemini embedder model.
	// gemini-embedding-001 supports truncation to 768 dimensions, matching
	// the pgvector schema in db/migrations.
	DefaultGeminiEmbedderModel = "gemini-embedding-001"

	// DefaultModelName is the default generative model.
	DefaultModelName = "gemini-2.5-flash"
)

// RetrievalConfig holds sufficiency policy constants for the knowledge index.
type RetrievalConfig struct {
	// SimilarityThreshold is the minimum top-result cosine similarity for
	// retrieval to count as sufficient.
	SimilarityThreshold float64 `mapstructure:"similarity_threshold"`

	// MinPassages is the minimum number of returned passages for retrieval
	// to count as sufficient.
	MinPassages int `mapstructure:"min_passages"`

	// TopK is the number of passages requested per query.
	TopK int `mapstructure:"top_k"`
}

// WebSearchConfig holds fallback web retriever settings.
type WebSearchConfig struct {
	// BaseURL is the search endpoint serving HTML results.
	BaseURL string `mapstructure:"base_url"`

	// TimeoutMS bounds one fallback search, in milliseconds.
	TimeoutMS int `mapstructure:"timeout_ms"`

	// MaxResults caps the number of parsed results.
	MaxResults int `mapstructure:"max_results"`
}

// ComposeConfig holds answer composition settings.
type ComposeConfig struct {
	// TimeoutMS bounds one generation call, in milliseconds. Composition is
	// the heaviest call in the pipeline, so this is deliberately generous.
	TimeoutMS int `mapstructure:"timeout_ms"`
}

// Config stores application configuration.
type Config struct {
	// AI provider and model configuration
	Provider      string `mapstructure:"provider"`
	ModelName     string `mapstructure:"model_name"`
	EmbedderModel string `mapstructure:"embedder_model"`
	OllamaHost    string `mapstructure:"ollama_host"`

	// Storage configuration (see storage.go)
	PostgresHost     string `mapstructure:"postgres_host"`
	PostgresPort     int    `mapstructure:"postgres_port"`
	PostgresUser     string `mapstructure:"postgres_user"`
	PostgresPassword string `mapstructure:"postgres_password"` // SENSITIVE: never logged
	PostgresDBName   string `mapstructure:"postgres_db_name"`
	PostgresSSLMode  string `mapstructure:"postgres_ssl_mode"`

	// Pipeline configuration
	Retrieval RetrievalConfig `mapstructure:"retrieval"`
	WebSearch WebSearchConfig `mapstructure:"websearch"`
	Compose   ComposeConfig   `mapstructure:"compose"`

	// Serve configuration
	ListenAddr  string   `mapstructure:"listen_addr"`
	CORSOrigins []string `mapstructure:"cors_origins"`
	TrustProxy  bool     `mapstructure:"trust_proxy"`
	RateBurst   int      `mapstructure:"rate_burst"`
}

// WebSearchTimeout returns the fallback search timeout as a duration.
func (c *Config) WebSearchTimeout() time.Duration {
	return time.Duration(c.WebSearch.TimeoutMS) * time.Millisecond
}

// ComposeTimeout returns the composition timeout as a duration.
func (c *Config) ComposeTimeout() time.Duration {
	return time.Duration(c.Compose.TimeoutMS) * time.Millisecond
}

// Load loads configuration.
// Priority: environment variables > configuration file > defaults.
func Load() (*Config, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("getting user home directory: %w", err)
	}

	configDir := filepath.Join(home, ".medigenius")
	if err := os.MkdirAll(configDir, 0o750); err != nil {
		return nil, fmt.Errorf("creating config directory: %w", err)
	}

	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(configDir)
	viper.AddConfigPath(".")

	setDefaults()
	bindEnvVariables()

	if err := viper.ReadInConfig(); err != nil {
		// Missing config file is fine; defaults apply.
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		slog.Debug("configuration file not found, using defaults",
			"search_paths", []string{configDir, "."})
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("parsing configuration: %w", err)
	}

	// DATABASE_URL takes priority over individual postgres_* settings.
	if err := cfg.parseDatabaseURL(); err != nil {
		return nil, fmt.Errorf("parsing DATABASE_URL: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating configuration: %w", err)
	}

	return &cfg, nil
}

// setDefaults sets all default configuration values.
func setDefaults() {
	// AI defaults
	viper.SetDefault("provider", ProviderGemini)
	viper.SetDefault("model_name", DefaultModelName)
	viper.SetDefault("embedder_model", DefaultGeminiEmbedderModel)
	viper.SetDefault("ollama_host", "http://localhost:11434")

	// PostgreSQL defaults (matching docker-compose.yml)
	viper.SetDefault("postgres_host", "localhost")
	viper.SetDefault("postgres_port", 5432)
	viper.SetDefault("postgres_user", "medigenius")
	viper.SetDefault("postgres_password", "medigenius_dev_password")
	viper.SetDefault("postgres_db_name", "medigenius")
	viper.SetDefault("postgres_ssl_mode", "disable")

	// Retrieval sufficiency policy
	viper.SetDefault("retrieval.similarity_threshold", 0.60)
	viper.SetDefault("retrieval.min_passages", 2)
	viper.SetDefault("retrieval.top_k", 4)

	// Fallback web search
	viper.SetDefault("websearch.base_url", "https://html.duckduckgo.com/html/")
	viper.SetDefault("websearch.timeout_ms", 8000)
	viper.SetDefault("websearch.max_results", 5)

	// Answer composition
	viper.SetDefault("compose.timeout_ms", 60000)

	// Serve defaults
	viper.SetDefault("listen_addr", "127.0.0.1:8080")
	viper.SetDefault("cors_origins", []string{"http://localhost:4200"})
	viper.SetDefault("trust_proxy", false)
	viper.SetDefault("rate_burst", 60)
}

// bindEnvVariables binds environment overrides explicitly.
// GEMINI_API_KEY is read directly by Genkit, not via Viper; Validate
// checks its presence when the gemini provider is selected.
func bindEnvVariables() {
	mustBind := func(key, envVar string) {
		if err := viper.BindEnv(key, envVar); err != nil {
			panic(fmt.Sprintf("BUG: failed to bind %q to %q: %v", key, envVar, err))
		}
	}

	mustBind("provider", "MEDIGENIUS_PROVIDER")
	mustBind("model_name", "MEDIGENIUS_MODEL_NAME")
	mustBind("embedder_model", "MEDIGENIUS_EMBEDDER_MODEL")
	mustBind("ollama_host", "MEDIGENIUS_OLLAMA_HOST")
	mustBind("listen_addr", "MEDIGENIUS_LISTEN_ADDR")
	mustBind("cors_origins", "MEDIGENIUS_CORS_ORIGINS")
	mustBind("trust_proxy", "MEDIGENIUS_TRUST_PROXY")
	mustBind("rate_burst", "MEDIGENIUS_RATE_BURST")
	mustBind("websearch.base_url", "MEDIGENIUS_WEBSEARCH_URL")
}
