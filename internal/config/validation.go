package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strings"
)

var (
	// ErrConfigNil indicates the configuration is nil.
	ErrConfigNil = errors.New("configuration is nil")

	// ErrMissingAPIKey indicates a required API key is missing.
	ErrMissingAPIKey = errors.New("missing API key")

	// ErrInvalidProvider indicates the AI provider is not supported.
	ErrInvalidProvider = errors.New("invalid provider")

	// ErrInvalidModelName indicates the model name is invalid.
	ErrInvalidModelName = errors.New("invalid model name")

	// ErrInvalidPostgresHost indicates the PostgreSQL host is invalid.
	ErrInvalidPostgresHost = errors.New("invalid PostgreSQL host")

	// ErrInvalidPostgresPort indicates the PostgreSQL port is out of range.
	ErrInvalidPostgresPort = errors.New("invalid PostgreSQL port")

	// ErrInvalidPostgresSSLMode indicates the PostgreSQL SSL mode is invalid.
	ErrInvalidPostgresSSLMode = errors.New("invalid PostgreSQL SSL mode")

	// ErrInvalidThreshold indicates a sufficiency constant is out of range.
	ErrInvalidThreshold = errors.New("invalid sufficiency threshold")

	// ErrInvalidTimeout indicates a timeout constant is non-positive.
	ErrInvalidTimeout = errors.New("invalid timeout")

	// ErrInvalidSearchURL indicates the web search base URL is invalid.
	ErrInvalidSearchURL = errors.New("invalid web search URL")
)

// validSSLModes are the sslmode values accepted by PostgreSQL.
var validSSLModes = map[string]struct{}{
	"disable": {}, "allow": {}, "prefer": {},
	"require": {}, "verify-ca": {}, "verify-full": {},
}

// Validate checks the configuration for consistency. Fail-fast: called
// from Load so a misconfigured process never starts serving.
func (c *Config) Validate() error {
	if c == nil {
		return ErrConfigNil
	}

	switch c.Provider {
	case ProviderGemini:
		if os.Getenv("GEMINI_API_KEY") == "" && os.Getenv("GOOGLE_API_KEY") == "" {
			return fmt.Errorf("%w: GEMINI_API_KEY required for provider %q", ErrMissingAPIKey, c.Provider)
		}
	case ProviderOllama:
		if c.OllamaHost == "" {
			return fmt.Errorf("%w: ollama_host required for provider %q", ErrInvalidProvider, c.Provider)
		}
	default:
		return fmt.Errorf("%w: %q (must be gemini or ollama)", ErrInvalidProvider, c.Provider)
	}

	if strings.TrimSpace(c.ModelName) == "" {
		return fmt.Errorf("%w: model name is empty", ErrInvalidModelName)
	}
	if strings.TrimSpace(c.EmbedderModel) == "" {
		return fmt.Errorf("%w: embedder model is empty", ErrInvalidModelName)
	}

	if strings.TrimSpace(c.PostgresHost) == "" {
		return fmt.Errorf("%w: host is empty", ErrInvalidPostgresHost)
	}
	if c.PostgresPort < 1 || c.PostgresPort > 65535 {
		return fmt.Errorf("%w: %d", ErrInvalidPostgresPort, c.PostgresPort)
	}
	if _, ok := validSSLModes[c.PostgresSSLMode]; !ok {
		return fmt.Errorf("%w: %q", ErrInvalidPostgresSSLMode, c.PostgresSSLMode)
	}

	if c.Retrieval.SimilarityThreshold < 0 || c.Retrieval.SimilarityThreshold > 1 {
		return fmt.Errorf("%w: similarity_threshold %v not in [0,1]", ErrInvalidThreshold, c.Retrieval.SimilarityThreshold)
	}
	if c.Retrieval.MinPassages < 1 {
		return fmt.Errorf("%w: min_passages %d must be >= 1", ErrInvalidThreshold, c.Retrieval.MinPassages)
	}
	if c.Retrieval.TopK < c.Retrieval.MinPassages {
		return fmt.Errorf("%w: top_k %d must be >= min_passages %d", ErrInvalidThreshold, c.Retrieval.TopK, c.Retrieval.MinPassages)
	}

	if c.WebSearch.TimeoutMS <= 0 {
		return fmt.Errorf("%w: websearch.timeout_ms %d", ErrInvalidTimeout, c.WebSearch.TimeoutMS)
	}
	if c.Compose.TimeoutMS <= 0 {
		return fmt.Errorf("%w: compose.timeout_ms %d", ErrInvalidTimeout, c.Compose.TimeoutMS)
	}

	if u, err := url.Parse(c.WebSearch.BaseURL); err != nil || (u.Scheme != "http" && u.Scheme != "https") {
		return fmt.Errorf("%w: %q", ErrInvalidSearchURL, c.WebSearch.BaseURL)
	}

	return nil
}
