package knowledge

import (
	"time"

	"github.com/google/uuid"
)

// Document is a single passage in the knowledge base.
type Document struct {
	ID       uuid.UUID
	Content  string
	Metadata map[string]string
	CreateAt time.Time
}

// Result is one search hit with its cosine similarity to the query.
type Result struct {
	Document   Document
	Similarity float32 // cosine similarity in [0, 1]
}

// SearchOption configures search behavior using the functional options pattern.
type SearchOption func(*searchConfig)

type searchConfig struct {
	topK    int
	filter  map[string]string
	timeout time.Duration
}

// WithTopK sets the maximum number of results to return. Default is 5.
func WithTopK(k int) SearchOption {
	return func(c *searchConfig) {
		c.topK = k
	}
}

// WithFilter restricts results to documents whose metadata contains the
// given key/value pair. Multiple calls combine with AND logic.
func WithFilter(key, value string) SearchOption {
	return func(c *searchConfig) {
		if c.filter == nil {
			c.filter = make(map[string]string)
		}
		c.filter[key] = value
	}
}

// WithTimeout overrides the per-search deadline. Default is 10 seconds.
func WithTimeout(d time.Duration) SearchOption {
	return func(c *searchConfig) {
		c.timeout = d
	}
}

func buildSearchConfig(opts []SearchOption) *searchConfig {
	cfg := &searchConfig{
		topK:    5,
		timeout: 10 * time.Second,
	}
	for _, opt := range opts {
		opt(cfg)
	}
	return cfg
}
