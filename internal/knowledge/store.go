// Package knowledge stores reference passages and serves semantic search
// over them using PostgreSQL with the pgvector extension.
package knowledge

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/firebase/genkit/go/ai"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pgvector/pgvector-go"
)

// ErrUnavailable reports that the vector index cannot be reached.
// Callers treat it as a degraded-mode signal rather than a hard failure.
var ErrUnavailable = errors.New("knowledge: index unavailable")

var errEmptyEmbedding = errors.New("empty embedding returned")

// Querier is the subset of pgx pool operations the store needs.
// Defined on the consumer side so tests can substitute a fake.
type Querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Store manages knowledge documents with vector search.
// It is safe for concurrent use by multiple goroutines.
type Store struct {
	db       Querier
	embedder ai.Embedder
	logger   *slog.Logger
}

// New creates a Store backed by the given querier and embedder.
func New(db Querier, embedder ai.Embedder, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{
		db:       db,
		embedder: embedder,
		logger:   logger,
	}
}

// Add embeds the document content and upserts it into the index.
func (s *Store) Add(ctx context.Context, doc Document) error {
	embedding, err := s.embed(ctx, doc.Content)
	if err != nil {
		return fmt.Errorf("failed to embed document %q: %w", doc.ID, err)
	}

	metadata := doc.Metadata
	if metadata == nil {
		metadata = map[string]string{}
	}
	metadataJSON, err := json.Marshal(metadata)
	if err != nil {
		return fmt.Errorf("failed to marshal metadata: %w", err)
	}

	createdAt := doc.CreateAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}

	const upsert = `
		INSERT INTO documents (id, content, metadata, embedding, created_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (id) DO UPDATE
		SET content = EXCLUDED.content,
		    metadata = EXCLUDED.metadata,
		    embedding = EXCLUDED.embedding`
	if _, err := s.db.Exec(ctx, upsert, doc.ID, doc.Content, metadataJSON, embedding, createdAt); err != nil {
		return fmt.Errorf("failed to upsert document %q: %w", doc.ID, err)
	}

	s.logger.Debug("added document", "id", doc.ID, "content_length", len(doc.Content))
	return nil
}

// Search returns the documents most similar to the query, ordered by
// non-increasing similarity. An unreachable database yields ErrUnavailable.
func (s *Store) Search(ctx context.Context, query string, opts ...SearchOption) ([]Result, error) {
	cfg := buildSearchConfig(opts)

	queryCtx, cancel := context.WithTimeout(ctx, cfg.timeout)
	defer cancel()

	embedding, err := s.embed(queryCtx, query)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, fmt.Errorf("embedding generation timeout: %w", err)
		}
		return nil, fmt.Errorf("failed to embed query: %w", err)
	}

	// Filter metadata always goes through json.Marshal and a bind
	// parameter, never string concatenation.
	var rows pgx.Rows
	if len(cfg.filter) > 0 {
		filterJSON, marshalErr := json.Marshal(cfg.filter)
		if marshalErr != nil {
			return nil, fmt.Errorf("failed to marshal filter: %w", marshalErr)
		}
		const filtered = `
			SELECT id, content, metadata, created_at,
			       1 - (embedding <=> $1) AS similarity
			FROM documents
			WHERE metadata @> $2
			ORDER BY embedding <=> $1
			LIMIT $3`
		rows, err = s.db.Query(queryCtx, filtered, embedding, filterJSON, cfg.topK)
	} else {
		const all = `
			SELECT id, content, metadata, created_at,
			       1 - (embedding <=> $1) AS similarity
			FROM documents
			ORDER BY embedding <=> $1
			LIMIT $2`
		rows, err = s.db.Query(queryCtx, all, embedding, cfg.topK)
	}
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, fmt.Errorf("search query timeout: %w", err)
		}
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer rows.Close()

	results, err := s.scanResults(rows)
	if err != nil {
		return nil, fmt.Errorf("search failed: %w", err)
	}
	return results, nil
}

// Count returns the number of indexed documents matching the filter,
// or all documents when the filter is empty.
func (s *Store) Count(ctx context.Context, filter map[string]string) (int, error) {
	var count int64
	var err error

	if len(filter) > 0 {
		filterJSON, marshalErr := json.Marshal(filter)
		if marshalErr != nil {
			return 0, fmt.Errorf("failed to marshal filter: %w", marshalErr)
		}
		err = s.db.QueryRow(ctx, `SELECT count(*) FROM documents WHERE metadata @> $1`, filterJSON).Scan(&count)
	} else {
		err = s.db.QueryRow(ctx, `SELECT count(*) FROM documents`).Scan(&count)
	}
	if err != nil {
		return 0, fmt.Errorf("count failed: %w", err)
	}
	return int(count), nil
}

// Delete removes a document from the index.
func (s *Store) Delete(ctx context.Context, docID string) error {
	if _, err := s.db.Exec(ctx, `DELETE FROM documents WHERE id = $1`, docID); err != nil {
		return fmt.Errorf("failed to delete document %q: %w", docID, err)
	}
	s.logger.Debug("deleted document", "id", docID)
	return nil
}

func (s *Store) embed(ctx context.Context, text string) (pgvector.Vector, error) {
	resp, err := s.embedder.Embed(ctx, &ai.EmbedRequest{
		Input: []*ai.Document{
			{Content: []*ai.Part{ai.NewTextPart(text)}},
		},
	})
	if err != nil {
		return pgvector.Vector{}, err
	}
	if len(resp.Embeddings) == 0 || len(resp.Embeddings[0].Embedding) == 0 {
		return pgvector.Vector{}, errEmptyEmbedding
	}
	return pgvector.NewVector(resp.Embeddings[0].Embedding), nil
}

func (s *Store) scanResults(rows pgx.Rows) ([]Result, error) {
	var results []Result
	for rows.Next() {
		var (
			r            Result
			metadataJSON []byte
		)
		if err := rows.Scan(&r.Document.ID, &r.Document.Content, &metadataJSON, &r.Document.CreateAt, &r.Similarity); err != nil {
			return nil, err
		}
		if err := json.Unmarshal(metadataJSON, &r.Document.Metadata); err != nil {
			s.logger.Warn("failed to parse metadata", "document_id", r.Document.ID, "error", err)
			r.Document.Metadata = map[string]string{}
		}
		results = append(results, r)
	}
	return results, rows.Err()
}
