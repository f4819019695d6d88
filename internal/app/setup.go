package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/firebase/genkit/go/ai"
	"github.com/firebase/genkit/go/genkit"
	"github.com/firebase/genkit/go/plugins/googlegenai"
	"github.com/firebase/genkit/go/plugins/ollama"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/medigenius/medigenius/db"
	"github.com/medigenius/medigenius/internal/api"
	"github.com/medigenius/medigenius/internal/compose"
	"github.com/medigenius/medigenius/internal/config"
	"github.com/medigenius/medigenius/internal/knowledge"
	"github.com/medigenius/medigenius/internal/resolver"
	"github.com/medigenius/medigenius/internal/risk"
	"github.com/medigenius/medigenius/internal/session"
	"github.com/medigenius/medigenius/internal/websearch"
)

// Setup creates and initializes the application. The database and the
// generative model are required; the knowledge index and the risk scorer
// degrade to unavailable stand-ins on failure so the pipeline can still
// answer from its fallback paths.
func Setup(ctx context.Context, cfg *config.Config, logger *slog.Logger) (_ *App, retErr error) {
	if logger == nil {
		logger = slog.Default()
	}
	a := &App{Config: cfg, Logger: logger}

	// On error, release everything already initialized.
	defer func() {
		if retErr != nil {
			if err := a.Close(); err != nil {
				logger.Warn("cleanup during setup failure", "error", err)
			}
		}
	}()

	pool, err := provideDBPool(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	a.DBPool = pool

	g, err := provideGenkit(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	a.Genkit = g

	a.Embedder = provideEmbedder(g, cfg)
	if a.Embedder == nil {
		logger.Warn("embedder not available, knowledge index degraded",
			"provider", cfg.Provider, "embedder_model", cfg.EmbedderModel)
		a.Knowledge = knowledge.NewUnavailable(errors.New("embedder not registered"))
	} else {
		a.Knowledge = knowledge.New(pool, a.Embedder, logger)
	}

	scorer := provideScorer(logger)

	searcher, err := websearch.New(websearch.Config{
		BaseURL:    cfg.WebSearch.BaseURL,
		Timeout:    cfg.WebSearchTimeout(),
		MaxResults: cfg.WebSearch.MaxResults,
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("creating web searcher: %w", err)
	}

	composer, err := compose.New(g, compose.Config{
		ModelName: cfg.ModelName,
		Timeout:   cfg.ComposeTimeout(),
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("creating composer: %w", err)
	}

	a.Sessions = session.New(pool, logger)

	res, err := resolver.New(resolver.Config{
		Retriever: a.Knowledge,
		Extractor: risk.NewExtractor(),
		Scorer:    scorer,
		Fallback:  searcher,
		Composer:  composer,
		Turns:     a.Sessions,
		Policy: resolver.RetrievalPolicy{
			SimilarityThreshold: float32(cfg.Retrieval.SimilarityThreshold),
			MinPassages:         cfg.Retrieval.MinPassages,
			TopK:                cfg.Retrieval.TopK,
		},
		Logger: logger,
	})
	if err != nil {
		return nil, fmt.Errorf("creating resolver: %w", err)
	}
	a.Resolver = res

	server, err := api.NewServer(api.ServerConfig{
		Logger:       logger,
		Resolver:     res,
		SessionStore: a.Sessions,
		Pool:         pool,
		CORSOrigins:  cfg.CORSOrigins,
		TrustProxy:   cfg.TrustProxy,
		RateBurst:    cfg.RateBurst,
	})
	if err != nil {
		return nil, fmt.Errorf("creating api server: %w", err)
	}
	a.Server = server

	return a, nil
}

// provideDBPool runs migrations and creates the PostgreSQL connection pool.
func provideDBPool(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*pgxpool.Pool, error) {
	if err := db.Migrate(cfg.PostgresURL(), logger); err != nil {
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	poolCfg, err := pgxpool.ParseConfig(cfg.PostgresConnectionString())
	if err != nil {
		return nil, fmt.Errorf("parsing connection config: %w", err)
	}

	poolCfg.MaxConns = 10
	poolCfg.MinConns = 2
	poolCfg.MaxConnLifetime = 30 * time.Minute
	poolCfg.MaxConnIdleTime = 5 * time.Minute
	poolCfg.HealthCheckPeriod = 1 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("creating connection pool: %w", err)
	}

	pingCtx, pingCancel := context.WithTimeout(ctx, 5*time.Second)
	defer pingCancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	return pool, nil
}

// provideGenkit initializes Genkit with the configured AI provider plugin.
func provideGenkit(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*genkit.Genkit, error) {
	provider := cfg.Provider
	if provider == "" {
		provider = config.ProviderGemini
	}

	var g *genkit.Genkit

	switch provider {
	case config.ProviderOllama:
		ollamaPlugin := &ollama.Ollama{ServerAddress: cfg.OllamaHost}
		g = genkit.Init(ctx, genkit.WithPlugins(ollamaPlugin))
		if g == nil {
			return nil, errors.New("initializing genkit with ollama provider")
		}
		// Ollama requires explicit model registration.
		ollamaPlugin.DefineModel(g, ollama.ModelDefinition{
			Name: cfg.ModelName,
			Type: "chat",
		}, nil)
		ollamaPlugin.DefineEmbedder(g, cfg.OllamaHost, cfg.EmbedderModel, nil)
		logger.Info("initialized genkit with ollama provider",
			"model", cfg.ModelName, "host", cfg.OllamaHost)

	default: // gemini
		g = genkit.Init(ctx, genkit.WithPlugins(&googlegenai.GoogleAI{}))
		if g == nil {
			return nil, errors.New("initializing genkit with gemini provider")
		}
		logger.Info("initialized genkit with gemini provider", "model", cfg.ModelName)
	}

	return g, nil
}

// provideEmbedder looks up the embedder registered by the provider plugin.
// Ollama keys embedders by server address; Gemini by model name.
func provideEmbedder(g *genkit.Genkit, cfg *config.Config) ai.Embedder {
	if cfg.Provider == config.ProviderOllama {
		return ollama.Embedder(g, cfg.OllamaHost)
	}
	return googlegenai.GoogleAIEmbedder(g, cfg.EmbedderModel)
}

// provideScorer loads the embedded risk model, falling back to an
// unavailable stand-in so answers still flow without assessments.
func provideScorer(logger *slog.Logger) resolver.Scorer {
	scorer, err := risk.NewScorer()
	if err != nil {
		logger.Warn("risk scorer unavailable, assessments disabled", "error", err)
		return risk.NewUnavailableScorer(err)
	}
	return scorer
}
