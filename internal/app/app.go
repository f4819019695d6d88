// Package app assembles the application: configuration, database pool,
// Genkit, the resolution pipeline, and the HTTP API server.
package app

import (
	"log/slog"

	"github.com/firebase/genkit/go/ai"
	"github.com/firebase/genkit/go/genkit"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/medigenius/medigenius/internal/api"
	"github.com/medigenius/medigenius/internal/config"
	"github.com/medigenius/medigenius/internal/knowledge"
	"github.com/medigenius/medigenius/internal/resolver"
	"github.com/medigenius/medigenius/internal/session"
)

// App is the assembled application container.
type App struct {
	Config *config.Config
	Logger *slog.Logger

	Genkit   *genkit.Genkit
	Embedder ai.Embedder
	DBPool   *pgxpool.Pool

	Knowledge resolver.Retriever // *knowledge.Store, or *knowledge.Unavailable when the index cannot serve
	Sessions  *session.Store
	Resolver  *resolver.Resolver
	Server    *api.Server
}

// KnowledgeStore returns the writable knowledge store, or nil when the
// index is running degraded. Ingestion commands need the concrete store;
// the resolution pipeline does not.
func (a *App) KnowledgeStore() *knowledge.Store {
	store, ok := a.Knowledge.(*knowledge.Store)
	if !ok {
		return nil
	}
	return store
}

// Close releases all resources. Safe to call after a failed Setup.
func (a *App) Close() error {
	if a.Logger != nil {
		a.Logger.Info("shutting down application")
	}
	if a.DBPool != nil {
		a.DBPool.Close()
	}
	return nil
}
