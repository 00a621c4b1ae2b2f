// Package api exposes the enrichment pipeline over HTTP: triggering
// passes, querying stored threats and statistics, and inspecting the
// run audit trail.
package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"threatharvest/config"
	"threatharvest/core"
	"threatharvest/enrich"
	"threatharvest/storage"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// ThreatStorer is the query surface the API needs from threat storage.
type ThreatStorer interface {
	Latest(limit int) ([]core.ClassifiedRecord, error)
	Statistics() (*storage.Statistics, error)
}

// RunStorer is the query surface the API needs from run storage.
type RunStorer interface {
	ListRuns(limit int) ([]core.RunRecord, error)
	LastRun() (*core.RunRecord, error)
}

// Enricher triggers enrichment passes.
type Enricher interface {
	Run(ctx context.Context) (*enrich.Summary, error)
}

// API holds the HTTP server for the enrichment service.
type API struct {
	router   *mux.Router
	server   *http.Server
	enricher Enricher
	threats  ThreatStorer
	runs     RunStorer
	health   func() error
	logger   *zap.SugaredLogger
}

// NewAPI creates the API server and registers all routes.
func NewAPI(enricher Enricher, threats ThreatStorer, runs RunStorer,
	health func() error, cfg *config.Config, logger *zap.SugaredLogger) *API {
	a := &API{
		router:   mux.NewRouter(),
		enricher: enricher,
		threats:  threats,
		runs:     runs,
		health:   health,
		logger:   logger,
	}

	a.routes()

	a.server = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.API.Host, cfg.API.Port),
		Handler:      a.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 10 * time.Minute, // an enrichment pass can be slow
		IdleTimeout:  60 * time.Second,
	}
	return a
}

func (a *API) routes() {
	a.router.Use(a.requestIDMiddleware)

	v1 := a.router.PathPrefix("/api/v1").Subrouter()
	v1.HandleFunc("/enrichment/run", a.handleRunEnrichment).Methods(http.MethodPost)
	v1.HandleFunc("/enrichment/stats", a.handleStatistics).Methods(http.MethodGet)
	v1.HandleFunc("/enrichment/runs", a.handleListRuns).Methods(http.MethodGet)
	v1.HandleFunc("/enrichment/runs/last", a.handleLastRun).Methods(http.MethodGet)
	v1.HandleFunc("/threats/latest", a.handleLatestThreats).Methods(http.MethodGet)

	a.router.HandleFunc("/health", a.handleHealth).Methods(http.MethodGet)
	a.router.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)
}

// Handler returns the configured router, mainly for tests.
func (a *API) Handler() http.Handler {
	return a.router
}

// Start begins serving. It blocks until the server stops.
func (a *API) Start() error {
	a.logger.Infow("API server starting", "addr", a.server.Addr)
	if err := a.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("API server failed: %w", err)
	}
	return nil
}

// Shutdown drains in-flight requests and stops the server.
func (a *API) Shutdown(ctx context.Context) error {
	a.logger.Infow("API server shutting down")
	return a.server.Shutdown(ctx)
}
