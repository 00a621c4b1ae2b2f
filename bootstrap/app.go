// Package bootstrap wires the application together: configuration,
// logging, storage, the enrichment pipeline, the scheduler, and the
// API server.
package bootstrap

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"threatharvest/api"
	"threatharvest/classify"
	"threatharvest/config"
	"threatharvest/enrich"
	"threatharvest/ingest"
	"threatharvest/kb"
	"threatharvest/storage"

	"go.uber.org/zap"
)

// App holds the long-running application with all its components.
type App struct {
	Config *config.Config
	Logger *zap.Logger
	Sugar  *zap.SugaredLogger

	SQLite  *storage.SQLite
	Threats *storage.ThreatStore
	Runs    *storage.RunStore
	KB      kb.Accessor

	Service   *enrich.Service
	Scheduler *enrich.Scheduler
	APIServer *api.API

	serviceWg *sync.WaitGroup
}

// NewApp loads configuration and initializes all components. Nothing
// is started yet; call Start afterwards.
func NewApp(ctx context.Context) (*App, error) {
	app := &App{serviceWg: &sync.WaitGroup{}}

	cfg, err := config.LoadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: failed to load config: %v\n", err)
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	app.Config = cfg

	logger, sugar, err := InitLogger(cfg.Log.Level, cfg.Log.Development)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}
	app.Logger = logger
	app.Sugar = sugar

	sugar.Info("threatharvest starting...")
	sugar.Infow("Data paths configuration",
		"data_dir", cfg.DataPaths.DataDir,
		"sqlite_path", cfg.DataPaths.SQLitePath,
		"knowledge_base_path", cfg.DataPaths.KnowledgeBasePath)

	if err := os.MkdirAll(cfg.DataPaths.DataDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	sqlite, err := storage.NewSQLite(cfg.DataPaths.SQLitePath, sugar)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize SQLite: %w", err)
	}
	app.SQLite = sqlite
	app.Threats = storage.NewThreatStore(sqlite, sugar)
	app.Runs = storage.NewRunStore(sqlite, sugar)

	accessor, err := kb.NewJSONAccessor(cfg.DataPaths.KnowledgeBasePath, sugar)
	if err != nil {
		sqlite.Close()
		return nil, fmt.Errorf("failed to open knowledge base: %w", err)
	}
	app.KB = accessor

	classifier, err := classify.NewClassifier(classify.Options{
		CategoryKeywordsFile: cfg.Classifier.CategoryKeywordsFile,
		VectorKeywordsFile:   cfg.Classifier.VectorKeywordsFile,
	}, sugar)
	if err != nil {
		sqlite.Close()
		return nil, fmt.Errorf("failed to initialize classifier: %w", err)
	}
	processor := classify.NewProcessor(classifier, sugar)

	adapters, err := ingest.BuildAdapters(cfg, sugar)
	if err != nil {
		sqlite.Close()
		return nil, fmt.Errorf("failed to build source adapters: %w", err)
	}
	sugar.Infow("Source adapters initialized", "count", len(adapters))

	app.Service = enrich.NewService(adapters, processor, app.Threats, app.Runs, accessor, sugar)

	if cfg.Schedule.Enabled {
		scheduler, err := enrich.NewScheduler(app.Service, cfg.Schedule.Frequency, cfg.Schedule.Time, sugar)
		if err != nil {
			sqlite.Close()
			return nil, fmt.Errorf("failed to initialize scheduler: %w", err)
		}
		app.Scheduler = scheduler
	} else {
		sugar.Info("Scheduled enrichment disabled by configuration")
	}

	app.APIServer = api.NewAPI(app.Service, app.Threats, app.Runs, sqlite.HealthCheck, cfg, sugar)

	return app, nil
}

// Start starts the scheduler and the API server.
func (a *App) Start(ctx context.Context) error {
	if a.Scheduler != nil {
		if err := a.Scheduler.Start(ctx); err != nil {
			return fmt.Errorf("failed to start scheduler: %w", err)
		}
	}

	a.serviceWg.Add(1)
	go func() {
		defer a.serviceWg.Done()
		if err := a.APIServer.Start(); err != nil {
			a.Sugar.Errorw("API server error", "error", err)
		}
	}()

	return nil
}

// WaitForShutdown blocks until a shutdown signal is received.
func (a *App) WaitForShutdown() {
	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt, syscall.SIGTERM)
	<-c
}

// Shutdown gracefully stops all components: the scheduler first so no
// new pass starts, then the API server, then storage.
func (a *App) Shutdown() {
	a.Sugar.Info("Shutting down...")

	if a.Scheduler != nil {
		a.Scheduler.Stop()
	}

	if a.APIServer != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := a.APIServer.Shutdown(ctx); err != nil {
			a.Sugar.Errorw("Failed to stop API server", "error", err)
		}
	}

	done := make(chan struct{})
	go func() {
		a.serviceWg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(10 * time.Second):
		a.Sugar.Warn("Service goroutine shutdown timed out")
	}

	if a.KB != nil {
		if err := a.KB.Close(); err != nil {
			a.Sugar.Errorw("Failed to close knowledge base", "error", err)
		}
	}
	if a.SQLite != nil {
		if err := a.SQLite.Close(); err != nil {
			a.Sugar.Errorw("Failed to close SQLite connection", "error", err)
		}
	}

	a.Sugar.Info("Shutdown complete")
	_ = a.Logger.Sync()
}
