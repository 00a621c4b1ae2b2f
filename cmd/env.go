package cmd

import (
	"fmt"
	"os"

	"threatharvest/bootstrap"
	"threatharvest/classify"
	"threatharvest/config"
	"threatharvest/enrich"
	"threatharvest/ingest"
	"threatharvest/kb"
	"threatharvest/storage"
)

// cliEnv holds the components a one-shot CLI command needs.
type cliEnv struct {
	cfg     *config.Config
	service *enrich.Service
	threats *storage.ThreatStore
	runs    *storage.RunStore
}

// initEnv wires the pipeline for a one-shot command. The returned
// cleanup function closes storage and must be called before exit.
func initEnv() (*cliEnv, func(), error) {
	cfg, err := config.LoadConfig()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load config: %w", err)
	}

	level := cfg.Log.Level
	if quiet {
		level = "error"
	}
	logger, sugar, err := bootstrap.InitLogger(level, cfg.Log.Development)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to initialize logger: %w", err)
	}

	if err := os.MkdirAll(cfg.DataPaths.DataDir, 0o755); err != nil {
		return nil, nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	sqlite, err := storage.NewSQLite(cfg.DataPaths.SQLitePath, sugar)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to initialize SQLite: %w", err)
	}
	threats := storage.NewThreatStore(sqlite, sugar)
	runs := storage.NewRunStore(sqlite, sugar)

	accessor, err := kb.NewJSONAccessor(cfg.DataPaths.KnowledgeBasePath, sugar)
	if err != nil {
		_ = sqlite.Close()
		return nil, nil, fmt.Errorf("failed to open knowledge base: %w", err)
	}

	classifier, err := classify.NewClassifier(classify.Options{
		CategoryKeywordsFile: cfg.Classifier.CategoryKeywordsFile,
		VectorKeywordsFile:   cfg.Classifier.VectorKeywordsFile,
	}, sugar)
	if err != nil {
		_ = sqlite.Close()
		return nil, nil, fmt.Errorf("failed to initialize classifier: %w", err)
	}
	processor := classify.NewProcessor(classifier, sugar)

	adapters, err := ingest.BuildAdapters(cfg, sugar)
	if err != nil {
		_ = sqlite.Close()
		return nil, nil, fmt.Errorf("failed to build source adapters: %w", err)
	}

	service := enrich.NewService(adapters, processor, threats, runs, accessor, sugar)

	cleanup := func() {
		if err := accessor.Close(); err != nil {
			sugar.Warnf("Failed to close knowledge base during cleanup: %v", err)
		}
		if err := sqlite.Close(); err != nil {
			sugar.Warnf("Failed to close SQLite connection during cleanup: %v", err)
		}
		_ = logger.Sync()
	}

	return &cliEnv{cfg: cfg, service: service, threats: threats, runs: runs}, cleanup, nil
}
