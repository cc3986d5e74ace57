// Package app assembles the conversion pipeline from configuration. It is
// shared by the HTTP server and the command line tool.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/spf13/afero"

	"github.com/lancerane/CSVConverter-GCP/internal/config"
	"github.com/lancerane/CSVConverter-GCP/internal/inflight"
	"github.com/lancerane/CSVConverter-GCP/internal/metrics"
	"github.com/lancerane/CSVConverter-GCP/internal/pipeline"
	"github.com/lancerane/CSVConverter-GCP/internal/repository/postgres"
	"github.com/lancerane/CSVConverter-GCP/internal/storage"
	"github.com/lancerane/CSVConverter-GCP/pkg/logger"
)

// App holds the wired pipeline and the resources it owns.
type App struct {
	Orchestrator *pipeline.Orchestrator
	Metrics      *metrics.Pipeline
	// History is nil unless run history is enabled.
	History *postgres.RunRepository

	closers []func() error
}

// PipelineConfig converts the configured pipeline values.
func PipelineConfig(cfg config.PipelineConfig) (pipeline.Config, error) {
	delim, err := cfg.DelimiterRune()
	if err != nil {
		return pipeline.Config{}, err
	}
	return pipeline.Config{
		Bucket:    cfg.Bucket,
		Prefix:    cfg.Prefix,
		LocalRoot: cfg.LocalRoot,
		Delimiter: delim,
		Workers:   cfg.Workers,
		KeepLocal: cfg.KeepLocal,
		Strict:    cfg.Strict,
	}, nil
}

// New connects the object store, in-flight registry and (when enabled) the
// run history database, and builds an orchestrator over them. Local files
// are kept on fs; a nil fs means the OS filesystem.
func New(ctx context.Context, cfg *config.Config, fs afero.Fs) (*App, error) {
	if fs == nil {
		fs = afero.NewOsFs()
	}
	pcfg, err := PipelineConfig(cfg.Pipeline)
	if err != nil {
		return nil, err
	}

	a := &App{}
	ok := false
	defer func() {
		if !ok {
			_ = a.Close()
		}
	}()

	store, err := storage.New(ctx, cfg.Storage, pcfg.Bucket, fs)
	if err != nil {
		return nil, fmt.Errorf("object storage: %w", err)
	}
	a.closers = append(a.closers, func() error { return storage.Close(store) })

	registry, err := inflight.New(cfg.InFlight)
	if err != nil {
		return nil, fmt.Errorf("in-flight registry: %w", err)
	}
	if c, isCloser := registry.(io.Closer); isCloser {
		a.closers = append(a.closers, c.Close)
	}

	a.Metrics, err = metrics.New()
	if err != nil {
		return nil, fmt.Errorf("metrics: %w", err)
	}

	opts := []pipeline.Option{
		pipeline.WithRegistry(registry),
		pipeline.WithMetrics(a.Metrics),
	}

	if cfg.Database.Enabled {
		db, err := postgres.NewDB(ctx, cfg.Database)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, db.Close)

		repo := postgres.NewRunRepository(db)
		if err := repo.EnsureSchema(ctx); err != nil {
			return nil, err
		}
		a.History = repo
		opts = append(opts, pipeline.WithRecorder(repo))
	}

	a.Orchestrator = pipeline.NewOrchestrator(store, fs, pcfg, opts...)
	ok = true

	logger.Log.Info().
		Str("bucket", pcfg.Bucket).
		Str("prefix", pcfg.Prefix).
		Str("provider", cfg.Storage.Provider).
		Str("inflight", cfg.InFlight.Backend).
		Bool("history", a.History != nil).
		Int("workers", pcfg.Workers).
		Msg("Pipeline ready")
	return a, nil
}

// Close releases everything New opened, in reverse order.
func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}
