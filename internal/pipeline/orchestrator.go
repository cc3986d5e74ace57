package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/afero"
	"golang.org/x/sync/errgroup"

	"github.com/lancerane/CSVConverter-GCP/internal/csvconv"
	"github.com/lancerane/CSVConverter-GCP/internal/inflight"
	"github.com/lancerane/CSVConverter-GCP/internal/metrics"
	"github.com/lancerane/CSVConverter-GCP/internal/mirror"
	"github.com/lancerane/CSVConverter-GCP/internal/storage"
	"github.com/lancerane/CSVConverter-GCP/pkg/logger"
)

// Orchestrator runs the list, mirror, download, convert and upload steps
// over the logs below a prefix. One Orchestrator serves any number of
// concurrent runs.
type Orchestrator struct {
	store    storage.ObjectStorage
	fs       afero.Fs
	mirror   *mirror.Mirror
	cfg      Config
	registry inflight.Registry
	recorder RunRecorder
	metrics  *metrics.Pipeline
	log      zerolog.Logger
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithRegistry sets the registry used to claim keys before processing.
func WithRegistry(r inflight.Registry) Option {
	return func(o *Orchestrator) { o.registry = r }
}

// WithRecorder sets where runs are recorded.
func WithRecorder(r RunRecorder) Option {
	return func(o *Orchestrator) { o.recorder = r }
}

// WithMetrics enables prometheus metrics.
func WithMetrics(m *metrics.Pipeline) Option {
	return func(o *Orchestrator) { o.metrics = m }
}

// WithLogger replaces the component logger.
func WithLogger(l zerolog.Logger) Option {
	return func(o *Orchestrator) { o.log = l }
}

// NewOrchestrator creates a new Orchestrator. Local files live on fs below
// cfg.LocalRoot.
func NewOrchestrator(store storage.ObjectStorage, fs afero.Fs, cfg Config, opts ...Option) *Orchestrator {
	if cfg.Delimiter == 0 {
		cfg.Delimiter = csvconv.DefaultDelimiter
	}
	if cfg.Workers < 1 {
		cfg.Workers = 1
	}
	o := &Orchestrator{
		fs:       fs,
		mirror:   mirror.New(fs, cfg.LocalRoot),
		cfg:      cfg,
		registry: inflight.NewMemoryRegistry(),
		recorder: NewNoopRecorder(),
		log:      logger.Component("pipeline"),
	}
	for _, opt := range opts {
		opt(o)
	}
	o.store = metrics.InstrumentStore(store, o.metrics)
	return o
}

// Config returns the configuration the orchestrator runs with.
func (o *Orchestrator) Config() Config {
	return o.cfg
}

// Run executes one full pass. Failing to list the prefix or to mirror a
// listed key aborts the run with a *StageError; every other failure is
// recorded against its file in the returned Report.
func (o *Orchestrator) Run(ctx context.Context) (*Report, error) {
	report := &Report{StartedAt: time.Now()}
	run := &Run{
		Bucket:    o.cfg.Bucket,
		Prefix:    o.cfg.Prefix,
		Status:    RunStatusProcessing,
		StartedAt: report.StartedAt,
	}
	if err := o.recorder.StartRun(ctx, run); err != nil {
		o.log.Warn().Err(err).Msg("failed to record run start")
	}
	report.RunID = run.ID

	log := o.log.With().Int64("run_id", run.ID).Str("bucket", o.cfg.Bucket).Str("prefix", o.cfg.Prefix).Logger()
	log.Info().Msg("starting conversion run")

	err := o.run(ctx, report, run.ID, log)
	report.Duration = time.Since(report.StartedAt)

	run.ListedKeys = report.Listed
	run.TotalFiles = report.Total
	run.Converted = report.Succeeded
	for _, out := range report.Outcomes {
		run.TotalRows += out.Rows
	}
	completed := time.Now()
	run.CompletedAt = &completed

	result := "success"
	if err != nil {
		run.Status = RunStatusFailed
		run.ErrorMessage = err.Error()
		result = "fatal"
		log.Error().Err(err).Dur("duration", report.Duration).Msg("conversion run aborted")
	} else {
		run.Status = report.Status()
		if run.Status == RunStatusPartial {
			result = "partial"
		}
		log.Info().
			Int("converted", report.Succeeded).
			Int("total", report.Total).
			Dur("duration", report.Duration).
			Msg(report.Summary())
	}
	o.metrics.ObserveRun(result, report.Duration)

	// the request may be gone; the history row should still be closed
	if err := o.recorder.FinishRun(context.WithoutCancel(ctx), run); err != nil {
		log.Warn().Err(err).Msg("failed to record run completion")
	}

	if err != nil {
		return nil, err
	}
	return report, nil
}

func (o *Orchestrator) run(ctx context.Context, report *Report, runID int64, log zerolog.Logger) error {
	objects, err := o.store.ListObjects(ctx, o.cfg.Prefix)
	if err != nil {
		return &StageError{Stage: StageList, Err: err}
	}
	report.Listed = len(objects)

	var selected []Outcome
	for _, obj := range objects {
		localPath, err := o.mirror.Prepare(obj.Key)
		if err != nil {
			return &StageError{Stage: StageMirror, Key: obj.Key, Err: err}
		}
		if mirror.IsEligible(obj.Key) {
			selected = append(selected, newOutcome(obj.Key, localPath))
		} else {
			log.Debug().Str("key", obj.Key).Msg("skipping key")
		}
	}
	report.Total = len(selected)
	log.Info().Int("listed", report.Listed).Int("selected", report.Total).Msg("listed objects")

	report.Outcomes = selected
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(o.cfg.Workers)
	for i := range report.Outcomes {
		out := &report.Outcomes[i]
		g.Go(func() error {
			o.processFile(gctx, out, log)
			if err := o.recorder.RecordFile(context.WithoutCancel(gctx), runID, *out); err != nil {
				log.Warn().Err(err).Str("key", out.Key).Msg("failed to record file outcome")
			}
			o.metrics.ObserveFile(string(out.Status), string(out.Stage), out.Rows)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return fmt.Errorf("worker pool: %w", err)
	}

	for _, out := range report.Outcomes {
		if out.Succeeded() {
			report.Succeeded++
		}
	}
	return nil
}
