// Package metrics exposes prometheus metrics for conversion runs and object
// store traffic.
package metrics

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/lancerane/CSVConverter-GCP/internal/storage"
)

const namespace = "csvconverter"

// Pipeline holds the metrics recorded by the orchestrator. A nil *Pipeline
// records nothing.
type Pipeline struct {
	registry *prometheus.Registry

	runsTotal     *prometheus.CounterVec
	runDuration   prometheus.Histogram
	filesTotal    *prometheus.CounterVec
	rowsTotal     prometheus.Counter
	storeDuration *prometheus.HistogramVec
	storeErrors   *prometheus.CounterVec
}

// New creates the metrics on a fresh registry that also carries the Go
// runtime and process collectors.
func New() (*Pipeline, error) {
	registry := prometheus.NewRegistry()
	p := &Pipeline{
		registry: registry,
		runsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "runs_total",
			Help:      "Conversion runs by result (success, partial, fatal).",
		}, []string{"result"}),
		runDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "run_duration_seconds",
			Help:      "Wall time of a conversion run.",
			Buckets:   prometheus.ExponentialBuckets(0.05, 2, 14),
		}),
		filesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "files_total",
			Help:      "Files processed by status and the stage a failure occurred in.",
		}, []string{"status", "stage"}),
		rowsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rows_total",
			Help:      "CSV rows written.",
		}),
		storeDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "store_operation_duration_seconds",
			Help:      "Object store call latency.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"op"}),
		storeErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "store_errors_total",
			Help:      "Failed object store calls.",
		}, []string{"op"}),
	}

	for _, c := range []prometheus.Collector{
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		p.runsTotal, p.runDuration, p.filesTotal, p.rowsTotal, p.storeDuration, p.storeErrors,
	} {
		if err := registry.Register(c); err != nil {
			return nil, fmt.Errorf("failed to register metrics: %w", err)
		}
	}
	return p, nil
}

// Registry returns the registry the metrics live in.
func (p *Pipeline) Registry() *prometheus.Registry {
	return p.registry
}

// Handler serves the registry in the prometheus exposition format.
func (p *Pipeline) Handler() http.Handler {
	return promhttp.HandlerFor(p.registry, promhttp.HandlerOpts{EnableOpenMetrics: true})
}

// ObserveRun records a finished run. result is one of "success",
// "partial" or "fatal".
func (p *Pipeline) ObserveRun(result string, d time.Duration) {
	if p == nil {
		return
	}
	p.runsTotal.WithLabelValues(result).Inc()
	p.runDuration.Observe(d.Seconds())
}

// ObserveFile records one file outcome. stage is empty for converted files.
func (p *Pipeline) ObserveFile(status, stage string, rows int) {
	if p == nil {
		return
	}
	if stage == "" {
		stage = "none"
	}
	p.filesTotal.WithLabelValues(status, stage).Inc()
	if rows > 0 {
		p.rowsTotal.Add(float64(rows))
	}
}

func (p *Pipeline) observeStore(op string, start time.Time, err error) {
	p.storeDuration.WithLabelValues(op).Observe(time.Since(start).Seconds())
	if err != nil {
		p.storeErrors.WithLabelValues(op).Inc()
	}
}

// InstrumentStore wraps store so every call is timed. With a nil p the
// store is returned unchanged.
func InstrumentStore(store storage.ObjectStorage, p *Pipeline) storage.ObjectStorage {
	if p == nil {
		return store
	}
	return &instrumentedStore{next: store, metrics: p}
}

type instrumentedStore struct {
	next    storage.ObjectStorage
	metrics *Pipeline
}

func (s *instrumentedStore) ListObjects(ctx context.Context, prefix string) ([]storage.ObjectInfo, error) {
	start := time.Now()
	objects, err := s.next.ListObjects(ctx, prefix)
	s.metrics.observeStore("list", start, err)
	return objects, err
}

func (s *instrumentedStore) DownloadObject(ctx context.Context, key, destPath string) error {
	start := time.Now()
	err := s.next.DownloadObject(ctx, key, destPath)
	s.metrics.observeStore("download", start, err)
	return err
}

func (s *instrumentedStore) UploadFile(ctx context.Context, srcPath, key string) error {
	start := time.Now()
	err := s.next.UploadFile(ctx, srcPath, key)
	s.metrics.observeStore("upload", start, err)
	return err
}

// Close closes the wrapped store when it holds resources.
func (s *instrumentedStore) Close() error {
	return storage.Close(s.next)
}

var _ storage.ObjectStorage = (*instrumentedStore)(nil)
