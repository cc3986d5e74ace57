package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/lancerane/CSVConverter-GCP/internal/blockfmt"
	"github.com/lancerane/CSVConverter-GCP/internal/mirror"
)

// Config holds the values an Orchestrator is constructed with.
type Config struct {
	Bucket    string
	Prefix    string
	LocalRoot string
	Delimiter rune
	// Workers bounds how many files are processed at once. Values below 1
	// mean one file at a time, in listing order.
	Workers int
	// KeepLocal leaves the downloaded log and its CSV under LocalRoot after
	// a successful upload.
	KeepLocal bool
	// Strict fails conversions of logs that do not end cleanly.
	Strict bool
}

// DefaultConfig returns the deployment defaults.
func DefaultConfig() Config {
	return Config{
		Bucket:    "edd23232",
		Prefix:    "unprocessed",
		LocalRoot: "/r",
		Delimiter: ',',
		Workers:   1,
		KeepLocal: true,
	}
}

// Stage names the step of a run an error happened in.
type Stage string

const (
	StageList     Stage = "list"
	StageMirror   Stage = "mirror"
	StageClaim    Stage = "claim"
	StageDownload Stage = "download"
	StageConvert  Stage = "convert"
	StageUpload   Stage = "upload"
)

// StageError ties an error to the stage and key it happened at.
type StageError struct {
	Stage Stage
	Key   string
	Err   error
}

func (e *StageError) Error() string {
	if e.Key == "" {
		return fmt.Sprintf("%s: %v", e.Stage, e.Err)
	}
	return fmt.Sprintf("%s %s: %v", e.Stage, e.Key, e.Err)
}

func (e *StageError) Unwrap() error { return e.Err }

// FailedStage returns the stage recorded in err, or "" if there is none.
func FailedStage(err error) Stage {
	var se *StageError
	if errors.As(err, &se) {
		return se.Stage
	}
	return ""
}

// FileStatus is the result of processing one file.
type FileStatus string

const (
	FileStatusConverted FileStatus = "converted"
	FileStatusFailed    FileStatus = "failed"
)

// RunStatus represents the state of a run.
type RunStatus string

const (
	RunStatusProcessing RunStatus = "processing"
	RunStatusCompleted  RunStatus = "completed"
	RunStatusPartial    RunStatus = "partial"
	RunStatusFailed     RunStatus = "failed"
)

// Outcome is the result for one selected file.
type Outcome struct {
	Key         string
	LocalPath   string
	ArtifactKey string
	Status      FileStatus
	// Stage is set for failed files.
	Stage    Stage
	Err      error
	Rows     int
	End      blockfmt.EndReason
	Duration time.Duration
}

// Succeeded reports whether the file was converted and uploaded.
func (o Outcome) Succeeded() bool {
	return o.Status == FileStatusConverted
}

func newOutcome(key, localPath string) Outcome {
	return Outcome{
		Key:         key,
		LocalPath:   localPath,
		ArtifactKey: mirror.ArtifactPath(key),
		Status:      FileStatusFailed,
	}
}

// Report aggregates one run. Outcomes are in listing order.
type Report struct {
	RunID     int64
	Listed    int
	Total     int
	Succeeded int
	Outcomes  []Outcome
	StartedAt time.Time
	Duration  time.Duration
}

// Summary renders the one-line result of the run.
func (r *Report) Summary() string {
	if r.Succeeded == r.Total {
		return fmt.Sprintf("Success: %d of %d files converted", r.Total, r.Total)
	}
	return fmt.Sprintf("Error: only %d of %d files converted", r.Succeeded, r.Total)
}

// Status classifies the run for the run history.
func (r *Report) Status() RunStatus {
	if r.Succeeded == r.Total {
		return RunStatusCompleted
	}
	return RunStatusPartial
}

// Failed returns the outcomes of the files that were not converted.
func (r *Report) Failed() []Outcome {
	var failed []Outcome
	for _, o := range r.Outcomes {
		if !o.Succeeded() {
			failed = append(failed, o)
		}
	}
	return failed
}

// Run is one execution of the pipeline as kept in the run history.
type Run struct {
	ID           int64
	Bucket       string
	Prefix       string
	Status       RunStatus
	ListedKeys   int
	TotalFiles   int
	Converted    int
	TotalRows    int
	StartedAt    time.Time
	CompletedAt  *time.Time
	ErrorMessage string
}

// RunRecorder persists runs and their file outcomes. Recording errors are
// logged by the orchestrator and never fail a run.
type RunRecorder interface {
	StartRun(ctx context.Context, run *Run) error
	RecordFile(ctx context.Context, runID int64, outcome Outcome) error
	FinishRun(ctx context.Context, run *Run) error
}

type noopRecorder struct{}

// NewNoopRecorder returns a RunRecorder that keeps nothing.
func NewNoopRecorder() RunRecorder {
	return noopRecorder{}
}

func (noopRecorder) StartRun(context.Context, *Run) error             { return nil }
func (noopRecorder) RecordFile(context.Context, int64, Outcome) error { return nil }
func (noopRecorder) FinishRun(context.Context, *Run) error            { return nil }
