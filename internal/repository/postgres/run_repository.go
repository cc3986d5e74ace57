package postgres

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/lancerane/CSVConverter-GCP/internal/pipeline"
)

//go:embed schema.sql
var schema string

// RunRow is a conversion_runs record.
type RunRow struct {
	ID           int64        `db:"id" json:"id"`
	Bucket       string       `db:"bucket" json:"bucket"`
	Prefix       string       `db:"prefix" json:"prefix"`
	Status       string       `db:"status" json:"status"`
	ListedKeys   int          `db:"listed_keys" json:"listed_keys"`
	TotalFiles   int          `db:"total_files" json:"total_files"`
	Converted    int          `db:"converted" json:"converted"`
	TotalRows    int64        `db:"total_rows" json:"total_rows"`
	StartedAt    time.Time    `db:"started_at" json:"started_at"`
	CompletedAt  sql.NullTime `db:"completed_at" json:"completed_at"`
	ErrorMessage string       `db:"error_message" json:"error_message"`
}

// FileRow is a conversion_files record.
type FileRow struct {
	ID           int64     `db:"id" json:"id"`
	RunID        int64     `db:"run_id" json:"run_id"`
	ObjectKey    string    `db:"object_key" json:"object_key"`
	ArtifactKey  string    `db:"artifact_key" json:"artifact_key"`
	Status       string    `db:"status" json:"status"`
	Stage        string    `db:"stage" json:"stage"`
	RowsWritten  int       `db:"rows_written" json:"rows_written"`
	EndReason    string    `db:"end_reason" json:"end_reason"`
	ErrorMessage string    `db:"error_message" json:"error_message"`
	DurationMS   int64     `db:"duration_ms" json:"duration_ms"`
	ProcessedAt  time.Time `db:"processed_at" json:"processed_at"`
}

// RunRepository keeps the history of conversion runs. It implements
// pipeline.RunRecorder.
type RunRepository struct {
	db *DB
}

// NewRunRepository creates a new run repository.
func NewRunRepository(db *DB) *RunRepository {
	return &RunRepository{db: db}
}

// EnsureSchema creates the history tables if they do not exist.
func (r *RunRepository) EnsureSchema(ctx context.Context) error {
	if _, err := r.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("create run history schema: %w", err)
	}
	return nil
}

// StartRun inserts run and sets its ID.
func (r *RunRepository) StartRun(ctx context.Context, run *pipeline.Run) error {
	query := `
		INSERT INTO conversion_runs (bucket, prefix, status, started_at)
		VALUES ($1, $2, $3, $4)
		RETURNING id
	`
	err := r.db.QueryRowxContext(ctx, query,
		run.Bucket, run.Prefix, string(run.Status), run.StartedAt,
	).Scan(&run.ID)
	if err != nil {
		return fmt.Errorf("insert run: %w", err)
	}
	return nil
}

// RecordFile stores the outcome of one file of run runID.
func (r *RunRepository) RecordFile(ctx context.Context, runID int64, out pipeline.Outcome) error {
	if runID == 0 {
		return errors.New("run was not recorded")
	}
	row := fileRow(runID, out)
	query := `
		INSERT INTO conversion_files (
			run_id, object_key, artifact_key, status, stage,
			rows_written, end_reason, error_message, duration_ms, processed_at
		) VALUES (
			:run_id, :object_key, :artifact_key, :status, :stage,
			:rows_written, :end_reason, :error_message, :duration_ms, :processed_at
		)
	`
	if _, err := r.db.NamedExecContext(ctx, query, row); err != nil {
		return fmt.Errorf("insert file outcome: %w", err)
	}
	return nil
}

// FinishRun writes the final counts and status of run.
func (r *RunRepository) FinishRun(ctx context.Context, run *pipeline.Run) error {
	if run.ID == 0 {
		return errors.New("run was not recorded")
	}
	return r.db.WithTx(ctx, func(tx *sqlx.Tx) error {
		query := `
			UPDATE conversion_runs
			SET status = $1, listed_keys = $2, total_files = $3, converted = $4,
			    total_rows = $5, completed_at = $6, error_message = $7
			WHERE id = $8
		`
		res, err := tx.ExecContext(ctx, query,
			string(run.Status), run.ListedKeys, run.TotalFiles, run.Converted,
			run.TotalRows, run.CompletedAt, run.ErrorMessage, run.ID,
		)
		if err != nil {
			return fmt.Errorf("update run: %w", err)
		}
		if n, err := res.RowsAffected(); err == nil && n == 0 {
			return fmt.Errorf("update run: run %d not found", run.ID)
		}
		return nil
	})
}

// ListRuns returns the most recent runs, newest first.
func (r *RunRepository) ListRuns(ctx context.Context, limit int) ([]RunRow, error) {
	if limit <= 0 {
		limit = 20
	}
	query := `
		SELECT id, bucket, prefix, status, listed_keys, total_files, converted,
		       total_rows, started_at, completed_at, error_message
		FROM conversion_runs
		ORDER BY started_at DESC, id DESC
		LIMIT $1
	`
	var runs []RunRow
	if err := r.db.SelectContext(ctx, &runs, query, limit); err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	return runs, nil
}

// ListFiles returns the file outcomes of a run in the order they were
// recorded.
func (r *RunRepository) ListFiles(ctx context.Context, runID int64) ([]FileRow, error) {
	query := `
		SELECT id, run_id, object_key, artifact_key, status, stage, rows_written,
		       end_reason, error_message, duration_ms, processed_at
		FROM conversion_files
		WHERE run_id = $1
		ORDER BY id
	`
	var files []FileRow
	if err := r.db.SelectContext(ctx, &files, query, runID); err != nil {
		return nil, fmt.Errorf("list files of run %d: %w", runID, err)
	}
	return files, nil
}

// FailedKeys returns the keys whose latest recorded outcome is a failure.
func (r *RunRepository) FailedKeys(ctx context.Context) ([]string, error) {
	query := `
		SELECT object_key FROM (
			SELECT DISTINCT ON (object_key) object_key, status
			FROM conversion_files
			ORDER BY object_key, id DESC
		) latest
		WHERE status = $1
		ORDER BY object_key
	`
	var keys []string
	if err := r.db.SelectContext(ctx, &keys, query, string(pipeline.FileStatusFailed)); err != nil {
		return nil, fmt.Errorf("list failed keys: %w", err)
	}
	return keys, nil
}

func fileRow(runID int64, out pipeline.Outcome) FileRow {
	row := FileRow{
		RunID:       runID,
		ObjectKey:   out.Key,
		ArtifactKey: out.ArtifactKey,
		Status:      string(out.Status),
		Stage:       string(out.Stage),
		RowsWritten: out.Rows,
		DurationMS:  out.Duration.Milliseconds(),
		ProcessedAt: time.Now().UTC(),
	}
	if out.End != 0 {
		row.EndReason = out.End.String()
	}
	if out.Err != nil {
		row.ErrorMessage = out.Err.Error()
	}
	return row
}

var _ pipeline.RunRecorder = (*RunRepository)(nil)
