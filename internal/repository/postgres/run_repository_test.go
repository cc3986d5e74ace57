package postgres

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lancerane/CSVConverter-GCP/internal/blockfmt"
	"github.com/lancerane/CSVConverter-GCP/internal/config"
	"github.com/lancerane/CSVConverter-GCP/internal/pipeline"
)

func TestFileRow(t *testing.T) {
	row := fileRow(7, pipeline.Outcome{
		Key:         "unprocessed/a.bin",
		ArtifactKey: "unprocessed/a.csv",
		Status:      pipeline.FileStatusFailed,
		Stage:       pipeline.StageUpload,
		Err:         errors.New("object already exists"),
		Rows:        12,
		End:         blockfmt.EndMarker,
		Duration:    1500 * time.Millisecond,
	})

	assert.Equal(t, int64(7), row.RunID)
	assert.Equal(t, "unprocessed/a.bin", row.ObjectKey)
	assert.Equal(t, "failed", row.Status)
	assert.Equal(t, "upload", row.Stage)
	assert.Equal(t, "end-marker", row.EndReason)
	assert.Equal(t, "object already exists", row.ErrorMessage)
	assert.Equal(t, int64(1500), row.DurationMS)

	empty := fileRow(1, pipeline.Outcome{Key: "x.bin", Status: pipeline.FileStatusFailed, Stage: pipeline.StageClaim})
	assert.Empty(t, empty.EndReason)
	assert.Empty(t, empty.ErrorMessage)
}

func TestRunRepository_RejectsUnrecordedRun(t *testing.T) {
	repo := NewRunRepository(nil)
	assert.Error(t, repo.RecordFile(context.Background(), 0, pipeline.Outcome{}))
	assert.Error(t, repo.FinishRun(context.Background(), &pipeline.Run{}))
}

// Runs against a real database when TEST_DATABASE_URL is set.
func TestRunRepository_Postgres(t *testing.T) {
	dsn := os.Getenv("TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}
	ctx := context.Background()

	for _, driver := range []string{"postgres", "pgx"} {
		t.Run(driver, func(t *testing.T) {
			db, err := NewDB(ctx, config.DatabaseConfig{Driver: driver, URL: dsn})
			require.NoError(t, err)
			defer db.Close()

			repo := NewRunRepository(db)
			require.NoError(t, repo.EnsureSchema(ctx))

			run := &pipeline.Run{
				Bucket:    "edd23232",
				Prefix:    "unprocessed",
				Status:    pipeline.RunStatusProcessing,
				StartedAt: time.Now(),
			}
			require.NoError(t, repo.StartRun(ctx, run))
			require.NotZero(t, run.ID)

			key := "unprocessed/" + driver + "-" + time.Now().Format("150405.000000") + ".bin"
			require.NoError(t, repo.RecordFile(ctx, run.ID, pipeline.Outcome{
				Key: key, ArtifactKey: "x.csv", Status: pipeline.FileStatusFailed, Stage: pipeline.StageDownload,
			}))

			done := time.Now()
			run.Status = pipeline.RunStatusPartial
			run.TotalFiles = 1
			run.CompletedAt = &done
			require.NoError(t, repo.FinishRun(ctx, run))

			runs, err := repo.ListRuns(ctx, 5)
			require.NoError(t, err)
			require.NotEmpty(t, runs)
			assert.Equal(t, run.ID, runs[0].ID)
			assert.Equal(t, "partial", runs[0].Status)
			assert.True(t, runs[0].CompletedAt.Valid)

			files, err := repo.ListFiles(ctx, run.ID)
			require.NoError(t, err)
			require.Len(t, files, 1)
			assert.Equal(t, "download", files[0].Stage)

			failed, err := repo.FailedKeys(ctx)
			require.NoError(t, err)
			assert.Contains(t, failed, key)
		})
	}
}
