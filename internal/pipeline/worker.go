package pipeline

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/lancerane/CSVConverter-GCP/internal/csvconv"
	"github.com/lancerane/CSVConverter-GCP/internal/mirror"
)

// processFile claims, downloads, converts and uploads one log, filling in
// out. It never returns early without setting out.Status.
func (o *Orchestrator) processFile(ctx context.Context, out *Outcome, log zerolog.Logger) {
	start := time.Now()
	defer func() { out.Duration = time.Since(start) }()

	log = log.With().Str("key", out.Key).Logger()

	release, err := o.registry.Claim(ctx, out.Key)
	if err != nil {
		o.fail(out, StageClaim, err, log)
		return
	}
	defer release()

	log.Debug().Str("path", out.LocalPath).Msg("downloading")
	if err := o.store.DownloadObject(ctx, out.Key, out.LocalPath); err != nil {
		o.fail(out, StageDownload, err, log)
		return
	}

	artifact := mirror.ArtifactPath(out.LocalPath)
	res, err := csvconv.ConvertFile(o.fs, out.LocalPath, artifact, csvconv.Options{
		Delimiter: o.cfg.Delimiter,
		Strict:    o.cfg.Strict,
	})
	out.Rows = res.Rows
	out.End = res.End
	if err != nil {
		o.fail(out, StageConvert, err, log)
		o.cleanup(out.LocalPath)
		return
	}
	if !res.End.Clean() {
		log.Warn().Str("end", res.End.String()).Int("rows", res.Rows).Msg("log ended early")
	}

	key, err := o.mirror.RemoteKey(artifact)
	if err != nil {
		o.fail(out, StageUpload, err, log)
		return
	}
	out.ArtifactKey = key

	if err := o.store.UploadFile(ctx, artifact, key); err != nil {
		o.fail(out, StageUpload, err, log)
		return
	}

	out.Status = FileStatusConverted
	log.Info().Str("artifact", key).Int("rows", res.Rows).Msg("converted")

	if !o.cfg.KeepLocal {
		o.cleanup(out.LocalPath, artifact)
	}
}

func (o *Orchestrator) fail(out *Outcome, stage Stage, err error, log zerolog.Logger) {
	out.Status = FileStatusFailed
	out.Stage = stage
	out.Err = &StageError{Stage: stage, Key: out.Key, Err: err}
	log.Error().Err(err).Str("stage", string(stage)).Msg("file failed")
}

func (o *Orchestrator) cleanup(paths ...string) {
	if o.cfg.KeepLocal {
		return
	}
	for _, p := range paths {
		if err := o.fs.Remove(p); err != nil {
			o.log.Debug().Err(err).Str("path", p).Msg("failed to remove local file")
		}
	}
}
