package storage

import (
	"context"
	"fmt"
	"io"
	"path/filepath"

	"github.com/spf13/afero"

	"github.com/lancerane/CSVConverter-GCP/internal/config"
)

// New builds the backend selected by cfg.Provider for bucket. Downloads and
// uploads go through fs on the local side.
func New(ctx context.Context, cfg config.StorageConfig, bucket string, fs afero.Fs) (ObjectStorage, error) {
	var (
		store ObjectStorage
		err   error
	)
	switch cfg.Provider {
	case "", "gcs":
		store, err = asStore(NewGCSClient(ctx, GCSConfig{
			Bucket:          bucket,
			CredentialsJSON: cfg.GCSCredentialsJSON,
			CredentialsFile: cfg.GCSCredentialsFile,
		}, fs))
	case "s3":
		store, err = asStore(NewS3Client(ctx, S3Config{
			Bucket:    bucket,
			Region:    cfg.S3Region,
			Endpoint:  cfg.S3Endpoint,
			AccessKey: cfg.S3AccessKey,
			SecretKey: cfg.S3SecretKey,
		}, fs))
	case "minio":
		store, err = asStore(NewMinioClient(MinioConfig{
			Endpoint:  cfg.MinioEndpoint,
			AccessKey: cfg.MinioAccessKey,
			SecretKey: cfg.MinioSecretKey,
			Bucket:    bucket,
			Region:    cfg.MinioRegion,
			UseSSL:    cfg.MinioUseSSL,
		}, fs))
	case "local":
		store, err = asStore(NewLocalStore(filepath.Join(cfg.LocalDir, bucket), fs))
	default:
		err = fmt.Errorf("unknown storage provider %q", cfg.Provider)
	}
	if err != nil {
		return nil, fmt.Errorf("storage provider %s: %w", cfg.Provider, err)
	}
	return store, nil
}

func asStore[T ObjectStorage](store T, err error) (ObjectStorage, error) {
	if err != nil {
		return nil, err
	}
	return store, nil
}

// Close releases store if the backend holds resources.
func Close(store ObjectStorage) error {
	if c, ok := store.(io.Closer); ok {
		return c.Close()
	}
	return nil
}
