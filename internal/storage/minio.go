package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/minio/minio-go/v7"
	miniocreds "github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/spf13/afero"
)

// MinioConfig encapsulates the connection info for a MinIO (or other
// S3-compatible) server.
type MinioConfig struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	Region    string
	UseSSL    bool
}

// MinioClient implements ObjectStorage on top of minio-go.
type MinioClient struct {
	client *minio.Client
	bucket string
	fs     afero.Fs
}

// NewMinioClient builds a new MinioClient.
func NewMinioClient(cfg MinioConfig, fs afero.Fs) (*MinioClient, error) {
	if cfg.Endpoint == "" {
		return nil, fmt.Errorf("minio endpoint must be provided")
	}
	if cfg.AccessKey == "" || cfg.SecretKey == "" {
		return nil, fmt.Errorf("minio credentials must be provided")
	}
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("minio bucket must be provided")
	}

	useSSL := cfg.UseSSL
	endpoint := cfg.Endpoint
	switch {
	case strings.HasPrefix(endpoint, "https://"):
		endpoint, useSSL = strings.TrimPrefix(endpoint, "https://"), true
	case strings.HasPrefix(endpoint, "http://"):
		endpoint, useSSL = strings.TrimPrefix(endpoint, "http://"), false
	}

	client, err := minio.New(strings.TrimSuffix(endpoint, "/"), &minio.Options{
		Creds:  miniocreds.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: useSSL,
		Region: strings.TrimSpace(cfg.Region),
	})
	if err != nil {
		return nil, fmt.Errorf("unable to create minio client: %w", err)
	}

	return &MinioClient{client: client, bucket: cfg.Bucket, fs: localFs(fs)}, nil
}

// ListObjects lists all objects for a given prefix.
func (c *MinioClient) ListObjects(ctx context.Context, prefix string) ([]ObjectInfo, error) {
	var results []ObjectInfo
	for object := range c.client.ListObjects(ctx, c.bucket, minio.ListObjectsOptions{
		Prefix:    prefix,
		Recursive: true,
	}) {
		if object.Err != nil {
			return nil, fmt.Errorf("minio list failed: %w", object.Err)
		}
		results = append(results, ObjectInfo{
			Key:     object.Key,
			Size:    object.Size,
			Updated: object.LastModified,
		})
	}
	return results, nil
}

// DownloadObject downloads an object to the provided destination path.
func (c *MinioClient) DownloadObject(ctx context.Context, key, destPath string) error {
	obj, err := c.client.GetObject(ctx, c.bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return fmt.Errorf("minio get %s: %w", key, mapMinioError(err))
	}
	defer obj.Close()

	// GetObject is lazy; Stat surfaces a missing key before the local file
	// is created.
	if _, err := obj.Stat(); err != nil {
		return fmt.Errorf("minio get %s: %w", key, mapMinioError(err))
	}
	_, err = writeLocal(c.fs, destPath, obj)
	return err
}

// UploadFile uploads srcPath under key unless the key already exists.
// The existence check and the put are two requests, so two writers racing
// on the same key can both succeed.
func (c *MinioClient) UploadFile(ctx context.Context, srcPath, key string) error {
	_, err := c.client.StatObject(ctx, c.bucket, key, minio.StatObjectOptions{})
	if err == nil {
		return fmt.Errorf("minio put %s: %w", key, ErrObjectExists)
	}
	if !errors.Is(mapMinioError(err), ErrNotFound) {
		return fmt.Errorf("minio stat %s: %w", key, err)
	}

	f, size, err := openLocal(c.fs, srcPath)
	if err != nil {
		return err
	}
	defer f.Close()

	_, err = c.client.PutObject(ctx, c.bucket, key, f, size, minio.PutObjectOptions{
		ContentType: contentType(key),
	})
	if err != nil {
		return fmt.Errorf("minio put %s: %w", key, err)
	}
	return nil
}

// mapMinioError translates missing-key responses into ErrNotFound and
// returns every other error unchanged.
func mapMinioError(err error) error {
	switch minio.ToErrorResponse(err).Code {
	case "NoSuchKey", "NotFound":
		return fmt.Errorf("%w: %v", ErrNotFound, err)
	}
	return err
}

var _ ObjectStorage = (*MinioClient)(nil)
