package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"

	gcs "cloud.google.com/go/storage"
	"github.com/spf13/afero"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"
)

// GCSConfig encapsulates the connection info for Google Cloud Storage.
// Without explicit credentials the application default credentials are used.
type GCSConfig struct {
	Bucket          string
	CredentialsJSON string
	CredentialsFile string
}

// GCSClient implements ObjectStorage for a Google Cloud Storage bucket.
type GCSClient struct {
	client *gcs.Client
	bucket *gcs.BucketHandle
	fs     afero.Fs
}

// NewGCSClient builds a GCSClient. The returned client owns a connection
// pool; call Close when done.
func NewGCSClient(ctx context.Context, cfg GCSConfig, fs afero.Fs) (*GCSClient, error) {
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("gcs bucket must be provided")
	}

	var opts []option.ClientOption
	switch {
	case cfg.CredentialsJSON != "":
		creds, err := google.CredentialsFromJSON(ctx, []byte(cfg.CredentialsJSON), gcs.ScopeReadWrite)
		if err != nil {
			return nil, fmt.Errorf("unable to parse gcs credentials: %w", err)
		}
		opts = append(opts, option.WithCredentials(creds))
	case cfg.CredentialsFile != "":
		opts = append(opts, option.WithCredentialsFile(cfg.CredentialsFile))
	}

	client, err := gcs.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("unable to create gcs client: %w", err)
	}
	return &GCSClient{
		client: client,
		bucket: client.Bucket(cfg.Bucket),
		fs:     localFs(fs),
	}, nil
}

// ListObjects lists all objects for a given prefix.
func (c *GCSClient) ListObjects(ctx context.Context, prefix string) ([]ObjectInfo, error) {
	var results []ObjectInfo

	it := c.bucket.Objects(ctx, &gcs.Query{Prefix: prefix})
	for {
		attrs, err := it.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("gcs list failed: %w", err)
		}
		results = append(results, ObjectInfo{
			Key:     attrs.Name,
			Size:    attrs.Size,
			Updated: attrs.Updated,
		})
	}
	return results, nil
}

// DownloadObject downloads an object to the provided destination path.
func (c *GCSClient) DownloadObject(ctx context.Context, key, destPath string) error {
	r, err := c.bucket.Object(key).NewReader(ctx)
	if err != nil {
		return fmt.Errorf("gcs read %s: %w", key, mapGCSError(err))
	}
	defer r.Close()

	_, err = writeLocal(c.fs, destPath, r)
	return err
}

// UploadFile uploads srcPath under key. The write is conditional on the
// object not existing yet.
func (c *GCSClient) UploadFile(ctx context.Context, srcPath, key string) error {
	f, _, err := openLocal(c.fs, srcPath)
	if err != nil {
		return err
	}
	defer f.Close()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	w := c.bucket.Object(key).If(gcs.Conditions{DoesNotExist: true}).NewWriter(ctx)
	w.ContentType = contentType(key)
	if _, err := io.Copy(w, f); err != nil {
		// cancelling the context aborts the upload
		cancel()
		_ = w.Close()
		return fmt.Errorf("gcs write %s: %w", key, mapGCSError(err))
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("gcs write %s: %w", key, mapGCSError(err))
	}
	return nil
}

// Close releases the underlying client.
func (c *GCSClient) Close() error {
	return c.client.Close()
}

func mapGCSError(err error) error {
	if errors.Is(err, gcs.ErrObjectNotExist) {
		return fmt.Errorf("%w: %v", ErrNotFound, err)
	}
	var gerr *googleapi.Error
	if errors.As(err, &gerr) {
		switch gerr.Code {
		case http.StatusPreconditionFailed:
			return fmt.Errorf("%w: %v", ErrObjectExists, err)
		case http.StatusNotFound:
			return fmt.Errorf("%w: %v", ErrNotFound, err)
		}
	}
	return err
}

var _ ObjectStorage = (*GCSClient)(nil)
