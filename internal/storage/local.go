package storage

import (
	"context"
	"fmt"
	"io"
	"os"
	"path"
	"strings"
	"sync"

	"github.com/spf13/afero"
)

// LocalStore keeps objects as files below a directory. It stands in for a
// bucket during local development and in tests.
type LocalStore struct {
	store afero.Fs
	local afero.Fs

	// serializes the existence check and create in UploadFile
	mu sync.Mutex
}

// NewLocalStore stores objects below dir on the OS filesystem. local is the
// filesystem downloads are written to and uploads are read from.
func NewLocalStore(dir string, local afero.Fs) (*LocalStore, error) {
	if dir == "" {
		return nil, fmt.Errorf("local store directory must be provided")
	}
	osFs := afero.NewOsFs()
	if err := osFs.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed creating %s: %w", dir, err)
	}
	return NewLocalStoreFs(afero.NewBasePathFs(osFs, dir), local), nil
}

// NewLocalStoreFs stores objects at the root of store.
func NewLocalStoreFs(store, local afero.Fs) *LocalStore {
	return &LocalStore{store: store, local: localFs(local)}
}

func objectPath(key string) string {
	return "/" + strings.TrimPrefix(key, "/")
}

// ListObjects walks the store and returns the files whose key starts with
// prefix, in lexical order.
func (s *LocalStore) ListObjects(ctx context.Context, prefix string) ([]ObjectInfo, error) {
	root := path.Dir(objectPath(prefix))
	if strings.HasSuffix(prefix, "/") {
		root = objectPath(prefix)
	}
	if ok, err := afero.DirExists(s.store, root); err != nil || !ok {
		return nil, err
	}

	var results []ObjectInfo
	err := afero.Walk(s.store, root, func(p string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if info.IsDir() {
			return nil
		}
		key := strings.TrimPrefix(p, "/")
		if strings.HasPrefix(key, prefix) {
			results = append(results, ObjectInfo{Key: key, Size: info.Size(), Updated: info.ModTime()})
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("local list failed: %w", err)
	}
	return results, nil
}

// DownloadObject copies the object to destPath on the local filesystem.
func (s *LocalStore) DownloadObject(ctx context.Context, key, destPath string) error {
	src, err := s.store.Open(objectPath(key))
	if err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("local get %s: %w", key, ErrNotFound)
		}
		return fmt.Errorf("local get %s: %w", key, err)
	}
	defer src.Close()

	_, err = writeLocal(s.local, destPath, src)
	return err
}

// UploadFile copies srcPath into the store under key unless the key is
// already taken.
func (s *LocalStore) UploadFile(ctx context.Context, srcPath, key string) error {
	src, _, err := openLocal(s.local, srcPath)
	if err != nil {
		return err
	}
	defer src.Close()

	s.mu.Lock()
	defer s.mu.Unlock()

	dst := objectPath(key)
	if err := s.store.MkdirAll(path.Dir(dst), 0o755); err != nil {
		return fmt.Errorf("local put %s: %w", key, err)
	}
	out, err := s.store.OpenFile(dst, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		if os.IsExist(err) {
			return fmt.Errorf("local put %s: %w", key, ErrObjectExists)
		}
		return fmt.Errorf("local put %s: %w", key, err)
	}
	if _, err := io.Copy(out, src); err != nil {
		out.Close()
		_ = s.store.Remove(dst)
		return fmt.Errorf("local put %s: %w", key, err)
	}
	if err := out.Close(); err != nil {
		_ = s.store.Remove(dst)
		return fmt.Errorf("local put %s: %w", key, err)
	}
	return nil
}

var _ ObjectStorage = (*LocalStore)(nil)
