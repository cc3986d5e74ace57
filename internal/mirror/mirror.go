// Package mirror maps remote object keys onto a local directory tree and
// back.
package mirror

import (
	"errors"
	"fmt"
	"os"
	"path"
	"strings"

	"github.com/spf13/afero"
)

// Suffix marks the keys that hold binary logs.
const Suffix = ".bin"

// ErrOutsideRoot is returned for paths or keys that would escape the root.
var ErrOutsideRoot = errors.New("path is outside the local root")

// IsEligible reports whether key names a binary log.
func IsEligible(key string) bool {
	return strings.HasSuffix(key, Suffix)
}

// ArtifactPath replaces the last three characters of p with "csv". The
// separating dot is assumed to be in place already.
func ArtifactPath(p string) string {
	return p[:max(len(p)-3, 0)] + "csv"
}

// Mirror reproduces the key hierarchy of a bucket below a local root.
// It is safe for concurrent use.
type Mirror struct {
	fs     afero.Fs
	root   string
	prefix string
}

// New returns a Mirror rooted at root on fs.
func New(fs afero.Fs, root string) *Mirror {
	root = path.Clean(root)
	prefix := root + "/"
	if root == "/" {
		prefix = root
	}
	return &Mirror{fs: fs, root: root, prefix: prefix}
}

// Root returns the local root directory.
func (m *Mirror) Root() string {
	return m.root
}

// LocalPath returns where key is stored locally.
func (m *Mirror) LocalPath(key string) string {
	return m.prefix + key
}

// Prepare creates the root and every directory named by key's intermediate
// segments, outermost first, and returns the key's local path. Existing
// directories are left alone.
func (m *Mirror) Prepare(key string) (string, error) {
	segments := strings.Split(key, "/")
	for _, seg := range segments {
		if seg == ".." {
			return "", fmt.Errorf("%w: %s", ErrOutsideRoot, key)
		}
	}

	if err := m.fs.MkdirAll(m.root, 0o755); err != nil {
		return "", fmt.Errorf("create root %s: %w", m.root, err)
	}

	dir := m.root
	for _, seg := range segments[:len(segments)-1] {
		if seg == "" || seg == "." {
			continue
		}
		dir = path.Join(dir, seg)
		if err := m.mkdir(dir); err != nil {
			return "", err
		}
	}
	return m.LocalPath(key), nil
}

func (m *Mirror) mkdir(dir string) error {
	err := m.fs.Mkdir(dir, 0o755)
	if err == nil {
		return nil
	}
	if !os.IsExist(err) {
		return fmt.Errorf("create directory %s: %w", dir, err)
	}
	info, statErr := m.fs.Stat(dir)
	if statErr != nil {
		return fmt.Errorf("stat %s: %w", dir, statErr)
	}
	if !info.IsDir() {
		return fmt.Errorf("create directory %s: file exists", dir)
	}
	return nil
}

// RemoteKey returns the key a file below the root is uploaded to.
func (m *Mirror) RemoteKey(localPath string) (string, error) {
	if !strings.HasPrefix(localPath, m.prefix) || len(localPath) == len(m.prefix) {
		return "", fmt.Errorf("%w: %s", ErrOutsideRoot, localPath)
	}
	return strings.TrimPrefix(localPath, m.prefix), nil
}
