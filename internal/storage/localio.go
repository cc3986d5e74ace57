package storage

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/afero"
)

// writeLocal copies r into destPath, removing the file again if the copy
// fails.
func writeLocal(fs afero.Fs, destPath string, r io.Reader) (int64, error) {
	out, err := fs.OpenFile(destPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return 0, fmt.Errorf("failed creating %s: %w", destPath, err)
	}
	n, err := io.Copy(out, r)
	if closeErr := out.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		_ = fs.Remove(destPath)
		return n, fmt.Errorf("failed writing %s: %w", destPath, err)
	}
	return n, nil
}

// openLocal opens srcPath and returns it with its size.
func openLocal(fs afero.Fs, srcPath string) (afero.File, int64, error) {
	f, err := fs.Open(srcPath)
	if err != nil {
		return nil, 0, fmt.Errorf("failed opening %s: %w", srcPath, err)
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, 0, fmt.Errorf("failed to stat %s: %w", srcPath, err)
	}
	return f, info.Size(), nil
}

func localFs(fs afero.Fs) afero.Fs {
	if fs == nil {
		return afero.NewOsFs()
	}
	return fs
}
