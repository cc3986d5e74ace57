package csvconv

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/spf13/afero"

	"github.com/lancerane/CSVConverter-GCP/internal/blockfmt"
	"github.com/lancerane/CSVConverter-GCP/internal/mirror"
)

// Options controls file conversions.
type Options struct {
	Delimiter rune
	// Strict turns a log that did not end cleanly into a failed conversion.
	Strict bool
}

func (o Options) delimiter() rune {
	if o.Delimiter == 0 {
		return DefaultDelimiter
	}
	return o.Delimiter
}

// ConvertFile converts the binary log at srcPath into a CSV file at
// dstPath. On failure no file is left at dstPath. Both files are closed on
// every return path.
func ConvertFile(fs afero.Fs, srcPath, dstPath string, opts Options) (Result, error) {
	src, err := fs.Open(srcPath)
	if err != nil {
		return Result{}, fmt.Errorf("open %s: %w", srcPath, err)
	}
	defer src.Close()

	dst, err := fs.OpenFile(dstPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return Result{}, fmt.Errorf("create %s: %w", dstPath, err)
	}

	res, err := Convert(bufio.NewReaderSize(src, 16*blockfmt.FrameSize), dst, opts.delimiter())
	if closeErr := dst.Close(); err == nil && closeErr != nil {
		err = fmt.Errorf("close %s: %w", dstPath, closeErr)
	}
	if err == nil && opts.Strict {
		err = res.Err()
	}
	if err != nil {
		_ = fs.Remove(dstPath)
		return res, fmt.Errorf("convert %s: %w", srcPath, err)
	}
	return res, nil
}

// TreeResult is the outcome of converting one file found by ConvertTree.
type TreeResult struct {
	Source   string
	Artifact string
	Result   Result
	Err      error
}

// ConvertTree converts every eligible binary log below root, writing each
// CSV next to its source. Files are converted in lexical order; a failed
// file does not stop the walk.
func ConvertTree(fs afero.Fs, root string, opts Options) ([]TreeResult, error) {
	var sources []string
	err := afero.Walk(fs, root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if !info.IsDir() && mirror.IsEligible(filepath.ToSlash(path)) {
			sources = append(sources, path)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walk %s: %w", root, err)
	}
	sort.Strings(sources)

	results := make([]TreeResult, 0, len(sources))
	for _, src := range sources {
		tr := TreeResult{Source: src, Artifact: mirror.ArtifactPath(src)}
		tr.Result, tr.Err = ConvertFile(fs, src, tr.Artifact, opts)
		results = append(results, tr)
	}
	return results, nil
}
