package main

import (
	"bytes"
	"math/rand/v2"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lancerane/CSVConverter-GCP/internal/blockfmt"
	"github.com/lancerane/CSVConverter-GCP/internal/csvconv"
)

func runApp(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	a := newApp()
	a.Writer = &out
	a.ErrWriter = &out
	err := a.Run(append([]string{"convert"}, args...))
	return out.String(), err
}

func TestEncodeSampleThenTree(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "sub"), 0o755))

	_, err := runApp(t, "encode-sample", "--records", "40", filepath.Join(dir, "a.bin"))
	require.NoError(t, err)
	_, err = runApp(t, "encode-sample", "--records", "3", filepath.Join(dir, "sub", "b.bin"))
	require.NoError(t, err)

	info, err := os.Stat(filepath.Join(dir, "a.bin"))
	require.NoError(t, err)
	// 40 records fill three frames, plus the end frame.
	assert.Equal(t, int64(4*blockfmt.FrameSize), info.Size())

	out, err := runApp(t, "tree", "--delimiter", ";", dir)
	require.NoError(t, err)
	assert.Contains(t, out, "2 of 2 files converted")

	data, err := os.ReadFile(filepath.Join(dir, "a.csv"))
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	require.Len(t, lines, 41)
	assert.Equal(t, strings.Join(csvconv.Header, ";"), lines[0])

	assert.FileExists(t, filepath.Join(dir, "sub", "b.csv"))
}

func TestEncodeSample_NoEndMarker(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "a.bin")

	_, err := runApp(t, "encode-sample", "--records", "5", "--no-end-marker", path)
	require.NoError(t, err)

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, int64(blockfmt.FrameSize), info.Size())

	// Ending at a frame boundary is a clean end.
	_, err = runApp(t, "tree", "--strict", dir)
	require.NoError(t, err)
	assert.FileExists(t, filepath.Join(dir, "a.csv"))
}

func TestSampleRecord(t *testing.T) {
	a := sampleRecord(rand.New(rand.NewPCG(7, 0)), 12)
	b := sampleRecord(rand.New(rand.NewPCG(7, 0)), 12)
	assert.Equal(t, a, b)
	assert.Equal(t, uint8(10), a.TimeDelta)
	assert.Equal(t, [4]uint8{1, 1, 1, 1}, a.Status)
}

func TestDelimiterFlag(t *testing.T) {
	_, err := runApp(t, "tree", "--delimiter", "ab", t.TempDir())
	assert.Error(t, err)
}
