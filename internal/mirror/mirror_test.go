package mirror

import (
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func assertDir(t *testing.T, fs afero.Fs, dir string) {
	t.Helper()
	ok, err := afero.DirExists(fs, dir)
	require.NoError(t, err)
	assert.True(t, ok, "expected directory %s", dir)
}

func TestIsEligible(t *testing.T) {
	tests := []struct {
		key  string
		want bool
	}{
		{"unprocessed/a.bin", true},
		{"unprocessed/sub/b.bin", true},
		{"unprocessed/readme.txt", false},
		{"unprocessed/a.BIN", false},
		{"unprocessed/a.bin.gz", false},
		{"unprocessed/", false},
		{"bin", false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, IsEligible(tt.key), tt.key)
	}
}

func TestArtifactPath(t *testing.T) {
	assert.Equal(t, "/r/unprocessed/a.csv", ArtifactPath("/r/unprocessed/a.bin"))
	assert.Equal(t, "unprocessed/sub/b.csv", ArtifactPath("unprocessed/sub/b.bin"))
	// only the last three characters are swapped
	assert.Equal(t, "log.bcsv", ArtifactPath("log.binx"))
	assert.Equal(t, "csv", ArtifactPath("ab"))
}

func TestLocalPathAndRemoteKey(t *testing.T) {
	m := New(afero.NewMemMapFs(), "/r")

	local := m.LocalPath("unprocessed/sub/b.bin")
	assert.Equal(t, "/r/unprocessed/sub/b.bin", local)

	key, err := m.RemoteKey(ArtifactPath(local))
	require.NoError(t, err)
	assert.Equal(t, "unprocessed/sub/b.csv", key)

	_, err = m.RemoteKey("/tmp/unprocessed/a.csv")
	assert.ErrorIs(t, err, ErrOutsideRoot)
	_, err = m.RemoteKey("/r/")
	assert.ErrorIs(t, err, ErrOutsideRoot)
}

func TestNew_TrailingSlashRoot(t *testing.T) {
	m := New(afero.NewMemMapFs(), "/data/r/")
	assert.Equal(t, "/data/r", m.Root())
	assert.Equal(t, "/data/r/a.bin", m.LocalPath("a.bin"))
}

func TestPrepare_CreatesEveryIntermediateDirectory(t *testing.T) {
	fs := afero.NewMemMapFs()
	m := New(fs, "/r")

	local, err := m.Prepare("unprocessed/sub/a.bin")
	require.NoError(t, err)
	assert.Equal(t, "/r/unprocessed/sub/a.bin", local)
	assertDir(t, fs, "/r/unprocessed")
	assertDir(t, fs, "/r/unprocessed/sub")

	_, err = m.Prepare("unprocessed/x/y/z/deep.bin")
	require.NoError(t, err)
	for _, dir := range []string{
		"/r/unprocessed/x",
		"/r/unprocessed/x/y",
		"/r/unprocessed/x/y/z",
	} {
		assertDir(t, fs, dir)
	}
	// the first segment must not be reused for deeper levels
	exists, err := afero.DirExists(fs, "/r/unprocessed/x/x")
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestPrepare_Idempotent(t *testing.T) {
	fs := afero.NewMemMapFs()
	m := New(fs, "/r")

	for i := 0; i < 3; i++ {
		_, err := m.Prepare("unprocessed/sub/a.bin")
		require.NoError(t, err)
	}
	_, err := m.Prepare("unprocessed/sub/b.bin")
	require.NoError(t, err)
}

func TestPrepare_TopLevelAndDirectoryKeys(t *testing.T) {
	fs := afero.NewMemMapFs()
	m := New(fs, "/r")

	local, err := m.Prepare("a.bin")
	require.NoError(t, err)
	assert.Equal(t, "/r/a.bin", local)
	assertDir(t, fs, "/r")

	_, err = m.Prepare("unprocessed/empty/")
	require.NoError(t, err)
	assertDir(t, fs, "/r/unprocessed/empty")
}

func TestPrepare_FileInTheWay(t *testing.T) {
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "/r/unprocessed", []byte("x"), 0o644))

	_, err := New(fs, "/r").Prepare("unprocessed/a.bin")
	assert.Error(t, err)
}

func TestPrepare_RejectsParentSegments(t *testing.T) {
	_, err := New(afero.NewMemMapFs(), "/r").Prepare("unprocessed/../../etc/a.bin")
	assert.ErrorIs(t, err, ErrOutsideRoot)
}
