package csvconv

import (
	"bytes"
	"strings"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lancerane/CSVConverter-GCP/internal/blockfmt"
)

const wantHeader = "acc_x_left,acc_y_left,acc_z_left,gyr_x_left,gyr_y_left,gyr_z_left," +
	"acc_x_right,acc_y_right,acc_z_right,gyr_x_right,gyr_y_right,gyr_z_right," +
	"prediction,FSR,time_delta," +
	"left_acc_mag_status,left_gyro_status,right_acc_mag_status,right_gyro_status"

func testRecord() blockfmt.Record {
	return blockfmt.Record{
		IMU:        [12]int16{1, -2, 3, -4, 5, -6, 7, -8, 9, -10, 32767, -32768},
		Status:     [4]uint8{11, 12, 13, 14},
		FSR:        200,
		TimeDelta:  255,
		Prediction: 4,
	}
}

func encodeLog(t *testing.T, recs []blockfmt.Record, terminate bool) []byte {
	t.Helper()
	var buf bytes.Buffer
	enc := blockfmt.NewEncoder(&buf)
	require.NoError(t, enc.Write(recs...))
	if terminate {
		require.NoError(t, enc.Close())
	} else {
		require.NoError(t, enc.Flush())
	}
	return buf.Bytes()
}

func TestHeader(t *testing.T) {
	assert.Len(t, Header, 19)
	assert.Equal(t, wantHeader, strings.Join(Header, ","))
}

func TestRow(t *testing.T) {
	row := Row(testRecord(), nil)
	assert.Equal(t,
		"1,-2,3,-4,5,-6,7,-8,9,-10,32767,-32768,4,200,255,11,12,13,14",
		strings.Join(row, ","))

	reused := Row(blockfmt.Record{}, row)
	assert.Same(t, &row[0], &reused[0])
	assert.Equal(t, strings.Repeat("0,", 18)+"0", strings.Join(reused, ","))
}

func TestConvert(t *testing.T) {
	recs := []blockfmt.Record{testRecord(), {}, testRecord()}
	var out bytes.Buffer

	res, err := Convert(bytes.NewReader(encodeLog(t, recs, true)), &out, ',')
	require.NoError(t, err)
	assert.Equal(t, 3, res.Rows)
	assert.Equal(t, 1, res.Frames)
	assert.Equal(t, blockfmt.EndMarker, res.End)
	assert.NoError(t, res.Err())

	lines := strings.Split(strings.TrimSuffix(out.String(), "\n"), "\n")
	require.Len(t, lines, 4)
	assert.Equal(t, wantHeader, lines[0])
	assert.Equal(t, "1,-2,3,-4,5,-6,7,-8,9,-10,32767,-32768,4,200,255,11,12,13,14", lines[1])
	assert.Equal(t, strings.Repeat("0,", 18)+"0", lines[2])
	for _, line := range lines {
		assert.Equal(t, 18, strings.Count(line, ","))
	}
}

func TestConvert_Delimiter(t *testing.T) {
	var out bytes.Buffer
	_, err := Convert(bytes.NewReader(encodeLog(t, []blockfmt.Record{testRecord()}, true)), &out, ';')
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSuffix(out.String(), "\n"), "\n")
	require.Len(t, lines, 2)
	assert.Equal(t, strings.ReplaceAll(wantHeader, ",", ";"), lines[0])
	assert.Equal(t, 18, strings.Count(lines[1], ";"))
}

func TestConvert_InvalidDelimiter(t *testing.T) {
	var out bytes.Buffer
	_, err := Convert(bytes.NewReader(nil), &out, '"')
	assert.Error(t, err)
}

func TestConvert_EmptyLogWritesHeaderOnly(t *testing.T) {
	var out bytes.Buffer
	res, err := Convert(bytes.NewReader(nil), &out, ',')
	require.NoError(t, err)
	assert.Equal(t, 0, res.Rows)
	assert.Equal(t, wantHeader+"\n", out.String())
}

func TestConvert_ShortReadReported(t *testing.T) {
	data := encodeLog(t, []blockfmt.Record{testRecord(), testRecord()}, false)
	data = append(data, make([]byte, 10)...)

	var out bytes.Buffer
	res, err := Convert(bytes.NewReader(data), &out, ',')
	require.NoError(t, err)
	assert.Equal(t, 2, res.Rows)
	assert.Equal(t, blockfmt.EndShortRead, res.End)
	assert.ErrorIs(t, res.Err(), ErrTruncated)
	assert.ErrorIs(t, res.DecodeErr, blockfmt.ErrShortFrame)
}

func TestConvertFile(t *testing.T) {
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "/r/unprocessed/a.bin",
		encodeLog(t, []blockfmt.Record{testRecord(), testRecord()}, true), 0o644))

	res, err := ConvertFile(fs, "/r/unprocessed/a.bin", "/r/unprocessed/a.csv", Options{})
	require.NoError(t, err)
	assert.Equal(t, 2, res.Rows)

	got, err := afero.ReadFile(fs, "/r/unprocessed/a.csv")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(got), wantHeader+"\n"))
	assert.Equal(t, 3, strings.Count(string(got), "\n"))
}

func TestConvertFile_MissingSource(t *testing.T) {
	fs := afero.NewMemMapFs()
	_, err := ConvertFile(fs, "/r/missing.bin", "/r/missing.csv", Options{})
	assert.Error(t, err)

	exists, _ := afero.Exists(fs, "/r/missing.csv")
	assert.False(t, exists)
}

func TestConvertFile_CannotCreateDestination(t *testing.T) {
	base := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(base, "/r/a.bin", encodeLog(t, nil, true), 0o644))

	_, err := ConvertFile(afero.NewReadOnlyFs(base), "/r/a.bin", "/r/a.csv", Options{})
	assert.Error(t, err)
}

func TestConvertFile_StrictRemovesPartialArtifact(t *testing.T) {
	fs := afero.NewMemMapFs()
	data := append(encodeLog(t, []blockfmt.Record{testRecord()}, false), 1, 2, 3)
	require.NoError(t, afero.WriteFile(fs, "/r/a.bin", data, 0o644))

	res, err := ConvertFile(fs, "/r/a.bin", "/r/a.csv", Options{Strict: true})
	assert.ErrorIs(t, err, ErrTruncated)
	assert.Equal(t, 1, res.Rows)
	exists, _ := afero.Exists(fs, "/r/a.csv")
	assert.False(t, exists)

	_, err = ConvertFile(fs, "/r/a.bin", "/r/a.csv", Options{})
	assert.NoError(t, err)
	exists, _ = afero.Exists(fs, "/r/a.csv")
	assert.True(t, exists)
}

func TestConvertTree(t *testing.T) {
	fs := afero.NewMemMapFs()
	good := encodeLog(t, []blockfmt.Record{testRecord()}, true)
	require.NoError(t, afero.WriteFile(fs, "/data/b.bin", good, 0o644))
	require.NoError(t, afero.WriteFile(fs, "/data/sub/deeper/a.bin", good, 0o644))
	require.NoError(t, afero.WriteFile(fs, "/data/notes.txt", []byte("hi"), 0o644))

	results, err := ConvertTree(fs, "/data", Options{})
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, "/data/b.bin", results[0].Source)
	assert.Equal(t, "/data/b.csv", results[0].Artifact)
	assert.Equal(t, "/data/sub/deeper/a.csv", results[1].Artifact)
	for _, r := range results {
		assert.NoError(t, r.Err)
		exists, _ := afero.Exists(fs, r.Artifact)
		assert.True(t, exists)
	}
}
