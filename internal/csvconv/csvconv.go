// Package csvconv renders decoded sensor records as delimited text.
package csvconv

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"

	"github.com/lancerane/CSVConverter-GCP/internal/blockfmt"
)

// DefaultDelimiter separates fields unless another one is configured.
const DefaultDelimiter = ','

// ErrTruncated is reported for logs that did not end cleanly.
var ErrTruncated = errors.New("binary log truncated")

// Header is the fixed column layout of every converted file.
var Header = []string{
	"acc_x_left", "acc_y_left", "acc_z_left",
	"gyr_x_left", "gyr_y_left", "gyr_z_left",
	"acc_x_right", "acc_y_right", "acc_z_right",
	"gyr_x_right", "gyr_y_right", "gyr_z_right",
	"prediction",
	"FSR", "time_delta",
	"left_acc_mag_status", "left_gyro_status",
	"right_acc_mag_status", "right_gyro_status",
}

// Row fills dst with the fields of rec in Header order and returns it.
// dst is reused when it has room for len(Header) fields.
func Row(rec blockfmt.Record, dst []string) []string {
	if cap(dst) < len(Header) {
		dst = make([]string, len(Header))
	}
	dst = dst[:len(Header)]
	i := 0
	for _, v := range rec.IMU {
		dst[i] = strconv.Itoa(int(v))
		i++
	}
	dst[i] = strconv.Itoa(int(rec.Prediction))
	dst[i+1] = strconv.Itoa(int(rec.FSR))
	dst[i+2] = strconv.Itoa(int(rec.TimeDelta))
	i += 3
	for _, s := range rec.Status {
		dst[i] = strconv.Itoa(int(s))
		i++
	}
	return dst
}

// Result describes one conversion.
type Result struct {
	Rows   int
	Frames int
	End    blockfmt.EndReason
	// DecodeErr is the decoder's error for logs that did not end cleanly.
	DecodeErr error
}

// Err returns ErrTruncated wrapped with the decoder error when the log did
// not end cleanly, nil otherwise.
func (r Result) Err() error {
	if r.End.Clean() {
		return nil
	}
	return fmt.Errorf("%w (%s): %v", ErrTruncated, r.End, r.DecodeErr)
}

// Convert decodes the binary log in src and writes the header and one row
// per record to dst. A log that stops early is not an error here; the
// caller decides via Result.Err. Read failures of src are returned.
func Convert(src io.Reader, dst io.Writer, delim rune) (Result, error) {
	w := csv.NewWriter(dst)
	w.Comma = delim

	if err := w.Write(Header); err != nil {
		return Result{}, fmt.Errorf("write header: %w", err)
	}

	dec := blockfmt.NewDecoder(src)
	var (
		res Result
		row []string
	)
	for dec.Next() {
		row = Row(dec.Record(), row)
		if err := w.Write(row); err != nil {
			return res, fmt.Errorf("write row %d: %w", res.Rows+1, err)
		}
		res.Rows++
	}
	res.Frames = dec.Frames()
	res.End = dec.End()
	res.DecodeErr = dec.Err()

	w.Flush()
	if err := w.Error(); err != nil {
		return res, fmt.Errorf("flush csv: %w", err)
	}
	if res.End == blockfmt.EndReadError {
		return res, res.DecodeErr
	}
	return res, nil
}
