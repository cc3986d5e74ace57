package blockfmt

import (
	"errors"
	"fmt"
	"io"
	"iter"
)

// EndReason says why a Decoder stopped.
type EndReason int

const (
	// EndNone means the decoder has not stopped yet.
	EndNone EndReason = iota
	// EndExhausted means the stream ended on a frame boundary.
	EndExhausted
	// EndMarker means a frame with a zero count was read.
	EndMarker
	// EndShortRead means the stream ended inside a frame.
	EndShortRead
	// EndOvercount means a frame declared more records than fit.
	EndOvercount
	// EndReadError means the underlying reader failed.
	EndReadError
)

func (r EndReason) String() string {
	switch r {
	case EndNone:
		return "none"
	case EndExhausted:
		return "exhausted"
	case EndMarker:
		return "end-marker"
	case EndShortRead:
		return "short-read"
	case EndOvercount:
		return "overcount"
	case EndReadError:
		return "read-error"
	default:
		return fmt.Sprintf("EndReason(%d)", int(r))
	}
}

// Clean reports whether the log ended the way a complete log does.
func (r EndReason) Clean() bool {
	return r == EndExhausted || r == EndMarker
}

// Decoder yields the records of a binary log one at a time. It reads one
// frame at a time and never reads past a terminating frame.
//
//	dec := blockfmt.NewDecoder(f)
//	for dec.Next() {
//		rec := dec.Record()
//		...
//	}
//	if err := dec.Err(); err != nil { ... }
type Decoder struct {
	r      io.Reader
	buf    [FrameSize]byte
	count  int
	next   int
	rec    Record
	end    EndReason
	err    error
	frames int
}

// NewDecoder returns a decoder reading from r.
func NewDecoder(r io.Reader) *Decoder {
	return &Decoder{r: r}
}

// Next advances to the next record. It returns false once the log has
// ended; End and Err then describe why.
func (d *Decoder) Next() bool {
	for {
		if d.end != EndNone {
			return false
		}
		if d.next < d.count {
			d.rec = ReadRecord(d.buf[HeaderSize+d.next*RecordSize:])
			d.next++
			return true
		}
		d.readFrame()
	}
}

func (d *Decoder) readFrame() {
	d.count, d.next = 0, 0

	n, err := io.ReadFull(d.r, d.buf[:])
	switch {
	case errors.Is(err, io.EOF):
		d.end = EndExhausted
		return
	case errors.Is(err, io.ErrUnexpectedEOF):
		d.end = EndShortRead
		d.err = fmt.Errorf("%w: %d of %d bytes after frame %d", ErrShortFrame, n, FrameSize, d.frames)
		return
	case err != nil:
		d.end = EndReadError
		d.err = fmt.Errorf("read frame %d: %w", d.frames, err)
		return
	}

	count := int(d.buf[0])
	if count == 0 {
		d.end = EndMarker
		return
	}
	if count > Capacity {
		d.end = EndOvercount
		d.err = fmt.Errorf("%w: frame %d declares %d records, capacity %d", ErrOvercount, d.frames, count, Capacity)
		return
	}
	d.count = count
	d.frames++
}

// Record returns the record produced by the last call to Next.
func (d *Decoder) Record() Record {
	return d.rec
}

// Overrun returns the overrun byte of the frame the current record came from.
func (d *Decoder) Overrun() uint8 {
	return d.buf[1]
}

// Frames returns the number of data frames read so far.
func (d *Decoder) Frames() int {
	return d.frames
}

// End returns why decoding stopped, or EndNone while records remain.
func (d *Decoder) End() EndReason {
	return d.end
}

// Err returns nil when decoding stopped cleanly or has not stopped yet.
func (d *Decoder) Err() error {
	return d.err
}

// All returns the remaining records as a sequence. The sequence can be
// ranged over once; check Err afterwards.
func (d *Decoder) All() iter.Seq[Record] {
	return func(yield func(Record) bool) {
		for d.Next() {
			if !yield(d.rec) {
				return
			}
		}
	}
}
