package blockfmt

import (
	"fmt"
	"io"
)

// Encoder packs records into frames the way the loggers write them.
// Records are buffered until a frame is full; Close flushes the last
// partial frame and appends a terminating frame.
type Encoder struct {
	w       io.Writer
	buf     [FrameSize]byte
	count   int
	overrun uint8
	err     error
}

// NewEncoder returns an encoder writing to w.
func NewEncoder(w io.Writer) *Encoder {
	return &Encoder{w: w}
}

// SetOverrun sets the overrun byte written with the next frame.
func (e *Encoder) SetOverrun(v uint8) {
	e.overrun = v
}

// Write buffers records, writing out each frame as it fills.
func (e *Encoder) Write(recs ...Record) error {
	for _, rec := range recs {
		if e.err != nil {
			return e.err
		}
		PutRecord(e.buf[HeaderSize+e.count*RecordSize:], rec)
		e.count++
		if e.count == Capacity {
			e.writeFrame()
		}
	}
	return e.err
}

// Flush writes the pending partial frame, if any.
func (e *Encoder) Flush() error {
	if e.err == nil && e.count > 0 {
		e.writeFrame()
	}
	return e.err
}

// Close flushes and writes the zero-count end frame. It does not close the
// underlying writer.
func (e *Encoder) Close() error {
	if err := e.Flush(); err != nil {
		return err
	}
	e.writeFrame()
	return e.err
}

func (e *Encoder) writeFrame() {
	e.buf[0] = uint8(e.count)
	e.buf[1] = e.overrun
	clear(e.buf[HeaderSize+e.count*RecordSize:])
	if _, err := e.w.Write(e.buf[:]); err != nil {
		e.err = fmt.Errorf("write frame: %w", err)
	}
	e.count = 0
	e.overrun = 0
}
