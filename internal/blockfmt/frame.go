// Package blockfmt reads and writes the block-structured binary log format
// produced by the motion sensor loggers.
//
// A log is a sequence of FrameSize-byte frames. Each frame starts with a
// record count and an overrun flag, followed by up to Capacity packed
// records and zero padding. A frame whose count is zero marks the end of
// the log. All multi-byte fields are little-endian.
package blockfmt

import (
	"encoding/binary"
	"errors"
	"fmt"
)

const (
	// FrameSize is the size of every frame on disk.
	FrameSize = 512
	// HeaderSize covers the count and overrun bytes at the start of a frame.
	HeaderSize = 2

	imuAxes     = 12
	statusFlags = 4

	// RecordSize is the packed size of one Record.
	RecordSize = imuAxes*2 + statusFlags + 3

	// Capacity is the number of records that fit in one frame.
	Capacity = (FrameSize - HeaderSize) / RecordSize
	// FillSize is the padding after Capacity records.
	FillSize = FrameSize - HeaderSize - Capacity*RecordSize
)

// ByteOrder is the byte order of the 16-bit IMU fields.
var ByteOrder = binary.LittleEndian

var (
	// ErrOvercount is returned when a frame declares more records than fit in it.
	ErrOvercount = errors.New("frame record count exceeds capacity")
	// ErrShortFrame is returned when the stream ends inside a frame.
	ErrShortFrame = errors.New("short frame")
)

// Layout returns how many records of recordSize bytes fit in one frame and
// how many padding bytes remain after them.
func Layout(recordSize int) (capacity, fill int) {
	capacity = (FrameSize - HeaderSize) / recordSize
	fill = FrameSize - HeaderSize - capacity*recordSize
	return capacity, fill
}

// Indexes into Record.IMU.
const (
	AccXLeft = iota
	AccYLeft
	AccZLeft
	GyrXLeft
	GyrYLeft
	GyrZLeft
	AccXRight
	AccYRight
	AccZRight
	GyrXRight
	GyrYRight
	GyrZRight
)

// Indexes into Record.Status.
const (
	StatusLeftAcc = iota
	StatusLeftGyro
	StatusRightAcc
	StatusRightGyro
)

// Record is one timestep of dual IMU data.
type Record struct {
	// IMU holds the left accelerometer and gyroscope axes followed by the
	// right ones, x/y/z each.
	IMU [imuAxes]int16
	// Status holds the sensor health flags in Status* order.
	Status [statusFlags]uint8
	// FSR is the force sensor reading.
	FSR uint8
	// TimeDelta is the time since the previous record in milliseconds. It
	// wraps at 255.
	TimeDelta uint8
	// Prediction is the on-device classification label.
	Prediction uint8
}

// PutRecord encodes rec into b, which must hold at least RecordSize bytes.
func PutRecord(b []byte, rec Record) {
	_ = b[RecordSize-1]
	for i, v := range rec.IMU {
		ByteOrder.PutUint16(b[i*2:], uint16(v))
	}
	off := imuAxes * 2
	copy(b[off:off+statusFlags], rec.Status[:])
	off += statusFlags
	b[off] = rec.FSR
	b[off+1] = rec.TimeDelta
	b[off+2] = rec.Prediction
}

// ReadRecord decodes a record from the first RecordSize bytes of b.
func ReadRecord(b []byte) Record {
	_ = b[RecordSize-1]
	var rec Record
	for i := range rec.IMU {
		rec.IMU[i] = int16(ByteOrder.Uint16(b[i*2:]))
	}
	off := imuAxes * 2
	copy(rec.Status[:], b[off:off+statusFlags])
	off += statusFlags
	rec.FSR = b[off]
	rec.TimeDelta = b[off+1]
	rec.Prediction = b[off+2]
	return rec
}

// Frame is one decoded frame. Only the first Count records are valid.
type Frame struct {
	Count   uint8
	Overrun uint8
	Records []Record
}

// MarshalBinary encodes the frame into exactly FrameSize bytes. Records
// beyond Count are ignored and the padding is zero.
func (f Frame) MarshalBinary() ([]byte, error) {
	if int(f.Count) > Capacity {
		return nil, fmt.Errorf("%w: %d > %d", ErrOvercount, f.Count, Capacity)
	}
	if int(f.Count) > len(f.Records) {
		return nil, fmt.Errorf("frame count %d but only %d records", f.Count, len(f.Records))
	}
	b := make([]byte, FrameSize)
	b[0] = f.Count
	b[1] = f.Overrun
	for i := 0; i < int(f.Count); i++ {
		PutRecord(b[HeaderSize+i*RecordSize:], f.Records[i])
	}
	return b, nil
}

// UnmarshalBinary decodes a FrameSize-byte frame. Padding is not checked.
func (f *Frame) UnmarshalBinary(b []byte) error {
	if len(b) != FrameSize {
		return fmt.Errorf("%w: %d of %d bytes", ErrShortFrame, len(b), FrameSize)
	}
	count := int(b[0])
	if count > Capacity {
		return fmt.Errorf("%w: %d > %d", ErrOvercount, count, Capacity)
	}
	f.Count = b[0]
	f.Overrun = b[1]
	f.Records = make([]Record, count)
	for i := range f.Records {
		f.Records[i] = ReadRecord(b[HeaderSize+i*RecordSize:])
	}
	return nil
}
