// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package r48

import (
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/Thermoquad/r48ctl/pkg/canbus"
	"github.com/fxamacker/cbor/v2"
)

// captureMagic is the first item of every capture file.
const captureMagic = "r48ctl-capture/1"

// CaptureRecord is one captured frame, stored as a CBOR array
// [unix_nanos, id, extended, data].
type CaptureRecord struct {
	_        struct{} `cbor:",toarray"`
	Time     int64
	ID       uint32
	Extended bool
	Data     []byte
}

// Frame converts the record back into a frame.
func (r CaptureRecord) Frame() (canbus.Frame, error) {
	if len(r.Data) > 8 {
		return canbus.Frame{}, canbus.ErrInvalidLen
	}
	f := canbus.Frame{ID: r.ID, Extended: r.Extended, Len: uint8(len(r.Data))}
	copy(f.Data[:], r.Data)
	return f, f.Validate()
}

// Timestamp returns the capture time.
func (r CaptureRecord) Timestamp() time.Time {
	return time.Unix(0, r.Time)
}

// CaptureWriter appends frames to a capture stream.
type CaptureWriter struct {
	enc *cbor.Encoder
}

// NewCaptureWriter writes the capture header to w.
func NewCaptureWriter(w io.Writer) (*CaptureWriter, error) {
	enc := cbor.NewEncoder(w)
	if err := enc.Encode(captureMagic); err != nil {
		return nil, fmt.Errorf("failed to write capture header: %w", err)
	}
	return &CaptureWriter{enc: enc}, nil
}

// Write appends one frame.
func (c *CaptureWriter) Write(t time.Time, f canbus.Frame) error {
	rec := CaptureRecord{
		Time:     t.UnixNano(),
		ID:       f.ID,
		Extended: f.Extended,
		Data:     append([]byte(nil), f.Payload()...),
	}
	return c.enc.Encode(rec)
}

// CaptureReader reads frames from a capture stream.
type CaptureReader struct {
	dec *cbor.Decoder
}

// ErrNotCapture is returned for streams without a capture header.
var ErrNotCapture = errors.New("r48: not a capture file")

// NewCaptureReader checks the capture header of r.
func NewCaptureReader(r io.Reader) (*CaptureReader, error) {
	dec := cbor.NewDecoder(r)
	var magic string
	if err := dec.Decode(&magic); err != nil || magic != captureMagic {
		return nil, ErrNotCapture
	}
	return &CaptureReader{dec: dec}, nil
}

// Next returns the next record, or io.EOF at the end of the stream.
func (c *CaptureReader) Next() (CaptureRecord, error) {
	var rec CaptureRecord
	if err := c.dec.Decode(&rec); err != nil {
		if errors.Is(err, io.EOF) {
			return CaptureRecord{}, io.EOF
		}
		return CaptureRecord{}, fmt.Errorf("failed to decode capture record: %w", err)
	}
	return rec, nil
}

// Replay feeds every frame of a capture through col and calls emit for
// each completed snapshot. Records that do not form a valid frame are
// skipped.
func Replay(r *CaptureReader, col *Collector, emit func(Snapshot)) error {
	for {
		rec, err := r.Next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}
		f, err := rec.Frame()
		if err != nil {
			continue
		}
		if snap, ok := col.HandleFrame(f); ok && emit != nil {
			emit(snap)
		}
	}
}
