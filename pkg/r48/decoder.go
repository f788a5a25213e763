// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package r48

import (
	"github.com/Thermoquad/r48ctl/pkg/canbus"
)

// Reading is one decoded telemetry value.
type Reading struct {
	Property Property
	Value    float64
}

// Decode extracts a reading from a telemetry reply. Frames that are not
// replies (wrong length, marker or tag) return ok == false; the bus may
// carry unrelated traffic, so this is not an error.
func Decode(f canbus.Frame) (r Reading, ok bool) {
	if f.Len != 8 || f.RTR || f.Data[0] != ResponseMarker {
		return Reading{}, false
	}
	p := Property(f.Data[3])
	if !p.Valid() {
		return Reading{}, false
	}
	return Reading{
		Property: p,
		Value:    BytesToFloat([4]byte{f.Data[4], f.Data[5], f.Data[6], f.Data[7]}),
	}, true
}

// NewRequestFrame builds the bulk telemetry request sent to ReadID.
func NewRequestFrame() canbus.Frame {
	return canbus.Frame{
		ID:       ReadID,
		Extended: true,
		Len:      8,
		Data:     requestPayload,
	}
}

// IsRequest reports whether f is a bulk telemetry request.
func IsRequest(f canbus.Frame) bool {
	return f.Extended && f.ID == ReadID && f.Len == 8 && f.Data == requestPayload
}

// NewTelemetryFrame builds a reply frame as the rectifier sends it. It is
// used by simulators and tests.
func NewTelemetryFrame(id uint32, p Property, value float64) canbus.Frame {
	v := floatToBytesBE(value)
	return canbus.Frame{
		ID:       id,
		Extended: true,
		Len:      8,
		Data:     [8]byte{ResponseMarker, 0xF0, 0x00, byte(p), v[0], v[1], v[2], v[3]},
	}
}
