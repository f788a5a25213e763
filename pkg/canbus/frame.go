// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package canbus

import (
	"encoding/binary"
	"errors"
	"fmt"
	"strings"
)

// Frame is a classical CAN 2.0A/2.0B frame.
type Frame struct {
	ID       uint32 // 11-bit (std) or 29-bit (ext)
	Extended bool   // true for 29-bit identifier
	RTR      bool   // remote transmission request
	Len      uint8  // 0..8
	Data     [8]byte
}

// Identifier limits
const (
	MaxStdID = 0x7FF
	MaxExtID = 0x1FFFFFFF
)

// SocketCAN can_id flag bits
const (
	effFlag = 0x80000000
	rtrFlag = 0x40000000
	errFlag = 0x20000000
)

// FrameSize is the size of a Linux struct can_frame
const FrameSize = 16

var (
	ErrInvalidID  = errors.New("canbus: invalid identifier")
	ErrInvalidLen = errors.New("canbus: invalid data length")
)

// NewExtendedFrame builds a data frame with a 29-bit identifier.
func NewExtendedFrame(id uint32, data []byte) (Frame, error) {
	if len(data) > 8 {
		return Frame{}, ErrInvalidLen
	}
	f := Frame{ID: id, Extended: true, Len: uint8(len(data))}
	copy(f.Data[:], data)
	return f, f.Validate()
}

// Validate returns an error if the frame is not valid.
func (f Frame) Validate() error {
	if f.Len > 8 {
		return ErrInvalidLen
	}
	if f.Extended {
		if f.ID > MaxExtID {
			return ErrInvalidID
		}
	} else if f.ID > MaxStdID {
		return ErrInvalidID
	}
	return nil
}

// Payload returns the used data bytes.
func (f Frame) Payload() []byte {
	n := f.Len
	if n > 8 {
		n = 8
	}
	return f.Data[:n]
}

// String formats the frame candump-style, e.g. "0607FF83 [8] 03 F0 00 21 00 00 50 42".
func (f Frame) String() string {
	var b strings.Builder
	if f.Extended {
		fmt.Fprintf(&b, "%08X", f.ID)
	} else {
		fmt.Fprintf(&b, "%03X", f.ID)
	}
	fmt.Fprintf(&b, " [%d]", f.Len)
	if f.RTR {
		b.WriteString(" RTR")
		return b.String()
	}
	for _, d := range f.Payload() {
		fmt.Fprintf(&b, " %02X", d)
	}
	return b.String()
}

// RawID returns the identifier with SocketCAN flag bits applied.
func (f Frame) RawID() uint32 {
	id := f.ID
	if f.Extended {
		id |= effFlag
	}
	if f.RTR {
		id |= rtrFlag
	}
	return id
}

// FrameFromRawID splits a SocketCAN can_id into identifier and flags.
// Error frames are reported as invalid.
func FrameFromRawID(raw uint32, data []byte) (Frame, error) {
	if raw&errFlag != 0 {
		return Frame{}, fmt.Errorf("canbus: error frame 0x%08X", raw)
	}
	var f Frame
	f.Extended = raw&effFlag != 0
	f.RTR = raw&rtrFlag != 0
	if f.Extended {
		f.ID = raw & MaxExtID
	} else {
		f.ID = raw & MaxStdID
	}
	if len(data) > 8 {
		return Frame{}, ErrInvalidLen
	}
	f.Len = uint8(len(data))
	copy(f.Data[:], data)
	return f, nil
}

// MarshalBinary encodes the frame to the Linux SocketCAN can_frame layout.
//
// Layout (little-endian):
//
//	0..3  can_id (with EFF/RTR flags)
//	4     can_dlc
//	5..7  padding
//	8..15 data
func (f Frame) MarshalBinary() ([]byte, error) {
	if err := f.Validate(); err != nil {
		return nil, err
	}
	buf := make([]byte, FrameSize)
	binary.LittleEndian.PutUint32(buf[0:4], f.RawID())
	buf[4] = f.Len
	copy(buf[8:16], f.Data[:])
	return buf, nil
}

// UnmarshalBinary decodes a frame from the Linux SocketCAN can_frame layout.
func (f *Frame) UnmarshalBinary(data []byte) error {
	if len(data) < FrameSize {
		return fmt.Errorf("canbus: need %d bytes, got %d", FrameSize, len(data))
	}
	n := data[4]
	if n > 8 {
		return ErrInvalidLen
	}
	g, err := FrameFromRawID(binary.LittleEndian.Uint32(data[0:4]), data[8:8+n])
	if err != nil {
		return err
	}
	*f = g
	return f.Validate()
}
