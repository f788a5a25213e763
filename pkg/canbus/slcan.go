// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package canbus

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"

	"go.bug.st/serial"
)

// SLCAN (Lawicel) bit rate setup commands
var slcanBitrates = map[int]byte{
	10000:   '0',
	20000:   '1',
	50000:   '2',
	100000:  '3',
	125000:  '4',
	250000:  '5',
	500000:  '6',
	800000:  '7',
	1000000: '8',
}

const (
	slcanEnd  = '\r'
	slcanBell = 0x07
)

// slcanBus implements Bus over a serial-line CAN adapter speaking SLCAN.
type slcanBus struct {
	dispatcher

	rwc       io.ReadWriteCloser
	wmu       sync.Mutex
	closed    chan struct{}
	closeOnce sync.Once
}

// DialSLCAN opens a USB/serial SLCAN adapter and opens the CAN channel at
// the given bit rate.
func DialSLCAN(portName string, baudRate, bitrate int) (Bus, error) {
	mode := &serial.Mode{
		BaudRate: baudRate,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}

	port, err := serial.Open(portName, mode)
	if err != nil {
		return nil, fmt.Errorf("failed to open serial port %s: %w", portName, err)
	}

	bus, err := NewSLCAN(port, bitrate)
	if err != nil {
		port.Close()
		return nil, err
	}
	return bus, nil
}

// NewSLCAN runs the SLCAN protocol over an already open byte stream.
func NewSLCAN(rwc io.ReadWriteCloser, bitrate int) (Bus, error) {
	code, ok := slcanBitrates[bitrate]
	if !ok {
		return nil, fmt.Errorf("canbus: bitrate %d not supported by SLCAN", bitrate)
	}

	s := &slcanBus{rwc: rwc, closed: make(chan struct{})}

	// Close any open channel first, then configure and open.
	for _, cmd := range []string{"C\r", "S" + string(code) + "\r", "O\r"} {
		if err := s.write(cmd); err != nil {
			return nil, fmt.Errorf("slcan setup %q failed: %w", strings.TrimSpace(cmd), err)
		}
	}

	go s.readLoop()
	return s, nil
}

func (s *slcanBus) write(cmd string) error {
	s.wmu.Lock()
	defer s.wmu.Unlock()
	_, err := io.WriteString(s.rwc, cmd)
	return err
}

// Send transmits one frame as an SLCAN command line.
func (s *slcanBus) Send(frame Frame) error {
	if err := frame.Validate(); err != nil {
		return err
	}
	select {
	case <-s.closed:
		return ErrClosed
	default:
	}
	return s.write(EncodeSLCAN(frame))
}

func (s *slcanBus) Close() error {
	var err error
	s.closeOnce.Do(func() {
		close(s.closed)
		// Best effort: tell the adapter to close the channel.
		s.write("C\r")
		err = s.rwc.Close()
	})
	return err
}

func (s *slcanBus) readLoop() {
	r := bufio.NewReader(s.rwc)
	var line []byte
	for {
		b, err := r.ReadByte()
		if err != nil {
			return
		}
		if b != slcanEnd && b != slcanBell {
			line = append(line, b)
			continue
		}
		if len(line) > 0 {
			if f, err := DecodeSLCAN(string(line)); err == nil {
				s.dispatch(f)
			}
		}
		line = line[:0]
	}
}

// EncodeSLCAN converts a frame into its SLCAN command line, including the
// trailing carriage return.
func EncodeSLCAN(f Frame) string {
	var b strings.Builder
	switch {
	case f.RTR && f.Extended:
		b.WriteByte('R')
	case f.RTR:
		b.WriteByte('r')
	case f.Extended:
		b.WriteByte('T')
	default:
		b.WriteByte('t')
	}

	if f.Extended {
		fmt.Fprintf(&b, "%08X", f.ID&MaxExtID)
	} else {
		fmt.Fprintf(&b, "%03X", f.ID&MaxStdID)
	}

	b.WriteByte('0' + (f.Len & 0x0F))

	if !f.RTR {
		for _, d := range f.Payload() {
			fmt.Fprintf(&b, "%02X", d)
		}
	}

	b.WriteByte(slcanEnd)
	return b.String()
}

// DecodeSLCAN parses a received SLCAN frame line (without the trailing
// carriage return). Adapter acknowledgements such as "z" or "Z" return an
// error so callers can skip them. A trailing timestamp is ignored.
func DecodeSLCAN(line string) (Frame, error) {
	if len(line) == 0 {
		return Frame{}, fmt.Errorf("slcan: empty line")
	}

	var f Frame
	idLen := 3
	switch line[0] {
	case 't':
	case 'T':
		f.Extended = true
		idLen = 8
	case 'r':
		f.RTR = true
	case 'R':
		f.Extended = true
		f.RTR = true
		idLen = 8
	default:
		return Frame{}, fmt.Errorf("slcan: not a frame: %q", line)
	}

	if len(line) < 1+idLen+1 {
		return Frame{}, fmt.Errorf("slcan: short frame: %q", line)
	}

	id, err := strconv.ParseUint(line[1:1+idLen], 16, 32)
	if err != nil {
		return Frame{}, fmt.Errorf("slcan: bad identifier in %q: %w", line, err)
	}
	f.ID = uint32(id)

	dlc := line[1+idLen]
	if dlc < '0' || dlc > '8' {
		return Frame{}, fmt.Errorf("slcan: bad length in %q", line)
	}
	f.Len = dlc - '0'

	if !f.RTR {
		data := line[2+idLen:]
		if len(data) < int(f.Len)*2 {
			return Frame{}, fmt.Errorf("slcan: truncated data in %q", line)
		}
		for i := 0; i < int(f.Len); i++ {
			v, err := strconv.ParseUint(data[i*2:i*2+2], 16, 8)
			if err != nil {
				return Frame{}, fmt.Errorf("slcan: bad data in %q: %w", line, err)
			}
			f.Data[i] = byte(v)
		}
	}

	return f, f.Validate()
}
