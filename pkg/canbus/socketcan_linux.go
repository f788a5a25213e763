// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

//go:build linux

package canbus

import (
	"fmt"
	"sync"

	"github.com/brutella/can"
)

// socketCAN implements Bus on top of a brutella/can SocketCAN bus.
type socketCAN struct {
	dispatcher

	bus  *can.Bus
	mu   sync.Mutex
	dead bool
}

// DialSocketCAN opens a raw CAN socket bound to the given interface name
// (e.g. "can0") and starts the receive loop.
func DialSocketCAN(iface string) (Bus, error) {
	bus, err := can.NewBusForInterfaceWithName(iface)
	if err != nil {
		return nil, fmt.Errorf("failed to open CAN interface %s: %w", iface, err)
	}
	s := &socketCAN{bus: bus}
	bus.Subscribe(s)
	go bus.ConnectAndPublish()
	return s, nil
}

// Handle implements can.Handler.
func (s *socketCAN) Handle(frame can.Frame) {
	n := frame.Length
	if n > 8 {
		n = 8
	}
	f, err := FrameFromRawID(frame.ID, frame.Data[:n])
	if err != nil {
		return
	}
	s.dispatch(f)
}

// Send publishes one frame on the socket.
func (s *socketCAN) Send(frame Frame) error {
	if err := frame.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	dead := s.dead
	s.mu.Unlock()
	if dead {
		return ErrClosed
	}
	return s.bus.Publish(can.Frame{
		ID:     frame.RawID(),
		Length: frame.Len,
		Data:   frame.Data,
	})
}

func (s *socketCAN) Close() error {
	s.mu.Lock()
	if s.dead {
		s.mu.Unlock()
		return nil
	}
	s.dead = true
	s.mu.Unlock()
	return s.bus.Disconnect()
}
