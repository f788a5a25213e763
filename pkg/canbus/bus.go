// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package canbus provides the CAN transport used by r48ctl.
//
// It includes:
//   - A Frame type with validation and SocketCAN binary layout helpers
//   - A Bus interface with send and callback-style subscribe
//   - Transports for Linux SocketCAN, SLCAN serial adapters and
//     CAN-over-WebSocket gateways
//   - An in-memory loopback bus for tests and simulations
package canbus

import (
	"errors"
	"sync"
)

// Handler receives inbound frames. Handlers may be invoked from a
// transport's reader goroutine and must not block for long.
type Handler func(Frame)

// Bus is a CAN bus connection. Implementations are safe for concurrent
// use: Send may be called while handlers are running.
type Bus interface {
	// Send transmits one frame.
	Send(frame Frame) error

	// Subscribe registers a handler for every inbound frame. The returned
	// function removes the handler.
	Subscribe(h Handler) (cancel func())

	// Close releases the connection. Further Send calls return ErrClosed.
	Close() error
}

// ErrClosed indicates the bus or endpoint has been closed.
var ErrClosed = errors.New("canbus: closed")

// Default arbitration bit rate for the rectifier bus
const DefaultBitrate = 125000

// dispatcher fans inbound frames out to subscribers. Transports embed it.
type dispatcher struct {
	mu   sync.RWMutex
	subs map[uint64]Handler
	next uint64
}

func (d *dispatcher) Subscribe(h Handler) func() {
	d.mu.Lock()
	if d.subs == nil {
		d.subs = make(map[uint64]Handler)
	}
	id := d.next
	d.next++
	d.subs[id] = h
	d.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			d.mu.Lock()
			delete(d.subs, id)
			d.mu.Unlock()
		})
	}
}

func (d *dispatcher) dispatch(f Frame) {
	d.mu.RLock()
	handlers := make([]Handler, 0, len(d.subs))
	for _, h := range d.subs {
		handlers = append(handlers, h)
	}
	d.mu.RUnlock()

	for _, h := range handlers {
		h(f)
	}
}
