// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package r48

import (
	"sync"
	"time"
)

// Snapshot holds one value per telemetry property. Properties not seen
// in the cycle read as 0.
type Snapshot struct {
	Values [NumProperties]float64
	Time   time.Time // when the cycle completed
}

// Get returns the value for p, or 0 for an unknown property.
func (s Snapshot) Get(p Property) float64 {
	if !p.Valid() {
		return 0
	}
	return s.Values[p-1]
}

// Aggregator groups readings into complete snapshots.
//
// Each reading overwrites its property in the current cycle. A property
// counts toward completion only the first time it is seen in a cycle.
// Once all properties have been seen the snapshot is returned and the
// aggregator starts an empty cycle. There is no timeout: a cycle that
// never sees every property never completes.
type Aggregator struct {
	mu      sync.Mutex
	current Snapshot
	seen    [NumProperties]bool
	count   int
	now     func() time.Time
}

// NewAggregator creates an aggregator in an empty cycle.
func NewAggregator() *Aggregator {
	return &Aggregator{now: time.Now}
}

// Add records r. When it completes the cycle, Add returns a copy of the
// snapshot and true.
func (a *Aggregator) Add(r Reading) (Snapshot, bool) {
	if !r.Property.Valid() {
		return Snapshot{}, false
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	i := r.Property - 1
	a.current.Values[i] = r.Value
	if !a.seen[i] {
		a.seen[i] = true
		a.count++
	}

	if a.count < NumProperties {
		return Snapshot{}, false
	}

	out := a.current
	out.Time = a.now()
	a.resetLocked()
	return out, true
}

// Pending returns the number of distinct properties seen in the current
// cycle.
func (a *Aggregator) Pending() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.count
}

// Reset discards the current cycle.
func (a *Aggregator) Reset() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.resetLocked()
}

func (a *Aggregator) resetLocked() {
	a.current = Snapshot{}
	a.seen = [NumProperties]bool{}
	a.count = 0
}
