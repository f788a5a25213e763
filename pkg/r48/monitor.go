// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package r48

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/Thermoquad/r48ctl/pkg/canbus"
	"github.com/sirupsen/logrus"
)

// Poll interval limits
const (
	DefaultPollInterval = 10 * time.Second
	MinPollInterval     = 1 * time.Second
	MaxPollInterval     = 60 * time.Second
)

// Collector decodes frames into an Aggregator and keeps statistics.
// It is safe for concurrent use.
type Collector struct {
	agg *Aggregator

	mu    sync.Mutex
	stats *Statistics
}

// NewCollector creates a collector with an empty aggregator.
func NewCollector() *Collector {
	return &Collector{
		agg:   NewAggregator(),
		stats: NewStatistics(),
	}
}

// HandleFrame decodes f and feeds the result to the aggregator. It
// returns a snapshot when f completes a cycle.
func (c *Collector) HandleFrame(f canbus.Frame) (Snapshot, bool) {
	r, ok := Decode(f)
	var snap Snapshot
	var done bool
	if ok {
		snap, done = c.agg.Add(r)
	}

	c.mu.Lock()
	c.stats.UpdateFrame(ok, done)
	c.mu.Unlock()

	return snap, done
}

// RecordRequest counts one request send attempt.
func (c *Collector) RecordRequest(err error) {
	c.mu.Lock()
	c.stats.UpdateRequest(err)
	c.mu.Unlock()
}

// Pending returns the number of distinct properties in the open cycle.
func (c *Collector) Pending() int {
	return c.agg.Pending()
}

// Stats returns a copy of the current statistics.
func (c *Collector) Stats() Statistics {
	c.mu.Lock()
	defer c.mu.Unlock()
	s := *c.stats
	s.CalculateRates()
	return s
}

// ResetStats restarts the statistics counters.
func (c *Collector) ResetStats() {
	c.mu.Lock()
	c.stats.Reset()
	c.mu.Unlock()
}

// MonitorConfig configures a Monitor.
type MonitorConfig struct {
	Interval time.Duration      // default DefaultPollInterval
	Logger   logrus.FieldLogger // default logrus.StandardLogger()
}

// Monitor polls a rectifier for telemetry and emits complete snapshots.
type Monitor struct {
	bus      canbus.Bus
	interval time.Duration
	log      logrus.FieldLogger

	*Collector
}

// NewMonitor validates cfg and creates a monitor on bus.
func NewMonitor(bus canbus.Bus, cfg MonitorConfig) (*Monitor, error) {
	if cfg.Interval == 0 {
		cfg.Interval = DefaultPollInterval
	}
	if cfg.Interval < MinPollInterval || cfg.Interval > MaxPollInterval {
		return nil, fmt.Errorf("poll interval %s outside [%s, %s]", cfg.Interval, MinPollInterval, MaxPollInterval)
	}
	if cfg.Logger == nil {
		cfg.Logger = logrus.StandardLogger()
	}
	return &Monitor{
		bus:       bus,
		interval:  cfg.Interval,
		log:       cfg.Logger,
		Collector: NewCollector(),
	}, nil
}

// Interval returns the request period.
func (m *Monitor) Interval() time.Duration {
	return m.interval
}

// Run sends a bulk request immediately and then every interval, and
// delivers each completed snapshot on out. Inbound frames are handled on
// the transport's goroutine concurrently with the request loop. A failed
// request is logged and counted; the next tick retries. Run returns nil
// once ctx is cancelled. It does not close out.
func (m *Monitor) Run(ctx context.Context, out chan<- Snapshot) error {
	cancel := m.bus.Subscribe(func(f canbus.Frame) {
		snap, ok := m.HandleFrame(f)
		if !ok {
			return
		}
		select {
		case out <- snap:
		case <-ctx.Done():
		}
	})
	defer cancel()

	m.log.WithField("interval", m.interval).Info("polling rectifier")

	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	m.request()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			m.request()
		}
	}
}

func (m *Monitor) request() {
	err := m.bus.Send(NewRequestFrame())
	m.RecordRequest(err)
	if err != nil {
		m.log.WithError(err).Warn("telemetry request failed")
		return
	}
	m.log.Debug("telemetry request sent")
}
