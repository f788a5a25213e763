// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package r48

import (
	"fmt"
	"time"
)

// Statistics tracks bus traffic seen by a Collector or Monitor.
type Statistics struct {
	StartTime      time.Time
	LastUpdateTime time.Time

	// Counters
	TotalFrames     uint64
	TelemetryFrames uint64
	IgnoredFrames   uint64
	Snapshots       uint64
	Requests        uint64
	SendErrors      uint64

	// Rates (calculated)
	FrameRate    float64 // frames/sec
	SnapshotRate float64 // snapshots/min
}

// NewStatistics creates a new statistics tracker
func NewStatistics() *Statistics {
	now := time.Now()
	return &Statistics{
		StartTime:      now,
		LastUpdateTime: now,
	}
}

// UpdateFrame counts one received frame.
func (s *Statistics) UpdateFrame(telemetry, snapshot bool) {
	s.TotalFrames++
	if telemetry {
		s.TelemetryFrames++
	} else {
		s.IgnoredFrames++
	}
	if snapshot {
		s.Snapshots++
	}
	s.LastUpdateTime = time.Now()
}

// UpdateRequest counts one telemetry request attempt.
func (s *Statistics) UpdateRequest(err error) {
	s.Requests++
	if err != nil {
		s.SendErrors++
	}
}

// CalculateRates calculates frame and snapshot rates
func (s *Statistics) CalculateRates() {
	elapsed := time.Since(s.StartTime).Seconds()
	if elapsed > 0 {
		s.FrameRate = float64(s.TotalFrames) / elapsed
		s.SnapshotRate = float64(s.Snapshots) * 60 / elapsed
	}
}

// String returns a formatted statistics summary
func (s *Statistics) String() string {
	s.CalculateRates()

	var telemetryPercent, ignoredPercent float64
	if s.TotalFrames > 0 {
		telemetryPercent = float64(s.TelemetryFrames) * 100.0 / float64(s.TotalFrames)
		ignoredPercent = float64(s.IgnoredFrames) * 100.0 / float64(s.TotalFrames)
	}

	elapsed := time.Since(s.StartTime)

	result := fmt.Sprintf("=== Statistics (%.0f seconds) ===\n", elapsed.Seconds())
	result += fmt.Sprintf("Total Frames:    %8d\n", s.TotalFrames)
	result += fmt.Sprintf("Telemetry:       %8d (%.1f%%)\n", s.TelemetryFrames, telemetryPercent)
	result += fmt.Sprintf("Ignored:         %8d (%.1f%%)\n", s.IgnoredFrames, ignoredPercent)
	result += fmt.Sprintf("Snapshots:       %8d\n", s.Snapshots)

	if s.Requests > 0 {
		result += fmt.Sprintf("Requests:        %8d\n", s.Requests)
	}
	if s.SendErrors > 0 {
		result += fmt.Sprintf("Send Errors:     %8d\n", s.SendErrors)
	}

	result += fmt.Sprintf("Frame Rate:      %8.1f frames/sec\n", s.FrameRate)
	result += fmt.Sprintf("Snapshot Rate:   %8.1f per min\n", s.SnapshotRate)
	result += "================================\n"

	return result
}

// Reset resets all statistics counters
func (s *Statistics) Reset() {
	*s = *NewStatistics()
}
