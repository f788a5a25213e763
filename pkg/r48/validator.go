// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package r48

import (
	"errors"
	"fmt"
	"math"
)

// ErrOutOfRange is matched by every *OutOfRangeError.
var ErrOutOfRange = errors.New("r48: value out of range")

// OutOfRangeError reports a parameter outside its allowed bounds.
// Nothing is sent when a builder returns it.
type OutOfRangeError struct {
	Parameter string
	Value     float64
	Min       float64
	Max       float64
}

func (e *OutOfRangeError) Error() string {
	return fmt.Sprintf("%s %g out of range [%g, %g]", e.Parameter, e.Value, e.Min, e.Max)
}

func (e *OutOfRangeError) Unwrap() error {
	return ErrOutOfRange
}

// TransportError reports a failure to hand a frame to the bus.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("%s: send failed: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// Range is an inclusive bound in physical units.
type Range struct {
	Min float64
	Max float64
}

// Parameter ranges
var (
	VoltageRange        = Range{Min: 41.0, Max: 58.5}
	CurrentPercentRange = Range{Min: 10, Max: RatedPercent}
	CurrentAmpsRange    = Range{Min: 5.5, Max: RatedCurrent}
	InputLimitRange     = Range{Min: 0, Max: math.MaxFloat32}
	WalkInTimeRange     = Range{Min: 0, Max: math.MaxFloat32}
)

// Check returns an *OutOfRangeError when v is outside r or not finite.
func (r Range) Check(parameter string, v float64) error {
	if math.IsNaN(v) || math.IsInf(v, 0) || v < r.Min || v > r.Max {
		return &OutOfRangeError{Parameter: parameter, Value: v, Min: r.Min, Max: r.Max}
	}
	return nil
}

// Contains reports whether v is a finite value within r.
func (r Range) Contains(v float64) bool {
	return r.Check("", v) == nil
}
