// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package r48 implements the CAN protocol of R48-class rectifiers.
//
// It covers the outbound parameter commands (voltage, current, walk-in,
// input limit, restart-on-overvoltage), the inbound telemetry replies,
// and the polling loop that groups replies into complete snapshots.
//
// Numeric payloads are IEEE-754 single precision floats. The rectifier
// expects little-endian bytes in commands but answers with big-endian
// bytes in telemetry; both directions are kept as the device uses them.
package r48

// Arbitration identifiers (29-bit)
const (
	// DefaultWriteID is the command identifier used by most units.
	DefaultWriteID uint32 = 0x06_07_FF_83
	// AltWriteID is reported to work on other installations.
	AltWriteID uint32 = 0x06_08_07_83
	// ReadID carries bulk telemetry requests.
	ReadID uint32 = 0x06_00_07_83
)

// Command header bytes
const (
	cmdHeader0 = 0x03
	cmdHeader1 = 0xF0
	cmdHeader2 = 0x00
)

// Command codes (frame byte 3)
const (
	CodeVoltageTemporary   = 0x21
	CodeVoltagePermanent   = 0x24
	CodeCurrentTemporary   = 0x22
	CodeCurrentPermanent   = 0x19
	CodeWalkIn             = 0x32
	CodeWalkInTime         = 0x29
	CodeInputLimit         = 0x1A
	CodeRestartOvervoltage = 0x39
)

// Telemetry reply marker (frame byte 0)
const ResponseMarker = 0x41

// requestPayload asks the rectifier for all readings at once.
var requestPayload = [8]byte{0x00, 0xF0, 0x00, 0x80, 0x46, 0xA5, 0x34, 0x00}

// Rated output current and the percentage it maps to
const (
	RatedCurrent = 62.5
	RatedPercent = 121.0
)

// NumProperties is the number of telemetry values in a full snapshot.
const NumProperties = 5

// Property identifies one telemetry value (frame byte 3 of a reply).
type Property uint8

const (
	OutputVoltage Property = 0x01
	OutputCurrent Property = 0x02
	CurrentLimit  Property = 0x03
	Temperature   Property = 0x04
	InputVoltage  Property = 0x05
)

type propertyInfo struct {
	name  string
	label string
	unit  string
}

// Indexed by tag-1.
var propertyTable = [NumProperties]propertyInfo{
	{"OutputVoltage", "outputV", "V"},
	{"OutputCurrent", "outputI", "A"},
	{"CurrentLimit", "limitI", "A"},
	{"Temperature", "temp", "°C"},
	{"InputVoltage", "inputV", "V"},
}

// Properties returns all telemetry properties in tag order.
func Properties() []Property {
	return []Property{OutputVoltage, OutputCurrent, CurrentLimit, Temperature, InputVoltage}
}

// Valid reports whether p is a known telemetry tag.
func (p Property) Valid() bool {
	return p >= OutputVoltage && p <= InputVoltage
}

func (p Property) String() string {
	if !p.Valid() {
		return "Unknown"
	}
	return propertyTable[p-1].name
}

// Label is the metric label value for p (e.g. "outputV").
func (p Property) Label() string {
	if !p.Valid() {
		return ""
	}
	return propertyTable[p-1].label
}

// Unit is the physical unit for p.
func (p Property) Unit() string {
	if !p.Valid() {
		return ""
	}
	return propertyTable[p-1].unit
}
