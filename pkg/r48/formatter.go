// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package r48

import (
	"encoding/binary"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/Thermoquad/r48ctl/pkg/canbus"
)

// FormatFrame formats a frame with a timestamp and, when recognised, a
// protocol description.
func FormatFrame(f canbus.Frame, t time.Time) string {
	result := fmt.Sprintf("[%s] %s", t.Format("15:04:05.000"), f.String())
	if desc := DescribeFrame(f); desc != "" {
		result += "  " + desc
	}
	return result
}

// DescribeFrame returns a short description of a protocol frame, or ""
// for unrelated traffic.
func DescribeFrame(f canbus.Frame) string {
	if r, ok := Decode(f); ok {
		return fmt.Sprintf("TELEMETRY %s=%.2f %s", r.Property, r.Value, r.Property.Unit())
	}
	if IsRequest(f) {
		return "REQUEST all"
	}
	if f.Len == 8 && f.Data[0] == cmdHeader0 && f.Data[1] == cmdHeader1 && f.Data[2] == cmdHeader2 {
		return describeCommand(f.Data[3], f.Data[4:8])
	}
	return ""
}

func describeCommand(code byte, payload []byte) string {
	value := float64(math.Float32frombits(binary.LittleEndian.Uint32(payload)))
	flag := payload[1] == 0x01

	switch code {
	case CodeVoltageTemporary:
		return fmt.Sprintf("SET_VOLTAGE %.2f V (temporary)", value)
	case CodeVoltagePermanent:
		return fmt.Sprintf("SET_VOLTAGE %.2f V (permanent)", value)
	case CodeCurrentTemporary:
		return fmt.Sprintf("SET_CURRENT %.1f %% (temporary)", value*100)
	case CodeCurrentPermanent:
		return fmt.Sprintf("SET_CURRENT %.1f %% (permanent)", value*100)
	case CodeWalkIn:
		return "WALK_IN " + onOff(flag)
	case CodeWalkInTime:
		return fmt.Sprintf("WALK_IN_TIME %.1f s", value)
	case CodeInputLimit:
		return fmt.Sprintf("INPUT_LIMIT %.2f A", value)
	case CodeRestartOvervoltage:
		return "RESTART_OVERVOLTAGE " + onOff(flag)
	default:
		return fmt.Sprintf("COMMAND 0x%02X", code)
	}
}

func onOff(b bool) string {
	if b {
		return "on"
	}
	return "off"
}

// FormatSnapshot formats a snapshot as one line per property.
func FormatSnapshot(s Snapshot) string {
	var b strings.Builder
	fmt.Fprintf(&b, "[%s] snapshot\n", s.Time.Format("15:04:05.000"))
	for _, p := range Properties() {
		fmt.Fprintf(&b, "  %-14s %8.2f %s\n", p.String()+":", s.Get(p), p.Unit())
	}
	return b.String()
}
