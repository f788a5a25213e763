// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package r48

import (
	"encoding/binary"
	"math"
)

// FloatToBytes encodes v as an IEEE-754 single precision float in
// little-endian order, the layout the rectifier expects in commands.
func FloatToBytes(v float64) [4]byte {
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], math.Float32bits(float32(v)))
	return b
}

// BytesToFloat decodes a big-endian IEEE-754 single precision float, the
// layout the rectifier uses in telemetry replies. Any input decodes,
// including NaN and infinities.
func BytesToFloat(b [4]byte) float64 {
	return float64(math.Float32frombits(binary.BigEndian.Uint32(b[:])))
}

// floatToBytesBE encodes v the way the rectifier sends it back.
func floatToBytesBE(v float64) [4]byte {
	var b [4]byte
	binary.BigEndian.PutUint32(b[:], math.Float32bits(float32(v)))
	return b
}
