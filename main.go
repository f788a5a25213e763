// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad
//
// r48ctl - R48 rectifier CAN control and telemetry tool

package main

import (
	"os"

	"github.com/Thermoquad/r48ctl/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
