// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"fmt"
	"os"
	"sync/atomic"
	"time"

	"github.com/Thermoquad/r48ctl/pkg/canbus"
	"github.com/Thermoquad/r48ctl/pkg/r48"
	"github.com/spf13/cobra"
)

var (
	packetTestTimeout int
)

var packetTestCmd = &cobra.Command{
	Use:   "packet_test",
	Short: "Test connection by requesting one telemetry reply",
	Long: `Send a telemetry request and wait for an R48 telemetry response.

Frames that are not telemetry responses are ignored and counted.

Exit codes:
  0 - Telemetry received before timeout
  1 - Timeout reached without receiving telemetry
  2 - Connection error

Useful for checking wiring, bit rate and termination before running monitor.`,
	RunE: runPacketTest,
}

func init() {
	rootCmd.AddCommand(packetTestCmd)
	packetTestCmd.Flags().IntVar(&packetTestTimeout, "timeout", 10, "Timeout in seconds to wait for telemetry")
}

func runPacketTest(cmd *cobra.Command, args []string) error {
	bus, connInfo, err := OpenBus()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Connection error: %v\n", err)
		os.Exit(2)
	}

	fmt.Printf("r48ctl - Packet Test\n")
	fmt.Printf("Connection: %s\n", connInfo)
	fmt.Printf("Timeout: %d seconds\n", packetTestTimeout)
	fmt.Printf("Waiting for telemetry...\n\n")

	code := packetTest(bus, time.Duration(packetTestTimeout)*time.Second)
	bus.Close()
	os.Exit(code)
	return nil
}

// packetTest sends one telemetry request on bus and returns the exit code.
func packetTest(bus canbus.Bus, timeout time.Duration) int {
	readings := make(chan r48.Reading, 1)
	var ignored atomic.Int64

	unsubscribe := bus.Subscribe(func(f canbus.Frame) {
		r, ok := r48.Decode(f)
		if !ok {
			ignored.Add(1)
			return
		}
		select {
		case readings <- r:
		default:
		}
	})
	defer unsubscribe()

	if err := bus.Send(r48.NewRequestFrame()); err != nil {
		fmt.Fprintf(os.Stderr, "Send error: %v\n", err)
		return 2
	}

	select {
	case r := <-readings:
		if n := ignored.Load(); n > 0 {
			fmt.Printf("(ignored %d unrelated frames)\n", n)
		}
		fmt.Printf("SUCCESS: Received telemetry\n")
		fmt.Printf("  Property: %s (0x%02X)\n", r.Property, uint8(r.Property))
		fmt.Printf("  Value: %.2f %s\n", r.Value, r.Property.Unit())
		return 0

	case <-time.After(timeout):
		fmt.Fprintf(os.Stderr, "TIMEOUT: No telemetry received within %s\n", timeout)
		return 1
	}
}
