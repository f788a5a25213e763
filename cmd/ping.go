// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/Thermoquad/r48ctl/pkg/canbus"
	"github.com/Thermoquad/r48ctl/pkg/r48"
	"github.com/spf13/cobra"
)

var (
	pingTimeout int
	pingCount   int
)

var pingCmd = &cobra.Command{
	Use:   "ping",
	Short: "Measure telemetry round trip time",
	Long: `Send telemetry requests to the rectifier and wait for the first
telemetry response to each.

This is useful for verifying:
  - The transport is connected (and authenticated for WebSocket)
  - The bit rate matches the rectifier
  - Requests reach the rectifier and responses come back

Exit codes:
  0 - All pings answered
  1 - One or more pings failed or timed out
  2 - Connection error`,
	RunE: runPing,
}

func init() {
	rootCmd.AddCommand(pingCmd)
	pingCmd.Flags().IntVar(&pingTimeout, "timeout", 5, "Timeout in seconds for each ping")
	pingCmd.Flags().IntVar(&pingCount, "count", 3, "Number of pings to send")
}

func runPing(cmd *cobra.Command, args []string) error {
	bus, connInfo, err := OpenBus()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Connection error: %v\n", err)
		os.Exit(2)
	}

	fmt.Printf("r48ctl - Ping\n")
	fmt.Printf("Connection: %s\n", connInfo)
	fmt.Printf("Timeout: %d seconds per ping\n", pingTimeout)
	fmt.Printf("Count: %d pings\n\n", pingCount)

	failed := ping(bus, os.Stdout, pingCount, time.Duration(pingTimeout)*time.Second, 100*time.Millisecond)
	bus.Close()
	if failed > 0 {
		os.Exit(1)
	}
	return nil
}

// ping sends count requests on bus, prints one line per request and a
// summary to w, and returns the number of unanswered requests.
func ping(bus canbus.Bus, w io.Writer, count int, timeout, gap time.Duration) int {
	replies := make(chan r48.Reading, 8)
	unsubscribe := bus.Subscribe(func(f canbus.Frame) {
		if r, ok := r48.Decode(f); ok {
			select {
			case replies <- r:
			default:
			}
		}
	})
	defer unsubscribe()

	successCount := 0
	failCount := 0

	for i := 1; i <= count; i++ {
		fmt.Fprintf(w, "Ping %d/%d: ", i, count)

		// Drop late replies to the previous request
		for len(replies) > 0 {
			<-replies
		}

		startTime := time.Now()
		if err := bus.Send(r48.NewRequestFrame()); err != nil {
			fmt.Fprintf(w, "SEND FAILED: %v\n", err)
			failCount++
			continue
		}

		select {
		case r := <-replies:
			rtt := time.Since(startTime)
			fmt.Fprintf(w, "reply %s=%.2f %s, rtt=%v\n", r.Property, r.Value, r.Property.Unit(), rtt.Round(time.Millisecond))
			successCount++

		case <-time.After(timeout):
			fmt.Fprintf(w, "TIMEOUT (no response in %s)\n", timeout)
			failCount++
		}

		// Small delay between pings
		if i < count {
			time.Sleep(gap)
		}
	}

	// Summary
	fmt.Fprintf(w, "\n--- Ping statistics ---\n")
	loss := 0.0
	if count > 0 {
		loss = float64(failCount) / float64(count) * 100
	}
	fmt.Fprintf(w, "%d pings sent, %d responses received, %.0f%% packet loss\n", count, successCount, loss)
	return failCount
}
