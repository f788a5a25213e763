// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/Thermoquad/r48ctl/pkg/canbus"
	"github.com/Thermoquad/r48ctl/pkg/r48"
	"github.com/spf13/cobra"
)

var (
	recordFile      string
	requestInterval time.Duration
)

var rawLogCmd = &cobra.Command{
	Use:   "raw_log",
	Short: "Display raw CAN frames in human-readable format",
	Long: `Continuously display CAN frames as they arrive.

Each frame is shown with a timestamp, its id and data bytes, and a decoded
description when it is an R48 telemetry response, telemetry request or
parameter command.

With --record every frame is also written to a capture file that can be
fed back through the decoder with 'r48ctl replay'.

The rectifier only answers when asked; use --request-interval to poll it
while logging.`,
	RunE: runRawLog,
}

func init() {
	rootCmd.AddCommand(rawLogCmd)
	rawLogCmd.Flags().StringVar(&recordFile, "record", "", "Write a capture of every frame to this file")
	rawLogCmd.Flags().DurationVar(&requestInterval, "request-interval", 0, "Send a telemetry request at this interval (0 disables)")
}

func runRawLog(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var capture *r48.CaptureWriter
	if recordFile != "" {
		f, err := os.Create(recordFile)
		if err != nil {
			return fmt.Errorf("create capture: %w", err)
		}
		defer f.Close()

		capture, err = r48.NewCaptureWriter(f)
		if err != nil {
			return fmt.Errorf("write capture header: %w", err)
		}
	}

	bus, connInfo, err := OpenBus()
	if err != nil {
		return err
	}
	defer bus.Close()

	fmt.Printf("r48ctl - Raw Frame Log\n")
	fmt.Printf("Connection: %s\n", connInfo)
	if recordFile != "" {
		fmt.Printf("Recording: %s\n", recordFile)
	}
	fmt.Printf("Press Ctrl+C to exit\n\n")

	var mu sync.Mutex
	unsubscribe := bus.Subscribe(func(f canbus.Frame) {
		now := time.Now()

		mu.Lock()
		defer mu.Unlock()
		fmt.Println(r48.FormatFrame(f, now))
		if capture != nil {
			if err := capture.Write(now, f); err != nil {
				logger.WithError(err).Error("capture write failed")
			}
		}
	})
	defer unsubscribe()

	if requestInterval > 0 {
		go pollRequests(ctx, bus, requestInterval)
	}

	<-ctx.Done()
	return nil
}

// pollRequests sends a telemetry request now and then every interval
// until ctx is done.
func pollRequests(ctx context.Context, bus canbus.Bus, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		if err := bus.Send(r48.NewRequestFrame()); err != nil {
			logger.WithError(err).Warn("telemetry request failed")
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
