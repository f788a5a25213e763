// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/Thermoquad/r48ctl/pkg/exporter"
	"github.com/Thermoquad/r48ctl/pkg/r48"
	"github.com/spf13/cobra"
)

var (
	replayTextfile string
	replayQuiet    bool
)

var replayCmd = &cobra.Command{
	Use:   "replay <capture>",
	Short: "Decode a capture recorded with raw_log --record",
	Long: `Feed every frame of a capture file through the telemetry decoder and
snapshot aggregator, printing each completed snapshot and a statistics
summary.

With --textfile each snapshot is also published to a textfile, which is
useful for testing a node_exporter setup without a rectifier.`,
	Args: cobra.ExactArgs(1),
	RunE: runReplay,
}

func init() {
	rootCmd.AddCommand(replayCmd)
	replayCmd.Flags().StringVar(&replayTextfile, "textfile", "", "Publish snapshots to this textfile")
	replayCmd.Flags().BoolVarP(&replayQuiet, "quiet", "q", false, "Only print the statistics summary")
}

func runReplay(cmd *cobra.Command, args []string) error {
	f, err := os.Open(args[0])
	if err != nil {
		return err
	}
	defer f.Close()

	var publisher exporter.Publisher
	if replayTextfile != "" {
		publisher = exporter.NewTextfile(replayTextfile, settings.Textfile.Metric)
	}

	fmt.Printf("r48ctl - Replay\n")
	fmt.Printf("Capture: %s\n\n", args[0])

	stats, err := replay(f, cmd.OutOrStdout(), publisher)
	fmt.Print(stats.String())
	return err
}

// replay decodes the capture in r, writing snapshots to w unless quiet
// and publishing them when publisher is set.
func replay(r io.Reader, w io.Writer, publisher exporter.Publisher) (r48.Statistics, error) {
	col := r48.NewCollector()

	reader, err := r48.NewCaptureReader(r)
	if err != nil {
		return col.Stats(), err
	}

	err = r48.Replay(reader, col, func(s r48.Snapshot) {
		if !replayQuiet {
			fmt.Fprint(w, r48.FormatSnapshot(s))
		}
		if publisher != nil {
			if err := publisher.Publish(context.Background(), s); err != nil {
				logger.WithError(err).Error("publish failed")
			}
		}
	})
	return col.Stats(), err
}
