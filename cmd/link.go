// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"fmt"
	"strings"

	"github.com/Thermoquad/r48ctl/pkg/link"
	"github.com/spf13/cobra"
)

var (
	linkRestartMS int
	linkDryRun    bool
)

var linkCmd = &cobra.Command{
	Use:   "link",
	Short: "Configure the SocketCAN interface",
	Long: `Bring the CAN interface down, set its bit rate and bus-off restart
delay, and bring it back up:

  ip link set down <interface>
  ip link set <interface> type can bitrate <bitrate> restart-ms <ms>
  ip link set up <interface>

Needs root or CAP_NET_ADMIN. Use --dry-run to print the commands instead.`,
	RunE: runLink,
}

func init() {
	rootCmd.AddCommand(linkCmd)
	linkCmd.Flags().IntVar(&linkRestartMS, "restart-ms", 0, "Bus-off restart delay in milliseconds (default from config, 1500)")
	linkCmd.Flags().BoolVar(&linkDryRun, "dry-run", false, "Print the ip commands without running them")
}

func runLink(cmd *cobra.Command, args []string) error {
	restartMS := settings.Link.RestartMS
	if cmd.Flags().Changed("restart-ms") {
		restartMS = linkRestartMS
	}

	l := link.NewIPLink(nil, settings.Bitrate, restartMS, logger)
	if linkDryRun {
		for _, c := range l.Commands(settings.Interface) {
			fmt.Printf("ip %s\n", strings.Join(c, " "))
		}
		return nil
	}

	if err := l.Configure(context.Background(), settings.Interface); err != nil {
		return err
	}
	fmt.Printf("%s up: bitrate %d, restart-ms %d\n", settings.Interface, settings.Bitrate, restartMS)
	return nil
}
