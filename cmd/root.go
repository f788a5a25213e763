// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"fmt"

	"github.com/Thermoquad/r48ctl/pkg/config"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var (
	// Values bound to persistent flags. Only flags set on the command
	// line override the config file.
	flagValues config.Config
	configFile string

	// Effective settings, resolved before any subcommand runs
	settings = config.Default()
	logger   = logrus.New()
)

var rootCmd = &cobra.Command{
	Use:   "r48ctl",
	Short: "R48 rectifier CAN control and telemetry tool",
	Long: `r48ctl - Control and monitor R48 series rectifiers over CAN.

Sets output voltage, current limit, walk-in, input current limit and
restart-on-overvoltage, and polls the rectifier for telemetry which is
published as a Prometheus textfile, a /metrics endpoint or a Redis stream.

Transports:
  SocketCAN: --interface can0 (default)
  SLCAN:     --transport slcan --port /dev/ttyACM0 [--baud 115200]
  WebSocket: --transport ws --url ws://host/path [--username user]

For WebSocket authentication, the password is read from the R48_PASSWORD
environment variable, or prompted interactively if not set. The --password
flag is intentionally not provided to avoid leaking credentials in shell history.

A YAML config file (--config) can hold every setting; flags given on the
command line take precedence over the file.`,
	Version:           "1.0.0",
	SilenceUsage:      true,
	PersistentPreRunE: loadSettings,
}

func init() {
	flags := rootCmd.PersistentFlags()

	// Transport selection
	flags.StringVarP(&flagValues.Interface, "interface", "i", "can0", "SocketCAN interface")
	flags.StringVarP(&flagValues.Transport, "transport", "t", config.TransportSocketCAN, "Transport (socketcan, slcan, ws)")
	flags.IntVar(&flagValues.Bitrate, "bitrate", 125000, "CAN bit rate")
	flags.StringVar(&flagValues.WriteID, "write-id", "0x0607FF83", "CAN id for parameter commands (0x0607FF83 or 0x06080783)")

	// SLCAN flags
	flags.StringVarP(&flagValues.Port, "port", "p", "", "Serial device of the SLCAN adapter")
	flags.IntVarP(&flagValues.Baud, "baud", "b", 115200, "Baud rate (slcan only)")

	// WebSocket flags
	flags.StringVarP(&flagValues.URL, "url", "u", "", "WebSocket URL (ws:// or wss://)")
	flags.StringVar(&flagValues.Username, "username", "", "Username for HTTP Basic auth")
	flags.BoolVar(&flagValues.NoSSLVerify, "no-ssl-verify", false, "Skip TLS certificate verification (wss:// only)")

	// Config and logging
	flags.StringVar(&configFile, "config", "", "YAML config file")
	flags.StringVar(&flagValues.Log.Level, "log-level", "info", "Log level (debug, info, warn, error)")
	flags.StringVar(&flagValues.Log.Format, "log-format", "text", "Log format (text, json)")
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}

func loadSettings(cmd *cobra.Command, args []string) error {
	cfg := config.Default()
	if configFile != "" {
		loaded, err := config.Load(configFile)
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		cfg = loaded
	}

	applyFlagOverrides(cfg, &flagValues, cmd.Flags().Changed)
	if err := cfg.Validate(); err != nil {
		return err
	}

	settings = cfg
	logger = setupLogger(cfg.Log)
	return nil
}

// applyFlagOverrides copies every persistent flag value for which
// changed reports true from src into dst.
func applyFlagOverrides(dst, src *config.Config, changed func(name string) bool) {
	if changed("interface") {
		dst.Interface = src.Interface
	}
	if changed("transport") {
		dst.Transport = src.Transport
	}
	if changed("bitrate") {
		dst.Bitrate = src.Bitrate
	}
	if changed("write-id") {
		dst.WriteID = src.WriteID
	}
	if changed("port") {
		dst.Port = src.Port
	}
	if changed("baud") {
		dst.Baud = src.Baud
	}
	if changed("url") {
		dst.URL = src.URL
	}
	if changed("username") {
		dst.Username = src.Username
	}
	if changed("no-ssl-verify") {
		dst.NoSSLVerify = src.NoSSLVerify
	}
	if changed("log-level") {
		dst.Log.Level = src.Log.Level
	}
	if changed("log-format") {
		dst.Log.Format = src.Log.Format
	}
}
