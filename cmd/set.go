// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/Thermoquad/r48ctl/pkg/r48"
	"github.com/spf13/cobra"
)

// maxHoldInterval keeps repeats inside the device's ~30 s expiry window.
const maxHoldInterval = 25 * time.Second

var (
	setPermanent bool
	setHold      time.Duration
	walkInTime   float64
)

var setCmd = &cobra.Command{
	Use:   "set",
	Short: "Change a rectifier parameter",
	Long: `Send a single parameter command to the rectifier.

Voltage and current settings are temporary unless --permanent is given.
Temporary settings expire on the rectifier after about 30 seconds; use
--hold to repeat the command until interrupted.

Values are validated before anything is sent:
  voltage        41.0 - 58.5 V
  current        10 - 121 %
  current-amps   5.5 - 62.5 A`,
}

var setVoltageCmd = &cobra.Command{
	Use:   "voltage <volts>",
	Short: "Set the output voltage (41.0-58.5 V)",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		v, err := parseValue(args[0])
		if err != nil {
			return err
		}
		return runSet(r48.Command{Kind: r48.SetVoltage, Value: v, Permanent: setPermanent})
	},
}

var setCurrentCmd = &cobra.Command{
	Use:   "current <percent>",
	Short: "Set the current limit in percent of rated (10-121 %)",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		v, err := parseValue(args[0])
		if err != nil {
			return err
		}
		return runSet(r48.Command{Kind: r48.SetCurrentPercent, Value: v, Permanent: setPermanent})
	},
}

var setCurrentAmpsCmd = &cobra.Command{
	Use:   "current-amps <amps>",
	Short: "Set the current limit in amps (5.5-62.5 A)",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		v, err := parseValue(args[0])
		if err != nil {
			return err
		}
		return runSet(r48.Command{Kind: r48.SetCurrentValue, Value: v, Permanent: setPermanent})
	},
}

var setWalkInCmd = &cobra.Command{
	Use:   "walk-in <on|off>",
	Short: "Enable or disable the output walk-in ramp",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		enable, err := parseOnOff(args[0])
		if err != nil {
			return err
		}
		return runSet(r48.Command{Kind: r48.WalkIn, Value: walkInTime, Enable: enable})
	},
}

var setInputLimitCmd = &cobra.Command{
	Use:   "input-limit <amps>",
	Short: "Set the AC input current limit",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		v, err := parseValue(args[0])
		if err != nil {
			return err
		}
		return runSet(r48.Command{Kind: r48.LimitInput, Value: v})
	},
}

var setRestartOvervoltageCmd = &cobra.Command{
	Use:   "restart-overvoltage <on|off>",
	Short: "Enable or disable automatic restart after overvoltage",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		enable, err := parseOnOff(args[0])
		if err != nil {
			return err
		}
		return runSet(r48.Command{Kind: r48.RestartOnOvervoltage, Enable: enable})
	},
}

func init() {
	rootCmd.AddCommand(setCmd)
	setCmd.AddCommand(setVoltageCmd, setCurrentCmd, setCurrentAmpsCmd,
		setWalkInCmd, setInputLimitCmd, setRestartOvervoltageCmd)

	for _, c := range []*cobra.Command{setVoltageCmd, setCurrentCmd, setCurrentAmpsCmd} {
		c.Flags().BoolVar(&setPermanent, "permanent", false, "Store the setting permanently")
		c.Flags().DurationVar(&setHold, "hold", 0, "Repeat a temporary setting at this interval until interrupted (e.g. 15s)")
	}
	setWalkInCmd.Flags().Float64Var(&walkInTime, "time", 0, "Walk-in ramp time in seconds (on only)")
}

// runSet validates c, opens the transport and sends it.
func runSet(c r48.Command) error {
	writeID, err := settings.WriteIDValue()
	if err != nil {
		return err
	}

	// Validate before touching the bus
	frames, err := c.Frames(writeID)
	if err != nil {
		return err
	}
	if err := checkHold(c, setHold); err != nil {
		return err
	}

	bus, connInfo, err := OpenBus()
	if err != nil {
		return fmt.Errorf("open transport: %w", err)
	}
	defer bus.Close()

	ctrl, err := newController(bus)
	if err != nil {
		return err
	}

	fmt.Printf("r48ctl - %s\n", c.Kind)
	fmt.Printf("Connection: %s\n\n", connInfo)

	if setHold > 0 {
		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		for _, f := range frames {
			fmt.Printf("Holding: %s\n", r48.DescribeFrame(f))
		}
		fmt.Printf("Repeating every %s, press Ctrl+C to stop\n", setHold)
		return ctrl.Hold(ctx, c, setHold)
	}

	if err := ctrl.Apply(c); err != nil {
		return err
	}
	for _, f := range frames {
		fmt.Printf("Sent: %s\n", r48.DescribeFrame(f))
	}
	return nil
}

// checkHold rejects --hold for settings that do not expire and for
// intervals too long to keep a temporary setting alive.
func checkHold(c r48.Command, interval time.Duration) error {
	if interval == 0 {
		return nil
	}
	if !c.Temporary() {
		return fmt.Errorf("--hold only applies to temporary settings")
	}
	if interval < 0 || interval > maxHoldInterval {
		return fmt.Errorf("--hold %s outside (0, %s]", interval, maxHoldInterval)
	}
	return nil
}

func parseValue(s string) (float64, error) {
	v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return 0, fmt.Errorf("invalid number %q", s)
	}
	return v, nil
}

func parseOnOff(s string) (bool, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "on", "enable", "true", "1":
		return true, nil
	case "off", "disable", "false", "0":
		return false, nil
	}
	return false, fmt.Errorf("expected on or off, got %q", s)
}
