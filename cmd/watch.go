// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"fmt"
	"io"

	"github.com/Thermoquad/r48ctl/pkg/r48"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Interactive TUI for monitoring and controlling a rectifier",
	Long: `Monitor and control a rectifier via an interactive terminal UI.

Features:
  - Live telemetry snapshot, refreshed every poll interval
  - Output voltage and current limit inputs
  - Temporary settings are held (re-sent) until released
  - Statistics tracking
  - Event logging

Keys:
  Tab        switch between voltage and current input
  Enter      send the focused setting
  Ctrl+P     toggle temporary / permanent
  Ctrl+R     request telemetry now
  Ctrl+X     release held settings
  Esc        quit

Supports SocketCAN, SLCAN and WebSocket transports.`,
	RunE: runWatch,
}

func init() {
	rootCmd.AddCommand(watchCmd)
}

// tuiHook forwards warnings and errors into the TUI event log while the
// alternate screen is active.
type tuiHook struct {
	p *tea.Program
}

func (h *tuiHook) Levels() []logrus.Level {
	return []logrus.Level{logrus.PanicLevel, logrus.FatalLevel, logrus.ErrorLevel, logrus.WarnLevel}
}

func (h *tuiHook) Fire(e *logrus.Entry) error {
	msg := logEventMsg{message: e.Message, isError: e.Level <= logrus.ErrorLevel}
	if err, ok := e.Data[logrus.ErrorKey].(error); ok {
		msg.message += ": " + err.Error()
	}
	// Send blocks while Update runs; never block the logging goroutine.
	go h.p.Send(msg)
	return nil
}

func runWatch(cmd *cobra.Command, args []string) error {
	bus, connInfo, err := OpenBus()
	if err != nil {
		return err
	}
	defer bus.Close()

	ctrl, err := newController(bus)
	if err != nil {
		return err
	}
	mon, err := r48.NewMonitor(bus, r48.MonitorConfig{
		Interval: settings.PollInterval,
		Logger:   logger,
	})
	if err != nil {
		return err
	}

	m := initialWatchModel(ctrl, mon, bus, connInfo)
	p := tea.NewProgram(m, tea.WithAltScreen(), tea.WithMouseCellMotion())

	// Log lines would corrupt the alternate screen
	logger.SetOutput(io.Discard)
	logger.AddHook(&tuiHook{p: p})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	snapshots := make(chan r48.Snapshot, 1)
	go func() {
		err := mon.Run(ctx, snapshots)
		p.Send(monitorStoppedMsg{err: err})
	}()
	go func() {
		for {
			select {
			case s := <-snapshots:
				p.Send(snapshotMsg(s))
			case <-ctx.Done():
				return
			}
		}
	}()

	_, err = p.Run()
	return err
}

// requestNow sends one telemetry request outside the poll schedule.
func (m *watchModel) requestNow() {
	err := m.bus.Send(r48.NewRequestFrame())
	m.monitor.RecordRequest(err)
	if err != nil {
		m.addLogEntry(fmt.Sprintf("Telemetry request failed: %v", err), true)
		return
	}
	m.addLogEntry("Telemetry requested", false)
}
