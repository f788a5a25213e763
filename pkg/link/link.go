// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package link configures a SocketCAN network interface with ip(8).
package link

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strconv"
	"strings"

	"github.com/sirupsen/logrus"
)

// DefaultRestartMS is the automatic bus-off restart delay.
const DefaultRestartMS = 1500

// ErrPermission indicates the caller lacks CAP_NET_ADMIN.
var ErrPermission = errors.New("link: operation not permitted (run as root or grant CAP_NET_ADMIN)")

// Runner runs an external command and returns its combined output.
type Runner interface {
	Run(ctx context.Context, name string, args ...string) ([]byte, error)
}

// ExecRunner runs commands with os/exec.
type ExecRunner struct{}

func (ExecRunner) Run(ctx context.Context, name string, args ...string) ([]byte, error) {
	return exec.CommandContext(ctx, name, args...).CombinedOutput()
}

// Configurator prepares a CAN interface for use.
type Configurator interface {
	Configure(ctx context.Context, iface string) error
}

// IPLink configures an interface by running
//
//	ip link set down <iface>
//	ip link set <iface> type can bitrate <N> restart-ms <M>
//	ip link set up <iface>
type IPLink struct {
	runner    Runner
	bitrate   int
	restartMS int
	log       logrus.FieldLogger
}

// NewIPLink creates a configurator. A nil runner uses ExecRunner.
func NewIPLink(runner Runner, bitrate, restartMS int, log logrus.FieldLogger) *IPLink {
	if runner == nil {
		runner = ExecRunner{}
	}
	if restartMS <= 0 {
		restartMS = DefaultRestartMS
	}
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &IPLink{runner: runner, bitrate: bitrate, restartMS: restartMS, log: log}
}

// Commands returns the ip(8) argument lists Configure runs, in order.
func (l *IPLink) Commands(iface string) [][]string {
	return [][]string{
		{"link", "set", "down", iface},
		{"link", "set", iface, "type", "can",
			"bitrate", strconv.Itoa(l.bitrate),
			"restart-ms", strconv.Itoa(l.restartMS)},
		{"link", "set", "up", iface},
	}
}

// Configure brings the link down, sets the CAN bit timing and brings it
// back up. A failure to bring the link down is logged and ignored since
// the link may already be down.
func (l *IPLink) Configure(ctx context.Context, iface string) error {
	if iface == "" {
		return errors.New("link: interface name is empty")
	}
	if l.bitrate <= 0 {
		return fmt.Errorf("link: invalid bitrate %d", l.bitrate)
	}

	for i, args := range l.Commands(iface) {
		out, err := l.runner.Run(ctx, "ip", args...)
		if err == nil {
			l.log.WithField("cmd", "ip "+strings.Join(args, " ")).Debug("link command ok")
			continue
		}

		msg := strings.TrimSpace(string(out))
		if i == 0 {
			l.log.WithError(err).WithField("output", msg).Warn("could not bring link down")
			continue
		}
		if strings.Contains(msg, "Operation not permitted") {
			return fmt.Errorf("ip %s: %w", strings.Join(args, " "), ErrPermission)
		}
		if msg != "" {
			return fmt.Errorf("ip %s: %s: %w", strings.Join(args, " "), msg, err)
		}
		return fmt.Errorf("ip %s: %w", strings.Join(args, " "), err)
	}

	l.log.WithFields(logrus.Fields{
		"interface":  iface,
		"bitrate":    l.bitrate,
		"restart_ms": l.restartMS,
	}).Info("CAN link configured")
	return nil
}
