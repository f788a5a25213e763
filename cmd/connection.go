// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"bufio"
	"fmt"
	"os"
	"strings"
	"syscall"

	"github.com/Thermoquad/r48ctl/pkg/canbus"
	"github.com/Thermoquad/r48ctl/pkg/config"
	"github.com/Thermoquad/r48ctl/pkg/r48"
	"github.com/sirupsen/logrus"
	"golang.org/x/term"
)

// GetPassword retrieves password from environment or prompts user
func GetPassword() (string, error) {
	// First check environment variable
	if pw := os.Getenv("R48_PASSWORD"); pw != "" {
		return pw, nil
	}

	// Prompt user for password (hide input)
	fmt.Fprint(os.Stderr, "Password: ")

	// Read password without echo
	passwordBytes, err := term.ReadPassword(int(syscall.Stdin))
	if err != nil {
		// Fallback to regular input if terminal functions fail
		reader := bufio.NewReader(os.Stdin)
		password, err := reader.ReadString('\n')
		if err != nil {
			return "", fmt.Errorf("failed to read password: %v", err)
		}
		fmt.Fprintln(os.Stderr) // newline after password
		return strings.TrimSpace(password), nil
	}

	fmt.Fprintln(os.Stderr) // newline after password
	return string(passwordBytes), nil
}

// OpenBus opens the transport selected in settings. At debug level every
// frame is logged.
func OpenBus() (canbus.Bus, string, error) {
	var (
		bus      canbus.Bus
		connInfo string
		err      error
	)

	switch settings.Transport {
	case config.TransportSLCAN:
		bus, err = canbus.DialSLCAN(settings.Port, settings.Baud, settings.Bitrate)
		connInfo = fmt.Sprintf("SLCAN: %s @ %d baud, %d bit/s", settings.Port, settings.Baud, settings.Bitrate)

	case config.TransportWebSocket:
		password := ""
		if settings.Username != "" {
			password, err = GetPassword()
			if err != nil {
				return nil, "", err
			}
		}
		bus, err = canbus.DialWebSocket(settings.URL, settings.Username, password, settings.NoSSLVerify)
		connInfo = fmt.Sprintf("WebSocket: %s", settings.URL)

	default:
		bus, err = canbus.DialSocketCAN(settings.Interface)
		connInfo = fmt.Sprintf("SocketCAN: %s", settings.Interface)
	}
	if err != nil {
		return nil, "", err
	}

	if logger.IsLevelEnabled(logrus.DebugLevel) {
		bus = canbus.NewLoggedBus(bus, logger, logrus.DebugLevel, canbus.LogAll)
	}
	return bus, connInfo, nil
}

// newController creates a command controller on bus for the configured
// write id.
func newController(bus canbus.Bus) (*r48.Controller, error) {
	writeID, err := settings.WriteIDValue()
	if err != nil {
		return nil, err
	}
	return r48.NewController(bus, writeID, logger), nil
}
