// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package r48

import (
	"context"
	"fmt"
	"time"

	"github.com/Thermoquad/r48ctl/pkg/canbus"
	"github.com/sirupsen/logrus"
)

// CommandKind selects the rectifier parameter a Command sets.
type CommandKind int

const (
	SetVoltage CommandKind = iota
	SetCurrentPercent
	SetCurrentValue
	WalkIn
	LimitInput
	RestartOnOvervoltage
)

func (k CommandKind) String() string {
	switch k {
	case SetVoltage:
		return "set voltage"
	case SetCurrentPercent:
		return "set current"
	case SetCurrentValue:
		return "set current value"
	case WalkIn:
		return "walk-in"
	case LimitInput:
		return "limit input"
	case RestartOnOvervoltage:
		return "restart on overvoltage"
	default:
		return fmt.Sprintf("command(%d)", int(k))
	}
}

// Command is one parameter change.
//
// Value carries volts, percent, amps or walk-in seconds depending on Kind.
// Permanent applies to SetVoltage, SetCurrentPercent and SetCurrentValue
// only. Enable applies to WalkIn and RestartOnOvervoltage only.
type Command struct {
	Kind      CommandKind
	Value     float64
	Permanent bool
	Enable    bool
}

// Frames validates the command and builds its frame(s) for writeID.
func (c Command) Frames(writeID uint32) ([]canbus.Frame, error) {
	switch c.Kind {
	case SetVoltage:
		return single(NewSetVoltageFrame(writeID, c.Value, c.Permanent))
	case SetCurrentPercent:
		return single(NewSetCurrentPercentFrame(writeID, c.Value, c.Permanent))
	case SetCurrentValue:
		return single(NewSetCurrentValueFrame(writeID, c.Value, c.Permanent))
	case WalkIn:
		return NewWalkInFrames(writeID, c.Enable, c.Value)
	case LimitInput:
		return single(NewInputLimitFrame(writeID, c.Value))
	case RestartOnOvervoltage:
		return []canbus.Frame{NewRestartOvervoltageFrame(writeID, c.Enable)}, nil
	default:
		return nil, fmt.Errorf("unknown command kind %d", int(c.Kind))
	}
}

// Temporary reports whether the setting expires on the device unless it
// is repeated.
func (c Command) Temporary() bool {
	switch c.Kind {
	case SetVoltage, SetCurrentPercent, SetCurrentValue:
		return !c.Permanent
	}
	return false
}

func single(f canbus.Frame, err error) ([]canbus.Frame, error) {
	if err != nil {
		return nil, err
	}
	return []canbus.Frame{f}, nil
}

// commandFrame builds [03 F0 00 code v0 v1 v2 v3].
func commandFrame(writeID uint32, code byte, value [4]byte) canbus.Frame {
	return canbus.Frame{
		ID:       writeID,
		Extended: true,
		Len:      8,
		Data:     [8]byte{cmdHeader0, cmdHeader1, cmdHeader2, code, value[0], value[1], value[2], value[3]},
	}
}

// NewSetVoltageFrame builds an output voltage command.
func NewSetVoltageFrame(writeID uint32, volts float64, permanent bool) (canbus.Frame, error) {
	if err := VoltageRange.Check("voltage", volts); err != nil {
		return canbus.Frame{}, err
	}
	code := byte(CodeVoltageTemporary)
	if permanent {
		code = CodeVoltagePermanent
	}
	return commandFrame(writeID, code, FloatToBytes(volts)), nil
}

// NewSetCurrentPercentFrame builds an output current command from a
// percentage of rated current. The payload carries percent/100.
func NewSetCurrentPercentFrame(writeID uint32, percent float64, permanent bool) (canbus.Frame, error) {
	if err := CurrentPercentRange.Check("current percent", percent); err != nil {
		return canbus.Frame{}, err
	}
	code := byte(CodeCurrentTemporary)
	if permanent {
		code = CodeCurrentPermanent
	}
	return commandFrame(writeID, code, FloatToBytes(percent/100)), nil
}

// AmpsToPercent converts an absolute current to the percentage used on
// the wire.
func AmpsToPercent(amps float64) float64 {
	return amps / RatedCurrent * RatedPercent
}

// NewSetCurrentValueFrame builds an output current command from amps.
func NewSetCurrentValueFrame(writeID uint32, amps float64, permanent bool) (canbus.Frame, error) {
	if err := CurrentAmpsRange.Check("current", amps); err != nil {
		return canbus.Frame{}, err
	}
	return NewSetCurrentPercentFrame(writeID, AmpsToPercent(amps), permanent)
}

// NewWalkInFrames builds the walk-in (ramp up) command. Disabling is one
// frame; enabling is the enable frame followed by the ramp time frame.
func NewWalkInFrames(writeID uint32, enable bool, seconds float64) ([]canbus.Frame, error) {
	if !enable {
		return []canbus.Frame{commandFrame(writeID, CodeWalkIn, [4]byte{})}, nil
	}
	if err := WalkInTimeRange.Check("walk-in time", seconds); err != nil {
		return nil, err
	}
	return []canbus.Frame{
		commandFrame(writeID, CodeWalkIn, [4]byte{0x00, 0x01, 0x00, 0x00}),
		commandFrame(writeID, CodeWalkInTime, FloatToBytes(seconds)),
	}, nil
}

// NewInputLimitFrame builds the AC input current limit command.
func NewInputLimitFrame(writeID uint32, amps float64) (canbus.Frame, error) {
	if err := InputLimitRange.Check("input limit", amps); err != nil {
		return canbus.Frame{}, err
	}
	return commandFrame(writeID, CodeInputLimit, FloatToBytes(amps)), nil
}

// NewRestartOvervoltageFrame builds the restart-after-overvoltage command.
func NewRestartOvervoltageFrame(writeID uint32, enable bool) canbus.Frame {
	var v [4]byte
	if enable {
		v[1] = 0x01
	}
	return commandFrame(writeID, CodeRestartOvervoltage, v)
}

// Controller sends parameter commands to one rectifier.
type Controller struct {
	bus     canbus.Bus
	writeID uint32
	log     logrus.FieldLogger
}

// NewController creates a controller writing to writeID on bus.
func NewController(bus canbus.Bus, writeID uint32, logger logrus.FieldLogger) *Controller {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Controller{bus: bus, writeID: writeID, log: logger}
}

// WriteID returns the command identifier in use.
func (c *Controller) WriteID() uint32 {
	return c.writeID
}

// Apply validates cmd and sends its frames once. Validation failures
// return an *OutOfRangeError and send nothing; a bus failure returns a
// *TransportError and is not retried.
func (c *Controller) Apply(cmd Command) error {
	frames, err := cmd.Frames(c.writeID)
	if err != nil {
		return err
	}
	for _, f := range frames {
		if err := c.bus.Send(f); err != nil {
			return &TransportError{Op: cmd.Kind.String(), Err: err}
		}
		c.log.WithFields(logrus.Fields{
			"command": cmd.Kind.String(),
			"frame":   f.String(),
		}).Debug("command sent")
	}
	return nil
}

// Hold applies cmd immediately and then again every interval until ctx is
// done. Temporary settings lapse on the device after about 30 seconds,
// so interval should be shorter than that.
func (c *Controller) Hold(ctx context.Context, cmd Command, interval time.Duration) error {
	if err := c.Apply(cmd); err != nil {
		return err
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if err := c.Apply(cmd); err != nil {
				c.log.WithError(err).Warn("repeat failed")
			}
		}
	}
}

func (c *Controller) SetVoltage(volts float64, permanent bool) error {
	return c.Apply(Command{Kind: SetVoltage, Value: volts, Permanent: permanent})
}

func (c *Controller) SetCurrentPercent(percent float64, permanent bool) error {
	return c.Apply(Command{Kind: SetCurrentPercent, Value: percent, Permanent: permanent})
}

func (c *Controller) SetCurrentValue(amps float64, permanent bool) error {
	return c.Apply(Command{Kind: SetCurrentValue, Value: amps, Permanent: permanent})
}

// WalkIn enables the output ramp with the given duration, or disables it.
// seconds is ignored when disabling.
func (c *Controller) WalkIn(enable bool, seconds float64) error {
	return c.Apply(Command{Kind: WalkIn, Value: seconds, Enable: enable})
}

func (c *Controller) LimitInput(amps float64) error {
	return c.Apply(Command{Kind: LimitInput, Value: amps})
}

func (c *Controller) RestartOnOvervoltage(enable bool) error {
	return c.Apply(Command{Kind: RestartOnOvervoltage, Enable: enable})
}
