// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package canbus

import (
	"fmt"

	"github.com/sirupsen/logrus"
)

// LogOption is a bitmask for selecting which directions to log.
type LogOption uint8

const (
	LogNone  LogOption = 0
	LogRead  LogOption = 1 << iota
	LogWrite
	LogAll = LogRead | LogWrite
)

// NewLoggedBus wraps the given Bus and logs selected traffic at the given
// level. Send failures are always logged at error level when LogWrite is set.
func NewLoggedBus(inner Bus, logger logrus.FieldLogger, level logrus.Level, opts LogOption) Bus {
	return &loggedBus{
		inner:  inner,
		logger: logger,
		level:  level,
		opts:   opts,
	}
}

type loggedBus struct {
	inner  Bus
	logger logrus.FieldLogger
	level  logrus.Level
	opts   LogOption
}

func frameFields(f Frame) logrus.Fields {
	return logrus.Fields{
		"id":       fmt.Sprintf("0x%08X", f.ID),
		"extended": f.Extended,
		"len":      int(f.Len),
		"data":     fmt.Sprintf("% X", f.Payload()),
	}
}

func (l *loggedBus) log(msg string, f Frame) {
	entry := l.logger.WithFields(frameFields(f))
	switch l.level {
	case logrus.TraceLevel, logrus.DebugLevel:
		entry.Debug(msg)
	case logrus.WarnLevel:
		entry.Warn(msg)
	case logrus.ErrorLevel:
		entry.Error(msg)
	default:
		entry.Info(msg)
	}
}

func (l *loggedBus) Send(frame Frame) error {
	if l.opts&LogWrite != 0 {
		l.log("canbus send", frame)
	}
	err := l.inner.Send(frame)
	if l.opts&LogWrite != 0 && err != nil {
		l.logger.WithFields(frameFields(frame)).WithError(err).Error("canbus send error")
	}
	return err
}

func (l *loggedBus) Subscribe(h Handler) func() {
	if l.opts&LogRead == 0 {
		return l.inner.Subscribe(h)
	}
	return l.inner.Subscribe(func(f Frame) {
		l.log("canbus receive", f)
		h(f)
	})
}

// Close forwards to the inner Bus without logging.
func (l *loggedBus) Close() error {
	return l.inner.Close()
}
