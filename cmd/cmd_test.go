// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"bytes"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/Thermoquad/r48ctl/pkg/canbus"
	"github.com/Thermoquad/r48ctl/pkg/config"
	"github.com/Thermoquad/r48ctl/pkg/r48"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/sirupsen/logrus"
)

// recordingBus records sent frames and optionally fails every send.
type recordingBus struct {
	mu   sync.Mutex
	sent []canbus.Frame
	err  error
}

func (b *recordingBus) Send(f canbus.Frame) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.err != nil {
		return b.err
	}
	b.sent = append(b.sent, f)
	return nil
}

func (b *recordingBus) Subscribe(canbus.Handler) func() { return func() {} }
func (b *recordingBus) Close() error                    { return nil }

func (b *recordingBus) frames() []canbus.Frame {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]canbus.Frame(nil), b.sent...)
}

// fakeRectifier answers every telemetry request with one reply per
// property.
func fakeRectifier(bus canbus.Bus) {
	bus.Subscribe(func(f canbus.Frame) {
		if !r48.IsRequest(f) {
			return
		}
		for _, p := range r48.Properties() {
			bus.Send(r48.NewTelemetryFrame(0x0681FE7F, p, float64(p)*10))
		}
	})
}

func changedSet(names ...string) func(string) bool {
	set := make(map[string]bool, len(names))
	for _, n := range names {
		set[n] = true
	}
	return func(name string) bool { return set[name] }
}

// ============================================================
// Flag Handling Tests
// ============================================================

func TestApplyFlagOverrides(t *testing.T) {
	dst := config.Default()
	dst.Interface = "can1"
	dst.Bitrate = 250000

	src := &config.Config{
		Interface: "vcan0",
		Transport: config.TransportSLCAN,
		Port:      "/dev/ttyACM0",
		Bitrate:   125000,
		WriteID:   "0x06080783",
		Log:       config.LogConfig{Level: "debug"},
	}

	applyFlagOverrides(dst, src, changedSet("transport", "port", "write-id", "log-level"))

	if dst.Interface != "can1" {
		t.Errorf("Interface = %q, want can1 (flag not set)", dst.Interface)
	}
	if dst.Bitrate != 250000 {
		t.Errorf("Bitrate = %d, want 250000 (flag not set)", dst.Bitrate)
	}
	if dst.Transport != config.TransportSLCAN || dst.Port != "/dev/ttyACM0" {
		t.Errorf("Transport, Port = %q, %q, want slcan, /dev/ttyACM0", dst.Transport, dst.Port)
	}
	if dst.WriteID != "0x06080783" {
		t.Errorf("WriteID = %q, want 0x06080783", dst.WriteID)
	}
	if dst.Log.Level != "debug" || dst.Log.Format != "text" {
		t.Errorf("Log = %+v, want level debug, format text", dst.Log)
	}
}

func TestApplyMonitorOverrides(t *testing.T) {
	dst := config.Default()
	src := &config.Config{
		PollInterval: 5 * time.Second,
		Textfile:     config.TextfileConfig{Path: ""},
		Redis:        config.RedisConfig{Addr: "localhost:6379", History: 50},
	}

	applyMonitorOverrides(dst, src, changedSet("interval", "textfile", "redis", "redis-history"))

	if dst.PollInterval != 5*time.Second {
		t.Errorf("PollInterval = %s, want 5s", dst.PollInterval)
	}
	if dst.Textfile.Path != "" {
		t.Errorf("Textfile.Path = %q, want disabled", dst.Textfile.Path)
	}
	if dst.Redis.Addr != "localhost:6379" || dst.Redis.History != 50 {
		t.Errorf("Redis = %+v", dst.Redis)
	}
	if dst.Redis.Channel != "r48:snapshots" {
		t.Errorf("Redis.Channel = %q, want default kept", dst.Redis.Channel)
	}
}

func TestParseOnOff(t *testing.T) {
	tests := []struct {
		in      string
		want    bool
		wantErr bool
	}{
		{"on", true, false},
		{"ON", true, false},
		{"enable", true, false},
		{"1", true, false},
		{"off", false, false},
		{" Off ", false, false},
		{"0", false, false},
		{"maybe", false, true},
		{"", false, true},
	}
	for _, tt := range tests {
		got, err := parseOnOff(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("parseOnOff(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			continue
		}
		if got != tt.want {
			t.Errorf("parseOnOff(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestParseValue(t *testing.T) {
	if v, err := parseValue(" 53.5 "); err != nil || v != 53.5 {
		t.Errorf("parseValue(53.5) = %g, %v, want 53.5", v, err)
	}
	if _, err := parseValue("52V"); err == nil {
		t.Error("parseValue(52V) succeeded, want error")
	}
}

func TestCheckHold(t *testing.T) {
	tests := []struct {
		name     string
		cmd      r48.Command
		interval time.Duration
		wantErr  bool
	}{
		{"no hold", r48.Command{Kind: r48.SetVoltage, Permanent: true}, 0, false},
		{"temporary voltage", r48.Command{Kind: r48.SetVoltage}, 15 * time.Second, false},
		{"temporary current", r48.Command{Kind: r48.SetCurrentValue}, 25 * time.Second, false},
		{"permanent", r48.Command{Kind: r48.SetVoltage, Permanent: true}, 15 * time.Second, true},
		{"walk-in", r48.Command{Kind: r48.WalkIn, Enable: true}, 15 * time.Second, true},
		{"too long", r48.Command{Kind: r48.SetVoltage}, 30 * time.Second, true},
		{"negative", r48.Command{Kind: r48.SetVoltage}, -time.Second, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := checkHold(tt.cmd, tt.interval)
			if (err != nil) != tt.wantErr {
				t.Errorf("checkHold() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestSetupLogger(t *testing.T) {
	log := setupLogger(config.LogConfig{Level: "debug", Format: "json"})
	if log.GetLevel() != logrus.DebugLevel {
		t.Errorf("level = %s, want debug", log.GetLevel())
	}
	if _, ok := log.Formatter.(*logrus.JSONFormatter); !ok {
		t.Errorf("formatter = %T, want *logrus.JSONFormatter", log.Formatter)
	}

	log = setupLogger(config.LogConfig{Level: "loud", Format: "text"})
	if log.GetLevel() != logrus.InfoLevel {
		t.Errorf("level = %s, want info for unknown level", log.GetLevel())
	}
	if _, ok := log.Formatter.(*logrus.TextFormatter); !ok {
		t.Errorf("formatter = %T, want *logrus.TextFormatter", log.Formatter)
	}
}

func TestFormatUptime(t *testing.T) {
	tests := []struct {
		d    time.Duration
		want string
	}{
		{0, "0 seconds"},
		{time.Second, "1 second"},
		{90 * time.Second, "1 minute and 30 seconds"},
		{2*time.Hour + 5*time.Second, "2 hours and 5 seconds"},
		{26*time.Hour + 3*time.Minute + 1500*time.Millisecond, "1 day, 2 hours, 3 minutes and 1 second"},
	}
	for _, tt := range tests {
		if got := formatUptime(tt.d); got != tt.want {
			t.Errorf("formatUptime(%s) = %q, want %q", tt.d, got, tt.want)
		}
	}
}

// ============================================================
// Bus Command Tests
// ============================================================

func TestPacketTest(t *testing.T) {
	lb := canbus.NewLoopbackBus()
	defer lb.Close()
	fakeRectifier(lb.Open())

	if code := packetTest(lb.Open(), 2*time.Second); code != 0 {
		t.Errorf("packetTest() = %d, want 0", code)
	}
}

func TestPacketTest_Timeout(t *testing.T) {
	lb := canbus.NewLoopbackBus()
	defer lb.Close()

	if code := packetTest(lb.Open(), 50*time.Millisecond); code != 1 {
		t.Errorf("packetTest() = %d, want 1", code)
	}
}

func TestPacketTest_SendError(t *testing.T) {
	bus := &recordingBus{err: errors.New("bus off")}
	if code := packetTest(bus, time.Second); code != 2 {
		t.Errorf("packetTest() = %d, want 2", code)
	}
}

func TestPing(t *testing.T) {
	lb := canbus.NewLoopbackBus()
	defer lb.Close()
	fakeRectifier(lb.Open())

	var out bytes.Buffer
	if failed := ping(lb.Open(), &out, 3, 2*time.Second, 0); failed != 0 {
		t.Errorf("ping() = %d failures, want 0\n%s", failed, out.String())
	}
	if !strings.Contains(out.String(), "3 pings sent, 3 responses received, 0% packet loss") {
		t.Errorf("summary missing:\n%s", out.String())
	}
}

func TestPing_NoResponder(t *testing.T) {
	lb := canbus.NewLoopbackBus()
	defer lb.Close()

	var out bytes.Buffer
	if failed := ping(lb.Open(), &out, 2, 20*time.Millisecond, 0); failed != 2 {
		t.Errorf("ping() = %d failures, want 2", failed)
	}
	if !strings.Contains(out.String(), "100% packet loss") {
		t.Errorf("summary missing:\n%s", out.String())
	}
}

func TestReplay(t *testing.T) {
	var capture bytes.Buffer
	w, err := r48.NewCaptureWriter(&capture)
	if err != nil {
		t.Fatalf("NewCaptureWriter failed: %v", err)
	}
	now := time.Now()
	w.Write(now, r48.NewRequestFrame())
	w.Write(now, canbus.Frame{ID: 0x123, Len: 2, Data: [8]byte{0xDE, 0xAD}})
	for _, p := range r48.Properties() {
		w.Write(now, r48.NewTelemetryFrame(0x0681FE7F, p, 42))
	}

	var out bytes.Buffer
	stats, err := replay(&capture, &out, nil)
	if err != nil {
		t.Fatalf("replay failed: %v", err)
	}
	if stats.Snapshots != 1 || stats.TelemetryFrames != 5 || stats.TotalFrames != 7 {
		t.Errorf("stats = %d snapshots, %d telemetry, %d total, want 1, 5, 7",
			stats.Snapshots, stats.TelemetryFrames, stats.TotalFrames)
	}
	if strings.Count(out.String(), "snapshot") != 1 {
		t.Errorf("output:\n%s", out.String())
	}
}

func TestReplay_NotCapture(t *testing.T) {
	_, err := replay(strings.NewReader("not a capture"), &bytes.Buffer{}, nil)
	if err == nil {
		t.Error("replay() succeeded on garbage input")
	}
}

// ============================================================
// Watch TUI Tests
// ============================================================

func newTestWatchModel(t *testing.T, bus canbus.Bus) watchModel {
	t.Helper()
	mon, err := r48.NewMonitor(bus, r48.MonitorConfig{Interval: time.Second, Logger: logger})
	if err != nil {
		t.Fatalf("NewMonitor failed: %v", err)
	}
	ctrl := r48.NewController(bus, r48.DefaultWriteID, logger)
	return initialWatchModel(ctrl, mon, bus, "test")
}

func update(t *testing.T, m watchModel, msg tea.Msg) watchModel {
	t.Helper()
	next, _ := m.Update(msg)
	wm, ok := next.(watchModel)
	if !ok {
		t.Fatalf("Update returned %T, want watchModel", next)
	}
	return wm
}

func typeText(t *testing.T, m watchModel, s string) watchModel {
	return update(t, m, tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)})
}

func TestWatchModel_SendVoltage(t *testing.T) {
	bus := &recordingBus{}
	m := newTestWatchModel(t, bus)

	m = typeText(t, m, "52")
	m = update(t, m, tea.KeyMsg{Type: tea.KeyEnter})

	frames := bus.frames()
	if len(frames) != 1 {
		t.Fatalf("sent %d frames, want 1", len(frames))
	}
	want, _ := r48.NewSetVoltageFrame(r48.DefaultWriteID, 52, false)
	if frames[0] != want {
		t.Errorf("sent %s, want %s", frames[0], want)
	}
	if _, ok := m.held[r48.SetVoltage]; !ok {
		t.Error("temporary voltage is not held")
	}
	if m.voltageInput.Value() != "" {
		t.Errorf("input = %q, want cleared", m.voltageInput.Value())
	}

	// A tick after the hold interval repeats the setting
	m = update(t, m, watchTickMsg(time.Now().Add(watchHoldInterval)))
	if n := len(bus.frames()); n != 2 {
		t.Errorf("sent %d frames after hold tick, want 2", n)
	}

	// Released settings are not repeated
	m = update(t, m, tea.KeyMsg{Type: tea.KeyCtrlX})
	update(t, m, watchTickMsg(time.Now().Add(2*watchHoldInterval)))
	if n := len(bus.frames()); n != 2 {
		t.Errorf("sent %d frames after release, want 2", n)
	}
}

func TestWatchModel_SendCurrentPermanent(t *testing.T) {
	bus := &recordingBus{}
	m := newTestWatchModel(t, bus)

	m = update(t, m, tea.KeyMsg{Type: tea.KeyTab})
	if m.focusedField != focusCurrentInput {
		t.Fatalf("focusedField = %d, want current input", m.focusedField)
	}
	m = update(t, m, tea.KeyMsg{Type: tea.KeyCtrlP})
	m = typeText(t, m, "80")
	m = update(t, m, tea.KeyMsg{Type: tea.KeyEnter})

	frames := bus.frames()
	if len(frames) != 1 {
		t.Fatalf("sent %d frames, want 1", len(frames))
	}
	want, _ := r48.NewSetCurrentPercentFrame(r48.DefaultWriteID, 80, true)
	if frames[0] != want {
		t.Errorf("sent %s, want %s", frames[0], want)
	}
	if len(m.held) != 0 {
		t.Error("permanent setting is held")
	}
}

func TestWatchModel_Errors(t *testing.T) {
	bus := &recordingBus{}
	m := newTestWatchModel(t, bus)

	m = typeText(t, m, "70")
	m = update(t, m, tea.KeyMsg{Type: tea.KeyEnter})
	if len(bus.frames()) != 0 {
		t.Error("out-of-range voltage was sent")
	}
	if len(m.eventLog) == 0 || !m.eventLog[len(m.eventLog)-1].isError {
		t.Error("out-of-range voltage not logged as an error")
	}

	bus.err = errors.New("bus off")
	m = update(t, m, tea.KeyMsg{Type: tea.KeyCtrlR})
	if stats := m.monitor.Stats(); stats.SendErrors != 1 {
		t.Errorf("SendErrors = %d, want 1", stats.SendErrors)
	}
}

func TestWatchModel_Messages(t *testing.T) {
	m := newTestWatchModel(t, &recordingBus{})

	snap := r48.Snapshot{Values: [r48.NumProperties]float64{53.5, 10, 60, 30, 230}, Time: time.Now()}
	m = update(t, m, snapshotMsg(snap))
	if !m.hasSnapshot || m.snapshot.Get(r48.InputVoltage) != 230 {
		t.Errorf("snapshot not stored: %+v", m.snapshot)
	}

	m = update(t, m, logEventMsg{message: "telemetry request failed", isError: true})
	m = update(t, m, monitorStoppedMsg{})
	if !m.stopped || len(m.eventLog) != 2 {
		t.Errorf("stopped = %v, events = %d, want true, 2", m.stopped, len(m.eventLog))
	}

	view := m.View()
	for _, want := range []string{"R48 WATCH", "STOPPED", "53.50", "telemetry request failed"} {
		if !strings.Contains(view, want) {
			t.Errorf("View() missing %q", want)
		}
	}

	next, cmd := m.Update(tea.KeyMsg{Type: tea.KeyEsc})
	if cmd == nil || !next.(watchModel).quitting {
		t.Error("Esc did not quit")
	}
}

func TestWatchModel_LogTrim(t *testing.T) {
	m := newTestWatchModel(t, &recordingBus{})
	for i := 0; i < m.maxLogEntries+10; i++ {
		m.addLogEntry("event", false)
	}
	if len(m.eventLog) != m.maxLogEntries {
		t.Errorf("eventLog has %d entries, want %d", len(m.eventLog), m.maxLogEntries)
	}
}
