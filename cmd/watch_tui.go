// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/Thermoquad/r48ctl/pkg/canbus"
	"github.com/Thermoquad/r48ctl/pkg/r48"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

//////////////////////////////////////////////////////////////
// Constants
//////////////////////////////////////////////////////////////

// watchHoldInterval is how often held temporary settings are re-sent.
const watchHoldInterval = 15 * time.Second

// Focus states
const (
	focusVoltageInput = iota
	focusCurrentInput
	numFocusFields
)

//////////////////////////////////////////////////////////////
// Types
//////////////////////////////////////////////////////////////

// logEntry is one line of the event log
type logEntry struct {
	timestamp time.Time
	message   string
	isError   bool // true for errors, false for info
}

// watchModel is the Bubble Tea model for the watch TUI
type watchModel struct {
	ctrl     *r48.Controller
	monitor  *r48.Monitor
	bus      canbus.Bus
	connInfo string
	started  time.Time

	// Telemetry
	snapshot    r48.Snapshot
	hasSnapshot bool
	stopped     bool

	// Event log
	eventLog      []logEntry
	maxLogEntries int

	// Control
	voltageInput textinput.Model
	currentInput textinput.Model
	focusedField int
	permanent    bool
	held         map[r48.CommandKind]r48.Command
	lastHold     time.Time

	// UI state
	width    int
	height   int
	quitting bool
}

//////////////////////////////////////////////////////////////
// Messages
//////////////////////////////////////////////////////////////

type watchTickMsg time.Time

type snapshotMsg r48.Snapshot

type monitorStoppedMsg struct {
	err error
}

type logEventMsg struct {
	message string
	isError bool
}

//////////////////////////////////////////////////////////////
// Model Initialization
//////////////////////////////////////////////////////////////

func initialWatchModel(ctrl *r48.Controller, mon *r48.Monitor, bus canbus.Bus, connInfo string) watchModel {
	vi := textinput.New()
	vi.Placeholder = "53.50"
	vi.CharLimit = 6
	vi.Width = 8
	vi.Focus()

	ci := textinput.New()
	ci.Placeholder = "100"
	ci.CharLimit = 5
	ci.Width = 8

	return watchModel{
		ctrl:          ctrl,
		monitor:       mon,
		bus:           bus,
		connInfo:      connInfo,
		started:       time.Now(),
		eventLog:      make([]logEntry, 0),
		maxLogEntries: 100,
		voltageInput:  vi,
		currentInput:  ci,
		focusedField:  focusVoltageInput,
		held:          make(map[r48.CommandKind]r48.Command),
		width:         80,
		height:        24,
	}
}

//////////////////////////////////////////////////////////////
// Bubble Tea Interface
//////////////////////////////////////////////////////////////

func (m watchModel) Init() tea.Cmd {
	return tea.Batch(textinput.Blink, watchTickCmd())
}

func watchTickCmd() tea.Cmd {
	return tea.Tick(time.Second, func(t time.Time) tea.Msg {
		return watchTickMsg(t)
	})
}

func (m watchModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKeyMsg(msg)

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m, nil

	case watchTickMsg:
		if len(m.held) > 0 && time.Time(msg).Sub(m.lastHold) >= watchHoldInterval {
			m.repeatHeld(time.Time(msg))
		}
		return m, watchTickCmd()

	case snapshotMsg:
		m.snapshot = r48.Snapshot(msg)
		m.hasSnapshot = true
		return m, nil

	case monitorStoppedMsg:
		m.stopped = true
		if msg.err != nil {
			m.addLogEntry(fmt.Sprintf("Polling stopped: %v", msg.err), true)
		} else {
			m.addLogEntry("Polling stopped", false)
		}
		return m, nil

	case logEventMsg:
		m.addLogEntry(msg.message, msg.isError)
		return m, nil
	}

	var cmd tea.Cmd
	m, cmd = m.updateFocusedInput(msg)
	return m, cmd
}

func (m watchModel) handleKeyMsg(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "esc", "ctrl+c":
		m.quitting = true
		return m, tea.Quit

	case "tab":
		m.cycleFocus(1)
		return m, nil

	case "shift+tab":
		m.cycleFocus(-1)
		return m, nil

	case "ctrl+p":
		m.permanent = !m.permanent
		if m.permanent {
			m.addLogEntry("Mode: permanent", false)
		} else {
			m.addLogEntry("Mode: temporary", false)
		}
		return m, nil

	case "ctrl+r":
		m.requestNow()
		return m, nil

	case "ctrl+x":
		if len(m.held) > 0 {
			m.held = make(map[r48.CommandKind]r48.Command)
			m.addLogEntry("Released held settings", false)
		}
		return m, nil

	case "enter":
		m.sendSetting()
		return m, nil
	}

	var cmd tea.Cmd
	m, cmd = m.updateFocusedInput(msg)
	return m, cmd
}

func (m watchModel) updateFocusedInput(msg tea.Msg) (watchModel, tea.Cmd) {
	var cmd tea.Cmd
	if m.focusedField == focusCurrentInput {
		m.currentInput, cmd = m.currentInput.Update(msg)
	} else {
		m.voltageInput, cmd = m.voltageInput.Update(msg)
	}
	return m, cmd
}

func (m *watchModel) cycleFocus(delta int) {
	m.focusedField = (m.focusedField + delta + numFocusFields) % numFocusFields
	if m.focusedField == focusCurrentInput {
		m.voltageInput.Blur()
		m.currentInput.Focus()
	} else {
		m.currentInput.Blur()
		m.voltageInput.Focus()
	}
}

func (m watchModel) View() string {
	if m.quitting {
		return "Shutting down...\n"
	}

	var s strings.Builder

	// Styles
	titleStyle := lipgloss.NewStyle().
		Bold(true).
		Foreground(lipgloss.Color("12")).
		Background(lipgloss.Color("235")).
		Padding(0, 1)

	headerStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("241"))

	statsLabelStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("12")).
		Bold(true)

	statsValueStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("10"))

	errorStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("9")).
		Bold(true)

	warningStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("11"))

	boxStyle := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(lipgloss.Color("240")).
		Padding(0, 1)

	// Header
	s.WriteString(titleStyle.Render("R48 WATCH"))
	s.WriteString(" ")
	connStatus := m.connInfo
	if m.stopped {
		connStatus = warningStyle.Render("STOPPED")
	}
	s.WriteString(headerStyle.Render(fmt.Sprintf("| %s | Tab=switch Enter=send ^P=mode ^R=request ^X=release Esc=quit", connStatus)))
	s.WriteString("\n")
	s.WriteString(fmt.Sprintf(" %s %s",
		statsLabelStyle.Render("Session:"),
		statsValueStyle.Render(formatUptime(time.Since(m.started)))))
	s.WriteString("\n\n")

	// Layout: left panel (telemetry) | right panel (control)
	leftWidth := 36
	rightWidth := m.width - leftWidth - 6
	if rightWidth < 30 {
		rightWidth = 30
	}
	telemetryPanel := boxStyle.Width(leftWidth).Render(m.renderTelemetry(statsLabelStyle, statsValueStyle, headerStyle))
	controlPanel := boxStyle.Width(rightWidth).Render(m.renderControlPanel(statsLabelStyle, statsValueStyle, warningStyle))
	s.WriteString(lipgloss.JoinHorizontal(lipgloss.Top, telemetryPanel, " ", controlPanel))
	s.WriteString("\n\n")

	// Statistics bar
	s.WriteString(m.renderStatisticsBar(statsLabelStyle, statsValueStyle, errorStyle, boxStyle))
	s.WriteString("\n\n")

	// Event log
	s.WriteString(m.renderEventLog(statsLabelStyle, warningStyle, boxStyle))

	return s.String()
}

//////////////////////////////////////////////////////////////
// View Helpers
//////////////////////////////////////////////////////////////

func (m watchModel) renderTelemetry(statsLabelStyle, statsValueStyle, headerStyle lipgloss.Style) string {
	var s strings.Builder
	s.WriteString(statsLabelStyle.Render("TELEMETRY"))
	s.WriteString("\n")

	if !m.hasSnapshot {
		s.WriteString(headerStyle.Render(fmt.Sprintf("Waiting for snapshot (%d/%d)", m.monitor.Pending(), r48.NumProperties)))
		return s.String()
	}

	for _, p := range r48.Properties() {
		s.WriteString(fmt.Sprintf("%-15s %s\n",
			p.String()+":",
			statsValueStyle.Render(fmt.Sprintf("%8.2f %s", m.snapshot.Get(p), p.Unit()))))
	}
	s.WriteString(headerStyle.Render("Updated " + m.snapshot.Time.Format("15:04:05")))
	return s.String()
}

func (m watchModel) renderControlPanel(statsLabelStyle, statsValueStyle, warningStyle lipgloss.Style) string {
	var s strings.Builder
	s.WriteString(statsLabelStyle.Render("CONTROL"))
	s.WriteString("\n")

	s.WriteString(fmt.Sprintf("%s %s V\n", statsLabelStyle.Render("Voltage:"), m.inputView(m.voltageInput, focusVoltageInput)))
	s.WriteString(fmt.Sprintf("%s %s %%\n\n", statsLabelStyle.Render("Current:"), m.inputView(m.currentInput, focusCurrentInput)))

	mode := "temporary"
	if m.permanent {
		mode = warningStyle.Render("permanent")
	}
	s.WriteString(fmt.Sprintf("%s %s\n", statsLabelStyle.Render("Mode:"), mode))

	if len(m.held) == 0 {
		s.WriteString(fmt.Sprintf("%s none", statsLabelStyle.Render("Holding:")))
		return s.String()
	}

	kinds := make([]int, 0, len(m.held))
	for k := range m.held {
		kinds = append(kinds, int(k))
	}
	sort.Ints(kinds)
	var parts []string
	for _, k := range kinds {
		c := m.held[r48.CommandKind(k)]
		parts = append(parts, fmt.Sprintf("%s %g", c.Kind, c.Value))
	}
	s.WriteString(fmt.Sprintf("%s %s", statsLabelStyle.Render("Holding:"), statsValueStyle.Render(strings.Join(parts, ", "))))
	return s.String()
}

func (m watchModel) inputView(in textinput.Model, field int) string {
	if m.focusedField == field {
		return in.View()
	}
	// Show as plain text when not focused
	val := in.Value()
	if val == "" {
		val = in.Placeholder
	}
	return fmt.Sprintf("[%s]", val)
}

func (m watchModel) renderStatisticsBar(statsLabelStyle, statsValueStyle, errorStyle, boxStyle lipgloss.Style) string {
	stats := m.monitor.Stats()
	var telemetryPercent float64
	if stats.TotalFrames > 0 {
		telemetryPercent = float64(stats.TelemetryFrames) * 100.0 / float64(stats.TotalFrames)
	}

	sendErrors := statsValueStyle.Render("0")
	if stats.SendErrors > 0 {
		sendErrors = errorStyle.Render(fmt.Sprintf("%d", stats.SendErrors))
	}

	content := fmt.Sprintf("%s %s  %s %s  %s %s  %s %s  %s %s",
		statsLabelStyle.Render("Frames:"), statsValueStyle.Render(fmt.Sprintf("%d", stats.TotalFrames)),
		statsLabelStyle.Render("Telemetry:"), statsValueStyle.Render(fmt.Sprintf("%.1f%%", telemetryPercent)),
		statsLabelStyle.Render("Snapshots:"), statsValueStyle.Render(fmt.Sprintf("%d", stats.Snapshots)),
		statsLabelStyle.Render("Send errors:"), sendErrors,
		statsLabelStyle.Render("Rate:"), statsValueStyle.Render(fmt.Sprintf("%.1f fr/s", stats.FrameRate)),
	)

	return boxStyle.Width(m.width - 4).Render(content)
}

func (m watchModel) renderEventLog(statsLabelStyle, warningStyle, boxStyle lipgloss.Style) string {
	var s strings.Builder
	s.WriteString(statsLabelStyle.Render("EVENTS"))
	s.WriteString("\n")

	headerStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	errorStyleLocal := lipgloss.NewStyle().Foreground(lipgloss.Color("9")).Bold(true)

	logHeight := 8
	if len(m.eventLog) < logHeight {
		logHeight = len(m.eventLog)
	}
	startIdx := len(m.eventLog) - logHeight

	if len(m.eventLog) == 0 {
		s.WriteString(headerStyle.Render("  (no events yet)"))
	} else {
		for i := startIdx; i < len(m.eventLog); i++ {
			entry := m.eventLog[i]
			icon := "i"
			style := warningStyle
			if entry.isError {
				icon = "x"
				style = errorStyleLocal
			}
			s.WriteString(fmt.Sprintf("%s %s %s\n",
				headerStyle.Render(entry.timestamp.Format("15:04:05.000")),
				style.Render(icon),
				entry.message))
		}
	}

	return boxStyle.Width(m.width - 4).Render(s.String())
}

//////////////////////////////////////////////////////////////
// Commands
//////////////////////////////////////////////////////////////

// sendSetting sends the value of the focused input. Temporary settings
// are held and re-sent until released.
func (m *watchModel) sendSetting() {
	input := &m.voltageInput
	kind := r48.SetVoltage
	if m.focusedField == focusCurrentInput {
		input = &m.currentInput
		kind = r48.SetCurrentPercent
	}

	raw := input.Value()
	if raw == "" {
		raw = input.Placeholder
	}
	v, err := parseValue(raw)
	if err != nil {
		m.addLogEntry(err.Error(), true)
		return
	}

	c := r48.Command{Kind: kind, Value: v, Permanent: m.permanent}
	if err := m.ctrl.Apply(c); err != nil {
		m.addLogEntry(fmt.Sprintf("Failed to %s: %v", c.Kind, err), true)
		return
	}

	frames, _ := c.Frames(m.ctrl.WriteID())
	for _, f := range frames {
		m.addLogEntry("Sent "+r48.DescribeFrame(f), false)
	}
	input.SetValue("")

	if c.Temporary() {
		m.held[c.Kind] = c
		m.lastHold = time.Now()
	} else {
		delete(m.held, c.Kind)
	}
}

// repeatHeld re-sends every held setting.
func (m *watchModel) repeatHeld(now time.Time) {
	m.lastHold = now
	for _, c := range m.held {
		if err := m.ctrl.Apply(c); err != nil {
			m.addLogEntry(fmt.Sprintf("Failed to repeat %s: %v", c.Kind, err), true)
		}
	}
}

//////////////////////////////////////////////////////////////
// Helpers
//////////////////////////////////////////////////////////////

func (m *watchModel) addLogEntry(message string, isError bool) {
	entry := logEntry{
		timestamp: time.Now(),
		message:   message,
		isError:   isError,
	}
	m.eventLog = append(m.eventLog, entry)

	if len(m.eventLog) > m.maxLogEntries {
		m.eventLog = m.eventLog[len(m.eventLog)-m.maxLogEntries:]
	}
}

// formatUptime formats a duration as a human-friendly string
func formatUptime(d time.Duration) string {
	seconds := int64(d / time.Second)
	if seconds <= 0 {
		return "0 seconds"
	}

	minutes := seconds / 60
	hours := minutes / 60
	days := hours / 24

	seconds %= 60
	minutes %= 60
	hours %= 24

	parts := []string{}
	for _, u := range []struct {
		n    int64
		name string
	}{
		{days, "day"},
		{hours, "hour"},
		{minutes, "minute"},
		{seconds, "second"},
	} {
		switch {
		case u.n == 1:
			parts = append(parts, "1 "+u.name)
		case u.n > 1:
			parts = append(parts, fmt.Sprintf("%d %ss", u.n, u.name))
		}
	}

	// Join with commas and "and" for last item
	if len(parts) == 1 {
		return parts[0]
	}
	return strings.Join(parts[:len(parts)-1], ", ") + " and " + parts[len(parts)-1]
}
