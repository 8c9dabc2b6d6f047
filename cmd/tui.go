// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2026 Caldera Works

package cmd

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/calderaworks/spastat/pkg/balboa"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"
)

var tuiChannel uint8

var tuiCmd = &cobra.Command{
	Use:   "tui",
	Short: "Interactive dashboard for monitoring and controlling the spa",
	Long: `Live terminal dashboard for the spa board.

Shows temperatures, pump/light/blower states, heating mode, the client's
channel-arbitration status, and frame statistics, and lets you toggle
outputs and change the set temperature.

Keys:
  1-6        toggle pump 1-6
  l / L      toggle light 1 / light 2
  b, m, h, r blower, mister, heat mode, temperature range
  t          edit the set temperature (Enter submits, Esc cancels)
  q          quit

Supports serial, TCP, and WebSocket connections.`,
	RunE: runTUI,
}

func init() {
	tuiCmd.Flags().Uint8Var(&tuiChannel, "channel", 0, "Assume this channel is already assigned (skip arbitration)")
	rootCmd.AddCommand(tuiCmd)
}

//////////////////////////////////////////////////////////////
// Messages
//////////////////////////////////////////////////////////////

type tuiTickMsg time.Time

// busEvent is one decoded inbound message, with the snapshot attached
// when the message was a status broadcast.
type busEvent struct {
	msg     balboa.Message
	snap    *balboa.StatusSnapshot
	changed bool
}

type busBatchMsg struct {
	events []busEvent
}

type busClosedMsg struct {
	err error
}

//////////////////////////////////////////////////////////////
// Model
//////////////////////////////////////////////////////////////

type tuiLogEntry struct {
	timestamp time.Time
	message   string
	isError   bool
}

type tuiModel struct {
	client   *balboa.Client
	connInfo string

	snapshot    *balboa.StatusSnapshot
	info        *balboa.InformationResponse
	lastFault   *balboa.FaultLogResponse
	frameCount  uint64
	statusCount uint64
	frameRate   float64
	rateWindow  uint64 // frames at the previous tick

	eventLog      []tuiLogEntry
	maxLogEntries int

	tempInput   textinput.Model
	editingTemp bool

	width    int
	height   int
	quitting bool
	closed   bool
	closeErr error
}

func initialTUIModel(client *balboa.Client, connInfo string) tuiModel {
	ti := textinput.New()
	ti.Placeholder = "102"
	ti.CharLimit = 5
	ti.Width = 8

	return tuiModel{
		client:        client,
		connInfo:      connInfo,
		eventLog:      make([]tuiLogEntry, 0),
		maxLogEntries: 100,
		tempInput:     ti,
		width:         80,
		height:        24,
	}
}

func (m tuiModel) Init() tea.Cmd {
	return tuiTickCmd()
}

func tuiTickCmd() tea.Cmd {
	return tea.Tick(time.Second, func(t time.Time) tea.Msg {
		return tuiTickMsg(t)
	})
}

//////////////////////////////////////////////////////////////
// Update
//////////////////////////////////////////////////////////////

func (m tuiModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKey(msg)

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height

	case tuiTickMsg:
		m.frameRate = float64(m.frameCount - m.rateWindow)
		m.rateWindow = m.frameCount
		return m, tuiTickCmd()

	case busBatchMsg:
		for _, ev := range msg.events {
			m.processEvent(ev)
		}

	case busClosedMsg:
		m.closed = true
		m.closeErr = msg.err
		m.addLogEntry("Connection closed", true)
	}

	if m.editingTemp {
		var cmd tea.Cmd
		m.tempInput, cmd = m.tempInput.Update(msg)
		return m, cmd
	}

	return m, nil
}

func (m *tuiModel) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if m.editingTemp {
		switch msg.String() {
		case "enter":
			m.submitTemperature()
			m.editingTemp = false
			m.tempInput.Blur()
			return m, nil
		case "esc":
			m.editingTemp = false
			m.tempInput.Blur()
			return m, nil
		case "ctrl+c":
			m.quitting = true
			return m, tea.Quit
		}
		var cmd tea.Cmd
		m.tempInput, cmd = m.tempInput.Update(msg)
		return m, cmd
	}

	switch msg.String() {
	case "q", "ctrl+c":
		m.quitting = true
		return m, tea.Quit

	case "t":
		m.editingTemp = true
		m.tempInput.SetValue("")
		m.tempInput.Focus()

	case "1", "2", "3", "4", "5", "6":
		n := int(msg.String()[0] - '0')
		if err := m.client.TogglePump(n); err == nil {
			m.addLogEntry(fmt.Sprintf("Queued: toggle pump %d", n), false)
		}

	case "l":
		m.client.ToggleLight(1)
		m.addLogEntry("Queued: toggle light 1", false)

	case "L":
		m.client.ToggleLight(2)
		m.addLogEntry("Queued: toggle light 2", false)

	case "b":
		m.client.Toggle(balboa.ItemBlower)
		m.addLogEntry("Queued: toggle blower", false)

	case "m":
		m.client.Toggle(balboa.ItemMister)
		m.addLogEntry("Queued: toggle mister", false)

	case "h":
		m.client.Toggle(balboa.ItemHeatMode)
		m.addLogEntry("Queued: toggle heat mode", false)

	case "r":
		m.client.Toggle(balboa.ItemTemperatureRange)
		m.addLogEntry("Queued: toggle temperature range", false)
	}

	return m, nil
}

func (m *tuiModel) submitTemperature() {
	val := strings.TrimSpace(m.tempInput.Value())
	degrees, err := strconv.ParseFloat(val, 64)
	if err != nil {
		m.addLogEntry(fmt.Sprintf("Invalid temperature %q", val), true)
		return
	}

	scale := balboa.ScaleFahrenheit
	if m.snapshot != nil {
		scale = m.snapshot.Scale()
	}
	m.client.SetTemperature(degrees, scale)
	m.addLogEntry(fmt.Sprintf("Queued: set temperature %.1f %s", degrees, scale), false)
}

func (m *tuiModel) processEvent(ev busEvent) {
	m.frameCount++

	if ev.snap != nil {
		m.statusCount++
		m.snapshot = ev.snap
		return
	}

	switch mm := ev.msg.(type) {
	case balboa.InformationResponse:
		m.info = &mm
		m.addLogEntry(fmt.Sprintf("Board: %s %s", mm.ModelName(), mm.SoftwareID()), false)
	case balboa.FaultLogResponse:
		m.lastFault = &mm
		m.addLogEntry(fmt.Sprintf("Fault log: %s", mm.MessageText()), true)
	case balboa.ChannelAssignmentResponse:
		m.addLogEntry(fmt.Sprintf("Channel granted: 0x%02X", mm.Channel), false)
	case balboa.ConfigurationResponse:
		m.addLogEntry("Configuration received", false)
	}
}

func (m *tuiModel) addLogEntry(message string, isError bool) {
	entry := tuiLogEntry{
		timestamp: time.Now(),
		message:   message,
		isError:   isError,
	}
	m.eventLog = append(m.eventLog, entry)

	// Keep only last N entries
	if len(m.eventLog) > m.maxLogEntries {
		m.eventLog = m.eventLog[len(m.eventLog)-m.maxLogEntries:]
	}
}

//////////////////////////////////////////////////////////////
// View
//////////////////////////////////////////////////////////////

func (m tuiModel) View() string {
	if m.quitting {
		return "Shutting down...\n"
	}

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

	var s strings.Builder

	// Header
	s.WriteString(titleStyle.Render("SPASTAT DASHBOARD"))
	s.WriteString(" ")
	connStatus := m.connInfo
	if m.closed {
		connStatus = warningStyle.Render("CONNECTION CLOSED")
	}
	s.WriteString(headerStyle.Render(fmt.Sprintf("| %s | q=quit t=set-temp 1-6=pumps l/L=lights", connStatus)))
	s.WriteString("\n\n")

	// Temperatures and heating
	if m.snapshot == nil {
		s.WriteString(warningStyle.Render("Waiting for the first status broadcast..."))
		s.WriteString("\n\n")
	} else {
		s.WriteString(m.renderStatus(statsLabelStyle, statsValueStyle, warningStyle, boxStyle))
		s.WriteString("\n\n")
	}

	// Temperature input
	if m.editingTemp {
		s.WriteString(statsLabelStyle.Render("New set temperature: "))
		s.WriteString(m.tempInput.View())
		s.WriteString("\n\n")
	}

	// Arbitration and statistics bar
	s.WriteString(m.renderStatsBar(statsLabelStyle, statsValueStyle, boxStyle))
	s.WriteString("\n\n")

	// Event log
	s.WriteString(statsLabelStyle.Render("Recent Events:"))
	s.WriteString("\n")
	s.WriteString(m.renderEventLog(headerStyle, errorStyle, warningStyle, boxStyle))

	return s.String()
}

func (m tuiModel) renderStatus(statsLabelStyle, statsValueStyle, warningStyle, boxStyle lipgloss.Style) string {
	snap := m.snapshot
	var content strings.Builder

	cur := "--"
	if t, ok := snap.CurrentTemperature(); ok {
		cur = fmt.Sprintf("%.1f°", t)
	}
	content.WriteString(fmt.Sprintf("%s %s  %s %s  %s %s  %s %s\n",
		statsLabelStyle.Render("Water:"), statsValueStyle.Render(cur),
		statsLabelStyle.Render("Target:"), statsValueStyle.Render(fmt.Sprintf("%.1f°", snap.SetTemperature())),
		statsLabelStyle.Render("Scale:"), statsValueStyle.Render(snap.Scale().String()),
		statsLabelStyle.Render("Clock:"), statsValueStyle.Render(fmt.Sprintf("%02d:%02d", snap.Hour(), snap.Minute())),
	))

	heating := "idle"
	if snap.Heating() {
		heating = "heating"
	}
	content.WriteString(fmt.Sprintf("%s %s  %s %s  %s %s  %s %s\n",
		statsLabelStyle.Render("Heater:"), statsValueStyle.Render(heating),
		statsLabelStyle.Render("Mode:"), statsValueStyle.Render(snap.HeatingMode().String()),
		statsLabelStyle.Render("Range:"), statsValueStyle.Render(snap.TemperatureRange().String()),
		statsLabelStyle.Render("Filter:"), statsValueStyle.Render(snap.FilterMode().String()),
	))

	if snap.Priming() {
		content.WriteString(warningStyle.Render("PRIMING"))
		content.WriteString("\n")
	}

	// Outputs, gated by the board's reported configuration
	var outputs []string
	for n := 1; n <= 6; n++ {
		if state, ok := snap.Pump(n); ok {
			outputs = append(outputs, fmt.Sprintf("pump%d=%s", n, state))
		}
	}
	if on, ok := snap.CircPump(); ok {
		outputs = append(outputs, fmt.Sprintf("circ=%s", onOff(on)))
	}
	if on, ok := snap.Blower(); ok {
		outputs = append(outputs, fmt.Sprintf("blower=%s", onOff(on)))
	}
	for n := 1; n <= 2; n++ {
		if on, ok := snap.Light(n); ok {
			outputs = append(outputs, fmt.Sprintf("light%d=%s", n, onOff(on)))
		}
	}
	if on, ok := snap.Mister(); ok {
		outputs = append(outputs, fmt.Sprintf("mister=%s", onOff(on)))
	}
	for n := 1; n <= 2; n++ {
		if on, ok := snap.Aux(n); ok {
			outputs = append(outputs, fmt.Sprintf("aux%d=%s", n, onOff(on)))
		}
	}
	if len(outputs) > 0 {
		content.WriteString(fmt.Sprintf("%s %s",
			statsLabelStyle.Render("Outputs:"), statsValueStyle.Render(strings.Join(outputs, "  "))))
	} else {
		content.WriteString(statsLabelStyle.Render("Outputs:"))
		content.WriteString(" awaiting configuration")
	}

	if m.info != nil {
		content.WriteString(fmt.Sprintf("\n%s %s",
			statsLabelStyle.Render("Board:"),
			statsValueStyle.Render(fmt.Sprintf("%s %s", m.info.ModelName(), m.info.SoftwareID()))))
	}

	return boxStyle.Width(m.width - 4).Render(content.String())
}

func (m tuiModel) renderStatsBar(statsLabelStyle, statsValueStyle, boxStyle lipgloss.Style) string {
	channel := "--"
	if ch, ok := m.client.Channel(); ok {
		channel = fmt.Sprintf("0x%02X", ch)
	}

	content := fmt.Sprintf("%s %s  %s %s  %s %s  %s %s  %s %s",
		statsLabelStyle.Render("State:"), statsValueStyle.Render(m.client.State().String()),
		statsLabelStyle.Render("Channel:"), statsValueStyle.Render(channel),
		statsLabelStyle.Render("Queue:"), statsValueStyle.Render(fmt.Sprintf("%d", m.client.QueueLen())),
		statsLabelStyle.Render("Frames:"), statsValueStyle.Render(fmt.Sprintf("%d", m.frameCount)),
		statsLabelStyle.Render("Rate:"), statsValueStyle.Render(fmt.Sprintf("%.0f/s", m.frameRate)),
	)

	return boxStyle.Width(m.width - 4).Render(content)
}

func (m tuiModel) renderEventLog(headerStyle, errorStyle, warningStyle, boxStyle lipgloss.Style) string {
	logHeight := m.height - 16 // Reserve space for header, status, stats
	if logHeight < 5 {
		logHeight = 5
	}

	var content strings.Builder
	startIdx := len(m.eventLog) - logHeight
	if startIdx < 0 {
		startIdx = 0
	}

	if len(m.eventLog) == 0 {
		content.WriteString(headerStyle.Render("  (no events yet)"))
	} else {
		for i := startIdx; i < len(m.eventLog); i++ {
			entry := m.eventLog[i]
			timestamp := entry.timestamp.Format("15:04:05.000")
			if entry.isError {
				content.WriteString(fmt.Sprintf("%s %s\n",
					headerStyle.Render(timestamp),
					errorStyle.Render("✗ "+entry.message),
				))
			} else {
				content.WriteString(fmt.Sprintf("%s %s\n",
					headerStyle.Render(timestamp),
					warningStyle.Render("ℹ "+entry.message),
				))
			}
		}
	}

	return boxStyle.Width(m.width - 4).Render(content.String())
}

func onOff(v bool) string {
	if v {
		return "on"
	}
	return "off"
}

//////////////////////////////////////////////////////////////
// Command
//////////////////////////////////////////////////////////////

func runTUI(cmd *cobra.Command, args []string) error {
	conn, connInfo, err := OpenConnection()
	if err != nil {
		return err
	}
	defer conn.Close()

	var client *balboa.Client
	if tuiChannel != 0 {
		client = balboa.NewClientWithChannel(conn, tuiChannel)
	} else {
		client = balboa.NewClient(conn)
	}

	m := initialTUIModel(client, connInfo)
	p := tea.NewProgram(m, tea.WithAltScreen())

	// Observers run on the client's receive goroutine; they hand events
	// to a buffered channel and drop on overflow so a stalled UI can
	// never stall the bus loop.
	events := make(chan busEvent, 256)
	client.OnMessage(func(msg balboa.Message) {
		if _, ok := msg.(balboa.StatusUpdate); ok {
			return // delivered with its snapshot via OnStatus
		}
		select {
		case events <- busEvent{msg: msg}:
		default:
		}
	})
	client.OnStatus(func(snap balboa.StatusSnapshot, changed bool) {
		select {
		case events <- busEvent{msg: balboa.StatusUpdate{Raw: snap.Raw}, snap: &snap, changed: changed}:
		default:
		}
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Batch sender: flush accumulated events to the UI at a fixed rate
	// so a chatty bus cannot flood the render loop.
	go func() {
		ticker := time.NewTicker(50 * time.Millisecond)
		defer ticker.Stop()
		var pending []busEvent
		for {
			select {
			case <-ctx.Done():
				return
			case ev := <-events:
				pending = append(pending, ev)
			case <-ticker.C:
				if len(pending) > 0 {
					p.Send(busBatchMsg{events: pending})
					pending = nil
				}
			}
		}
	}()

	// Receive loop; fetch the board identity and capabilities up front.
	client.RequestConfiguration()
	client.RequestInformation()
	go func() {
		err := client.Run(ctx)
		if ctx.Err() == nil {
			p.Send(busClosedMsg{err: err})
		}
	}()

	if _, err := p.Run(); err != nil {
		return fmt.Errorf("TUI error: %v", err)
	}
	return nil
}
