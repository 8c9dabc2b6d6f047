// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2026 Caldera Works

package homie

import (
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	log "github.com/sirupsen/logrus"

	"github.com/calderaworks/spastat/pkg/balboa"
)

// NodeID is the single node the bridge exposes under its device.
const NodeID = "spa-controller"

// Bridge projects one spa client onto a Homie device: decoded status
// broadcasts become property values, settings responses become hex blobs,
// and settable properties translate inbound payloads into bus commands.
//
// Command delivery is best-effort by nature: the bus confirms nothing, so
// property values only move when a later status broadcast shows the change.
type Bridge struct {
	spa    *balboa.Client
	device *Device
	node   *Node
	log    *log.Entry
}

// NewBridge wires a bridge over spa. The device is not announced until
// Connect.
func NewBridge(spa *balboa.Client, deviceID, deviceName string) *Bridge {
	b := &Bridge{
		spa: spa,
		log: log.WithField("component", "bridge"),
	}
	b.node = NewNode(NodeID, "Spa Controller", "spa", b.buildProperties())
	b.device = NewDevice(deviceID, deviceName, []*Node{b.node})

	spa.OnStatus(b.onStatus)
	spa.OnMessage(b.onMessage)
	return b
}

// Device returns the underlying Homie device, e.g. for Will setup.
func (b *Bridge) Device() *Device {
	return b.device
}

// Connect announces the device on client and asks the board for the
// settings blocks the read-only properties mirror.
func (b *Bridge) Connect(client mqtt.Client) error {
	if err := b.device.Connect(client); err != nil {
		return err
	}
	b.spa.RequestConfiguration()
	b.spa.RequestInformation()
	b.spa.RequestFilterCycles()
	return nil
}

// Disconnect announces a clean shutdown.
func (b *Bridge) Disconnect() {
	b.device.Disconnect()
}

func (b *Bridge) buildProperties() []*Property {
	props := []*Property{
		// Raw settings blocks as hex blobs, like the panel protocol
		// analyzers expect.
		NewProperty("status", "Status", "string"),
		NewProperty("information", "Information", "string"),
		NewProperty("filter-cycles", "Filter Cycles", "string"),
		NewProperty("preferences", "Preferences", "string"),
		NewProperty("configuration", "Configuration", "string"),

		NewProperty("priming", "Priming", "boolean"),
		NewProperty("heating", "Heating", "boolean"),
		NewProperty("current-temperature", "Current Temperature", "float"),
		NewProperty("circulation-pump", "Circulation Pump", "boolean"),
		{ID: "filter-mode", Name: "Filter Mode", DataType: "enum",
			Format: "off,cycle-1,cycle-2,both"},

		{ID: "set-temperature", Name: "Set Temperature", DataType: "float",
			Settable: true, OnSet: b.setTemperature},
		{ID: "time", Name: "Time", DataType: "string",
			Settable: true, OnSet: b.setTime},
		{ID: "heating-mode", Name: "Heating Mode", DataType: "enum",
			Format: "ready,rest,ready-in-rest", Settable: true,
			OnSet: b.toggleOnSet(balboa.ItemHeatMode)},
		{ID: "temperature-scale", Name: "Temperature Scale", DataType: "enum",
			Format: "fahrenheit,celsius", Settable: true, OnSet: b.setScale},
		{ID: "clock-mode", Name: "Clock Mode", DataType: "enum",
			Format: "12-hour,24-hour", Settable: true, OnSet: b.setClockMode},
		{ID: "temperature-range", Name: "Temperature Range", DataType: "enum",
			Format: "low,high", Settable: true,
			OnSet: b.toggleOnSet(balboa.ItemTemperatureRange)},
		{ID: "hold-mode", Name: "Hold Mode", DataType: "boolean",
			Settable: true, OnSet: b.toggleOnSet(balboa.ItemHoldMode)},
		{ID: "blower", Name: "Blower", DataType: "boolean",
			Settable: true, OnSet: b.toggleOnSet(balboa.ItemBlower)},
		{ID: "mister", Name: "Mister", DataType: "boolean",
			Settable: true, OnSet: b.toggleOnSet(balboa.ItemMister)},
	}
	for n := 1; n <= 6; n++ {
		n := n
		props = append(props, &Property{
			ID: fmt.Sprintf("pump-%d", n), Name: fmt.Sprintf("Pump %d", n),
			DataType: "enum", Format: "off,low,high", Settable: true,
			OnSet: func(payload string) { b.setPump(n, payload) },
		})
	}
	for n := 1; n <= 2; n++ {
		props = append(props,
			&Property{ID: fmt.Sprintf("light-%d", n), Name: fmt.Sprintf("Light %d", n),
				DataType: "boolean", Settable: true,
				OnSet: b.toggleOnSet(balboa.ItemLight1 + balboa.ItemCode(n-1))},
			&Property{ID: fmt.Sprintf("aux-%d", n), Name: fmt.Sprintf("Aux %d", n),
				DataType: "boolean", Settable: true,
				OnSet: b.toggleOnSet(balboa.ItemAux1 + balboa.ItemCode(n-1))},
		)
	}
	return props
}

// onStatus mirrors one changed status broadcast onto the property tree.
// Outputs the board's configuration says are absent publish nothing.
func (b *Bridge) onStatus(snap balboa.StatusSnapshot, changed bool) {
	if !changed {
		return
	}

	b.set("status", hexBlob(snap.Raw[:]))
	b.set("priming", formatBool(snap.Priming()))
	b.set("heating", formatBool(snap.Heating()))
	b.set("heating-mode", snap.HeatingMode().String())
	b.set("filter-mode", snap.FilterMode().String())
	b.set("temperature-scale", snap.Scale().String())
	b.set("temperature-range", snap.TemperatureRange().String())
	b.set("set-temperature", strconv.FormatFloat(snap.SetTemperature(), 'f', 1, 64))
	b.set("time", fmt.Sprintf("%02d:%02d", snap.Hour(), snap.Minute()))

	if snap.ClockMode() == balboa.Clock24Hour {
		b.set("clock-mode", "24-hour")
	} else {
		b.set("clock-mode", "12-hour")
	}
	if t, ok := snap.CurrentTemperature(); ok {
		b.set("current-temperature", strconv.FormatFloat(t, 'f', 1, 64))
	}

	for n := 1; n <= 6; n++ {
		if p, ok := snap.Pump(n); ok {
			b.set(fmt.Sprintf("pump-%d", n), p.String())
		}
	}
	if on, ok := snap.CircPump(); ok {
		b.set("circulation-pump", formatBool(on))
	}
	if on, ok := snap.Blower(); ok {
		b.set("blower", formatBool(on))
	}
	if on, ok := snap.Mister(); ok {
		b.set("mister", formatBool(on))
	}
	for n := 1; n <= 2; n++ {
		if on, ok := snap.Light(n); ok {
			b.set(fmt.Sprintf("light-%d", n), formatBool(on))
		}
		if on, ok := snap.Aux(n); ok {
			b.set(fmt.Sprintf("aux-%d", n), formatBool(on))
		}
	}
}

// onMessage mirrors the settings responses the read-only blob properties
// track. Status broadcasts are handled by onStatus.
func (b *Bridge) onMessage(m balboa.Message) {
	switch m.(type) {
	case balboa.InformationResponse:
		b.set("information", hexBlob(m.Frame().Payload))
	case balboa.FilterCycles:
		b.set("filter-cycles", hexBlob(m.Frame().Payload))
	case balboa.PreferencesResponse:
		b.set("preferences", hexBlob(m.Frame().Payload))
	case balboa.ConfigurationResponse:
		b.set("configuration", hexBlob(m.Frame().Payload))
	}
}

func (b *Bridge) set(propertyID, value string) {
	if p := b.node.Property(propertyID); p != nil {
		p.Set(value)
	}
}

// toggleOnSet builds a set handler that fires one edge-triggered toggle,
// whatever the payload. The board itself decides the next state.
func (b *Bridge) toggleOnSet(item balboa.ItemCode) func(string) {
	return func(string) {
		b.spa.Toggle(item)
	}
}

// setPump drives a pump to a requested speed by enqueueing however many
// toggles the distance from the last observed speed requires. Without a
// prior broadcast the current speed is unknown and a single toggle is sent.
func (b *Bridge) setPump(n int, payload string) {
	want, err := parsePumpState(payload)
	if err != nil {
		b.log.WithError(err).WithField("pump", n).Warn("dropping pump command")
		return
	}

	steps := 1
	if snap, ok := b.spa.LastSnapshot(); ok {
		if cur, ok := snap.Pump(n); ok {
			steps = TogglesToPumpState(cur, want, 3)
		}
	}
	for i := 0; i < steps; i++ {
		if err := b.spa.TogglePump(n); err != nil {
			b.log.WithError(err).Warn("dropping pump command")
			return
		}
	}
}

func (b *Bridge) setTemperature(payload string) {
	t, err := strconv.ParseFloat(payload, 64)
	if err != nil {
		b.log.WithError(err).Warn("dropping set-temperature command")
		return
	}
	scale := balboa.ScaleFahrenheit
	if snap, ok := b.spa.LastSnapshot(); ok {
		scale = snap.Scale()
	}
	b.spa.SetTemperature(t, scale)
}

func (b *Bridge) setTime(payload string) {
	parsed, err := time.Parse("15:04", payload)
	if err != nil {
		b.log.WithError(err).Warn("dropping set-time command")
		return
	}
	mode := balboa.Clock12Hour
	if snap, ok := b.spa.LastSnapshot(); ok {
		mode = snap.ClockMode()
	}
	b.spa.SetTime(uint8(parsed.Hour()), uint8(parsed.Minute()), mode)
}

func (b *Bridge) setScale(payload string) {
	scale := balboa.ScaleFahrenheit
	if strings.EqualFold(payload, "celsius") {
		scale = balboa.ScaleCelsius
	}
	b.spa.Send(balboa.NewSetTemperatureScale(scale))
}

func (b *Bridge) setClockMode(payload string) {
	mode := balboa.Clock12Hour
	if payload == "24-hour" {
		mode = balboa.Clock24Hour
	}
	b.spa.Send(balboa.NewSetClockMode(mode))
}

// TogglesToPumpState returns how many edge-triggered toggles advance a
// pump from cur to want, cycling through states speeds (2 for a one-speed
// pump, 3 for a two-speed pump).
func TogglesToPumpState(cur, want balboa.PumpState, states int) int {
	if states < 2 || int(cur) >= states || int(want) >= states {
		return 0
	}
	return (int(want) - int(cur) + states) % states
}

func parsePumpState(s string) (balboa.PumpState, error) {
	switch strings.ToLower(s) {
	case "off":
		return balboa.PumpOff, nil
	case "low":
		return balboa.PumpLow, nil
	case "high":
		return balboa.PumpHigh, nil
	}
	return balboa.PumpOff, fmt.Errorf("homie: unknown pump state %q", s)
}

func formatBool(v bool) string {
	if v {
		return "true"
	}
	return "false"
}

func hexBlob(b []byte) string {
	return strings.ToUpper(hex.EncodeToString(b))
}
