// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2026 Caldera Works

// Package balboa implements the client side of the Balboa spa control
// bus protocol: frame encoding/decoding with CRC-8 validation, the typed
// message catalog, status-broadcast decoding, and the channel-arbitration
// state machine a client needs to transmit on the shared half-duplex link.
//
// The board arbitrates the bus: a client may only transmit after receiving
// a ClientClearToSend for its assigned channel. See Client for the full
// receive/arbitration loop.
package balboa

// Protocol framing
const (
	Delimiter = 0x7E

	// Flag byte between channel and type code. 0xAF on broadcast frames,
	// 0xBF everywhere else. Purpose otherwise unknown; preserved as-is.
	FlagBroadcast = 0xAF
	FlagDefault   = 0xBF

	MaxPayloadSize = 250 // length byte is payload+5 and must fit in 8 bits
)

// Reserved channels
const (
	// ChannelBroadcast carries the periodic status updates addressed to
	// all listeners.
	ChannelBroadcast = 0xFF

	// ChannelArbitration carries the channel-assignment handshake used by
	// clients that do not yet have an identity on the bus.
	ChannelArbitration = 0xFE
)

// Message type codes
const (
	TypeNewClientClearToSend      = 0x00
	TypeChannelAssignmentRequest  = 0x01
	TypeChannelAssignmentResponse = 0x02
	TypeChannelAssignmentAck      = 0x03
	TypeExistingClientRequest     = 0x04
	TypeExistingClientResponse    = 0x05
	TypeClientClearToSend         = 0x06
	TypeNothingToSend             = 0x07
	TypeToggleItemRequest         = 0x11
	TypeStatusUpdate              = 0x13
	TypeSetTemperatureRequest     = 0x20
	TypeSetTimeRequest            = 0x21
	TypeSettingsRequest           = 0x22
	TypeFilterCycles              = 0x23
	TypeInformationResponse       = 0x24
	TypePreferencesResponse       = 0x26
	TypeSetPreferenceRequest      = 0x27
	TypeFaultLogResponse          = 0x28
	TypeConfigurationResponse     = 0x2E
)

// ItemCode identifies a toggleable output for ToggleItemRequest.
// Toggles are edge-triggered: each request advances the item's state by
// one step (e.g. a two-speed pump cycles off -> low -> high -> off).
type ItemCode uint8

// Item codes
const (
	ItemPrimingMode      ItemCode = 0x01
	ItemPump1            ItemCode = 0x04
	ItemPump2            ItemCode = 0x05
	ItemPump3            ItemCode = 0x06
	ItemPump4            ItemCode = 0x07
	ItemPump5            ItemCode = 0x08
	ItemPump6            ItemCode = 0x09
	ItemBlower           ItemCode = 0x0C
	ItemMister           ItemCode = 0x0E
	ItemLight1           ItemCode = 0x11
	ItemLight2           ItemCode = 0x12
	ItemAux1             ItemCode = 0x16
	ItemAux2             ItemCode = 0x17
	ItemHoldMode         ItemCode = 0x3C
	ItemTemperatureRange ItemCode = 0x50
	ItemHeatMode         ItemCode = 0x51
)

// HeatingMode is the board's ready/rest scheduling mode from the status
// broadcast (byte 5, bits 0-1).
type HeatingMode uint8

// Heating mode values
const (
	HeatingReady       HeatingMode = 0x00
	HeatingRest        HeatingMode = 0x01
	HeatingReadyInRest HeatingMode = 0x03
)

func (m HeatingMode) String() string {
	switch m {
	case HeatingReady:
		return "ready"
	case HeatingRest:
		return "rest"
	case HeatingReadyInRest:
		return "ready-in-rest"
	}
	return "unknown"
}

// FilterMode reports which filter cycles are running (status byte 9,
// bits 2-3).
type FilterMode uint8

// Filter mode values
const (
	FilterOff    FilterMode = 0x00
	FilterCycle1 FilterMode = 0x01
	FilterCycle2 FilterMode = 0x02
	FilterBoth   FilterMode = 0x03
)

func (m FilterMode) String() string {
	switch m {
	case FilterOff:
		return "off"
	case FilterCycle1:
		return "cycle-1"
	case FilterCycle2:
		return "cycle-2"
	case FilterBoth:
		return "both"
	}
	return "unknown"
}

// TemperatureScale selects Fahrenheit or Celsius reporting. In Celsius
// the wire carries half-degree counts.
type TemperatureScale uint8

// Temperature scale values
const (
	ScaleFahrenheit TemperatureScale = 0x00
	ScaleCelsius    TemperatureScale = 0x01
)

func (s TemperatureScale) String() string {
	if s == ScaleCelsius {
		return "celsius"
	}
	return "fahrenheit"
}

// ClockMode selects 12- or 24-hour clock display.
type ClockMode uint8

// Clock mode values
const (
	Clock12Hour ClockMode = 0x00
	Clock24Hour ClockMode = 0x01
)

// TemperatureRange is the low/high set-point range (status byte 10, bit 3).
type TemperatureRange uint8

// Temperature range values
const (
	RangeLow  TemperatureRange = 0x00
	RangeHigh TemperatureRange = 0x01
)

func (r TemperatureRange) String() string {
	if r == RangeHigh {
		return "high"
	}
	return "low"
}

// PumpState is a 2-bit pump speed from the status broadcast.
type PumpState uint8

// Pump state values
const (
	PumpOff  PumpState = 0x00
	PumpLow  PumpState = 0x01
	PumpHigh PumpState = 0x02
)

func (p PumpState) String() string {
	switch p {
	case PumpOff:
		return "off"
	case PumpLow:
		return "low"
	case PumpHigh:
		return "high"
	}
	return "unknown"
}

// PreferenceCode identifies a board preference for SetPreferenceRequest.
type PreferenceCode uint8

// Preference codes
const (
	PrefReminders        PreferenceCode = 0x00
	PrefTemperatureScale PreferenceCode = 0x01
	PrefClockMode        PreferenceCode = 0x02
	PrefCleanupCycle     PreferenceCode = 0x03
	PrefDolphinAddress   PreferenceCode = 0x04
	PrefM8AI             PreferenceCode = 0x06
)

// Settings-request sub-codes (3-byte payload of SettingsRequest)
var (
	SettingsConfiguration = [3]byte{0x00, 0x00, 0x01}
	SettingsFilterCycles  = [3]byte{0x01, 0x00, 0x00}
	SettingsInformation   = [3]byte{0x02, 0x00, 0x00}
	SettingsPreferences   = [3]byte{0x08, 0x00, 0x00}
)

// FaultMessages maps fault-log message codes to their TP900 panel text.
var FaultMessages = map[uint8]string{
	15: "Sensors are out of sync",
	16: "The water flow is low",
	17: "The water flow has failed",
	18: "The settings have been reset",
	19: "Priming Mode",
	20: "The clock has failed",
	21: "The settings have been reset",
	22: "Program memory failure",
	26: "Sensors are out of sync -- Call for service",
	27: "The heater is dry",
	28: "The heater may be dry",
	29: "The water is too hot",
	30: "The heater is too hot",
	31: "Sensor A Fault",
	32: "Sensor B Fault",
	34: "A pump may be stuck on",
	35: "Hot fault",
	36: "The GFCI test failed",
	37: "Hold Mode",
}
