// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2026 Caldera Works

package balboa

import "fmt"

// Command constructors build outbound messages with the channel left
// unset (zero); the client stamps its assigned channel when a bus grant
// lets the message out.

// NewToggleItem builds an edge-triggered toggle for any addressable item.
func NewToggleItem(item ItemCode) ToggleItemRequest {
	return ToggleItemRequest{Item: item}
}

// NewTogglePump builds a toggle for pump n (1-6).
func NewTogglePump(n int) (ToggleItemRequest, error) {
	if n < 1 || n > 6 {
		return ToggleItemRequest{}, fmt.Errorf("balboa: no such pump %d", n)
	}
	return ToggleItemRequest{Item: ItemPump1 + ItemCode(n-1)}, nil
}

// NewToggleLight builds a toggle for light n (1-2).
func NewToggleLight(n int) (ToggleItemRequest, error) {
	if n < 1 || n > 2 {
		return ToggleItemRequest{}, fmt.Errorf("balboa: no such light %d", n)
	}
	return ToggleItemRequest{Item: ItemLight1 + ItemCode(n-1)}, nil
}

// NewSetTemperature builds a set-point request from a temperature in the
// active scale, converting to wire units (half-degrees for Celsius).
func NewSetTemperature(t float64, scale TemperatureScale) SetTemperatureRequest {
	count := t
	if scale == ScaleCelsius {
		count *= 2
	}
	return SetTemperatureRequest{Temperature: uint8(count)}
}

// NewSetTime builds a clock-set request.
func NewSetTime(hour, minute uint8, mode ClockMode) SetTimeRequest {
	return SetTimeRequest{Hour: hour & 0x7F, Minute: minute, Mode: mode}
}

// NewSettingsRequest builds a raw settings-category request.
func NewSettingsRequest(code [3]byte) SettingsRequest {
	return SettingsRequest{Code: code}
}

// NewConfigurationRequest asks for the board's capability block.
func NewConfigurationRequest() SettingsRequest {
	return SettingsRequest{Code: SettingsConfiguration}
}

// NewFilterCyclesRequest asks for the filtration schedule.
func NewFilterCyclesRequest() SettingsRequest {
	return SettingsRequest{Code: SettingsFilterCycles}
}

// NewInformationRequest asks for the board identity block.
func NewInformationRequest() SettingsRequest {
	return SettingsRequest{Code: SettingsInformation}
}

// NewPreferencesRequest asks for the preference block.
func NewPreferencesRequest() SettingsRequest {
	return SettingsRequest{Code: SettingsPreferences}
}

// NewFaultLogRequest asks for one fault-log entry; 0xFF requests the most
// recent.
func NewFaultLogRequest(entry uint8) SettingsRequest {
	return SettingsRequest{Code: [3]byte{0x20, entry, 0x00}}
}

// NewSetTemperatureScale builds a preference change for the reporting
// scale.
func NewSetTemperatureScale(scale TemperatureScale) SetPreferenceRequest {
	return SetPreferenceRequest{Code: PrefTemperatureScale, Value: uint8(scale)}
}

// NewSetClockMode builds a preference change for 12/24-hour display.
func NewSetClockMode(mode ClockMode) SetPreferenceRequest {
	return SetPreferenceRequest{Code: PrefClockMode, Value: uint8(mode)}
}
