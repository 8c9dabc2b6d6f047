// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2026 Caldera Works

package balboa

import (
	"errors"
	"testing"
)

func TestParseMessage_RoundTrip(t *testing.T) {
	tests := []struct {
		name string
		msg  Message
	}{
		{"new client clear to send", NewClientClearToSend{}},
		{"channel assignment request", ChannelAssignmentRequest{Nonce: [3]byte{0x02, 0xF1, 0x73}}},
		{"channel assignment response", ChannelAssignmentResponse{Channel: 0x0A, Rest: [2]byte{0xF1, 0x73}}},
		{"channel assignment ack", ChannelAssignmentAck{Channel: 0x0A}},
		{"existing client request", ExistingClientRequest{Channel: 0x0A}},
		{"existing client response", ExistingClientResponse{Channel: 0x0A, Capabilities: DefaultCapabilities}},
		{"client clear to send", ClientClearToSend{Channel: 0x0A}},
		{"nothing to send", NothingToSend{Channel: 0x0A}},
		{"toggle pump 3", ToggleItemRequest{Channel: 0x0A, Item: ItemPump3}},
		{"toggle temperature range", ToggleItemRequest{Channel: 0x0A, Item: ItemTemperatureRange}},
		{"status update", StatusUpdate{Raw: [31]byte{0, 1, 100, 13, 45, 0, 0, 0, 0, 5}}},
		{"set temperature", SetTemperatureRequest{Channel: 0x0A, Temperature: 104}},
		{"set time 24h", SetTimeRequest{Channel: 0x0A, Hour: 13, Minute: 45, Mode: Clock24Hour}},
		{"set time 12h", SetTimeRequest{Channel: 0x0A, Hour: 7, Minute: 5, Mode: Clock12Hour}},
		{"settings request", SettingsRequest{Channel: 0x0A, Code: SettingsInformation}},
		{"fault log request", SettingsRequest{Channel: 0x0A, Code: [3]byte{0x20, 0xFF, 0x00}}},
		{"filter cycles one cycle", FilterCycles{
			Channel: 0x0A, Start1Hour: 8, Start1Minute: 0, Duration1Hours: 2, Duration1Mins: 30,
		}},
		{"filter cycles both cycles", FilterCycles{
			Channel: 0x0A, Start1Hour: 8, Start1Minute: 0, Duration1Hours: 2, Duration1Mins: 30,
			Cycle2Enabled: true, Start2Hour: 20, Start2Minute: 15, Duration2Hours: 1, Duration2Mins: 45,
		}},
		{"information response", InformationResponse{
			Channel: 0x0A, Version: [4]uint8{100, 210, 2, 0},
			Model: [8]byte{'M', 'F', 'B', 'P', '2', '0', ' ', ' '}, SetupNumber: 4,
			ConfigSignature: 0x12345678, VoltageFlag: 0x01, HeaterType: 0x0A, DipSwitch: 0x0003,
		}},
		{"preferences response", PreferencesResponse{Channel: 0x0A, Data: [18]byte{1, 2, 3}}},
		{"set preference", SetPreferenceRequest{Channel: 0x0A, Code: PrefTemperatureScale, Value: uint8(ScaleCelsius)}},
		{"fault log response", FaultLogResponse{
			Channel: 0x0A, Count: 3, EntryNumber: 1, MessageCode: 16, DaysAgo: 2,
			Hour: 13, Minute: 45, Flags: 0x02, SetTemperature: 104,
			SensorATemperature: 100, SensorBTemperature: 101,
		}},
		{"configuration response", ConfigurationResponse{Channel: 0x0A, Data: [6]byte{0x0A, 0x01, 0x03, 0x03, 0x00, 0x00}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b, err := Serialize(tt.msg)
			if err != nil {
				t.Fatalf("Serialize() error: %v", err)
			}
			f, err := DecodeFrame(b)
			if err != nil {
				t.Fatalf("DecodeFrame() error: %v", err)
			}
			got, err := ParseMessage(f)
			if err != nil {
				t.Fatalf("ParseMessage() error: %v", err)
			}
			if got != tt.msg {
				t.Errorf("round trip: got %#v, want %#v", got, tt.msg)
			}
		})
	}
}

func TestParseMessage_UnknownTypeCode(t *testing.T) {
	_, err := ParseMessage(Frame{Channel: 0x0A, TypeCode: 0x99})
	if !errors.Is(err, ErrUnknownType) {
		t.Errorf("ParseMessage() error = %v, want ErrUnknownType", err)
	}
}

func TestParseMessage_InvalidLength(t *testing.T) {
	// Toggle requests carry exactly two payload bytes.
	_, err := ParseMessage(Frame{Channel: 0x0A, TypeCode: TypeToggleItemRequest, Payload: []byte{0x04}})
	if !errors.Is(err, ErrInvalidLength) {
		t.Errorf("ParseMessage() error = %v, want ErrInvalidLength", err)
	}
}

func TestParseMessage_InvalidChannel(t *testing.T) {
	tests := []struct {
		name  string
		frame Frame
	}{
		{"status off broadcast channel", Frame{Channel: 0x0A, TypeCode: TypeStatusUpdate, Payload: make([]byte, 31)}},
		{"assignment request off arbitration channel", Frame{Channel: 0x0A, TypeCode: TypeChannelAssignmentRequest, Payload: []byte{1, 2, 3}}},
		{"invitation off arbitration channel", Frame{Channel: ChannelBroadcast, TypeCode: TypeNewClientClearToSend}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := ParseMessage(tt.frame); !errors.Is(err, ErrInvalidChannel) {
				t.Errorf("ParseMessage() error = %v, want ErrInvalidChannel", err)
			}
		})
	}
}

func TestSetTimeRequest_ModeBit(t *testing.T) {
	f := SetTimeRequest{Channel: 0x0A, Hour: 13, Minute: 45, Mode: Clock24Hour}.Frame()
	if f.Payload[0] != 0x80|13 {
		t.Errorf("hour byte = 0x%02X, want 0x%02X", f.Payload[0], 0x80|13)
	}

	f = SetTimeRequest{Channel: 0x0A, Hour: 13, Minute: 45, Mode: Clock12Hour}.Frame()
	if f.Payload[0] != 13 {
		t.Errorf("hour byte = 0x%02X, want 0x0D", f.Payload[0])
	}
}

func TestInformationResponse_Derived(t *testing.T) {
	f, err := DecodeFrame(capturedInformationFrame)
	if err != nil {
		t.Fatalf("DecodeFrame() error: %v", err)
	}
	m, err := ParseMessage(f)
	if err != nil {
		t.Fatalf("ParseMessage() error: %v", err)
	}
	info, ok := m.(InformationResponse)
	if !ok {
		t.Fatalf("ParseMessage() = %T, want InformationResponse", m)
	}

	if got := info.SoftwareID(); got != "M100_210 V2" {
		t.Errorf("SoftwareID() = %q, want %q", got, "M100_210 V2")
	}
	if got := info.ModelName(); got != "MFBP20" {
		t.Errorf("ModelName() = %q, want %q", got, "MFBP20")
	}
	if got := info.HeaterVoltage(); got != 220 {
		t.Errorf("HeaterVoltage() = %d, want 220", got)
	}
	if info.ConfigSignature != 0x12345678 {
		t.Errorf("ConfigSignature = 0x%08X, want 0x12345678", info.ConfigSignature)
	}
	if info.DipSwitch != 0x0003 {
		t.Errorf("DipSwitch = 0x%04X, want 0x0003", info.DipSwitch)
	}
}

func TestFaultLogResponse_MessageText(t *testing.T) {
	m := FaultLogResponse{MessageCode: 16}
	if got := m.MessageText(); got != "The water flow is low" {
		t.Errorf("MessageText() = %q", got)
	}

	m = FaultLogResponse{MessageCode: 99}
	if got := m.MessageText(); got != "Unknown fault code 99" {
		t.Errorf("MessageText() = %q", got)
	}
}

func TestCommandConstructors(t *testing.T) {
	if _, err := NewTogglePump(0); err == nil {
		t.Error("NewTogglePump(0) = nil error, want error")
	}
	if _, err := NewTogglePump(7); err == nil {
		t.Error("NewTogglePump(7) = nil error, want error")
	}
	m, err := NewTogglePump(6)
	if err != nil {
		t.Fatalf("NewTogglePump(6) error: %v", err)
	}
	if m.Item != ItemPump6 {
		t.Errorf("Item = 0x%02X, want 0x%02X", m.Item, ItemPump6)
	}

	l, err := NewToggleLight(2)
	if err != nil {
		t.Fatalf("NewToggleLight(2) error: %v", err)
	}
	if l.Item != ItemLight2 {
		t.Errorf("Item = 0x%02X, want 0x%02X", l.Item, ItemLight2)
	}

	// Celsius set-points ride the wire in half-degree counts.
	st := NewSetTemperature(38.5, ScaleCelsius)
	if st.Temperature != 77 {
		t.Errorf("celsius wire count = %d, want 77", st.Temperature)
	}
	st = NewSetTemperature(102, ScaleFahrenheit)
	if st.Temperature != 102 {
		t.Errorf("fahrenheit wire count = %d, want 102", st.Temperature)
	}

	if c := NewFaultLogRequest(0xFF).Code; c != [3]byte{0x20, 0xFF, 0x00} {
		t.Errorf("fault log code = % X", c[:])
	}
	if c := NewConfigurationRequest().Code; c != SettingsConfiguration {
		t.Errorf("configuration code = % X", c[:])
	}
}
