// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2026 Caldera Works

package balboa

import (
	"encoding/binary"
	"fmt"
	"strings"
)

// Message is one typed variant of the catalog. Every variant is an
// immutable value convertible back to its wire Frame; ParseMessage and
// Frame are inverses for all constructible messages.
//
// Outbound command messages carry a Channel field. Zero means "not yet
// assigned": the client stamps its own channel on the message at the
// moment a bus grant lets it transmit.
type Message interface {
	Frame() Frame
}

// fixedLengths maps a type code to its required payload size. Variable
// length types are absent.
var fixedLengths = map[uint8]int{
	TypeNewClientClearToSend:      0,
	TypeChannelAssignmentRequest:  3,
	TypeChannelAssignmentResponse: 3,
	TypeChannelAssignmentAck:      0,
	TypeExistingClientRequest:     0,
	TypeExistingClientResponse:    3,
	TypeClientClearToSend:         0,
	TypeNothingToSend:             0,
	TypeToggleItemRequest:         2,
	TypeStatusUpdate:              31,
	TypeSetTemperatureRequest:     1,
	TypeSetTimeRequest:            2,
	TypeSettingsRequest:           3,
	TypeFilterCycles:              8,
	TypeInformationResponse:       21,
	TypePreferencesResponse:       18,
	TypeSetPreferenceRequest:      2,
	TypeFaultLogResponse:          10,
	TypeConfigurationResponse:     6,
}

// pinnedChannels maps a type code to the only channel it may appear on.
var pinnedChannels = map[uint8]uint8{
	TypeNewClientClearToSend:      ChannelArbitration,
	TypeChannelAssignmentRequest:  ChannelArbitration,
	TypeChannelAssignmentResponse: ChannelArbitration,
	TypeStatusUpdate:              ChannelBroadcast,
}

// ParseMessage converts a validated Frame into its catalog variant.
func ParseMessage(f Frame) (Message, error) {
	want, known := fixedLengths[f.TypeCode]
	if !known {
		return nil, fmt.Errorf("%w: 0x%02X", ErrUnknownType, f.TypeCode)
	}
	if len(f.Payload) != want {
		return nil, fmt.Errorf("%w: type 0x%02X wants %d payload bytes, got %d",
			ErrInvalidLength, f.TypeCode, want, len(f.Payload))
	}
	if ch, pinned := pinnedChannels[f.TypeCode]; pinned && f.Channel != ch {
		return nil, fmt.Errorf("%w: type 0x%02X pinned to 0x%02X, got 0x%02X",
			ErrInvalidChannel, f.TypeCode, ch, f.Channel)
	}

	p := f.Payload
	switch f.TypeCode {
	case TypeNewClientClearToSend:
		return NewClientClearToSend{}, nil
	case TypeChannelAssignmentRequest:
		return ChannelAssignmentRequest{Nonce: [3]byte{p[0], p[1], p[2]}}, nil
	case TypeChannelAssignmentResponse:
		return ChannelAssignmentResponse{Channel: p[0], Rest: [2]byte{p[1], p[2]}}, nil
	case TypeChannelAssignmentAck:
		return ChannelAssignmentAck{Channel: f.Channel}, nil
	case TypeExistingClientRequest:
		return ExistingClientRequest{Channel: f.Channel}, nil
	case TypeExistingClientResponse:
		return ExistingClientResponse{Channel: f.Channel, Capabilities: [3]byte{p[0], p[1], p[2]}}, nil
	case TypeClientClearToSend:
		return ClientClearToSend{Channel: f.Channel}, nil
	case TypeNothingToSend:
		return NothingToSend{Channel: f.Channel}, nil
	case TypeToggleItemRequest:
		return ToggleItemRequest{Channel: f.Channel, Item: ItemCode(p[0])}, nil
	case TypeStatusUpdate:
		var raw [statusPayloadSize]byte
		copy(raw[:], p)
		return StatusUpdate{Raw: raw}, nil
	case TypeSetTemperatureRequest:
		return SetTemperatureRequest{Channel: f.Channel, Temperature: p[0]}, nil
	case TypeSetTimeRequest:
		return SetTimeRequest{
			Channel: f.Channel,
			Mode:    ClockMode(p[0] >> 7),
			Hour:    p[0] & 0x7F,
			Minute:  p[1],
		}, nil
	case TypeSettingsRequest:
		return SettingsRequest{Channel: f.Channel, Code: [3]byte{p[0], p[1], p[2]}}, nil
	case TypeFilterCycles:
		return FilterCycles{
			Channel:        f.Channel,
			Start1Hour:     p[0],
			Start1Minute:   p[1],
			Duration1Hours: p[2],
			Duration1Mins:  p[3],
			Cycle2Enabled:  p[4]&0x80 != 0,
			Start2Hour:     p[4] & 0x7F,
			Start2Minute:   p[5],
			Duration2Hours: p[6],
			Duration2Mins:  p[7],
		}, nil
	case TypeInformationResponse:
		m := InformationResponse{
			Channel:         f.Channel,
			ConfigSignature: binary.BigEndian.Uint32(p[13:17]),
			SetupNumber:     p[12],
			VoltageFlag:     p[17],
			HeaterType:      p[18],
			DipSwitch:       binary.BigEndian.Uint16(p[19:21]),
		}
		copy(m.Version[:], p[0:4])
		copy(m.Model[:], p[4:12])
		return m, nil
	case TypePreferencesResponse:
		m := PreferencesResponse{Channel: f.Channel}
		copy(m.Data[:], p)
		return m, nil
	case TypeSetPreferenceRequest:
		return SetPreferenceRequest{Channel: f.Channel, Code: PreferenceCode(p[0]), Value: p[1]}, nil
	case TypeFaultLogResponse:
		return FaultLogResponse{
			Channel:            f.Channel,
			Count:              p[0],
			EntryNumber:        p[1],
			MessageCode:        p[2],
			DaysAgo:            p[3],
			Hour:               p[4],
			Minute:             p[5],
			Flags:              p[6],
			SetTemperature:     p[7],
			SensorATemperature: p[8],
			SensorBTemperature: p[9],
		}, nil
	case TypeConfigurationResponse:
		m := ConfigurationResponse{Channel: f.Channel}
		copy(m.Data[:], p)
		return m, nil
	}
	return nil, fmt.Errorf("%w: 0x%02X", ErrUnknownType, f.TypeCode)
}

// NewClientClearToSend is the board's broadcast invitation for clients
// without a channel to request one.
type NewClientClearToSend struct{}

// Frame implements Message.
func (NewClientClearToSend) Frame() Frame {
	return Frame{Channel: ChannelArbitration, TypeCode: TypeNewClientClearToSend}
}

// ChannelAssignmentRequest asks the board for a channel. The nonce
// identifies this client across the handshake; its exact interpretation
// by the board is unknown, it only needs to be stable and unlikely to
// collide.
type ChannelAssignmentRequest struct {
	Nonce [3]byte
}

// Frame implements Message.
func (m ChannelAssignmentRequest) Frame() Frame {
	return Frame{Channel: ChannelArbitration, TypeCode: TypeChannelAssignmentRequest, Payload: m.Nonce[:]}
}

// ChannelAssignmentResponse carries the channel the board granted. The
// trailing two bytes have unknown purpose and are preserved opaquely.
type ChannelAssignmentResponse struct {
	Channel uint8
	Rest    [2]byte
}

// Frame implements Message.
func (m ChannelAssignmentResponse) Frame() Frame {
	return Frame{
		Channel:  ChannelArbitration,
		TypeCode: TypeChannelAssignmentResponse,
		Payload:  []byte{m.Channel, m.Rest[0], m.Rest[1]},
	}
}

// ChannelAssignmentAck confirms a granted channel back to the board.
type ChannelAssignmentAck struct {
	Channel uint8
}

// Frame implements Message.
func (m ChannelAssignmentAck) Frame() Frame {
	return Frame{Channel: m.Channel, TypeCode: TypeChannelAssignmentAck}
}

// ExistingClientRequest is the board asking a client on an assigned
// channel to prove it is still present.
type ExistingClientRequest struct {
	Channel uint8
}

// Frame implements Message.
func (m ExistingClientRequest) Frame() Frame {
	return Frame{Channel: m.Channel, TypeCode: TypeExistingClientRequest}
}

// ExistingClientResponse answers an ExistingClientRequest with a fixed
// capability payload.
type ExistingClientResponse struct {
	Channel      uint8
	Capabilities [3]byte
}

// DefaultCapabilities is the capability payload observed from panels on
// real buses. Meaning of the individual bytes is undocumented.
var DefaultCapabilities = [3]byte{0x04, 0x08, 0x00}

// Frame implements Message.
func (m ExistingClientResponse) Frame() Frame {
	return Frame{Channel: m.Channel, TypeCode: TypeExistingClientResponse, Payload: m.Capabilities[:]}
}

// ClientClearToSend is the bus grant: the sole moment the addressed
// client may transmit one message.
type ClientClearToSend struct {
	Channel uint8
}

// Frame implements Message.
func (m ClientClearToSend) Frame() Frame {
	return Frame{Channel: m.Channel, TypeCode: TypeClientClearToSend}
}

// NothingToSend politely yields a bus grant the client has no use for.
type NothingToSend struct {
	Channel uint8
}

// Frame implements Message.
func (m NothingToSend) Frame() Frame {
	return Frame{Channel: m.Channel, TypeCode: TypeNothingToSend}
}

// ToggleItemRequest advances one output's state by a single step. There
// is no absolute set: reaching a target state may take several toggles.
type ToggleItemRequest struct {
	Channel uint8
	Item    ItemCode
}

// Frame implements Message.
func (m ToggleItemRequest) Frame() Frame {
	return Frame{Channel: m.Channel, TypeCode: TypeToggleItemRequest, Payload: []byte{uint8(m.Item), 0x00}}
}

// SetTemperatureRequest sets the target temperature in the active scale's
// wire units (half-degrees for Celsius).
type SetTemperatureRequest struct {
	Channel     uint8
	Temperature uint8
}

// Frame implements Message.
func (m SetTemperatureRequest) Frame() Frame {
	return Frame{Channel: m.Channel, TypeCode: TypeSetTemperatureRequest, Payload: []byte{m.Temperature}}
}

// SetTimeRequest sets the board clock. The clock mode rides in bit 7 of
// the hour byte.
type SetTimeRequest struct {
	Channel uint8
	Hour    uint8
	Minute  uint8
	Mode    ClockMode
}

// Frame implements Message.
func (m SetTimeRequest) Frame() Frame {
	return Frame{
		Channel:  m.Channel,
		TypeCode: TypeSetTimeRequest,
		Payload:  []byte{uint8(m.Mode)<<7 | m.Hour&0x7F, m.Minute},
	}
}

// SettingsRequest asks the board to report one settings category,
// selected by a 3-byte sub-code. Named constructors live in commands.go.
type SettingsRequest struct {
	Channel uint8
	Code    [3]byte
}

// Frame implements Message.
func (m SettingsRequest) Frame() Frame {
	return Frame{Channel: m.Channel, TypeCode: TypeSettingsRequest, Payload: m.Code[:]}
}

// FilterCycles describes the two filtration windows. The same layout is
// both the board's response to a filter-cycles request and the client's
// set-request; cycle 2 is optional and flagged in bit 7 of its start hour.
type FilterCycles struct {
	Channel        uint8
	Start1Hour     uint8
	Start1Minute   uint8
	Duration1Hours uint8
	Duration1Mins  uint8
	Cycle2Enabled  bool
	Start2Hour     uint8
	Start2Minute   uint8
	Duration2Hours uint8
	Duration2Mins  uint8
}

// Frame implements Message.
func (m FilterCycles) Frame() Frame {
	s2h := m.Start2Hour & 0x7F
	if m.Cycle2Enabled {
		s2h |= 0x80
	}
	return Frame{
		Channel:  m.Channel,
		TypeCode: TypeFilterCycles,
		Payload: []byte{
			m.Start1Hour, m.Start1Minute, m.Duration1Hours, m.Duration1Mins,
			s2h, m.Start2Minute, m.Duration2Hours, m.Duration2Mins,
		},
	}
}

// InformationResponse reports board identity: software version, model,
// setup number, configuration signature, and heater parameters.
type InformationResponse struct {
	Channel         uint8
	Version         [4]uint8
	Model           [8]byte
	SetupNumber     uint8
	ConfigSignature uint32
	VoltageFlag     uint8
	HeaterType      uint8
	DipSwitch       uint16
}

// Frame implements Message.
func (m InformationResponse) Frame() Frame {
	p := make([]byte, 21)
	copy(p[0:4], m.Version[:])
	copy(p[4:12], m.Model[:])
	p[12] = m.SetupNumber
	binary.BigEndian.PutUint32(p[13:17], m.ConfigSignature)
	p[17] = m.VoltageFlag
	p[18] = m.HeaterType
	binary.BigEndian.PutUint16(p[19:21], m.DipSwitch)
	return Frame{Channel: m.Channel, TypeCode: TypeInformationResponse, Payload: p}
}

// SoftwareID renders the version bytes the way panels display them,
// e.g. "M100_220 V2.1".
func (m InformationResponse) SoftwareID() string {
	if m.Version[3] == 0 {
		return fmt.Sprintf("M%d_%d V%d", m.Version[0], m.Version[1], m.Version[2])
	}
	return fmt.Sprintf("M%d_%d V%d.%d", m.Version[0], m.Version[1], m.Version[2], m.Version[3])
}

// ModelName returns the space-padded model field trimmed.
func (m InformationResponse) ModelName() string {
	return strings.TrimRight(string(m.Model[:]), " \x00")
}

// HeaterVoltage maps the voltage flag to volts.
func (m InformationResponse) HeaterVoltage() int {
	if m.VoltageFlag == 0x01 {
		return 220
	}
	return 120
}

// PreferencesResponse carries the board's preference block. The layout is
// largely undocumented; it is preserved opaquely.
type PreferencesResponse struct {
	Channel uint8
	Data    [18]byte
}

// Frame implements Message.
func (m PreferencesResponse) Frame() Frame {
	return Frame{Channel: m.Channel, TypeCode: TypePreferencesResponse, Payload: append([]byte(nil), m.Data[:]...)}
}

// SetPreferenceRequest changes one board preference.
type SetPreferenceRequest struct {
	Channel uint8
	Code    PreferenceCode
	Value   uint8
}

// Frame implements Message.
func (m SetPreferenceRequest) Frame() Frame {
	return Frame{Channel: m.Channel, TypeCode: TypeSetPreferenceRequest, Payload: []byte{uint8(m.Code), m.Value}}
}

// FaultLogResponse is one entry of the board's fault log.
type FaultLogResponse struct {
	Channel            uint8
	Count              uint8
	EntryNumber        uint8
	MessageCode        uint8
	DaysAgo            uint8
	Hour               uint8
	Minute             uint8
	Flags              uint8
	SetTemperature     uint8
	SensorATemperature uint8
	SensorBTemperature uint8
}

// Frame implements Message.
func (m FaultLogResponse) Frame() Frame {
	return Frame{
		Channel:  m.Channel,
		TypeCode: TypeFaultLogResponse,
		Payload: []byte{
			m.Count, m.EntryNumber, m.MessageCode, m.DaysAgo, m.Hour,
			m.Minute, m.Flags, m.SetTemperature, m.SensorATemperature, m.SensorBTemperature,
		},
	}
}

// MessageText looks up the panel text for this entry's message code.
func (m FaultLogResponse) MessageText() string {
	if text, ok := FaultMessages[m.MessageCode]; ok {
		return text
	}
	return fmt.Sprintf("Unknown fault code %d", m.MessageCode)
}

// ConfigurationResponse carries the board's capability block; see
// ParseConfiguration for the decoded view.
type ConfigurationResponse struct {
	Channel uint8
	Data    [6]byte
}

// Frame implements Message.
func (m ConfigurationResponse) Frame() Frame {
	return Frame{Channel: m.Channel, TypeCode: TypeConfigurationResponse, Payload: append([]byte(nil), m.Data[:]...)}
}

// Serialize encodes a Message all the way to wire bytes.
func Serialize(m Message) ([]byte, error) {
	return m.Frame().Encode()
}
