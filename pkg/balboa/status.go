// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2026 Caldera Works

package balboa

import "fmt"

const statusPayloadSize = 31

// currentTempUnknown is broadcast while the board has no reading yet.
const currentTempUnknown = 0xFF

// StatusUpdate is the periodic broadcast carrying the board's entire
// visible state as a bit-packed blob. Several bytes have unknown purpose
// and are preserved opaquely in Raw.
type StatusUpdate struct {
	Raw [statusPayloadSize]byte
}

// Frame implements Message.
func (m StatusUpdate) Frame() Frame {
	return Frame{Channel: ChannelBroadcast, TypeCode: TypeStatusUpdate, Payload: append([]byte(nil), m.Raw[:]...)}
}

// StatusSnapshot is one decoded status broadcast. Typed fields are always
// derived from the raw bytes on access, never stored, so a snapshot can
// not drift from its raw form. Two snapshots are equal exactly when their
// raw bytes are equal.
//
// Config gates which outputs exist on this board; accessors for gated
// outputs report ok=false until a ConfigurationResponse has been seen.
type StatusSnapshot struct {
	Raw    [statusPayloadSize]byte
	Config *DeviceConfiguration
}

// Priming reports the board's pump-priming startup phase.
func (s StatusSnapshot) Priming() bool { return s.Raw[1]&0x01 != 0 }

// Scale returns the active temperature scale.
func (s StatusSnapshot) Scale() TemperatureScale { return TemperatureScale(s.Raw[9] & 0x01) }

// ClockMode returns the 12/24-hour display mode.
func (s StatusSnapshot) ClockMode() ClockMode { return ClockMode(s.Raw[9] >> 1 & 0x01) }

// CurrentTemperature returns the water temperature in the active scale.
// ok is false while the board reports no reading.
func (s StatusSnapshot) CurrentTemperature() (float64, bool) {
	if s.Raw[2] == currentTempUnknown {
		return 0, false
	}
	return s.scaled(s.Raw[2]), true
}

// SetTemperature returns the target temperature in the active scale.
func (s StatusSnapshot) SetTemperature() float64 { return s.scaled(s.Raw[20]) }

// scaled converts a wire temperature count: Celsius is carried in
// half-degrees, Fahrenheit in whole degrees.
func (s StatusSnapshot) scaled(count uint8) float64 {
	if s.Scale() == ScaleCelsius {
		return float64(count) / 2
	}
	return float64(count)
}

// Hour returns the board clock hour.
func (s StatusSnapshot) Hour() uint8 { return s.Raw[3] }

// Minute returns the board clock minute.
func (s StatusSnapshot) Minute() uint8 { return s.Raw[4] }

// HeatingMode returns the ready/rest scheduling mode.
func (s StatusSnapshot) HeatingMode() HeatingMode { return HeatingMode(s.Raw[5] & 0x03) }

// FilterMode reports which filter cycles are currently running.
func (s StatusSnapshot) FilterMode() FilterMode { return FilterMode(s.Raw[9] >> 2 & 0x03) }

// Heating reports whether the heater is currently on.
func (s StatusSnapshot) Heating() bool { return s.Raw[10]>>4&0x03 != 0 }

// TemperatureRange returns the active low/high set-point range.
func (s StatusSnapshot) TemperatureRange() TemperatureRange {
	return TemperatureRange(s.Raw[10] >> 3 & 0x01)
}

// Pump returns the 2-bit speed state of pump n (1-6). ok is false for
// pumps the configuration says are absent; such bits are never read.
func (s StatusSnapshot) Pump(n int) (PumpState, bool) {
	if n < 1 || n > 6 {
		return PumpOff, false
	}
	if s.Config != nil && !s.Config.Pumps[n-1] {
		return PumpOff, false
	}
	// Pumps 1-4 pack into byte 11, pumps 5-6 spill into byte 12.
	if n <= 4 {
		return PumpState(s.Raw[11] >> ((n - 1) * 2) & 0x03), true
	}
	return PumpState(s.Raw[12] >> ((n - 5) * 2) & 0x03), true
}

// CircPump reports the circulation pump, when fitted.
func (s StatusSnapshot) CircPump() (bool, bool) {
	if s.Config != nil && !s.Config.CircPump {
		return false, false
	}
	return s.Raw[13]&0x02 != 0, true
}

// Blower reports the air blower, when fitted.
func (s StatusSnapshot) Blower() (bool, bool) {
	if s.Config != nil && !s.Config.Blower {
		return false, false
	}
	return s.Raw[13]&0xC0 == 0xC0, true
}

// Light reports light n (1-2), when fitted. Each light occupies two bits,
// both set when on.
func (s StatusSnapshot) Light(n int) (bool, bool) {
	if n < 1 || n > 2 {
		return false, false
	}
	if s.Config != nil && !s.Config.Lights[n-1] {
		return false, false
	}
	mask := uint8(0x03) << ((n - 1) * 2)
	return s.Raw[14]&mask == mask, true
}

// Mister reports the mister, when fitted.
func (s StatusSnapshot) Mister() (bool, bool) {
	if s.Config != nil && !s.Config.Mister {
		return false, false
	}
	return s.Raw[18]&0x01 != 0, true
}

// Aux reports aux output n (1-2), when fitted.
func (s StatusSnapshot) Aux(n int) (bool, bool) {
	if n < 1 || n > 2 {
		return false, false
	}
	if s.Config != nil && !s.Config.Aux[n-1] {
		return false, false
	}
	return s.Raw[18]&(0x08<<(n-1)) != 0, true
}

// Equal compares snapshots byte-for-byte on their raw form.
func (s StatusSnapshot) Equal(o StatusSnapshot) bool { return s.Raw == o.Raw }

// String summarizes the snapshot for diagnostics.
func (s StatusSnapshot) String() string {
	cur := "--"
	if t, ok := s.CurrentTemperature(); ok {
		cur = fmt.Sprintf("%.1f", t)
	}
	return fmt.Sprintf("status temp=%s set=%.1f %s mode=%s heating=%v range=%s clock=%02d:%02d",
		cur, s.SetTemperature(), s.Scale(), s.HeatingMode(), s.Heating(), s.TemperatureRange(), s.Hour(), s.Minute())
}

// DeviceConfiguration is the decoded capability block from a
// ConfigurationResponse: which outputs physically exist on this board.
type DeviceConfiguration struct {
	Pumps    [6]bool
	Lights   [2]bool
	CircPump bool
	Blower   bool
	Mister   bool
	Aux      [2]bool
}

// ParseConfiguration decodes the 6-byte capability payload. Presence is a
// nonzero field: pumps 1-4 occupy two bits each in byte 0, pumps 5-6 the
// corners of byte 1, lights byte 2, the remaining outputs single bits in
// bytes 3-4. Byte 5 has unknown purpose.
func ParseConfiguration(m ConfigurationResponse) DeviceConfiguration {
	d := m.Data
	var cfg DeviceConfiguration
	for i := 0; i < 4; i++ {
		cfg.Pumps[i] = d[0]>>(i*2)&0x03 != 0
	}
	cfg.Pumps[4] = d[1]&0x03 != 0
	cfg.Pumps[5] = d[1]>>6&0x03 != 0
	cfg.Lights[0] = d[2]&0x03 != 0
	cfg.Lights[1] = d[2]>>6&0x03 != 0
	cfg.CircPump = d[3]&0x01 != 0
	cfg.Blower = d[3]&0x02 != 0
	cfg.Mister = d[3]&0x10 != 0
	cfg.Aux[0] = d[4]&0x01 != 0
	cfg.Aux[1] = d[4]&0x02 != 0
	return cfg
}

// StatusDecoder turns status broadcasts into snapshots with
// change-detection against the previous broadcast. Change is byte-for-byte
// over the whole raw payload: some bytes tick every broadcast without
// meaning, and downstream consumers are expected to filter further if they
// care. The decoder deliberately does not.
type StatusDecoder struct {
	last *StatusSnapshot
	cfg  *DeviceConfiguration
}

// NewStatusDecoder creates a decoder with no prior snapshot; the first
// broadcast always reports changed.
func NewStatusDecoder() *StatusDecoder {
	return &StatusDecoder{}
}

// SetConfiguration records the board capabilities used to gate snapshot
// fields from here on.
func (d *StatusDecoder) SetConfiguration(cfg DeviceConfiguration) {
	d.cfg = &cfg
}

// Decode produces the snapshot for one broadcast and whether its raw bytes
// differ from the previous broadcast's.
func (d *StatusDecoder) Decode(m StatusUpdate) (StatusSnapshot, bool) {
	snap := StatusSnapshot{Raw: m.Raw, Config: d.cfg}
	changed := d.last == nil || d.last.Raw != m.Raw
	d.last = &snap
	return snap, changed
}

// Last returns the most recent snapshot, if any.
func (d *StatusDecoder) Last() (StatusSnapshot, bool) {
	if d.last == nil {
		return StatusSnapshot{}, false
	}
	return *d.last, true
}
