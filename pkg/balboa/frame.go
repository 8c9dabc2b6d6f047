// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2026 Caldera Works

package balboa

import "fmt"

// Frame is the wire-level unit: a channel, a type code, and an opaque
// payload. Frames are constructed once (either from a typed Message or by
// DecodeFrame) and never mutated.
//
// Serialized form:
//
//	0x7E | length | channel | flag | type | payload... | crc8 | 0x7E
//
// where length counts everything between the delimiters (including the
// checksum byte) and equals len(payload)+5.
type Frame struct {
	Channel  uint8
	TypeCode uint8
	Payload  []byte
}

// Encode serializes the frame. The only failure mode is a payload too
// large for the 8-bit length field.
func (f Frame) Encode() ([]byte, error) {
	if len(f.Payload) > MaxPayloadSize {
		return nil, fmt.Errorf("%w: %d bytes", ErrPayloadTooLarge, len(f.Payload))
	}

	flag := uint8(FlagDefault)
	if f.Channel == ChannelBroadcast {
		flag = FlagBroadcast
	}

	b := make([]byte, 0, len(f.Payload)+7)
	b = append(b, Delimiter)
	b = append(b, uint8(len(f.Payload)+5), f.Channel, flag, f.TypeCode)
	b = append(b, f.Payload...)
	b = append(b, CalculateCRC(b[1:]))
	b = append(b, Delimiter)
	return b, nil
}

// DecodeFrame parses one delimiter-bounded byte span into a Frame. Type
// specific validation (fixed lengths, pinned channels) is left to
// ParseMessage.
func DecodeFrame(b []byte) (Frame, error) {
	if len(b) < 7 {
		return Frame{}, fmt.Errorf("%w: %d bytes", ErrFraming, len(b))
	}
	if b[0] != Delimiter || b[len(b)-1] != Delimiter {
		return Frame{}, fmt.Errorf("%w: missing delimiter", ErrFraming)
	}

	inner := b[1 : len(b)-1]
	if int(inner[0]) != len(inner) {
		return Frame{}, fmt.Errorf("%w: declared %d, got %d", ErrLength, inner[0], len(inner))
	}

	crc := CalculateCRC(inner[:len(inner)-1])
	if crc != inner[len(inner)-1] {
		return Frame{}, fmt.Errorf("%w: expected 0x%02X, got 0x%02X", ErrChecksum, crc, inner[len(inner)-1])
	}

	payload := make([]byte, len(inner)-5)
	copy(payload, inner[4:len(inner)-1])

	return Frame{
		Channel:  inner[1],
		TypeCode: inner[3],
		Payload:  payload,
	}, nil
}

// String renders the frame for diagnostics.
func (f Frame) String() string {
	return fmt.Sprintf("frame ch=0x%02X type=0x%02X payload=% X", f.Channel, f.TypeCode, f.Payload)
}
