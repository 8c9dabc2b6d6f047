// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2026 Caldera Works

package balboa

import "testing"

// capturedInformationFrame is a reference information-response frame as
// seen on the wire (channel 0x0A).
var capturedInformationFrame = []byte{
	0x7E, 0x1A, 0x0A, 0xBF, 0x24, 0x64, 0xD2, 0x02, 0x00, 0x4D, 0x46,
	0x42, 0x50, 0x32, 0x30, 0x20, 0x20, 0x04, 0x12, 0x34, 0x56, 0x78,
	0x01, 0x0A, 0x00, 0x03, 0x10, 0x7E,
}

func TestCalculateCRC_CapturedFrame(t *testing.T) {
	interior := capturedInformationFrame[1 : len(capturedInformationFrame)-2]
	want := capturedInformationFrame[len(capturedInformationFrame)-2]

	got := CalculateCRC(interior)
	if got != want {
		t.Errorf("CalculateCRC() = 0x%02X, want 0x%02X", got, want)
	}
}

func TestCalculateCRC_Deterministic(t *testing.T) {
	data := []byte{0x05, 0xFE, 0xBF, 0x00}
	first := CalculateCRC(data)
	for i := 0; i < 10; i++ {
		if got := CalculateCRC(data); got != first {
			t.Fatalf("CalculateCRC() = 0x%02X on run %d, want 0x%02X", got, i, first)
		}
	}
	// Known value for the broadcast invitation interior.
	if first != 0xAC {
		t.Errorf("CalculateCRC() = 0x%02X, want 0xAC", first)
	}
}

func TestCalculateCRC_SingleBitSensitivity(t *testing.T) {
	data := []byte{0x1A, 0x0A, 0xBF, 0x24, 0x64, 0xD2}
	base := CalculateCRC(data)

	for i := range data {
		flipped := append([]byte(nil), data...)
		flipped[i] ^= 0x01
		if CalculateCRC(flipped) == base {
			t.Errorf("flipping byte %d did not change the checksum", i)
		}
	}
}
