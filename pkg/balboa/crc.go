// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2026 Caldera Works

package balboa

// CRC-8 configuration. Non-reflected, MSB-first.
const (
	crcPolynomial = 0x07
	crcInitial    = 0x02
	crcFinalXor   = 0x02
)

// CalculateCRC computes the frame checksum over the bytes between the
// delimiters, excluding the trailing checksum byte itself.
func CalculateCRC(data []byte) uint8 {
	crc := uint8(crcInitial)
	for _, b := range data {
		crc ^= b
		for i := 0; i < 8; i++ {
			if crc&0x80 != 0 {
				crc = (crc << 1) ^ crcPolynomial
			} else {
				crc <<= 1
			}
		}
	}
	return crc ^ crcFinalXor
}
