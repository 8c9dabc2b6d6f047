// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2026 Caldera Works

package balboa

import "errors"

// Decode and validation failures are recoverable: the receive loop logs
// them, discards the offending byte span, and rescans for the next
// delimiter. None of these escape to the caller of Client.Run.
var (
	// ErrFraming indicates a byte span that is not delimiter-bounded or
	// is too short to hold a frame.
	ErrFraming = errors.New("balboa: malformed framing")

	// ErrLength indicates the declared length byte disagrees with the
	// number of bytes between the delimiters.
	ErrLength = errors.New("balboa: length mismatch")

	// ErrChecksum indicates a CRC-8 mismatch.
	ErrChecksum = errors.New("balboa: checksum mismatch")

	// ErrUnknownType indicates a frame whose type code has no catalog
	// entry.
	ErrUnknownType = errors.New("balboa: unknown message type code")

	// ErrInvalidLength indicates a frame whose length disagrees with the
	// fixed length its type code requires.
	ErrInvalidLength = errors.New("balboa: invalid length for message type")

	// ErrInvalidChannel indicates a frame on a channel its type code does
	// not permit.
	ErrInvalidChannel = errors.New("balboa: invalid channel for message type")

	// ErrPayloadTooLarge is returned by Frame.Encode when the payload
	// would overflow the length byte.
	ErrPayloadTooLarge = errors.New("balboa: payload exceeds 250 bytes")
)
