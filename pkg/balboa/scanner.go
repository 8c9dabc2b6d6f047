// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2026 Caldera Works

package balboa

import (
	"bufio"
	"io"
)

// Scanner extracts delimiter-bounded frame candidates from a byte stream.
// It performs no validation beyond locating delimiters; callers hand each
// span to DecodeFrame and drop spans that fail. A corrupted length byte
// may swallow bytes from the following frame, but the stream resynchronizes
// at the next delimiter on its own.
type Scanner struct {
	r *bufio.Reader
}

// NewScanner wraps a raw byte source, typically a serial port or socket.
func NewScanner(r io.Reader) *Scanner {
	return &Scanner{r: bufio.NewReader(r)}
}

// Next blocks until one prospective frame has been read and returns it,
// delimiters included. It returns the reader's error (io.EOF on a closed
// transport) once the stream ends.
//
// The delimiter value legally appears as both the final byte of one frame
// and the first byte of the next, so a delimiter read where the length
// byte belongs marks the boundary between two adjacent frames: the second
// delimiter is the true frame start and the scan restarts from there.
func (s *Scanner) Next() ([]byte, error) {
	for {
		b, err := s.r.ReadByte()
		if err != nil {
			return nil, err
		}
		if b != Delimiter {
			continue
		}

		length, err := s.r.ReadByte()
		if err != nil {
			return nil, err
		}
		for length == Delimiter {
			// Previous byte was the tail of the prior frame; this one is
			// the real start.
			length, err = s.r.ReadByte()
			if err != nil {
				return nil, err
			}
		}

		// length counts channel..crc plus itself; one more byte for the
		// closing delimiter.
		span := make([]byte, int(length)+2)
		span[0] = Delimiter
		span[1] = length
		if _, err := io.ReadFull(s.r, span[2:]); err != nil {
			return nil, err
		}
		return span, nil
	}
}
