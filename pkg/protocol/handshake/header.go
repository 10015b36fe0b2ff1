// SPDX-FileCopyrightText: 2023 The Pion community <https://pion.ly>
// SPDX-License-Identifier: MIT

package handshake

// HeaderLength is the length of the fixed handshake header
const HeaderLength = 4

// Header is the static first 4 bytes of each handshake message
//
// https://tools.ietf.org/html/rfc8446#section-4
type Header struct {
	Type   Type
	Length uint32 // uint24 on the wire
}

// Marshal encodes the header
func (h *Header) Marshal() ([]byte, error) {
	if h.Length > 0xFFFFFF {
		return nil, errLengthMismatch
	}

	out := make([]byte, HeaderLength)
	out[0] = byte(h.Type)
	out[1] = byte(h.Length >> 16)
	out[2] = byte(h.Length >> 8)
	out[3] = byte(h.Length)
	return out, nil
}

// Unmarshal populates the header from encoded data
func (h *Header) Unmarshal(data []byte) error {
	if len(data) < HeaderLength {
		return errBufferTooSmall
	}

	h.Type = Type(data[0])
	h.Length = uint32(data[1])<<16 | uint32(data[2])<<8 | uint32(data[3])
	return nil
}
