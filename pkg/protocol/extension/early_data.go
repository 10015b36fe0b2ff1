// SPDX-FileCopyrightText: 2023 The Pion community <https://pion.ly>
// SPDX-License-Identifier: MIT

package extension

import "encoding/binary"

const earlyDataBodyLength = 4

// EarlyData is the early_data extension as it appears inside a
// NewSessionTicket message, advertising the maximum amount of 0-RTT
// data the client may send under the ticket.
//
// https://tools.ietf.org/html/rfc8446#section-4.2.10
type EarlyData struct {
	MaxEarlyDataSize uint32
}

// TypeValue returns the extension TypeValue
func (e EarlyData) TypeValue() TypeValue {
	return EarlyDataTypeValue
}

// Marshal encodes the extension
func (e *EarlyData) Marshal() ([]byte, error) {
	out := make([]byte, 4+earlyDataBodyLength)
	binary.BigEndian.PutUint16(out, uint16(e.TypeValue()))
	binary.BigEndian.PutUint16(out[2:], earlyDataBodyLength)
	binary.BigEndian.PutUint32(out[4:], e.MaxEarlyDataSize)
	return out, nil
}

// Unmarshal populates the extension from its body
func (e *EarlyData) Unmarshal(data []byte) error {
	if len(data) != earlyDataBodyLength {
		return errInvalidEarlyData
	}
	e.MaxEarlyDataSize = binary.BigEndian.Uint32(data)
	return nil
}
