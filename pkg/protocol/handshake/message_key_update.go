// SPDX-FileCopyrightText: 2023 The Pion community <https://pion.ly>
// SPDX-License-Identifier: MIT

package handshake

// KeyUpdateRequest indicates whether the recipient of the KeyUpdate
// should respond with its own KeyUpdate
//
// https://tools.ietf.org/html/rfc8446#section-4.6.3
type KeyUpdateRequest uint8

// KeyUpdateRequest enums
const (
	KeyUpdateNotRequested KeyUpdateRequest = 0
	KeyUpdateRequested    KeyUpdateRequest = 1
)

// MessageKeyUpdate announces that the sender is updating its sending
// keys; RequestUpdate asks the peer to update its own as well. The
// message is the last record sent under the old sending keys.
//
// https://tools.ietf.org/html/rfc8446#section-4.6.3
type MessageKeyUpdate struct {
	RequestUpdate KeyUpdateRequest
}

// Type returns the Handshake Type
func (m MessageKeyUpdate) Type() Type {
	return TypeKeyUpdate
}

// Marshal encodes the Handshake
func (m *MessageKeyUpdate) Marshal() ([]byte, error) {
	if m.RequestUpdate > KeyUpdateRequested {
		return nil, errInvalidKeyUpdate
	}
	return []byte{byte(m.RequestUpdate)}, nil
}

// Unmarshal populates the message from encoded data
func (m *MessageKeyUpdate) Unmarshal(data []byte) error {
	if len(data) != 1 {
		return errBufferTooSmall
	}
	if data[0] > byte(KeyUpdateRequested) {
		return errInvalidKeyUpdate
	}
	m.RequestUpdate = KeyUpdateRequest(data[0])
	return nil
}
