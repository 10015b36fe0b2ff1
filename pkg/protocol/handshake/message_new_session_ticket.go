// SPDX-FileCopyrightText: 2023 The Pion community <https://pion.ly>
// SPDX-License-Identifier: MIT

package handshake

import (
	"github.com/censys-oss/tlsconn/v2/pkg/protocol/extension"
	"github.com/zmap/zcrypto/tls"
	"golang.org/x/crypto/cryptobyte"
)

// MessageNewSessionTicket conveys a resumption PSK from the server after
// its Finished message. A client may receive any number of these on one
// connection.
//
// https://tools.ietf.org/html/rfc8446#section-4.6.1
type MessageNewSessionTicket struct {
	TicketLifetime uint32
	TicketAgeAdd   uint32
	TicketNonce    []byte
	Ticket         []byte
	Extensions     []extension.Extension
}

// Type returns the Handshake Type
func (m MessageNewSessionTicket) Type() Type {
	return TypeNewSessionTicket
}

// Marshal encodes the Handshake
func (m *MessageNewSessionTicket) Marshal() ([]byte, error) {
	if len(m.Ticket) == 0 {
		return nil, errTicketEmpty
	}

	extensions, err := extension.Marshal(m.Extensions)
	if err != nil {
		return nil, err
	}

	var b cryptobyte.Builder
	b.AddUint32(m.TicketLifetime)
	b.AddUint32(m.TicketAgeAdd)
	b.AddUint8LengthPrefixed(func(b *cryptobyte.Builder) {
		b.AddBytes(m.TicketNonce)
	})
	b.AddUint16LengthPrefixed(func(b *cryptobyte.Builder) {
		b.AddBytes(m.Ticket)
	})
	b.AddBytes(extensions)
	return b.Bytes()
}

// Unmarshal populates the message from encoded data
func (m *MessageNewSessionTicket) Unmarshal(data []byte) error {
	s := cryptobyte.String(data)

	var nonce, ticket cryptobyte.String
	if !s.ReadUint32(&m.TicketLifetime) ||
		!s.ReadUint32(&m.TicketAgeAdd) ||
		!s.ReadUint8LengthPrefixed(&nonce) ||
		!s.ReadUint16LengthPrefixed(&ticket) ||
		len(ticket) == 0 {
		return errBufferTooSmall
	}

	m.TicketNonce = append([]byte{}, nonce...)
	m.Ticket = append([]byte{}, ticket...)

	extensions, err := extension.Unmarshal([]byte(s))
	if err != nil {
		return err
	}
	m.Extensions = extensions
	return nil
}

// MaxEarlyDataSize returns the 0-RTT byte budget advertised with the
// ticket, or zero when no valid EarlyData extension is present.
func (m *MessageNewSessionTicket) MaxEarlyDataSize() uint32 {
	for _, ext := range m.Extensions {
		if e, ok := ext.(*extension.EarlyData); ok {
			return e.MaxEarlyDataSize
		}
	}
	return 0
}

// MakeLog exports the ticket for handshake logging
func (m *MessageNewSessionTicket) MakeLog() *tls.SessionTicket {
	ret := &tls.SessionTicket{}
	ret.Value = append([]byte{}, m.Ticket...)
	ret.Length = len(m.Ticket)
	ret.LifetimeHint = m.TicketLifetime
	return ret
}
