// SPDX-FileCopyrightText: 2023 The Pion community <https://pion.ly>
// SPDX-License-Identifier: MIT

package tlsconn

import (
	"context"

	"github.com/censys-oss/tlsconn/v2/pkg/protocol"
	"github.com/censys-oss/tlsconn/v2/pkg/protocol/handshake"
	"github.com/pion/logging"
)

// Renegotiator drives a legacy renegotiation handshake on a TLS <= 1.2
// session. It is invoked from the receive loop when a ClientHello
// (server side) or HelloRequest (client side) arrives mid-session, with
// the connection's write lock held.
type Renegotiator interface {
	Renegotiate(ctx context.Context, c *Conn, trigger handshake.Message) error
}

// Config collects the negotiated identity and collaborators a Conn is
// built from. The handshake component constructs one once negotiation
// has produced keys and a cipher state.
type Config struct {
	// Version is the negotiated protocol version. Defaults to TLS 1.2.
	Version protocol.Version

	// SessionID is the session identifier or ticket label under which
	// this session is resumable, if any.
	SessionID []byte

	// NegotiatedProtocol is the ALPN result, empty when ALPN was not
	// used.
	NegotiatedProtocol string

	// ServerName is the hostname the client advertised via SNI.
	ServerName string

	// Establishment is the initial lifecycle phase. Nil means
	// Established, the usual state when a driver is attached to a
	// finished handshake.
	Establishment *Establishment

	// HandshakeState carries the handshake bookkeeping into the driver;
	// required for NewSessionTicket processing on 1.3 clients.
	HandshakeState *HandshakeState

	// SessionStore is the shared session manager. Optional; without it
	// tickets are dropped and nothing is invalidated on failure.
	SessionStore SessionStore

	// Renegotiator services TLS <= 1.2 renegotiation triggers. Optional;
	// without it renegotiation attempts terminate the session.
	Renegotiator Renegotiator

	// LoggerFactory is used to produce the connection logger
	LoggerFactory logging.LoggerFactory
}

func validateConfig(config *Config) error {
	switch {
	case config == nil:
		return errNoConfigProvided
	case config.Version != (protocol.Version{}) &&
		!config.Version.Equal(protocol.Version1_0) &&
		!config.Version.Equal(protocol.Version1_1) &&
		!config.Version.Equal(protocol.Version1_2) &&
		!config.Version.Equal(protocol.Version1_3):
		return errUnsupportedVersion
	}
	return nil
}
