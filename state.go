// SPDX-FileCopyrightText: 2023 The Pion community <https://pion.ly>
// SPDX-License-Identifier: MIT

package tlsconn

import (
	"github.com/censys-oss/tlsconn/v2/pkg/protocol"
)

// EstablishmentKind tags the handshake/0-RTT lifecycle phase of a
// session.
type EstablishmentKind int

// EstablishmentKind enums
const (
	// NotEstablished means the handshake has not finished
	NotEstablished EstablishmentKind = iota
	// EarlyDataAllowed means a TLS 1.3 server accepted 0-RTT and is
	// consuming early data against a byte budget
	EarlyDataAllowed
	// EarlyDataNotAllowed means a TLS 1.3 server rejected 0-RTT; early
	// data records are dropped silently
	EarlyDataNotAllowed
	// Established is the normal post-handshake steady state
	Established
)

func (k EstablishmentKind) String() string {
	switch k {
	case NotEstablished:
		return "NotEstablished"
	case EarlyDataAllowed:
		return "EarlyDataAllowed"
	case EarlyDataNotAllowed:
		return "EarlyDataNotAllowed"
	case Established:
		return "Established"
	default:
		return "Invalid EstablishmentKind"
	}
}

// Establishment is the session lifecycle phase plus, while 0-RTT is
// being consumed, the remaining early data byte budget. Transitions are
// driven by the handshake component; the driver only reads it and
// decrements the budget.
type Establishment struct {
	Kind               EstablishmentKind
	RemainingEarlyData uint32
}

// State is a read-only snapshot of the session identity
type State struct {
	Version            protocol.Version
	IsClient           bool
	SessionID          []byte
	NegotiatedProtocol string
	ServerName         string
	Establishment      Establishment
}
