// SPDX-FileCopyrightText: 2023 The Pion community <https://pion.ly>
// SPDX-License-Identifier: MIT

package tlsconn

import (
	"time"

	"github.com/zmap/zcrypto/tls"
)

// Session represents one resumable session as installed into a
// SessionStore. For TLS 1.3 the key is the ticket label and Secret is
// the derived resumption PSK; for TLS <= 1.2 the key is the session id
// and Secret is the master secret.
type Session struct {
	Suite  tls.CipherSuiteID
	Secret []byte

	// Ticket metadata, TLS 1.3 only
	Lifetime     uint32 // seconds
	AgeAdd       uint32
	ReceivedAt   time.Time
	MaxEarlyData uint32
}

// SessionStore is the shared session manager. Implementations must be
// safe for concurrent use; Del is idempotent.
type SessionStore interface {
	// Set installs or replaces a session under the given key
	Set(key []byte, s Session) error
	// Get looks up a session; an empty Session and nil error mean a miss
	Get(key []byte) (Session, error)
	// Del removes a session. Deleting an absent key is not an error.
	Del(key []byte) error
}
