// SPDX-FileCopyrightText: 2023 The Pion community <https://pion.ly>
// SPDX-License-Identifier: MIT

package handshake

import (
	"errors"

	"github.com/censys-oss/tlsconn/v2/pkg/protocol"
)

// Typed errors
var (
	errBufferTooSmall   = &protocol.TemporaryError{Err: errors.New("buffer is too small")}                         //nolint:goerr113
	errLengthMismatch   = &protocol.InternalError{Err: errors.New("data length and declared length do not match")} //nolint:goerr113
	errTicketEmpty      = &protocol.InternalError{Err: errors.New("session ticket must not be empty")}             //nolint:goerr113
	errInvalidKeyUpdate = &protocol.FatalError{Err: errors.New("invalid key update request value")}                //nolint:goerr113
)
