// SPDX-FileCopyrightText: 2023 The Pion community <https://pion.ly>
// SPDX-License-Identifier: MIT

package recordlayer

import (
	"errors"

	"github.com/censys-oss/tlsconn/v2/pkg/protocol"
)

// Typed errors
var (
	// ErrInvalidContentType is returned when a record carries a content
	// type this package does not know about
	ErrInvalidContentType = &protocol.TemporaryError{Err: errors.New("invalid content type")} //nolint:goerr113
	// ErrRecordOverflow is returned when a record's declared fragment
	// exceeds the plaintext limit
	ErrRecordOverflow = &protocol.FatalError{Err: errors.New("record fragment exceeds plaintext limit")} //nolint:goerr113

	errBufferTooSmall = &protocol.TemporaryError{Err: errors.New("buffer is too small")}                   //nolint:goerr113
	errLengthMismatch = &protocol.InternalError{Err: errors.New("data length and declared length do not match")} //nolint:goerr113
)
