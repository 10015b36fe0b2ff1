// SPDX-FileCopyrightText: 2023 The Pion community <https://pion.ly>
// SPDX-License-Identifier: MIT

package extension

import (
	"errors"

	"github.com/censys-oss/tlsconn/v2/pkg/protocol"
)

// Typed errors
var (
	errBufferTooSmall   = &protocol.TemporaryError{Err: errors.New("buffer is too small")}       //nolint:goerr113
	errInvalidEarlyData = &protocol.FatalError{Err: errors.New("invalid early data extension")} //nolint:goerr113
)
