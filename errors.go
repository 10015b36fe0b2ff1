// SPDX-FileCopyrightText: 2023 The Pion community <https://pion.ly>
// SPDX-License-Identifier: MIT

package tlsconn

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"

	"github.com/censys-oss/tlsconn/v2/pkg/protocol"
	"github.com/censys-oss/tlsconn/v2/pkg/protocol/alert"
)

// Typed errors
var (
	// ErrConnClosed is returned when the connection may no longer be used
	ErrConnClosed = &protocol.FatalError{Err: errors.New("conn is closed")} //nolint:goerr113

	errNoConfigProvided         = &protocol.FatalError{Err: errors.New("no config provided")}                           //nolint:goerr113
	errNilRecordLayer           = &protocol.FatalError{Err: errors.New("record layer is nil")}                          //nolint:goerr113
	errUnsupportedVersion       = &protocol.FatalError{Err: errors.New("unsupported protocol version")}                 //nolint:goerr113
	errKeyUpdateNotEstablished  = &protocol.FatalError{Err: errors.New("key update before session is established")}     //nolint:goerr113
	errRenegotiationUnsupported = &protocol.FatalError{Err: errors.New("renegotiation is not supported")}               //nolint:goerr113
	errMissingResumptionSecret  = &protocol.InternalError{Err: errors.New("no resumption secret for session ticket")}   //nolint:goerr113
)

// ProtocolError is a TLS protocol violation detected locally or reported
// by the record layer, together with the alert that describes it on the
// wire.
type ProtocolError struct {
	Reason      string
	IsFatal     bool
	Description alert.Description
}

// Error implements error
func (e *ProtocolError) Error() string { return e.Reason }

// TerminatedError is the single fault raised out of the driver. Clean is
// true when the peer ended the session (fatal alert), false when the
// local side tore it down.
type TerminatedError struct {
	Clean  bool
	Reason string
	Err    error
}

// Error implements error
func (e *TerminatedError) Error() string { return fmt.Sprintf("session terminated: %s", e.Reason) }

// Unwrap implements Unwrap interface
func (e *TerminatedError) Unwrap() error { return e.Err }

// alertError wraps an alert received from the peer so it can travel as
// an error value
type alertError struct {
	*alert.Alert
}

func (e *alertError) Error() string { return fmt.Sprintf("alert: %v", e.Alert) }

// netError translates an error from the underlying transport
func netError(err error) error {
	switch {
	case errors.Is(err, io.EOF), errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		// Return io.EOF and context errors as is.
		return err
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return &protocol.TimeoutError{Err: err}
	}
	return &protocol.FatalError{Err: err}
}
