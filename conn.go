// SPDX-FileCopyrightText: 2023 The Pion community <https://pion.ly>
// SPDX-License-Identifier: MIT

// Package tlsconn implements the post-handshake session driver of a TLS
// endpoint: record demultiplexing, post-handshake message dispatch, key
// updates and clean termination, above a pluggable record layer.
package tlsconn

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/censys-oss/tlsconn/v2/internal/closer"
	"github.com/censys-oss/tlsconn/v2/internal/util"
	"github.com/censys-oss/tlsconn/v2/pkg/protocol"
	"github.com/censys-oss/tlsconn/v2/pkg/protocol/alert"
	"github.com/censys-oss/tlsconn/v2/pkg/protocol/handshake"
	"github.com/censys-oss/tlsconn/v2/pkg/protocol/recordlayer"
	"github.com/pion/logging"
	"github.com/pion/transport/v3/deadline"
)

// RecordLayer is the framing/crypto layer beneath the driver. ReadRecord
// returns exactly one decrypted record; WriteRecord encrypts and sends
// one. The key states expose each direction's (hash, suite, traffic
// secret) triple; replacing a state reseeds that direction's record
// protection.
type RecordLayer interface {
	ReadRecord(ctx context.Context) (*recordlayer.Record, error)
	WriteRecord(ctx context.Context, r *recordlayer.Record) error

	LocalKeyState() recordlayer.KeyState
	SetLocalKeyState(recordlayer.KeyState)
	RemoteKeyState() recordlayer.KeyState
	SetRemoteKeyState(recordlayer.KeyState)
}

// KeyUpdateMode selects the request flag of an application-initiated
// TLS 1.3 key update.
type KeyUpdateMode int

// KeyUpdateMode enums
const (
	// KeyUpdateOneWay rotates only the local sending keys
	KeyUpdateOneWay KeyUpdateMode = iota
	// KeyUpdateTwoWay additionally asks the peer to rotate its sending
	// keys
	KeyUpdateTwoWay
)

// Conn drives an established TLS session: it demultiplexes incoming
// records, services TLS 1.3 post-handshake messages, performs key
// updates and converges every failure onto a single termination path.
type Conn struct {
	rl           RecordLayer
	sessionStore SessionStore
	renegotiator Renegotiator

	version   protocol.Version
	isClient  bool
	sessionID []byte
	alpn      string
	sni       string

	// readMu serializes record reads and is re-acquired for every
	// record so a concurrent UpdateKey can interleave between records.
	// writeMu serializes record writes; the KeyUpdate response sequence
	// and pending post-handshake actions hold it across multiple
	// operations.
	readMu  sync.Mutex
	writeMu sync.Mutex

	established atomic.Value // Establishment
	eof         atomic.Value // struct{ bool }

	hs      *HandshakeState
	pending pendingQueue

	closeLock              sync.Mutex
	connectionClosedByUser bool
	closed                 *closer.Closer

	readDeadline  *deadline.Deadline
	writeDeadline *deadline.Deadline

	bufMu   sync.Mutex
	readBuf []byte

	log logging.LeveledLogger
}

// NewConn attaches a session driver to an established TLS context
func NewConn(rl RecordLayer, config *Config, isClient bool) (*Conn, error) {
	if err := validateConfig(config); err != nil {
		return nil, err
	}
	if rl == nil {
		return nil, errNilRecordLayer
	}

	loggerFactory := config.LoggerFactory
	if loggerFactory == nil {
		loggerFactory = logging.NewDefaultLoggerFactory()
	}

	version := config.Version
	if version == (protocol.Version{}) {
		version = protocol.Version1_2
	}

	c := &Conn{
		rl:           rl,
		sessionStore: config.SessionStore,
		renegotiator: config.Renegotiator,
		version:      version,
		isClient:     isClient,
		sessionID:    append([]byte{}, config.SessionID...),
		alpn:         config.NegotiatedProtocol,
		sni:          config.ServerName,
		hs:           config.HandshakeState,
		closed:       closer.NewCloser(),

		readDeadline:  deadline.New(),
		writeDeadline: deadline.New(),

		log: loggerFactory.NewLogger("tlsconn"),
	}

	establishment := Establishment{Kind: Established}
	if config.Establishment != nil {
		establishment = *config.Establishment
	}
	c.established.Store(establishment)
	c.eof.Store(struct{ bool }{false})

	return c, nil
}

// RecvData returns the next non-empty chunk of application data. A clean
// peer close surfaces as io.EOF; fatal protocol failures and fatal peer
// alerts surface as *TerminatedError.
func (c *Conn) RecvData(ctx context.Context) ([]byte, error) {
	if c.isConnectionClosed() {
		return nil, ErrConnClosed
	}
	if c.isEOF() {
		return nil, io.EOF
	}

	if c.version.Equal(protocol.Version1_3) {
		return c.recvData13(ctx)
	}
	return c.recvData12(ctx)
}

// RecvDataLazy returns the next application data as a chunk sequence.
//
// Deprecated: kept for callers of the historical chunked read API; use
// RecvData.
func (c *Conn) RecvDataLazy(ctx context.Context) ([][]byte, error) {
	data, err := c.RecvData(ctx)
	if err != nil {
		return nil, err
	}
	return [][]byte{data}, nil
}

func (c *Conn) recvData12(ctx context.Context) ([]byte, error) {
	for {
		r, err := c.readRecord(ctx)
		if err != nil {
			return c.handleRecvError(ctx, err)
		}

		switch content := r.Content.(type) {
		case *handshake.Handshake:
			if len(content.Messages) == 0 {
				return nil, c.terminateUnexpected(ctx, "empty handshake record")
			}
			msg := content.Messages[0]
			switch msg.Header.Type {
			case handshake.TypeClientHello, handshake.TypeHelloRequest:
				if err := c.handshakeWith(ctx, msg); err != nil {
					return nil, err
				}
			default:
				return nil, c.terminateUnexpected(ctx,
					fmt.Sprintf("unexpected handshake message %s", msg.Header.Type))
			}
		case *alert.Alert:
			return nil, c.handleAlert(ctx, content)
		case *protocol.ApplicationData:
			if len(content.Data) == 0 {
				// Zero length application records must not surface
				continue
			}
			return content.Data, nil
		default:
			return nil, c.terminateUnexpected(ctx,
				fmt.Sprintf("unexpected message of content type %d", content.ContentType()))
		}
	}
}

// readRecord pulls one record; the read lock is held only for the
// duration of the read.
func (c *Conn) readRecord(ctx context.Context) (*recordlayer.Record, error) {
	c.readMu.Lock()
	defer c.readMu.Unlock()

	if c.isConnectionClosed() {
		return nil, ErrConnClosed
	}
	if c.isEOF() {
		return nil, io.EOF
	}
	return c.rl.ReadRecord(ctx)
}

func (c *Conn) handleAlert(ctx context.Context, a *alert.Alert) error {
	c.log.Tracef("%s: <- %s", srvCliStr(c.isClient), a.String())

	switch {
	case a.Level == alert.Warning && a.Description == alert.CloseNotify:
		// Respond with a close_notify [RFC5246 Section 7.2.1]
		_ = c.Bye(ctx)
		c.setEOF()
		return io.EOF
	case a.Level == alert.Fatal:
		c.invalidateSession()
		c.setEOF()
		return &TerminatedError{
			Clean:  true,
			Reason: "received fatal error: " + a.Description.String(),
			Err: &alertError{&alert.Alert{
				Level:       a.Level,
				Description: a.Description,
			}},
		}
	default:
		return c.terminateUnexpected(ctx, fmt.Sprintf("unexpected alert %s", a))
	}
}

// handleRecvError converts a record layer failure into the driver's exit
// contract: io.EOF is a clean close, protocol errors alert at their own
// level, everything else is a fatal internal error.
func (c *Conn) handleRecvError(ctx context.Context, err error) ([]byte, error) {
	if errors.Is(err, io.EOF) || errors.Is(err, net.ErrClosed) || errors.Is(err, ErrConnClosed) {
		c.setEOF()
		return nil, io.EOF
	}

	var pErr *ProtocolError
	if errors.As(err, &pErr) {
		level := alert.Warning
		if pErr.IsFatal {
			level = alert.Fatal
		}
		return nil, c.terminate(ctx, pErr, level, pErr.Description, pErr.Reason)
	}
	return nil, c.terminate(ctx, err, alert.Fatal, alert.InternalError, err.Error())
}

// SendData chunks the payload into records and sends them. The payload
// may exceed the plaintext fragment limit; each chunk becomes its own
// record.
func (c *Conn) SendData(ctx context.Context, p []byte) error {
	if c.isConnectionClosed() || c.isEOF() {
		return ErrConnClosed
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	for _, chunk := range util.SplitBytes(p, recordlayer.MaxFragmentLength) {
		if err := c.writeRecordLocked(ctx, &protocol.ApplicationData{Data: chunk}); err != nil {
			return netError(err)
		}
	}
	return nil
}

// Bye announces the end of the sending side with a close_notify. It does
// not close the transport; for TLS <= 1.2 it must run before the
// transport closes to keep the session resumable.
func (c *Conn) Bye(ctx context.Context) error {
	if c.isEOF() {
		return nil
	}
	return c.notify(ctx, alert.Warning, alert.CloseNotify)
}

// UpdateKey initiates a TLS 1.3 key update. On TLS <= 1.2 connections it
// reports false and performs no I/O. The response from a two way update
// is consumed by the receive loop.
func (c *Conn) UpdateKey(ctx context.Context, mode KeyUpdateMode) (bool, error) {
	if c.isConnectionClosed() || c.isEOF() {
		return false, ErrConnClosed
	}
	if !c.version.Equal(protocol.Version1_3) {
		return false, nil
	}
	if c.establishment().Kind != Established {
		return false, errKeyUpdateNotEstablished
	}

	request := handshake.KeyUpdateNotRequested
	if mode == KeyUpdateTwoWay {
		request = handshake.KeyUpdateRequested
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	// The KeyUpdate itself is the last record under the old sending key.
	if err := c.writeKeyUpdateLocked(ctx, request); err != nil {
		return false, netError(err)
	}
	c.rl.SetLocalKeyState(c.rl.LocalKeyState().Update())
	c.log.Tracef("%s: local traffic secret advanced", srvCliStr(c.isClient))
	return true, nil
}

func (c *Conn) writeKeyUpdateLocked(ctx context.Context, request handshake.KeyUpdateRequest) error {
	msg, err := handshake.FromBody(&handshake.MessageKeyUpdate{RequestUpdate: request})
	if err != nil {
		return err
	}
	c.log.Tracef("%s: -> KeyUpdate (request: %d)", srvCliStr(c.isClient), request)
	return c.writeRecordLocked(ctx, &handshake.Handshake{Messages: []handshake.Message{msg}})
}

// notify sends an alert best-effort. Fatal outbound alerts make the
// session unresumable first.
// https://datatracker.ietf.org/doc/html/rfc5246#section-7.2
func (c *Conn) notify(ctx context.Context, level alert.Level, desc alert.Description) error {
	if level == alert.Fatal {
		c.invalidateSession()
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	c.log.Tracef("%s: -> Alert %s: %s", srvCliStr(c.isClient), level, desc)
	return c.writeRecordLocked(ctx, &alert.Alert{Level: level, Description: desc})
}

func (c *Conn) writeRecordLocked(ctx context.Context, content protocol.Content) error {
	return c.rl.WriteRecord(ctx, &recordlayer.Record{
		// The record version is frozen at 1.2 on the wire; TLS 1.3
		// records carry it as a legacy field.
		Version: protocol.Version1_2,
		Content: content,
	})
}

// terminate is the single abnormal exit: invalidate the session, write a
// best-effort alert, mark EOF and raise the termination fault.
func (c *Conn) terminate(ctx context.Context, err error, level alert.Level, desc alert.Description, reason string) error {
	c.invalidateSession()

	c.writeMu.Lock()
	if writeErr := c.writeRecordLocked(ctx, &alert.Alert{Level: level, Description: desc}); writeErr != nil {
		c.log.Debugf("%s: failed to send %s alert: %v", srvCliStr(c.isClient), desc, writeErr)
	}
	c.writeMu.Unlock()

	c.setEOF()
	return &TerminatedError{Reason: reason, Err: err}
}

func (c *Conn) terminateUnexpected(ctx context.Context, reason string) error {
	return c.terminate(ctx,
		&ProtocolError{Reason: reason, IsFatal: true, Description: alert.UnexpectedMessage},
		alert.Fatal, alert.UnexpectedMessage, reason)
}

func (c *Conn) invalidateSession() {
	if len(c.sessionID) == 0 || c.sessionStore == nil {
		return
	}
	c.log.Tracef("clean invalid session: %x", c.sessionID)
	if err := c.sessionStore.Del(c.sessionID); err != nil {
		c.log.Debugf("failed to invalidate session: %v", err)
	}
}

// handshakeWith enters a TLS <= 1.2 renegotiation triggered by the given
// message. Application writes are excluded for the duration.
func (c *Conn) handshakeWith(ctx context.Context, trigger handshake.Message) error {
	c.log.Tracef("%s: <- %s, renegotiating", srvCliStr(c.isClient), trigger.Header.Type)
	if c.renegotiator == nil {
		return c.terminateUnexpected(ctx, "renegotiation is not supported")
	}

	c.writeMu.Lock()
	err := c.renegotiator.Renegotiate(ctx, c, trigger)
	c.writeMu.Unlock()

	if err != nil {
		return c.terminate(ctx, err, alert.Fatal, alert.HandshakeFailure, "renegotiation failed")
	}
	return nil
}

// Handshake re-runs the handshake on an existing session (TLS <= 1.2
// renegotiation initiated locally).
func (c *Conn) Handshake(ctx context.Context) error {
	if c.isConnectionClosed() || c.isEOF() {
		return ErrConnClosed
	}
	if c.version.Equal(protocol.Version1_3) || c.renegotiator == nil {
		return &protocol.HandshakeError{Err: errRenegotiationUnsupported}
	}
	return c.handshakeWith(ctx, handshake.Message{Header: handshake.Header{Type: handshake.TypeHelloRequest}})
}

// Close sends a close_notify if the session is still live and closes the
// record layer if it owns a transport.
func (c *Conn) Close() error {
	if !c.isEOF() {
		// Discard the error to return non-error on the first user call
		// even if the transport is already gone.
		_ = c.Bye(context.Background())
	}

	c.closeLock.Lock()
	closedByUser := c.connectionClosedByUser
	c.connectionClosedByUser = true
	c.closed.Close()
	c.closeLock.Unlock()

	if closedByUser {
		return ErrConnClosed
	}

	if rc, ok := c.rl.(io.Closer); ok {
		return rc.Close()
	}
	return nil
}

// NegotiatedProtocol returns the ALPN result, if ALPN was used
func (c *Conn) NegotiatedProtocol() (string, bool) {
	return c.alpn, c.alpn != ""
}

// ClientSNI returns the hostname the client advertised via SNI, if any
func (c *Conn) ClientSNI() (string, bool) {
	return c.sni, c.sni != ""
}

// ConnectionState returns a snapshot of the session identity
func (c *Conn) ConnectionState() State {
	return State{
		Version:            c.version,
		IsClient:           c.isClient,
		SessionID:          append([]byte{}, c.sessionID...),
		NegotiatedProtocol: c.alpn,
		ServerName:         c.sni,
		Establishment:      c.establishment(),
	}
}

// HandshakeState exposes the handshake bookkeeping to the handshake
// component and to pending post-handshake actions.
func (c *Conn) HandshakeState() *HandshakeState {
	return c.hs
}

// SetEstablishment is called by the handshake component to drive the
// session lifecycle; the driver itself only reads it and decrements the
// early data budget.
func (c *Conn) SetEstablishment(e Establishment) {
	c.established.Store(e)
}

// PushPendingAction installs a handler for a deferred post-handshake
// message. Handlers run in installation order.
func (c *Conn) PushPendingAction(a PostHandshakeAction) {
	c.pending.push(a)
}

func (c *Conn) establishment() Establishment {
	e, _ := c.established.Load().(Establishment)
	return e
}

func (c *Conn) setEOF() {
	c.eof.Store(struct{ bool }{true})
}

func (c *Conn) isEOF() bool {
	boolean, _ := c.eof.Load().(struct{ bool })
	return boolean.bool
}

func (c *Conn) isConnectionClosed() bool {
	select {
	case <-c.closed.Done():
		return true
	default:
		return false
	}
}

// Read reads application data from the connection, implementing the
// net.Conn surface on top of RecvData.
func (c *Conn) Read(p []byte) (int, error) {
	c.bufMu.Lock()
	defer c.bufMu.Unlock()

	if len(c.readBuf) == 0 {
		data, err := c.RecvData(c.readDeadline)
		if err != nil {
			return 0, err
		}
		c.readBuf = data
	}

	n := copy(p, c.readBuf)
	c.readBuf = c.readBuf[n:]
	return n, nil
}

// Write writes application data to the connection
func (c *Conn) Write(p []byte) (int, error) {
	if err := c.SendData(c.writeDeadline, p); err != nil {
		return 0, err
	}
	return len(p), nil
}

// LocalAddr implements net.Conn.LocalAddr when the record layer exposes
// a transport address
func (c *Conn) LocalAddr() net.Addr {
	if addr, ok := c.rl.(interface{ LocalAddr() net.Addr }); ok {
		return addr.LocalAddr()
	}
	return nil
}

// RemoteAddr implements net.Conn.RemoteAddr when the record layer
// exposes a transport address
func (c *Conn) RemoteAddr() net.Addr {
	if addr, ok := c.rl.(interface{ RemoteAddr() net.Addr }); ok {
		return addr.RemoteAddr()
	}
	return nil
}

// SetDeadline implements net.Conn.SetDeadline
func (c *Conn) SetDeadline(t time.Time) error {
	c.readDeadline.Set(t)
	return c.SetWriteDeadline(t)
}

// SetReadDeadline implements net.Conn.SetReadDeadline
func (c *Conn) SetReadDeadline(t time.Time) error {
	c.readDeadline.Set(t)
	return nil
}

// SetWriteDeadline implements net.Conn.SetWriteDeadline
func (c *Conn) SetWriteDeadline(t time.Time) error {
	c.writeDeadline.Set(t)
	return nil
}
