// SPDX-FileCopyrightText: 2023 The Pion community <https://pion.ly>
// SPDX-License-Identifier: MIT

package recordlayer

import (
	"context"
	"encoding/binary"
	"io"
	"net"
	"sync"

	"github.com/pion/transport/v3/netctx"
)

// Stream frames records over a stream transport without applying record
// protection. It backs the driver's end-to-end tests and integrations
// that layer their own crypto beneath the driver; the key states are
// held for the driver to read and advance.
type Stream struct {
	conn netctx.Conn

	readMu  sync.Mutex
	writeMu sync.Mutex

	stateMu sync.Mutex
	local   KeyState
	remote  KeyState
}

// NewStream wraps conn for record framing
func NewStream(conn net.Conn, local, remote KeyState) *Stream {
	return &Stream{
		conn:   netctx.NewConn(conn),
		local:  local,
		remote: remote,
	}
}

// ReadRecord reads and decodes exactly one record
func (s *Stream) ReadRecord(ctx context.Context) (*Record, error) {
	s.readMu.Lock()
	defer s.readMu.Unlock()

	header := make([]byte, HeaderSize)
	if n, err := s.readFull(ctx, header); err != nil {
		if err == io.EOF && n > 0 { //nolint:errorlint
			err = io.ErrUnexpectedEOF
		}
		return nil, err
	}

	fragmentLen := int(binary.BigEndian.Uint16(header[3:]))
	if fragmentLen > MaxFragmentLength {
		return nil, ErrRecordOverflow
	}

	buf := make([]byte, HeaderSize+fragmentLen)
	copy(buf, header)
	if _, err := s.readFull(ctx, buf[HeaderSize:]); err != nil {
		if err == io.EOF { //nolint:errorlint
			err = io.ErrUnexpectedEOF
		}
		return nil, err
	}

	r := &Record{}
	if err := r.Unmarshal(buf); err != nil {
		return nil, err
	}
	return r, nil
}

// WriteRecord encodes and writes one record
func (s *Stream) WriteRecord(ctx context.Context, r *Record) error {
	raw, err := r.Marshal()
	if err != nil {
		return err
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	for len(raw) > 0 {
		n, err := s.conn.WriteContext(ctx, raw)
		if err != nil {
			return err
		}
		raw = raw[n:]
	}
	return nil
}

// LocalKeyState returns the sending direction's key state
func (s *Stream) LocalKeyState() KeyState {
	s.stateMu.Lock()
	defer s.stateMu.Unlock()
	return s.local
}

// SetLocalKeyState replaces the sending direction's key state
func (s *Stream) SetLocalKeyState(k KeyState) {
	s.stateMu.Lock()
	defer s.stateMu.Unlock()
	s.local = k
}

// RemoteKeyState returns the receiving direction's key state
func (s *Stream) RemoteKeyState() KeyState {
	s.stateMu.Lock()
	defer s.stateMu.Unlock()
	return s.remote
}

// SetRemoteKeyState replaces the receiving direction's key state
func (s *Stream) SetRemoteKeyState(k KeyState) {
	s.stateMu.Lock()
	defer s.stateMu.Unlock()
	s.remote = k
}

// Close closes the underlying transport
func (s *Stream) Close() error {
	return s.conn.Close()
}

// LocalAddr exposes the underlying transport's local address
func (s *Stream) LocalAddr() net.Addr {
	return s.conn.LocalAddr()
}

// RemoteAddr exposes the underlying transport's remote address
func (s *Stream) RemoteAddr() net.Addr {
	return s.conn.RemoteAddr()
}

func (s *Stream) readFull(ctx context.Context, buf []byte) (int, error) {
	read := 0
	for read < len(buf) {
		n, err := s.conn.ReadContext(ctx, buf[read:])
		read += n
		if err != nil {
			if err == io.EOF && read == len(buf) { //nolint:errorlint
				return read, nil
			}
			return read, err
		}
	}
	return read, nil
}
