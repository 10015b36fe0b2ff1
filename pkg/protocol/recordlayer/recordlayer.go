// SPDX-FileCopyrightText: 2023 The Pion community <https://pion.ly>
// SPDX-License-Identifier: MIT

// Package recordlayer carries the plaintext records exchanged between
// the session driver and the framing/crypto layer beneath it.
package recordlayer

import (
	"encoding/binary"

	"github.com/censys-oss/tlsconn/v2/pkg/crypto/kdf"
	"github.com/censys-oss/tlsconn/v2/pkg/protocol"
	"github.com/censys-oss/tlsconn/v2/pkg/protocol/alert"
	"github.com/censys-oss/tlsconn/v2/pkg/protocol/handshake"
	"github.com/zmap/zcrypto/tls"
)

const (
	// HeaderSize is the length of a TLS record header
	HeaderSize = 5

	// MaxFragmentLength is the largest plaintext fragment a single
	// record may carry
	// https://tools.ietf.org/html/rfc8446#section-5.1
	MaxFragmentLength = 16384
)

// KeyState is one direction's cryptographic state as exposed by the
// record layer: the negotiated hash and suite plus the current traffic
// secret. A KeyUpdate replaces only the secret; the record layer reseeds
// its AEAD key and IV from it.
type KeyState struct {
	Hash   kdf.Hash
	Suite  tls.CipherSuiteID
	Secret []byte
}

// Update returns the key state advanced by one traffic secret
// generation.
func (k KeyState) Update() KeyState {
	return KeyState{
		Hash:   k.Hash,
		Suite:  k.Suite,
		Secret: kdf.UpdateTrafficSecret(k.Hash, k.Secret),
	}
}

// Record is one plaintext TLS record
type Record struct {
	Version protocol.Version
	Content protocol.Content
}

// Marshal encodes the record, header included
func (r *Record) Marshal() ([]byte, error) {
	fragment, err := r.Content.Marshal()
	if err != nil {
		return nil, err
	}
	if len(fragment) > MaxFragmentLength {
		return nil, ErrRecordOverflow
	}

	out := make([]byte, HeaderSize, HeaderSize+len(fragment))
	out[0] = byte(r.Content.ContentType())
	out[1] = r.Version.Major
	out[2] = r.Version.Minor
	binary.BigEndian.PutUint16(out[3:], uint16(len(fragment)))
	return append(out, fragment...), nil
}

// Unmarshal populates the record from an encoded record, header included
func (r *Record) Unmarshal(data []byte) error {
	if len(data) < HeaderSize {
		return errBufferTooSmall
	}

	contentType := protocol.ContentType(data[0])
	r.Version.Major = data[1]
	r.Version.Minor = data[2]
	fragmentLen := int(binary.BigEndian.Uint16(data[3:]))
	if fragmentLen > MaxFragmentLength {
		return ErrRecordOverflow
	}
	if len(data)-HeaderSize != fragmentLen {
		return errLengthMismatch
	}

	switch contentType {
	case protocol.ContentTypeAlert:
		r.Content = &alert.Alert{}
	case protocol.ContentTypeChangeCipherSpec:
		r.Content = &protocol.ChangeCipherSpec{}
	case protocol.ContentTypeHandshake:
		r.Content = &handshake.Handshake{}
	case protocol.ContentTypeApplicationData:
		r.Content = &protocol.ApplicationData{}
	default:
		return ErrInvalidContentType
	}
	return r.Content.Unmarshal(data[HeaderSize:])
}
