// SPDX-FileCopyrightText: 2023 The Pion community <https://pion.ly>
// SPDX-License-Identifier: MIT

// Package kdf implements the TLS 1.3 key schedule primitives the session
// driver needs after the handshake: labeled HKDF expansion, traffic
// secret rotation and resumption PSK derivation
// https://tools.ietf.org/html/rfc8446#section-7.1
package kdf

import (
	"crypto/sha1" //nolint:gosec
	"crypto/sha256"
	"crypto/sha512"
	"fmt"
	"hash"

	"golang.org/x/crypto/cryptobyte"
	"golang.org/x/crypto/hkdf"
)

// Hash identifies the digest backing a key schedule. The zero value is
// not a valid hash.
type Hash int

// Hash enums
const (
	SHA1 Hash = iota + 1
	SHA256
	SHA384
	SHA512
)

// New returns a fresh digest context
func (h Hash) New() hash.Hash {
	switch h {
	case SHA1:
		return sha1.New() //nolint:gosec
	case SHA256:
		return sha256.New()
	case SHA384:
		return sha512.New384()
	case SHA512:
		return sha512.New()
	default:
		panic(fmt.Sprintf("kdf: unsupported hash %d", h)) //nolint:forbidigo
	}
}

// Size returns the digest size in bytes
func (h Hash) Size() int {
	switch h {
	case SHA1:
		return sha1.Size
	case SHA256:
		return sha256.Size
	case SHA384:
		return sha512.Size384
	case SHA512:
		return sha512.Size
	default:
		panic(fmt.Sprintf("kdf: unsupported hash %d", h)) //nolint:forbidigo
	}
}

// String returns the IANA name of the hash
func (h Hash) String() string {
	switch h {
	case SHA1:
		return "SHA-1"
	case SHA256:
		return "SHA-256"
	case SHA384:
		return "SHA-384"
	case SHA512:
		return "SHA-512"
	default:
		return "Unknown Hash"
	}
}

// Extract runs HKDF-Extract under this hash
func Extract(h Hash, secret, salt []byte) []byte {
	return hkdf.Extract(h.New, secret, salt)
}

// ExpandLabel implements HKDF-Expand-Label: the label is prefixed with
// "tls13 " and combined with the context value into an HkdfLabel
// structure before expansion.
//
// https://tools.ietf.org/html/rfc8446#section-7.1
func ExpandLabel(h Hash, secret []byte, label string, context []byte, length int) []byte {
	var b cryptobyte.Builder
	b.AddUint16(uint16(length))
	b.AddUint8LengthPrefixed(func(b *cryptobyte.Builder) {
		b.AddBytes([]byte("tls13 "))
		b.AddBytes([]byte(label))
	})
	b.AddUint8LengthPrefixed(func(b *cryptobyte.Builder) {
		b.AddBytes(context)
	})
	hkdfLabel, err := b.Bytes()
	if err != nil {
		panic(fmt.Sprintf("kdf: failed to construct HKDF label: %v", err)) //nolint:forbidigo
	}

	out := make([]byte, length)
	if _, err := hkdf.Expand(h.New, secret, hkdfLabel).Read(out); err != nil {
		panic(fmt.Sprintf("kdf: HKDF expansion failed: %v", err)) //nolint:forbidigo
	}
	return out
}

// DeriveSecret is Derive-Secret: ExpandLabel over a transcript hash with
// the output sized to the digest
func DeriveSecret(h Hash, secret []byte, label string, transcriptHash []byte) []byte {
	return ExpandLabel(h, secret, label, transcriptHash, h.Size())
}

// UpdateTrafficSecret advances a direction's traffic secret by one
// generation, as performed for a KeyUpdate
//
// https://tools.ietf.org/html/rfc8446#section-7.2
func UpdateTrafficSecret(h Hash, secret []byte) []byte {
	return ExpandLabel(h, secret, "traffic upd", nil, h.Size())
}

// ResumptionPSK derives the PSK bound to a NewSessionTicket from the
// resumption master secret and the ticket nonce
//
// https://tools.ietf.org/html/rfc8446#section-4.6.1
func ResumptionPSK(h Hash, resumptionSecret, nonce []byte) []byte {
	return ExpandLabel(h, resumptionSecret, "resumption", nonce, h.Size())
}
