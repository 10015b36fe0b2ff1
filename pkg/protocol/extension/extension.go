// SPDX-FileCopyrightText: 2023 The Pion community <https://pion.ly>
// SPDX-License-Identifier: MIT

// Package extension implements the extension values the session driver
// parses out of post-handshake messages
package extension

import (
	"encoding/binary"

	"golang.org/x/crypto/cryptobyte"
)

// TypeValue is the 2 byte value for a TLS Extension as registered in the IANA
//
// https://www.iana.org/assignments/tls-extensiontype-values/tls-extensiontype-values.xhtml
type TypeValue uint16

// TypeValue constants
const (
	ServerNameTypeValue TypeValue = 0
	ALPNTypeValue       TypeValue = 16
	EarlyDataTypeValue  TypeValue = 42
)

// Extension represents a single TLS extension
type Extension interface {
	Marshal() ([]byte, error)
	Unmarshal(data []byte) error
	TypeValue() TypeValue
}

// Marshal encodes a list of extensions, 2 byte total length prefixed
func Marshal(extensions []Extension) ([]byte, error) {
	extensionsRaw := []byte{}

	for _, e := range extensions {
		raw, err := e.Marshal()
		if err != nil {
			return nil, err
		}
		extensionsRaw = append(extensionsRaw, raw...)
	}

	out := []byte{0x00, 0x00}
	binary.BigEndian.PutUint16(out, uint16(len(extensionsRaw)))
	return append(out, extensionsRaw...), nil
}

// Unmarshal decodes a 2 byte length prefixed extension list. Extensions
// this package does not know about are skipped, as are extensions whose
// bodies fail to decode; the record they arrived in stays valid.
func Unmarshal(data []byte) ([]Extension, error) {
	s := cryptobyte.String(data)

	var list cryptobyte.String
	if !s.ReadUint16LengthPrefixed(&list) {
		return nil, errBufferTooSmall
	}

	extensions := []Extension{}
	for !list.Empty() {
		var typeValue uint16
		var body cryptobyte.String
		if !list.ReadUint16(&typeValue) || !list.ReadUint16LengthPrefixed(&body) {
			return nil, errBufferTooSmall
		}

		var ext Extension
		switch TypeValue(typeValue) {
		case EarlyDataTypeValue:
			ext = &EarlyData{}
		default:
			continue
		}

		if err := ext.Unmarshal([]byte(body)); err != nil {
			continue
		}
		extensions = append(extensions, ext)
	}
	return extensions, nil
}
