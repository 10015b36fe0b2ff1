// SPDX-FileCopyrightText: 2023 The Pion community <https://pion.ly>
// SPDX-License-Identifier: MIT

package tlsconn

import (
	"crypto"
	"crypto/x509"
	"hash"
	"sync"

	"github.com/censys-oss/tlsconn/v2/pkg/crypto/kdf"
	"github.com/censys-oss/tlsconn/v2/pkg/protocol"
)

// CertificateRequestInfo is the payload of a received CertificateRequest
// kept around for client certificate selection.
type CertificateRequestInfo struct {
	CertificateTypes    []byte
	SignatureAlgorithms []uint16
	AcceptableCAs       [][]byte
}

// HandshakeState is the per-handshake mutable record: transcript
// bookkeeping, secrets, certificate-request state. It is owned by the
// connection while a handshake is in flight and safe for concurrent
// access.
//
// The raw transcript list and the running digest must be advanced
// together (AddMessage then UpdateDigest, or the Append helper);
// letting them diverge is a bug in the caller.
type HandshakeState struct {
	mu sync.Mutex

	clientVersion protocol.Version
	clientRandom  []byte
	serverRandom  []byte

	masterSecret     []byte
	resumptionSecret []byte

	localKey crypto.Signer
	peerKey  crypto.PublicKey

	// transcript, newest message first
	messages [][]byte
	digest   hash.Hash

	certReq         *CertificateRequestInfo
	clientCertSent  bool
	certReqSent     bool
	clientCertChain []*x509.Certificate
}

// NewHandshakeState creates the handshake record with the transcript
// digest bound to the negotiated hash.
func NewHandshakeState(h kdf.Hash, clientVersion protocol.Version, clientRandom []byte) *HandshakeState {
	return &HandshakeState{
		clientVersion: clientVersion,
		clientRandom:  append([]byte{}, clientRandom...),
		digest:        h.New(),
	}
}

// ClientVersion returns the version the client offered
func (s *HandshakeState) ClientVersion() protocol.Version {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.clientVersion
}

// ClientRandom returns the client random
func (s *HandshakeState) ClientRandom() []byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]byte{}, s.clientRandom...)
}

// ServerRandom returns the server random, if one has been recorded
func (s *HandshakeState) ServerRandom() ([]byte, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.serverRandom == nil {
		return nil, false
	}
	return append([]byte{}, s.serverRandom...), true
}

// SetServerRandom records the server random
func (s *HandshakeState) SetServerRandom(r []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.serverRandom = append([]byte{}, r...)
}

// MasterSecret returns the master secret, if one has been recorded
func (s *HandshakeState) MasterSecret() ([]byte, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.masterSecret == nil {
		return nil, false
	}
	return append([]byte{}, s.masterSecret...), true
}

// SetMasterSecret records the master secret
func (s *HandshakeState) SetMasterSecret(secret []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.masterSecret = append([]byte{}, secret...)
}

// ResumptionSecret returns the TLS 1.3 resumption master secret, if one
// has been recorded
func (s *HandshakeState) ResumptionSecret() ([]byte, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.resumptionSecret == nil {
		return nil, false
	}
	return append([]byte{}, s.resumptionSecret...), true
}

// SetResumptionSecret records the TLS 1.3 resumption master secret
func (s *HandshakeState) SetResumptionSecret(secret []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.resumptionSecret = append([]byte{}, secret...)
}

// LocalKey returns the local long-term key
func (s *HandshakeState) LocalKey() crypto.Signer {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.localKey
}

// SetLocalKey records the local long-term key
func (s *HandshakeState) SetLocalKey(k crypto.Signer) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.localKey = k
}

// PeerKey returns the peer's long-term public key
func (s *HandshakeState) PeerKey() crypto.PublicKey {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.peerKey
}

// SetPeerKey records the peer's long-term public key
func (s *HandshakeState) SetPeerKey(k crypto.PublicKey) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.peerKey = k
}

// AddMessage prepends one raw handshake message to the transcript list
func (s *HandshakeState) AddMessage(raw []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.messages = append([][]byte{append([]byte{}, raw...)}, s.messages...)
}

// UpdateDigest folds raw bytes into the running transcript digest
func (s *HandshakeState) UpdateDigest(raw []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, _ = s.digest.Write(raw)
}

// Append records one raw handshake message in both the transcript list
// and the running digest
func (s *HandshakeState) Append(raw []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.messages = append([][]byte{append([]byte{}, raw...)}, s.messages...)
	_, _ = s.digest.Write(raw)
}

// Messages returns the transcript in chronological order
func (s *HandshakeState) Messages() [][]byte {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([][]byte, len(s.messages))
	for i := range s.messages {
		out[len(s.messages)-1-i] = append([]byte{}, s.messages[i]...)
	}
	return out
}

// TranscriptHash returns the digest over the transcript so far
func (s *HandshakeState) TranscriptHash() []byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.digest.Sum(nil)
}

// CertificateRequest returns the received CertificateRequest payload
func (s *HandshakeState) CertificateRequest() (*CertificateRequestInfo, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.certReq == nil {
		return nil, false
	}
	return s.certReq, true
}

// SetCertificateRequest records a received CertificateRequest payload
func (s *HandshakeState) SetCertificateRequest(req *CertificateRequestInfo) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.certReq = req
}

// ClientCertSent reports whether the client certificate has gone out
func (s *HandshakeState) ClientCertSent() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.clientCertSent
}

// SetClientCertSent records that the client certificate has gone out
func (s *HandshakeState) SetClientCertSent(sent bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.clientCertSent = sent
}

// CertReqSent reports whether a CertificateRequest has gone out
func (s *HandshakeState) CertReqSent() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.certReqSent
}

// SetCertReqSent records that a CertificateRequest has gone out
func (s *HandshakeState) SetCertReqSent(sent bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.certReqSent = sent
}

// ClientCertChain returns the selected client certificate chain
func (s *HandshakeState) ClientCertChain() []*x509.Certificate {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.clientCertChain
}

// SetClientCertChain records the selected client certificate chain
func (s *HandshakeState) SetClientCertChain(chain []*x509.Certificate) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.clientCertChain = chain
}
