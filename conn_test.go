// SPDX-FileCopyrightText: 2023 The Pion community <https://pion.ly>
// SPDX-License-Identifier: MIT

package tlsconn

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/censys-oss/tlsconn/v2/pkg/crypto/kdf"
	"github.com/censys-oss/tlsconn/v2/pkg/protocol"
	"github.com/censys-oss/tlsconn/v2/pkg/protocol/alert"
	"github.com/censys-oss/tlsconn/v2/pkg/protocol/extension"
	"github.com/censys-oss/tlsconn/v2/pkg/protocol/handshake"
	"github.com/censys-oss/tlsconn/v2/pkg/protocol/recordlayer"
)

type readStep struct {
	record *recordlayer.Record
	err    error
}

// scriptedRecordLayer replays a fixed sequence of inbound records and
// captures everything the driver writes, together with the order of
// writes and key state changes.
type scriptedRecordLayer struct {
	mu      sync.Mutex
	steps   []readStep
	readCh  chan readStep
	written []*recordlayer.Record
	events  []string
	local   recordlayer.KeyState
	remote  recordlayer.KeyState
}

func (s *scriptedRecordLayer) ReadRecord(ctx context.Context) (*recordlayer.Record, error) {
	if s.readCh != nil {
		select {
		case step := <-s.readCh:
			return step.record, step.err
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.steps) == 0 {
		return nil, io.EOF
	}
	step := s.steps[0]
	s.steps = s.steps[1:]
	return step.record, step.err
}

func (s *scriptedRecordLayer) WriteRecord(_ context.Context, r *recordlayer.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.written = append(s.written, r)
	s.events = append(s.events, "write:"+recordLabel(r))
	return nil
}

func (s *scriptedRecordLayer) LocalKeyState() recordlayer.KeyState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.local
}

func (s *scriptedRecordLayer) SetLocalKeyState(k recordlayer.KeyState) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.local = k
	s.events = append(s.events, "rekey-local")
}

func (s *scriptedRecordLayer) RemoteKeyState() recordlayer.KeyState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.remote
}

func (s *scriptedRecordLayer) SetRemoteKeyState(k recordlayer.KeyState) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.remote = k
	s.events = append(s.events, "rekey-remote")
}

func (s *scriptedRecordLayer) writtenRecords() []*recordlayer.Record {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*recordlayer.Record{}, s.written...)
}

func (s *scriptedRecordLayer) eventLog() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string{}, s.events...)
}

func recordLabel(r *recordlayer.Record) string {
	switch content := r.Content.(type) {
	case *alert.Alert:
		return fmt.Sprintf("alert(%s,%s)", content.Level, content.Description)
	case *handshake.Handshake:
		if len(content.Messages) == 1 && content.Messages[0].Header.Type == handshake.TypeKeyUpdate {
			return fmt.Sprintf("keyupdate(%d)", content.Messages[0].Payload[0])
		}
		return "handshake"
	case *protocol.ApplicationData:
		return fmt.Sprintf("appdata(%d)", len(content.Data))
	default:
		return "other"
	}
}

type memSessionStore struct {
	mu       sync.Mutex
	sessions map[string]Session
	deleted  [][]byte
}

func newMemSessionStore() *memSessionStore {
	return &memSessionStore{sessions: map[string]Session{}}
}

func (m *memSessionStore) Set(key []byte, s Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions[string(key)] = s
	return nil
}

func (m *memSessionStore) Get(key []byte) (Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sessions[string(key)], nil
}

func (m *memSessionStore) Del(key []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, string(key))
	m.deleted = append(m.deleted, append([]byte{}, key...))
	return nil
}

func appDataRecord(data string) readStep {
	return readStep{record: &recordlayer.Record{
		Version: protocol.Version1_2,
		Content: &protocol.ApplicationData{Data: []byte(data)},
	}}
}

func alertRecord(level alert.Level, desc alert.Description) readStep {
	return readStep{record: &recordlayer.Record{
		Version: protocol.Version1_2,
		Content: &alert.Alert{Level: level, Description: desc},
	}}
}

func ccsRecord() readStep {
	return readStep{record: &recordlayer.Record{
		Version: protocol.Version1_2,
		Content: &protocol.ChangeCipherSpec{},
	}}
}

func handshakeRecord(t *testing.T, bodies ...handshake.MessageBody) readStep {
	t.Helper()
	messages := make([]handshake.Message, 0, len(bodies))
	for _, body := range bodies {
		msg, err := handshake.FromBody(body)
		if err != nil {
			t.Fatal(err)
		}
		messages = append(messages, msg)
	}
	return readStep{record: &recordlayer.Record{
		Version: protocol.Version1_2,
		Content: &handshake.Handshake{Messages: messages},
	}}
}

func rawHandshakeRecord(msgType handshake.Type, payload []byte) readStep {
	return readStep{record: &recordlayer.Record{
		Version: protocol.Version1_2,
		Content: &handshake.Handshake{Messages: []handshake.Message{{
			Header:  handshake.Header{Type: msgType, Length: uint32(len(payload))},
			Payload: payload,
		}}},
	}}
}

func testKeyState(seed byte) recordlayer.KeyState {
	return recordlayer.KeyState{
		Hash:   kdf.SHA256,
		Suite:  0x1301,
		Secret: bytes.Repeat([]byte{seed}, 32),
	}
}

func buildConn(t *testing.T, version protocol.Version, steps []readStep, mutate func(*Config)) (*Conn, *scriptedRecordLayer) {
	t.Helper()

	rl := &scriptedRecordLayer{
		steps:  steps,
		local:  testKeyState(0xa0),
		remote: testKeyState(0xb0),
	}
	config := &Config{Version: version}
	if mutate != nil {
		mutate(config)
	}
	c, err := NewConn(rl, config, true)
	if err != nil {
		t.Fatal(err)
	}
	return c, rl
}

func testContext(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)
	return ctx
}

func TestRecvData12CleanClose(t *testing.T) {
	ctx := testContext(t)
	c, rl := buildConn(t, protocol.Version1_2, []readStep{
		appDataRecord("hi"),
		alertRecord(alert.Warning, alert.CloseNotify),
	}, nil)

	data, err := c.RecvData(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(data, []byte("hi")) {
		t.Fatalf("first read: got %q, want %q", data, "hi")
	}

	if _, err = c.RecvData(ctx); !errors.Is(err, io.EOF) {
		t.Fatalf("second read: got %v, want io.EOF", err)
	}

	written := rl.writtenRecords()
	if len(written) != 1 {
		t.Fatalf("write count: got %d, want 1", len(written))
	}
	if label := recordLabel(written[0]); label != "alert(Warning,CloseNotify)" {
		t.Fatalf("response: got %s, want close notify", label)
	}

	// EOF is sticky
	if _, err = c.RecvData(ctx); !errors.Is(err, io.EOF) {
		t.Fatalf("third read: got %v, want io.EOF", err)
	}
}

func TestRecvData12FatalAlert(t *testing.T) {
	ctx := testContext(t)
	store := newMemSessionStore()
	sessionID := []byte{0x01, 0x02, 0x03}
	if err := store.Set(sessionID, Session{Suite: 0xc02b}); err != nil {
		t.Fatal(err)
	}

	c, rl := buildConn(t, protocol.Version1_2, []readStep{
		alertRecord(alert.Fatal, alert.HandshakeFailure),
	}, func(config *Config) {
		config.SessionStore = store
		config.SessionID = sessionID
	})

	_, err := c.RecvData(ctx)
	var terminated *TerminatedError
	if !errors.As(err, &terminated) {
		t.Fatalf("got %v, want *TerminatedError", err)
	}
	if !terminated.Clean {
		t.Error("peer initiated termination must be clean")
	}
	if want := "received fatal error: HandshakeFailure"; terminated.Reason != want {
		t.Errorf("reason: got %q, want %q", terminated.Reason, want)
	}

	if len(store.deleted) != 1 || !bytes.Equal(store.deleted[0], sessionID) {
		t.Errorf("session invalidation: got %v, want [%x]", store.deleted, sessionID)
	}
	if writes := rl.writtenRecords(); len(writes) != 0 {
		t.Errorf("no alert response expected after peer fatal alert, got %d writes", len(writes))
	}

	// The context is unusable afterwards
	if sendErr := c.SendData(ctx, []byte("x")); !errors.Is(sendErr, ErrConnClosed) {
		t.Errorf("send after termination: got %v, want %v", sendErr, ErrConnClosed)
	}
}

func TestRecvData12SkipsEmptyAppData(t *testing.T) {
	ctx := testContext(t)
	c, _ := buildConn(t, protocol.Version1_2, []readStep{
		appDataRecord(""),
		appDataRecord(""),
		appDataRecord("x"),
	}, nil)

	data, err := c.RecvData(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(data, []byte("x")) {
		t.Fatalf("got %q, want %q", data, "x")
	}
}

func TestRecvData12UnexpectedHandshake(t *testing.T) {
	ctx := testContext(t)
	c, rl := buildConn(t, protocol.Version1_2, []readStep{
		rawHandshakeRecord(handshake.TypeFinished, []byte{0x00}),
	}, nil)

	_, err := c.RecvData(ctx)
	var terminated *TerminatedError
	if !errors.As(err, &terminated) {
		t.Fatalf("got %v, want *TerminatedError", err)
	}

	written := rl.writtenRecords()
	if len(written) != 1 {
		t.Fatalf("write count: got %d, want 1", len(written))
	}
	if label := recordLabel(written[0]); label != "alert(Fatal,UnexpectedMessage)" {
		t.Fatalf("alert: got %s, want fatal unexpected message", label)
	}
}

func TestRecvData12WarningAlertUnexpected(t *testing.T) {
	ctx := testContext(t)
	c, _ := buildConn(t, protocol.Version1_2, []readStep{
		alertRecord(alert.Warning, alert.HandshakeFailure),
	}, nil)

	var terminated *TerminatedError
	if _, err := c.RecvData(ctx); !errors.As(err, &terminated) {
		t.Fatalf("got %v, want *TerminatedError", err)
	}
}

type recordingRenegotiator struct {
	mu       sync.Mutex
	triggers []handshake.Type
}

func (r *recordingRenegotiator) Renegotiate(_ context.Context, _ *Conn, trigger handshake.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.triggers = append(r.triggers, trigger.Header.Type)
	return nil
}

func TestRecvData12Renegotiation(t *testing.T) {
	ctx := testContext(t)
	renegotiator := &recordingRenegotiator{}
	c, _ := buildConn(t, protocol.Version1_2, []readStep{
		handshakeRecord(t, &handshake.MessageHelloRequest{}),
		appDataRecord("after"),
	}, func(config *Config) {
		config.Renegotiator = renegotiator
	})

	data, err := c.RecvData(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(data, []byte("after")) {
		t.Fatalf("got %q, want %q", data, "after")
	}
	if len(renegotiator.triggers) != 1 || renegotiator.triggers[0] != handshake.TypeHelloRequest {
		t.Fatalf("renegotiation triggers: got %v, want [HelloRequest]", renegotiator.triggers)
	}
}

func TestRecvData12RenegotiationUnsupported(t *testing.T) {
	ctx := testContext(t)
	c, _ := buildConn(t, protocol.Version1_2, []readStep{
		handshakeRecord(t, &handshake.MessageHelloRequest{}),
	}, nil)

	var terminated *TerminatedError
	if _, err := c.RecvData(ctx); !errors.As(err, &terminated) {
		t.Fatalf("got %v, want *TerminatedError", err)
	}
}

func TestRecvData13SkipsEmptyAppData(t *testing.T) {
	ctx := testContext(t)
	c, _ := buildConn(t, protocol.Version1_3, []readStep{
		appDataRecord(""),
		appDataRecord("x"),
	}, nil)

	data, err := c.RecvData(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(data, []byte("x")) {
		t.Fatalf("got %q, want %q", data, "x")
	}
}

func TestRecvData13ChangeCipherSpecIgnored(t *testing.T) {
	ctx := testContext(t)
	c, _ := buildConn(t, protocol.Version1_3, []readStep{
		ccsRecord(),
		appDataRecord("x"),
	}, nil)

	data, err := c.RecvData(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(data, []byte("x")) {
		t.Fatalf("got %q, want %q", data, "x")
	}
}

func TestRecvData13EarlyDataBudget(t *testing.T) {
	ctx := testContext(t)
	c, _ := buildConn(t, protocol.Version1_3, []readStep{
		appDataRecord("abc"),
		appDataRecord("de"),
	}, func(config *Config) {
		config.Establishment = &Establishment{Kind: EarlyDataAllowed, RemainingEarlyData: 10}
	})

	total := 0
	for _, want := range []string{"abc", "de"} {
		data, err := c.RecvData(ctx)
		if err != nil {
			t.Fatal(err)
		}
		if !bytes.Equal(data, []byte(want)) {
			t.Fatalf("got %q, want %q", data, want)
		}
		total += len(data)

		establishment := c.ConnectionState().Establishment
		if establishment.Kind != EarlyDataAllowed {
			t.Fatalf("establishment: got %s, want EarlyDataAllowed", establishment.Kind)
		}
		if want := uint32(10 - total); establishment.RemainingEarlyData != want {
			t.Fatalf("remaining budget: got %d, want %d", establishment.RemainingEarlyData, want)
		}
	}
}

func TestRecvData13EarlyDataOverflow(t *testing.T) {
	ctx := testContext(t)
	c, rl := buildConn(t, protocol.Version1_3, []readStep{
		appDataRecord("abcde"),
	}, func(config *Config) {
		config.Establishment = &Establishment{Kind: EarlyDataAllowed, RemainingEarlyData: 4}
	})

	_, err := c.RecvData(ctx)
	var terminated *TerminatedError
	if !errors.As(err, &terminated) {
		t.Fatalf("got %v, want *TerminatedError", err)
	}
	if want := "early data overflow"; terminated.Reason != want {
		t.Errorf("reason: got %q, want %q", terminated.Reason, want)
	}

	written := rl.writtenRecords()
	if len(written) != 1 || recordLabel(written[0]) != "alert(Fatal,UnexpectedMessage)" {
		t.Fatalf("alert: got %v, want fatal unexpected message", rl.eventLog())
	}
}

func TestRecvData13EarlyDataRejected(t *testing.T) {
	ctx := testContext(t)
	c, _ := buildConn(t, protocol.Version1_3, []readStep{
		appDataRecord("dropped"),
		alertRecord(alert.Warning, alert.CloseNotify),
	}, func(config *Config) {
		config.Establishment = &Establishment{Kind: EarlyDataNotAllowed}
	})

	if _, err := c.RecvData(ctx); !errors.Is(err, io.EOF) {
		t.Fatalf("got %v, want io.EOF", err)
	}
}

func TestRecvData13AppDataNotEstablished(t *testing.T) {
	ctx := testContext(t)
	c, _ := buildConn(t, protocol.Version1_3, []readStep{
		appDataRecord("x"),
	}, func(config *Config) {
		config.Establishment = &Establishment{Kind: NotEstablished}
	})

	_, err := c.RecvData(ctx)
	var terminated *TerminatedError
	if !errors.As(err, &terminated) {
		t.Fatalf("got %v, want *TerminatedError", err)
	}
	if want := "data at not-established"; terminated.Reason != want {
		t.Errorf("reason: got %q, want %q", terminated.Reason, want)
	}
}

func TestRecvData13ClientHelloFatal(t *testing.T) {
	ctx := testContext(t)
	c, rl := buildConn(t, protocol.Version1_3, []readStep{
		rawHandshakeRecord(handshake.TypeClientHello, []byte{0x03, 0x03}),
	}, nil)

	var terminated *TerminatedError
	if _, err := c.RecvData(ctx); !errors.As(err, &terminated) {
		t.Fatalf("got %v, want *TerminatedError", err)
	}
	written := rl.writtenRecords()
	if len(written) != 1 || recordLabel(written[0]) != "alert(Fatal,UnexpectedMessage)" {
		t.Fatalf("alert: got %v, want fatal unexpected message", rl.eventLog())
	}
}

func TestRecvData13KeyUpdateRequested(t *testing.T) {
	ctx := testContext(t)
	c, rl := buildConn(t, protocol.Version1_3, []readStep{
		handshakeRecord(t, &handshake.MessageKeyUpdate{RequestUpdate: handshake.KeyUpdateRequested}),
		appDataRecord("x"),
	}, nil)

	oldLocal := rl.LocalKeyState()
	oldRemote := rl.RemoteKeyState()

	data, err := c.RecvData(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(data, []byte("x")) {
		t.Fatalf("got %q, want %q", data, "x")
	}

	// Receive rekey, then the response under the old key, then send rekey
	events := rl.eventLog()
	want := []string{"rekey-remote", "write:keyupdate(0)", "rekey-local"}
	if len(events) != len(want) {
		t.Fatalf("events: got %v, want %v", events, want)
	}
	for i := range want {
		if events[i] != want[i] {
			t.Fatalf("events: got %v, want %v", events, want)
		}
	}

	if want := kdf.UpdateTrafficSecret(kdf.SHA256, oldRemote.Secret); !bytes.Equal(rl.RemoteKeyState().Secret, want) {
		t.Error("remote traffic secret did not advance exactly once")
	}
	if want := kdf.UpdateTrafficSecret(kdf.SHA256, oldLocal.Secret); !bytes.Equal(rl.LocalKeyState().Secret, want) {
		t.Error("local traffic secret did not advance exactly once")
	}
}

func TestRecvData13KeyUpdateNotRequested(t *testing.T) {
	ctx := testContext(t)
	c, rl := buildConn(t, protocol.Version1_3, []readStep{
		handshakeRecord(t, &handshake.MessageKeyUpdate{RequestUpdate: handshake.KeyUpdateNotRequested}),
		appDataRecord("x"),
	}, nil)

	if _, err := c.RecvData(ctx); err != nil {
		t.Fatal(err)
	}

	events := rl.eventLog()
	if len(events) != 1 || events[0] != "rekey-remote" {
		t.Fatalf("events: got %v, want [rekey-remote]", events)
	}
}

func TestRecvData13KeyUpdateOutsideEstablished(t *testing.T) {
	for _, establishment := range []Establishment{
		{Kind: NotEstablished},
		{Kind: EarlyDataAllowed, RemainingEarlyData: 100},
		{Kind: EarlyDataNotAllowed},
	} {
		ctx := testContext(t)
		c, rl := buildConn(t, protocol.Version1_3, []readStep{
			handshakeRecord(t, &handshake.MessageKeyUpdate{RequestUpdate: handshake.KeyUpdateNotRequested}),
		}, func(config *Config) {
			e := establishment
			config.Establishment = &e
		})

		_, err := c.RecvData(ctx)
		var terminated *TerminatedError
		if !errors.As(err, &terminated) {
			t.Fatalf("%s: got %v, want *TerminatedError", establishment.Kind, err)
		}
		written := rl.writtenRecords()
		if len(written) != 1 || recordLabel(written[0]) != "alert(Fatal,UnexpectedMessage)" {
			t.Fatalf("%s: alert: got %v, want fatal unexpected message", establishment.Kind, rl.eventLog())
		}
	}
}

func TestRecvData13NewSessionTickets(t *testing.T) {
	ctx := testContext(t)
	store := newMemSessionStore()
	resumptionSecret := bytes.Repeat([]byte{0x5a}, 32)

	hs := NewHandshakeState(kdf.SHA256, protocol.Version1_3, bytes.Repeat([]byte{0x01}, 32))
	hs.SetResumptionSecret(resumptionSecret)

	first := &handshake.MessageNewSessionTicket{
		TicketLifetime: 7200,
		TicketAgeAdd:   0x01020304,
		TicketNonce:    []byte{0x00},
		Ticket:         []byte("ticket-one"),
	}
	second := &handshake.MessageNewSessionTicket{
		TicketLifetime: 600,
		TicketAgeAdd:   0x05060708,
		TicketNonce:    []byte{0x01},
		Ticket:         []byte("ticket-two"),
		Extensions:     []extension.Extension{&extension.EarlyData{MaxEarlyDataSize: 2048}},
	}

	c, rl := buildConn(t, protocol.Version1_3, []readStep{
		handshakeRecord(t, first, second),
		appDataRecord("x"),
	}, func(config *Config) {
		config.SessionStore = store
		config.HandshakeState = hs
	})

	if _, err := c.RecvData(ctx); err != nil {
		t.Fatal(err)
	}

	if len(store.sessions) != 2 {
		t.Fatalf("stored sessions: got %d, want 2", len(store.sessions))
	}

	localState := rl.LocalKeyState()
	sessionOne, _ := store.Get([]byte("ticket-one"))
	if want := kdf.ResumptionPSK(localState.Hash, resumptionSecret, first.TicketNonce); !bytes.Equal(sessionOne.Secret, want) {
		t.Errorf("first PSK: got % 02x, want % 02x", sessionOne.Secret, want)
	}
	if sessionOne.Suite != localState.Suite {
		t.Errorf("first suite: got %04x, want %04x", sessionOne.Suite, localState.Suite)
	}
	if sessionOne.MaxEarlyData != 0 {
		t.Errorf("first max early data: got %d, want 0", sessionOne.MaxEarlyData)
	}
	if sessionOne.Lifetime != 7200 {
		t.Errorf("first lifetime: got %d, want 7200", sessionOne.Lifetime)
	}

	sessionTwo, _ := store.Get([]byte("ticket-two"))
	if sessionTwo.MaxEarlyData != 2048 {
		t.Errorf("second max early data: got %d, want 2048", sessionTwo.MaxEarlyData)
	}
	if want := kdf.ResumptionPSK(localState.Hash, resumptionSecret, second.TicketNonce); !bytes.Equal(sessionTwo.Secret, want) {
		t.Errorf("second PSK: got % 02x, want % 02x", sessionTwo.Secret, want)
	}
}

type recordingAction struct {
	mu    sync.Mutex
	types []handshake.Type
	err   error
}

func (a *recordingAction) Handle(_ context.Context, _ *Conn, msg handshake.Message) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.types = append(a.types, msg.Header.Type)
	return a.err
}

func TestRecvData13PendingAction(t *testing.T) {
	ctx := testContext(t)
	action := &recordingAction{}
	c, _ := buildConn(t, protocol.Version1_3, []readStep{
		rawHandshakeRecord(handshake.TypeCertificate, []byte{0x00}),
		appDataRecord("x"),
	}, nil)
	c.PushPendingAction(action)

	data, err := c.RecvData(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(data, []byte("x")) {
		t.Fatalf("got %q, want %q", data, "x")
	}
	if len(action.types) != 1 || action.types[0] != handshake.TypeCertificate {
		t.Fatalf("handled types: got %v, want [Certificate]", action.types)
	}
}

func TestRecvData13UnexpectedWithoutPendingAction(t *testing.T) {
	ctx := testContext(t)
	c, _ := buildConn(t, protocol.Version1_3, []readStep{
		rawHandshakeRecord(handshake.TypeCertificate, []byte{0x00}),
	}, nil)

	var terminated *TerminatedError
	if _, err := c.RecvData(ctx); !errors.As(err, &terminated) {
		t.Fatalf("got %v, want *TerminatedError", err)
	}
}

func TestUpdateKey12NoOp(t *testing.T) {
	ctx := testContext(t)
	c, rl := buildConn(t, protocol.Version1_2, nil, nil)

	performed, err := c.UpdateKey(ctx, KeyUpdateTwoWay)
	if err != nil {
		t.Fatal(err)
	}
	if performed {
		t.Error("key update must be a no-op on TLS <= 1.2")
	}
	if events := rl.eventLog(); len(events) != 0 {
		t.Errorf("events: got %v, want none", events)
	}
}

func TestUpdateKey13TwoWay(t *testing.T) {
	ctx := testContext(t)
	c, rl := buildConn(t, protocol.Version1_3, nil, nil)

	oldLocal := rl.LocalKeyState()
	oldRemote := rl.RemoteKeyState()

	performed, err := c.UpdateKey(ctx, KeyUpdateTwoWay)
	if err != nil {
		t.Fatal(err)
	}
	if !performed {
		t.Fatal("key update must report true on TLS 1.3")
	}

	events := rl.eventLog()
	want := []string{"write:keyupdate(1)", "rekey-local"}
	if len(events) != len(want) || events[0] != want[0] || events[1] != want[1] {
		t.Fatalf("events: got %v, want %v", events, want)
	}

	if want := kdf.UpdateTrafficSecret(kdf.SHA256, oldLocal.Secret); !bytes.Equal(rl.LocalKeyState().Secret, want) {
		t.Error("local traffic secret did not advance exactly once")
	}
	if !bytes.Equal(rl.RemoteKeyState().Secret, oldRemote.Secret) {
		t.Error("remote traffic secret must not change before the peer answers")
	}
}

func TestUpdateKey13OneWay(t *testing.T) {
	ctx := testContext(t)
	c, rl := buildConn(t, protocol.Version1_3, nil, nil)

	performed, err := c.UpdateKey(ctx, KeyUpdateOneWay)
	if err != nil {
		t.Fatal(err)
	}
	if !performed {
		t.Fatal("key update must report true on TLS 1.3")
	}

	events := rl.eventLog()
	if len(events) != 2 || events[0] != "write:keyupdate(0)" || events[1] != "rekey-local" {
		t.Fatalf("events: got %v, want [write:keyupdate(0) rekey-local]", events)
	}
}

func TestUpdateKey13NotEstablished(t *testing.T) {
	ctx := testContext(t)
	c, rl := buildConn(t, protocol.Version1_3, nil, func(config *Config) {
		config.Establishment = &Establishment{Kind: NotEstablished}
	})

	if _, err := c.UpdateKey(ctx, KeyUpdateOneWay); err == nil {
		t.Fatal("expected error for key update before establishment")
	}
	if events := rl.eventLog(); len(events) != 0 {
		t.Errorf("events: got %v, want none", events)
	}
}

func TestSendDataChunking(t *testing.T) {
	ctx := testContext(t)
	c, rl := buildConn(t, protocol.Version1_3, nil, nil)

	payload := bytes.Repeat([]byte{0x7f}, 2*recordlayer.MaxFragmentLength+100)
	if err := c.SendData(ctx, payload); err != nil {
		t.Fatal(err)
	}

	written := rl.writtenRecords()
	if len(written) != 3 {
		t.Fatalf("record count: got %d, want 3", len(written))
	}
	var reassembled []byte
	for i, r := range written {
		appData, ok := r.Content.(*protocol.ApplicationData)
		if !ok {
			t.Fatalf("record %d: unexpected content %T", i, r.Content)
		}
		if len(appData.Data) > recordlayer.MaxFragmentLength {
			t.Fatalf("record %d: fragment of %d bytes exceeds limit", i, len(appData.Data))
		}
		reassembled = append(reassembled, appData.Data...)
	}
	if !bytes.Equal(reassembled, payload) {
		t.Fatal("reassembled payload does not match input")
	}
}

func TestByeSendsCloseNotify(t *testing.T) {
	ctx := testContext(t)
	c, rl := buildConn(t, protocol.Version1_2, nil, nil)

	if err := c.Bye(ctx); err != nil {
		t.Fatal(err)
	}
	written := rl.writtenRecords()
	if len(written) != 1 || recordLabel(written[0]) != "alert(Warning,CloseNotify)" {
		t.Fatalf("got %v, want one close notify", rl.eventLog())
	}
}

func TestConnReadBuffers(t *testing.T) {
	c, _ := buildConn(t, protocol.Version1_2, []readStep{
		appDataRecord("hello"),
	}, nil)

	buf := make([]byte, 3)
	n, err := c.Read(buf)
	if err != nil {
		t.Fatal(err)
	}
	if n != 3 || !bytes.Equal(buf, []byte("hel")) {
		t.Fatalf("first read: got %q (%d), want %q", buf[:n], n, "hel")
	}

	n, err = c.Read(buf)
	if err != nil {
		t.Fatal(err)
	}
	if n != 2 || !bytes.Equal(buf[:n], []byte("lo")) {
		t.Fatalf("second read: got %q (%d), want %q", buf[:n], n, "lo")
	}
}

func TestRecvErrorProtocol(t *testing.T) {
	ctx := testContext(t)
	c, rl := buildConn(t, protocol.Version1_2, []readStep{
		{err: &ProtocolError{Reason: "bad record mac", IsFatal: true, Description: alert.BadRecordMac}},
	}, nil)

	_, err := c.RecvData(ctx)
	var terminated *TerminatedError
	if !errors.As(err, &terminated) {
		t.Fatalf("got %v, want *TerminatedError", err)
	}
	if want := "bad record mac"; terminated.Reason != want {
		t.Errorf("reason: got %q, want %q", terminated.Reason, want)
	}
	written := rl.writtenRecords()
	if len(written) != 1 || recordLabel(written[0]) != "alert(Fatal,BadRecordMac)" {
		t.Fatalf("alert: got %v, want fatal bad record mac", rl.eventLog())
	}
}

func TestRecvErrorEOF(t *testing.T) {
	ctx := testContext(t)
	c, _ := buildConn(t, protocol.Version1_2, nil, nil)

	if _, err := c.RecvData(ctx); !errors.Is(err, io.EOF) {
		t.Fatalf("got %v, want io.EOF", err)
	}
}

func TestUpdateKeyInterleavesWithRecv(t *testing.T) {
	ctx := testContext(t)
	rl := &scriptedRecordLayer{
		readCh: make(chan readStep),
		local:  testKeyState(0xa0),
		remote: testKeyState(0xb0),
	}
	c, err := NewConn(rl, &Config{Version: protocol.Version1_3}, true)
	if err != nil {
		t.Fatal(err)
	}

	recvResult := make(chan error, 1)
	go func() {
		_, recvErr := c.RecvData(ctx)
		recvResult <- recvErr
	}()

	// The read lock is per record, not per loop: a key update must go
	// through while the reader is blocked waiting for data.
	updateDone := make(chan error, 1)
	go func() {
		_, updateErr := c.UpdateKey(ctx, KeyUpdateOneWay)
		updateDone <- updateErr
	}()

	select {
	case err := <-updateDone:
		if err != nil {
			t.Fatal(err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("key update blocked behind a pending read")
	}

	rl.readCh <- appDataRecord("x")
	if err := <-recvResult; err != nil {
		t.Fatal(err)
	}
}
