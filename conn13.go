// SPDX-FileCopyrightText: 2023 The Pion community <https://pion.ly>
// SPDX-License-Identifier: MIT

package tlsconn

import (
	"context"
	"fmt"
	"time"

	"github.com/censys-oss/tlsconn/v2/pkg/crypto/kdf"
	"github.com/censys-oss/tlsconn/v2/pkg/protocol"
	"github.com/censys-oss/tlsconn/v2/pkg/protocol/alert"
	"github.com/censys-oss/tlsconn/v2/pkg/protocol/handshake"
)

func (c *Conn) recvData13(ctx context.Context) ([]byte, error) {
	for {
		r, err := c.readRecord(ctx)
		if err != nil {
			return c.handleRecvError(ctx, err)
		}

		switch content := r.Content.(type) {
		case *protocol.ChangeCipherSpec:
			// Middlebox compatibility mode, ignored
			// https://tools.ietf.org/html/rfc8446#appendix-D.4
			c.log.Tracef("%s: <- ChangeCipherSpec, ignored", srvCliStr(c.isClient))
		case *handshake.Handshake:
			if err := c.processHandshake13(ctx, content); err != nil {
				return nil, err
			}
		case *alert.Alert:
			return nil, c.handleAlert(ctx, content)
		case *protocol.ApplicationData:
			data, delivered, err := c.consumeAppData13(ctx, content.Data)
			if err != nil {
				return nil, err
			}
			if delivered {
				return data, nil
			}
		default:
			return nil, c.terminateUnexpected(ctx,
				fmt.Sprintf("unexpected message of content type %d", content.ContentType()))
		}
	}
}

// consumeAppData13 applies the establishment state to one application
// data fragment. delivered is false when the loop should keep reading
// (empty fragment, or dropped early data).
func (c *Conn) consumeAppData13(ctx context.Context, data []byte) ([]byte, bool, error) {
	if len(data) == 0 {
		return nil, false, nil
	}

	establishment := c.establishment()
	switch establishment.Kind {
	case Established:
		return data, true, nil
	case EarlyDataAllowed:
		if uint32(len(data)) > establishment.RemainingEarlyData {
			return nil, false, c.terminate(ctx,
				&ProtocolError{Reason: "early data overflow", IsFatal: true, Description: alert.UnexpectedMessage},
				alert.Fatal, alert.UnexpectedMessage, "early data overflow")
		}
		establishment.RemainingEarlyData -= uint32(len(data))
		c.established.Store(establishment)
		c.log.Tracef("%s: <- %d bytes of early data, %d remaining",
			srvCliStr(c.isClient), len(data), establishment.RemainingEarlyData)
		return data, true, nil
	case EarlyDataNotAllowed:
		c.log.Debugf("%s: dropping %d bytes of rejected early data", srvCliStr(c.isClient), len(data))
		return nil, false, nil
	default:
		return nil, false, c.terminate(ctx,
			&ProtocolError{Reason: "data at not-established", IsFatal: true, Description: alert.UnexpectedMessage},
			alert.Fatal, alert.UnexpectedMessage, "data at not-established")
	}
}

// processHandshake13 walks the post-handshake messages of one record in
// order.
func (c *Conn) processHandshake13(ctx context.Context, hs *handshake.Handshake) error {
	for i := range hs.Messages {
		msg := hs.Messages[i]
		c.log.Tracef("%s: <- %s", srvCliStr(c.isClient), msg.Header.Type)

		switch msg.Header.Type {
		case handshake.TypeNewSessionTicket:
			ticket := &handshake.MessageNewSessionTicket{}
			if err := ticket.Unmarshal(msg.Payload); err != nil {
				return c.terminate(ctx, err, alert.Fatal, alert.DecodeError, "malformed new session ticket")
			}
			if err := c.storeSessionTicket(ctx, ticket); err != nil {
				return err
			}
		case handshake.TypeKeyUpdate:
			keyUpdate := &handshake.MessageKeyUpdate{}
			if err := keyUpdate.Unmarshal(msg.Payload); err != nil {
				return c.terminate(ctx, err, alert.Fatal, alert.DecodeError, "malformed key update")
			}
			if err := c.handleKeyUpdate(ctx, keyUpdate); err != nil {
				return err
			}
		case handshake.TypeClientHello:
			// There is no renegotiation in TLS 1.3
			// https://tools.ietf.org/html/rfc8446#section-4.1.2
			return c.terminateUnexpected(ctx, "client hello after handshake")
		default:
			action, ok := c.pending.pop()
			if !ok {
				return c.terminateUnexpected(ctx,
					fmt.Sprintf("unexpected handshake message %s", msg.Header.Type))
			}

			c.writeMu.Lock()
			err := action.Handle(ctx, c, msg)
			c.writeMu.Unlock()
			if err != nil {
				return c.terminate(ctx, err, alert.Fatal, alert.InternalError, "post-handshake action failed")
			}
		}
	}
	return nil
}

// storeSessionTicket derives the resumption PSK bound to one ticket and
// installs it into the shared session store. Each ticket of a flight is
// installed independently.
func (c *Conn) storeSessionTicket(ctx context.Context, ticket *handshake.MessageNewSessionTicket) error {
	if c.sessionStore == nil {
		c.log.Debugf("%s: no session store, dropping session ticket", srvCliStr(c.isClient))
		return nil
	}
	if c.hs == nil {
		return c.terminate(ctx, errMissingResumptionSecret, alert.Fatal, alert.InternalError,
			"session ticket without handshake state")
	}
	resumptionSecret, ok := c.hs.ResumptionSecret()
	if !ok {
		return c.terminate(ctx, errMissingResumptionSecret, alert.Fatal, alert.InternalError,
			"session ticket without resumption secret")
	}

	state := c.rl.LocalKeyState()
	session := Session{
		Suite:        state.Suite,
		Secret:       kdf.ResumptionPSK(state.Hash, resumptionSecret, ticket.TicketNonce),
		Lifetime:     ticket.TicketLifetime,
		AgeAdd:       ticket.TicketAgeAdd,
		ReceivedAt:   time.Now(),
		MaxEarlyData: ticket.MaxEarlyDataSize(),
	}

	c.log.Tracef("%s: storing session ticket (lifetime: %ds, early data: %d)",
		srvCliStr(c.isClient), ticket.TicketLifetime, session.MaxEarlyData)
	if err := c.sessionStore.Set(ticket.Ticket, session); err != nil {
		return c.terminate(ctx, err, alert.Fatal, alert.InternalError, "failed to store session ticket")
	}
	return nil
}

// handleKeyUpdate services a peer KeyUpdate. The receiving keys advance
// first; when a response is requested it goes out as the last record
// under the old sending key, and only then do the sending keys advance.
func (c *Conn) handleKeyUpdate(ctx context.Context, keyUpdate *handshake.MessageKeyUpdate) error {
	if c.establishment().Kind != Established {
		return c.terminateUnexpected(ctx, "key update outside established session")
	}

	c.rl.SetRemoteKeyState(c.rl.RemoteKeyState().Update())
	c.log.Tracef("%s: remote traffic secret advanced", srvCliStr(c.isClient))

	if keyUpdate.RequestUpdate != handshake.KeyUpdateRequested {
		return nil
	}

	c.writeMu.Lock()
	err := c.writeKeyUpdateLocked(ctx, handshake.KeyUpdateNotRequested)
	if err == nil {
		c.rl.SetLocalKeyState(c.rl.LocalKeyState().Update())
	}
	c.writeMu.Unlock()

	if err != nil {
		return c.terminate(ctx, err, alert.Fatal, alert.InternalError, "failed to answer key update")
	}
	c.log.Tracef("%s: local traffic secret advanced", srvCliStr(c.isClient))
	return nil
}
