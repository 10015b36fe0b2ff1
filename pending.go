// SPDX-FileCopyrightText: 2023 The Pion community <https://pion.ly>
// SPDX-License-Identifier: MIT

package tlsconn

import (
	"context"
	"sync"

	"github.com/censys-oss/tlsconn/v2/pkg/protocol/handshake"
)

// PostHandshakeAction handles one deferred TLS 1.3 post-handshake
// message, installed by the handshake component before it hands the
// connection over (e.g. the message sequence of post-handshake client
// authentication). Handle runs while the connection's write lock is
// held, so the action may both read connection state and send records.
type PostHandshakeAction interface {
	Handle(ctx context.Context, c *Conn, msg handshake.Message) error
}

// pendingQueue is the FIFO of installed post-handshake actions
type pendingQueue struct {
	mu      sync.Mutex
	actions []PostHandshakeAction
}

func (q *pendingQueue) push(a PostHandshakeAction) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.actions = append(q.actions, a)
}

func (q *pendingQueue) pop() (PostHandshakeAction, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.actions) == 0 {
		return nil, false
	}
	a := q.actions[0]
	q.actions = q.actions[1:]
	return a, true
}

func (q *pendingQueue) len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.actions)
}
