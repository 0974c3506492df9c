// Package wstransport is a graphcache.Transport that ships queries,
// mutations and subscription handshakes over one long-lived websocket
// connection instead of a request per HTTP call — the priorityTransport
// spec.md §6 calls out for "subscriptions piggybacking on websockets".
//
// It is adapted from the teacher's pkg/ws hub/client pump pair: the same
// gorilla/websocket read-pump/write-pump split and ping/pong keepalive
// discipline, but turned around into a client dialer that correlates
// outbound requests with inbound responses by an id, instead of a server
// broadcasting to many connected clients.
package wstransport

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/shashiranjanraj/graphcache/pkg/logger"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 512 * 1024
)

// envelope is the wire shape exchanged over the socket in both
// directions: a request carries Query/Variables, a response carries
// Data/Error, both correlated by ID.
type envelope struct {
	ID        string          `json:"id"`
	Query     string          `json:"query,omitempty"`
	Variables map[string]any  `json:"variables,omitempty"`
	Data      json.RawMessage `json:"data,omitempty"`
	Error     string          `json:"error,omitempty"`
}

// Transport is a graphcache.Transport backed by one websocket
// connection, shared across every Execute call.
type Transport struct {
	conn *websocket.Conn

	nextID int64

	mu      sync.Mutex
	waiters map[string]chan envelope

	writeMu   sync.Mutex
	closeOnce sync.Once
	closeCh   chan struct{}
}

// shutdown signals every pump and waiter exactly once, whether the
// close came from Close or from the read pump hitting a dead
// connection.
func (t *Transport) shutdown() {
	t.closeOnce.Do(func() { close(t.closeCh) })
}

// Dial opens a websocket connection to url and starts its read/write
// pumps. Call Close when the transport is no longer needed.
func Dial(url string) (*Transport, error) {
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		return nil, fmt.Errorf("wstransport: dial: %w", err)
	}
	t := &Transport{
		conn:    conn,
		waiters: map[string]chan envelope{},
		closeCh: make(chan struct{}),
	}
	conn.SetReadLimit(maxMessageSize)
	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})
	go t.readPump()
	go t.keepalivePump()
	return t, nil
}

// Close tears down the underlying connection.
func (t *Transport) Close() error {
	t.shutdown()
	return t.conn.Close()
}

// Execute sends {query, variables} as one envelope and blocks until the
// matching response envelope arrives, the connection closes, or ctx is
// done.
func (t *Transport) Execute(ctx context.Context, query string, variables map[string]any) (json.RawMessage, error) {
	id := fmt.Sprintf("%d", atomic.AddInt64(&t.nextID, 1))

	wait := make(chan envelope, 1)
	t.mu.Lock()
	t.waiters[id] = wait
	t.mu.Unlock()
	defer func() {
		t.mu.Lock()
		delete(t.waiters, id)
		t.mu.Unlock()
	}()

	msg, err := json.Marshal(envelope{ID: id, Query: query, Variables: variables})
	if err != nil {
		return nil, fmt.Errorf("wstransport: encode request: %w", err)
	}

	t.writeMu.Lock()
	t.conn.SetWriteDeadline(time.Now().Add(writeWait))
	writeErr := t.conn.WriteMessage(websocket.TextMessage, msg)
	t.writeMu.Unlock()
	if writeErr != nil {
		return nil, fmt.Errorf("wstransport: write: %w", writeErr)
	}

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-t.closeCh:
		return nil, fmt.Errorf("wstransport: connection closed")
	case resp := <-wait:
		if resp.Error != "" {
			return nil, fmt.Errorf("wstransport: server error: %s", resp.Error)
		}
		return resp.Data, nil
	}
}

// readPump dispatches every inbound envelope to the waiter registered
// under its ID, dropping unsolicited messages (e.g. a keepalive
// the server echoed without an ID this transport never sent).
func (t *Transport) readPump() {
	defer t.shutdown()
	for {
		_, raw, err := t.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				logger.Warn("wstransport: unexpected close", "error", err)
			}
			return
		}

		var env envelope
		if err := json.Unmarshal(raw, &env); err != nil {
			logger.Warn("wstransport: bad envelope", "error", err)
			continue
		}

		t.mu.Lock()
		wait, ok := t.waiters[env.ID]
		t.mu.Unlock()
		if ok {
			wait <- env
		}
	}
}

// keepalivePump pings the server on the same cadence pkg/ws's hub uses
// to keep a client's connection alive.
func (t *Transport) keepalivePump() {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-t.closeCh:
			return
		case <-ticker.C:
			t.writeMu.Lock()
			t.conn.SetWriteDeadline(time.Now().Add(writeWait))
			err := t.conn.WriteMessage(websocket.PingMessage, nil)
			t.writeMu.Unlock()
			if err != nil {
				return
			}
		}
	}
}
