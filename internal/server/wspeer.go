package server

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/courierchat/courier/internal/config"
	"github.com/courierchat/courier/internal/model"
)

// wsPeer adapts a websocket connection to the registry's Peer
// interface. Writes are serialized: the router and the drain path may
// both send concurrently.
type wsPeer struct {
	conn *websocket.Conn
	cfg  config.SocketsConfig

	// Write serialization
	writeMu sync.Mutex

	// State
	mu     sync.Mutex
	closed bool
}

func newWSPeer(conn *websocket.Conn, cfg config.SocketsConfig) *wsPeer {
	return &wsPeer{conn: conn, cfg: cfg}
}

// Send serializes the message as JSON onto the wire. An error means
// the connection no longer accepts writes.
func (p *wsPeer) Send(msg model.Message) error {
	p.writeMu.Lock()
	defer p.writeMu.Unlock()

	p.conn.SetWriteDeadline(time.Now().Add(p.cfg.WriteTimeout))
	return p.conn.WriteJSON(msg.Wire())
}

// sendError reports a rejected frame back to the sender.
func (p *wsPeer) sendError(msg string) error {
	p.writeMu.Lock()
	defer p.writeMu.Unlock()

	p.conn.SetWriteDeadline(time.Now().Add(p.cfg.WriteTimeout))
	return p.conn.WriteJSON(model.ErrorFrame{Error: msg})
}

// writeControl sends a control frame outside the writeMu; gorilla
// serializes control writes internally.
func (p *wsPeer) writeControl(messageType int, data []byte) error {
	return p.conn.WriteControl(messageType, data, time.Now().Add(time.Second))
}

// Close tears down the connection. Safe to call more than once; only
// the first call sends the close frame.
func (p *wsPeer) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	p.mu.Unlock()

	p.conn.WriteControl(
		websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second),
	)
	return p.conn.Close()
}

// closeWithPolicyViolation closes the connection with a policy
// violation close code, used for malformed frames.
func (p *wsPeer) closeWithPolicyViolation(reason string) error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	p.mu.Unlock()

	p.conn.WriteControl(
		websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.ClosePolicyViolation, reason),
		time.Now().Add(time.Second),
	)
	return p.conn.Close()
}
