package server

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/gorilla/websocket"

	"github.com/courierchat/courier/internal/metrics"
	"github.com/courierchat/courier/internal/model"
)

// session is the full lifetime of one websocket connection:
// register, drain the pending queue, read until the channel dies,
// tear down.
type session struct {
	srv      *Server
	identity string
	peer     *wsPeer
	logger   *slog.Logger
}

// run drives the session to completion. It returns when the read side
// of the connection is gone; teardown has already happened by then.
func (s *session) run(ctx context.Context) {
	reg := s.srv.registry

	// Register first so no message dispatched after this point misses
	// the live channel. A displaced older connection is closed here;
	// its own session notices the dead read side and unwinds, finding
	// the registry already pointing elsewhere.
	if displaced := reg.Register(s.identity, s.peer); displaced != nil {
		if err := displaced.Close(); err != nil {
			s.logger.Warn("closing displaced connection failed", "error", err)
		}
	}

	metrics.ConnectionsAccepted.Inc()
	metrics.ActiveConnections.Inc()
	defer metrics.ActiveConnections.Dec()

	// Teardown talks to the peer handle captured at session start, so
	// a replacement connection registered mid-session is never
	// unregistered by the session it displaced.
	defer reg.CloseAndUnregister(s.identity, s.peer)

	s.logger.Info("connection established")

	delivered, err := s.srv.router.DrainPending(ctx, s.identity, s.peer)
	if err != nil {
		s.logger.Error("draining pending messages failed", "error", err)
	} else if delivered > 0 {
		s.logger.Info("pending messages delivered", "count", delivered)
	}

	pingDone := make(chan struct{})
	defer close(pingDone)
	go s.pingLoop(pingDone)

	s.readLoop()

	s.logger.Info("connection closed")
}

// readLoop consumes inbound frames until the connection errors out.
// A frame that is not JSON at all is a protocol violation and closes
// the connection; a well-formed frame that fails validation gets an
// error frame back and the connection stays open.
func (s *session) readLoop() {
	conn := s.peer.conn
	cfg := s.srv.cfg.Sockets

	conn.SetReadLimit(cfg.MaxMessageBytes)
	conn.SetReadDeadline(time.Now().Add(cfg.ReadTimeout))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(cfg.ReadTimeout))
	})

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err,
				websocket.CloseNormalClosure,
				websocket.CloseGoingAway,
			) {
				s.logger.Info("connection read failed", "error", err)
			}
			return
		}
		conn.SetReadDeadline(time.Now().Add(cfg.ReadTimeout))

		var wire model.WireMessage
		if err := json.Unmarshal(data, &wire); err != nil {
			s.logger.Warn("malformed frame, closing connection", "error", err)
			metrics.RejectedMessages.WithLabelValues("malformed").Inc()
			s.peer.closeWithPolicyViolation("malformed JSON")
			return
		}

		if err := wire.Validate(); err != nil {
			s.logger.Warn("invalid message rejected", "error", err)
			metrics.RejectedMessages.WithLabelValues("invalid").Inc()
			if werr := s.peer.sendError(err.Error()); werr != nil {
				return
			}
			continue
		}

		// sent_by on the wire is advisory; the authenticated identity
		// always wins.
		msg := wire.ToMessage(s.identity, time.Now().UTC())

		// Dispatch runs on the server's base context: an in-flight
		// message must not be lost because this sender hung up.
		outcome, err := s.srv.router.Dispatch(s.srv.baseCtx, msg)
		if err != nil {
			s.logger.Error("dispatch failed",
				"recipient", msg.SentTo,
				"outcome", outcome.String(),
				"error", err,
			)
			if errors.Is(s.srv.baseCtx.Err(), context.Canceled) {
				return
			}
			s.peer.sendError("message could not be stored")
			continue
		}

		s.logger.Debug("message dispatched",
			"recipient", msg.SentTo,
			"chat_id", msg.ChatID,
			"outcome", outcome.String(),
		)
	}
}

// pingLoop keeps the connection alive. The read deadline is refreshed
// by the pong handler; a peer that stops answering times out the read
// loop.
func (s *session) pingLoop(done <-chan struct{}) {
	ticker := time.NewTicker(s.srv.cfg.Sockets.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			if err := s.peer.writeControl(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
