package relay

import (
	"context"
	"encoding/json"
	"time"

	ws "github.com/coder/websocket"

	"github.com/squadsync/squadsync/internal/remote"
)

const (
	sendBufferSize = 16
	pingInterval   = 30 * time.Second
)

// Session is one subscribed WebSocket connection.
type Session struct {
	hub  *Hub
	conn *ws.Conn
	send chan []byte
}

// NewSession creates a Session tied to the given hub and connection.
func NewSession(hub *Hub, conn *ws.Conn) *Session {
	return &Session{
		hub:  hub,
		conn: conn,
		send: make(chan []byte, sendBufferSize),
	}
}

// Run registers the session (which delivers the initial snapshot), starts the
// write pump, and runs the read pump. It blocks until the connection closes,
// then unregisters.
func (s *Session) Run(ctx context.Context) {
	s.hub.Register(s)
	defer s.hub.Unregister(s)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	go s.writePump(ctx)
	s.readPump(ctx)
}

// readPump parses incoming mutation frames and hands them to the hub. It
// returns on read error, which triggers cleanup.
func (s *Session) readPump(ctx context.Context) {
	for {
		_, data, err := s.conn.Read(ctx)
		if err != nil {
			return
		}

		var msg remote.Message
		if err := json.Unmarshal(data, &msg); err != nil {
			s.hub.logger.Warn("bad frame from session", "error", err)
			continue
		}
		s.hub.Apply(msg)
	}
}

// writePump drains the send channel onto the WebSocket and pings periodically
// to detect stale connections.
func (s *Session) writePump(ctx context.Context) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case msg, ok := <-s.send:
			if !ok {
				// Hub closed the channel — connection is done
				return
			}
			if err := s.conn.Write(ctx, ws.MessageText, msg); err != nil {
				return
			}
		case <-ticker.C:
			if err := s.conn.Ping(ctx); err != nil {
				return
			}
		case <-ctx.Done():
			return
		}
	}
}
