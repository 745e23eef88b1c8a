package realtime

import (
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/kendall-kelly/portfolio-chat-api/logging"
)

var (
	// ErrSessionClosed is returned when delivering to a closed session
	ErrSessionClosed = errors.New("session closed")
	// ErrSlowConsumer is returned when a session's outbound queue is full; the session is closed
	ErrSlowConsumer = errors.New("outbound queue full")
)

// SessionConfig tunes the per-socket transport
type SessionConfig struct {
	PingInterval   time.Duration
	PongTimeout    time.Duration
	WriteTimeout   time.Duration
	SendBuffer     int
	MaxMessageSize int64
}

// DefaultSessionConfig matches the defaults of the WS_* settings
func DefaultSessionConfig() SessionConfig {
	return SessionConfig{
		PingInterval:   10 * time.Second,
		PongTimeout:    15 * time.Second,
		WriteTimeout:   10 * time.Second,
		SendBuffer:     256,
		MaxMessageSize: 512 * 1024,
	}
}

// Session is one websocket connection. Frames are queued by Deliver and
// written by a single write pump; the read loop runs on the caller's goroutine.
type Session struct {
	id        string
	conn      *websocket.Conn
	cfg       SessionConfig
	send      chan []byte
	done      chan struct{}
	closeOnce sync.Once
	log       *slog.Logger
}

func newSession(id string, conn *websocket.Conn, cfg SessionConfig, log *slog.Logger) *Session {
	return &Session{
		id:   id,
		conn: conn,
		cfg:  cfg,
		send: make(chan []byte, cfg.SendBuffer),
		done: make(chan struct{}),
		log:  log.With(logging.Socket(id)),
	}
}

// ID returns the socket id
func (s *Session) ID() string { return s.id }

// Deliver queues a frame without blocking. A full queue means the client is
// not keeping up; the session is closed and the frame dropped.
func (s *Session) Deliver(frame []byte) error {
	select {
	case <-s.done:
		return ErrSessionClosed
	default:
	}

	select {
	case s.send <- frame:
		return nil
	case <-s.done:
		return ErrSessionClosed
	default:
		s.log.Warn("dropping slow consumer", slog.Int("queued", len(s.send)))
		s.Close()
		return ErrSlowConsumer
	}
}

// Done is closed once the session is closed
func (s *Session) Done() <-chan struct{} {
	return s.done
}

// Close tears down the connection; it is safe to call more than once
func (s *Session) Close() {
	s.closeOnce.Do(func() {
		close(s.done)
		_ = s.conn.Close()
	})
}

// CloseGoingAway sends a close frame before closing, used on server shutdown
func (s *Session) CloseGoingAway() {
	msg := websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down")
	_ = s.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
	s.Close()
}

// writePump owns all data writes on the connection and sends heartbeat pings
func (s *Session) writePump() {
	ticker := time.NewTicker(s.cfg.PingInterval)
	defer func() {
		ticker.Stop()
		s.Close()
	}()

	for {
		select {
		case <-s.done:
			return
		case frame := <-s.send:
			_ = s.conn.SetWriteDeadline(time.Now().Add(s.cfg.WriteTimeout))
			if err := s.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				s.log.Debug("write failed", logging.Err(err))
				return
			}
		case <-ticker.C:
			if err := s.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(s.cfg.WriteTimeout)); err != nil {
				s.log.Debug("ping failed", logging.Err(err))
				return
			}
		}
	}
}

// readLoop feeds inbound text frames to handle, one at a time, until the
// connection fails, the peer closes it, or no pong arrives within PongTimeout.
func (s *Session) readLoop(handle func([]byte)) {
	defer s.Close()

	s.conn.SetReadLimit(s.cfg.MaxMessageSize)
	extend := func() {
		_ = s.conn.SetReadDeadline(time.Now().Add(s.cfg.PongTimeout))
	}
	extend()
	s.conn.SetPongHandler(func(string) error {
		extend()
		return nil
	})

	for {
		_, data, err := s.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseNoStatusReceived) {
				s.log.Info("connection closed unexpectedly", logging.Err(err))
			}
			return
		}
		extend()

		if len(data) > 0 {
			handle(data)
		}
	}
}
