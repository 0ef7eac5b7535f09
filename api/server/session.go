package server

import (
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/pulsechat/pulse/shared/id"
)

const WriteTimeout = 10 * time.Second

// Session is a single live client connection bound to one user. All socket
// writes funnel through the send queue and a single writer goroutine, so
// bus callbacks and the connection's own handler never interleave frames.
type Session struct {
	ID     string
	UserID string

	conn *websocket.Conn
	send chan []byte
	done chan struct{}
	once sync.Once
}

func NewSession(conn *websocket.Conn, userID string, queueSize int) *Session {
	return &Session{
		ID:     id.NewSession(),
		UserID: userID,
		conn:   conn,
		send:   make(chan []byte, queueSize),
		done:   make(chan struct{}),
	}
}

// TrySend queues a frame without blocking. False means the queue is full;
// the caller closes the session as a slow consumer.
func (s *Session) TrySend(data []byte) bool {
	select {
	case <-s.done:
		return true // closing; drop silently
	default:
	}
	select {
	case s.send <- data:
		return true
	default:
		return false
	}
}

// Close sends a close frame once and tears the connection down. The read
// loop unblocks with an error, which triggers registry detach.
func (s *Session) Close(code int, reason string) {
	s.once.Do(func() {
		close(s.done)
		msg := websocket.FormatCloseMessage(code, reason)
		deadline := time.Now().Add(WriteTimeout)
		if err := s.conn.WriteControl(websocket.CloseMessage, msg, deadline); err != nil {
			slog.Debug("ws: close frame write error", "error", err, "session_id", s.ID)
		}
		s.conn.Close()
	})
}

// writeLoop is the session's single socket writer.
func (s *Session) writeLoop() {
	for {
		select {
		case <-s.done:
			return
		case data := <-s.send:
			s.conn.SetWriteDeadline(time.Now().Add(WriteTimeout))
			if err := s.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				slog.Warn("ws: write error", "error", err, "session_id", s.ID, "user_id", s.UserID)
				s.Close(websocket.CloseInternalServerErr, "write failure")
				return
			}
		}
	}
}
