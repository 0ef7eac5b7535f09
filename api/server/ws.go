package server

import (
	"context"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"

	"github.com/pulsechat/pulse/api/auth"
	"github.com/pulsechat/pulse/api/config"
	"github.com/pulsechat/pulse/api/metrics"
	"github.com/pulsechat/pulse/api/protocol"
	"github.com/pulsechat/pulse/pkg/otel"
)

const frameTimeout = 30 * time.Second

// WSHandler owns the socket edge: upgrade, credential check, session
// lifecycle, and the read loop that feeds the dispatcher. Frames from one
// connection are handled strictly in receive order.
type WSHandler struct {
	cfg        *config.Config
	gate       *auth.Gate
	limiter    *auth.ConnectLimiter
	registry   *Registry
	dispatcher *Dispatcher
	upgrader   websocket.Upgrader

	// baseCtx parents per-frame contexts; tests swap it to inject a mock
	// transaction.
	baseCtx context.Context
}

func NewWSHandler(cfg *config.Config, gate *auth.Gate, limiter *auth.ConnectLimiter, registry *Registry, dispatcher *Dispatcher) *WSHandler {
	h := &WSHandler{
		cfg:        cfg,
		gate:       gate,
		limiter:    limiter,
		registry:   registry,
		dispatcher: dispatcher,
		baseCtx:    context.Background(),
	}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     h.checkOrigin,
	}
	return h
}

func (h *WSHandler) checkOrigin(r *http.Request) bool {
	for _, o := range h.cfg.Server.AllowedOrigins {
		if o == "*" {
			return true
		}
	}
	origin := r.Header.Get("Origin")
	if origin == "" {
		return h.cfg.Server.AllowEmptyOrigin
	}
	for _, allowed := range h.cfg.Server.AllowedOrigins {
		if allowed == origin {
			return true
		}
	}
	return false
}

func (h *WSHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if !h.limiter.Allow(remoteAddr(r)) {
		http.Error(w, `{"error":"rate limited"}`, http.StatusTooManyRequests)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Error("ws: upgrade error", "error", err)
		return
	}

	// The credential rides a query parameter because browser WebSocket
	// clients cannot set headers. Missing and invalid both close with
	// 4001; the reason text tells them apart.
	token := r.URL.Query().Get("token")
	reason := "invalid credential"
	if token == "" {
		reason = "missing credential"
	}
	userID, err := h.gate.Verify(token)
	if err != nil {
		metrics.EventErrors.WithLabelValues(protocol.CodeUnauthorized).Inc()
		slog.Warn("ws: auth failed", "reason", reason, "remote", remoteAddr(r))
		msg := websocket.FormatCloseMessage(protocol.CloseAuthFailure, reason)
		conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(WriteTimeout))
		conn.Close()
		return
	}

	sess := NewSession(conn, userID, h.cfg.Limits.SendQueueSize)
	go sess.writeLoop()

	h.registry.Attach(sess)
	h.serve(sess)
}

// serve runs the connection's read loop. One frame at a time, in receive
// order; every suspension (store, bus, socket write) happens without any
// registry lock held.
func (h *WSHandler) serve(sess *Session) {
	defer func() {
		ctx, cancel := context.WithTimeout(h.baseCtx, frameTimeout)
		defer cancel()
		if h.registry.Detach(ctx, sess) {
			h.dispatcher.presence.Disconnected(ctx, sess.UserID)
		}
		sess.Close(websocket.CloseNormalClosure, "")
	}()

	h.withFrameCtx(sess, func(ctx context.Context) {
		h.dispatcher.presence.Connected(ctx, sess.UserID)
	})

	sess.conn.SetReadLimit(h.cfg.Limits.MaxFrameBytes)

	// Malformed frames get one error event each; a sustained stream of
	// them tears the session down.
	errLimiter := rate.NewLimiter(
		rate.Limit(float64(h.cfg.Limits.FrameErrorsPerMin)/60.0),
		h.cfg.Limits.FrameErrorsPerMin)

	for {
		_, data, err := sess.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				slog.Warn("ws: read error", "error", err, "session_id", sess.ID)
			}
			return
		}

		env, err := protocol.DecodeEnvelope(data)
		if err != nil {
			metrics.FrameErrors.Inc()
			if !errLimiter.Allow() {
				slog.Warn("ws: malformed frame rate exceeded", "session_id", sess.ID, "user_id", sess.UserID)
				sess.Close(websocket.ClosePolicyViolation, "too many malformed frames")
				return
			}
			h.withFrameCtx(sess, func(ctx context.Context) {
				h.dispatcher.sendError(sess, protocol.CodeInvalidMessage, "malformed frame")
			})
			continue
		}

		h.withFrameCtx(sess, func(ctx context.Context) {
			h.dispatcher.Dispatch(ctx, sess, env)
		})
	}
}

func (h *WSHandler) withFrameCtx(sess *Session, fn func(ctx context.Context)) {
	ctx, cancel := context.WithTimeout(h.baseCtx, frameTimeout)
	defer cancel()
	ctx = otel.WithSessionID(ctx, sess.ID)
	ctx = otel.WithUserID(ctx, sess.UserID)
	fn(ctx)
}

func remoteAddr(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
