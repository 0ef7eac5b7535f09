package server

import (
	"context"
	"log/slog"

	"github.com/gorilla/websocket"
	"go.opentelemetry.io/otel/trace"

	"github.com/pulsechat/pulse/api/metrics"
	"github.com/pulsechat/pulse/api/protocol"
	"github.com/pulsechat/pulse/api/services"
	"github.com/pulsechat/pulse/pkg/otel"
)

// Dispatcher routes decoded client events to the services. Every handler
// follows the same template: parse, authorise, persist, ack, publish.
// Errors go back to the initiating session only and never touch siblings.
type Dispatcher struct {
	messages      *services.MessageService
	receipts      *services.ReceiptService
	presence      *services.PresenceService
	typing        *services.TypingService
	reactions     *services.ReactionService
	subscriptions *services.SubscriptionService
	registry      *Registry
}

func NewDispatcher(
	messages *services.MessageService,
	receipts *services.ReceiptService,
	presence *services.PresenceService,
	typing *services.TypingService,
	reactions *services.ReactionService,
	subscriptions *services.SubscriptionService,
	registry *Registry,
) *Dispatcher {
	return &Dispatcher{
		messages:      messages,
		receipts:      receipts,
		presence:      presence,
		typing:        typing,
		reactions:     reactions,
		subscriptions: subscriptions,
		registry:      registry,
	}
}

func (d *Dispatcher) Dispatch(ctx context.Context, sess *Session, env *protocol.Envelope) {
	ctx, span := otel.Tracer("pulse-api").Start(ctx, "ws.dispatch",
		trace.WithAttributes(
			otel.SessionID(sess.ID),
			otel.UserID(sess.UserID),
			otel.WSMessageType(string(env.Type)),
			otel.WSDirection("in"),
		))
	defer span.End()

	metrics.EventsTotal.WithLabelValues(string(env.Type), "in").Inc()

	// Any authenticated activity keeps the user's presence fresh.
	d.presence.Seen(ctx, sess.UserID)

	switch env.Type {
	case protocol.EventPing:
		d.reply(sess, protocol.EventPong, nil)

	case protocol.EventSubscribe:
		d.handleSubscribe(ctx, sess, env)

	case protocol.EventUnsubscribe:
		d.handleUnsubscribe(ctx, sess, env)

	case protocol.EventSendMessage:
		d.handleSend(ctx, sess, env)

	case protocol.EventEditMessage:
		d.handleEdit(ctx, sess, env)

	case protocol.EventDeleteMessage:
		d.handleDelete(ctx, sess, env)

	case protocol.EventRead:
		d.handleRead(ctx, sess, env)

	case protocol.EventReact:
		d.handleReact(ctx, sess, env)

	case protocol.EventTyping:
		d.handleTyping(ctx, sess, env)

	default:
		slog.Warn("ws: unknown event type", "type", env.Type, "session_id", sess.ID)
	}
}

func (d *Dispatcher) handleSubscribe(ctx context.Context, sess *Session, env *protocol.Envelope) {
	req, err := protocol.DecodeBody[protocol.Subscribe](env)
	if err != nil {
		d.sendError(sess, protocol.CodeInvalidMessage, "bad subscribe payload")
		return
	}

	allowed, denied, err := d.subscriptions.Authorize(ctx, sess.UserID, req.ConversationIDs)
	if err != nil {
		d.sendError(sess, protocol.CodeFromError(err), "subscribe failed")
		return
	}
	if len(denied) > 0 {
		d.sendError(sess, protocol.CodeForbidden, "not a member of requested conversation")
	}
	if len(allowed) == 0 {
		return
	}

	if err := d.registry.Subscribe(ctx, sess, allowed); err != nil {
		slog.Warn("ws: bus subscribe", "error", err, "session_id", sess.ID)
	}

	// Messages that arrived while this user was offline still need their
	// delivered tick.
	for _, convID := range allowed {
		d.receipts.ReconcileDelivery(ctx, sess.UserID, convID)
	}
}

func (d *Dispatcher) handleUnsubscribe(ctx context.Context, sess *Session, env *protocol.Envelope) {
	req, err := protocol.DecodeBody[protocol.Unsubscribe](env)
	if err != nil {
		d.sendError(sess, protocol.CodeInvalidMessage, "bad unsubscribe payload")
		return
	}
	if err := d.registry.Unsubscribe(ctx, sess, req.ConversationIDs); err != nil {
		slog.Warn("ws: bus unsubscribe", "error", err, "session_id", sess.ID)
	}
}

func (d *Dispatcher) handleSend(ctx context.Context, sess *Session, env *protocol.Envelope) {
	req, err := protocol.DecodeBody[protocol.SendMessage](env)
	if err != nil {
		d.sendError(sess, protocol.CodeInvalidMessage, "bad send_message payload")
		return
	}

	res, err := d.messages.Send(ctx, sess.UserID, req)
	if err != nil {
		code := protocol.CodeFromError(err)
		metrics.EventErrors.WithLabelValues(code).Inc()
		slog.Warn("ws: send failed", "error", err, "message_id", req.ID, "user_id", sess.UserID)
		d.reply(sess, protocol.EventMessageAck, &protocol.MessageAck{
			ID:     req.ID,
			Status: protocol.AckError,
			Error:  code,
		})
		return
	}

	// Ack directly on the originating socket before publishing, so the
	// sender's ack precedes the bus echo on their other sessions.
	d.reply(sess, protocol.EventMessageAck, &protocol.MessageAck{
		ID:        res.Message.ID,
		Status:    protocol.AckOK,
		Timestamp: &res.Message.CreatedAt,
	})
	d.messages.Announce(ctx, res)
}

func (d *Dispatcher) handleEdit(ctx context.Context, sess *Session, env *protocol.Envelope) {
	req, err := protocol.DecodeBody[protocol.EditMessage](env)
	if err != nil {
		d.sendError(sess, protocol.CodeInvalidMessage, "bad edit_message payload")
		return
	}
	if _, err := d.messages.Edit(ctx, sess.UserID, req); err != nil {
		d.operationError(sess, "edit", err)
	}
}

func (d *Dispatcher) handleDelete(ctx context.Context, sess *Session, env *protocol.Envelope) {
	req, err := protocol.DecodeBody[protocol.DeleteMessage](env)
	if err != nil {
		d.sendError(sess, protocol.CodeInvalidMessage, "bad delete_message payload")
		return
	}
	if _, err := d.messages.Delete(ctx, sess.UserID, req); err != nil {
		d.operationError(sess, "delete", err)
	}
}

func (d *Dispatcher) handleRead(ctx context.Context, sess *Session, env *protocol.Envelope) {
	req, err := protocol.DecodeBody[protocol.Read](env)
	if err != nil {
		d.sendError(sess, protocol.CodeInvalidMessage, "bad read payload")
		return
	}
	if err := d.receipts.Read(ctx, sess.UserID, req); err != nil {
		d.operationError(sess, "read", err)
	}
}

func (d *Dispatcher) handleReact(ctx context.Context, sess *Session, env *protocol.Envelope) {
	req, err := protocol.DecodeBody[protocol.React](env)
	if err != nil {
		d.sendError(sess, protocol.CodeInvalidMessage, "bad react payload")
		return
	}
	if err := d.reactions.React(ctx, sess.UserID, req); err != nil {
		d.operationError(sess, "react", err)
	}
}

func (d *Dispatcher) handleTyping(ctx context.Context, sess *Session, env *protocol.Envelope) {
	req, err := protocol.DecodeBody[protocol.Typing](env)
	if err != nil {
		d.sendError(sess, protocol.CodeInvalidMessage, "bad typing payload")
		return
	}
	if err := d.typing.Relay(ctx, sess.UserID, req); err != nil {
		d.operationError(sess, "typing", err)
	}
}

func (d *Dispatcher) operationError(sess *Session, op string, err error) {
	code := protocol.CodeFromError(err)
	metrics.EventErrors.WithLabelValues(code).Inc()
	slog.Warn("ws: "+op+" failed", "error", err, "session_id", sess.ID, "user_id", sess.UserID)
	d.sendError(sess, code, op+" failed")
}

func (d *Dispatcher) sendError(sess *Session, code, message string) {
	d.reply(sess, protocol.EventError, &protocol.Error{Code: code, Message: message})
}

// reply writes a server event directly to one session, bypassing the bus.
func (d *Dispatcher) reply(sess *Session, eventType protocol.EventType, body any) {
	data, err := protocol.NewEnvelope(eventType, body).Encode()
	if err != nil {
		slog.Error("ws: encode reply", "error", err, "type", eventType)
		return
	}
	metrics.EventsTotal.WithLabelValues(string(eventType), "out").Inc()
	if !sess.TrySend(data) {
		metrics.SlowConsumerCloses.Inc()
		sess.Close(websocket.ClosePolicyViolation, "slow consumer")
	}
}
