// Package services implements the operations behind the protocol
// dispatcher: the message state machine, receipts, presence, typing, and
// reactions. Every mutation persists first, then publishes on the fan-out
// bus; broadcast failures are logged and never fail the operation, because
// the persisted row is already the truth of record.
package services

import (
	"context"
	"log/slog"

	"go.opentelemetry.io/otel/trace"

	"github.com/pulsechat/pulse/api/bus"
	"github.com/pulsechat/pulse/api/metrics"
	"github.com/pulsechat/pulse/api/protocol"
	"github.com/pulsechat/pulse/pkg/otel"
)

// Publisher encodes server events and publishes them on the conversation's
// bus topic.
type Publisher struct {
	bus bus.Bus
}

func NewPublisher(b bus.Bus) *Publisher {
	return &Publisher{bus: b}
}

// Broadcast publishes one server event on the conversation topic. Errors
// are logged at Warn: subscribers heal from missed pushes on their next
// fetch, so the operation that persisted the state still succeeds.
func (p *Publisher) Broadcast(ctx context.Context, conversationID string, eventType protocol.EventType, body any) {
	topic := bus.ConversationTopic(conversationID)
	ctx, span := otel.Tracer("pulse-api").Start(ctx, "bus.broadcast",
		trace.WithAttributes(
			otel.ConversationID(conversationID),
			otel.BusTopic(topic),
			otel.WSMessageType(string(eventType)),
			otel.WSDirection("out"),
		))
	defer span.End()

	env := protocol.NewEnvelope(eventType, body)
	data, err := env.Encode()
	if err != nil {
		slog.Error("bus: encode event", "error", err, "type", eventType, "conversation_id", conversationID)
		return
	}

	if err := p.bus.Publish(ctx, topic, data); err != nil {
		slog.Warn("bus: publish failed", "error", err, "type", eventType,
			"conversation_id", conversationID,
			"user_id", otel.UserIDFromContext(ctx),
			"session_id", otel.SessionIDFromContext(ctx))
		return
	}
	metrics.EventsTotal.WithLabelValues(string(eventType), "out").Inc()
}
