package otel

import "go.opentelemetry.io/otel/attribute"

// Standard attribute keys for Pulse services.
const (
	AttrSessionID      = "session.id"
	AttrUserID         = "user.id"
	AttrConversationID = "conversation.id"
	AttrMessageID      = "message.id"
	AttrWSMessageType  = "ws.message_type"
	AttrWSDirection    = "ws.direction"
	AttrBusTopic       = "bus.topic"
)

func SessionID(id string) attribute.KeyValue      { return attribute.String(AttrSessionID, id) }
func UserID(id string) attribute.KeyValue         { return attribute.String(AttrUserID, id) }
func ConversationID(id string) attribute.KeyValue { return attribute.String(AttrConversationID, id) }
func MessageID(id string) attribute.KeyValue      { return attribute.String(AttrMessageID, id) }

func WSMessageType(t string) attribute.KeyValue { return attribute.String(AttrWSMessageType, t) }
func WSDirection(dir string) attribute.KeyValue { return attribute.String(AttrWSDirection, dir) }
func BusTopic(topic string) attribute.KeyValue  { return attribute.String(AttrBusTopic, topic) }
