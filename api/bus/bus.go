// Package bus is the inter-instance fan-out layer: topic-per-conversation
// pub/sub carrying full server-event frames. It is a live relay only;
// durability belongs to the store.
package bus

import "context"

// TopicPrefix namespaces conversation topics on the shared broker.
const TopicPrefix = "conv."

// ConversationTopic returns the bus topic for a conversation.
func ConversationTopic(conversationID string) string {
	return TopicPrefix + conversationID
}

// Handler receives every frame published on a subscribed topic. It is
// invoked from the bus receive loop, concurrently with connection handlers,
// and must not block.
type Handler func(topic string, payload []byte)

// Bus fans frames out across server instances. Subscribe and Unsubscribe
// are driven by the connection registry: a topic is subscribed iff at least
// one local session wants it.
type Bus interface {
	Publish(ctx context.Context, topic string, payload []byte) error
	Subscribe(ctx context.Context, topics ...string) error
	Unsubscribe(ctx context.Context, topics ...string) error
	Close() error
}
