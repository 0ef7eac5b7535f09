package server

import (
	"context"
	"log/slog"
	"strings"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/pulsechat/pulse/api/bus"
	"github.com/pulsechat/pulse/api/metrics"
)

// Registry is the per-instance index of live sessions: by user and by
// subscribed conversation. It drives the bus topic set — a topic is
// subscribed iff at least one local session wants it — and it never
// persists anything.
type Registry struct {
	bus bus.Bus

	mu     sync.RWMutex
	byUser map[string]map[*Session]struct{}
	byConv map[string]map[*Session]struct{}
	topics map[*Session]map[string]struct{}
}

func NewRegistry(b bus.Bus) *Registry {
	return &Registry{
		bus:    b,
		byUser: make(map[string]map[*Session]struct{}),
		byConv: make(map[string]map[*Session]struct{}),
		topics: make(map[*Session]map[string]struct{}),
	}
}

// Attach registers a session after auth succeeds.
func (r *Registry) Attach(s *Session) {
	r.mu.Lock()
	if r.byUser[s.UserID] == nil {
		r.byUser[s.UserID] = make(map[*Session]struct{})
	}
	r.byUser[s.UserID][s] = struct{}{}
	r.topics[s] = make(map[string]struct{})
	r.mu.Unlock()

	metrics.ConnectionsActive.Inc()
	slog.Info("ws: session attached", "session_id", s.ID, "user_id", s.UserID)
}

// Subscribe adds the session to each conversation's local index. The first
// local subscriber to a topic opens the bus subscription; the bus call runs
// outside the lock.
func (r *Registry) Subscribe(ctx context.Context, s *Session, conversationIDs []string) error {
	var newTopics []string

	r.mu.Lock()
	for _, convID := range conversationIDs {
		if r.byConv[convID] == nil {
			r.byConv[convID] = make(map[*Session]struct{})
			newTopics = append(newTopics, bus.ConversationTopic(convID))
		}
		r.byConv[convID][s] = struct{}{}
		if r.topics[s] != nil {
			r.topics[s][convID] = struct{}{}
		}
	}
	r.mu.Unlock()

	metrics.SubscriptionsActive.Add(float64(len(newTopics)))
	return r.bus.Subscribe(ctx, newTopics...)
}

// Unsubscribe removes the session from each conversation's local index and
// releases bus topics whose local set became empty.
func (r *Registry) Unsubscribe(ctx context.Context, s *Session, conversationIDs []string) error {
	emptied := r.remove(s, conversationIDs)
	metrics.SubscriptionsActive.Sub(float64(len(emptied)))
	return r.bus.Unsubscribe(ctx, emptied...)
}

// Detach removes the session from both indices on close. It reports
// whether this was the user's last local session, in which case the caller
// broadcasts offline presence; remote instances reach the same conclusion
// from last_seen decay.
func (r *Registry) Detach(ctx context.Context, s *Session) (lastLocalSession bool) {
	r.mu.Lock()
	var convIDs []string
	for convID := range r.topics[s] {
		convIDs = append(convIDs, convID)
	}
	r.mu.Unlock()

	emptied := r.remove(s, convIDs)

	r.mu.Lock()
	delete(r.topics, s)
	if sessions, ok := r.byUser[s.UserID]; ok {
		delete(sessions, s)
		if len(sessions) == 0 {
			delete(r.byUser, s.UserID)
			lastLocalSession = true
		}
	}
	r.mu.Unlock()

	metrics.ConnectionsActive.Dec()
	metrics.SubscriptionsActive.Sub(float64(len(emptied)))
	if err := r.bus.Unsubscribe(ctx, emptied...); err != nil {
		slog.Warn("ws: bus unsubscribe on detach", "error", err, "session_id", s.ID)
	}
	slog.Info("ws: session detached", "session_id", s.ID, "user_id", s.UserID)
	return lastLocalSession
}

// remove deletes the session from the given conversation buckets and
// returns the topics whose local set became empty.
func (r *Registry) remove(s *Session, conversationIDs []string) []string {
	var emptied []string

	r.mu.Lock()
	for _, convID := range conversationIDs {
		subs, ok := r.byConv[convID]
		if !ok {
			continue
		}
		delete(subs, s)
		if len(subs) == 0 {
			delete(r.byConv, convID)
			emptied = append(emptied, bus.ConversationTopic(convID))
		}
		if r.topics[s] != nil {
			delete(r.topics[s], convID)
		}
	}
	r.mu.Unlock()

	return emptied
}

// IsUserLocallyOnline reports whether the user has a session on this
// instance. Cross-instance presence is derived from last_seen_at instead.
func (r *Registry) IsUserLocallyOnline(userID string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byUser[userID]) > 0
}

// Deliver fans a bus frame out to every local subscriber of its topic.
// Runs on the bus receive goroutine; writes go through the per-session
// queues, and a full queue closes the session as a slow consumer.
func (r *Registry) Deliver(topic string, payload []byte) {
	convID := strings.TrimPrefix(topic, bus.TopicPrefix)

	r.mu.RLock()
	sessions := make([]*Session, 0, len(r.byConv[convID]))
	for s := range r.byConv[convID] {
		sessions = append(sessions, s)
	}
	r.mu.RUnlock()

	for _, s := range sessions {
		if !s.TrySend(payload) {
			metrics.SlowConsumerCloses.Inc()
			slog.Warn("ws: send queue overflow", "session_id", s.ID, "user_id", s.UserID)
			s.Close(websocket.ClosePolicyViolation, "slow consumer")
		}
	}
}

// CloseAll closes every attached session; used on graceful shutdown.
func (r *Registry) CloseAll(code int, reason string) {
	r.mu.RLock()
	var sessions []*Session
	for _, set := range r.byUser {
		for s := range set {
			sessions = append(sessions, s)
		}
	}
	r.mu.RUnlock()

	for _, s := range sessions {
		s.Close(code, reason)
	}
}
