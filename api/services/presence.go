package services

import (
	"context"
	"log/slog"
	"time"

	"github.com/pulsechat/pulse/api/protocol"
	"github.com/pulsechat/pulse/api/store"
)

// PresenceService derives online state from last_seen_at and broadcasts
// transitions. Nothing here stores a boolean: a crashed instance's
// sessions decay to offline within the presence window on their own.
type PresenceService struct {
	store *store.Store
	pub   *Publisher
}

func NewPresenceService(s *store.Store, pub *Publisher) *PresenceService {
	return &PresenceService{store: s, pub: pub}
}

// Connected bumps last_seen_at and announces the user online on every
// conversation they belong to.
func (svc *PresenceService) Connected(ctx context.Context, userID string) {
	svc.transition(ctx, userID, protocol.PresenceOnline)
}

// Disconnected bumps last_seen_at one final time and announces offline.
// The caller invokes this only when the user's last local session closed;
// other instances holding sessions simply keep the user fresh.
func (svc *PresenceService) Disconnected(ctx context.Context, userID string) {
	svc.transition(ctx, userID, protocol.PresenceOffline)
}

// Seen bumps last_seen_at on authenticated activity without broadcasting.
func (svc *PresenceService) Seen(ctx context.Context, userID string) {
	if err := svc.store.TouchLastSeen(ctx, userID, time.Now().UTC()); err != nil {
		slog.Warn("presence: touch last seen", "error", err, "user_id", userID)
	}
}

func (svc *PresenceService) transition(ctx context.Context, userID, status string) {
	now := time.Now().UTC()
	if err := svc.store.TouchLastSeen(ctx, userID, now); err != nil {
		slog.Warn("presence: touch last seen", "error", err, "user_id", userID)
	}

	convIDs, err := svc.store.ListUserConversationIDs(ctx, userID)
	if err != nil {
		slog.Warn("presence: list conversations", "error", err, "user_id", userID)
		return
	}

	event := &protocol.Presence{UserID: userID, Status: status, LastSeenAt: now}
	for _, convID := range convIDs {
		svc.pub.Broadcast(ctx, convID, protocol.EventPresence, event)
	}
}
