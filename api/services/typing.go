package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/time/rate"

	"github.com/pulsechat/pulse/api/domain"
	"github.com/pulsechat/pulse/api/protocol"
	"github.com/pulsechat/pulse/api/store"
)

const typingCacheSize = 4096

// TypingService relays transient typing events. Nothing is persisted;
// clients expire a peer's indicator locally after a few seconds of
// silence.
type TypingService struct {
	store   *store.Store
	pub     *Publisher
	senders *lru.Cache[string, *rate.Limiter]
	every   rate.Limit
}

// NewTypingService relays at most one typing event per interval per
// (user, conversation). Clients debounce to the same cadence, so excess
// events only come from misbehaving clients and are dropped silently.
func NewTypingService(s *store.Store, pub *Publisher, interval time.Duration) *TypingService {
	senders, _ := lru.New[string, *rate.Limiter](typingCacheSize) // size is a positive constant
	return &TypingService{store: s, pub: pub, senders: senders, every: rate.Every(interval)}
}

func (svc *TypingService) allow(userID, conversationID string) bool {
	key := userID + "/" + conversationID
	limiter, ok := svc.senders.Get(key)
	if !ok {
		limiter = rate.NewLimiter(svc.every, 1)
		svc.senders.Add(key, limiter)
	}
	return limiter.Allow()
}

// Relay forwards a typing event on the conversation topic with the sender
// identity filled in by the server. The throttle runs before the membership
// check so a flood never reaches the store.
func (svc *TypingService) Relay(ctx context.Context, userID string, req *protocol.Typing) error {
	if !svc.allow(userID, req.ConversationID) {
		return nil
	}

	if _, err := svc.store.GetMembership(ctx, req.ConversationID, userID); err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return fmt.Errorf("typing: not a member: %w", domain.ErrForbidden)
		}
		return fmt.Errorf("typing: %w", err)
	}

	svc.pub.Broadcast(ctx, req.ConversationID, protocol.EventTyping, &protocol.Typing{
		ConversationID: req.ConversationID,
		UserID:         userID,
		IsTyping:       req.IsTyping,
	})
	return nil
}
