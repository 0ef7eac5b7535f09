package services

import (
	"context"
	"errors"
	"fmt"
	"time"
	"unicode/utf8"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/pulsechat/pulse/api/domain"
	"github.com/pulsechat/pulse/api/metrics"
	"github.com/pulsechat/pulse/api/protocol"
	"github.com/pulsechat/pulse/api/store"
)

// maxEmojiLength allows multi-codepoint emoji sequences without letting
// arbitrary strings through.
const maxEmojiLength = 32

// ReactionService toggles per-user emoji reactions. One reaction per
// (message, user); a new emoji replaces the old one, null removes it.
type ReactionService struct {
	store *store.Store
	pub   *Publisher
}

func NewReactionService(s *store.Store, pub *Publisher) *ReactionService {
	return &ReactionService{store: s, pub: pub}
}

// React upserts or removes the caller's reaction and broadcasts a single
// reaction_updated. Removing a reaction that does not exist broadcasts
// nothing.
func (svc *ReactionService) React(ctx context.Context, userID string, req *protocol.React) error {
	if req.Emoji != nil {
		if *req.Emoji == "" || len(*req.Emoji) > maxEmojiLength || !utf8.ValidString(*req.Emoji) {
			return fmt.Errorf("react: bad emoji: %w", domain.ErrInvalid)
		}
	}

	msg, err := svc.store.GetMessage(ctx, req.MessageID)
	if err != nil {
		return fmt.Errorf("react: %w", err)
	}
	if _, err := svc.store.GetMembership(ctx, msg.ConversationID, userID); err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return fmt.Errorf("react: not a member: %w", domain.ErrForbidden)
		}
		return fmt.Errorf("react: %w", err)
	}

	timer := prometheus.NewTimer(metrics.PersistDuration.WithLabelValues("react"))
	defer timer.ObserveDuration()

	if req.Emoji == nil {
		removed, err := svc.store.RemoveReaction(ctx, req.MessageID, userID)
		if err != nil {
			return fmt.Errorf("react: %w", err)
		}
		if !removed {
			return nil
		}
	} else {
		err := svc.store.UpsertReaction(ctx, &domain.Reaction{
			MessageID: req.MessageID,
			UserID:    userID,
			Emoji:     *req.Emoji,
			CreatedAt: time.Now().UTC(),
		})
		if err != nil {
			return fmt.Errorf("react: %w", err)
		}
	}

	svc.pub.Broadcast(ctx, msg.ConversationID, protocol.EventReactionUpdated, &protocol.ReactionUpdated{
		MessageID:      req.MessageID,
		ConversationID: msg.ConversationID,
		UserID:         userID,
		Emoji:          req.Emoji,
	})
	return nil
}
