package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/pulsechat/pulse/api/domain"
	"github.com/pulsechat/pulse/api/store"
)

// SubscriptionService authorises subscribe requests against the store.
// The registry owns the actual topic bookkeeping; this service only
// answers "may this user listen to these conversations".
type SubscriptionService struct {
	store *store.Store
}

func NewSubscriptionService(s *store.Store) *SubscriptionService {
	return &SubscriptionService{store: s}
}

// Authorize splits the requested conversation IDs into those the user is a
// member of and those they are not. Malformed IDs fail the whole request.
func (svc *SubscriptionService) Authorize(ctx context.Context, userID string, conversationIDs []string) (allowed, denied []string, err error) {
	for _, convID := range conversationIDs {
		if _, err := uuid.Parse(convID); err != nil {
			return nil, nil, fmt.Errorf("subscribe: conversation id must be a UUID: %w", domain.ErrInvalid)
		}
	}

	for _, convID := range conversationIDs {
		_, err := svc.store.GetMembership(ctx, convID, userID)
		switch {
		case err == nil:
			allowed = append(allowed, convID)
		case errors.Is(err, domain.ErrNotFound):
			denied = append(denied, convID)
		default:
			return nil, nil, fmt.Errorf("subscribe: %w", err)
		}
	}
	return allowed, denied, nil
}
