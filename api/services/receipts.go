package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/pulsechat/pulse/api/domain"
	"github.com/pulsechat/pulse/api/metrics"
	"github.com/pulsechat/pulse/api/protocol"
	"github.com/pulsechat/pulse/api/store"
)

// ReceiptService computes delivery and read timestamps on the server and
// broadcasts them. All transitions ride guarded updates, so repeats are
// no-ops that also skip the broadcast.
type ReceiptService struct {
	store *store.Store
	pub   *Publisher
}

func NewReceiptService(s *store.Store, pub *Publisher) *ReceiptService {
	return &ReceiptService{store: s, pub: pub}
}

// Read handles "conversation foregrounded up to message M": the reader's
// high-water mark advances, and M's read_at is stamped once. A still-null
// delivered_at is backfilled with the same timestamp, since reading
// implies delivery. Earlier messages are covered by last_read_message_id
// only; their rows are not backfilled.
func (svc *ReceiptService) Read(ctx context.Context, readerID string, req *protocol.Read) error {
	if _, err := svc.store.GetMembership(ctx, req.ConversationID, readerID); err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return fmt.Errorf("read: not a member: %w", domain.ErrForbidden)
		}
		return fmt.Errorf("read: %w", err)
	}

	msg, err := svc.store.GetMessage(ctx, req.MessageID)
	if err != nil {
		return fmt.Errorf("read: %w", err)
	}
	if msg.ConversationID != req.ConversationID {
		return fmt.Errorf("read: message not in conversation: %w", domain.ErrNotFound)
	}

	now := time.Now().UTC()
	var advanced bool

	timer := prometheus.NewTimer(metrics.PersistDuration.WithLabelValues("read"))
	err = svc.store.WithTx(ctx, func(ctx context.Context) error {
		if err := svc.store.SetLastRead(ctx, req.ConversationID, readerID, req.MessageID); err != nil {
			return err
		}
		var err error
		advanced, err = svc.store.MarkRead(ctx, req.MessageID, req.ConversationID, readerID, now)
		return err
	})
	timer.ObserveDuration()
	if err != nil {
		return fmt.Errorf("read: %w", err)
	}

	if advanced {
		svc.pub.Broadcast(ctx, req.ConversationID, protocol.EventReadReceipt, &protocol.ReadReceipt{
			ConversationID: req.ConversationID,
			UserID:         readerID,
			MessageID:      req.MessageID,
			ReadAt:         now,
		})
	}
	return nil
}

// ReconcileDelivery heals messages persisted while the recipient was
// offline: on subscribe, every undelivered message addressed to the user
// in a non-channel conversation is marked delivered and announced. The
// sender sees their tick transition without resending anything.
func (svc *ReceiptService) ReconcileDelivery(ctx context.Context, userID, conversationID string) {
	conv, err := svc.store.GetConversation(ctx, conversationID)
	if err != nil || conv.IsChannel() {
		return
	}

	now := time.Now().UTC()
	ids, err := svc.store.MarkConversationDelivered(ctx, conversationID, userID, now)
	if err != nil {
		return
	}
	for _, id := range ids {
		svc.pub.Broadcast(ctx, conversationID, protocol.EventDeliveryReceipt, &protocol.DeliveryReceipt{
			ConversationID: conversationID,
			MessageID:      id,
			DeliveredAt:    now,
		})
	}
}
