package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel/trace"

	"github.com/pulsechat/pulse/api/domain"
	"github.com/pulsechat/pulse/api/metrics"
	"github.com/pulsechat/pulse/api/protocol"
	"github.com/pulsechat/pulse/api/store"
	"github.com/pulsechat/pulse/pkg/otel"
)

// MaxContentLength bounds message content; anything larger is rejected
// before it reaches the store.
const MaxContentLength = 8192

// MessageService is the message state machine: validate, persist, advance
// lifecycle timestamps, broadcast.
type MessageService struct {
	store *store.Store
	pub   *Publisher
}

func NewMessageService(s *store.Store, pub *Publisher) *MessageService {
	return &MessageService{store: s, pub: pub}
}

// SendResult carries a persisted send to the announce step. Wire is nil on
// an idempotent retry, which also skips the broadcast.
type SendResult struct {
	Message      *domain.Message
	Conversation *domain.Conversation
	Wire         *protocol.Message
	Inserted     bool
}

// Send validates and persists a message keyed on its client-chosen id.
// Retries with the same id return the canonical created_at and do not
// insert a second row. The caller acks on the originating socket before
// invoking Announce, so the sender's ack always precedes the bus echo.
func (svc *MessageService) Send(ctx context.Context, senderID string, req *protocol.SendMessage) (*SendResult, error) {
	ctx, span := otel.Tracer("pulse-api").Start(ctx, "message.send",
		trace.WithAttributes(
			otel.MessageID(req.ID),
			otel.ConversationID(req.ConversationID),
			otel.UserID(senderID),
		))
	defer span.End()

	if err := validateSend(req); err != nil {
		return nil, err
	}

	membership, err := svc.requireMembership(ctx, req.ConversationID, senderID)
	if err != nil {
		return nil, err
	}
	conv, err := svc.store.GetConversation(ctx, req.ConversationID)
	if err != nil {
		return nil, fmt.Errorf("send: %w", err)
	}
	if conv.IsChannel() && membership.Role != domain.MemberRoleAdmin {
		return nil, fmt.Errorf("send: only admins post to channels: %w", domain.ErrForbidden)
	}

	if req.ReplyToID != nil {
		replyTo, err := svc.store.GetMessage(ctx, *req.ReplyToID)
		if err != nil {
			return nil, fmt.Errorf("send: reply target: %w", err)
		}
		if replyTo.ConversationID != req.ConversationID {
			return nil, fmt.Errorf("send: reply target in different conversation: %w", domain.ErrNotFound)
		}
	}

	msg := &domain.Message{
		ID:             req.ID,
		ConversationID: req.ConversationID,
		SenderID:       senderID,
		Kind:           req.Type,
		Content:        req.Content,
		ReplyToID:      req.ReplyToID,
		CreatedAt:      time.Now().UTC(),
	}

	var inserted bool
	timer := prometheus.NewTimer(metrics.PersistDuration.WithLabelValues("send"))
	err = svc.store.WithTx(ctx, func(ctx context.Context) error {
		var err error
		inserted, err = svc.store.InsertMessage(ctx, msg)
		if err != nil {
			return err
		}
		if inserted {
			return svc.store.LinkAttachments(ctx, msg.ID, senderID, req.AttachmentIDs)
		}
		return nil
	})
	timer.ObserveDuration()
	if err != nil {
		return nil, fmt.Errorf("send: %w", err)
	}

	res := &SendResult{Message: msg, Conversation: conv, Inserted: inserted}
	if !inserted {
		return res, nil
	}

	sender, err := svc.store.GetUser(ctx, senderID)
	if err != nil {
		return res, nil // persisted; wire assembly failure must not fail the send
	}
	var attachments []domain.Attachment
	if len(req.AttachmentIDs) > 0 {
		if attachments, err = svc.store.ListMessageAttachments(ctx, msg.ID); err != nil {
			attachments = nil
		}
	}
	res.Wire = protocol.NewMessage(msg, sender, attachments)
	return res, nil
}

// Announce publishes new_message for a fresh insert, then runs the
// delivered transition: if any other member of a non-channel conversation
// is online, delivered_at advances once and a receipt follows. Channels
// never produce delivery receipts.
func (svc *MessageService) Announce(ctx context.Context, res *SendResult) {
	if !res.Inserted || res.Wire == nil {
		return
	}
	svc.pub.Broadcast(ctx, res.Message.ConversationID, protocol.EventNewMessage, res.Wire)

	if res.Conversation.IsChannel() {
		return
	}

	now := time.Now().UTC()
	cutoff := now.Add(-domain.PresenceWindow)
	online, err := svc.store.OtherMemberSeenSince(ctx, res.Message.ConversationID, res.Message.SenderID, cutoff)
	if err != nil || !online {
		return
	}

	advanced, err := svc.store.MarkDelivered(ctx, res.Message.ID, now)
	if err != nil || !advanced {
		return
	}
	svc.pub.Broadcast(ctx, res.Message.ConversationID, protocol.EventDeliveryReceipt, &protocol.DeliveryReceipt{
		ConversationID: res.Message.ConversationID,
		MessageID:      res.Message.ID,
		DeliveredAt:    now,
	})
}

// Edit replaces a text message's content within the edit window. Only the
// sender may edit, and tombstones are immutable.
func (svc *MessageService) Edit(ctx context.Context, userID string, req *protocol.EditMessage) (*protocol.MessageUpdated, error) {
	if req.Content == "" || len(req.Content) > MaxContentLength {
		return nil, fmt.Errorf("edit: bad content: %w", domain.ErrInvalid)
	}

	msg, err := svc.store.GetMessage(ctx, req.ID)
	if err != nil {
		return nil, fmt.Errorf("edit: %w", err)
	}
	if msg.SenderID != userID {
		return nil, fmt.Errorf("edit: not the sender: %w", domain.ErrForbidden)
	}

	now := time.Now().UTC()
	if !msg.EditableAt(now) {
		return nil, fmt.Errorf("edit: window expired or not editable: %w", domain.ErrConflict)
	}

	timer := prometheus.NewTimer(metrics.PersistDuration.WithLabelValues("edit"))
	err = svc.store.EditMessageContent(ctx, req.ID, req.Content, now)
	timer.ObserveDuration()
	if err != nil {
		return nil, fmt.Errorf("edit: %w", err)
	}

	updated := &protocol.MessageUpdated{
		ID:             msg.ID,
		ConversationID: msg.ConversationID,
		Content:        req.Content,
		EditedAt:       now,
	}
	svc.pub.Broadcast(ctx, msg.ConversationID, protocol.EventMessageUpdated, updated)
	return updated, nil
}

// Delete soft-deletes the sender's message. Content becomes inaccessible;
// the row and its lifecycle timestamps persist.
func (svc *MessageService) Delete(ctx context.Context, userID string, req *protocol.DeleteMessage) (*protocol.MessageDeleted, error) {
	msg, err := svc.store.GetMessage(ctx, req.ID)
	if err != nil {
		return nil, fmt.Errorf("delete: %w", err)
	}
	if msg.SenderID != userID {
		return nil, fmt.Errorf("delete: not the sender: %w", domain.ErrForbidden)
	}

	timer := prometheus.NewTimer(metrics.PersistDuration.WithLabelValues("delete"))
	err = svc.store.SoftDeleteMessage(ctx, req.ID, time.Now().UTC())
	timer.ObserveDuration()
	if err != nil {
		return nil, fmt.Errorf("delete: %w", err)
	}

	deleted := &protocol.MessageDeleted{ID: msg.ID, ConversationID: msg.ConversationID}
	svc.pub.Broadcast(ctx, msg.ConversationID, protocol.EventMessageDeleted, deleted)
	return deleted, nil
}

// requireMembership loads the caller's membership, mapping absence to
// FORBIDDEN: non-members learn nothing about a conversation's existence.
func (svc *MessageService) requireMembership(ctx context.Context, conversationID, userID string) (*domain.Membership, error) {
	m, err := svc.store.GetMembership(ctx, conversationID, userID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, fmt.Errorf("not a member of %s: %w", conversationID, domain.ErrForbidden)
		}
		return nil, err
	}
	return m, nil
}

func validateSend(req *protocol.SendMessage) error {
	if _, err := uuid.Parse(req.ID); err != nil {
		return fmt.Errorf("send: id must be a UUID: %w", domain.ErrInvalid)
	}
	if _, err := uuid.Parse(req.ConversationID); err != nil {
		return fmt.Errorf("send: conversation id must be a UUID: %w", domain.ErrInvalid)
	}
	if !domain.ValidMessageKind(req.Type) {
		return fmt.Errorf("send: bad message type %q: %w", req.Type, domain.ErrInvalid)
	}
	hasContent := req.Content != nil && *req.Content != ""
	if req.Content != nil && len(*req.Content) > MaxContentLength {
		return fmt.Errorf("send: content too large: %w", domain.ErrInvalid)
	}
	if req.Type == domain.MessageKindText && !hasContent {
		return fmt.Errorf("send: text requires content: %w", domain.ErrInvalid)
	}
	if !hasContent && len(req.AttachmentIDs) == 0 {
		return fmt.Errorf("send: empty message: %w", domain.ErrInvalid)
	}
	return nil
}
