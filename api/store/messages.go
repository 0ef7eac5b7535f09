package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/pulsechat/pulse/api/domain"
)

const messageColumns = `id, conversation_id, sender_id, kind, content, reply_to_id,
		created_at, edited_at, delivered_at, read_at`

// InsertMessage persists a message keyed on its client-chosen id. Retries
// with the same id land on the existing row: inserted is false, no column
// changes, and msg.CreatedAt is rewritten to the canonical value so the ack
// repeats the first ack's timestamp. A conflicting row owned by a different
// sender or conversation rejects the send.
func (s *Store) InsertMessage(ctx context.Context, msg *domain.Message) (inserted bool, err error) {
	query := `
		INSERT INTO messages (id, conversation_id, sender_id, kind, content, reply_to_id, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (id) DO NOTHING
		RETURNING created_at`

	err = s.conn(ctx).QueryRow(ctx, query,
		msg.ID, msg.ConversationID, msg.SenderID, msg.Kind,
		msg.Content, msg.ReplyToID, msg.CreatedAt).Scan(&msg.CreatedAt)
	if err == nil {
		return true, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		if isFKViolation(err) {
			return false, fmt.Errorf("insert message: missing referenced row: %w", domain.ErrNotFound)
		}
		if isCheckViolation(err) {
			return false, fmt.Errorf("insert message: %w", domain.ErrInvalid)
		}
		return false, fmt.Errorf("insert message: %w", err)
	}

	// Conflict on id. Tombstoned rows still count for idempotency.
	var existingConv, existingSender string
	var existingCreated time.Time
	err = s.conn(ctx).QueryRow(ctx,
		`SELECT conversation_id, sender_id, created_at FROM messages WHERE id = $1`,
		msg.ID).Scan(&existingConv, &existingSender, &existingCreated)
	if err != nil {
		return false, fmt.Errorf("insert message: load existing: %w", err)
	}
	if existingConv != msg.ConversationID || existingSender != msg.SenderID {
		return false, fmt.Errorf("insert message: id reused across sender or conversation: %w", domain.ErrConflict)
	}
	msg.CreatedAt = existingCreated
	return false, nil
}

// GetMessage retrieves a message by ID. Tombstones are not visible.
func (s *Store) GetMessage(ctx context.Context, id string) (*domain.Message, error) {
	query := `
		SELECT ` + messageColumns + `
		FROM messages
		WHERE id = $1 AND deleted_at IS NULL`

	msg := &domain.Message{}
	err := s.conn(ctx).QueryRow(ctx, query, id).Scan(
		&msg.ID, &msg.ConversationID, &msg.SenderID, &msg.Kind, &msg.Content, &msg.ReplyToID,
		&msg.CreatedAt, &msg.EditedAt, &msg.DeliveredAt, &msg.ReadAt)
	if err != nil {
		return nil, WrapNotFound("get message", err)
	}
	return msg, nil
}

// EditMessageContent replaces the content and stamps edited_at. Sender,
// variant, and window checks happen in the service before this runs.
func (s *Store) EditMessageContent(ctx context.Context, id, content string, editedAt time.Time) error {
	query := `
		UPDATE messages
		SET content = $2, edited_at = $3
		WHERE id = $1 AND deleted_at IS NULL`

	result, err := s.conn(ctx).Exec(ctx, query, id, content, editedAt)
	if err != nil {
		return fmt.Errorf("edit message: %w", err)
	}
	if result.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// SoftDeleteMessage turns the row into a tombstone: content is nulled,
// lifecycle timestamps survive.
func (s *Store) SoftDeleteMessage(ctx context.Context, id string, deletedAt time.Time) error {
	query := `
		UPDATE messages
		SET deleted_at = $2, content = NULL
		WHERE id = $1 AND deleted_at IS NULL`

	result, err := s.conn(ctx).Exec(ctx, query, id, deletedAt)
	if err != nil {
		return fmt.Errorf("delete message: %w", err)
	}
	if result.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// MarkDelivered advances delivered_at once. The IS NULL guard makes the
// transition monotonic; callers broadcast a receipt only when it reports true.
func (s *Store) MarkDelivered(ctx context.Context, id string, deliveredAt time.Time) (bool, error) {
	query := `
		UPDATE messages
		SET delivered_at = $2
		WHERE id = $1 AND delivered_at IS NULL AND deleted_at IS NULL`

	result, err := s.conn(ctx).Exec(ctx, query, id, deliveredAt)
	if err != nil {
		return false, fmt.Errorf("mark delivered: %w", err)
	}
	return result.RowsAffected() > 0, nil
}

// MarkRead advances read_at once, backfilling delivered_at with the same
// timestamp when it is still null (reading implies delivery). The sender
// never advances receipts on their own message.
func (s *Store) MarkRead(ctx context.Context, id, conversationID, readerID string, readAt time.Time) (bool, error) {
	query := `
		UPDATE messages
		SET read_at = $4, delivered_at = COALESCE(delivered_at, $4)
		WHERE id = $1 AND conversation_id = $2 AND sender_id <> $3
		  AND read_at IS NULL AND deleted_at IS NULL`

	result, err := s.conn(ctx).Exec(ctx, query, id, conversationID, readerID, readAt)
	if err != nil {
		return false, fmt.Errorf("mark read: %w", err)
	}
	return result.RowsAffected() > 0, nil
}

// MarkConversationDelivered stamps delivered_at on every undelivered message
// addressed to recipientID in the conversation and returns the affected IDs.
// Heals messages that were persisted while the recipient was offline.
func (s *Store) MarkConversationDelivered(ctx context.Context, conversationID, recipientID string, deliveredAt time.Time) ([]string, error) {
	query := `
		UPDATE messages
		SET delivered_at = $3
		WHERE conversation_id = $1 AND sender_id <> $2
		  AND delivered_at IS NULL AND deleted_at IS NULL
		RETURNING id`

	rows, err := s.conn(ctx).Query(ctx, query, conversationID, recipientID, deliveredAt)
	if err != nil {
		return nil, fmt.Errorf("mark conversation delivered: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan delivered id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
