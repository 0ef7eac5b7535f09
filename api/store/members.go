package store

import (
	"context"
	"fmt"
	"time"

	"github.com/pulsechat/pulse/api/domain"
)

// AddMember inserts a membership row. Adding an existing member is a no-op.
func (s *Store) AddMember(ctx context.Context, m *domain.Membership) error {
	query := `
		INSERT INTO conversation_members (conversation_id, user_id, role, joined_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (conversation_id, user_id) DO NOTHING`

	_, err := s.conn(ctx).Exec(ctx, query,
		m.ConversationID, m.UserID, m.Role, m.JoinedAt)
	if err != nil {
		if isFKViolation(err) {
			return fmt.Errorf("add member: %w", domain.ErrNotFound)
		}
		return fmt.Errorf("add member: %w", err)
	}
	return nil
}

// GetMembership retrieves the membership of user in conversation. Every
// authorisation decision on the message path starts here.
func (s *Store) GetMembership(ctx context.Context, conversationID, userID string) (*domain.Membership, error) {
	query := `
		SELECT conversation_id, user_id, role, last_read_message_id, joined_at
		FROM conversation_members
		WHERE conversation_id = $1 AND user_id = $2`

	m := &domain.Membership{}
	err := s.conn(ctx).QueryRow(ctx, query, conversationID, userID).Scan(
		&m.ConversationID, &m.UserID, &m.Role, &m.LastReadMessageID, &m.JoinedAt)
	if err != nil {
		return nil, WrapNotFound("get membership", err)
	}
	return m, nil
}

// SetLastRead records the reader's high-water mark for a conversation.
func (s *Store) SetLastRead(ctx context.Context, conversationID, userID, messageID string) error {
	query := `
		UPDATE conversation_members
		SET last_read_message_id = $3
		WHERE conversation_id = $1 AND user_id = $2`

	result, err := s.conn(ctx).Exec(ctx, query, conversationID, userID, messageID)
	if err != nil {
		return fmt.Errorf("set last read: %w", err)
	}
	if result.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// OtherMemberSeenSince reports whether any member besides excludeUserID has
// been seen after the cutoff. Drives the delivered transition: presence is
// read from last_seen_at so members attached to other instances count.
func (s *Store) OtherMemberSeenSince(ctx context.Context, conversationID, excludeUserID string, cutoff time.Time) (bool, error) {
	query := `
		SELECT EXISTS (
			SELECT 1
			FROM conversation_members cm
			JOIN users u ON u.id = cm.user_id
			WHERE cm.conversation_id = $1 AND cm.user_id <> $2 AND u.last_seen_at > $3
		)`

	var online bool
	err := s.conn(ctx).QueryRow(ctx, query, conversationID, excludeUserID, cutoff).Scan(&online)
	if err != nil {
		return false, fmt.Errorf("other member seen since: %w", err)
	}
	return online, nil
}

// ListUserConversationIDs returns the IDs of every conversation the user
// belongs to. Presence transitions fan out to each of them.
func (s *Store) ListUserConversationIDs(ctx context.Context, userID string) ([]string, error) {
	query := `SELECT conversation_id FROM conversation_members WHERE user_id = $1`

	rows, err := s.conn(ctx).Query(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("list user conversations: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan conversation id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
