package store

import (
	"context"
	"fmt"

	"github.com/pulsechat/pulse/api/domain"
)

// UpsertReaction sets the user's reaction on a message, replacing any prior
// emoji. One reaction per (message, user).
func (s *Store) UpsertReaction(ctx context.Context, r *domain.Reaction) error {
	query := `
		INSERT INTO reactions (message_id, user_id, emoji, created_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (message_id, user_id) DO UPDATE
		SET emoji = EXCLUDED.emoji, created_at = EXCLUDED.created_at`

	_, err := s.conn(ctx).Exec(ctx, query, r.MessageID, r.UserID, r.Emoji, r.CreatedAt)
	if err != nil {
		if isFKViolation(err) {
			return fmt.Errorf("upsert reaction: %w", domain.ErrNotFound)
		}
		return fmt.Errorf("upsert reaction: %w", err)
	}
	return nil
}

// RemoveReaction deletes the user's reaction. Reports whether a row existed
// so callers can skip the broadcast on a no-op removal.
func (s *Store) RemoveReaction(ctx context.Context, messageID, userID string) (bool, error) {
	query := `DELETE FROM reactions WHERE message_id = $1 AND user_id = $2`

	result, err := s.conn(ctx).Exec(ctx, query, messageID, userID)
	if err != nil {
		return false, fmt.Errorf("remove reaction: %w", err)
	}
	return result.RowsAffected() > 0, nil
}

// ListMessageReactions returns all reactions on a message.
func (s *Store) ListMessageReactions(ctx context.Context, messageID string) ([]*domain.Reaction, error) {
	query := `
		SELECT message_id, user_id, emoji, created_at
		FROM reactions
		WHERE message_id = $1
		ORDER BY created_at ASC`

	rows, err := s.conn(ctx).Query(ctx, query, messageID)
	if err != nil {
		return nil, fmt.Errorf("list reactions: %w", err)
	}
	defer rows.Close()

	var reactions []*domain.Reaction
	for rows.Next() {
		r := &domain.Reaction{}
		if err := rows.Scan(&r.MessageID, &r.UserID, &r.Emoji, &r.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan reaction: %w", err)
		}
		reactions = append(reactions, r)
	}
	return reactions, rows.Err()
}
