package store

import (
	"context"
	"fmt"
	"time"

	"github.com/pulsechat/pulse/api/domain"
)

// CreateUser inserts a user at registration time.
func (s *Store) CreateUser(ctx context.Context, u *domain.User) error {
	query := `
		INSERT INTO users (id, username, display_name, avatar_url, last_seen_at, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)`

	_, err := s.conn(ctx).Exec(ctx, query,
		u.ID, u.Username, u.DisplayName, u.AvatarURL, u.LastSeenAt, u.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("create user: username taken: %w", domain.ErrConflict)
		}
		return fmt.Errorf("create user: %w", err)
	}
	return nil
}

// GetUser retrieves a user by ID.
func (s *Store) GetUser(ctx context.Context, id string) (*domain.User, error) {
	query := `
		SELECT id, username, display_name, avatar_url, last_seen_at, created_at
		FROM users
		WHERE id = $1`

	u := &domain.User{}
	err := s.conn(ctx).QueryRow(ctx, query, id).Scan(
		&u.ID, &u.Username, &u.DisplayName, &u.AvatarURL, &u.LastSeenAt, &u.CreatedAt)
	if err != nil {
		return nil, WrapNotFound("get user", err)
	}
	return u, nil
}

// TouchLastSeen advances last_seen_at to seenAt. GREATEST keeps the column
// monotonic when instances race.
func (s *Store) TouchLastSeen(ctx context.Context, userID string, seenAt time.Time) error {
	query := `UPDATE users SET last_seen_at = GREATEST(last_seen_at, $2) WHERE id = $1`

	result, err := s.conn(ctx).Exec(ctx, query, userID, seenAt)
	if err != nil {
		return fmt.Errorf("touch last seen: %w", err)
	}
	if result.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}
