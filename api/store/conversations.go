package store

import (
	"context"
	"fmt"

	"github.com/pulsechat/pulse/api/domain"
)

// CreateConversation inserts a new conversation. Membership rows are added
// separately so callers control the initial roster inside one transaction.
func (s *Store) CreateConversation(ctx context.Context, conv *domain.Conversation) error {
	query := `
		INSERT INTO conversations (id, kind, name, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5)`

	_, err := s.conn(ctx).Exec(ctx, query,
		conv.ID, conv.Kind, conv.Name, conv.CreatedAt, conv.UpdatedAt)
	if err != nil {
		if isCheckViolation(err) {
			return fmt.Errorf("create conversation: bad kind %q: %w", conv.Kind, domain.ErrInvalid)
		}
		return fmt.Errorf("create conversation: %w", err)
	}
	return nil
}

// GetConversation retrieves a conversation by ID.
func (s *Store) GetConversation(ctx context.Context, id string) (*domain.Conversation, error) {
	query := `
		SELECT id, kind, name, created_at, updated_at
		FROM conversations
		WHERE id = $1`

	conv := &domain.Conversation{}
	err := s.conn(ctx).QueryRow(ctx, query, id).Scan(
		&conv.ID, &conv.Kind, &conv.Name, &conv.CreatedAt, &conv.UpdatedAt)
	if err != nil {
		return nil, WrapNotFound("get conversation", err)
	}
	return conv, nil
}
