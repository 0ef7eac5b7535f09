package store

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"

	"github.com/pulsechat/pulse/api/domain"
)

// newInviteValue returns a random 128-bit token as hex.
func newInviteValue() string {
	var buf [16]byte
	if _, err := rand.Read(buf[:]); err != nil {
		panic("invite token generation failed: " + err.Error())
	}
	return hex.EncodeToString(buf[:])
}

// EnsureInviteToken returns the conversation's invite token, minting one on
// first use. The token is constant per conversation: concurrent callers all
// observe the same value.
func (s *Store) EnsureInviteToken(ctx context.Context, conversationID string) (*domain.InviteToken, error) {
	query := `
		INSERT INTO invite_tokens (conversation_id, token, created_at)
		VALUES ($1, $2, now())
		ON CONFLICT (conversation_id) DO UPDATE
		SET conversation_id = EXCLUDED.conversation_id
		RETURNING token, created_at`

	invite := &domain.InviteToken{ConversationID: conversationID}
	err := s.conn(ctx).QueryRow(ctx, query, conversationID, newInviteValue()).Scan(
		&invite.Token, &invite.CreatedAt)
	if err != nil {
		if isFKViolation(err) {
			return nil, fmt.Errorf("ensure invite token: %w", domain.ErrNotFound)
		}
		return nil, fmt.Errorf("ensure invite token: %w", err)
	}
	return invite, nil
}

// GetInviteToken resolves a token back to its conversation.
func (s *Store) GetInviteToken(ctx context.Context, token string) (*domain.InviteToken, error) {
	query := `
		SELECT conversation_id, token, created_at
		FROM invite_tokens
		WHERE token = $1`

	invite := &domain.InviteToken{}
	err := s.conn(ctx).QueryRow(ctx, query, token).Scan(
		&invite.ConversationID, &invite.Token, &invite.CreatedAt)
	if err != nil {
		return nil, WrapNotFound("get invite token", err)
	}
	return invite, nil
}
