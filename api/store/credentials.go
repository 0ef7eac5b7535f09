package store

import (
	"context"
	"fmt"
	"time"

	"github.com/pulsechat/pulse/api/domain"
	"github.com/pulsechat/pulse/shared/id"
)

// CreateRefreshCredential stores the digest of a freshly issued refresh
// token. The raw token is never persisted.
func (s *Store) CreateRefreshCredential(ctx context.Context, userID, digest string, issuedAt time.Time) (*domain.RefreshCredential, error) {
	cred := &domain.RefreshCredential{
		ID:        id.NewCredential(),
		UserID:    userID,
		TokenHash: digest,
		ExpiresAt: issuedAt.Add(domain.RefreshCredentialTTL),
		CreatedAt: issuedAt,
	}

	query := `
		INSERT INTO refresh_credentials (id, user_id, token_hash, expires_at, created_at)
		VALUES ($1, $2, $3, $4, $5)`

	_, err := s.conn(ctx).Exec(ctx, query,
		cred.ID, cred.UserID, cred.TokenHash, cred.ExpiresAt, cred.CreatedAt)
	if err != nil {
		if isFKViolation(err) {
			return nil, fmt.Errorf("create refresh credential: %w", domain.ErrNotFound)
		}
		return nil, fmt.Errorf("create refresh credential: %w", err)
	}
	return cred, nil
}

// GetRefreshCredentialByDigest resolves a presented token digest to its
// credential. Expired and revoked credentials are indistinguishable from
// absent ones.
func (s *Store) GetRefreshCredentialByDigest(ctx context.Context, digest string, now time.Time) (*domain.RefreshCredential, error) {
	query := `
		SELECT id, user_id, token_hash, expires_at, revoked_at, created_at
		FROM refresh_credentials
		WHERE token_hash = $1 AND revoked_at IS NULL AND expires_at > $2`

	cred := &domain.RefreshCredential{}
	err := s.conn(ctx).QueryRow(ctx, query, digest, now).Scan(
		&cred.ID, &cred.UserID, &cred.TokenHash, &cred.ExpiresAt, &cred.RevokedAt, &cred.CreatedAt)
	if err != nil {
		return nil, WrapNotFound("get refresh credential", err)
	}
	return cred, nil
}

// RevokeRefreshCredential marks a credential revoked. Revoking twice is an
// error so callers can distinguish replay.
func (s *Store) RevokeRefreshCredential(ctx context.Context, credentialID string, revokedAt time.Time) error {
	query := `
		UPDATE refresh_credentials
		SET revoked_at = $2
		WHERE id = $1 AND revoked_at IS NULL`

	result, err := s.conn(ctx).Exec(ctx, query, credentialID, revokedAt)
	if err != nil {
		return fmt.Errorf("revoke refresh credential: %w", err)
	}
	if result.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}
