// Package auth is the gate at the socket edge: it verifies the bearer
// credential presented at connect time and binds the resulting identity to
// the session. Per-operation authorisation stays with the services, which
// check membership against the store.
package auth

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/pulsechat/pulse/api/domain"
)

// Gate verifies HS256 access tokens. The token travels as a query parameter
// on the WebSocket upgrade because browsers cannot set headers there.
type Gate struct {
	secret []byte
	issuer string
	ttl    time.Duration
}

func NewGate(secret, issuer string, accessTTL time.Duration) *Gate {
	return &Gate{secret: []byte(secret), issuer: issuer, ttl: accessTTL}
}

// IssueAccessToken signs a short-lived access token for userID. Token
// issuance endpoints live with the HTTP collaborator; this is the signing
// half it shares with the gate.
func (g *Gate) IssueAccessToken(userID string, now time.Time) (string, error) {
	claims := jwt.RegisteredClaims{
		Subject:   userID,
		Issuer:    g.issuer,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(g.ttl)),
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(g.secret)
	if err != nil {
		return "", fmt.Errorf("sign access token: %w", err)
	}
	return token, nil
}

// Verify checks signature, expiry, and issuer, returning the authenticated
// user ID. Every failure maps to domain.ErrUnauthorized; the caller closes
// the session with code 4001.
func (g *Gate) Verify(tokenString string) (string, error) {
	if tokenString == "" {
		return "", fmt.Errorf("missing credential: %w", domain.ErrUnauthorized)
	}

	token, err := jwt.ParseWithClaims(tokenString, &jwt.RegisteredClaims{},
		func(t *jwt.Token) (any, error) { return g.secret, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(g.issuer),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		return "", fmt.Errorf("invalid credential: %w", domain.ErrUnauthorized)
	}

	claims, ok := token.Claims.(*jwt.RegisteredClaims)
	if !ok || claims.Subject == "" {
		return "", fmt.Errorf("invalid credential: no subject: %w", domain.ErrUnauthorized)
	}
	return claims.Subject, nil
}

// NewRefreshToken mints an opaque refresh token and the digest stored in
// its place. The raw value is returned exactly once.
func NewRefreshToken() (raw, digest string, err error) {
	var buf [32]byte
	if _, err := rand.Read(buf[:]); err != nil {
		return "", "", fmt.Errorf("generate refresh token: %w", err)
	}
	raw = hex.EncodeToString(buf[:])
	return raw, HashRefreshToken(raw), nil
}

// HashRefreshToken digests a presented refresh token for store lookup.
func HashRefreshToken(raw string) string {
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}
