// Package vault stores local session artifacts (provider tokens). Artifacts
// are sealed with XChaCha20-Poly1305 before persistence so raw token material
// never reaches the backing store. Wipe is idempotent; a credential-issue
// error must be able to call it even when nothing is stored.
package vault

import (
	"context"
	"crypto/rand"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/chacha20poly1305"

	"talent-hub/backend/internal/authevent"
	"talent-hub/backend/internal/provider"
)

// Store persists the session artifacts of the single active session.
type Store interface {
	// Store replaces the persisted artifacts with sess.
	Store(ctx context.Context, sess *provider.Session) error
	// Get returns the persisted artifacts, or nil when nothing is stored.
	Get(ctx context.Context) (*provider.Session, error)
	// Wipe removes any persisted artifacts. Safe to call when none exist.
	Wipe(ctx context.Context) error
}

// artifacts is the sealed JSON payload.
type artifacts struct {
	AccessToken  string                    `json:"access_token"`
	RefreshToken string                    `json:"refresh_token"`
	ExpiresAt    time.Time                 `json:"expires_at"`
	User         *authevent.SessionPayload `json:"user,omitempty"`
}

// sealer encrypts and decrypts artifact payloads.
type sealer struct {
	key []byte
}

// newSealer returns a sealer for the given 32-byte key.
func newSealer(key []byte) (*sealer, error) {
	if len(key) != chacha20poly1305.KeySize {
		return nil, fmt.Errorf("vault: seal key must be %d bytes, got %d", chacha20poly1305.KeySize, len(key))
	}
	return &sealer{key: key}, nil
}

func (s *sealer) seal(sess *provider.Session) ([]byte, error) {
	plain, err := json.Marshal(artifacts{
		AccessToken:  sess.AccessToken,
		RefreshToken: sess.RefreshToken,
		ExpiresAt:    sess.ExpiresAt,
		User:         sess.User,
	})
	if err != nil {
		return nil, err
	}
	aead, err := chacha20poly1305.NewX(s.key)
	if err != nil {
		return nil, err
	}
	nonce := make([]byte, chacha20poly1305.NonceSizeX)
	if _, err := rand.Read(nonce); err != nil {
		return nil, err
	}
	return aead.Seal(nonce, nonce, plain, nil), nil
}

func (s *sealer) open(sealed []byte) (*provider.Session, error) {
	aead, err := chacha20poly1305.NewX(s.key)
	if err != nil {
		return nil, err
	}
	if len(sealed) < chacha20poly1305.NonceSizeX {
		return nil, errors.New("vault: sealed payload too short")
	}
	nonce, box := sealed[:chacha20poly1305.NonceSizeX], sealed[chacha20poly1305.NonceSizeX:]
	plain, err := aead.Open(nil, nonce, box, nil)
	if err != nil {
		return nil, fmt.Errorf("vault: open artifacts: %w", err)
	}
	var a artifacts
	if err := json.Unmarshal(plain, &a); err != nil {
		return nil, err
	}
	return &provider.Session{
		AccessToken:  a.AccessToken,
		RefreshToken: a.RefreshToken,
		ExpiresAt:    a.ExpiresAt,
		User:         a.User,
	}, nil
}

// sessionTTL derives how long artifacts should live: the access token's exp
// claim when present (read without signature verification; the provider owns
// validation), otherwise the session's ExpiresAt, otherwise a day.
func sessionTTL(sess *provider.Session, now time.Time) time.Duration {
	const fallback = 24 * time.Hour
	expiry := sess.ExpiresAt
	if sess.AccessToken != "" {
		var claims jwt.RegisteredClaims
		if _, _, err := jwt.NewParser().ParseUnverified(sess.AccessToken, &claims); err == nil && claims.ExpiresAt != nil {
			expiry = claims.ExpiresAt.Time
		}
	}
	if expiry.IsZero() {
		return fallback
	}
	ttl := expiry.Sub(now)
	if ttl <= 0 {
		return time.Minute
	}
	return ttl
}
