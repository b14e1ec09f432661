package vault

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"talent-hub/backend/internal/provider"
)

// RedisStore is a Redis-backed Store. The sealed artifacts live under a single
// key with a TTL from the access token's expiry, so abandoned sessions age out
// on their own.
type RedisStore struct {
	client *redis.Client
	sealer *sealer
	key    string
	nowF   func() time.Time
}

// NewRedisStore returns a Store writing sealed artifacts under key using the
// given 32-byte seal key.
func NewRedisStore(client *redis.Client, key string, sealKey []byte) (*RedisStore, error) {
	s, err := newSealer(sealKey)
	if err != nil {
		return nil, err
	}
	if key == "" {
		key = "session:artifacts"
	}
	return &RedisStore{
		client: client,
		sealer: s,
		key:    key,
		nowF:   func() time.Time { return time.Now().UTC() },
	}, nil
}

// Store replaces the persisted artifacts with sess.
func (r *RedisStore) Store(ctx context.Context, sess *provider.Session) error {
	if sess == nil {
		return errors.New("vault: nil session")
	}
	sealed, err := r.sealer.seal(sess)
	if err != nil {
		return fmt.Errorf("vault: seal: %w", err)
	}
	return r.client.Set(ctx, r.key, sealed, sessionTTL(sess, r.nowF())).Err()
}

// Get returns the persisted artifacts, or nil when nothing is stored.
func (r *RedisStore) Get(ctx context.Context) (*provider.Session, error) {
	sealed, err := r.client.Get(ctx, r.key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return r.sealer.open(sealed)
}

// Wipe removes any persisted artifacts. Idempotent.
func (r *RedisStore) Wipe(ctx context.Context) error {
	return r.client.Del(ctx, r.key).Err()
}
