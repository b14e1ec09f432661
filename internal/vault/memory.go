package vault

import (
	"context"
	"errors"
	"sync"
	"time"

	"talent-hub/backend/internal/provider"
)

// MemoryStore is an in-memory Store implementation. Used in tests and when no
// Redis is configured; artifacts do not survive the process.
type MemoryStore struct {
	mu     sync.Mutex
	sealed []byte
	expiry time.Time
	sealer *sealer
	nowF   func() time.Time
}

// NewMemoryStore returns an in-memory Store using the given 32-byte seal key.
func NewMemoryStore(sealKey []byte) (*MemoryStore, error) {
	s, err := newSealer(sealKey)
	if err != nil {
		return nil, err
	}
	return &MemoryStore{
		sealer: s,
		nowF:   func() time.Time { return time.Now().UTC() },
	}, nil
}

// Store replaces the persisted artifacts with sess.
func (m *MemoryStore) Store(ctx context.Context, sess *provider.Session) error {
	if sess == nil {
		return errors.New("vault: nil session")
	}
	sealed, err := m.sealer.seal(sess)
	if err != nil {
		return err
	}
	now := m.nowF()
	m.mu.Lock()
	m.sealed = sealed
	m.expiry = now.Add(sessionTTL(sess, now))
	m.mu.Unlock()
	return nil
}

// Get returns the persisted artifacts, or nil when nothing is stored or the
// stored artifacts have expired.
func (m *MemoryStore) Get(ctx context.Context) (*provider.Session, error) {
	m.mu.Lock()
	sealed, expiry := m.sealed, m.expiry
	m.mu.Unlock()
	if sealed == nil {
		return nil, nil
	}
	if !expiry.After(m.nowF()) {
		_ = m.Wipe(ctx)
		return nil, nil
	}
	return m.sealer.open(sealed)
}

// Wipe removes any persisted artifacts. Idempotent.
func (m *MemoryStore) Wipe(ctx context.Context) error {
	m.mu.Lock()
	m.sealed = nil
	m.expiry = time.Time{}
	m.mu.Unlock()
	return nil
}
