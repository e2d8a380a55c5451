package kv

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Lock is a lease on a key. It expires after its TTL unless released
// earlier, so a crashed holder never blocks later runs for good.
type Lock struct {
	store Store
	key   string
	token []byte
}

// Acquire takes the lock on key for ttl. It returns ErrLocked when another
// holder owns it.
func Acquire(ctx context.Context, store Store, key string, ttl time.Duration) (*Lock, error) {
	token := []byte(uuid.NewString())
	ok, err := store.SetNX(ctx, key, token, ttl)
	if err != nil {
		return nil, fmt.Errorf("acquire lock %s: %w", key, err)
	}
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrLocked, key)
	}
	return &Lock{store: store, key: key, token: token}, nil
}

// Token identifies this holder.
func (l *Lock) Token() string { return string(l.token) }

// Release gives the lock up. It returns ErrLockLost when the lease expired
// and possibly went to another holder.
func (l *Lock) Release(ctx context.Context) error {
	ok, err := l.store.CompareAndDelete(ctx, l.key, l.token)
	if err != nil {
		return fmt.Errorf("release lock %s: %w", l.key, err)
	}
	if !ok {
		return fmt.Errorf("%w: %s", ErrLockLost, l.key)
	}
	return nil
}
