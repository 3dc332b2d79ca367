package locks

import (
	"context"
	"time"
)

// Locker hands out advisory locks keyed by string. A held lock expires after
// its TTL so a crashed holder cannot wedge a key forever.
type Locker interface {
	// TryAcquire returns ok=false without error when the key is already held.
	TryAcquire(ctx context.Context, key string, ttl time.Duration) (token string, ok bool, err error)
	// Release frees key only if it is still held under token.
	Release(ctx context.Context, key, token string) error
}
