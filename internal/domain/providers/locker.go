package providers

import (
	"context"
	"errors"
	"time"
)

// ErrLockNotAcquired is returned when another holder owns the lock.
var ErrLockNotAcquired = errors.New("lock not acquired")

// Lock is a held lease. Release is safe to call more than once.
type Lock interface {
	Release(ctx context.Context) error
}

// Locker grants leases that are exclusive across service instances.
type Locker interface {
	TryAcquire(ctx context.Context, key string, ttl time.Duration) (Lock, error)
}
