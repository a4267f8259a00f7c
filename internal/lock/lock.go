// Package lock provides mutual exclusion keyed by an arbitrary string.
// Holders of different keys never block each other.
package lock

import (
	"context"
	"errors"
)

// ErrNotAcquired is returned when a lock could not be obtained before the
// context ended.
var ErrNotAcquired = errors.New("lock not acquired")

// Unlock releases a held lock. It is safe to call once.
type Unlock func()

// Locker grants exclusive sections per key.
type Locker interface {
	Lock(ctx context.Context, key string) (Unlock, error)
}
