// Package limiter implements fixed-window request throttling over a shared
// atomic counter store. All state lives in the store, so any number of
// service instances enforce one shared limit.
package limiter

import (
	"context"
	"fmt"
	"time"
)

// CounterStore is the atomic counter primitive the limiter runs on. The
// increment must return the post-increment count in one round trip, and
// must set the expiry only when the key is first created in a window.
type CounterStore interface {
	IncrementWithExpiry(ctx context.Context, key string, ttl time.Duration) (int64, error)
	TTL(ctx context.Context, key string) (time.Duration, error)
}

type Decision struct {
	Allowed    bool
	Remaining  int64
	RetryAfter time.Duration
}

type FixedWindow struct {
	Limit     int64
	Window    time.Duration
	KeyPrefix string

	// FailOpen controls behavior on counter-store failure: true lets the
	// request through unthrottled, false rejects it. Deployment policy.
	FailOpen bool

	store CounterStore
}

func NewFixedWindow(store CounterStore, limit int64, window time.Duration, keyPrefix string, failOpen bool) *FixedWindow {
	return &FixedWindow{
		Limit:     limit,
		Window:    window,
		KeyPrefix: keyPrefix,
		FailOpen:  failOpen,
		store:     store,
	}
}

// Allow counts one request for the discriminator (typically a client
// address) and decides whether it fits in the current window.
func (l *FixedWindow) Allow(ctx context.Context, discriminator string) (Decision, error) {
	key := fmt.Sprintf("%s:%s", l.KeyPrefix, discriminator)

	count, err := l.store.IncrementWithExpiry(ctx, key, l.Window)
	if err != nil {
		if l.FailOpen {
			return Decision{Allowed: true, Remaining: l.Limit}, nil
		}
		return Decision{}, fmt.Errorf("rate limit counter: %w", err)
	}

	if count > l.Limit {
		retryAfter, ttlErr := l.store.TTL(ctx, key)
		if ttlErr != nil || retryAfter <= 0 {
			retryAfter = l.Window
		}
		return Decision{Allowed: false, Remaining: 0, RetryAfter: retryAfter}, nil
	}

	return Decision{Allowed: true, Remaining: l.Limit - count}, nil
}
