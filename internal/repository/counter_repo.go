package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// CounterRepository backs the fixed-window rate limiter with Postgres.
// Both operations are single statements, so concurrent service instances
// never race on a read-then-write.
type CounterRepository struct {
	pool *pgxpool.Pool
}

func NewCounterRepository(pool *pgxpool.Pool) *CounterRepository {
	return &CounterRepository{pool: pool}
}

// IncrementWithExpiry bumps the counter for key and returns the new count.
// A fresh or expired window restarts at 1 with a new expiry; a live window
// keeps its original expiry, so the window always closes on schedule.
func (r *CounterRepository) IncrementWithExpiry(ctx context.Context, key string, ttl time.Duration) (int64, error) {
	var count int64
	err := r.pool.QueryRow(ctx,
		`INSERT INTO rate_limit_windows (key, count, expires_at)
		 VALUES ($1, 1, now() + make_interval(secs => $2))
		 ON CONFLICT (key) DO UPDATE SET
		   count      = CASE WHEN rate_limit_windows.expires_at <= now() THEN 1 ELSE rate_limit_windows.count + 1 END,
		   expires_at = CASE WHEN rate_limit_windows.expires_at <= now() THEN now() + make_interval(secs => $2) ELSE rate_limit_windows.expires_at END
		 RETURNING count`,
		key, ttl.Seconds()).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("increment rate limit window: %w", err)
	}
	return count, nil
}

func (r *CounterRepository) TTL(ctx context.Context, key string) (time.Duration, error) {
	var seconds float64
	err := r.pool.QueryRow(ctx,
		`SELECT GREATEST(EXTRACT(EPOCH FROM (expires_at - now())), 0) FROM rate_limit_windows WHERE key = $1`,
		key).Scan(&seconds)
	if err != nil {
		return 0, fmt.Errorf("rate limit window ttl: %w", err)
	}
	return time.Duration(seconds * float64(time.Second)), nil
}
