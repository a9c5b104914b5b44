package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"go-auth-core/internal/model"
)

type TokenRepository struct {
	pool *pgxpool.Pool
}

func NewTokenRepository(pool *pgxpool.Pool) *TokenRepository {
	return &TokenRepository{pool: pool}
}

func (r *TokenRepository) Store(ctx context.Context, t model.RefreshToken) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO refresh_tokens (id, user_id, token, created_at, expires_at)
		 VALUES ($1, $2, $3, $4, $5)`,
		t.ID, t.UserID, t.Token, t.CreatedAt, t.ExpiresAt)
	if err != nil {
		return fmt.Errorf("store refresh token: %w", err)
	}
	return nil
}

// FindByValue loads a token row together with its owner's activity flag.
// The row itself says nothing about whether the account may still act.
func (r *TokenRepository) FindByValue(ctx context.Context, tokenValue string) (model.RefreshToken, bool, error) {
	var t model.RefreshToken
	var ownerActive bool

	err := r.pool.QueryRow(ctx,
		`SELECT rt.id, rt.user_id, rt.token, rt.created_at, rt.expires_at, rt.used_at, u.is_active
		 FROM refresh_tokens rt
		 JOIN users u ON u.id = rt.user_id
		 WHERE rt.token = $1`, tokenValue).
		Scan(&t.ID, &t.UserID, &t.Token, &t.CreatedAt, &t.ExpiresAt, &t.UsedAt, &ownerActive)

	if errors.Is(err, pgx.ErrNoRows) {
		return model.RefreshToken{}, false, model.ErrTokenNotFound
	}
	if err != nil {
		return model.RefreshToken{}, false, fmt.Errorf("find refresh token: %w", err)
	}
	return t, ownerActive, nil
}

// Redeem atomically marks a live row used. It reports false when the row
// was already used at commit time, which callers must treat as reuse: a
// plain read-then-write here would let two presentations of the same
// stolen token both succeed.
func (r *TokenRepository) Redeem(ctx context.Context, tokenValue string, at time.Time) (bool, error) {
	tag, err := r.pool.Exec(ctx,
		`UPDATE refresh_tokens SET used_at = $2
		 WHERE token = $1 AND used_at IS NULL`,
		tokenValue, at)
	if err != nil {
		return false, fmt.Errorf("redeem refresh token: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

// InvalidateByValue marks one row used. Idempotent: a second call reports
// that no live row was found.
func (r *TokenRepository) InvalidateByValue(ctx context.Context, tokenValue string, at time.Time) (bool, error) {
	tag, err := r.pool.Exec(ctx,
		`UPDATE refresh_tokens SET used_at = $2
		 WHERE token = $1 AND used_at IS NULL`,
		tokenValue, at)
	if err != nil {
		return false, fmt.Errorf("invalidate refresh token: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

// InvalidateAllForUser marks every row for the user as used, including
// expired ones, so no live token survives. Returns the number of rows
// that were still live.
func (r *TokenRepository) InvalidateAllForUser(ctx context.Context, userID string, at time.Time) (int64, error) {
	tag, err := r.pool.Exec(ctx,
		`UPDATE refresh_tokens SET used_at = $2
		 WHERE user_id = $1 AND used_at IS NULL`,
		userID, at)
	if err != nil {
		return 0, fmt.Errorf("invalidate user tokens: %w", err)
	}
	return tag.RowsAffected(), nil
}
