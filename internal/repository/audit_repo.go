package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"go-auth-core/internal/model"
)

// AuditRepository appends security and lifecycle events. Rows are write-only
// from the service's point of view; forensics and cleanup live elsewhere.
type AuditRepository struct {
	pool *pgxpool.Pool
}

func NewAuditRepository(pool *pgxpool.Pool) *AuditRepository {
	return &AuditRepository{pool: pool}
}

func (r *AuditRepository) Record(ctx context.Context, event model.AuditEvent) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO audit_events (action, user_id, client_ip, detail, occurred_at)
		 VALUES ($1, NULLIF($2, ''), NULLIF($3, ''), NULLIF($4, ''), $5)`,
		event.Action, event.UserID, event.ClientIP, event.Detail, event.OccurredAt)
	if err != nil {
		return fmt.Errorf("record audit event: %w", err)
	}
	return nil
}
