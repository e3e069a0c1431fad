// Package nonce provides durable, at-most-once acceptance of (app id, nonce)
// pairs within a bounded validity window.
package nonce

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Store backs nonce consumption with a Postgres unique key and an
// insert-or-ignore primitive, so that at most one caller ever observes a
// successful consume for a given (app id, nonce) pair.
type Store struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

// NewStore creates a nonce Store backed by the given pool.
func NewStore(pool *pgxpool.Pool, logger *slog.Logger) *Store {
	return &Store{pool: pool, logger: logger}
}

// ConsumeNonce purges every expired row (for all apps), then attempts to insert
// (appID, nonce, now, expiresAt). It returns true iff the insert happened,
// i.e. no live row existed for that composite key. The purge and insert are
// two statements but the insert's atomicity comes entirely from the unique
// constraint on (app_id, nonce): concurrent callers racing the same pair can
// only ever have one succeed.
func (s *Store) ConsumeNonce(ctx context.Context, appID, nonce string, now, expiresAt time.Time) (bool, error) {
	if _, err := s.pool.Exec(ctx, `DELETE FROM nonces WHERE expires_at <= $1`, now); err != nil {
		return false, fmt.Errorf("purging stale nonces: %w", err)
	}

	tag, err := s.pool.Exec(ctx, `
		INSERT INTO nonces (app_id, nonce, created_at, expires_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (app_id, nonce) DO NOTHING
	`, appID, nonce, now, expiresAt)
	if err != nil {
		return false, fmt.Errorf("inserting nonce: %w", err)
	}

	return tag.RowsAffected() == 1, nil
}

// RunPurgeLoop periodically sweeps expired nonces as a safety net for apps
// that stop sending requests before their nonces naturally age out through
// ConsumeNonce's opportunistic purge.
func (s *Store) RunPurgeLoop(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			tag, err := s.pool.Exec(ctx, `DELETE FROM nonces WHERE expires_at <= now()`)
			if err != nil {
				s.logger.Error("nonce purge sweep failed", "error", err)
				continue
			}
			if n := tag.RowsAffected(); n > 0 {
				s.logger.Debug("nonce purge sweep", "rows_deleted", n)
			}
		}
	}
}
