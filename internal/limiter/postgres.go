package limiter

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// PG keeps attempts in the login_attempts table so several server replicas share lockouts.
type PG struct {
	pool pgxQuerier
	p    Policy
}

var _ Limiter = (*PG)(nil)

type pgxQuerier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// NewPG constructs a PostgreSQL-backed limiter; *pgxpool.Pool satisfies q.
func NewPG(q pgxQuerier, p Policy) *PG {
	return &PG{pool: q, p: p}
}

func (l *PG) Check(ctx context.Context, k Key) (time.Duration, error) {
	const q = `SELECT blocked_until FROM login_attempts WHERE email=$1 AND ip_hash=$2`
	var blockedUntil time.Time
	err := l.pool.QueryRow(ctx, q, k.Email, k.IPHash).Scan(&blockedUntil)
	switch {
	case errors.Is(err, pgx.ErrNoRows):
		return 0, nil
	case err != nil:
		return 0, err
	}
	if d := time.Until(blockedUntil); d > 0 {
		return d, nil
	}
	return 0, nil
}

func (l *PG) Succeeded(ctx context.Context, k Key) error {
	const q = `DELETE FROM login_attempts WHERE email=$1 AND ip_hash=$2`
	_, err := l.pool.Exec(ctx, q, k.Email, k.IPHash)
	return err
}

func (l *PG) Failed(ctx context.Context, k Key) (time.Duration, error) {
	const q = `
INSERT INTO login_attempts (email, ip_hash, fail_count, window_start, blocked_until)
VALUES ($1, $2, 1, now(), 'epoch')
ON CONFLICT (email, ip_hash) DO UPDATE SET
  fail_count   = CASE WHEN now() - login_attempts.window_start > $3::interval THEN 1 ELSE login_attempts.fail_count + 1 END,
  window_start = CASE WHEN now() - login_attempts.window_start > $3::interval THEN now() ELSE login_attempts.window_start END
RETURNING fail_count`
	var fails int
	if err := l.pool.QueryRow(ctx, q, k.Email, k.IPHash, l.p.Window).Scan(&fails); err != nil {
		return 0, err
	}
	if fails < l.p.MaxFails {
		return 0, nil
	}
	const block = `UPDATE login_attempts SET blocked_until=$3 WHERE email=$1 AND ip_hash=$2`
	if _, err := l.pool.Exec(ctx, block, k.Email, k.IPHash, time.Now().Add(l.p.BlockFor)); err != nil {
		return 0, err
	}
	return l.p.BlockFor, nil
}
