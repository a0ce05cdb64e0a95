package sqlstore

import (
	"context"
	"database/sql"
	"time"

	"github.com/finsightai/finsight/internal/auth/domain"
)

type demoTokensRepo struct {
	q *queries
}

func (r *demoTokensRepo) LockDemoEmail(ctx context.Context, email string) error {
	if r.q.d.AdvisoryLockSQL == "" {
		return nil
	}
	_, err := r.q.exec(ctx, r.q.d.AdvisoryLockSQL, "demo:"+email)
	return err
}

func (r *demoTokensRepo) CreateDemoToken(ctx context.Context, t domain.DemoAccessToken) error {
	_, err := r.q.exec(ctx, `
		INSERT INTO demo_access_tokens (id, email, token_hash, expires_at, used_at, view_count, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		t.ID, t.Email, t.TokenHash, utc(t.ExpiresAt), nullTime(t.UsedAt), t.ViewCount, utc(t.CreatedAt),
	)
	return err
}

func (r *demoTokensRepo) GetDemoTokenByHash(ctx context.Context, hash string) (domain.DemoAccessToken, error) {
	var (
		t    domain.DemoAccessToken
		used sql.NullTime
	)
	err := r.q.queryRow(ctx, `
		SELECT id, email, token_hash, expires_at, used_at, view_count, created_at
		FROM demo_access_tokens
		WHERE token_hash = ?`,
		hash,
	).Scan(&t.ID, &t.Email, &t.TokenHash, &t.ExpiresAt, &used, &t.ViewCount, &t.CreatedAt)
	if err != nil {
		return domain.DemoAccessToken{}, r.q.mapErr(err)
	}
	t.ExpiresAt = utc(t.ExpiresAt)
	t.UsedAt = timePtr(used)
	t.CreatedAt = utc(t.CreatedAt)
	return t, nil
}

func (r *demoTokensRepo) DeleteOutstandingDemoTokens(ctx context.Context, email string, now time.Time) (int64, error) {
	return r.q.execAffected(ctx, `
		DELETE FROM demo_access_tokens
		WHERE email = ? AND used_at IS NULL AND expires_at > ?`,
		email, utc(now),
	)
}

func (r *demoTokensRepo) RedeemDemoToken(ctx context.Context, id string, now time.Time) (bool, error) {
	n, err := r.q.execAffected(ctx, `
		UPDATE demo_access_tokens SET used_at = ?, view_count = view_count + 1
		WHERE id = ? AND used_at IS NULL AND expires_at > ?`,
		utc(now), id, utc(now),
	)
	return n == 1, err
}

func (r *demoTokensRepo) CountRedeemedDemoTokens(ctx context.Context, email string) (int, error) {
	var n int
	err := r.q.queryRow(ctx,
		`SELECT COUNT(*) FROM demo_access_tokens WHERE email = ? AND used_at IS NOT NULL`,
		email,
	).Scan(&n)
	return n, r.q.mapErr(err)
}

func (r *demoTokensRepo) DeleteExpiredDemoTokens(ctx context.Context, before time.Time) (int64, error) {
	return r.q.execAffected(ctx, `DELETE FROM demo_access_tokens WHERE expires_at < ?`, utc(before))
}
