package sqlstore

import (
	"context"
	"database/sql"
	"time"

	"github.com/finsightai/finsight/internal/auth/domain"
)

type refreshTokensRepo struct {
	q *queries
}

func (r *refreshTokensRepo) CreateRefreshToken(ctx context.Context, t domain.RefreshToken) error {
	_, err := r.q.exec(ctx, `
		INSERT INTO refresh_tokens (id, family_id, user_id, organisation_id, token_hash, issued_at, expires_at, revoked_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		t.ID, t.FamilyID, t.UserID, t.OrganisationID, t.TokenHash,
		utc(t.IssuedAt), utc(t.ExpiresAt), nullTime(t.RevokedAt),
	)
	return err
}

func (r *refreshTokensRepo) GetRefreshTokenByHash(ctx context.Context, hash string) (domain.RefreshToken, error) {
	var (
		t       domain.RefreshToken
		revoked sql.NullTime
	)
	err := r.q.queryRow(ctx, `
		SELECT id, family_id, user_id, organisation_id, token_hash, issued_at, expires_at, revoked_at
		FROM refresh_tokens
		WHERE token_hash = ?`,
		hash,
	).Scan(&t.ID, &t.FamilyID, &t.UserID, &t.OrganisationID, &t.TokenHash, &t.IssuedAt, &t.ExpiresAt, &revoked)
	if err != nil {
		return domain.RefreshToken{}, r.q.mapErr(err)
	}
	t.IssuedAt = utc(t.IssuedAt)
	t.ExpiresAt = utc(t.ExpiresAt)
	t.RevokedAt = timePtr(revoked)
	return t, nil
}

func (r *refreshTokensRepo) RevokeRefreshToken(ctx context.Context, id string, at time.Time) (bool, error) {
	n, err := r.q.execAffected(ctx,
		`UPDATE refresh_tokens SET revoked_at = ? WHERE id = ? AND revoked_at IS NULL`,
		utc(at), id,
	)
	return n == 1, err
}

func (r *refreshTokensRepo) RevokeRefreshTokenFamily(ctx context.Context, familyID string, at time.Time) (int64, error) {
	return r.q.execAffected(ctx,
		`UPDATE refresh_tokens SET revoked_at = ? WHERE family_id = ? AND revoked_at IS NULL`,
		utc(at), familyID,
	)
}

func (r *refreshTokensRepo) DeleteExpiredRefreshTokens(ctx context.Context, before time.Time) (int64, error) {
	return r.q.execAffected(ctx, `DELETE FROM refresh_tokens WHERE expires_at < ?`, utc(before))
}
