package sqlstore

import (
	"context"
	"time"

	"github.com/finsightai/finsight/internal/auth/domain"
)

type membershipsRepo struct {
	q *queries
}

func (r *membershipsRepo) CreateMembership(ctx context.Context, m domain.Membership) error {
	_, err := r.q.exec(ctx, `
		INSERT INTO memberships (user_id, organisation_id, role, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?)`,
		m.UserID, m.OrganisationID, string(m.Role), utc(m.CreatedAt), utc(m.UpdatedAt),
	)
	return err
}

func (r *membershipsRepo) GetMembership(ctx context.Context, userID, organisationID string) (domain.Membership, error) {
	var (
		m    domain.Membership
		role string
	)
	err := r.q.queryRow(ctx, `
		SELECT user_id, organisation_id, role, created_at, updated_at
		FROM memberships
		WHERE user_id = ? AND organisation_id = ?`,
		userID, organisationID,
	).Scan(&m.UserID, &m.OrganisationID, &role, &m.CreatedAt, &m.UpdatedAt)
	if err != nil {
		return domain.Membership{}, r.q.mapErr(err)
	}
	m.Role = domain.Role(role)
	m.CreatedAt = utc(m.CreatedAt)
	m.UpdatedAt = utc(m.UpdatedAt)
	return m, nil
}

func (r *membershipsRepo) ListMembershipsByUser(ctx context.Context, userID string) ([]domain.MembershipView, error) {
	rows, err := r.q.query(ctx, `
		SELECT m.user_id, m.organisation_id, m.role, m.created_at, m.updated_at, o.name
		FROM memberships m
		JOIN organisations o ON o.id = m.organisation_id
		WHERE m.user_id = ?
		ORDER BY m.created_at, m.organisation_id`,
		userID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.MembershipView
	for rows.Next() {
		var (
			v    domain.MembershipView
			role string
		)
		if err := rows.Scan(&v.UserID, &v.OrganisationID, &role, &v.CreatedAt, &v.UpdatedAt, &v.OrganisationName); err != nil {
			return nil, err
		}
		v.Role = domain.Role(role)
		v.CreatedAt = utc(v.CreatedAt)
		v.UpdatedAt = utc(v.UpdatedAt)
		out = append(out, v)
	}
	return out, rows.Err()
}

func (r *membershipsRepo) UpdateMembershipRole(ctx context.Context, userID, organisationID string, role domain.Role, at time.Time) error {
	return r.q.execOne(ctx, `
		UPDATE memberships SET role = ?, updated_at = ?
		WHERE user_id = ? AND organisation_id = ?`,
		string(role), utc(at), userID, organisationID,
	)
}

func (r *membershipsRepo) DeleteMembership(ctx context.Context, userID, organisationID string) error {
	return r.q.execOne(ctx, `DELETE FROM memberships WHERE user_id = ? AND organisation_id = ?`, userID, organisationID)
}
