package sqlstore

import (
	"context"

	"github.com/finsightai/finsight/internal/auth/domain"
)

const organisationSelect = `SELECT id, name, slug, created_at, updated_at FROM organisations WHERE id = ?`

type organisationsRepo struct {
	q *queries
}

func scanOrganisation(row scanner) (domain.Organisation, error) {
	var o domain.Organisation
	if err := row.Scan(&o.ID, &o.Name, &o.Slug, &o.CreatedAt, &o.UpdatedAt); err != nil {
		return domain.Organisation{}, err
	}
	o.CreatedAt = utc(o.CreatedAt)
	o.UpdatedAt = utc(o.UpdatedAt)
	return o, nil
}

func (r *organisationsRepo) CreateOrganisation(ctx context.Context, o domain.Organisation) error {
	_, err := r.q.exec(ctx, `
		INSERT INTO organisations (id, name, slug, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?)`,
		o.ID, o.Name, o.Slug, utc(o.CreatedAt), utc(o.UpdatedAt),
	)
	return err
}

func (r *organisationsRepo) TryCreateOrganisation(ctx context.Context, o domain.Organisation) (bool, error) {
	n, err := r.q.execAffected(ctx, `
		INSERT INTO organisations (id, name, slug, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (slug) DO NOTHING`,
		o.ID, o.Name, o.Slug, utc(o.CreatedAt), utc(o.UpdatedAt),
	)
	return n == 1, err
}

func (r *organisationsRepo) GetOrganisationByID(ctx context.Context, id string) (domain.Organisation, error) {
	o, err := scanOrganisation(r.q.queryRow(ctx, organisationSelect, id))
	return o, r.q.mapErr(err)
}

func (r *organisationsRepo) LockOrganisation(ctx context.Context, id string) (domain.Organisation, error) {
	o, err := scanOrganisation(r.q.queryRow(ctx, r.q.d.forUpdate(organisationSelect), id))
	return o, r.q.mapErr(err)
}
