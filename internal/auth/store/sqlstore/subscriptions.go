package sqlstore

import (
	"context"
	"database/sql"
	"time"

	"github.com/finsightai/finsight/internal/auth/domain"
	"github.com/finsightai/finsight/internal/auth/store"
)

const subscriptionColumns = `id, organisation_id, tier, status, external_subscription_id,
	current_period_end, object_version, created_at, superseded_at`

type subscriptionsRepo struct {
	q *queries
}

func scanSubscription(row scanner) (domain.SubscriptionRecord, error) {
	var (
		rec          domain.SubscriptionRecord
		tier, status string
		periodEnd    sql.NullTime
		superseded   sql.NullTime
	)
	err := row.Scan(&rec.ID, &rec.OrganisationID, &tier, &status, &rec.ExternalSubscriptionID,
		&periodEnd, &rec.ObjectVersion, &rec.CreatedAt, &superseded)
	if err != nil {
		return domain.SubscriptionRecord{}, err
	}
	rec.Tier = domain.Tier(tier)
	rec.Status = domain.SubscriptionStatus(status)
	rec.CurrentPeriodEnd = timePtr(periodEnd)
	rec.CreatedAt = utc(rec.CreatedAt)
	rec.SupersededAt = timePtr(superseded)
	return rec, nil
}

func (r *subscriptionsRepo) GetCurrentSubscription(ctx context.Context, organisationID string) (domain.SubscriptionRecord, error) {
	rec, err := scanSubscription(r.q.queryRow(ctx, `
		SELECT `+subscriptionColumns+`
		FROM subscriptions
		WHERE organisation_id = ? AND superseded_at IS NULL`,
		organisationID,
	))
	return rec, r.q.mapErr(err)
}

func (r *subscriptionsRepo) GetCurrentSubscriptionByExternalID(ctx context.Context, externalID string) (domain.SubscriptionRecord, error) {
	if externalID == "" {
		return domain.SubscriptionRecord{}, store.ErrNotFound
	}
	rec, err := scanSubscription(r.q.queryRow(ctx, `
		SELECT `+subscriptionColumns+`
		FROM subscriptions
		WHERE external_subscription_id = ? AND superseded_at IS NULL
		ORDER BY created_at DESC
		LIMIT 1`,
		externalID,
	))
	return rec, r.q.mapErr(err)
}

func (r *subscriptionsRepo) SupersedeCurrentSubscription(ctx context.Context, organisationID string, at time.Time) (bool, error) {
	n, err := r.q.execAffected(ctx, `
		UPDATE subscriptions SET superseded_at = ?
		WHERE organisation_id = ? AND superseded_at IS NULL`,
		utc(at), organisationID,
	)
	return n > 0, err
}

func (r *subscriptionsRepo) CreateSubscription(ctx context.Context, rec domain.SubscriptionRecord) error {
	_, err := r.q.exec(ctx, `
		INSERT INTO subscriptions (id, organisation_id, tier, status, external_subscription_id,
			current_period_end, object_version, created_at, superseded_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.OrganisationID, string(rec.Tier), string(rec.Status), rec.ExternalSubscriptionID,
		nullTime(rec.CurrentPeriodEnd), rec.ObjectVersion, utc(rec.CreatedAt), nullTime(rec.SupersededAt),
	)
	return err
}

func (r *subscriptionsRepo) ListSubscriptionHistory(ctx context.Context, organisationID string) ([]domain.SubscriptionRecord, error) {
	rows, err := r.q.query(ctx, `
		SELECT `+subscriptionColumns+`
		FROM subscriptions
		WHERE organisation_id = ?
		ORDER BY created_at DESC, id DESC`,
		organisationID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.SubscriptionRecord
	for rows.Next() {
		rec, err := scanSubscription(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}
