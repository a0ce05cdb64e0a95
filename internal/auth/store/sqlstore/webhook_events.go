package sqlstore

import (
	"context"
	"database/sql"
	"time"

	"github.com/finsightai/finsight/internal/auth/domain"
)

type webhookEventsRepo struct {
	q *queries
}

func (r *webhookEventsRepo) GetWebhookEvent(ctx context.Context, externalID string) (domain.WebhookEvent, error) {
	var (
		e         domain.WebhookEvent
		processed sql.NullTime
	)
	err := r.q.queryRow(ctx, `
		SELECT external_event_id, type, received_at, processed_at, last_error
		FROM webhook_events
		WHERE external_event_id = ?`,
		externalID,
	).Scan(&e.ExternalEventID, &e.Type, &e.ReceivedAt, &processed, &e.LastError)
	if err != nil {
		return domain.WebhookEvent{}, r.q.mapErr(err)
	}
	e.ReceivedAt = utc(e.ReceivedAt)
	e.ProcessedAt = timePtr(processed)
	return e, nil
}

func (r *webhookEventsRepo) RecordWebhookReceipt(ctx context.Context, e domain.WebhookEvent) error {
	_, err := r.q.exec(ctx, `
		INSERT INTO webhook_events (external_event_id, type, received_at, last_error)
		VALUES (?, ?, ?, '')
		ON CONFLICT (external_event_id) DO NOTHING`,
		e.ExternalEventID, e.Type, utc(e.ReceivedAt),
	)
	return err
}

func (r *webhookEventsRepo) ClaimWebhookEvent(ctx context.Context, e domain.WebhookEvent) (bool, error) {
	// The no-op update takes the row lock; the WHERE turns a processed row
	// into zero affected rows.
	n, err := r.q.execAffected(ctx, `
		INSERT INTO webhook_events (external_event_id, type, received_at, last_error)
		VALUES (?, ?, ?, '')
		ON CONFLICT (external_event_id) DO UPDATE SET type = excluded.type
		WHERE webhook_events.processed_at IS NULL`,
		e.ExternalEventID, e.Type, utc(e.ReceivedAt),
	)
	return n > 0, err
}

func (r *webhookEventsRepo) MarkWebhookProcessed(ctx context.Context, externalID string, at time.Time) error {
	return r.q.execOne(ctx,
		`UPDATE webhook_events SET processed_at = ?, last_error = '' WHERE external_event_id = ?`,
		utc(at), externalID,
	)
}

func (r *webhookEventsRepo) RecordWebhookError(ctx context.Context, externalID string, msg string) error {
	return r.q.execOne(ctx,
		`UPDATE webhook_events SET last_error = ? WHERE external_event_id = ? AND processed_at IS NULL`,
		msg, externalID,
	)
}

func (r *webhookEventsRepo) DeleteProcessedWebhookEvents(ctx context.Context, before time.Time) (int64, error) {
	return r.q.execAffected(ctx,
		`DELETE FROM webhook_events WHERE processed_at IS NOT NULL AND processed_at < ?`,
		utc(before),
	)
}
