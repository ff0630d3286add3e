package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/esign-tools/renotify/internal/domain/subscription"
	"github.com/jackc/pgx/v5"
)

var _ subscription.Repo = (*SubscriptionRepoImpl)(nil)

type SubscriptionRepoImpl struct {
	db *DB
}

func NewSubscriptionRepo(db *DB) *SubscriptionRepoImpl { return &SubscriptionRepoImpl{db: db} }

const (
	qSubUpsert = `
INSERT INTO subscriptions (document_id, enabled, interval_days, max_reminders, created_at, updated_at)
VALUES ($1, TRUE, $2, $3, now(), now())
ON CONFLICT (document_id) DO UPDATE
SET enabled = TRUE,
    interval_days = EXCLUDED.interval_days,
    max_reminders = EXCLUDED.max_reminders,
    stopped_at = NULL,
    stopped_reason = NULL,
    updated_at = now()
RETURNING id, document_id, enabled, interval_days, max_reminders, created_at, updated_at, stopped_at, stopped_reason;
`

	qSubGetByDocument = `
SELECT id, document_id, enabled, interval_days, max_reminders, created_at, updated_at, stopped_at, stopped_reason
FROM subscriptions
WHERE document_id = $1;
`

	// Due predicate: never reminded, success cap reached (returned so the
	// dispatcher can stop them), or the last attempt is at least one interval
	// old. Pacing counts failed attempts too.
	qSubListDue = `
SELECT s.id, s.document_id, s.enabled, s.interval_days, s.max_reminders, s.created_at, s.updated_at, s.stopped_at, s.stopped_reason
FROM subscriptions s
LEFT JOIN LATERAL (
    SELECT count(*)                        AS attempts,
           count(*) FILTER (WHERE success) AS successes,
           max(sent_at)                    AS last_attempt
    FROM reminder_events e
    WHERE e.document_id = s.document_id
) ev ON TRUE
WHERE s.enabled
  AND (ev.attempts = 0
       OR ev.successes >= s.max_reminders
       OR ev.last_attempt + s.interval_days * INTERVAL '1 day' <= $1)
ORDER BY ev.last_attempt NULLS FIRST, s.id
LIMIT $2;
`

	qSubDisable = `
UPDATE subscriptions
SET enabled = FALSE, stopped_at = $2, stopped_reason = $3, updated_at = now()
WHERE document_id = $1;
`

	qSubStats = `
SELECT count(*) FILTER (WHERE enabled)     AS active,
       count(*) FILTER (WHERE NOT enabled) AS stopped,
       (SELECT count(*) FROM reminder_events WHERE success) AS successful_events
FROM subscriptions;
`
)

func scanSubscription(row pgx.Row, s *subscription.Subscription) error {
	if err := row.Scan(
		&s.ID,
		&s.DocumentID,
		&s.Enabled,
		&s.IntervalDays,
		&s.MaxReminders,
		&s.CreatedAt,
		&s.UpdatedAt,
		&s.StoppedAt,
		&s.StoppedReason,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrNotFound
		}
		return fmt.Errorf("scan subscription: %w", mapPgError(err))
	}
	return nil
}

func (r *SubscriptionRepoImpl) Upsert(ctx context.Context, documentID string, p subscription.Policy) (*subscription.Subscription, error) {
	ctx, cancel := r.db.withTimeout(ctx)
	defer cancel()

	var s subscription.Subscription
	eq := r.db.execQueryer(ctx)
	if err := scanSubscription(eq.QueryRow(ctx, qSubUpsert, documentID, p.IntervalDays, p.MaxReminders), &s); err != nil {
		return nil, err
	}
	return &s, nil
}

func (r *SubscriptionRepoImpl) GetByDocument(ctx context.Context, documentID string) (*subscription.Subscription, error) {
	ctx, cancel := r.db.withTimeout(ctx)
	defer cancel()

	var s subscription.Subscription
	eq := r.db.execQueryer(ctx)
	if err := scanSubscription(eq.QueryRow(ctx, qSubGetByDocument, documentID), &s); err != nil {
		return nil, err
	}
	return &s, nil
}

func (r *SubscriptionRepoImpl) ListDue(ctx context.Context, now time.Time, limit int) ([]*subscription.Subscription, error) {
	if limit <= 0 {
		limit = 100
	}
	ctx, cancel := r.db.withTimeout(ctx)
	defer cancel()

	rows, err := r.db.Pool.Query(ctx, qSubListDue, now, limit)
	if err != nil {
		return nil, fmt.Errorf("query due subscriptions: %w", err)
	}
	defer rows.Close()

	var out []*subscription.Subscription
	for rows.Next() {
		var s subscription.Subscription
		if err := scanSubscription(rows, &s); err != nil {
			return nil, err
		}
		out = append(out, &s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows: %w", err)
	}
	return out, nil
}

func (r *SubscriptionRepoImpl) Disable(ctx context.Context, documentID string, reason subscription.StopReason, at time.Time) error {
	ctx, cancel := r.db.withTimeout(ctx)
	defer cancel()

	eq := r.db.execQueryer(ctx)
	cmd, err := eq.Exec(ctx, qSubDisable, documentID, at, string(reason))
	if err != nil {
		return fmt.Errorf("disable subscription: %w", err)
	}
	if cmd.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *SubscriptionRepoImpl) Stats(ctx context.Context) (*subscription.Stats, error) {
	ctx, cancel := r.db.withTimeout(ctx)
	defer cancel()

	var st subscription.Stats
	if err := r.db.Pool.QueryRow(ctx, qSubStats).Scan(&st.Active, &st.Stopped, &st.SuccessfulEvents); err != nil {
		return nil, fmt.Errorf("query stats: %w", err)
	}
	return &st, nil
}
