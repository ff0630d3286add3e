package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/esign-tools/renotify/internal/domain/reminder"
	"github.com/jackc/pgx/v5"
)

var _ reminder.Repo = (*EventRepoImpl)(nil)

type EventRepoImpl struct {
	db *DB
}

func NewEventRepo(db *DB) *EventRepoImpl { return &EventRepoImpl{db: db} }

const (
	qEventLockSub = `SELECT id FROM subscriptions WHERE document_id = $1 FOR UPDATE;`

	qEventAppend = `
INSERT INTO reminder_events (document_id, recipient_ids, ordinal, sent_at, success, error_detail)
SELECT $1, $2, COALESCE(max(ordinal), 0) + 1, $3, $4, $5
FROM reminder_events
WHERE document_id = $1
RETURNING id, ordinal;
`

	qEventsByDocument = `
SELECT id, document_id, recipient_ids, ordinal, sent_at, success, error_detail
FROM reminder_events
WHERE document_id = $1
ORDER BY ordinal DESC
LIMIT $2;
`

	qEventHistory = `
SELECT count(*), count(*) FILTER (WHERE success), max(sent_at)
FROM reminder_events
WHERE document_id = $1;
`
)

// Append computes the next ordinal while holding the subscription row lock,
// so concurrent writers for one document serialize and ordinals stay gapless.
func (r *EventRepoImpl) Append(ctx context.Context, e *reminder.Event) error {
	ctx, cancel := r.db.withTimeout(ctx)
	defer cancel()

	tx, err := extractTx(ctx)
	owned := false
	if err != nil {
		tx, err = r.db.Pool.Begin(ctx)
		if err != nil {
			return fmt.Errorf("begin: %w", err)
		}
		owned = true
		defer func() { _ = tx.Rollback(ctx) }()
	}

	var subID int64
	if err := tx.QueryRow(ctx, qEventLockSub, e.DocumentID).Scan(&subID); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrNotFound
		}
		return fmt.Errorf("lock subscription: %w", err)
	}

	if err := tx.QueryRow(ctx, qEventAppend,
		e.DocumentID, e.RecipientIDs, e.SentAt, e.Success, e.ErrorDetail,
	).Scan(&e.ID, &e.Ordinal); err != nil {
		return fmt.Errorf("append event: %w", mapPgError(err))
	}

	if owned {
		if err := tx.Commit(ctx); err != nil {
			return fmt.Errorf("commit: %w", err)
		}
	}
	return nil
}

func (r *EventRepoImpl) ListByDocument(ctx context.Context, documentID string, limit int) ([]*reminder.Event, error) {
	if limit <= 0 {
		limit = 50
	}
	ctx, cancel := r.db.withTimeout(ctx)
	defer cancel()

	rows, err := r.db.Pool.Query(ctx, qEventsByDocument, documentID, limit)
	if err != nil {
		return nil, fmt.Errorf("query events: %w", err)
	}
	defer rows.Close()

	out := make([]*reminder.Event, 0, limit)
	for rows.Next() {
		var e reminder.Event
		if err := rows.Scan(&e.ID, &e.DocumentID, &e.RecipientIDs, &e.Ordinal, &e.SentAt, &e.Success, &e.ErrorDetail); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		out = append(out, &e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows: %w", err)
	}
	return out, nil
}

func (r *EventRepoImpl) HistoryFor(ctx context.Context, documentID string) (*reminder.History, error) {
	ctx, cancel := r.db.withTimeout(ctx)
	defer cancel()

	var h reminder.History
	if err := r.db.Pool.QueryRow(ctx, qEventHistory, documentID).Scan(&h.Attempts, &h.Successes, &h.LastAttemptAt); err != nil {
		return nil, fmt.Errorf("query history: %w", err)
	}
	return &h, nil
}
