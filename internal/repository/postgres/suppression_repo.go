package postgres

import (
	"context"
	"fmt"

	"github.com/esign-tools/renotify/internal/domain/suppression"
)

var _ suppression.Repo = (*SuppressionRepoImpl)(nil)

type SuppressionRepoImpl struct {
	db *DB
}

func NewSuppressionRepo(db *DB) *SuppressionRepoImpl { return &SuppressionRepoImpl{db: db} }

const (
	qSupInsert = `
INSERT INTO suppressions (document_id, recipient_id, reason, actor, stopped_at)
VALUES ($1, $2, $3, $4, $5)
RETURNING id;
`

	qSupByDocument = `
SELECT id, document_id, recipient_id, reason, actor, stopped_at
FROM suppressions
WHERE document_id = $1
ORDER BY stopped_at DESC, id DESC;
`

	qSupDeleteByDocument = `DELETE FROM suppressions WHERE document_id = $1;`

	qSupExists = `
SELECT EXISTS (
    SELECT 1 FROM suppressions
    WHERE document_id = $1
      AND (recipient_id IS NULL OR ($2 <> '' AND recipient_id = $2))
);
`
)

func (r *SuppressionRepoImpl) Insert(ctx context.Context, s *suppression.Suppression) error {
	ctx, cancel := r.db.withTimeout(ctx)
	defer cancel()

	eq := r.db.execQueryer(ctx)
	if err := eq.QueryRow(ctx, qSupInsert,
		s.DocumentID, s.RecipientID, s.Reason, s.Actor, s.StoppedAt,
	).Scan(&s.ID); err != nil {
		return fmt.Errorf("insert suppression: %w", mapPgError(err))
	}
	return nil
}

func (r *SuppressionRepoImpl) ListByDocument(ctx context.Context, documentID string) ([]*suppression.Suppression, error) {
	ctx, cancel := r.db.withTimeout(ctx)
	defer cancel()

	rows, err := r.db.Pool.Query(ctx, qSupByDocument, documentID)
	if err != nil {
		return nil, fmt.Errorf("query suppressions: %w", err)
	}
	defer rows.Close()

	var out []*suppression.Suppression
	for rows.Next() {
		var s suppression.Suppression
		if err := rows.Scan(&s.ID, &s.DocumentID, &s.RecipientID, &s.Reason, &s.Actor, &s.StoppedAt); err != nil {
			return nil, fmt.Errorf("scan suppression: %w", err)
		}
		out = append(out, &s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows: %w", err)
	}
	return out, nil
}

func (r *SuppressionRepoImpl) DeleteByDocument(ctx context.Context, documentID string) (int64, error) {
	ctx, cancel := r.db.withTimeout(ctx)
	defer cancel()

	eq := r.db.execQueryer(ctx)
	cmd, err := eq.Exec(ctx, qSupDeleteByDocument, documentID)
	if err != nil {
		return 0, fmt.Errorf("delete suppressions: %w", err)
	}
	return cmd.RowsAffected(), nil
}

func (r *SuppressionRepoImpl) IsSuppressed(ctx context.Context, documentID, recipientID string) (bool, error) {
	ctx, cancel := r.db.withTimeout(ctx)
	defer cancel()

	var ok bool
	if err := r.db.Pool.QueryRow(ctx, qSupExists, documentID, recipientID).Scan(&ok); err != nil {
		return false, fmt.Errorf("query suppression: %w", err)
	}
	return ok, nil
}
