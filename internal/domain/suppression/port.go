package suppression

import "context"

type Repo interface {
	// Insert records a suppression. Honors an in-flight transaction so the
	// caller can pair it with a subscription state change atomically.
	Insert(ctx context.Context, s *Suppression) error
	ListByDocument(ctx context.Context, documentID string) ([]*Suppression, error)
	DeleteByDocument(ctx context.Context, documentID string) (int64, error)
	// IsSuppressed reports whether a document-level row exists, or a row
	// matching recipientID when it is non-empty.
	IsSuppressed(ctx context.Context, documentID, recipientID string) (bool, error)
}
