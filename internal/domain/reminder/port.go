package reminder

import "context"

type Repo interface {
	// Append writes the event with the next ordinal for its document. The
	// implementation must serialize concurrent appends per document.
	Append(ctx context.Context, e *Event) error
	ListByDocument(ctx context.Context, documentID string, limit int) ([]*Event, error)
	HistoryFor(ctx context.Context, documentID string) (*History, error)
}
