package subscription

import (
	"context"
	"time"
)

type Repo interface {
	// Upsert creates the subscription if absent, otherwise re-enables it and
	// refreshes the policy fields, clearing stopped_at/stopped_reason.
	Upsert(ctx context.Context, documentID string, p Policy) (*Subscription, error)
	GetByDocument(ctx context.Context, documentID string) (*Subscription, error)
	// ListDue returns enabled subscriptions that either have no events yet,
	// have reached their success cap, or whose last attempt is at least one
	// interval old. Max-capped rows are included so the dispatcher can stop them.
	ListDue(ctx context.Context, now time.Time, limit int) ([]*Subscription, error)
	// Disable stops the subscription in place. Honors an in-flight transaction.
	Disable(ctx context.Context, documentID string, reason StopReason, at time.Time) error
	Stats(ctx context.Context) (*Stats, error)
}
