package kafka

import (
	"context"
	"time"
)

// ReminderEvents publishes reminder lifecycle events for downstream
// consumers. Implementations must be safe to call from the dispatch loop;
// publish failures are the caller's to log, never to fail a document on.
type ReminderEvents interface {
	PublishReminderSent(ctx context.Context, documentID string, recipientIDs []string, ordinal int, at time.Time) error
	PublishSubscriptionStopped(ctx context.Context, documentID, reason, actor string, at time.Time) error
}
