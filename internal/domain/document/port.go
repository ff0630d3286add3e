package document

import (
	"context"
	"errors"
	"fmt"
)

// ErrNotFound means the document no longer exists on the signing platform,
// as opposed to a transient transport failure.
var ErrNotFound = errors.New("document not found")

// DispatchError is any non-success response to a send-reminder call. The
// client never retries; retry pacing belongs to the dispatcher's cycles.
type DispatchError struct {
	Detail string
}

func (e *DispatchError) Error() string {
	return fmt.Sprintf("reminder dispatch failed: %s", e.Detail)
}

type Provider interface {
	// ListPending pages through documents that still have at least one
	// recipient in a non-terminal status.
	ListPending(ctx context.Context) ([]*Document, error)
	GetByID(ctx context.Context, id string) (*Document, error)
	SendReminder(ctx context.Context, id string, recipientIDs []string) error
	// HealthCheck is a cheap read-only probe; the error carries a
	// remediation hint.
	HealthCheck(ctx context.Context) error
}
