package admin

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/esign-tools/renotify/internal/domain/document"
	"github.com/esign-tools/renotify/internal/domain/reminder"
	"github.com/esign-tools/renotify/internal/domain/subscription"
	"github.com/esign-tools/renotify/internal/domain/suppression"
	"github.com/esign-tools/renotify/internal/repository/postgres"
	"github.com/esign-tools/renotify/internal/services/dispatcher"
	"go.uber.org/zap"
)

var ErrInvalidPolicy = errors.New("interval_days and max_reminders must be >= 1")

// Usecase is the operator control surface over subscriptions. It is shared by
// the CLI and the periodic trigger.
type Usecase struct {
	Subs     subscription.Repo
	Events   reminder.Repo
	Supps    suppression.Repo
	Provider document.Provider
	Tx       postgres.Transactor
	Disp     *dispatcher.Dispatcher
	Defaults subscription.Policy
	Clock    dispatcher.Clock
	Log      *zap.Logger
}

// Enroll upserts a subscription. Zero policy values fall back to the
// configured defaults. Calling it twice with the same arguments yields one
// subscription, re-enabled and refreshed, never a duplicate.
func (u *Usecase) Enroll(ctx context.Context, documentID string, intervalDays, maxReminders int) (*subscription.Subscription, error) {
	p := subscription.Policy{IntervalDays: intervalDays, MaxReminders: maxReminders}
	if p.IntervalDays == 0 {
		p.IntervalDays = u.Defaults.IntervalDays
	}
	if p.MaxReminders == 0 {
		p.MaxReminders = u.Defaults.MaxReminders
	}
	if p.IntervalDays < 1 || p.MaxReminders < 1 {
		return nil, ErrInvalidPolicy
	}
	return u.Subs.Upsert(ctx, documentID, p)
}

// Stop records a suppression. With no recipient the whole document is
// suppressed and the subscription disabled in the same transaction.
func (u *Usecase) Stop(ctx context.Context, documentID, recipientID, reason string) error {
	if reason == "" {
		reason = "stopped by owner"
	}
	if _, err := u.Subs.GetByDocument(ctx, documentID); err != nil {
		return err
	}

	now := u.Clock.Now().UTC()
	sup := &suppression.Suppression{
		DocumentID: documentID,
		Reason:     reason,
		Actor:      suppression.ActorOwner,
		StoppedAt:  now,
	}
	if recipientID != "" {
		already, err := u.Supps.IsSuppressed(ctx, documentID, recipientID)
		if err != nil {
			return err
		}
		if already {
			return nil
		}
		sup.RecipientID = &recipientID
		return u.Supps.Insert(ctx, sup)
	}

	return u.Tx.WithTx(ctx, func(txCtx context.Context) error {
		if err := u.Supps.Insert(txCtx, sup); err != nil {
			return err
		}
		return u.Subs.Disable(txCtx, documentID, subscription.StopReason(reason), now)
	})
}

// Resume clears every suppression for the document and re-enables it with
// its previously-set policy.
func (u *Usecase) Resume(ctx context.Context, documentID string) (*subscription.Subscription, error) {
	prev, err := u.Subs.GetByDocument(ctx, documentID)
	if err != nil {
		return nil, err
	}
	if prev.StoppedReason != nil && *prev.StoppedReason == string(subscription.ReasonDocumentNotFound) {
		u.Log.Warn("resuming a subscription stopped for a missing document; the provider may reject further reminders",
			zap.String("document_id", documentID))
	}

	var out *subscription.Subscription
	err = u.Tx.WithTx(ctx, func(txCtx context.Context) error {
		if _, err := u.Supps.DeleteByDocument(txCtx, documentID); err != nil {
			return err
		}
		s, err := u.Subs.Upsert(txCtx, documentID, subscription.Policy{
			IntervalDays: prev.IntervalDays,
			MaxReminders: prev.MaxReminders,
		})
		if err != nil {
			return err
		}
		out = s
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

type RecipientStatus struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	Email      string `json:"email"`
	Status     string `json:"status"`
	Suppressed bool   `json:"suppressed"`
}

type Status struct {
	DocumentID    string            `json:"document_id"`
	Enabled       bool              `json:"enabled"`
	IntervalDays  int               `json:"interval_days"`
	MaxReminders  int               `json:"max_reminders"`
	SentCount     int               `json:"sent_count"`
	LastSentAt    *time.Time        `json:"last_sent_at"`
	StoppedAt     *time.Time        `json:"stopped_at"`
	StoppedReason *string           `json:"stopped_reason"`
	Recipients    []RecipientStatus `json:"recipients"`
	ProviderError string            `json:"provider_error,omitempty"`
}

// Status merges store state with a live provider snapshot. Provider errors
// are reported in the result, never failed on.
func (u *Usecase) Status(ctx context.Context, documentID string) (*Status, error) {
	sub, err := u.Subs.GetByDocument(ctx, documentID)
	if err != nil {
		return nil, err
	}
	hist, err := u.Events.HistoryFor(ctx, documentID)
	if err != nil {
		return nil, err
	}
	supps, err := u.Supps.ListByDocument(ctx, documentID)
	if err != nil {
		return nil, err
	}

	st := &Status{
		DocumentID:    sub.DocumentID,
		Enabled:       sub.Enabled,
		IntervalDays:  sub.IntervalDays,
		MaxReminders:  sub.MaxReminders,
		SentCount:     hist.Successes,
		LastSentAt:    hist.LastAttemptAt,
		StoppedAt:     sub.StoppedAt,
		StoppedReason: sub.StoppedReason,
	}

	suppressed := make(map[string]bool, len(supps))
	for _, s := range supps {
		if !s.IsDocumentLevel() {
			suppressed[*s.RecipientID] = true
		}
	}

	doc, err := u.Provider.GetByID(ctx, documentID)
	if err != nil {
		st.ProviderError = err.Error()
		return st, nil
	}
	for _, r := range doc.Recipients {
		st.Recipients = append(st.Recipients, RecipientStatus{
			ID:         r.ID,
			Name:       r.Name,
			Email:      r.Email,
			Status:     string(r.Status),
			Suppressed: suppressed[r.ID],
		})
	}
	return st, nil
}

// History returns dispatch attempts, most recent first.
func (u *Usecase) History(ctx context.Context, documentID string, limit int) ([]*reminder.Event, error) {
	return u.Events.ListByDocument(ctx, documentID, limit)
}

// RunOnce invokes a single cycle, optionally as a dry run.
func (u *Usecase) RunOnce(ctx context.Context, dryRun bool) (dispatcher.Report, error) {
	return u.Disp.RunCycle(ctx, dryRun)
}

type SystemReport struct {
	APIHealthy            bool   `json:"api_healthy"`
	APIError              string `json:"api_error,omitempty"`
	ActiveSubscriptions   int64  `json:"active_subscriptions"`
	StoppedSubscriptions  int64  `json:"stopped_subscriptions"`
	TotalSuccessfulEvents int64  `json:"total_successful_events"`
	PendingNotTracked     int    `json:"pending_in_provider_not_tracked"`
}

// Report summarizes the system: provider health, store stats, and pending
// provider documents that nothing tracks yet.
func (u *Usecase) Report(ctx context.Context) (*SystemReport, error) {
	stats, err := u.Subs.Stats(ctx)
	if err != nil {
		return nil, fmt.Errorf("store stats: %w", err)
	}

	rep := &SystemReport{
		APIHealthy:            true,
		ActiveSubscriptions:   stats.Active,
		StoppedSubscriptions:  stats.Stopped,
		TotalSuccessfulEvents: stats.SuccessfulEvents,
	}

	if err := u.Provider.HealthCheck(ctx); err != nil {
		rep.APIHealthy = false
		rep.APIError = err.Error()
		return rep, nil
	}

	docs, err := u.Provider.ListPending(ctx)
	if err != nil {
		rep.APIError = err.Error()
		return rep, nil
	}
	for _, d := range docs {
		if _, err := u.Subs.GetByDocument(ctx, d.ID); errors.Is(err, postgres.ErrNotFound) {
			rep.PendingNotTracked++
		}
	}
	return rep, nil
}
