package dispatcher

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/esign-tools/renotify/internal/domain/document"
	domkafka "github.com/esign-tools/renotify/internal/domain/kafka"
	"github.com/esign-tools/renotify/internal/domain/reminder"
	"github.com/esign-tools/renotify/internal/domain/subscription"
	"github.com/esign-tools/renotify/internal/domain/suppression"
	"github.com/esign-tools/renotify/internal/obs"
	"github.com/esign-tools/renotify/internal/obs/retry"
	"github.com/esign-tools/renotify/internal/repository/postgres"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

type Clock interface {
	Now() time.Time
}

type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now() }

// Report aggregates one cycle's outcomes.
type Report struct {
	Processed int `json:"processed"`
	Sent      int `json:"sent"`
	Skipped   int `json:"skipped"`
	Errors    int `json:"errors"`
}

// Dispatcher runs one reminder cycle: pull due candidates, evaluate
// eligibility against fresh provider state, send, and record. Candidates are
// processed independently; one document's failure never aborts the cycle.
type Dispatcher struct {
	Subs       subscription.Repo
	Events     reminder.Repo
	Supps      suppression.Repo
	Provider   document.Provider
	Bus        domkafka.ReminderEvents
	Tx         postgres.Transactor
	Clock      Clock
	Log        *zap.Logger
	BatchLimit int
}

// RunCycle performs one pass. The provider health probe runs first; if it
// fails after retries the cycle is abandoned with zero side effects. In dry
// run the provider send is skipped but a successful synthetic event is still
// appended, so repeated dry runs pace themselves like real ones.
func (d *Dispatcher) RunCycle(ctx context.Context, dryRun bool) (Report, error) {
	tr := otel.Tracer("dispatcher")
	ctx, span := tr.Start(ctx, "dispatcher.cycle",
		trace.WithAttributes(attribute.Bool("cycle.dry_run", dryRun)),
	)
	defer span.End()

	var rep Report

	if err := retry.Do(ctx, func() error {
		return d.Provider.HealthCheck(ctx)
	}, retry.HealthProbePolicy(d.Log)); err != nil {
		span.RecordError(err)
		return rep, fmt.Errorf("provider health: %w", err)
	}

	now := d.Clock.Now()
	candidates, err := d.Subs.ListDue(ctx, now, d.BatchLimit)
	if err != nil {
		span.RecordError(err)
		return rep, fmt.Errorf("list due: %w", err)
	}
	span.SetAttributes(attribute.Int("cycle.candidates", len(candidates)))

	for _, sub := range candidates {
		if err := ctx.Err(); err != nil {
			// Shutdown: finish nothing new, report what we have.
			return rep, err
		}
		rep.Processed++
		d.processOne(ctx, tr, sub, dryRun, &rep)
	}

	span.SetAttributes(
		attribute.Int("cycle.sent", rep.Sent),
		attribute.Int("cycle.skipped", rep.Skipped),
		attribute.Int("cycle.errors", rep.Errors),
	)
	return rep, nil
}

func (d *Dispatcher) processOne(ctx context.Context, tr trace.Tracer, sub *subscription.Subscription, dryRun bool, rep *Report) {
	ctx, span := tr.Start(ctx, "dispatcher.document",
		trace.WithAttributes(attribute.String("document.id", sub.DocumentID)),
	)
	defer span.End()

	log := obs.WithTrace(ctx, d.Log).With(zap.String("document_id", sub.DocumentID))

	doc, err := d.Provider.GetByID(ctx, sub.DocumentID)
	if err != nil {
		if errors.Is(err, document.ErrNotFound) {
			// Remote document gone: stop tracking, not a cycle error.
			d.stop(ctx, log, sub.DocumentID, subscription.ReasonDocumentNotFound)
			rep.Skipped++
			return
		}
		span.RecordError(err)
		log.Warn("get document", zap.Error(err))
		rep.Errors++
		return
	}

	hist, err := d.Events.HistoryFor(ctx, sub.DocumentID)
	if err != nil {
		span.RecordError(err)
		log.Warn("load history", zap.Error(err))
		rep.Errors++
		return
	}
	supps, err := d.Supps.ListByDocument(ctx, sub.DocumentID)
	if err != nil {
		span.RecordError(err)
		log.Warn("load suppressions", zap.Error(err))
		rep.Errors++
		return
	}

	dec := Evaluate(sub, hist, supps, doc, d.Clock.Now())
	if dec.TerminalReason != "" {
		d.stop(ctx, log, sub.DocumentID, dec.TerminalReason)
		rep.Skipped++
		return
	}
	if !dec.Due {
		rep.Skipped++
		return
	}

	d.send(ctx, log, sub.DocumentID, dec.EligibleRecipients, dryRun, rep)
}

func (d *Dispatcher) send(ctx context.Context, log *zap.Logger, documentID string, recipients []string, dryRun bool, rep *Report) {
	now := d.Clock.Now()
	ev := &reminder.Event{
		DocumentID:   documentID,
		RecipientIDs: recipients,
		SentAt:       now.UTC(),
		Success:      true,
	}

	if !dryRun {
		if err := d.Provider.SendReminder(ctx, documentID, recipients); err != nil {
			if errors.Is(err, document.ErrNotFound) {
				d.stop(ctx, log, documentID, subscription.ReasonDocumentNotFound)
				rep.Skipped++
				return
			}
			// Transient or dispatch failure: record the attempt, pace the
			// retry by the regular interval.
			detail := err.Error()
			ev.Success = false
			ev.ErrorDetail = &detail
		}
	}

	if err := d.Events.Append(ctx, ev); err != nil {
		log.Error("append event", zap.Error(err))
		rep.Errors++
		return
	}

	if !ev.Success {
		log.Warn("reminder dispatch failed",
			zap.Int("ordinal", ev.Ordinal),
			zap.Stringp("detail", ev.ErrorDetail),
		)
		rep.Errors++
		return
	}

	rep.Sent++
	log.Info("reminder sent",
		zap.Int("ordinal", ev.Ordinal),
		zap.Strings("recipients", recipients),
		zap.Bool("dry_run", dryRun),
	)
	if err := d.Bus.PublishReminderSent(ctx, documentID, recipients, ev.Ordinal, now); err != nil {
		log.Warn("publish reminder.sent", zap.Error(err))
	}
}

// stop records the suppression row and disables the subscription in one
// transaction, then announces it on the bus.
func (d *Dispatcher) stop(ctx context.Context, log *zap.Logger, documentID string, reason subscription.StopReason) {
	now := d.Clock.Now()
	err := d.Tx.WithTx(ctx, func(txCtx context.Context) error {
		if err := d.Supps.Insert(txCtx, &suppression.Suppression{
			DocumentID: documentID,
			Reason:     string(reason),
			Actor:      suppression.ActorSystem,
			StoppedAt:  now.UTC(),
		}); err != nil {
			return err
		}
		if err := d.Subs.Disable(txCtx, documentID, reason, now.UTC()); err != nil && !errors.Is(err, postgres.ErrNotFound) {
			return err
		}
		return nil
	})
	if err != nil {
		log.Error("auto-stop", zap.String("reason", string(reason)), zap.Error(err))
		return
	}
	log.Info("subscription stopped", zap.String("reason", string(reason)))
	if err := d.Bus.PublishSubscriptionStopped(ctx, documentID, string(reason), suppression.ActorSystem, now); err != nil {
		log.Warn("publish subscription.stopped", zap.Error(err))
	}
}
