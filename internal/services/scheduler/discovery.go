package scheduler

import (
	"context"
	"errors"
	"fmt"

	"github.com/esign-tools/renotify/internal/domain/document"
	"github.com/esign-tools/renotify/internal/domain/subscription"
	"github.com/esign-tools/renotify/internal/repository/postgres"
	"go.uber.org/zap"
)

// Discoverer enrolls provider documents that are still pending signatures but
// not yet tracked. Already-known subscriptions are left alone, stopped ones
// included: discovery must never resurrect an operator stop.
type Discoverer struct {
	Provider document.Provider
	Subs     subscription.Repo
	Defaults subscription.Policy
	Log      *zap.Logger
}

func (d *Discoverer) Enroll(ctx context.Context) (int, error) {
	docs, err := d.Provider.ListPending(ctx)
	if err != nil {
		return 0, fmt.Errorf("list pending documents: %w", err)
	}

	enrolled := 0
	for _, doc := range docs {
		_, err := d.Subs.GetByDocument(ctx, doc.ID)
		if err == nil {
			continue
		}
		if !errors.Is(err, postgres.ErrNotFound) {
			d.Log.Warn("discovery lookup", zap.String("document_id", doc.ID), zap.Error(err))
			continue
		}
		if _, err := d.Subs.Upsert(ctx, doc.ID, d.Defaults); err != nil {
			d.Log.Warn("discovery enroll", zap.String("document_id", doc.ID), zap.Error(err))
			continue
		}
		enrolled++
		d.Log.Info("document enrolled", zap.String("document_id", doc.ID), zap.String("title", doc.Title))
	}
	return enrolled, nil
}
