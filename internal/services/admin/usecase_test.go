package admin

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/esign-tools/renotify/internal/domain/document"
	"github.com/esign-tools/renotify/internal/domain/reminder"
	"github.com/esign-tools/renotify/internal/domain/subscription"
	"github.com/esign-tools/renotify/internal/domain/suppression"
	"github.com/esign-tools/renotify/internal/repository/postgres"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type memSubs struct {
	subs map[string]*subscription.Subscription
}

func (m *memSubs) Upsert(_ context.Context, documentID string, p subscription.Policy) (*subscription.Subscription, error) {
	s, ok := m.subs[documentID]
	if !ok {
		s = &subscription.Subscription{DocumentID: documentID, CreatedAt: time.Now()}
		m.subs[documentID] = s
	}
	s.Enabled = true
	s.IntervalDays = p.IntervalDays
	s.MaxReminders = p.MaxReminders
	s.StoppedAt = nil
	s.StoppedReason = nil
	return s, nil
}

func (m *memSubs) GetByDocument(_ context.Context, documentID string) (*subscription.Subscription, error) {
	s, ok := m.subs[documentID]
	if !ok {
		return nil, postgres.ErrNotFound
	}
	return s, nil
}

func (m *memSubs) ListDue(context.Context, time.Time, int) ([]*subscription.Subscription, error) {
	return nil, nil
}

func (m *memSubs) Disable(_ context.Context, documentID string, reason subscription.StopReason, at time.Time) error {
	s, ok := m.subs[documentID]
	if !ok {
		return postgres.ErrNotFound
	}
	rs := string(reason)
	s.Enabled = false
	s.StoppedAt = &at
	s.StoppedReason = &rs
	return nil
}

func (m *memSubs) Stats(context.Context) (*subscription.Stats, error) {
	st := &subscription.Stats{}
	for _, s := range m.subs {
		if s.Enabled {
			st.Active++
		} else {
			st.Stopped++
		}
	}
	return st, nil
}

type memEvents struct {
	byDoc map[string][]*reminder.Event
}

func (m *memEvents) Append(_ context.Context, e *reminder.Event) error {
	e.Ordinal = len(m.byDoc[e.DocumentID]) + 1
	m.byDoc[e.DocumentID] = append(m.byDoc[e.DocumentID], e)
	return nil
}

func (m *memEvents) ListByDocument(_ context.Context, documentID string, limit int) ([]*reminder.Event, error) {
	evs := m.byDoc[documentID]
	var out []*reminder.Event
	for i := len(evs) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, evs[i])
	}
	return out, nil
}

func (m *memEvents) HistoryFor(_ context.Context, documentID string) (*reminder.History, error) {
	h := &reminder.History{}
	for _, e := range m.byDoc[documentID] {
		h.Attempts++
		if e.Success {
			h.Successes++
		}
		t := e.SentAt
		h.LastAttemptAt = &t
	}
	return h, nil
}

type memSupps struct {
	rows []*suppression.Suppression
}

func (m *memSupps) Insert(_ context.Context, s *suppression.Suppression) error {
	cp := *s
	m.rows = append(m.rows, &cp)
	return nil
}

func (m *memSupps) ListByDocument(_ context.Context, documentID string) ([]*suppression.Suppression, error) {
	var out []*suppression.Suppression
	for _, s := range m.rows {
		if s.DocumentID == documentID {
			out = append(out, s)
		}
	}
	return out, nil
}

func (m *memSupps) DeleteByDocument(_ context.Context, documentID string) (int64, error) {
	var kept []*suppression.Suppression
	var n int64
	for _, s := range m.rows {
		if s.DocumentID == documentID {
			n++
			continue
		}
		kept = append(kept, s)
	}
	m.rows = kept
	return n, nil
}

func (m *memSupps) IsSuppressed(_ context.Context, documentID, recipientID string) (bool, error) {
	for _, s := range m.rows {
		if s.DocumentID != documentID {
			continue
		}
		if s.IsDocumentLevel() || (recipientID != "" && *s.RecipientID == recipientID) {
			return true, nil
		}
	}
	return false, nil
}

type fakeProvider struct {
	docs      map[string]*document.Document
	healthErr error
	listErr   error
}

func (f *fakeProvider) ListPending(context.Context) ([]*document.Document, error) {
	if f.listErr != nil {
		return nil, f.listErr
	}
	var out []*document.Document
	for _, d := range f.docs {
		out = append(out, d)
	}
	return out, nil
}

func (f *fakeProvider) GetByID(_ context.Context, id string) (*document.Document, error) {
	d, ok := f.docs[id]
	if !ok {
		return nil, document.ErrNotFound
	}
	return d, nil
}

func (f *fakeProvider) SendReminder(context.Context, string, []string) error { return nil }

func (f *fakeProvider) HealthCheck(context.Context) error { return f.healthErr }

type passthroughTx struct{}

func (passthroughTx) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

type fixedClock struct{ t time.Time }

func (c fixedClock) Now() time.Time { return c.t }

func newUsecase() (*Usecase, *memSubs, *memSupps, *fakeProvider) {
	subs := &memSubs{subs: map[string]*subscription.Subscription{}}
	evs := &memEvents{byDoc: map[string][]*reminder.Event{}}
	supps := &memSupps{}
	prov := &fakeProvider{docs: map[string]*document.Document{}}

	uc := &Usecase{
		Subs:     subs,
		Events:   evs,
		Supps:    supps,
		Provider: prov,
		Tx:       passthroughTx{},
		Defaults: subscription.Policy{IntervalDays: 4, MaxReminders: 10},
		Clock:    fixedClock{t: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)},
		Log:      zap.NewNop(),
	}
	return uc, subs, supps, prov
}

func TestEnroll_Idempotent(t *testing.T) {
	uc, subs, _, _ := newUsecase()
	ctx := context.Background()

	first, err := uc.Enroll(ctx, "doc-1", 7, 5)
	require.NoError(t, err)
	second, err := uc.Enroll(ctx, "doc-1", 7, 5)
	require.NoError(t, err)

	assert.Len(t, subs.subs, 1)
	assert.Same(t, first, second)
	assert.Equal(t, 7, second.IntervalDays)
	assert.Equal(t, 5, second.MaxReminders)
}

func TestEnroll_DefaultsApply(t *testing.T) {
	uc, _, _, _ := newUsecase()

	sub, err := uc.Enroll(context.Background(), "doc-1", 0, 0)
	require.NoError(t, err)

	assert.Equal(t, 4, sub.IntervalDays)
	assert.Equal(t, 10, sub.MaxReminders)
}

func TestEnroll_RejectsInvalidPolicy(t *testing.T) {
	uc, _, _, _ := newUsecase()

	_, err := uc.Enroll(context.Background(), "doc-1", -1, 5)
	assert.ErrorIs(t, err, ErrInvalidPolicy)
}

func TestStop_DocumentLevelDisablesSubscription(t *testing.T) {
	uc, subs, supps, _ := newUsecase()
	ctx := context.Background()
	_, err := uc.Enroll(ctx, "doc-1", 0, 0)
	require.NoError(t, err)

	require.NoError(t, uc.Stop(ctx, "doc-1", "", "owner asked"))

	sub := subs.subs["doc-1"]
	assert.False(t, sub.Enabled)
	require.NotNil(t, sub.StoppedReason)
	assert.Equal(t, "owner asked", *sub.StoppedReason)

	require.Len(t, supps.rows, 1)
	assert.True(t, supps.rows[0].IsDocumentLevel())
	assert.Equal(t, suppression.ActorOwner, supps.rows[0].Actor)
}

func TestStop_RecipientLevelKeepsSubscriptionEnabled(t *testing.T) {
	uc, subs, supps, _ := newUsecase()
	ctx := context.Background()
	_, err := uc.Enroll(ctx, "doc-1", 0, 0)
	require.NoError(t, err)

	require.NoError(t, uc.Stop(ctx, "doc-1", "r1", "bounced"))

	assert.True(t, subs.subs["doc-1"].Enabled)
	require.Len(t, supps.rows, 1)
	require.NotNil(t, supps.rows[0].RecipientID)
	assert.Equal(t, "r1", *supps.rows[0].RecipientID)
}

func TestStop_RecipientLevelIsIdempotent(t *testing.T) {
	uc, _, supps, _ := newUsecase()
	ctx := context.Background()
	_, err := uc.Enroll(ctx, "doc-1", 0, 0)
	require.NoError(t, err)

	require.NoError(t, uc.Stop(ctx, "doc-1", "r1", "bounced"))
	require.NoError(t, uc.Stop(ctx, "doc-1", "r1", "bounced"))

	assert.Len(t, supps.rows, 1)
}

func TestStop_UnknownDocument(t *testing.T) {
	uc, _, _, _ := newUsecase()

	err := uc.Stop(context.Background(), "missing", "", "")
	assert.ErrorIs(t, err, postgres.ErrNotFound)
}

func TestResume_ClearsSuppressionsAndReenables(t *testing.T) {
	uc, subs, supps, _ := newUsecase()
	ctx := context.Background()
	_, err := uc.Enroll(ctx, "doc-1", 7, 5)
	require.NoError(t, err)
	require.NoError(t, uc.Stop(ctx, "doc-1", "", "owner asked"))

	sub, err := uc.Resume(ctx, "doc-1")
	require.NoError(t, err)

	assert.True(t, sub.Enabled)
	assert.Nil(t, sub.StoppedAt)
	assert.Nil(t, sub.StoppedReason)
	assert.Equal(t, 7, sub.IntervalDays, "resume keeps the previously-set policy")
	assert.Equal(t, 5, sub.MaxReminders)
	assert.Empty(t, supps.rows)
	assert.True(t, subs.subs["doc-1"].Enabled)
}

func TestStatus_MergesStoreAndProvider(t *testing.T) {
	uc, _, _, prov := newUsecase()
	ctx := context.Background()
	_, err := uc.Enroll(ctx, "doc-1", 0, 0)
	require.NoError(t, err)
	require.NoError(t, uc.Stop(ctx, "doc-1", "r2", "bounced"))

	prov.docs["doc-1"] = &document.Document{
		ID: "doc-1",
		Recipients: []document.Recipient{
			{ID: "r1", Status: document.StatusPending},
			{ID: "r2", Status: document.StatusViewed},
		},
	}

	st, err := uc.Status(ctx, "doc-1")
	require.NoError(t, err)

	assert.True(t, st.Enabled)
	assert.Empty(t, st.ProviderError)
	require.Len(t, st.Recipients, 2)
	assert.False(t, st.Recipients[0].Suppressed)
	assert.True(t, st.Recipients[1].Suppressed)
}

func TestStatus_ProviderErrorIsReportedNotFatal(t *testing.T) {
	uc, _, _, _ := newUsecase()
	ctx := context.Background()
	_, err := uc.Enroll(ctx, "doc-1", 0, 0)
	require.NoError(t, err)
	// provider has no such document

	st, err := uc.Status(ctx, "doc-1")
	require.NoError(t, err)

	assert.NotEmpty(t, st.ProviderError)
	assert.Empty(t, st.Recipients)
}

func TestReport_CountsUntrackedPendingDocuments(t *testing.T) {
	uc, _, _, prov := newUsecase()
	ctx := context.Background()
	_, err := uc.Enroll(ctx, "doc-1", 0, 0)
	require.NoError(t, err)

	prov.docs["doc-1"] = &document.Document{ID: "doc-1"}
	prov.docs["doc-2"] = &document.Document{ID: "doc-2"}

	rep, err := uc.Report(ctx)
	require.NoError(t, err)

	assert.True(t, rep.APIHealthy)
	assert.Equal(t, int64(1), rep.ActiveSubscriptions)
	assert.Equal(t, 1, rep.PendingNotTracked)
}

func TestReport_UnhealthyProvider(t *testing.T) {
	uc, _, _, prov := newUsecase()
	prov.healthErr = errors.New("status 503; provider may be degraded")

	rep, err := uc.Report(context.Background())
	require.NoError(t, err)

	assert.False(t, rep.APIHealthy)
	assert.Contains(t, rep.APIError, "503")
	assert.Zero(t, rep.PendingNotTracked)
}
