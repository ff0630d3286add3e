package scheduler

import (
	"context"
	"time"

	"github.com/esign-tools/renotify/internal/config"
	"github.com/esign-tools/renotify/internal/services/dispatcher"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"
)

// Runner drives the periodic reminder cycle. Cycles never overlap: the next
// tick is consumed only after the previous cycle returns. A panic inside a
// cycle is logged and the loop keeps waiting for its next tick.
type Runner struct {
	Log  *zap.Logger
	Disp *dispatcher.Dispatcher
	Disc *Discoverer
	Cfg  *config.SchedCfg
	Loc  *time.Location

	mCycles   prometheus.Counter
	mSent     prometheus.Counter
	mSkipped  prometheus.Counter
	mErr      prometheus.Counter
	mEnrolled prometheus.Counter
	mCycleDur prometheus.Histogram
}

func New(log *zap.Logger, disp *dispatcher.Dispatcher, disc *Discoverer, cfg *config.SchedCfg, loc *time.Location) *Runner {
	if loc == nil {
		loc = time.UTC
	}
	return &Runner{
		Log:  log,
		Disp: disp,
		Disc: disc,
		Cfg:  cfg,
		Loc:  loc,
		mCycles: promauto.NewCounter(prometheus.CounterOpts{
			Name: "renotify_cycles_total", Help: "Reminder cycles started",
		}),
		mSent: promauto.NewCounter(prometheus.CounterOpts{
			Name: "renotify_reminders_sent_total", Help: "Reminders dispatched to the provider",
		}),
		mSkipped: promauto.NewCounter(prometheus.CounterOpts{
			Name: "renotify_candidates_skipped_total", Help: "Candidates skipped as not due or stopped",
		}),
		mErr: promauto.NewCounter(prometheus.CounterOpts{
			Name: "renotify_errors_total", Help: "Errors in the scheduler loop",
		}),
		mEnrolled: promauto.NewCounter(prometheus.CounterOpts{
			Name: "renotify_discovered_total", Help: "Documents auto-enrolled by discovery",
		}),
		mCycleDur: promauto.NewHistogram(prometheus.HistogramOpts{
			Name: "renotify_cycle_duration_seconds", Help: "Reminder cycle duration",
			Buckets: prometheus.DefBuckets,
		}),
	}
}

func (r *Runner) tick(ctx context.Context) {
	defer func() {
		if rec := recover(); rec != nil {
			r.mErr.Inc()
			r.Log.Error("cycle panic", zap.Any("panic", rec))
		}
	}()

	start := time.Now()
	r.mCycles.Inc()

	if r.Disc != nil && r.Cfg.Discovery {
		n, err := r.Disc.Enroll(ctx)
		if err != nil {
			r.mErr.Inc()
			r.Log.Warn("discovery", zap.Error(err))
		} else if n > 0 {
			r.mEnrolled.Add(float64(n))
		}
	}

	rep, err := r.Disp.RunCycle(ctx, false)
	if err != nil {
		r.mErr.Inc()
		r.Log.Warn("cycle error", zap.Error(err))
	}

	r.mSent.Add(float64(rep.Sent))
	r.mSkipped.Add(float64(rep.Skipped))
	if rep.Errors > 0 {
		r.mErr.Add(float64(rep.Errors))
	}
	if rep.Processed > 0 || err != nil {
		r.Log.Info("cycle finished",
			zap.Int("processed", rep.Processed),
			zap.Int("sent", rep.Sent),
			zap.Int("skipped", rep.Skipped),
			zap.Int("errors", rep.Errors),
			zap.String("finished_at", time.Now().In(r.Loc).Format(time.RFC3339)),
		)
	}
	r.mCycleDur.Observe(time.Since(start).Seconds())
}

func (r *Runner) Run(ctx context.Context) error {
	ticker := time.NewTicker(r.Cfg.Tick)
	defer ticker.Stop()

	r.tick(ctx)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			r.tick(ctx)
		}
	}
}
