// Package retention implements periodic pruning of old delivery
// attempt logs, run as a river.PeriodicJob on River's own scheduler
// rather than a hand-rolled ticker loop, since the job queue is
// already River.
package retention

import (
	"context"
	"time"

	"github.com/riverqueue/river"

	"github.com/yourusername/webhookrelay/internal/clock"
	"github.com/yourusername/webhookrelay/internal/logging"
	"github.com/yourusername/webhookrelay/internal/metrics"
	"github.com/yourusername/webhookrelay/internal/store"
)

// SweepArgs carries no per-run parameters; the retention window comes
// from Worker.RetentionWindow at run time.
type SweepArgs struct{}

// Kind implements river.JobArgs.
func (SweepArgs) Kind() string { return "retention_sweep" }

// Worker deletes delivery_attempts rows older than the configured
// retention window. It never touches webhook_deliveries or
// subscriptions.
type Worker struct {
	river.WorkerDefaults[SweepArgs]

	Store           store.Store
	RetentionWindow time.Duration
	Clock           clock.Clock
	Log             logging.Logger
}

// New builds a retention Worker. If window <= 0, Work is a no-op,
// disabled entirely when the window is zero or negative.
func New(st store.Store, window time.Duration, log logging.Logger) *Worker {
	return &Worker{Store: st, RetentionWindow: window, Clock: clock.Real(), Log: log}
}

func (w *Worker) Work(ctx context.Context, _ *river.Job[SweepArgs]) error {
	if w.RetentionWindow <= 0 {
		w.Log.Debug("retention sweep disabled, skipping")
		return nil
	}
	cutoff := w.Clock.Now().Add(-w.RetentionWindow)
	deleted, err := w.Store.DeleteAttemptsOlderThan(ctx, cutoff)
	if err != nil {
		w.Log.Error("retention sweep failed", err)
		return err
	}
	metrics.RetentionSwept.WithLabelValues().Add(float64(deleted))
	w.Log.With(map[string]interface{}{"deleted": deleted, "cutoff": cutoff}).Info("retention sweep complete")
	return nil
}

// PeriodicJob returns the river.PeriodicJob scheduling this sweep on
// the given interval (default: daily).
func PeriodicJob(interval time.Duration) *river.PeriodicJob {
	return river.NewPeriodicJob(
		river.PeriodicInterval(interval),
		func() (river.JobArgs, *river.InsertOpts) {
			return SweepArgs{}, nil
		},
		&river.PeriodicJobOpts{RunOnStart: false},
	)
}
