package sync

import (
	"context"
	"log/slog"
	"sync"

	"golang.org/x/sync/singleflight"
)

// Events receives pass lifecycle notifications. Implemented by the SSE
// broker; nil disables publishing.
type Events interface {
	PublishSyncStarted()
	PublishSyncCompleted(Summary)
}

// Runner executes passes without blocking the caller. Concurrent triggers
// are collapsed deterministically: a refresh requested while a pass is in
// flight joins that pass and receives its summary.
type Runner struct {
	ctrl   *Controller
	events Events
	logger *slog.Logger

	group singleflight.Group

	mu   sync.Mutex
	last *Summary
}

// NewRunner creates a runner around ctrl.
func NewRunner(ctrl *Controller, events Events, logger *slog.Logger) *Runner {
	return &Runner{ctrl: ctrl, events: events, logger: logger}
}

// Run executes one pass synchronously, joining an in-flight pass if one is
// already running.
func (r *Runner) Run(ctx context.Context, opts PassOptions) (Summary, error) {
	v, err, _ := r.group.Do("pass", func() (any, error) {
		if r.events != nil {
			r.events.PublishSyncStarted()
		}
		sum, err := r.ctrl.Pass(ctx, opts)
		r.mu.Lock()
		r.last = &sum
		r.mu.Unlock()
		if r.events != nil {
			r.events.PublishSyncCompleted(sum)
		}
		return sum, err
	})
	sum, _ := v.(Summary)
	return sum, err
}

// TriggerAsync starts a pass in its own goroutine and returns immediately.
// Completion is reported through Events and LastSummary.
func (r *Runner) TriggerAsync(ctx context.Context, opts PassOptions) {
	go func() {
		if _, err := r.Run(ctx, opts); err != nil && !Canceled(err) {
			r.logger.Error("sync: pass failed", slog.String("error", err.Error()))
		}
	}()
}

// LastSummary returns the most recently completed pass summary, or nil when
// no pass has finished yet.
func (r *Runner) LastSummary() *Summary {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.last == nil {
		return nil
	}
	sum := *r.last
	return &sum
}
