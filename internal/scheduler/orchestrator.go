package scheduler

import (
	"context"
	"time"

	"github.com/fortuna/nightbox/internal/logging"
)

// RunFunc executes one full report run.
type RunFunc func(ctx context.Context) error

// Config holds scheduler configuration.
type Config struct {
	ReportHour int            // local hour of the nightly run, default 2
	Zone       *time.Location // default time.Local
	Logger     *logging.Logger
}

// Orchestrator fires the nightly report run at a fixed local hour and
// serves manual triggers in between.
type Orchestrator struct {
	run     RunFunc
	hour    int
	zone    *time.Location
	now     func() time.Time
	logger  *logging.Logger
	trigger chan struct{}
	cancel  context.CancelFunc
}

// NewOrchestrator creates a scheduler around the given run function.
func NewOrchestrator(run RunFunc, cfg Config) *Orchestrator {
	hour := cfg.ReportHour
	if hour < 0 || hour > 23 {
		hour = 2
	}
	zone := cfg.Zone
	if zone == nil {
		zone = time.Local
	}
	logger := cfg.Logger
	if logger == nil {
		logger = logging.Default()
	}
	return &Orchestrator{
		run:     run,
		hour:    hour,
		zone:    zone,
		now:     time.Now,
		logger:  logger,
		trigger: make(chan struct{}, 1),
	}
}

// Start blocks, firing the run at the configured hour each day and on
// manual triggers, until the context is cancelled or Stop is called.
func (o *Orchestrator) Start(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	o.cancel = cancel

	o.logger.Info("scheduler started", "hour", o.hour, "zone", o.zone.String())

	for {
		next := nextRunAt(o.now().In(o.zone), o.hour)
		wait := time.Until(next)
		o.logger.Info("next report run scheduled", "at", next.Format("2006-01-02 15:04:05 MST"), "in", wait.Round(time.Second))

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			o.logger.Info("scheduler stopped")
			return
		case <-o.trigger:
			timer.Stop()
			o.fire(ctx, "manual")
		case <-timer.C:
			o.fire(ctx, "nightly")
		}
	}
}

func (o *Orchestrator) fire(ctx context.Context, kind string) {
	start := o.now()
	o.logger.Info("report run starting", "kind", kind)
	if err := o.run(ctx); err != nil {
		o.logger.Error("report run failed", "kind", kind, "error", err)
		return
	}
	o.logger.Info("report run complete", "kind", kind, "duration", time.Since(start).Round(time.Second))
}

// Trigger requests a run outside the nightly schedule. A request made
// while one is already pending is coalesced into it.
func (o *Orchestrator) Trigger() {
	select {
	case o.trigger <- struct{}{}:
	default:
	}
}

// Stop gracefully stops the scheduler.
func (o *Orchestrator) Stop() {
	if o.cancel != nil {
		o.cancel()
	}
}

// nextRunAt returns the next occurrence of the given local hour
// strictly after now.
func nextRunAt(now time.Time, hour int) time.Time {
	next := time.Date(now.Year(), now.Month(), now.Day(), hour, 0, 0, 0, now.Location())
	if !now.Before(next) {
		next = next.AddDate(0, 0, 1)
	}
	return next
}
