package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/robfig/cron/v3"

	"github.com/renewkit/acme"
)

// Scheduler sweeps the renewal registry once per Run call, processing
// every record whose Force flag is set or whose NextDue has arrived.
type Scheduler struct {
	services *Services
	renewer  *Renewer
}

// NewScheduler binds a Scheduler to services and the process-wide run
// options.
func NewScheduler(services *Services, opts acme.Options) *Scheduler {
	return &Scheduler{services: services, renewer: NewRenewer(services, opts)}
}

// Run performs one sweep: due records are renewed, one failure logs and
// continues rather than aborting the batch (§4.7).
func (s *Scheduler) Run(ctx context.Context, force bool) error {
	renewals, err := s.services.Registry.Renewals(ctx)
	if err != nil {
		return fmt.Errorf("engine: list renewals: %w", err)
	}

	now := time.Now()
	for i := range renewals {
		sr := renewals[i]
		due := force || sr.NextDue.IsZero() || !sr.NextDue.After(now)
		if !due {
			s.services.Logger.Debug("renewal not yet due", "host", sr.Target.Host,
				"due_in", humanize.Time(sr.NextDue))
			continue
		}
		s.runOne(ctx, &sr)
	}
	return nil
}

// runOne renews a single record behind its own defer/recover so one bad
// record never aborts the sweep. The renewal driver (C6) only returns a
// result; runOne, as its caller, persists it via the registry unconditionally
// for both success and failure, so a failed attempt is still recorded with
// an updated LastRun rather than silently dropped.
func (s *Scheduler) runOne(ctx context.Context, sr *acme.ScheduledRenewal) {
	defer func() {
		if r := recover(); r != nil {
			s.services.Logger.Error("renewal record panicked, will retry on next run",
				"host", sr.Target.Host, "panic", r)
		}
	}()

	result := s.renewer.Renew(ctx, sr)

	if err := s.services.Registry.Save(ctx, sr, result); err != nil {
		s.services.Logger.Error("save renewal record failed", "host", sr.Target.Host, "error", err)
	}

	if !result.Success {
		s.services.Logger.Error("renewal failed, will retry on next run",
			"host", sr.Target.Host, "error", result.ErrorMessage)
		return
	}
	s.services.Logger.Info("renewal succeeded", "host", sr.Target.Host,
		"next_due", humanize.Time(sr.NextDue))
}

// StartCron runs Run on cronSpec's schedule as a long-lived daemon tick,
// additive ambient infrastructure alongside the once-per-invocation Run
// model. The returned stop func halts the cron scheduler.
func (s *Scheduler) StartCron(ctx context.Context, cronSpec string) (stop func(), err error) {
	c := cron.New()
	_, err = c.AddFunc(cronSpec, func() {
		if err := s.Run(ctx, false); err != nil {
			s.services.Logger.Error("scheduled sweep failed", "error", err)
		}
	})
	if err != nil {
		return nil, fmt.Errorf("engine: schedule cron %q: %w", cronSpec, err)
	}
	c.Start()
	return func() { <-c.Stop().Done() }, nil
}
