package engine

import (
	"context"
	"log/slog"

	"github.com/renewkit/acme"
)

// TaskScheduler registers the OS-level recurring task that triggers future
// renewal runs. Binding this to an actual scheduler (cron, systemd timer,
// Windows Task Scheduler) is out of scope here, per spec.md's Non-goals —
// this contract exists so the renewal driver's "register keep-alive task"
// step has somewhere to call.
type TaskScheduler interface {
	EnsureScheduled(ctx context.Context, r acme.ScheduledRenewal) error
}

// LoggingTaskScheduler is the default TaskScheduler: it only logs, leaving
// actual OS scheduling to whatever wraps this engine (e.g. a cron daemon
// driving engine.Scheduler.Run, or StartCron itself).
type LoggingTaskScheduler struct {
	Logger *slog.Logger
}

func (l LoggingTaskScheduler) EnsureScheduled(ctx context.Context, r acme.ScheduledRenewal) error {
	l.Logger.Info("renewal scheduled", "host", r.Target.Host, "next_due", acme.FormatTime(r.NextDue))
	return nil
}
