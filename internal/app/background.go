package app

import (
	"context"
	"time"

	"taskdash/internal/event"
)

// Background runs a periodic command off the main loop. The first failure
// disables it for the rest of the process.
type Background struct {
	command string
	period  time.Duration
	scripts Scripts

	running  bool
	disabled bool
	lastRun  time.Time
	lastErr  error
}

func NewBackground(command string, period time.Duration, scripts Scripts) *Background {
	if period <= 0 {
		period = time.Minute
	}
	return &Background{command: command, period: period, scripts: scripts}
}

func (b *Background) Due(now time.Time) bool {
	if b == nil || b.command == "" || b.disabled || b.running {
		return false
	}
	return b.lastRun.IsZero() || now.Sub(b.lastRun) >= b.period
}

// Start marks a run in progress and returns the job to execute elsewhere.
// The job touches no shared state; its result comes back as an event.
func (b *Background) Start(now time.Time) func() event.Event {
	b.running = true
	b.lastRun = now
	command, scripts := b.command, b.scripts
	return func() event.Event {
		return event.BackgroundDone{Err: scripts.Run(context.Background(), command, nil)}
	}
}

// Finish records a run's outcome and reports whether the job is now disabled.
func (b *Background) Finish(err error) bool {
	b.running = false
	if err != nil {
		b.disabled = true
		b.lastErr = err
	}
	return b.disabled
}

func (b *Background) Disabled() bool { return b != nil && b.disabled }

func (b *Background) Err() error {
	if b == nil {
		return nil
	}
	return b.lastErr
}
