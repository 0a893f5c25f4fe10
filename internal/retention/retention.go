// Package retention prunes aged draft records on a cron schedule.
//
// Submitted documents are not touched; only draft records older than the
// configured maximum age are removed.
package retention

import (
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/propelhealth/onboardflow/internal/store"
)

// DefaultSchedule runs the sweep weekly, at midnight on Sunday.
const DefaultSchedule = "0 0 * * 0"

// DefaultMaxAge is how long an unsubmitted draft survives without activity.
const DefaultMaxAge = 30 * 24 * time.Hour

// Cleaner periodically deletes stale drafts from a DraftStore.
type Cleaner struct {
	store    store.DraftStore
	schedule string
	maxAge   time.Duration
	cron     *cron.Cron
}

// Opts holds configuration options for the Cleaner.
type Opts struct {
	Schedule string
	MaxAge   time.Duration
}

// Option defines a configuration option for the Cleaner.
type Option func(*Opts)

// WithSchedule overrides the cron expression for sweep runs.
func WithSchedule(expr string) Option {
	return func(o *Opts) { o.Schedule = expr }
}

// WithMaxAge overrides how old a draft must be before deletion.
func WithMaxAge(age time.Duration) Option {
	return func(o *Opts) { o.MaxAge = age }
}

// NewCleaner creates a retention cleaner over the given store.
func NewCleaner(s store.DraftStore, opts ...Option) *Cleaner {
	cfg := Opts{Schedule: DefaultSchedule, MaxAge: DefaultMaxAge}
	for _, opt := range opts {
		opt(&cfg)
	}
	return &Cleaner{store: s, schedule: cfg.Schedule, maxAge: cfg.MaxAge}
}

// Start registers the sweep job and starts the cron scheduler.
func (c *Cleaner) Start() error {
	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)
	c.cron = cron.New(cron.WithParser(parser), cron.WithChain(cron.Recover(cron.DefaultLogger)))
	if _, err := c.cron.AddFunc(c.schedule, func() { c.RunOnce() }); err != nil {
		return err
	}
	c.cron.Start()
	slog.Info("Retention cleaner started", "schedule", c.schedule, "maxAge", c.maxAge)
	return nil
}

// Stop stops the scheduler and waits for a running sweep to finish.
func (c *Cleaner) Stop() {
	if c.cron != nil {
		ctx := c.cron.Stop()
		<-ctx.Done()
	}
	slog.Debug("Retention cleaner stopped")
}

// RunOnce performs a single sweep and returns the number of drafts removed.
func (c *Cleaner) RunOnce() int64 {
	cutoff := time.Now().Add(-c.maxAge)
	deleted, err := c.store.DeleteDraftsOlderThan(cutoff)
	if err != nil {
		slog.Error("Retention sweep failed", "error", err, "cutoff", cutoff)
		return 0
	}
	if deleted > 0 {
		slog.Info("Retention sweep removed stale drafts", "deleted", deleted, "cutoff", cutoff)
	} else {
		slog.Debug("Retention sweep found nothing to remove", "cutoff", cutoff)
	}
	return deleted
}
