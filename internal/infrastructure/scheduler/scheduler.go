package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/alem-hub/arena-engine/pkg/logger"
	"github.com/alem-hub/arena-engine/pkg/timeutil"
)

// ══════════════════════════════════════════════════════════════════════════════
// JOB
// ══════════════════════════════════════════════════════════════════════════════

// Job is work fired by the scheduler.
type Job interface {
	// Name returns the unique name of the job.
	Name() string

	// Run executes the job. The context is cancelled on shutdown.
	Run(ctx context.Context) error
}

// CronEntry is a registered job and its schedule state.
type CronEntry struct {
	Name       string
	Expression *CronExpression
	Job        Job
	LastRun    time.Time
	NextRun    time.Time
	RunCount   int64
	LastError  string
}

// ══════════════════════════════════════════════════════════════════════════════
// CRON SCHEDULER
// ══════════════════════════════════════════════════════════════════════════════

// CronScheduler fires jobs on cron schedules; due jobs run one after another
// on the scheduler goroutine.
type CronScheduler struct {
	mu       sync.RWMutex
	entries  map[string]*CronEntry
	logger   *logger.Logger
	clock    timeutil.Clock
	location *time.Location
	tick     time.Duration
}

// CronOption configures the CronScheduler.
type CronOption func(*CronScheduler)

// WithLocation sets the timezone expressions are evaluated in.
func WithLocation(loc *time.Location) CronOption {
	return func(cs *CronScheduler) {
		if loc != nil {
			cs.location = loc
		}
	}
}

// WithCronLogger sets the logger.
func WithCronLogger(l *logger.Logger) CronOption {
	return func(cs *CronScheduler) {
		if l != nil {
			cs.logger = l
		}
	}
}

// WithCronClock replaces the wall clock.
func WithCronClock(c timeutil.Clock) CronOption {
	return func(cs *CronScheduler) {
		if c != nil {
			cs.clock = c
		}
	}
}

// NewCronScheduler creates a scheduler with no jobs.
func NewCronScheduler(opts ...CronOption) *CronScheduler {
	cs := &CronScheduler{
		entries:  make(map[string]*CronEntry),
		logger:   logger.Nop(),
		clock:    timeutil.SystemClock{},
		location: time.UTC,
		tick:     time.Second,
	}
	for _, opt := range opts {
		opt(cs)
	}
	cs.logger = cs.logger.With(logger.Component("cron"))
	return cs
}

// AddJob registers job under its name with a cron expression.
func (cs *CronScheduler) AddJob(cronExpr string, job Job) error {
	if job == nil {
		return errors.New("job cannot be nil")
	}
	expr, err := ParseCronExpression(cronExpr)
	if err != nil {
		return err
	}

	cs.mu.Lock()
	defer cs.mu.Unlock()

	if _, exists := cs.entries[job.Name()]; exists {
		return fmt.Errorf("cron job %q already registered", job.Name())
	}
	next := expr.Next(cs.clock.Now().In(cs.location))
	cs.entries[job.Name()] = &CronEntry{
		Name:       job.Name(),
		Expression: expr,
		Job:        job,
		NextRun:    next,
	}

	cs.logger.Info("cron job added",
		logger.JobName(job.Name()),
		logger.String("expression", cronExpr),
		logger.Time("next_run", next),
	)
	return nil
}

// Entries returns copies of every entry ordered by next run.
func (cs *CronScheduler) Entries() []CronEntry {
	cs.mu.RLock()
	defer cs.mu.RUnlock()

	out := make([]CronEntry, 0, len(cs.entries))
	for _, e := range cs.entries {
		out = append(out, *e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].NextRun.Before(out[j].NextRun) })
	return out
}

// Run polls for due jobs until ctx is cancelled.
func (cs *CronScheduler) Run(ctx context.Context) error {
	cs.logger.Info("cron scheduler started", logger.String("timezone", cs.location.String()))

	ticker := time.NewTicker(cs.tick)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			cs.logger.Info("cron scheduler stopped")
			return nil
		case <-ticker.C:
			cs.runDue(ctx, cs.clock.Now().In(cs.location))
		}
	}
}

// runDue fires every entry whose NextRun is not after now. A job that was
// missed several times while the process was down fires once.
func (cs *CronScheduler) runDue(ctx context.Context, now time.Time) int {
	cs.mu.Lock()
	var due []*CronEntry
	for _, e := range cs.entries {
		if !e.NextRun.IsZero() && !e.NextRun.After(now) {
			e.LastRun = now
			e.NextRun = e.Expression.Next(now)
			e.RunCount++
			due = append(due, e)
		}
	}
	cs.mu.Unlock()

	sort.Slice(due, func(i, j int) bool { return due[i].Name < due[j].Name })
	for _, e := range due {
		start := time.Now()
		err := e.Job.Run(ctx)

		cs.mu.Lock()
		if err != nil {
			e.LastError = err.Error()
		} else {
			e.LastError = ""
		}
		cs.mu.Unlock()

		if err != nil {
			cs.logger.Error("cron job failed", logger.JobName(e.Name), logger.Latency(time.Since(start)), logger.Err(err))
			continue
		}
		cs.logger.Info("cron job fired", logger.JobName(e.Name), logger.Latency(time.Since(start)))
	}
	return len(due)
}
