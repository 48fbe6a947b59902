package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/alem-hub/arena-engine/internal/application/jobs"
	"github.com/alem-hub/arena-engine/pkg/logger"
	"github.com/alem-hub/arena-engine/pkg/timeutil"
)

// UniqueSubmitter enqueues a job once per dedupe key.
type UniqueSubmitter interface {
	SubmitUnique(ctx context.Context, name string, payload any, key string, ttl time.Duration) (bool, error)
}

// WeeklyResetTrigger enqueues the weekly-reset job for the week that just
// closed. Several schedulers firing for the same week enqueue one job.
type WeeklyResetTrigger struct {
	jobs     UniqueSubmitter
	clock    timeutil.Clock
	location *time.Location
	dedupe   time.Duration
	logger   *logger.Logger
}

// NewWeeklyResetTrigger creates the trigger. Weeks start on Monday in loc.
func NewWeeklyResetTrigger(submitter UniqueSubmitter, loc *time.Location, clock timeutil.Clock, log *logger.Logger) *WeeklyResetTrigger {
	if loc == nil {
		loc = time.UTC
	}
	if clock == nil {
		clock = timeutil.SystemClock{}
	}
	if log == nil {
		log = logger.Nop()
	}
	return &WeeklyResetTrigger{
		jobs:     submitter,
		clock:    clock,
		location: loc,
		dedupe:   24 * time.Hour,
		logger:   log.With(logger.Component("weekly_reset_trigger")),
	}
}

// Name implements Job.
func (t *WeeklyResetTrigger) Name() string { return jobs.NameWeeklyReset }

// Run implements Job.
func (t *WeeklyResetTrigger) Run(ctx context.Context) error {
	closing := timeutil.StartOfWeek(t.clock.Now(), t.location).AddDate(0, 0, -7)
	key := ResetKey(closing)

	enqueued, err := t.jobs.SubmitUnique(ctx, jobs.NameWeeklyReset, jobs.WeeklyResetPayload{WeekStart: closing}, key, t.dedupe)
	if err != nil {
		return fmt.Errorf("enqueue weekly reset: %w", err)
	}
	if !enqueued {
		t.logger.Info("weekly reset already enqueued", logger.String("key", key))
		return nil
	}
	t.logger.Info("weekly reset enqueued", logger.Time("week_start", closing))
	return nil
}

// ResetKey is the dedupe key of the reset closing the week at weekStart.
func ResetKey(weekStart time.Time) string {
	return "weekly-reset:" + weekStart.Format("2006-01-02")
}
