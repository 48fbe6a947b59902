package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/alem-hub/arena-engine/internal/application/jobs"
	"github.com/alem-hub/arena-engine/pkg/logger"
	"github.com/alem-hub/arena-engine/pkg/timeutil"
)

// RebuildTrigger enqueues a rebuild-leaderboard job. Triggers firing within
// the same hour, from cron or from worker startup, enqueue one job.
type RebuildTrigger struct {
	jobs   UniqueSubmitter
	clock  timeutil.Clock
	reason string
	logger *logger.Logger
}

// NewRebuildTrigger creates the trigger. reason is carried in the payload.
func NewRebuildTrigger(submitter UniqueSubmitter, reason string, clock timeutil.Clock, log *logger.Logger) *RebuildTrigger {
	if clock == nil {
		clock = timeutil.SystemClock{}
	}
	if log == nil {
		log = logger.Nop()
	}
	return &RebuildTrigger{
		jobs:   submitter,
		clock:  clock,
		reason: reason,
		logger: log.With(logger.Component("rebuild_trigger")),
	}
}

// Name implements Job.
func (t *RebuildTrigger) Name() string { return jobs.NameRebuildLeaderboard }

// Run implements Job.
func (t *RebuildTrigger) Run(ctx context.Context) error {
	key := RebuildKey(t.clock.Now())
	enqueued, err := t.jobs.SubmitUnique(ctx, jobs.NameRebuildLeaderboard, jobs.RebuildLeaderboardPayload{Reason: t.reason}, key, time.Hour)
	if err != nil {
		return fmt.Errorf("enqueue leaderboard rebuild: %w", err)
	}
	if enqueued {
		t.logger.Info("leaderboard rebuild enqueued", logger.String("reason", t.reason))
	}
	return nil
}

// RebuildKey is the dedupe key of rebuilds requested during the hour of now.
func RebuildKey(now time.Time) string {
	return "rebuild-leaderboard:" + now.UTC().Truncate(time.Hour).Format("2006-01-02T15")
}
