package scheduler

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alem-hub/arena-engine/internal/application/jobs"
	rediscache "github.com/alem-hub/arena-engine/internal/infrastructure/persistence/redis"
	"github.com/alem-hub/arena-engine/internal/infrastructure/queue"
	"github.com/alem-hub/arena-engine/pkg/timeutil"
)

// Sunday 2026-05-10 23:58 UTC.
var sunday = time.Date(2026, 5, 10, 23, 58, 0, 0, time.UTC)

func TestParseCronExpression(t *testing.T) {
	ce, err := ParseCronExpression("0 9-17/2 * * 1-5")
	require.NoError(t, err)
	assert.True(t, ce.Matches(time.Date(2026, 5, 4, 11, 0, 0, 0, time.UTC)))
	assert.False(t, ce.Matches(time.Date(2026, 5, 4, 10, 0, 0, 0, time.UTC)))
	assert.False(t, ce.Matches(time.Date(2026, 5, 9, 11, 0, 0, 0, time.UTC)), "saturday")

	for _, bad := range []string{"", "* * * *", "60 * * * *", "*/0 * * * *", "5-1 * * * *", "a * * * *"} {
		_, err := ParseCronExpression(bad)
		assert.Error(t, err, bad)
	}

	assert.Panics(t, func() { MustParseCronExpression("nope") })
}

func TestCronExpression_NextMonday(t *testing.T) {
	ce := MustParseCronExpression(EveryMonday)

	next := ce.Next(sunday)
	assert.Equal(t, time.Date(2026, 5, 11, 0, 0, 0, 0, time.UTC), next)
	assert.Equal(t, time.Date(2026, 5, 18, 0, 0, 0, 0, time.UTC), ce.Next(next))

	lists := MustParseCronExpression("0,30 * * * *")
	assert.Equal(t, time.Date(2026, 5, 11, 0, 0, 0, 0, time.UTC), lists.Next(sunday))
}

type countingJob struct {
	name string
	runs int
	err  error
}

func (j *countingJob) Name() string { return j.name }

func (j *countingJob) Run(context.Context) error {
	j.runs++
	return j.err
}

func TestCronScheduler_RunDue(t *testing.T) {
	clock := timeutil.NewFakeClock(sunday)
	cs := NewCronScheduler(WithCronClock(clock))

	weekly := &countingJob{name: "weekly"}
	failing := &countingJob{name: "failing", err: errors.New("boom")}
	require.NoError(t, cs.AddJob(EveryMonday, weekly))
	require.NoError(t, cs.AddJob(EveryMinute, failing))
	assert.Error(t, cs.AddJob(EveryHour, &countingJob{name: "weekly"}), "duplicate name")
	assert.Error(t, cs.AddJob("bad", &countingJob{name: "other"}))

	ctx := context.Background()
	assert.Equal(t, 0, cs.runDue(ctx, sunday))

	// a week of downtime fires each job once
	later := sunday.Add(7 * 24 * time.Hour)
	assert.Equal(t, 2, cs.runDue(ctx, later))
	assert.Equal(t, 1, weekly.runs)
	assert.Equal(t, 1, failing.runs)

	entries := cs.Entries()
	require.Len(t, entries, 2)
	assert.Equal(t, "failing", entries[0].Name)
	assert.Equal(t, "boom", entries[0].LastError)
	assert.Equal(t, time.Date(2026, 5, 18, 0, 0, 0, 0, time.UTC), entries[1].NextRun)
}

func TestCronScheduler_RunStopsOnCancel(t *testing.T) {
	cs := NewCronScheduler()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.NoError(t, cs.Run(ctx))
}

func TestWeeklyResetTrigger_EnqueuesOncePerWeek(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	q := queue.NewRedisQueue(rediscache.NewCacheFromClient(client))

	monday := time.Date(2026, 5, 11, 0, 0, 0, 0, time.UTC)
	clock := timeutil.NewFakeClock(monday)
	producer := queue.NewProducer(q, clock)

	first := NewWeeklyResetTrigger(producer, time.UTC, clock, nil)
	second := NewWeeklyResetTrigger(producer, time.UTC, clock, nil)
	assert.Equal(t, jobs.NameWeeklyReset, first.Name())

	ctx := context.Background()
	require.NoError(t, first.Run(ctx))
	require.NoError(t, second.Run(ctx))

	stats, err := q.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), stats.Ready)

	job, err := q.Dequeue(ctx, time.Second)
	require.NoError(t, err)
	require.NotNil(t, job)
	assert.Equal(t, jobs.NameWeeklyReset, job.Name)

	var p jobs.WeeklyResetPayload
	require.NoError(t, json.Unmarshal(job.Payload, &p))
	assert.Equal(t, time.Date(2026, 5, 4, 0, 0, 0, 0, time.UTC), p.WeekStart.UTC())
	assert.Equal(t, "weekly-reset:2026-05-04", ResetKey(p.WeekStart))
}

func TestWeeklyResetTrigger_MemoryQueueFallsBackToPlainEnqueue(t *testing.T) {
	q := queue.NewMemoryQueue()
	clock := timeutil.NewFakeClock(time.Date(2026, 5, 11, 0, 0, 0, 0, time.UTC))
	trigger := NewWeeklyResetTrigger(queue.NewProducer(q, clock), nil, clock, nil)

	require.NoError(t, trigger.Run(context.Background()))
	assert.Equal(t, 1, q.Len())
}

func TestRebuildTrigger_DedupesWithinHour(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	q := queue.NewRedisQueue(rediscache.NewCacheFromClient(client))

	clock := timeutil.NewFakeClock(time.Date(2026, 5, 11, 6, 30, 0, 0, time.UTC))
	producer := queue.NewProducer(q, clock)
	onStart := NewRebuildTrigger(producer, "startup", clock, nil)
	onCron := NewRebuildTrigger(producer, "cron", clock, nil)
	assert.Equal(t, jobs.NameRebuildLeaderboard, onCron.Name())

	ctx := context.Background()
	require.NoError(t, onStart.Run(ctx))
	require.NoError(t, onCron.Run(ctx))

	stats, err := q.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), stats.Ready)
	assert.Equal(t, "rebuild-leaderboard:2026-05-11T06", RebuildKey(clock.Now()))

	clock.Advance(time.Hour)
	require.NoError(t, onCron.Run(ctx))
	stats, err = q.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), stats.Ready)
}
