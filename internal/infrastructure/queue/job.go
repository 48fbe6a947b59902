// Package queue implements the durable job queue that carries leaderboard
// propagation and weekly resets out of the request path.
//
// Delivery is at least once: a job stays in its consumer's processing list
// until it is acknowledged, retried or dead-lettered, and jobs orphaned by a
// crashed worker are returned to the ready list once its lease has expired.
// Every handler must therefore be idempotent.
package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

const (
	// DefaultMaxAttempts caps deliveries per job.
	DefaultMaxAttempts = 3

	// DefaultBaseBackoff is the delay before the first retry; it doubles per attempt.
	DefaultBaseBackoff = time.Second
)

// ══════════════════════════════════════════════════════════════════════════════
// ERRORS
// ══════════════════════════════════════════════════════════════════════════════

var (
	// ErrQueueClosed is returned by a closed in-memory queue.
	ErrQueueClosed = errors.New("queue: closed")

	// ErrJobNotFound is returned by Requeue for an unknown dead letter.
	ErrJobNotFound = errors.New("queue: job not found")

	// ErrNoHandler marks a job whose name has no registered handler.
	ErrNoHandler = errors.New("queue: no handler registered")
)

// ══════════════════════════════════════════════════════════════════════════════
// JOB
// ══════════════════════════════════════════════════════════════════════════════

// Job is a unit of deferred work.
type Job struct {
	ID          string          `json:"id"`
	Name        string          `json:"name"`
	Payload     json.RawMessage `json:"payload,omitempty"`
	Attempts    int             `json:"attempts"`
	MaxAttempts int             `json:"max_attempts"`
	LastError   string          `json:"last_error,omitempty"`
	EnqueuedAt  time.Time       `json:"enqueued_at"`
	RunAt       time.Time       `json:"run_at,omitempty"`

	// raw is the exact encoding held in the processing list.
	raw string
}

// NewJob encodes payload into a job ready for Enqueue.
func NewJob(name string, payload any, now time.Time) (*Job, error) {
	var body json.RawMessage
	if payload != nil {
		b, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("encode %s payload: %w", name, err)
		}
		body = b
	}
	return &Job{
		ID:          uuid.NewString(),
		Name:        name,
		Payload:     body,
		MaxAttempts: DefaultMaxAttempts,
		EnqueuedAt:  now.UTC(),
	}, nil
}

// Decode unmarshals the payload into v.
func (j *Job) Decode(v any) error {
	if len(j.Payload) == 0 {
		return fmt.Errorf("job %s: empty payload", j.ID)
	}
	if err := json.Unmarshal(j.Payload, v); err != nil {
		return fmt.Errorf("job %s: decode payload: %w", j.ID, err)
	}
	return nil
}

// Exhausted reports whether no delivery is left after the current one.
func (j *Job) Exhausted() bool {
	max := j.MaxAttempts
	if max <= 0 {
		max = DefaultMaxAttempts
	}
	return j.Attempts >= max
}

func (j *Job) encode() (string, error) {
	b, err := json.Marshal(j)
	if err != nil {
		return "", fmt.Errorf("encode job %s: %w", j.ID, err)
	}
	return string(b), nil
}

func decodeJob(raw string) (*Job, error) {
	var j Job
	if err := json.Unmarshal([]byte(raw), &j); err != nil {
		return nil, fmt.Errorf("decode job: %w", err)
	}
	j.raw = raw
	return &j, nil
}

// ══════════════════════════════════════════════════════════════════════════════
// INTERFACES
// ══════════════════════════════════════════════════════════════════════════════

// Enqueuer is the producer side of the queue.
type Enqueuer interface {
	Enqueue(ctx context.Context, job *Job) error
}

// Queue is the full contract the Worker consumes.
type Queue interface {
	Enqueuer

	// Dequeue blocks up to timeout and moves the next ready job into
	// processing. It returns (nil, nil) when nothing arrived.
	Dequeue(ctx context.Context, timeout time.Duration) (*Job, error)

	// Ack removes a finished job from processing.
	Ack(ctx context.Context, job *Job) error

	// Retry removes job from processing and schedules it for runAt.
	Retry(ctx context.Context, job *Job, runAt time.Time) error

	// DeadLetter moves job from processing into the dead list.
	DeadLetter(ctx context.Context, job *Job) error

	// PromoteDue moves delayed jobs whose runAt has passed into ready.
	PromoteDue(ctx context.Context, now time.Time) (int, error)

	// Heartbeat renews this consumer's lease.
	Heartbeat(ctx context.Context, now time.Time) error

	// Recover returns to ready the jobs held by this consumer's previous run
	// and by consumers whose lease expired before now.
	Recover(ctx context.Context, now time.Time) (int, error)
}

// Inspector is the operator view of a queue.
type Inspector interface {
	// DeadLetters lists up to limit dead jobs, newest first.
	DeadLetters(ctx context.Context, limit int) ([]*Job, error)

	// Requeue moves a dead job back to ready with a fresh attempt budget.
	Requeue(ctx context.Context, id string) error

	// Stats reports list depths.
	Stats(ctx context.Context) (Stats, error)
}
