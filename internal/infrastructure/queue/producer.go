package queue

import (
	"context"
	"time"

	"github.com/alem-hub/arena-engine/pkg/timeutil"
)

// UniqueEnqueuer enqueues a job at most once per key within ttl.
type UniqueEnqueuer interface {
	EnqueueUnique(ctx context.Context, job *Job, key string, ttl time.Duration) (bool, error)
}

// Producer encodes payloads into jobs. It satisfies the application's
// job submitter port.
type Producer struct {
	q     Enqueuer
	clock timeutil.Clock
}

// NewProducer creates a Producer. clock may be nil.
func NewProducer(q Enqueuer, clock timeutil.Clock) *Producer {
	if clock == nil {
		clock = timeutil.SystemClock{}
	}
	return &Producer{q: q, clock: clock}
}

// Submit enqueues name with payload.
func (p *Producer) Submit(ctx context.Context, name string, payload any) error {
	job, err := NewJob(name, payload, p.clock.Now())
	if err != nil {
		return err
	}
	return p.q.Enqueue(ctx, job)
}

// SubmitUnique enqueues name once per key within ttl. It falls back to a
// plain enqueue when the queue cannot deduplicate. The bool reports whether
// a job was enqueued.
func (p *Producer) SubmitUnique(ctx context.Context, name string, payload any, key string, ttl time.Duration) (bool, error) {
	job, err := NewJob(name, payload, p.clock.Now())
	if err != nil {
		return false, err
	}
	if u, ok := p.q.(UniqueEnqueuer); ok {
		return u.EnqueueUnique(ctx, job, key, ttl)
	}
	if err := p.q.Enqueue(ctx, job); err != nil {
		return false, err
	}
	return true, nil
}
