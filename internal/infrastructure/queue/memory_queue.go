package queue

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"
)

// MemoryQueue is an in-process Queue for local development and tests.
// Nothing survives a restart.
type MemoryQueue struct {
	mu         sync.Mutex
	ready      []*Job
	processing map[string]*Job
	delayed    []*Job
	dead       []*Job
	notify     chan struct{}
	closed     bool
}

var (
	_ Queue     = (*MemoryQueue)(nil)
	_ Inspector = (*MemoryQueue)(nil)
)

// NewMemoryQueue creates an empty queue.
func NewMemoryQueue() *MemoryQueue {
	return &MemoryQueue{
		processing: make(map[string]*Job),
		notify:     make(chan struct{}, 1),
	}
}

func (q *MemoryQueue) signal() {
	select {
	case q.notify <- struct{}{}:
	default:
	}
}

// Enqueue implements Queue.
func (q *MemoryQueue) Enqueue(_ context.Context, job *Job) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return ErrQueueClosed
	}
	cp := *job
	q.ready = append(q.ready, &cp)
	q.signal()
	return nil
}

// Dequeue implements Queue.
func (q *MemoryQueue) Dequeue(ctx context.Context, timeout time.Duration) (*Job, error) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	for {
		q.mu.Lock()
		if q.closed {
			q.mu.Unlock()
			return nil, ErrQueueClosed
		}
		if len(q.ready) > 0 {
			job := q.ready[0]
			q.ready = q.ready[1:]
			q.processing[job.ID] = job
			if len(q.ready) > 0 {
				q.signal()
			}
			q.mu.Unlock()
			cp := *job
			return &cp, nil
		}
		q.mu.Unlock()

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-timer.C:
			return nil, nil
		case <-q.notify:
		}
	}
}

// Ack implements Queue.
func (q *MemoryQueue) Ack(_ context.Context, job *Job) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	delete(q.processing, job.ID)
	return nil
}

// Retry implements Queue.
func (q *MemoryQueue) Retry(_ context.Context, job *Job, runAt time.Time) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	delete(q.processing, job.ID)
	cp := *job
	cp.RunAt = runAt.UTC()
	q.delayed = append(q.delayed, &cp)
	return nil
}

// DeadLetter implements Queue.
func (q *MemoryQueue) DeadLetter(_ context.Context, job *Job) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	delete(q.processing, job.ID)
	cp := *job
	q.dead = append([]*Job{&cp}, q.dead...)
	return nil
}

// PromoteDue implements Queue.
func (q *MemoryQueue) PromoteDue(_ context.Context, now time.Time) (int, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	sort.SliceStable(q.delayed, func(i, j int) bool {
		return q.delayed[i].RunAt.Before(q.delayed[j].RunAt)
	})
	n := 0
	for n < len(q.delayed) && !q.delayed[n].RunAt.After(now) {
		n++
	}
	if n == 0 {
		return 0, nil
	}
	q.ready = append(q.ready, q.delayed[:n]...)
	q.delayed = append([]*Job(nil), q.delayed[n:]...)
	q.signal()
	return n, nil
}

// Heartbeat implements Queue. A memory queue has a single consumer process.
func (q *MemoryQueue) Heartbeat(context.Context, time.Time) error { return nil }

// Recover implements Queue.
func (q *MemoryQueue) Recover(_ context.Context, _ time.Time) (int, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	orphans := make([]*Job, 0, len(q.processing))
	for _, job := range q.processing {
		orphans = append(orphans, job)
	}
	sort.Slice(orphans, func(i, j int) bool {
		return orphans[i].EnqueuedAt.Before(orphans[j].EnqueuedAt)
	})
	q.ready = append(orphans, q.ready...)
	q.processing = make(map[string]*Job)
	if len(orphans) > 0 {
		q.signal()
	}
	return len(orphans), nil
}

// DeadLetters returns copies of the dead jobs, newest first.
func (q *MemoryQueue) DeadLetters(_ context.Context, limit int) ([]*Job, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if limit <= 0 || limit > len(q.dead) {
		limit = len(q.dead)
	}
	out := make([]*Job, 0, limit)
	for _, j := range q.dead[:limit] {
		cp := *j
		out = append(out, &cp)
	}
	return out, nil
}

// Requeue implements Inspector.
func (q *MemoryQueue) Requeue(_ context.Context, id string) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	for i, j := range q.dead {
		if j.ID != id {
			continue
		}
		q.dead = append(q.dead[:i:i], q.dead[i+1:]...)
		j.Attempts = 0
		j.RunAt = time.Time{}
		q.ready = append(q.ready, j)
		q.signal()
		return nil
	}
	return fmt.Errorf("%w: %s", ErrJobNotFound, id)
}

// Stats implements Inspector.
func (q *MemoryQueue) Stats(context.Context) (Stats, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return Stats{
		Ready:      int64(len(q.ready)),
		Processing: int64(len(q.processing)),
		Delayed:    int64(len(q.delayed)),
		Dead:       int64(len(q.dead)),
	}, nil
}

// Len returns the number of ready jobs.
func (q *MemoryQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.ready)
}

// Close makes further Enqueue and Dequeue calls fail.
func (q *MemoryQueue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.closed = true
	q.signal()
}
