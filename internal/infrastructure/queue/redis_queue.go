package queue

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	rediscache "github.com/alem-hub/arena-engine/internal/infrastructure/persistence/redis"
)

// ══════════════════════════════════════════════════════════════════════════════
// KEYS
// ══════════════════════════════════════════════════════════════════════════════

const (
	KeyReady   = "arena:jobs:ready"
	KeyDelayed = "arena:jobs:delayed"
	KeyDead    = "arena:jobs:dead"

	// KeyConsumers scores every consumer by the unix ms its lease expires.
	KeyConsumers = "arena:jobs:consumers"

	// PrefixProcessing namespaces the per-consumer processing lists.
	PrefixProcessing = "arena:jobs:processing:"

	// PrefixUnique namespaces EnqueueUnique guards.
	PrefixUnique = "arena:jobs:unique:"
)

// promoteBatch bounds how many delayed jobs one PromoteDue call moves.
const promoteBatch = 100

// promoteScript moves due members of the delayed set into ready atomically,
// so two promoters can never deliver the same job twice.
var promoteScript = redis.NewScript(`
local due = redis.call('ZRANGEBYSCORE', KEYS[1], '-inf', ARGV[1], 'LIMIT', 0, ARGV[2])
for _, job in ipairs(due) do
	redis.call('ZREM', KEYS[1], job)
	redis.call('LPUSH', KEYS[2], job)
end
return #due
`)

// ══════════════════════════════════════════════════════════════════════════════
// REDIS QUEUE
// ══════════════════════════════════════════════════════════════════════════════

// DefaultLease is how long a consumer stays alive without a heartbeat.
const DefaultLease = 30 * time.Second

// RedisQueue is a reliable list-based queue.
//
// Producers LPUSH onto ready; consumers BLMOVE the right end into their own
// processing list, so a job is never outside Redis while a worker holds it.
// Each consumer renews a lease; Recover only reclaims the lists of
// consumers whose lease has expired, so replicas never steal live work.
type RedisQueue struct {
	client   *redis.Client
	consumer string
	lease    time.Duration
}

var (
	_ Queue     = (*RedisQueue)(nil)
	_ Inspector = (*RedisQueue)(nil)
)

// RedisQueueOption configures a RedisQueue.
type RedisQueueOption func(*RedisQueue)

// WithConsumer sets the consumer identity. It must be unique among running
// workers and should be stable across restarts of the same worker.
func WithConsumer(id string) RedisQueueOption {
	return func(q *RedisQueue) {
		if id != "" {
			q.consumer = id
		}
	}
}

// WithLease sets how long a heartbeat keeps this consumer alive.
func WithLease(d time.Duration) RedisQueueOption {
	return func(q *RedisQueue) {
		if d > 0 {
			q.lease = d
		}
	}
}

// NewRedisQueue creates a queue on the shared cache client.
func NewRedisQueue(cache *rediscache.Cache, opts ...RedisQueueOption) *RedisQueue {
	q := &RedisQueue{
		client:   cache.Client(),
		consumer: uuid.NewString(),
		lease:    DefaultLease,
	}
	for _, opt := range opts {
		opt(q)
	}
	return q
}

// Consumer returns this queue's consumer identity.
func (q *RedisQueue) Consumer() string { return q.consumer }

// ProcessingKey is the processing list of consumer.
func ProcessingKey(consumer string) string { return PrefixProcessing + consumer }

func (q *RedisQueue) processing() string { return ProcessingKey(q.consumer) }

// Enqueue appends job to the ready list.
func (q *RedisQueue) Enqueue(ctx context.Context, job *Job) error {
	raw, err := job.encode()
	if err != nil {
		return err
	}
	if err := q.client.LPush(ctx, KeyReady, raw).Err(); err != nil {
		return fmt.Errorf("enqueue %s: %w", job.Name, err)
	}
	return nil
}

// EnqueueUnique enqueues job unless key was already claimed within ttl.
// It reports whether the job was enqueued.
func (q *RedisQueue) EnqueueUnique(ctx context.Context, job *Job, key string, ttl time.Duration) (bool, error) {
	ok, err := q.client.SetNX(ctx, PrefixUnique+key, job.ID, ttl).Result()
	if err != nil {
		return false, fmt.Errorf("claim %s: %w", key, err)
	}
	if !ok {
		return false, nil
	}
	if err := q.Enqueue(ctx, job); err != nil {
		q.client.Del(ctx, PrefixUnique+key)
		return false, err
	}
	return true, nil
}

// Dequeue implements Queue.
func (q *RedisQueue) Dequeue(ctx context.Context, timeout time.Duration) (*Job, error) {
	raw, err := q.client.BLMove(ctx, KeyReady, q.processing(), "RIGHT", "LEFT", timeout).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("dequeue: %w", err)
	}

	job, err := decodeJob(raw)
	if err != nil {
		// Park the undecodable entry so it does not block the worker.
		pipe := q.client.TxPipeline()
		pipe.LRem(ctx, q.processing(), 1, raw)
		pipe.LPush(ctx, KeyDead, raw)
		if _, perr := pipe.Exec(ctx); perr != nil {
			return nil, fmt.Errorf("%w (park failed: %v)", err, perr)
		}
		return nil, err
	}
	return job, nil
}

// Ack implements Queue.
func (q *RedisQueue) Ack(ctx context.Context, job *Job) error {
	if err := q.client.LRem(ctx, q.processing(), 1, job.raw).Err(); err != nil {
		return fmt.Errorf("ack %s: %w", job.ID, err)
	}
	return nil
}

// Retry implements Queue.
func (q *RedisQueue) Retry(ctx context.Context, job *Job, runAt time.Time) error {
	held := job.raw
	job.RunAt = runAt.UTC()
	raw, err := job.encode()
	if err != nil {
		return err
	}

	pipe := q.client.TxPipeline()
	pipe.LRem(ctx, q.processing(), 1, held)
	pipe.ZAdd(ctx, KeyDelayed, redis.Z{Score: float64(runAt.UnixMilli()), Member: raw})
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("retry %s: %w", job.ID, err)
	}
	job.raw = raw
	return nil
}

// DeadLetter implements Queue.
func (q *RedisQueue) DeadLetter(ctx context.Context, job *Job) error {
	held := job.raw
	raw, err := job.encode()
	if err != nil {
		return err
	}

	pipe := q.client.TxPipeline()
	pipe.LRem(ctx, q.processing(), 1, held)
	pipe.LPush(ctx, KeyDead, raw)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("dead-letter %s: %w", job.ID, err)
	}
	job.raw = raw
	return nil
}

// PromoteDue implements Queue.
func (q *RedisQueue) PromoteDue(ctx context.Context, now time.Time) (int, error) {
	n, err := promoteScript.Run(ctx, q.client,
		[]string{KeyDelayed, KeyReady},
		strconv.FormatInt(now.UnixMilli(), 10), promoteBatch,
	).Int()
	if err != nil {
		return 0, fmt.Errorf("promote delayed jobs: %w", err)
	}
	return n, nil
}

// Heartbeat implements Queue.
func (q *RedisQueue) Heartbeat(ctx context.Context, now time.Time) error {
	expires := float64(now.Add(q.lease).UnixMilli())
	if err := q.client.ZAdd(ctx, KeyConsumers, redis.Z{Score: expires, Member: q.consumer}).Err(); err != nil {
		return fmt.Errorf("heartbeat %s: %w", q.consumer, err)
	}
	return nil
}

// Recover implements Queue. It returns to ready the jobs left by this
// consumer's previous run and by every consumer whose lease expired before
// now. Live consumers are never touched.
func (q *RedisQueue) Recover(ctx context.Context, now time.Time) (int, error) {
	expired, err := q.client.ZRangeByScore(ctx, KeyConsumers, &redis.ZRangeBy{
		Min: "-inf",
		Max: "(" + strconv.FormatInt(now.UnixMilli(), 10),
	}).Result()
	if err != nil {
		return 0, fmt.Errorf("list expired consumers: %w", err)
	}

	moved := 0
	for _, consumer := range append([]string{q.consumer}, expired...) {
		n, err := q.drain(ctx, ProcessingKey(consumer))
		moved += n
		if err != nil {
			return moved, err
		}
		if consumer != q.consumer {
			if err := q.client.ZRem(ctx, KeyConsumers, consumer).Err(); err != nil {
				return moved, fmt.Errorf("forget consumer %s: %w", consumer, err)
			}
		}
	}
	return moved, nil
}

// drain moves every job in a processing list back to ready. LMOVE is atomic
// per element, so concurrent recoverers never duplicate a job.
func (q *RedisQueue) drain(ctx context.Context, key string) (int, error) {
	moved := 0
	for {
		err := q.client.LMove(ctx, key, KeyReady, "RIGHT", "RIGHT").Err()
		if errors.Is(err, redis.Nil) {
			return moved, nil
		}
		if err != nil {
			return moved, fmt.Errorf("recover processing jobs: %w", err)
		}
		moved++
	}
}

// ──────────────────────────────────────────────────────────────────────────────
// Dead letters
// ──────────────────────────────────────────────────────────────────────────────

// DeadLetters lists up to limit dead jobs, newest first.
func (q *RedisQueue) DeadLetters(ctx context.Context, limit int) ([]*Job, error) {
	if limit <= 0 {
		limit = 50
	}
	raws, err := q.client.LRange(ctx, KeyDead, 0, int64(limit-1)).Result()
	if err != nil {
		return nil, fmt.Errorf("list dead letters: %w", err)
	}
	jobs := make([]*Job, 0, len(raws))
	for _, raw := range raws {
		job, err := decodeJob(raw)
		if err != nil {
			continue
		}
		jobs = append(jobs, job)
	}
	return jobs, nil
}

// Requeue moves the dead job with the given id back to ready with a fresh
// attempt budget.
func (q *RedisQueue) Requeue(ctx context.Context, id string) error {
	raws, err := q.client.LRange(ctx, KeyDead, 0, -1).Result()
	if err != nil {
		return fmt.Errorf("list dead letters: %w", err)
	}
	for _, raw := range raws {
		job, err := decodeJob(raw)
		if err != nil || job.ID != id {
			continue
		}
		job.Attempts = 0
		job.RunAt = time.Time{}
		fresh, err := job.encode()
		if err != nil {
			return err
		}

		pipe := q.client.TxPipeline()
		pipe.LRem(ctx, KeyDead, 1, raw)
		pipe.LPush(ctx, KeyReady, fresh)
		if _, err := pipe.Exec(ctx); err != nil {
			return fmt.Errorf("requeue %s: %w", id, err)
		}
		return nil
	}
	return fmt.Errorf("%w: %s", ErrJobNotFound, id)
}

// Stats holds list depths.
type Stats struct {
	Ready      int64 `json:"ready"`
	Processing int64 `json:"processing"`
	Delayed    int64 `json:"delayed"`
	Dead       int64 `json:"dead"`
}

// Stats reports the depth of every list. Processing sums this consumer's
// list and those of every registered consumer.
func (q *RedisQueue) Stats(ctx context.Context) (Stats, error) {
	consumers, err := q.client.ZRange(ctx, KeyConsumers, 0, -1).Result()
	if err != nil {
		return Stats{}, fmt.Errorf("list consumers: %w", err)
	}
	keys := map[string]struct{}{q.processing(): {}}
	for _, c := range consumers {
		keys[ProcessingKey(c)] = struct{}{}
	}

	pipe := q.client.Pipeline()
	ready := pipe.LLen(ctx, KeyReady)
	delayed := pipe.ZCard(ctx, KeyDelayed)
	dead := pipe.LLen(ctx, KeyDead)
	held := make([]*redis.IntCmd, 0, len(keys))
	for key := range keys {
		held = append(held, pipe.LLen(ctx, key))
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return Stats{}, fmt.Errorf("queue stats: %w", err)
	}

	st := Stats{
		Ready:   ready.Val(),
		Delayed: delayed.Val(),
		Dead:    dead.Val(),
	}
	for _, c := range held {
		st.Processing += c.Val()
	}
	return st, nil
}
