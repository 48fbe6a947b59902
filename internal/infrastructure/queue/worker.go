package queue

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/alem-hub/arena-engine/pkg/logger"
	"github.com/alem-hub/arena-engine/pkg/retry"
	"github.com/alem-hub/arena-engine/pkg/timeutil"
)

// ══════════════════════════════════════════════════════════════════════════════
// HANDLERS
// ══════════════════════════════════════════════════════════════════════════════

// Handler processes one job. Returning retry.Permanent(err) skips the
// remaining attempts.
type Handler interface {
	Handle(ctx context.Context, job *Job) error
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(ctx context.Context, job *Job) error

// Handle implements Handler.
func (f HandlerFunc) Handle(ctx context.Context, job *Job) error { return f(ctx, job) }

// JobRecorder receives job outcomes.
type JobRecorder interface {
	JobAttempt(job, outcome string, seconds float64)
	DeadLetter(job string)
}

// Job outcomes reported to JobRecorder.
const (
	OutcomeSuccess = "success"
	OutcomeRetry   = "retry"
	OutcomeDead    = "dead"
)

// ══════════════════════════════════════════════════════════════════════════════
// WORKER
// ══════════════════════════════════════════════════════════════════════════════

// WorkerConfig contains configuration for Worker.
type WorkerConfig struct {
	// Concurrency is the number of consuming goroutines.
	Concurrency int

	// PollTimeout bounds each blocking dequeue.
	PollTimeout time.Duration

	// PromoteInterval is how often delayed jobs are moved to ready.
	PromoteInterval time.Duration

	// HeartbeatInterval is how often the consumer lease is renewed. It must
	// be well below the queue's lease.
	HeartbeatInterval time.Duration

	// BaseBackoff is the first retry delay; it doubles per attempt up to MaxBackoff.
	BaseBackoff time.Duration
	MaxBackoff  time.Duration

	// HandlerTimeout bounds one handler call; zero disables it.
	HandlerTimeout time.Duration

	Logger   *logger.Logger
	Recorder JobRecorder
	Clock    timeutil.Clock
	Tracer   trace.Tracer
}

// DefaultWorkerConfig returns sensible defaults.
func DefaultWorkerConfig() WorkerConfig {
	return WorkerConfig{
		Concurrency:       4,
		PollTimeout:       2 * time.Second,
		PromoteInterval:   500 * time.Millisecond,
		HeartbeatInterval: DefaultLease / 3,
		BaseBackoff:       DefaultBaseBackoff,
		MaxBackoff:        time.Minute,
		HandlerTimeout:    30 * time.Second,
	}
}

// Worker pulls jobs from a Queue and runs the registered handlers.
type Worker struct {
	queue  Queue
	config WorkerConfig
	logger *logger.Logger
	tracer trace.Tracer
	clock  timeutil.Clock

	mu       sync.RWMutex
	handlers map[string]Handler
}

// NewWorker creates a worker; register handlers before Run.
func NewWorker(q Queue, config WorkerConfig) *Worker {
	defaults := DefaultWorkerConfig()
	if config.Concurrency <= 0 {
		config.Concurrency = defaults.Concurrency
	}
	if config.PollTimeout <= 0 {
		config.PollTimeout = defaults.PollTimeout
	}
	if config.PromoteInterval <= 0 {
		config.PromoteInterval = defaults.PromoteInterval
	}
	if config.HeartbeatInterval <= 0 {
		config.HeartbeatInterval = defaults.HeartbeatInterval
	}
	if config.BaseBackoff <= 0 {
		config.BaseBackoff = defaults.BaseBackoff
	}
	if config.Logger == nil {
		config.Logger = logger.Nop()
	}
	if config.Clock == nil {
		config.Clock = timeutil.SystemClock{}
	}
	if config.Tracer == nil {
		config.Tracer = otel.Tracer("github.com/alem-hub/arena-engine/queue")
	}

	return &Worker{
		queue:    q,
		config:   config,
		logger:   config.Logger.With(logger.Component("worker")),
		tracer:   config.Tracer,
		clock:    config.Clock,
		handlers: make(map[string]Handler),
	}
}

// Register binds a handler to a job name, replacing any previous one.
func (w *Worker) Register(name string, h Handler) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.handlers[name] = h
}

// Run recovers jobs orphaned by dead consumers, then consumes until ctx is
// cancelled while renewing its lease.
func (w *Worker) Run(ctx context.Context) error {
	now := w.clock.Now()
	if n, err := w.queue.Recover(ctx, now); err != nil {
		w.logger.Error("failed to recover in-flight jobs", logger.Err(err))
	} else if n > 0 {
		w.logger.Warn("recovered in-flight jobs from expired consumers", logger.Int("count", n))
	}
	if err := w.queue.Heartbeat(ctx, now); err != nil {
		w.logger.Warn("initial heartbeat failed", logger.Err(err))
	}

	w.logger.Info("worker started", logger.Int("concurrency", w.config.Concurrency))

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		w.promoteLoop(ctx)
		return nil
	})
	g.Go(func() error {
		w.heartbeatLoop(ctx)
		return nil
	})
	for i := 0; i < w.config.Concurrency; i++ {
		g.Go(func() error {
			w.consumeLoop(ctx)
			return nil
		})
	}
	err := g.Wait()
	w.logger.Info("worker stopped")
	return err
}

func (w *Worker) consumeLoop(ctx context.Context) {
	for ctx.Err() == nil {
		if _, err := w.ProcessNext(ctx); err != nil {
			if ctx.Err() != nil || errors.Is(err, ErrQueueClosed) {
				return
			}
			w.logger.Error("dequeue failed", logger.Err(err))
			select {
			case <-ctx.Done():
				return
			case <-time.After(w.config.PollTimeout):
			}
		}
	}
}

func (w *Worker) promoteLoop(ctx context.Context) {
	ticker := time.NewTicker(w.config.PromoteInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := w.queue.PromoteDue(ctx, w.clock.Now()); err != nil && ctx.Err() == nil {
				w.logger.Warn("delayed job promotion failed", logger.Err(err))
			}
		}
	}
}

func (w *Worker) heartbeatLoop(ctx context.Context) {
	ticker := time.NewTicker(w.config.HeartbeatInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := w.queue.Heartbeat(ctx, w.clock.Now()); err != nil && ctx.Err() == nil {
				w.logger.Warn("consumer heartbeat failed", logger.Err(err))
			}
		}
	}
}

// ProcessNext handles at most one job and reports whether one was found.
func (w *Worker) ProcessNext(ctx context.Context) (bool, error) {
	job, err := w.queue.Dequeue(ctx, w.config.PollTimeout)
	if err != nil {
		return false, err
	}
	if job == nil {
		return false, nil
	}
	w.process(ctx, job)
	return true, nil
}

func (w *Worker) process(ctx context.Context, job *Job) {
	start := time.Now()
	job.Attempts++

	ctx, span := w.tracer.Start(ctx, "job "+job.Name, trace.WithAttributes(
		attribute.String("job.id", job.ID),
		attribute.String("job.name", job.Name),
		attribute.Int("job.attempt", job.Attempts),
	))
	defer span.End()

	log := w.logger.With(logger.JobID(job.ID), logger.JobName(job.Name), logger.Int("attempt", job.Attempts))

	err := w.invoke(ctx, job)
	elapsed := time.Since(start).Seconds()

	if err == nil {
		if ackErr := w.queue.Ack(ctx, job); ackErr != nil {
			log.Error("failed to ack job", logger.Err(ackErr))
		}
		w.record(job.Name, OutcomeSuccess, elapsed)
		log.Debug("job done", logger.Latency(time.Since(start)))
		return
	}

	job.LastError = err.Error()
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())

	if retry.IsPermanent(err) || job.Exhausted() {
		if dlErr := w.queue.DeadLetter(ctx, job); dlErr != nil {
			log.Error("failed to dead-letter job", logger.Err(dlErr))
		}
		w.record(job.Name, OutcomeDead, elapsed)
		if w.config.Recorder != nil {
			w.config.Recorder.DeadLetter(job.Name)
		}
		log.Error("job exhausted, moved to dead letters",
			logger.Bool("alert", true),
			logger.Int("max_attempts", job.MaxAttempts),
			logger.Err(err),
		)
		return
	}

	delay := retry.Backoff(job.Attempts, w.config.BaseBackoff, 2, w.config.MaxBackoff)
	if rErr := w.queue.Retry(ctx, job, w.clock.Now().Add(delay)); rErr != nil {
		log.Error("failed to schedule job retry", logger.Err(rErr))
	}
	w.record(job.Name, OutcomeRetry, elapsed)
	log.Warn("job failed, will retry", logger.Duration("delay", delay), logger.Err(err))
}

func (w *Worker) invoke(ctx context.Context, job *Job) (err error) {
	w.mu.RLock()
	h, ok := w.handlers[job.Name]
	w.mu.RUnlock()
	if !ok {
		return retry.Permanent(fmt.Errorf("%w: %s", ErrNoHandler, job.Name))
	}

	if w.config.HandlerTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, w.config.HandlerTimeout)
		defer cancel()
	}

	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("job handler panicked: %v", p)
		}
	}()
	return h.Handle(ctx, job)
}

func (w *Worker) record(name, outcome string, seconds float64) {
	if w.config.Recorder != nil {
		w.config.Recorder.JobAttempt(name, outcome, seconds)
	}
}
