package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/charmbracelet/log"

	"github.com/desertthunder/lyrix/internal/shared"
)

// Status is the lifecycle state of a job.
type Status string

const (
	StatusWaiting   Status = "waiting"
	StatusActive    Status = "active"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

const (
	defaultPollInterval = time.Second
	defaultLockTimeout  = 5 * time.Minute
)

var (
	// ErrNoHandler is recorded on jobs whose name has no registered [Handler].
	ErrNoHandler = errors.New("no handler registered")
	// ErrStalled is recorded on jobs whose worker stopped before finishing them.
	ErrStalled = errors.New("job stalled: worker stopped before finishing")
)

// Options controls retries and retention of a job.
type Options struct {
	MaxAttempts   int           // total attempts, including the first
	Backoff       time.Duration // delay before the second attempt; doubles after each failure
	KeepOnSuccess bool
	KeepOnFailure bool
}

// Job is a unit of background work.
type Job struct {
	ID            string          `json:"id"`
	Name          string          `json:"name"`
	Payload       json.RawMessage `json:"payload"`
	Attempts      int             `json:"attempts"`
	MaxAttempts   int             `json:"max_attempts"`
	Backoff       time.Duration   `json:"backoff"`
	KeepOnSuccess bool            `json:"keep_on_success"`
	KeepOnFailure bool            `json:"keep_on_failure"`
	Status        Status          `json:"status"`
	RunAt         time.Time       `json:"run_at"`
	LockedUntil   time.Time       `json:"locked_until"`
	LastError     string          `json:"last_error,omitempty"`
	CreatedAt     time.Time       `json:"created_at"`
}

// Decode unmarshals the job payload into v.
func (j *Job) Decode(v any) error {
	if err := json.Unmarshal(j.Payload, v); err != nil {
		return fmt.Errorf("failed to decode %s payload: %w", j.Name, err)
	}
	return nil
}

// LastAttempt reports whether the current attempt is the final one allowed.
func (j *Job) LastAttempt() bool {
	return j.Attempts >= j.MaxAttempts
}

// RetryDelay returns the wait after a failed attempt n (1-based): Backoff * 2^(n-1).
func (j *Job) RetryDelay(n int) time.Duration {
	if n < 1 {
		n = 1
	}
	return j.Backoff << (n - 1)
}

// Handler processes one attempt of a job. A returned error schedules a retry while attempts remain.
type Handler func(ctx context.Context, job *Job) error

// ExhaustedFunc is called when a job runs out of attempts without its [Handler] seeing the last one.
type ExhaustedFunc func(ctx context.Context, job *Job, cause error)

// Broker stores jobs and hands them out to workers.
type Broker interface {
	// Push stores a new waiting job.
	Push(ctx context.Context, job *Job) error
	// Claim atomically moves the next due waiting job to active, locked until lockUntil, and
	// increments its attempts. Active jobs whose lock expired before now are claimed the same way,
	// so the stalled attempt stays counted. It returns nil, nil when nothing is due.
	Claim(ctx context.Context, now, lockUntil time.Time) (*Job, error)
	// Complete finishes a job, deleting it unless KeepOnSuccess is set.
	Complete(ctx context.Context, job *Job) error
	// Retry returns a job to waiting, due at at.
	Retry(ctx context.Context, job *Job, at time.Time, cause error) error
	// Fail finishes a job as failed, deleting it unless KeepOnFailure is set.
	Fail(ctx context.Context, job *Job, cause error) error
	// Failed lists retained failed jobs, oldest first.
	Failed(ctx context.Context) ([]*Job, error)
	// RetryFailed moves retained failed jobs back to waiting with attempts reset.
	RetryFailed(ctx context.Context, now time.Time) (int, error)
	Close() error
}

// Queue dispatches claimed jobs to registered handlers.
type Queue struct {
	broker       Broker
	logger       *log.Logger
	now          func() time.Time
	pollInterval time.Duration
	lockTimeout  time.Duration

	mu        sync.RWMutex
	handlers  map[string]Handler
	exhausted map[string]ExhaustedFunc
}

// Option configures a [Queue].
type Option func(*Queue)

// WithClock replaces time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(q *Queue) { q.now = now }
}

// WithPollInterval sets how long idle workers wait before polling again.
func WithPollInterval(d time.Duration) Option {
	return func(q *Queue) {
		if d > 0 {
			q.pollInterval = d
		}
	}
}

// WithLockTimeout sets how long a claimed job stays locked to its worker. It must exceed the
// longest handler run, or a slow job may be handed to a second worker.
func WithLockTimeout(d time.Duration) Option {
	return func(q *Queue) {
		if d > 0 {
			q.lockTimeout = d
		}
	}
}

// New creates a [Queue] over broker.
func New(broker Broker, logger *log.Logger, opts ...Option) *Queue {
	if logger == nil {
		logger = log.New(io.Discard)
	}
	q := &Queue{
		broker:       broker,
		logger:       shared.WithLogger(logger, "component", "queue"),
		now:          time.Now,
		pollInterval: defaultPollInterval,
		lockTimeout:  defaultLockTimeout,
		handlers:     make(map[string]Handler),
		exhausted:    make(map[string]ExhaustedFunc),
	}
	for _, opt := range opts {
		opt(q)
	}
	return q
}

// Register sets the handler for jobs named name, replacing any previous one.
func (q *Queue) Register(name string, h Handler) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.handlers[name] = h
}

// OnExhausted sets the function called when a job named name fails without its handler
// running the final attempt, as when its last claim stalled.
func (q *Queue) OnExhausted(name string, fn ExhaustedFunc) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.exhausted[name] = fn
}

func (q *Queue) handler(name string) (Handler, bool) {
	q.mu.RLock()
	defer q.mu.RUnlock()
	h, ok := q.handlers[name]
	return h, ok
}

func (q *Queue) exhaustedFunc(name string) ExhaustedFunc {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return q.exhausted[name]
}

// Enqueue stores a job whose payload is the JSON encoding of payload.
func (q *Queue) Enqueue(ctx context.Context, name string, payload any, opts Options) (*Job, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to encode %s payload: %w", name, err)
	}
	if opts.MaxAttempts < 1 {
		opts.MaxAttempts = 1
	}

	now := q.now().UTC()
	job := &Job{
		ID:            shared.GenerateID(),
		Name:          name,
		Payload:       data,
		MaxAttempts:   opts.MaxAttempts,
		Backoff:       opts.Backoff,
		KeepOnSuccess: opts.KeepOnSuccess,
		KeepOnFailure: opts.KeepOnFailure,
		Status:        StatusWaiting,
		RunAt:         now,
		CreatedAt:     now,
	}
	if err := q.broker.Push(ctx, job); err != nil {
		return nil, fmt.Errorf("failed to enqueue %s: %w", name, err)
	}

	q.logger.Debug("job enqueued", "job_id", job.ID, "name", name)
	return job, nil
}

// ProcessNext claims and runs at most one due job. It reports whether a job was claimed.
func (q *Queue) ProcessNext(ctx context.Context) (bool, error) {
	now := q.now().UTC()
	job, err := q.broker.Claim(ctx, now, now.Add(q.lockTimeout))
	if err != nil {
		return false, fmt.Errorf("failed to claim job: %w", err)
	}
	if job == nil {
		return false, nil
	}

	logger := q.logger.With("job_id", job.ID, "name", job.Name, "attempt", job.Attempts)

	if job.Attempts > job.MaxAttempts {
		logger.Error("stalled job out of attempts")
		if fn := q.exhaustedFunc(job.Name); fn != nil {
			fn(ctx, job, ErrStalled)
		}
		return true, q.broker.Fail(ctx, job, ErrStalled)
	}
	if job.LastError == ErrStalled.Error() {
		logger.Warn("reclaimed stalled job")
	}

	h, ok := q.handler(job.Name)
	if !ok {
		logger.Error("dropping job without handler")
		return true, q.broker.Fail(ctx, job, fmt.Errorf("%w: %s", ErrNoHandler, job.Name))
	}

	runErr := q.run(ctx, h, job)
	switch {
	case runErr == nil:
		logger.Debug("job completed")
		return true, q.broker.Complete(ctx, job)
	case job.LastAttempt():
		logger.Error("job failed", "error", runErr)
		return true, q.broker.Fail(ctx, job, runErr)
	default:
		at := q.now().UTC().Add(job.RetryDelay(job.Attempts))
		logger.Warn("job attempt failed, retrying", "error", runErr, "retry_at", at)
		return true, q.broker.Retry(ctx, job, at, runErr)
	}
}

func (q *Queue) run(ctx context.Context, h Handler, job *Job) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("handler panic: %v", r)
		}
	}()
	return h(ctx, job)
}

// Run starts workers goroutines processing jobs until ctx is cancelled, then waits for in-flight jobs.
func (q *Queue) Run(ctx context.Context, workers int) {
	if workers < 1 {
		workers = 1
	}

	var wg sync.WaitGroup
	wg.Add(workers)
	for i := range workers {
		go func() {
			defer wg.Done()
			q.work(ctx, i)
		}()
	}

	q.logger.Info("workers started", "workers", workers)
	wg.Wait()
	q.logger.Info("workers stopped")
}

func (q *Queue) work(ctx context.Context, id int) {
	logger := q.logger.With("worker", id)
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		// In-flight jobs finish on a context detached from worker shutdown.
		processed, err := q.ProcessNext(context.WithoutCancel(ctx))
		if err != nil {
			logger.Error("queue error", "error", err)
		}
		if processed && err == nil {
			continue
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(q.pollInterval):
		}
	}
}

// Failed lists retained failed jobs.
func (q *Queue) Failed(ctx context.Context) ([]*Job, error) {
	return q.broker.Failed(ctx)
}

// RetryFailed re-queues every retained failed job with its attempts reset.
func (q *Queue) RetryFailed(ctx context.Context) (int, error) {
	n, err := q.broker.RetryFailed(ctx, q.now().UTC())
	if err != nil {
		return 0, fmt.Errorf("failed to retry failed jobs: %w", err)
	}
	if n > 0 {
		q.logger.Info("re-queued failed jobs", "count", n)
	}
	return n, nil
}

// Close releases the broker.
func (q *Queue) Close() error {
	return q.broker.Close()
}

func causeText(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
