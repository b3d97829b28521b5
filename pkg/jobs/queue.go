package jobs

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

var (
	// ErrQueueFull is returned by TryEnqueue when the buffer has no room.
	ErrQueueFull   = errors.New("queue is full")
	ErrQueueClosed = errors.New("queue is not accepting jobs")
)

// Job is one unit of background work. Payload is opaque to the queue.
type Job struct {
	ID       string
	Type     string
	Payload  interface{}
	Attempt  int
	Enqueued time.Time
}

type Handler func(context.Context, Job) error

// Observer is notified after every handler run. final is true when the job will not run again.
type Observer func(job Job, err error, final bool)

type permanentError struct{ err error }

func (p permanentError) Error() string { return p.err.Error() }
func (p permanentError) Unwrap() error { return p.err }

// Permanent marks err as not worth retrying.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return permanentError{err: err}
}

// IsPermanent reports whether err was marked with Permanent.
func IsPermanent(err error) bool {
	var p permanentError
	return errors.As(err, &p)
}

type QueueConfig struct {
	Workers    int
	BufferSize int
	MaxRetries int
	// RetryDelay is the first backoff; each further attempt doubles it up to MaxRetryDelay.
	RetryDelay    time.Duration
	MaxRetryDelay time.Duration
	// JobTimeout bounds a single handler run. Zero means no limit.
	JobTimeout time.Duration
	Logger     *zap.Logger
	Observer   Observer
}

type queueState int

const (
	stateIdle queueState = iota
	stateRunning
	stateClosed
)

// Queue is an in-process worker pool with bounded buffering and retry backoff.
type Queue struct {
	name    string
	handler Handler
	cfg     QueueConfig
	logger  *zap.Logger

	jobs    chan Job
	closing chan struct{}

	// mu guards state and is never held across a channel operation.
	mu    sync.Mutex
	state queueState
	// sendMu is read-held by every sender so Stop can close jobs safely.
	sendMu  sync.RWMutex
	runCtx  context.Context
	abort   context.CancelFunc
	workers sync.WaitGroup
	retries sync.WaitGroup
}

func NewQueue(name string, handler Handler, cfg QueueConfig) *Queue {
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = cfg.Workers * 16
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = time.Second
	}
	if cfg.MaxRetryDelay < cfg.RetryDelay {
		cfg.MaxRetryDelay = time.Minute
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	return &Queue{
		name:    name,
		handler: handler,
		cfg:     cfg,
		logger:  cfg.Logger.With(zap.String("queue", name)),
		jobs:    make(chan Job, cfg.BufferSize),
		closing: make(chan struct{}),
	}
}

// Start launches the workers. Calls after the first are no-ops.
func (q *Queue) Start(ctx context.Context) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.state != stateIdle {
		return
	}
	q.runCtx, q.abort = context.WithCancel(ctx)
	for i := 0; i < q.cfg.Workers; i++ {
		q.workers.Add(1)
		go q.work()
	}
	q.state = stateRunning
	q.logger.Info("queue started", zap.Int("workers", q.cfg.Workers))
}

// Stop rejects new jobs, drops pending retries and lets workers drain the
// buffer. In-flight handlers are cancelled once ctx expires.
func (q *Queue) Stop(ctx context.Context) error {
	q.mu.Lock()
	if q.state != stateRunning {
		q.mu.Unlock()
		return nil
	}
	q.state = stateClosed
	close(q.closing)
	q.mu.Unlock()

	q.retries.Wait()
	q.sendMu.Lock()
	close(q.jobs)
	q.sendMu.Unlock()

	drained := make(chan struct{})
	go func() {
		q.workers.Wait()
		close(drained)
	}()
	select {
	case <-drained:
		q.abort()
		q.logger.Info("queue drained")
		return nil
	case <-ctx.Done():
		q.abort()
		<-drained
		q.logger.Warn("queue stopped before drain", zap.Error(ctx.Err()))
		return ctx.Err()
	}
}

// Len returns the number of buffered jobs.
func (q *Queue) Len() int {
	return len(q.jobs)
}

// Enqueue blocks until the job is buffered, ctx ends or the queue stops.
func (q *Queue) Enqueue(ctx context.Context, job Job) error {
	q.sendMu.RLock()
	defer q.sendMu.RUnlock()
	if !q.running() {
		return fmt.Errorf("queue %s: %w", q.name, ErrQueueClosed)
	}
	stamp(&job)
	select {
	case q.jobs <- job:
		return nil
	case <-q.closing:
		return fmt.Errorf("queue %s: %w", q.name, ErrQueueClosed)
	case <-ctx.Done():
		return ctx.Err()
	}
}

// TryEnqueue buffers the job without blocking so request paths never stall on backlog.
func (q *Queue) TryEnqueue(job Job) error {
	q.sendMu.RLock()
	defer q.sendMu.RUnlock()
	if !q.running() {
		return fmt.Errorf("queue %s: %w", q.name, ErrQueueClosed)
	}
	stamp(&job)
	select {
	case q.jobs <- job:
		return nil
	default:
		return fmt.Errorf("queue %s: %w", q.name, ErrQueueFull)
	}
}

func (q *Queue) running() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.state == stateRunning
}

func stamp(job *Job) {
	if job.Enqueued.IsZero() {
		job.Enqueued = time.Now().UTC()
	}
}

func (q *Queue) work() {
	defer q.workers.Done()
	for job := range q.jobs {
		err := q.run(job)
		if err == nil {
			q.notify(job, nil, true)
			continue
		}
		q.fail(job, err)
	}
}

func (q *Queue) run(job Job) (err error) {
	ctx := q.runCtx
	if q.cfg.JobTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, q.cfg.JobTimeout)
		defer cancel()
	}
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("job panicked: %v", r)
		}
	}()
	return q.handler(ctx, job)
}

func (q *Queue) notify(job Job, err error, final bool) {
	if q.cfg.Observer != nil {
		q.cfg.Observer(job, err, final)
	}
}

func (q *Queue) backoff(attempt int) time.Duration {
	delay := q.cfg.RetryDelay
	for i := 1; i < attempt && delay < q.cfg.MaxRetryDelay; i++ {
		delay *= 2
	}
	if delay > q.cfg.MaxRetryDelay {
		delay = q.cfg.MaxRetryDelay
	}
	return delay
}

func (q *Queue) fail(job Job, err error) {
	job.Attempt++
	fields := []zap.Field{zap.String("job_id", job.ID), zap.String("type", job.Type), zap.Int("attempt", job.Attempt), zap.Error(err)}
	if IsPermanent(err) || job.Attempt > q.cfg.MaxRetries {
		q.notify(job, err, true)
		q.logger.Error("job abandoned", fields...)
		return
	}

	q.mu.Lock()
	closed := q.state == stateClosed
	if !closed {
		q.retries.Add(1)
	}
	q.mu.Unlock()
	if closed {
		q.notify(job, err, true)
		q.logger.Warn("job dropped during shutdown", fields...)
		return
	}

	q.notify(job, err, false)
	delay := q.backoff(job.Attempt)
	q.logger.Warn("job failed, retrying", append(fields, zap.Duration("delay", delay))...)
	go func() {
		defer q.retries.Done()
		timer := time.NewTimer(delay)
		defer timer.Stop()
		select {
		case <-q.closing:
			q.notify(job, err, true)
		case <-timer.C:
			if rerr := q.TryEnqueue(job); rerr != nil {
				q.notify(job, rerr, true)
				q.logger.Error("requeue failed", zap.String("job_id", job.ID), zap.Error(rerr))
			}
		}
	}()
}
