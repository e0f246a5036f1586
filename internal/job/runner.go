package job

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
)

type Options struct {
	Workers   int
	QueueSize int
	// StallTimeout marks running jobs without progress for this long as
	// stalled. Zero disables stall detection.
	StallTimeout time.Duration
	Logger       *slog.Logger
}

type entry struct {
	job             Job
	task            Task
	cancel          context.CancelFunc
	cancelRequested bool
	heartbeat       time.Time
	// done is closed once the task goroutine has exited, however it exited.
	done chan struct{}
}

// Runner executes tasks on a fixed pool of workers fed by a bounded queue.
// Jobs are kept in memory until purged.
type Runner struct {
	mu     sync.Mutex
	jobs   map[uuid.UUID]*entry
	queue  chan *entry
	closed bool

	ctx  context.Context
	stop context.CancelFunc
	wg   sync.WaitGroup

	stallTimeout time.Duration
	log          *slog.Logger
	now          func() time.Time
}

func NewRunner(opts Options) *Runner {
	if opts.Workers <= 0 {
		opts.Workers = 4
	}

	if opts.QueueSize <= 0 {
		opts.QueueSize = 64
	}

	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	ctx, stop := context.WithCancel(context.Background())

	r := &Runner{
		jobs:         make(map[uuid.UUID]*entry),
		queue:        make(chan *entry, opts.QueueSize),
		ctx:          ctx,
		stop:         stop,
		stallTimeout: opts.StallTimeout,
		log:          opts.Logger,
		now:          time.Now,
	}

	r.wg.Add(opts.Workers)

	for i := range opts.Workers {
		go func(workerID int) {
			defer r.wg.Done()
			r.worker(workerID)
		}(i)
	}

	return r
}

// Submit enqueues task and returns its pending job without waiting for it
// to start.
func (r *Runner) Submit(typ Type, task Task) (Job, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return Job{}, ErrClosed
	}

	now := r.now()
	e := &entry{
		job: Job{
			TaskID:    uuid.New(),
			Type:      typ,
			Status:    StatusPending,
			CreatedAt: now,
			UpdatedAt: now,
		},
		task: task,
	}

	select {
	case r.queue <- e:
	default:
		return Job{}, ErrQueueFull
	}

	r.jobs[e.job.TaskID] = e

	return e.job, nil
}

func (r *Runner) Get(id uuid.UUID) (Job, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.jobs[id]
	if !ok {
		return Job{}, ErrNotFound
	}

	return r.snapshot(e), nil
}

// List returns every known job, oldest first.
func (r *Runner) List() []Job {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]Job, 0, len(r.jobs))
	for _, e := range r.jobs {
		out = append(out, r.snapshot(e))
	}

	slices.SortFunc(out, func(a, b Job) int {
		return cmp.Compare(a.CreatedAt.UnixNano(), b.CreatedAt.UnixNano())
	})

	return out
}

// Cancel stops a job. A pending job is cancelled at once; a running job is
// asked to stop and becomes cancelled when its task returns. Cancelling a
// finished job changes nothing.
func (r *Runner) Cancel(id uuid.UUID) (Job, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.jobs[id]
	if !ok {
		return Job{}, ErrNotFound
	}

	switch e.job.Status {
	case StatusPending:
		r.finishLocked(e, nil, StatusCancelled, "")
	case StatusRunning:
		e.cancelRequested = true
		e.cancel()
	}

	return r.snapshot(e), nil
}

// RefreshStatus re-derives the state of a job from its task goroutine. A
// running job whose task has exited without reporting is failed.
func (r *Runner) RefreshStatus(id uuid.UUID) (Job, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.jobs[id]
	if !ok {
		return Job{}, ErrNotFound
	}

	if e.job.Status == StatusRunning && e.done != nil {
		select {
		case <-e.done:
			r.finishLocked(e, e.job.Result, StatusFailed, "worker lost")
		default:
		}
	}

	return r.snapshot(e), nil
}

// Purge forgets finished jobs that ended more than olderThan ago and returns
// how many were removed.
func (r *Runner) Purge(olderThan time.Duration) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	cutoff := r.now().Add(-olderThan)
	n := 0

	for id, e := range r.jobs {
		if !e.job.Status.Terminal() || e.job.FinishedAt == nil || e.job.FinishedAt.After(cutoff) {
			continue
		}

		delete(r.jobs, id)

		n++
	}

	return n
}

// Shutdown stops accepting jobs, cancels running ones and waits for the
// workers to exit or ctx to end.
func (r *Runner) Shutdown(ctx context.Context) error {
	r.mu.Lock()
	if !r.closed {
		r.closed = true
		close(r.queue)
	}
	r.mu.Unlock()

	r.stop()

	done := make(chan struct{})

	go func() {
		r.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (r *Runner) worker(workerID int) {
	for e := range r.queue {
		r.run(workerID, e)
	}
}

func (r *Runner) run(workerID int, e *entry) {
	r.mu.Lock()

	if e.job.Status != StatusPending {
		r.mu.Unlock()
		return
	}

	if r.ctx.Err() != nil {
		r.finishLocked(e, nil, StatusCancelled, "runner shut down")
		r.mu.Unlock()

		return
	}

	ctx, cancel := context.WithCancel(r.ctx)
	defer cancel()

	now := r.now()
	e.cancel = cancel
	e.done = make(chan struct{})
	e.heartbeat = now
	e.job.Status = StatusRunning
	e.job.StartedAt = &now
	e.job.UpdatedAt = now

	done := e.done
	r.mu.Unlock()

	r.log.Debug("job started", "task_id", e.job.TaskID, "type", e.job.Type, "worker_id", workerID)

	// The task runs on its own goroutine so that a task which exits the
	// goroutine abruptly cannot take the worker with it.
	go func() {
		defer close(done)

		defer func() {
			if rec := recover(); rec != nil {
				r.finish(e, nil, fmt.Errorf("task panicked: %v", rec))
			}
		}()

		result, err := e.task(ctx, &Progress{r: r, e: e})
		r.finish(e, result, err)
	}()

	<-done
}

func (r *Runner) finish(e *entry, result any, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	switch {
	case err == nil:
		r.finishLocked(e, result, StatusCompleted, "")
	case errors.Is(err, context.Canceled) && e.cancelRequested:
		r.finishLocked(e, result, StatusCancelled, "")
	case errors.Is(err, context.Canceled) && r.ctx.Err() != nil:
		r.finishLocked(e, result, StatusCancelled, "runner shut down")
	default:
		r.finishLocked(e, result, StatusFailed, err.Error())
	}
}

func (r *Runner) finishLocked(e *entry, result any, status Status, msg string) {
	if e.job.Status.Terminal() {
		return
	}

	now := r.now()
	e.job.Status = status
	e.job.Result = result
	e.job.Error = msg
	e.job.FinishedAt = &now
	e.job.UpdatedAt = now

	if status == StatusCompleted {
		e.job.Progress = 100
	}

	attrs := []any{
		"task_id", e.job.TaskID,
		"type", e.job.Type,
		"status", status,
		"processed", e.job.Processed,
		"total", e.job.Total,
	}

	if status == StatusFailed {
		r.log.Error("job failed", append(attrs, "error", msg)...)
		return
	}

	r.log.Info("job finished", attrs...)
}

func (r *Runner) snapshot(e *entry) Job {
	j := e.job

	if j.Status == StatusRunning && r.stallTimeout > 0 && r.now().Sub(e.heartbeat) > r.stallTimeout {
		j.Stalled = true
	}

	return j
}
