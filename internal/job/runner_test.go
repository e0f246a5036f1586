package job_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"runtime"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MrJamesThe3rd/ledgermatch/internal/batch"
	"github.com/MrJamesThe3rd/ledgermatch/internal/job"
)

var _ batch.Progress = (*job.Progress)(nil)

func newRunner(t *testing.T, opts job.Options) *job.Runner {
	t.Helper()

	opts.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	r := job.NewRunner(opts)

	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()

		_ = r.Shutdown(ctx)
	})

	return r
}

func waitFor(t *testing.T, r *job.Runner, id uuid.UUID, cond func(job.Job) bool) job.Job {
	t.Helper()

	var last job.Job

	require.Eventually(t, func() bool {
		j, err := r.Get(id)
		require.NoError(t, err)

		last = j

		return cond(j)
	}, 2*time.Second, 5*time.Millisecond)

	return last
}

func terminal(j job.Job) bool { return j.Status.Terminal() }

func running(j job.Job) bool { return j.Status == job.StatusRunning }

func TestRunner_Completes(t *testing.T) {
	r := newRunner(t, job.Options{Workers: 2})

	submitted, err := r.Submit(job.TypeAutoMatch, func(ctx context.Context, p *job.Progress) (any, error) {
		p.SetTotal(4)
		for range 4 {
			p.Advance()
		}

		return "done", nil
	})
	require.NoError(t, err)
	assert.Equal(t, job.StatusPending, submitted.Status)

	j := waitFor(t, r, submitted.TaskID, terminal)
	assert.Equal(t, job.StatusCompleted, j.Status)
	assert.Equal(t, "done", j.Result)
	assert.Equal(t, 100, j.Progress)
	assert.Equal(t, 4, j.Processed)
	assert.Equal(t, 4, j.Total)
	assert.NotNil(t, j.StartedAt)
	assert.NotNil(t, j.FinishedAt)
}

func TestRunner_FailureKeepsPartialResult(t *testing.T) {
	r := newRunner(t, job.Options{Workers: 1})

	submitted, err := r.Submit(job.TypeBulkCategorize, func(ctx context.Context, p *job.Progress) (any, error) {
		p.SetTotal(2)
		p.Advance()

		return 1, errors.New("database unavailable")
	})
	require.NoError(t, err)

	j := waitFor(t, r, submitted.TaskID, terminal)
	assert.Equal(t, job.StatusFailed, j.Status)
	assert.Equal(t, "database unavailable", j.Error)
	assert.Equal(t, 1, j.Result)
	assert.Equal(t, 50, j.Progress)
}

func TestRunner_CancelRunningStopsBetweenItems(t *testing.T) {
	r := newRunner(t, job.Options{Workers: 1})

	reached := make(chan struct{})
	release := make(chan struct{})

	submitted, err := r.Submit(job.TypeBulkCategorize, func(ctx context.Context, p *job.Progress) (any, error) {
		p.SetTotal(200)

		done := 0
		for i := range 200 {
			if err := ctx.Err(); err != nil {
				return done, err
			}

			done++
			p.Advance()

			if i == 49 {
				close(reached)
				<-release
			}
		}

		return done, nil
	})
	require.NoError(t, err)

	<-reached

	j, err := r.Cancel(submitted.TaskID)
	require.NoError(t, err)
	assert.Equal(t, job.StatusRunning, j.Status)

	close(release)

	j = waitFor(t, r, submitted.TaskID, terminal)
	assert.Equal(t, job.StatusCancelled, j.Status)
	assert.Equal(t, 50, j.Processed)
	assert.Equal(t, 50, j.Result)
	assert.Equal(t, 25, j.Progress)
	assert.Empty(t, j.Error)
}

func TestRunner_CancelPending(t *testing.T) {
	r := newRunner(t, job.Options{Workers: 1})

	release := make(chan struct{})
	blocker, err := r.Submit(job.TypeSync, func(ctx context.Context, p *job.Progress) (any, error) {
		<-release
		return nil, nil
	})
	require.NoError(t, err)
	waitFor(t, r, blocker.TaskID, running)

	var ran atomic.Bool

	queued, err := r.Submit(job.TypeAutoMatch, func(ctx context.Context, p *job.Progress) (any, error) {
		ran.Store(true)
		return nil, nil
	})
	require.NoError(t, err)

	j, err := r.Cancel(queued.TaskID)
	require.NoError(t, err)
	assert.Equal(t, job.StatusCancelled, j.Status)

	close(release)
	waitFor(t, r, blocker.TaskID, terminal)

	j, err = r.Cancel(queued.TaskID)
	require.NoError(t, err)
	assert.Equal(t, job.StatusCancelled, j.Status, "cancelling again changes nothing")
	assert.False(t, ran.Load())
}

func TestRunner_QueueFull(t *testing.T) {
	r := newRunner(t, job.Options{Workers: 1, QueueSize: 1})

	release := make(chan struct{})
	defer close(release)

	block := func(ctx context.Context, p *job.Progress) (any, error) {
		select {
		case <-release:
		case <-ctx.Done():
		}

		return nil, nil
	}

	first, err := r.Submit(job.TypeSync, block)
	require.NoError(t, err)
	waitFor(t, r, first.TaskID, running)

	_, err = r.Submit(job.TypeSync, block)
	require.NoError(t, err)

	_, err = r.Submit(job.TypeSync, block)
	assert.ErrorIs(t, err, job.ErrQueueFull)
	assert.Len(t, r.List(), 2)
}

func TestRunner_PanicFailsJob(t *testing.T) {
	r := newRunner(t, job.Options{Workers: 1})

	submitted, err := r.Submit(job.TypeAutoCategorize, func(ctx context.Context, p *job.Progress) (any, error) {
		panic("boom")
	})
	require.NoError(t, err)

	j := waitFor(t, r, submitted.TaskID, terminal)
	assert.Equal(t, job.StatusFailed, j.Status)
	assert.Contains(t, j.Error, "boom")

	next, err := r.Submit(job.TypeAutoCategorize, func(ctx context.Context, p *job.Progress) (any, error) {
		return "ok", nil
	})
	require.NoError(t, err)

	j = waitFor(t, r, next.TaskID, terminal)
	assert.Equal(t, job.StatusCompleted, j.Status, "worker survives a panic")
}

func TestRunner_RefreshDetectsLostWorker(t *testing.T) {
	r := newRunner(t, job.Options{Workers: 1})

	submitted, err := r.Submit(job.TypeAutoMatch, func(ctx context.Context, p *job.Progress) (any, error) {
		runtime.Goexit()
		return nil, nil
	})
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		j, err := r.RefreshStatus(submitted.TaskID)
		require.NoError(t, err)

		return j.Status == job.StatusFailed
	}, 2*time.Second, 5*time.Millisecond)

	j, err := r.Get(submitted.TaskID)
	require.NoError(t, err)
	assert.Equal(t, "worker lost", j.Error)
}

func TestRunner_RefreshReportsStall(t *testing.T) {
	r := newRunner(t, job.Options{Workers: 1, StallTimeout: 10 * time.Millisecond})

	release := make(chan struct{})

	submitted, err := r.Submit(job.TypeSync, func(ctx context.Context, p *job.Progress) (any, error) {
		p.SetTotal(1)
		<-release
		p.Advance()

		return nil, nil
	})
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		j, err := r.RefreshStatus(submitted.TaskID)
		require.NoError(t, err)

		return j.Stalled && j.Status == job.StatusRunning
	}, 2*time.Second, 5*time.Millisecond)

	close(release)

	j := waitFor(t, r, submitted.TaskID, terminal)
	assert.False(t, j.Stalled)
}

func TestRunner_Purge(t *testing.T) {
	r := newRunner(t, job.Options{Workers: 1})

	submitted, err := r.Submit(job.TypeAutoMatch, func(ctx context.Context, p *job.Progress) (any, error) {
		return nil, nil
	})
	require.NoError(t, err)
	waitFor(t, r, submitted.TaskID, terminal)

	assert.Equal(t, 0, r.Purge(time.Hour))
	assert.Equal(t, 1, r.Purge(0))

	_, err = r.Get(submitted.TaskID)
	assert.ErrorIs(t, err, job.ErrNotFound)
}

func TestRunner_ShutdownCancelsRunning(t *testing.T) {
	r := job.NewRunner(job.Options{Workers: 1, Logger: slog.New(slog.NewTextHandler(io.Discard, nil))})

	submitted, err := r.Submit(job.TypeSync, func(ctx context.Context, p *job.Progress) (any, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	})
	require.NoError(t, err)
	waitFor(t, r, submitted.TaskID, running)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	require.NoError(t, r.Shutdown(ctx))

	j, err := r.Get(submitted.TaskID)
	require.NoError(t, err)
	assert.Equal(t, job.StatusCancelled, j.Status)

	_, err = r.Submit(job.TypeSync, func(ctx context.Context, p *job.Progress) (any, error) { return nil, nil })
	assert.ErrorIs(t, err, job.ErrClosed)
}

func TestRunner_UnknownJob(t *testing.T) {
	r := newRunner(t, job.Options{})

	_, err := r.Get(uuid.New())
	assert.ErrorIs(t, err, job.ErrNotFound)

	_, err = r.Cancel(uuid.New())
	assert.ErrorIs(t, err, job.ErrNotFound)

	_, err = r.RefreshStatus(uuid.New())
	assert.ErrorIs(t, err, job.ErrNotFound)
}
