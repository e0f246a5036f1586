// Package job runs long operations in the background on a fixed worker pool
// and exposes their state for polling: pending, running, then one of
// completed, failed or cancelled.
package job

import (
	"context"
	"errors"
	"math"
	"time"

	"github.com/google/uuid"
)

var (
	ErrNotFound  = errors.New("job not found")
	ErrQueueFull = errors.New("job queue is full")
	ErrClosed    = errors.New("job runner is shut down")
)

type Status string

const (
	StatusPending   Status = "pending"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
	StatusCancelled Status = "cancelled"
)

// Terminal reports whether no further transition can happen.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed || s == StatusCancelled
}

type Type string

const (
	TypeBulkCategorize Type = "bulk_categorize"
	TypeAutoCategorize Type = "auto_categorize"
	TypeAutoMatch      Type = "auto_match"
	TypeSync           Type = "sync"
)

// Task is the work of a job. It must check ctx between items and return
// whatever partial result it has together with ctx.Err() when cancelled.
type Task func(ctx context.Context, p *Progress) (any, error)

// Job is a point-in-time snapshot of a background operation.
type Job struct {
	TaskID    uuid.UUID `json:"task_id"`
	Type      Type      `json:"task_type"`
	Status    Status    `json:"status"`
	Stage     string    `json:"stage,omitempty"`
	Progress  int       `json:"progress"`
	Processed int       `json:"processed"`
	Total     int       `json:"total"`
	Result    any       `json:"result,omitempty"`
	Error     string    `json:"error,omitempty"`
	// Stalled is set on running jobs whose progress has not moved within
	// the runner's stall timeout.
	Stalled    bool       `json:"stalled,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
	StartedAt  *time.Time `json:"started_at,omitempty"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
	UpdatedAt  time.Time  `json:"updated_at"`
}

// Progress is handed to a running task to report how far it got.
type Progress struct {
	r *Runner
	e *entry
}

// SetTotal sets the number of items the current stage will process.
func (p *Progress) SetTotal(total int) {
	p.update(func(j *Job) {
		j.Total = total
	})
}

// Advance records one processed item.
func (p *Progress) Advance() {
	p.update(func(j *Job) {
		j.Processed++
	})
}

// SetStage starts a new stage of a multi-stage task. Counters restart.
func (p *Progress) SetStage(stage string) {
	p.update(func(j *Job) {
		j.Stage = stage
		j.Processed = 0
		j.Total = 0
	})
}

func (p *Progress) update(fn func(j *Job)) {
	p.r.mu.Lock()
	defer p.r.mu.Unlock()

	if p.e.job.Status.Terminal() {
		return
	}

	fn(&p.e.job)

	now := p.r.now()
	p.e.job.Progress = percent(p.e.job.Processed, p.e.job.Total)
	p.e.job.UpdatedAt = now
	p.e.heartbeat = now
}

func percent(processed, total int) int {
	if total <= 0 {
		return 0
	}

	return min(100, int(math.Round(float64(processed)/float64(total)*100)))
}
