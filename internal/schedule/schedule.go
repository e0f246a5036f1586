// Package schedule submits recurring categorization and matching jobs on cron
// schedules.
package schedule

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"

	"github.com/MrJamesThe3rd/ledgermatch/internal/job"
	"github.com/MrJamesThe3rd/ledgermatch/internal/reconcile"
)

//go:generate mockgen -source=schedule.go -destination=schedule_mock.go -package=schedule
type Starter interface {
	StartAutoCategorize(ids []int64) (job.Job, error)
	StartAutoMatch(opts reconcile.AutoMatchOptions) (job.Job, error)
	StartSync(opts reconcile.AutoMatchOptions) (job.Job, error)
}

type Tracker interface {
	Get(id uuid.UUID) (job.Job, error)
}

// Config holds one cron spec per job type. An empty spec disables that job.
type Config struct {
	AutoCategorize string
	AutoMatch      string
	Sync           string
	Location       *time.Location
	Match          reconcile.AutoMatchOptions
}

type Scheduler struct {
	cron    *cron.Cron
	starter Starter
	tracker Tracker
	log     *slog.Logger

	mu   sync.Mutex
	last map[job.Type]uuid.UUID
}

func New(cfg Config, starter Starter, tracker Tracker, logger *slog.Logger) (*Scheduler, error) {
	if logger == nil {
		logger = slog.Default()
	}

	loc := cfg.Location
	if loc == nil {
		loc = time.Local
	}

	s := &Scheduler{
		cron:    cron.New(cron.WithLocation(loc)),
		starter: starter,
		tracker: tracker,
		log:     logger,
		last:    make(map[job.Type]uuid.UUID),
	}

	entries := []struct {
		spec  string
		typ   job.Type
		start func() (job.Job, error)
	}{
		{cfg.AutoCategorize, job.TypeAutoCategorize, func() (job.Job, error) { return starter.StartAutoCategorize(nil) }},
		{cfg.AutoMatch, job.TypeAutoMatch, func() (job.Job, error) { return starter.StartAutoMatch(cfg.Match) }},
		{cfg.Sync, job.TypeSync, func() (job.Job, error) { return starter.StartSync(cfg.Match) }},
	}

	for _, e := range entries {
		if e.spec == "" {
			continue
		}

		if _, err := s.cron.AddFunc(e.spec, func() { s.fire(e.typ, e.start) }); err != nil {
			return nil, fmt.Errorf("scheduling %s %q: %w", e.typ, e.spec, err)
		}

		logger.Info("scheduled job", "type", e.typ, "spec", e.spec)
	}

	return s, nil
}

// Entries lists the registered cron entries.
func (s *Scheduler) Entries() []cron.Entry {
	return s.cron.Entries()
}

// Run starts the scheduler and blocks until ctx is done, then waits for any
// submission in flight.
func (s *Scheduler) Run(ctx context.Context) error {
	s.cron.Start()

	<-ctx.Done()

	<-s.cron.Stop().Done()

	return nil
}

// fire submits a job unless the previous job of the same type is still
// pending or running.
func (s *Scheduler) fire(typ job.Type, start func() (job.Job, error)) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if id, ok := s.last[typ]; ok {
		prev, err := s.tracker.Get(id)
		if err == nil && !prev.Status.Terminal() {
			s.log.Info("previous scheduled job still active, skipping", "type", typ, "task_id", id)
			return
		}
	}

	j, err := start()
	if err != nil {
		s.log.Error("submitting scheduled job", "type", typ, "error", err)
		return
	}

	s.last[typ] = j.TaskID

	s.log.Info("submitted scheduled job", "type", typ, "task_id", j.TaskID)
}
