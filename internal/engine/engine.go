// Package engine starts categorization and reconciliation runs as background
// jobs. Input is validated before a job is queued so callers get bad-request
// errors synchronously.
package engine

import (
	"context"
	"fmt"

	"github.com/MrJamesThe3rd/ledgermatch/internal/categorize"
	"github.com/MrJamesThe3rd/ledgermatch/internal/job"
	"github.com/MrJamesThe3rd/ledgermatch/internal/reconcile"
)

const (
	StageCategorize = "categorize"
	StageMatch      = "match"
)

type Engine struct {
	categorize *categorize.Service
	reconcile  *reconcile.Service
	runner     *job.Runner
}

func New(c *categorize.Service, r *reconcile.Service, runner *job.Runner) *Engine {
	return &Engine{
		categorize: c,
		reconcile:  r,
		runner:     runner,
	}
}

// SyncResult is the outcome of a categorize-then-match pass.
type SyncResult struct {
	Categorize categorize.AutoResult     `json:"categorize"`
	Match      reconcile.AutoMatchResult `json:"match"`
}

func (e *Engine) StartBulkCategorize(ctx context.Context, ids []int64, categoryID int64) (job.Job, error) {
	if err := e.categorize.ValidateCategory(ctx, categoryID); err != nil {
		return job.Job{}, err
	}

	ids = append([]int64(nil), ids...)

	return e.submit(job.TypeBulkCategorize, func(ctx context.Context, p *job.Progress) (any, error) {
		return e.categorize.BulkCategorize(ctx, ids, categoryID, p)
	})
}

// StartAutoCategorize scores ids, or every undecided transaction when ids is
// empty.
func (e *Engine) StartAutoCategorize(ids []int64) (job.Job, error) {
	ids = append([]int64(nil), ids...)

	return e.submit(job.TypeAutoCategorize, func(ctx context.Context, p *job.Progress) (any, error) {
		return e.categorize.AutoCategorize(ctx, ids, p)
	})
}

func (e *Engine) StartAutoMatch(opts reconcile.AutoMatchOptions) (job.Job, error) {
	if err := opts.Validate(); err != nil {
		return job.Job{}, err
	}

	return e.submit(job.TypeAutoMatch, func(ctx context.Context, p *job.Progress) (any, error) {
		return e.reconcile.AutoMatch(ctx, opts, p)
	})
}

// StartSync auto-categorizes every undecided transaction and then
// auto-matches unlinked debits. The match stage is skipped when the first
// stage fails.
func (e *Engine) StartSync(opts reconcile.AutoMatchOptions) (job.Job, error) {
	if err := opts.Validate(); err != nil {
		return job.Job{}, err
	}

	return e.submit(job.TypeSync, func(ctx context.Context, p *job.Progress) (any, error) {
		var res SyncResult

		var err error

		p.SetStage(StageCategorize)

		res.Categorize, err = e.categorize.AutoCategorize(ctx, nil, p)
		if err != nil {
			return res, err
		}

		p.SetStage(StageMatch)

		res.Match, err = e.reconcile.AutoMatch(ctx, opts, p)

		return res, err
	})
}

func (e *Engine) submit(typ job.Type, task job.Task) (job.Job, error) {
	j, err := e.runner.Submit(typ, task)
	if err != nil {
		return job.Job{}, fmt.Errorf("submitting %s job: %w", typ, err)
	}

	return j, nil
}
