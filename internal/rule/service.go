package rule

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/MrJamesThe3rd/ledgermatch/internal/batch"
)

//go:generate mockgen -source=service.go -destination=repository_mock.go -package=rule
type Repository interface {
	ListRules(ctx context.Context, filter ListFilter) ([]*Rule, error)
	GetRule(ctx context.Context, id int64) (*Rule, error)
	// CreateRule inserts r and sets its ID and CreatedAt.
	CreateRule(ctx context.Context, r *Rule) error
	UpdateRule(ctx context.Context, r *Rule) error
	SetRuleActive(ctx context.Context, id int64, active bool) error
	// RecordRuleHits adds hits[id] to the hit counter of each rule.
	RecordRuleHits(ctx context.Context, hits map[int64]int, at time.Time) error
	// BeginCreate opens a unit of work that holds, until it ends, a lock
	// shared by every caller creating a rule with a match equivalent to m.
	BeginCreate(ctx context.Context, m Match) (CreateTx, error)
}

// CreateTx checks for existing rules and inserts one under the lock taken by
// BeginCreate.
type CreateTx interface {
	ListRules(ctx context.Context, filter ListFilter) ([]*Rule, error)
	CreateRule(ctx context.Context, r *Rule) error
	SetRuleActive(ctx context.Context, id int64, active bool) error
	Commit() error
	Rollback() error
}

// CategoryValidator reports whether a category id may be assigned.
type CategoryValidator interface {
	Validate(ctx context.Context, id int64) error
}

type ListFilter struct {
	ActiveOnly bool
	CategoryID *int64
	Origin     *Origin
}

// Params describes a rule to create or the full new state of one to replace.
type Params struct {
	Type       Type
	Fields     Fields
	CategoryID int64
	Priority   int
	Confidence *float64
	IsActive   *bool
	Origin     Origin
	Notes      string
}

type Service struct {
	repo       Repository
	categories CategoryValidator
	now        func() time.Time
}

func NewService(repo Repository, categories CategoryValidator) *Service {
	return &Service{repo: repo, categories: categories, now: time.Now}
}

func (s *Service) Get(ctx context.Context, id int64) (*Rule, error) {
	return s.repo.GetRule(ctx, id)
}

func (s *Service) List(ctx context.Context, filter ListFilter) ([]*Rule, error) {
	rules, err := s.repo.ListRules(ctx, filter)
	if err != nil {
		return nil, err
	}

	Sort(rules)

	return rules, nil
}

// ListActive returns a snapshot of the active rules in evaluation order.
func (s *Service) ListActive(ctx context.Context) ([]*Rule, error) {
	return s.List(ctx, ListFilter{ActiveOnly: true})
}

// Create inserts the rule described by p. When a rule with the same
// definition already exists it is returned instead and created is false.
func (s *Service) Create(ctx context.Context, p Params) (r *Rule, created bool, err error) {
	r, err = s.build(ctx, p)
	if err != nil {
		return nil, false, err
	}

	err = s.inCreateTx(ctx, r.Match, func(tx CreateTx) error {
		rules, err := tx.ListRules(ctx, ListFilter{CategoryID: &r.CategoryID})
		if err != nil {
			return err
		}

		for _, existing := range rules {
			if sameDefinition(existing, r) {
				r = existing
				return nil
			}
		}

		if err := tx.CreateRule(ctx, r); err != nil {
			return fmt.Errorf("creating rule: %w", err)
		}

		created = true

		return nil
	})
	if err != nil {
		return nil, false, err
	}

	return r, created, nil
}

// Learn stores the learned rule described by p unless an equivalent active
// rule already assigns the same category. Learned rules sending the same
// match to another category are deactivated. It returns nil when nothing was
// created.
func (s *Service) Learn(ctx context.Context, p Params) (*Rule, error) {
	p.Origin = OriginLearned

	r, err := s.build(ctx, p)
	if err != nil {
		return nil, err
	}

	existing, err := s.FindEquivalent(ctx, r.Match, r.CategoryID)
	if err != nil {
		return nil, err
	}

	if existing != nil {
		return nil, nil
	}

	var created *Rule

	err = s.inCreateTx(ctx, r.Match, func(tx CreateTx) error {
		active, err := tx.ListRules(ctx, ListFilter{ActiveOnly: true})
		if err != nil {
			return err
		}

		if Equivalent(active, r.Match, r.CategoryID) != nil {
			return nil
		}

		for _, old := range active {
			if old.Origin == OriginLearned && old.CategoryID != r.CategoryID && old.Match.Equivalent(r.Match) {
				if err := tx.SetRuleActive(ctx, old.ID, false); err != nil {
					return fmt.Errorf("superseding rule %d: %w", old.ID, err)
				}
			}
		}

		if err := tx.CreateRule(ctx, r); err != nil {
			return fmt.Errorf("creating learned rule: %w", err)
		}

		created = r

		return nil
	})
	if err != nil {
		return nil, err
	}

	return created, nil
}

func (s *Service) inCreateTx(ctx context.Context, m Match, fn func(tx CreateTx) error) error {
	tx, err := s.repo.BeginCreate(ctx, m)
	if err != nil {
		return fmt.Errorf("locking rule match %s: %w", m, err)
	}
	defer tx.Rollback()

	if err := fn(tx); err != nil {
		return err
	}

	return tx.Commit()
}

// sameDefinition reports whether a and b would behave identically: equivalent
// match, same category, priority, confidence, state and origin.
func sameDefinition(a, b *Rule) bool {
	return a.Match.Equivalent(b.Match) &&
		a.CategoryID == b.CategoryID &&
		a.Priority == b.Priority &&
		a.Confidence == b.Confidence &&
		a.IsActive == b.IsActive &&
		a.Origin == b.Origin
}

// Update replaces the definition of rule id with p. Hit statistics and
// origin are preserved.
func (s *Service) Update(ctx context.Context, id int64, p Params) (*Rule, error) {
	existing, err := s.repo.GetRule(ctx, id)
	if err != nil {
		return nil, err
	}

	if p.Origin == "" {
		p.Origin = existing.Origin
	}

	r, err := s.build(ctx, p)
	if err != nil {
		return nil, err
	}

	r.ID = existing.ID
	r.HitCount = existing.HitCount
	r.LastHitAt = existing.LastHitAt
	r.CreatedAt = existing.CreatedAt

	if err := s.repo.UpdateRule(ctx, r); err != nil {
		return nil, fmt.Errorf("updating rule %d: %w", id, err)
	}

	return r, nil
}

func (s *Service) Activate(ctx context.Context, id int64) error {
	return s.repo.SetRuleActive(ctx, id, true)
}

func (s *Service) Deactivate(ctx context.Context, id int64) error {
	return s.repo.SetRuleActive(ctx, id, false)
}

// BulkSetActive toggles every rule in ids. Unknown ids are reported as
// skipped without aborting the batch.
func (s *Service) BulkSetActive(ctx context.Context, ids []int64, active bool) (batch.Result, error) {
	var res batch.Result

	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			return res, err
		}

		err := s.repo.SetRuleActive(ctx, id, active)
		if err != nil {
			if errors.Is(err, ErrNotFound) {
				res.Fail(id, err)
				continue
			}

			return res, fmt.Errorf("setting rule %d active=%t: %w", id, active, err)
		}

		res.Updated++
	}

	return res, nil
}

// FindEquivalent returns the active rule whose match is equivalent to m and
// which assigns categoryID, or nil when there is none.
func (s *Service) FindEquivalent(ctx context.Context, m Match, categoryID int64) (*Rule, error) {
	rules, err := s.ListActive(ctx)
	if err != nil {
		return nil, err
	}

	return Equivalent(rules, m, categoryID), nil
}

// RecordHits adds the per-rule hit counts collected by an automatic pass.
func (s *Service) RecordHits(ctx context.Context, hits map[int64]int) error {
	if len(hits) == 0 {
		return nil
	}

	if err := s.repo.RecordRuleHits(ctx, hits, s.now()); err != nil {
		return fmt.Errorf("recording rule hits: %w", err)
	}

	return nil
}

// Equivalent returns the first rule in rules with a match equivalent to m
// that assigns categoryID.
func Equivalent(rules []*Rule, m Match, categoryID int64) *Rule {
	for _, r := range rules {
		if r.CategoryID == categoryID && r.Match.Equivalent(m) {
			return r
		}
	}

	return nil
}

func (s *Service) build(ctx context.Context, p Params) (*Rule, error) {
	m, err := NewMatch(p.Type, p.Fields)
	if err != nil {
		return nil, err
	}

	confidence := 1.0
	if p.Confidence != nil {
		confidence = *p.Confidence
	}

	if confidence < 0 || confidence > 1 {
		return nil, fmt.Errorf("%w: confidence %v out of range [0, 1]", ErrInvalidRule, confidence)
	}

	if err := s.categories.Validate(ctx, p.CategoryID); err != nil {
		return nil, fmt.Errorf("%w: category %d: %w", ErrInvalidRule, p.CategoryID, err)
	}

	origin := p.Origin
	if origin == "" {
		origin = OriginManual
	}

	active := true
	if p.IsActive != nil {
		active = *p.IsActive
	}

	return &Rule{
		Match:      m,
		CategoryID: p.CategoryID,
		Priority:   p.Priority,
		Confidence: confidence,
		IsActive:   active,
		Origin:     origin,
		Notes:      p.Notes,
	}, nil
}
