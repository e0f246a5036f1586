// Package categorize assigns budget categories to transactions: manual
// decisions (single, bulk, similar), automatic passes through the scorer,
// and the learned rules derived from manual decisions.
package categorize

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"

	"github.com/MrJamesThe3rd/ledgermatch/internal/batch"
	"github.com/MrJamesThe3rd/ledgermatch/internal/category"
	"github.com/MrJamesThe3rd/ledgermatch/internal/rule"
	"github.com/MrJamesThe3rd/ledgermatch/internal/scoring"
	"github.com/MrJamesThe3rd/ledgermatch/internal/textnorm"
	"github.com/MrJamesThe3rd/ledgermatch/internal/transaction"
)

var (
	ErrCategoryNotFound = errors.New("category not found")
	ErrNoSuggestion     = errors.New("transaction has no pending suggestion")
)

type Options struct {
	Policy scoring.Policy
	// MinSuggestionGroup is how many transactions of one bulk decision must
	// share an INN or name before a rule is suggested.
	MinSuggestionGroup int
}

func DefaultOptions() Options {
	return Options{
		Policy:             scoring.DefaultPolicy(),
		MinSuggestionGroup: 3,
	}
}

type Service struct {
	txs        *transaction.Service
	rules      *rule.Service
	categories *category.Service
	opts       Options
}

func NewService(txs *transaction.Service, rules *rule.Service, categories *category.Service, opts Options) *Service {
	if opts.MinSuggestionGroup <= 0 {
		opts.MinSuggestionGroup = DefaultOptions().MinSuggestionGroup
	}

	return &Service{txs: txs, rules: rules, categories: categories, opts: opts}
}

// RuleSuggestion is a rule the caller may want to create after a bulk
// decision. It is never created automatically.
type RuleSuggestion struct {
	Type             rule.Type `json:"rule_type"`
	Value            string    `json:"match_value"`
	CategoryID       int64     `json:"category_id"`
	TransactionCount int       `json:"transaction_count"`
}

type BulkResult struct {
	batch.Result
	RuleSuggestions []RuleSuggestion `json:"rule_suggestions,omitempty"`
}

type AutoResult struct {
	batch.Result
	AutoApplied int `json:"auto_applied"`
	Suggested   int `json:"suggested"`
}

// CategorizeOne records a manual decision and learns a rule from it.
func (s *Service) CategorizeOne(ctx context.Context, txID, categoryID int64, notes string) (*transaction.Transaction, error) {
	if err := s.ValidateCategory(ctx, categoryID); err != nil {
		return nil, err
	}

	tx, err := s.txs.Get(ctx, txID)
	if err != nil {
		return nil, err
	}

	if err := s.decide(ctx, tx, categoryID, transaction.StatusCategorized); err != nil {
		return nil, err
	}

	s.learn(ctx, tx, categoryID, notes)

	return tx, nil
}

// ApproveSuggestion turns the pending suggestion of txID into a manual
// decision.
func (s *Service) ApproveSuggestion(ctx context.Context, txID int64) (*transaction.Transaction, error) {
	tx, err := s.txs.Get(ctx, txID)
	if err != nil {
		return nil, err
	}

	if tx.Status != transaction.StatusNeedsReview || tx.SuggestedCategoryID == nil {
		return nil, ErrNoSuggestion
	}

	categoryID := *tx.SuggestedCategoryID

	if err := s.ValidateCategory(ctx, categoryID); err != nil {
		return nil, err
	}

	if err := s.decide(ctx, tx, categoryID, transaction.StatusApproved); err != nil {
		return nil, err
	}

	s.learn(ctx, tx, categoryID, "")

	return tx, nil
}

// RejectSuggestion clears the pending suggestion of txID and returns it to
// the NEW state.
func (s *Service) RejectSuggestion(ctx context.Context, txID int64) (*transaction.Transaction, error) {
	tx, err := s.txs.Get(ctx, txID)
	if err != nil {
		return nil, err
	}

	if tx.Status != transaction.StatusNeedsReview {
		return nil, ErrNoSuggestion
	}

	tx.SuggestedCategoryID = nil
	tx.Confidence = nil
	tx.CategorySource = ""
	tx.Status = transaction.StatusNew

	if err := s.txs.Update(ctx, tx); err != nil {
		return nil, fmt.Errorf("rejecting suggestion for transaction %d: %w", txID, err)
	}

	return tx, nil
}

// BulkCategorize applies categoryID to every transaction in ids. Unknown ids
// and conflicting writes are reported per item; the batch never aborts on
// them. Groups of updated transactions sharing an INN or name produce rule
// suggestions.
func (s *Service) BulkCategorize(ctx context.Context, ids []int64, categoryID int64, p batch.Progress) (BulkResult, error) {
	return s.bulk(ctx, ids, categoryID, p, true)
}

// ApplyToSimilar applies categoryID to txID and the caller-supplied
// similarity set.
func (s *Service) ApplyToSimilar(ctx context.Context, txID, categoryID int64, similarIDs []int64, p batch.Progress) (BulkResult, error) {
	if _, err := s.txs.Get(ctx, txID); err != nil {
		return BulkResult{}, err
	}

	ids := append([]int64{txID}, similarIDs...)

	return s.bulk(ctx, ids, categoryID, p, false)
}

// FindSimilar returns up to limit undecided transactions sharing the INN,
// the normalized name or the purpose fingerprint of txID.
func (s *Service) FindSimilar(ctx context.Context, txID int64, limit int) ([]*transaction.Transaction, error) {
	anchor, err := s.txs.Get(ctx, txID)
	if err != nil {
		return nil, err
	}

	var pool []*transaction.Transaction

	for _, status := range []transaction.Status{transaction.StatusNew, transaction.StatusNeedsReview} {
		txs, err := s.txs.List(ctx, transaction.ListFilter{Status: &status})
		if err != nil {
			return nil, fmt.Errorf("listing %s transactions: %w", status, err)
		}

		pool = append(pool, txs...)
	}

	inn := anchor.INN()
	name := textnorm.Fold(anchor.CounterpartyName)
	fingerprint := textnorm.Fingerprint(anchor.PaymentPurpose)

	var similar []*transaction.Transaction

	for _, tx := range pool {
		if tx.ID == anchor.ID {
			continue
		}

		switch {
		case inn != "" && tx.INN() == inn,
			name != "" && textnorm.Fold(tx.CounterpartyName) == name,
			fingerprint != "" && textnorm.Fingerprint(tx.PaymentPurpose) == fingerprint:
			similar = append(similar, tx)
		}
	}

	transaction.SortByID(similar)

	if limit > 0 && len(similar) > limit {
		similar = similar[:limit]
	}

	return similar, nil
}

// AutoCategorize runs the scorer over ids, or over every NEW and
// NEEDS_REVIEW transaction when ids is empty, and applies the threshold
// policy. Transactions a person or an earlier pass already settled are
// skipped. On cancellation the partial result is returned with ctx.Err().
func (s *Service) AutoCategorize(ctx context.Context, ids []int64, p batch.Progress) (AutoResult, error) {
	p = batch.OrDiscard(p)

	var res AutoResult

	rules, err := s.rules.ListActive(ctx)
	if err != nil {
		return res, fmt.Errorf("loading rules: %w", err)
	}

	rows, err := s.txs.History(ctx)
	if err != nil {
		return res, fmt.Errorf("loading history: %w", err)
	}

	history := scoring.NewHistory(rows)
	slog.Debug("auto-categorize inputs", "rules", len(rules), "history", history.Len())

	txs, err := s.loadForAuto(ctx, ids, &res.Result)
	if err != nil {
		return res, err
	}

	p.SetTotal(len(txs))

	hits := make(map[int64]int)

	defer func() {
		if err := s.rules.RecordHits(context.WithoutCancel(ctx), hits); err != nil {
			slog.Warn("recording rule hits", "error", err)
		}
	}()

	for _, tx := range txs {
		if err := ctx.Err(); err != nil {
			return res, err
		}

		s.autoOne(ctx, tx, rules, history, &res, hits)
		p.Advance()
	}

	return res, nil
}

func (s *Service) autoOne(
	ctx context.Context,
	tx *transaction.Transaction,
	rules []*rule.Rule,
	history *scoring.History,
	res *AutoResult,
	hits map[int64]int,
) {
	if tx.IsSettled() {
		res.Skipped++
		return
	}

	sug, ok := scoring.Score(tx, rules, history, s.opts.Policy)
	if !ok {
		res.Skipped++
		return
	}

	decision := s.opts.Policy.Decide(sug.Confidence)

	switch decision {
	case scoring.DecisionAutoApply:
		tx.CategoryID = new(sug.CategoryID)
		tx.SuggestedCategoryID = nil
		tx.Status = transaction.StatusCategorized
	case scoring.DecisionSuggest:
		if tx.Status == transaction.StatusNeedsReview && sameSuggestion(tx, sug) {
			res.Skipped++
			return
		}

		tx.SuggestedCategoryID = new(sug.CategoryID)
		tx.Status = transaction.StatusNeedsReview
	default:
		res.Skipped++
		return
	}

	tx.Confidence = new(sug.Confidence)
	tx.CategorySource = sug.Source

	if err := s.txs.Update(ctx, tx); err != nil {
		res.Fail(tx.ID, err)
		return
	}

	res.Updated++

	if decision == scoring.DecisionAutoApply {
		res.AutoApplied++
	} else {
		res.Suggested++
	}

	if sug.RuleID != nil {
		hits[*sug.RuleID]++
	}
}

func sameSuggestion(tx *transaction.Transaction, sug scoring.Suggestion) bool {
	return tx.SuggestedCategoryID != nil && *tx.SuggestedCategoryID == sug.CategoryID &&
		tx.Confidence != nil && *tx.Confidence == sug.Confidence
}

func (s *Service) loadForAuto(ctx context.Context, ids []int64, res *batch.Result) ([]*transaction.Transaction, error) {
	if len(ids) > 0 {
		return s.load(ctx, ids, res)
	}

	var txs []*transaction.Transaction

	for _, status := range []transaction.Status{transaction.StatusNew, transaction.StatusNeedsReview} {
		page, err := s.txs.List(ctx, transaction.ListFilter{Status: &status})
		if err != nil {
			return nil, fmt.Errorf("listing %s transactions: %w", status, err)
		}

		txs = append(txs, page...)
	}

	transaction.SortByID(txs)

	return txs, nil
}

// load fetches ids in id order and reports unknown ids as skipped.
func (s *Service) load(ctx context.Context, ids []int64, res *batch.Result) ([]*transaction.Transaction, error) {
	unique := slices.Clone(ids)
	slices.Sort(unique)
	unique = slices.Compact(unique)

	txs, err := s.txs.GetMany(ctx, unique)
	if err != nil {
		return nil, fmt.Errorf("loading transactions: %w", err)
	}

	found := make(map[int64]bool, len(txs))
	for _, tx := range txs {
		found[tx.ID] = true
	}

	for _, id := range unique {
		if !found[id] {
			res.Fail(id, transaction.ErrNotFound)
		}
	}

	return txs, nil
}

func (s *Service) bulk(ctx context.Context, ids []int64, categoryID int64, p batch.Progress, suggest bool) (BulkResult, error) {
	p = batch.OrDiscard(p)

	var res BulkResult

	if err := s.ValidateCategory(ctx, categoryID); err != nil {
		return res, err
	}

	txs, err := s.load(ctx, ids, &res.Result)
	if err != nil {
		return res, err
	}

	p.SetTotal(len(txs))

	var updated []*transaction.Transaction

	for _, tx := range txs {
		if err := ctx.Err(); err != nil {
			return res, err
		}

		if alreadyDecided(tx, categoryID) {
			res.Skipped++
		} else if err := s.decide(ctx, tx, categoryID, transaction.StatusCategorized); err != nil {
			res.Fail(tx.ID, err)
		} else {
			res.Updated++

			updated = append(updated, tx)
		}

		p.Advance()
	}

	if suggest {
		res.RuleSuggestions, err = s.suggestRules(ctx, updated, categoryID)
		if err != nil {
			return res, err
		}
	}

	return res, nil
}

func alreadyDecided(tx *transaction.Transaction, categoryID int64) bool {
	if tx.CategoryID == nil || *tx.CategoryID != categoryID {
		return false
	}

	return tx.CategorySource == transaction.SourceManual &&
		(tx.Status == transaction.StatusCategorized || tx.Status == transaction.StatusApproved)
}

// decide writes a manual decision onto tx. Re-applying the same decision is
// a no-op.
func (s *Service) decide(ctx context.Context, tx *transaction.Transaction, categoryID int64, status transaction.Status) error {
	if alreadyDecided(tx, categoryID) && tx.Status == status {
		return nil
	}

	tx.CategoryID = new(categoryID)
	tx.SuggestedCategoryID = nil
	tx.Confidence = new(1.0)
	tx.CategorySource = transaction.SourceManual
	tx.Status = status

	if err := s.txs.Update(ctx, tx); err != nil {
		return fmt.Errorf("categorizing transaction %d: %w", tx.ID, err)
	}

	return nil
}

// learn creates the rule derived from a manual decision unless an equivalent
// active rule exists, and deactivates learned rules that send the same
// pattern to another category. The decision is already committed, so
// failures are only logged.
func (s *Service) learn(ctx context.Context, tx *transaction.Transaction, categoryID int64, notes string) {
	created, err := s.LearnRule(ctx, tx, categoryID, notes)
	if err != nil {
		slog.Warn("learning rule from decision", "transaction_id", tx.ID, "error", err)
		return
	}

	if created != nil {
		slog.Info("learned rule", "rule_id", created.ID, "match", created.Match.String(), "category_id", categoryID)
	}
}

// LearnRule is the persistence step after DeriveRuleFromDecision. It returns
// the created rule, or nil when nothing was created.
func (s *Service) LearnRule(ctx context.Context, tx *transaction.Transaction, categoryID int64, notes string) (*rule.Rule, error) {
	params, ok := DeriveRuleFromDecision(tx, categoryID, notes)
	if !ok {
		return nil, nil
	}

	return s.rules.Learn(ctx, params)
}

func (s *Service) suggestRules(ctx context.Context, updated []*transaction.Transaction, categoryID int64) ([]RuleSuggestion, error) {
	if len(updated) < s.opts.MinSuggestionGroup {
		return nil, nil
	}

	type group struct {
		value string
		count int
	}

	byINN := make(map[string]*group)
	byName := make(map[string]*group)

	for _, tx := range updated {
		if inn := tx.INN(); inn != "" {
			if byINN[inn] == nil {
				byINN[inn] = &group{value: inn}
			}

			byINN[inn].count++
		}

		if key := textnorm.Fold(tx.CounterpartyName); key != "" {
			if byName[key] == nil {
				byName[key] = &group{value: strings.TrimSpace(tx.CounterpartyName)}
			}

			byName[key].count++
		}
	}

	var out []RuleSuggestion

	collect := func(t rule.Type, groups map[string]*group) error {
		var found []RuleSuggestion

		for _, g := range groups {
			if g.count < s.opts.MinSuggestionGroup {
				continue
			}

			m, err := rule.MatchOf(t, g.value)
			if err != nil {
				continue
			}

			existing, err := s.rules.FindEquivalent(ctx, m, categoryID)
			if err != nil {
				return fmt.Errorf("checking rules for %s: %w", m, err)
			}

			if existing != nil {
				continue
			}

			found = append(found, RuleSuggestion{
				Type:             t,
				Value:            g.value,
				CategoryID:       categoryID,
				TransactionCount: g.count,
			})
		}

		slices.SortFunc(found, func(a, b RuleSuggestion) int {
			if c := cmp.Compare(b.TransactionCount, a.TransactionCount); c != 0 {
				return c
			}

			return cmp.Compare(a.Value, b.Value)
		})

		out = append(out, found...)

		return nil
	}

	if err := collect(rule.TypeCounterpartyINN, byINN); err != nil {
		return nil, err
	}

	if err := collect(rule.TypeCounterpartyName, byName); err != nil {
		return nil, err
	}

	return out, nil
}

// ValidateCategory returns ErrCategoryNotFound unless id names an active category.
func (s *Service) ValidateCategory(ctx context.Context, id int64) error {
	err := s.categories.Validate(ctx, id)
	if errors.Is(err, category.ErrNotFound) {
		return fmt.Errorf("%w: %d", ErrCategoryNotFound, id)
	}

	if err != nil {
		return fmt.Errorf("validating category %d: %w", id, err)
	}

	return nil
}
