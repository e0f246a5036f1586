// Package scoring computes a category suggestion and its confidence for a
// single transaction. Everything here is pure: rules and history are
// pre-fetched by the caller.
package scoring

import (
	"strings"

	"github.com/MrJamesThe3rd/ledgermatch/internal/rule"
	"github.com/MrJamesThe3rd/ledgermatch/internal/textnorm"
	"github.com/MrJamesThe3rd/ledgermatch/internal/transaction"
)

// Suggestion is the outcome of scoring one transaction.
type Suggestion struct {
	CategoryID int64
	Confidence float64
	Source     transaction.Source
	// RuleID is set when a rule decided the suggestion.
	RuleID *int64
	// Occurrences is the history count behind a history-tier suggestion.
	Occurrences     int
	MatchedKeywords []string
}

// Score evaluates the tiers in order and returns the first match. rules must
// already be in evaluation order (see rule.Sort). A nil history disables the
// history and keyword tiers.
func Score(tx *transaction.Transaction, rules []*rule.Rule, h *History, p Policy) (Suggestion, bool) {
	for _, r := range rules {
		if !r.IsActive || !r.Match.Matches(tx) {
			continue
		}

		return Suggestion{
			CategoryID: r.CategoryID,
			Confidence: r.Confidence,
			Source:     transaction.SourceRule,
			RuleID:     new(r.ID),
		}, true
	}

	if h == nil {
		return Suggestion{}, false
	}

	tiers := []struct {
		counts counts
		key    string
		tier   Tier
		source transaction.Source
	}{
		{h.byINN, trimmed(tx.CounterpartyINN), p.INNHistory, transaction.SourceINNHistory},
		{h.byName, textnorm.Fold(tx.CounterpartyName), p.NameHistory, transaction.SourceNameHistory},
		{h.byOperation, textnorm.Fold(tx.BusinessOperation), p.OperationHistory, transaction.SourceOperationHistory},
	}

	for _, t := range tiers {
		id, n, ok := t.counts.top(t.key)
		if !ok {
			continue
		}

		return Suggestion{
			CategoryID:  id,
			Confidence:  t.tier.Confidence(n),
			Source:      t.source,
			Occurrences: n,
		}, true
	}

	if m, ok := h.matchKeywords(tx.PaymentPurpose); ok {
		return Suggestion{
			CategoryID:      m.categoryID,
			Confidence:      p.Keyword.Confidence(len(m.tokens)),
			Source:          transaction.SourceKeyword,
			MatchedKeywords: m.tokens,
		}, true
	}

	return Suggestion{}, false
}

func trimmed(s string) string {
	return strings.TrimSpace(s)
}
