package scoring

import (
	"github.com/MrJamesThe3rd/ledgermatch/internal/textnorm"
	"github.com/MrJamesThe3rd/ledgermatch/internal/transaction"
)

// counts maps a key to the number of manual decisions per category.
type counts map[string]map[int64]int

func (c counts) add(key string, categoryID int64) {
	if key == "" {
		return
	}

	byCategory, ok := c[key]
	if !ok {
		byCategory = make(map[int64]int)
		c[key] = byCategory
	}

	byCategory[categoryID]++
}

// top returns the category with the most occurrences for key; ties go to the
// lower category id.
func (c counts) top(key string) (int64, int, bool) {
	if key == "" {
		return 0, 0, false
	}

	var (
		best  int64
		bestN int
	)

	for id, n := range c[key] {
		if n > bestN || (n == bestN && id < best) {
			best, bestN = id, n
		}
	}

	return best, bestN, bestN > 0
}

// History aggregates manually categorized transactions into the lookup
// tables of the history and keyword tiers. It is read-only once built.
type History struct {
	byINN       counts
	byName      counts
	byOperation counts
	keywords    counts
}

func NewHistory(rows []transaction.HistoryRow) *History {
	h := &History{
		byINN:       make(counts),
		byName:      make(counts),
		byOperation: make(counts),
		keywords:    make(counts),
	}

	for _, r := range rows {
		h.Add(r)
	}

	return h
}

// Add records one more manual decision.
func (h *History) Add(r transaction.HistoryRow) {
	h.byINN.add(trimmed(r.CounterpartyINN), r.CategoryID)
	h.byName.add(textnorm.Fold(r.CounterpartyName), r.CategoryID)
	h.byOperation.add(textnorm.Fold(r.BusinessOperation), r.CategoryID)

	for _, tok := range textnorm.Tokens(r.PaymentPurpose) {
		h.keywords.add(tok, r.CategoryID)
	}
}

func (h *History) Len() int {
	if h == nil {
		return 0
	}

	return len(h.byINN) + len(h.byName) + len(h.byOperation)
}

type keywordMatch struct {
	categoryID int64
	tokens     []string
	weight     int
}

// matchKeywords finds the category with the most purpose tokens in common
// with the learned keyword table. Ties go to the higher accumulated weight,
// then to the lower category id.
func (h *History) matchKeywords(purpose string) (keywordMatch, bool) {
	byCategory := make(map[int64]*keywordMatch)

	for _, tok := range textnorm.Tokens(purpose) {
		for id, n := range h.keywords[tok] {
			m, ok := byCategory[id]
			if !ok {
				m = &keywordMatch{categoryID: id}
				byCategory[id] = m
			}

			m.tokens = append(m.tokens, tok)
			m.weight += n
		}
	}

	var best *keywordMatch

	for _, m := range byCategory {
		if best == nil || better(m, best) {
			best = m
		}
	}

	if best == nil {
		return keywordMatch{}, false
	}

	return *best, true
}

func better(a, b *keywordMatch) bool {
	if len(a.tokens) != len(b.tokens) {
		return len(a.tokens) > len(b.tokens)
	}

	if a.weight != b.weight {
		return a.weight > b.weight
	}

	return a.categoryID < b.categoryID
}
