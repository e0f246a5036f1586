// Package reconcile links bank debits to the expense requests they settle:
// ranked candidate lists, explicit link/unlink, and idempotent auto-match.
package reconcile

import (
	"cmp"
	"fmt"
	"math"
	"slices"
	"time"
	"unicode/utf8"

	"github.com/agnivade/levenshtein"
	"github.com/shopspring/decimal"

	"github.com/MrJamesThe3rd/ledgermatch/internal/expense"
	"github.com/MrJamesThe3rd/ledgermatch/internal/textnorm"
	"github.com/MrJamesThe3rd/ledgermatch/internal/transaction"
)

type Signal string

const (
	SignalAmount Signal = "amount"
	SignalDate   Signal = "date"
	SignalINN    Signal = "inn"
	SignalName   Signal = "name"
)

// Weights configures candidate scoring. Points are on a 0-100 scale when all
// signals are present.
type Weights struct {
	Amount float64
	Date   float64
	INN    float64
	Name   float64

	// AmountTolerance is the relative difference at which the amount signal
	// reaches zero.
	AmountTolerance float64
	// DateFullDays and DateZeroDays bound the linear decay of the date signal.
	DateFullDays int
	DateZeroDays int
	// NameTokenSimilarity is the Levenshtein similarity above which two name
	// tokens count as equal.
	NameTokenSimilarity float64
}

func DefaultWeights() Weights {
	return Weights{
		Amount:              40,
		Date:                25,
		INN:                 25,
		Name:                10,
		AmountTolerance:     0.10,
		DateFullDays:        3,
		DateZeroDays:        30,
		NameTokenSimilarity: 0.8,
	}
}

// Reason is one signal that contributed to a candidate's score.
type Reason struct {
	Signal Signal  `json:"signal"`
	Points float64 `json:"points"`
	Detail string  `json:"detail"`
}

// Candidate is an expense request that may be settled by a transaction.
type Candidate struct {
	ExpenseID        int64    `json:"expense_id"`
	Score            float64  `json:"score"`
	Reasons          []Reason `json:"match_reasons"`
	DateDistanceDays int      `json:"date_distance_days"`
	RemainingAmount  int64    `json:"remaining_amount"`
}

// noDate sorts candidates without a date signal after every dated one.
const noDate = math.MaxInt32

// FindCandidates scores every open expense against tx and returns those at
// or above threshold, best first. Ties go to the closer date, then to the
// lower expense id. Signals that cannot be evaluated are left out and the
// score is renormalized over the remaining weights.
func FindCandidates(tx *transaction.Transaction, expenses []*expense.Request, threshold float64, w Weights) []Candidate {
	var out []Candidate

	for _, e := range expenses {
		if e.RemainingAmount <= 0 {
			continue
		}

		c := score(tx, e, w)
		if c.Score >= threshold {
			out = append(out, c)
		}
	}

	slices.SortFunc(out, func(a, b Candidate) int {
		if c := cmp.Compare(b.Score, a.Score); c != 0 {
			return c
		}

		if c := cmp.Compare(a.DateDistanceDays, b.DateDistanceDays); c != 0 {
			return c
		}

		return cmp.Compare(a.ExpenseID, b.ExpenseID)
	})

	return out
}

func score(tx *transaction.Transaction, e *expense.Request, w Weights) Candidate {
	c := Candidate{ExpenseID: e.ID, DateDistanceDays: noDate, RemainingAmount: e.RemainingAmount}

	var points, present float64

	add := func(signal Signal, weight, credit float64, detail string) {
		present += weight

		if credit <= 0 {
			return
		}

		p := weight * credit
		points += p

		c.Reasons = append(c.Reasons, Reason{Signal: signal, Points: round2(p), Detail: detail})
	}

	credit, ratio := amountCredit(tx.AbsAmount(), e.RemainingAmount, w.AmountTolerance)
	add(SignalAmount, w.Amount, credit, fmt.Sprintf("amount differs by %s%%", ratio.Mul(decimal.NewFromInt(100)).StringFixed(1)))

	if days, ok := dateDistance(tx.Date, e); ok {
		c.DateDistanceDays = days
		add(SignalDate, w.Date, dateCredit(days, w), fmt.Sprintf("%d days apart", days))
	}

	if inn, other := tx.INN(), e.INN(); inn != "" && other != "" {
		credit := 0.0
		if inn == other {
			credit = 1
		}

		add(SignalINN, w.INN, credit, "INN "+inn)
	}

	if a, b := textnorm.NameTokens(tx.CounterpartyName), textnorm.NameTokens(e.ContractorName); len(a) > 0 && len(b) > 0 {
		overlap := tokenOverlap(a, b, w.NameTokenSimilarity)
		add(SignalName, w.Name, overlap, fmt.Sprintf("name overlap %.0f%%", overlap*100))
	}

	if present > 0 {
		c.Score = round2(points / present * 100)
	}

	return c
}

// amountCredit returns the share of the amount weight earned by paying
// amount against remaining, and the relative difference it is based on.
func amountCredit(amount, remaining int64, tolerance float64) (float64, decimal.Decimal) {
	diff := decimal.NewFromInt(amount - remaining).Abs()
	ratio := diff.Div(decimal.NewFromInt(remaining))

	if tolerance <= 0 {
		if ratio.IsZero() {
			return 1, ratio
		}

		return 0, ratio
	}

	credit := decimal.NewFromInt(1).Sub(ratio.Div(decimal.NewFromFloat(tolerance)))
	if credit.IsNegative() {
		return 0, ratio
	}

	return credit.InexactFloat64(), ratio
}

// dateDistance is the distance in calendar days from date to the closer of
// the request and due dates.
func dateDistance(date time.Time, e *expense.Request) (int, bool) {
	if date.IsZero() {
		return 0, false
	}

	best, ok := 0, false

	for _, ref := range []*time.Time{&e.RequestDate, e.DueDate} {
		if ref == nil || ref.IsZero() {
			continue
		}

		d := dayIndex(date) - dayIndex(*ref)
		if d < 0 {
			d = -d
		}

		if !ok || int(d) < best {
			best, ok = int(d), true
		}
	}

	return best, ok
}

func dayIndex(t time.Time) int64 {
	y, m, d := t.Date()

	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC).Unix() / 86400
}

func dateCredit(days int, w Weights) float64 {
	switch {
	case days <= w.DateFullDays:
		return 1
	case days >= w.DateZeroDays:
		return 0
	}

	return 1 - float64(days-w.DateFullDays)/float64(w.DateZeroDays-w.DateFullDays)
}

// tokenOverlap is the share of tokens that pair up across a and b, where two
// tokens pair when their Levenshtein similarity reaches minSimilarity. Each
// token of b pairs at most once.
func tokenOverlap(a, b []string, minSimilarity float64) float64 {
	used := make([]bool, len(b))
	matched := 0

	for _, x := range a {
		for i, y := range b {
			if used[i] || similarity(x, y) < minSimilarity {
				continue
			}

			used[i] = true
			matched++

			break
		}
	}

	return float64(matched) / float64(max(len(a), len(b)))
}

func similarity(a, b string) float64 {
	if a == b {
		return 1
	}

	longest := max(utf8.RuneCountInString(a), utf8.RuneCountInString(b))
	if longest == 0 {
		return 1
	}

	return 1 - float64(levenshtein.ComputeDistance(a, b))/float64(longest)
}

func round2(f float64) float64 {
	return math.Round(f*100) / 100
}
