// Package rule is the store of manually authored and learned categorization
// rules. Rules are evaluated in a total order: priority descending, then id
// ascending.
package rule

import (
	"cmp"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/MrJamesThe3rd/ledgermatch/internal/textnorm"
	"github.com/MrJamesThe3rd/ledgermatch/internal/transaction"
)

var (
	ErrNotFound    = errors.New("rule not found")
	ErrInvalidRule = errors.New("invalid rule")
)

// Type selects which transaction field a rule inspects.
type Type string

const (
	TypeCounterpartyINN   Type = "COUNTERPARTY_INN"
	TypeCounterpartyName  Type = "COUNTERPARTY_NAME"
	TypeBusinessOperation Type = "BUSINESS_OPERATION"
	TypeKeyword           Type = "KEYWORD"
)

// Origin tells whether a person wrote the rule or it was learned from a
// manual categorization.
type Origin string

const (
	OriginManual  Origin = "manual"
	OriginLearned Origin = "learned"
)

// Fields is the wire shape of a rule's match value: one optional field per
// rule type, exactly one of which may be set.
type Fields struct {
	CounterpartyINN   *string `json:"counterparty_inn,omitempty"`
	CounterpartyName  *string `json:"counterparty_name,omitempty"`
	BusinessOperation *string `json:"business_operation,omitempty"`
	Keyword           *string `json:"keyword,omitempty"`
}

// Match is the condition of a rule. The zero value matches nothing; build
// one with NewMatch or MatchOf.
type Match struct {
	typ   Type
	value string
}

// NewMatch validates that exactly one field of f is populated and that it is
// the field belonging to t.
func NewMatch(t Type, f Fields) (Match, error) {
	set := map[Type]*string{
		TypeCounterpartyINN:   f.CounterpartyINN,
		TypeCounterpartyName:  f.CounterpartyName,
		TypeBusinessOperation: f.BusinessOperation,
		TypeKeyword:           f.Keyword,
	}

	if _, ok := set[t]; !ok {
		return Match{}, fmt.Errorf("%w: unknown rule type %q", ErrInvalidRule, t)
	}

	populated := 0

	for _, v := range set {
		if v != nil && strings.TrimSpace(*v) != "" {
			populated++
		}
	}

	if populated != 1 {
		return Match{}, fmt.Errorf("%w: exactly one match value must be set, got %d", ErrInvalidRule, populated)
	}

	v := set[t]
	if v == nil || strings.TrimSpace(*v) == "" {
		return Match{}, fmt.Errorf("%w: match value does not belong to rule type %s", ErrInvalidRule, t)
	}

	return Match{typ: t, value: strings.TrimSpace(*v)}, nil
}

// MatchOf builds a match from a type and its single value.
func MatchOf(t Type, value string) (Match, error) {
	f := Fields{}

	switch t {
	case TypeCounterpartyINN:
		f.CounterpartyINN = &value
	case TypeCounterpartyName:
		f.CounterpartyName = &value
	case TypeBusinessOperation:
		f.BusinessOperation = &value
	case TypeKeyword:
		f.Keyword = &value
	}

	return NewMatch(t, f)
}

func (m Match) Type() Type     { return m.typ }
func (m Match) Value() string  { return m.value }
func (m Match) IsZero() bool   { return m.typ == "" }
func (m Match) String() string { return fmt.Sprintf("%s=%q", m.typ, m.value) }

// Fields returns the wire shape of m.
func (m Match) Fields() Fields {
	v := m.value

	switch m.typ {
	case TypeCounterpartyINN:
		return Fields{CounterpartyINN: &v}
	case TypeCounterpartyName:
		return Fields{CounterpartyName: &v}
	case TypeBusinessOperation:
		return Fields{BusinessOperation: &v}
	case TypeKeyword:
		return Fields{Keyword: &v}
	}

	return Fields{}
}

// Matches reports whether tx satisfies the condition. INN comparison is exact;
// names and operations compare case-insensitively after trimming; keywords
// match as case-insensitive substrings of the payment purpose.
func (m Match) Matches(tx *transaction.Transaction) bool {
	switch m.typ {
	case TypeCounterpartyINN:
		return tx.INN() != "" && tx.INN() == m.value
	case TypeCounterpartyName:
		return textnorm.Equal(tx.CounterpartyName, m.value)
	case TypeBusinessOperation:
		return textnorm.Equal(tx.BusinessOperation, m.value)
	case TypeKeyword:
		return textnorm.Contains(tx.PaymentPurpose, m.value)
	}

	return false
}

// Equivalent reports whether m and other select the same transactions.
func (m Match) Equivalent(other Match) bool {
	if m.typ != other.typ {
		return false
	}

	if m.typ == TypeCounterpartyINN {
		return m.value == other.value
	}

	return textnorm.Equal(m.value, other.value)
}

// Key is a canonical form of m: equivalent matches share a key.
func (m Match) Key() string {
	if m.typ == TypeCounterpartyINN {
		return string(m.typ) + ":" + m.value
	}

	return string(m.typ) + ":" + textnorm.Fold(m.value)
}

// Rule assigns CategoryID with Confidence to transactions satisfying Match.
type Rule struct {
	ID         int64
	Match      Match
	CategoryID int64
	Priority   int
	Confidence float64
	IsActive   bool
	Origin     Origin
	Notes      string
	HitCount   int
	LastHitAt  *time.Time
	CreatedAt  time.Time
	UpdatedAt  *time.Time
}

// Sort orders rules by priority descending, then id ascending.
func Sort(rules []*Rule) {
	slices.SortStableFunc(rules, func(a, b *Rule) int {
		if c := cmp.Compare(b.Priority, a.Priority); c != 0 {
			return c
		}

		return cmp.Compare(a.ID, b.ID)
	})
}
