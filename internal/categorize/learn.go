package categorize

import (
	"fmt"
	"strings"

	"github.com/MrJamesThe3rd/ledgermatch/internal/rule"
	"github.com/MrJamesThe3rd/ledgermatch/internal/transaction"
)

// LearnedRulePriority is the priority of rules derived from manual decisions.
const LearnedRulePriority = 100

// DeriveRuleFromDecision builds the rule implied by assigning categoryID to
// tx by hand. The most specific identifier wins: the INN when present,
// otherwise the counterparty name. It reports false when tx has neither.
func DeriveRuleFromDecision(tx *transaction.Transaction, categoryID int64, notes string) (rule.Params, bool) {
	var (
		typ    rule.Type
		fields rule.Fields
	)

	switch {
	case tx.INN() != "":
		typ = rule.TypeCounterpartyINN
		fields.CounterpartyINN = new(tx.INN())
	case strings.TrimSpace(tx.CounterpartyName) != "":
		typ = rule.TypeCounterpartyName
		fields.CounterpartyName = new(strings.TrimSpace(tx.CounterpartyName))
	default:
		return rule.Params{}, false
	}

	if notes == "" {
		notes = fmt.Sprintf("learned from transaction %d", tx.ID)
	}

	return rule.Params{
		Type:       typ,
		Fields:     fields,
		CategoryID: categoryID,
		Priority:   LearnedRulePriority,
		Confidence: new(1.0),
		Origin:     rule.OriginLearned,
		Notes:      notes,
	}, true
}
