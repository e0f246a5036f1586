// Package textnorm normalizes the free-text fields of bank movements
// (counterparty names, business operations, payment purposes) so that
// rules, history lookups and fuzzy matching compare like with like.
package textnorm

import (
	"sort"
	"strings"
	"unicode"
	"unicode/utf8"

	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"
)

const minTokenLen = 3

// stopWords are tokens that show up in almost every payment purpose and
// carry no signal about the category.
var stopWords = map[string]struct{}{
	"оплата": {}, "счет": {}, "счёт": {}, "сумма": {}, "том": {}, "числе": {}, "ндс": {},
	"без": {}, "для": {}, "договор": {}, "договору": {}, "по": {}, "от": {},
	"payment": {}, "invoice": {}, "the": {}, "and": {}, "for": {}, "with": {}, "vat": {},
}

// legalForms are dropped from counterparty names before token comparison.
var legalForms = map[string]struct{}{
	"ооо": {}, "оао": {}, "зао": {}, "пао": {}, "нко": {},
	"llc": {}, "ltd": {}, "inc": {}, "gmbh": {}, "corp": {},
}

// Fold trims, NFKC-normalizes and case-folds s.
// A fresh Caser is used per call because casers carry state.
func Fold(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return ""
	}

	return cases.Fold().String(norm.NFKC.String(s))
}

// Equal reports whether a and b are equal after folding.
func Equal(a, b string) bool {
	return Fold(a) == Fold(b)
}

// Contains reports whether the folded haystack contains the folded needle.
// An empty needle never matches.
func Contains(haystack, needle string) bool {
	n := Fold(needle)
	if n == "" {
		return false
	}

	return strings.Contains(Fold(haystack), n)
}

// Tokens splits s into folded word tokens, dropping short tokens, pure
// numbers and stop words. Order of first appearance is kept and duplicates
// are removed.
func Tokens(s string) []string {
	return tokens(s, stopWords)
}

// NameTokens is Tokens for counterparty names: legal-form tokens are
// dropped in addition to the usual filtering.
func NameTokens(s string) []string {
	out := tokens(s, stopWords)

	filtered := out[:0]
	for _, t := range out {
		if _, ok := legalForms[t]; ok {
			continue
		}

		filtered = append(filtered, t)
	}

	return filtered
}

// Fingerprint returns an order-independent key for a payment purpose, used to
// group transactions that differ only by numbers (invoice ids, dates).
func Fingerprint(s string) string {
	toks := Tokens(s)
	sort.Strings(toks)

	return strings.Join(toks, " ")
}

func tokens(s string, skip map[string]struct{}) []string {
	fields := strings.FieldsFunc(Fold(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})

	seen := make(map[string]struct{}, len(fields))
	out := make([]string, 0, len(fields))

	for _, f := range fields {
		if utf8.RuneCountInString(f) < minTokenLen || isNumber(f) {
			continue
		}

		if _, ok := skip[f]; ok {
			continue
		}

		if _, ok := seen[f]; ok {
			continue
		}

		seen[f] = struct{}{}
		out = append(out, f)
	}

	return out
}

func isNumber(s string) bool {
	for _, r := range s {
		if !unicode.IsDigit(r) {
			return false
		}
	}

	return true
}
