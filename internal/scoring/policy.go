package scoring

import (
	"errors"
	"fmt"
	"math"
)

var ErrInvalidPolicy = errors.New("invalid scoring policy")

// Tier is the confidence curve of one history tier: Base plus Step per
// occurrence, never above Cap.
type Tier struct {
	Base float64
	Step float64
	Cap  float64
}

// Confidence returns the tier's confidence for n occurrences, rounded to
// four decimals so that thresholds compare predictably.
func (t Tier) Confidence(n int) float64 {
	c := min(t.Cap, t.Base+t.Step*float64(n))

	return math.Round(c*1e4) / 1e4
}

func (t Tier) validate(name string) error {
	switch {
	case t.Base < 0 || t.Base > 1:
		return fmt.Errorf("%w: %s base %v out of [0, 1]", ErrInvalidPolicy, name, t.Base)
	case t.Cap < t.Base || t.Cap > 1:
		return fmt.Errorf("%w: %s cap %v must be within [base, 1]", ErrInvalidPolicy, name, t.Cap)
	case t.Step < 0:
		return fmt.Errorf("%w: %s step %v is negative", ErrInvalidPolicy, name, t.Step)
	}

	return nil
}

// Thresholds split confidences into auto-apply, suggest and ignore bands.
type Thresholds struct {
	AutoApply float64
	Review    float64
}

type Decision int

const (
	DecisionIgnore Decision = iota
	DecisionSuggest
	DecisionAutoApply
)

func (d Decision) String() string {
	switch d {
	case DecisionSuggest:
		return "suggest"
	case DecisionAutoApply:
		return "auto_apply"
	}

	return "ignore"
}

// Policy holds every constant of the scorer and the threshold policy.
type Policy struct {
	INNHistory       Tier
	NameHistory      Tier
	OperationHistory Tier
	Keyword          Tier
	Thresholds       Thresholds
}

func DefaultPolicy() Policy {
	return Policy{
		INNHistory:       Tier{Base: 0.70, Step: 0.05, Cap: 0.95},
		NameHistory:      Tier{Base: 0.65, Step: 0.05, Cap: 0.90},
		OperationHistory: Tier{Base: 0.55, Step: 0.05, Cap: 0.80},
		Keyword:          Tier{Base: 0.45, Step: 0.08, Cap: 0.75},
		Thresholds:       Thresholds{AutoApply: 0.85, Review: 0.60},
	}
}

// Decide maps a confidence onto the threshold policy.
func (p Policy) Decide(confidence float64) Decision {
	switch {
	case confidence >= p.Thresholds.AutoApply:
		return DecisionAutoApply
	case confidence >= p.Thresholds.Review:
		return DecisionSuggest
	}

	return DecisionIgnore
}

func (p Policy) Validate() error {
	tiers := []struct {
		name string
		tier Tier
	}{
		{"inn history", p.INNHistory},
		{"name history", p.NameHistory},
		{"operation history", p.OperationHistory},
		{"keyword", p.Keyword},
	}

	for _, t := range tiers {
		if err := t.tier.validate(t.name); err != nil {
			return err
		}
	}

	if p.Thresholds.Review < 0 || p.Thresholds.Review > p.Thresholds.AutoApply || p.Thresholds.AutoApply > 1 {
		return fmt.Errorf("%w: thresholds must satisfy 0 <= review (%v) <= auto (%v) <= 1",
			ErrInvalidPolicy, p.Thresholds.Review, p.Thresholds.AutoApply)
	}

	return nil
}
