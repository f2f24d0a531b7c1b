package checks

import (
	"context"
	"fmt"
	"time"

	"token-vetting/internal/domain"
)

// PairAge penalizes pools created moments ago.
type PairAge struct {
	PairAgePolicy
}

// NewPairAge creates a PairAge check.
func NewPairAge(p PairAgePolicy) *PairAge {
	return &PairAge{PairAgePolicy: p}
}

// Name implements Check.
func (c *PairAge) Name() string { return NamePairAge }

// Evaluate implements Check.
func (c *PairAge) Evaluate(ctx context.Context, _ domain.TokenID, snap *domain.MarketSnapshot) (Outcome, error) {
	if err := ctx.Err(); err != nil {
		return Outcome{}, err
	}

	age, ok := snap.PairAge()
	if !ok {
		return Outcome{}, fmt.Errorf("%w: pair creation time", ErrMissingData)
	}

	switch {
	case age < c.FailBelow:
		return fail(c.FailScore, "pair created %s ago (min %s)", age.Round(time.Second), c.FailBelow), nil
	case age < c.WarnBelow:
		return warn(c.WarnScore, "pair created %s ago (recommended %s)", age.Round(time.Second), c.WarnBelow), nil
	default:
		return pass(c.PassScore, "pair created %s ago", age.Round(time.Second)), nil
	}
}
