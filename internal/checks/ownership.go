package checks

import (
	"context"
	"fmt"

	"token-vetting/internal/domain"
)

// OwnershipConcentration flags supply held by a handful of wallets.
type OwnershipConcentration struct {
	OwnershipPolicy
}

// NewOwnershipConcentration creates an OwnershipConcentration check.
func NewOwnershipConcentration(p OwnershipPolicy) *OwnershipConcentration {
	return &OwnershipConcentration{OwnershipPolicy: p}
}

// Name implements Check.
func (c *OwnershipConcentration) Name() string { return NameOwnershipConcentration }

// Evaluate implements Check.
func (c *OwnershipConcentration) Evaluate(ctx context.Context, _ domain.TokenID, snap *domain.MarketSnapshot) (Outcome, error) {
	if err := ctx.Err(); err != nil {
		return Outcome{}, err
	}
	if !snap.HolderDataAvailable {
		return Outcome{}, fmt.Errorf("%w: holder distribution", ErrMissingData)
	}

	switch {
	case snap.Top10HolderShare > c.MaxTop10Share:
		return fail(c.FailScore, "top 10 holders own %.1f%% of supply (max %.1f%%)",
			snap.Top10HolderShare*100, c.MaxTop10Share*100), nil
	case snap.TopHolderShare > c.MaxTopHolder:
		return warn(c.WarnScore, "top holder owns %.1f%% of supply (max %.1f%%)",
			snap.TopHolderShare*100, c.MaxTopHolder*100), nil
	case snap.HolderCount < c.MinHolderCount:
		return warn(c.WarnScore, "only %d holders (min %d)", snap.HolderCount, c.MinHolderCount), nil
	default:
		return pass(c.PassScore, "%d holders, top 10 own %.1f%%", snap.HolderCount, snap.Top10HolderShare*100), nil
	}
}
