package checks

import (
	"context"
	"fmt"

	"token-vetting/internal/domain"
)

// LiquidityThreshold fails tokens whose most liquid pair is too shallow to trade.
type LiquidityThreshold struct {
	LiquidityPolicy
}

// NewLiquidityThreshold creates a LiquidityThreshold check.
func NewLiquidityThreshold(p LiquidityPolicy) *LiquidityThreshold {
	return &LiquidityThreshold{LiquidityPolicy: p}
}

// Name implements Check.
func (c *LiquidityThreshold) Name() string { return NameLiquidityThreshold }

// Evaluate implements Check.
func (c *LiquidityThreshold) Evaluate(ctx context.Context, _ domain.TokenID, snap *domain.MarketSnapshot) (Outcome, error) {
	if err := ctx.Err(); err != nil {
		return Outcome{}, err
	}

	liq := snap.LiquidityUSD
	switch {
	case liq < c.MinUSD:
		return fail(c.FailScore, "liquidity $%.2f is below minimum $%.2f", liq, c.MinUSD), nil
	case liq < c.MinUSD*c.WarnMultiple:
		return warn(c.WarnScore, "liquidity $%.2f is under %.1fx the $%.2f minimum", liq, c.WarnMultiple, c.MinUSD), nil
	default:
		return pass(c.PassScore, "liquidity $%.2f", liq), nil
	}
}

// VolumePlausibility flags idle pairs and volume far out of proportion to liquidity,
// the usual signature of wash trading.
type VolumePlausibility struct {
	VolumePolicy
}

// NewVolumePlausibility creates a VolumePlausibility check.
func NewVolumePlausibility(p VolumePolicy) *VolumePlausibility {
	return &VolumePlausibility{VolumePolicy: p}
}

// Name implements Check.
func (c *VolumePlausibility) Name() string { return NameVolumePlausibility }

// Evaluate implements Check.
func (c *VolumePlausibility) Evaluate(ctx context.Context, _ domain.TokenID, snap *domain.MarketSnapshot) (Outcome, error) {
	if err := ctx.Err(); err != nil {
		return Outcome{}, err
	}
	if snap.LiquidityUSD <= 0 {
		return Outcome{}, fmt.Errorf("%w: liquidity is zero, volume ratio undefined", ErrMissingData)
	}

	vol := snap.Volume24hUSD
	if vol <= 0 {
		return warn(c.IdleScore, "no trading volume in the last 24h"), nil
	}

	ratio := vol / snap.LiquidityUSD
	if ratio > c.MaxVolumeToLiquidity {
		return warn(c.WashScore, "24h volume is %.1fx liquidity (max %.1fx)", ratio, c.MaxVolumeToLiquidity), nil
	}
	return pass(c.PassScore, "24h volume is %.2fx liquidity", ratio), nil
}
