// Package fixtures provides canned tokens and market snapshots for demos and tests.
package fixtures

import (
	"time"

	"token-vetting/internal/domain"
)

// Well-known mints.
const (
	WrappedSOL domain.TokenID = "So11111111111111111111111111111111111111112"
	USDC       domain.TokenID = "EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v"
	USDT       domain.TokenID = "Es9vMFrzaCERmJfrF4H2FYD4KCoNkY11McCe8BenwNYB"
)

// Epoch is the reference clock used by fixtures (2024-01-01 00:00:00 UTC).
var Epoch = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

// HealthySnapshot returns a snapshot every default check passes.
func HealthySnapshot(token domain.TokenID, fetchedAt time.Time) *domain.MarketSnapshot {
	return &domain.MarketSnapshot{
		TokenID:               token,
		PairAddress:           "58oQChx4yWmvKdwLLZzBi4ChoCc2fqCUWBkwMihLYQo2",
		PairAddresses:         []string{"58oQChx4yWmvKdwLLZzBi4ChoCc2fqCUWBkwMihLYQo2"},
		DEX:                   "raydium",
		PriceUSD:              1.0,
		LiquidityUSD:          250_000,
		Volume24hUSD:          400_000,
		PairCreatedAt:         fetchedAt.Add(-30 * 24 * time.Hour),
		HolderDataAvailable:   true,
		HolderCount:           12_000,
		TopHolderShare:        0.05,
		Top10HolderShare:      0.22,
		ContractDataAvailable: true,
		OwnershipRenounced:    true,
		Sources:               []string{"dexscreener", "goplus"},
		FetchedAt:             fetchedAt,
	}
}

// IlliquidSnapshot is HealthySnapshot with liquidity below the default minimum.
func IlliquidSnapshot(token domain.TokenID, fetchedAt time.Time) *domain.MarketSnapshot {
	s := HealthySnapshot(token, fetchedAt)
	s.LiquidityUSD = 2_500
	s.Volume24hUSD = 3_000
	return s
}

// Snapshots maps fixture tokens to their canned market data.
func Snapshots(fetchedAt time.Time) map[domain.TokenID]*domain.MarketSnapshot {
	return map[domain.TokenID]*domain.MarketSnapshot{
		WrappedSOL: HealthySnapshot(WrappedSOL, fetchedAt),
		USDC:       HealthySnapshot(USDC, fetchedAt),
		USDT:       IlliquidSnapshot(USDT, fetchedAt),
	}
}

// Verdict returns a stored-shape verdict with one passing check.
func Verdict(token domain.TokenID, computedAt time.Time) *domain.Verdict {
	return &domain.Verdict{
		TokenID:    token,
		RunID:      "00000000-0000-0000-0000-000000000001",
		Score:      20,
		Status:     domain.StatusPass,
		Confidence: 1,
		Executed:   1,
		Total:      1,
		Checks: []domain.CheckResult{{
			Name:       "liquidity_threshold",
			Status:     domain.StatusPass,
			Score:      20,
			Detail:     "liquidity $250000.00",
			DurationMs: 1,
			ComputedAt: computedAt,
		}},
		ComputedAt: computedAt,
	}
}
