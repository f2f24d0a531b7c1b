package domain

import "time"

// MarketSnapshot is the normalized market input to exactly one check run.
// It is never mutated after the market data client returns it; checks
// receive their own Clone.
type MarketSnapshot struct {
	TokenID TokenID

	// Pair data, taken from the most liquid pair across providers.
	PairAddress   string
	PairAddresses []string // every pair seen, sorted
	DEX           string
	PriceUSD      float64
	LiquidityUSD  float64
	Volume24hUSD  float64
	PairCreatedAt time.Time // zero if unknown

	// Holder distribution.
	HolderDataAvailable bool
	HolderCount         int
	TopHolderShare      float64 // 0..1
	Top10HolderShare    float64 // 0..1

	// Contract metadata.
	ContractDataAvailable bool
	Mintable              bool
	Freezable             bool
	OwnershipRenounced    bool
	MintAuthority         string

	Sources   []string // providers that contributed, in configuration order
	FetchedAt time.Time
}

// Clone returns a deep copy.
func (s *MarketSnapshot) Clone() *MarketSnapshot {
	if s == nil {
		return nil
	}
	c := *s
	if s.PairAddresses != nil {
		c.PairAddresses = append([]string(nil), s.PairAddresses...)
	}
	if s.Sources != nil {
		c.Sources = append([]string(nil), s.Sources...)
	}
	return &c
}

// PairAge returns the pair age at the snapshot's fetch time and whether it is known.
func (s *MarketSnapshot) PairAge() (time.Duration, bool) {
	if s.PairCreatedAt.IsZero() || s.FetchedAt.IsZero() {
		return 0, false
	}
	return s.FetchedAt.Sub(s.PairCreatedAt), true
}
