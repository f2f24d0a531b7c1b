// Package marketdata fetches and normalizes market snapshots from external providers.
//
// Provider-specific JSON never leaves this package: every source maps its
// payload onto Pair or Security and MultiClient folds those into one
// domain.MarketSnapshot.
package marketdata

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"token-vetting/internal/domain"
)

// Client fetches the market snapshot for a token.
//
// Errors wrap domain.ErrDataUnavailable, domain.ErrProviderError or
// domain.ErrTimeout. Fetch mutates no state.
type Client interface {
	Fetch(ctx context.Context, token domain.TokenID) (*domain.MarketSnapshot, error)
}

// Pair is one trading pair as reported by a market provider.
type Pair struct {
	Address      string
	DEX          string
	PriceUSD     float64
	LiquidityUSD float64
	Volume24hUSD float64
	CreatedAt    time.Time // zero if unknown
}

// Security is holder and contract data as reported by a security provider.
type Security struct {
	HolderCount        int
	TopHolderShare     float64
	Top10HolderShare   float64
	Mintable           bool
	Freezable          bool
	OwnershipRenounced bool
	MintAuthority      string
}

// PairSource lists the trading pairs of a token.
type PairSource interface {
	Name() string
	Pairs(ctx context.Context, token domain.TokenID) ([]Pair, error)
}

// SecuritySource reports holder distribution and contract authorities.
type SecuritySource interface {
	Name() string
	Security(ctx context.Context, token domain.TokenID) (*Security, error)
}

// flexFloat decodes a JSON number, a numeric string or null.
// Providers are inconsistent about quoting numeric fields.
type flexFloat float64

func (f *flexFloat) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		*f = 0
		return nil
	}
	if b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		if s == "" {
			*f = 0
			return nil
		}
		v, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return fmt.Errorf("parse numeric string %q: %w", s, err)
		}
		*f = flexFloat(v)
		return nil
	}
	var v float64
	if err := json.Unmarshal(b, &v); err != nil {
		return err
	}
	*f = flexFloat(v)
	return nil
}

// flexBool decodes true/false, "1"/"0" or "true"/"false".
type flexBool bool

func (f *flexBool) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if bytes.Equal(b, []byte("null")) {
		*f = false
		return nil
	}
	var s string
	if len(b) > 0 && b[0] == '"' {
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
	} else {
		s = string(b)
	}
	switch s {
	case "1", "true":
		*f = true
	case "0", "false", "":
		*f = false
	default:
		return fmt.Errorf("parse boolean %q", s)
	}
	return nil
}
