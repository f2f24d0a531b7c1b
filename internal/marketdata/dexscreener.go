package marketdata

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"token-vetting/internal/domain"
)

// DefaultDexScreenerURL is the public DexScreener API.
const DefaultDexScreenerURL = "https://api.dexscreener.com"

// DexScreener lists pairs from the DexScreener token endpoint.
type DexScreener struct {
	name    string
	baseURL string
	chain   string
	http    *HTTPClient
}

// NewDexScreener creates a DexScreener source. Pairs on chains other than
// chain are ignored; an empty chain keeps all pairs.
func NewDexScreener(name, baseURL, chain string, client *HTTPClient) *DexScreener {
	if baseURL == "" {
		baseURL = DefaultDexScreenerURL
	}
	if client == nil {
		client = NewHTTPClient()
	}
	return &DexScreener{
		name:    name,
		baseURL: strings.TrimRight(baseURL, "/"),
		chain:   chain,
		http:    client,
	}
}

// Name implements PairSource.
func (d *DexScreener) Name() string { return d.name }

type dexTokenResponse struct {
	Pairs []dexPair `json:"pairs"`
}

type dexPair struct {
	ChainID     string `json:"chainId"`
	DexID       string `json:"dexId"`
	PairAddress string `json:"pairAddress"`
	BaseToken   struct {
		Address string `json:"address"`
	} `json:"baseToken"`
	QuoteToken struct {
		Address string `json:"address"`
	} `json:"quoteToken"`
	PriceUSD  flexFloat `json:"priceUsd"`
	Liquidity struct {
		USD flexFloat `json:"usd"`
	} `json:"liquidity"`
	Volume struct {
		H24 flexFloat `json:"h24"`
	} `json:"volume"`
	PairCreatedAt flexFloat `json:"pairCreatedAt"` // unix ms
}

// Pairs implements PairSource.
func (d *DexScreener) Pairs(ctx context.Context, token domain.TokenID) ([]Pair, error) {
	endpoint := fmt.Sprintf("%s/latest/dex/tokens/%s", d.baseURL, url.PathEscape(token.String()))

	var resp dexTokenResponse
	if err := d.http.getJSON(ctx, endpoint, &resp); err != nil {
		return nil, classify(d.name, err)
	}

	pairs := make([]Pair, 0, len(resp.Pairs))
	for _, p := range resp.Pairs {
		if d.chain != "" && p.ChainID != d.chain {
			continue
		}
		if p.BaseToken.Address != token.String() && p.QuoteToken.Address != token.String() {
			continue
		}
		if p.PairAddress == "" {
			continue
		}

		pair := Pair{
			Address:      p.PairAddress,
			DEX:          p.DexID,
			PriceUSD:     float64(p.PriceUSD),
			LiquidityUSD: float64(p.Liquidity.USD),
			Volume24hUSD: float64(p.Volume.H24),
		}
		if ms := int64(p.PairCreatedAt); ms > 0 {
			pair.CreatedAt = time.UnixMilli(ms).UTC()
		}
		pairs = append(pairs, pair)
	}

	if len(pairs) == 0 {
		return nil, fmt.Errorf("%s: %w: no pairs for %s", d.name, domain.ErrDataUnavailable, token)
	}
	return pairs, nil
}
