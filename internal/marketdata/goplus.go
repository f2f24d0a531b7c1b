package marketdata

import (
	"context"
	"fmt"
	"net/url"
	"sort"
	"strings"

	"token-vetting/internal/domain"
)

// DefaultGoPlusURL is the public GoPlus security API.
const DefaultGoPlusURL = "https://api.gopluslabs.io"

// GoPlus reads Solana token security data from GoPlus.
type GoPlus struct {
	name    string
	baseURL string
	http    *HTTPClient
}

// NewGoPlus creates a GoPlus source.
func NewGoPlus(name, baseURL string, client *HTTPClient) *GoPlus {
	if baseURL == "" {
		baseURL = DefaultGoPlusURL
	}
	if client == nil {
		client = NewHTTPClient()
	}
	return &GoPlus{
		name:    name,
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    client,
	}
}

// Name implements SecuritySource.
func (g *GoPlus) Name() string { return g.name }

type goPlusResponse struct {
	Code    int                       `json:"code"`
	Message string                    `json:"message"`
	Result  map[string]goPlusSecurity `json:"result"`
}

type goPlusAuthority struct {
	Status    flexBool `json:"status"`
	Authority []struct {
		Address string `json:"address"`
	} `json:"authority"`
}

type goPlusSecurity struct {
	Mintable    goPlusAuthority `json:"mintable"`
	Freezable   goPlusAuthority `json:"freezable"`
	HolderCount flexFloat       `json:"holder_count"`
	Holders     []struct {
		Account string    `json:"account"`
		Percent flexFloat `json:"percent"` // 0..1
	} `json:"holders"`
}

// Security implements SecuritySource.
func (g *GoPlus) Security(ctx context.Context, token domain.TokenID) (*Security, error) {
	endpoint := fmt.Sprintf("%s/api/v1/solana/token_security?contract_addresses=%s",
		g.baseURL, url.QueryEscape(token.String()))

	var resp goPlusResponse
	if err := g.http.getJSON(ctx, endpoint, &resp); err != nil {
		return nil, classify(g.name, err)
	}
	if resp.Code != 1 {
		return nil, fmt.Errorf("%s: %w: code %d: %s", g.name, domain.ErrProviderError, resp.Code, resp.Message)
	}

	raw, ok := resp.Result[token.String()]
	if !ok {
		return nil, fmt.Errorf("%s: %w: %s not in result", g.name, domain.ErrDataUnavailable, token)
	}

	sec := &Security{
		HolderCount: int(raw.HolderCount),
		Mintable:    bool(raw.Mintable.Status),
		Freezable:   bool(raw.Freezable.Status),
	}
	if len(raw.Mintable.Authority) > 0 {
		sec.MintAuthority = raw.Mintable.Authority[0].Address
	}
	// A mintable token with no listed authority still has one, just unknown.
	sec.OwnershipRenounced = !sec.Mintable

	shares := make([]float64, 0, len(raw.Holders))
	for _, h := range raw.Holders {
		shares = append(shares, float64(h.Percent))
	}
	sort.Sort(sort.Reverse(sort.Float64Slice(shares)))
	for i, s := range shares {
		if i == 0 {
			sec.TopHolderShare = s
		}
		if i < 10 {
			sec.Top10HolderShare += s
		}
	}
	return sec, nil
}
