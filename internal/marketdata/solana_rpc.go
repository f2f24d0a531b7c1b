package marketdata

import (
	"context"
	"encoding/base64"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"sync/atomic"

	"token-vetting/internal/domain"
)

// Token program owners of SPL mints.
const (
	TokenProgramID     = "TokenkegQfeZyiNwAJbNbGKPFXCWuBvf9Ss623VQ5DA"
	Token2022ProgramID = "TokenzQdBNbLqP7VEhdkAS6EPFLC1PGnzVG1mZg4uaDm"
)

// tokenAccountLen is the size of a classic SPL token account.
const tokenAccountLen = 165

// SolanaRPC reads mint authorities and holder distribution straight from a
// Solana JSON-RPC node. It needs no API key but the holder count walks every
// token account of the mint, so the node must allow getProgramAccounts.
type SolanaRPC struct {
	name      string
	endpoint  string
	http      *HTTPClient
	requestID atomic.Uint64
}

// NewSolanaRPC creates a SolanaRPC source.
func NewSolanaRPC(name, endpoint string, client *HTTPClient) *SolanaRPC {
	if client == nil {
		client = NewHTTPClient()
	}
	return &SolanaRPC{name: name, endpoint: endpoint, http: client}
}

// Name implements SecuritySource.
func (s *SolanaRPC) Name() string { return s.name }

// rpcRequest represents a JSON-RPC 2.0 request.
type rpcRequest struct {
	JSONRPC string `json:"jsonrpc"`
	ID      uint64 `json:"id"`
	Method  string `json:"method"`
	Params  []any  `json:"params,omitempty"`
}

// rpcResponse represents a JSON-RPC 2.0 response.
type rpcResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      uint64          `json:"id"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *rpcError       `json:"error,omitempty"`
}

// rpcError represents a JSON-RPC 2.0 error.
type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *rpcError) Error() string {
	return fmt.Sprintf("RPC error %d: %s", e.Code, e.Message)
}

// call performs one JSON-RPC call. Transport retries come from the HTTP
// client; RPC errors are not retried.
func (s *SolanaRPC) call(ctx context.Context, method string, params []any, result any) error {
	body, err := json.Marshal(rpcRequest{
		JSONRPC: "2.0",
		ID:      s.requestID.Add(1),
		Method:  method,
		Params:  params,
	})
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}

	var resp rpcResponse
	if err := s.http.postJSON(ctx, s.endpoint, body, &resp); err != nil {
		return err
	}
	if resp.Error != nil {
		return fmt.Errorf("%s: %w: %v", method, domain.ErrProviderError, resp.Error)
	}
	if result != nil && resp.Result != nil {
		if err := json.Unmarshal(resp.Result, result); err != nil {
			return fmt.Errorf("%w: %s: unmarshal result: %v", domain.ErrProviderError, method, err)
		}
	}
	return nil
}

type mintAccountResult struct {
	Value *struct {
		Owner string `json:"owner"`
		Data  struct {
			Parsed struct {
				Type string `json:"type"`
				Info struct {
					MintAuthority   *string `json:"mintAuthority"`
					FreezeAuthority *string `json:"freezeAuthority"`
					Supply          string  `json:"supply"`
				} `json:"info"`
			} `json:"parsed"`
		} `json:"data"`
	} `json:"value"`
}

type largestAccountsResult struct {
	Value []struct {
		Address string `json:"address"`
		Amount  string `json:"amount"`
	} `json:"value"`
}

type programAccount struct {
	Pubkey  string `json:"pubkey"`
	Account struct {
		Data []string `json:"data"` // [base64, encoding]
	} `json:"account"`
}

type mintInfo struct {
	owner           string
	mintAuthority   string
	freezeAuthority string
	supply          float64
}

// Security implements SecuritySource.
func (s *SolanaRPC) Security(ctx context.Context, token domain.TokenID) (*Security, error) {
	mint, err := s.mint(ctx, token)
	if err != nil {
		return nil, classify(s.name, err)
	}

	sec := &Security{
		Mintable:      mint.mintAuthority != "",
		Freezable:     mint.freezeAuthority != "",
		MintAuthority: mint.mintAuthority,
	}
	sec.OwnershipRenounced = sec.MintAuthority == ""

	if mint.supply > 0 {
		shares, err := s.largestShares(ctx, token, mint.supply)
		if err != nil {
			return nil, classify(s.name, err)
		}
		for i, share := range shares {
			if i == 0 {
				sec.TopHolderShare = share
			}
			if i < 10 {
				sec.Top10HolderShare += share
			}
		}
	}

	holders, err := s.holderCount(ctx, token, mint.owner)
	if err != nil {
		return nil, classify(s.name, err)
	}
	sec.HolderCount = holders
	return sec, nil
}

func (s *SolanaRPC) mint(ctx context.Context, token domain.TokenID) (*mintInfo, error) {
	params := []any{
		token.String(),
		map[string]any{"encoding": "jsonParsed"},
	}
	var result mintAccountResult
	if err := s.call(ctx, "getAccountInfo", params, &result); err != nil {
		return nil, err
	}
	if result.Value == nil {
		return nil, fmt.Errorf("%w: no account %s", domain.ErrDataUnavailable, token)
	}

	v := result.Value
	if (v.Owner != TokenProgramID && v.Owner != Token2022ProgramID) || v.Data.Parsed.Type != "mint" {
		return nil, fmt.Errorf("%w: %s is not a token mint", domain.ErrDataUnavailable, token)
	}

	info := &mintInfo{owner: v.Owner}
	if a := v.Data.Parsed.Info.MintAuthority; a != nil {
		info.mintAuthority = *a
	}
	if a := v.Data.Parsed.Info.FreezeAuthority; a != nil {
		info.freezeAuthority = *a
	}
	supply, err := strconv.ParseFloat(v.Data.Parsed.Info.Supply, 64)
	if err != nil {
		return nil, fmt.Errorf("%w: parse supply %q: %v", domain.ErrProviderError, v.Data.Parsed.Info.Supply, err)
	}
	info.supply = supply
	return info, nil
}

// largestShares returns the supply share of the largest accounts, descending.
func (s *SolanaRPC) largestShares(ctx context.Context, token domain.TokenID, supply float64) ([]float64, error) {
	var result largestAccountsResult
	if err := s.call(ctx, "getTokenLargestAccounts", []any{token.String()}, &result); err != nil {
		return nil, err
	}

	shares := make([]float64, 0, len(result.Value))
	for _, acc := range result.Value {
		amount, err := strconv.ParseFloat(acc.Amount, 64)
		if err != nil {
			return nil, fmt.Errorf("%w: parse amount %q: %v", domain.ErrProviderError, acc.Amount, err)
		}
		shares = append(shares, amount/supply)
	}
	sort.Sort(sort.Reverse(sort.Float64Slice(shares)))
	return shares, nil
}

// holderCount counts token accounts of the mint with a non-zero balance.
// Only the 8-byte amount field is fetched per account.
func (s *SolanaRPC) holderCount(ctx context.Context, token domain.TokenID, program string) (int, error) {
	filters := []any{
		map[string]any{"memcmp": map[string]any{"offset": 0, "bytes": token.String()}},
	}
	if program == TokenProgramID {
		filters = append(filters, map[string]any{"dataSize": tokenAccountLen})
	}
	params := []any{
		program,
		map[string]any{
			"encoding":  "base64",
			"dataSlice": map[string]any{"offset": 64, "length": 8},
			"filters":   filters,
		},
	}

	var accounts []programAccount
	if err := s.call(ctx, "getProgramAccounts", params, &accounts); err != nil {
		return 0, err
	}

	count := 0
	for _, acc := range accounts {
		if len(acc.Account.Data) == 0 {
			continue
		}
		raw, err := base64.StdEncoding.DecodeString(acc.Account.Data[0])
		if err != nil || len(raw) < 8 {
			return 0, fmt.Errorf("%w: account %s: bad amount slice", domain.ErrProviderError, acc.Pubkey)
		}
		if binary.LittleEndian.Uint64(raw) > 0 {
			count++
		}
	}
	return count, nil
}
