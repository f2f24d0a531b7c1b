package marketdata

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"token-vetting/internal/domain"
)

const freezeAuthority = "7XawhbbxtsRcQA8KTkHT9f9nc6d69UwqCDh6U5EEbEmX"

// rpcNode answers JSON-RPC calls from canned results keyed by method.
type rpcNode struct {
	mu      sync.Mutex
	results map[string]string
	errors  map[string]string
	calls   []rpcRequest
}

func newRPCNode(t *testing.T, results map[string]string) (*rpcNode, *httptest.Server) {
	t.Helper()
	node := &rpcNode{results: results, errors: map[string]string{}}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req rpcRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		node.mu.Lock()
		node.calls = append(node.calls, req)
		result, hasResult := node.results[req.Method]
		rpcErr, hasErr := node.errors[req.Method]
		node.mu.Unlock()

		w.Header().Set("Content-Type", "application/json")
		switch {
		case hasErr:
			w.Write([]byte(`{"jsonrpc":"2.0","id":1,"error":` + rpcErr + `}`))
		case hasResult:
			w.Write([]byte(`{"jsonrpc":"2.0","id":1,"result":` + result + `}`))
		default:
			w.Write([]byte(`{"jsonrpc":"2.0","id":1,"error":{"code":-32601,"message":"Method not found"}}`))
		}
	}))
	t.Cleanup(server.Close)
	return node, server
}

func mintResult(owner string, mintAuthority, freeze any, supply string) string {
	body, _ := json.Marshal(map[string]any{
		"context": map[string]any{"slot": 1},
		"value": map[string]any{
			"owner": owner,
			"data": map[string]any{
				"program": "spl-token",
				"parsed": map[string]any{
					"type": "mint",
					"info": map[string]any{
						"mintAuthority":   mintAuthority,
						"freezeAuthority": freeze,
						"supply":          supply,
						"decimals":        6,
					},
				},
			},
		},
	})
	return string(body)
}

func healthyRPCResults() map[string]string {
	return map[string]string{
		"getAccountInfo": mintResult(TokenProgramID, nil, freezeAuthority, "10000"),
		"getTokenLargestAccounts": `{"context":{"slot":1},"value":[
			{"address":"a","amount":"500"},{"address":"b","amount":"1000"},{"address":"c","amount":"250"}
		]}`,
		"getProgramAccounts": `[
			{"pubkey":"a","account":{"data":["9AEAAAAAAAA=","base64"]}},
			{"pubkey":"b","account":{"data":["6AMAAAAAAAA=","base64"]}},
			{"pubkey":"c","account":{"data":["+gAAAAAAAAA=","base64"]}},
			{"pubkey":"d","account":{"data":["AAAAAAAAAAA=","base64"]}}
		]`,
	}
}

func TestSolanaRPC_Security(t *testing.T) {
	node, server := newRPCNode(t, healthyRPCResults())
	src := NewSolanaRPC("rpc", server.URL, NewHTTPClient(WithRetryDelay(time.Millisecond)))

	sec, err := src.Security(context.Background(), testToken)
	require.NoError(t, err)

	assert.False(t, sec.Mintable)
	assert.True(t, sec.OwnershipRenounced)
	assert.True(t, sec.Freezable)
	assert.Empty(t, sec.MintAuthority)
	assert.InDelta(t, 0.10, sec.TopHolderShare, 1e-9)
	assert.InDelta(t, 0.175, sec.Top10HolderShare, 1e-9)
	assert.Equal(t, 3, sec.HolderCount, "zero-balance accounts are not holders")

	require.Len(t, node.calls, 3)
	gpa := node.calls[2]
	assert.Equal(t, "getProgramAccounts", gpa.Method)
	assert.Equal(t, TokenProgramID, gpa.Params[0])
	assert.Equal(t, "2.0", gpa.JSONRPC)
}

func TestSolanaRPC_MintAuthority(t *testing.T) {
	results := healthyRPCResults()
	results["getAccountInfo"] = mintResult(Token2022ProgramID, freezeAuthority, nil, "10000")
	node, server := newRPCNode(t, results)

	sec, err := NewSolanaRPC("rpc", server.URL, nil).Security(context.Background(), testToken)
	require.NoError(t, err)
	assert.True(t, sec.Mintable)
	assert.False(t, sec.OwnershipRenounced)
	assert.Equal(t, freezeAuthority, sec.MintAuthority)
	assert.False(t, sec.Freezable)

	// Token-2022 accounts vary in size, so only the mint filter is sent.
	opts := node.calls[2].Params[1].(map[string]any)
	assert.Len(t, opts["filters"], 1)
}

func TestSolanaRPC_Errors(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(n *rpcNode)
		wantErr error
	}{
		{"no account", func(n *rpcNode) {
			n.results["getAccountInfo"] = `{"context":{"slot":1},"value":null}`
		}, domain.ErrDataUnavailable},
		{"not a mint", func(n *rpcNode) {
			n.results["getAccountInfo"] = mintResult("11111111111111111111111111111111", nil, nil, "1")
		}, domain.ErrDataUnavailable},
		{"rpc error", func(n *rpcNode) {
			n.errors["getProgramAccounts"] = `{"code":-32010,"message":"excluded from account secondary indexes"}`
		}, domain.ErrProviderError},
		{"bad supply", func(n *rpcNode) {
			n.results["getAccountInfo"] = mintResult(TokenProgramID, nil, nil, "lots")
		}, domain.ErrProviderError},
		{"bad amount slice", func(n *rpcNode) {
			n.results["getProgramAccounts"] = `[{"pubkey":"a","account":{"data":["AAA=","base64"]}}]`
		}, domain.ErrProviderError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			node, server := newRPCNode(t, healthyRPCResults())
			tt.mutate(node)

			_, err := NewSolanaRPC("rpc", server.URL, nil).Security(context.Background(), testToken)
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.wantErr)
			assert.Contains(t, err.Error(), "rpc:")
		})
	}
}

func TestNew_SolanaRPCProvider(t *testing.T) {
	_, rpc := newRPCNode(t, healthyRPCResults())

	_, err := New([]ProviderConfig{
		{Name: "d", Kind: KindDexScreener, Timeout: time.Second},
		{Name: "rpc", Kind: KindSolanaRPC, Timeout: time.Second},
	})
	assert.Error(t, err, "solana_rpc without base_url")

	_, err = New([]ProviderConfig{
		{Name: "d", Kind: KindDexScreener, Timeout: time.Second},
		{Name: "g", Kind: KindGoPlus, Timeout: time.Second},
		{Name: "rpc", Kind: KindSolanaRPC, BaseURL: rpc.URL, Timeout: time.Second},
	})
	assert.Error(t, err, "two security providers")

	m, err := New([]ProviderConfig{
		{Name: "d", Kind: KindDexScreener, Timeout: time.Second},
		{Name: "rpc", Kind: KindSolanaRPC, BaseURL: rpc.URL, Timeout: time.Second},
	})
	require.NoError(t, err)
	assert.Equal(t, "rpc", m.security.src.Name())
}
