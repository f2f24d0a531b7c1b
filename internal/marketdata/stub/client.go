// Package stub provides an in-memory marketdata.Client for tests and offline runs.
package stub

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"token-vetting/internal/domain"
	"token-vetting/internal/marketdata"
)

var _ marketdata.Client = (*Client)(nil)

// Client serves snapshots from a map.
type Client struct {
	mu        sync.RWMutex
	snapshots map[domain.TokenID]*domain.MarketSnapshot
	errs      map[domain.TokenID]error
	delay     time.Duration
	calls     atomic.Int64
}

// NewClient creates an empty stub client.
func NewClient() *Client {
	return &Client{
		snapshots: make(map[domain.TokenID]*domain.MarketSnapshot),
		errs:      make(map[domain.TokenID]error),
	}
}

// Fetch returns a copy of the stored snapshot, the injected error, or
// domain.ErrDataUnavailable for unknown tokens. It honors the context during
// the configured delay.
func (c *Client) Fetch(ctx context.Context, token domain.TokenID) (*domain.MarketSnapshot, error) {
	c.calls.Add(1)

	c.mu.RLock()
	delay := c.delay
	snap, ok := c.snapshots[token]
	err := c.errs[token]
	c.mu.RUnlock()

	if delay > 0 {
		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("stub: %w", domain.ErrTimeout)
		case <-time.After(delay):
		}
	}
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("stub: %w: %s", domain.ErrDataUnavailable, token)
	}
	return snap.Clone(), nil
}

// AddSnapshot stores snap under its token.
func (c *Client) AddSnapshot(snap *domain.MarketSnapshot) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.snapshots[snap.TokenID] = snap.Clone()
}

// SetError makes every fetch of token fail with err. A nil err clears it.
func (c *Client) SetError(token domain.TokenID, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err == nil {
		delete(c.errs, token)
		return
	}
	c.errs[token] = err
}

// SetDelay makes every fetch wait d first.
func (c *Client) SetDelay(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.delay = d
}

// Calls returns how many times Fetch was called.
func (c *Client) Calls() int {
	return int(c.calls.Load())
}
