// Package checks defines the vetting checks and the ordered registry the
// runner executes.
//
// A Check is a pure rule over (token, market snapshot). It must not depend
// on the outcome of any other check, which is what lets the runner start
// every check of a run at once. Check names are stable keys in persisted
// verdict history: a retired name is never reused for a different rule.
package checks

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"token-vetting/internal/domain"
)

// Registry errors.
var (
	ErrDuplicateCheck = errors.New("check already registered")
	ErrEmptyName      = errors.New("check name is empty")
)

// ErrMissingData is returned by a check whose inputs are absent from the snapshot.
var ErrMissingData = errors.New("required market data missing")

// Check is one independent vetting rule.
type Check interface {
	// Name returns the stable check name (e.g. "liquidity_threshold").
	Name() string

	// Evaluate inspects the snapshot. A returned error means the check could
	// not complete; the runner records it as an error-status result.
	// The context carries the per-check deadline.
	Evaluate(ctx context.Context, token domain.TokenID, snap *domain.MarketSnapshot) (Outcome, error)
}

// Outcome is a completed check's verdict. Status is never StatusError.
type Outcome struct {
	Status domain.Status
	Score  int
	Detail string
}

func pass(score int, format string, args ...any) Outcome {
	return Outcome{Status: domain.StatusPass, Score: score, Detail: fmt.Sprintf(format, args...)}
}

func warn(score int, format string, args ...any) Outcome {
	return Outcome{Status: domain.StatusWarn, Score: score, Detail: fmt.Sprintf(format, args...)}
}

func fail(score int, format string, args ...any) Outcome {
	return Outcome{Status: domain.StatusFail, Score: score, Detail: fmt.Sprintf(format, args...)}
}

// Func adapts a plain function to Check.
type Func struct {
	CheckName string
	Fn        func(ctx context.Context, token domain.TokenID, snap *domain.MarketSnapshot) (Outcome, error)
}

// Name implements Check.
func (f Func) Name() string { return f.CheckName }

// Evaluate implements Check.
func (f Func) Evaluate(ctx context.Context, token domain.TokenID, snap *domain.MarketSnapshot) (Outcome, error) {
	return f.Fn(ctx, token, snap)
}

// Entry is a registered check with its optional timeout override.
type Entry struct {
	Check   Check
	Timeout time.Duration // zero means the runner default
}

// Name returns the check name.
func (e Entry) Name() string { return e.Check.Name() }

// Registry is an ordered set of uniquely named checks.
// It is safe for concurrent use.
type Registry struct {
	mu      sync.RWMutex
	entries []Entry
	index   map[string]int
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{index: make(map[string]int)}
}

// Register appends c using the runner's default timeout.
func (r *Registry) Register(c Check) error {
	return r.RegisterWithTimeout(c, 0)
}

// RegisterWithTimeout appends c with its own timeout.
// Returns ErrDuplicateCheck if the name is taken.
func (r *Registry) RegisterWithTimeout(c Check, timeout time.Duration) error {
	name := c.Name()
	if name == "" {
		return ErrEmptyName
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.index[name]; exists {
		return fmt.Errorf("%w: %q", ErrDuplicateCheck, name)
	}
	r.index[name] = len(r.entries)
	r.entries = append(r.entries, Entry{Check: c, Timeout: timeout})
	return nil
}

// Entries returns a copy of the registered checks in registration order.
func (r *Registry) Entries() []Entry {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Entry, len(r.entries))
	copy(out, r.entries)
	return out
}

// Names returns check names in registration order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, len(r.entries))
	for i, e := range r.entries {
		names[i] = e.Name()
	}
	return names
}

// Get returns the check registered under name.
func (r *Registry) Get(name string) (Check, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	i, ok := r.index[name]
	if !ok {
		return nil, false
	}
	return r.entries[i].Check, true
}

// Len returns the number of registered checks.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}
