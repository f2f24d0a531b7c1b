package vetting

import (
	"context"
	"sync"

	"token-vetting/internal/domain"
)

// flight is one shared run for a token.
type flight struct {
	done    chan struct{}
	verdict *domain.Verdict
	err     error

	// Guarded by flightGroup.mu.
	waiters   int
	committed bool
	cancel    context.CancelFunc
}

// flightGroup deduplicates concurrent runs per token. A run is cancelled
// once every caller waiting on it has gone, unless it already committed to
// saving its verdict.
type flightGroup struct {
	mu      sync.Mutex
	flights map[string]*flight
}

// runFunc computes a verdict. It must call commit right before its first
// durable write and stop without writing if commit returns false.
type runFunc func(ctx context.Context, commit func() bool) (*domain.Verdict, error)

// do joins the run in flight for key or starts fn. It returns the run's
// result, or ctx.Err() if the caller stops waiting before the run
// committed. A committed run is always waited for.
func (g *flightGroup) do(ctx context.Context, key string, fn runFunc) (*domain.Verdict, error) {
	g.mu.Lock()
	if g.flights == nil {
		g.flights = make(map[string]*flight)
	}
	f, ok := g.flights[key]
	if !ok {
		f = g.start(ctx, key, fn)
	}
	f.waiters++
	g.mu.Unlock()

	select {
	case <-f.done:
		return f.verdict, f.err
	case <-ctx.Done():
	}

	g.mu.Lock()
	if f.committed {
		g.mu.Unlock()
		<-f.done
		return f.verdict, f.err
	}
	f.waiters--
	if f.waiters == 0 {
		f.cancel()
		g.forget(key, f)
	}
	g.mu.Unlock()
	return nil, ctx.Err()
}

// start launches fn detached from the first caller's cancellation. Called
// with g.mu held.
func (g *flightGroup) start(ctx context.Context, key string, fn runFunc) *flight {
	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	f := &flight{done: make(chan struct{}), cancel: cancel}
	g.flights[key] = f

	commit := func() bool {
		g.mu.Lock()
		defer g.mu.Unlock()
		if runCtx.Err() != nil {
			return false
		}
		f.committed = true
		return true
	}

	go func() {
		v, err := fn(runCtx, commit)

		g.mu.Lock()
		f.verdict, f.err = v, err
		g.forget(key, f)
		g.mu.Unlock()

		cancel()
		close(f.done)
	}()
	return f
}

// forget drops f from the group if it is still the current run for key.
// Called with g.mu held.
func (g *flightGroup) forget(key string, f *flight) {
	if g.flights[key] == f {
		delete(g.flights, key)
	}
}
