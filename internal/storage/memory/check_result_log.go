package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"token-vetting/internal/domain"
	"token-vetting/internal/storage"
)

type loggedResult struct {
	token  domain.TokenID
	runID  string
	result domain.CheckResult
}

// CheckResultLog is an in-memory implementation of storage.CheckResultLog.
type CheckResultLog struct {
	mu   sync.RWMutex
	rows []loggedResult
}

// NewCheckResultLog creates an empty log.
func NewCheckResultLog() *CheckResultLog {
	return &CheckResultLog{}
}

// Append records every check of v.
func (l *CheckResultLog) Append(_ context.Context, v *domain.Verdict) error {
	if v == nil || len(v.Checks) == 0 {
		return storage.ErrInvalidInput
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	for _, r := range v.Checks {
		l.rows = append(l.rows, loggedResult{token: v.TokenID, runID: v.RunID, result: r})
	}
	return nil
}

// Stats aggregates results computed at or after since.
func (l *CheckResultLog) Stats(_ context.Context, since time.Time) ([]storage.CheckStat, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	type key struct {
		name   string
		status domain.Status
	}
	type acc struct {
		count int64
		total int64
	}
	groups := make(map[key]*acc)
	for _, row := range l.rows {
		if row.result.ComputedAt.Before(since) {
			continue
		}
		k := key{row.result.Name, row.result.Status}
		a, ok := groups[k]
		if !ok {
			a = &acc{}
			groups[k] = a
		}
		a.count++
		a.total += row.result.DurationMs
	}

	stats := make([]storage.CheckStat, 0, len(groups))
	for k, a := range groups {
		stats = append(stats, storage.CheckStat{
			Name:          k.name,
			Status:        k.status,
			Count:         a.count,
			AvgDurationMs: float64(a.total) / float64(a.count),
		})
	}
	sort.Slice(stats, func(i, j int) bool {
		if stats[i].Name != stats[j].Name {
			return stats[i].Name < stats[j].Name
		}
		return stats[i].Status < stats[j].Status
	})
	return stats, nil
}

// Len returns the number of logged results.
func (l *CheckResultLog) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.rows)
}

var _ storage.CheckResultLog = (*CheckResultLog)(nil)
