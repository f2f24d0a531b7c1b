// Package verdict folds check results into a single risk verdict.
package verdict

import (
	"fmt"
	"time"

	"token-vetting/internal/domain"
)

// DefaultConfidenceThreshold is the executed/total ratio below which a
// verdict cannot be a plain pass.
const DefaultConfidenceThreshold = 0.75

// Aggregator computes verdicts. The zero value uses DefaultConfidenceThreshold.
type Aggregator struct {
	ConfidenceThreshold float64
}

// Aggregate folds results into a Verdict. It is a pure function of results:
// TokenID and RunID are left for the caller, ComputedAt comes from the results.
// Returns domain.ErrInsufficientData if results is empty or no check executed.
func (a Aggregator) Aggregate(results []domain.CheckResult) (*domain.Verdict, error) {
	if len(results) == 0 {
		return nil, fmt.Errorf("%w: no check results", domain.ErrInsufficientData)
	}

	threshold := a.ConfidenceThreshold
	if threshold <= 0 {
		threshold = DefaultConfidenceThreshold
	}

	var (
		score      int
		executed   int
		anyFail    bool
		anyWarn    bool
		computedAt time.Time
	)
	for _, r := range results {
		if r.ComputedAt.After(computedAt) {
			computedAt = r.ComputedAt
		}
		switch r.Status {
		case domain.StatusPass:
		case domain.StatusFail:
			anyFail = true
		case domain.StatusWarn:
			anyWarn = true
		default:
			continue
		}
		executed++
		score += r.Score
	}

	if executed == 0 {
		return nil, fmt.Errorf("%w: all %d checks errored", domain.ErrInsufficientData, len(results))
	}

	confidence := float64(executed) / float64(len(results))

	status := domain.StatusPass
	switch {
	case anyFail:
		status = domain.StatusFail
	case anyWarn || confidence < threshold:
		status = domain.StatusWarn
	}

	checks := make([]domain.CheckResult, len(results))
	copy(checks, results)

	return &domain.Verdict{
		Score:      score,
		Status:     status,
		Confidence: confidence,
		Executed:   executed,
		Total:      len(results),
		Checks:     checks,
		ComputedAt: computedAt,
	}, nil
}
