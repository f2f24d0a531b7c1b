package verdict

import (
	"reflect"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"token-vetting/internal/domain"
)

var at = time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

func result(name string, status domain.Status, score int) domain.CheckResult {
	return domain.CheckResult{Name: name, Status: status, Score: score, Detail: name, ComputedAt: at}
}

func TestAggregate(t *testing.T) {
	tests := []struct {
		name       string
		results    []domain.CheckResult
		score      int
		status     domain.Status
		confidence float64
	}{
		{
			name: "all pass",
			results: []domain.CheckResult{
				result("a", domain.StatusPass, 20),
				result("b", domain.StatusPass, 15),
			},
			score: 35, status: domain.StatusPass, confidence: 1,
		},
		{
			name: "any fail dominates",
			results: []domain.CheckResult{
				result("liquidity_threshold", domain.StatusFail, -50),
				result("b", domain.StatusPass, 20),
				result("c", domain.StatusWarn, -10),
			},
			score: -40, status: domain.StatusFail, confidence: 1,
		},
		{
			name: "warn without fail",
			results: []domain.CheckResult{
				result("a", domain.StatusPass, 20),
				result("b", domain.StatusWarn, -15),
			},
			score: 5, status: domain.StatusWarn, confidence: 1,
		},
		{
			name: "errors score zero and lower confidence",
			results: []domain.CheckResult{
				result("a", domain.StatusPass, 20),
				result("b", domain.StatusError, 99),
				result("c", domain.StatusPass, 10),
				result("d", domain.StatusPass, 10),
			},
			score: 40, status: domain.StatusPass, confidence: 0.75,
		},
		{
			name: "low confidence downgrades pass",
			results: []domain.CheckResult{
				result("a", domain.StatusPass, 20),
				result("b", domain.StatusError, 0),
			},
			score: 20, status: domain.StatusWarn, confidence: 0.5,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v, err := Aggregator{}.Aggregate(tt.results)
			require.NoError(t, err)
			assert.Equal(t, tt.score, v.Score)
			assert.Equal(t, tt.status, v.Status)
			assert.InDelta(t, tt.confidence, v.Confidence, 1e-9)
			assert.Equal(t, len(tt.results), v.Total)
			assert.Len(t, v.Checks, len(tt.results))
			assert.True(t, v.ComputedAt.Equal(at))
		})
	}
}

func TestAggregate_InsufficientData(t *testing.T) {
	_, err := Aggregator{}.Aggregate(nil)
	assert.ErrorIs(t, err, domain.ErrInsufficientData)

	_, err = Aggregator{}.Aggregate([]domain.CheckResult{
		result("a", domain.StatusError, 0),
		result("b", domain.StatusError, 0),
	})
	assert.ErrorIs(t, err, domain.ErrInsufficientData)
}

func TestAggregate_Deterministic(t *testing.T) {
	in := []domain.CheckResult{
		result("a", domain.StatusPass, 20),
		result("b", domain.StatusWarn, -10),
		result("c", domain.StatusError, 0),
	}

	first, err := Aggregator{}.Aggregate(in)
	require.NoError(t, err)
	second, err := Aggregator{}.Aggregate(in)
	require.NoError(t, err)

	assert.True(t, reflect.DeepEqual(first, second))
}

func TestAggregate_DoesNotAliasInput(t *testing.T) {
	in := []domain.CheckResult{result("a", domain.StatusPass, 20)}
	v, err := Aggregator{}.Aggregate(in)
	require.NoError(t, err)

	in[0].Score = -100
	assert.Equal(t, 20, v.Checks[0].Score)
}

func TestAggregate_CustomThreshold(t *testing.T) {
	in := []domain.CheckResult{
		result("a", domain.StatusPass, 20),
		result("b", domain.StatusError, 0),
	}
	v, err := Aggregator{ConfidenceThreshold: 0.5}.Aggregate(in)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusPass, v.Status)
}
