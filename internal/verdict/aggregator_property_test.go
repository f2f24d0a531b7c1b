//go:build property

package verdict

import (
	"errors"
	"reflect"
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	"token-vetting/internal/domain"
)

var statuses = []domain.Status{domain.StatusPass, domain.StatusFail, domain.StatusWarn, domain.StatusError}

func genResult() gopter.Gen {
	return gopter.CombineGens(
		gen.IntRange(0, len(statuses)-1),
		gen.IntRange(domain.MinScore, domain.MaxScore),
	).Map(func(vals []interface{}) domain.CheckResult {
		return domain.CheckResult{
			Name:       "check",
			Status:     statuses[vals[0].(int)],
			Score:      vals[1].(int),
			ComputedAt: time.Unix(1_700_000_000, 0).UTC(),
		}
	})
}

func TestAggregateProperties(t *testing.T) {
	params := gopter.DefaultTestParameters()
	params.MinSuccessfulTests = 500
	properties := gopter.NewProperties(params)

	properties.Property("aggregate is deterministic", prop.ForAll(
		func(results []domain.CheckResult) bool {
			a, errA := Aggregator{}.Aggregate(results)
			b, errB := Aggregator{}.Aggregate(results)
			return reflect.DeepEqual(a, b) && (errA == nil) == (errB == nil)
		},
		gen.SliceOf(genResult()),
	))

	properties.Property("no executed check means insufficient data", prop.ForAll(
		func(results []domain.CheckResult) bool {
			executed := 0
			for _, r := range results {
				if r.Executed() {
					executed++
				}
			}
			_, err := Aggregator{}.Aggregate(results)
			return (executed == 0) == errors.Is(err, domain.ErrInsufficientData)
		},
		gen.SliceOf(genResult()),
	))

	properties.Property("score ignores errored checks", prop.ForAll(
		func(results []domain.CheckResult) bool {
			v, err := Aggregator{}.Aggregate(results)
			if err != nil {
				return true
			}
			sum := 0
			for _, r := range results {
				if r.Executed() {
					sum += r.Score
				}
			}
			return v.Score == sum && v.Status != domain.StatusError && v.Confidence > 0 && v.Confidence <= 1
		},
		gen.SliceOf(genResult()),
	))

	properties.TestingRun(t)
}
