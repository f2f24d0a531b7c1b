package domain

import (
	"fmt"
	"time"
)

// Status is the outcome of a check or of a whole verdict.
// A verdict is never StatusError.
type Status string

// Statuses.
const (
	StatusPass  Status = "pass"
	StatusFail  Status = "fail"
	StatusWarn  Status = "warn"
	StatusError Status = "error" // the check itself could not complete
)

// ParseStatus validates s.
func ParseStatus(s string) (Status, error) {
	switch st := Status(s); st {
	case StatusPass, StatusFail, StatusWarn, StatusError:
		return st, nil
	default:
		return "", fmt.Errorf("unknown status %q", s)
	}
}

// Score contribution bounds.
const (
	MinScore = -100
	MaxScore = 100
)

// ClampScore bounds a contribution to [MinScore, MaxScore].
func ClampScore(v int) int {
	if v < MinScore {
		return MinScore
	}
	if v > MaxScore {
		return MaxScore
	}
	return v
}

// CheckResult is what one check produced in one run.
type CheckResult struct {
	Name       string    `json:"name"`
	Status     Status    `json:"status"`
	Score      int       `json:"score"`
	Detail     string    `json:"detail"`
	DurationMs int64     `json:"durationMs"`
	ComputedAt time.Time `json:"computedAt"`
}

// Executed reports whether the check ran to completion.
func (r CheckResult) Executed() bool {
	return r.Status != StatusError
}

// Verdict is the aggregate of one set of CheckResults computed together.
// It is replaced as a whole on every run and never partially updated.
type Verdict struct {
	TokenID    TokenID       `json:"tokenId"`
	RunID      string        `json:"runId,omitempty"`
	Score      int           `json:"score"`
	Status     Status        `json:"status"`
	Confidence float64       `json:"confidence"`
	Executed   int           `json:"executed"`
	Total      int           `json:"total"`
	Checks     []CheckResult `json:"checks"`
	ComputedAt time.Time     `json:"computedAt"`
	Fresh      bool          `json:"fresh"`
}

// Clone returns a deep copy.
func (v *Verdict) Clone() *Verdict {
	if v == nil {
		return nil
	}
	c := *v
	if v.Checks != nil {
		c.Checks = append([]CheckResult(nil), v.Checks...)
	}
	return &c
}

// Age returns how long ago the verdict was computed.
func (v *Verdict) Age(now time.Time) time.Duration {
	return now.Sub(v.ComputedAt)
}

// IsFreshAt reports whether the verdict is younger than ttl at now.
func (v *Verdict) IsFreshAt(now time.Time, ttl time.Duration) bool {
	return v.Age(now) < ttl
}

// VettingRecord is the persisted unit per token.
type VettingRecord struct {
	TokenID TokenID
	Latest  *Verdict
	History []*Verdict // newest first, bounded
}
