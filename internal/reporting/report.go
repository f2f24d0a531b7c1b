// Package reporting renders verdicts as Markdown and CSV.
package reporting

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"token-vetting/internal/domain"
)

// Format is an output format.
type Format string

// Formats.
const (
	FormatJSON     Format = "json"
	FormatMarkdown Format = "md"
	FormatCSV      Format = "csv"
)

// ParseFormat accepts json, md/markdown and csv, case-insensitively.
// An empty string is json.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "json":
		return FormatJSON, nil
	case "md", "markdown":
		return FormatMarkdown, nil
	case "csv":
		return FormatCSV, nil
	default:
		return "", fmt.Errorf("unknown format %q (want json, md or csv)", s)
	}
}

// ContentType returns the HTTP content type for f.
func (f Format) ContentType() string {
	switch f {
	case FormatMarkdown:
		return "text/markdown; charset=utf-8"
	case FormatCSV:
		return "text/csv; charset=utf-8"
	default:
		return "application/json"
	}
}

// Report is a verdict plus the context needed to read it.
type Report struct {
	GeneratedAt time.Time
	Verdict     *domain.Verdict
	Age         time.Duration

	// Summary counts by check status.
	Passed  int
	Warned  int
	Failed  int
	Errored int

	// Superseded verdicts, newest first. Optional.
	History []HistoryRow
}

// HistoryRow is one superseded verdict.
type HistoryRow struct {
	RunID      string
	ComputedAt time.Time
	Score      int
	Status     domain.Status
	Confidence float64
}

// NewReport builds a Report for v as seen at now.
func NewReport(v *domain.Verdict, history []*domain.Verdict, now time.Time) *Report {
	r := &Report{
		GeneratedAt: now,
		Verdict:     v,
		Age:         v.Age(now),
	}
	for _, c := range v.Checks {
		switch c.Status {
		case domain.StatusPass:
			r.Passed++
		case domain.StatusWarn:
			r.Warned++
		case domain.StatusFail:
			r.Failed++
		case domain.StatusError:
			r.Errored++
		}
	}
	for _, h := range history {
		r.History = append(r.History, HistoryRow{
			RunID:      h.RunID,
			ComputedAt: h.ComputedAt,
			Score:      h.Score,
			Status:     h.Status,
			Confidence: h.Confidence,
		})
	}
	return r
}

// Render renders r in format f. JSON renders the verdict alone.
func Render(f Format, r *Report) (string, error) {
	switch f {
	case FormatMarkdown:
		return RenderMarkdown(r), nil
	case FormatCSV:
		return RenderCSV(r)
	default:
		data, err := json.MarshalIndent(r.Verdict, "", "  ")
		if err != nil {
			return "", fmt.Errorf("marshal verdict: %w", err)
		}
		return string(data) + "\n", nil
	}
}
