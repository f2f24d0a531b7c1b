package reporting

import (
	"encoding/csv"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"token-vetting/internal/domain"
	"token-vetting/internal/fixtures"
)

func sampleVerdict() *domain.Verdict {
	at := fixtures.Epoch
	return &domain.Verdict{
		TokenID:    fixtures.USDT,
		RunID:      "run-7",
		Score:      -40,
		Status:     domain.StatusFail,
		Confidence: 0.8,
		Executed:   4,
		Total:      5,
		Checks: []domain.CheckResult{
			{Name: "liquidity_threshold", Status: domain.StatusFail, Score: -50, Detail: "liquidity $2500.00 below minimum $10000.00", DurationMs: 1, ComputedAt: at},
			{Name: "ownership_concentration", Status: domain.StatusPass, Score: 20, Detail: "top holder 5.0%, top 10 | 22.0%", DurationMs: 1, ComputedAt: at},
			{Name: "contract_mutability", Status: domain.StatusPass, Score: 15, Detail: "mint and freeze authority revoked", ComputedAt: at},
			{Name: "pair_age", Status: domain.StatusWarn, Score: -25, Detail: "pair is 3h0m0s old, younger than 24h0m0s", ComputedAt: at},
			{Name: "volume_plausibility", Status: domain.StatusError, Detail: "timed out after 5s", DurationMs: 5000, ComputedAt: at},
		},
		ComputedAt: at,
	}
}

func TestNewReport_Counts(t *testing.T) {
	older := sampleVerdict()
	older.RunID = "run-6"
	older.ComputedAt = fixtures.Epoch.Add(-time.Hour)

	r := NewReport(sampleVerdict(), []*domain.Verdict{older}, fixtures.Epoch.Add(90*time.Second))

	if r.Passed != 2 || r.Warned != 1 || r.Failed != 1 || r.Errored != 1 {
		t.Errorf("counts = %d/%d/%d/%d, want 2/1/1/1", r.Passed, r.Warned, r.Failed, r.Errored)
	}
	if r.Age != 90*time.Second {
		t.Errorf("Age = %v, want 90s", r.Age)
	}
	if len(r.History) != 1 || r.History[0].RunID != "run-6" {
		t.Errorf("History = %+v", r.History)
	}
}

func TestRenderMarkdown(t *testing.T) {
	r := NewReport(sampleVerdict(), nil, fixtures.Epoch)
	md := RenderMarkdown(r)

	wants := []string{
		"# Vetting Report: " + string(fixtures.USDT),
		"| Status | FAIL |",
		"| Score | -40 |",
		"| Confidence | 0.80 (4/5 checks executed) |",
		"| liquidity_threshold | FAIL | -50 | 1 |",
		`top 10 \| 22.0%`,
		"| volume_plausibility | ERROR | 0 | 5000 | timed out after 5s |",
		"No earlier verdicts.",
	}
	for _, want := range wants {
		if !strings.Contains(md, want) {
			t.Errorf("markdown missing %q\n%s", want, md)
		}
	}
}

func TestRenderMarkdown_History(t *testing.T) {
	older := sampleVerdict()
	older.RunID = "run-6"
	older.Status = domain.StatusWarn

	md := RenderMarkdown(NewReport(sampleVerdict(), []*domain.Verdict{older}, fixtures.Epoch))
	if !strings.Contains(md, "| WARN | -40 | 0.80 | run-6 |") {
		t.Errorf("history row missing\n%s", md)
	}
}

func TestRenderCSV(t *testing.T) {
	out, err := RenderCSV(NewReport(sampleVerdict(), nil, fixtures.Epoch))
	if err != nil {
		t.Fatalf("RenderCSV: %v", err)
	}

	records, err := csv.NewReader(strings.NewReader(out)).ReadAll()
	if err != nil {
		t.Fatalf("output is not valid CSV: %v", err)
	}
	if len(records) != 6 {
		t.Fatalf("rows = %d, want header + 5", len(records))
	}
	if records[0][0] != "token_id" || records[0][10] != "detail" {
		t.Errorf("header = %v", records[0])
	}
	first := records[1]
	if first[1] != "run-7" || first[2] != "fail" || first[3] != "-40" || first[4] != "0.8000" {
		t.Errorf("verdict columns = %v", first[:5])
	}
	if first[6] != "liquidity_threshold" || first[8] != "-50" {
		t.Errorf("check columns = %v", first[6:])
	}
}

func TestParseFormat(t *testing.T) {
	tests := []struct {
		in      string
		want    Format
		wantErr bool
	}{
		{"", FormatJSON, false},
		{"JSON", FormatJSON, false},
		{"md", FormatMarkdown, false},
		{"markdown", FormatMarkdown, false},
		{"csv", FormatCSV, false},
		{"xml", "", true},
	}
	for _, tt := range tests {
		got, err := ParseFormat(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseFormat(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			continue
		}
		if got != tt.want {
			t.Errorf("ParseFormat(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestRender_JSON(t *testing.T) {
	out, err := Render(FormatJSON, NewReport(sampleVerdict(), nil, fixtures.Epoch))
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	var v domain.Verdict
	if err := json.Unmarshal([]byte(out), &v); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if v.RunID != "run-7" || len(v.Checks) != 5 {
		t.Errorf("decoded verdict = %+v", v)
	}
	if FormatCSV.ContentType() != "text/csv; charset=utf-8" {
		t.Errorf("csv content type = %q", FormatCSV.ContentType())
	}
}
