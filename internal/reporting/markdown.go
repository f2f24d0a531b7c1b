package reporting

import (
	"fmt"
	"strings"
	"time"
)

// RenderMarkdown renders report as Markdown string.
func RenderMarkdown(r *Report) string {
	var sb strings.Builder
	v := r.Verdict

	// Header
	sb.WriteString(fmt.Sprintf("# Vetting Report: %s\n\n", v.TokenID))
	sb.WriteString(fmt.Sprintf("Generated: %s\n\n", r.GeneratedAt.UTC().Format(time.RFC3339)))

	// Verdict
	sb.WriteString("## Verdict\n\n")
	sb.WriteString("| Field | Value |\n")
	sb.WriteString("|-------|-------|\n")
	sb.WriteString(fmt.Sprintf("| Status | %s |\n", strings.ToUpper(string(v.Status))))
	sb.WriteString(fmt.Sprintf("| Score | %d |\n", v.Score))
	sb.WriteString(fmt.Sprintf("| Confidence | %.2f (%d/%d checks executed) |\n", v.Confidence, v.Executed, v.Total))
	sb.WriteString(fmt.Sprintf("| Computed At | %s |\n", v.ComputedAt.UTC().Format(time.RFC3339)))
	sb.WriteString(fmt.Sprintf("| Age | %s |\n", r.Age.Round(time.Second)))
	if v.RunID != "" {
		sb.WriteString(fmt.Sprintf("| Run | %s |\n", v.RunID))
	}
	sb.WriteString("\n")
	sb.WriteString(fmt.Sprintf("Pass: %d | Warn: %d | Fail: %d | Error: %d\n\n", r.Passed, r.Warned, r.Failed, r.Errored))

	// Checks
	sb.WriteString("## Checks\n\n")
	sb.WriteString("| Check | Status | Score | Duration (ms) | Detail |\n")
	sb.WriteString("|-------|--------|-------|---------------|--------|\n")
	for _, c := range v.Checks {
		sb.WriteString(fmt.Sprintf("| %s | %s | %d | %d | %s |\n",
			c.Name, strings.ToUpper(string(c.Status)), c.Score, c.DurationMs, escapeCell(c.Detail)))
	}
	sb.WriteString("\n")

	// History
	sb.WriteString("## History\n\n")
	if len(r.History) > 0 {
		sb.WriteString("| Computed At | Status | Score | Confidence | Run |\n")
		sb.WriteString("|-------------|--------|-------|------------|-----|\n")
		for _, h := range r.History {
			sb.WriteString(fmt.Sprintf("| %s | %s | %d | %.2f | %s |\n",
				h.ComputedAt.UTC().Format(time.RFC3339), strings.ToUpper(string(h.Status)), h.Score, h.Confidence, h.RunID))
		}
	} else {
		sb.WriteString("No earlier verdicts.\n")
	}
	sb.WriteString("\n")

	return sb.String()
}

// escapeCell keeps a detail message inside its table cell.
func escapeCell(s string) string {
	s = strings.ReplaceAll(s, "|", `\|`)
	return strings.ReplaceAll(s, "\n", " ")
}
