package reporting

import (
	"encoding/csv"
	"strconv"
	"strings"
	"time"
)

var csvHeader = []string{
	"token_id", "run_id", "verdict_status", "verdict_score", "confidence", "computed_at",
	"check_name", "check_status", "check_score", "duration_ms", "detail",
}

// RenderCSV renders one row per check result, each carrying the verdict columns.
func RenderCSV(r *Report) (string, error) {
	var sb strings.Builder
	w := csv.NewWriter(&sb)

	if err := w.Write(csvHeader); err != nil {
		return "", err
	}

	v := r.Verdict
	computedAt := v.ComputedAt.UTC().Format(time.RFC3339)
	for _, c := range v.Checks {
		row := []string{
			v.TokenID.String(),
			v.RunID,
			string(v.Status),
			strconv.Itoa(v.Score),
			strconv.FormatFloat(v.Confidence, 'f', 4, 64),
			computedAt,
			c.Name,
			string(c.Status),
			strconv.Itoa(c.Score),
			strconv.FormatInt(c.DurationMs, 10),
			c.Detail,
		}
		if err := w.Write(row); err != nil {
			return "", err
		}
	}

	w.Flush()
	if err := w.Error(); err != nil {
		return "", err
	}
	return sb.String(), nil
}
