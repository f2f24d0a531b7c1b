package clickhouse

import (
	"context"
	"fmt"
	"time"

	"token-vetting/internal/domain"
	"token-vetting/internal/storage"
)

// CheckResultLog implements storage.CheckResultLog using ClickHouse.
type CheckResultLog struct {
	conn *Conn
}

// NewCheckResultLog creates a new CheckResultLog.
func NewCheckResultLog(conn *Conn) *CheckResultLog {
	return &CheckResultLog{conn: conn}
}

// Compile-time interface check.
var _ storage.CheckResultLog = (*CheckResultLog)(nil)

// Append writes every check of v in one batch.
func (l *CheckResultLog) Append(ctx context.Context, v *domain.Verdict) error {
	if v == nil || len(v.Checks) == 0 {
		return storage.ErrInvalidInput
	}

	batch, err := l.conn.PrepareBatch(ctx, `
		INSERT INTO check_results (
			token_id, run_id, check_name, status, score, detail, duration_ms, computed_at
		)
	`)
	if err != nil {
		return fmt.Errorf("prepare batch: %w", err)
	}

	for _, r := range v.Checks {
		durationMs := r.DurationMs
		if durationMs < 0 {
			durationMs = 0
		}
		err = batch.Append(
			v.TokenID.String(),
			v.RunID,
			r.Name,
			string(r.Status),
			int32(r.Score),
			r.Detail,
			uint64(durationMs),
			r.ComputedAt.UTC(),
		)
		if err != nil {
			return fmt.Errorf("append to batch: %w", err)
		}
	}

	if err := batch.Send(); err != nil {
		return fmt.Errorf("send batch: %w", err)
	}
	return nil
}

// Stats aggregates results computed at or after since.
func (l *CheckResultLog) Stats(ctx context.Context, since time.Time) ([]storage.CheckStat, error) {
	query := `
		SELECT check_name, status, count() AS n, avg(duration_ms) AS avg_ms
		FROM check_results
		WHERE computed_at >= fromUnixTimestamp64Milli(toInt64(?))
		GROUP BY check_name, status
		ORDER BY check_name ASC, status ASC
	`

	rows, err := l.conn.Query(ctx, query, since.UnixMilli())
	if err != nil {
		return nil, fmt.Errorf("query check stats: %w", err)
	}
	defer rows.Close()

	var stats []storage.CheckStat
	for rows.Next() {
		var (
			name   string
			status string
			count  uint64
			avgMs  float64
		)
		if err := rows.Scan(&name, &status, &count, &avgMs); err != nil {
			return nil, fmt.Errorf("scan check stat: %w", err)
		}
		stats = append(stats, storage.CheckStat{
			Name:          name,
			Status:        domain.Status(status),
			Count:         int64(count),
			AvgDurationMs: avgMs,
		})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate check stats: %w", err)
	}
	return stats, nil
}
