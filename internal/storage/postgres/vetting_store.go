package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"

	"token-vetting/internal/domain"
	"token-vetting/internal/storage"
)

// VettingStore implements storage.VettingStore using PostgreSQL.
type VettingStore struct {
	pool         *Pool
	historyLimit int
}

// NewVettingStore creates a new VettingStore.
// A non-positive historyLimit uses storage.DefaultHistoryLimit.
func NewVettingStore(pool *Pool, historyLimit int) *VettingStore {
	if historyLimit <= 0 {
		historyLimit = storage.DefaultHistoryLimit
	}
	return &VettingStore{pool: pool, historyLimit: historyLimit}
}

// Compile-time interface check.
var _ storage.VettingStore = (*VettingStore)(nil)

// GetLatest returns the current verdict. Returns ErrNotFound if none.
func (s *VettingStore) GetLatest(ctx context.Context, token domain.TokenID) (*domain.Verdict, error) {
	query := `SELECT verdict FROM vetting_latest WHERE token_id = $1`

	var raw []byte
	if err := s.pool.QueryRow(ctx, query, token.String()).Scan(&raw); err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get latest verdict: %w", err)
	}
	return decodeVerdict(raw)
}

// Save replaces the latest verdict in one transaction. A per-token advisory
// lock serializes concurrent saves so the replaced verdict always reaches history.
func (s *VettingStore) Save(ctx context.Context, token domain.TokenID, v *domain.Verdict) error {
	verdict, err := storage.Prepare(token, v)
	if err != nil {
		return err
	}
	raw, err := json.Marshal(verdict)
	if err != nil {
		return fmt.Errorf("marshal verdict: %w", err)
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin save: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck // no-op after commit

	if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, token.String()); err != nil {
		return fmt.Errorf("lock token: %w", err)
	}

	var prevRunID string
	err = tx.QueryRow(ctx, `SELECT run_id FROM vetting_latest WHERE token_id = $1`, token.String()).Scan(&prevRunID)
	switch {
	case isNotFoundError(err):
	case err != nil:
		return fmt.Errorf("read latest run: %w", err)
	case verdict.RunID != "" && prevRunID == verdict.RunID:
		return nil
	default:
		if err := s.archiveLatest(ctx, tx, token); err != nil {
			return err
		}
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO vetting_latest (token_id, run_id, score, status, confidence, computed_at, verdict, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, now())
		ON CONFLICT (token_id) DO UPDATE SET
			run_id = EXCLUDED.run_id,
			score = EXCLUDED.score,
			status = EXCLUDED.status,
			confidence = EXCLUDED.confidence,
			computed_at = EXCLUDED.computed_at,
			verdict = EXCLUDED.verdict,
			updated_at = now()
	`,
		token.String(),
		verdict.RunID,
		verdict.Score,
		string(verdict.Status),
		verdict.Confidence,
		verdict.ComputedAt,
		raw,
	)
	if err != nil {
		return fmt.Errorf("upsert latest verdict: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit save: %w", err)
	}
	return nil
}

// archiveLatest copies the current verdict into history and prunes it.
func (s *VettingStore) archiveLatest(ctx context.Context, tx pgx.Tx, token domain.TokenID) error {
	_, err := tx.Exec(ctx, `
		INSERT INTO vetting_history (token_id, run_id, score, status, computed_at, verdict)
		SELECT token_id, run_id, score, status, computed_at, verdict
		FROM vetting_latest
		WHERE token_id = $1
	`, token.String())
	if err != nil {
		return fmt.Errorf("archive latest verdict: %w", err)
	}

	_, err = tx.Exec(ctx, `
		DELETE FROM vetting_history
		WHERE token_id = $1 AND seq NOT IN (
			SELECT seq FROM vetting_history
			WHERE token_id = $1
			ORDER BY seq DESC
			LIMIT $2
		)
	`, token.String(), s.historyLimit)
	if err != nil {
		return fmt.Errorf("prune history: %w", err)
	}
	return nil
}

// History returns superseded verdicts, newest first.
func (s *VettingStore) History(ctx context.Context, token domain.TokenID, limit int) ([]*domain.Verdict, error) {
	if limit <= 0 || limit > s.historyLimit {
		limit = s.historyLimit
	}

	query := `
		SELECT verdict FROM vetting_history
		WHERE token_id = $1
		ORDER BY seq DESC
		LIMIT $2
	`
	rows, err := s.pool.Query(ctx, query, token.String(), limit)
	if err != nil {
		return nil, fmt.Errorf("query history: %w", err)
	}
	defer rows.Close()

	var out []*domain.Verdict
	for rows.Next() {
		var raw []byte
		if err := rows.Scan(&raw); err != nil {
			return nil, fmt.Errorf("scan history: %w", err)
		}
		v, err := decodeVerdict(raw)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate history: %w", err)
	}
	return out, nil
}

// Delete removes the token's latest verdict and history.
func (s *VettingStore) Delete(ctx context.Context, token domain.TokenID) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin delete: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck // no-op after commit

	tag, err := tx.Exec(ctx, `DELETE FROM vetting_latest WHERE token_id = $1`, token.String())
	if err != nil {
		return fmt.Errorf("delete latest verdict: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return storage.ErrNotFound
	}
	if _, err := tx.Exec(ctx, `DELETE FROM vetting_history WHERE token_id = $1`, token.String()); err != nil {
		return fmt.Errorf("delete history: %w", err)
	}
	return tx.Commit(ctx)
}

func decodeVerdict(raw []byte) (*domain.Verdict, error) {
	var v domain.Verdict
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil, fmt.Errorf("decode verdict: %w", err)
	}
	return &v, nil
}
