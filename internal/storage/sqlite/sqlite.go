// Package sqlite implements the verdict store on an embedded SQLite file.
// It is the default backend for single-node deployments and the CLI.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"token-vetting/internal/domain"
	"token-vetting/internal/storage"
	"token-vetting/internal/storage/migrations"
)

// Open opens (creating if needed) the database at path and applies the
// embedded schema. SQLite allows one writer, so the pool holds one connection.
func Open(ctx context.Context, path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", path, err)
	}
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}
	if _, err := db.ExecContext(ctx, `PRAGMA busy_timeout = 5000`); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("set busy timeout: %w", err)
	}
	if err := migrations.RunSQLite(ctx, db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}

// VettingStore implements storage.VettingStore using SQLite.
type VettingStore struct {
	db           *sql.DB
	historyLimit int
}

// NewVettingStore wraps an open database. The schema must already exist;
// Open applies it.
func NewVettingStore(db *sql.DB, historyLimit int) *VettingStore {
	if historyLimit <= 0 {
		historyLimit = storage.DefaultHistoryLimit
	}
	return &VettingStore{db: db, historyLimit: historyLimit}
}

var _ storage.VettingStore = (*VettingStore)(nil)

// GetLatest returns the current verdict. Returns ErrNotFound if none.
func (s *VettingStore) GetLatest(ctx context.Context, token domain.TokenID) (*domain.Verdict, error) {
	var raw string
	err := s.db.QueryRowContext(ctx, `SELECT verdict FROM vetting_latest WHERE token_id = ?`, token.String()).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get latest verdict: %w", err)
	}
	return decodeVerdict(raw)
}

// Save replaces the latest verdict and archives the previous one in a single
// transaction.
func (s *VettingStore) Save(ctx context.Context, token domain.TokenID, v *domain.Verdict) error {
	verdict, err := storage.Prepare(token, v)
	if err != nil {
		return err
	}
	raw, err := json.Marshal(verdict)
	if err != nil {
		return fmt.Errorf("marshal verdict: %w", err)
	}
	computedAt := verdict.ComputedAt.UTC().Format(time.RFC3339Nano)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin save: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var prevRunID string
	err = tx.QueryRowContext(ctx, `SELECT run_id FROM vetting_latest WHERE token_id = ?`, token.String()).Scan(&prevRunID)
	switch {
	case errors.Is(err, sql.ErrNoRows):
	case err != nil:
		return fmt.Errorf("read latest run: %w", err)
	case verdict.RunID != "" && prevRunID == verdict.RunID:
		return nil
	default:
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO vetting_history (token_id, run_id, computed_at, verdict)
			SELECT token_id, run_id, computed_at, verdict FROM vetting_latest WHERE token_id = ?
		`, token.String()); err != nil {
			return fmt.Errorf("archive latest verdict: %w", err)
		}
		if _, err := tx.ExecContext(ctx, `
			DELETE FROM vetting_history
			WHERE token_id = ? AND seq NOT IN (
				SELECT seq FROM vetting_history WHERE token_id = ? ORDER BY seq DESC LIMIT ?
			)
		`, token.String(), token.String(), s.historyLimit); err != nil {
			return fmt.Errorf("prune history: %w", err)
		}
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO vetting_latest (token_id, run_id, score, status, computed_at, verdict)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (token_id) DO UPDATE SET
			run_id = excluded.run_id,
			score = excluded.score,
			status = excluded.status,
			computed_at = excluded.computed_at,
			verdict = excluded.verdict
	`, token.String(), verdict.RunID, verdict.Score, string(verdict.Status), computedAt, string(raw))
	if err != nil {
		return fmt.Errorf("upsert latest verdict: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit save: %w", err)
	}
	return nil
}

// History returns superseded verdicts, newest first.
func (s *VettingStore) History(ctx context.Context, token domain.TokenID, limit int) ([]*domain.Verdict, error) {
	if limit <= 0 || limit > s.historyLimit {
		limit = s.historyLimit
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT verdict FROM vetting_history
		WHERE token_id = ?
		ORDER BY seq DESC
		LIMIT ?
	`, token.String(), limit)
	if err != nil {
		return nil, fmt.Errorf("query history: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []*domain.Verdict
	for rows.Next() {
		var raw string
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
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin delete: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.ExecContext(ctx, `DELETE FROM vetting_latest WHERE token_id = ?`, token.String())
	if err != nil {
		return fmt.Errorf("delete latest verdict: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete latest verdict: %w", err)
	}
	if n == 0 {
		return storage.ErrNotFound
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM vetting_history WHERE token_id = ?`, token.String()); err != nil {
		return fmt.Errorf("delete history: %w", err)
	}
	return tx.Commit()
}

func decodeVerdict(raw string) (*domain.Verdict, error) {
	var v domain.Verdict
	if err := json.Unmarshal([]byte(raw), &v); err != nil {
		return nil, fmt.Errorf("decode verdict: %w", err)
	}
	return &v, nil
}
