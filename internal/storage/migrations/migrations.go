// Package migrations applies the embedded schema for each SQL backend.
//
// Runners take small execution interfaces instead of backend packages so the
// backends can use them in their own tests.
package migrations

import (
	"context"
	"database/sql"
	"fmt"
	"io/fs"
	"sort"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
)

// PgExecer is satisfied by *pgxpool.Pool and pgx.Tx.
type PgExecer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// ClickhouseExecer is satisfied by clickhouse driver.Conn.
type ClickhouseExecer interface {
	Exec(ctx context.Context, query string, args ...any) error
}

// RunPostgres applies all embedded PostgreSQL files in lexical order.
// Migrations are expected to be idempotent.
func RunPostgres(ctx context.Context, db PgExecer) error {
	files, err := sqlFiles(PostgresFS, "postgres")
	if err != nil {
		return err
	}
	for _, f := range files {
		if strings.TrimSpace(f.body) == "" {
			continue
		}
		if _, err := db.Exec(ctx, f.body); err != nil {
			return fmt.Errorf("apply migration %s: %w", f.name, err)
		}
	}
	return nil
}

// RunClickhouse applies all embedded ClickHouse files statement by statement;
// the driver does not accept multi-statement Exec.
func RunClickhouse(ctx context.Context, conn ClickhouseExecer) error {
	files, err := sqlFiles(ClickhouseFS, "clickhouse")
	if err != nil {
		return err
	}
	for _, f := range files {
		if err := validateNoSemicolonInStrings(f.body); err != nil {
			return fmt.Errorf("validate migration %s: %w", f.name, err)
		}
		for _, stmt := range splitStatements(f.body) {
			if err := conn.Exec(ctx, stmt); err != nil {
				return fmt.Errorf("apply migration %s: %w", f.name, err)
			}
		}
	}
	return nil
}

// RunSQLite applies all embedded SQLite files statement by statement.
func RunSQLite(ctx context.Context, db *sql.DB) error {
	files, err := sqlFiles(SQLiteFS, "sqlite")
	if err != nil {
		return err
	}
	for _, f := range files {
		if err := validateNoSemicolonInStrings(f.body); err != nil {
			return fmt.Errorf("validate migration %s: %w", f.name, err)
		}
		for _, stmt := range splitStatements(f.body) {
			if _, err := db.ExecContext(ctx, stmt); err != nil {
				return fmt.Errorf("apply migration %s: %w", f.name, err)
			}
		}
	}
	return nil
}

type sqlFile struct {
	name string
	body string
}

func sqlFiles(fsys fs.FS, dir string) ([]sqlFile, error) {
	entries, err := fs.ReadDir(fsys, dir)
	if err != nil {
		return nil, fmt.Errorf("read embedded %s migrations: %w", dir, err)
	}

	var names []string
	for _, entry := range entries {
		if !entry.IsDir() && strings.HasSuffix(entry.Name(), ".sql") {
			names = append(names, entry.Name())
		}
	}
	sort.Strings(names)

	files := make([]sqlFile, 0, len(names))
	for _, name := range names {
		data, err := fs.ReadFile(fsys, dir+"/"+name)
		if err != nil {
			return nil, fmt.Errorf("read migration %s: %w", name, err)
		}
		files = append(files, sqlFile{name: name, body: string(data)})
	}
	return files, nil
}

// splitStatements splits SQL content into individual statements by semicolon.
//
// The splitter does not understand string literals, block comments or
// dollar quoting. Migrations must keep semicolons out of literals and use
// -- comments only; validateNoSemicolonInStrings enforces the first rule.
func splitStatements(input string) []string {
	var filtered []string
	for _, line := range strings.Split(input, "\n") {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" || strings.HasPrefix(trimmed, "--") {
			continue
		}
		filtered = append(filtered, line)
	}
	joined := strings.Join(filtered, "\n")

	var stmts []string
	for _, part := range strings.Split(joined, ";") {
		stmt := strings.TrimSpace(part)
		if stmt != "" {
			stmts = append(stmts, stmt)
		}
	}
	return stmts
}

// validateNoSemicolonInStrings rejects SQL with a semicolon inside a
// single-quoted string.
func validateNoSemicolonInStrings(sql string) error {
	inString := false
	for i := 0; i < len(sql); i++ {
		ch := sql[i]
		if ch == '\'' {
			// Escaped quote ''
			if i+1 < len(sql) && sql[i+1] == '\'' {
				i++
				continue
			}
			inString = !inString
		} else if ch == ';' && inString {
			return fmt.Errorf("semicolon inside string literal at offset %d", i)
		}
	}
	return nil
}
