// Package database opens the SQL databases that can back the cooldown store
// and applies the schema.
package database

import (
	"context"
	"database/sql"
	"fmt"
	"net/url"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	_ "modernc.org/sqlite"
)

// Dialect identifies the SQL flavour behind a *sql.DB.
type Dialect string

const (
	SQLite   Dialect = "sqlite"
	Postgres Dialect = "postgres"
)

// SQLiteOptions tunes the single-connection SQLite database.
type SQLiteOptions struct {
	ReadOnly    bool
	BusyTimeout time.Duration
}

const schema = `
CREATE TABLE IF NOT EXISTS cooldowns (
	identity_id    TEXT PRIMARY KEY,
	last_action_ms BIGINT NOT NULL
)`

func sqliteDSN(path string, readOnly bool) (string, error) {
	if !readOnly {
		return path, nil
	}
	if path == "" || path == ":memory:" {
		return "", fmt.Errorf("database: read-only mode requires a file-backed database")
	}
	dsn := path
	if !strings.HasPrefix(dsn, "file:") {
		dsn = "file:" + dsn
	}
	parsed, err := url.Parse(dsn)
	if err != nil {
		return "", err
	}
	query := parsed.Query()
	query.Set("mode", "ro")
	parsed.RawQuery = query.Encode()
	return parsed.String(), nil
}

// OpenSQLite opens path with modernc's pure-Go driver. The pool is pinned to
// one connection, so transactions on it are serialised.
func OpenSQLite(ctx context.Context, path string, opts SQLiteOptions) (*sql.DB, error) {
	dsn, err := sqliteDSN(path, opts.ReadOnly)
	if err != nil {
		return nil, err
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)

	busy := opts.BusyTimeout
	if busy <= 0 {
		busy = 5 * time.Second
	}
	pragmas := []string{fmt.Sprintf("PRAGMA busy_timeout=%d", busy.Milliseconds())}
	if !opts.ReadOnly {
		pragmas = append(pragmas, "PRAGMA synchronous=FULL")
	}
	for _, pragma := range pragmas {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("sqlite %q: %w", pragma, err)
		}
	}

	if !opts.ReadOnly {
		if err := Migrate(ctx, db); err != nil {
			_ = db.Close()
			return nil, err
		}
	}
	return db, nil
}

// OpenPostgres opens dsn through pgx's database/sql driver and migrates.
func OpenPostgres(ctx context.Context, dsn string) (*sql.DB, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	db.SetMaxOpenConns(20)
	db.SetMaxIdleConns(5)
	db.SetConnMaxIdleTime(5 * time.Minute)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	if err := Migrate(ctx, db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}

// Migrate creates the cooldowns table if needed. The DDL is valid on both dialects.
func Migrate(ctx context.Context, db *sql.DB) error {
	if _, err := db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("migrate cooldowns: %w", err)
	}
	return nil
}
