// Package sql stores cooldown records in SQLite or Postgres through database/sql.
package sql

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"enlist/internal/cooldown/models"
	"enlist/internal/platform/database"
	"enlist/pkg/domain"
)

// Store is a database/sql backed models.Store. This store is pure I/O; the
// eligibility rule lives in the validate callback supplied by the caller.
type Store struct {
	db      *sql.DB
	dialect database.Dialect
}

// New wraps an open, migrated database.
func New(db *sql.DB, dialect database.Dialect) *Store {
	return &Store{db: db, dialect: dialect}
}

const (
	selectQuery = `SELECT last_action_ms FROM cooldowns WHERE identity_id = ?`
	// The WHERE on the conflict branch keeps the stored value monotonic.
	upsertQuery = `
		INSERT INTO cooldowns (identity_id, last_action_ms)
		VALUES (?, ?)
		ON CONFLICT (identity_id) DO UPDATE SET
			last_action_ms = excluded.last_action_ms
		WHERE cooldowns.last_action_ms <= excluded.last_action_ms`
	lockQuery = `SELECT pg_advisory_xact_lock(hashtext(?))`
)

// rebind rewrites ? placeholders to $n for Postgres.
func (s *Store) rebind(query string) string {
	if s.dialect != database.Postgres {
		return query
	}
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

type queryer interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func (s *Store) get(ctx context.Context, q queryer, id domain.IdentityID) (*models.CooldownRecord, error) {
	var ms int64
	err := q.QueryRowContext(ctx, s.rebind(selectQuery), id.String()).Scan(&ms)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &models.CooldownRecord{IdentityID: id, LastActionAt: time.UnixMilli(ms).UTC()}, nil
}

func (s *Store) upsert(ctx context.Context, q queryer, id domain.IdentityID, at time.Time) error {
	_, err := q.ExecContext(ctx, s.rebind(upsertQuery), id.String(), at.UnixMilli())
	return err
}

func (s *Store) Get(ctx context.Context, id domain.IdentityID) (*models.CooldownRecord, error) {
	record, err := s.get(ctx, s.db, id)
	if err != nil {
		return nil, fmt.Errorf("get cooldown: %w", err)
	}
	return record, nil
}

func (s *Store) Set(ctx context.Context, id domain.IdentityID, at time.Time) error {
	if err := s.upsert(ctx, s.db, id, at); err != nil {
		return fmt.Errorf("set cooldown: %w", err)
	}
	return nil
}

// Execute runs the check-then-write in one transaction. On Postgres a
// transaction-scoped advisory lock keyed by the identity serialises
// concurrent callers, including the first write for an identity that has no
// row to lock yet. SQLite runs on a single connection, which already
// serialises transactions.
func (s *Store) Execute(ctx context.Context, id domain.IdentityID, validate func(*models.CooldownRecord) error, at time.Time) (*models.CooldownRecord, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin cooldown tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if s.dialect == database.Postgres {
		if _, err := tx.ExecContext(ctx, s.rebind(lockQuery), id.String()); err != nil {
			return nil, fmt.Errorf("lock cooldown: %w", err)
		}
	}

	current, err := s.get(ctx, tx, id)
	if err != nil {
		return nil, fmt.Errorf("read cooldown: %w", err)
	}
	if current == nil {
		current = &models.CooldownRecord{IdentityID: id}
	}
	if err := validate(current); err != nil {
		return nil, err
	}

	if err := s.upsert(ctx, tx, id, at); err != nil {
		return nil, fmt.Errorf("write cooldown: %w", err)
	}
	updated, err := s.get(ctx, tx, id)
	if err != nil {
		return nil, fmt.Errorf("read cooldown: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit cooldown tx: %w", err)
	}
	return updated, nil
}

// Ping reports database reachability for health checks.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close releases the underlying pool.
func (s *Store) Close() error {
	return s.db.Close()
}
