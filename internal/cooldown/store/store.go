// Package store selects and opens the configured cooldown store backend.
package store

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"enlist/internal/cooldown/models"
	filestore "enlist/internal/cooldown/store/file"
	"enlist/internal/cooldown/store/memory"
	redisstore "enlist/internal/cooldown/store/redis"
	sqlstore "enlist/internal/cooldown/store/sql"
	"enlist/internal/platform/config"
	"enlist/internal/platform/database"
	"enlist/internal/platform/metrics"
	"enlist/internal/platform/redis"
	"enlist/pkg/domain"
)

// Handle is an opened store plus whatever must be released at shutdown.
type Handle struct {
	models.Store
	closers []func() error
}

// Close releases the backend's connections.
func (h *Handle) Close() error {
	var firstErr error
	for _, c := range h.closers {
		if err := c(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// Ping checks the backend when it is remote; local backends are always healthy.
func (h *Handle) Ping(ctx context.Context) error {
	if p, ok := h.Store.(models.Pinger); ok {
		return p.Ping(ctx)
	}
	return nil
}

// Options adjust how Open builds the store.
type Options struct {
	ReadOnly bool
	Metrics  *metrics.Metrics
	Logger   *slog.Logger
}

// Open builds the backend named by cfg.Cooldown.Backend.
func Open(ctx context.Context, cfg *config.Config, opts Options) (*Handle, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	h := &Handle{}
	switch cfg.Cooldown.Backend {
	case config.BackendMemory:
		h.Store = memory.New()
	case config.BackendFile:
		s, err := filestore.Open(cfg.Cooldown.FilePath)
		if err != nil {
			return nil, err
		}
		h.Store = s
	case config.BackendSQLite:
		db, err := database.OpenSQLite(ctx, cfg.Cooldown.SQLitePath, database.SQLiteOptions{ReadOnly: opts.ReadOnly})
		if err != nil {
			return nil, err
		}
		h.Store = sqlstore.New(db, database.SQLite)
		h.closers = append(h.closers, db.Close)
	case config.BackendPostgres:
		db, err := database.OpenPostgres(ctx, cfg.Cooldown.DatabaseURL)
		if err != nil {
			return nil, err
		}
		h.Store = sqlstore.New(db, database.Postgres)
		h.closers = append(h.closers, db.Close)
	case config.BackendRedis:
		client, err := redis.New(ctx, cfg.Redis)
		if err != nil {
			return nil, err
		}
		if client == nil {
			return nil, fmt.Errorf("redis backend selected but REDIS_URL is empty")
		}
		h.Store = redisstore.New(client.Client)
		h.closers = append(h.closers, client.Close)
	default:
		return nil, fmt.Errorf("unknown cooldown backend %q", cfg.Cooldown.Backend)
	}

	logger.InfoContext(ctx, "cooldown store opened", "backend", cfg.Cooldown.Backend, "read_only", opts.ReadOnly)
	if opts.Metrics != nil {
		h.Store = &instrumented{next: h.Store, metrics: opts.Metrics}
	}
	return h, nil
}

// instrumented records operation latency for any backend.
type instrumented struct {
	next    models.Store
	metrics *metrics.Metrics
}

func (s *instrumented) Get(ctx context.Context, id domain.IdentityID) (*models.CooldownRecord, error) {
	defer s.observe("get", time.Now())
	return s.next.Get(ctx, id)
}

func (s *instrumented) Set(ctx context.Context, id domain.IdentityID, at time.Time) error {
	defer s.observe("set", time.Now())
	return s.next.Set(ctx, id, at)
}

func (s *instrumented) Execute(ctx context.Context, id domain.IdentityID, validate func(*models.CooldownRecord) error, at time.Time) (*models.CooldownRecord, error) {
	defer s.observe("execute", time.Now())
	return s.next.Execute(ctx, id, validate, at)
}

func (s *instrumented) Ping(ctx context.Context) error {
	if p, ok := s.next.(models.Pinger); ok {
		return p.Ping(ctx)
	}
	return nil
}

func (s *instrumented) observe(op string, start time.Time) {
	s.metrics.ObserveStoreOperation(op, time.Since(start))
}
