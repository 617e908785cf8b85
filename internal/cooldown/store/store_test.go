package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"enlist/internal/cooldown/models"
	"enlist/internal/platform/config"
	"enlist/internal/platform/metrics"
)

func TestOpen(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	tests := []struct {
		name string
		cfg  config.CooldownConfig
	}{
		{"memory", config.CooldownConfig{Backend: config.BackendMemory}},
		{"json file", config.CooldownConfig{Backend: config.BackendFile, FilePath: filepath.Join(dir, "cooldowns.json")}},
		{"toml file", config.CooldownConfig{Backend: config.BackendFile, FilePath: filepath.Join(dir, "cooldowns.toml")}},
		{"sqlite", config.CooldownConfig{Backend: config.BackendSQLite, SQLitePath: filepath.Join(dir, "enlist.db")}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h, err := Open(ctx, &config.Config{Cooldown: tt.cfg}, Options{})
			require.NoError(t, err)
			t.Cleanup(func() { _ = h.Close() })

			at := time.Date(2025, 4, 1, 0, 0, 0, 0, time.UTC)
			require.NoError(t, h.Set(ctx, "u1", at))
			record, err := h.Get(ctx, "u1")
			require.NoError(t, err)
			assert.True(t, at.Equal(record.LastActionAt))
			assert.NoError(t, h.Ping(ctx))
		})
	}
}

func TestOpenUnknownBackend(t *testing.T) {
	_, err := Open(context.Background(), &config.Config{Cooldown: config.CooldownConfig{Backend: "etcd"}}, Options{})
	assert.ErrorContains(t, err, "unknown cooldown backend")
}

func TestOpenWithMetricsObservesOperations(t *testing.T) {
	ctx := context.Background()
	reg := prometheus.NewRegistry()
	m := metrics.New(reg)

	h, err := Open(ctx, &config.Config{Cooldown: config.CooldownConfig{Backend: config.BackendMemory}}, Options{Metrics: m})
	require.NoError(t, err)

	_, err = h.Execute(ctx, "u1", func(*models.CooldownRecord) error { return nil }, time.Now())
	require.NoError(t, err)
	_, err = h.Get(ctx, "u1")
	require.NoError(t, err)

	assert.Equal(t, 2, testutil.CollectAndCount(m.StoreOperationDur))
}
