//go:build integration

package redis

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"enlist/internal/platform/config"
	"enlist/pkg/testutil/containers"
)

func TestNewConnectsAndAppliesPoolOptions(t *testing.T) {
	rc := containers.NewRedisContainer(t)

	client, err := New(context.Background(), config.RedisConfig{
		URL:         rc.URL,
		PoolSize:    4,
		DialTimeout: 2 * time.Second,
	})
	require.NoError(t, err)
	defer client.Close()

	assert.Equal(t, 4, client.Options().PoolSize)
	assert.NoError(t, client.Ping(context.Background()).Err())
}
