package main

import (
	"bytes"
	"context"
	"encoding/json"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	filestore "enlist/internal/cooldown/store/file"
)

func executeCLI(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	t.Setenv("ENLIST_CONFIG", "")

	root := newRootCmd()
	stdout := &bytes.Buffer{}
	stderr := &bytes.Buffer{}
	root.SetOut(stdout)
	root.SetErr(stderr)
	root.SetArgs(args)

	err := root.ExecuteContext(context.Background())
	return stdout.String(), stderr.String(), err
}

// writeCooldownFixture records one application for "U1" at 2025-01-10 12:00 UTC.
func writeCooldownFixture(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "cooldowns.json")
	s, err := filestore.Open(path)
	require.NoError(t, err)
	require.NoError(t, s.Set(context.Background(), "U1", time.Date(2025, 1, 10, 12, 0, 0, 0, time.UTC)))
	return path
}

func TestCooldownGet(t *testing.T) {
	path := writeCooldownFixture(t)

	stdout, _, err := executeCLI(t, "--backend", "file", "--file", path, "cooldown", "get", "U1")
	require.NoError(t, err)
	assert.Equal(t, "U1: last applied 2025-01-10T12:00:00Z\n", stdout)

	stdout, _, err = executeCLI(t, "--backend", "file", "--file", path, "cooldown", "get", "U2")
	require.NoError(t, err)
	assert.Equal(t, "U2: never applied\n", stdout)
}

func TestCooldownGetJSON(t *testing.T) {
	path := writeCooldownFixture(t)

	stdout, _, err := executeCLI(t, "--backend", "file", "--file", path, "cooldown", "get", "U2", "--json")
	require.NoError(t, err)
	assert.JSONEq(t, `{"identity_id":"U2","last_action_at":null}`, stdout)
}

func TestCooldownCheck(t *testing.T) {
	path := writeCooldownFixture(t)

	t.Run("inside the window", func(t *testing.T) {
		stdout, _, err := executeCLI(t, "--backend", "file", "--file", path,
			"cooldown", "check", "U1", "--at", "2025-01-13T12:00:00Z")
		require.NoError(t, err)
		assert.Equal(t, "U1: cooldown active, 4 day(s) remaining (available 2025-01-17T12:00:00Z)\n", stdout)
	})

	t.Run("after the window", func(t *testing.T) {
		stdout, _, err := executeCLI(t, "--backend", "file", "--file", path,
			"cooldown", "check", "U1", "--at", "2025-01-17T12:00:01Z")
		require.NoError(t, err)
		assert.Equal(t, "U1: eligible\n", stdout)
	})

	t.Run("json", func(t *testing.T) {
		stdout, _, err := executeCLI(t, "--backend", "file", "--file", path,
			"cooldown", "check", "U1", "--at", "2025-01-11T12:00:00Z", "--json")
		require.NoError(t, err)
		var got map[string]any
		require.NoError(t, json.Unmarshal([]byte(stdout), &got))
		assert.Equal(t, false, got["eligible"])
		assert.EqualValues(t, 6, got["remaining_days"])
	})
}

func TestCooldownRejectsBadInput(t *testing.T) {
	path := writeCooldownFixture(t)

	_, _, err := executeCLI(t, "--backend", "file", "--file", path, "cooldown", "get", "not an id")
	require.Error(t, err)

	_, _, err = executeCLI(t, "--backend", "file", "--file", path, "cooldown", "check", "U1", "--at", "yesterday")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "RFC3339")

	_, _, err = executeCLI(t, "--backend", "nosuch", "cooldown", "get", "U1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown COOLDOWN_BACKEND")
}

func TestVersion(t *testing.T) {
	stdout, _, err := executeCLI(t, "version")
	require.NoError(t, err)
	assert.Equal(t, "dev\n", stdout)
}
