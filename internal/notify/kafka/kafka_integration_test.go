//go:build integration

package kafka

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/twmb/franz-go/pkg/kgo"

	"enlist/internal/submission/models"
	"enlist/pkg/testutil"
	"enlist/pkg/testutil/containers"
)

func TestRelayProducesRecordKeyedByIdentity(t *testing.T) {
	rp := containers.NewRedpandaContainer(t)
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	relay, err := New(ctx, []string{rp.Broker}, "enlist.applications", true)
	require.NoError(t, err)
	defer relay.Close()

	// Creating an existing topic again is accepted.
	again, err := New(ctx, []string{rp.Broker}, "enlist.applications", true)
	require.NoError(t, err)
	again.Close()

	at := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	record := models.NewActionRecord(testutil.Applicant("4242"), models.NewPayload(map[string]string{
		"description": "ready to serve",
		"timezone":    "UTC+2",
	}), at)
	require.NoError(t, relay.Send(ctx, record))

	consumer, err := kgo.NewClient(
		kgo.SeedBrokers(rp.Broker),
		kgo.ConsumeTopics("enlist.applications"),
		kgo.ConsumeResetOffset(kgo.NewOffset().AtStart()),
	)
	require.NoError(t, err)
	defer consumer.Close()

	fetches := consumer.PollRecords(ctx, 1)
	require.NoError(t, fetches.Err())
	records := fetches.Records()
	require.Len(t, records, 1)

	assert.Equal(t, "4242", string(records[0].Key))
	var got models.ActionRecord
	require.NoError(t, json.Unmarshal(records[0].Value, &got))
	assert.Equal(t, record.ID, got.ID)
	assert.Equal(t, "ready to serve", got.Description)
	assert.Equal(t, []models.Answer{{Question: "timezone", Value: "UTC+2"}}, got.Answers)
	assert.True(t, at.Equal(got.SubmittedAt))
}

func TestNewRequiresBrokersAndTopic(t *testing.T) {
	_, err := New(context.Background(), nil, "t", false)
	assert.Error(t, err)
	_, err = New(context.Background(), []string{"localhost:9092"}, "", false)
	assert.Error(t, err)
}
