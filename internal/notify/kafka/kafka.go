// Package kafka publishes accepted applications to a Kafka topic.
package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/twmb/franz-go/pkg/kadm"
	"github.com/twmb/franz-go/pkg/kerr"
	"github.com/twmb/franz-go/pkg/kgo"

	"enlist/internal/submission/models"
)

// Relay produces one JSON message per record, keyed by identity id so an
// applicant's records stay ordered within a partition.
type Relay struct {
	client *kgo.Client
	topic  string
}

// New connects to brokers. When createTopic is set the topic is created with
// broker defaults; an existing topic is not an error.
func New(ctx context.Context, brokers []string, topic string, createTopic bool) (*Relay, error) {
	if len(brokers) == 0 {
		return nil, errors.New("kafka brokers are required")
	}
	if topic == "" {
		return nil, errors.New("kafka topic is required")
	}

	client, err := kgo.NewClient(
		kgo.SeedBrokers(brokers...),
		kgo.DefaultProduceTopic(topic),
		kgo.RequiredAcks(kgo.AllISRAcks()),
		kgo.AllowAutoTopicCreation(),
	)
	if err != nil {
		return nil, fmt.Errorf("create kafka client: %w", err)
	}
	if err := client.Ping(ctx); err != nil {
		client.Close()
		return nil, fmt.Errorf("ping kafka: %w", err)
	}

	if createTopic {
		if err := ensureTopic(ctx, client, topic); err != nil {
			client.Close()
			return nil, err
		}
	}
	return &Relay{client: client, topic: topic}, nil
}

func ensureTopic(ctx context.Context, client *kgo.Client, topic string) error {
	adm := kadm.NewClient(client)
	resp, err := adm.CreateTopic(ctx, -1, -1, nil, topic)
	if err == nil {
		err = resp.Err
	}
	if err != nil && !errors.Is(err, kerr.TopicAlreadyExists) {
		return fmt.Errorf("create topic %s: %w", topic, err)
	}
	return nil
}

func (r *Relay) Name() string { return "kafka" }

func (r *Relay) Send(ctx context.Context, record *models.ActionRecord) error {
	value, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("encode record: %w", err)
	}
	rec := &kgo.Record{
		Topic: r.topic,
		Key:   []byte(record.Applicant.ID.String()),
		Value: value,
		Headers: []kgo.RecordHeader{
			{Key: "record_id", Value: []byte(record.ID.String())},
		},
	}
	if err := r.client.ProduceSync(ctx, rec).FirstErr(); err != nil {
		return fmt.Errorf("produce to %s: %w", r.topic, err)
	}
	return nil
}

func (r *Relay) Close() {
	r.client.Close()
}
