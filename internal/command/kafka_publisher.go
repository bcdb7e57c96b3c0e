// Pulse - Activity Fan-out and Search Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/pulse

package command

import (
	"context"
	"errors"
	"fmt"

	"github.com/twmb/franz-go/pkg/kgo"

	"github.com/tomtom215/pulse/internal/eventprocessor"
)

// kafkaPublisher produces envelopes keyed by partition key, so Kafka's
// default partitioner keeps one key on one partition.
type kafkaPublisher struct {
	client *kgo.Client
	topic  string
}

func newKafkaPublisher(brokers []string, topic string) (*kafkaPublisher, error) {
	if len(brokers) == 0 {
		return nil, errors.New("kafka brokers are required")
	}
	if topic == "" {
		return nil, errors.New("kafka topic is required")
	}
	client, err := kgo.NewClient(
		kgo.SeedBrokers(brokers...),
		kgo.DefaultProduceTopic(topic),
		kgo.ClientID("pulsectl"),
	)
	if err != nil {
		return nil, fmt.Errorf("create kafka client: %w", err)
	}
	return &kafkaPublisher{client: client, topic: topic}, nil
}

func (p *kafkaPublisher) PublishEnvelope(ctx context.Context, partitionKey string, envelope []byte) error {
	rec := &kgo.Record{
		Topic: p.topic,
		Key:   []byte(partitionKey),
		Value: envelope,
		Headers: []kgo.RecordHeader{
			{Key: eventprocessor.PartitionKeyHeader, Value: []byte(partitionKey)},
		},
	}
	if err := p.client.ProduceSync(ctx, rec).FirstErr(); err != nil {
		return fmt.Errorf("produce to %s: %w", p.topic, err)
	}
	return nil
}

func (p *kafkaPublisher) Close() error {
	p.client.Close()
	return nil
}
