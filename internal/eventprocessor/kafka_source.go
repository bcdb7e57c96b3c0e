// Pulse - Activity Fan-out and Search Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/pulse

package eventprocessor

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/twmb/franz-go/pkg/kgo"

	"github.com/tomtom215/pulse/internal/logging"
)

// KafkaSource consumes a topic through a consumer group with auto-commit
// disabled. Records are processed in order and each offset is committed only
// after its delivery has been handled.
type KafkaSource struct {
	cfg    KafkaSourceConfig
	client *kgo.Client
}

// NewKafkaSource creates the consumer group client. Extra options are appended
// after the defaults.
func NewKafkaSource(cfg KafkaSourceConfig, opts ...kgo.Opt) (*KafkaSource, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.MaxWait <= 0 {
		cfg.MaxWait = time.Second
	}

	kopts := []kgo.Opt{
		kgo.SeedBrokers(cfg.Brokers...),
		kgo.ConsumerGroup(cfg.GroupID),
		kgo.ConsumeTopics(cfg.Topic),
		kgo.DisableAutoCommit(),
		kgo.BlockRebalanceOnPoll(),
		kgo.FetchMaxWait(cfg.MaxWait),
	}
	if cfg.ClientID != "" {
		kopts = append(kopts, kgo.ClientID(cfg.ClientID))
	}
	kopts = append(kopts, opts...)

	client, err := kgo.NewClient(kopts...)
	if err != nil {
		return nil, fmt.Errorf("new kafka client: %w", err)
	}
	return &KafkaSource{cfg: cfg, client: client}, nil
}

// Name implements Source.
func (s *KafkaSource) Name() string { return "kafka" }

// Run implements Source. It closes the client when it returns.
func (s *KafkaSource) Run(ctx context.Context, fn DeliveryFunc) error {
	defer s.client.Close()
	log := logging.With().Str("source", s.Name()).Str("topic", s.cfg.Topic).Logger()
	log.Info().Str("group", s.cfg.GroupID).Msg("Kafka consumer started")

	for {
		fetches := s.client.PollFetches(ctx)
		if ctx.Err() != nil {
			s.client.AllowRebalance()
			return ctx.Err()
		}
		if fetches.IsClientClosed() {
			return errors.New("kafka client closed")
		}
		fetches.EachError(func(topic string, partition int32, err error) {
			log.Warn().Err(err).Int32("partition", partition).Msg("Kafka fetch error")
		})

		err := s.process(ctx, fetches, fn)
		s.client.AllowRebalance()
		if err != nil {
			return err
		}
	}
}

func (s *KafkaSource) process(ctx context.Context, fetches kgo.Fetches, fn DeliveryFunc) error {
	var procErr error
	fetches.EachPartition(func(p kgo.FetchTopicPartition) {
		if procErr != nil {
			return
		}
		for _, rec := range p.Records {
			rec := rec
			commit := func() error {
				s.client.MarkCommitRecords(rec)
				return s.client.CommitMarkedOffsets(ctx)
			}
			if err := fn(ctx, NewDelivery(rec.Partition, rec.Offset, rec.Value, commit)); err != nil {
				procErr = err
				return
			}
		}
	})
	return procErr
}
