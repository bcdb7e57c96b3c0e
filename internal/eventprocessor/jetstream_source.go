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

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"golang.org/x/sync/errgroup"

	"github.com/tomtom215/pulse/internal/logging"
)

// fetchErrorBackoff is the pause after a failed fetch.
const fetchErrorBackoff = time.Second

// JetStreamSource consumes one durable pull consumer per partition.
// MaxAckPending=1 keeps each partition strictly ordered: the next message is
// not handed out until the previous one is acked.
type JetStreamSource struct {
	js  jetstream.JetStream
	cfg JetStreamSourceConfig
}

// NewJetStreamSource creates a source reading from the configured stream.
func NewJetStreamSource(js jetstream.JetStream, cfg JetStreamSourceConfig) (*JetStreamSource, error) {
	if js == nil {
		return nil, fmt.Errorf("%w: JetStream context required", ErrInvalidConfig)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.FetchWait <= 0 {
		cfg.FetchWait = DefaultJetStreamSourceConfig().FetchWait
	}
	return &JetStreamSource{js: js, cfg: cfg}, nil
}

// Name implements Source.
func (s *JetStreamSource) Name() string { return "jetstream" }

// Run implements Source.
func (s *JetStreamSource) Run(ctx context.Context, fn DeliveryFunc) error {
	g, ctx := errgroup.WithContext(ctx)
	for p := 0; p < s.cfg.Partitions; p++ {
		partition := p
		g.Go(func() error {
			return s.runPartition(ctx, partition, fn)
		})
	}
	return g.Wait()
}

func (s *JetStreamSource) consumerConfig(partition int) jetstream.ConsumerConfig {
	return jetstream.ConsumerConfig{
		Durable:       fmt.Sprintf("%s-%d", s.cfg.DurablePrefix, partition),
		FilterSubject: SubjectFor(s.cfg.SubjectPrefix, partition),
		AckPolicy:     jetstream.AckExplicitPolicy,
		AckWait:       s.cfg.AckWait,
		DeliverPolicy: jetstream.DeliverAllPolicy,
		MaxAckPending: 1,
		MaxDeliver:    -1,
	}
}

func (s *JetStreamSource) runPartition(ctx context.Context, partition int, fn DeliveryFunc) error {
	cons, err := s.js.CreateOrUpdateConsumer(ctx, s.cfg.Stream, s.consumerConfig(partition))
	if err != nil {
		return fmt.Errorf("create consumer for partition %d: %w", partition, err)
	}
	log := logging.With().Str("source", s.Name()).Int("partition", partition).Logger()
	log.Info().Msg("Partition consumer started")

	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		batch, err := cons.Fetch(1, jetstream.FetchMaxWait(s.cfg.FetchWait))
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			log.Warn().Err(err).Msg("Fetch failed")
			if !sleepCtx(ctx, fetchErrorBackoff) {
				return ctx.Err()
			}
			continue
		}

		for msg := range batch.Messages() {
			meta, err := msg.Metadata()
			if err != nil {
				log.Error().Err(err).Msg("Message without JetStream metadata, acking")
				_ = msg.Ack()
				continue
			}

			d := NewDelivery(int32(partition), int64(meta.Sequence.Stream), msg.Data(), msg.Ack) //nolint:gosec // sequence fits int64
			if err := fn(ctx, d); err != nil {
				_ = msg.Nak()
				return err
			}
		}

		if err := batch.Error(); err != nil && !isFetchTimeout(err) {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			log.Warn().Err(err).Msg("Fetch batch ended with error")
		}
	}
}

func isFetchTimeout(err error) bool {
	return errors.Is(err, nats.ErrTimeout) ||
		errors.Is(err, context.DeadlineExceeded) ||
		errors.Is(err, jetstream.ErrNoMessages)
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
