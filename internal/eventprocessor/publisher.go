// Pulse - Activity Fan-out and Search Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/pulse

package eventprocessor

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	wmNats "github.com/ThreeDotsLabs/watermill-nats/v2/pkg/nats"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/goccy/go-json"
	natsgo "github.com/nats-io/nats.go"
	gobreaker "github.com/sony/gobreaker/v2"

	"github.com/tomtom215/pulse/internal/breaker"
	"github.com/tomtom215/pulse/internal/metrics"
	"github.com/tomtom215/pulse/internal/routing"
)

// Publisher routes envelopes to partition subjects through a Watermill
// publisher guarded by a circuit breaker.
type Publisher struct {
	cfg       PublisherConfig
	publisher message.Publisher
	cb        *gobreaker.CircuitBreaker[any]
	mu        sync.RWMutex
	closed    bool
}

// NewPublisher creates a resilient Watermill NATS JetStream publisher.
func NewPublisher(cfg PublisherConfig, logger watermill.LoggerAdapter) (*Publisher, error) {
	if logger == nil {
		logger = NewWatermillLogger()
	}

	natsOpts := []natsgo.Option{
		natsgo.Name("pulse-publisher"),
		natsgo.RetryOnFailedConnect(true),
		natsgo.MaxReconnects(cfg.MaxReconnects),
		natsgo.ReconnectWait(cfg.ReconnectWait),
		natsgo.ReconnectBufSize(cfg.ReconnectBuffer),
		natsgo.DisconnectErrHandler(func(nc *natsgo.Conn, err error) {
			if err != nil {
				logger.Error("NATS disconnected", err, nil)
			}
		}),
		natsgo.ReconnectHandler(func(nc *natsgo.Conn) {
			logger.Info("NATS reconnected", watermill.LogFields{"url": nc.ConnectedUrl()})
		}),
	}

	wmConfig := wmNats.PublisherConfig{
		URL:         cfg.URL,
		NatsOptions: natsOpts,
		Marshaler:   &wmNats.NATSMarshaler{},
		JetStream: wmNats.JetStreamConfig{
			Disabled:      false,
			AutoProvision: false, // the StreamInitializer owns the stream
			TrackMsgId:    cfg.EnableTrackMsgID,
			PublishOptions: []natsgo.PubOpt{
				natsgo.RetryAttempts(3),
				natsgo.RetryWait(100 * time.Millisecond),
			},
		},
	}

	pub, err := wmNats.NewPublisher(wmConfig, logger)
	if err != nil {
		return nil, fmt.Errorf("create watermill publisher: %w", err)
	}
	return NewPublisherWith(cfg, pub), nil
}

// NewPublisherWith wraps an existing Watermill publisher.
func NewPublisherWith(cfg PublisherConfig, pub message.Publisher) *Publisher {
	if cfg.Partitions <= 0 {
		cfg.Partitions = 1
	}
	return &Publisher{
		cfg:       cfg,
		publisher: pub,
		cb:        breaker.New(breaker.DefaultConfig("nats-publisher")),
	}
}

// SubjectForKey returns the partition subject partitionKey routes to.
func (p *Publisher) SubjectForKey(partitionKey string) string {
	return SubjectFor(p.cfg.SubjectPrefix, routing.Bucket(partitionKey, p.cfg.Partitions))
}

// Publish sends msg to topic through the circuit breaker.
func (p *Publisher) Publish(ctx context.Context, topic string, msg *message.Message) error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return ErrPublisherClosed
	}

	if msg.Metadata.Get(natsgo.MsgIdHdr) == "" {
		msg.Metadata.Set(natsgo.MsgIdHdr, msg.UUID)
	}
	msg.SetContext(ctx)

	_, err := p.cb.Execute(func() (any, error) {
		return nil, p.publisher.Publish(topic, msg)
	})
	metrics.RecordPublish(err)
	if err != nil {
		return fmt.Errorf("publish to %s: %w", topic, err)
	}
	return nil
}

// PublishEnvelope publishes an encoded envelope to the partition of
// partitionKey.
func (p *Publisher) PublishEnvelope(ctx context.Context, partitionKey string, envelope []byte) error {
	msg := message.NewMessage(watermill.NewUUID(), envelope)
	msg.Metadata.Set(PartitionKeyHeader, partitionKey)
	return p.Publish(ctx, p.SubjectForKey(partitionKey), msg)
}

// PublishDeadLetter implements DeadLetterMirror.
func (p *Publisher) PublishDeadLetter(ctx context.Context, dl *DeadLetter) error {
	data, err := json.Marshal(dl)
	if err != nil {
		return fmt.Errorf("marshal dead letter: %w", err)
	}
	msg := message.NewMessage(dl.ID, data)
	msg.Metadata.Set("handler", dl.Handler)
	msg.Metadata.Set("partition", strconv.Itoa(int(dl.Partition)))
	msg.Metadata.Set("offset", strconv.FormatInt(dl.Offset, 10))
	return p.Publish(ctx, DeadLetterSubject(p.cfg.DLQPrefix, dl.Handler), msg)
}

// Close gracefully shuts down the publisher.
func (p *Publisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return nil
	}
	p.closed = true
	return p.publisher.Close()
}
