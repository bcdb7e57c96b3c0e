// Pulse - Activity Fan-out and Search Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/pulse

package command

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/spf13/cobra"

	"github.com/tomtom215/pulse/internal/eventprocessor"
	"github.com/tomtom215/pulse/internal/events"
)

// EnvelopePublisher sends one encoded envelope to the broker.
type EnvelopePublisher interface {
	PublishEnvelope(ctx context.Context, partitionKey string, envelope []byte) error
	Close() error
}

// publishTarget is where publish sends envelopes.
type publishTarget struct {
	Via           string // "nats" or "kafka"
	NATSURL       string
	SubjectPrefix string
	Partitions    int
	KafkaBrokers  []string
	KafkaTopic    string
}

// openPublisher connects to the broker named by t. Tests replace it.
var openPublisher = func(t publishTarget) (EnvelopePublisher, error) {
	switch t.Via {
	case "kafka":
		return newKafkaPublisher(t.KafkaBrokers, t.KafkaTopic)
	case "nats":
		cfg := eventprocessor.DefaultPublisherConfig(t.NATSURL)
		cfg.SubjectPrefix = t.SubjectPrefix
		cfg.Partitions = t.Partitions
		cfg.MaxReconnects = 3
		return eventprocessor.NewPublisher(cfg, eventprocessor.NewWatermillLogger())
	default:
		return nil, fmt.Errorf("unknown broker %q: want nats or kafka", t.Via)
	}
}

// NewPublishCmd creates the publish command.
func NewPublishCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "publish",
		Short: "Publish an activity event",
		Long: `Encode an activity envelope and publish it to the partition of its
target (or actor) id.

  pulsectl publish --type presence_ping --actor alice
  pulsectl publish --type post_created --actor alice --target p1 \
      --payload '{"content":"hello","audience":["bob"]}'
  pulsectl publish --via kafka --type liked --actor bob --target p1 \
      --payload '{"recipientId":"alice"}'`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			typeName, _ := cmd.Flags().GetString("type")
			actor, _ := cmd.Flags().GetString("actor")
			target, _ := cmd.Flags().GetString("target")
			payload, _ := cmd.Flags().GetString("payload")
			timeout, _ := cmd.Flags().GetDuration("timeout")

			var pt publishTarget
			pt.Via, _ = cmd.Flags().GetString("via")
			pt.NATSURL, _ = cmd.Flags().GetString("nats-url")
			pt.SubjectPrefix, _ = cmd.Flags().GetString("subject-prefix")
			pt.Partitions, _ = cmd.Flags().GetInt("partitions")
			brokers, _ := cmd.Flags().GetString("kafka-brokers")
			pt.KafkaBrokers = splitList(brokers)
			pt.KafkaTopic, _ = cmd.Flags().GetString("kafka-topic")

			envelope, key, err := buildEnvelope(typeName, actor, target, payload, time.Now())
			if err != nil {
				return writeCommandError(cmd, err)
			}

			pub, err := openPublisher(pt)
			if err != nil {
				return writeCommandError(cmd, err)
			}
			defer pub.Close()

			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()
			if err := pub.PublishEnvelope(ctx, key, envelope); err != nil {
				return writeCommandError(cmd, err)
			}

			fmt.Fprintf(cmd.OutOrStdout(), "published %s (partition key %s) via %s\n", typeName, key, pt.Via)
			return nil
		},
	}

	cmd.Flags().String("type", "", "event type, e.g. post_created, liked, presence_ping")
	cmd.Flags().String("actor", "", "actor user id")
	cmd.Flags().String("target", "", "target id (post, group or entity)")
	cmd.Flags().String("payload", "{}", "event payload as a JSON object")
	cmd.Flags().String("via", "nats", "broker: nats or kafka")
	cmd.Flags().String("nats-url", envOr("NATS_URL", "nats://127.0.0.1:4222"), "NATS server URL (default $NATS_URL)")
	cmd.Flags().String("subject-prefix", "pulse.events", "partition subject prefix")
	cmd.Flags().Int("partitions", 8, "number of partitions")
	cmd.Flags().String("kafka-brokers", envOr("KAFKA_BROKERS", "localhost:9092"), "comma-separated Kafka brokers (default $KAFKA_BROKERS)")
	cmd.Flags().String("kafka-topic", "pulse.events", "Kafka topic")
	cmd.Flags().Duration("timeout", 10*time.Second, "publish timeout")

	return cmd
}

// buildEnvelope encodes the event and decodes it again so malformed input is
// rejected before anything reaches the broker.
func buildEnvelope(typeName, actor, target, payload string, ts time.Time) ([]byte, string, error) {
	t, ok := events.ParseType(typeName)
	if !ok {
		return nil, "", fmt.Errorf("unknown event type %q", typeName)
	}
	if actor == "" {
		return nil, "", errors.New("--actor is required")
	}
	if !json.Valid([]byte(payload)) {
		return nil, "", errors.New("--payload must be valid JSON")
	}

	envelope, err := events.NewEnvelope(t, actor, target, json.RawMessage(payload), ts)
	if err != nil {
		return nil, "", err
	}
	if _, err := events.Decode(envelope); err != nil {
		return nil, "", err
	}
	return envelope, events.PartitionKeyOf(actor, target), nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
