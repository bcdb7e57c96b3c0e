// Pulse - Activity Fan-out and Search Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/pulse

package main

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/tomtom215/pulse/internal/config"
	"github.com/tomtom215/pulse/internal/eventprocessor"
	"github.com/tomtom215/pulse/internal/logging"
	"github.com/tomtom215/pulse/internal/presence"
	"github.com/tomtom215/pulse/internal/retry"
	"github.com/tomtom215/pulse/internal/search"
)

// retryPolicy builds the policy shared by every ingestion handler, the
// presence flush and the indexer.
func retryPolicy(cfg *config.Config) *retry.Policy {
	p := retry.DefaultPolicy()
	p.MaxAttempts = cfg.Ingest.RetryMaxAttempts
	p.BaseDelay = cfg.Ingest.RetryBaseDelay
	p.MaxDelay = cfg.Ingest.RetryMaxDelay
	return p
}

// initPresenceStore opens the configured fast store.
func initPresenceStore(ctx context.Context, cfg *config.Config) (presence.Store, error) {
	if cfg.Presence.Store == "memory" {
		logging.Warn().Msg("Presence store is in-memory; last-active times are lost on restart")
		return presence.NewMemoryStore(), nil
	}

	redisCfg := presence.DefaultRedisConfig(cfg.Presence.RedisAddr)
	redisCfg.Password = cfg.Presence.RedisPassword
	redisCfg.DB = cfg.Presence.RedisDB
	redisCfg.Prefix = cfg.Presence.KeyPrefix
	redisCfg.TTL = cfg.Presence.KeyTTL
	if cfg.Presence.OpTimeout > 0 {
		redisCfg.OpTimeout = cfg.Presence.OpTimeout
	}

	store, err := presence.NewRedisStore(ctx, redisCfg)
	if err != nil {
		return nil, fmt.Errorf("open redis presence store: %w", err)
	}
	logging.Info().Str("addr", redisCfg.Addr).Str("prefix", redisCfg.Prefix).Msg("Redis presence store connected")
	return store, nil
}

// searchComponents groups the engines, the query registry and the write path.
type searchComponents struct {
	registry *search.Registry
	writes   search.Index
}

// initSearch opens badger and, when enabled, duckdb. The configured default
// engine is the primary; the other is a replica kept in sync by every write.
func initSearch(ctx context.Context, cfg *config.Config) (*searchComponents, error) {
	badgerIdx, err := search.OpenBadgerIndex(cfg.Search.BadgerPath)
	if err != nil {
		return nil, err
	}
	engines := []search.Index{badgerIdx}

	if cfg.Search.EnableDuckDB {
		duckIdx, err := search.OpenDuckDBIndex(ctx, cfg.Search.DuckDBPath)
		if err != nil {
			_ = badgerIdx.Close()
			return nil, err
		}
		engines = append(engines, duckIdx)
	}

	if strings.EqualFold(cfg.Search.Engine, search.EngineDuckDB) && len(engines) == 2 {
		engines[0], engines[1] = engines[1], engines[0]
	}

	names := make([]string, len(engines))
	for i, e := range engines {
		names[i] = e.Name()
	}
	logging.Info().Strs("engines", names).Str("default", engines[0].Name()).Msg("Search engines opened")

	return &searchComponents{
		registry: search.NewRegistry(engines[0], engines[1:]...),
		writes:   search.NewReplicatedIndex(engines[0], engines[1:]...),
	}, nil
}

// initSource builds the ingestion source selected by ingest.source.
func initSource(cfg *config.Config, nc *NATSComponents) (eventprocessor.Source, error) {
	switch cfg.Ingest.Source {
	case "kafka":
		src, err := eventprocessor.NewKafkaSource(eventprocessor.KafkaSourceConfig{
			Brokers:  cfg.Kafka.Brokers,
			Topic:    cfg.Kafka.Topic,
			GroupID:  cfg.Kafka.GroupID,
			ClientID: cfg.Kafka.ClientID,
			MaxWait:  cfg.Kafka.MaxWait,
		})
		if err != nil {
			return nil, err
		}
		logging.Info().Strs("brokers", cfg.Kafka.Brokers).Str("topic", cfg.Kafka.Topic).Msg("Kafka ingestion source created")
		return src, nil
	default:
		src, err := nc.Source(cfg)
		if err != nil {
			return nil, err
		}
		logging.Info().Int("partitions", cfg.Ingest.Partitions).Msg("JetStream ingestion source created")
		return src, nil
	}
}

// closeQuietly closes c and logs a failure.
func closeQuietly(name string, c io.Closer) {
	if err := c.Close(); err != nil {
		logging.Error().Err(err).Str("component", name).Msg("Error closing component")
	}
}
