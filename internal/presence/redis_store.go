// Pulse - Activity Fan-out and Search Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/pulse

package presence

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	gobreaker "github.com/sony/gobreaker/v2"

	"github.com/tomtom215/pulse/internal/breaker"
)

// RedisConfig configures the Redis-backed presence store.
type RedisConfig struct {
	// Addr is the Redis server address (e.g., "localhost:6379").
	Addr string

	Password string
	DB       int

	// Prefix is prepended to the user id, followed by a colon.
	Prefix string

	// TTL expires presence keys; 0 keeps them forever.
	TTL time.Duration

	// OpTimeout bounds every Redis call.
	OpTimeout time.Duration

	PoolSize int
}

// DefaultRedisConfig returns defaults for addr.
func DefaultRedisConfig(addr string) RedisConfig {
	return RedisConfig{
		Addr:      addr,
		Prefix:    "pulse:presence",
		TTL:       30 * 24 * time.Hour,
		OpTimeout: 2 * time.Second,
		PoolSize:  10,
	}
}

// RedisStore writes presence records to Redis with one MSET per flush.
type RedisStore struct {
	cfg    RedisConfig
	client *redis.Client
	cb     *gobreaker.CircuitBreaker[any]
}

// NewRedisStore connects to Redis and verifies the connection.
func NewRedisStore(ctx context.Context, cfg RedisConfig) (*RedisStore, error) {
	if cfg.OpTimeout <= 0 {
		cfg.OpTimeout = 2 * time.Second
	}
	if cfg.Prefix == "" {
		cfg.Prefix = "pulse:presence"
	}

	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     cfg.PoolSize,
		ReadTimeout:  cfg.OpTimeout,
		WriteTimeout: cfg.OpTimeout,
	})

	pingCtx, cancel := context.WithTimeout(ctx, cfg.OpTimeout)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("connect to redis %s: %w", cfg.Addr, err)
	}

	return &RedisStore{
		cfg:    cfg,
		client: client,
		cb:     breaker.New(breaker.DefaultConfig("presence-redis")),
	}, nil
}

// Key returns the Redis key for userID.
func (s *RedisStore) Key(userID string) string {
	return s.cfg.Prefix + ":" + userID
}

// WriteBatch implements Store. The MSET and the per-key PEXPIREs go out in
// one pipeline.
func (s *RedisStore) WriteBatch(ctx context.Context, records []Record) error {
	if len(records) == 0 {
		return nil
	}

	pairs := make([]any, 0, len(records)*2)
	for _, r := range records {
		pairs = append(pairs, s.Key(r.UserID), r.LastActiveAt.UnixMilli())
	}

	_, err := s.cb.Execute(func() (any, error) {
		opCtx, cancel := context.WithTimeout(ctx, s.cfg.OpTimeout)
		defer cancel()

		_, err := s.client.Pipelined(opCtx, func(pipe redis.Pipeliner) error {
			pipe.MSet(opCtx, pairs...)
			if s.cfg.TTL > 0 {
				for _, r := range records {
					pipe.PExpire(opCtx, s.Key(r.UserID), s.cfg.TTL)
				}
			}
			return nil
		})
		return nil, err
	})
	if err != nil {
		return s.wrap("write batch", err)
	}
	return nil
}

// LastActive implements Store.
func (s *RedisStore) LastActive(ctx context.Context, userID string) (time.Time, error) {
	v, err := s.cb.Execute(func() (any, error) {
		opCtx, cancel := context.WithTimeout(ctx, s.cfg.OpTimeout)
		defer cancel()

		raw, err := s.client.Get(opCtx, s.Key(userID)).Result()
		if errors.Is(err, redis.Nil) {
			return int64(0), nil
		}
		if err != nil {
			return nil, err
		}
		ms, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("parse %q: %w", raw, err)
		}
		return ms, nil
	})
	if err != nil {
		return time.Time{}, s.wrap("read", err)
	}

	ms, _ := v.(int64)
	if ms == 0 {
		return time.Time{}, nil
	}
	return time.UnixMilli(ms).UTC(), nil
}

// Ping implements Store.
func (s *RedisStore) Ping(ctx context.Context) error {
	opCtx, cancel := context.WithTimeout(ctx, s.cfg.OpTimeout)
	defer cancel()
	if err := s.client.Ping(opCtx).Err(); err != nil {
		return s.wrap("ping", err)
	}
	return nil
}

// Close closes the Redis client.
func (s *RedisStore) Close() error {
	return s.client.Close()
}

func (s *RedisStore) wrap(op string, err error) error {
	if breaker.IsOpen(err) {
		return fmt.Errorf("redis %s: %w: %w", op, ErrStoreUnavailable, err)
	}
	var netErr interface{ Timeout() bool }
	if (errors.As(err, &netErr) && netErr.Timeout()) || errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("redis %s: %w: %w", op, ErrStoreUnavailable, err)
	}
	return fmt.Errorf("redis %s: %w", op, err)
}
