// Pulse - Activity Fan-out and Search Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/pulse

package main

import (
	"context"
	"errors"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/tomtom215/pulse/internal/api"
	"github.com/tomtom215/pulse/internal/auth"
	"github.com/tomtom215/pulse/internal/config"
	"github.com/tomtom215/pulse/internal/eventprocessor"
	"github.com/tomtom215/pulse/internal/logging"
	"github.com/tomtom215/pulse/internal/metrics"
	"github.com/tomtom215/pulse/internal/presence"
	"github.com/tomtom215/pulse/internal/search"
	"github.com/tomtom215/pulse/internal/supervisor"
	"github.com/tomtom215/pulse/internal/supervisor/services"
	ws "github.com/tomtom215/pulse/internal/websocket"
)

//nolint:gocyclo // Main initialization function with sequential setup steps
func main() {
	// Load configuration first to get logging settings
	cfg, err := config.Load()
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to load configuration")
	}

	logging.Init(logging.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Caller: cfg.Logging.Caller,
	})

	logging.Info().
		Str("source", cfg.Ingest.Source).
		Int("partitions", cfg.Ingest.Partitions).
		Str("presence_store", cfg.Presence.Store).
		Str("search_engine", cfg.Search.Engine).
		Msg("Starting Pulse with supervisor tree")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// === BROKER ===

	var natsComponents *NATSComponents
	if natsRequired(cfg) {
		natsComponents, err = InitNATS(ctx, cfg)
		if err != nil {
			logging.Fatal().Err(err).Msg("Failed to initialize NATS")
		}
		defer natsComponents.Shutdown(context.Background())
	}

	source, err := initSource(cfg, natsComponents)
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to create ingestion source")
	}

	// === DEAD LETTERS AND METRICS ===

	dlqCfg := eventprocessor.DefaultDLQConfig()
	dlqCfg.MaxEntries = cfg.Ingest.DLQMaxEntries
	dlqCfg.RetentionTime = cfg.Ingest.DLQRetention
	dlqCfg.CleanupInterval = cfg.Ingest.DLQCleanupInterval

	var mirror eventprocessor.DeadLetterMirror
	if pub := natsComponents.Publisher(); pub != nil {
		mirror = pub
	}
	dlq := eventprocessor.NewDLQ(dlqCfg, mirror)
	aggregator := metrics.NewAggregator()

	// === PRESENCE ===

	presenceStore, err := initPresenceStore(ctx, cfg)
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to initialize presence store")
	}
	if c, ok := presenceStore.(io.Closer); ok {
		defer closeQuietly("presence-store", c)
	}

	policy := retryPolicy(cfg)
	batcher := presence.NewBatcher(presence.Config{
		FlushInterval: cfg.Presence.FlushInterval,
		MaxDirty:      cfg.Presence.MaxDirty,
		FlushTimeout:  cfg.Presence.OpTimeout,
		ActiveWindow:  cfg.Presence.ActiveWindow,
		Retry:         policy,
	}, presenceStore)

	// === SEARCH ===

	searchComponents, err := initSearch(ctx, cfg)
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to initialize search")
	}
	defer closeQuietly("search", searchComponents.registry)

	indexer := search.NewIndexer(search.IndexerConfig{
		Workers:   cfg.Search.Workers,
		QueueSize: cfg.Search.QueueSize,
		OpTimeout: cfg.Search.OpTimeout,
		Retry:     policy,
	}, searchComponents.writes, dlq, aggregator)

	// === SOCKET GATEWAY ===

	verifier, err := auth.NewTokenVerifier(cfg.Security.JWTSecret, cfg.Security.TokenTTL)
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to create token verifier")
	}

	wsGateway := ws.NewGateway(ws.Config{
		SendQueueSize:  cfg.WebSocket.SendQueueSize,
		AuthTimeout:    cfg.WebSocket.AuthTimeout,
		WriteWait:      cfg.WebSocket.WriteWait,
		PongWait:       cfg.WebSocket.PongWait,
		MaxMessageSize: cfg.WebSocket.MaxMessageSize,
		InboundRate:    cfg.WebSocket.InboundRate,
		InboundBurst:   cfg.WebSocket.InboundBurst,
		AllowedOrigins: cfg.Security.CORSOrigins,
	}, ws.NewSessionManager(), verifier, batcher)
	batcher.SetNotifier(wsGateway)

	// === INGESTION ===

	ingest := eventprocessor.NewGateway(eventprocessor.GatewayConfig{
		Retry:          policy,
		AttemptTimeout: cfg.Ingest.AttemptTimeout,
	}, source, dlq, aggregator)
	ingest.Register("presence", presence.NewActivityHandler(batcher))
	ingest.Register("metrics", aggregator)
	ingest.Register(search.HandlerName, indexer)
	ingest.Register("fanout", wsGateway)

	// === HTTP ===

	checks := []api.ReadinessCheck{
		{Name: "search", Check: searchComponents.writes.Ping},
		{Name: "presence", Check: presenceStore.Ping},
	}
	if natsComponents != nil {
		checks = append(checks, api.ReadinessCheck{Name: "nats", Check: natsComponents.Ready})
	}

	handler := api.NewHandler(api.HandlerDeps{
		Search:        searchComponents.registry,
		Metrics:       aggregator,
		Presence:      batcher,
		PresenceStore: presenceStore,
		DLQ:           dlq,
		Checks:        checks,
	})

	mwCfg := api.DefaultMiddlewareConfig()
	mwCfg.CORSAllowedOrigins = cfg.Security.CORSOrigins
	mwCfg.RateLimitRequests = cfg.Security.RateLimitReqs
	mwCfg.RateLimitWindow = cfg.Security.RateLimitWindow
	mwCfg.RateLimitDisabled = cfg.Security.RateLimitDisabled

	server := &http.Server{
		Addr:         cfg.Server.Addr(),
		Handler:      api.NewRouter(handler, api.NewMiddleware(mwCfg), http.HandlerFunc(wsGateway.ServeWS)),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	// === SUPERVISOR TREE ===

	tree, err := supervisor.NewSupervisorTree(logging.NewSlogLogger(), supervisor.TreeConfig{
		FailureThreshold: cfg.Supervisor.FailureThreshold,
		FailureDecay:     cfg.Supervisor.FailureDecay,
		FailureBackoff:   cfg.Supervisor.FailureBackoff,
		ShutdownTimeout:  cfg.Supervisor.DrainTimeout,
	})
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to create supervisor tree")
	}

	// Data layer
	batcherTok := tree.AddDataService(batcher)
	indexerTok := tree.AddDataService(indexer)
	tree.AddDataService(dlq)

	// Messaging layer
	ingestTok := tree.AddMessagingService(ingest)
	wsTok := tree.AddMessagingService(wsGateway)

	// API layer
	httpTok := tree.AddAPIService(services.NewHTTPServerService(server, cfg.Server.ShutdownTimeout))
	logging.Info().Str("addr", server.Addr).Msg("HTTP server service added")

	// === START ===

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	logging.Info().Msg("Starting supervisor tree...")
	errCh := tree.ServeBackground(ctx)

	var treeErr error
	select {
	case sig := <-sigCh:
		logging.Info().Str("signal", sig.String()).Msg("Received shutdown signal, draining services")
		if err := tree.DrainInOrder(cfg.Supervisor.DrainTimeout,
			ingestTok, indexerTok, batcherTok, wsTok, httpTok,
		); err != nil {
			logging.Warn().Err(err).Msg("Ordered drain incomplete")
		}
		cancel()
		treeErr = <-errCh
	case treeErr = <-errCh:
		cancel()
	}
	if treeErr != nil && !errors.Is(treeErr, context.Canceled) {
		logging.Error().Err(treeErr).Msg("Supervisor tree error")
	}

	unstopped, _ := tree.UnstoppedServiceReport()
	if len(unstopped) > 0 {
		logging.Warn().Int("count", len(unstopped)).Msg("Services failed to stop within timeout")
		for _, svc := range unstopped {
			logging.Warn().Str("service", svc.Name).Msg("Service failed to stop")
		}
	}

	logging.Info().Msg("Pulse stopped gracefully")
}
