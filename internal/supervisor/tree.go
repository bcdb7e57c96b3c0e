// Pulse - Activity Fan-out and Search Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/pulse

package supervisor

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/thejerf/suture/v4"
	"github.com/thejerf/sutureslog"
)

// TreeConfig holds supervisor tree configuration.
type TreeConfig struct {
	// FailureThreshold is the number of failures before entering backoff.
	// Default: 5
	FailureThreshold float64

	// FailureDecay is the rate at which failures decay in seconds.
	// Default: 30
	FailureDecay float64

	// FailureBackoff is the duration to wait when threshold is exceeded.
	// Default: 15s
	FailureBackoff time.Duration

	// ShutdownTimeout is the maximum time to wait for one service to stop.
	// Default: 10s
	ShutdownTimeout time.Duration
}

// DefaultTreeConfig returns suture's built-in defaults.
func DefaultTreeConfig() TreeConfig {
	return TreeConfig{
		FailureThreshold: 5.0,
		FailureDecay:     30.0,
		FailureBackoff:   15 * time.Second,
		ShutdownTimeout:  10 * time.Second,
	}
}

// Layer identifies one of the child supervisors.
type Layer int

const (
	// LayerData holds the presence batcher, the search indexer and DLQ cleanup.
	LayerData Layer = iota
	// LayerMessaging holds the ingestion gateway and the socket gateway.
	LayerMessaging
	// LayerAPI holds the HTTP server.
	LayerAPI
)

func (l Layer) String() string {
	switch l {
	case LayerData:
		return "data-layer"
	case LayerMessaging:
		return "messaging-layer"
	case LayerAPI:
		return "api-layer"
	default:
		return fmt.Sprintf("layer(%d)", int(l))
	}
}

// Token identifies a service added to the tree together with its layer.
type Token struct {
	Layer Layer
	Name  string
	token suture.ServiceToken
}

// SupervisorTree manages the hierarchical supervisor structure for Pulse.
//
// The tree is organized into three layers:
//   - data: presence batcher, search indexer pool, DLQ cleanup
//   - messaging: ingestion gateway, socket gateway
//   - api: HTTP server
//
// A crash in ingestion restarts only the messaging layer's service; the API
// keeps answering search and health requests.
type SupervisorTree struct {
	root   *suture.Supervisor
	layers map[Layer]*suture.Supervisor
	logger *slog.Logger
	config TreeConfig
}

// NewSupervisorTree creates a new supervisor tree with the given configuration.
func NewSupervisorTree(logger *slog.Logger, config TreeConfig) (*SupervisorTree, error) {
	if logger == nil {
		return nil, fmt.Errorf("supervisor: logger is required")
	}

	// Apply defaults for zero values
	def := DefaultTreeConfig()
	if config.FailureThreshold == 0 {
		config.FailureThreshold = def.FailureThreshold
	}
	if config.FailureDecay == 0 {
		config.FailureDecay = def.FailureDecay
	}
	if config.FailureBackoff == 0 {
		config.FailureBackoff = def.FailureBackoff
	}
	if config.ShutdownTimeout == 0 {
		config.ShutdownTimeout = def.ShutdownTimeout
	}

	// MustHook has a pointer receiver.
	handler := &sutureslog.Handler{Logger: logger}

	rootSpec := suture.Spec{
		EventHook:        handler.MustHook(),
		FailureThreshold: config.FailureThreshold,
		FailureDecay:     config.FailureDecay,
		FailureBackoff:   config.FailureBackoff,
		Timeout:          config.ShutdownTimeout,
	}

	// Child supervisors inherit the EventHook when added to the root.
	childSpec := suture.Spec{
		FailureThreshold: config.FailureThreshold,
		FailureDecay:     config.FailureDecay,
		FailureBackoff:   config.FailureBackoff,
		Timeout:          config.ShutdownTimeout,
	}

	root := suture.New("pulse", rootSpec)
	layers := make(map[Layer]*suture.Supervisor, 3)
	for _, l := range []Layer{LayerData, LayerMessaging, LayerAPI} {
		sup := suture.New(l.String(), childSpec)
		root.Add(sup)
		layers[l] = sup
	}

	return &SupervisorTree{
		root:   root,
		layers: layers,
		logger: logger,
		config: config,
	}, nil
}

// Root returns the root supervisor for direct access if needed.
func (t *SupervisorTree) Root() *suture.Supervisor {
	return t.root
}

// Add adds svc to layer.
func (t *SupervisorTree) Add(layer Layer, svc suture.Service) Token {
	sup, ok := t.layers[layer]
	if !ok {
		panic(fmt.Sprintf("supervisor: unknown layer %d", int(layer)))
	}
	return Token{Layer: layer, Name: serviceName(svc), token: sup.Add(svc)}
}

// AddDataService adds a service to the data layer supervisor.
func (t *SupervisorTree) AddDataService(svc suture.Service) Token {
	return t.Add(LayerData, svc)
}

// AddMessagingService adds a service to the messaging layer supervisor.
func (t *SupervisorTree) AddMessagingService(svc suture.Service) Token {
	return t.Add(LayerMessaging, svc)
}

// AddAPIService adds a service to the API layer supervisor.
func (t *SupervisorTree) AddAPIService(svc suture.Service) Token {
	return t.Add(LayerAPI, svc)
}

// RemoveAndWait removes a service and waits up to timeout for it to stop.
// A zero timeout uses the configured ShutdownTimeout.
func (t *SupervisorTree) RemoveAndWait(tok Token, timeout time.Duration) error {
	if timeout <= 0 {
		timeout = t.config.ShutdownTimeout
	}
	return t.layers[tok.Layer].RemoveAndWait(tok.token, timeout)
}

// Serve starts the supervisor tree and blocks until the context is canceled.
func (t *SupervisorTree) Serve(ctx context.Context) error {
	return t.root.Serve(ctx)
}

// ServeBackground starts the supervisor tree in a background goroutine.
// Returns a channel that receives the error (or nil) when the supervisor stops.
func (t *SupervisorTree) ServeBackground(ctx context.Context) <-chan error {
	return t.root.ServeBackground(ctx)
}

// UnstoppedServiceReport returns information about services that failed to stop
// within the configured shutdown timeout.
func (t *SupervisorTree) UnstoppedServiceReport() ([]suture.UnstoppedService, error) {
	return t.root.UnstoppedServiceReport()
}

func serviceName(svc suture.Service) string {
	if s, ok := svc.(fmt.Stringer); ok {
		return s.String()
	}
	return fmt.Sprintf("%T", svc)
}
