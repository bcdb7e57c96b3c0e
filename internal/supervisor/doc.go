// Pulse - Activity Fan-out and Search Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/pulse

/*
Package supervisor provides process supervision for Pulse using suture v4.

# Overview

The supervisor tree organizes services into three layers:

	RootSupervisor ("pulse")
	├── DataSupervisor ("data-layer")
	│   ├── presence-batcher
	│   ├── search-indexer
	│   └── dlq-cleanup
	├── MessagingSupervisor ("messaging-layer")
	│   ├── ingestion-gateway
	│   └── websocket-gateway
	└── APISupervisor ("api-layer")
	    └── http-server

Crashed services are restarted with suture's failure decay and backoff.
Supervisor events are logged through sutureslog into the zerolog output.

# Ordered Shutdown

Cancelling the root context stops every layer at once. Pulse instead calls
DrainInOrder before cancelling, which removes services one by one:

	tree.DrainInOrder(timeout, ingestTok, indexerTok, batcherTok, wsTok, httpTok)

# Usage Example

	tree, err := supervisor.NewSupervisorTree(logging.NewSlogLogger(), supervisor.DefaultTreeConfig())
	if err != nil {
	    return err
	}
	batcherTok := tree.AddDataService(batcher)
	httpTok := tree.AddAPIService(services.NewHTTPServerService(server, 10*time.Second))
	errCh := tree.ServeBackground(ctx)
*/
package supervisor
