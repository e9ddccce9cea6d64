// Marquee - Streaming Catalog Overlay and Metadata Enrichment
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/marquee

/*
Package supervisor provides process supervision for Marquee using suture v4.

Long-running components are organized into three layers so a crash in one
does not take down the others:

	RootSupervisor ("marquee")
	├── DataSupervisor ("data-layer")
	│   └── cache.Sweeper
	├── SessionSupervisor ("session-layer")
	│   ├── credential.Manager (expiry sweep)
	│   └── bridge.Hub
	└── APISupervisor ("api-layer")
	    └── services.HTTPServerService

If the bridge hub panics, suture restarts it with backoff while the HTTP
server keeps serving cached catalog data.

# Logging

Supervisor events go through sutureslog. Marquee logs with zerolog, so the
caller passes a *slog.Logger built on logging.NewSlogHandler:

	tree, err := supervisor.NewSupervisorTree(logging.NewSlogLogger(), supervisor.TreeConfig{
	    FailureThreshold: 5,
	    FailureBackoff:   15 * time.Second,
	    ShutdownTimeout:  10 * time.Second,
	})
	tree.AddDataService(cache.NewSweeper(store, time.Minute))
	tree.AddSessionService(manager)
	tree.AddSessionService(hub)
	tree.AddAPIService(services.NewHTTPServerService(server, addr, 10*time.Second))
	errCh := tree.ServeBackground(ctx)

# Shutdown

Canceling the context stops every layer. Services that miss the
ShutdownTimeout are listed by UnstoppedServiceReport.
*/
package supervisor
