// Marquee - Streaming Catalog Overlay and Metadata Enrichment
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/marquee

/*
Package services provides suture.Service wrappers for components whose
lifecycle does not already match suture's Serve(ctx) pattern.

The cache sweeper, credential manager and bridge hub implement Serve and
String themselves and are added to the tree directly. Only the HTTP server
needs translation: HTTPServerService binds its own listener, serves until
the context is canceled, then calls Shutdown with a bounded timeout.

	server := &http.Server{Handler: router.SetupChi()}
	tree.AddAPIService(services.NewHTTPServerService(server, ":8620", 10*time.Second))
*/
package services
