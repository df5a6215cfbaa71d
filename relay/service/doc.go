// Package service provides the read-only introspection layer of the session relay.
//
// The service package implements:
//   - Listing live sessions with their producer and consumer counts
//   - Looking up a single session by ID
//   - Relay-wide statistics (sessions, consumers, open connections)
//
// Core Interfaces:
//
// RelayService is the interface the HTTP API depends on. The default
// implementation reads from a session.Registry and, optionally, a
// ConnectionCounter such as the websocket Handler.
//
// Usage:
//
//	registry := session.NewRegistry(logger, nil)
//	handler := websocket.NewHandler(registry, opts, logger, nil)
//	relayService := service.NewRelayService(registry, handler)
//
//	stats, err := relayService.Stats(ctx)
//
// Nothing in this package mutates sessions; creation and teardown only
// happen through the WebSocket lifecycle.
package service
