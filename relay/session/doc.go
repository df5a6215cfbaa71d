// Package session provides the session registry for the relay.
//
// The session package implements:
//   - Request classification into producer and consumer bindings
//   - Thread-safe session creation, join, leave and teardown
//   - Snapshot-then-send fan-out of producer payloads
//   - Read-only session views for introspection
//
// Core Types:
//
// Registry owns the mapping from session ID to session state. A session exists
// only while its producer is connected: Create establishes it, Destroy removes
// it and hands back every consumer so the caller can close them.
//
// Binding is the role and session ID assigned to a connection by Classify. It
// is created once per connection and never changes.
//
// Conn is the narrow view of a connection the registry needs: an identity, a
// non-blocking Send and a Close. The transport owns the connection itself.
//
// Policies:
//
// A second Create for a live session ID is rejected with
// ErrSessionAlreadyExists and the existing producer stays bound. A Join for an
// unknown ID returns ErrSessionNotFound and the caller is expected to close the
// consumer. Leave and Destroy on unknown IDs are no-ops.
//
// Concurrency:
//
// Create, Destroy, Join and Leave are serialized by one mutex over the whole
// map. Broadcast copies the consumer set under the lock and sends outside it,
// so a consumer removed mid-broadcast is simply skipped or gets a failed send.
// Payloads from one producer reach each consumer in send order as long as the
// producer broadcasts from a single goroutine.
//
// Usage:
//
//	registry := session.NewRegistry(logger, nil)
//
//	if err := registry.Create("abc", producer); err != nil {
//		return err
//	}
//	if err := registry.Join("abc", consumer); errors.Is(err, session.ErrSessionNotFound) {
//		consumer.Close()
//	}
//
//	registry.Broadcast("abc", "hello")
//
//	for _, c := range registry.Destroy("abc") {
//		c.Close()
//	}
package session
