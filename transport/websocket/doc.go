// Package websocket provides the WebSocket transport for the session relay.
//
// The websocket package implements:
//   - Request classification and upgrade for /create and /join
//   - The per-connection lifecycle: upgrading, active, closing, closed
//   - Non-blocking, ordered outbound delivery per connection
//   - Keepalive pings and read deadlines
//   - Session teardown when a producer disconnects
//
// Architecture:
//
// Handler is an http.Handler. Each accepted request is classified once into a
// session.Binding, upgraded, and wrapped in a Conn. The request goroutine then
// reads frames for the life of the connection while a dedicated writer
// goroutine drains the Conn's outbound queue and sends pings.
//
// Producers create their session on admission and every text frame they send
// is broadcast through the session.Registry. Consumers join an existing
// session on admission and anything they send is discarded.
//
// Closing:
//
// A producer disconnect destroys the session and closes each remaining
// consumer with CloseSessionEnded. A consumer joining an unknown session is
// closed with CloseSessionNotFound; a second producer for a live session is
// closed with CloseSessionExists. Requests with no sessionId are refused with
// 400 and unknown paths with 404, both before the upgrade.
//
// Usage:
//
//	registry := session.NewRegistry(logger, nil)
//	handler := websocket.NewHandler(registry, websocket.DefaultOptions(), logger, nil)
//	http.Handle("/create", handler)
//	http.Handle("/join", handler)
//
// Concurrency:
//
// Every connection runs on its own goroutines. Send only appends to the
// connection's queue, so a slow consumer never stalls the producer that is
// broadcasting to it; once the queue is full further sends fail for that
// consumer alone.
package websocket
