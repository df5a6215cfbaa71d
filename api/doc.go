// Package api provides the HTTP surface of the session relay.
//
// The api package implements:
//   - Mounting the WebSocket lifecycle handler at /create and /join
//   - Read-only JSON endpoints describing live sessions
//   - Health and Prometheus metrics endpoints
//
// Endpoints:
//
// WebSocket:
//   - GET /create?sessionId=<id> - Connect as the producer of a new session
//   - GET /join?sessionId=<id> - Connect as a consumer of an existing session
//
// Introspection:
//   - GET /api/sessions - List live sessions
//   - GET /api/sessions/{id} - Get one session (404 when it does not exist)
//   - GET /api/stats - Relay-wide counts and uptime
//
// Operations:
//   - GET /healthz - Liveness probe
//   - GET /metrics - Prometheus exposition
//   - POST /mcp - MCP JSON-RPC endpoint, when mounted with HandleMCP
//
// Any other path answers 404 with a JSON error body and is never upgraded.
//
// Usage:
//
//	relayService := service.NewRelayService(registry, handler)
//	server := api.NewServer(relayService, handler, m.Handler(), logger)
//	http.ListenAndServe(":3000", server)
//
// Response Format:
//
// All /api responses are JSON. Errors use the shape {"error": "message"}.
package api
