// Package mcp provides a Model Context Protocol interface to the session relay.
//
// The mcp package implements:
//   - MCP tools for inspecting live sessions
//   - An HTTP handler answering JSON-RPC messages at /mcp
//   - A REST client so a stdio MCP server can inspect a remote relay
//
// MCP Tools:
//
// The package exposes the following read-only tools:
//   - list_sessions: List live sessions with consumer and payload counts
//   - get_session: Get details of one session
//   - relay_stats: Relay-wide totals and uptime
//
// Transport Modes:
//
// The server supports two transport modes:
//   - HTTP: Server is an http.Handler mounted by the relay at POST /mcp
//   - Stdio: "relay mcp --url http://host:3000" serves MCPServer over stdio,
//     backed by a Client that calls the relay's /api endpoints
//
// Usage:
//
//	// In process
//	mcpServer := mcp.NewServer(relayService, version, logger)
//	apiServer.HandleMCP(mcpServer)
//
//	// Remote relay over stdio
//	mcpServer := mcp.NewServer(mcp.NewClient("http://127.0.0.1:3000"), version, logger)
//	server.ServeStdio(mcpServer.MCPServer())
package mcp
