package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"github.com/rs/zerolog"

	"github.com/wricardo/session-relay/relay/service"
	"github.com/wricardo/session-relay/relay/session"
)

// Server exposes relay introspection as MCP tools
type Server struct {
	relay     service.RelayService
	mcpServer *server.MCPServer
	log       zerolog.Logger
}

// NewServer creates an MCP server backed by relay, which may be the
// in-process service or a Client talking to a remote relay.
func NewServer(relay service.RelayService, version string, logger zerolog.Logger) *Server {
	s := &Server{
		relay: relay,
		log:   logger.With().Str("component", "mcp").Logger(),
	}

	s.mcpServer = server.NewMCPServer(
		"Session Relay",
		version,
		server.WithToolCapabilities(true),
		server.WithInstructions(`Session Relay - MCP Interface

The relay fans out text payloads from one producer to every consumer of a
session. Producers connect to /create?sessionId=<id>, consumers to
/join?sessionId=<id>. These tools are read-only.

AVAILABLE TOOLS:
- list_sessions: List live sessions with their consumer counts
- get_session: Details of one session
- relay_stats: Relay-wide totals and uptime`),
	)

	s.registerTools()
	return s
}

// registerTools registers all MCP tools
func (s *Server) registerTools() {
	s.mcpServer.AddTool(mcp.Tool{
		Name:        "list_sessions",
		Description: "List all live relay sessions",
		InputSchema: mcp.ToolInputSchema{
			Type:       "object",
			Properties: map[string]interface{}{},
		},
	}, s.handleListSessions)

	s.mcpServer.AddTool(mcp.Tool{
		Name:        "get_session",
		Description: "Get details of a specific session",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"session_id": map[string]interface{}{
					"type":        "string",
					"description": "Session ID to retrieve",
				},
			},
			Required: []string{"session_id"},
		},
	}, s.handleGetSession)

	s.mcpServer.AddTool(mcp.Tool{
		Name:        "relay_stats",
		Description: "Get relay-wide session, consumer and connection counts",
		InputSchema: mcp.ToolInputSchema{
			Type:       "object",
			Properties: map[string]interface{}{},
		},
	}, s.handleStats)
}

// MCPServer returns the underlying MCP server for stdio serving
func (s *Server) MCPServer() *server.MCPServer {
	return s.mcpServer
}

// ServeHTTP answers one JSON-RPC message per POST request
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	body, err := io.ReadAll(r.Body)
	if err != nil {
		http.Error(w, "Failed to read request", http.StatusBadRequest)
		return
	}
	defer r.Body.Close()

	response := s.mcpServer.HandleMessage(r.Context(), body)

	w.Header().Set("Content-Type", "application/json")
	responseData, err := json.Marshal(response)
	if err != nil {
		s.log.Error().Err(err).Msg("Failed to marshal MCP response")
		http.Error(w, "Failed to marshal response", http.StatusInternalServerError)
		return
	}
	w.Write(responseData)
}

// Tool handlers

func (s *Server) handleListSessions(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	sessions, err := s.relay.ListSessions(ctx)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	return mcp.NewToolResultText(formatSessions(sessions)), nil
}

func (s *Server) handleGetSession(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, _ := request.Params.Arguments.(map[string]interface{})
	sessionID, _ := args["session_id"].(string)
	if sessionID == "" {
		return mcp.NewToolResultError("session_id is required"), nil
	}

	info, err := s.relay.GetSession(ctx, sessionID)
	if err != nil {
		if errors.Is(err, session.ErrSessionNotFound) {
			return mcp.NewToolResultError(fmt.Sprintf("No live session %q. It may not have been created yet or its producer has disconnected.", sessionID)), nil
		}
		return mcp.NewToolResultError(err.Error()), nil
	}

	return mcp.NewToolResultText(formatSessionInfo(info)), nil
}

func (s *Server) handleStats(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	stats, err := s.relay.Stats(ctx)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	return mcp.NewToolResultText(formatStats(stats)), nil
}

// Formatting helpers

func formatSessions(sessions []*service.SessionInfo) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Live Sessions (%d):\n", len(sessions))
	if len(sessions) == 0 {
		b.WriteString("\nNo producers are connected.\n")
		return b.String()
	}
	b.WriteString("\n")
	for _, info := range sessions {
		fmt.Fprintf(&b, "- %s (Consumers: %d, Payloads: %d, Created: %s)\n",
			info.ID, info.Consumers, info.Payloads, info.CreatedAt.Format("15:04:05"))
	}
	return b.String()
}

func formatSessionInfo(info *service.SessionInfo) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Session: %s\n", info.ID)
	fmt.Fprintf(&b, "Producer: %s\n", info.ProducerID)
	fmt.Fprintf(&b, "Consumers: %d\n", info.Consumers)
	fmt.Fprintf(&b, "Payloads relayed: %d\n", info.Payloads)
	fmt.Fprintf(&b, "Created: %s (%.0fs ago)\n", info.CreatedAt.Format("2006-01-02 15:04:05"), info.AgeSeconds)
	return b.String()
}

func formatStats(stats *service.Stats) string {
	var b strings.Builder
	b.WriteString("Relay Stats:\n")
	fmt.Fprintf(&b, "Sessions: %d\n", stats.Sessions)
	fmt.Fprintf(&b, "Consumers: %d\n", stats.Consumers)
	fmt.Fprintf(&b, "Open connections: %d\n", stats.Connections)
	fmt.Fprintf(&b, "Payloads relayed: %d\n", stats.Payloads)
	fmt.Fprintf(&b, "Uptime: %s\n", stats.Uptime)
	return b.String()
}
