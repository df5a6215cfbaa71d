package mcp

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wricardo/session-relay/relay/service"
	"github.com/wricardo/session-relay/relay/session"
)

func newAPIServer(t *testing.T) *httptest.Server {
	t.Helper()

	mux := http.NewServeMux()
	mux.HandleFunc("/api/sessions", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]interface{}{
			"count":    1,
			"sessions": []service.SessionInfo{{ID: "alpha", Consumers: 2}},
		})
	})
	mux.HandleFunc("/api/sessions/alpha", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(service.SessionInfo{ID: "alpha", Consumers: 2, Payloads: 9})
	})
	mux.HandleFunc("/api/sessions/", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		json.NewEncoder(w).Encode(map[string]string{"error": "session not found"})
	})
	mux.HandleFunc("/api/stats", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(service.Stats{Sessions: 1, Consumers: 2})
	})

	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)
	return server
}

func TestClient_ListSessions(t *testing.T) {
	client := NewClient(newAPIServer(t).URL + "/")

	sessions, err := client.ListSessions(context.Background())
	require.NoError(t, err)
	require.Len(t, sessions, 1)
	assert.Equal(t, "alpha", sessions[0].ID)
	assert.Equal(t, 2, sessions[0].Consumers)
}

func TestClient_GetSession(t *testing.T) {
	client := NewClient(newAPIServer(t).URL)

	info, err := client.GetSession(context.Background(), "alpha")
	require.NoError(t, err)
	assert.Equal(t, uint64(9), info.Payloads)

	_, err = client.GetSession(context.Background(), "gone")
	assert.ErrorIs(t, err, session.ErrSessionNotFound)
}

func TestClient_Stats(t *testing.T) {
	client := NewClient(newAPIServer(t).URL)

	stats, err := client.Stats(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Sessions)
	assert.Equal(t, 2, stats.Consumers)
}

func TestClient_HTTPError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte("Internal Server Error"))
	}))
	defer server.Close()

	_, err := NewClient(server.URL).Stats(context.Background())
	require.Error(t, err)
	assert.Equal(t, "API error: 500", err.Error())
}

func TestClient_Unreachable(t *testing.T) {
	_, err := NewClient("http://127.0.0.1:1").ListSessions(context.Background())
	assert.Error(t, err)
}

// The MCP server works the same over the REST client as in process
func TestServerOverClient(t *testing.T) {
	s := NewServer(NewClient(newAPIServer(t).URL), "test", zerolog.Nop())

	result, err := s.handleGetSession(context.Background(), toolRequest("get_session", map[string]interface{}{"session_id": "gone"}))
	require.NoError(t, err)
	assert.True(t, result.IsError)
	assert.Contains(t, resultText(t, result), `No live session "gone"`)
}
