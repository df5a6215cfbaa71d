package websocket

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wricardo/session-relay/relay/session"
)

// connPair returns a server-side Conn whose writer has not been started
// and the client end of the same socket.
func connPair(t *testing.T, opts Options) (*Conn, *websocket.Conn) {
	t.Helper()

	upgraded := make(chan *websocket.Conn, 1)
	upgrader := websocket.Upgrader{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ws, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		upgraded <- ws
	}))
	t.Cleanup(server.Close)

	client, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(server.URL, "http"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { client.Close() })

	var ws *websocket.Conn
	select {
	case ws = <-upgraded:
	case <-time.After(2 * time.Second):
		t.Fatal("server side was never upgraded")
	}

	binding := session.Binding{Role: session.RoleConsumer, SessionID: "pair"}
	return newConn(ws, binding, opts, zerolog.Nop()), client
}

func TestConn_Identity(t *testing.T) {
	a, _ := connPair(t, DefaultOptions())
	b, _ := connPair(t, DefaultOptions())

	assert.NotEmpty(t, a.ID())
	assert.NotEqual(t, a.ID(), b.ID())
	assert.Equal(t, session.Binding{Role: session.RoleConsumer, SessionID: "pair"}, a.Binding())
	assert.Equal(t, StateUpgrading, a.State())
}

func TestConn_SendQueueFull(t *testing.T) {
	opts := DefaultOptions()
	opts.SendQueueSize = 2
	c, _ := connPair(t, opts)

	require.NoError(t, c.Send("a"))
	require.NoError(t, c.Send("b"))
	assert.ErrorIs(t, c.Send("c"), ErrSendQueueFull)
}

func TestConn_SendAfterClose(t *testing.T) {
	c, _ := connPair(t, DefaultOptions())

	require.NoError(t, c.Close())
	require.NoError(t, c.Close())
	assert.ErrorIs(t, c.Send("late"), ErrConnClosed)
}

func TestConn_WritesInOrder(t *testing.T) {
	c, client := connPair(t, DefaultOptions())
	go c.writePump()

	for _, p := range []string{"one", "two", "three"} {
		require.NoError(t, c.Send(p))
	}

	for _, want := range []string{"one", "two", "three"} {
		assert.Equal(t, want, readText(t, client))
	}

	c.Close()
	c.Wait()
	assert.Equal(t, StateClosed, c.State())
}

func TestConn_CloseFlushesQueue(t *testing.T) {
	c, client := connPair(t, DefaultOptions())

	require.NoError(t, c.Send("queued-1"))
	require.NoError(t, c.Send("queued-2"))
	c.CloseWith(CloseSessionEnded, "session ended")
	go c.writePump()

	assert.Equal(t, "queued-1", readText(t, client))
	assert.Equal(t, "queued-2", readText(t, client))
	assert.Equal(t, CloseSessionEnded, readCloseCode(t, client))

	c.Wait()
}

func TestConn_FirstCloseCodeWins(t *testing.T) {
	c, client := connPair(t, DefaultOptions())
	go c.writePump()

	c.CloseWith(CloseSessionNotFound, "session not found")
	c.CloseWith(websocket.CloseNormalClosure, "")

	assert.Equal(t, CloseSessionNotFound, readCloseCode(t, client))
}

func TestConn_ReceiveSkipsBinary(t *testing.T) {
	c, client := connPair(t, DefaultOptions())
	c.prepareRead()

	require.NoError(t, client.WriteMessage(websocket.BinaryMessage, []byte{0x01}))
	require.NoError(t, client.WriteMessage(websocket.TextMessage, []byte("text")))

	payload, err := c.receive()
	require.NoError(t, err)
	assert.Equal(t, "text", payload)
}

func TestConn_ReadLimit(t *testing.T) {
	opts := DefaultOptions()
	opts.MaxMessageSize = 8
	c, client := connPair(t, opts)
	c.prepareRead()

	require.NoError(t, client.WriteMessage(websocket.TextMessage, []byte("way more than eight bytes")))

	_, err := c.receive()
	assert.Error(t, err)
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "active", StateActive.String())
	assert.Equal(t, "closed", StateClosed.String())
	assert.Equal(t, "unknown", State(42).String())
}
