package bench

import (
	"context"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wricardo/session-relay/relay/session"
	relayws "github.com/wricardo/session-relay/transport/websocket"
)

func startRelay(t *testing.T) (string, *session.Registry) {
	t.Helper()

	registry := session.NewRegistry(zerolog.Nop(), nil)
	handler := relayws.NewHandler(registry, relayws.DefaultOptions(), zerolog.Nop(), nil)
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	return "ws" + strings.TrimPrefix(server.URL, "http"), registry
}

func testOptions(url string) Options {
	opts := DefaultOptions()
	opts.URL = url
	opts.Sessions = 3
	opts.ConsumersPerSession = 4
	opts.Messages = 25
	return opts
}

func TestRun(t *testing.T) {
	url, registry := startRelay(t)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()

	report, err := Run(ctx, testOptions(url))
	require.NoError(t, err)

	assert.Equal(t, 3, report.Sessions)
	assert.Equal(t, 12, report.Consumers)
	assert.Equal(t, int64(75), report.Sent)
	assert.Equal(t, int64(300), report.Expected)
	assert.Equal(t, int64(300), report.Received)
	assert.Zero(t, report.OutOfOrder)
	assert.Zero(t, report.Lost())
	assert.Positive(t, report.Rate())

	require.Eventually(t, func() bool { return registry.Len() == 0 }, 2*time.Second, 10*time.Millisecond)
}

func TestRun_WithInterval(t *testing.T) {
	url, _ := startRelay(t)

	opts := testOptions(url)
	opts.Sessions = 1
	opts.ConsumersPerSession = 2
	opts.Messages = 5
	opts.Interval = 5 * time.Millisecond

	report, err := Run(context.Background(), opts)
	require.NoError(t, err)
	assert.Equal(t, int64(10), report.Received)
	assert.GreaterOrEqual(t, report.Duration, 20*time.Millisecond)
}

func TestRun_NoConsumers(t *testing.T) {
	url, _ := startRelay(t)

	opts := testOptions(url)
	opts.ConsumersPerSession = 0

	report, err := Run(context.Background(), opts)
	require.NoError(t, err)
	assert.Equal(t, int64(75), report.Sent)
	assert.Zero(t, report.Expected)
	assert.Zero(t, report.Received)
}

func TestRun_SessionIDCollision(t *testing.T) {
	url, registry := startRelay(t)

	// Occupy the first session ID so the bench producer is refused
	opts := testOptions(url)
	opts.Sessions = 1
	opts.ReadyTimeout = 300 * time.Millisecond
	require.NoError(t, registry.Create(opts.Prefix+"-0", &stubConn{}))

	_, err := Run(context.Background(), opts)
	assert.Error(t, err)
}

func TestRun_Unreachable(t *testing.T) {
	opts := testOptions("ws://127.0.0.1:1")
	opts.Sessions = 1

	_, err := Run(context.Background(), opts)
	assert.Error(t, err)
}

func TestRun_InvalidOptions(t *testing.T) {
	tests := []struct {
		name   string
		modify func(*Options)
	}{
		{"no sessions", func(o *Options) { o.Sessions = 0 }},
		{"negative consumers", func(o *Options) { o.ConsumersPerSession = -1 }},
		{"negative messages", func(o *Options) { o.Messages = -1 }},
		{"zero ready timeout", func(o *Options) { o.ReadyTimeout = 0 }},
		{"http scheme", func(o *Options) { o.URL = "http://127.0.0.1:3000" }},
		{"bad url", func(o *Options) { o.URL = "ws://[::1" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			opts := DefaultOptions()
			tt.modify(&opts)

			_, err := Run(context.Background(), opts)
			assert.ErrorIs(t, err, ErrInvalidOptions)
		})
	}
}

func TestReport(t *testing.T) {
	r := Report{Expected: 100, Received: 90, Duration: 2 * time.Second}
	assert.Equal(t, int64(10), r.Lost())
	assert.InDelta(t, 45.0, r.Rate(), 0.001)
	assert.Zero(t, Report{}.Rate())
}

type stubConn struct{}

func (stubConn) ID() string        { return "occupant" }
func (stubConn) Send(string) error { return nil }
func (stubConn) Close() error      { return nil }
