package metrics

import (
	"io"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wricardo/session-relay/relay/session"
)

func TestMetrics_SessionLifecycle(t *testing.T) {
	m := NewMetrics()

	m.SessionCreated("a")
	m.SessionCreated("b")
	m.ConsumerJoined("a")
	m.ConsumerJoined("a")
	m.ConsumerJoined("b")
	m.ConsumerLeft("b")
	m.SessionDestroyed("a", 2)

	assert.Equal(t, float64(1), testutil.ToFloat64(m.SessionsActive))
	assert.Equal(t, float64(2), testutil.ToFloat64(m.SessionsCreated))
	assert.Equal(t, float64(0), testutil.ToFloat64(m.ConsumersActive))
}

func TestMetrics_Broadcasted(t *testing.T) {
	m := NewMetrics()

	m.Broadcasted("a", session.Delivery{Recipients: 3, Failed: 1})
	m.Broadcasted("a", session.Delivery{})

	assert.Equal(t, float64(2), testutil.ToFloat64(m.PayloadsTotal))
	assert.Equal(t, float64(2), testutil.ToFloat64(m.DeliveriesTotal))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.SendFailuresTotal))
}

func TestMetrics_Rejected(t *testing.T) {
	m := NewMetrics()

	m.Rejected("session_not_found")
	m.Rejected("session_not_found")
	m.Rejected("missing_session_id")

	assert.Equal(t, float64(2), testutil.ToFloat64(m.RejectionsTotal.WithLabelValues("session_not_found")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.RejectionsTotal.WithLabelValues("missing_session_id")))
}

func TestMetrics_Handler(t *testing.T) {
	m := NewMetrics()
	m.SessionCreated("a")

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	assert.Equal(t, 200, rec.Code)
	assert.Contains(t, string(body), "relay_sessions_active 1")
	assert.Contains(t, string(body), "go_goroutines")
}

func TestMetrics_WithRegistry(t *testing.T) {
	m := NewMetrics()
	r := session.NewRegistry(zerolog.Nop(), m)

	require.NoError(t, r.Create("x", stubConn("p")))
	require.NoError(t, r.Join("x", stubConn("c")))
	r.Broadcast("x", "hi")
	r.Destroy("x")

	assert.Equal(t, float64(0), testutil.ToFloat64(m.SessionsActive))
	assert.Equal(t, float64(0), testutil.ToFloat64(m.ConsumersActive))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.DeliveriesTotal))
}

type stubConn string

func (c stubConn) ID() string        { return string(c) }
func (c stubConn) Send(string) error { return nil }
func (c stubConn) Close() error      { return nil }
