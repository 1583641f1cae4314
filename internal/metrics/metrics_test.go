package metrics

import (
	"io"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func scrape(t *testing.T, m *Metrics) string {
	t.Helper()
	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	return string(body)
}

func TestMetrics_Record(t *testing.T) {
	m := New()

	m.ObserveRPC("signData", "ok", 5*time.Millisecond)
	m.ObserveRPC("signData", "PermissionRejected", time.Millisecond)
	m.ChannelOpened()
	m.ChannelOpened()
	m.ChannelClosed()
	m.RelayRejected("session_mismatch")
	m.PromptResolved(PromptTimeout)
	m.StateWritten()

	body := scrape(t, m)
	assert.Contains(t, body, `dw_rpc_requests_total{method="signData",outcome="ok"} 1`)
	assert.Contains(t, body, `dw_rpc_requests_total{method="signData",outcome="PermissionRejected"} 1`)
	assert.Contains(t, body, `dw_rpc_duration_seconds_count{method="signData"} 2`)
	assert.Contains(t, body, "dw_relay_channels 1")
	assert.Contains(t, body, `dw_relay_rejected_total{reason="session_mismatch"} 1`)
	assert.Contains(t, body, `dw_permission_prompts_total{outcome="timeout"} 1`)
	assert.Contains(t, body, "dw_state_writes_total 1")
}

func TestMetrics_Gather(t *testing.T) {
	m := New()
	m.StateWritten()

	families, err := m.Registry().Gather()
	require.NoError(t, err)

	names := map[string]bool{}
	for _, f := range families {
		names[f.GetName()] = true
	}
	assert.True(t, names["dw_state_writes_total"])
	assert.True(t, names["go_goroutines"])
}

func TestMetrics_NilIsNoop(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.ObserveRPC("connect", "ok", 0)
		m.ChannelOpened()
		m.ChannelClosed()
		m.RelayRejected("x")
		m.PromptResolved(PromptClosed)
		m.StateWritten()
	})
	assert.Nil(t, m.Registry())

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	assert.Equal(t, 404, rec.Code)
}
