package diagnostics

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/undertone-audio/undertone/internal/model"
)

type fakeStateProvider struct{ state model.DaemonState }

func (f fakeStateProvider) State() model.DaemonState { return f.state }

// newTestServer builds a Server the same way NewServer does, but exposes
// its echo instance directly so tests can drive requests through
// ServeHTTP without binding a real listener.
func newTestServer(state model.DaemonState) *Server {
	return NewServer("127.0.0.1:0", prometheus.NewRegistry(), fakeStateProvider{state: state})
}

func TestHealthzReportsRunningPhaseAsOK(t *testing.T) {
	s := newTestServer(model.DaemonState{Phase: model.PhaseRunning})
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	s.echo.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "running")
}

func TestHealthzReportsErrorPhaseAsUnavailable(t *testing.T) {
	s := newTestServer(model.DaemonState{Phase: model.PhaseError, ErrorMessage: "lost connection to audio server"})
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	s.echo.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Contains(t, rec.Body.String(), "lost connection to audio server")
}

func TestMetricsEndpointServesPrometheusFormat(t *testing.T) {
	reg := prometheus.NewRegistry()
	counter := prometheus.NewCounter(prometheus.CounterOpts{Name: "undertone_test_total"})
	reg.MustRegister(counter)
	counter.Inc()

	s := NewServer("127.0.0.1:0", reg, fakeStateProvider{state: model.DaemonState{}})
	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	s.echo.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "undertone_test_total")
}
