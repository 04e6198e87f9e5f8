package diagnostics

import (
	"context"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/undertone-audio/undertone/internal/model"
)

// StateProvider reports the daemon's current lifecycle phase for the
// /healthz handler, satisfied by *eventloop.Loop.
type StateProvider interface {
	State() model.DaemonState
}

// Server is the loopback-only HTTP diagnostics surface (spec.md §B.6): a
// separate listener from the IPC socket, serving /healthz and a
// Prometheus /metrics endpoint. Grounded on the corpus' httpserver.Server
// interface (Start/Shutdown, started asynchronously) but implemented
// directly with echo rather than wrapping two alternative controllers,
// since Undertone has exactly one diagnostics surface rather than a
// legacy/new split.
type Server struct {
	echo  *echo.Echo
	addr  string
	state StateProvider
}

// NewServer builds a Server bound to addr (expected to be a loopback
// address such as "127.0.0.1:9110"), serving metrics from registry and
// health derived from state.
func NewServer(addr string, registry *prometheus.Registry, state StateProvider) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	s := &Server{echo: e, addr: addr, state: state}

	e.GET("/healthz", s.handleHealthz)
	e.GET("/metrics", echo.WrapHandler(promhttp.HandlerFor(registry, promhttp.HandlerOpts{})))

	return s
}

// Start begins serving in a background goroutine and returns immediately,
// matching the corpus' httpserver.Server.Start contract.
func (s *Server) Start() {
	go func() {
		_ = s.echo.Start(s.addr)
	}()
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.echo.Shutdown(ctx)
}

func (s *Server) handleHealthz(c echo.Context) error {
	state := s.state.State()
	status := http.StatusOK
	switch state.Phase {
	case model.PhaseError:
		status = http.StatusServiceUnavailable
	case model.PhaseDeviceDisconnected:
		status = http.StatusOK // degraded but alive; links remain, just no output device
	}
	return c.JSON(status, map[string]any{
		"phase": state.Phase.String(),
		"error": state.ErrorMessage,
	})
}
