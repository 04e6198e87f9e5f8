// Package metrics registers the daemon's Prometheus collectors (spec.md
// §B.6): counters for links created/destroyed and reconciliation actions
// by type, and gauges for daemon state and connected clients. Adapted
// from the corpus' observability/metrics recorder shape
// (RecordOperation/RecordDuration/RecordError) onto Undertone's
// reconciler/IPC counters, swapping the hand-rolled in-memory counters
// that package used for tests out for real prometheus.Collector types in
// production.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Recorder is the seam the rest of the daemon records through, so
// reconciler/applier/eventloop code never imports prometheus directly.
type Recorder interface {
	RecordLinkCreated()
	RecordLinkDestroyed()
	RecordReconcileAction(actionType string)
	RecordIPCRequest(method string, status string)
	SetDaemonPhase(phase int)
	SetConnectedClients(n int)
}

// PromRecorder is the production Recorder backed by real Prometheus
// collectors, registered against a dedicated registry so the metrics
// endpoint never leaks the Go runtime's default collectors' identity
// across process restarts in tests.
type PromRecorder struct {
	registry *prometheus.Registry

	linksCreated      prometheus.Counter
	linksDestroyed    prometheus.Counter
	reconcileActions  *prometheus.CounterVec
	ipcRequests       *prometheus.CounterVec
	daemonPhase       prometheus.Gauge
	connectedClients  prometheus.Gauge
}

// New creates a PromRecorder and registers its collectors against a fresh
// registry.
func New() *PromRecorder {
	reg := prometheus.NewRegistry()

	r := &PromRecorder{
		registry: reg,
		linksCreated: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "undertone",
			Name:      "links_created_total",
			Help:      "Total links the Reconciler has asked the Server Runtime to create.",
		}),
		linksDestroyed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "undertone",
			Name:      "links_destroyed_total",
			Help:      "Total links the Reconciler has asked the Server Runtime to destroy.",
		}),
		reconcileActions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "undertone",
			Name:      "reconcile_actions_total",
			Help:      "Reconciliation actions emitted, by action type.",
		}, []string{"type"}),
		ipcRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "undertone",
			Name:      "ipc_requests_total",
			Help:      "IPC requests handled, by method and outcome.",
		}, []string{"method", "status"}),
		daemonPhase: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "undertone",
			Name:      "daemon_phase",
			Help:      "Current DaemonPhase as an integer (see model.DaemonPhase).",
		}),
		connectedClients: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "undertone",
			Name:      "connected_clients",
			Help:      "Number of audio application clients currently observed on the graph.",
		}),
	}

	reg.MustRegister(
		r.linksCreated,
		r.linksDestroyed,
		r.reconcileActions,
		r.ipcRequests,
		r.daemonPhase,
		r.connectedClients,
	)
	return r
}

// Registry exposes the underlying registry for the HTTP /metrics handler.
func (r *PromRecorder) Registry() *prometheus.Registry { return r.registry }

func (r *PromRecorder) RecordLinkCreated()   { r.linksCreated.Inc() }
func (r *PromRecorder) RecordLinkDestroyed() { r.linksDestroyed.Inc() }

func (r *PromRecorder) RecordReconcileAction(actionType string) {
	r.reconcileActions.WithLabelValues(actionType).Inc()
}

func (r *PromRecorder) RecordIPCRequest(method string, status string) {
	r.ipcRequests.WithLabelValues(method, status).Inc()
}

func (r *PromRecorder) SetDaemonPhase(phase int) {
	r.daemonPhase.Set(float64(phase))
}

func (r *PromRecorder) SetConnectedClients(n int) {
	r.connectedClients.Set(float64(n))
}
