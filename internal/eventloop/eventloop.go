// Package eventloop is the daemon's single serialization point (spec.md
// §4.7): one goroutine, one select, reading graph observations from the
// Server Runtime and client requests from the IPC server, driving the
// DaemonState phase machine and delegating mutation to the Command
// Applier. Generalized from the teacher's main analysis-loop select in
// cmd/root.go's processor goroutine onto Undertone's three event
// sources.
package eventloop

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/undertone-audio/undertone/internal/applier"
	appErrors "github.com/undertone-audio/undertone/internal/errors"
	"github.com/undertone-audio/undertone/internal/graphcache"
	"github.com/undertone-audio/undertone/internal/ipc"
	"github.com/undertone-audio/undertone/internal/ipcserver"
	"github.com/undertone-audio/undertone/internal/logging"
	"github.com/undertone-audio/undertone/internal/metrics"
	"github.com/undertone-audio/undertone/internal/model"
	"github.com/undertone-audio/undertone/internal/notify"
	"github.com/undertone-audio/undertone/internal/pwclient"
)

// graphEvents is the narrow slice of pwclient.Runtime the loop consumes.
type graphEvents interface {
	Events() <-chan pwclient.GraphEvent
}

// requestSource is the narrow slice of ipcserver.Server the loop consumes.
type requestSource interface {
	Requests() <-chan ipcserver.IncomingRequest
	Broadcast(eventType string, data any)
}

// Loop owns the daemon's lifecycle state and drives it forward in
// response to graph events and IPC requests.
type Loop struct {
	rt    graphEvents
	ipc   requestSource
	app   *applier.Applier
	cache *graphcache.Cache

	recorder          metrics.Recorder
	notifier          *notify.Notifier
	disconnectTracker *notify.DisconnectTracker

	mu               sync.RWMutex
	state            model.DaemonState
	everConnected    bool
	deviceUp         bool
	connectedClients int
}

// SetRecorder attaches a metrics.Recorder the loop reports daemon-phase
// transitions and IPC outcomes to. Optional; nil means no metrics.
func (l *Loop) SetRecorder(r metrics.Recorder) {
	l.recorder = r
}

// SetNotifier attaches operator notification for terminal errors and
// persisting device disconnects (spec.md §B.7). Optional; a nil or
// disabled Notifier means SetNotifier need not be called at all.
func (l *Loop) SetNotifier(n *notify.Notifier, disconnectCycleThreshold int) {
	l.notifier = n
	l.disconnectTracker = notify.NewDisconnectTracker(n, disconnectCycleThreshold)
}

// New constructs a Loop. app must already be initialized (its channel and
// route state loaded) before Run is called.
func New(rt *pwclient.Runtime, srv *ipcserver.Server, app *applier.Applier, cache *graphcache.Cache) *Loop {
	return &Loop{
		rt:    rt,
		ipc:   srv,
		app:   app,
		cache: cache,
		state: model.DaemonState{Phase: model.PhaseInitializing},
	}
}

// State returns a copy of the current lifecycle state.
func (l *Loop) State() model.DaemonState {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.state
}

func (l *Loop) setPhase(phase model.DaemonPhase) {
	l.mu.Lock()
	l.state = model.DaemonState{Phase: phase}
	l.mu.Unlock()
	if l.recorder != nil {
		l.recorder.SetDaemonPhase(int(phase))
	}
}

func (l *Loop) setError(message string) {
	l.mu.Lock()
	l.state = model.DaemonState{Phase: model.PhaseError, ErrorMessage: message}
	l.mu.Unlock()
	if l.recorder != nil {
		l.recorder.SetDaemonPhase(int(model.PhaseError))
	}
	if l.notifier != nil {
		l.notifier.ErrorState(message)
	}
}

// Run drives the loop until ctx is canceled or a Shutdown command arrives.
func (l *Loop) Run(ctx context.Context) error {
	l.setPhase(model.PhaseWaitingForDevice)

	events := l.rt.Events()
	requests := l.ipc.Requests()

	for {
		select {
		case <-ctx.Done():
			l.setPhase(model.PhaseShuttingDown)
			return ctx.Err()

		case ev, ok := <-events:
			if !ok {
				l.setError("server runtime event stream closed")
				return nil
			}
			l.handleGraphEvent(ctx, ev)

		case req, ok := <-requests:
			if !ok {
				return nil
			}
			if l.handleRequest(ctx, req) {
				l.setPhase(model.PhaseShuttingDown)
				return nil
			}
		}
	}
}

func (l *Loop) handleGraphEvent(ctx context.Context, ev pwclient.GraphEvent) {
	switch e := ev.(type) {
	case pwclient.ConnectedEvent:
		l.onConnected(ctx)

	case pwclient.DisconnectedEvent:
		l.setError("lost connection to audio server")

	case pwclient.TargetDeviceDetectedEvent:
		l.mu.Lock()
		wasDown := !l.deviceUp
		l.deviceUp = true
		l.mu.Unlock()
		if wasDown {
			l.setPhase(model.PhaseRunning)
			if _, err := l.app.Reconcile(ctx); err != nil {
				logging.Warn("reconcile after device detection failed", "err", err)
			}
			l.ipc.Broadcast(ipc.EventDeviceConnected, map[string]any{"device": e.Serial})
		}

	case pwclient.TargetDeviceRemovedEvent:
		l.mu.Lock()
		l.deviceUp = false
		l.mu.Unlock()
		l.setPhase(model.PhaseDeviceDisconnected)
		l.ipc.Broadcast(ipc.EventDeviceDisconnected, nil)

	case pwclient.NodeRemovedEvent:
		if looksManaged(e.Name) {
			logging.Warn("managed node disappeared unexpectedly", "name", e.Name, "id", e.ID)
		}

	case pwclient.ClientAppearedEvent:
		l.mu.Lock()
		l.connectedClients++
		n := l.connectedClients
		l.mu.Unlock()
		if l.recorder != nil {
			l.recorder.SetConnectedClients(n)
		}
		l.ipc.Broadcast(ipc.EventAppDiscovered, map[string]any{"name": e.Name, "pid": e.PID})

	case pwclient.ClientDisappearedEvent:
		l.mu.Lock()
		if l.connectedClients > 0 {
			l.connectedClients--
		}
		n := l.connectedClients
		l.mu.Unlock()
		if l.recorder != nil {
			l.recorder.SetConnectedClients(n)
		}
		l.ipc.Broadcast(ipc.EventAppRemoved, map[string]any{"id": e.ID})

	case pwclient.LevelsUpdatedEvent:
		l.ipc.Broadcast(ipc.EventLevelsUpdated, map[string]any{"mix": string(e.Mix), "peak": e.Peak})
	}
}

// onConnected runs the one-time node-creation pass on the daemon's first
// connection to the audio server, or a reconciliation pass on any
// subsequent (re)connection (spec.md §4.7).
func (l *Loop) onConnected(ctx context.Context) {
	l.mu.Lock()
	first := !l.everConnected
	l.everConnected = true
	l.mu.Unlock()

	if first {
		l.setPhase(model.PhaseCreatingNodes)
	} else {
		l.setPhase(model.PhaseReconciling)
	}

	warnings, err := l.app.Reconcile(ctx)
	if err != nil {
		l.setError(err.Error())
		return
	}
	for _, w := range warnings {
		logging.Warn("reconcile warning", "message", w)
	}

	if deviceName, absent := absentDeviceName(warnings); absent {
		if l.disconnectTracker != nil {
			l.disconnectTracker.RecordAbsent(deviceName, time.Now())
		}
		l.setPhase(model.PhaseWaitingForDevice)
		return
	}

	if l.disconnectTracker != nil {
		l.disconnectTracker.RecordPresent()
	}
	l.mu.Lock()
	l.deviceUp = true
	l.mu.Unlock()
	l.setPhase(model.PhaseRunning)
}

// absentDeviceName reports whether the reconcile pass warned that the
// target device is absent, and extracts its name from the warning text —
// if so the daemon waits rather than claiming Running. The reconciler
// carries no structured field for this, only the WarnAction.Message
// string, so the name is recovered from its fixed %q-quoted format.
func absentDeviceName(warnings []string) (name string, absent bool) {
	const marker = `target output device "`
	for _, w := range warnings {
		idx := strings.Index(w, marker)
		if idx < 0 {
			continue
		}
		rest := w[idx+len(marker):]
		if end := strings.IndexByte(rest, '"'); end >= 0 {
			return rest[:end], true
		}
	}
	return "", false
}

// looksManaged applies the naming-convention heuristic as an advisory
// check only: the authoritative Managed flag lived on the node record
// inside the Server Runtime's cache and was already consumed there before
// this event was published, so it isn't carried on NodeRemovedEvent
// itself. This only decides whether a disappearance is worth a log line.
func looksManaged(name string) bool {
	for _, prefix := range []string{"ch-", "stream-", "monitor-", "mic-passthrough"} {
		if strings.HasPrefix(name, prefix) {
			return true
		}
	}
	return false
}

// isQueryRequest lists the ipc.Request types Applier.Query answers, so the
// loop can route a request to Query or Apply without relying on a
// try-then-fallback error inspection (both paths can return the same
// ClientInput error category for unrelated reasons).
func isQueryRequest(req ipc.Request) bool {
	switch req.(type) {
	case ipc.GetStateRequest, ipc.GetChannelsRequest, ipc.GetChannelRequest,
		ipc.GetAppsRequest, ipc.GetProfilesRequest, ipc.GetProfileRequest,
		ipc.GetDeviceStatusRequest, ipc.GetDiagnosticsRequest, ipc.GetOutputDevicesRequest:
		return true
	default:
		return false
	}
}

func (l *Loop) handleRequest(ctx context.Context, req ipcserver.IncomingRequest) (shutdown bool) {
	if _, ok := req.Req.(ipc.ShutdownRequest); ok {
		payload, _ := ipc.EncodeResult(req.RequestID, map[string]any{"success": true})
		req.Reply <- payload
		return true
	}

	var result any
	var err error
	if isQueryRequest(req.Req) {
		result, err = l.app.Query(req.Req)
	} else {
		result, err = l.app.Apply(ctx, req.Req)
	}
	l.reply(req, result, err)
	return false
}

func (l *Loop) reply(req ipcserver.IncomingRequest, result any, err error) {
	var payload []byte
	status := "ok"
	if err != nil {
		status = "error"
		payload, _ = ipc.EncodeError(req.RequestID, codeFor(err), err.Error())
	} else {
		payload, _ = ipc.EncodeResult(req.RequestID, result)
	}
	if l.recorder != nil {
		l.recorder.RecordIPCRequest(requestMethodName(req.Req), status)
	}
	req.Reply <- payload
}

// requestMethodName returns the request's Go type name with its package
// qualifier stripped, matching the method names used on the wire
// (spec.md §6), for metrics labeling.
func requestMethodName(req ipc.Request) string {
	name := fmt.Sprintf("%T", req)
	if idx := strings.LastIndexByte(name, '.'); idx >= 0 {
		name = name[idx+1:]
	}
	return strings.TrimSuffix(name, "Request")
}

// codeFor maps a categorized error to a wire error code (spec.md §6).
func codeFor(err error) int {
	if appErrors.IsCategory(err, appErrors.CategoryNotFound) {
		return ipc.CodeNotFound
	}
	if appErrors.IsCategory(err, appErrors.CategoryClientInput) {
		return ipc.CodeInvalidArgument
	}
	return ipc.CodeInternal
}
