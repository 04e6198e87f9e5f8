package metrics

import "sync"

// TestRecorder is an in-memory Recorder double, mirroring the corpus'
// observability/metrics TestRecorder — same shape (guarded maps, simple
// counters), adapted from prediction/operation counters onto Undertone's
// link/reconcile/IPC counters so applier and eventloop tests can assert
// on what got recorded without a real Prometheus registry.
type TestRecorder struct {
	mu sync.Mutex

	linksCreated     int
	linksDestroyed   int
	reconcileActions map[string]int
	ipcRequests      map[string]int
	daemonPhase      int
	connectedClients int
}

// NewTestRecorder constructs an empty TestRecorder.
func NewTestRecorder() *TestRecorder {
	return &TestRecorder{
		reconcileActions: make(map[string]int),
		ipcRequests:       make(map[string]int),
	}
}

func (r *TestRecorder) RecordLinkCreated() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.linksCreated++
}

func (r *TestRecorder) RecordLinkDestroyed() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.linksDestroyed++
}

func (r *TestRecorder) RecordReconcileAction(actionType string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.reconcileActions[actionType]++
}

func (r *TestRecorder) RecordIPCRequest(method, status string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ipcRequests[method+":"+status]++
}

func (r *TestRecorder) SetDaemonPhase(phase int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.daemonPhase = phase
}

func (r *TestRecorder) SetConnectedClients(n int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.connectedClients = n
}

// GetLinksCreated returns the recorded link-created count.
func (r *TestRecorder) GetLinksCreated() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.linksCreated
}

// GetReconcileActionCount returns how many times actionType was recorded.
func (r *TestRecorder) GetReconcileActionCount(actionType string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.reconcileActions[actionType]
}

// GetIPCRequestCount returns how many times the method/status pair was
// recorded.
func (r *TestRecorder) GetIPCRequestCount(method, status string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.ipcRequests[method+":"+status]
}

// GetDaemonPhase returns the last phase set.
func (r *TestRecorder) GetDaemonPhase() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.daemonPhase
}
