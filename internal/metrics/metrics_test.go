package metrics

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTestRecorderCountsReconcileActionsByType(t *testing.T) {
	r := NewTestRecorder()
	r.RecordReconcileAction("create_link")
	r.RecordReconcileAction("create_link")
	r.RecordReconcileAction("destroy_node")

	assert.Equal(t, 2, r.GetReconcileActionCount("create_link"))
	assert.Equal(t, 1, r.GetReconcileActionCount("destroy_node"))
	assert.Equal(t, 0, r.GetReconcileActionCount("warn"))
}

func TestTestRecorderCountsIPCRequestsByMethodAndStatus(t *testing.T) {
	r := NewTestRecorder()
	r.RecordIPCRequest("SetChannelVolume", "ok")
	r.RecordIPCRequest("SetChannelVolume", "ok")
	r.RecordIPCRequest("SetChannelVolume", "error")

	assert.Equal(t, 2, r.GetIPCRequestCount("SetChannelVolume", "ok"))
	assert.Equal(t, 1, r.GetIPCRequestCount("SetChannelVolume", "error"))
}

func TestTestRecorderTracksLinksAndPhase(t *testing.T) {
	r := NewTestRecorder()
	r.RecordLinkCreated()
	r.RecordLinkCreated()
	r.RecordLinkDestroyed()
	r.SetDaemonPhase(3)

	assert.Equal(t, 2, r.GetLinksCreated())
	assert.Equal(t, 3, r.GetDaemonPhase())
}

func TestTestRecorderIsSafeForConcurrentUse(t *testing.T) {
	r := NewTestRecorder()
	var wg sync.WaitGroup
	for range 10 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range 50 {
				r.RecordLinkCreated()
				r.RecordReconcileAction("create_link")
				r.RecordIPCRequest("GetState", "ok")
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 500, r.GetLinksCreated())
	assert.Equal(t, 500, r.GetReconcileActionCount("create_link"))
	assert.Equal(t, 500, r.GetIPCRequestCount("GetState", "ok"))
}

func TestPromRecorderRegistersCollectorsWithoutPanic(t *testing.T) {
	r := New()
	require.NotNil(t, r.Registry())

	r.RecordLinkCreated()
	r.RecordReconcileAction("create_sink")
	r.RecordIPCRequest("GetState", "ok")
	r.SetDaemonPhase(1)
	r.SetConnectedClients(4)

	families, err := r.Registry().Gather()
	require.NoError(t, err)
	assert.NotEmpty(t, families)
}
