package reconciler

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/undertone-audio/undertone/internal/graphcache"
	"github.com/undertone-audio/undertone/internal/model"
	"pgregory.net/rapid"
)

func twoChannels() []model.Channel {
	return []model.Channel{
		{Name: "music", DisplayName: "Music"},
		{Name: "voice", DisplayName: "Voice"},
	}
}

func TestReconcileOnEmptyCacheCreatesAllNodesBeforeLinks(t *testing.T) {
	cache := graphcache.New()
	actions := Reconcile(twoChannels(), "usb-headset", cache)

	require.NotEmpty(t, actions)

	sawLink := false
	for _, a := range actions {
		switch a.(type) {
		case CreateSinkAction, CreateVolumeFilterAction:
			assert.False(t, sawLink, "node creation must not follow a link creation")
		case CreateLinkAction:
			sawLink = true
		}
	}
}

func TestReconcileWarnsWhenTargetDeviceAbsent(t *testing.T) {
	cache := graphcache.New()
	actions := Reconcile(nil, "usb-headset", cache)

	found := false
	for _, a := range actions {
		if w, ok := a.(WarnAction); ok {
			found = true
			assert.Contains(t, w.Message, "usb-headset")
		}
	}
	assert.True(t, found)
}

func TestReconcileNeverEmitsDestroyForUnmanagedForeignNode(t *testing.T) {
	cache := graphcache.New()
	cache.AddNode(model.NodeRecord{ID: 99, Name: "spotify", Managed: false})

	actions := Reconcile(nil, "usb-headset", cache)
	for _, a := range actions {
		if d, ok := a.(DestroyNodeAction); ok {
			assert.NotEqual(t, uint32(99), d.ID)
		}
	}
}

func TestReconcileDestroysOrphanedManagedNode(t *testing.T) {
	cache := graphcache.New()
	cache.AddNode(model.NodeRecord{ID: 5, Name: "ch-stale", Managed: true})

	actions := Reconcile(nil, "usb-headset", cache)
	found := false
	for _, a := range actions {
		if d, ok := a.(DestroyNodeAction); ok && d.ID == 5 {
			found = true
		}
	}
	assert.True(t, found)
}

// applyActions simulates executing actions against cache, as the Command
// Applier eventually will, so idempotence can be tested: create nodes
// with synthetic ids and the ports/links reconciliation expects.
func applyActions(cache *graphcache.Cache, actions []Action, nextID *uint32) {
	for _, a := range actions {
		switch act := a.(type) {
		case CreateSinkAction:
			addManagedNodeWithPorts(cache, nextID, act.Name)
		case CreateVolumeFilterAction:
			addManagedNodeWithPorts(cache, nextID, act.Name)
		case CreateLinkAction:
			src, _ := cache.NodeByName(act.SrcNode)
			dst, _ := cache.NodeByName(act.DstNode)
			srcPos := act.SrcPort[len(act.SrcPort)-2:]
			dstPos := act.DstPort[len(act.DstPort)-2:]
			srcPort := findPort(cache, src.ID, model.DirectionOutput, srcPos)
			dstPort := findPort(cache, dst.ID, model.DirectionInput, dstPos)
			*nextID++
			cache.AddLink(model.LinkRecord{ID: *nextID, OutputNode: src.ID, OutputPort: srcPort, InputNode: dst.ID, InputPort: dstPort})
		case DestroyNodeAction:
			cache.RemoveNode(act.ID)
		}
	}
}

func addManagedNodeWithPorts(cache *graphcache.Cache, nextID *uint32, name string) {
	*nextID++
	nodeID := *nextID
	cache.AddNode(model.NodeRecord{ID: nodeID, Name: name, Managed: true})
	addPortsForNode(cache, nextID, nodeID)
}

func addForeignNodeWithPorts(cache *graphcache.Cache, nextID *uint32, name string) {
	*nextID++
	nodeID := *nextID
	cache.AddNode(model.NodeRecord{ID: nodeID, Name: name, Managed: false})
	addPortsForNode(cache, nextID, nodeID)
}

func addPortsForNode(cache *graphcache.Cache, nextID *uint32, nodeID uint32) {
	for _, pos := range stereoPositions {
		*nextID++
		cache.AddPort(model.PortRecord{ID: *nextID, NodeID: nodeID, Direction: model.DirectionOutput, ChannelPosition: pos})
		*nextID++
		cache.AddPort(model.PortRecord{ID: *nextID, NodeID: nodeID, Direction: model.DirectionInput, ChannelPosition: pos})
	}
}

func findPort(cache *graphcache.Cache, nodeID uint32, dir model.PortDirection, pos string) uint32 {
	for _, p := range cache.PortsOf(nodeID, dir, pos) {
		return p.ID
	}
	return 0
}

func TestReconcileIsIdempotentAfterActionsAreApplied(t *testing.T) {
	cache := graphcache.New()
	var nextID uint32 = 1000

	addForeignNodeWithPorts(cache, &nextID, "usb-headset")

	channels := twoChannels()
	first := Reconcile(channels, "usb-headset", cache)
	applyActions(cache, first, &nextID)

	second := Reconcile(channels, "usb-headset", cache)
	assert.Empty(t, second, "reconciling an already-converged graph must return no actions")
}

func TestReconcileIdempotencePropertyAcrossChannelCounts(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		n := rapid.IntRange(0, 5).Draw(rt, "numChannels")
		channels := make([]model.Channel, n)
		for i := 0; i < n; i++ {
			channels[i] = model.Channel{Name: fmt.Sprintf("ch%d", i), DisplayName: fmt.Sprintf("Channel %d", i)}
		}

		cache := graphcache.New()
		var nextID uint32 = 1
		addForeignNodeWithPorts(cache, &nextID, "target-device")

		first := Reconcile(channels, "target-device", cache)
		applyActions(cache, first, &nextID)

		second := Reconcile(channels, "target-device", cache)
		assert.Empty(rt, second)
	})
}
