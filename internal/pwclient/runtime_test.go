package pwclient

import (
	"context"
	"testing"
	"time"

	pwcore "github.com/vignemail1/pipewire-go/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/undertone-audio/undertone/internal/graphcache"
	"github.com/undertone-audio/undertone/internal/model"
)

// fakeBinding is a test double for the audio-server connection, letting
// runtime tests exercise Do/applyAndPublish without a real server.
type fakeBinding struct {
	events        chan rawEvent
	nextNode      uint32
	nextLink      uint32
	volumes       map[uint32]float64
	destroyed     map[uint32]bool
	lastCfg       pwcore.VirtualNodeConfig
	lastLinkProps map[string]interface{}
}

func newFakeBinding() *fakeBinding {
	return &fakeBinding{
		events:    make(chan rawEvent, 16),
		nextNode:  1,
		nextLink:  1,
		volumes:   make(map[uint32]float64),
		destroyed: make(map[uint32]bool),
	}
}

func (f *fakeBinding) Connect(ctx context.Context) error { return nil }
func (f *fakeBinding) Close() error                      { close(f.events); return nil }

func (f *fakeBinding) CreateNode(cfg pwcore.VirtualNodeConfig) (*pwcore.VirtualNode, error) {
	id := f.nextNode
	f.nextNode++
	f.lastCfg = cfg
	return &pwcore.VirtualNode{ID: id, Config: cfg}, nil
}

func (f *fakeBinding) DestroyNode(id uint32) error {
	f.destroyed[id] = true
	return nil
}

func (f *fakeBinding) CreateLink(outputNode uint32, outputPort string, inputNode uint32, inputPort string, props map[string]interface{}) (uint32, error) {
	id := f.nextLink
	f.nextLink++
	f.lastLinkProps = props
	return id, nil
}

func (f *fakeBinding) DestroyLink(id uint32) error { return nil }

func (f *fakeBinding) SetNodeVolume(id uint32, value float64) error {
	f.volumes[id] = value
	return nil
}

func (f *fakeBinding) SetNodeMute(id uint32, muted bool) error { return nil }

func (f *fakeBinding) NodePeakLevel(id uint32) (float64, error) { return 0.5, nil }

func (f *fakeBinding) Events() <-chan rawEvent { return f.events }

func newTestRuntime(t *testing.T) (*Runtime, *fakeBinding) {
	t.Helper()
	fb := newFakeBinding()
	rt := New(graphcache.New(), "usb-headset", nil)
	rt.bind = fb

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	require.NoError(t, rt.Start(ctx))
	return rt, fb
}

func TestDoCreateSinkReturnsNodeCreated(t *testing.T) {
	rt, _ := newTestRuntime(t)

	resp, err := rt.Do(context.Background(), CreateSinkRequest{Name: "ch-music", Channels: 2, ChannelPosition: "FL FR"})
	require.NoError(t, err)
	created, ok := resp.(NodeCreatedResponse)
	require.True(t, ok)
	assert.Equal(t, "ch-music", created.Name)
}

func TestDoSetNodeVolumeClampsAndForwards(t *testing.T) {
	rt, fb := newTestRuntime(t)

	_, err := rt.Do(context.Background(), SetNodeVolumeRequest{NodeID: 7, Value: 1.5})
	require.NoError(t, err)
	assert.Equal(t, 1.0, fb.volumes[7])
}

func TestApplyAndPublishTranslatesNodeAddedIntoCacheAndEvent(t *testing.T) {
	rt, fb := newTestRuntime(t)

	fb.events <- rawEvent{kind: "node-added", nodeID: 10, nodeName: "spotify", mediaClass: "Stream/Output/Audio"}

	var ev GraphEvent
	require.Eventually(t, func() bool {
		select {
		case ev = <-rt.Events():
			_, isAdded := ev.(NodeAddedEvent)
			_, isClient := ev.(ClientAppearedEvent)
			return isAdded || isClient
		default:
			return false
		}
	}, time.Second, 10*time.Millisecond)

	n, ok := rt.cache.NodeByID(10)
	assert.True(t, ok)
	assert.Equal(t, "spotify", n.Name)
}

func TestTargetDeviceDetectedWhenMatchingNodeAppears(t *testing.T) {
	rt, fb := newTestRuntime(t)

	fb.events <- rawEvent{kind: "node-added", nodeID: 5, nodeName: "usb-headset", mediaClass: "Audio/Sink"}

	seen := make(map[string]bool)
	deadline := time.After(time.Second)
loop:
	for {
		select {
		case ev := <-rt.Events():
			switch ev.(type) {
			case TargetDeviceDetectedEvent:
				seen["target"] = true
			case NodeAddedEvent:
				seen["node"] = true
			}
			if seen["target"] && seen["node"] {
				break loop
			}
		case <-deadline:
			break loop
		}
	}
	assert.True(t, seen["target"], "expected a TargetDeviceDetectedEvent")
}

func TestCreateSinkWritesManagedMarkerProps(t *testing.T) {
	rt, fb := newTestRuntime(t)

	_, err := rt.Do(context.Background(), CreateSinkRequest{Name: "ch-music", Channels: 2, ChannelPosition: "FL,FR"})
	require.NoError(t, err)

	assert.Equal(t, true, fb.lastCfg.CustomProps["undertone.managed"])
	assert.Equal(t, true, fb.lastCfg.CustomProps["node.passive"])
	assert.Equal(t, 0, fb.lastCfg.CustomProps["session.suspend-timeout-seconds"])
	assert.Equal(t, "FL,FR", fb.lastCfg.CustomProps["audio.position"])
	assert.NotContains(t, fb.lastCfg.CustomProps, "undertone.volume-filter")
}

func TestCreateVolumeFilterAddsMonitorProps(t *testing.T) {
	rt, fb := newTestRuntime(t)

	_, err := rt.Do(context.Background(), CreateVolumeFilterRequest{Name: "ch-music-stream-vol", Channels: 2, ChannelPosition: "FL,FR"})
	require.NoError(t, err)

	assert.Equal(t, true, fb.lastCfg.CustomProps["monitor.channel-volumes"])
	assert.Equal(t, true, fb.lastCfg.CustomProps["undertone.volume-filter"])
}

func TestCreateSinkUsesMonoPositionForSingleChannel(t *testing.T) {
	rt, fb := newTestRuntime(t)

	_, err := rt.Do(context.Background(), CreateSinkRequest{Name: "mic-passthrough", Channels: 1, ChannelPosition: ""})
	require.NoError(t, err)

	assert.Equal(t, "MONO", fb.lastCfg.CustomProps["audio.position"])
}

func TestCreateLinkSetsObjectLinger(t *testing.T) {
	rt, fb := newTestRuntime(t)

	_, err := rt.Do(context.Background(), CreateLinkRequest{OutputNodeID: 1, OutputPortName: "monitor_FL", InputNodeID: 2, InputPortName: "playback_FL"})
	require.NoError(t, err)

	assert.Equal(t, true, fb.lastLinkProps["object.linger"])
}

func TestNodeAddedMarksManagedWhenInCreatedObjectsRegistry(t *testing.T) {
	rt, _ := newTestRuntime(t)
	rt.cache.RecordCreatedNode("ch-music", 10)

	rt.applyAndPublish(rawEvent{kind: "node-added", nodeID: 10, nodeName: "ch-music", mediaClass: "Audio/Sink"})

	n, ok := rt.cache.NodeByID(10)
	require.True(t, ok)
	assert.True(t, n.Managed)
}

func TestNodeAddedLeavesUnknownNodeUnmanaged(t *testing.T) {
	rt, _ := newTestRuntime(t)

	rt.applyAndPublish(rawEvent{kind: "node-added", nodeID: 99, nodeName: "spotify", mediaClass: "Stream/Output/Audio"})

	n, ok := rt.cache.NodeByID(99)
	require.True(t, ok)
	assert.False(t, n.Managed)
}

func TestRecentLevelsAccumulatesPolledPeaks(t *testing.T) {
	rt, _ := newTestRuntime(t)
	rt.TrackMixNode(42, model.MixStream)

	rt.pollLevels()
	rt.pollLevels()

	samples := rt.RecentLevels(model.MixStream)
	assert.Len(t, samples, 2)
	assert.Equal(t, 0.5, samples[0])
}
