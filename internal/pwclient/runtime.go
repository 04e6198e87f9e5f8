package pwclient

import (
	"context"
	"fmt"
	"log/slog"
	"runtime"
	"time"

	pwcore "github.com/vignemail1/pipewire-go/core"
	"github.com/undertone-audio/undertone/internal/graphcache"
	"github.com/undertone-audio/undertone/internal/model"
)

// RequestTimeout bounds how long a caller of Do waits for the loop to
// service a request before it is treated as a transient failure
// (spec.md §4.2).
const RequestTimeout = 5 * time.Second

// levelPollInterval is how often the loop samples managed mix nodes for
// their current peak level (SPEC_FULL.md §B.8).
const levelPollInterval = 500 * time.Millisecond

type envelope struct {
	req  Request
	resp chan Response
}

// Runtime owns the single goroutine, pinned to one OS thread, that talks
// to the audio server. Everything that touches the connection happens on
// that goroutine; all other code reaches it through Do and Events.
type Runtime struct {
	cache      *graphcache.Cache
	targetName string
	logger     *slog.Logger
	bind       binding
	levels     *levelHistory

	reqCh  chan envelope
	events chan GraphEvent
	done   chan struct{}

	// trackedMixNodes maps a managed mix volume-filter node id to the
	// logical mix it belongs to, so level polling can tag samples.
	trackedMixNodes map[uint32]model.Mix
}

// New returns a Runtime that is not yet connected; call Start to run it.
func New(cache *graphcache.Cache, targetDeviceName string, logger *slog.Logger) *Runtime {
	if logger == nil {
		logger = slog.Default()
	}
	return &Runtime{
		cache:           cache,
		targetName:      targetDeviceName,
		logger:          logger,
		bind:            newPipewireBinding(),
		levels:          newLevelHistory(),
		reqCh:           make(chan envelope),
		events:          make(chan GraphEvent, 256),
		done:            make(chan struct{}),
		trackedMixNodes: make(map[uint32]model.Mix),
	}
}

// Events returns the channel the loop publishes graph observations to.
func (rt *Runtime) Events() <-chan GraphEvent { return rt.events }

// TrackMixNode registers nodeID as the volume-filter node for mix, so
// periodic level polling knows what it is measuring.
func (rt *Runtime) TrackMixNode(nodeID uint32, mix model.Mix) {
	rt.trackedMixNodes[nodeID] = mix
}

// RecentLevels returns the retained peak-level history for mix, oldest
// sample first.
func (rt *Runtime) RecentLevels(mix model.Mix) []float64 {
	return rt.levels.recent(mix)
}

// Start launches the dedicated connection goroutine. It returns once the
// initial connection attempt has been made. The loop does not reconnect:
// when the connection's event stream closes or ctx is canceled, it
// publishes a DisconnectedEvent and exits.
func (rt *Runtime) Start(ctx context.Context) error {
	connected := make(chan error, 1)
	go func() {
		runtime.LockOSThread()
		defer runtime.UnlockOSThread()
		rt.loop(ctx, connected)
	}()
	select {
	case err := <-connected:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Stop asks the loop to shut down and waits for it to exit.
func (rt *Runtime) Stop(ctx context.Context) error {
	_, err := rt.Do(ctx, ShutdownRequest{})
	if err != nil {
		return err
	}
	select {
	case <-rt.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Do submits req to the loop and waits for its response, up to
// RequestTimeout (or ctx's deadline, if sooner).
func (rt *Runtime) Do(ctx context.Context, req Request) (Response, error) {
	ctx, cancel := context.WithTimeout(ctx, RequestTimeout)
	defer cancel()

	env := envelope{req: req, resp: make(chan Response, 1)}
	select {
	case rt.reqCh <- env:
	case <-ctx.Done():
		return nil, fmt.Errorf("submit request to audio-server loop: %w", ctx.Err())
	}

	select {
	case resp := <-env.resp:
		if e, ok := resp.(ErrorResponse); ok {
			return nil, e.Err
		}
		return resp, nil
	case <-ctx.Done():
		return nil, fmt.Errorf("await audio-server loop response: %w", ctx.Err())
	}
}

func (rt *Runtime) loop(ctx context.Context, connected chan<- error) {
	defer close(rt.done)

	if err := rt.bind.Connect(ctx); err != nil {
		connected <- err
		return
	}
	connected <- nil
	rt.publish(ConnectedEvent{})

	pwEvents := rt.bind.Events()
	ticker := time.NewTicker(levelPollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			_ = rt.bind.Close()
			rt.publish(DisconnectedEvent{})
			return

		case env := <-rt.reqCh:
			if _, ok := env.req.(ShutdownRequest); ok {
				_ = rt.bind.Close()
				rt.publish(DisconnectedEvent{})
				env.resp <- NodeDestroyedResponse{}
				return
			}
			env.resp <- rt.handle(env.req)

		case ev, ok := <-pwEvents:
			if !ok {
				rt.publish(DisconnectedEvent{})
				return
			}
			rt.applyAndPublish(ev)

		case <-ticker.C:
			rt.pollLevels()
		}
	}
}

func (rt *Runtime) publish(ev GraphEvent) {
	select {
	case rt.events <- ev:
	default:
		rt.logger.Warn("dropping graph event, subscriber too slow", "event", fmt.Sprintf("%T", ev))
	}
}

func (rt *Runtime) handle(req Request) Response {
	switch r := req.(type) {
	case CreateSinkRequest:
		return rt.createNode(r.Name, r.Description, r.Channels, r.ChannelPosition, pwcore.VirtualNode_Sink, pwcore.Factory_NullAudioSink)
	case CreateVolumeFilterRequest:
		return rt.createNode(r.Name, r.Description, r.Channels, r.ChannelPosition, pwcore.VirtualNode_Filter, pwcore.Factory_FilterChain)
	case CreateLinkRequest:
		// object.linger keeps the link alive if this process's proxy is
		// dropped mid-handover, e.g. across a daemon restart (spec.md §4.2).
		linkProps := map[string]interface{}{"object.linger": true}
		id, err := rt.bind.CreateLink(r.OutputNodeID, r.OutputPortName, r.InputNodeID, r.InputPortName, linkProps)
		if err != nil {
			return ErrorResponse{Err: fmt.Errorf("create link: %w", err)}
		}
		return LinkCreatedResponse{ID: id}
	case SetNodeVolumeRequest:
		if err := rt.bind.SetNodeVolume(r.NodeID, model.Clamp01(r.Value)); err != nil {
			return ErrorResponse{Err: fmt.Errorf("set node volume: %w", err)}
		}
		return VolumeSetResponse{}
	case SetNodeMuteRequest:
		if err := rt.bind.SetNodeMute(r.NodeID, r.Muted); err != nil {
			return ErrorResponse{Err: fmt.Errorf("set node mute: %w", err)}
		}
		return MuteSetResponse{}
	case DestroyNodeRequest:
		if err := rt.bind.DestroyNode(r.NodeID); err != nil {
			return ErrorResponse{Err: fmt.Errorf("destroy node: %w", err)}
		}
		delete(rt.trackedMixNodes, r.NodeID)
		return NodeDestroyedResponse{}
	case DestroyLinkRequest:
		if err := rt.bind.DestroyLink(r.LinkID); err != nil {
			return ErrorResponse{Err: fmt.Errorf("destroy link: %w", err)}
		}
		return LinkDestroyedResponse{}
	default:
		return ErrorResponse{Err: fmt.Errorf("unsupported request type %T", req)}
	}
}

// managedNodeProps builds the CustomProps every node this daemon creates
// carries, including the undertone.managed=true marker spec.md §4.2/§6
// treat as authoritative for distinguishing our own nodes from every
// other client on the graph. Volume-filter nodes get the additional
// monitor-exposing properties spec.md §4.2 names.
func managedNodeProps(position string, isFilter bool) map[string]interface{} {
	props := map[string]interface{}{
		"undertone.managed":               true,
		"node.passive":                    true,
		"session.suspend-timeout-seconds": 0,
		"audio.position":                  position,
	}
	if isFilter {
		props["monitor.channel-volumes"] = true
		props["undertone.volume-filter"] = true
	}
	return props
}

func (rt *Runtime) createNode(name, description string, channels uint32, channelPosition string, typ pwcore.VirtualNodeType, factory pwcore.VirtualNodeFactory) Response {
	position := channelPosition
	if channels == 1 {
		position = "MONO"
	}
	cfg := pwcore.VirtualNodeConfig{
		Name:          name,
		Description:   description,
		Type:          typ,
		Factory:       factory,
		Channels:      channels,
		SampleRate:    48000,
		BitDepth:      32,
		ChannelLayout: position,
		Virtual:       true,
		Passive:       true,
		CustomProps:   managedNodeProps(position, typ == pwcore.VirtualNode_Filter),
	}
	node, err := rt.bind.CreateNode(cfg)
	if err != nil {
		return ErrorResponse{Err: fmt.Errorf("create node %q: %w", name, err)}
	}
	return NodeCreatedResponse{ID: node.ID, Name: name}
}

func (rt *Runtime) applyAndPublish(ev rawEvent) {
	switch ev.kind {
	case "node-added":
		n := model.NodeRecord{
			ID:         ev.nodeID,
			Name:       ev.nodeName,
			MediaClass: ev.mediaClass,
			AppName:    ev.appName,
			Binary:     ev.binary,
			PID:        ev.pid,
			// Managed reflects the Created-Objects Registry, not the
			// server's echo of our undertone.managed property: this
			// process's own bookkeeping of "did I ask for this node" is
			// authoritative and doesn't depend on property round-tripping
			// through the server unchanged (spec.md §4.2/§6).
			Managed: rt.cache.IsManagedName(ev.nodeName),
		}
		rt.cache.AddNode(n)
		if ev.nodeName == rt.targetName {
			rt.publish(TargetDeviceDetectedEvent{Serial: ev.nodeName})
		}
		if n.IsAudioClient(rt.targetName) {
			rt.publish(ClientAppearedEvent{ID: n.ID, Name: n.AppName, PID: n.PID})
		}
		rt.publish(NodeAddedEvent{Node: n})

	case "node-removed":
		n, _ := rt.cache.NodeByID(ev.nodeID)
		rt.cache.RemoveNode(ev.nodeID)
		if ev.nodeName == rt.targetName || n.Name == rt.targetName {
			rt.publish(TargetDeviceRemovedEvent{})
		}
		if n.IsAudioClient(rt.targetName) {
			rt.publish(ClientDisappearedEvent{ID: ev.nodeID})
		}
		rt.publish(NodeRemovedEvent{ID: ev.nodeID, Name: n.Name})

	case "port-added":
		p := model.PortRecord{
			ID:              ev.portID,
			NodeID:          ev.portNode,
			Direction:       model.PortDirection(ev.direction),
			ChannelPosition: ev.chanPos,
		}
		rt.cache.AddPort(p)
		rt.publish(PortAddedEvent{Port: p})

	case "port-removed":
		rt.cache.RemovePort(ev.portID)
		rt.publish(PortRemovedEvent{ID: ev.portID})

	case "link-created":
		l := model.LinkRecord{
			ID:         ev.linkID,
			OutputNode: ev.outputNode,
			InputNode:  ev.inputNode,
			State:      model.LinkStateActive,
		}
		rt.cache.AddLink(l)
		rt.publish(LinkCreatedEvent{ID: l.ID, OutputNode: l.OutputNode, InputNode: l.InputNode})

	case "link-removed":
		rt.cache.RemoveLink(ev.linkID)
		rt.publish(LinkRemovedEvent{ID: ev.linkID})

	case "disconnected":
		rt.publish(DisconnectedEvent{})
	}
}

func (rt *Runtime) pollLevels() {
	for nodeID, mix := range rt.trackedMixNodes {
		peak, err := rt.bind.NodePeakLevel(nodeID)
		if err != nil {
			continue
		}
		rt.levels.record(mix, peak)
		rt.publish(LevelsUpdatedEvent{Mix: mix, Peak: peak})
	}
}
