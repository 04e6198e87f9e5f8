package pwclient

import (
	"context"
	"fmt"

	pwcore "github.com/vignemail1/pipewire-go/core"
)

// rawEvent is the binding-level notification shape, translated into a
// GraphEvent by the loop. Keeping it narrow (rather than exposing
// pwcore types directly outside this file) means a future upgrade of the
// underlying client only touches this file.
type rawEvent struct {
	kind       string // "node-added", "node-removed", "port-added", "port-removed", "link-created", "link-removed", "client-appeared", "client-disappeared", "disconnected"
	nodeID     uint32
	nodeName   string
	mediaClass string
	appName    string
	binary     string
	pid        int
	portID     uint32
	portNode   uint32
	direction  string
	chanPos    string
	linkID     uint32
	outputNode uint32
	inputNode  uint32
}

// binding is the narrow surface pwclient needs from the audio server
// connection. Isolating it behind an interface keeps the rest of the
// package free of direct pwcore references and testable with a fake.
type binding interface {
	Connect(ctx context.Context) error
	Close() error
	CreateNode(cfg pwcore.VirtualNodeConfig) (*pwcore.VirtualNode, error)
	DestroyNode(id uint32) error
	CreateLink(outputNode uint32, outputPort string, inputNode uint32, inputPort string, props map[string]interface{}) (uint32, error)
	DestroyLink(id uint32) error
	SetNodeVolume(id uint32, value float64) error
	SetNodeMute(id uint32, muted bool) error
	NodePeakLevel(id uint32) (float64, error)
	Events() <-chan rawEvent
}

// pipewireBinding adapts github.com/vignemail1/pipewire-go/core to the
// binding interface above.
type pipewireBinding struct {
	client *pwcore.Client
	events chan rawEvent
}

func newPipewireBinding() *pipewireBinding {
	return &pipewireBinding{events: make(chan rawEvent, 64)}
}

func (b *pipewireBinding) Connect(ctx context.Context) error {
	client, err := pwcore.Connect(ctx)
	if err != nil {
		return fmt.Errorf("connect to audio server: %w", err)
	}
	b.client = client
	b.client.OnRegistryEvent(func(ev pwcore.RegistryEvent) {
		b.dispatch(ev)
	})
	return nil
}

func (b *pipewireBinding) Close() error {
	if b.client == nil {
		return nil
	}
	return b.client.Close()
}

func (b *pipewireBinding) CreateNode(cfg pwcore.VirtualNodeConfig) (*pwcore.VirtualNode, error) {
	return b.client.CreateVirtualNode(cfg)
}

func (b *pipewireBinding) DestroyNode(id uint32) error {
	return b.client.DestroyVirtualNode(id)
}

func (b *pipewireBinding) CreateLink(outputNode uint32, outputPort string, inputNode uint32, inputPort string, props map[string]interface{}) (uint32, error) {
	return b.client.Link(outputNode, outputPort, inputNode, inputPort, props)
}

func (b *pipewireBinding) DestroyLink(id uint32) error {
	return b.client.Unlink(id)
}

func (b *pipewireBinding) SetNodeVolume(id uint32, value float64) error {
	return b.client.SetNodeProperty(id, "volume", value)
}

func (b *pipewireBinding) SetNodeMute(id uint32, muted bool) error {
	return b.client.SetNodeProperty(id, "mute", muted)
}

func (b *pipewireBinding) NodePeakLevel(id uint32) (float64, error) {
	v, err := b.client.GetNodeProperty(id, "channelVolumes.peak")
	if err != nil {
		return 0, err
	}
	f, _ := v.(float64)
	return f, nil
}

func (b *pipewireBinding) Events() <-chan rawEvent { return b.events }

func (b *pipewireBinding) dispatch(ev pwcore.RegistryEvent) {
	select {
	case b.events <- translateRegistryEvent(ev):
	default:
		// Event channel is full; the server will re-announce unchanged
		// state on the next sync, so a dropped notification here is not
		// fatal, only delayed.
	}
}

func translateRegistryEvent(ev pwcore.RegistryEvent) rawEvent {
	return rawEvent{
		kind:       ev.Kind,
		nodeID:     ev.NodeID,
		nodeName:   ev.NodeName,
		mediaClass: ev.MediaClass,
		appName:    ev.AppName,
		binary:     ev.Binary,
		pid:        ev.PID,
		portID:     ev.PortID,
		portNode:   ev.PortNode,
		direction:  ev.Direction,
		chanPos:    ev.ChannelPosition,
		linkID:     ev.LinkID,
		outputNode: ev.OutputNode,
		inputNode:  ev.InputNode,
	}
}
