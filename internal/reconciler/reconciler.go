// Package reconciler computes the graph repair actions needed to bring
// the audio server's observed graph in line with the desired channel
// topology (spec.md §4.3). Reconcile is a pure function: it reads the
// graph cache but never mutates it and never talks to the audio server
// itself — the Command Applier is responsible for executing the actions
// it returns.
package reconciler

import (
	"fmt"

	"github.com/undertone-audio/undertone/internal/graphcache"
	"github.com/undertone-audio/undertone/internal/model"
)

// Action is the sum type of graph repairs the reconciler can request.
type Action interface{ isAction() }

type CreateSinkAction struct {
	Name            string
	Description     string
	Channels        uint32
	ChannelPosition string
}

type CreateVolumeFilterAction struct {
	Name            string
	Description     string
	Channels        uint32
	ChannelPosition string
}

type CreateLinkAction struct {
	SrcNode string
	SrcPort string
	DstNode string
	DstPort string
}

type DestroyNodeAction struct{ ID uint32 }

type DestroyLinkAction struct{ ID uint32 }

type WarnAction struct{ Message string }

func (CreateSinkAction) isAction()         {}
func (CreateVolumeFilterAction) isAction() {}
func (CreateLinkAction) isAction()         {}
func (DestroyNodeAction) isAction()        {}
func (DestroyLinkAction) isAction()        {}
func (WarnAction) isAction()               {}

const (
	streamMixNode  = "stream-mix"
	streamOutNode  = "stream-out"
	monitorMix     = "monitor-mix"
	micPassthrough = "mic-passthrough"
)

var stereoPositions = [2]string{"FL", "FR"}

// Reconcile computes the ordered list of actions that would bring cache
// into agreement with the desired channel set and target output device.
// Running it again against a graph that already reflects the returned
// actions yields an empty list (spec.md §4.3).
func Reconcile(channels []model.Channel, targetDeviceName string, cache *graphcache.Cache) []Action {
	var actions []Action

	desired := map[string]bool{streamMixNode: true, streamOutNode: true, monitorMix: true, micPassthrough: true}

	for _, ch := range channels {
		desired[ch.SinkName()] = true
		desired[ch.VolumeFilterName(model.MixStream)] = true
		desired[ch.VolumeFilterName(model.MixMonitor)] = true

		ensureSink(&actions, cache, ch.SinkName(), fmt.Sprintf("Undertone channel: %s", ch.DisplayName))
		ensureVolumeFilter(&actions, cache, ch.VolumeFilterName(model.MixStream), fmt.Sprintf("%s stream volume", ch.DisplayName))
		ensureVolumeFilter(&actions, cache, ch.VolumeFilterName(model.MixMonitor), fmt.Sprintf("%s monitor volume", ch.DisplayName))
	}
	ensureSink(&actions, cache, streamMixNode, "Undertone stream mix bus")
	ensureSink(&actions, cache, streamOutNode, "Undertone stream output")
	ensureSink(&actions, cache, monitorMix, "Undertone monitor mix bus")
	// Always present regardless of channel topology: SetMicGain/SetMicMute
	// target this node directly (SPEC_FULL.md §B.8). It carries no links
	// here — a future device-detection collaborator wires its input.
	ensureVolumeFilter(&actions, cache, micPassthrough, "Undertone microphone passthrough")

	for _, ch := range channels {
		sink := ch.SinkName()
		streamVol := ch.VolumeFilterName(model.MixStream)
		monitorVol := ch.VolumeFilterName(model.MixMonitor)

		ensureLinkPair(&actions, cache, sink, streamVol, "monitor", "playback")
		ensureLinkPair(&actions, cache, streamVol, streamMixNode, "monitor", "playback")
		ensureLinkPair(&actions, cache, sink, monitorVol, "monitor", "playback")
		ensureLinkPair(&actions, cache, monitorVol, monitorMix, "monitor", "playback")
	}
	ensureLinkPair(&actions, cache, streamMixNode, streamOutNode, "monitor", "playback")

	if _, ok := cache.NodeByName(targetDeviceName); ok {
		ensureLinkPair(&actions, cache, monitorMix, targetDeviceName, "monitor", "playback")
	} else {
		actions = append(actions, WarnAction{Message: fmt.Sprintf("target output device %q not present", targetDeviceName)})
	}

	for _, n := range cache.ManagedNodes() {
		if !desired[n.Name] {
			actions = append(actions, DestroyNodeAction{ID: n.ID})
		}
	}

	return actions
}

func ensureSink(actions *[]Action, cache *graphcache.Cache, name, description string) {
	if _, ok := cache.NodeByName(name); !ok {
		*actions = append(*actions, CreateSinkAction{Name: name, Description: description, Channels: 2, ChannelPosition: "FL,FR"})
	}
}

func ensureVolumeFilter(actions *[]Action, cache *graphcache.Cache, name, description string) {
	if _, ok := cache.NodeByName(name); !ok {
		*actions = append(*actions, CreateVolumeFilterAction{Name: name, Description: description, Channels: 2, ChannelPosition: "FL,FR"})
	}
}

// ensureLinkPair emits a CreateLinkAction for each stereo position (FL,
// FR) not already connected, so a partial failure (e.g. only FL wired)
// self-heals without re-creating the working side.
func ensureLinkPair(actions *[]Action, cache *graphcache.Cache, srcNode, dstNode, srcPortPrefix, dstPortPrefix string) {
	for _, pos := range stereoPositions {
		srcPort := srcPortPrefix + "_" + pos
		dstPort := dstPortPrefix + "_" + pos
		if !linkPresent(cache, srcNode, dstNode, pos) {
			*actions = append(*actions, CreateLinkAction{SrcNode: srcNode, SrcPort: srcPort, DstNode: dstNode, DstPort: dstPort})
		}
	}
}

func linkPresent(cache *graphcache.Cache, srcNode, dstNode, position string) bool {
	src, ok := cache.NodeByName(srcNode)
	if !ok {
		return false
	}
	dst, ok := cache.NodeByName(dstNode)
	if !ok {
		return false
	}
	srcPorts := cache.PortsOf(src.ID, model.DirectionOutput, position)
	dstPorts := cache.PortsOf(dst.ID, model.DirectionInput, position)
	if len(srcPorts) == 0 || len(dstPorts) == 0 {
		return false
	}
	return cache.LinkBetweenPorts(srcPorts[0].ID, dstPorts[0].ID)
}
