package applier

import (
	"context"

	appErrors "github.com/undertone-audio/undertone/internal/errors"
	"github.com/undertone-audio/undertone/internal/model"
	"github.com/undertone-audio/undertone/internal/pwclient"
	"github.com/undertone-audio/undertone/internal/reconciler"
)

// Reconcile computes and executes the graph repairs needed to bring the
// observed graph into agreement with the current channel set and target
// device (spec.md §4.3, driven from the Event Loop on every Connected
// event and on explicit Reconcile commands). It returns the list of
// warnings the reconciler raised (e.g. target device absent), if any.
func (a *Applier) Reconcile(ctx context.Context) ([]string, error) {
	channels := a.Channels()
	a.mu.RLock()
	target := a.targetDeviceName
	a.mu.RUnlock()

	actions := reconciler.Reconcile(channels, target, a.cache)

	var warnings []string
	for _, act := range actions {
		a.recordAction(act)
		switch action := act.(type) {
		case reconciler.CreateSinkAction:
			if err := a.createManagedNode(ctx, pwclient.CreateSinkRequest{
				Name: action.Name, Description: action.Description,
				Channels: action.Channels, ChannelPosition: action.ChannelPosition,
			}, action.Name); err != nil {
				a.logf("reconcile: create sink %q: %v", action.Name, err)
			}
		case reconciler.CreateVolumeFilterAction:
			if err := a.createManagedNode(ctx, pwclient.CreateVolumeFilterRequest{
				Name: action.Name, Description: action.Description,
				Channels: action.Channels, ChannelPosition: action.ChannelPosition,
			}, action.Name); err != nil {
				a.logf("reconcile: create volume filter %q: %v", action.Name, err)
			}
		case reconciler.CreateLinkAction:
			a.createManagedLink(ctx, action)
		case reconciler.DestroyNodeAction:
			if _, err := a.rt.Do(ctx, pwclient.DestroyNodeRequest{NodeID: action.ID}); err != nil {
				a.logf("reconcile: destroy node %d: %v", action.ID, err)
			}
		case reconciler.DestroyLinkAction:
			if _, err := a.rt.Do(ctx, pwclient.DestroyLinkRequest{LinkID: action.ID}); err != nil {
				a.logf("reconcile: destroy link %d: %v", action.ID, err)
			} else if a.recorder != nil {
				a.recorder.RecordLinkDestroyed()
			}
		case reconciler.WarnAction:
			warnings = append(warnings, action.Message)
		}
	}
	return warnings, nil
}

// recordAction reports the action's type to the metrics Recorder, keyed
// by the same names the action sum type's Go type carries.
func (a *Applier) recordAction(act reconciler.Action) {
	if a.recorder == nil {
		return
	}
	switch act.(type) {
	case reconciler.CreateSinkAction:
		a.recorder.RecordReconcileAction("create_sink")
	case reconciler.CreateVolumeFilterAction:
		a.recorder.RecordReconcileAction("create_volume_filter")
	case reconciler.CreateLinkAction:
		a.recorder.RecordReconcileAction("create_link")
	case reconciler.DestroyNodeAction:
		a.recorder.RecordReconcileAction("destroy_node")
	case reconciler.DestroyLinkAction:
		a.recorder.RecordReconcileAction("destroy_link")
	case reconciler.WarnAction:
		a.recorder.RecordReconcileAction("warn")
	}
}

// createManagedNode issues the node-creation request and records the
// resulting server id in the Created-Objects Registry under logicalName,
// so future volume/mute pushes and link creation can find it by the name
// the Reconciler uses rather than a server-assigned id.
func (a *Applier) createManagedNode(ctx context.Context, req pwclient.Request, logicalName string) error {
	resp, err := a.rt.Do(ctx, req)
	if err != nil {
		return appErrors.Wrap(err).Component("applier").Category(appErrors.CategoryTransient).Build()
	}
	created, ok := resp.(pwclient.NodeCreatedResponse)
	if !ok {
		return appErrors.Newf("unexpected response %T creating %q", resp, logicalName).Component("applier").Category(appErrors.CategoryInvariant).Build()
	}
	a.cache.RecordCreatedNode(logicalName, created.ID)
	if mix := mixOfNodeName(logicalName); mix != "" {
		a.rt.TrackMixNode(created.ID, mix)
	}
	return nil
}

// mixOfNodeName reports which mix a managed mix node name (stream-mix or
// monitor-mix) belongs to, so newly created stream/monitor mix nodes are registered
// for level polling without the Reconciler needing to know about levels
// at all.
func mixOfNodeName(name string) model.Mix {
	switch name {
	case "stream-mix":
		return model.MixStream
	case "monitor-mix":
		return model.MixMonitor
	default:
		return ""
	}
}

func (a *Applier) createManagedLink(ctx context.Context, action reconciler.CreateLinkAction) {
	srcNode, ok := a.cache.NodeByName(action.SrcNode)
	if !ok {
		a.logf("reconcile: link source node %q not observed yet", action.SrcNode)
		return
	}
	dstNode, ok := a.cache.NodeByName(action.DstNode)
	if !ok {
		a.logf("reconcile: link destination node %q not observed yet", action.DstNode)
		return
	}
	req := pwclient.CreateLinkRequest{
		OutputNodeID: srcNode.ID, OutputPortName: action.SrcPort,
		InputNodeID: dstNode.ID, InputPortName: action.DstPort,
	}
	if _, err := a.rt.Do(ctx, req); err != nil {
		a.logf("reconcile: link %s:%s -> %s:%s failed: %v", action.SrcNode, action.SrcPort, action.DstNode, action.DstPort, err)
	} else if a.recorder != nil {
		a.recorder.RecordLinkCreated()
	}
}
