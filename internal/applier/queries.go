package applier

import (
	"github.com/undertone-audio/undertone/internal/ipc"
	"github.com/undertone-audio/undertone/internal/model"
	"github.com/undertone-audio/undertone/internal/store"
)

// Query answers a read-only IPC request directly from in-memory state and
// the graph cache, without going through Apply's persistence/Server
// Runtime path. Reconcile is intentionally absent here — it mutates the
// graph and belongs to Apply.
func (a *Applier) Query(req ipc.Request) (any, error) {
	switch r := req.(type) {
	case ipc.GetStateRequest:
		return a.getState(), nil
	case ipc.GetChannelsRequest:
		return a.Channels(), nil
	case ipc.GetChannelRequest:
		return a.getChannel(r.Name)
	case ipc.GetAppsRequest:
		return a.getApps(), nil
	case ipc.GetProfilesRequest:
		return a.store.ListProfiles()
	case ipc.GetProfileRequest:
		return a.getProfile(r.Name)
	case ipc.GetDeviceStatusRequest:
		return a.getDeviceStatus(), nil
	case ipc.GetDiagnosticsRequest:
		return a.getDiagnostics(), nil
	case ipc.GetOutputDevicesRequest:
		return a.getOutputDevices(), nil
	default:
		return nil, clientInputf("applier: unsupported query %T", req)
	}
}

func (a *Applier) getState() map[string]any {
	return map[string]any{
		"channels": a.Channels(),
		"mixer":    a.Mixer(),
		"rules":    a.Rules(),
	}
}

func (a *Applier) getChannel(name string) (model.Channel, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	ch, err := a.channel(name)
	if err != nil {
		return model.Channel{}, err
	}
	return *ch, nil
}

// getProfile translates the store's not-found sentinel into a
// CategoryNotFound error so the IPC layer maps it to a 404 (spec.md §6),
// rather than leaking store.ErrNotFound straight onto the wire.
func (a *Applier) getProfile(name string) (model.Profile, error) {
	profile, err := a.store.LoadProfile(name)
	if err != nil {
		if err == store.ErrNotFound {
			return model.Profile{}, notFoundf("Profile not found: %s", name)
		}
		return model.Profile{}, err
	}
	return profile, nil
}

// getApps enumerates currently observed application audio clients,
// annotated with the channel they currently route to.
func (a *Applier) getApps() []map[string]any {
	var out []map[string]any
	for _, n := range a.cache.AudioClients(a.targetDeviceName) {
		out = append(out, map[string]any{
			"name":    n.AppName,
			"binary":  n.Binary,
			"pid":     n.PID,
			"channel": a.router.Route(n.AppName, n.Binary),
		})
	}
	return out
}

func (a *Applier) getDeviceStatus() map[string]any {
	a.mu.RLock()
	target := a.targetDeviceName
	a.mu.RUnlock()
	_, connected := a.cache.NodeByName(target)
	return map[string]any{"target_device": target, "connected": connected}
}

// getDiagnostics surfaces recent mix levels, grounding SPEC_FULL.md
// §B.8's level-metering feature in a queryable form.
func (a *Applier) getDiagnostics() map[string]any {
	return map[string]any{
		"stream_levels":  a.rt.RecentLevels(model.MixStream),
		"monitor_levels": a.rt.RecentLevels(model.MixMonitor),
		"client_count":   len(a.cache.AudioClients(a.targetDeviceName)),
	}
}

func (a *Applier) getOutputDevices() []string {
	var devices []string
	for _, n := range a.cache.OutputDevices() {
		devices = append(devices, n.Name)
	}
	return devices
}
