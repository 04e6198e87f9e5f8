package applier

import (
	"context"

	appErrors "github.com/undertone-audio/undertone/internal/errors"
	"github.com/undertone-audio/undertone/internal/ipc"
	"github.com/undertone-audio/undertone/internal/model"
	"github.com/undertone-audio/undertone/internal/store"
)

func (a *Applier) saveProfile(ctx context.Context, r ipc.SaveProfileRequest) (any, error) {
	if r.Name == "" {
		return nil, clientInputf("profile name must not be empty")
	}

	a.mu.RLock()
	snapshots := make([]model.ChannelSnapshot, 0, len(a.order))
	for _, name := range a.order {
		ch := a.channels[name]
		snapshots = append(snapshots, model.ChannelSnapshot{
			Name: ch.Name, StreamVolume: ch.StreamVolume, StreamMuted: ch.StreamMuted,
			MonitorVolume: ch.MonitorVolume, MonitorMuted: ch.MonitorMuted,
		})
	}
	mixer := a.mixer
	rules := append([]model.RouteRule(nil), a.rules...)
	a.mu.RUnlock()

	profile := model.Profile{Name: r.Name, Channels: snapshots, Mixer: mixer, Rules: rules}
	if err := a.store.SaveProfile(profile); err != nil {
		return nil, appErrors.Wrap(err).Component("applier").Category(appErrors.CategoryInvariant).Build()
	}
	a.emit(ipc.EventProfileChanged, map[string]any{"name": r.Name, "action": "saved"})
	return map[string]any{"success": true}, nil
}

// loadProfile applies a saved profile's channel, mixer, and rule state
// atomically in memory, then pushes best-effort parameter changes to the
// Server Runtime for every channel the profile names (spec.md §4.5:
// "LoadProfile applies atomically in-memory; Server Runtime pushes are
// best-effort"). A channel in the profile that no longer exists in the
// live channel set is skipped, not an error — channel definitions can
// change between when a profile was saved and when it's loaded.
func (a *Applier) loadProfile(ctx context.Context, r ipc.LoadProfileRequest) (any, error) {
	profile, err := a.store.LoadProfile(r.Name)
	if err != nil {
		if err == store.ErrNotFound {
			return nil, notFoundf("Profile not found: %s", r.Name)
		}
		return nil, appErrors.Wrap(err).Component("applier").Category(appErrors.CategoryInvariant).Build()
	}

	a.mu.Lock()
	for _, snap := range profile.Channels {
		ch, ok := a.channels[snap.Name]
		if !ok {
			continue
		}
		ch.StreamVolume = model.Clamp01(snap.StreamVolume)
		ch.StreamMuted = snap.StreamMuted
		ch.MonitorVolume = model.Clamp01(snap.MonitorVolume)
		ch.MonitorMuted = snap.MonitorMuted
	}
	a.mixer = profile.Mixer
	a.rules = append([]model.RouteRule(nil), profile.Rules...)
	rulesSnapshot := append([]model.RouteRule(nil), a.rules...)
	a.mu.Unlock()

	a.router.SetRules(rulesSnapshot)

	for _, snap := range profile.Channels {
		ch, ok := a.channels[snap.Name]
		if !ok {
			continue
		}
		a.pushVolume(ctx, ch.VolumeFilterName(model.MixStream), ch.StreamVolume)
		a.pushMute(ctx, ch.VolumeFilterName(model.MixStream), ch.StreamMuted)
		a.pushVolume(ctx, ch.VolumeFilterName(model.MixMonitor), ch.MonitorVolume)
		a.pushMute(ctx, ch.VolumeFilterName(model.MixMonitor), ch.MonitorMuted)
	}
	a.pushVolume(ctx, micPassthroughNode, profile.Mixer.MicGain)
	a.pushMute(ctx, micPassthroughNode, profile.Mixer.MicMuted)

	a.emit(ipc.EventProfileChanged, map[string]any{"name": r.Name, "action": "loaded"})
	return map[string]any{"success": true}, nil
}

// deleteProfile removes a saved profile. Deleting the default profile is
// a recoverable, testable outcome (spec.md §8: "returns success=false
// and the profile remains"), not an error response — it is reported the
// same way as any other no-op command result.
func (a *Applier) deleteProfile(ctx context.Context, r ipc.DeleteProfileRequest) (any, error) {
	deleted, err := a.store.DeleteProfile(r.Name)
	if err != nil {
		if err == store.ErrNotFound {
			return nil, notFoundf("Profile not found: %s", r.Name)
		}
		return nil, appErrors.Wrap(err).Component("applier").Category(appErrors.CategoryInvariant).Build()
	}
	if !deleted {
		return map[string]any{"success": false}, nil
	}
	a.emit(ipc.EventProfileChanged, map[string]any{"name": r.Name, "action": "deleted"})
	return map[string]any{"success": true}, nil
}
