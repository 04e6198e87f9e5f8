package applier

import (
	"context"

	appErrors "github.com/undertone-audio/undertone/internal/errors"
	"github.com/undertone-audio/undertone/internal/ipc"
	"github.com/undertone-audio/undertone/internal/model"
	"github.com/undertone-audio/undertone/internal/pwclient"
)

// Apply executes one mutating command end to end: validate, update
// memory, persist, push to the Server Runtime, emit an IPC event
// (spec.md §4.5). It returns the value to report back to the requesting
// client, or an error the IPC layer maps to a wire error code.
//
// Ordering across concurrent callers is the caller's responsibility —
// in production exactly one goroutine (the Event Loop) ever calls Apply,
// so the per-command mutex below guards against nothing but defensive
// future misuse.
func (a *Applier) Apply(ctx context.Context, req ipc.Request) (any, error) {
	switch r := req.(type) {
	case ipc.SetChannelVolumeRequest:
		return a.setChannelVolume(ctx, r)
	case ipc.SetChannelMuteRequest:
		return a.setChannelMute(ctx, r)
	case ipc.SetMasterVolumeRequest:
		return a.setMasterVolume(ctx, r)
	case ipc.SetMasterMuteRequest:
		return a.setMasterMute(ctx, r)
	case ipc.SetAppRouteRequest:
		return a.setAppRoute(ctx, r)
	case ipc.RemoveAppRouteRequest:
		return a.removeAppRoute(ctx, r)
	case ipc.SaveProfileRequest:
		return a.saveProfile(ctx, r)
	case ipc.LoadProfileRequest:
		return a.loadProfile(ctx, r)
	case ipc.DeleteProfileRequest:
		return a.deleteProfile(ctx, r)
	case ipc.SetMicGainRequest:
		return a.setMicGain(ctx, r)
	case ipc.SetMicMuteRequest:
		return a.setMicMute(ctx, r)
	case ipc.SetMonitorOutputRequest:
		return a.setMonitorOutput(ctx, r)
	case ipc.ReconcileRequest:
		return a.Reconcile(ctx)
	default:
		return nil, appErrors.Newf("applier: unsupported command %T", req).Component("applier").Category(appErrors.CategoryClientInput).Build()
	}
}

func clientInputf(format string, args ...any) error {
	return appErrors.Newf(format, args...).Component("applier").Category(appErrors.CategoryClientInput).Build()
}

// notFoundf builds a CategoryNotFound error whose message is the literal
// text the IPC layer reports to the caller (spec.md §8 scenario 4), so
// callers format the exact "<Thing> not found: <name>" wording rather
// than leaving it to error-wrapping to decide.
func notFoundf(format string, args ...any) error {
	return appErrors.Newf(format, args...).Component("applier").Category(appErrors.CategoryNotFound).Build()
}

func (a *Applier) channel(name string) (*model.Channel, error) {
	ch, ok := a.channels[name]
	if !ok {
		return nil, notFoundf("Channel not found: %s", name)
	}
	return ch, nil
}

func parseMix(mix string) (model.Mix, error) {
	m := model.Mix(mix)
	if !m.Valid() {
		return "", clientInputf("unknown mix %q", mix)
	}
	return m, nil
}

func (a *Applier) setChannelVolume(ctx context.Context, r ipc.SetChannelVolumeRequest) (any, error) {
	mix, err := parseMix(r.Mix)
	if err != nil {
		return nil, err
	}

	a.mu.Lock()
	ch, err := a.channel(r.Channel)
	if err != nil {
		a.mu.Unlock()
		return nil, err
	}
	clamped := ch.SetVolume(mix, r.Volume)
	snapshot := *ch
	a.mu.Unlock()

	if err := a.store.SaveChannelState(r.Channel, snapshot); err != nil {
		return nil, appErrors.Wrap(err).Component("applier").Category(appErrors.CategoryInvariant).Build()
	}
	a.pushVolume(ctx, ch.VolumeFilterName(mix), clamped)
	a.emit(ipc.EventChannelVolumeChanged, map[string]any{"channel": r.Channel, "mix": r.Mix, "volume": clamped})
	return map[string]any{"volume": clamped}, nil
}

func (a *Applier) setChannelMute(ctx context.Context, r ipc.SetChannelMuteRequest) (any, error) {
	mix, err := parseMix(r.Mix)
	if err != nil {
		return nil, err
	}

	a.mu.Lock()
	ch, err := a.channel(r.Channel)
	if err != nil {
		a.mu.Unlock()
		return nil, err
	}
	ch.SetMuted(mix, r.Muted)
	snapshot := *ch
	a.mu.Unlock()

	if err := a.store.SaveChannelState(r.Channel, snapshot); err != nil {
		return nil, appErrors.Wrap(err).Component("applier").Category(appErrors.CategoryInvariant).Build()
	}
	a.pushMute(ctx, ch.VolumeFilterName(mix), r.Muted)
	a.emit(ipc.EventChannelMuteChanged, map[string]any{"channel": r.Channel, "mix": r.Mix, "muted": r.Muted})
	return map[string]any{"muted": r.Muted}, nil
}

// setMasterVolume applies a master-level volume. There is no single
// audio-server node representing "all channels at once" — the master
// value is bookkeeping the UI reads back, applied to each channel's
// existing per-mix volume proportionally is out of scope (spec.md names
// no mixing formula), so this stores the master value only and pushes
// nothing to the Server Runtime beyond what per-channel commands already
// cover.
func (a *Applier) setMasterVolume(ctx context.Context, r ipc.SetMasterVolumeRequest) (any, error) {
	mix, err := parseMix(r.Mix)
	if err != nil {
		return nil, err
	}

	a.mu.Lock()
	clamped := model.Clamp01(r.Volume)
	if mix == model.MixStream {
		a.mixer.StreamVolume = clamped
	} else {
		a.mixer.MonitorVolume = clamped
	}
	snapshot := a.mixer
	a.mu.Unlock()

	if err := a.persistMixerViaDefaultProfile(snapshot); err != nil {
		return nil, err
	}
	a.emit(ipc.EventStateChanged, map[string]any{"mixer": snapshot})
	return map[string]any{"volume": clamped}, nil
}

func (a *Applier) setMasterMute(ctx context.Context, r ipc.SetMasterMuteRequest) (any, error) {
	mix, err := parseMix(r.Mix)
	if err != nil {
		return nil, err
	}

	a.mu.Lock()
	if mix == model.MixStream {
		a.mixer.StreamMuted = r.Muted
	} else {
		a.mixer.MonitorMuted = r.Muted
	}
	snapshot := a.mixer
	a.mu.Unlock()

	if err := a.persistMixerViaDefaultProfile(snapshot); err != nil {
		return nil, err
	}
	a.emit(ipc.EventStateChanged, map[string]any{"mixer": snapshot})
	return map[string]any{"muted": r.Muted}, nil
}

func (a *Applier) setAppRoute(ctx context.Context, r ipc.SetAppRouteRequest) (any, error) {
	if r.Pattern == "" {
		return nil, clientInputf("app_pattern must not be empty")
	}
	a.mu.Lock()
	if _, err := a.channel(r.Channel); err != nil {
		a.mu.Unlock()
		return nil, err
	}
	rule := model.RouteRule{Pattern: r.Pattern, Type: model.MatchExact, Channel: r.Channel, Priority: 100, Seq: len(a.rules)}
	a.rules = upsertRule(a.rules, rule)
	rulesSnapshot := append([]model.RouteRule(nil), a.rules...)
	a.mu.Unlock()

	if err := a.store.SaveRoute(rule); err != nil {
		return nil, appErrors.Wrap(err).Component("applier").Category(appErrors.CategoryInvariant).Build()
	}
	a.router.SetRules(rulesSnapshot)
	a.rescanAndRelink(ctx)
	a.emit(ipc.EventAppRouteChanged, map[string]any{"app_pattern": r.Pattern, "channel": r.Channel})
	return map[string]any{"success": true}, nil
}

func (a *Applier) removeAppRoute(ctx context.Context, r ipc.RemoveAppRouteRequest) (any, error) {
	a.mu.Lock()
	var kept []model.RouteRule
	for _, rule := range a.rules {
		if rule.Pattern != r.Pattern {
			kept = append(kept, rule)
		}
	}
	a.rules = kept
	rulesSnapshot := append([]model.RouteRule(nil), a.rules...)
	a.mu.Unlock()

	if err := a.store.DeleteRoute(r.Pattern); err != nil {
		return nil, appErrors.Wrap(err).Component("applier").Category(appErrors.CategoryInvariant).Build()
	}
	a.router.SetRules(rulesSnapshot)
	a.emit(ipc.EventAppRouteChanged, map[string]any{"app_pattern": r.Pattern, "removed": true})
	return map[string]any{"success": true}, nil
}

func upsertRule(rules []model.RouteRule, rule model.RouteRule) []model.RouteRule {
	for i, existing := range rules {
		if existing.Pattern == rule.Pattern {
			rule.Seq = existing.Seq
			rules[i] = rule
			return rules
		}
	}
	return append(rules, rule)
}

// rescanAndRelink re-evaluates every currently known audio client against
// the router and issues a link request for each output/input port pair
// (matched by channel position) between the client and its routed
// channel sink that is not already linked. Existing links to other
// channels are left in place. Link failures are logged as warnings, matching the Server Runtime's
// non-fatal link-creation contract (spec.md §4.5).
func (a *Applier) rescanAndRelink(ctx context.Context) {
	for _, client := range a.cache.AudioClients(a.targetDeviceName) {
		channel := a.router.Route(client.AppName, client.Binary)
		ch, err := a.channel(channel)
		if err != nil {
			continue
		}
		sinkName := ch.SinkName()
		sinkID, ok := a.cache.CreatedNode(sinkName)
		if !ok {
			a.logf("route rescan: sink %q for channel %q not yet created", sinkName, channel)
			continue
		}
		outPorts := a.cache.PortsOf(client.ID, model.DirectionOutput, "")
		inPorts := a.cache.PortsOf(sinkID, model.DirectionInput, "")
		for _, op := range outPorts {
			for _, ip := range inPorts {
				if op.ChannelPosition != ip.ChannelPosition {
					continue
				}
				if a.cache.LinkBetweenPorts(op.ID, ip.ID) {
					continue
				}
				req := pwclient.CreateLinkRequest{OutputNodeID: client.ID, OutputPortName: op.Name, InputNodeID: sinkID, InputPortName: ip.Name}
				if _, err := a.rt.Do(ctx, req); err != nil {
					a.logf("route rescan: link %s -> %s failed: %v", client.Name, sinkName, err)
				}
			}
		}
	}
}

func (a *Applier) setMicGain(ctx context.Context, r ipc.SetMicGainRequest) (any, error) {
	clamped := model.Clamp01(r.Gain)
	a.mu.Lock()
	a.mixer.MicGain = clamped
	snapshot := a.mixer
	a.mu.Unlock()

	if err := a.persistMixerViaDefaultProfile(snapshot); err != nil {
		return nil, err
	}
	// mic-passthrough is treated exactly like any other volume-filter
	// target (SPEC_FULL.md §B.8).
	a.pushVolume(ctx, micPassthroughNode, clamped)
	a.emit(ipc.EventStateChanged, map[string]any{"mixer": snapshot})
	return map[string]any{"gain": clamped}, nil
}

func (a *Applier) setMicMute(ctx context.Context, r ipc.SetMicMuteRequest) (any, error) {
	a.mu.Lock()
	a.mixer.MicMuted = r.Muted
	snapshot := a.mixer
	a.mu.Unlock()

	if err := a.persistMixerViaDefaultProfile(snapshot); err != nil {
		return nil, err
	}
	a.pushMute(ctx, micPassthroughNode, r.Muted)
	a.emit(ipc.EventMicMuteChanged, map[string]any{"muted": r.Muted})
	return map[string]any{"muted": r.Muted}, nil
}

func (a *Applier) setMonitorOutput(ctx context.Context, r ipc.SetMonitorOutputRequest) (any, error) {
	if r.DeviceName == "" {
		return nil, clientInputf("device_name must not be empty")
	}
	a.mu.Lock()
	a.targetDeviceName = r.DeviceName
	a.mu.Unlock()

	actions, err := a.Reconcile(ctx)
	if err != nil {
		return nil, err
	}
	a.emit(ipc.EventStateChanged, map[string]any{"target_device": r.DeviceName})
	return actions, nil
}

// persistMixerViaDefaultProfile writes mixer state by updating the
// default profile's Mixer field, since the persistent store surface
// (spec.md §6) has no standalone "save mixer" call — mixer state only
// exists as part of a Profile snapshot.
func (a *Applier) persistMixerViaDefaultProfile(mixer model.MixerState) error {
	profile, err := a.store.GetDefaultProfile()
	if err != nil {
		return appErrors.Wrap(err).Component("applier").Category(appErrors.CategoryInvariant).Build()
	}
	profile.Mixer = mixer
	if err := a.store.SaveProfile(profile); err != nil {
		return appErrors.Wrap(err).Component("applier").Category(appErrors.CategoryInvariant).Build()
	}
	return nil
}
