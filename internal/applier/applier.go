// Package applier is the Command Applier (spec.md §4.5): the single
// writer of in-memory channel/mixer/rule state. It validates each
// command, updates memory, persists idempotently, pushes the resulting
// parameter changes to the Server Runtime via the Created-Objects
// Registry, and emits an IPC event — generalized from the corpus'
// mutex-guarded settings-update handlers in internal/conf onto
// Undertone's command contract.
package applier

import (
	"context"
	"fmt"
	"sort"
	"sync"

	appErrors "github.com/undertone-audio/undertone/internal/errors"
	"github.com/undertone-audio/undertone/internal/graphcache"
	"github.com/undertone-audio/undertone/internal/logging"
	"github.com/undertone-audio/undertone/internal/metrics"
	"github.com/undertone-audio/undertone/internal/model"
	"github.com/undertone-audio/undertone/internal/pwclient"
	"github.com/undertone-audio/undertone/internal/router"
	"github.com/undertone-audio/undertone/internal/store"
)

// micPassthroughNode is the always-present volume-filter node
// SetMicGain/SetMicMute target (SPEC_FULL.md §B.8). It mirrors the
// reconciler package's constant of the same name; duplicated rather than
// imported to keep the two packages independently testable.
const micPassthroughNode = "mic-passthrough"

// EventPublisher broadcasts an IPC event to subscribed clients. In
// production this is ipcserver.Server.Broadcast.
type EventPublisher func(eventType string, data any)

// serverRuntime is the narrow slice of pwclient.Runtime the Applier
// needs: submit a request and read back level history. Isolating it
// behind an interface (mirroring pwclient's own binding seam over the
// third-party audio-server client) lets tests exercise command handling
// without a live audio-server connection.
type serverRuntime interface {
	Do(ctx context.Context, req pwclient.Request) (pwclient.Response, error)
	TrackMixNode(nodeID uint32, mix model.Mix)
	RecentLevels(mix model.Mix) []float64
}

// Applier owns the daemon's in-memory channel, mixer, and routing state
// and is the only component permitted to mutate it (spec.md §4.5).
type Applier struct {
	mu sync.RWMutex

	channels map[string]*model.Channel
	order    []string // channel names, stable SortOrder
	mixer    model.MixerState
	rules    []model.RouteRule

	router *router.Router
	store  store.Store
	cache  *graphcache.Cache
	rt     serverRuntime

	targetDeviceName string
	publish          EventPublisher
	recorder         metrics.Recorder
}

// SetRecorder attaches a metrics.Recorder. Optional — a nil recorder (the
// zero value) means no metrics are recorded, which is the default so
// tests and early bring-up don't need one wired.
func (a *Applier) SetRecorder(r metrics.Recorder) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.recorder = r
}

// New constructs an Applier and loads its initial in-memory state from
// st. It also calls SetRules on the supplied router with the loaded
// rules, so routing is active before the first command arrives.
func New(st store.Store, rtr *router.Router, cache *graphcache.Cache, rt *pwclient.Runtime, targetDeviceName string, publish EventPublisher) (*Applier, error) {
	return newApplier(st, rtr, cache, rt, targetDeviceName, publish)
}

func newApplier(st store.Store, rtr *router.Router, cache *graphcache.Cache, rt serverRuntime, targetDeviceName string, publish EventPublisher) (*Applier, error) {
	channels, err := st.LoadChannels()
	if err != nil {
		return nil, appErrors.Wrap(err).Component("applier").Category(appErrors.CategoryInvariant).Build()
	}
	rules, err := st.LoadRoutes()
	if err != nil {
		return nil, appErrors.Wrap(err).Component("applier").Category(appErrors.CategoryInvariant).Build()
	}

	a := &Applier{
		channels:         make(map[string]*model.Channel),
		router:           rtr,
		store:            st,
		cache:            cache,
		rt:               rt,
		targetDeviceName: targetDeviceName,
		publish:          publish,
		rules:            rules,
		mixer:            model.MixerState{StreamVolume: 1, MonitorVolume: 1},
	}
	for i := range channels {
		ch := channels[i]
		a.channels[ch.Name] = &ch
		a.order = append(a.order, ch.Name)
	}
	sort.Slice(a.order, func(i, j int) bool {
		return a.channels[a.order[i]].SortOrder < a.channels[a.order[j]].SortOrder
	})
	rtr.SetRules(rules)
	return a, nil
}

// Channels returns a snapshot of the current channel set, in display
// order.
func (a *Applier) Channels() []model.Channel {
	a.mu.RLock()
	defer a.mu.RUnlock()
	out := make([]model.Channel, 0, len(a.order))
	for _, name := range a.order {
		out = append(out, *a.channels[name])
	}
	return out
}

// Mixer returns a copy of the current master mixer state.
func (a *Applier) Mixer() model.MixerState {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.mixer
}

// Rules returns a copy of the current route rule set.
func (a *Applier) Rules() []model.RouteRule {
	a.mu.RLock()
	defer a.mu.RUnlock()
	out := make([]model.RouteRule, len(a.rules))
	copy(out, a.rules)
	return out
}

// pushVolume looks up nodeName in the Created-Objects Registry and, if
// found, asks the Server Runtime to set its volume. A miss is logged as
// a warning, not an error — the node may not exist yet (spec.md §4.5:
// "filter-not-found is a warning, not a command failure").
func (a *Applier) pushVolume(ctx context.Context, nodeName string, value float64) {
	id, ok := a.cache.CreatedNode(nodeName)
	if !ok {
		a.logf("volume-filter %q not yet created; skipping Server Runtime push", nodeName)
		return
	}
	if _, err := a.rt.Do(ctx, pwclient.SetNodeVolumeRequest{NodeID: id, Value: value}); err != nil {
		a.logf("push volume to %q failed: %v", nodeName, err)
	}
}

func (a *Applier) pushMute(ctx context.Context, nodeName string, muted bool) {
	id, ok := a.cache.CreatedNode(nodeName)
	if !ok {
		a.logf("volume-filter %q not yet created; skipping Server Runtime push", nodeName)
		return
	}
	if _, err := a.rt.Do(ctx, pwclient.SetNodeMuteRequest{NodeID: id, Muted: muted}); err != nil {
		a.logf("push mute to %q failed: %v", nodeName, err)
	}
}

func (a *Applier) logf(format string, args ...any) {
	logging.Warn(fmt.Sprintf(format, args...))
}

func (a *Applier) emit(eventType string, data any) {
	if a.publish != nil {
		a.publish(eventType, data)
	}
}
