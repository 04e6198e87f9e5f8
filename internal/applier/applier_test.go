package applier

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	appErrors "github.com/undertone-audio/undertone/internal/errors"
	"github.com/undertone-audio/undertone/internal/graphcache"
	"github.com/undertone-audio/undertone/internal/ipc"
	"github.com/undertone-audio/undertone/internal/model"
	"github.com/undertone-audio/undertone/internal/pwclient"
	"github.com/undertone-audio/undertone/internal/router"
	"github.com/undertone-audio/undertone/internal/store"
)

// fakeStore is an in-memory store.Store double, avoiding the gorm/sqlite
// dependency for applier-level command tests.
type fakeStore struct {
	channels map[string]model.Channel
	routes   map[string]model.RouteRule
	profiles map[string]model.Profile
	events   []string
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		channels: map[string]model.Channel{
			"music": {Name: "music", DisplayName: "Music", SortOrder: 0, StreamVolume: 1, MonitorVolume: 1},
			"voice": {Name: "voice", DisplayName: "Voice", SortOrder: 1, StreamVolume: 1, MonitorVolume: 1},
		},
		routes:   map[string]model.RouteRule{},
		profiles: map[string]model.Profile{"default": {Name: "default", Default: true}},
	}
}

func (f *fakeStore) LoadChannels() ([]model.Channel, error) {
	var out []model.Channel
	for _, ch := range f.channels {
		out = append(out, ch)
	}
	return out, nil
}

func (f *fakeStore) SaveChannelState(name string, ch model.Channel) error {
	f.channels[name] = ch
	return nil
}

func (f *fakeStore) LoadRoutes() ([]model.RouteRule, error) {
	var out []model.RouteRule
	for _, r := range f.routes {
		out = append(out, r)
	}
	return out, nil
}

func (f *fakeStore) SaveRoute(rule model.RouteRule) error {
	f.routes[rule.Pattern] = rule
	return nil
}

func (f *fakeStore) DeleteRoute(pattern string) error {
	delete(f.routes, pattern)
	return nil
}

func (f *fakeStore) ListProfiles() ([]model.Profile, error) {
	var out []model.Profile
	for _, p := range f.profiles {
		out = append(out, p)
	}
	return out, nil
}

func (f *fakeStore) LoadProfile(name string) (model.Profile, error) {
	p, ok := f.profiles[name]
	if !ok {
		return model.Profile{}, store.ErrNotFound
	}
	return p, nil
}

func (f *fakeStore) SaveProfile(p model.Profile) error {
	f.profiles[p.Name] = p
	return nil
}

func (f *fakeStore) DeleteProfile(name string) (bool, error) {
	p, ok := f.profiles[name]
	if !ok {
		return false, store.ErrNotFound
	}
	if p.Default {
		return false, nil
	}
	delete(f.profiles, name)
	return true, nil
}

func (f *fakeStore) GetDefaultProfile() (model.Profile, error) {
	for _, p := range f.profiles {
		if p.Default {
			return p, nil
		}
	}
	return model.Profile{}, store.ErrNotFound
}

func (f *fakeStore) LogEvent(level store.LogLevel, source, message string, data map[string]any) error {
	f.events = append(f.events, message)
	return nil
}

func (f *fakeStore) Close() error { return nil }

// fakeRuntime is a serverRuntime double recording every request it's
// asked to perform.
type fakeRuntime struct {
	calls  []pwclient.Request
	failOn func(pwclient.Request) bool
}

func (f *fakeRuntime) Do(ctx context.Context, req pwclient.Request) (pwclient.Response, error) {
	f.calls = append(f.calls, req)
	if f.failOn != nil && f.failOn(req) {
		return nil, assert.AnError
	}
	switch req.(type) {
	case pwclient.SetNodeVolumeRequest:
		return pwclient.VolumeSetResponse{}, nil
	case pwclient.SetNodeMuteRequest:
		return pwclient.MuteSetResponse{}, nil
	case pwclient.CreateLinkRequest:
		return pwclient.LinkCreatedResponse{ID: 1}, nil
	default:
		return pwclient.NodeCreatedResponse{ID: 1}, nil
	}
}

func (f *fakeRuntime) TrackMixNode(nodeID uint32, mix model.Mix) {}

func (f *fakeRuntime) RecentLevels(mix model.Mix) []float64 { return nil }

func newTestApplier(t *testing.T, fs *fakeStore, rt serverRuntime, cache *graphcache.Cache) *Applier {
	t.Helper()
	if fs == nil {
		fs = newFakeStore()
	}
	if cache == nil {
		cache = graphcache.New()
	}
	if rt == nil {
		rt = &fakeRuntime{}
	}
	a, err := newApplier(fs, router.New(), cache, rt, "usb-headset", nil)
	require.NoError(t, err)
	return a
}

func TestSetChannelVolumeClampsPersistsAndPushes(t *testing.T) {
	fs := newFakeStore()
	cache := graphcache.New()
	cache.RecordCreatedNode("ch-music-stream-vol", 42)
	rt := &fakeRuntime{}
	a := newTestApplier(t, fs, rt, cache)

	result, err := a.Apply(context.Background(), ipc.SetChannelVolumeRequest{Channel: "music", Mix: "stream", Volume: 1.5})
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"volume": 1.0}, result)

	assert.Equal(t, 1.0, fs.channels["music"].StreamVolume)
	require.Len(t, rt.calls, 1)
	assert.Equal(t, pwclient.SetNodeVolumeRequest{NodeID: 42, Value: 1.0}, rt.calls[0])
}

func TestSetChannelVolumeUnknownChannelIsNotFoundError(t *testing.T) {
	a := newTestApplier(t, nil, nil, nil)
	_, err := a.Apply(context.Background(), ipc.SetChannelVolumeRequest{Channel: "nope", Mix: "stream", Volume: 0.5})
	require.Error(t, err)
	assert.True(t, appErrors.IsCategory(err, appErrors.CategoryNotFound))
}

func TestSetChannelMuteUnknownChannelReturnsSpecLiteralMessage(t *testing.T) {
	a := newTestApplier(t, nil, nil, nil)
	_, err := a.Apply(context.Background(), ipc.SetChannelMuteRequest{Channel: "unknown", Mix: "stream", Muted: true})
	require.Error(t, err)
	assert.True(t, appErrors.IsCategory(err, appErrors.CategoryNotFound))
	assert.Contains(t, err.Error(), "Channel not found: unknown")
}

func TestSetChannelVolumeMissingNodeSkipsPushWithoutError(t *testing.T) {
	rt := &fakeRuntime{}
	a := newTestApplier(t, nil, rt, nil)
	_, err := a.Apply(context.Background(), ipc.SetChannelVolumeRequest{Channel: "music", Mix: "stream", Volume: 0.5})
	require.NoError(t, err)
	assert.Empty(t, rt.calls, "no Created-Objects Registry entry means no Server Runtime push")
}

func TestSetAppRouteUpsertsAndReplacesExistingPattern(t *testing.T) {
	fs := newFakeStore()
	a := newTestApplier(t, fs, nil, nil)

	_, err := a.Apply(context.Background(), ipc.SetAppRouteRequest{Pattern: "firefox", Channel: "voice"})
	require.NoError(t, err)
	_, err = a.Apply(context.Background(), ipc.SetAppRouteRequest{Pattern: "firefox", Channel: "music"})
	require.NoError(t, err)

	rules := a.Rules()
	require.Len(t, rules, 1)
	assert.Equal(t, "music", rules[0].Channel)
	assert.Equal(t, "music", fs.routes["firefox"].Channel)
}

func TestRemoveAppRouteDeletesRuleFromStoreAndRouter(t *testing.T) {
	fs := newFakeStore()
	a := newTestApplier(t, fs, nil, nil)
	_, err := a.Apply(context.Background(), ipc.SetAppRouteRequest{Pattern: "firefox", Channel: "voice"})
	require.NoError(t, err)

	_, err = a.Apply(context.Background(), ipc.RemoveAppRouteRequest{Pattern: "firefox"})
	require.NoError(t, err)

	assert.Empty(t, a.Rules())
	_, ok := fs.routes["firefox"]
	assert.False(t, ok)
}

func TestSaveAndLoadProfileRoundTrips(t *testing.T) {
	fs := newFakeStore()
	rt := &fakeRuntime{}
	cache := graphcache.New()
	cache.RecordCreatedNode("ch-music-stream-vol", 1)
	cache.RecordCreatedNode("ch-music-monitor-vol", 2)
	cache.RecordCreatedNode("ch-voice-stream-vol", 3)
	cache.RecordCreatedNode("ch-voice-monitor-vol", 4)
	a := newTestApplier(t, fs, rt, cache)

	_, err := a.Apply(context.Background(), ipc.SetChannelVolumeRequest{Channel: "music", Mix: "stream", Volume: 0.3})
	require.NoError(t, err)
	_, err = a.Apply(context.Background(), ipc.SaveProfileRequest{Name: "quiet"})
	require.NoError(t, err)

	_, err = a.Apply(context.Background(), ipc.SetChannelVolumeRequest{Channel: "music", Mix: "stream", Volume: 1.0})
	require.NoError(t, err)

	rt.calls = nil
	_, err = a.Apply(context.Background(), ipc.LoadProfileRequest{Name: "quiet"})
	require.NoError(t, err)

	assert.InDelta(t, 0.3, a.Channels()[0].Volume(model.MixStream), 1e-9)
	assert.NotEmpty(t, rt.calls, "loading a profile pushes its channel state to the Server Runtime")
}

func TestDeleteDefaultProfileReturnsSuccessFalseWithoutError(t *testing.T) {
	fs := newFakeStore()
	a := newTestApplier(t, fs, nil, nil)
	result, err := a.Apply(context.Background(), ipc.DeleteProfileRequest{Name: "default"})
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"success": false}, result)
	_, stillThere := fs.profiles["default"]
	assert.True(t, stillThere)
}

func TestDeleteUnknownProfileIsNotFoundError(t *testing.T) {
	a := newTestApplier(t, nil, nil, nil)
	_, err := a.Apply(context.Background(), ipc.DeleteProfileRequest{Name: "ghost"})
	require.Error(t, err)
	assert.True(t, appErrors.IsCategory(err, appErrors.CategoryNotFound))
}

func TestSetMicGainPushesToMicPassthroughNode(t *testing.T) {
	cache := graphcache.New()
	cache.RecordCreatedNode(micPassthroughNode, 7)
	rt := &fakeRuntime{}
	a := newTestApplier(t, nil, rt, cache)

	_, err := a.Apply(context.Background(), ipc.SetMicGainRequest{Gain: 0.8})
	require.NoError(t, err)
	require.Len(t, rt.calls, 1)
	assert.Equal(t, pwclient.SetNodeVolumeRequest{NodeID: 7, Value: 0.8}, rt.calls[0])
}

func TestReconcileRunsWarningsSurfaceTargetDeviceAbsent(t *testing.T) {
	a := newTestApplier(t, nil, nil, nil)
	warnings, err := a.Reconcile(context.Background())
	require.NoError(t, err)
	assert.NotEmpty(t, warnings)
}

func TestQueryGetChannelReturnsNotFoundError(t *testing.T) {
	a := newTestApplier(t, nil, nil, nil)
	_, err := a.Query(ipc.GetChannelRequest{Name: "nope"})
	require.Error(t, err)
	assert.True(t, appErrors.IsCategory(err, appErrors.CategoryNotFound))
}

func TestQueryGetProfileReturnsNotFoundError(t *testing.T) {
	a := newTestApplier(t, nil, nil, nil)
	_, err := a.Query(ipc.GetProfileRequest{Name: "nope"})
	require.Error(t, err)
	assert.True(t, appErrors.IsCategory(err, appErrors.CategoryNotFound))
	assert.Contains(t, err.Error(), "Profile not found: nope")
}

func TestQueryGetStateIncludesChannelsAndMixer(t *testing.T) {
	a := newTestApplier(t, nil, nil, nil)
	result, err := a.Query(ipc.GetStateRequest{})
	require.NoError(t, err)
	state, ok := result.(map[string]any)
	require.True(t, ok)
	assert.Contains(t, state, "channels")
	assert.Contains(t, state, "mixer")
}
