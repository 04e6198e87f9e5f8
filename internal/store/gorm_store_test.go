package store

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/undertone-audio/undertone/internal/model"
)

func newTestStore(t *testing.T) *GormStore {
	t.Helper()
	s, err := Open("sqlite", ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestOpenSeedsDefaultChannelsRoutesAndProfile(t *testing.T) {
	s := newTestStore(t)

	channels, err := s.LoadChannels()
	require.NoError(t, err)
	assert.Len(t, channels, 5)
	assert.Equal(t, "system", channels[0].Name)

	routes, err := s.LoadRoutes()
	require.NoError(t, err)
	assert.Len(t, routes, 9)

	def, err := s.GetDefaultProfile()
	require.NoError(t, err)
	assert.Equal(t, "default", def.Name)
	assert.True(t, def.Default)
}

func TestSaveChannelStateIsIdempotentUpsert(t *testing.T) {
	s := newTestStore(t)

	ch := model.Channel{Name: "music", DisplayName: "Music", StreamVolume: 0.6}
	require.NoError(t, s.SaveChannelState("music", ch))
	require.NoError(t, s.SaveChannelState("music", ch))

	channels, err := s.LoadChannels()
	require.NoError(t, err)

	count := 0
	for _, c := range channels {
		if c.Name == "music" {
			count++
			assert.Equal(t, 0.6, c.StreamVolume)
		}
	}
	assert.Equal(t, 1, count)
}

func TestProfileRoundTrip(t *testing.T) {
	s := newTestStore(t)

	p := model.Profile{
		Name: "gaming",
		Channels: []model.ChannelSnapshot{
			{Name: "game", StreamVolume: 0.9},
		},
		Mixer: model.MixerState{StreamVolume: 1, MicGain: 0.8},
		Rules: []model.RouteRule{{Pattern: "steam", Type: model.MatchExact, Channel: "game", Priority: 100}},
	}
	require.NoError(t, s.SaveProfile(p))

	loaded, err := s.LoadProfile("gaming")
	require.NoError(t, err)
	assert.Equal(t, p.Name, loaded.Name)
	assert.Equal(t, p.Channels, loaded.Channels)
	assert.Equal(t, p.Mixer, loaded.Mixer)
	assert.Equal(t, p.Rules, loaded.Rules)
}

func TestDeleteProfileRefusesDefault(t *testing.T) {
	s := newTestStore(t)

	ok, err := s.DeleteProfile("default")
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = s.LoadProfile("default")
	assert.NoError(t, err)
}

func TestDeleteProfileRemovesNonDefault(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.SaveProfile(model.Profile{Name: "temp"}))

	ok, err := s.DeleteProfile("temp")
	require.NoError(t, err)
	assert.True(t, ok)

	_, err = s.LoadProfile("temp")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestDeleteRouteRemovesByPattern(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.DeleteRoute("steam"))

	routes, err := s.LoadRoutes()
	require.NoError(t, err)
	for _, r := range routes {
		assert.NotEqual(t, "steam", r.Pattern)
	}
}

func TestLogEventPersistsWithOptionalData(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.LogEvent(LogLevelWarn, "reconciler", "target device missing", map[string]any{"device": "usb-headset"}))
	require.NoError(t, s.LogEvent(LogLevelInfo, "applier", "volume changed", nil))
}
