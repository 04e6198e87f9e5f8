package router

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/undertone-audio/undertone/internal/model"
)

func defaultRules() []model.RouteRule {
	return []model.RouteRule{
		{Pattern: "discord", Type: model.MatchPrefix, Channel: "voice", Priority: 100, Seq: 0},
		{Pattern: "zoom", Type: model.MatchPrefix, Channel: "voice", Priority: 100, Seq: 1},
		{Pattern: "teams", Type: model.MatchPrefix, Channel: "voice", Priority: 100, Seq: 2},
		{Pattern: "spotify", Type: model.MatchExact, Channel: "music", Priority: 100, Seq: 3},
		{Pattern: "rhythmbox", Type: model.MatchExact, Channel: "music", Priority: 100, Seq: 4},
		{Pattern: "firefox", Type: model.MatchExact, Channel: "browser", Priority: 50, Seq: 5},
		{Pattern: "chromium", Type: model.MatchPrefix, Channel: "browser", Priority: 50, Seq: 6},
		{Pattern: "chrome", Type: model.MatchPrefix, Channel: "browser", Priority: 50, Seq: 7},
		{Pattern: "steam", Type: model.MatchExact, Channel: "game", Priority: 100, Seq: 8},
	}
}

func TestRouteMatchesByName(t *testing.T) {
	r := New()
	r.SetRules(defaultRules())

	assert.Equal(t, "voice", r.Route("discord", ""))
	assert.Equal(t, "music", r.Route("spotify", ""))
	assert.Equal(t, "browser", r.Route("chromium-browser", ""))
	assert.Equal(t, "game", r.Route("steam", ""))
}

func TestRouteFallsBackToBinaryThenDefault(t *testing.T) {
	r := New()
	r.SetRules(defaultRules())

	assert.Equal(t, "music", r.Route("unknown-wrapper", "spotify"))
	assert.Equal(t, DefaultChannel, r.Route("unknown-wrapper", "unknown-binary"))
	assert.Equal(t, DefaultChannel, r.Route("unknown-app", ""))
}

func TestRouteHighestPriorityWinsFirstMatch(t *testing.T) {
	r := New()
	r.SetRules([]model.RouteRule{
		{Pattern: "app", Type: model.MatchPrefix, Channel: "low", Priority: 10, Seq: 0},
		{Pattern: "app", Type: model.MatchPrefix, Channel: "high", Priority: 90, Seq: 1},
	})
	assert.Equal(t, "high", r.Route("app-foo", ""))
}

func TestRouteStableTieBreakByInsertionOrder(t *testing.T) {
	r := New()
	// Equal priority; re-ordering input shouldn't change the winner,
	// only original insertion order (Seq) should.
	rules := []model.RouteRule{
		{Pattern: "app", Type: model.MatchPrefix, Channel: "second", Priority: 50, Seq: 1},
		{Pattern: "app", Type: model.MatchPrefix, Channel: "first", Priority: 50, Seq: 0},
	}
	r.SetRules(rules)
	assert.Equal(t, "first", r.Route("app-x", ""))
}

func TestRouteBrokenRegexNeverMatchesAndNeverPanics(t *testing.T) {
	r := New()
	r.SetRules([]model.RouteRule{
		{Pattern: "(unterminated", Type: model.MatchRegex, Channel: "voice", Priority: 100, Seq: 0},
	})

	assert.Equal(t, DefaultChannel, r.Route("anything", ""))
	// Calling again must not panic or attempt to recompile into a
	// different (still-broken) state.
	assert.Equal(t, DefaultChannel, r.Route("anything", ""))
}

func TestRouteRegexFullStringMatch(t *testing.T) {
	r := New()
	r.SetRules([]model.RouteRule{
		{Pattern: "zoom.*", Type: model.MatchRegex, Channel: "voice", Priority: 100, Seq: 0},
	})
	assert.Equal(t, "voice", r.Route("zoomclient", ""))
	assert.Equal(t, DefaultChannel, r.Route("notzoomclient", ""))
}

func TestRouteCaseSensitivity(t *testing.T) {
	r := New()
	r.SetRules([]model.RouteRule{
		{Pattern: "Spotify", Type: model.MatchExact, Channel: "music", Priority: 100, Seq: 0},
	})
	assert.Equal(t, DefaultChannel, r.Route("spotify", ""))
	assert.Equal(t, "music", r.Route("Spotify", ""))
}
