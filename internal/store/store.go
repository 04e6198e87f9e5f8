// Package store is the durable persistence layer for channels, route
// rules, profiles, and the daemon's event log (spec.md §6). It is the
// only component that talks to the database, generalized from the
// corpus' GORM-backed datastore (tphakala-birdnet-go's internal/datastore)
// from bird-detection records to Undertone's control-plane state.
package store

import (
	"errors"

	"github.com/undertone-audio/undertone/internal/model"
)

// ErrDefaultProfile describes a refused deletion of the default profile.
// GormStore.DeleteProfile reports that case as (false, nil) and does not
// return this error.
var ErrDefaultProfile = errors.New("cannot delete the default profile")

// ErrNotFound is returned when a named profile lookup or deletion misses;
// DeleteRoute does not return it for an unknown pattern.
var ErrNotFound = errors.New("not found")

// LogLevel mirrors the severity an event-log entry is recorded at.
type LogLevel string

const (
	LogLevelInfo  LogLevel = "info"
	LogLevelWarn  LogLevel = "warn"
	LogLevelError LogLevel = "error"
)

// Store is the persistence surface the Command Applier depends on
// (spec.md §6, "Persistent store surface"). Implementations must make
// SaveChannelState, SaveRoute, and SaveProfile idempotent upserts.
type Store interface {
	LoadChannels() ([]model.Channel, error)
	SaveChannelState(name string, ch model.Channel) error

	LoadRoutes() ([]model.RouteRule, error)
	SaveRoute(rule model.RouteRule) error
	DeleteRoute(pattern string) error

	ListProfiles() ([]model.Profile, error)
	LoadProfile(name string) (model.Profile, error)
	SaveProfile(p model.Profile) error
	DeleteProfile(name string) (bool, error)
	GetDefaultProfile() (model.Profile, error)

	LogEvent(level LogLevel, source, message string, data map[string]any) error

	Close() error
}

// DefaultChannelSeeds is the seed channel set a fresh store is
// initialized with (spec.md §6).
func DefaultChannelSeeds() []model.Channel {
	return []model.Channel{
		{Name: "system", DisplayName: "System", SortOrder: 0, SystemDefined: true, StreamVolume: 1, MonitorVolume: 1},
		{Name: "voice", DisplayName: "Voice", SortOrder: 1, StreamVolume: 1, MonitorVolume: 1},
		{Name: "music", DisplayName: "Music", SortOrder: 2, StreamVolume: 1, MonitorVolume: 1},
		{Name: "browser", DisplayName: "Browser", SortOrder: 3, StreamVolume: 1, MonitorVolume: 1},
		{Name: "game", DisplayName: "Game", SortOrder: 4, StreamVolume: 1, MonitorVolume: 1},
	}
}

// DefaultRouteSeeds is the seed route-rule set a fresh store is
// initialized with (spec.md §6).
func DefaultRouteSeeds() []model.RouteRule {
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

// DefaultProfileSeed is the single default=true profile a fresh store
// seeds, capturing the seed channels and routes at rest.
func DefaultProfileSeed() model.Profile {
	channels := DefaultChannelSeeds()
	snaps := make([]model.ChannelSnapshot, len(channels))
	for i, ch := range channels {
		snaps[i] = model.ChannelSnapshot{
			Name:          ch.Name,
			StreamVolume:  ch.StreamVolume,
			StreamMuted:   ch.StreamMuted,
			MonitorVolume: ch.MonitorVolume,
			MonitorMuted:  ch.MonitorMuted,
		}
	}
	return model.Profile{
		Name:    "default",
		Default: true,
		Channels: snaps,
		Mixer: model.MixerState{
			StreamVolume:  1,
			MonitorVolume: 1,
			MicGain:       1,
		},
		Rules: DefaultRouteSeeds(),
	}
}
