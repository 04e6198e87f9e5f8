// Package model holds the data types shared across Undertone's control
// plane: channels, mixes, route rules, graph objects, and profiles
// (spec.md §3).
package model

// Mix is one of the two fixed downstream aggregations.
type Mix string

const (
	MixStream  Mix = "stream"
	MixMonitor Mix = "monitor"
)

// Valid reports whether m is one of the two defined mixes.
func (m Mix) Valid() bool {
	return m == MixStream || m == MixMonitor
}

// Channel is a logical audio bucket (spec.md §3).
type Channel struct {
	Name          string // stable key, e.g. "system"
	DisplayName   string
	SortOrder     int
	SystemDefined bool

	StreamVolume  float64
	StreamMuted   bool
	MonitorVolume float64
	MonitorMuted  bool
}

// Clamp01 clamps v to [0,1], the invariant every stored volume must hold.
func Clamp01(v float64) float64 {
	switch {
	case v < 0:
		return 0
	case v > 1:
		return 1
	default:
		return v
	}
}

// Volume returns the channel's volume for the given mix.
func (c *Channel) Volume(mix Mix) float64 {
	if mix == MixStream {
		return c.StreamVolume
	}
	return c.MonitorVolume
}

// Muted returns the channel's mute state for the given mix.
func (c *Channel) Muted(mix Mix) bool {
	if mix == MixStream {
		return c.StreamMuted
	}
	return c.MonitorMuted
}

// SetVolume clamps and stores v for the given mix, returning the stored
// (clamped) value.
func (c *Channel) SetVolume(mix Mix, v float64) float64 {
	v = Clamp01(v)
	if mix == MixStream {
		c.StreamVolume = v
	} else {
		c.MonitorVolume = v
	}
	return v
}

// SetMuted stores the mute state for the given mix.
func (c *Channel) SetMuted(mix Mix, muted bool) {
	if mix == MixStream {
		c.StreamMuted = muted
	} else {
		c.MonitorMuted = muted
	}
}

// SinkName is this channel's sink node name in the audio graph.
func (c *Channel) SinkName() string { return "ch-" + c.Name }

// VolumeFilterName is this channel's per-mix volume-filter node name.
func (c *Channel) VolumeFilterName(mix Mix) string {
	return "ch-" + c.Name + "-" + string(mix) + "-vol"
}
