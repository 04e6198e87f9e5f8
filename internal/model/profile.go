package model

// ChannelSnapshot captures the mix-relevant state of a channel for
// inclusion in a Profile.
type ChannelSnapshot struct {
	Name          string
	StreamVolume  float64
	StreamMuted   bool
	MonitorVolume float64
	MonitorMuted  bool
}

// MixerState captures master-level mixer state for a Profile.
type MixerState struct {
	StreamVolume  float64
	StreamMuted   bool
	MonitorVolume float64
	MonitorMuted  bool
	MicGain       float64
	MicMuted      bool
}

// Profile is a named snapshot of channel states, mixer state, and route
// rules (spec.md §3). Exactly one profile carries Default = true.
type Profile struct {
	Name     string
	Default  bool
	Channels []ChannelSnapshot
	Mixer    MixerState
	Rules    []RouteRule
}
