package model

// PortDirection is the data-flow direction of a graph port.
type PortDirection string

const (
	DirectionInput  PortDirection = "input"
	DirectionOutput PortDirection = "output"
)

// LinkState mirrors the audio server's reported link state.
type LinkState string

const (
	LinkStateActive LinkState = "active"
	LinkStateError  LinkState = "error"
)

// NodeRecord mirrors one node observed in the audio server's graph.
type NodeRecord struct {
	ID         uint32
	Name       string
	MediaClass string
	AppName    string
	Binary     string
	PID        int
	Managed    bool
	Props      map[string]string
}

// PortRecord mirrors one port observed in the audio server's graph.
type PortRecord struct {
	ID              uint32
	Name            string
	NodeID          uint32
	Direction       PortDirection
	ChannelPosition string // e.g. "FL", "FR"
}

// LinkRecord mirrors one link observed in the audio server's graph.
type LinkRecord struct {
	ID         uint32
	OutputNode uint32
	OutputPort uint32
	InputNode  uint32
	InputPort  uint32
	State      LinkState
}

// IsAudioClient reports whether n looks like an application's audio
// stream (spec.md §4.1): media class Stream/Output/Audio, not created by
// us, and not the configured target device.
func (n NodeRecord) IsAudioClient(targetDeviceName string) bool {
	return n.MediaClass == "Stream/Output/Audio" && !n.Managed && n.Name != targetDeviceName
}
