package model

import "fmt"

// DaemonPhase enumerates the daemon's lifecycle states (spec.md §3).
type DaemonPhase int

const (
	PhaseInitializing DaemonPhase = iota
	PhaseWaitingForDevice
	PhaseCreatingNodes
	PhaseRunning
	PhaseDeviceDisconnected
	PhaseReconciling
	PhaseShuttingDown
	PhaseError
)

func (p DaemonPhase) String() string {
	switch p {
	case PhaseInitializing:
		return "initializing"
	case PhaseWaitingForDevice:
		return "waiting_for_device"
	case PhaseCreatingNodes:
		return "creating_nodes"
	case PhaseRunning:
		return "running"
	case PhaseDeviceDisconnected:
		return "device_disconnected"
	case PhaseReconciling:
		return "reconciling"
	case PhaseShuttingDown:
		return "shutting_down"
	case PhaseError:
		return "error"
	default:
		return fmt.Sprintf("phase(%d)", int(p))
	}
}

// DaemonState is the daemon's current lifecycle state, carrying an error
// message when Phase is PhaseError.
type DaemonState struct {
	Phase        DaemonPhase
	ErrorMessage string
}
