package driver

import "fmt"

// RunState is the lifecycle state of a run
type RunState int32

const (
	StateInitializing RunState = iota
	StateRunning
	StateDraining
	StateShutDown
)

func (s RunState) String() string {
	switch s {
	case StateInitializing:
		return "initializing"
	case StateRunning:
		return "running"
	case StateDraining:
		return "draining"
	case StateShutDown:
		return "shut_down"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

// CanTransition reports whether from -> to is allowed.
//
// Initializing goes to Running once source and engine are ready, to
// Draining when the source opened but the engine did not, and straight to
// ShutDown when no source opened. ShutDown is terminal.
func CanTransition(from, to RunState) bool {
	switch from {
	case StateInitializing:
		return to == StateRunning || to == StateDraining || to == StateShutDown
	case StateRunning:
		return to == StateDraining
	case StateDraining:
		return to == StateShutDown
	default:
		return false
	}
}
