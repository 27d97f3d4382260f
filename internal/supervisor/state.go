package supervisor

// State is the supervisor lifecycle state. It is owned exclusively by the
// Supervisor; transitions are serialized under its lock.
//
// Stopped -> Starting -> Running -> (unexpected exit) -> Restarting -> Running
// Running/Restarting -> (RequestShutdown) -> Stopping -> Stopped
type State int32

const (
	StateStopped State = iota
	StateStarting
	StateRunning
	StateStopping
	StateRestarting
)

func (s State) String() string {
	switch s {
	case StateStopped:
		return "stopped"
	case StateStarting:
		return "starting"
	case StateRunning:
		return "running"
	case StateStopping:
		return "stopping"
	case StateRestarting:
		return "restarting"
	default:
		return "unknown"
	}
}
