package engine

// State is the orchestrator's lifecycle state.
type State int32

const (
	// StateConfigured means the run is validated but not started.
	StateConfigured State = iota
	// StateCapacityChecked means the governor approved a worker count.
	StateCapacityChecked
	// StateRunning means workers are issuing requests.
	StateRunning
	// StateDraining means the stop signal is set and in-flight requests are
	// finishing naturally.
	StateDraining
	// StateComplete is terminal: the Summary has been produced.
	StateComplete
	// StateFailed is terminal: the run aborted before or during execution.
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateConfigured:
		return "configured"
	case StateCapacityChecked:
		return "capacity_checked"
	case StateRunning:
		return "running"
	case StateDraining:
		return "draining"
	case StateComplete:
		return "complete"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}
