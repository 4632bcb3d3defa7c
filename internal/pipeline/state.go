package pipeline

// State is the lifecycle position of a task run.
type State int32

const (
	StateIdle State = iota
	StateRunning
	StatePaused
	StateCompleted
	StateAborted
	StateError
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRunning:
		return "running"
	case StatePaused:
		return "paused"
	case StateCompleted:
		return "completed"
	case StateAborted:
		return "aborted"
	case StateError:
		return "error"
	case StateStopped:
		return "stopped"
	}
	return "unknown"
}

// Terminal reports whether the run is over.
func (s State) Terminal() bool {
	return s >= StateCompleted
}
