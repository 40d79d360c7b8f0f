package crawler

// State is the lifecycle state of a Spider.
type State int

const (
	// StateIdle means no crawl has started since creation or Reset.
	StateIdle State = iota
	// StateRunning means a crawl is in progress.
	StateRunning
	// StateCompleted means the last crawl ran to its end.
	StateCompleted
	// StateAborted means the last crawl was cancelled or failed to start.
	StateAborted
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRunning:
		return "running"
	case StateCompleted:
		return "completed"
	case StateAborted:
		return "aborted"
	default:
		return "unknown"
	}
}
