package eventflow

// Status is the lifecycle position of a workflow instance. A workflow is
// created pending, moves to running via WORKFLOW_STARTED and ends in exactly
// one of the terminal statuses. Suspension is a sub-state of running carried
// separately on WorkflowState.
type Status int

const (
	StatusUnknown   Status = 0
	StatusPending   Status = 1
	StatusRunning   Status = 2
	StatusCompleted Status = 3
	StatusFailed    Status = 4
	StatusCancelled Status = 5
)

func (s Status) String() string {
	switch s {
	case StatusPending:
		return "Pending"
	case StatusRunning:
		return "Running"
	case StatusCompleted:
		return "Completed"
	case StatusFailed:
		return "Failed"
	case StatusCancelled:
		return "Cancelled"
	default:
		return "Unknown"
	}
}

// Terminal reports whether the workflow is conceptually destroyed: no further
// commands are valid once a terminal status is reached.
func (s Status) Terminal() bool {
	switch s {
	case StatusCompleted, StatusFailed, StatusCancelled:
		return true
	default:
		return false
	}
}
