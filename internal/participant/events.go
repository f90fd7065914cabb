package participant

import "fmt"

// EventKind tags an Event.
type EventKind int

const (
	// EventCoordinatorAdded fires when a coordinator object is discovered.
	EventCoordinatorAdded EventKind = iota + 1
	// EventModelModified fires once per full model-state push.
	EventModelModified
	// EventOutputModified fires on an output update without a model transition.
	EventOutputModified
	// EventCoordinatorRemoved fires when a known coordinator leaves.
	EventCoordinatorRemoved
)

func (k EventKind) String() string {
	switch k {
	case EventCoordinatorAdded:
		return "coordinator_added"
	case EventModelModified:
		return "model_modified"
	case EventOutputModified:
		return "output_modified"
	case EventCoordinatorRemoved:
		return "coordinator_removed"
	default:
		return fmt.Sprintf("event(%d)", int(k))
	}
}

// Event is a change to a mirrored coordinator.
type Event struct {
	Kind        EventKind
	Coordinator CoordinatorState
}
