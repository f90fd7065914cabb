package coordinator

import "fmt"

// EventKind tags an Event.
type EventKind int

const (
	// EventParticipantAdded fires when a participant is seated at its index.
	EventParticipantAdded EventKind = iota + 1
	// EventParticipantRemoved fires when a known participant leaves.
	EventParticipantRemoved
	// EventInputChanged fires on every input update.
	EventInputChanged
	// EventReadyChanged fires on every ready update.
	EventReadyChanged
	// EventIndexConflict fires when a claimed index is already seated.
	EventIndexConflict
	// EventIndexOutOfRange fires when a participant is seated at an index
	// the open experiment has no slot for. Raised by the Controller.
	EventIndexOutOfRange
)

func (k EventKind) String() string {
	switch k {
	case EventParticipantAdded:
		return "participant_added"
	case EventParticipantRemoved:
		return "participant_removed"
	case EventInputChanged:
		return "input_changed"
	case EventReadyChanged:
		return "ready_changed"
	case EventIndexConflict:
		return "index_conflict"
	case EventIndexOutOfRange:
		return "index_out_of_range"
	default:
		return fmt.Sprintf("event(%d)", int(k))
	}
}

// Event is a membership or attribute change observed by the coordinator.
type Event struct {
	Kind        EventKind
	Participant ParticipantState
	// HeldBy is the ID of the seated participant for EventIndexConflict.
	HeldBy string
}
