package bus

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
)

// ObjectType is the class of a registered object, e.g. "Coordinator".
type ObjectType string

// Attributes maps attribute names to encoded values.
type Attributes map[string][]byte

// Names returns the attribute names in sorted order.
func (a Attributes) Names() []string {
	names := make([]string, 0, len(a))
	for name := range a {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Has reports whether name is present.
func (a Attributes) Has(name string) bool {
	_, ok := a[name]
	return ok
}

// Clone returns a deep copy.
func (a Attributes) Clone() Attributes {
	if a == nil {
		return nil
	}
	out := make(Attributes, len(a))
	for k, v := range a {
		out[k] = append([]byte(nil), v...)
	}
	return out
}

// EventKind identifies what happened to an object.
type EventKind string

const (
	EventDiscover EventKind = "discover"
	EventUpdate   EventKind = "update"
	EventRemove   EventKind = "remove"
)

// Validate checks that the kind is known.
func (k EventKind) Validate() error {
	switch k {
	case EventDiscover, EventUpdate, EventRemove:
		return nil
	default:
		return fmt.Errorf("invalid event kind: %q", string(k))
	}
}

// Event is the message published on the object events channel.
// Attribute values are base64 encoded in JSON.
type Event struct {
	Kind       EventKind  `json:"kind"`
	ObjectID   string     `json:"object_id"`
	ObjectType ObjectType `json:"object_type"`
	Attributes Attributes `json:"attributes,omitempty"`
}

// Validate checks the event has the fields its kind requires.
func (e *Event) Validate() error {
	if err := e.Kind.Validate(); err != nil {
		return err
	}
	if e.ObjectID == "" {
		return fmt.Errorf("object_id is required")
	}
	if e.ObjectType == "" {
		return fmt.Errorf("object_type is required")
	}
	if e.Kind == EventUpdate && len(e.Attributes) == 0 {
		return fmt.Errorf("update event for %s carries no attributes", e.ObjectID)
	}
	return nil
}

func decodeEvent(payload string) (*Event, error) {
	var ev Event
	if err := json.Unmarshal([]byte(payload), &ev); err != nil {
		return nil, fmt.Errorf("failed to unmarshal object event: %w", err)
	}
	if err := ev.Validate(); err != nil {
		return nil, fmt.Errorf("invalid object event: %w", err)
	}
	return &ev, nil
}

// Handler receives the callbacks of a Session. All callbacks of one session
// are invoked from a single goroutine; they must not block on each other.
type Handler interface {
	// Discover is called once for each remote object of a subscribed type.
	Discover(ctx context.Context, objectID string, objectType ObjectType)

	// Reflect delivers subscribed attribute values pushed by a remote object.
	Reflect(ctx context.Context, objectID string, attrs Attributes)

	// Remove is called when a discovered remote object leaves.
	Remove(ctx context.Context, objectID string)
}
