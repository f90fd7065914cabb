// Package protocol names the objects and attributes exchanged between the
// coordinator and participants and converts them to and from typed updates.
package protocol

import (
	"github.com/dyluth/collab/pkg/bus"
)

// Object types registered on the bus.
const (
	ObjectCoordinator bus.ObjectType = "Coordinator"
	ObjectParticipant bus.ObjectType = "Participant"
)

// Coordinator attributes.
const (
	AttrInitialInput  = "InitialInput"
	AttrTargetOutput  = "TargetOutput"
	AttrOutput        = "Output"
	AttrActiveModel   = "ActiveModel"
	AttrInputIndices  = "InputIndices"
	AttrOutputIndices = "OutputIndices"
	AttrInputLabels   = "InputLabels"
	AttrOutputLabels  = "OutputLabels"
)

// Participant attributes.
const (
	AttrInput = "Input"
	AttrIndex = "Index"
	AttrReady = "Ready"
)

// Active model labels that are not model names.
const (
	// LabelNone means no experiment is loaded.
	LabelNone = ""
	// LabelReady means an experiment is loaded but has not started.
	LabelReady = "Ready..."
	// LabelComplete means every experiment model has been visited.
	LabelComplete = "Complete!"
)

// CoordinatorAttributes lists every attribute the coordinator publishes.
var CoordinatorAttributes = []string{
	AttrInitialInput,
	AttrTargetOutput,
	AttrOutput,
	AttrActiveModel,
	AttrInputIndices,
	AttrOutputIndices,
	AttrInputLabels,
	AttrOutputLabels,
}

// ParticipantAttributes lists every attribute a participant publishes.
var ParticipantAttributes = []string{AttrInput, AttrIndex, AttrReady}

// IsModelLabel reports whether label names an actual model rather than
// a phase sentinel.
func IsModelLabel(label string) bool {
	return label != LabelNone && label != LabelReady && label != LabelComplete
}

// Opt is an optional attribute value. The zero value is absent.
type Opt[T any] struct {
	Value T
	Set   bool
}

// Some returns a present Opt holding v.
func Some[T any](v T) Opt[T] {
	return Opt[T]{Value: v, Set: true}
}

// Get returns the value and whether it is present.
func (o Opt[T]) Get() (T, bool) {
	return o.Value, o.Set
}
