package protocol

import (
	"github.com/dyluth/collab/internal/codec"
	"github.com/dyluth/collab/internal/experiment"
	"github.com/dyluth/collab/pkg/bus"
)

// ModelState is the full set of coordinator attributes pushed on a model
// transition.
type ModelState struct {
	ActiveModel   string
	InitialInput  []float64
	TargetOutput  []float64
	Output        []float64
	InputIndices  [][]int
	OutputIndices [][]int
	InputLabels   []string
	OutputLabels  []string
}

// ModelStateFor derives the model state of an experiment, which may be nil.
//
// Without an experiment every vector is empty and the label is LabelNone.
// With an experiment but no active model the label reflects the phase and
// the partitions hold one empty list per participant.
func ModelStateFor(e *experiment.Experiment) ModelState {
	st := ModelState{
		ActiveModel:   LabelNone,
		InitialInput:  []float64{},
		TargetOutput:  []float64{},
		Output:        []float64{},
		InputIndices:  [][]int{},
		OutputIndices: [][]int{},
		InputLabels:   []string{},
		OutputLabels:  []string{},
	}
	if e == nil {
		return st
	}

	md := e.ActiveModel()
	if md == nil {
		if e.IsComplete() {
			st.ActiveModel = LabelComplete
		} else {
			// Ready, or between the end of training and the first
			// experiment model.
			st.ActiveModel = LabelReady
		}
		st.InputIndices = make([][]int, e.Participants())
		st.OutputIndices = make([][]int, e.Participants())
		for i := range st.InputIndices {
			st.InputIndices[i] = []int{}
			st.OutputIndices[i] = []int{}
		}
		return st
	}

	st.ActiveModel = md.Name()
	st.InitialInput = md.InitialInput()
	st.TargetOutput = md.Target()
	// Dimensions were validated at construction.
	st.Output, _ = md.OutputFor(st.InitialInput)
	st.InputIndices = md.InputIndices()
	st.OutputIndices = md.OutputIndices()
	st.InputLabels = md.InputLabels()
	st.OutputLabels = md.OutputLabels()
	return st
}

// EncodeModelState encodes all eight coordinator attributes for one push.
func EncodeModelState(st ModelState) bus.Attributes {
	return bus.Attributes{
		AttrActiveModel:   codec.EncodeString(st.ActiveModel),
		AttrInitialInput:  codec.EncodeFloatVector(st.InitialInput),
		AttrTargetOutput:  codec.EncodeFloatVector(st.TargetOutput),
		AttrOutput:        codec.EncodeFloatVector(st.Output),
		AttrInputIndices:  codec.EncodeIntMatrix(st.InputIndices),
		AttrOutputIndices: codec.EncodeIntMatrix(st.OutputIndices),
		AttrInputLabels:   codec.EncodeStringVector(st.InputLabels),
		AttrOutputLabels:  codec.EncodeStringVector(st.OutputLabels),
	}
}
