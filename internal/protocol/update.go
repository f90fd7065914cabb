package protocol

import (
	"github.com/dyluth/collab/internal/codec"
	"github.com/dyluth/collab/internal/fault"
	"github.com/dyluth/collab/pkg/bus"
)

// CoordinatorUpdate is a decoded batch of coordinator attributes.
// Absent fields mean unchanged.
type CoordinatorUpdate struct {
	InitialInput  Opt[[]float64]
	TargetOutput  Opt[[]float64]
	Output        Opt[[]float64]
	ActiveModel   Opt[string]
	InputIndices  Opt[[][]int]
	OutputIndices Opt[[][]int]
	InputLabels   Opt[[]string]
	OutputLabels  Opt[[]string]
}

// IsModelTransition reports whether the batch carries the active model,
// which marks a full model-state push.
func (u CoordinatorUpdate) IsModelTransition() bool {
	return u.ActiveModel.Set
}

// IsOutputOnly reports whether the batch carries only the output.
func (u CoordinatorUpdate) IsOutputOnly() bool {
	return u.Output.Set && !u.ActiveModel.Set && !u.InitialInput.Set && !u.TargetOutput.Set &&
		!u.InputIndices.Set && !u.OutputIndices.Set && !u.InputLabels.Set && !u.OutputLabels.Set
}

// DecodeCoordinatorUpdate decodes the coordinator attributes present in
// attrs. Unknown attribute names are ignored. Any undecodable value fails
// the whole batch with a protocol error.
func DecodeCoordinatorUpdate(attrs bus.Attributes) (CoordinatorUpdate, error) {
	var u CoordinatorUpdate
	var err error
	for name, raw := range attrs {
		switch name {
		case AttrInitialInput:
			u.InitialInput, err = decodeOpt(raw, codec.DecodeFloatVector)
		case AttrTargetOutput:
			u.TargetOutput, err = decodeOpt(raw, codec.DecodeFloatVector)
		case AttrOutput:
			u.Output, err = decodeOpt(raw, codec.DecodeFloatVector)
		case AttrActiveModel:
			u.ActiveModel, err = decodeOpt(raw, codec.DecodeString)
		case AttrInputIndices:
			u.InputIndices, err = decodeOpt(raw, codec.DecodeIntMatrix)
		case AttrOutputIndices:
			u.OutputIndices, err = decodeOpt(raw, codec.DecodeIntMatrix)
		case AttrInputLabels:
			u.InputLabels, err = decodeOpt(raw, codec.DecodeStringVector)
		case AttrOutputLabels:
			u.OutputLabels, err = decodeOpt(raw, codec.DecodeStringVector)
		}
		if err != nil {
			return CoordinatorUpdate{}, attrError(name, err)
		}
	}
	return u, nil
}

// ParticipantUpdate is a decoded batch of participant attributes.
type ParticipantUpdate struct {
	Input Opt[[]float64]
	Index Opt[int]
	Ready Opt[bool]
}

// DecodeParticipantUpdate decodes the participant attributes present in attrs.
func DecodeParticipantUpdate(attrs bus.Attributes) (ParticipantUpdate, error) {
	var u ParticipantUpdate
	var err error
	for name, raw := range attrs {
		switch name {
		case AttrInput:
			u.Input, err = decodeOpt(raw, codec.DecodeFloatVector)
		case AttrIndex:
			var idx Opt[int32]
			idx, err = decodeOpt(raw, codec.DecodeInt32)
			if idx.Set {
				u.Index = Some(int(idx.Value))
			}
		case AttrReady:
			u.Ready, err = decodeOpt(raw, codec.DecodeBool)
		}
		if err != nil {
			return ParticipantUpdate{}, attrError(name, err)
		}
	}
	return u, nil
}

func decodeOpt[T any](raw []byte, decode func([]byte) (T, error)) (Opt[T], error) {
	v, err := decode(raw)
	if err != nil {
		return Opt[T]{}, err
	}
	return Some(v), nil
}

func attrError(name string, err error) error {
	return &fault.Error{Kind: fault.KindProtocol, Op: "protocol.Decode", Detail: "attribute " + name, Err: err}
}

// EncodeIndex encodes a participant index claim.
func EncodeIndex(index int) bus.Attributes {
	return bus.Attributes{AttrIndex: codec.EncodeInt32(int32(index))}
}

// EncodeInput encodes a participant input vector.
func EncodeInput(input []float64) bus.Attributes {
	return bus.Attributes{AttrInput: codec.EncodeFloatVector(input)}
}

// EncodeReady encodes a participant ready flag.
func EncodeReady(ready bool) bus.Attributes {
	return bus.Attributes{AttrReady: codec.EncodeBool(ready)}
}

// EncodeOutput encodes the lightweight output-only push.
func EncodeOutput(output []float64) bus.Attributes {
	return bus.Attributes{AttrOutput: codec.EncodeFloatVector(output)}
}
