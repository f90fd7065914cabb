package participant

import (
	"sync"

	"github.com/dyluth/collab/internal/model"
	"github.com/dyluth/collab/internal/protocol"
)

// RemoteCoordinator mirrors the attributes published by one coordinator.
// All accessors copy.
type RemoteCoordinator struct {
	id string

	mu            sync.RWMutex
	activeModel   string
	initialInput  []float64
	targetOutput  []float64
	output        []float64
	inputIndices  [][]int
	outputIndices [][]int
	inputLabels   []string
	outputLabels  []string
}

// NewRemoteCoordinator creates an empty mirror for the coordinator object id.
func NewRemoteCoordinator(id string) *RemoteCoordinator {
	return &RemoteCoordinator{id: id}
}

// ID returns the bus object identifier.
func (r *RemoteCoordinator) ID() string { return r.id }

// ActiveModel returns the active model label.
func (r *RemoteCoordinator) ActiveModel() string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.activeModel
}

// InitialInput returns a copy of the full initial input vector.
func (r *RemoteCoordinator) InitialInput() []float64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return cloneFloats(r.initialInput)
}

// TargetOutput returns a copy of the full target vector.
func (r *RemoteCoordinator) TargetOutput() []float64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return cloneFloats(r.targetOutput)
}

// Output returns a copy of the latest full output vector.
func (r *RemoteCoordinator) Output() []float64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return cloneFloats(r.output)
}

// InputIndices returns a copy of the input partition.
func (r *RemoteCoordinator) InputIndices() [][]int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return clonePartition(r.inputIndices)
}

// OutputIndices returns a copy of the output partition.
func (r *RemoteCoordinator) OutputIndices() [][]int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return clonePartition(r.outputIndices)
}

// InputLabels returns a copy of the input labels.
func (r *RemoteCoordinator) InputLabels() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]string(nil), r.inputLabels...)
}

// OutputLabels returns a copy of the output labels.
func (r *RemoteCoordinator) OutputLabels() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]string(nil), r.outputLabels...)
}

// IsSolved reports whether the mirrored output is within tolerance of the
// mirrored target.
func (r *RemoteCoordinator) IsSolved() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return model.IsSolved(r.output, r.targetOutput)
}

// apply stores every attribute present in u and leaves the rest unchanged.
func (r *RemoteCoordinator) apply(u protocol.CoordinatorUpdate) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if v, ok := u.ActiveModel.Get(); ok {
		r.activeModel = v
	}
	if v, ok := u.InitialInput.Get(); ok {
		r.initialInput = cloneFloats(v)
	}
	if v, ok := u.TargetOutput.Get(); ok {
		r.targetOutput = cloneFloats(v)
	}
	if v, ok := u.Output.Get(); ok {
		r.output = cloneFloats(v)
	}
	if v, ok := u.InputIndices.Get(); ok {
		r.inputIndices = clonePartition(v)
	}
	if v, ok := u.OutputIndices.Get(); ok {
		r.outputIndices = clonePartition(v)
	}
	if v, ok := u.InputLabels.Get(); ok {
		r.inputLabels = append([]string(nil), v...)
	}
	if v, ok := u.OutputLabels.Get(); ok {
		r.outputLabels = append([]string(nil), v...)
	}
}

// State returns a consistent copy of every field.
func (r *RemoteCoordinator) State() CoordinatorState {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return CoordinatorState{
		ID:            r.id,
		ActiveModel:   r.activeModel,
		InitialInput:  cloneFloats(r.initialInput),
		TargetOutput:  cloneFloats(r.targetOutput),
		Output:        cloneFloats(r.output),
		InputIndices:  clonePartition(r.inputIndices),
		OutputIndices: clonePartition(r.outputIndices),
		InputLabels:   append([]string(nil), r.inputLabels...),
		OutputLabels:  append([]string(nil), r.outputLabels...),
		Solved:        model.IsSolved(r.output, r.targetOutput),
	}
}

// CoordinatorState is a point-in-time copy of a RemoteCoordinator.
type CoordinatorState struct {
	ID            string    `json:"id"`
	ActiveModel   string    `json:"active_model"`
	InitialInput  []float64 `json:"initial_input"`
	TargetOutput  []float64 `json:"target_output"`
	Output        []float64 `json:"output"`
	InputIndices  [][]int   `json:"input_indices"`
	OutputIndices [][]int   `json:"output_indices"`
	InputLabels   []string  `json:"input_labels"`
	OutputLabels  []string  `json:"output_labels"`
	Solved        bool      `json:"solved"`
}

// View is the slice of a coordinator state owned by one participant index.
type View struct {
	Index        int       `json:"index"`
	InitialInput []float64 `json:"initial_input"`
	InputLabels  []string  `json:"input_labels"`
	Target       []float64 `json:"target"`
	Output       []float64 `json:"output"`
	OutputLabels []string  `json:"output_labels"`
}

// ViewFor projects the state onto the partitions of participant index.
// Indices outside the mirrored vectors are skipped; a participant index
// with no partition yields an empty view.
func (s CoordinatorState) ViewFor(index int) View {
	v := View{
		Index:        index,
		InitialInput: []float64{},
		InputLabels:  []string{},
		Target:       []float64{},
		Output:       []float64{},
		OutputLabels: []string{},
	}
	if index >= 0 && index < len(s.InputIndices) {
		for _, i := range s.InputIndices[index] {
			if i >= 0 && i < len(s.InitialInput) {
				v.InitialInput = append(v.InitialInput, s.InitialInput[i])
			}
			if i >= 0 && i < len(s.InputLabels) {
				v.InputLabels = append(v.InputLabels, s.InputLabels[i])
			}
		}
	}
	if index >= 0 && index < len(s.OutputIndices) {
		for _, i := range s.OutputIndices[index] {
			if i >= 0 && i < len(s.TargetOutput) {
				v.Target = append(v.Target, s.TargetOutput[i])
			}
			if i >= 0 && i < len(s.Output) {
				v.Output = append(v.Output, s.Output[i])
			}
			if i >= 0 && i < len(s.OutputLabels) {
				v.OutputLabels = append(v.OutputLabels, s.OutputLabels[i])
			}
		}
	}
	return v
}

func cloneFloats(v []float64) []float64 {
	if v == nil {
		return nil
	}
	return append([]float64{}, v...)
}

func clonePartition(p [][]int) [][]int {
	if p == nil {
		return nil
	}
	out := make([][]int, len(p))
	for i, row := range p {
		out[i] = append([]int{}, row...)
	}
	return out
}
