package coordinator

import (
	"sync"
)

// Participant is the coordinator's view of one remote participant.
// All accessors copy; the index can be claimed only once.
type Participant struct {
	id string

	mu    sync.RWMutex
	index int
	input []float64
	ready bool
}

// NewParticipant creates a participant with no index.
func NewParticipant(id string) *Participant {
	return &Participant{id: id, index: -1}
}

// ID returns the bus object identifier.
func (p *Participant) ID() string { return p.id }

// Index returns the claimed index, or -1.
func (p *Participant) Index() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.index
}

// ClaimIndex sets the index if none has been claimed and index is
// non-negative. It reports whether the claim was accepted.
func (p *Participant) ClaimIndex(index int) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.index >= 0 || index < 0 {
		return false
	}
	p.index = index
	return true
}

// Input returns a copy of the participant's input vector.
func (p *Participant) Input() []float64 {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return append([]float64(nil), p.input...)
}

// SetInput stores a copy of input.
func (p *Participant) SetInput(input []float64) {
	cp := append([]float64(nil), input...)
	p.mu.Lock()
	p.input = cp
	p.mu.Unlock()
}

// Ready returns the ready flag.
func (p *Participant) Ready() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.ready
}

// SetReady stores the ready flag.
func (p *Participant) SetReady(ready bool) {
	p.mu.Lock()
	p.ready = ready
	p.mu.Unlock()
}

// Equal reports whether both refer to the same bus object.
func (p *Participant) Equal(other *Participant) bool {
	return other != nil && p.id == other.id
}

// State returns a consistent copy of every field.
func (p *Participant) State() ParticipantState {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return ParticipantState{
		ID:    p.id,
		Index: p.index,
		Input: append([]float64(nil), p.input...),
		Ready: p.ready,
	}
}

// ParticipantState is a point-in-time copy of a Participant.
type ParticipantState struct {
	ID     string    `json:"id"`
	Index  int       `json:"index"`
	Input  []float64 `json:"input"`
	Ready  bool      `json:"ready"`
	Seated bool      `json:"seated"`
}
