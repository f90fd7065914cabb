package coordinator

import (
	"errors"
	"fmt"
	"sort"
	"sync"
)

// ErrIndexTaken is returned by Seat when another participant holds the index.
var ErrIndexTaken = errors.New("index already seated")

// Membership tracks known participants and the indices they are seated at.
// A participant is known from discovery and seated once its index claim is
// accepted without colliding with another seated participant. Only seated
// participants take part in the experiment. Safe for concurrent use.
type Membership struct {
	mu      sync.RWMutex
	members map[string]*Participant
	seats   map[int]string
}

// NewMembership creates an empty membership.
func NewMembership() *Membership {
	return &Membership{
		members: make(map[string]*Participant),
		seats:   make(map[int]string),
	}
}

// Add stores p unless a participant with the same ID exists. It returns the
// stored participant and whether it was newly added.
func (m *Membership) Add(p *Participant) (*Participant, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if existing, ok := m.members[p.ID()]; ok {
		return existing, false
	}
	m.members[p.ID()] = p
	return p, true
}

// Get returns the participant with the given ID.
func (m *Membership) Get(id string) (*Participant, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.members[id]
	return p, ok
}

// Seat seats participant id at index. Seating the same participant twice
// is a no-op; a collision with another participant returns ErrIndexTaken.
func (m *Membership) Seat(id string, index int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.members[id]; !ok {
		return fmt.Errorf("participant %s is not a member", id)
	}
	if holder, ok := m.seats[index]; ok {
		if holder == id {
			return nil
		}
		return fmt.Errorf("index %d held by %s: %w", index, holder, ErrIndexTaken)
	}
	m.seats[index] = id
	return nil
}

// Remove deletes participant id and frees its seat. If another known
// participant had claimed the freed index, it is seated and returned as
// promoted.
func (m *Membership) Remove(id string) (removed, promoted *Participant) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.members[id]
	if !ok {
		return nil, nil
	}
	delete(m.members, id)

	index := p.Index()
	if holder, ok := m.seats[index]; !ok || holder != id {
		return p, nil
	}
	delete(m.seats, index)

	var waiting []*Participant
	for _, other := range m.members {
		if other.Index() == index {
			waiting = append(waiting, other)
		}
	}
	if len(waiting) == 0 {
		return p, nil
	}
	sort.Slice(waiting, func(i, j int) bool { return waiting[i].ID() < waiting[j].ID() })
	m.seats[index] = waiting[0].ID()
	return p, waiting[0]
}

// IsSeated reports whether participant id holds a seat.
func (m *Membership) IsSeated(id string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.members[id]
	if !ok {
		return false
	}
	return m.seats[p.Index()] == id
}

// SeatedCount returns the number of seated participants.
func (m *Membership) SeatedCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.seats)
}

// Seated returns the seated participants keyed by index.
func (m *Membership) Seated() map[int]*Participant {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make(map[int]*Participant, len(m.seats))
	for index, id := range m.seats {
		out[index] = m.members[id]
	}
	return out
}

// Len returns the number of known participants.
func (m *Membership) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.members)
}

// Snapshot returns copies of every known participant ordered by index,
// unindexed participants last, ties broken by ID.
func (m *Membership) Snapshot() []ParticipantState {
	m.mu.RLock()
	out := make([]ParticipantState, 0, len(m.members))
	for id, p := range m.members {
		st := p.State()
		st.Seated = m.seats[st.Index] == id
		out = append(out, st)
	}
	m.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if (a.Index < 0) != (b.Index < 0) {
			return b.Index < 0
		}
		if a.Index != b.Index {
			return a.Index < b.Index
		}
		return a.ID < b.ID
	})
	return out
}
