// Package participant implements the participant side of the
// synchronization protocol: it mirrors coordinator attributes and publishes
// this participant's index, input and ready flag.
package participant

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/dyluth/collab/internal/fault"
	"github.com/dyluth/collab/internal/logging"
	"github.com/dyluth/collab/internal/protocol"
	"github.com/dyluth/collab/pkg/bus"
)

// Channel is the part of a bus session the participant drives.
type Channel interface {
	RequestUpdate(ctx context.Context, remoteID string, names ...string) error
	Push(ctx context.Context, attrs bus.Attributes) error
}

// Participant mirrors coordinator objects on the bus. It implements
// bus.Handler.
type Participant struct {
	ch     Channel
	events chan Event
	logger *slog.Logger

	// claimMu serializes ClaimIndex across its push.
	claimMu sync.Mutex

	mu           sync.RWMutex
	coordinators map[string]*RemoteCoordinator
	index        int
}

// Option configures a Participant.
type Option func(*Participant)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(p *Participant) { p.logger = l }
}

// WithEventBuffer sets the capacity of the events channel.
func WithEventBuffer(n int) Option {
	return func(p *Participant) { p.events = make(chan Event, n) }
}

// New creates a participant pushing through ch.
func New(ch Channel, opts ...Option) *Participant {
	p := &Participant{
		ch:           ch,
		events:       make(chan Event, 256),
		logger:       logging.Discard(),
		coordinators: make(map[string]*RemoteCoordinator),
		index:        -1,
	}
	for _, opt := range opts {
		opt(p)
	}
	p.logger = p.logger.With("component", "participant")
	return p
}

// Events returns the channel of coordinator events.
// Bus callbacks block while the channel is full.
func (p *Participant) Events() <-chan Event { return p.events }

// Index returns the claimed index, or -1.
func (p *Participant) Index() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.index
}

// Coordinator returns the mirror for id.
func (p *Participant) Coordinator(id string) (*RemoteCoordinator, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	r, ok := p.coordinators[id]
	return r, ok
}

// Coordinators returns a snapshot of every mirrored coordinator, sorted by ID.
func (p *Participant) Coordinators() []CoordinatorState {
	p.mu.RLock()
	mirrors := make([]*RemoteCoordinator, 0, len(p.coordinators))
	for _, r := range p.coordinators {
		mirrors = append(mirrors, r)
	}
	p.mu.RUnlock()

	out := make([]CoordinatorState, 0, len(mirrors))
	for _, r := range mirrors {
		out = append(out, r.State())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// ClaimIndex publishes this participant's index. The index is fixed by the
// first successful claim; repeating it re-sends the same value.
func (p *Participant) ClaimIndex(ctx context.Context, index int) error {
	if index < 0 {
		return fault.Validation("participant.ClaimIndex", "index %d must be non-negative", index)
	}
	p.claimMu.Lock()
	defer p.claimMu.Unlock()

	p.mu.Lock()
	if p.index >= 0 && p.index != index {
		held := p.index
		p.mu.Unlock()
		return fault.Validation("participant.ClaimIndex", "index already claimed as %d, cannot claim %d", held, index)
	}
	p.mu.Unlock()

	if err := p.ch.Push(ctx, protocol.EncodeIndex(index)); err != nil {
		return fmt.Errorf("failed to claim index %d: %w", index, err)
	}

	p.mu.Lock()
	p.index = index
	p.mu.Unlock()
	p.logger.Info("index claimed", "index", index)
	return nil
}

// PublishInput publishes this participant's local input vector.
func (p *Participant) PublishInput(ctx context.Context, input []float64) error {
	if err := p.ch.Push(ctx, protocol.EncodeInput(input)); err != nil {
		return fmt.Errorf("failed to publish input: %w", err)
	}
	return nil
}

// PublishReady publishes the ready flag.
func (p *Participant) PublishReady(ctx context.Context, ready bool) error {
	if err := p.ch.Push(ctx, protocol.EncodeReady(ready)); err != nil {
		return fmt.Errorf("failed to publish ready: %w", err)
	}
	return nil
}

// Discover mirrors a new coordinator and pulls its current attributes.
func (p *Participant) Discover(ctx context.Context, id string, objectType bus.ObjectType) {
	if objectType != protocol.ObjectCoordinator {
		return
	}
	p.mu.Lock()
	if _, ok := p.coordinators[id]; ok {
		p.mu.Unlock()
		return
	}
	r := NewRemoteCoordinator(id)
	p.coordinators[id] = r
	p.mu.Unlock()

	p.logger.Info("coordinator discovered", "coordinator_id", id)
	p.emit(ctx, EventCoordinatorAdded, r)

	if err := p.ch.RequestUpdate(ctx, id, protocol.CoordinatorAttributes...); err != nil {
		p.logger.Error("initial attribute pull failed", "coordinator_id", id, "error", err)
	}
}

// Reflect applies a coordinator update. A batch carrying the active model is
// a model transition; any other batch carrying the output is an output
// update. Absent attributes keep their previous values.
func (p *Participant) Reflect(ctx context.Context, id string, attrs bus.Attributes) {
	r, ok := p.Coordinator(id)
	if !ok {
		p.logger.Warn("protocol violation: update from unknown coordinator", "coordinator_id", id, "attributes", attrs.Names())
		return
	}
	u, err := protocol.DecodeCoordinatorUpdate(attrs)
	if err != nil {
		p.logger.Warn("protocol violation: undecodable coordinator update", "coordinator_id", id, "error", err)
		return
	}

	r.apply(u)
	switch {
	case u.IsModelTransition():
		p.logger.Debug("model modified", "coordinator_id", id, "active_model", u.ActiveModel.Value)
		p.emit(ctx, EventModelModified, r)
	case u.Output.Set:
		p.emit(ctx, EventOutputModified, r)
	}
}

// Remove forgets a departed coordinator. Unknown IDs are ignored.
func (p *Participant) Remove(ctx context.Context, id string) {
	p.mu.Lock()
	r, ok := p.coordinators[id]
	delete(p.coordinators, id)
	p.mu.Unlock()
	if !ok {
		return
	}
	p.logger.Info("coordinator left", "coordinator_id", id)
	p.emit(ctx, EventCoordinatorRemoved, r)
}

func (p *Participant) emit(ctx context.Context, kind EventKind, r *RemoteCoordinator) {
	select {
	case p.events <- Event{Kind: kind, Coordinator: r.State()}:
	case <-ctx.Done():
	}
}
