// Package coordinator implements the coordinator side of the
// synchronization protocol: participant membership, index claims, and the
// model-state and output pushes, plus the Controller that runs trials.
package coordinator

import (
	"context"
	"errors"
	"log/slog"

	"github.com/dyluth/collab/internal/experiment"
	"github.com/dyluth/collab/internal/logging"
	"github.com/dyluth/collab/internal/protocol"
	"github.com/dyluth/collab/pkg/bus"
)

// Channel is the part of a bus session the coordinator drives.
type Channel interface {
	RequestUpdate(ctx context.Context, remoteID string, names ...string) error
	Push(ctx context.Context, attrs bus.Attributes) error
}

// Coordinator reconciles participant objects on the bus with local
// membership. It implements bus.Handler.
type Coordinator struct {
	ch      Channel
	members *Membership
	events  chan Event
	logger  *slog.Logger
}

// Option configures a Coordinator.
type Option func(*Coordinator)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Coordinator) { c.logger = l }
}

// WithEventBuffer sets the capacity of the events channel.
func WithEventBuffer(n int) Option {
	return func(c *Coordinator) { c.events = make(chan Event, n) }
}

// New creates a coordinator pushing through ch.
func New(ch Channel, opts ...Option) *Coordinator {
	c := &Coordinator{
		ch:      ch,
		members: NewMembership(),
		events:  make(chan Event, 256),
		logger:  logging.Discard(),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = c.logger.With("component", "coordinator")
	return c
}

// Members returns the membership tracked by this coordinator.
func (c *Coordinator) Members() *Membership { return c.members }

// Events returns the channel of membership and attribute events.
// Bus callbacks block while the channel is full.
func (c *Coordinator) Events() <-chan Event { return c.events }

// Discover registers a new participant and pulls its current attributes.
func (c *Coordinator) Discover(ctx context.Context, id string, objectType bus.ObjectType) {
	if objectType != protocol.ObjectParticipant {
		return
	}
	if _, added := c.members.Add(NewParticipant(id)); !added {
		return
	}
	c.logger.Debug("participant discovered", "participant_id", id)

	if err := c.ch.RequestUpdate(ctx, id, protocol.ParticipantAttributes...); err != nil {
		c.logger.Error("initial attribute pull failed", "participant_id", id, "error", err)
	}
}

// Reflect applies a participant's index, input and ready updates.
func (c *Coordinator) Reflect(ctx context.Context, id string, attrs bus.Attributes) {
	p, ok := c.members.Get(id)
	if !ok {
		c.logger.Warn("protocol violation: update from unknown participant", "participant_id", id, "attributes", attrs.Names())
		return
	}
	u, err := protocol.DecodeParticipantUpdate(attrs)
	if err != nil {
		c.logger.Warn("protocol violation: undecodable participant update", "participant_id", id, "error", err)
		return
	}

	if index, ok := u.Index.Get(); ok {
		c.claim(ctx, p, index)
	}
	if input, ok := u.Input.Get(); ok {
		p.SetInput(input)
		c.emit(ctx, EventInputChanged, p, "")
	}
	if ready, ok := u.Ready.Get(); ok {
		p.SetReady(ready)
		c.emit(ctx, EventReadyChanged, p, "")
	}
}

func (c *Coordinator) claim(ctx context.Context, p *Participant, index int) {
	if index < 0 {
		c.logger.Warn("protocol violation: negative index claim", "participant_id", p.ID(), "index", index)
		return
	}
	if !p.ClaimIndex(index) {
		if index != p.Index() {
			c.logger.Warn("protocol violation: index already claimed", "participant_id", p.ID(),
				"index", p.Index(), "requested", index)
		}
		return
	}

	err := c.members.Seat(p.ID(), index)
	switch {
	case errors.Is(err, ErrIndexTaken):
		holder := ""
		if seated, ok := c.members.Seated()[index]; ok {
			holder = seated.ID()
		}
		c.logger.Warn("protocol violation: duplicate index", "participant_id", p.ID(), "index", index, "held_by", holder)
		c.emit(ctx, EventIndexConflict, p, holder)
	case err != nil:
		// Removed between lookup and seating.
		c.logger.Debug("participant left before seating", "participant_id", p.ID(), "error", err)
	default:
		c.logger.Info("participant joined", "participant_id", p.ID(), "index", index)
		c.emit(ctx, EventParticipantAdded, p, "")
	}
}

// Remove forgets a departed participant. Unknown IDs are ignored.
func (c *Coordinator) Remove(ctx context.Context, id string) {
	p, promoted := c.members.Remove(id)
	if p == nil {
		return
	}
	c.logger.Info("participant left", "participant_id", id, "index", p.Index())
	c.emit(ctx, EventParticipantRemoved, p, "")

	if promoted != nil {
		c.logger.Info("participant joined", "participant_id", promoted.ID(), "index", promoted.Index())
		c.emit(ctx, EventParticipantAdded, promoted, "")
	}
}

func (c *Coordinator) emit(ctx context.Context, kind EventKind, p *Participant, heldBy string) {
	st := p.State()
	st.Seated = c.members.IsSeated(p.ID())
	select {
	case c.events <- Event{Kind: kind, Participant: st, HeldBy: heldBy}:
	case <-ctx.Done():
	}
}

// PublishModelState pushes all eight coordinator attributes for the
// experiment's current state in a single push. e may be nil.
func (c *Coordinator) PublishModelState(ctx context.Context, e *experiment.Experiment) error {
	st := protocol.ModelStateFor(e)
	c.logger.Debug("publishing model state", "active_model", st.ActiveModel)
	return c.ch.Push(ctx, protocol.EncodeModelState(st))
}

// PublishOutput pushes only the output attribute.
func (c *Coordinator) PublishOutput(ctx context.Context, output []float64) error {
	return c.ch.Push(ctx, protocol.EncodeOutput(output))
}
