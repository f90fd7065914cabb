package bus

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/dyluth/collab/internal/fault"
	"github.com/redis/go-redis/v9"
)

// Session is one registered object on the bus: the local end of a
// coordinator or participant. It owns the object's published attributes
// and delivers remote object callbacks to a Handler.
type Session struct {
	client     *Client
	id         string
	objectType ObjectType
	sub        *Subscription
	logger     *slog.Logger
	done       chan struct{}

	mu         sync.RWMutex
	published  map[string]struct{}
	subscribed map[ObjectType]map[string]struct{}
	known      map[string]ObjectType
	handler    Handler
	left       bool

	leaveOnce sync.Once
}

func newSession(c *Client, id string, objectType ObjectType, sub *Subscription) *Session {
	return &Session{
		client:     c,
		id:         id,
		objectType: objectType,
		sub:        sub,
		logger:     c.logger.With("object_id", id),
		done:       make(chan struct{}),
		published:  make(map[string]struct{}),
		subscribed: make(map[ObjectType]map[string]struct{}),
		known:      make(map[string]ObjectType),
	}
}

// ID returns the identifier of the local object.
func (s *Session) ID() string { return s.id }

// ObjectType returns the type of the local object.
func (s *Session) ObjectType() ObjectType { return s.objectType }

// Done is closed when the session stops delivering callbacks.
func (s *Session) Done() <-chan struct{} { return s.done }

// Publish declares attributes this session will push.
func (s *Session) Publish(names ...string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.left {
		return fmt.Errorf("bus.Publish: %w", ErrNotJoined)
	}
	for _, name := range names {
		s.published[name] = struct{}{}
	}
	return nil
}

// Subscribe declares interest in objects of the given type and in the named
// attributes of those objects. Only subscribed types are discovered and
// only subscribed attributes are reflected.
func (s *Session) Subscribe(objectType ObjectType, names ...string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.left {
		return fmt.Errorf("bus.Subscribe: %w", ErrNotJoined)
	}
	set, ok := s.subscribed[objectType]
	if !ok {
		set = make(map[string]struct{})
		s.subscribed[objectType] = set
	}
	for _, name := range names {
		set[name] = struct{}{}
	}
	return nil
}

// Start replays objects already registered as discoveries and then
// delivers bus events to h until ctx is cancelled or the session leaves.
func (s *Session) Start(ctx context.Context, h Handler) error {
	s.mu.Lock()
	if s.left {
		s.mu.Unlock()
		return fmt.Errorf("bus.Start: %w", ErrNotJoined)
	}
	if s.handler != nil {
		s.mu.Unlock()
		return fmt.Errorf("bus.Start: session %s already started", s.id)
	}
	s.handler = h
	s.mu.Unlock()

	objects, err := s.client.Objects(ctx)
	if err != nil {
		s.mu.Lock()
		s.handler = nil
		if s.left {
			close(s.done)
		}
		s.mu.Unlock()
		return err
	}

	go s.dispatch(ctx, h, objects)
	return nil
}

func (s *Session) dispatch(ctx context.Context, h Handler, existing map[string]ObjectType) {
	defer close(s.done)

	ids := make([]string, 0, len(existing))
	for id := range existing {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		if id != s.id {
			s.discover(ctx, h, id, existing[id])
		}
	}

	events := s.sub.Events()
	errs := s.sub.Errors()
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			s.handle(ctx, h, ev)
		case err, ok := <-errs:
			if !ok {
				errs = nil
				continue
			}
			s.logger.Warn("skipping malformed bus message", "error", err)
		}
	}
}

func (s *Session) handle(ctx context.Context, h Handler, ev *Event) {
	if ev.ObjectID == s.id {
		return
	}

	switch ev.Kind {
	case EventDiscover:
		s.discover(ctx, h, ev.ObjectID, ev.ObjectType)
	case EventUpdate:
		// An update can overtake its discovery.
		s.discover(ctx, h, ev.ObjectID, ev.ObjectType)
		attrs := s.filter(ev.ObjectID, ev.Attributes)
		if len(attrs) > 0 {
			h.Reflect(ctx, ev.ObjectID, attrs)
		}
	case EventRemove:
		s.mu.Lock()
		_, ok := s.known[ev.ObjectID]
		delete(s.known, ev.ObjectID)
		s.mu.Unlock()
		if ok {
			h.Remove(ctx, ev.ObjectID)
		}
	}
}

func (s *Session) discover(ctx context.Context, h Handler, id string, objectType ObjectType) {
	s.mu.Lock()
	_, seen := s.known[id]
	_, wanted := s.subscribed[objectType]
	if seen || !wanted {
		s.mu.Unlock()
		return
	}
	s.known[id] = objectType
	s.mu.Unlock()

	s.logger.Debug("discovered object", "remote_id", id, "object_type", objectType)
	h.Discover(ctx, id, objectType)
}

// filter keeps the attributes subscribed for the remote object's type.
func (s *Session) filter(id string, attrs Attributes) Attributes {
	s.mu.RLock()
	defer s.mu.RUnlock()
	typ, ok := s.known[id]
	if !ok {
		return nil
	}
	names := s.subscribed[typ]
	out := make(Attributes, len(attrs))
	for name, v := range attrs {
		if _, ok := names[name]; ok {
			out[name] = v
		}
	}
	return out
}

// RequestUpdate pulls the current values of the named attributes from a
// discovered remote object and delivers those present through the
// handler's Reflect, on the calling goroutine.
func (s *Session) RequestUpdate(ctx context.Context, remoteID string, names ...string) error {
	const op = "bus.RequestUpdate"

	s.mu.RLock()
	h, left := s.handler, s.left
	s.mu.RUnlock()
	if left {
		return fmt.Errorf("%s: %w", op, ErrNotJoined)
	}
	if h == nil {
		return fmt.Errorf("%s: session %s not started", op, s.id)
	}

	attrs, err := s.client.Attributes(ctx, remoteID, names...)
	if err != nil {
		return err
	}
	attrs = s.filter(remoteID, attrs)
	if len(attrs) == 0 {
		return nil
	}
	h.Reflect(ctx, remoteID, attrs)
	return nil
}

// Push stores the attribute values of the local object and publishes them
// to subscribers in one MULTI/EXEC transaction. Every name must have been
// published.
func (s *Session) Push(ctx context.Context, attrs Attributes) error {
	const op = "bus.Push"

	s.mu.RLock()
	left := s.left
	var unpublished []string
	for name := range attrs {
		if _, ok := s.published[name]; !ok {
			unpublished = append(unpublished, name)
		}
	}
	s.mu.RUnlock()

	if left {
		return fmt.Errorf("%s: %w", op, ErrNotJoined)
	}
	if len(unpublished) > 0 {
		sort.Strings(unpublished)
		return &fault.Error{Kind: fault.KindValidation, Op: op, Detail: fmt.Sprintf("%v", unpublished), Err: ErrNotPublished}
	}
	if len(attrs) == 0 {
		return nil
	}

	payload, err := json.Marshal(&Event{Kind: EventUpdate, ObjectID: s.id, ObjectType: s.objectType, Attributes: attrs})
	if err != nil {
		return fmt.Errorf("failed to marshal update event: %w", err)
	}
	values := make(map[string]interface{}, len(attrs))
	for name, v := range attrs {
		values[name] = v
	}

	_, err = s.client.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, ObjectKey(s.client.session, s.id), values)
		pipe.Publish(ctx, ObjectEventsChannel(s.client.session), payload)
		return nil
	})
	if err != nil {
		return fault.Transport(op, fmt.Errorf("failed to push %v: %w", attrs.Names(), err))
	}
	return nil
}

// Leave deregisters the local object, deletes its attributes and publishes
// its removal. Calling Leave again is a no-op.
func (s *Session) Leave(ctx context.Context) error {
	var leaveErr error
	s.leaveOnce.Do(func() {
		s.mu.Lock()
		s.left = true
		started := s.handler != nil
		s.mu.Unlock()

		s.sub.Close()
		if !started {
			close(s.done)
		}

		payload, err := json.Marshal(&Event{Kind: EventRemove, ObjectID: s.id, ObjectType: s.objectType})
		if err != nil {
			leaveErr = fmt.Errorf("failed to marshal remove event: %w", err)
			return
		}
		_, err = s.client.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.HDel(ctx, ObjectsKey(s.client.session), s.id)
			pipe.Del(ctx, ObjectKey(s.client.session, s.id))
			pipe.Publish(ctx, ObjectEventsChannel(s.client.session), payload)
			return nil
		})
		if err != nil {
			leaveErr = fault.Transport("bus.Leave", fmt.Errorf("failed to deregister %s: %w", s.id, err))
			return
		}
		s.logger.Debug("left bus")
	})
	return leaveErr
}
