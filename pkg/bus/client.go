package bus

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"github.com/dyluth/collab/internal/fault"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

var (
	// ErrNotJoined is returned by operations on a session that has left.
	ErrNotJoined = errors.New("session has left the bus")

	// ErrNotPublished is returned when pushing an attribute the session did not publish.
	ErrNotPublished = errors.New("attribute not published")

	// ErrUnknownObject is returned when a remote object is not registered.
	ErrUnknownObject = errors.New("unknown object")
)

// Client provides session-scoped Redis operations for the shared-state bus.
// All keys and channels are namespaced with the session name.
// The client is safe for concurrent use.
type Client struct {
	rdb     *redis.Client
	session string
	logger  *slog.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithLogger sets the logger used by the client and its sessions.
func WithLogger(l *slog.Logger) Option {
	return func(c *Client) { c.logger = l }
}

// NewClient creates a bus client for the named session.
// Returns an error if session is empty.
func NewClient(redisOpts *redis.Options, session string, opts ...Option) (*Client, error) {
	if session == "" {
		return nil, fmt.Errorf("session name cannot be empty")
	}

	c := &Client{
		rdb:     redis.NewClient(redisOpts),
		session: session,
		logger:  slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = c.logger.With("component", "bus", "session", session)
	return c, nil
}

// SessionName returns the namespace of this client.
func (c *Client) SessionName() string {
	return c.session
}

// Close closes the Redis connection. Implements io.Closer.
func (c *Client) Close() error {
	return c.rdb.Close()
}

// Ping verifies Redis connectivity.
func (c *Client) Ping(ctx context.Context) error {
	if err := c.rdb.Ping(ctx).Err(); err != nil {
		return fault.Transport("bus.Ping", err)
	}
	return nil
}

// Objects returns every registered object ID with its type.
func (c *Client) Objects(ctx context.Context) (map[string]ObjectType, error) {
	raw, err := c.rdb.HGetAll(ctx, ObjectsKey(c.session)).Result()
	if err != nil {
		return nil, fault.Transport("bus.Objects", fmt.Errorf("failed to read object registry: %w", err))
	}
	objects := make(map[string]ObjectType, len(raw))
	for id, typ := range raw {
		objects[id] = ObjectType(typ)
	}
	return objects, nil
}

// Attributes reads the stored values of the named attributes of an object.
// With no names every stored attribute is returned. Attributes that were
// never pushed are absent from the result.
func (c *Client) Attributes(ctx context.Context, objectID string, names ...string) (Attributes, error) {
	const op = "bus.Attributes"

	var (
		registered *redis.BoolCmd
		all        *redis.MapStringStringCmd
		some       *redis.SliceCmd
	)
	_, err := c.rdb.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		registered = pipe.HExists(ctx, ObjectsKey(c.session), objectID)
		if len(names) == 0 {
			all = pipe.HGetAll(ctx, ObjectKey(c.session, objectID))
		} else {
			some = pipe.HMGet(ctx, ObjectKey(c.session, objectID), names...)
		}
		return nil
	})
	if err != nil {
		return nil, fault.Transport(op, fmt.Errorf("failed to read attributes of %s: %w", objectID, err))
	}
	if !registered.Val() {
		return nil, &fault.Error{Kind: fault.KindProtocol, Op: op, Detail: objectID, Err: ErrUnknownObject}
	}

	attrs := make(Attributes)
	if all != nil {
		for name, v := range all.Val() {
			attrs[name] = []byte(v)
		}
		return attrs, nil
	}
	for i, v := range some.Val() {
		if s, ok := v.(string); ok {
			attrs[names[i]] = []byte(s)
		}
	}
	return attrs, nil
}

// Subscription represents an active Pub/Sub subscription to object events.
// Caller must call Close() when done to clean up resources.
type Subscription struct {
	events <-chan *Event
	errors <-chan error
	cancel func()
	once   sync.Once
}

// Events returns the channel of object events.
// The channel is closed when the subscription is closed or the context is cancelled.
func (s *Subscription) Events() <-chan *Event {
	return s.events
}

// Errors returns the channel of malformed-message errors.
// The subscription continues after errors; the offending message is skipped.
func (s *Subscription) Errors() <-chan error {
	return s.errors
}

// Close stops the subscription. Safe to call multiple times.
func (s *Subscription) Close() error {
	s.once.Do(s.cancel)
	return nil
}

// Watch subscribes to every object event of the session.
// The subscription is confirmed by Redis before Watch returns, so no event
// published after Watch returns is missed.
func (c *Client) Watch(ctx context.Context) (*Subscription, error) {
	pubsub := c.rdb.Subscribe(ctx, ObjectEventsChannel(c.session))
	if _, err := pubsub.Receive(ctx); err != nil {
		pubsub.Close()
		return nil, fault.Transport("bus.Watch", fmt.Errorf("failed to subscribe to object events: %w", err))
	}

	eventsChan := make(chan *Event, 64)
	errorsChan := make(chan error, 10)
	subCtx, cancelFunc := context.WithCancel(ctx)

	go func() {
		defer close(eventsChan)
		defer close(errorsChan)
		defer pubsub.Close()

		ch := pubsub.Channel()
		for {
			select {
			case <-subCtx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}

				ev, err := decodeEvent(msg.Payload)
				if err != nil {
					select {
					case errorsChan <- err:
					case <-subCtx.Done():
						return
					}
					continue
				}

				select {
				case eventsChan <- ev:
				case <-subCtx.Done():
					return
				}
			}
		}
	}()

	return &Subscription{
		events: eventsChan,
		errors: errorsChan,
		cancel: cancelFunc,
	}, nil
}

// Join registers a new object of the given type and subscribes to object
// events. Callbacks start flowing once Start is called on the returned
// session; declare publications and subscriptions first.
// ctx bounds the lifetime of the session's subscription.
func (c *Client) Join(ctx context.Context, objectType ObjectType) (*Session, error) {
	const op = "bus.Join"
	if objectType == "" {
		return nil, fault.Validation(op, "object type cannot be empty")
	}

	sub, err := c.Watch(ctx)
	if err != nil {
		return nil, err
	}

	id := uuid.New().String()
	payload, err := json.Marshal(&Event{Kind: EventDiscover, ObjectID: id, ObjectType: objectType})
	if err != nil {
		sub.Close()
		return nil, fmt.Errorf("failed to marshal discover event: %w", err)
	}

	_, err = c.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, ObjectsKey(c.session), id, string(objectType))
		pipe.Publish(ctx, ObjectEventsChannel(c.session), payload)
		return nil
	})
	if err != nil {
		sub.Close()
		return nil, fault.Transport(op, fmt.Errorf("failed to register %s object: %w", objectType, err))
	}

	c.logger.Debug("joined bus", "object_id", id, "object_type", objectType)
	return newSession(c, id, objectType, sub), nil
}
