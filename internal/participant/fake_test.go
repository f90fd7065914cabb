package participant

import (
	"context"
	"sync"

	"github.com/dyluth/collab/pkg/bus"
)

// fakeChannel records pushes and serves RequestUpdate from canned remote
// attributes, reflecting them synchronously like the Redis session does.
type fakeChannel struct {
	mu       sync.Mutex
	handler  bus.Handler
	remote   map[string]bus.Attributes
	requests map[string][]string
	pushes   []bus.Attributes
	pushErr  error
}

func newFakeChannel() *fakeChannel {
	return &fakeChannel{
		remote:   make(map[string]bus.Attributes),
		requests: make(map[string][]string),
	}
}

func (f *fakeChannel) RequestUpdate(ctx context.Context, remoteID string, names ...string) error {
	f.mu.Lock()
	f.requests[remoteID] = append([]string(nil), names...)
	stored := f.remote[remoteID]
	h := f.handler
	f.mu.Unlock()

	attrs := bus.Attributes{}
	for _, name := range names {
		if v, ok := stored[name]; ok {
			attrs[name] = v
		}
	}
	if len(attrs) > 0 && h != nil {
		h.Reflect(ctx, remoteID, attrs)
	}
	return nil
}

func (f *fakeChannel) Push(_ context.Context, attrs bus.Attributes) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.pushErr != nil {
		return f.pushErr
	}
	f.pushes = append(f.pushes, attrs.Clone())
	return nil
}

func (f *fakeChannel) lastPush() bus.Attributes {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.pushes) == 0 {
		return nil
	}
	return f.pushes[len(f.pushes)-1]
}

func (f *fakeChannel) pushCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.pushes)
}
