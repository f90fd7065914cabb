package participant

import (
	"context"
	"testing"
	"time"

	"github.com/dyluth/collab/internal/codec"
	"github.com/dyluth/collab/internal/protocol"
	"github.com/dyluth/collab/pkg/bus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type agentHarness struct {
	p  *Participant
	ch *fakeChannel
	a  *Agent
}

func setupAgent(t *testing.T, index int, cfg AgentConfig) *agentHarness {
	t.Helper()
	p, ch := setupParticipant(t)
	require.NoError(t, p.ClaimIndex(context.Background(), index))
	return &agentHarness{p: p, ch: ch, a: NewAgent(p, cfg)}
}

// drain hands every pending participant event to the agent.
func (h *agentHarness) drain(ctx context.Context) {
	for {
		select {
		case ev := <-h.p.Events():
			h.a.Handle(ctx, ev)
		default:
			return
		}
	}
}

func (h *agentHarness) push(ctx context.Context, attrs bus.Attributes) {
	h.p.Reflect(ctx, "c1", attrs)
	h.drain(ctx)
}

func (h *agentHarness) lastReady(t *testing.T) bool {
	t.Helper()
	raw, ok := h.ch.lastPush()[protocol.AttrReady]
	require.True(t, ok, "last push carries no ready flag")
	ready, err := codec.DecodeBool(raw)
	require.NoError(t, err)
	return ready
}

func (h *agentHarness) lastInput(t *testing.T) []float64 {
	t.Helper()
	raw, ok := h.ch.lastPush()[protocol.AttrInput]
	require.True(t, ok, "last push carries no input")
	in, err := codec.DecodeFloatVector(raw)
	require.NoError(t, err)
	return in
}

func TestAgentTrial(t *testing.T) {
	ctx := context.Background()
	h := setupAgent(t, 1, AgentConfig{})

	h.p.Discover(ctx, "c1", protocol.ObjectCoordinator)
	h.drain(ctx)
	assert.Equal(t, "c1", h.a.Status().Coordinator)
	assert.Equal(t, "idle", h.a.Status().Mode)

	h.push(ctx, protocol.EncodeModelState(sumDiffState()))
	st := h.a.Status()
	assert.Equal(t, "initialized", st.Mode)
	assert.Equal(t, "sum-diff", st.ActiveModel)
	assert.Equal(t, []float64{0}, st.Input)
	assert.Equal(t, []string{"x1"}, st.View.InputLabels)
	assert.Equal(t, []float64{1}, st.View.Target)
	assert.Equal(t, []string{"diff"}, st.View.OutputLabels)

	require.NoError(t, h.a.Set(ctx, 0, 0.98))
	assert.Equal(t, []float64{0.98}, h.lastInput(t))
	assert.Equal(t, "running", h.a.Status().Mode)

	require.Error(t, h.a.Set(ctx, 1, 5), "only one local input")

	require.NoError(t, h.a.Submit(ctx))
	assert.True(t, h.lastReady(t))
	assert.Equal(t, "waiting", h.a.Status().Mode)
	assert.ErrorIs(t, h.a.Set(ctx, 0, 1), ErrNotEditable)
	assert.ErrorIs(t, h.a.Submit(ctx), ErrNotEditable)

	// Output arrives but misses the target: ready is withdrawn.
	h.push(ctx, protocol.EncodeOutput([]float64{0.98, -0.98}))
	st = h.a.Status()
	assert.Equal(t, "running", st.Mode)
	assert.False(t, st.Ready)
	assert.False(t, h.lastReady(t))
	assert.Equal(t, []float64{-0.98}, st.View.Output)

	require.NoError(t, h.a.Submit(ctx))
	h.push(ctx, protocol.EncodeOutput([]float64{2.98, 1.02}))
	st = h.a.Status()
	assert.Equal(t, "solved", st.Mode)
	assert.ErrorIs(t, h.a.Set(ctx, 0, 1), ErrNotEditable)

	// Further outputs are ignored once solved.
	pushes := h.ch.pushCount()
	h.push(ctx, protocol.EncodeOutput([]float64{0, 0}))
	assert.Equal(t, pushes, h.ch.pushCount())
	assert.Equal(t, "solved", h.a.Status().Mode)
}

func TestAgentCancel(t *testing.T) {
	ctx := context.Background()
	h := setupAgent(t, 0, AgentConfig{})
	h.p.Discover(ctx, "c1", protocol.ObjectCoordinator)
	h.push(ctx, protocol.EncodeModelState(sumDiffState()))

	require.Error(t, h.a.Cancel(ctx), "nothing to cancel")

	require.NoError(t, h.a.Submit(ctx))
	require.NoError(t, h.a.Cancel(ctx))
	assert.False(t, h.lastReady(t))
	assert.Equal(t, "running", h.a.Status().Mode)

	require.NoError(t, h.a.Set(ctx, 0, 2))
	assert.Equal(t, []float64{2}, h.lastInput(t))
}

func TestAgentConstantFeedback(t *testing.T) {
	ctx := context.Background()
	h := setupAgent(t, 0, AgentConfig{ConstantFeedback: true})
	h.p.Discover(ctx, "c1", protocol.ObjectCoordinator)
	h.push(ctx, protocol.EncodeModelState(sumDiffState()))

	require.NoError(t, h.a.Set(ctx, 0, 1))
	assert.Equal(t, "waiting", h.a.Status().Mode)
	assert.ErrorIs(t, h.a.Set(ctx, 0, 2), ErrNotEditable)

	h.push(ctx, protocol.EncodeOutput([]float64{1, 1}))
	assert.Equal(t, "running", h.a.Status().Mode)
	require.NoError(t, h.a.Set(ctx, 0, 2))
}

func TestAgentModelTransitions(t *testing.T) {
	ctx := context.Background()
	h := setupAgent(t, 0, AgentConfig{})
	h.p.Discover(ctx, "c1", protocol.ObjectCoordinator)

	ready := protocol.ModelState{
		ActiveModel:   protocol.LabelReady,
		InputIndices:  [][]int{{}, {}},
		OutputIndices: [][]int{{}, {}},
	}
	h.push(ctx, protocol.EncodeModelState(ready))
	assert.Equal(t, "idle", h.a.Status().Mode)
	assert.Empty(t, h.a.Status().Input)

	h.push(ctx, protocol.EncodeModelState(sumDiffState()))
	require.NoError(t, h.a.Submit(ctx))
	require.True(t, h.a.Status().Ready)

	// A new model resets the local trial and withdraws the submission.
	next := sumDiffState()
	next.ActiveModel = "sum-diff-2"
	next.InitialInput = []float64{4, 5}
	h.push(ctx, protocol.EncodeModelState(next))
	st := h.a.Status()
	assert.Equal(t, "initialized", st.Mode)
	assert.Equal(t, []float64{4}, st.Input)
	assert.False(t, st.Ready)
	assert.False(t, h.lastReady(t))

	complete := ready
	complete.ActiveModel = protocol.LabelComplete
	h.push(ctx, protocol.EncodeModelState(complete))
	assert.Equal(t, "complete", h.a.Status().Mode)
	assert.ErrorIs(t, h.a.Submit(ctx), ErrNotEditable)
}

func TestAgentFollowsOneCoordinator(t *testing.T) {
	ctx := context.Background()
	h := setupAgent(t, 0, AgentConfig{})
	h.p.Discover(ctx, "c1", protocol.ObjectCoordinator)
	h.p.Discover(ctx, "c2", protocol.ObjectCoordinator)
	h.drain(ctx)

	h.p.Reflect(ctx, "c2", protocol.EncodeModelState(sumDiffState()))
	h.drain(ctx)
	assert.Equal(t, "c1", h.a.Status().Coordinator)
	assert.Equal(t, "idle", h.a.Status().Mode)

	h.push(ctx, protocol.EncodeModelState(sumDiffState()))
	assert.Equal(t, "initialized", h.a.Status().Mode)

	h.p.Remove(ctx, "c1")
	h.drain(ctx)
	st := h.a.Status()
	assert.Empty(t, st.Coordinator)
	assert.Equal(t, "idle", st.Mode)
}

func TestAgentNotify(t *testing.T) {
	ctx := context.Background()
	var got []EventKind
	var last AgentStatus
	h := setupAgent(t, 0, AgentConfig{Notify: func(ev Event, st AgentStatus) {
		got = append(got, ev.Kind)
		last = st
	}})

	h.p.Discover(ctx, "c1", protocol.ObjectCoordinator)
	h.push(ctx, protocol.EncodeModelState(sumDiffState()))

	assert.Equal(t, []EventKind{EventCoordinatorAdded, EventModelModified}, got)
	assert.Equal(t, "initialized", last.Mode)
}

func TestAgentRun(t *testing.T) {
	h := setupAgent(t, 0, AgentConfig{})
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() { done <- h.a.Run(ctx) }()

	h.p.Discover(ctx, "c1", protocol.ObjectCoordinator)
	h.p.Reflect(ctx, "c1", protocol.EncodeModelState(sumDiffState()))
	require.Eventually(t, func() bool {
		return h.a.Status().Mode == "initialized"
	}, time.Second, 10*time.Millisecond)

	cancel()
	require.NoError(t, <-done)
}
