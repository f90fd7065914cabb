package participant

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/dyluth/collab/internal/logging"
	"github.com/dyluth/collab/internal/protocol"
)

// AgentMode is the state of the operator's current trial.
type AgentMode int

const (
	// AgentIdle: no model is active.
	AgentIdle AgentMode = iota
	// AgentInitialized: a model is active and no input has been sent.
	AgentInitialized
	// AgentRunning: the operator is adjusting inputs.
	AgentRunning
	// AgentWaiting: a design was submitted and the output is pending.
	AgentWaiting
	// AgentSolved: the outputs reached the target.
	AgentSolved
	// AgentComplete: the experiment has finished.
	AgentComplete
)

func (m AgentMode) String() string {
	switch m {
	case AgentIdle:
		return "idle"
	case AgentInitialized:
		return "initialized"
	case AgentRunning:
		return "running"
	case AgentWaiting:
		return "waiting"
	case AgentSolved:
		return "solved"
	case AgentComplete:
		return "complete"
	default:
		return fmt.Sprintf("mode(%d)", int(m))
	}
}

// ErrNotEditable is returned when input is changed or submitted outside a
// running trial.
var ErrNotEditable = errors.New("inputs are not editable")

// AgentConfig configures an Agent.
type AgentConfig struct {
	// ConstantFeedback locks inputs after every change until the next
	// output arrives.
	ConstantFeedback bool
	Logger           *slog.Logger
	// Notify receives every event after the agent has applied it. Optional.
	Notify func(Event, AgentStatus)
}

// Agent drives one participant's trial: it follows a single coordinator,
// keeps the local input for this participant's input partition, and
// publishes input and ready changes.
type Agent struct {
	p      *Participant
	cfg    AgentConfig
	logger *slog.Logger

	mu          sync.Mutex
	coordinator string
	mode        AgentMode
	view        View
	model       string
	input       []float64
	ready       bool
}

// NewAgent creates an agent for p. p must have claimed its index before
// the first model arrives.
func NewAgent(p *Participant, cfg AgentConfig) *Agent {
	logger := cfg.Logger
	if logger == nil {
		logger = logging.Discard()
	}
	return &Agent{
		p:      p,
		cfg:    cfg,
		logger: logger.With("component", "agent"),
	}
}

// Run consumes participant events until ctx is cancelled.
func (a *Agent) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-a.p.Events():
			if !ok {
				return nil
			}
			a.Handle(ctx, ev)
		}
	}
}

// Handle applies one participant event.
func (a *Agent) Handle(ctx context.Context, ev Event) {
	a.mu.Lock()
	switch ev.Kind {
	case EventCoordinatorAdded:
		if a.coordinator == "" {
			a.coordinator = ev.Coordinator.ID
		}
	case EventModelModified:
		if a.coordinator == "" {
			a.coordinator = ev.Coordinator.ID
		}
		if ev.Coordinator.ID == a.coordinator {
			a.initialize(ctx, ev.Coordinator)
		}
	case EventOutputModified:
		if ev.Coordinator.ID == a.coordinator {
			a.updateOutputs(ctx, ev.Coordinator)
		}
	case EventCoordinatorRemoved:
		if ev.Coordinator.ID == a.coordinator {
			a.logger.Warn("coordinator left", "coordinator_id", a.coordinator)
			a.coordinator = ""
			a.mode = AgentIdle
			a.model = ""
			a.view = View{}
			a.input = nil
		}
	}
	st := a.status()
	a.mu.Unlock()

	if a.cfg.Notify != nil {
		a.cfg.Notify(ev, st)
	}
}

// initialize resets the local trial for the coordinator's current model.
// Caller holds a.mu.
func (a *Agent) initialize(ctx context.Context, st CoordinatorState) {
	a.model = st.ActiveModel
	a.view = st.ViewFor(a.p.Index())
	a.input = nil

	switch {
	case st.ActiveModel == protocol.LabelComplete:
		a.mode = AgentComplete
	case !protocol.IsModelLabel(st.ActiveModel):
		a.mode = AgentIdle
	default:
		a.input = append([]float64{}, a.view.InitialInput...)
		a.mode = AgentInitialized
		a.logger.Info("model initialized", "model", st.ActiveModel, "inputs", len(a.input), "outputs", len(a.view.Output))
	}
	if a.ready {
		a.sendReady(ctx, false)
	}
}

// updateOutputs takes a new output. Caller holds a.mu.
func (a *Agent) updateOutputs(ctx context.Context, st CoordinatorState) {
	if a.mode != AgentInitialized && a.mode != AgentRunning && a.mode != AgentWaiting {
		return
	}
	a.view = st.ViewFor(a.p.Index())
	a.mode = AgentRunning
	a.sendReady(ctx, false)
	if st.Solved {
		a.mode = AgentSolved
		a.logger.Info("model solved", "model", a.model)
	}
}

// sendReady publishes the ready flag. Caller holds a.mu.
func (a *Agent) sendReady(ctx context.Context, ready bool) {
	if err := a.p.PublishReady(ctx, ready); err != nil {
		a.logger.Error("ready push failed", "ready", ready, "error", err)
		return
	}
	a.ready = ready
}

// Set changes local input k and publishes the input vector.
func (a *Agent) Set(ctx context.Context, k int, v float64) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.mode != AgentInitialized && a.mode != AgentRunning {
		return fmt.Errorf("%w in %s mode", ErrNotEditable, a.mode)
	}
	if k < 0 || k >= len(a.input) {
		return fmt.Errorf("input %d out of range, have %d inputs", k, len(a.input))
	}
	a.input[k] = v
	a.mode = AgentRunning
	if a.cfg.ConstantFeedback {
		a.mode = AgentWaiting
	}
	return a.p.PublishInput(ctx, append([]float64(nil), a.input...))
}

// Submit marks the current design as ready.
func (a *Agent) Submit(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.mode != AgentInitialized && a.mode != AgentRunning {
		return fmt.Errorf("%w in %s mode", ErrNotEditable, a.mode)
	}
	if err := a.p.PublishReady(ctx, true); err != nil {
		return err
	}
	a.ready = true
	a.mode = AgentWaiting
	return nil
}

// Cancel withdraws a submitted design.
func (a *Agent) Cancel(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.mode != AgentWaiting {
		return fmt.Errorf("nothing submitted in %s mode", a.mode)
	}
	if err := a.p.PublishReady(ctx, false); err != nil {
		return err
	}
	a.ready = false
	a.mode = AgentRunning
	return nil
}

// AgentStatus is a snapshot of an Agent.
type AgentStatus struct {
	Coordinator string    `json:"coordinator,omitempty"`
	Mode        string    `json:"mode"`
	ActiveModel string    `json:"active_model"`
	Index       int       `json:"index"`
	Input       []float64 `json:"input"`
	Ready       bool      `json:"ready"`
	View        View      `json:"view"`
}

// Status returns a snapshot of the agent.
func (a *Agent) Status() AgentStatus {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.status()
}

func (a *Agent) status() AgentStatus {
	return AgentStatus{
		Coordinator: a.coordinator,
		Mode:        a.mode.String(),
		ActiveModel: a.model,
		Index:       a.p.Index(),
		Input:       append([]float64{}, a.input...),
		Ready:       a.ready,
		View:        a.view,
	}
}
