package coordinator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/dyluth/collab/internal/experiment"
	"github.com/dyluth/collab/internal/logging"
	"github.com/dyluth/collab/internal/model"
	"github.com/dyluth/collab/internal/protocol"
)

// Mode is the state of the current trial.
type Mode int

const (
	// ModeReady: no model is active.
	ModeReady Mode = iota
	// ModeInitialized: a model is active and no output has been computed yet.
	ModeInitialized
	// ModeRunning: outputs are being computed from participant inputs.
	ModeRunning
	// ModeSolved: the outputs reached the target; further input is ignored.
	ModeSolved
	// ModeComplete: the experiment has finished.
	ModeComplete
)

func (m Mode) String() string {
	switch m {
	case ModeReady:
		return "ready"
	case ModeInitialized:
		return "initialized"
	case ModeRunning:
		return "running"
	case ModeSolved:
		return "solved"
	case ModeComplete:
		return "complete"
	default:
		return fmt.Sprintf("mode(%d)", int(m))
	}
}

var (
	// ErrNoExperiment is returned by operations that need an open experiment.
	ErrNoExperiment = errors.New("no experiment is open")

	// ErrNotEnoughParticipants is returned by Advance when an index in
	// [0, participants) has no seated participant.
	ErrNotEnoughParticipants = errors.New("not enough participants seated")

	// ErrIndexOutOfRange is returned by Advance when a participant is seated
	// at an index the experiment has no slot for.
	ErrIndexOutOfRange = errors.New("participant index out of range")
)

// ControllerConfig configures a Controller.
type ControllerConfig struct {
	// ConstantFeedback recomputes outputs on every input change instead of
	// waiting for every seated participant to be ready.
	ConstantFeedback bool
	TrialLog         *logging.TrialLog
	Logger           *slog.Logger
	// Notify receives membership events for the operator. Optional.
	Notify func(Event)
}

// Controller runs trials: it owns the open experiment, aggregates
// participant inputs through the active model's input partition, and
// pushes outputs back to participants.
type Controller struct {
	coord  *Coordinator
	cfg    ControllerConfig
	logger *slog.Logger

	mu      sync.Mutex
	exp     *experiment.Experiment
	mode    Mode
	input   []float64
	output  []float64
	started time.Time
}

// NewController creates a controller driving coord.
func NewController(coord *Coordinator, cfg ControllerConfig) *Controller {
	logger := cfg.Logger
	if logger == nil {
		logger = logging.Discard()
	}
	return &Controller{
		coord:  coord,
		cfg:    cfg,
		logger: logger.With("component", "controller"),
	}
}

// Open replaces the current experiment and publishes its state. Seated
// participants without a slot in e are reported through Notify.
func (c *Controller) Open(ctx context.Context, e *experiment.Experiment) error {
	c.mu.Lock()
	c.exp = e
	c.record(logging.TrialOpened, map[string]any{"experiment": e.Name()})
	c.logger.Info("experiment opened", "experiment", e.Name(), "participants", e.Participants())
	err := c.initialize(ctx, e.ActiveModel())

	var stray []ParticipantState
	for index, p := range c.coord.Members().Seated() {
		if index >= e.Participants() {
			stray = append(stray, c.seatedState(p))
		}
	}
	c.mu.Unlock()

	sort.Slice(stray, func(i, j int) bool { return stray[i].Index < stray[j].Index })
	for _, p := range stray {
		c.outOfRange(p, e.Participants())
	}
	return err
}

// Close closes the current experiment.
func (c *Controller) Close(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.exp != nil {
		c.record(logging.TrialClosed, map[string]any{"experiment": c.exp.Name()})
		c.logger.Info("experiment closed", "experiment", c.exp.Name())
	}
	c.exp = nil
	return c.initialize(ctx, nil)
}

// Reset returns the open experiment to its ready phase.
func (c *Controller) Reset(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.exp == nil {
		return ErrNoExperiment
	}
	c.exp.Reset()
	c.logger.Info("experiment reset", "experiment", c.exp.Name())
	return c.initialize(ctx, nil)
}

// Advance moves to the next model. It refuses unless the seated indices are
// exactly 0..participants-1.
func (c *Controller) Advance(ctx context.Context) (*model.Model, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.advance(ctx)
}

func (c *Controller) advance(ctx context.Context) (*model.Model, error) {
	if c.exp == nil {
		return nil, ErrNoExperiment
	}
	if err := checkSeats(c.coord.Members().Seated(), c.exp.Participants()); err != nil {
		return nil, err
	}
	md := c.exp.Advance()
	return md, c.initialize(ctx, md)
}

// EndTraining ends the training phase and advances to the first
// experiment model.
func (c *Controller) EndTraining(ctx context.Context) (*model.Model, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.exp == nil {
		return nil, ErrNoExperiment
	}
	if err := c.exp.EndTraining(); err != nil {
		return nil, err
	}
	c.logger.Info("training ended", "experiment", c.exp.Name())

	md, err := c.advance(ctx)
	if errors.Is(err, ErrNotEnoughParticipants) || errors.Is(err, ErrIndexOutOfRange) {
		// Training is over either way; publish the waiting state.
		if perr := c.initialize(ctx, nil); perr != nil {
			return nil, perr
		}
	}
	return md, err
}

// Comment appends an operator comment to the trial log.
func (c *Controller) Comment(text string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.exp == nil {
		return ErrNoExperiment
	}
	return c.cfg.TrialLog.Record(logging.TrialComment, map[string]any{"text": text})
}

// initialize resets trial state for md, which may be nil, and publishes
// the model state. Caller holds c.mu.
func (c *Controller) initialize(ctx context.Context, md *model.Model) error {
	c.input, c.output = nil, nil
	switch {
	case md != nil:
		c.mode = ModeInitialized
		c.input = md.InitialInput()
		c.output, _ = md.OutputFor(c.input)
		c.record(logging.TrialInitialized, map[string]any{"model": md.Name(), "target": md.Target()})
		c.logger.Info("model initialized", "model", md.Name(), "training", c.exp.IsTraining())
	case c.exp != nil && c.exp.IsComplete():
		c.mode = ModeComplete
		c.record(logging.TrialInitialized, map[string]any{"model": nil})
		c.logger.Info("experiment complete", "experiment", c.exp.Name())
	default:
		c.mode = ModeReady
		c.record(logging.TrialInitialized, map[string]any{"model": nil})
	}
	return c.coord.PublishModelState(ctx, c.exp)
}

// Run consumes coordinator events until ctx is cancelled.
func (c *Controller) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-c.coord.Events():
			if !ok {
				return nil
			}
			c.handle(ctx, ev)
		}
	}
}

func (c *Controller) handle(ctx context.Context, ev Event) {
	switch ev.Kind {
	case EventParticipantAdded, EventParticipantRemoved, EventIndexConflict:
		if c.cfg.Notify != nil {
			c.cfg.Notify(ev)
		}
		if ev.Kind != EventParticipantAdded {
			return
		}
		c.mu.Lock()
		slots := -1
		if c.exp != nil {
			slots = c.exp.Participants()
		}
		c.mu.Unlock()
		if slots >= 0 && ev.Participant.Index >= slots {
			c.outOfRange(ev.Participant, slots)
		}
	case EventInputChanged:
		c.mu.Lock()
		defer c.mu.Unlock()
		if !c.accepting(ev) {
			return
		}
		c.applyInput(ev.Participant)
		if c.cfg.ConstantFeedback {
			c.updateOutputs(ctx)
		}
	case EventReadyChanged:
		c.mu.Lock()
		defer c.mu.Unlock()
		if !c.accepting(ev) {
			return
		}
		if !c.cfg.ConstantFeedback {
			c.updateOutputs(ctx)
		}
	}
}

// outOfRange reports a participant seated beyond the experiment's slots.
func (c *Controller) outOfRange(p ParticipantState, slots int) {
	c.logger.Warn("participant index outside experiment", "participant_id", p.ID, "index", p.Index, "slots", slots)
	if c.cfg.Notify != nil {
		c.cfg.Notify(Event{Kind: EventIndexOutOfRange, Participant: p})
	}
}

func (c *Controller) seatedState(p *Participant) ParticipantState {
	st := p.State()
	st.Seated = true
	return st
}

// checkSeats verifies that seated holds exactly the indices 0..slots-1.
func checkSeats(seated map[int]*Participant, slots int) error {
	var missing, extra []int
	for i := 0; i < slots; i++ {
		if _, ok := seated[i]; !ok {
			missing = append(missing, i)
		}
	}
	for index := range seated {
		if index >= slots {
			extra = append(extra, index)
		}
	}
	sort.Ints(extra)

	switch {
	case len(missing) > 0:
		err := fmt.Errorf("%w: need %d, have %d (missing index %s)",
			ErrNotEnoughParticipants, slots, slots-len(missing), joinInts(missing))
		if len(extra) > 0 {
			err = fmt.Errorf("%w; index %s outside 0..%d", err, joinInts(extra), slots-1)
		}
		return err
	case len(extra) > 0:
		return fmt.Errorf("%w: index %s outside 0..%d", ErrIndexOutOfRange, joinInts(extra), slots-1)
	}
	return nil
}

func joinInts(v []int) string {
	parts := make([]string, len(v))
	for i, n := range v {
		parts[i] = strconv.Itoa(n)
	}
	return strings.Join(parts, ", ")
}

// accepting reports whether ev comes from a seated participant while a
// trial is in progress. Caller holds c.mu.
func (c *Controller) accepting(ev Event) bool {
	return (c.mode == ModeInitialized || c.mode == ModeRunning) &&
		c.exp != nil && c.exp.ActiveModel() != nil &&
		c.coord.Members().IsSeated(ev.Participant.ID)
}

// applyInput copies a participant's local input into the aggregate input
// vector through the active model's input partition. Caller holds c.mu.
func (c *Controller) applyInput(p ParticipantState) {
	partition := c.exp.ActiveModel().InputIndices()
	if p.Index < 0 || p.Index >= len(partition) {
		c.logger.Warn("participant index outside model partition", "participant_id", p.ID, "index", p.Index)
		return
	}
	slots := partition[p.Index]
	if len(p.Input) != len(slots) {
		c.logger.Warn("protocol violation: input length does not match partition",
			"participant_id", p.ID, "index", p.Index, "got", len(p.Input), "want", len(slots))
	}
	for i, k := range slots {
		if i < len(p.Input) {
			c.input[k] = p.Input[i]
		}
	}
}

// updateOutputs recomputes and pushes the output when every seated
// participant is ready or constant feedback is on. Caller holds c.mu.
func (c *Controller) updateOutputs(ctx context.Context) {
	send := c.cfg.ConstantFeedback
	if !send {
		send = true
		for _, p := range c.coord.Members().Seated() {
			if !p.Ready() {
				send = false
				break
			}
		}
	}
	if !send {
		return
	}
	if c.mode == ModeInitialized {
		c.mode = ModeRunning
		c.started = time.Now()
	}
	if c.mode != ModeRunning {
		return
	}

	md := c.exp.ActiveModel()
	out, err := md.OutputFor(c.input)
	if err != nil {
		c.logger.Error("output computation failed", "model", md.Name(), "error", err)
		return
	}
	c.output = out
	outErr, _ := md.OutputError(c.input)
	c.record(logging.TrialUpdated, map[string]any{
		"elapsed_ms":   time.Since(c.started).Milliseconds(),
		"input":        append([]float64(nil), c.input...),
		"output":       out,
		"output_error": outErr,
	})
	c.logger.Debug("outputs updated", "input", model.FormatVector(c.input, 3), "output", model.FormatVector(out, 3))

	if err := c.coord.PublishOutput(ctx, out); err != nil {
		c.logger.Error("output push failed", "error", err)
	}

	if model.IsSolved(out, md.Target()) {
		c.mode = ModeSolved
		c.record(logging.TrialSolved, map[string]any{"model": md.Name()})
		c.logger.Info("model solved", "model", md.Name(), "elapsed", time.Since(c.started).Round(time.Millisecond))
	}
}

func (c *Controller) record(event string, data map[string]any) {
	if err := c.cfg.TrialLog.Record(event, data); err != nil {
		c.logger.Error("trial log write failed", "event", event, "error", err)
	}
}

// Status is a snapshot of the controller for operators and the status endpoint.
type Status struct {
	Experiment   string             `json:"experiment,omitempty"`
	Phase        string             `json:"phase,omitempty"`
	Mode         string             `json:"mode"`
	ActiveModel  string             `json:"active_model"`
	Training     bool               `json:"training"`
	Required     int                `json:"participants_required"`
	Participants []ParticipantState `json:"participants"`
	Input        []float64          `json:"input,omitempty"`
	Output       []float64          `json:"output,omitempty"`
	Target       []float64          `json:"target,omitempty"`
	Solved       bool               `json:"solved"`
}

// Status returns a snapshot of the controller.
func (c *Controller) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()

	st := Status{
		Mode:         c.mode.String(),
		ActiveModel:  protocol.ModelStateFor(c.exp).ActiveModel,
		Participants: c.coord.Members().Snapshot(),
		Input:        append([]float64(nil), c.input...),
		Output:       append([]float64(nil), c.output...),
		Solved:       c.mode == ModeSolved,
	}
	if c.exp != nil {
		st.Experiment = c.exp.Name()
		st.Phase = c.exp.Phase().String()
		st.Training = c.exp.IsTraining()
		st.Required = c.exp.Participants()
		if md := c.exp.ActiveModel(); md != nil {
			st.Target = md.Target()
		}
	}
	return st
}
