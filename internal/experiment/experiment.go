// Package experiment sequences linear models into a training phase and a
// randomised experiment phase.
package experiment

import (
	"errors"
	"fmt"
	"math/rand/v2"
	"sync"

	"github.com/dyluth/collab/internal/fault"
	"github.com/dyluth/collab/internal/model"
)

// Phase is the progression state of an experiment.
type Phase int

const (
	PhaseReady Phase = iota
	PhaseTraining
	PhaseExperiment
	PhaseComplete
)

func (p Phase) String() string {
	switch p {
	case PhaseReady:
		return "ready"
	case PhaseTraining:
		return "training"
	case PhaseExperiment:
		return "experiment"
	case PhaseComplete:
		return "complete"
	default:
		return fmt.Sprintf("phase(%d)", int(p))
	}
}

// ErrNotTraining is returned by EndTraining outside the training phase.
var ErrNotTraining = errors.New("experiment is not in the training phase")

// Option configures an Experiment.
type Option func(*options)

type options struct {
	rng *rand.Rand
}

// WithRand sets the source used to shuffle the experiment models.
func WithRand(r *rand.Rand) Option {
	return func(o *options) { o.rng = r }
}

// Experiment orders models into phases and tracks the active one.
// It is safe for concurrent use.
type Experiment struct {
	name         string
	participants int
	training     []*model.Model
	trials       []*model.Model
	original     []*model.Model

	mu     sync.RWMutex
	phase  Phase
	pos    int
	active *model.Model
}

// New validates that every model has the configured number of participant
// slots and builds an experiment in the ready phase. The experiment models
// are shuffled once here; the order is fixed for the lifetime of the value.
func New(name string, participants int, training, trials []*model.Model, opts ...Option) (*Experiment, error) {
	const op = "experiment.New"

	if participants < 1 {
		return nil, fault.Validation(op, "experiment %q: participant count must be at least 1, got %d", name, participants)
	}
	if err := checkModels(op, name, "training", participants, training); err != nil {
		return nil, err
	}
	if err := checkModels(op, name, "experiment", participants, trials); err != nil {
		return nil, err
	}

	o := options{}
	for _, opt := range opts {
		opt(&o)
	}

	original := append([]*model.Model(nil), trials...)
	shuffled := append([]*model.Model(nil), trials...)
	swap := func(i, j int) { shuffled[i], shuffled[j] = shuffled[j], shuffled[i] }
	if o.rng != nil {
		o.rng.Shuffle(len(shuffled), swap)
	} else {
		rand.Shuffle(len(shuffled), swap)
	}

	return &Experiment{
		name:         name,
		participants: participants,
		training:     append([]*model.Model(nil), training...),
		trials:       shuffled,
		original:     original,
		phase:        PhaseReady,
		pos:          -1,
	}, nil
}

func checkModels(op, name, list string, participants int, models []*model.Model) error {
	for i, md := range models {
		if md == nil {
			return fault.Validation(op, "experiment %q: %s model %d is missing", name, list, i)
		}
		if md.Participants() != participants {
			return fault.Validation(op, "experiment %q: %s model %q defines %d participant slots, expected %d",
				name, list, md.Name(), md.Participants(), participants)
		}
	}
	return nil
}

// Name returns the experiment name.
func (e *Experiment) Name() string { return e.name }

// Participants returns the configured participant count.
func (e *Experiment) Participants() int { return e.participants }

// TrainingModels returns the training models in order.
func (e *Experiment) TrainingModels() []*model.Model {
	return append([]*model.Model(nil), e.training...)
}

// ExperimentModels returns the experiment models in their shuffled order.
func (e *Experiment) ExperimentModels() []*model.Model {
	return append([]*model.Model(nil), e.trials...)
}

// Advance moves to the next model and returns it. The result is nil once
// the experiment is complete.
func (e *Experiment) Advance() *model.Model {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.advanceLocked()
	return e.active
}

func (e *Experiment) advanceLocked() {
	switch e.phase {
	case PhaseReady:
		if len(e.training) > 0 {
			e.phase = PhaseTraining
			e.pos = 0
			e.active = e.training[0]
			return
		}
		e.phase = PhaseExperiment
		e.pos = -1
		e.active = nil
		e.advanceLocked()
	case PhaseTraining:
		e.pos = (e.pos + 1) % len(e.training)
		e.active = e.training[e.pos]
	case PhaseExperiment:
		if e.active == nil {
			e.pos = 0
		} else {
			e.pos++
		}
		if e.pos >= len(e.trials) {
			e.phase = PhaseComplete
			e.pos = -1
			e.active = nil
			return
		}
		e.active = e.trials[e.pos]
	case PhaseComplete:
	}
}

// EndTraining leaves the training phase. The active model is cleared; the
// next Advance selects the first experiment model.
func (e *Experiment) EndTraining() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.phase != PhaseTraining {
		return fmt.Errorf("end training in %s phase: %w", e.phase, ErrNotTraining)
	}
	e.phase = PhaseExperiment
	e.pos = -1
	e.active = nil
	return nil
}

// Reset returns to the ready phase without reshuffling.
func (e *Experiment) Reset() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.phase = PhaseReady
	e.pos = -1
	e.active = nil
}

// Phase returns the current phase.
func (e *Experiment) Phase() Phase {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.phase
}

// ActiveModel returns the active model or nil.
func (e *Experiment) ActiveModel() *model.Model {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.active
}

// IsReady reports whether the experiment has not been started.
func (e *Experiment) IsReady() bool { return e.Phase() == PhaseReady }

// IsComplete reports whether every experiment model has been visited.
func (e *Experiment) IsComplete() bool { return e.Phase() == PhaseComplete }

// IsTraining reports whether the active model is one of the training models.
func (e *Experiment) IsTraining() bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.active == nil {
		return false
	}
	for _, md := range e.training {
		if md == e.active {
			return true
		}
	}
	return false
}

// Definition returns the persisted form, with experiment models in the
// order they were supplied rather than the shuffled order.
func (e *Experiment) Definition() *Definition {
	def := &Definition{
		Name:         e.name,
		Participants: e.participants,
		Training:     make([]model.Definition, 0, len(e.training)),
		Experiment:   make([]model.Definition, 0, len(e.original)),
	}
	for _, md := range e.training {
		def.Training = append(def.Training, md.Definition())
	}
	for _, md := range e.original {
		def.Experiment = append(def.Experiment, md.Definition())
	}
	return def
}

func (e *Experiment) String() string {
	return fmt.Sprintf("%s (%d participants, %d training, %d experiment models)",
		e.name, e.participants, len(e.training), len(e.trials))
}
