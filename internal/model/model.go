// Package model implements the linear system jointly controlled by the
// participants of an experiment.
//
// A Model couples n input variables to m output variables through a
// coupling matrix C so that the output for an input vector x is C·x. Inputs
// and outputs are partitioned across participants: each participant
// controls a disjoint subset of the inputs and observes a disjoint subset of
// the outputs. A Model is immutable once constructed.
package model

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"unicode/utf8"

	"github.com/dyluth/collab/internal/fault"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// Tolerance is the per-output absolute error below which a model counts as solved.
const Tolerance = 0.05

var (
	// ErrDimensionMismatch is returned when a vector does not match the model dimensions.
	ErrDimensionMismatch = errors.New("dimension mismatch")

	// ErrSingularModel is returned when the coupling matrix cannot be inverted.
	ErrSingularModel = errors.New("singular coupling matrix")
)

// Definition is the persisted form of a model.
type Definition struct {
	Name          string      `json:"name" yaml:"name"`
	Coupling      [][]float64 `json:"coupling_matrix" yaml:"coupling_matrix"`
	Target        []float64   `json:"target_vector" yaml:"target_vector"`
	InputIndices  [][]int     `json:"input_indices" yaml:"input_indices"`
	OutputIndices [][]int     `json:"output_indices" yaml:"output_indices"`
	InputLabels   []string    `json:"input_labels" yaml:"input_labels"`
	OutputLabels  []string    `json:"output_labels" yaml:"output_labels"`
}

// Model is a validated, immutable linear system.
type Model struct {
	name          string
	coupling      *mat.Dense
	target        []float64
	inputIndices  [][]int
	outputIndices [][]int
	inputLabels   []string
	outputLabels  []string

	solveOnce sync.Once
	solution  []float64
	solveErr  error
}

// New validates def and builds a Model from a deep copy of it.
// Any violation is reported as a fault.KindValidation error; there is no
// partial construction.
func New(def Definition) (*Model, error) {
	const op = "model.New"

	if !utf8.ValidString(def.Name) {
		return nil, fault.Validation(op, "model name %q is not valid UTF-8", def.Name)
	}

	m := len(def.Coupling)
	n := 0
	if m > 0 {
		n = len(def.Coupling[0])
	}
	if n < 1 {
		return nil, fault.Validation(op, "model %q: coupling matrix must have at least 1 input variable", def.Name)
	}
	if m < 1 {
		return nil, fault.Validation(op, "model %q: coupling matrix must have at least 1 output variable", def.Name)
	}
	for i, row := range def.Coupling {
		if len(row) != n {
			return nil, fault.Validation(op, "model %q: coupling row %d has %d columns, expected %d", def.Name, i, len(row), n)
		}
	}
	if m != n {
		return nil, fault.Validation(op, "model %q: coupling matrix must be square for a unique solution (got %dx%d)", def.Name, m, n)
	}
	if len(def.Target) != n {
		return nil, fault.Validation(op, "model %q: target vector has %d values, expected %d (one per input)", def.Name, len(def.Target), n)
	}
	if len(def.InputIndices) != len(def.OutputIndices) {
		return nil, fault.Validation(op, "model %q: input indices define %d participants but output indices define %d",
			def.Name, len(def.InputIndices), len(def.OutputIndices))
	}
	if err := validatePartition(def.InputIndices, n); err != nil {
		return nil, fault.Validation(op, "model %q: input %s", def.Name, err)
	}
	if err := validatePartition(def.OutputIndices, m); err != nil {
		return nil, fault.Validation(op, "model %q: output %s", def.Name, err)
	}
	if len(def.InputLabels) != n {
		return nil, fault.Validation(op, "model %q: %d input labels for %d inputs", def.Name, len(def.InputLabels), n)
	}
	if len(def.OutputLabels) != m {
		return nil, fault.Validation(op, "model %q: %d output labels for %d outputs", def.Name, len(def.OutputLabels), m)
	}
	if err := validateLabels("input", def.InputLabels); err != nil {
		return nil, fault.Validation(op, "model %q: %s", def.Name, err)
	}
	if err := validateLabels("output", def.OutputLabels); err != nil {
		return nil, fault.Validation(op, "model %q: %s", def.Name, err)
	}

	data := make([]float64, 0, m*n)
	for _, row := range def.Coupling {
		data = append(data, row...)
	}

	return &Model{
		name:          def.Name,
		coupling:      mat.NewDense(m, n, data),
		target:        copyFloats(def.Target),
		inputIndices:  copyPartition(def.InputIndices),
		outputIndices: copyPartition(def.OutputIndices),
		inputLabels:   copyStrings(def.InputLabels),
		outputLabels:  copyStrings(def.OutputLabels),
	}, nil
}

// validateLabels rejects labels the string codec cannot carry unchanged.
func validateLabels(kind string, labels []string) error {
	for i, l := range labels {
		if !utf8.ValidString(l) {
			return fmt.Errorf("%s label %d (%q) is not valid UTF-8", kind, i, l)
		}
	}
	return nil
}

// validatePartition checks that partition assigns every index in [0, size)
// to exactly one participant.
func validatePartition(partition [][]int, size int) error {
	assigned := make([]bool, size)
	for p, indices := range partition {
		for _, idx := range indices {
			if idx < 0 || idx >= size {
				return fmt.Errorf("index %d of participant %d is out of range [0, %d)", idx, p, size)
			}
			if assigned[idx] {
				return fmt.Errorf("index %d can only be assigned to one participant", idx)
			}
			assigned[idx] = true
		}
	}
	for idx, ok := range assigned {
		if !ok {
			return fmt.Errorf("index %d must be assigned to a participant", idx)
		}
	}
	return nil
}

// Name returns the model name.
func (md *Model) Name() string { return md.name }

// Inputs returns the number of input variables n.
func (md *Model) Inputs() int {
	_, c := md.coupling.Dims()
	return c
}

// Outputs returns the number of output variables m.
func (md *Model) Outputs() int {
	r, _ := md.coupling.Dims()
	return r
}

// Participants returns the number of participant slots in the partitions.
func (md *Model) Participants() int { return len(md.inputIndices) }

// InitialInput returns the starting input vector (all zeros).
func (md *Model) InitialInput() []float64 { return make([]float64, md.Inputs()) }

// Target returns a copy of the target output vector.
func (md *Model) Target() []float64 { return copyFloats(md.target) }

// InputIndices returns a copy of the input partition.
func (md *Model) InputIndices() [][]int { return copyPartition(md.inputIndices) }

// OutputIndices returns a copy of the output partition.
func (md *Model) OutputIndices() [][]int { return copyPartition(md.outputIndices) }

// InputLabels returns a copy of the input labels.
func (md *Model) InputLabels() []string { return copyStrings(md.inputLabels) }

// OutputLabels returns a copy of the output labels.
func (md *Model) OutputLabels() []string { return copyStrings(md.outputLabels) }

// Coupling returns a copy of the coupling matrix as rows.
func (md *Model) Coupling() [][]float64 {
	r, _ := md.coupling.Dims()
	rows := make([][]float64, r)
	for i := range rows {
		rows[i] = mat.Row(nil, i, md.coupling)
	}
	return rows
}

// Definition returns the persisted form of the model.
func (md *Model) Definition() Definition {
	return Definition{
		Name:          md.name,
		Coupling:      md.Coupling(),
		Target:        md.Target(),
		InputIndices:  md.InputIndices(),
		OutputIndices: md.OutputIndices(),
		InputLabels:   md.InputLabels(),
		OutputLabels:  md.OutputLabels(),
	}
}

// OutputFor returns C·input.
func (md *Model) OutputFor(input []float64) ([]float64, error) {
	if len(input) != md.Inputs() {
		return nil, &fault.Error{
			Kind:   fault.KindValidation,
			Op:     "model.OutputFor",
			Detail: fmt.Sprintf("model %q: input has %d values, expected %d", md.name, len(input), md.Inputs()),
			Err:    ErrDimensionMismatch,
		}
	}
	var out mat.VecDense
	out.MulVec(md.coupling, mat.NewVecDense(len(input), copyFloats(input)))
	return vecToSlice(&out), nil
}

// SolutionVector returns the input vector x with C·x = target.
// The result is computed once by LU decomposition and cached.
func (md *Model) SolutionVector() ([]float64, error) {
	md.solveOnce.Do(func() {
		var lu mat.LU
		lu.Factorize(md.coupling)
		var x mat.VecDense
		if err := lu.SolveVecTo(&x, false, mat.NewVecDense(len(md.target), copyFloats(md.target))); err != nil {
			md.solveErr = fault.Singular("model.SolutionVector",
				fmt.Errorf("model %q: %w (%v)", md.name, ErrSingularModel, err))
			return
		}
		md.solution = vecToSlice(&x)
	})
	if md.solveErr != nil {
		return nil, md.solveErr
	}
	return copyFloats(md.solution), nil
}

// InputError returns the Euclidean distance between input and the solution vector.
func (md *Model) InputError(input []float64) (float64, error) {
	if len(input) != md.Inputs() {
		return 0, &fault.Error{
			Kind:   fault.KindValidation,
			Op:     "model.InputError",
			Detail: fmt.Sprintf("model %q: input has %d values, expected %d", md.name, len(input), md.Inputs()),
			Err:    ErrDimensionMismatch,
		}
	}
	solution, err := md.SolutionVector()
	if err != nil {
		return 0, err
	}
	return floats.Distance(solution, input, 2), nil
}

// OutputError returns the Euclidean distance between C·input and the target.
func (md *Model) OutputError(input []float64) (float64, error) {
	out, err := md.OutputFor(input)
	if err != nil {
		return 0, err
	}
	return floats.Distance(out, md.target, 2), nil
}

// IsSolvedBy reports whether input drives every output within Tolerance of the target.
func (md *Model) IsSolvedBy(input []float64) bool {
	out, err := md.OutputFor(input)
	if err != nil {
		return false
	}
	return IsSolved(out, md.target)
}

func (md *Model) String() string {
	return fmt.Sprintf("%s (%d inputs, %d outputs, %d participants, target: %s)",
		md.name, md.Inputs(), md.Outputs(), md.Participants(), FormatVector(md.target, 5))
}

// IsSolved reports whether output is within Tolerance of target in every
// component. It is false for empty vectors and for mismatched lengths.
func IsSolved(output, target []float64) bool {
	if len(target) == 0 || len(output) != len(target) {
		return false
	}
	for i := range target {
		d := output[i] - target[i]
		if d < 0 {
			d = -d
		}
		if !(d < Tolerance) {
			return false
		}
	}
	return true
}

// FormatVector renders v as {a; b; c} with the given number of decimals.
func FormatVector(v []float64, decimals int) string {
	parts := make([]string, len(v))
	for i, x := range v {
		parts[i] = fmt.Sprintf("%.*f", decimals, x)
	}
	return "{" + strings.Join(parts, "; ") + "}"
}

func vecToSlice(v *mat.VecDense) []float64 {
	out := make([]float64, v.Len())
	for i := range out {
		out[i] = v.AtVec(i)
	}
	return out
}

func copyFloats(v []float64) []float64 {
	if v == nil {
		return nil
	}
	out := make([]float64, len(v))
	copy(out, v)
	return out
}

func copyStrings(v []string) []string {
	if v == nil {
		return nil
	}
	out := make([]string, len(v))
	copy(out, v)
	return out
}

func copyPartition(p [][]int) [][]int {
	if p == nil {
		return nil
	}
	out := make([][]int, len(p))
	for i, row := range p {
		out[i] = make([]int, len(row))
		copy(out[i], row)
	}
	return out
}
