package model

import (
	"errors"
	"testing"

	"github.com/dyluth/collab/internal/fault"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// twoByTwo returns a definition whose solution is {2; 1}.
func twoByTwo() Definition {
	return Definition{
		Name:          "sum-diff",
		Coupling:      [][]float64{{1, 1}, {1, -1}},
		Target:        []float64{3, 1},
		InputIndices:  [][]int{{0}, {1}},
		OutputIndices: [][]int{{1}, {0}},
		InputLabels:   []string{"x", "y"},
		OutputLabels:  []string{"sum", "diff"},
	}
}

func TestNew(t *testing.T) {
	testCases := []struct {
		name    string
		mutate  func(d *Definition)
		wantErr bool
		errMsg  string
	}{
		{
			name:   "valid square model",
			mutate: func(d *Definition) {},
		},
		{
			name:    "no inputs",
			mutate:  func(d *Definition) { d.Coupling = [][]float64{{}, {}} },
			wantErr: true,
			errMsg:  "at least 1 input variable",
		},
		{
			name:    "no outputs",
			mutate:  func(d *Definition) { d.Coupling = nil },
			wantErr: true,
			errMsg:  "at least 1 input variable",
		},
		{
			name:    "ragged coupling rows",
			mutate:  func(d *Definition) { d.Coupling = [][]float64{{1, 1}, {1}} },
			wantErr: true,
			errMsg:  "coupling row 1 has 1 columns, expected 2",
		},
		{
			name: "non-square coupling",
			mutate: func(d *Definition) {
				d.Coupling = [][]float64{{1, 1}, {1, -1}, {0, 1}}
				d.OutputIndices = [][]int{{0, 2}, {1}}
				d.OutputLabels = []string{"a", "b", "c"}
			},
			wantErr: true,
			errMsg:  "must be square",
		},
		{
			name:    "target length mismatch",
			mutate:  func(d *Definition) { d.Target = []float64{1} },
			wantErr: true,
			errMsg:  "target vector has 1 values, expected 2",
		},
		{
			name:    "participant slot mismatch",
			mutate:  func(d *Definition) { d.OutputIndices = [][]int{{0, 1}} },
			wantErr: true,
			errMsg:  "input indices define 2 participants but output indices define 1",
		},
		{
			name:    "input index out of range",
			mutate:  func(d *Definition) { d.InputIndices = [][]int{{0}, {2}} },
			wantErr: true,
			errMsg:  "input index 2 of participant 1 is out of range",
		},
		{
			name:    "negative output index",
			mutate:  func(d *Definition) { d.OutputIndices = [][]int{{-1}, {0, 1}} },
			wantErr: true,
			errMsg:  "output index -1 of participant 0 is out of range",
		},
		{
			name:    "input index assigned twice",
			mutate:  func(d *Definition) { d.InputIndices = [][]int{{0, 1}, {1}} },
			wantErr: true,
			errMsg:  "input index 1 can only be assigned to one participant",
		},
		{
			name:    "output index omitted",
			mutate:  func(d *Definition) { d.OutputIndices = [][]int{{1}, {}} },
			wantErr: true,
			errMsg:  "output index 0 must be assigned to a participant",
		},
		{
			name:    "input label count",
			mutate:  func(d *Definition) { d.InputLabels = []string{"x"} },
			wantErr: true,
			errMsg:  "1 input labels for 2 inputs",
		},
		{
			name:    "input label not UTF-8",
			mutate:  func(d *Definition) { d.InputLabels = []string{"x", "y\xff"} },
			wantErr: true,
			errMsg:  "input label 1",
		},
		{
			name:    "output label not UTF-8",
			mutate:  func(d *Definition) { d.OutputLabels = []string{"\xc3", "diff"} },
			wantErr: true,
			errMsg:  "output label 0",
		},
		{
			name:    "output label count",
			mutate:  func(d *Definition) { d.OutputLabels = nil },
			wantErr: true,
			errMsg:  "0 output labels for 2 outputs",
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			def := twoByTwo()
			tc.mutate(&def)

			md, err := New(def)
			if tc.wantErr {
				require.Error(t, err)
				assert.Nil(t, md)
				assert.True(t, fault.Is(err, fault.KindValidation))
				assert.Contains(t, err.Error(), tc.errMsg)
				assert.Contains(t, err.Error(), `"sum-diff"`)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, 2, md.Inputs())
			assert.Equal(t, 2, md.Outputs())
			assert.Equal(t, 2, md.Participants())
		})
	}
}

func TestNewRejectsInvalidName(t *testing.T) {
	def := twoByTwo()
	def.Name = "sum\xffdiff"
	md, err := New(def)
	require.Error(t, err)
	assert.Nil(t, md)
	assert.True(t, fault.Is(err, fault.KindValidation))
	assert.Contains(t, err.Error(), "not valid UTF-8")
}

func TestNewCopiesDefinition(t *testing.T) {
	def := twoByTwo()
	md, err := New(def)
	require.NoError(t, err)

	def.Coupling[0][0] = 99
	def.Target[0] = 99
	def.InputIndices[0][0] = 1
	def.InputLabels[0] = "changed"

	assert.Equal(t, twoByTwo(), md.Definition())

	target := md.Target()
	target[0] = 42
	assert.Equal(t, []float64{3, 1}, md.Target())
}

func TestOutputFor(t *testing.T) {
	md, err := New(twoByTwo())
	require.NoError(t, err)

	out, err := md.OutputFor([]float64{2, 1})
	require.NoError(t, err)
	assert.Equal(t, []float64{3, 1}, out)

	out, err = md.OutputFor(md.InitialInput())
	require.NoError(t, err)
	assert.Equal(t, []float64{0, 0}, out)

	_, err = md.OutputFor([]float64{1, 2, 3})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrDimensionMismatch))
	assert.Contains(t, err.Error(), "input has 3 values, expected 2")
}

func TestSolutionVector(t *testing.T) {
	t.Run("output of solution reaches target", func(t *testing.T) {
		defs := []Definition{
			twoByTwo(),
			{
				Name:          "three",
				Coupling:      [][]float64{{2, 0.5, 0}, {0.25, 1, -1}, {0, 0.3, 1.5}},
				Target:        []float64{1, -2, 0.75},
				InputIndices:  [][]int{{0, 2}, {1}},
				OutputIndices: [][]int{{2}, {0, 1}},
				InputLabels:   []string{"a", "b", "c"},
				OutputLabels:  []string{"p", "q", "r"},
			},
		}
		for _, def := range defs {
			md, err := New(def)
			require.NoError(t, err)

			x, err := md.SolutionVector()
			require.NoError(t, err)
			out, err := md.OutputFor(x)
			require.NoError(t, err)
			assert.InDeltaSlice(t, def.Target, out, 1e-9, def.Name)
			assert.True(t, md.IsSolvedBy(x))
		}
	})

	t.Run("singular coupling", func(t *testing.T) {
		def := twoByTwo()
		def.Coupling = [][]float64{{1, 2}, {2, 4}}
		md, err := New(def)
		require.NoError(t, err)

		_, err = md.SolutionVector()
		require.Error(t, err)
		assert.True(t, errors.Is(err, ErrSingularModel))
		assert.True(t, fault.Is(err, fault.KindSingular))

		// Output and convergence stay usable without a solution.
		out, err := md.OutputFor([]float64{1, 1})
		require.NoError(t, err)
		assert.Equal(t, []float64{3, 6}, out)
		assert.False(t, md.IsSolvedBy([]float64{1, 1}))
	})
}

func TestErrors(t *testing.T) {
	md, err := New(twoByTwo())
	require.NoError(t, err)

	inErr, err := md.InputError([]float64{2, 4})
	require.NoError(t, err)
	assert.InDelta(t, 3.0, inErr, 1e-9)

	outErr, err := md.OutputError([]float64{0, 0})
	require.NoError(t, err)
	assert.InDelta(t, 3.1622776601683795, outErr, 1e-9)

	_, err = md.InputError([]float64{1})
	assert.ErrorIs(t, err, ErrDimensionMismatch)
	_, err = md.OutputError(nil)
	assert.ErrorIs(t, err, ErrDimensionMismatch)
}

func TestIsSolved(t *testing.T) {
	testCases := []struct {
		name   string
		output []float64
		target []float64
		want   bool
	}{
		{"exact", []float64{1, 2}, []float64{1, 2}, true},
		{"within tolerance", []float64{1.049, 1.951}, []float64{1, 2}, true},
		{"at tolerance", []float64{1.05, 2}, []float64{1, 2}, false},
		{"one output off", []float64{1, 2.2}, []float64{1, 2}, false},
		{"empty", []float64{}, []float64{}, false},
		{"length mismatch", []float64{1}, []float64{1, 2}, false},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, IsSolved(tc.output, tc.target))
		})
	}
}

func TestFormatVector(t *testing.T) {
	assert.Equal(t, "{1.50; -2.00}", FormatVector([]float64{1.5, -2}, 2))
	assert.Equal(t, "{}", FormatVector(nil, 2))
}
