package commands

import (
	"errors"
	"fmt"

	"github.com/dyluth/collab/internal/experiment"
	"github.com/dyluth/collab/internal/model"
	"github.com/dyluth/collab/internal/printer"
	"github.com/spf13/cobra"
)

var validateCmd = &cobra.Command{
	Use:   "validate <experiment-file>",
	Short: "Check an experiment definition",
	Long: `Load and build an experiment definition without joining a session.

Every model is checked for a square coupling matrix, a target of matching
length, and input/output partitions covering each index exactly once.
Solution vectors are printed for each model; singular models are reported
as warnings since they cannot be solved exactly.`,
	Args: cobra.ExactArgs(1),
	RunE: runValidate,
}

func init() {
	rootCmd.AddCommand(validateCmd)
}

func runValidate(cmd *cobra.Command, args []string) error {
	path := args[0]
	def, err := experiment.Load(path)
	if err != nil {
		return printer.Error("cannot read experiment", err.Error(), nil)
	}
	exp, err := def.Build()
	if err != nil {
		return printer.ErrorWithContext(
			"experiment invalid",
			err.Error(),
			map[string]string{"File": path},
			nil,
		)
	}

	printer.Success("%s is valid\n", path)
	printer.Field("name", exp.Name())
	printer.Field("participants", exp.Participants())

	singular := 0
	singular += printModels("training", exp.TrainingModels())
	singular += printModels("experiment", exp.ExperimentModels())
	if singular > 0 {
		printer.Warning("%d singular model(s) have no exact solution\n", singular)
	}
	return nil
}

// printModels prints one line per model and returns how many are singular.
func printModels(phase string, models []*model.Model) int {
	printer.Step("%s models: %d\n", phase, len(models))
	singular := 0
	for _, md := range models {
		x, err := md.SolutionVector()
		switch {
		case errors.Is(err, model.ErrSingularModel):
			singular++
			printer.Field(md.Name(), "singular")
		case err != nil:
			printer.Field(md.Name(), err)
		default:
			printer.Field(md.Name(), fmt.Sprintf("%dx%d solution %s", md.Outputs(), md.Inputs(), model.FormatVector(x, 3)))
		}
	}
	return singular
}
