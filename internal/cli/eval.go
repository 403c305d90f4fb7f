package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/forge/internal/formula"
	"github.com/roach88/forge/internal/ir"
)

// EvalOptions holds flags for the eval command.
type EvalOptions struct {
	*RootOptions
	Vars []string // key=value pairs
}

// EvalResult is the outcome of evaluating one formula.
type EvalResult struct {
	Formula      string   `json:"formula"`
	Value        ir.Value `json:"value"`
	Display      string   `json:"display"`
	Dependencies []string `json:"dependencies,omitempty"`
}

// NewEvalCommand creates the eval command.
func NewEvalCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &EvalOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "eval <formula>",
		Short: "Evaluate a formula",
		Long: `Evaluate a formula against variables given with --var.

Variables are referenced as {name} or {path.to.name}. Missing variables
evaluate to 0 and are logged as warnings.

Examples:
  forge eval "floor(({str} - 10) / 2)" --var str=14
  forge eval "if({hp} <= 0, 'down', 'up')" --var hp=-3
  forge eval "{stats.dex} + 2" --var stats.dex=12 --format json`,
		Args:          usageArgs(cobra.ExactArgs(1)),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runEval(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringArrayVar(&opts.Vars, "var", nil, "variable as key=value (repeatable)")

	return cmd
}

func runEval(opts *EvalOptions, src string, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd.OutOrStdout(), cmd.ErrOrStderr())

	vars, err := parseVars(opts.Vars)
	if err != nil {
		return formatter.Fail(ExitCommandError, ErrCodeInvalidArg, err.Error())
	}

	eval := formula.New(formula.WithLogger(opts.logger()))
	prog, err := eval.Compile(src)
	if err != nil {
		return formatter.Fail(ExitFailure, ErrCodeFormula, err.Error())
	}

	formatter.VerboseLog("Dependencies: %v", prog.Dependencies())
	v := eval.Run(prog, formula.Vars(vars))

	result := EvalResult{
		Formula:      src,
		Value:        v,
		Display:      ir.FormatValue(v),
		Dependencies: prog.Dependencies(),
	}
	if formatter.IsJSON() {
		return formatter.Success(result)
	}
	fmt.Fprintln(formatter.Writer, result.Display)
	return nil
}
