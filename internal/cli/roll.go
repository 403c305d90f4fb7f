package cli

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/forge/internal/dice"
	"github.com/roach88/forge/internal/formula"
)

// RollOptions holds flags for the roll command.
type RollOptions struct {
	*RootOptions
	Seed  uint64
	Label string
	Vars  []string // key=value pairs
}

// RollResult is a dice result with the label and seed it was rolled with.
type RollResult struct {
	dice.Result
	Label string  `json:"label,omitempty"`
	Seed  *uint64 `json:"seed,omitempty"`
}

// NewRollCommand creates the roll command.
func NewRollCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RollOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "roll <formula>",
		Short: "Roll dice",
		Long: `Roll a dice formula such as 1d20+5, 4d6kh3 or 2d20kl1-{penalty}.

{name} references are replaced by --var values, truncated to integers,
before rolling. With --seed (or FORGE_DICE_SEED) the roll is reproducible.

Examples:
  forge roll 1d20+5
  forge roll "1d20+{str_mod}" --var str_mod=3 --label Attack
  forge roll 4d6kh3 --seed 42 --format json`,
		Args:          usageArgs(cobra.ExactArgs(1)),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRoll(opts, args[0], cmd)
		},
	}

	cmd.Flags().Uint64Var(&opts.Seed, "seed", 0, "seed for a reproducible roll (default FORGE_DICE_SEED, else random)")
	cmd.Flags().StringVar(&opts.Label, "label", "", "label printed with the result")
	cmd.Flags().StringArrayVar(&opts.Vars, "var", nil, "variable as key=value (repeatable)")

	return cmd
}

func runRoll(opts *RollOptions, src string, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd.OutOrStdout(), cmd.ErrOrStderr())

	vars, err := parseVars(opts.Vars)
	if err != nil {
		return formatter.Fail(ExitCommandError, ErrCodeInvalidArg, err.Error())
	}

	logger := opts.logger()
	rollerOpts := []dice.Option{dice.WithLogger(logger)}

	var seed *uint64
	switch {
	case cmd.Flags().Changed("seed"):
		seed = &opts.Seed
	case opts.Config != nil && opts.Config.DiceSeed != 0:
		seed = &opts.Config.DiceSeed
	}
	if seed != nil {
		formatter.VerboseLog("Rolling with seed %d", *seed)
		rollerOpts = append(rollerOpts, dice.WithSource(dice.NewSource(*seed)))
	}

	roller := dice.New(rollerOpts...)
	res, err := roller.RollWithContext(src, formula.Vars(vars))
	if err != nil {
		var syntaxErr *dice.SyntaxError
		if errors.As(err, &syntaxErr) {
			return formatter.Fail(ExitFailure, ErrCodeDice, syntaxErr.Error())
		}
		return formatter.Fail(ExitFailure, ErrCodeDice, err.Error())
	}

	result := RollResult{Result: res, Label: opts.Label, Seed: seed}
	if formatter.IsJSON() {
		return formatter.Success(result)
	}
	writeRollText(formatter, result)
	return nil
}

// writeRollText prints the total on the first line and the breakdown
// beneath it.
func writeRollText(formatter *OutputFormatter, r RollResult) {
	w := formatter.Writer

	var head strings.Builder
	if r.Label != "" {
		head.WriteString(r.Label + ": ")
	}
	fmt.Fprintf(&head, "%s = %d", r.Formula, r.Total)
	if r.Critical {
		head.WriteString(" (critical)")
	}
	if r.Fumble {
		head.WriteString(" (fumble)")
	}
	fmt.Fprintln(w, head.String())

	for _, line := range r.Breakdown {
		fmt.Fprintf(w, "  %s\n", line)
	}
}
