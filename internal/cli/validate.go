package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/forge/internal/compiler"
	"github.com/roach88/forge/internal/ir"
)

// Problem is one reason a schema was rejected.
type Problem struct {
	Code    string `json:"code"`
	Field   string `json:"field,omitempty"`
	Message string `json:"message"`
	Line    int    `json:"line,omitempty"`
}

// ValidationResult holds validation results.
type ValidationResult struct {
	Valid       bool               `json:"valid"`
	Schema      string             `json:"schema"`
	EntityTypes int                `json:"entityTypes"`
	Rules       int                `json:"rules"`
	Errors      []Problem          `json:"errors,omitempty"`
	Warnings    []compiler.Warning `json:"warnings,omitempty"`
}

// NewValidateCommand creates the validate command.
func NewValidateCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate <schema>",
		Short: "Validate a schema",
		Long: `Compile a schema and check it for structural errors.

The schema may be a .cue, .yaml, .yml or .json file, or a directory holding
one CUE package. Validation rejects malformed formulas and dice notation,
formula cycles between derived fields, and rules that reference unknown
fields. Possible rule cascade cycles are reported as warnings.

Exit codes:
  0 - Schema valid
  1 - Schema invalid
  2 - Command error (path not found, no files)`,
		Args:          usageArgs(cobra.ExactArgs(1)),
		SilenceUsage:  true, // Don't print usage on errors
		SilenceErrors: true, // Don't print errors - we handle our own error output
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(rootOpts, args[0], cmd)
		},
	}

	return cmd
}

func runValidate(opts *RootOptions, path string, cmd *cobra.Command) error {
	formatter := newFormatter(opts, cmd.OutOrStdout(), cmd.ErrOrStderr())

	loaded, problems, err := loadAndCheck(path)
	if err != nil {
		var loadErr *LoadError
		if errors.As(err, &loadErr) {
			return formatter.Fail(ExitCommandError, loadErr.Code, loadErr.Message)
		}
		return formatter.Fail(ExitCommandError, ErrCodeGeneric, err.Error())
	}

	result := ValidationResult{Schema: path, Errors: problems}
	if loaded != nil {
		formatter.VerboseLog("Compiled %d file(s) from %s", len(loaded.Files), path)
		result.EntityTypes, result.Rules = countSchema(loaded.Schema)
	}
	if len(problems) > 0 {
		return outputValidationErrors(formatter, result)
	}

	result.Valid = true
	result.Warnings = compiler.Analyze(loaded.Schema)
	return outputValidateSuccess(formatter, result)
}

// loadAndCheck compiles and validates a schema. Problems are returned for a
// schema that was found but is invalid; err is set only when the schema
// could not be read at all.
func loadAndCheck(path string) (*LoadResult, []Problem, error) {
	loaded, err := LoadSchema(path)
	if err != nil {
		var loadErr *LoadError
		if errors.As(err, &loadErr) && loadErr.IsCompileError() {
			return nil, []Problem{{
				Code:    loadErr.Code,
				Field:   "load",
				Message: loadErr.Message,
				Line:    loadErr.Line(),
			}}, nil
		}
		return nil, nil, err
	}

	var problems []Problem
	for _, ve := range compiler.Validate(loaded.Schema) {
		problems = append(problems, Problem{Code: ve.Code, Field: ve.Field, Message: ve.Message})
	}
	return loaded, problems, nil
}

// countSchema returns the number of entity types and rules, global rules
// included.
func countSchema(schema *ir.Schema) (types, rules int) {
	for _, et := range schema.EntityTypes {
		rules += len(et.Rules)
	}
	return len(schema.EntityTypes), rules + len(schema.GlobalRules)
}

// outputValidateSuccess outputs successful validation results.
func outputValidateSuccess(formatter *OutputFormatter, result ValidationResult) error {
	if formatter.IsJSON() {
		return formatter.Success(result)
	}

	fmt.Fprintf(formatter.Writer, "✓ Schema valid: %d entity type(s), %d rule(s)\n", result.EntityTypes, result.Rules)
	for _, w := range result.Warnings {
		fmt.Fprintf(formatter.Writer, "  warning %s\n", w)
	}
	return nil
}

// outputValidationErrors outputs multiple validation errors.
func outputValidationErrors(formatter *OutputFormatter, result ValidationResult) error {
	failure := reportedExitError(ExitFailure, fmt.Sprintf("validation failed with %d error(s)", len(result.Errors)))

	if formatter.IsJSON() {
		first := result.Errors[0]
		if err := formatter.encode(CLIResponse{
			Status: "error",
			Data:   result,
			Error:  &CLIError{Code: first.Code, Message: first.Message},
		}); err != nil {
			return err
		}
		return failure
	}

	// Text format
	fmt.Fprintln(formatter.Writer, "✗ Validation failed")
	fmt.Fprintln(formatter.Writer)

	for _, p := range result.Errors {
		if p.Line > 0 {
			fmt.Fprintf(formatter.Writer, "line %d\n", p.Line)
		}
		if p.Field != "" {
			fmt.Fprintf(formatter.Writer, "  %s: %s: %s\n\n", p.Code, p.Field, p.Message)
		} else {
			fmt.Fprintf(formatter.Writer, "  %s: %s\n\n", p.Code, p.Message)
		}
	}

	// Validation failures = exit code 1
	return failure
}
