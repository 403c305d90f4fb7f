package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/roach88/forge/internal/ir"
)

// CompileOptions holds flags for the compile command.
type CompileOptions struct {
	*RootOptions
	Output string // output file path
}

// CompilationResult is the summary printed after a successful compile.
type CompilationResult struct {
	Schema      string `json:"schema"`
	EntityTypes int    `json:"entityTypes"`
	Fields      int    `json:"fields"`
	Rules       int    `json:"rules"`
	Output      string `json:"output,omitempty"`
}

// NewCompileCommand creates the compile command.
func NewCompileCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &CompileOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "compile <schema>",
		Short: "Compile a schema to JSON",
		Long: `Compile a CUE, YAML or JSON schema, validate it, and write the
compiled schema as JSON. The output can be loaded back as a .json schema.

Without --output the compiled schema is written to stdout.`,
		Args:          usageArgs(cobra.ExactArgs(1)),
		SilenceUsage:  true, // Don't print usage on errors - we handle our own error output
		SilenceErrors: true, // Don't print errors - we handle our own error output
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCompile(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVarP(&opts.Output, "output", "o", "", "output file path")

	return cmd
}

func runCompile(opts *CompileOptions, path string, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd.OutOrStdout(), cmd.ErrOrStderr())

	loaded, problems, err := loadAndCheck(path)
	if err != nil {
		var loadErr *LoadError
		if errors.As(err, &loadErr) {
			return formatter.Fail(ExitCommandError, loadErr.Code, loadErr.Message)
		}
		return formatter.Fail(ExitCommandError, ErrCodeGeneric, err.Error())
	}
	if len(problems) > 0 {
		result := ValidationResult{Schema: path, Errors: problems}
		if loaded != nil {
			result.EntityTypes, result.Rules = countSchema(loaded.Schema)
		}
		return outputValidationErrors(formatter, result)
	}

	for _, et := range loaded.Schema.EntityTypes {
		formatter.VerboseLog("Compiled entity type: %s (%d fields, %d rules)", et.ID, len(et.Fields), len(et.Rules))
	}

	data, err := marshalSchema(loaded.Schema)
	if err != nil {
		return formatter.Fail(ExitCommandError, ErrCodeGeneric, fmt.Sprintf("marshaling schema: %v", err))
	}

	if opts.Output == "" {
		// The schema itself is the output; no envelope even for --format json.
		_, err := cmd.OutOrStdout().Write(data)
		return err
	}

	if err := os.WriteFile(opts.Output, data, 0644); err != nil {
		return formatter.Fail(ExitCommandError, ErrCodeWriteFailed, fmt.Sprintf("writing output file: %v", err))
	}

	result := CompilationResult{Schema: path, Output: opts.Output}
	result.EntityTypes, result.Rules = countSchema(loaded.Schema)
	for _, et := range loaded.Schema.EntityTypes {
		result.Fields += len(et.Fields)
	}
	return outputCompileSuccess(formatter, result)
}

// marshalSchema renders a schema as indented JSON. Canonical JSON without
// indentation is used only for hashing.
func marshalSchema(schema *ir.Schema) ([]byte, error) {
	data, err := json.MarshalIndent(schema, "", "  ")
	if err != nil {
		return nil, err
	}
	return append(data, '\n'), nil
}

// outputCompileSuccess outputs successful compilation results.
func outputCompileSuccess(formatter *OutputFormatter, result CompilationResult) error {
	if formatter.IsJSON() {
		return formatter.Success(result)
	}

	fmt.Fprintf(formatter.Writer, "✓ Compiled %d entity type(s), %d field(s), %d rule(s)\n",
		result.EntityTypes, result.Fields, result.Rules)
	fmt.Fprintf(formatter.Writer, "Wrote compiled schema to %s\n", result.Output)
	return nil
}
