package cli

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/roach88/forge/internal/harness"
	"github.com/roach88/forge/internal/store"
)

// RunOptions holds flags for the run command.
type RunOptions struct {
	*RootOptions
	Database  string
	GoldenDir string // default: <scenario dir>/golden
	Update    bool   // regenerate golden files
	Filter    string // scenario filter (glob pattern)

	// RunIDs overrides the run id generator (for testing).
	// If nil, each scenario run gets a UUIDv7.
	RunIDs func() string
}

// ScenarioResult holds the result of a single scenario execution.
type ScenarioResult struct {
	Name   string   `json:"name"`
	Path   string   `json:"path"`
	RunID  string   `json:"runId,omitempty"`
	Pass   bool     `json:"pass"`
	Events int      `json:"events"`
	Golden string   `json:"golden,omitempty"` // "match", "updated" or "" when absent
	Errors []string `json:"errors,omitempty"`
}

// TestResult holds the overall result of a run.
type TestResult struct {
	Scenarios []ScenarioResult `json:"scenarios"`
	Passed    int              `json:"passed"`
	Failed    int              `json:"failed"`
	Total     int              `json:"total"`
}

// NewRunCommand creates the run command.
func NewRunCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RunOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "run <scenario>...",
		Short: "Run scenarios",
		Long: `Run YAML scenarios against their schemas.

Each argument is a scenario file or a directory of scenario files. A
scenario passes when every step behaves as expected, every assertion
holds, and its trace matches the golden file if one exists.

With --db every event is recorded under a fresh run id and each entity's
final state is saved as a snapshot. Browse the recording with 'forge events'.

Exit codes:
  0 - All scenarios passed
  1 - One or more scenarios failed
  2 - Command error (invalid paths, database errors)

Examples:
  forge run ./scenarios
  forge run ./scenarios/bloodied.yaml --db ./forge.db
  forge run ./scenarios --filter "cascade*" --update`,
		Args:          usageArgs(cobra.MinimumNArgs(1)),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runScenarios(opts, args, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "record events and snapshots to this SQLite database")
	cmd.Flags().StringVar(&opts.GoldenDir, "golden", "", "golden file directory (default <scenario dir>/golden)")
	cmd.Flags().BoolVar(&opts.Update, "update", false, "regenerate golden files")
	cmd.Flags().StringVar(&opts.Filter, "filter", "", "filter scenarios by glob pattern")

	return cmd
}

func runScenarios(opts *RunOptions, paths []string, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd.OutOrStdout(), cmd.ErrOrStderr())

	files, err := harness.ResolveScenarios(paths, "")
	if err != nil {
		var notFound *harness.ScenarioNotFoundError
		if errors.As(err, &notFound) {
			return formatter.Fail(ExitCommandError, ErrCodeNotFound, fmt.Sprintf("scenario not found: %s", notFound.Path))
		}
		return formatter.Fail(ExitCommandError, ErrCodeScanError, err.Error())
	}
	files, err = filterScenarios(files, opts.Filter)
	if err != nil {
		return formatter.Fail(ExitCommandError, ErrCodeInvalidArg, err.Error())
	}

	var st *store.Store
	if opts.Database != "" {
		st, err = store.Open(opts.Database)
		if err != nil {
			return formatter.Fail(ExitCommandError, ErrCodeDatabase, fmt.Sprintf("failed to open database: %v", err))
		}
		defer func() {
			if closeErr := st.Close(); closeErr != nil {
				opts.logger().Error("error closing database", "error", closeErr)
			}
		}()
	}

	result := TestResult{
		Scenarios: make([]ScenarioResult, 0, len(files)),
		Total:     len(files),
	}

	if len(files) == 0 {
		if formatter.IsJSON() {
			return outputTestJSON(formatter, result)
		}
		fmt.Fprintln(formatter.Writer, "No scenarios found.")
		return nil
	}

	for _, file := range files {
		sr := runScenario(opts, file, st, formatter)
		result.Scenarios = append(result.Scenarios, sr)
		if sr.Pass {
			result.Passed++
		} else {
			result.Failed++
		}
	}

	if formatter.IsJSON() {
		return outputTestJSON(formatter, result)
	}
	return outputTestText(formatter, result)
}

// filterScenarios keeps files whose base name, without extension, matches
// the glob pattern.
func filterScenarios(files []string, pattern string) ([]string, error) {
	if pattern == "" {
		return files, nil
	}
	var out []string
	for _, f := range files {
		base := filepath.Base(f)
		name := strings.TrimSuffix(base, filepath.Ext(base))
		matched, err := filepath.Match(pattern, name)
		if err != nil {
			return nil, fmt.Errorf("invalid filter pattern: %w", err)
		}
		if matched {
			out = append(out, f)
		}
	}
	return out, nil
}

// runScenario executes a single scenario and returns the result.
func runScenario(opts *RunOptions, file string, st *store.Store, formatter *OutputFormatter) ScenarioResult {
	sr := ScenarioResult{Name: filepath.Base(file), Path: file}

	fail := func(format string, args ...any) ScenarioResult {
		sr.Pass = false
		sr.Errors = append(sr.Errors, fmt.Sprintf(format, args...))
		printScenario(formatter, sr)
		return sr
	}

	scenario, err := harness.LoadScenario(file)
	if err != nil {
		return fail("failed to load scenario: %v", err)
	}
	sr.Name = scenario.Name

	runOpts := []harness.RunOption{}
	if cfg := opts.Config; cfg != nil {
		runOpts = append(runOpts, harness.WithLimits(cfg.MaxDepth, cfg.MaxSteps))
	}
	if opts.Verbose {
		runOpts = append(runOpts, harness.WithLogger(opts.logger()))
	}
	if st != nil {
		sr.RunID = opts.newRunID()
		runOpts = append(runOpts, harness.WithStore(st, sr.RunID))
	}

	formatter.VerboseLog("Running %s (%s)", scenario.Name, file)
	result, err := harness.Run(scenario, runOpts...)
	if err != nil {
		return fail("execution failed: %v", err)
	}
	sr.Events = len(result.Trace)
	sr.Pass = result.Pass
	sr.Errors = append(sr.Errors, result.Errors...)

	trace := harness.FormatTrace(scenario.Name, result.Trace)
	goldenPath := opts.goldenPath(file, scenario.Name)

	if opts.Update {
		if err := writeGolden(goldenPath, trace); err != nil {
			return fail("failed to update golden file: %v", err)
		}
		sr.Golden = "updated"
		printScenario(formatter, sr)
		return sr
	}

	want, err := os.ReadFile(goldenPath)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		// No golden file - assertion-based validation only
	case err != nil:
		return fail("failed to read golden file: %v", err)
	case !bytes.Equal(want, trace):
		return fail("trace does not match golden file %s (run with --update to regenerate)", goldenPath)
	default:
		sr.Golden = "match"
	}

	printScenario(formatter, sr)
	return sr
}

func (o *RunOptions) newRunID() string {
	if o.RunIDs != nil {
		return o.RunIDs()
	}
	return uuid.Must(uuid.NewV7()).String()
}

// goldenPath returns the path to the golden file for a scenario.
func (o *RunOptions) goldenPath(scenarioFile, name string) string {
	dir := o.GoldenDir
	if dir == "" {
		dir = filepath.Join(filepath.Dir(scenarioFile), "golden")
	}
	return filepath.Join(dir, name+".golden")
}

// writeGolden writes the current trace as the golden file.
func writeGolden(path string, trace []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create golden directory: %w", err)
	}
	if err := os.WriteFile(path, trace, 0644); err != nil {
		return fmt.Errorf("failed to write golden file: %w", err)
	}
	return nil
}

// printScenario prints one scenario line in text mode.
func printScenario(formatter *OutputFormatter, sr ScenarioResult) {
	if formatter.IsJSON() {
		return
	}
	w := formatter.Writer
	if !sr.Pass {
		fmt.Fprintf(w, "✗ %s\n", sr.Name)
		for _, e := range sr.Errors {
			fmt.Fprintf(w, "  %s\n", e)
		}
		return
	}
	suffix := ""
	switch sr.Golden {
	case "updated":
		suffix = " (golden updated)"
	case "match":
		suffix = " (golden match)"
	}
	fmt.Fprintf(w, "✓ %s%s\n", sr.Name, suffix)
	if sr.RunID != "" {
		fmt.Fprintf(w, "  recorded %d event(s) as run %s\n", sr.Events, sr.RunID)
	}
}

// outputTestJSON outputs the run result as JSON.
func outputTestJSON(formatter *OutputFormatter, result TestResult) error {
	response := CLIResponse{Status: "ok", Data: result}
	if result.Failed > 0 {
		response.Status = "error"
		response.Error = &CLIError{
			Code:    ErrCodeScenarioFail,
			Message: fmt.Sprintf("%d scenario(s) failed", result.Failed),
		}
	}

	if err := formatter.encode(response); err != nil {
		return err
	}

	if result.Failed > 0 {
		// Scenario failures = exit code 1
		return reportedExitError(ExitFailure, fmt.Sprintf("%d scenario(s) failed", result.Failed))
	}
	return nil
}

// outputTestText outputs the run summary as text.
func outputTestText(formatter *OutputFormatter, result TestResult) error {
	w := formatter.Writer

	fmt.Fprintln(w)
	fmt.Fprintf(w, "Summary: %d passed, %d failed, %d total\n", result.Passed, result.Failed, result.Total)

	if result.Failed > 0 {
		// Scenario failures = exit code 1
		return reportedExitError(ExitFailure, fmt.Sprintf("%d scenario(s) failed", result.Failed))
	}

	fmt.Fprintln(w, "✓ All scenarios passed")
	return nil
}

// runContext returns the command context or a background context.
func runContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}
