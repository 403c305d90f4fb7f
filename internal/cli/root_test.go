package cli

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Paths into the harness fixtures, shared by the command tests.
var (
	characterSchema = filepath.Join("..", "harness", "testdata", "schemas", "character.yaml")
	duelSchema      = filepath.Join("..", "harness", "testdata", "schemas", "duel.json")
	scenariosDir    = filepath.Join("..", "harness", "testdata", "scenarios")
	goldenDir       = filepath.Join("..", "harness", "testdata", "golden")
)

// clearForgeEnv isolates a test from FORGE_* variables and any .env file in
// the working directory.
func clearForgeEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		"FORGE_LOG_LEVEL", "FORGE_FORMAT", "FORGE_MAX_DEPTH",
		"FORGE_MAX_STEPS", "FORGE_DB_PATH", "FORGE_DICE_SEED",
	} {
		t.Setenv(key, "")
		require.NoError(t, os.Unsetenv(key))
	}
}

// executeRoot runs the full command tree so the configuration hook runs.
func executeRoot(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	stdout, stderr := &bytes.Buffer{}, &bytes.Buffer{}
	cmd := NewRootCommand()
	cmd.SetOut(stdout)
	cmd.SetErr(stderr)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return stdout.String(), stderr.String(), err
}

func TestRootCommand(t *testing.T) {
	cmd := NewRootCommand()
	require.NotNil(t, cmd)
	assert.Equal(t, "forge", cmd.Use)
	assert.Contains(t, cmd.Long, "FORGE_")
}

func TestCommandPresence(t *testing.T) {
	cmd := NewRootCommand()
	commands := []string{"validate", "compile", "eval", "roll", "run", "events"}

	for _, cmdName := range commands {
		t.Run(cmdName, func(t *testing.T) {
			subCmd, _, err := cmd.Find([]string{cmdName})
			require.NoError(t, err, "Command %s should exist", cmdName)
			require.NotNil(t, subCmd)
			assert.Equal(t, cmdName, subCmd.Name())
		})
	}
}

func TestGlobalFlags(t *testing.T) {
	cmd := NewRootCommand()

	verboseFlag := cmd.PersistentFlags().Lookup("verbose")
	require.NotNil(t, verboseFlag)
	assert.Equal(t, "v", verboseFlag.Shorthand)
	assert.Equal(t, "false", verboseFlag.DefValue)

	formatFlag := cmd.PersistentFlags().Lookup("format")
	require.NotNil(t, formatFlag)
	assert.Equal(t, "text", formatFlag.DefValue)

	envFlag := cmd.PersistentFlags().Lookup("env-file")
	require.NotNil(t, envFlag)
	assert.Equal(t, "", envFlag.DefValue)
}

func TestCompileCommandFlags(t *testing.T) {
	cmd := NewRootCommand()
	compileCmd, _, err := cmd.Find([]string{"compile"})
	require.NoError(t, err)

	outputFlag := compileCmd.Flags().Lookup("output")
	require.NotNil(t, outputFlag)
	assert.Equal(t, "o", outputFlag.Shorthand)
}

func TestRunCommandFlags(t *testing.T) {
	cmd := NewRootCommand()
	runCmd, _, err := cmd.Find([]string{"run"})
	require.NoError(t, err)

	for _, name := range []string{"db", "golden", "update", "filter"} {
		assert.NotNil(t, runCmd.Flags().Lookup(name), "run should have --%s", name)
	}
	// Recording is opt-in
	assert.Equal(t, "", runCmd.Flags().Lookup("db").DefValue)
}

func TestEventsCommandFlags(t *testing.T) {
	cmd := NewRootCommand()
	eventsCmd, _, err := cmd.Find([]string{"events"})
	require.NoError(t, err)

	for _, name := range []string{"db", "entity", "run", "name"} {
		assert.NotNil(t, eventsCmd.Flags().Lookup(name), "events should have --%s", name)
	}
}

func TestRollCommandFlags(t *testing.T) {
	cmd := NewRootCommand()
	rollCmd, _, err := cmd.Find([]string{"roll"})
	require.NoError(t, err)

	seedFlag := rollCmd.Flags().Lookup("seed")
	require.NotNil(t, seedFlag)
	assert.Equal(t, "0", seedFlag.DefValue)
	assert.NotNil(t, rollCmd.Flags().Lookup("var"))
	assert.NotNil(t, rollCmd.Flags().Lookup("label"))
}

func TestRoot_FormatFromEnvironment(t *testing.T) {
	clearForgeEnv(t)
	t.Chdir(t.TempDir())
	t.Setenv("FORGE_FORMAT", "json")

	stdout, _, err := executeRoot(t, "eval", "1 + 2")
	require.NoError(t, err)
	assert.Contains(t, stdout, `"status": "ok"`)
}

func TestRoot_FormatFlagOverridesEnvironment(t *testing.T) {
	clearForgeEnv(t)
	t.Chdir(t.TempDir())
	t.Setenv("FORGE_FORMAT", "json")

	stdout, _, err := executeRoot(t, "eval", "1 + 2", "--format", "text")
	require.NoError(t, err)
	assert.Equal(t, "3\n", stdout)
}

func TestRoot_InvalidFormat(t *testing.T) {
	clearForgeEnv(t)
	t.Chdir(t.TempDir())

	_, _, err := executeRoot(t, "eval", "1", "--format", "xml")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, err.Error(), "invalid format")
}

func TestRoot_InvalidEnvironment(t *testing.T) {
	clearForgeEnv(t)
	t.Chdir(t.TempDir())
	t.Setenv("FORGE_MAX_DEPTH", "deep")

	_, _, err := executeRoot(t, "eval", "1")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, err.Error(), "invalid configuration")
}

func TestRoot_EnvFileFlag(t *testing.T) {
	clearForgeEnv(t)
	dir := t.TempDir()
	t.Chdir(dir)
	envFile := filepath.Join(dir, "ci.env")
	require.NoError(t, os.WriteFile(envFile, []byte("FORGE_DICE_SEED=7\n"), 0644))

	first, _, err := executeRoot(t, "roll", "4d6kh3", "--env-file", envFile, "--format", "json")
	require.NoError(t, err)
	second, _, err := executeRoot(t, "roll", "4d6kh3", "--env-file", envFile, "--format", "json")
	require.NoError(t, err)

	assert.Equal(t, first, second, "seeded rolls should repeat")
	assert.Contains(t, first, `"seed": 7`)
}

func TestRoot_MissingEnvFile(t *testing.T) {
	clearForgeEnv(t)
	t.Chdir(t.TempDir())

	_, _, err := executeRoot(t, "eval", "1", "--env-file", "missing.env")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestRoot_VerboseLogsToStderr(t *testing.T) {
	clearForgeEnv(t)
	t.Chdir(t.TempDir())

	stdout, stderr, err := executeRoot(t, "eval", "{missing} + 1", "-v")
	require.NoError(t, err)
	assert.Equal(t, "1\n", stdout)
	assert.Contains(t, stderr, "formula variable not found")
}

func TestRoot_UsageErrorsExitTwo(t *testing.T) {
	tests := []struct {
		name string
		args []string
	}{
		{"missing argument", []string{"eval"}},
		{"extra argument", []string{"validate", "a.yaml", "b.yaml"}},
		{"unknown flag", []string{"roll", "1d6", "--bogus"}},
		{"bad flag value", []string{"roll", "1d6", "--seed", "minus-one"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearForgeEnv(t)
			t.Chdir(t.TempDir())

			_, _, err := executeRoot(t, tt.args...)
			require.Error(t, err)
			assert.Equal(t, ExitCommandError, GetExitCode(err))
			assert.False(t, IsReported(err))
		})
	}
}
