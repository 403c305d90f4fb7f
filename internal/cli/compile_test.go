package cli

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/forge/internal/compiler"
)

func executeCompile(t *testing.T, format string, args ...string) (string, error) {
	t.Helper()
	buf := &bytes.Buffer{}
	rootOpts := &RootOptions{Format: format}
	cmd := NewCompileCommand(rootOpts)
	cmd.SetOut(buf)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs(args)
	err := cmd.Execute()
	return buf.String(), err
}

func TestCompileToStdout(t *testing.T) {
	output, err := executeCompile(t, "text", characterSchema)
	require.NoError(t, err)

	schema, err := compiler.CompileJSON([]byte(output))
	require.NoError(t, err)
	require.Len(t, schema.EntityTypes, 1)
	assert.Equal(t, "character", schema.EntityTypes[0].ID)
	assert.Len(t, schema.GlobalRules, 1)
}

func TestCompileToStdoutJSONFormatHasNoEnvelope(t *testing.T) {
	output, err := executeCompile(t, "json", characterSchema)
	require.NoError(t, err)

	var top map[string]json.RawMessage
	require.NoError(t, json.Unmarshal([]byte(output), &top))
	assert.Contains(t, top, "entityTypes")
	assert.NotContains(t, top, "status")
	assert.NotContains(t, top, "data")
}

func TestCompileWithOutputFile(t *testing.T) {
	outFile := filepath.Join(t.TempDir(), "character.json")

	output, err := executeCompile(t, "text", characterSchema, "-o", outFile)
	require.NoError(t, err)
	assert.Contains(t, output, "✓ Compiled 1 entity type(s), 6 field(s), 5 rule(s)")
	assert.Contains(t, output, "Wrote compiled schema to "+outFile)

	_, err = os.Stat(outFile)
	require.NoError(t, err)
}

func TestCompileWithOutputFileJSON(t *testing.T) {
	outFile := filepath.Join(t.TempDir(), "duel.json")

	output, err := executeCompile(t, "json", duelSchema, "--output", outFile)
	require.NoError(t, err)

	var resp struct {
		Status string            `json:"status"`
		Data   CompilationResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(output), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, outFile, resp.Data.Output)
	assert.Equal(t, 1, resp.Data.EntityTypes)
}

func TestCompileOutputLoadsBack(t *testing.T) {
	outFile := filepath.Join(t.TempDir(), "character.json")
	_, err := executeCompile(t, "text", characterSchema, "-o", outFile)
	require.NoError(t, err)

	want, err := compiler.LoadFile(characterSchema)
	require.NoError(t, err)
	got, err := compiler.LoadFile(outFile)
	require.NoError(t, err)

	// Compiling the compiled output is a fixed point.
	wantJSON, err := marshalSchema(want)
	require.NoError(t, err)
	gotJSON, err := marshalSchema(got)
	require.NoError(t, err)
	assert.JSONEq(t, string(wantJSON), string(gotJSON))
}

func TestCompileInvalidSchema(t *testing.T) {
	path := writeFile(t, "loop.yaml", cycleSchema)
	outFile := filepath.Join(t.TempDir(), "loop.json")

	output, err := executeCompile(t, "text", path, "-o", outFile)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, output, "✗ Validation failed")

	_, statErr := os.Stat(outFile)
	assert.True(t, os.IsNotExist(statErr), "invalid schemas must not be written")
}

func TestCompileNonExistentPath(t *testing.T) {
	_, err := executeCompile(t, "text", "/nonexistent/schema.cue")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, err.Error(), ErrCodeNotFound)
}

func TestCompileUnwritableOutput(t *testing.T) {
	outFile := filepath.Join(t.TempDir(), "missing", "dir", "out.json")

	_, err := executeCompile(t, "text", characterSchema, "-o", outFile)
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, err.Error(), ErrCodeWriteFailed)
}
