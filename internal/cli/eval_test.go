package cli

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/forge/internal/ir"
)

func executeEval(t *testing.T, format string, args ...string) (string, error) {
	t.Helper()
	buf := &bytes.Buffer{}
	rootOpts := &RootOptions{Format: format}
	cmd := NewEvalCommand(rootOpts)
	cmd.SetOut(buf)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs(args)
	err := cmd.Execute()
	return buf.String(), err
}

func TestEval(t *testing.T) {
	tests := []struct {
		name string
		args []string
		want string
	}{
		{"arithmetic", []string{"2 + 3 * 4"}, "14"},
		{"ability modifier", []string{"floor(({str} - 10) / 2)", "--var", "str=15"}, "2"},
		{"nested variable", []string{"{stats.dex} + 2", "--var", "stats.dex=12"}, "14"},
		{"conditional text", []string{"if({hp} <= 0, 'down', 'up')", "--var", "hp=-3"}, "down"},
		{"missing variable", []string{"{missing} + 1"}, "1"},
		{"division by zero", []string{"10 / 0"}, "0"},
		{"comparison", []string{"{a} >= {b}", "--var", "a=3", "--var", "b=3"}, "true"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			output, err := executeEval(t, "text", tt.args...)
			require.NoError(t, err)
			assert.Equal(t, tt.want+"\n", output)
		})
	}
}

func TestEvalJSON(t *testing.T) {
	output, err := executeEval(t, "json", "{str} + {con}", "--var", "str=14", "--var", "con=12")
	require.NoError(t, err)

	var resp struct {
		Status string `json:"status"`
		Data   struct {
			Formula      string   `json:"formula"`
			Value        float64  `json:"value"`
			Display      string   `json:"display"`
			Dependencies []string `json:"dependencies"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(output), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, 26.0, resp.Data.Value)
	assert.Equal(t, "26", resp.Data.Display)
	assert.ElementsMatch(t, []string{"str", "con"}, resp.Data.Dependencies)
}

func TestEvalSyntaxError(t *testing.T) {
	output, err := executeEval(t, "text", "floor(")
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, err.Error(), ErrCodeFormula)
	assert.Contains(t, output, ErrCodeFormula)
}

func TestEvalBadVar(t *testing.T) {
	_, err := executeEval(t, "text", "{a}", "--var", "novalue")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, err.Error(), ErrCodeInvalidArg)
}

func TestParseVars(t *testing.T) {
	vars, err := parseVars([]string{
		"str=14",
		"name=Aria",
		"flag=true",
		"stats.dex=12",
		"stats.wis=8",
		"empty=",
		"expr=a=b",
	})
	require.NoError(t, err)

	assert.Equal(t, ir.Number(14), vars["str"])
	assert.Equal(t, ir.Text("Aria"), vars["name"])
	assert.Equal(t, ir.Bool(true), vars["flag"])
	assert.Equal(t, ir.Text(""), vars["empty"])
	assert.Equal(t, ir.Text("a=b"), vars["expr"])
	assert.Equal(t, ir.Object{"dex": ir.Number(12), "wis": ir.Number(8)}, vars["stats"])
}

func TestParseVars_Errors(t *testing.T) {
	tests := []struct {
		name  string
		pairs []string
		want  string
	}{
		{"no equals", []string{"str"}, "want key=value"},
		{"empty key", []string{"=3"}, "want key=value"},
		{"empty segment", []string{"stats..dex=1"}, "empty path segment"},
		{"value then object", []string{"stats=1", "stats.dex=2"}, "stats is already a value"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := parseVars(tt.pairs)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestParseScalar(t *testing.T) {
	assert.Equal(t, ir.Number(-3.5), parseScalar("-3.5"))
	assert.Equal(t, ir.Null{}, parseScalar("null"))
	assert.Equal(t, ir.Text("[1, 2]"), parseScalar("[1, 2]"))
	assert.Equal(t, ir.Text("{a: 1}"), parseScalar("{a: 1}"))
}
