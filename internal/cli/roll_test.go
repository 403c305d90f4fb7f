package cli

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/forge/internal/config"
	"github.com/roach88/forge/internal/dice"
)

func executeRoll(t *testing.T, rootOpts *RootOptions, args ...string) (string, error) {
	t.Helper()
	buf := &bytes.Buffer{}
	cmd := NewRollCommand(rootOpts)
	cmd.SetOut(buf)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs(args)
	err := cmd.Execute()
	return buf.String(), err
}

type rollResponse struct {
	Status string `json:"status"`
	Data   struct {
		dice.Result
		Label string  `json:"label"`
		Seed  *uint64 `json:"seed"`
	} `json:"data"`
}

func decodeRoll(t *testing.T, output string) rollResponse {
	t.Helper()
	var resp rollResponse
	require.NoError(t, json.Unmarshal([]byte(output), &resp))
	return resp
}

func TestRollFlatFormula(t *testing.T) {
	output, err := executeRoll(t, &RootOptions{Format: "text"}, "5+3")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(output, "5+3 = 8\n"), output)
}

func TestRollSeededIsReproducible(t *testing.T) {
	first, err := executeRoll(t, &RootOptions{Format: "json"}, "4d6kh3", "--seed", "42")
	require.NoError(t, err)
	second, err := executeRoll(t, &RootOptions{Format: "json"}, "4d6kh3", "--seed", "42")
	require.NoError(t, err)
	assert.Equal(t, first, second)

	resp := decodeRoll(t, first)
	assert.Equal(t, "ok", resp.Status)
	require.NotNil(t, resp.Data.Seed)
	assert.Equal(t, uint64(42), *resp.Data.Seed)
	require.Len(t, resp.Data.Rolls, 1)
	assert.Len(t, resp.Data.Rolls[0].Rolls, 4)
	assert.Len(t, resp.Data.Rolls[0].Kept, 3)
	assert.GreaterOrEqual(t, resp.Data.Total, 3)
	assert.LessOrEqual(t, resp.Data.Total, 18)
}

func TestRollSeedFromConfig(t *testing.T) {
	opts := &RootOptions{Format: "json", Config: &config.Config{DiceSeed: 9}}

	first, err := executeRoll(t, opts, "3d20")
	require.NoError(t, err)
	second, err := executeRoll(t, opts, "3d20")
	require.NoError(t, err)
	assert.Equal(t, first, second)

	resp := decodeRoll(t, first)
	require.NotNil(t, resp.Data.Seed)
	assert.Equal(t, uint64(9), *resp.Data.Seed)
}

func TestRollSeedFlagOverridesConfig(t *testing.T) {
	opts := &RootOptions{Format: "json", Config: &config.Config{DiceSeed: 9}}

	output, err := executeRoll(t, opts, "1d20", "--seed", "3")
	require.NoError(t, err)
	resp := decodeRoll(t, output)
	require.NotNil(t, resp.Data.Seed)
	assert.Equal(t, uint64(3), *resp.Data.Seed)
}

func TestRollUnseededOmitsSeed(t *testing.T) {
	output, err := executeRoll(t, &RootOptions{Format: "json"}, "1d6")
	require.NoError(t, err)
	resp := decodeRoll(t, output)
	assert.Nil(t, resp.Data.Seed)
	assert.GreaterOrEqual(t, resp.Data.Total, 1)
	assert.LessOrEqual(t, resp.Data.Total, 6)
}

func TestRollWithVariables(t *testing.T) {
	output, err := executeRoll(t, &RootOptions{Format: "json"},
		"1d1+{str_mod}", "--var", "str_mod=3", "--label", "Attack")
	require.NoError(t, err)

	resp := decodeRoll(t, output)
	assert.Equal(t, "1d1+{str_mod}", resp.Data.Formula)
	assert.Equal(t, 4, resp.Data.Total)
	assert.Equal(t, "Attack", resp.Data.Label)
}

func TestRollTextWithLabel(t *testing.T) {
	output, err := executeRoll(t, &RootOptions{Format: "text"}, "2d1+1", "--label", "Damage")
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(output), "\n")
	require.NotEmpty(t, lines)
	assert.Equal(t, "Damage: 2d1+1 = 3", lines[0])
	assert.Greater(t, len(lines), 1, "breakdown lines follow the total")
}

func TestRollSyntaxError(t *testing.T) {
	output, err := executeRoll(t, &RootOptions{Format: "text"}, "2x6")
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, err.Error(), ErrCodeDice)
	assert.Contains(t, output, ErrCodeDice)
}

func TestRollBadVar(t *testing.T) {
	_, err := executeRoll(t, &RootOptions{Format: "text"}, "1d6", "--var", "=1")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}
