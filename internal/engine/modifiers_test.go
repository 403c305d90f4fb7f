package engine

import (
	"bytes"
	"context"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/forge/internal/ir"
	"github.com/roach88/forge/internal/modifier"
)

func TestAddModifier_EngineIssuedFields(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()
	id := newHero(t, e, nil)
	e.SetRound(2)
	events := recordEvents(e)

	added, err := e.AddModifier(ctx, id, ir.Modifier{
		ID:        "caller-id",
		Target:    "Max HP",
		Value:     ir.Number(5),
		Kind:      ir.KindBonus,
		Source:    "ring",
		AppliedAt: 999,
		Expired:   true,
	})
	require.NoError(t, err)

	assert.Equal(t, ir.Modifier{
		ID:             "id-1",
		Target:         "hp_max",
		Value:          ir.Number(5),
		Kind:           ir.KindAdd,
		Duration:       ir.Permanent,
		Source:         "ring",
		AppliedAt:      1,
		AppliedAtRound: 2,
	}, added)

	require.Len(t, *events, 1)
	ev := (*events)[0]
	assert.Equal(t, ir.EventModifierAdded, ev.Name)
	assert.Equal(t, "hp_max", ev.FieldID)
	require.NotNil(t, ev.Modifier)
	assert.Equal(t, added, *ev.Modifier)
	assert.Equal(t, int64(2), ev.Seq)
}

func TestAddModifier_Errors(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()
	id := newHero(t, e, nil)

	_, err := e.AddModifier(ctx, id, ir.Modifier{Target: "mana", Value: ir.Number(1)})
	assert.ErrorIs(t, err, ErrUnknownField)

	_, err = e.AddModifier(ctx, id, ir.Modifier{Target: "con", Value: ir.Number(1), Kind: "divide"})
	assert.ErrorIs(t, err, ErrInvalidModifier)

	_, err = e.AddModifier(ctx, id, ir.Modifier{Target: "con", Value: ir.Number(1), Duration: ir.Duration{Kind: ir.DurationRounds}})
	assert.ErrorIs(t, err, ErrInvalidModifier)

	_, err = e.AddModifier(ctx, "ghost", ir.Modifier{Target: "con", Value: ir.Number(1)})
	assert.ErrorIs(t, err, ErrEntityNotFound)

	mods, err := e.Modifiers(ctx, id)
	require.NoError(t, err)
	assert.Empty(t, mods, "failed adds leave nothing behind")
}

func TestModifiers_ReturnsCopy(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()
	id := newHero(t, e, nil)
	_, err := e.AddModifier(ctx, id, ir.Modifier{Target: "con", Value: ir.Number(2), Kind: ir.KindAdd})
	require.NoError(t, err)

	mods, err := e.Modifiers(ctx, id)
	require.NoError(t, err)
	mods[0].Value = ir.Number(100)

	assert.Equal(t, ir.Number(12), e.GetEffectiveValue(ctx, id, "con"))
}

func TestModifierKinds_Stack(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()
	id := newHero(t, e, nil)

	add := func(kind ir.ModifierKind, v float64) {
		t.Helper()
		_, err := e.AddModifier(ctx, id, ir.Modifier{Target: "con", Value: ir.Number(v), Kind: kind})
		require.NoError(t, err)
	}

	add(ir.KindBonus, 2)
	add(ir.KindPenalty, 1)
	assert.Equal(t, ir.Number(11), e.GetEffectiveValue(ctx, id, "con"))

	add(ir.KindMultiply, 2)
	assert.Equal(t, ir.Number(22), e.GetEffectiveValue(ctx, id, "con"), "multiply applies after additive modifiers")

	add(ir.KindSet, 7)
	assert.Equal(t, ir.Number(7), e.GetEffectiveValue(ctx, id, "con"), "set overrides everything")

	lines, err := e.Breakdown(ctx, id, "constitution")
	require.NoError(t, err)
	require.Len(t, lines, 4)
	assert.Equal(t, modifier.Line{ModifierID: "id-4", Kind: ir.KindSet, Amount: 7}, lines[3])
	assert.True(t, lines[0].Overridden)
}

func TestRemoveModifier(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()
	id := newHero(t, e, nil)

	m, err := e.AddModifier(ctx, id, ir.Modifier{Target: "con", Value: ir.Number(4), Kind: ir.KindAdd})
	require.NoError(t, err)
	events := recordEvents(e)

	require.NoError(t, e.RemoveModifier(ctx, id, m.ID))
	assert.Equal(t, ir.Number(10), e.GetEffectiveValue(ctx, id, "con"))

	require.Len(t, *events, 1)
	assert.Equal(t, ir.EventModifierRemoved, (*events)[0].Name)
	assert.Equal(t, m.ID, (*events)[0].Modifier.ID)

	assert.ErrorIs(t, e.RemoveModifier(ctx, id, m.ID), ErrModifierNotFound)
}

// =============================================================================
// Expiry Tests
// =============================================================================

func TestAdvanceRound_SweepsRoundModifiers(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()
	id := newHero(t, e, nil)

	for _, m := range []ir.Modifier{
		{Target: "con", Value: ir.Number(5), Kind: ir.KindAdd, Duration: ir.Rounds(2), Source: "haste"},
		{Target: "con", Value: ir.Number(1), Kind: ir.KindAdd, Source: "ring"},
		{Target: "con", Value: ir.Number(3), Kind: ir.KindAdd, Duration: ir.UntilRest, Source: "rage"},
	} {
		_, err := e.AddModifier(ctx, id, m)
		require.NoError(t, err)
	}
	assert.Equal(t, ir.Number(19), e.GetEffectiveValue(ctx, id, "con"))
	events := recordEvents(e)

	round, err := e.AdvanceRound(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, round)
	assert.Equal(t, ir.Number(19), e.GetEffectiveValue(ctx, id, "con"))
	assert.Empty(t, *events)

	round, err = e.AdvanceRound(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, round)
	assert.Equal(t, ir.Number(14), e.GetEffectiveValue(ctx, id, "con"), "rounds(2) expires when 2 rounds have passed")
	require.Len(t, *events, 1)
	assert.Equal(t, "haste", (*events)[0].Modifier.Source)

	for range 10 {
		_, err = e.AdvanceRound(ctx)
		require.NoError(t, err)
	}
	assert.Equal(t, ir.Number(14), e.GetEffectiveValue(ctx, id, "con"), "permanent and until_rest survive rounds")
}

func TestRest_ClearsUntilRest(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()
	id := newHero(t, e, nil)

	_, err := e.AddModifier(ctx, id, ir.Modifier{Target: "con", Value: ir.Number(3), Kind: ir.KindAdd, Duration: ir.UntilRest, Source: "rage"})
	require.NoError(t, err)
	_, err = e.AddModifier(ctx, id, ir.Modifier{Target: "con", Value: ir.Number(1), Kind: ir.KindAdd, Source: "ring"})
	require.NoError(t, err)

	removed, err := e.Rest(ctx, id)
	require.NoError(t, err)
	require.Len(t, removed, 1)
	assert.Equal(t, "rage", removed[0].Source)
	assert.True(t, removed[0].Expired)
	assert.Equal(t, ir.Number(11), e.GetEffectiveValue(ctx, id, "con"))
}

func TestSweepExpired_AfterSetRound(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()
	id := newHero(t, e, nil)

	_, err := e.AddModifier(ctx, id, ir.Modifier{Target: "con", Value: ir.Number(5), Kind: ir.KindAdd, Duration: ir.Rounds(3)})
	require.NoError(t, err)

	e.SetRound(2)
	removed, err := e.SweepExpired(ctx, id)
	require.NoError(t, err)
	assert.Empty(t, removed)

	e.SetRound(3)
	removed, err = e.SweepExpired(ctx, id)
	require.NoError(t, err)
	assert.Len(t, removed, 1)
	assert.Equal(t, 3, e.Round())
}

func TestRuleModifier_ExpiresWithRounds(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()
	id := newHero(t, e, nil)

	require.NoError(t, e.Trigger(ctx, id, "onBless", nil))
	mods, err := e.Modifiers(ctx, id)
	require.NoError(t, err)
	require.Len(t, mods, 1)
	assert.Equal(t, "Bless", mods[0].Source)
	assert.Equal(t, ir.Rounds(3), mods[0].Duration)
	assert.Equal(t, ir.Number(60), e.GetEffectiveValue(ctx, id, "hp_max"))

	for range 2 {
		_, err := e.AdvanceRound(ctx)
		require.NoError(t, err)
	}
	assert.Equal(t, ir.Number(60), e.GetEffectiveValue(ctx, id, "hp_max"))

	_, err = e.AdvanceRound(ctx)
	require.NoError(t, err)
	assert.Equal(t, ir.Number(50), e.GetEffectiveValue(ctx, id, "hp_max"))
}

func TestEffectiveValue_NonNumericModifierLogsThroughEngineLogger(t *testing.T) {
	buf := &bytes.Buffer{}
	e := newTestEngine(t, WithLogger(slog.New(slog.NewTextHandler(buf, nil))))
	ctx := context.Background()
	id := newHero(t, e, nil)

	_, err := e.AddModifier(ctx, id, ir.Modifier{Target: "con", Value: ir.Text("1d4"), Kind: ir.KindBonus, Source: "Bless"})
	require.NoError(t, err)
	_, err = e.AddModifier(ctx, id, ir.Modifier{Target: "con", Value: ir.Number(2), Kind: ir.KindAdd})
	require.NoError(t, err)

	assert.Equal(t, ir.Number(12), e.GetEffectiveValue(ctx, id, "con"))
	assert.Contains(t, buf.String(), "modifier value is not numeric")
	assert.Contains(t, buf.String(), "value=1d4")

	buf.Reset()
	lines, err := e.Breakdown(ctx, id, "con")
	require.NoError(t, err)
	require.Len(t, lines, 2)
	assert.Equal(t, 0.0, lines[0].Amount)
	assert.Contains(t, buf.String(), "modifier value is not numeric")
}
