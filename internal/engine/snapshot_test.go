package engine

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/forge/internal/ir"
)

// seededHero creates a hero with non-default values and two modifiers.
func seededHero(t *testing.T, e *Engine) ir.EntityID {
	t.Helper()
	ctx := context.Background()
	id := newHero(t, e, ir.Object{"con": ir.Number(14), "name": ir.Text("Aria")})
	require.NoError(t, e.SetValue(ctx, id, "hp", ir.Number(30)))
	_, err := e.AddModifier(ctx, id, ir.Modifier{Target: "hp_max", Value: ir.Number(10), Kind: ir.KindAdd, Source: "ring"})
	require.NoError(t, err)
	_, err = e.AddModifier(ctx, id, ir.Modifier{Target: "con", Value: ir.Text("2"), Kind: ir.KindAdd, Duration: ir.Rounds(2), Source: "potion"})
	require.NoError(t, err)
	return id
}

func TestExportImport_RoundTrip(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()
	id := seededHero(t, e)

	exported, err := e.ExportEntity(ctx, id)
	require.NoError(t, err)
	before, err := e.SnapshotHash(ctx, id)
	require.NoError(t, err)

	require.NoError(t, e.DeleteEntity(ctx, id))
	require.NoError(t, e.ImportEntity(ctx, exported))

	again, err := e.ExportEntity(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, exported, again)

	after, err := e.SnapshotHash(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, before, after)
	assert.Equal(t, ir.Number(80), e.GetEffectiveValue(ctx, id, "hp_max"))
}

func TestExport_IsDeepCopy(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()
	id := seededHero(t, e)

	exported, err := e.ExportEntity(ctx, id)
	require.NoError(t, err)
	exported.Values["hp"] = ir.Number(1)
	exported.Modifiers[0].Value = ir.Number(100)

	assert.Equal(t, ir.Number(30), e.GetValue(ctx, id, "hp"))
	assert.Equal(t, ir.Number(80), e.GetEffectiveValue(ctx, id, "hp_max"))
}

func TestImport_IntoFreshEngine(t *testing.T) {
	src := newTestEngine(t)
	ctx := context.Background()
	id := seededHero(t, src)

	data, err := src.ExportJSON(ctx, id)
	require.NoError(t, err)

	dst := newTestEngine(t)
	events := recordEvents(dst)
	imported, err := dst.ImportJSON(ctx, data)
	require.NoError(t, err)
	assert.Equal(t, id, imported)
	assert.Empty(t, *events, "import emits no events")

	want, err := src.SnapshotHash(ctx, id)
	require.NoError(t, err)
	got, err := dst.SnapshotHash(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, want, got)

	assert.Equal(t, ir.Number(16), dst.GetEffectiveValue(ctx, id, "con"))
	assert.Equal(t, ir.Text("Aria"), dst.GetValue(ctx, id, "name"))
	assert.Equal(t, []ir.EntityID{id}, dst.Entities())
}

func TestImport_ReplacesExisting(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()
	id := seededHero(t, e)

	snap, err := e.ExportEntity(ctx, id)
	require.NoError(t, err)
	require.NoError(t, e.SetValue(ctx, id, "hp", ir.Number(5)))

	require.NoError(t, e.ImportEntity(ctx, snap))
	assert.Equal(t, ir.Number(30), e.GetValue(ctx, id, "hp"))
	assert.Equal(t, []ir.EntityID{id}, e.Entities(), "replacing keeps a single arena slot")
}

func TestImport_Errors(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()

	assert.Error(t, e.ImportEntity(ctx, nil))
	assert.Error(t, e.ImportEntity(ctx, &ir.Entity{Type: "hero"}))
	assert.ErrorIs(t, e.ImportEntity(ctx, &ir.Entity{ID: "x", Type: "dragon"}), ErrUnknownEntityType)
	assert.ErrorIs(t, e.ImportEntity(ctx, &ir.Entity{
		ID:        "x",
		Type:      "hero",
		Modifiers: []ir.Modifier{{ID: "m", Target: "mana", Value: ir.Number(1)}},
	}), ErrUnknownField)

	assert.ErrorIs(t, e.ImportEntity(ctx, &ir.Entity{
		ID:     "x",
		Type:   "hero",
		Values: ir.Object{"mana": ir.Number(3)},
	}), ErrUnknownField)
	assert.ErrorIs(t, e.ImportEntity(ctx, &ir.Entity{
		ID:     "x",
		Type:   "hero",
		Values: ir.Object{"Max HP": ir.Number(99)},
	}), ErrDerivedField)
	assert.Error(t, e.ImportEntity(ctx, &ir.Entity{
		ID:     "x",
		Type:   "hero",
		Values: ir.Object{"con": ir.Number(12), "constitution": ir.Number(14)},
	}), "two keys naming one field")

	_, err := e.ImportJSON(ctx, []byte("{not json"))
	assert.Error(t, err)
	assert.Empty(t, e.Entities())
}

func TestImport_CanonicalisesFieldReferences(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()

	id, err := e.ImportJSON(ctx, []byte(`{
		"id": "hero-9",
		"type": "hero",
		"values": {"constitution": 14, "Hit Points": 3},
		"modifiers": [{"id": "m1", "target": "Constitution", "value": 2, "kind": "add"}]
	}`))
	require.NoError(t, err)

	assert.Equal(t, ir.Number(14), e.GetValue(ctx, id, "con"))
	assert.Equal(t, ir.Number(3), e.GetValue(ctx, id, "hp"))
	assert.Equal(t, ir.Number(16), e.GetEffectiveValue(ctx, id, "con"))

	snap, err := e.ExportEntity(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, ir.Object{"con": ir.Number(14), "hp": ir.Number(3)}, snap.Values)
	assert.Equal(t, "con", snap.Modifiers[0].Target)
}
