package store

import (
	"path/filepath"
	"testing"

	"github.com/roach88/forge/internal/ir"
)

// createTestStore creates a new store in a temp directory for testing.
func createTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// createTestEntity creates a hero with one modifier.
func createTestEntity(id string, hp float64) *ir.Entity {
	return &ir.Entity{
		ID:   ir.EntityID(id),
		Type: "hero",
		Values: ir.Object{
			"hp":   ir.Number(hp),
			"name": ir.Text("Aria"),
		},
		Modifiers: []ir.Modifier{{
			ID:             "mod-1",
			Target:         "hp_max",
			Value:          ir.Number(10),
			Kind:           ir.KindAdd,
			Duration:       ir.Rounds(3),
			Source:         "Bless",
			AppliedAt:      4,
			AppliedAtRound: 1,
		}},
	}
}

// createTestEvent creates an onChange event for hp.
func createTestEvent(entityID string, seq int64, prev, next float64) ir.Event {
	return ir.Event{
		Name:     ir.EventChange,
		EntityID: ir.EntityID(entityID),
		FieldID:  "hp",
		Previous: ir.Number(prev),
		New:      ir.Number(next),
		Seq:      seq,
	}
}
