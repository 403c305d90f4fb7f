package store

import (
	"context"
	"database/sql"
	"errors"
	"testing"

	"github.com/roach88/forge/internal/ir"
)

func TestSaveSnapshot_RoundTrip(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	ent := createTestEntity("hero-1", 30)

	snap, saved, err := s.SaveSnapshot(ctx, ent, 7, "after combat")
	if err != nil {
		t.Fatalf("SaveSnapshot() failed: %v", err)
	}
	if !saved {
		t.Error("first SaveSnapshot() should report saved")
	}
	if snap.Hash != ir.MustSnapshotHash(ent) {
		t.Errorf("hash = %q, want %q", snap.Hash, ir.MustSnapshotHash(ent))
	}

	got, err := s.LatestSnapshot(ctx, "hero-1")
	if err != nil {
		t.Fatalf("LatestSnapshot() failed: %v", err)
	}
	if got.ID != snap.ID {
		t.Errorf("id = %d, want %d", got.ID, snap.ID)
	}
	if got.Seq != 7 || got.Label != "after combat" {
		t.Errorf("seq/label = %d/%q, want 7/%q", got.Seq, got.Label, "after combat")
	}
	if got.EntityType != "hero" {
		t.Errorf("entity_type = %q, want hero", got.EntityType)
	}
	if got.EngineVersion != ir.EngineVersion {
		t.Errorf("engine_version = %q, want %q", got.EngineVersion, ir.EngineVersion)
	}

	// The decoded entity must hash the same as the one saved.
	if h := ir.MustSnapshotHash(got.Entity); h != snap.Hash {
		t.Errorf("round-trip hash = %q, want %q", h, snap.Hash)
	}
	if v := got.Entity.Values["hp"]; v != ir.Number(30) {
		t.Errorf("hp = %#v, want 30", v)
	}
	mod, ok := got.Entity.Modifier("mod-1")
	if !ok {
		t.Fatal("modifier mod-1 missing after round trip")
	}
	if mod.Duration != ir.Rounds(3) || mod.AppliedAtRound != 1 {
		t.Errorf("modifier = %+v, want rounds:3 applied at round 1", mod)
	}
}

func TestSaveSnapshot_IdempotentForUnchangedEntity(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	ent := createTestEntity("hero-1", 30)

	first, _, err := s.SaveSnapshot(ctx, ent, 1, "")
	if err != nil {
		t.Fatalf("first SaveSnapshot() failed: %v", err)
	}
	second, saved, err := s.SaveSnapshot(ctx, ent, 2, "again")
	if err != nil {
		t.Fatalf("second SaveSnapshot() failed: %v", err)
	}
	if saved {
		t.Error("unchanged entity should not be saved again")
	}
	if second.ID != first.ID {
		t.Errorf("second id = %d, want existing %d", second.ID, first.ID)
	}

	snaps, err := s.ListSnapshots(ctx, "hero-1")
	if err != nil {
		t.Fatalf("ListSnapshots() failed: %v", err)
	}
	if len(snaps) != 1 {
		t.Errorf("len(snapshots) = %d, want 1", len(snaps))
	}
}

func TestSaveSnapshot_RevertStoresNewRow(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	a := createTestEntity("hero-1", 30)
	b := createTestEntity("hero-1", 12)
	for i, ent := range []*ir.Entity{a, b, a} {
		if _, saved, err := s.SaveSnapshot(ctx, ent, int64(i), ""); err != nil || !saved {
			t.Fatalf("SaveSnapshot(%d) = saved %v, err %v", i, saved, err)
		}
	}

	snaps, err := s.ListSnapshots(ctx, "hero-1")
	if err != nil {
		t.Fatalf("ListSnapshots() failed: %v", err)
	}
	if len(snaps) != 3 {
		t.Fatalf("len(snapshots) = %d, want 3", len(snaps))
	}
	if snaps[0].Hash != snaps[2].Hash {
		t.Error("first and last snapshot should share a hash")
	}
	for i := 1; i < len(snaps); i++ {
		if snaps[i].ID <= snaps[i-1].ID {
			t.Errorf("snapshots not ordered by id: %d after %d", snaps[i].ID, snaps[i-1].ID)
		}
	}

	latest, err := s.LatestSnapshot(ctx, "hero-1")
	if err != nil {
		t.Fatalf("LatestSnapshot() failed: %v", err)
	}
	if latest.ID != snaps[2].ID {
		t.Errorf("latest id = %d, want %d", latest.ID, snaps[2].ID)
	}
}

func TestSaveSnapshot_ReturnsCopy(t *testing.T) {
	s := createTestStore(t)
	ent := createTestEntity("hero-1", 30)

	snap, _, err := s.SaveSnapshot(context.Background(), ent, 1, "")
	if err != nil {
		t.Fatalf("SaveSnapshot() failed: %v", err)
	}
	ent.Values["hp"] = ir.Number(0)
	if snap.Entity.Values["hp"] != ir.Number(30) {
		t.Error("returned snapshot shares state with the caller's entity")
	}
}

func TestSaveSnapshot_NilEntity(t *testing.T) {
	s := createTestStore(t)
	if _, _, err := s.SaveSnapshot(context.Background(), nil, 0, ""); err == nil {
		t.Error("expected error for nil entity")
	}
}

func TestLatestSnapshot_NotFound(t *testing.T) {
	s := createTestStore(t)

	_, err := s.LatestSnapshot(context.Background(), "ghost")
	if !errors.Is(err, sql.ErrNoRows) {
		t.Errorf("err = %v, want sql.ErrNoRows", err)
	}
}

func TestListSnapshots_EmptyNotNil(t *testing.T) {
	s := createTestStore(t)

	snaps, err := s.ListSnapshots(context.Background(), "ghost")
	if err != nil {
		t.Fatalf("ListSnapshots() failed: %v", err)
	}
	if snaps == nil {
		t.Error("ListSnapshots() returned nil, want empty slice")
	}
}

func TestEntities_FirstSaveOrder(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	for _, ent := range []*ir.Entity{
		createTestEntity("hero-b", 1),
		createTestEntity("hero-a", 1),
		createTestEntity("hero-b", 2),
	} {
		if _, _, err := s.SaveSnapshot(ctx, ent, 0, ""); err != nil {
			t.Fatalf("SaveSnapshot() failed: %v", err)
		}
	}

	ids, err := s.Entities(ctx)
	if err != nil {
		t.Fatalf("Entities() failed: %v", err)
	}
	if len(ids) != 2 || ids[0] != "hero-b" || ids[1] != "hero-a" {
		t.Errorf("Entities() = %v, want [hero-b hero-a]", ids)
	}
}
