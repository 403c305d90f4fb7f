package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/roach88/forge/internal/ir"
)

// Snapshot is a stored entity snapshot.
type Snapshot struct {
	ID            int64
	EntityID      ir.EntityID
	EntityType    string
	Hash          string
	Seq           int64
	Label         string
	EngineVersion string
	Entity        *ir.Entity
}

// SaveSnapshot stores an exported entity. Seq is the engine clock reading at
// export time and label is free text.
//
// Snapshots are content-addressed by ir.SnapshotHash. When the entity's latest
// snapshot already has the same hash nothing is written and the existing row
// is returned with saved=false.
func (s *Store) SaveSnapshot(ctx context.Context, ent *ir.Entity, seq int64, label string) (snap Snapshot, saved bool, err error) {
	if ent == nil {
		return Snapshot{}, false, fmt.Errorf("save snapshot: nil entity")
	}
	hash, err := ir.SnapshotHash(ent)
	if err != nil {
		return Snapshot{}, false, fmt.Errorf("save snapshot %s: %w", ent.ID, err)
	}
	data, err := marshalEntity(ent)
	if err != nil {
		return Snapshot{}, false, err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return Snapshot{}, false, fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	latest, err := scanSnapshot(tx.QueryRowContext(ctx, `
		SELECT id, entity_id, entity_type, hash, seq, label, engine_version, data
		FROM snapshots
		WHERE entity_id = ?
		ORDER BY id DESC
		LIMIT 1
	`, string(ent.ID)))
	switch {
	case err == nil && latest.Hash == hash:
		return latest, false, nil
	case err != nil && !errors.Is(err, sql.ErrNoRows):
		return Snapshot{}, false, fmt.Errorf("read latest snapshot %s: %w", ent.ID, err)
	}

	result, err := tx.ExecContext(ctx, `
		INSERT INTO snapshots (entity_id, entity_type, hash, data, seq, label, engine_version)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, string(ent.ID), ent.Type, hash, data, seq, label, ir.EngineVersion)
	if err != nil {
		return Snapshot{}, false, fmt.Errorf("write snapshot %s: %w", ent.ID, err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return Snapshot{}, false, fmt.Errorf("get snapshot id: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return Snapshot{}, false, fmt.Errorf("commit transaction: %w", err)
	}

	return Snapshot{
		ID:            id,
		EntityID:      ent.ID,
		EntityType:    ent.Type,
		Hash:          hash,
		Seq:           seq,
		Label:         label,
		EngineVersion: ir.EngineVersion,
		Entity:        ent.Clone(),
	}, true, nil
}

// LatestSnapshot returns the most recent snapshot of an entity.
// Returns sql.ErrNoRows (wrapped) if the entity has none.
func (s *Store) LatestSnapshot(ctx context.Context, entityID ir.EntityID) (Snapshot, error) {
	snap, err := scanSnapshot(s.db.QueryRowContext(ctx, `
		SELECT id, entity_id, entity_type, hash, seq, label, engine_version, data
		FROM snapshots
		WHERE entity_id = ?
		ORDER BY id DESC
		LIMIT 1
	`, string(entityID)))
	if err != nil {
		return Snapshot{}, fmt.Errorf("latest snapshot %s: %w", entityID, err)
	}
	return snap, nil
}

// ListSnapshots returns every snapshot of an entity, oldest first.
func (s *Store) ListSnapshots(ctx context.Context, entityID ir.EntityID) ([]Snapshot, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, entity_id, entity_type, hash, seq, label, engine_version, data
		FROM snapshots
		WHERE entity_id = ?
		ORDER BY id ASC
	`, string(entityID))
	if err != nil {
		return nil, fmt.Errorf("query snapshots: %w", err)
	}
	defer rows.Close()

	snaps := []Snapshot{}
	for rows.Next() {
		snap, err := scanSnapshot(rows)
		if err != nil {
			return nil, err
		}
		snaps = append(snaps, snap)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate snapshots: %w", err)
	}
	return snaps, nil
}

// Entities returns the ids of every entity with at least one snapshot, in
// order of first save.
func (s *Store) Entities(ctx context.Context) ([]ir.EntityID, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT entity_id
		FROM snapshots
		GROUP BY entity_id
		ORDER BY MIN(id) ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("query entities: %w", err)
	}
	defer rows.Close()

	ids := []ir.EntityID{}
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan entity id: %w", err)
		}
		ids = append(ids, ir.EntityID(id))
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate entities: %w", err)
	}
	return ids, nil
}

// rowScanner is satisfied by *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanSnapshot(row rowScanner) (Snapshot, error) {
	var (
		snap     Snapshot
		entityID string
		data     string
	)
	if err := row.Scan(&snap.ID, &entityID, &snap.EntityType, &snap.Hash, &snap.Seq, &snap.Label, &snap.EngineVersion, &data); err != nil {
		return Snapshot{}, err
	}
	snap.EntityID = ir.EntityID(entityID)
	ent, err := unmarshalEntity(data)
	if err != nil {
		return Snapshot{}, fmt.Errorf("snapshot %d: %w", snap.ID, err)
	}
	snap.Entity = ent
	return snap, nil
}
