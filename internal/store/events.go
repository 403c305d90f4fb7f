package store

import (
	"context"
	"fmt"
	"strings"

	"github.com/roach88/forge/internal/ir"
)

// RecordedEvent is an event read back from the log.
type RecordedEvent struct {
	ID    int64
	RunID string
	Hash  string
	Event ir.Event
}

// EventFilter narrows ReadEvents. Empty fields match everything.
type EventFilter struct {
	RunID    string
	EntityID ir.EntityID
	Name     string
}

// AppendEvent writes one event to the run's log.
// Idempotent: a second write of the same (run_id, seq) is ignored and
// reported with appended=false.
func (s *Store) AppendEvent(ctx context.Context, runID string, ev ir.Event) (appended bool, err error) {
	hash, err := ir.EventHash(ev)
	if err != nil {
		return false, fmt.Errorf("append event %s: %w", ev.Name, err)
	}
	data, err := marshalEvent(ev)
	if err != nil {
		return false, err
	}

	result, err := s.db.ExecContext(ctx, `
		INSERT INTO events (run_id, seq, name, entity_id, field_id, hash, data)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(run_id, seq) DO NOTHING
	`, runID, ev.Seq, ev.Name, string(ev.EntityID), ev.FieldID, hash, data)
	if err != nil {
		return false, fmt.Errorf("write event %s seq %d: %w", ev.Name, ev.Seq, err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("check rows affected: %w", err)
	}
	return n == 1, nil
}

// ReadEvents returns the events matching filter in insertion order.
// Returns an empty slice if none match.
func (s *Store) ReadEvents(ctx context.Context, filter EventFilter) ([]RecordedEvent, error) {
	var (
		where []string
		args  []any
	)
	if filter.RunID != "" {
		where = append(where, "run_id = ?")
		args = append(args, filter.RunID)
	}
	if filter.EntityID != "" {
		where = append(where, "entity_id = ?")
		args = append(args, string(filter.EntityID))
	}
	if filter.Name != "" {
		where = append(where, "name = ?")
		args = append(args, filter.Name)
	}

	query := `SELECT id, run_id, hash, data FROM events`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY id ASC"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query events: %w", err)
	}
	defer rows.Close()

	events := []RecordedEvent{}
	for rows.Next() {
		var (
			rec  RecordedEvent
			data string
		)
		if err := rows.Scan(&rec.ID, &rec.RunID, &rec.Hash, &data); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		rec.Event, err = unmarshalEvent(data)
		if err != nil {
			return nil, fmt.Errorf("event %d: %w", rec.ID, err)
		}
		events = append(events, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate events: %w", err)
	}
	return events, nil
}

// Runs returns the distinct run ids in order of first event.
func (s *Store) Runs(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT run_id
		FROM events
		GROUP BY run_id
		ORDER BY MIN(id) ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()

	runs := []string{}
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan run id: %w", err)
		}
		runs = append(runs, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate runs: %w", err)
	}
	return runs, nil
}
