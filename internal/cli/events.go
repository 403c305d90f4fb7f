package cli

import (
	"database/sql"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"slices"
	"sort"

	"github.com/spf13/cobra"

	"github.com/roach88/forge/internal/harness"
	"github.com/roach88/forge/internal/ir"
	"github.com/roach88/forge/internal/store"
)

// EventsOptions holds flags for the events command.
type EventsOptions struct {
	*RootOptions
	Database string
	Entity   string // optional - filter to one entity
	Run      string // optional - filter to one run
	Name     string // optional - filter to one event name
}

// EventRecord is one recorded event in the output.
type EventRecord struct {
	ID    int64    `json:"id"`
	RunID string   `json:"runId"`
	Hash  string   `json:"hash"`
	Event ir.Event `json:"event"`
}

// SnapshotSummary describes the latest snapshot of the filtered entity.
type SnapshotSummary struct {
	EntityID   ir.EntityID `json:"entityId"`
	EntityType string      `json:"entityType"`
	Seq        int64       `json:"seq"`
	Label      string      `json:"label,omitempty"`
	Hash       string      `json:"hash"`
	Values     ir.Object   `json:"values"`
	Modifiers  int         `json:"modifiers"`
}

// EventsStats holds summary statistics for the listing.
type EventsStats struct {
	TotalEvents int            `json:"totalEvents"`
	Runs        int            `json:"runs"`
	ByName      map[string]int `json:"byName"`
}

// EventsResult holds the complete events output.
type EventsResult struct {
	Events   []EventRecord    `json:"events"`
	Snapshot *SnapshotSummary `json:"snapshot,omitempty"`
	Stats    EventsStats      `json:"stats"`
}

// NewEventsCommand creates the events command.
func NewEventsCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &EventsOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "events",
		Short: "List recorded events",
		Long: `List the events recorded by 'forge run --db'.

Events are grouped by run and shown in the order they were emitted.
With --entity the listing is restricted to one entity and the entity's
latest snapshot is shown as well.

The database defaults to FORGE_DB_PATH.

Examples:
  forge events --db ./forge.db
  forge events --db ./forge.db --entity hero-1
  forge events --db ./forge.db --run 0192c4d6-... --name onChange --format json`,
		Args:          usageArgs(cobra.NoArgs),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runEvents(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite database (default FORGE_DB_PATH)")
	cmd.Flags().StringVar(&opts.Entity, "entity", "", "filter to one entity id")
	cmd.Flags().StringVar(&opts.Run, "run", "", "filter to one run id")
	cmd.Flags().StringVar(&opts.Name, "name", "", "filter to one event name")

	return cmd
}

func runEvents(opts *EventsOptions, cmd *cobra.Command) error {
	ctx := runContext(cmd)
	formatter := newFormatter(opts.RootOptions, cmd.OutOrStdout(), cmd.ErrOrStderr())

	path := opts.Database
	if path == "" && opts.Config != nil {
		path = opts.Config.DBPath
	}
	if path == "" {
		return formatter.Fail(ExitCommandError, ErrCodeInvalidArg, "no database: set --db or FORGE_DB_PATH")
	}

	// Opening a missing path would create an empty database.
	if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
		return formatter.Fail(ExitCommandError, ErrCodeNotFound, fmt.Sprintf("database not found: %s", path))
	}

	st, err := store.Open(path)
	if err != nil {
		return formatter.Fail(ExitCommandError, ErrCodeDatabase, fmt.Sprintf("failed to open database: %v", err))
	}
	defer func() {
		if closeErr := st.Close(); closeErr != nil {
			opts.logger().Error("error closing database", "error", closeErr)
		}
	}()

	recorded, err := st.ReadEvents(ctx, store.EventFilter{
		RunID:    opts.Run,
		EntityID: ir.EntityID(opts.Entity),
		Name:     opts.Name,
	})
	if err != nil {
		return formatter.Fail(ExitCommandError, ErrCodeDatabase, fmt.Sprintf("failed to read events: %v", err))
	}

	result := EventsResult{
		Events: make([]EventRecord, 0, len(recorded)),
		Stats:  buildEventsStats(recorded),
	}
	for _, re := range recorded {
		result.Events = append(result.Events, EventRecord{ID: re.ID, RunID: re.RunID, Hash: re.Hash, Event: re.Event})
	}

	if opts.Entity != "" {
		snap, err := st.LatestSnapshot(ctx, ir.EntityID(opts.Entity))
		switch {
		case errors.Is(err, sql.ErrNoRows):
			// Entity was never snapshotted
		case err != nil:
			return formatter.Fail(ExitCommandError, ErrCodeDatabase, fmt.Sprintf("failed to read snapshot: %v", err))
		default:
			result.Snapshot = summarizeSnapshot(snap)
		}
	}

	if formatter.IsJSON() {
		return formatter.Success(result)
	}
	outputEventsText(formatter, result)
	return nil
}

func buildEventsStats(recorded []store.RecordedEvent) EventsStats {
	stats := EventsStats{TotalEvents: len(recorded), ByName: map[string]int{}}
	var runs []string
	for _, re := range recorded {
		stats.ByName[re.Event.Name]++
		if !slices.Contains(runs, re.RunID) {
			runs = append(runs, re.RunID)
		}
	}
	stats.Runs = len(runs)
	return stats
}

func summarizeSnapshot(snap store.Snapshot) *SnapshotSummary {
	sum := &SnapshotSummary{
		EntityID:   snap.EntityID,
		EntityType: snap.EntityType,
		Seq:        snap.Seq,
		Label:      snap.Label,
		Hash:       snap.Hash,
	}
	if snap.Entity != nil {
		sum.Values = snap.Entity.Values
		sum.Modifiers = len(snap.Entity.Modifiers)
	}
	return sum
}

// outputEventsText prints events grouped by run, then the snapshot.
func outputEventsText(formatter *OutputFormatter, result EventsResult) {
	w := formatter.Writer

	if len(result.Events) == 0 {
		fmt.Fprintln(w, "No events found.")
	}

	currentRun := ""
	for i, rec := range result.Events {
		if i == 0 || rec.RunID != currentRun {
			if i > 0 {
				fmt.Fprintln(w)
			}
			currentRun = rec.RunID
			fmt.Fprintf(w, "Run %s\n", currentRun)
		}
		fmt.Fprintf(w, "  %s\n", harness.FormatEvent(rec.Event))
	}

	if snap := result.Snapshot; snap != nil {
		fmt.Fprintln(w)
		fmt.Fprintf(w, "Snapshot %s (%s) at seq %d", snap.EntityID, snap.EntityType, snap.Seq)
		if snap.Label != "" {
			fmt.Fprintf(w, " [%s]", snap.Label)
		}
		fmt.Fprintln(w)
		keys := make([]string, 0, len(snap.Values))
		for k := range snap.Values {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			fmt.Fprintf(w, "  %s = %s\n", k, ir.FormatValue(snap.Values[k]))
		}
		if snap.Modifiers > 0 {
			fmt.Fprintf(w, "  %d modifier(s)\n", snap.Modifiers)
		}
	}

	if len(result.Events) > 0 {
		fmt.Fprintln(w)
		fmt.Fprintf(w, "%d event(s) across %d run(s)\n", result.Stats.TotalEvents, result.Stats.Runs)
	}
}
