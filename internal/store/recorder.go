package store

import (
	"context"
	"log/slog"
	"sync"

	"github.com/roach88/forge/internal/bus"
	"github.com/roach88/forge/internal/ir"
)

// Subscriber is the part of the event bus a Recorder needs.
// Both *bus.Bus[ir.Event] and *engine.Engine satisfy it.
type Subscriber interface {
	On(name string, fn bus.Listener[ir.Event]) func()
}

// RecorderOption configures a Recorder.
type RecorderOption func(*Recorder)

// WithRecorderLogger sets the recorder's logger.
func WithRecorderLogger(l *slog.Logger) RecorderOption {
	return func(r *Recorder) {
		r.logger = l
	}
}

// Recorder appends every event published on a bus to the store under one
// run id. A failed write is logged and kept; later events are still written.
type Recorder struct {
	store  *Store
	runID  string
	logger *slog.Logger

	mu       sync.Mutex
	err      error
	recorded int
}

// NewRecorder creates a Recorder writing to s under runID.
func NewRecorder(s *Store, runID string, opts ...RecorderOption) *Recorder {
	r := &Recorder{store: s, runID: runID, logger: slog.Default()}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// RunID returns the run id events are recorded under.
func (r *Recorder) RunID() string {
	return r.runID
}

// Attach subscribes the recorder to the wildcard channel of sub and returns
// the unsubscribe function.
func (r *Recorder) Attach(sub Subscriber) func() {
	return sub.On(bus.Wildcard, r.record)
}

func (r *Recorder) record(ctx context.Context, env bus.Envelope[ir.Event]) error {
	appended, err := r.store.AppendEvent(ctx, r.runID, env.Data)

	r.mu.Lock()
	defer r.mu.Unlock()
	if err != nil {
		r.logger.Error("record event failed",
			"run_id", r.runID,
			"event", env.EventName,
			"seq", env.Data.Seq,
			"error", err,
		)
		if r.err == nil {
			r.err = err
		}
		return err
	}
	if appended {
		r.recorded++
	}
	return nil
}

// Err returns the first write error, if any.
func (r *Recorder) Err() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.err
}

// Recorded returns the number of events written.
func (r *Recorder) Recorded() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.recorded
}
