package testutil_test

import (
	"context"
	"log/slog"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/forge/internal/engine"
	"github.com/roach88/forge/internal/ir"
	"github.com/roach88/forge/internal/testutil"
)

var _ engine.SeqClock = (*testutil.DeterministicClock)(nil)

func statSchema() *ir.Schema {
	return &ir.Schema{EntityTypes: []ir.EntityType{{
		ID:     "hero",
		Fields: []ir.Field{{ID: "con", Type: ir.FieldNumber, Default: ir.Number(10)}},
	}}}
}

// buffRun applies the same modifiers to a fresh engine and returns their
// appliedAt stamps and the resulting snapshot hash.
func buffRun(t *testing.T, clock engine.SeqClock) ([]int64, string) {
	t.Helper()
	ctx := context.Background()
	e, err := engine.New(statSchema(),
		engine.WithClock(clock),
		engine.WithIDGenerator(testutil.NewSequentialIDGenerator("mod")),
		engine.WithLogger(slog.New(slog.DiscardHandler)),
	)
	require.NoError(t, err)
	id, err := e.CreateEntity(ctx, "hero", engine.WithEntityID("hero-1"))
	require.NoError(t, err)

	var stamps []int64
	for _, m := range []ir.Modifier{
		{Target: "con", Value: ir.Number(2), Kind: ir.KindAdd, Source: "ring"},
		{Target: "con", Value: ir.Number(16), Kind: ir.KindSet, Source: "belt"},
	} {
		added, err := e.AddModifier(ctx, id, m)
		require.NoError(t, err)
		stamps = append(stamps, added.AppliedAt)
	}
	require.NoError(t, e.SetValue(ctx, id, "con", ir.Number(12)))

	hash, err := e.SnapshotHash(ctx, id)
	require.NoError(t, err)
	return stamps, hash
}

func TestDeterministicClock_ResetReplaysModifierStamps(t *testing.T) {
	clock := testutil.NewDeterministicClock()

	stamps, hash := buffRun(t, clock)
	assert.Equal(t, []int64{1, 3}, stamps, "each modifier event takes a seq after its stamp")
	assert.Equal(t, int64(5), clock.Current())

	clock.Reset()
	assert.Equal(t, int64(0), clock.Current())

	again, againHash := buffRun(t, clock)
	assert.Equal(t, stamps, again)
	assert.Equal(t, hash, againHash)
}

func TestDeterministicClock_ContinuingWithoutResetChangesStamps(t *testing.T) {
	clock := testutil.NewDeterministicClock()

	_, hash := buffRun(t, clock)
	stamps, next := buffRun(t, clock)
	assert.Equal(t, []int64{6, 8}, stamps)
	assert.NotEqual(t, hash, next)
}

func TestDeterministicClockAt_StampsAfterStart(t *testing.T) {
	stamps, _ := buffRun(t, testutil.NewDeterministicClockAt(41))
	assert.Equal(t, []int64{42, 44}, stamps)
}

func TestDeterministicClock_ConcurrentNextCoversRange(t *testing.T) {
	clock := testutil.NewDeterministicClock()
	const workers, calls = 16, 64

	var wg sync.WaitGroup
	var mu sync.Mutex
	seen := make(map[int64]bool)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < calls; j++ {
				n := clock.Next()
				mu.Lock()
				seen[n] = true
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	require.Len(t, seen, workers*calls)
	for n := int64(1); n <= workers*calls; n++ {
		assert.True(t, seen[n], "missing seq %d", n)
	}
}
