package testutil

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSequentialIDGenerator_Sequence(t *testing.T) {
	gen := NewSequentialIDGenerator("mod")

	assert.Equal(t, "mod-1", gen.Generate())
	assert.Equal(t, "mod-2", gen.Generate())
	assert.Equal(t, "mod-3", gen.Generate())
}

func TestSequentialIDGenerator_DefaultPrefix(t *testing.T) {
	assert.Equal(t, "id-1", NewSequentialIDGenerator("").Generate())
}

func TestSequentialIDGenerator_ThreadSafe(t *testing.T) {
	gen := NewSequentialIDGenerator("x")
	seen := make(map[string]bool)
	var mu sync.Mutex
	var wg sync.WaitGroup

	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				id := gen.Generate()
				mu.Lock()
				seen[id] = true
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Len(t, seen, 1000)
}

func TestDiceSequence_ScriptedFaces(t *testing.T) {
	src := NewDiceSequence(20, 1, 7)

	assert.Equal(t, 19, src.IntN(20))
	assert.Equal(t, 0, src.IntN(20))
	assert.Equal(t, 5, src.IntN(6), "face above the die clamps to the top face")
	assert.Equal(t, 19, src.IntN(20), "script wraps")
	assert.Equal(t, 4, src.Calls())
}

func TestDiceSequence_DefaultRollsOne(t *testing.T) {
	src := NewDiceSequence()
	assert.Equal(t, 0, src.IntN(6))
}
