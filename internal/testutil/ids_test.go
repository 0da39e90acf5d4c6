package testutil

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSequentialIDGenerator(t *testing.T) {
	gen := NewSequentialIDGenerator("toggle")

	assert.Equal(t, "toggle-1", gen.Generate())
	assert.Equal(t, "toggle-2", gen.Generate())

	gen.Reset()
	assert.Equal(t, "toggle-1", gen.Generate())
}

func TestSequentialIDGenerator_DefaultPrefix(t *testing.T) {
	gen := NewSequentialIDGenerator("")
	assert.Equal(t, "actor-1", gen.Generate())
}

func TestSequentialIDGenerator_ThreadSafe(t *testing.T) {
	gen := NewSequentialIDGenerator("a")

	var (
		mu   sync.Mutex
		seen = make(map[string]bool)
		wg   sync.WaitGroup
	)
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

	assert.Len(t, seen, 1000, "every ID is unique")
}

func TestFixedIDGenerator(t *testing.T) {
	gen := NewFixedIDGenerator("x", "y")

	assert.Equal(t, "x", gen.Generate())
	assert.Equal(t, "y", gen.Generate())
	assert.PanicsWithValue(t, "FixedIDGenerator: all IDs exhausted", func() {
		gen.Generate()
	})
}
