package concurrent

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMapLenTracksEntries(t *testing.T) {
	var m Map[string, int]

	assert.False(t, m.Store("a", 1))
	assert.True(t, m.Store("a", 2))
	m.Store("b", 3)
	assert.Equal(t, int64(2), m.Len())

	v, ok := m.Load("a")
	assert.True(t, ok)
	assert.Equal(t, 2, v)

	v, ok = m.LoadAndDelete("a")
	assert.True(t, ok)
	assert.Equal(t, 2, v)
	_, ok = m.LoadAndDelete("a")
	assert.False(t, ok)

	m.Delete("missing")
	assert.Equal(t, int64(1), m.Len())

	got := map[string]int{}
	for k, v := range m.All() {
		got[k] = v
	}
	assert.Equal(t, map[string]int{"b": 3}, got)
}

func TestMapConcurrentStore(t *testing.T) {
	var m Map[int, int]
	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 100; i++ {
				m.Store(i, g)
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, int64(100), m.Len())
}
