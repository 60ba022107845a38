package cache

import (
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDedupCache_IsSeen(t *testing.T) {
	cache := NewDedupCache(30 * time.Second)

	assert.False(t, cache.IsSeen("0x01"))
	cache.Mark("0x01")
	assert.True(t, cache.IsSeen("0x01"))
	assert.False(t, cache.IsSeen("0x02"))
}

func TestDedupCache_TTL(t *testing.T) {
	cache := NewDedupCache(100 * time.Millisecond)

	cache.Mark("0x01")
	assert.True(t, cache.IsSeen("0x01"))

	time.Sleep(150 * time.Millisecond)
	assert.False(t, cache.IsSeen("0x01"))
}

func TestDedupCache_SeenOrMarkConcurrent(t *testing.T) {
	cache := NewDedupCache(30 * time.Second)
	var first atomic.Int32
	var wg sync.WaitGroup

	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if !cache.SeenOrMark("0xdup") {
				first.Add(1)
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(1), first.Load())
}

type fakeSource struct {
	hashes []string
	err    error
	since  time.Time
}

func (f *fakeSource) TxHashesSince(since time.Time) ([]string, error) {
	f.since = since
	return f.hashes, f.err
}

func TestDedupCache_LoadFromDB(t *testing.T) {
	cache := NewDedupCache(10 * time.Minute)
	src := &fakeSource{hashes: []string{"0xa", "0xb"}}

	require.NoError(t, cache.LoadFromDB(src))
	assert.True(t, cache.IsSeen("0xa"))
	assert.True(t, cache.IsSeen("0xb"))
	assert.WithinDuration(t, time.Now().Add(-10*time.Minute), src.since, time.Second)

	assert.Error(t, cache.LoadFromDB(nil))
	assert.Error(t, cache.LoadFromDB(&fakeSource{err: errors.New("db down")}))
}

func TestDedupCache_Stats(t *testing.T) {
	cache := NewDedupCache(5 * time.Minute)
	cache.Mark("0x1")
	cache.Mark("0x2")
	cache.Mark("0x3")

	stats := cache.Stats()
	assert.Equal(t, 3, stats["item_count"])
	assert.Equal(t, 5.0, stats["ttl_minutes"])
}

func BenchmarkDedupCache_SeenOrMark(b *testing.B) {
	cache := NewDedupCache(30 * time.Minute)
	hashes := make([]string, 1024)
	for i := range hashes {
		hashes[i] = string(rune('a'+i%26)) + time.Duration(i).String()
	}
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		cache.SeenOrMark(hashes[i%len(hashes)])
	}
}
