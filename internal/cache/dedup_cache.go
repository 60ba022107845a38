package cache

import (
	"fmt"
	"time"

	"github.com/patrickmn/go-cache"

	"github.com/utrading/utrading-pod-stream/pkg/logger"
)

// DedupCache remembers which bids were already relayed. Entries expire after
// ttl; the janitor runs at twice ttl.
type DedupCache struct {
	cache *cache.Cache
	ttl   time.Duration
}

func NewDedupCache(ttl time.Duration) *DedupCache {
	return &DedupCache{
		cache: cache.New(ttl, ttl*2),
		ttl:   ttl,
	}
}

// SeenOrMark reports whether txHash was already marked and marks it if not.
// It is atomic across goroutines.
func (c *DedupCache) SeenOrMark(txHash string) bool {
	return c.cache.Add(txHash, struct{}{}, cache.DefaultExpiration) != nil
}

func (c *DedupCache) IsSeen(txHash string) bool {
	_, exists := c.cache.Get(txHash)
	return exists
}

func (c *DedupCache) Mark(txHash string) {
	c.cache.Set(txHash, struct{}{}, cache.DefaultExpiration)
}

// TxHashSource lists tx hashes archived since a point in time.
type TxHashSource interface {
	TxHashesSince(since time.Time) ([]string, error)
}

// LoadFromDB marks every hash archived within the ttl window, so a restart
// does not relay the same bids twice.
func (c *DedupCache) LoadFromDB(src TxHashSource) error {
	if src == nil {
		return fmt.Errorf("tx hash source is nil")
	}

	hashes, err := src.TxHashesSince(time.Now().Add(-c.ttl))
	if err != nil {
		return fmt.Errorf("load archived tx hashes: %w", err)
	}
	for _, h := range hashes {
		c.Mark(h)
	}

	logger.Info().
		Int("count", len(hashes)).
		Dur("window", c.ttl).
		Msg("loaded archived bids into dedup cache")
	return nil
}

func (c *DedupCache) Stats() map[string]any {
	return map[string]any{
		"item_count":  c.cache.ItemCount(),
		"ttl_minutes": c.ttl.Minutes(),
	}
}
