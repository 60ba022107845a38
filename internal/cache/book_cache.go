package cache

import (
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/utrading/utrading-pod-stream/internal/schema"
)

// BookCache keeps the latest orderbook snapshot per CLOB, evicting the least
// recently updated CLOB when full.
type BookCache struct {
	mu    sync.Mutex
	books *lru.Cache[string, schema.OrderbookUpdate]
}

func NewBookCache(size int) (*BookCache, error) {
	books, err := lru.New[string, schema.OrderbookUpdate](size)
	if err != nil {
		return nil, err
	}
	return &BookCache{books: books}, nil
}

// Update stores u unless a snapshot with a newer timestamp is already held.
// It reports whether u was stored.
func (c *BookCache) Update(u schema.OrderbookUpdate) bool {
	key := u.ClobID.Hex()
	c.mu.Lock()
	defer c.mu.Unlock()

	if prev, ok := c.books.Peek(key); ok && prev.Timestamp > u.Timestamp {
		return false
	}
	c.books.Add(key, u)
	return true
}

func (c *BookCache) Get(clobID string) (schema.OrderbookUpdate, bool) {
	if id, ok := schema.NormalizeHash(clobID); ok {
		clobID = id
	}
	return c.books.Get(clobID)
}

func (c *BookCache) Len() int {
	return c.books.Len()
}

// TopOfBook is the best bid and ask of one CLOB in decimal form.
type TopOfBook struct {
	BestBid   string `json:"best_bid,omitempty"`
	BestAsk   string `json:"best_ask,omitempty"`
	Spread    string `json:"spread,omitempty"`
	Timestamp uint64 `json:"timestamp"`
}

// Snapshot summarises every cached CLOB.
func (c *BookCache) Snapshot() map[string]TopOfBook {
	out := make(map[string]TopOfBook, c.books.Len())
	for _, key := range c.books.Keys() {
		u, ok := c.books.Peek(key)
		if !ok {
			continue
		}
		top := TopOfBook{Timestamp: u.Timestamp}
		if b, ok := u.BestBid(); ok {
			top.BestBid = b.Price.Dec()
		}
		if a, ok := u.BestAsk(); ok {
			top.BestAsk = a.Price.Dec()
		}
		if s := u.Spread(); s != nil {
			top.Spread = s.String()
		}
		out[key] = top
	}
	return out
}
