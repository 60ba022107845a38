package cleaner

import (
	"sync"
	"time"

	"github.com/utrading/utrading-pod-stream/internal/monitor"
	"github.com/utrading/utrading-pod-stream/pkg/goplus"
	"github.com/utrading/utrading-pod-stream/pkg/logger"
)

// Store deletes archived bids created before cutoff. *dao.BidDAO implements it.
type Store interface {
	DeleteOlderThan(cutoff time.Time) (int64, error)
}

// Cleaner prunes the bid archive on a fixed interval, keeping the last
// retention window.
type Cleaner struct {
	store     Store
	retention time.Duration
	interval  time.Duration
	now       func() time.Time
	done      chan struct{}
	stopOnce  sync.Once
	wg        sync.WaitGroup
}

func NewCleaner(store Store, retention, interval time.Duration) *Cleaner {
	if retention <= 0 {
		retention = 24 * time.Hour
	}
	if interval <= 0 {
		interval = time.Hour
	}
	return &Cleaner{
		store:     store,
		retention: retention,
		interval:  interval,
		now:       time.Now,
		done:      make(chan struct{}),
	}
}

// Start runs one pass immediately, then one per interval until Stop.
func (c *Cleaner) Start() {
	c.wg.Add(1)
	goplus.Go(func() {
		defer c.wg.Done()
		ticker := time.NewTicker(c.interval)
		defer ticker.Stop()

		logger.Info().Dur("retention", c.retention).Dur("interval", c.interval).Msg("cleaner started")
		c.clean()

		for {
			select {
			case <-ticker.C:
				c.clean()
			case <-c.done:
				logger.Info().Msg("cleaner stopped")
				return
			}
		}
	})
}

func (c *Cleaner) Stop() {
	c.stopOnce.Do(func() { close(c.done) })
	c.wg.Wait()
}

func (c *Cleaner) clean() {
	cutoff := c.now().Add(-c.retention)
	deleted, err := c.store.DeleteOlderThan(cutoff)
	if err != nil {
		logger.Error().Err(err).Time("cutoff", cutoff).Msg("clean archived bids failed")
		return
	}
	if deleted > 0 {
		monitor.AddArchiveRowsDeleted(deleted)
		logger.Info().
			Int64("deleted", deleted).
			Time("cutoff", cutoff).
			Msg("cleaned archived bids")
	}
}
