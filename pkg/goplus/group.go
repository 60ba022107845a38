package goplus

import (
	"sync"
	"sync/atomic"
)

var (
	defaultGroup     *Group
	defaultGroupOnce sync.Once
)

// DefaultGroup is the process-wide group used by Go.
func DefaultGroup() *Group {
	defaultGroupOnce.Do(func() {
		defaultGroup = &Group{}
	})
	return defaultGroup
}

// Go runs fn on a new goroutine in the default group. A panic in fn is
// logged and swallowed.
func Go(fn func()) {
	DefaultGroup().Go(fn)
}

// Wait blocks until every goroutine started by Go has returned.
func Wait() {
	DefaultGroup().Wait()
}

// Group tracks panic-safe goroutines.
type Group struct {
	wg      sync.WaitGroup
	running atomic.Int64
}

func (g *Group) Go(fn func()) {
	g.running.Add(1)
	g.wg.Add(1)
	go func() {
		defer func() {
			g.running.Add(-1)
			g.wg.Done()
		}()
		defer Recover()
		fn()
	}()
}

// Running reports how many goroutines of the group have not returned yet.
func (g *Group) Running() int64 {
	return g.running.Load()
}

func (g *Group) Wait() {
	g.wg.Wait()
}
