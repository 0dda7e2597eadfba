// Package keeperqueue adapts catrate's sliding-window rate limiter into a
// debounce gate for a Keeper's keepers_gc_threshold option: raw mutation
// counting decides when the threshold has been reached, and catrate decides
// whether enough wall-clock time has passed since the last collection to
// actually let it run, so a burst of back-to-back threshold crossings
// doesn't thrash collectgarbage().
package keeperqueue

import (
	"sync/atomic"
	"time"

	"github.com/joeycumines/go-catrate"
)

// Gate tracks per-keeper mutation counts against a configured threshold.
type Gate struct {
	threshold int64
	count     atomic.Int64
	limiter   *catrate.Limiter
}

// NewGate builds a Gate. A threshold <= 0 disables gc-threshold triggering
// entirely (Should always reports false), matching keepers_gc_threshold's
// "0 disables" semantics.
func NewGate(threshold int, minInterval time.Duration) *Gate {
	g := &Gate{threshold: int64(threshold)}
	if threshold > 0 {
		if minInterval <= 0 {
			minInterval = time.Second
		}
		g.limiter = catrate.NewLimiter(map[time.Duration]int{minInterval: 1})
	}
	return g
}

// Record accounts for one mutation, reporting whether the keeper should now
// attempt collectgarbage(): the raw count has reached the threshold, and
// the debounce window has elapsed since the last time this returned true.
func (g *Gate) Record() bool {
	if g.threshold <= 0 {
		return false
	}
	n := g.count.Add(1)
	if n < g.threshold {
		return false
	}
	if _, ok := g.limiter.Allow("gc"); !ok {
		return false
	}
	g.count.Add(-n)
	return true
}
