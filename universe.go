package lanes

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dop251/goja"

	"github.com/joeycumines/golanes/copier"
)

// Universe is the process-wide singleton container described in spec.md
// §3: it owns the keepers array, the lane tracker, the self-destruct list,
// and the resolved configuration every Lane and Keeper is created against.
//
// A Universe is created by [Configure] and is safe for concurrent use by
// any number of lanes.
type Universe struct {
	opts *universeOptions

	// keepers is the fixed-size array described in spec.md §3: index 0 is
	// always the default keeper; indices [1, nbUserKeepers] are the
	// configured extras. Sized once, at Configure time, and never resized.
	keepers []*Keeper

	// timerLinda is allocated iff opts.withTimers; it reserves keeper
	// group 0 for timer use but, per SPEC_FULL.md §4, this package does not
	// ship a timer *driver* lane (explicitly out of scope, spec.md §1).
	timerLinda *Linda

	// tracker is the intrusive lane-tracker list, active only when
	// track_lanes is enabled.
	trackerMu sync.Mutex
	tracker   []*Lane
	tracking  atomic.Bool

	// selfDestruct holds lanes whose user handle was collected while the
	// lane was still running; Shutdown hard-cancels everything here.
	selfDestructMu      sync.Mutex
	selfDestruct        []*Lane
	selfDestructCleanup atomic.Int32

	// requireMu is not locked anywhere in this package. Unlike the
	// original's recursive mutex, it is not re-entrant.
	requireMu sync.Mutex

	nextMetatableID atomic.Uint64
	nextLindaID     atomic.Uint64

	deep *deepRegistry

	// states maps every live runtime this Universe knows of (lane runtimes,
	// keepers, and caller runtimes first seen by copyValues) to its sidecar
	// extension record.
	statesMu sync.Mutex
	states   map[*goja.Runtime]*stateExt

	// alloc sources the inter-copy engine's per-call copy cache (see
	// alloc.go's copyCachePool/protectedCopyCachePool and copybridge.go's
	// copyValues); non-nil for every Universe, optionally mutex-serialized
	// when WithProtectedAllocator(true) is configured.
	alloc copier.Allocator

	closeOnce sync.Once
}

// Configure creates a new Universe, validating every option eagerly
// (spec.md §6: "Unknown keys, wrong types, out-of-range numbers: fatal at
// configure time"). Each ConfigOption either mutates validated
// configuration or returns a *ConfigError.
func Configure(opts ...ConfigOption) (*Universe, error) {
	o, err := resolveUniverseOptions(opts)
	if err != nil {
		return nil, err
	}

	var alloc copier.Allocator = newCopyCachePool()
	if o.allocatorProtected {
		alloc = newProtectedCopyCachePool(alloc)
	}

	u := &Universe{
		opts:   o,
		states: make(map[*goja.Runtime]*stateExt),
		alloc:  alloc,
		deep:   newDeepRegistry(),
	}
	u.tracking.Store(o.trackLanes)

	u.keepers = make([]*Keeper, 1+o.nbUserKeepers)
	for i := range u.keepers {
		k, err := newKeeper(u, i)
		if err != nil {
			return nil, err
		}
		u.keepers[i] = k
	}

	if o.withTimers {
		l, err := newLinda(u, "lanes-timer", 0, o.linedaDefaultWakePeriod)
		if err != nil {
			return nil, err
		}
		u.timerLinda = l
	}

	return u, nil
}

// Keeper returns the keeper at the given group index, or nil if out of
// range.
func (u *Universe) Keeper(group int) *Keeper {
	if group < 0 || group >= len(u.keepers) {
		return nil
	}
	return u.keepers[group]
}

// NbKeepers returns the total number of keepers (1 default + configured
// extras).
func (u *Universe) NbKeepers() int { return len(u.keepers) }

// TimerLinda returns the reserved group-0 timer Linda, or nil if
// with_timers is disabled. No timer driver lane is implemented; see
// SPEC_FULL.md §4.
func (u *Universe) TimerLinda() *Linda { return u.timerLinda }

// NewLinda creates a user-facing Linda bound to the keeper at the given
// group index (spec.md §3: "every Linda has exactly one Keeper for its
// entire lifetime"). group must be a valid index into the Universe's
// keepers array (0 is always the default keeper).
func (u *Universe) NewLinda(name string, group int) (*Linda, error) {
	return newLinda(u, name, group, u.opts.linedaDefaultWakePeriod)
}

// runOnStateCreate invokes the configured on_state_create hook, if any, on
// a freshly built runtime (lane or keeper).
func (u *Universe) runOnStateCreate(rt *goja.Runtime) error {
	if u.opts.onStateCreate == nil {
		return nil
	}
	return u.opts.onStateCreate(rt)
}

// track registers l on the lane tracker, if track_lanes is enabled.
func (u *Universe) track(l *Lane) {
	if !u.tracking.Load() {
		return
	}
	u.trackerMu.Lock()
	defer u.trackerMu.Unlock()
	u.tracker = append(u.tracker, l)
}

// untrack removes l from the lane tracker, if present.
func (u *Universe) untrack(l *Lane) {
	if !u.tracking.Load() {
		return
	}
	u.trackerMu.Lock()
	defer u.trackerMu.Unlock()
	for i, t := range u.tracker {
		if t == l {
			u.tracker = append(u.tracker[:i], u.tracker[i+1:]...)
			return
		}
	}
}

// TrackedLanes returns a snapshot of currently-tracked lanes. Empty unless
// track_lanes was enabled at Configure time.
func (u *Universe) TrackedLanes() []*Lane {
	u.trackerMu.Lock()
	defer u.trackerMu.Unlock()
	out := make([]*Lane, len(u.tracker))
	copy(out, u.tracker)
	return out
}

// abandon moves l onto the self-destruct list: its user handle was
// collected while status was still non-terminal, so the lane keeps running
// free (spec.md §4.4 "Self-destruct").
func (u *Universe) abandon(l *Lane) {
	u.selfDestructMu.Lock()
	defer u.selfDestructMu.Unlock()
	u.selfDestruct = append(u.selfDestruct, l)
}

func (u *Universe) disown(l *Lane) {
	u.selfDestructMu.Lock()
	defer u.selfDestructMu.Unlock()
	for i, t := range u.selfDestruct {
		if t == l {
			u.selfDestruct = append(u.selfDestruct[:i], u.selfDestruct[i+1:]...)
			return
		}
	}
}

// Shutdown hard-cancels every still-running self-destructed lane, waiting
// up to shutdown_timeout for them to reach a terminal state. Lanes that are
// only on the tracker are not cancelled. Lanes that overrun the timeout are
// logged and left to
// run; per spec.md §4.4, "any surviving thread will eventually crash and
// that is the user's fault."
func (u *Universe) Shutdown(ctx context.Context) {
	u.closeOnce.Do(func() {
		deadline := time.Now().Add(u.opts.shutdownTimeout)
		if ctxDeadline, ok := ctx.Deadline(); ok && ctxDeadline.Before(deadline) {
			deadline = ctxDeadline
		}

		u.selfDestructMu.Lock()
		dangling := append([]*Lane(nil), u.selfDestruct...)
		u.selfDestructMu.Unlock()

		done := make(chan struct{})
		go func() {
			var wg sync.WaitGroup
			wg.Add(len(dangling))
			for _, l := range dangling {
				l := l
				go func() {
					defer wg.Done()
					if outcome, _ := l.Cancel(CancelHard, time.Until(deadline), true); outcome == CancelOutcomeTimeout {
						u.selfDestructCleanup.Add(1)
					}
				}()
			}
			wg.Wait()
			close(done)
		}()

		select {
		case <-done:
		case <-ctx.Done():
		}

		for _, k := range u.keepers {
			k.destroyAll()
		}

		getLogger().Debug().
			Int("dangling", len(dangling)).
			Int("overrun", int(u.selfDestructCleanup.Load())).
			Log("universe shutdown complete")
	})
}
