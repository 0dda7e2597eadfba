package lanes

import (
	"fmt"
	goruntime "runtime"
	"sort"
	"sync"

	"github.com/dop251/goja"

	"github.com/joeycumines/golanes/internal/keeperqueue"
)

// Keeper is one of the Universe's dedicated storage runtimes described in
// spec.md §4.2: every Linda operation is serialized through the Keeper
// owning that Linda's group, and every value stored there lives as a copy
// in the keeper's own runtime rather than as a shared pointer into any
// lane's runtime.
type Keeper struct {
	universe *Universe
	index    int

	rt *goja.Runtime

	mu        sync.Mutex
	entries   map[keeperEntryKey]*keeperEntry
	destroyed bool

	gcGate *keeperqueue.Gate
}

type keeperEntryKey struct {
	linda uint64
	key   any
}

type keeperEntry struct {
	queue      []goja.Value
	limit      int // -1 means unlimited
	restricted Restriction
}

func newKeeper(u *Universe, index int) (*Keeper, error) {
	rt := goja.New()
	if err := u.runOnStateCreate(rt); err != nil {
		return nil, fmt.Errorf("lanes: keeper %d on_state_create: %w", index, err)
	}
	ext := u.stateExtensions(rt)
	ext.isKeeper = true

	k := &Keeper{
		universe: u,
		index:    index,
		rt:       rt,
		entries:  make(map[keeperEntryKey]*keeperEntry),
		gcGate:   keeperqueue.NewGate(u.opts.keepersGCThreshold, u.opts.linedaDefaultWakePeriod),
	}
	return k, nil
}

// protectedCall is this port's stand-in for spec.md §7's ProtectedCall:
// every Keeper entry point runs through it so a panicking conversion hook
// or corrupted entry surfaces as a KeeperError instead of killing whatever
// goroutine happened to be calling in.
func (k *Keeper) protectedCall(op string, key any, fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &KeeperError{Op: op, Key: key, Recover: r}
		}
	}()
	return fn()
}

func (k *Keeper) entryFor(obfID uint64, key any, createIfAbsent bool) *keeperEntry {
	ek := keeperEntryKey{linda: obfID, key: key}
	e, ok := k.entries[ek]
	if !ok {
		if !createIfAbsent {
			return nil
		}
		e = &keeperEntry{limit: -1}
		k.entries[ek] = e
	}
	return e
}

func (e *keeperEntry) status() CapacityStatus {
	if e.limit < 0 {
		return CapacityUnder
	}
	switch {
	case len(e.queue) > e.limit:
		return CapacityOver
	case len(e.queue) == e.limit:
		return CapacityExact
	default:
		return CapacityUnder
	}
}

func (e *keeperEntry) checkRestriction(op string) error {
	switch e.restricted {
	case RestrictSetGet:
		if op == "send" || op == "receive" {
			return &RestrictionError{Operation: op, Mode: e.restricted}
		}
	case RestrictSendReceive:
		if op == "set" || op == "get" {
			return &RestrictionError{Operation: op, Mode: e.restricted}
		}
	}
	return nil
}

// trySend appends v to key's queue iff doing so would not push the queue
// past its limit. It reports whether the value was accepted and the
// resulting capacity status.
func (k *Keeper) trySend(obfID uint64, key any, v goja.Value) (CapacityStatus, bool, error) {
	var (
		status  CapacityStatus
		pushed  bool
	)
	err := k.protectedCall("send", key, func() error {
		k.mu.Lock()
		defer k.mu.Unlock()
		if k.destroyed {
			return fmt.Errorf("lanes: keeper destroyed")
		}
		e := k.entryFor(obfID, key, true)
		if err := e.checkRestriction("send"); err != nil {
			return err
		}
		if e.limit >= 0 && len(e.queue) >= e.limit {
			status = e.status()
			return nil
		}
		e.queue = append(e.queue, v)
		pushed = true
		status = e.status()
		k.afterMutation()
		return nil
	})
	return status, pushed, err
}

// tryReceiveMany scans keys in argument order and pops up to n values (n<=0
// means 1) from the first one with anything queued (spec.md §4.2
// `receive(keys…, n?)`: "prefering keys in argument order"). matchedIdx is
// -1 if nothing was available under any key.
func (k *Keeper) tryReceiveMany(obfID uint64, keys []any, n int) (matchedIdx int, values []goja.Value, err error) {
	if n <= 0 {
		n = 1
	}
	matchedIdx = -1
	err = k.protectedCall("receive", keys, func() error {
		k.mu.Lock()
		defer k.mu.Unlock()
		if k.destroyed {
			return fmt.Errorf("lanes: keeper destroyed")
		}
		for i, key := range keys {
			e := k.entryFor(obfID, key, false)
			if e == nil {
				continue
			}
			if err := e.checkRestriction("receive"); err != nil {
				return err
			}
			if len(e.queue) == 0 {
				continue
			}
			take := n
			if take > len(e.queue) {
				take = len(e.queue)
			}
			values = append([]goja.Value(nil), e.queue[:take]...)
			e.queue = e.queue[take:]
			matchedIdx = i
			k.afterMutation()
			return nil
		}
		return nil
	})
	return matchedIdx, values, err
}

// set replaces key's entire queue with values, reporting whether anything
// queued was displaced and the resulting capacity status (spec.md §4.2
// `set`). Setting zero values on a key with no sticky limit deletes the
// entry entirely, matching "setting zero values with no prior limit
// deletes the key".
func (k *Keeper) set(obfID uint64, key any, values []goja.Value) (displaced bool, status CapacityStatus, err error) {
	err = k.protectedCall("set", key, func() error {
		k.mu.Lock()
		defer k.mu.Unlock()
		if k.destroyed {
			return fmt.Errorf("lanes: keeper destroyed")
		}
		e := k.entryFor(obfID, key, true)
		if err := e.checkRestriction("set"); err != nil {
			return err
		}
		displaced = len(e.queue) > 0
		if len(values) == 0 && e.limit < 0 {
			ek := keeperEntryKey{linda: obfID, key: key}
			delete(k.entries, ek)
			status = CapacityUnder
			k.afterMutation()
			return nil
		}
		e.queue = append([]goja.Value(nil), values...)
		status = e.status()
		k.afterMutation()
		return nil
	})
	return displaced, status, err
}

// get peeks up to count values from the head of key's queue without
// removing them (spec.md §4.2 `get`). count <= 0 means "all".
func (k *Keeper) get(obfID uint64, key any, count int) ([]goja.Value, error) {
	var out []goja.Value
	err := k.protectedCall("get", key, func() error {
		k.mu.Lock()
		defer k.mu.Unlock()
		if k.destroyed {
			return fmt.Errorf("lanes: keeper destroyed")
		}
		e := k.entryFor(obfID, key, false)
		if e == nil {
			return nil
		}
		if err := e.checkRestriction("get"); err != nil {
			return err
		}
		n := len(e.queue)
		if count > 0 && count < n {
			n = count
		}
		out = append([]goja.Value(nil), e.queue[:n]...)
		return nil
	})
	return out, err
}

func (k *Keeper) count(obfID uint64, key any) (int, error) {
	var n int
	err := k.protectedCall("count", key, func() error {
		k.mu.Lock()
		defer k.mu.Unlock()
		if e := k.entryFor(obfID, key, false); e != nil {
			n = len(e.queue)
		}
		return nil
	})
	return n, err
}

// countKeys implements the three forms of spec.md §4.2 `count(key?)`: no
// keys reports how many distinct keys this linda currently has entries for;
// one key reports that key's size; more than one reports a map of each
// requested key to its size.
func (k *Keeper) countKeys(obfID uint64, keys []any) (total int, single int, multi map[any]int, err error) {
	err = k.protectedCall("count", keys, func() error {
		k.mu.Lock()
		defer k.mu.Unlock()
		switch len(keys) {
		case 0:
			for ek := range k.entries {
				if ek.linda == obfID {
					total++
				}
			}
		case 1:
			if e := k.entryFor(obfID, keys[0], false); e != nil {
				single = len(e.queue)
			}
		default:
			multi = make(map[any]int, len(keys))
			for _, key := range keys {
				n := 0
				if e := k.entryFor(obfID, key, false); e != nil {
					n = len(e.queue)
				}
				multi[key] = n
			}
		}
		return nil
	})
	return total, single, multi, err
}

// limit reads or sets key's capacity (spec.md §4.2 `limit(key, n?)`): n nil
// means "read only". It always reports the previous limit and the fill
// status after whatever change (if any) was applied.
func (k *Keeper) limit(obfID uint64, key any, n *int) (previous int, status CapacityStatus, err error) {
	err = k.protectedCall("limit", key, func() error {
		k.mu.Lock()
		defer k.mu.Unlock()
		if k.destroyed {
			return fmt.Errorf("lanes: keeper destroyed")
		}
		e := k.entryFor(obfID, key, true)
		previous = e.limit
		if n != nil {
			e.limit = *n
			k.afterMutation()
		}
		status = e.status()
		return nil
	})
	return previous, status, err
}

// restrict reads or sets key's access restriction (spec.md §4.2
// `restrict(key, mode?)`): mode nil means "read only". It always reports
// the restriction in effect before this call.
func (k *Keeper) restrict(obfID uint64, key any, mode *Restriction) (previous Restriction, err error) {
	err = k.protectedCall("restrict", key, func() error {
		k.mu.Lock()
		defer k.mu.Unlock()
		if k.destroyed {
			return fmt.Errorf("lanes: keeper destroyed")
		}
		e := k.entryFor(obfID, key, true)
		previous = e.restricted
		if mode != nil {
			e.restricted = *mode
		}
		return nil
	})
	return previous, err
}

// dump snapshots every entry belonging to the Linda identified by obfID,
// sorted by key for deterministic debug output (spec.md §4.2 `dump()`).
func (k *Keeper) dump(obfID uint64) ([]LindaDumpEntry, error) {
	var out []LindaDumpEntry
	err := k.protectedCall("dump", obfID, func() error {
		k.mu.Lock()
		defer k.mu.Unlock()
		for ek, e := range k.entries {
			if ek.linda != obfID {
				continue
			}
			out = append(out, LindaDumpEntry{
				Key:         ek.key,
				Count:       len(e.queue),
				Limit:       e.limit,
				Restriction: e.restricted,
			})
		}
		return nil
	})
	sort.Slice(out, func(i, j int) bool {
		return fmt.Sprint(out[i].Key) < fmt.Sprint(out[j].Key)
	})
	return out, err
}

// destructLinda removes every entry belonging to a single Linda (spec.md
// §4.2 `destruct`, called when a Linda's last handle is collected).
func (k *Keeper) destructLinda(obfID uint64) {
	k.mu.Lock()
	defer k.mu.Unlock()
	for ek := range k.entries {
		if ek.linda == obfID {
			delete(k.entries, ek)
		}
	}
}

// destroyAll tears down every entry in this keeper, called once from
// Universe.Shutdown.
func (k *Keeper) destroyAll() {
	k.mu.Lock()
	defer k.mu.Unlock()
	k.destroyed = true
	k.entries = nil
	k.universe.forgetState(k.rt)
}

// afterMutation runs collectgarbage() opportunistically, gated by the
// configured keepers_gc_threshold (see internal/keeperqueue). goja exposes
// no per-runtime collection hook, so the nearest available analog is a
// process-wide runtime.GC() pass; gating it behind the catrate-debounced
// threshold keeps this from happening on every single mutation the way an
// ungated call would. Must be called with k.mu held.
func (k *Keeper) afterMutation() {
	if k.gcGate.Record() {
		go goruntime.GC()
	}
}
