package lanes

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dop251/goja"

	"github.com/joeycumines/golanes/copier"
)

// lindaNameEmbedLen mirrors the original's LINDA_KEEPER_HASH_LEN /
// embedded-name length of 24 bytes. Go strings need no such fixed-capacity
// buffer, but the constant is kept as documentation of the name's intended
// maximum useful length for diagnostics (Name() truncates beyond this).
const lindaNameEmbedLen = 24

// lindaObfuscationKey is the XOR constant the original uses to obscure a
// Linda's raw pointer identity before it is used as a keeper-side lookup
// key, so script code holding only a Linda value can't forge another
// Linda's identity by guessing small integers (original_source/src/linda.hpp).
const lindaObfuscationKey = 0x7B8AA1F99A3BD782

// WakeTarget selects which side of a blocked Send/Receive pair gets woken.
type WakeTarget int

const (
	WakeRead WakeTarget = iota
	WakeWrite
	WakeBoth
)

// Linda is the rendezvous/mailbox object described in spec.md §4.3: a FIFO
// channel per user key, with capacity limits and access restrictions,
// backed by the Keeper owning this Linda's group.
type Linda struct {
	universe   *Universe
	name       string
	group      int
	wakePeriod time.Duration
	id         uint64 // raw identity, obfuscated before reaching the keeper

	wakeMu  sync.Mutex
	readCh  chan struct{}
	writeCh chan struct{}

	cancelMode atomic.Int32 // LindaCancelMode

	deepMu         sync.Mutex
	deepID         uint64
	deepRegistered bool
}

func newLinda(u *Universe, name string, group int, wakePeriod time.Duration) (*Linda, error) {
	if u.Keeper(group) == nil {
		return nil, &ConfigError{Option: "linda_group", Message: fmt.Sprintf("group %d has no keeper", group)}
	}
	ln := &Linda{
		universe:   u,
		name:       name,
		group:      group,
		wakePeriod: wakePeriod,
		id:         u.nextLindaID.Add(1),
		readCh:     make(chan struct{}),
		writeCh:    make(chan struct{}),
	}
	return ln, nil
}

// Name returns the Linda's debug name, truncated to lindaNameEmbedLen for
// display purposes.
func (ln *Linda) Name() string {
	if len(ln.name) > lindaNameEmbedLen {
		return ln.name[:lindaNameEmbedLen]
	}
	return ln.name
}

// obfuscatedID is the value actually used as the keeper-side key prefix.
func (ln *Linda) obfuscatedID() uint64 {
	return ln.id ^ lindaObfuscationKey
}

func (ln *Linda) keeper() *Keeper {
	return ln.universe.Keeper(ln.group)
}

func (ln *Linda) wake(target WakeTarget) {
	ln.wakeMu.Lock()
	if target == WakeRead || target == WakeBoth {
		close(ln.readCh)
		ln.readCh = make(chan struct{})
	}
	if target == WakeWrite || target == WakeBoth {
		close(ln.writeCh)
		ln.writeCh = make(chan struct{})
	}
	ln.wakeMu.Unlock()
}

func (ln *Linda) waitFor(target WakeTarget, d time.Duration) {
	ln.wakeMu.Lock()
	var ch chan struct{}
	if target == WakeRead {
		ch = ln.readCh
	} else {
		ch = ln.writeCh
	}
	ln.wakeMu.Unlock()

	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ch:
	case <-t.C:
	}
}

func keyIdentity(key goja.Value) any {
	return key.Export()
}

// Send copies v (and any additional values) from l's runtime into this
// Linda's keeper, blocking up to timeout for capacity to free up if the key
// is at its limit (spec.md §4.3). A zero timeout polls once without
// blocking; a negative timeout blocks indefinitely.
func (ln *Linda) Send(l *Lane, key goja.Value, timeout time.Duration, values ...goja.Value) (CapacityStatus, bool, error) {
	kp := ln.keeper()
	obfID := ln.obfuscatedID()
	keyID := keyIdentity(key)

	deadline := deadlineFrom(timeout)

	l.setWaitingOn(ln)
	l.enterWaiting()
	defer l.exitWaiting()
	defer l.setWaitingOn(nil)

	last := CapacityUnder
	for _, v := range values {
		status, ok, err := ln.sendOne(l, kp, obfID, keyID, v, deadline)
		if err != nil {
			return status, false, err
		}
		if !ok {
			return status, false, nil
		}
		last = status
	}
	return last, true, nil
}

func (ln *Linda) sendOne(l *Lane, kp *Keeper, obfID uint64, keyID any, v goja.Value, deadline time.Time) (CapacityStatus, bool, error) {
	for {
		if cancelRequest(l.cancelReq.Load()) == cancelHard {
			return CapacityUnder, false, ErrCancelled
		}
		if ln.writeCancelled() {
			return CapacityUnder, false, ErrLindaCancelled
		}

		copied, err := ln.universe.copyValues(l.activeRuntime(), kp.rt, copier.DirIntoKeeper, v)
		if err != nil {
			return CapacityUnder, false, err
		}

		status, pushed, err := kp.trySend(obfID, keyID, copied[0])
		if err != nil {
			return status, false, err
		}
		if pushed {
			ln.wake(WakeRead)
			return status, true, nil
		}

		remaining := time.Until(deadline)
		if remaining <= 0 {
			return status, false, nil
		}
		ln.waitFor(WakeWrite, minDuration(remaining, ln.wakePeriod))
	}
}

// ReceiveOne blocks up to timeout waiting for a single value under key,
// returning it copied into l's runtime. ok is false on timeout (spec.md
// §4.3: timeouts are plain (nil,"timeout") values, never errors). It is a
// convenience wrapper around Receive for the common single-key case.
func (ln *Linda) ReceiveOne(l *Lane, key goja.Value, timeout time.Duration) (goja.Value, bool, error) {
	_, values, ok, err := ln.Receive(l, timeout, 1, key)
	if err != nil || !ok {
		return nil, ok, err
	}
	return values[0], true, nil
}

// Receive blocks up to timeout waiting for up to n values (n<=0 means 1)
// under the first of keys that has anything queued, preferring keys in
// argument order (spec.md §4.2/§4.3 `receive(keys…, n?)`). matchedKey
// identifies which key actually yielded values; ok is false on timeout.
func (ln *Linda) Receive(l *Lane, timeout time.Duration, n int, keys ...goja.Value) (matchedKey goja.Value, values []goja.Value, ok bool, err error) {
	kp := ln.keeper()
	obfID := ln.obfuscatedID()
	keyIDs := make([]any, len(keys))
	for i, k := range keys {
		keyIDs[i] = keyIdentity(k)
	}
	deadline := deadlineFrom(timeout)

	l.setWaitingOn(ln)
	l.enterWaiting()
	defer l.exitWaiting()
	defer l.setWaitingOn(nil)

	for {
		if cancelRequest(l.cancelReq.Load()) == cancelHard {
			return nil, nil, false, ErrCancelled
		}
		if ln.readCancelled() {
			return nil, nil, false, ErrLindaCancelled
		}

		idx, vs, err := kp.tryReceiveMany(obfID, keyIDs, n)
		if err != nil {
			return nil, nil, false, err
		}
		if idx >= 0 {
			ln.wake(WakeWrite)
			out, err := ln.universe.copyValues(kp.rt, l.activeRuntime(), copier.DirOutOfKeeper, vs...)
			if err != nil {
				return nil, nil, false, err
			}
			return keys[idx], out, true, nil
		}

		remaining := time.Until(deadline)
		if remaining <= 0 {
			return nil, nil, false, nil
		}
		ln.waitFor(WakeRead, minDuration(remaining, ln.wakePeriod))
	}
}

// Set replaces key's entire stored queue (non-blocking; spec.md §4.3
// `set`), reporting whether a previously-queued value was displaced and
// the resulting capacity status.
func (ln *Linda) Set(l *Lane, key goja.Value, values ...goja.Value) (displaced bool, status CapacityStatus, err error) {
	copied, err := ln.universe.copyValues(l.activeRuntime(), ln.keeper().rt, copier.DirIntoKeeper, values...)
	if err != nil {
		return false, CapacityUnder, err
	}
	displaced, status, err = ln.keeper().set(ln.obfuscatedID(), keyIdentity(key), copied)
	if err == nil {
		ln.wake(WakeBoth)
	}
	return displaced, status, err
}

// Get peeks at most count values under key without removing them
// (count <= 0 means "all").
func (ln *Linda) Get(l *Lane, key goja.Value, count int) ([]goja.Value, error) {
	vs, err := ln.keeper().get(ln.obfuscatedID(), keyIdentity(key), count)
	if err != nil {
		return nil, err
	}
	return ln.universe.copyValues(ln.keeper().rt, l.activeRuntime(), copier.DirOutOfKeeper, vs...)
}

// Count implements spec.md §4.2 `count(key?)`'s three forms: called with no
// keys it reports the number of distinct keys this Linda currently holds
// entries for; with one key it reports that key's queued length; with more
// than one it reports a map from each key's identity to its length.
func (ln *Linda) Count(keys ...goja.Value) (total int, single int, multi map[any]int, err error) {
	ids := make([]any, len(keys))
	for i, k := range keys {
		ids[i] = keyIdentity(k)
	}
	return ln.keeper().countKeys(ln.obfuscatedID(), ids)
}

// Limit reads key's current capacity (n == nil) or sets it (n < 0 means
// unlimited), always returning the previous limit and the fill status that
// now applies (spec.md §4.2 `limit(key, n?)`).
func (ln *Linda) Limit(key goja.Value, n *int) (previous int, status CapacityStatus, err error) {
	previous, status, err = ln.keeper().limit(ln.obfuscatedID(), keyIdentity(key), n)
	if err == nil && n != nil {
		ln.wake(WakeBoth)
	}
	return previous, status, err
}

// Restrict reads key's current access restriction (mode == nil) or sets it,
// always returning the restriction that was in effect before this call
// (spec.md §4.2 `restrict(key, mode?)`).
func (ln *Linda) Restrict(key goja.Value, mode *Restriction) (previous Restriction, err error) {
	return ln.keeper().restrict(ln.obfuscatedID(), keyIdentity(key), mode)
}

// Destruct removes every entry this Linda owns from its keeper, and wakes
// any lane still blocked on it so it re-checks at once instead of at its
// next wake-period tick. A woken Receive finds nothing and keeps waiting
// until its deadline; a woken Send finds the key's limit gone and goes
// through.
func (ln *Linda) Destruct() {
	ln.keeper().destructLinda(ln.obfuscatedID())
	ln.wake(WakeBoth)
}

// Cancel sets which side(s) of this Linda currently reject blocking
// Send/Receive calls with ErrLindaCancelled, and wakes whatever is
// currently blocked on that side so it observes the change immediately
// (spec.md §4.3 `cancel(mode)`). LindaCancelNone clears a prior
// cancellation, returning the Linda to LindaActive.
func (ln *Linda) Cancel(mode LindaCancelMode) {
	ln.cancelMode.Store(int32(mode))
	switch mode {
	case LindaCancelNone:
	case LindaCancelRead:
		ln.wake(WakeRead)
	case LindaCancelWrite:
		ln.wake(WakeWrite)
	default:
		ln.wake(WakeBoth)
	}
}

// Status reports whether this Linda is currently cancelled on either side.
func (ln *Linda) Status() LindaStatus {
	if LindaCancelMode(ln.cancelMode.Load()) == LindaCancelNone {
		return LindaActive
	}
	return LindaCancelled
}

func (ln *Linda) readCancelled() bool {
	switch LindaCancelMode(ln.cancelMode.Load()) {
	case LindaCancelRead, LindaCancelBoth:
		return true
	default:
		return false
	}
}

func (ln *Linda) writeCancelled() bool {
	switch LindaCancelMode(ln.cancelMode.Load()) {
	case LindaCancelWrite, LindaCancelBoth:
		return true
	default:
		return false
	}
}

// Wake manually wakes whatever lane(s) are blocked on target, without
// touching cancellation state (spec.md §4.3 `wake(target)`): a way to
// nudge a blocked Send/Receive to re-check its condition sooner than its
// next wake-period tick, e.g. after an out-of-band state change.
func (ln *Linda) Wake(target WakeTarget) {
	ln.wake(target)
}

// lindaDeepFactory exposes a Linda itself as a deep object (spec.md §4.3:
// "a Linda is itself a deep object and can be passed by handle like any
// other"). It has no usable New: a Linda is always constructed via
// Universe.NewLinda, never conjured directly from a bare deep-object
// proxy.
type lindaDeepFactory struct{}

func (lindaDeepFactory) ModuleName() string { return "linda" }

func (lindaDeepFactory) New() (any, error) {
	return nil, &TransferError{Message: "linda deep objects are not constructed directly"}
}

func (lindaDeepFactory) Bind(rt *goja.Runtime, proxy *goja.Object, state any) error {
	ln := state.(*Linda)
	if err := proxy.Set("name", rt.ToValue(ln.Name())); err != nil {
		return err
	}
	return proxy.Set("group", rt.ToValue(ln.group))
}

// Deep returns a deep-object proxy for this Linda, live in rt, registering
// the Linda into the Universe's deep registry on first call and retaining
// (refcounting) it on every call thereafter, the same way any other deep
// object is shared across runtimes (spec.md §4.3/§4.5).
func (ln *Linda) Deep(rt *goja.Runtime) (goja.Value, error) {
	reg := ln.universe.deep

	ln.deepMu.Lock()
	if !ln.deepRegistered {
		id, do := reg.register(lindaDeepFactory{}, ln)
		ln.deepID = id
		ln.deepRegistered = true
		ln.deepMu.Unlock()
		return reg.buildProxy(rt, id, do)
	}
	id := ln.deepID
	ln.deepMu.Unlock()

	return reg.Retain(rt, id)
}

// LindaDumpEntry is one key's snapshot as reported by Linda.Dump.
type LindaDumpEntry struct {
	Key         any
	Count       int
	Limit       int
	Restriction Restriction
}

// Dump snapshots every key this Linda currently holds entries for, sorted
// by key for deterministic debug output (spec.md §4.2 `dump()`).
func (ln *Linda) Dump() ([]LindaDumpEntry, error) {
	return ln.keeper().dump(ln.obfuscatedID())
}

func deadlineFrom(timeout time.Duration) time.Time {
	if timeout < 0 {
		return time.Now().Add(365 * 24 * time.Hour)
	}
	return time.Now().Add(timeout)
}

func minDuration(a, b time.Duration) time.Duration {
	if a < b {
		return a
	}
	return b
}
