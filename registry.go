package lanes

import (
	"sync"

	"github.com/dop251/goja"
)

// Reserved, documented identifiers for the pieces of the original's static
// unique-key registry (spec.md §6 "Reserved registry keys") that still need
// a name in this port, even though Go has no shared global table to stash
// hidden keys inside a runtime. Where the original stores these as
// light-userdata under a hidden Lua registry key, this package instead
// keeps them as fields of stateExt, a sidecar record one per *goja.Runtime,
// looked up through the owning Universe (spec.md §9: "store the Universe by
// owning handle in each state's extension data slot").
const (
	regKeyLookupDatabase     = "lookupDatabase"
	regKeyFinalizerList      = "finalizerList"
	regKeyExtendedStackTrace = "extendedStackTrace"
	regKeyLaneName           = "laneName"
	regKeyLanePointer        = "lanePointer"
	regKeyStackTraceTemp     = "stackTraceTemp"
	regKeyMetatableIDs       = "metatableIDs"
	regKeyCancelError        = "cancelError"
	regKeyNilSentinel        = "nilSentinel"
)

// LookupDB is a per-runtime, two-way mapping between fully-qualified names
// and host-provided objects that cannot be copied by value (functions
// backed by native Go code, preloaded library tables, opaque userdata).
// The inter-copy engine consults it before attempting a structural copy,
// and keeper-direction copies fall back to a lookup sentinel for anything
// it resolves (spec.md §4.1).
type LookupDB struct {
	mu        sync.RWMutex
	nameToObj map[string]goja.Value
	objToName map[any]string
}

func newLookupDB() *LookupDB {
	return &LookupDB{
		nameToObj: make(map[string]goja.Value),
		objToName: make(map[any]string),
	}
}

// Register links a fully-qualified name to a value in this runtime's
// lookup database. Registering the same name twice overwrites the prior
// entry; the previous object (if any) is unlinked from objToName first.
func (d *LookupDB) Register(fqName string, v goja.Value) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if old, ok := d.nameToObj[fqName]; ok {
		delete(d.objToName, lookupKey(old))
	}
	d.nameToObj[fqName] = v
	d.objToName[lookupKey(v)] = fqName
}

// Unregister removes a name from the lookup database, if present.
func (d *LookupDB) Unregister(fqName string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if v, ok := d.nameToObj[fqName]; ok {
		delete(d.objToName, lookupKey(v))
		delete(d.nameToObj, fqName)
	}
}

// Resolve returns the value registered under fqName, if any.
func (d *LookupDB) Resolve(fqName string) (goja.Value, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	v, ok := d.nameToObj[fqName]
	return v, ok
}

// NameOf returns the fully-qualified name registered for v, if any.
func (d *LookupDB) NameOf(v goja.Value) (string, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	name, ok := d.objToName[lookupKey(v)]
	return name, ok
}

// lookupKey derives a comparable map key for an arbitrary goja.Value.
// Objects and functions compare by their exported pointer identity;
// goja.Value itself is not guaranteed comparable for all underlying types.
func lookupKey(v goja.Value) any {
	if obj, ok := v.(*goja.Object); ok {
		return obj
	}
	return v.Export()
}

// stateExt is the sidecar extension-data record attached to one runtime
// (a lane's, a keeper's, or a caller's), reachable only through
// the owning Universe.
type stateExt struct {
	universe           *Universe
	lookup             *LookupDB
	metatables         *metatableTable
	isKeeper           bool
	lane               *Lane // non-nil when this runtime is a lane's own runtime
	extendedStackTrace bool
}

// stateExtensions returns the sidecar record for rt, registering a fresh one
// lazily if this is the first time rt has been seen.
func (u *Universe) stateExtensions(rt *goja.Runtime) *stateExt {
	u.statesMu.Lock()
	defer u.statesMu.Unlock()
	if ext, ok := u.states[rt]; ok {
		return ext
	}
	ext := &stateExt{universe: u, lookup: newLookupDB(), metatables: newMetatableTable(u)}
	u.states[rt] = ext
	return ext
}

// metatableTable is this state's half of the prototype-interning scheme
// described in copier.MetatableTable: IDFor assigns (and remembers) ids for
// prototypes originating in this state, while Lookup/Store remember, by id,
// the local copy of a prototype that originated elsewhere. ids themselves
// come from a single Universe-wide counter so two states agree on them
// without ever exchanging object pointers directly (spec.md's metatable
// identity survives across copy operations; only the object graph is
// per-state).
type metatableTable struct {
	mu       sync.Mutex
	universe *Universe
	idOf     map[*goja.Object]uint64
	byID     map[uint64]*goja.Object
}

func newMetatableTable(u *Universe) *metatableTable {
	return &metatableTable{
		universe: u,
		idOf:     make(map[*goja.Object]uint64),
		byID:     make(map[uint64]*goja.Object),
	}
}

func (t *metatableTable) IDFor(proto *goja.Object) uint64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	if id, ok := t.idOf[proto]; ok {
		return id
	}
	id := t.universe.nextMetatableID.Add(1)
	t.idOf[proto] = id
	return id
}

func (t *metatableTable) Lookup(id uint64) (*goja.Object, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	o, ok := t.byID[id]
	return o, ok
}

func (t *metatableTable) Store(id uint64, proto *goja.Object) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.byID[id] = proto
}

// forgetState drops the sidecar record for rt, called once rt's runtime is
// closed for good (lane termination or keeper teardown).
func (u *Universe) forgetState(rt *goja.Runtime) {
	u.statesMu.Lock()
	defer u.statesMu.Unlock()
	delete(u.states, rt)
}
