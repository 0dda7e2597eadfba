package lanes

import (
	goruntime "runtime"
	"sync"
	"sync/atomic"

	"github.com/dop251/goja"
)

// DeepFactory is this port's analog of spec.md §4.5's "deep userdata"
// factory hooks: a Go type whose instances are shared by reference across
// every lane that holds a handle to them, refcounted rather than deep-
// copied by the inter-copy engine.
type DeepFactory interface {
	// ModuleName identifies the factory for diagnostic purposes.
	ModuleName() string
	// New constructs the shared Go-side state for one deep object.
	New() (any, error)
	// Bind populates proxy (live in rt) with whatever script-visible
	// surface the shared state should expose (methods, accessors).
	Bind(rt *goja.Runtime, proxy *goja.Object, state any) error
}

// DeepCloser is optionally implemented by a DeepFactory's state to receive
// a teardown call once the last proxy referencing it is collected.
type DeepCloser interface {
	Close() error
}

type deepObject struct {
	factory  DeepFactory
	state    any
	refcount atomic.Int64
}

// deepRegistry is the Universe-wide table of live deep objects, keyed by a
// monotonic id; it implements copier.DeepRegistry so the inter-copy engine
// can recognize and re-proxy them without depending on this package.
type deepRegistry struct {
	mu       sync.Mutex
	nextID   atomic.Uint64
	objects  map[uint64]*deepObject
	idSymbol *goja.Symbol
}

func newDeepRegistry() *deepRegistry {
	return &deepRegistry{
		objects:  make(map[uint64]*deepObject),
		idSymbol: goja.NewSymbol("lanes.deepID"),
	}
}

// NewDeep creates a new deep object via factory and returns its first proxy,
// live in rt, with an initial refcount of 1.
func (u *Universe) NewDeep(rt *goja.Runtime, factory DeepFactory) (goja.Value, error) {
	state, err := factory.New()
	if err != nil {
		return nil, err
	}
	id, do := u.deep.register(factory, state)
	return u.deep.buildProxy(rt, id, do)
}

// register records an already-constructed (factory, state) pair as a live
// deep object with refcount 1, without invoking factory.New() — used by
// NewDeep for the ordinary case and by Linda.Deep, whose "state" (the
// Linda itself) already exists by the time it is first registered.
func (r *deepRegistry) register(factory DeepFactory, state any) (uint64, *deepObject) {
	do := &deepObject{factory: factory, state: state}
	do.refcount.Store(1)

	id := r.nextID.Add(1)
	r.mu.Lock()
	r.objects[id] = do
	r.mu.Unlock()

	return id, do
}

// Recognize implements copier.DeepRegistry.
func (r *deepRegistry) Recognize(srcRT *goja.Runtime, v goja.Value) (uint64, bool) {
	obj, ok := v.(*goja.Object)
	if !ok {
		return 0, false
	}
	idv := obj.GetSymbol(r.idSymbol)
	if idv == nil || goja.IsUndefined(idv) {
		return 0, false
	}
	return uint64(idv.ToInteger()), true
}

// Retain implements copier.DeepRegistry: it bumps id's refcount and builds a
// fresh proxy bound to dstRT.
func (r *deepRegistry) Retain(dstRT *goja.Runtime, id uint64) (goja.Value, error) {
	r.mu.Lock()
	do, ok := r.objects[id]
	r.mu.Unlock()
	if !ok {
		return nil, &TransferError{Message: "deep object no longer exists"}
	}
	do.refcount.Add(1)
	return r.buildProxy(dstRT, id, do)
}

// buildProxy creates a fresh script-visible object exposing do's state in
// rt, tagged with id via a reserved Symbol key, and arranges for a Go
// finalizer to decrement do's refcount once the proxy becomes unreachable —
// this package's analog of `__gc` on a full userdata (spec.md §4.5).
func (r *deepRegistry) buildProxy(rt *goja.Runtime, id uint64, do *deepObject) (goja.Value, error) {
	proxy := rt.NewObject()
	if err := do.factory.Bind(rt, proxy, do.state); err != nil {
		return nil, err
	}
	if err := proxy.SetSymbol(r.idSymbol, rt.ToValue(id)); err != nil {
		return nil, err
	}

	h := &deepHandle{id: id, registry: r}
	// anchor h's liveness to the proxy: as long as script (or another
	// runtime holding a copy) can reach proxy, it can reach this closure,
	// and so h stays reachable; once proxy is garbage, so is h, and the Go
	// GC runs its finalizer.
	anchor := func(goja.FunctionCall) goja.Value {
		goruntime.KeepAlive(h)
		return goja.Undefined()
	}
	if err := proxy.Set("__lanesDeepAnchor", rt.ToValue(anchor)); err != nil {
		return nil, err
	}
	goruntime.SetFinalizer(h, (*deepHandle).release)

	return proxy, nil
}

func (r *deepRegistry) decref(id uint64) {
	r.mu.Lock()
	do, ok := r.objects[id]
	if !ok {
		r.mu.Unlock()
		return
	}
	remaining := do.refcount.Add(-1)
	if remaining <= 0 {
		delete(r.objects, id)
	}
	r.mu.Unlock()

	if remaining <= 0 {
		if closer, ok := do.state.(DeepCloser); ok {
			_ = closer.Close()
		}
	}
}

// deepHandle is the Go-side object a finalizer is actually attached to;
// goja proxies themselves are never passed to runtime.SetFinalizer since
// goja.Object's internal representation is not something this package owns.
type deepHandle struct {
	id       uint64
	registry *deepRegistry
}

func (h *deepHandle) release() {
	h.registry.decref(h.id)
}
