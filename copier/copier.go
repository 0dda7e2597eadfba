// Package copier implements the inter-copy engine described in spec.md
// §4.1: a recursive, cycle-safe deep-copier of goja values between two
// independent goja.Runtime instances.
//
// Per spec.md §9's design notes ("expose value conversion behind a small
// internal trait... generic over that trait and can be tested against a
// mock state"), this package depends only on small interfaces (Lookup,
// MetatableTable, DeepRegistry) rather than on the lanes package itself, so
// it can be exercised with fakes in unit tests without spinning up real
// Lanes/Keepers.
package copier

import (
	"fmt"

	"github.com/dop251/goja"
)

// Direction distinguishes which way a value is crossing relative to a
// Keeper, since keeper-bound copies apply the lookup-sentinel rewriting
// described in spec.md §4.1 "Keeper-direction asymmetries".
type Direction int

const (
	// DirRegular is a lane-to-lane (or lane-to-itself) copy.
	DirRegular Direction = iota
	// DirIntoKeeper copies values from a lane into a keeper's runtime.
	DirIntoKeeper
	// DirOutOfKeeper copies values from a keeper's runtime back to a lane.
	DirOutOfKeeper
)

// Lookup is the per-runtime fully-qualified-name database consulted before
// any structural copy is attempted (spec.md §4.1 step 1).
type Lookup interface {
	Resolve(fqName string) (goja.Value, bool)
	NameOf(v goja.Value) (string, bool)
}

// MetatableTable lets the copier intern prototypes (this port's analogue of
// Lua metatables) by a monotonic id that survives across separate top-level
// Copy calls, per spec.md "Metatable identity across copy operations".
// IDFor operates against the source state's table; Lookup/Store operate
// against the destination state's table — each state owns only its own
// table, per spec.md §5 ("never crosses threads directly — only ids do").
type MetatableTable interface {
	IDFor(proto *goja.Object) uint64
	Lookup(id uint64) (*goja.Object, bool)
	Store(id uint64, proto *goja.Object)
}

// DeepRegistry recognizes and re-proxies "deep" reference-counted shared
// objects (spec.md §4.5), without the copier needing to know anything
// about their Go-side representation.
type DeepRegistry interface {
	// Recognize reports whether v (live in srcRT) is a deep-object proxy,
	// returning an opaque id if so.
	Recognize(srcRT *goja.Runtime, v goja.Value) (id uint64, ok bool)
	// Retain bumps the refcount for id and returns a fresh proxy bound to
	// dstRT.
	Retain(dstRT *goja.Runtime, id uint64) (goja.Value, error)
}

// Allocator is the pluggable scratch-memory source spec.md §3/§6 describes
// as the Universe's allocator policy. The copy cache (copyValue's
// cycle/identity cache, keyed by source pointer) is the one piece of
// per-call bookkeeping this engine allocates and discards entirely within
// a single top-level Copy call, so it is what Allocator pools: Get is
// called once at the start of Copy, Put once at the end, regardless of how
// deep the recursive copy goes. A nil Context.Alloc falls back to a plain
// make(), matching spec.md §6's unconfigured default.
type Allocator interface {
	// Get returns a cache map sized for roughly n entries, ready to use.
	Get(n int) map[*goja.Object]goja.Value
	// Put returns a cache map obtained from Get once Copy no longer needs
	// it.
	Put(m map[*goja.Object]goja.Value)
}

// Context configures one top-level Copy call.
type Context struct {
	SrcRT, DstRT   *goja.Runtime
	SrcLookup      Lookup
	DstLookup      Lookup
	SrcMetatables  MetatableTable
	DstMetatables  MetatableTable
	Deep           DeepRegistry
	Direction      Direction
	Verbose        bool
	ConvertMaxAttempts int
	// ConvertFallback is called only by the function-copy path, with hint
	// "function", for a function value it cannot otherwise transfer; other
	// kinds of value never reach it (spec.md §6 convert_fallback's
	// ConvertFunc mode).
	ConvertFallback func(rt *goja.Runtime, v goja.Value, hint string) (goja.Value, error)
	// Alloc sources the copy cache, letting a caller pool and (per
	// spec.md §5) mutex-serialize that allocation across concurrent Copy
	// calls sharing one Universe. Optional.
	Alloc Allocator

	cache map[*goja.Object]goja.Value
}

// Copy deep-copies values from ctx.SrcRT onto ctx.DstRT, preserving
// reference identity and cycles within this single call (spec.md §4.1).
func Copy(ctx *Context, values ...goja.Value) ([]goja.Value, error) {
	if ctx.Alloc != nil {
		ctx.cache = ctx.Alloc.Get(len(values) * 2)
		defer ctx.Alloc.Put(ctx.cache)
	} else {
		ctx.cache = make(map[*goja.Object]goja.Value, len(values)*2)
	}
	out := make([]goja.Value, len(values))
	for i, v := range values {
		cv, err := copyValue(ctx, v, fmt.Sprintf("[%d]", i+1))
		if err != nil {
			return nil, err
		}
		out[i] = cv
	}
	return out, nil
}

// CopyOne is a convenience wrapper for a single value.
func CopyOne(ctx *Context, v goja.Value) (goja.Value, error) {
	out, err := Copy(ctx, v)
	if err != nil {
		return nil, err
	}
	return out[0], nil
}

func (ctx *Context) path(base, suffix string) string {
	if !ctx.Verbose {
		return ""
	}
	return base + suffix
}

func copyValue(ctx *Context, v goja.Value, path string) (goja.Value, error) {
	if v == nil {
		return goja.Undefined(), nil
	}

	if sv, ok := v.(*sentinelValue); ok {
		return resolveSentinel(ctx, sv, path)
	}

	// step 1: lookup-by-name short-circuit (spec.md §4.1 step 1)
	if ctx.SrcLookup != nil {
		if name, ok := ctx.SrcLookup.NameOf(v); ok {
			if dv, ok := ctx.DstLookup.Resolve(name); ok {
				return dv, nil
			}
			if ctx.Direction == DirIntoKeeper {
				return sentinelFor(sentinelLookup, name), nil
			}
			if ctx.Direction == DirOutOfKeeper {
				return nil, &TransferError{Path: path, Message: fmt.Sprintf("unresolved lookup name %q leaving keeper", name)}
			}
			// lane-body direction: fall back to structural cloning.
		}
	}

	switch {
	case goja.IsUndefined(v), goja.IsNull(v):
		if ctx.Direction == DirIntoKeeper && goja.IsNull(v) {
			return sentinelFor(sentinelNil, nil), nil
		}
		return v, nil
	}

	exported := v.Export()
	switch exported.(type) {
	case bool, int64, float64, string, nil:
		return ctx.DstRT.ToValue(exported), nil
	}

	if fn, ok := goja.AssertFunction(v); ok {
		return copyFunction(ctx, v, fn, path)
	}

	if obj, ok := v.(*goja.Object); ok {
		return copyObjectLike(ctx, obj, path)
	}

	// light-userdata / symbols / anything else goja round-trips through
	// Export natively.
	return ctx.DstRT.ToValue(exported), nil
}

func copyObjectLike(ctx *Context, obj *goja.Object, path string) (goja.Value, error) {
	if cached, ok := ctx.cache[obj]; ok {
		return cached, nil
	}

	if id, ok := recognizeDeep(ctx, obj); ok {
		v, err := ctx.Deep.Retain(ctx.DstRT, id)
		if err != nil {
			return nil, &TransferError{Path: path, Message: "deep object retain failed", Cause: err}
		}
		ctx.cache[obj] = v
		return v, nil
	}

	if clonable, ok := cloneHook(obj); ok {
		return copyClonable(ctx, obj, clonable, path)
	}

	return copyTable(ctx, obj, path)
}

func recognizeDeep(ctx *Context, obj *goja.Object) (uint64, bool) {
	if ctx.Deep == nil {
		return 0, false
	}
	return ctx.Deep.Recognize(ctx.SrcRT, obj)
}

// cloneHook looks for a `__lanesclone` field on obj's own properties
// (goja objects stand in for "userdata with a metatable" here: there is no
// separate metatable object to inspect, so the hook is looked up directly
// on the object, mirroring how a Lua userdata's metatable field would be
// consulted).
func cloneHook(obj *goja.Object) (goja.Callable, bool) {
	v := obj.Get("__lanesclone")
	if v == nil || goja.IsUndefined(v) {
		return nil, false
	}
	fn, ok := goja.AssertFunction(v)
	return fn, ok
}

func copyClonable(ctx *Context, obj *goja.Object, hook goja.Callable, path string) (goja.Value, error) {
	dst := ctx.DstRT.NewObject()
	ctx.cache[obj] = dst
	if _, err := hook(obj, dst); err != nil {
		return nil, &TransferError{Path: path, Message: "__lanesclone failed", Cause: err}
	}
	return dst, nil
}

// copyTable performs the generic recursive table copy (spec.md §4.1 steps
// 2-4): cache insertion before recursion (cycle safety), key/value copy,
// and prototype copy+intern.
func copyTable(ctx *Context, obj *goja.Object, path string) (goja.Value, error) {
	var dst *goja.Object
	if isArrayLike(obj) {
		dst = ctx.DstRT.NewArray()
	} else {
		dst = ctx.DstRT.NewObject()
	}
	ctx.cache[obj] = dst

	for _, key := range obj.Keys() {
		kv, err := copyValue(ctx, ctx.SrcRT.ToValue(key), ctx.path(path, "."+key)+" (key)")
		if err != nil {
			// spec.md: keys are copied in a "key context" that rejects
			// uncopyable keys silently.
			continue
		}
		_ = kv

		vv, err := copyValue(ctx, obj.Get(key), ctx.path(path, "."+key))
		if err != nil {
			return nil, err
		}
		if err := dst.Set(key, vv); err != nil {
			return nil, &TransferError{Path: path, Message: "set failed", Cause: err}
		}
	}

	if proto := obj.Prototype(); proto != nil && proto != ctx.DstRT.GlobalObject().Prototype() {
		dstProto, err := copyMetatable(ctx, proto, path)
		if err != nil {
			return nil, err
		}
		dst.SetPrototype(dstProto)
	}

	return dst, nil
}

func copyMetatable(ctx *Context, proto *goja.Object, path string) (*goja.Object, error) {
	if ctx.SrcMetatables == nil || ctx.DstMetatables == nil {
		v, err := copyObjectLike(ctx, proto, path+" (prototype)")
		if err != nil {
			return nil, err
		}
		return v.(*goja.Object), nil
	}

	id := ctx.SrcMetatables.IDFor(proto)
	if cached, ok := ctx.DstMetatables.Lookup(id); ok {
		return cached, nil
	}
	v, err := copyObjectLike(ctx, proto, path+" (prototype)")
	if err != nil {
		return nil, err
	}
	dstProto := v.(*goja.Object)
	ctx.DstMetatables.Store(id, dstProto)
	return dstProto, nil
}

func isArrayLike(obj *goja.Object) bool {
	return obj.ClassName() == "Array"
}
