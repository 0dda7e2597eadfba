package copier

import (
	"sync"

	"github.com/dop251/goja"
)

// Closure is this port's substitute for spec.md §4.1's "dump and reload
// function bytecode": goja exposes no public API to pull a *goja.Program
// back out of an arbitrary compiled function, so a value can only travel as
// a Closure if it was built as one explicitly, via NewClosure. Program is
// expected to compile to a single factory expression — `(function(a, b) {
// return function() { ... a ... b ... } })` — whose parameters are bound,
// in order, to Upvalues at install time in each runtime.
type Closure struct {
	Program  *goja.Program
	Upvalues []goja.Value
}

// closureRegistry remembers, by destination-runtime-independent object
// identity, which live function values were produced by installing a
// Closure, so the copier can find its way back to the Program + upvalues
// when that function crosses into another runtime. Entries are never
// removed explicitly; they are bounded by the lifetime of the *goja.Object
// key itself, same as the rest of a runtime's object graph.
var closureRegistry sync.Map // map[*goja.Object]*Closure

// Install compiles c.Program in rt, calls the resulting factory with c's
// upvalues (already live in rt; see copyFunction for the cross-runtime
// case), and registers the resulting function so a later copy out of rt
// can find its way back to c.
func (c *Closure) Install(rt *goja.Runtime) (goja.Value, error) {
	factory, err := rt.RunProgram(c.Program)
	if err != nil {
		return nil, err
	}
	fn, ok := goja.AssertFunction(factory)
	if !ok {
		return nil, &TransferError{Message: "closure program did not evaluate to a function"}
	}
	result, err := fn(goja.Undefined(), c.Upvalues...)
	if err != nil {
		return nil, err
	}
	if obj, ok := result.(*goja.Object); ok {
		closureRegistry.Store(obj, c)
	}
	return result, nil
}

// NewClosure installs a freshly-compiled closure into rt, suitable for
// publishing as a value that may later travel between runtimes.
func NewClosure(rt *goja.Runtime, program *goja.Program, upvalues ...goja.Value) (goja.Value, error) {
	c := &Closure{Program: program, Upvalues: upvalues}
	return c.Install(rt)
}

func copyFunction(ctx *Context, v goja.Value, _ goja.Callable, path string) (goja.Value, error) {
	obj, isObj := v.(*goja.Object)

	if isObj {
		if cached, ok := ctx.cache[obj]; ok {
			return cached, nil
		}
		if raw, ok := closureRegistry.Load(obj); ok {
			return copyClosureFunction(ctx, obj, raw.(*Closure), path)
		}
	}

	if native, ok := nativeFunc(v); ok {
		dst := ctx.DstRT.ToValue(native)
		if isObj {
			ctx.cache[obj] = dst
		}
		return dst, nil
	}

	if ctx.Direction == DirIntoKeeper {
		return sentinelFor(sentinelFunctionLookup, ""), nil
	}

	if ctx.ConvertFallback != nil {
		cv, err := ctx.ConvertFallback(ctx.DstRT, v, "function")
		if err == nil {
			return cv, nil
		}
	}

	return nil, &TransferError{
		Path:    path,
		Message: "function is neither a registered Closure, a native Go function, nor lookup-registered; it cannot cross runtimes",
	}
}

func copyClosureFunction(ctx *Context, srcObj *goja.Object, c *Closure, path string) (goja.Value, error) {
	upvalues := make([]goja.Value, len(c.Upvalues))
	for i, uv := range c.Upvalues {
		cv, err := copyValue(ctx, uv, path)
		if err != nil {
			return nil, &TransferError{Path: path, Message: "closure upvalue copy failed", Cause: err}
		}
		upvalues[i] = cv
	}
	dstClosure := &Closure{Program: c.Program, Upvalues: upvalues}
	v, err := dstClosure.Install(ctx.DstRT)
	if err != nil {
		return nil, &TransferError{Path: path, Message: "closure reinstall failed", Cause: err}
	}
	ctx.cache[srcObj] = v
	return v, nil
}

// nativeFunc reports whether v's exported Go value is one of goja's native
// function call signatures, in which case the same Go function can be
// re-wrapped directly in the destination runtime without recompilation.
func nativeFunc(v goja.Value) (any, bool) {
	switch fn := v.Export().(type) {
	case func(goja.FunctionCall) goja.Value:
		return fn, true
	case func(goja.ConstructorCall) *goja.Object:
		return fn, true
	case func(goja.FunctionCall) (goja.Value, error):
		return fn, true
	default:
		return nil, false
	}
}
