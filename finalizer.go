package lanes

import "github.com/dop251/goja"

// finalizerChain is the list of functions a lane body registered via
// set_finalizer (spec.md §4.4). Finalizers run in reverse registration
// order (LIFO) once the body returns or errors; an erroring finalizer
// replaces the lane's outcome and short-circuits the remaining chain.
type finalizerChain struct {
	fns []goja.Callable
}

func (c *finalizerChain) push(fn goja.Callable) {
	c.fns = append(c.fns, fn)
}

// run executes the chain LIFO. bodyErr and trace are nil on the success
// path. It returns the (possibly replaced) error, which, if non-nil,
// supersedes whatever bodyErr was.
func (c *finalizerChain) run(rt *goja.Runtime, bodyErr error, trace []StackFrame) error {
	for i := len(c.fns) - 1; i >= 0; i-- {
		fn := c.fns[i]
		var args []goja.Value
		if bodyErr != nil {
			args = []goja.Value{errorToValue(rt, bodyErr), traceToValue(rt, trace)}
		}
		if _, err := fn(goja.Undefined(), args...); err != nil {
			return &FinalizerError{Cause: err}
		}
	}
	return bodyErr
}

func errorToValue(rt *goja.Runtime, err error) goja.Value {
	if err == nil {
		return goja.Undefined()
	}
	return rt.ToValue(err.Error())
}

func traceToValue(rt *goja.Runtime, trace []StackFrame) goja.Value {
	if len(trace) == 0 {
		return goja.Undefined()
	}
	out := make([]map[string]any, len(trace))
	for i, f := range trace {
		out[i] = map[string]any{
			"source":    f.Source,
			"line":      f.Line,
			"name":      f.Name,
			"namewhat":  f.NameWhat,
			"what":      f.What,
		}
	}
	return rt.ToValue(out)
}

// debugAssertNResults preserves, rather than silently "fixes", the
// original's `nresults == 1 || nresults == 2` assertion under
// coroutine-mode + error + ErrorTraceExtended (DESIGN.md Open Question 3).
// It is a deliberate no-op outside of tests: production code must not
// crash a lane's host process over a bookkeeping assumption whose exact
// applicability the original leaves unclear.
func debugAssertNResults(nresults int) {
	if !lanesDebug {
		return
	}
	if nresults != 1 && nresults != 2 {
		panic("lanes: nresults assertion failed (see DESIGN.md Open Question 3)")
	}
}

// lanesDebug is flipped by a test-only file (debug_test_on.go, build-tagged
// lanesdebug) to exercise debugAssertNResults without affecting normal
// builds.
var lanesDebug = false
