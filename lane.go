package lanes

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/dop251/goja"

	"github.com/joeycumines/golanes/copier"
)

// LaneConfig describes one lane body, analogous to the table of options
// spec.md §4.4 passes to a lane constructor.
type LaneConfig struct {
	// Name is the lane's debug name, readable from script via
	// lane_threadname() and surfaced in logs.
	Name string

	// Program must evaluate, when run, to a callable value: the lane's
	// entry point. Compiling it ahead of time (via goja.Compile) is this
	// port's substitute for spec.md's "function dumped to bytecode and
	// reloaded in the new state" (see copier.Closure for the general
	// cross-runtime case; a lane's own Program never needs to cross a
	// runtime boundary, since it is compiled fresh, once, per lane).
	Program *goja.Program

	// Args are copied into the lane's runtime and passed to the function
	// Program evaluates to.
	Args []goja.Value

	// ArgsRuntime is the runtime Args currently live in, consulted only
	// for copying; it may be nil if Args contains only primitives.
	ArgsRuntime *goja.Runtime

	// Preload registers additional globals/libraries into the lane's
	// runtime before Program runs.
	Preload func(rt *goja.Runtime) error

	// CoroutineMode enables lane_yield()/Resume()-based suspension
	// (spec.md §4.4 step 2's single-slot channel pair adaptation; see
	// DESIGN.md).
	CoroutineMode bool

	TraceLevel ErrorTraceLevel
}

// Lane is one spawned body, running its own goja.Runtime on a dedicated
// goroutine (spec.md §3/§4.4).
type Lane struct {
	universe *Universe
	name     string
	nameMu   sync.RWMutex

	runtimeMu sync.RWMutex
	runtime   *goja.Runtime

	status     *laneState
	cancelReq  atomic.Int32
	traceLevel ErrorTraceLevel

	done chan struct{}

	waitingOnMu sync.Mutex
	waitingOn   *Linda

	finalizers finalizerChain

	resultMu sync.Mutex
	results  []goja.Value
	runErr   error
	trace    []StackFrame

	selfDestructed atomic.Bool

	coroutineMode bool
	yieldCh       chan []goja.Value
	resumeCh      chan []goja.Value
	lastYielded   []goja.Value

	// transitionMu/transitionCh broadcast every status change that Join
	// needs to notice promptly without busy-polling: entering/leaving
	// Suspended, in addition to the terminal transition l.done already
	// signals. Closed-and-replaced the same way Linda's wake channels are
	// (linda.go's wake/waitFor), since a condition-variable-style notify
	// has no built-in timeout-aware wait in Go.
	transitionMu sync.Mutex
	transitionCh chan struct{}
}

// NewLane creates and immediately starts a Lane: the body begins running
// asynchronously on its own goroutine, and NewLane returns as soon as the
// handle exists (spec.md §4.4: "spawning returns promptly; the lane's own
// status transitions track its progress").
func NewLane(u *Universe, cfg LaneConfig) (*Lane, error) {
	l := &Lane{
		universe:      u,
		name:          cfg.Name,
		status:        newLaneState(),
		traceLevel:    cfg.TraceLevel,
		done:          make(chan struct{}),
		coroutineMode: cfg.CoroutineMode,
		transitionCh:  make(chan struct{}),
	}
	if cfg.CoroutineMode {
		// Capacity 1, not 0: Yield and Resume each send before they
		// receive, so two unbuffered channels would deadlock on every
		// handshake (both sides blocked offering a send, neither ready to
		// receive). A one-slot buffer lets the first send land without a
		// synchronous receiver; the following blocking receive on each
		// side is what actually paces the handshake.
		l.yieldCh = make(chan []goja.Value, 1)
		l.resumeCh = make(chan []goja.Value, 1)
	}

	u.track(l)

	go l.run(cfg)

	return l, nil
}

// Name returns the lane's debug name.
func (l *Lane) Name() string {
	l.nameMu.RLock()
	defer l.nameMu.RUnlock()
	return l.name
}

// SetName updates the lane's debug name; bound into script as
// lane_threadname(newName).
func (l *Lane) SetName(name string) {
	l.nameMu.Lock()
	l.name = name
	l.nameMu.Unlock()
}

// Status returns the lane's current lifecycle state.
func (l *Lane) Status() Status { return l.status.Load() }

func (l *Lane) setWaitingOn(ln *Linda) {
	l.waitingOnMu.Lock()
	l.waitingOn = ln
	l.waitingOnMu.Unlock()
}

// notifyTransition wakes every goroutine currently parked in
// transitionSignal(), for a status change Join needs to notice without
// waiting for the terminal l.done close.
func (l *Lane) notifyTransition() {
	l.transitionMu.Lock()
	close(l.transitionCh)
	l.transitionCh = make(chan struct{})
	l.transitionMu.Unlock()
}

func (l *Lane) transitionSignal() <-chan struct{} {
	l.transitionMu.Lock()
	defer l.transitionMu.Unlock()
	return l.transitionCh
}

// enterWaiting/exitWaiting bracket a blocking Linda call, producing the
// StatusWaiting transition spec.md §3's FSM names ("the lane is blocked in
// a Linda operation"). Guarded with CompareAndSwap rather than a plain
// Store since a hard-cancel racing in from another goroutine may already
// have moved status elsewhere.
func (l *Lane) enterWaiting() {
	l.status.CompareAndSwap(StatusRunning, StatusWaiting)
}

func (l *Lane) exitWaiting() {
	l.status.CompareAndSwap(StatusWaiting, StatusRunning)
}

// run is the lane's goroutine body: it owns the lane's runtime from
// construction to teardown and is the only goroutine that ever calls into
// it, aside from Interrupt (which goja documents as safe to call from any
// goroutine expressly for this purpose).
func (l *Lane) run(cfg LaneConfig) {
	rt := goja.New()

	l.runtimeMu.Lock()
	l.runtime = rt
	l.runtimeMu.Unlock()

	ext := l.universe.stateExtensions(rt)
	ext.lane = l
	ext.extendedStackTrace = cfg.TraceLevel == ErrorTraceExtended

	l.bindIntrinsics(rt)

	var (
		bodyErr error
		trace   []StackFrame
	)

	l.status.Store(StatusRunning)
	if cancelRequest(l.cancelReq.Load()) == cancelHard {
		// A hard cancel landed before the goroutine even started.
		bodyErr = ErrCancelled
	} else if err := l.universe.runOnStateCreate(rt); err != nil {
		bodyErr = err
	} else if cfg.Preload != nil {
		if err := cfg.Preload(rt); err != nil {
			bodyErr = err
		}
	}

	if bodyErr == nil {
		results, err := l.invokeBody(rt, cfg)
		if err != nil {
			bodyErr = err
			trace = captureTrace(rt, l.traceLevel)
		} else {
			l.resultMu.Lock()
			l.results = results
			l.resultMu.Unlock()
		}
	}

	if l.coroutineMode && bodyErr != nil && cfg.TraceLevel == ErrorTraceExtended {
		nresults := 1
		if len(trace) > 0 {
			nresults = 2
		}
		debugAssertNResults(nresults)
	}

	finalErr := l.finalizers.run(rt, bodyErr, trace)

	final := StatusDone
	switch {
	case IsCancelled(finalErr):
		final = StatusCancelled
	case finalErr != nil:
		final = StatusError
	}

	l.resultMu.Lock()
	l.runErr = finalErr
	l.trace = trace
	l.resultMu.Unlock()

	l.status.Store(final)

	l.universe.untrack(l)
	if l.selfDestructed.Load() {
		l.universe.disown(l)
	}

	close(l.done)

	getLogger().Debug().Str("lane", l.Name()).Str("status", final.String()).Log("lane finished")
}

func (l *Lane) invokeBody(rt *goja.Runtime, cfg LaneConfig) ([]goja.Value, error) {
	mainVal, err := rt.RunProgram(cfg.Program)
	if err != nil {
		return nil, err
	}
	main, ok := goja.AssertFunction(mainVal)
	if !ok {
		return nil, &TransferError{Message: "lane program did not evaluate to a callable"}
	}

	args := cfg.Args
	if cfg.ArgsRuntime != nil && len(args) > 0 {
		args, err = l.universe.copyValues(cfg.ArgsRuntime, rt, copier.DirRegular, args...)
		if err != nil {
			return nil, err
		}
	}

	if l.coroutineMode {
		return l.runCoroutine(rt, main, args)
	}

	result, err := main(goja.Undefined(), args...)
	if err != nil {
		return nil, err
	}
	return []goja.Value{result}, nil
}

// runCoroutine invokes main, which may call the bound lane_yield() any
// number of times before returning its final result; each call blocks the
// lane goroutine until Resume delivers the next set of arguments, and
// control is otherwise identical to a plain invocation (spec.md §4.4 step
// 2's "coroutine-mode" lane, adapted per DESIGN.md onto a single runtime
// plus a bounded channel pair rather than a second child thread state).
func (l *Lane) runCoroutine(rt *goja.Runtime, main goja.Callable, args []goja.Value) ([]goja.Value, error) {
	result, err := main(goja.Undefined(), args...)
	if err != nil {
		return nil, err
	}
	return []goja.Value{result}, nil
}

// Yield is bound into a coroutine-mode lane's runtime as lane_yield(...):
// it hands values to whichever goroutine next calls Resume, suspends the
// lane, and returns the values Resume supplied.
func (l *Lane) Yield(rt *goja.Runtime, values ...goja.Value) ([]goja.Value, error) {
	if !l.coroutineMode {
		return nil, &TransferError{Message: "lane_yield called on a non-coroutine lane"}
	}
	l.resultMu.Lock()
	l.lastYielded = values
	l.resultMu.Unlock()
	select {
	case l.yieldCh <- values:
	case <-l.done:
		return nil, ErrCancelled
	}
	l.status.Store(StatusSuspended)
	l.notifyTransition()
	select {
	case resumed := <-l.resumeCh:
		l.status.Store(StatusRunning)
		l.notifyTransition()
		if l.cancelTest() {
			return nil, ErrCancelled
		}
		return resumed, nil
	case <-l.done:
		return nil, ErrCancelled
	}
}

// Resume delivers values to a suspended coroutine-mode lane and waits for
// its next yield (or completion). done is true, with no values, when the
// lane had already reached a terminal state before the call.
func (l *Lane) Resume(values ...goja.Value) (yielded []goja.Value, done bool, err error) {
	if !l.coroutineMode {
		return nil, true, &TransferError{Message: "Resume called on a non-coroutine lane"}
	}
	if l.status.Load().IsTerminal() {
		return nil, true, nil
	}
	l.status.Store(StatusResuming)
	l.notifyTransition()
	select {
	case l.resumeCh <- values:
	case <-l.done:
		return nil, true, nil
	}
	select {
	case y := <-l.yieldCh:
		return y, false, nil
	case <-l.done:
		l.resultMu.Lock()
		res, rerr := l.results, l.runErr
		l.resultMu.Unlock()
		return res, true, rerr
	}
}

// bindIntrinsics installs the lane-scoped host functions spec.md §4.4
// expects every lane body to see: cancel_test, set_finalizer, and
// lane_threadname.
func (l *Lane) bindIntrinsics(rt *goja.Runtime) {
	_ = rt.Set("cancel_test", func(goja.FunctionCall) goja.Value {
		return rt.ToValue(l.cancelTest())
	})
	_ = rt.Set("set_finalizer", func(call goja.FunctionCall) goja.Value {
		if len(call.Arguments) == 0 {
			panic(rt.NewTypeError("set_finalizer requires a function argument"))
		}
		fn, ok := goja.AssertFunction(call.Arguments[0])
		if !ok {
			panic(rt.NewTypeError("set_finalizer argument must be a function"))
		}
		l.finalizers.push(fn)
		return goja.Undefined()
	})
	_ = rt.Set("lane_threadname", func(call goja.FunctionCall) goja.Value {
		if len(call.Arguments) == 0 {
			return rt.ToValue(l.Name())
		}
		l.SetName(call.Arguments[0].String())
		return goja.Undefined()
	})
	if l.coroutineMode {
		_ = rt.Set("lane_yield", func(call goja.FunctionCall) goja.Value {
			out, err := l.Yield(rt, call.Arguments...)
			if err != nil {
				panic(rt.ToValue(err.Error()))
			}
			return rt.ToValue(out)
		})
	}
}

// Join waits up to timeout (negative means indefinitely) for l to reach a
// terminal state OR, for a coroutine-mode lane, to suspend via lane_yield,
// returning whichever set of values is ready, copied into callerRT
// (spec.md §4.4/S6: "the parent's first join returns" the first yield, not
// the eventual final result). A timed-out Join returns (nil, false, nil)
// per spec.md's "timeouts are plain values, not errors" convention; ok is
// false in that case only.
func (l *Lane) Join(callerRT *goja.Runtime, timeout time.Duration) (results []goja.Value, ok bool, err error) {
	var deadline <-chan time.Time
	if timeout >= 0 {
		timer := time.NewTimer(timeout)
		defer timer.Stop()
		deadline = timer.C
	}

	for {
		if l.status.Load() == StatusSuspended {
			return l.joinSuspended(callerRT)
		}
		if l.status.Load().IsTerminal() {
			break
		}

		sig := l.transitionSignal()
		select {
		case <-l.done:
		case <-sig:
			continue
		case <-deadline:
			return nil, false, nil
		}
		break
	}

	l.resultMu.Lock()
	res, rerr := l.results, l.runErr
	l.resultMu.Unlock()

	if rerr != nil {
		return nil, true, rerr
	}

	out, err := l.universe.copyValues(l.activeRuntime(), callerRT, copier.DirRegular, res...)
	if err != nil {
		return nil, true, err
	}
	return out, true, nil
}

// joinSuspended returns the values a coroutine-mode lane most recently
// passed to lane_yield, without waiting for the lane to run to completion.
func (l *Lane) joinSuspended(callerRT *goja.Runtime) (results []goja.Value, ok bool, err error) {
	l.resultMu.Lock()
	yielded := l.lastYielded
	l.resultMu.Unlock()
	// Join consumes this yield, so the next Resume waits for the next one.
	select {
	case <-l.yieldCh:
	default:
	}

	out, err := l.universe.copyValues(l.activeRuntime(), callerRT, copier.DirRegular, yielded...)
	if err != nil {
		return nil, true, err
	}
	return out, true, nil
}

// Close releases l's runtime's sidecar bookkeeping in its Universe. Callers
// should call Close once they are done consuming l's results (after Join),
// since only then is it safe to drop the lookup database that made those
// results resolvable.
func (l *Lane) Close() {
	if rt := l.activeRuntime(); rt != nil {
		l.universe.forgetState(rt)
	}
}

// Abandon marks l as self-destructed: its user-visible handle is being
// dropped while l may still be running (spec.md §4.4 "Self-destruct"). The
// Universe will hard-cancel it at Shutdown if it is still alive then.
func (l *Lane) Abandon() {
	if l.status.Load().IsTerminal() {
		return
	}
	l.selfDestructed.Store(true)
	l.universe.abandon(l)
}
