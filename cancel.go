package lanes

import (
	"time"

	"github.com/dop251/goja"
)

// cancelRequest tracks the cooperative + preemptive cancellation state of a
// Lane (spec.md §4.4): {None, Soft, Hard}.
type cancelRequest int32

const (
	cancelNone cancelRequest = iota
	cancelSoft
	cancelHard
)

// Cancel requests cancellation of l. mode selects Soft (cooperative flag
// only) or Hard (additionally interrupts the lane's running script via
// goja.Runtime.Interrupt, and makes a Linda Send/Receive the lane is blocked
// in return ErrCancelled when it next wakes). wakeLane, if true, also wakes
// whatever Linda the
// lane is currently blocked inside, so a hard cancel doesn't have to wait
// out that Linda's wake period.
//
// Cancel blocks until l reaches a terminal status or deadline elapses,
// returning CancelOutcomeCancelled or CancelOutcomeTimeout.
func (l *Lane) Cancel(mode CancelMode, deadline time.Duration, wakeLane bool) (CancelOutcome, error) {
	req := cancelSoft
	if mode == CancelHard {
		req = cancelHard
	}
	l.cancelReq.Store(int32(req))

	if mode == CancelHard {
		l.interruptRunning()
		if wakeLane {
			l.wakeBlockingLinda()
		}
	}

	if l.status.Load().IsTerminal() {
		return CancelOutcomeCancelled, nil
	}

	select {
	case <-l.done:
		return CancelOutcomeCancelled, nil
	case <-time.After(deadline):
		return CancelOutcomeTimeout, nil
	}
}

// cancelTest is the Go-side implementation bound into a lane's runtime as
// `cancel_test()`: it reports whether a cancellation (of either mode) has
// been requested, letting cooperative script code poll and exit early.
func (l *Lane) cancelTest() bool {
	return cancelRequest(l.cancelReq.Load()) != cancelNone
}

// interruptRunning asks goja to preemptively stop whatever script is
// currently executing in l's runtime. This is the *only* mechanism this
// package uses for preemption, per spec.md §5 ("No preemption of arbitrary
// host code: preemption is available only via a debug-hook mechanism the
// scripting language itself provides").
func (l *Lane) interruptRunning() {
	rt := l.activeRuntime()
	if rt != nil {
		rt.Interrupt(ErrCancelled)
	}
}

func (l *Lane) activeRuntime() *goja.Runtime {
	l.runtimeMu.RLock()
	defer l.runtimeMu.RUnlock()
	return l.runtime
}

// wakeBlockingLinda wakes whatever Linda l last recorded itself as blocking
// on, unblocking a pending send/receive so the hard-cancel is observed
// promptly rather than at the next wake-period tick.
func (l *Lane) wakeBlockingLinda() {
	l.waitingOnMu.Lock()
	lnd := l.waitingOn
	l.waitingOnMu.Unlock()
	if lnd != nil {
		lnd.wake(WakeBoth)
	}
}
