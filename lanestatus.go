package lanes

import "sync/atomic"

// Status is a Lane's lifecycle state, per spec.md §3:
//
//	Pending -> Running -> (Waiting <-> Running) -> (Suspended <-> Resuming -> Running) -> {Done, Error, Cancelled}
//
// Terminal states are sinks. The lane's own goroutine writes Status, except
// that Resume stores Resuming from the caller's goroutine; other goroutines
// read with acquire semantics or wait on a Lane's done channel.
//
// The encoding and the CAS-based transition helpers are adapted from this
// repository's eventloop package (eventloop/state.go's FastState /
// LoopState), re-keyed to the Lane FSM instead of the event loop's FSM.
type Status uint32

const (
	// StatusPending indicates a lane has been created but its goroutine
	// has not yet started running the body.
	StatusPending Status = iota
	// StatusRunning indicates the lane body is actively executing.
	StatusRunning
	// StatusSuspended indicates a coroutine-mode lane has yielded and is
	// awaiting Resume.
	StatusSuspended
	// StatusResuming indicates a coroutine-mode lane has been asked to
	// resume but has not yet transitioned back to Running.
	StatusResuming
	// StatusWaiting indicates the lane is blocked in a Linda operation.
	StatusWaiting
	// StatusDone indicates the lane body returned normally.
	StatusDone
	// StatusError indicates the lane body raised an uncaught error.
	StatusError
	// StatusCancelled indicates the lane unwound via ErrCancelled.
	StatusCancelled
)

func (s Status) String() string {
	switch s {
	case StatusPending:
		return "Pending"
	case StatusRunning:
		return "Running"
	case StatusSuspended:
		return "Suspended"
	case StatusResuming:
		return "Resuming"
	case StatusWaiting:
		return "Waiting"
	case StatusDone:
		return "Done"
	case StatusError:
		return "Error"
	case StatusCancelled:
		return "Cancelled"
	default:
		return "Unknown"
	}
}

// IsTerminal reports whether s is one of {Done, Error, Cancelled}.
func (s Status) IsTerminal() bool {
	return s == StatusDone || s == StatusError || s == StatusCancelled
}

// laneState is a lock-free holder for a Lane's current Status, mirroring
// eventloop.FastState: a plain atomic store/load plus CAS-based transition
// helpers. The lane's own goroutine (Lane.run, Yield) makes every
// transition except Resuming, which Resume stores from the caller's
// goroutine; Cancel, Join and Status only read it or wait on Lane.done,
// which is closed exactly once the final transition lands.
type laneState struct {
	v atomic.Uint32
}

func newLaneState() *laneState {
	s := &laneState{}
	s.v.Store(uint32(StatusPending))
	return s
}

func (s *laneState) Load() Status {
	return Status(s.v.Load())
}

func (s *laneState) Store(st Status) {
	s.v.Store(uint32(st))
}

func (s *laneState) CompareAndSwap(from, to Status) bool {
	return s.v.CompareAndSwap(uint32(from), uint32(to))
}
