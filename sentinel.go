package lanes

// Null is the public nil-sentinel value, usable as an ordinary Go value for
// identity comparisons (`v == lanes.Null`). The inter-copy engine and
// keeper storage do not use it: package copier represents nil with its own
// internal sentinel, and no code in this package produces Null.
type nullSentinel struct{}

// Null is the unique nil-sentinel instance.
var Null = &nullSentinel{}

// Restriction limits which operation family may touch a Linda key
// (spec.md §4.2 `restrict`).
type Restriction int

const (
	// RestrictNone applies no restriction (default).
	RestrictNone Restriction = iota
	// RestrictSetGet permits only Set/Get on the key; Send/Receive raise.
	RestrictSetGet
	// RestrictSendReceive permits only Send/Receive on the key; Set/Get raise.
	RestrictSendReceive
)

func (r Restriction) String() string {
	switch r {
	case RestrictSetGet:
		return "set/get"
	case RestrictSendReceive:
		return "send/receive"
	default:
		return "none"
	}
}

// CapacityStatus describes a key's fill level relative to its limit after
// an operation (spec.md §4.2).
type CapacityStatus int

const (
	// CapacityUnder indicates the key is strictly below its limit.
	CapacityUnder CapacityStatus = iota
	// CapacityExact indicates the key is exactly at its limit.
	CapacityExact
	// CapacityOver indicates the key exceeds its limit (only possible
	// after a Set, or after Limit lowers the cap below the current fill).
	CapacityOver
)

func (c CapacityStatus) String() string {
	switch c {
	case CapacityExact:
		return "exact"
	case CapacityOver:
		return "over"
	default:
		return "under"
	}
}

// LindaStatus reports whether a Linda is accepting blocking Send/Receive
// calls or currently cancelled (spec.md §4.3 `cancel`/status).
type LindaStatus int

const (
	// LindaActive is the default: Send/Receive block and wait normally.
	LindaActive LindaStatus = iota
	// LindaCancelled causes any Send/Receive blocked on the cancelled
	// side(s) to unwind immediately with ErrLindaCancelled.
	LindaCancelled
)

func (s LindaStatus) String() string {
	if s == LindaCancelled {
		return "cancelled"
	}
	return "active"
}

// LindaCancelMode selects which side(s) of a Linda Linda.Cancel affects
// (spec.md §4.3 `cancel(mode)`).
type LindaCancelMode int

const (
	// LindaCancelNone clears any previous cancellation, returning the
	// Linda to LindaActive.
	LindaCancelNone LindaCancelMode = iota
	// LindaCancelRead cancels blocked Receive calls only.
	LindaCancelRead
	// LindaCancelWrite cancels blocked Send calls only.
	LindaCancelWrite
	// LindaCancelBoth cancels both blocked Send and Receive calls.
	LindaCancelBoth
)

// CancelMode selects how aggressively Lane.Cancel unwinds a lane.
type CancelMode int

const (
	// CancelSoft sets the cooperative cancel-request flag only.
	CancelSoft CancelMode = iota
	// CancelHard additionally interrupts the lane's running script via
	// goja.Runtime.Interrupt; a Linda Send/Receive the lane is blocked in
	// returns ErrCancelled when it next wakes.
	CancelHard
)

// CancelOutcome is returned by Lane.Cancel.
type CancelOutcome int

const (
	// CancelOutcomeCancelled indicates the lane reached a terminal state
	// within the deadline.
	CancelOutcomeCancelled CancelOutcome = iota
	// CancelOutcomeTimeout indicates the deadline elapsed first.
	CancelOutcomeTimeout
)
