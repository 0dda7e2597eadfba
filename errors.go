package lanes

import (
	"errors"
	"fmt"
)

// ConfigError is raised synchronously by [Configure] when an option is
// invalid; it is fatal to the Universe creation attempt.
type ConfigError struct {
	Option  string
	Message string
	Cause   error
}

func (e *ConfigError) Error() string {
	if e.Option == "" {
		return fmt.Sprintf("lanes: configure: %s", e.Message)
	}
	return fmt.Sprintf("lanes: configure: %s: %s", e.Option, e.Message)
}

func (e *ConfigError) Unwrap() error { return e.Cause }

// TransferError indicates that a value could not cross a runtime boundary:
// an unrecognized userdata, a lookup-database miss, a converter loop, or too
// many __lanesconvert retries. It is raised in the state that is not a
// keeper, per spec.md §7.
type TransferError struct {
	// Path, when verbose_errors is enabled, describes where in the copied
	// value tree the failure occurred (e.g. "table.field[3]").
	Path    string
	Message string
	Cause   error
}

func (e *TransferError) Error() string {
	if e.Path == "" {
		return fmt.Sprintf("lanes: transfer error: %s", e.Message)
	}
	return fmt.Sprintf("lanes: transfer error at %s: %s", e.Path, e.Message)
}

func (e *TransferError) Unwrap() error { return e.Cause }

// cancelError is the sentinel raised when a hard-cancelled Lane's blocking
// Linda call unwinds. Identity, not message content, is what callers must
// check, via errors.Is(err, ErrCancelled).
type cancelError struct{}

func (*cancelError) Error() string { return "lanes: cancelled" }

// ErrCancelled is the Go-level equivalent of spec.md's cancel-error
// light-userdata sentinel: a single, identity-comparable value recognized by
// lane body teardown, Linda send/receive, and Lane.Join.
var ErrCancelled error = &cancelError{}

// IsCancelled reports whether err is (or wraps) ErrCancelled.
func IsCancelled(err error) bool {
	return errors.Is(err, ErrCancelled)
}

// lindaCancelledError is the sentinel a blocked Send/Receive unwinds with
// once Linda.Cancel has been called against the side it is blocked on.
// Distinct from ErrCancelled: this is a Linda-level cancellation (spec.md
// §4.3), not a Lane-level one, and a lane can observe it without itself
// ever being cancelled.
type lindaCancelledError struct{}

func (*lindaCancelledError) Error() string { return "lanes: linda cancelled" }

// ErrLindaCancelled is returned by Send/Receive (and their wrappers) once
// the Linda they are blocked on has been cancelled via Linda.Cancel.
var ErrLindaCancelled error = &lindaCancelledError{}

// IsLindaCancelled reports whether err is (or wraps) ErrLindaCancelled.
func IsLindaCancelled(err error) bool {
	return errors.Is(err, ErrLindaCancelled)
}

// KeeperError wraps a panic recovered from inside a Keeper operation (a
// faulty conversion hook or user callback), so it surfaces to the calling
// Lane as an ordinary error rather than crashing the keeper goroutine. See
// spec.md §7: "Keeper-serialized operations never propagate cross-thread
// exceptions."
type KeeperError struct {
	Op      string
	Key     any
	Recover any
}

func (e *KeeperError) Error() string {
	return fmt.Sprintf("lanes: keeper: %s: recovered: %v", e.Op, e.Recover)
}

// RestrictionError is raised when a Linda operation is attempted against a
// key whose access restriction forbids it (spec.md §4.2 `restrict`).
type RestrictionError struct {
	Key       any
	Operation string
	Mode      Restriction
}

func (e *RestrictionError) Error() string {
	return fmt.Sprintf("lanes: linda: key %v is restricted to %s, cannot %s", e.Key, e.Mode, e.Operation)
}

// FinalizerError overrides a lane's outcome when a finalizer itself errors;
// it short-circuits any remaining finalizers (spec.md §4.4).
type FinalizerError struct {
	Cause error
}

func (e *FinalizerError) Error() string {
	return fmt.Sprintf("lanes: finalizer error: %v", e.Cause)
}

func (e *FinalizerError) Unwrap() error { return e.Cause }
