package lanes

import (
	"time"

	"github.com/dop251/goja"
)

// ConvertFallback names a `convert_fallback` mode (spec.md §6). The mode
// value is validated and stored but no copy path consults it; only the
// function installed by WithConvertFallbackFunc has an effect, and the
// inter-copy engine calls it only for a function value it cannot otherwise
// transfer. No `__lanesconvert` metatable field is looked up.
type ConvertFallback int

const (
	// ConvertDoNothing leaves unconvertible values to fail transfer.
	ConvertDoNothing ConvertFallback = iota
	// ConvertToNil names the nil-sentinel replacement mode; no copy path
	// acts on it.
	ConvertToNil
	// ConvertToDecay names the light-userdata-equivalent pointer-carrier
	// mode; no copy path acts on it.
	ConvertToDecay
	// ConvertFunc delegates to a user-supplied Go function.
	ConvertFunc
)

// OnStateCreate is invoked on every newly-created runtime (each lane's
// runtime and each keeper's) immediately after base setup. Per
// DESIGN.md Open Question #1, this package only accepts a plain Go closure
// here (never a goja script function), which sidesteps the original's
// silently-ignored-upvalues ambiguity entirely.
type OnStateCreate func(rt *goja.Runtime) error

// universeOptions is the private configuration struct populated by
// ConfigOption values, mirroring eventloop/options.go's loopOptions.
type universeOptions struct {
	nbUserKeepers        int
	keepersGCThreshold    int
	onStateCreate        OnStateCreate
	shutdownTimeout       time.Duration
	stripFunctions        bool
	trackLanes            bool
	verboseErrors         bool
	withTimers            bool
	convertFallback       ConvertFallback
	convertFallbackFunc   func(rt *goja.Runtime, v goja.Value, hint string) (goja.Value, error)
	convertMaxAttempts    int
	allocatorProtected    bool
	linedaDefaultWakePeriod time.Duration
}

// ConfigOption configures a Universe, in the style of
// eventloop.LoopOption/loopOptionImpl.
type ConfigOption interface {
	applyUniverse(*universeOptions) error
}

type configOptionFunc struct {
	fn func(*universeOptions) error
}

func (f *configOptionFunc) applyUniverse(o *universeOptions) error { return f.fn(o) }

func optionFunc(fn func(*universeOptions) error) ConfigOption {
	return &configOptionFunc{fn: fn}
}

// WithNbUserKeepers sets the number of additional keepers beyond the
// default group-0 keeper. Valid range is [0,100] (spec.md §6).
func WithNbUserKeepers(n int) ConfigOption {
	return optionFunc(func(o *universeOptions) error {
		if n < 0 || n > 100 {
			return &ConfigError{Option: "nb_user_keepers", Message: "must be within [0,100]"}
		}
		o.nbUserKeepers = n
		return nil
	})
}

// WithKeepersGCThreshold sets the mutation-count threshold (catrate-gated,
// see internal/keeperqueue) after which a keeper considers running its
// garbage collector.
func WithKeepersGCThreshold(n int) ConfigOption {
	return optionFunc(func(o *universeOptions) error {
		if n < 0 {
			return &ConfigError{Option: "keepers_gc_threshold", Message: "must be >= 0"}
		}
		o.keepersGCThreshold = n
		return nil
	})
}

// WithOnStateCreate installs a hook invoked on every new runtime (lane and
// keeper alike).
func WithOnStateCreate(fn OnStateCreate) ConfigOption {
	return optionFunc(func(o *universeOptions) error {
		if fn == nil {
			return &ConfigError{Option: "on_state_create", Message: "must not be nil"}
		}
		o.onStateCreate = fn
		return nil
	})
}

// WithShutdownTimeout bounds how long Universe teardown waits for dangling
// lanes after a hard-cancel sweep. Valid range is [0, 3600] seconds.
func WithShutdownTimeout(d time.Duration) ConfigOption {
	return optionFunc(func(o *universeOptions) error {
		if d < 0 || d > 3600*time.Second {
			return &ConfigError{Option: "shutdown_timeout", Message: "must be within [0,3600] seconds"}
		}
		o.shutdownTimeout = d
		return nil
	})
}

// WithStripFunctions records whether dumped function bytecode strips debug
// info. Defaults to true. No copy path reads the setting: functions cross
// runtimes as a compiled copier.Closure or a Go func, never as dumped
// bytecode.
func WithStripFunctions(strip bool) ConfigOption {
	return optionFunc(func(o *universeOptions) error {
		o.stripFunctions = strip
		return nil
	})
}

// WithTrackLanes enables the intrusive lane-tracker list.
func WithTrackLanes(enabled bool) ConfigOption {
	return optionFunc(func(o *universeOptions) error {
		o.trackLanes = enabled
		return nil
	})
}

// WithVerboseErrors enables building path strings for transfer error
// messages (at a performance cost on the failure path only).
func WithVerboseErrors(enabled bool) ConfigOption {
	return optionFunc(func(o *universeOptions) error {
		o.verboseErrors = enabled
		return nil
	})
}

// WithTimers controls whether the Universe reserves keeper group 0 and a
// timer Linda accessor. The timer *driver* lane itself is out of scope
// (spec.md §1); only the reservation is part of the hard core.
func WithTimers(enabled bool) ConfigOption {
	return optionFunc(func(o *universeOptions) error {
		o.withTimers = enabled
		return nil
	})
}

// WithConvertFallback sets the default __lanesconvert policy.
func WithConvertFallback(mode ConvertFallback) ConfigOption {
	return optionFunc(func(o *universeOptions) error {
		if mode < ConvertDoNothing || mode > ConvertFunc {
			return &ConfigError{Option: "convert_fallback", Message: "unrecognized mode"}
		}
		o.convertFallback = mode
		return nil
	})
}

// WithConvertFallbackFunc sets a custom conversion function, implying
// ConvertFunc mode.
func WithConvertFallbackFunc(fn func(rt *goja.Runtime, v goja.Value, hint string) (goja.Value, error)) ConfigOption {
	return optionFunc(func(o *universeOptions) error {
		if fn == nil {
			return &ConfigError{Option: "convert_fallback", Message: "function must not be nil"}
		}
		o.convertFallback = ConvertFunc
		o.convertFallbackFunc = fn
		return nil
	})
}

// WithConvertMaxAttempts sets convert_max_attempts (at least 1), which is
// passed on as copier.Context.ConvertMaxAttempts. The inter-copy engine does
// not read that field, so no attempt cap is applied.
func WithConvertMaxAttempts(n int) ConfigOption {
	return optionFunc(func(o *universeOptions) error {
		if n < 1 {
			return &ConfigError{Option: "convert_max_attempts", Message: "must be >= 1"}
		}
		o.convertMaxAttempts = n
		return nil
	})
}

// WithProtectedAllocator wraps the Universe's copy-cache allocator (see
// alloc.go's copyCachePool, used by every inter-copy Copy call via
// copybridge.go) with a mutex that serializes every Get/Put through it
// (spec.md §5/§6). Go's own pool is already safe for concurrent use
// without it; this option exists so the configuration surface spec.md §6
// names has an observable effect rather than being silently accepted.
func WithProtectedAllocator(enabled bool) ConfigOption {
	return optionFunc(func(o *universeOptions) error {
		o.allocatorProtected = enabled
		return nil
	})
}

// WithLindaWakePeriod sets the default polling cadence lindas use while
// blocked in send/receive, bounding how promptly a cancellation is noticed.
func WithLindaWakePeriod(d time.Duration) ConfigOption {
	return optionFunc(func(o *universeOptions) error {
		if d <= 0 {
			return &ConfigError{Option: "linda_wake_period", Message: "must be > 0"}
		}
		o.linedaDefaultWakePeriod = d
		return nil
	})
}

func resolveUniverseOptions(opts []ConfigOption) (*universeOptions, error) {
	o := &universeOptions{
		stripFunctions:          true,
		withTimers:              true,
		convertFallback:         ConvertDoNothing,
		convertMaxAttempts:      1,
		shutdownTimeout:         5 * time.Second,
		linedaDefaultWakePeriod: 100 * time.Millisecond,
	}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		if err := opt.applyUniverse(o); err != nil {
			return nil, err
		}
	}
	return o, nil
}
