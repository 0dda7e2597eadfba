package lanes

import (
	"context"
	"testing"
	"time"

	"github.com/dop251/goja"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func compile(t *testing.T, src string) *goja.Program {
	t.Helper()
	prog, err := goja.Compile("test.js", src, true)
	require.NoError(t, err)
	return prog
}

func TestLane_BasicJoin(t *testing.T) {
	u, err := Configure()
	require.NoError(t, err)

	l, err := NewLane(u, LaneConfig{
		Name:    "basic",
		Program: compile(t, `(function(a, b) { return a + b; })`),
		Args:    []goja.Value{},
	})
	require.NoError(t, err)

	callerRT := goja.New()
	results, ok, err := l.Join(callerRT, time.Second)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, StatusDone, l.Status())
	require.Len(t, results, 1)
}

func TestLane_ArgsCrossRuntimeBoundary(t *testing.T) {
	u, err := Configure()
	require.NoError(t, err)

	callerRT := goja.New()
	args := []goja.Value{callerRT.ToValue(3), callerRT.ToValue(4)}

	l, err := NewLane(u, LaneConfig{
		Name:        "sum",
		Program:     compile(t, `(function(a, b) { return a + b; })`),
		Args:        args,
		ArgsRuntime: callerRT,
	})
	require.NoError(t, err)

	results, ok, err := l.Join(callerRT, time.Second)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, int64(7), results[0].ToInteger())
}

func TestLane_RuntimeErrorBecomesErrorStatus(t *testing.T) {
	u, err := Configure()
	require.NoError(t, err)

	l, err := NewLane(u, LaneConfig{
		Name:    "boom",
		Program: compile(t, `(function() { throw new Error("boom"); })`),
	})
	require.NoError(t, err)

	callerRT := goja.New()
	_, ok, err := l.Join(callerRT, time.Second)
	require.True(t, ok)
	require.Error(t, err)
	require.Equal(t, StatusError, l.Status())
}

// S5 (hard cancel unblocks a lane parked in a blocking Linda receive).
func TestLane_HardCancelUnblocksLindaReceive(t *testing.T) {
	u, err := Configure(WithLindaWakePeriod(5 * time.Millisecond))
	require.NoError(t, err)
	ln, err := u.NewLinda("test", 0)
	require.NoError(t, err)

	// laneHolder hands the Lane back to its own Preload closure once
	// NewLane returns it; Preload blocks on the receive until then, so
	// there's no race between lane-goroutine start and handle assignment.
	laneHolder := make(chan *Lane, 1)

	l, err := NewLane(u, LaneConfig{
		Name:    "receiver",
		Program: compile(t, `(function() { return receive("k"); })`),
		Preload: func(rt *goja.Runtime) error {
			lane := <-laneHolder
			laneHolder <- lane
			return rt.Set("receive", func(call goja.FunctionCall) goja.Value {
				v, _, err := ln.ReceiveOne(lane, call.Arguments[0], -1)
				if err != nil {
					panic(rt.ToValue(err.Error()))
				}
				return v
			})
		},
	})
	require.NoError(t, err)
	laneHolder <- l

	assert.Eventually(t, func() bool {
		return l.Status() == StatusWaiting
	}, time.Second, 5*time.Millisecond)

	outcome, err := l.Cancel(CancelHard, 2*time.Second, true)
	require.NoError(t, err)
	require.Equal(t, CancelOutcomeCancelled, outcome)

	callerRT := goja.New()
	_, ok, err := l.Join(callerRT, time.Second)
	require.True(t, ok)
	require.True(t, IsCancelled(err))
	require.Equal(t, StatusCancelled, l.Status())
}

// S6 (coroutine resume): a coroutine-mode lane yields 1, then 2, then
// returns 3.
func TestLane_CoroutineYieldResume(t *testing.T) {
	u, err := Configure()
	require.NoError(t, err)

	l, err := NewLane(u, LaneConfig{
		Name:          "coro",
		CoroutineMode: true,
		Program: compile(t, `(function() {
			lane_yield(1);
			lane_yield(2);
			return 3;
		})`),
	})
	require.NoError(t, err)

	yielded, done, err := l.Resume()
	require.NoError(t, err)
	require.False(t, done)
	require.Equal(t, int64(1), yielded[0].ToInteger())

	yielded, done, err = l.Resume()
	require.NoError(t, err)
	require.False(t, done)
	require.Equal(t, int64(2), yielded[0].ToInteger())

	yielded, done, err = l.Resume()
	require.NoError(t, err)
	require.True(t, done)

	assert.Eventually(t, func() bool { return l.Status().IsTerminal() }, time.Second, 5*time.Millisecond)
	require.Equal(t, StatusDone, l.Status())
}

// S6 (coroutine join): joining a suspended coroutine-mode lane returns the
// yielded values promptly instead of blocking until the lane finishes.
func TestLane_JoinReturnsOnSuspend(t *testing.T) {
	u, err := Configure()
	require.NoError(t, err)

	l, err := NewLane(u, LaneConfig{
		Name:          "coro-join",
		CoroutineMode: true,
		Program: compile(t, `(function() {
			lane_yield(1);
			return 2;
		})`),
	})
	require.NoError(t, err)

	callerRT := goja.New()
	results, ok, err := l.Join(callerRT, time.Second)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, StatusSuspended, l.Status())
	require.Len(t, results, 1)
	require.Equal(t, int64(1), results[0].ToInteger())

	_, done, err := l.Resume()
	require.NoError(t, err)
	require.True(t, done)
}

func TestLane_FinalizerRunsLIFOAndOverridesError(t *testing.T) {
	u, err := Configure()
	require.NoError(t, err)

	l, err := NewLane(u, LaneConfig{
		Name: "finalizers",
		Program: compile(t, `(function() {
			set_finalizer(function() { throw new Error("first registered"); });
			set_finalizer(function() { throw new Error("finalizer failed"); });
			return 0;
		})`),
	})
	require.NoError(t, err)

	callerRT := goja.New()
	_, ok, err := l.Join(callerRT, time.Second)
	require.True(t, ok)
	require.Error(t, err)
	var finErr *FinalizerError
	require.ErrorAs(t, err, &finErr)
	require.Contains(t, err.Error(), "finalizer failed")
	require.Equal(t, StatusError, l.Status())
}

func TestLane_AbandonMarksSelfDestructed(t *testing.T) {
	u, err := Configure(WithLindaWakePeriod(5 * time.Millisecond))
	require.NoError(t, err)
	ln, err := u.NewLinda("test", 0)
	require.NoError(t, err)

	laneHolder := make(chan *Lane, 1)

	l, err := NewLane(u, LaneConfig{
		Name:    "abandoned",
		Program: compile(t, `(function() { return receive("never"); })`),
		Preload: func(rt *goja.Runtime) error {
			lane := <-laneHolder
			laneHolder <- lane
			return rt.Set("receive", func(call goja.FunctionCall) goja.Value {
				v, _, _ := ln.ReceiveOne(lane, call.Arguments[0], -1)
				return v
			})
		},
	})
	require.NoError(t, err)
	laneHolder <- l

	l.Abandon()

	u.Shutdown(context.Background())
	assert.Eventually(t, func() bool { return l.Status().IsTerminal() }, time.Second, 5*time.Millisecond)
	require.Equal(t, StatusCancelled, l.Status())
}
