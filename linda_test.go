package lanes

import (
	"testing"
	"time"

	"github.com/dop251/goja"
	"github.com/stretchr/testify/require"
)

// newTestLane builds a bare Lane whose runtime is rt, enough to exercise
// Linda operations directly without spawning a goroutine.
func newTestLane(rt *goja.Runtime) *Lane {
	l := &Lane{status: newLaneState(), done: make(chan struct{})}
	l.runtime = rt
	return l
}

func TestLinda_SendReceiveRoundTrip(t *testing.T) {
	u, err := Configure()
	require.NoError(t, err)
	ln, err := u.NewLinda("test", 0)
	require.NoError(t, err)

	rt := goja.New()
	l := newTestLane(rt)

	status, ok, err := ln.Send(l, rt.ToValue("k"), time.Second, rt.ToValue(42))
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, CapacityUnder, status)

	v, ok, err := ln.ReceiveOne(l, rt.ToValue("k"), time.Second)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, int64(42), v.ToInteger())
}

func TestLinda_ReceiveTimesOutWhenEmpty(t *testing.T) {
	u, err := Configure(WithLindaWakePeriod(5 * time.Millisecond))
	require.NoError(t, err)
	ln, err := u.NewLinda("test", 0)
	require.NoError(t, err)

	rt := goja.New()
	l := newTestLane(rt)

	start := time.Now()
	v, ok, err := ln.ReceiveOne(l, rt.ToValue("nope"), 30*time.Millisecond)
	require.NoError(t, err)
	require.False(t, ok)
	require.Nil(t, v)
	require.GreaterOrEqual(t, time.Since(start), 25*time.Millisecond)
}

func TestLinda_SendBlocksUntilCapacityFrees(t *testing.T) {
	u, err := Configure(WithLindaWakePeriod(5 * time.Millisecond))
	require.NoError(t, err)
	ln, err := u.NewLinda("test", 0)
	require.NoError(t, err)

	rt := goja.New()
	l := newTestLane(rt)

	one := 1
	_, _, err = ln.Limit(rt.ToValue("k"), &one)
	require.NoError(t, err)

	status, ok, err := ln.Send(l, rt.ToValue("k"), time.Second, rt.ToValue(1))
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, CapacityExact, status)

	done := make(chan struct{})
	go func() {
		defer close(done)
		status, ok, err := ln.Send(l, rt.ToValue("k"), time.Second, rt.ToValue(2))
		require.NoError(t, err)
		require.True(t, ok)
		require.Equal(t, CapacityExact, status)
	}()

	// drain the first value to free capacity for the blocked send above.
	time.Sleep(20 * time.Millisecond)
	v, ok, err := ln.ReceiveOne(l, rt.ToValue("k"), time.Second)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, int64(1), v.ToInteger())

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("blocked send did not unblock after capacity freed")
	}
}

func TestLinda_MultiKeyReceivePrefersOrder(t *testing.T) {
	u, err := Configure()
	require.NoError(t, err)
	ln, err := u.NewLinda("test", 0)
	require.NoError(t, err)

	rt := goja.New()
	l := newTestLane(rt)

	_, _, err = ln.Set(l, rt.ToValue("second"), rt.ToValue("value"))
	require.NoError(t, err)

	matched, values, ok, err := ln.Receive(l, time.Second, 1, rt.ToValue("first"), rt.ToValue("second"))
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "second", matched.String())
	require.Equal(t, "value", values[0].Export())
}

func TestLinda_SetGetCountRestrict(t *testing.T) {
	u, err := Configure()
	require.NoError(t, err)
	ln, err := u.NewLinda("test", 0)
	require.NoError(t, err)

	rt := goja.New()
	l := newTestLane(rt)

	displaced, status, err := ln.Set(l, rt.ToValue("k"), rt.ToValue(1), rt.ToValue(2), rt.ToValue(3))
	require.NoError(t, err)
	require.False(t, displaced)
	require.Equal(t, CapacityUnder, status)

	vs, err := ln.Get(l, rt.ToValue("k"), 0)
	require.NoError(t, err)
	require.Len(t, vs, 3)

	_, single, _, err := ln.Count(rt.ToValue("k"))
	require.NoError(t, err)
	require.Equal(t, 3, single)

	mode := RestrictSendReceive
	prev, err := ln.Restrict(rt.ToValue("k"), &mode)
	require.NoError(t, err)
	require.Equal(t, RestrictNone, prev)

	_, _, err = ln.Set(l, rt.ToValue("k"), rt.ToValue(1))
	require.Error(t, err)
}

func TestLinda_CancelUnblocksReceive(t *testing.T) {
	u, err := Configure(WithLindaWakePeriod(5 * time.Millisecond))
	require.NoError(t, err)
	ln, err := u.NewLinda("test", 0)
	require.NoError(t, err)

	rt := goja.New()
	l := newTestLane(rt)

	require.Equal(t, LindaActive, ln.Status())

	done := make(chan struct{})
	var recvErr error
	go func() {
		defer close(done)
		_, _, recvErr = ln.ReceiveOne(l, rt.ToValue("k"), time.Second)
	}()

	time.Sleep(20 * time.Millisecond)
	ln.Cancel(LindaCancelRead)
	require.Equal(t, LindaCancelled, ln.Status())

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("cancelled receive did not unblock")
	}
	require.True(t, IsLindaCancelled(recvErr))

	ln.Cancel(LindaCancelNone)
	require.Equal(t, LindaActive, ln.Status())
}

func TestLinda_WakeNudgesBlockedReceive(t *testing.T) {
	u, err := Configure()
	require.NoError(t, err)
	ln, err := u.NewLinda("test", 0)
	require.NoError(t, err)

	rt := goja.New()
	l := newTestLane(rt)

	done := make(chan struct{})
	go func() {
		defer close(done)
		_, _, _ = ln.ReceiveOne(l, rt.ToValue("k"), time.Minute)
	}()

	time.Sleep(20 * time.Millisecond)
	_, _, err = ln.Set(l, rt.ToValue("k"), rt.ToValue(7))
	require.NoError(t, err)
	ln.Wake(WakeRead)

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("woken receive did not complete")
	}
}

func TestLinda_DeepProxySharesName(t *testing.T) {
	u, err := Configure()
	require.NoError(t, err)
	ln, err := u.NewLinda("shared", 0)
	require.NoError(t, err)

	rt := goja.New()
	proxy, err := ln.Deep(rt)
	require.NoError(t, err)
	obj, ok := proxy.(*goja.Object)
	require.True(t, ok)
	require.Equal(t, "shared", obj.Get("name").String())

	rt2 := goja.New()
	proxy2, err := ln.Deep(rt2)
	require.NoError(t, err)
	obj2, ok := proxy2.(*goja.Object)
	require.True(t, ok)
	require.Equal(t, "shared", obj2.Get("name").String())
}

func TestLinda_Dump(t *testing.T) {
	u, err := Configure()
	require.NoError(t, err)
	ln, err := u.NewLinda("test", 0)
	require.NoError(t, err)

	rt := goja.New()
	l := newTestLane(rt)

	_, _, err = ln.Set(l, rt.ToValue("a"), rt.ToValue(1), rt.ToValue(2))
	require.NoError(t, err)
	_, _, err = ln.Set(l, rt.ToValue("b"), rt.ToValue(1))
	require.NoError(t, err)

	entries, err := ln.Dump()
	require.NoError(t, err)
	require.Len(t, entries, 2)
	require.Equal(t, "a", entries[0].Key)
	require.Equal(t, 2, entries[0].Count)
	require.Equal(t, "b", entries[1].Key)
	require.Equal(t, 1, entries[1].Count)
}

func TestLinda_Destruct(t *testing.T) {
	u, err := Configure()
	require.NoError(t, err)
	ln, err := u.NewLinda("test", 0)
	require.NoError(t, err)

	rt := goja.New()
	l := newTestLane(rt)

	_, _, err = ln.Set(l, rt.ToValue("k"), rt.ToValue(1))
	require.NoError(t, err)

	ln.Destruct()

	_, single, _, err := ln.Count(rt.ToValue("k"))
	require.NoError(t, err)
	require.Equal(t, 0, single)
}
