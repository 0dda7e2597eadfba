package lanes

import (
	"testing"

	"github.com/dop251/goja"
	"github.com/stretchr/testify/require"
)

// S1 (FIFO): three sends under one key come back in the same order.
func TestKeeper_FIFO(t *testing.T) {
	u, err := Configure()
	require.NoError(t, err)
	kp := u.Keeper(0)
	require.NotNil(t, kp)

	const obfID = uint64(1)
	key := "k"
	rt := goja.New()

	for i := 1; i <= 3; i++ {
		status, pushed, err := kp.trySend(obfID, key, rt.ToValue(i))
		require.NoError(t, err)
		require.True(t, pushed)
		require.Equal(t, CapacityUnder, status)
	}

	for i := 1; i <= 3; i++ {
		idx, values, err := kp.tryReceiveMany(obfID, []any{key}, 1)
		require.NoError(t, err)
		require.Equal(t, 0, idx)
		require.Len(t, values, 1)
		require.Equal(t, int64(i), values[0].ToInteger())
	}

	idx, values, err := kp.tryReceiveMany(obfID, []any{key}, 1)
	require.NoError(t, err)
	require.Equal(t, -1, idx)
	require.Nil(t, values)
}

// S2 (Capacity): limit(k,1); a first send is accepted with status "exact"
// and a second is refused, still "exact"; a subsequent set of three values
// returns (..., "over"); count == 3; limit query == 1.
func TestKeeper_Capacity(t *testing.T) {
	u, err := Configure()
	require.NoError(t, err)
	kp := u.Keeper(0)

	const obfID = uint64(2)
	key := "k"
	rt := goja.New()

	one := 1
	prevLimit, status, err := kp.limit(obfID, key, &one)
	require.NoError(t, err)
	require.Equal(t, -1, prevLimit)
	require.Equal(t, CapacityUnder, status)

	status, pushed, err := kp.trySend(obfID, key, rt.ToValue("a"))
	require.NoError(t, err)
	require.True(t, pushed)
	require.Equal(t, CapacityExact, status)

	status, pushed, err = kp.trySend(obfID, key, rt.ToValue("b"))
	require.NoError(t, err)
	require.False(t, pushed)
	require.Equal(t, CapacityExact, status)

	displaced, status, err := kp.set(obfID, key, []goja.Value{rt.ToValue("a"), rt.ToValue("b"), rt.ToValue("c")})
	require.NoError(t, err)
	require.True(t, displaced)
	require.Equal(t, CapacityOver, status)

	n, err := kp.count(obfID, key)
	require.NoError(t, err)
	require.Equal(t, 3, n)

	prevLimit, _, err = kp.limit(obfID, key, nil)
	require.NoError(t, err)
	require.Equal(t, 1, prevLimit)
}

func TestKeeper_Restrict(t *testing.T) {
	u, err := Configure()
	require.NoError(t, err)
	kp := u.Keeper(0)

	const obfID = uint64(3)
	key := "k"
	rt := goja.New()

	mode := RestrictSetGet
	_, err = kp.restrict(obfID, key, &mode)
	require.NoError(t, err)

	_, _, err = kp.trySend(obfID, key, rt.ToValue(1))
	require.Error(t, err)
	var restrictErr *RestrictionError
	require.ErrorAs(t, err, &restrictErr)

	_, err = kp.get(obfID, key, 0)
	require.NoError(t, err)

	mode = RestrictSendReceive
	prev, err := kp.restrict(obfID, key, &mode)
	require.NoError(t, err)
	require.Equal(t, RestrictSetGet, prev)

	_, err = kp.get(obfID, key, 0)
	require.Error(t, err)

	_, _, err = kp.trySend(obfID, key, rt.ToValue(1))
	require.NoError(t, err)
}

func TestKeeper_CountForms(t *testing.T) {
	u, err := Configure()
	require.NoError(t, err)
	kp := u.Keeper(0)

	const obfID = uint64(4)
	rt := goja.New()

	_, _, err = kp.set(obfID, "a", []goja.Value{rt.ToValue(1), rt.ToValue(2)})
	require.NoError(t, err)
	_, _, err = kp.set(obfID, "b", []goja.Value{rt.ToValue(1)})
	require.NoError(t, err)

	total, _, _, err := kp.countKeys(obfID, nil)
	require.NoError(t, err)
	require.Equal(t, 2, total)

	_, single, _, err := kp.countKeys(obfID, []any{"a"})
	require.NoError(t, err)
	require.Equal(t, 2, single)

	_, _, multi, err := kp.countKeys(obfID, []any{"a", "b", "c"})
	require.NoError(t, err)
	require.Equal(t, map[any]int{"a": 2, "b": 1, "c": 0}, multi)
}

func TestKeeper_ReceiveManyPrefersArgumentOrder(t *testing.T) {
	u, err := Configure()
	require.NoError(t, err)
	kp := u.Keeper(0)

	const obfID = uint64(5)
	rt := goja.New()

	_, _, err = kp.trySend(obfID, "second", rt.ToValue("only-here"))
	require.NoError(t, err)

	idx, values, err := kp.tryReceiveMany(obfID, []any{"first", "second"}, 1)
	require.NoError(t, err)
	require.Equal(t, 1, idx)
	require.Equal(t, "only-here", values[0].Export())
}

func TestKeeper_DestroyAllTombstones(t *testing.T) {
	u, err := Configure()
	require.NoError(t, err)
	kp := u.Keeper(0)
	kp.destroyAll()

	_, _, err = kp.trySend(1, "k", goja.Null())
	require.Error(t, err)
}
