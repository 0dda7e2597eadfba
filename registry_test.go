package lanes

import (
	"testing"

	"github.com/dop251/goja"
	"github.com/stretchr/testify/require"
)

func TestLookupDB_RegisterResolveNameOf(t *testing.T) {
	rt := goja.New()
	db := newLookupDB()

	obj := rt.NewObject()
	db.Register("math.fn", obj)

	got, ok := db.Resolve("math.fn")
	require.True(t, ok)
	require.Same(t, obj, got)

	name, ok := db.NameOf(obj)
	require.True(t, ok)
	require.Equal(t, "math.fn", name)
}

func TestLookupDB_RegisterOverwritesAndUnlinksOldValue(t *testing.T) {
	rt := goja.New()
	db := newLookupDB()

	first := rt.NewObject()
	second := rt.NewObject()

	db.Register("slot", first)
	db.Register("slot", second)

	got, ok := db.Resolve("slot")
	require.True(t, ok)
	require.Same(t, second, got)

	_, ok = db.NameOf(first)
	require.False(t, ok)

	name, ok := db.NameOf(second)
	require.True(t, ok)
	require.Equal(t, "slot", name)
}

func TestLookupDB_Unregister(t *testing.T) {
	rt := goja.New()
	db := newLookupDB()

	obj := rt.NewObject()
	db.Register("gone", obj)
	db.Unregister("gone")

	_, ok := db.Resolve("gone")
	require.False(t, ok)
	_, ok = db.NameOf(obj)
	require.False(t, ok)
}

func TestMetatableTable_IDForIsStableAndStoreRoundTrips(t *testing.T) {
	u, err := Configure()
	require.NoError(t, err)

	rt := goja.New()
	table := newMetatableTable(u)

	proto := rt.NewObject()
	id1 := table.IDFor(proto)
	id2 := table.IDFor(proto)
	require.Equal(t, id1, id2)

	otherProto := rt.NewObject()
	id3 := table.IDFor(otherProto)
	require.NotEqual(t, id1, id3)

	_, ok := table.Lookup(id1)
	require.False(t, ok)

	table.Store(id1, proto)
	got, ok := table.Lookup(id1)
	require.True(t, ok)
	require.Same(t, proto, got)
}

func TestStateExtensions_LazyRegisterAndForget(t *testing.T) {
	u, err := Configure()
	require.NoError(t, err)

	rt := goja.New()
	ext1 := u.stateExtensions(rt)
	ext2 := u.stateExtensions(rt)
	require.Same(t, ext1, ext2)

	u.forgetState(rt)
	ext3 := u.stateExtensions(rt)
	require.NotSame(t, ext1, ext3)
}
