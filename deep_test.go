package lanes

import (
	"testing"

	"github.com/dop251/goja"
	"github.com/stretchr/testify/require"
)

type counterState struct {
	closed int
}

func (c *counterState) Close() error {
	c.closed++
	return nil
}

type counterFactory struct {
	state *counterState
}

func (f *counterFactory) ModuleName() string { return "counter" }

func (f *counterFactory) New() (any, error) {
	return f.state, nil
}

func (f *counterFactory) Bind(rt *goja.Runtime, proxy *goja.Object, state any) error {
	return proxy.Set("value", rt.ToValue(42))
}

// S3 (deep object refcount): create (refcount 1), retain via a second proxy
// (refcount 2), release once (refcount 1, not yet closed), release again
// (refcount 0, Close called exactly once).
func TestDeep_RefcountLifecycle(t *testing.T) {
	u, err := Configure()
	require.NoError(t, err)

	state := &counterState{}
	factory := &counterFactory{state: state}

	rt1 := goja.New()
	proxy1, err := u.NewDeep(rt1, factory)
	require.NoError(t, err)

	id, ok := u.deep.Recognize(rt1, proxy1)
	require.True(t, ok)

	do := u.deep.objects[id]
	require.Equal(t, int64(1), do.refcount.Load())

	rt2 := goja.New()
	proxy2, err := u.deep.Retain(rt2, id)
	require.NoError(t, err)
	require.Equal(t, int64(2), do.refcount.Load())

	id2, ok := u.deep.Recognize(rt2, proxy2)
	require.True(t, ok)
	require.Equal(t, id, id2)

	u.deep.decref(id)
	require.Equal(t, int64(1), do.refcount.Load())
	require.Equal(t, 0, state.closed)

	u.deep.decref(id)
	require.Equal(t, 1, state.closed)

	_, stillTracked := u.deep.objects[id]
	require.False(t, stillTracked)
}

func TestDeep_RetainUnknownIDFails(t *testing.T) {
	u, err := Configure()
	require.NoError(t, err)

	rt := goja.New()
	_, err = u.deep.Retain(rt, 99999)
	require.Error(t, err)
	var transferErr *TransferError
	require.ErrorAs(t, err, &transferErr)
}

func TestDeep_RecognizeRejectsPlainValues(t *testing.T) {
	u, err := Configure()
	require.NoError(t, err)

	rt := goja.New()
	_, ok := u.deep.Recognize(rt, rt.ToValue(42))
	require.False(t, ok)

	_, ok = u.deep.Recognize(rt, rt.NewObject())
	require.False(t, ok)
}
