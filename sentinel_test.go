package lanes

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNull_IsStableIdentity(t *testing.T) {
	require.Same(t, Null, Null)
	require.NotNil(t, Null)
}

func TestRestriction_String(t *testing.T) {
	require.Equal(t, "none", RestrictNone.String())
	require.Equal(t, "set/get", RestrictSetGet.String())
	require.Equal(t, "send/receive", RestrictSendReceive.String())
}

func TestCapacityStatus_String(t *testing.T) {
	require.Equal(t, "under", CapacityUnder.String())
	require.Equal(t, "exact", CapacityExact.String())
	require.Equal(t, "over", CapacityOver.String())
}
