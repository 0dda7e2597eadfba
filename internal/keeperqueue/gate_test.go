package keeperqueue

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestGate_ZeroThresholdDisabled(t *testing.T) {
	g := NewGate(0, time.Millisecond)
	for i := 0; i < 100; i++ {
		require.False(t, g.Record())
	}
}

func TestGate_TripsAtThresholdThenDebounces(t *testing.T) {
	g := NewGate(3, time.Hour)

	require.False(t, g.Record())
	require.False(t, g.Record())
	require.True(t, g.Record())

	// The debounce window is an hour, so further crossings don't re-trip
	// until it elapses, even once the raw count climbs past threshold again.
	for i := 0; i < 3; i++ {
		require.False(t, g.Record())
	}
}

func TestGate_CountResetsAfterTrip(t *testing.T) {
	g := NewGate(2, time.Nanosecond)

	require.False(t, g.Record())
	require.True(t, g.Record())

	time.Sleep(time.Millisecond)

	require.False(t, g.Record())
	require.True(t, g.Record())
}
