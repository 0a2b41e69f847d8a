package ratelimit

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLimiterAllowsUpToMax(t *testing.T) {
	l, err := New(time.Minute, 2)
	require.NoError(t, err)
	defer l.Close()

	exceeded, err := l.Check("1.2.3.4")
	require.NoError(t, err)
	require.False(t, exceeded)

	exceeded, err = l.Check("1.2.3.4")
	require.NoError(t, err)
	require.False(t, exceeded)

	exceeded, err = l.Check("1.2.3.4")
	require.NoError(t, err)
	require.True(t, exceeded)
}

func TestLimiterPerKeyIndependence(t *testing.T) {
	l, err := New(time.Minute, 1)
	require.NoError(t, err)
	defer l.Close()

	exceeded, err := l.Check("a")
	require.NoError(t, err)
	require.False(t, exceeded)

	exceeded, err = l.Check("b")
	require.NoError(t, err)
	require.False(t, exceeded)
}

func TestBackoffDoublesWindow(t *testing.T) {
	b := NewBackoff(10*time.Millisecond, 2, time.Second)
	require.False(t, b.Check("1.2.3.4"))

	b.Increment("1.2.3.4")
	require.True(t, b.Check("1.2.3.4"))

	time.Sleep(15 * time.Millisecond)
	require.False(t, b.Check("1.2.3.4"), "window should have elapsed")
}
