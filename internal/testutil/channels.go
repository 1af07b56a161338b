// Package testutil provides shared test helpers for channel-driven code.
package testutil

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// Upper bounds for waiting on goroutines in tests. They are failure
// deadlines, not sleeps.
const (
	DefaultTestTimeout = 5 * time.Second
	ShortTestTimeout   = time.Second
)

// WaitForChannel blocks until ch is signalled or closed.
func WaitForChannel(t testing.TB, ch <-chan struct{}, timeout time.Duration, msg string) {
	t.Helper()
	select {
	case <-ch:
	case <-time.After(timeout):
		require.Fail(t, msg)
	}
}

// Receive returns the next value from ch, failing after timeout.
func Receive[T any](t testing.TB, ch <-chan T, timeout time.Duration, msg string) T {
	t.Helper()
	select {
	case v := <-ch:
		return v
	case <-time.After(timeout):
		require.Fail(t, msg)
		var zero T
		return zero
	}
}
