// Copyright (C) 2025, Ember Contributors. All rights reserved.
// See the file LICENSE for licensing terms.

package reqtimeout

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestRegisterResponseCancelsTimeout(t *testing.T) {
	m := NewManager()
	var fired atomic.Bool
	m.RegisterRequest("peer-1", "req-1", 20*time.Millisecond, func() { fired.Store(true) })

	require.True(t, m.RegisterResponse("peer-1", "req-1"))
	time.Sleep(40 * time.Millisecond)
	require.False(t, fired.Load())
}

func TestTimeoutFiresWhenNoResponse(t *testing.T) {
	m := NewManager()
	done := make(chan struct{})
	m.RegisterRequest("peer-1", "req-1", 10*time.Millisecond, func() { close(done) })

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("timeout callback never fired")
	}
}

func TestLateResponseAfterTimeoutReportsFalse(t *testing.T) {
	m := NewManager()
	m.RegisterRequest("peer-1", "req-1", 5*time.Millisecond, func() {})
	time.Sleep(30 * time.Millisecond)
	require.False(t, m.RegisterResponse("peer-1", "req-1"))
}

func TestOutstandingCount(t *testing.T) {
	m := NewManager()
	m.RegisterRequest("peer-1", "req-1", time.Second, func() {})
	m.RegisterRequest("peer-2", "req-2", time.Second, func() {})
	require.Equal(t, 2, m.Outstanding())
	m.RegisterResponse("peer-1", "req-1")
	require.Equal(t, 1, m.Outstanding())
}
