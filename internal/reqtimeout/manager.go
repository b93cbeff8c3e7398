// Copyright (C) 2025, Ember Contributors. All rights reserved.
// See the file LICENSE for licensing terms.

// Package reqtimeout provides a request/response deadline tracker for
// requests that wait on a peer reply; internal/core's DHT RPC client is its
// user (spec.md §5 "Cancellation and timeouts").
package reqtimeout

import (
	"sync"
	"time"
)

// Key identifies one outstanding request: a peer plus that peer's
// request/rpc id.
type Key struct {
	Peer      string
	RequestID string
}

// Manager tracks outstanding requests and fires a callback if no matching
// response arrives before the registered deadline.
type Manager struct {
	mu      sync.Mutex
	pending map[Key]*time.Timer
}

// NewManager constructs an empty Manager.
func NewManager() *Manager {
	return &Manager{pending: make(map[Key]*time.Timer)}
}

// RegisterRequest starts a deadline timer for (peer, requestID). onTimeout
// fires exactly once if RegisterResponse for the same key is not called
// before deadline elapses.
func (m *Manager) RegisterRequest(peer, requestID string, deadline time.Duration, onTimeout func()) {
	key := Key{Peer: peer, RequestID: requestID}
	timer := time.AfterFunc(deadline, func() {
		m.mu.Lock()
		_, stillPending := m.pending[key]
		delete(m.pending, key)
		m.mu.Unlock()
		if stillPending {
			onTimeout()
		}
	})

	m.mu.Lock()
	if old, ok := m.pending[key]; ok {
		old.Stop()
	}
	m.pending[key] = timer
	m.mu.Unlock()
}

// RegisterResponse cancels the pending timeout for (peer, requestID),
// reporting whether a matching request was still outstanding (a late or
// duplicate response reports false and is the caller's cue to drop it,
// per spec.md §5 "a slow peer is skipped and its reply, if late, is
// dropped").
func (m *Manager) RegisterResponse(peer, requestID string) bool {
	key := Key{Peer: peer, RequestID: requestID}
	m.mu.Lock()
	defer m.mu.Unlock()
	timer, ok := m.pending[key]
	if !ok {
		return false
	}
	timer.Stop()
	delete(m.pending, key)
	return true
}

// Cancel stops a pending request's timer without invoking onTimeout, used
// when the caller abandons the wait for another reason (e.g. shutdown).
func (m *Manager) Cancel(peer, requestID string) {
	key := Key{Peer: peer, RequestID: requestID}
	m.mu.Lock()
	defer m.mu.Unlock()
	if timer, ok := m.pending[key]; ok {
		timer.Stop()
		delete(m.pending, key)
	}
}

// Outstanding reports how many requests are currently awaiting a response.
func (m *Manager) Outstanding() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.pending)
}
