// Copyright (C) 2025, Ember Contributors. All rights reserved.
// See the file LICENSE for licensing terms.

package transport

import (
	"context"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/publiuspseudis/ember/log"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin:     func(*http.Request) bool { return true },
}

var dialer = websocket.Dialer{}

// Manager owns every live peer connection and is the sole component
// permitted to touch the wire; everything above it (dht, overlay,
// multicast, post, identity) only ever calls Manager.Send with an
// already-encoded wire.Type frame.
type Manager struct {
	mu       sync.RWMutex
	conns    map[string]*conn
	dispatch Dispatch
	logger   log.Logger
}

// NewManager constructs a Manager that delivers inbound frames to
// dispatch (typically wire.Dispatcher.Dispatch, adapted to the
// string-peer-id signature used here).
func NewManager(dispatch Dispatch, logger log.Logger) *Manager {
	if logger == nil {
		logger = log.NewNoOp()
	}
	return &Manager{
		conns:    make(map[string]*conn),
		dispatch: dispatch,
		logger:   logger,
	}
}

// Dial opens an outbound connection to peer at url and registers it under
// peerID.
func (m *Manager) Dial(ctx context.Context, peerID, url string) error {
	ws, _, err := dialer.DialContext(ctx, url, nil)
	if err != nil {
		return err
	}
	m.adopt(peerID, ws)
	return nil
}

// Accept upgrades an inbound HTTP request to a websocket connection and
// registers it under peerID (the caller is expected to have already
// authenticated the peer, e.g. via a handshake message carrying its
// identity, before calling this).
func (m *Manager) Accept(w http.ResponseWriter, r *http.Request, peerID string) error {
	ws, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return err
	}
	m.adopt(peerID, ws)
	return nil
}

func (m *Manager) adopt(peerID string, ws *websocket.Conn) {
	c := newConn(peerID, ws, m.logger)

	m.mu.Lock()
	if old, ok := m.conns[peerID]; ok {
		old.close()
	}
	m.conns[peerID] = c
	m.mu.Unlock()

	go c.writePump()
	go c.readPump(func(peer string, raw []byte) {
		if m.dispatch != nil {
			m.dispatch(peer, raw)
		}
	})
}

// Send enqueues payload on peerID's outbound queue, reporting whether the
// peer is connected and accepted the frame.
func (m *Manager) Send(peerID string, payload []byte) bool {
	m.mu.RLock()
	c, ok := m.conns[peerID]
	m.mu.RUnlock()
	if !ok {
		return false
	}
	return c.enqueue(payload)
}

// Broadcast enqueues payload on every connected peer's outbound queue.
func (m *Manager) Broadcast(payload []byte) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, c := range m.conns {
		c.enqueue(payload)
	}
}

// Peers returns the ids of currently connected peers.
func (m *Manager) Peers() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ids := make([]string, 0, len(m.conns))
	for id := range m.conns {
		ids = append(ids, id)
	}
	return ids
}

// Connected reports whether peerID currently has a live connection.
func (m *Manager) Connected(peerID string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.conns[peerID]
	return ok
}

// Close tears down peerID's connection, if any.
func (m *Manager) Close(peerID string) {
	m.mu.Lock()
	c, ok := m.conns[peerID]
	if ok {
		delete(m.conns, peerID)
	}
	m.mu.Unlock()
	if ok {
		c.close()
	}
}

// CloseAll tears down every connection, e.g. on node shutdown.
func (m *Manager) CloseAll() {
	m.mu.Lock()
	conns := m.conns
	m.conns = make(map[string]*conn)
	m.mu.Unlock()
	for _, c := range conns {
		c.close()
	}
	m.logger.Info("transport shut down", zap.Int("closed_connections", len(conns)))
}
