// Copyright (C) 2025, Ember Contributors. All rights reserved.
// See the file LICENSE for licensing terms.

package overlay

import (
	"math/rand"
	"time"

	"go.uber.org/zap"

	"github.com/publiuspseudis/ember/internal/dht"
	"github.com/publiuspseudis/ember/log"
)

// DefaultShuffleInterval is how often a node initiates a peer-exchange
// shuffle with a random active peer (spec.md §4.5 "a peer-exchange every
// minute").
const DefaultShuffleInterval = time.Minute

// shuffleSampleSize bounds how many peers are exchanged in one SHUFFLE
// round.
const shuffleSampleSize = 6

// Manager drives the HyParView protocol for the local node.
type Manager struct {
	self      Peer
	views     *views
	transport Transport
	logger    log.Logger
}

// NewManager constructs a Manager with the default view capacities.
func NewManager(self Peer, transport Transport, logger log.Logger) *Manager {
	return NewManagerWithViewSizes(self, transport, DefaultActiveSize, DefaultPassiveSize, logger)
}

// NewManagerWithViewSizes constructs a Manager with caller-supplied active
// and passive view capacities (spec.md §6 "active_view_size",
// "passive_view_size"), falling back to the defaults for any non-positive
// value.
func NewManagerWithViewSizes(self Peer, transport Transport, activeSize, passiveSize int, logger log.Logger) *Manager {
	if activeSize <= 0 {
		activeSize = DefaultActiveSize
	}
	if passiveSize <= 0 {
		passiveSize = DefaultPassiveSize
	}
	if logger == nil {
		logger = log.NewNoOp()
	}
	return &Manager{
		self:      self,
		views:     newViews(activeSize, passiveSize),
		transport: transport,
		logger:    logger,
	}
}

// Join contacts a bootstrap peer (spec.md §4.5 "contact a bootstrap peer,
// send JOIN").
func (m *Manager) Join(bootstrap Peer) {
	m.transport.SendJoin(bootstrap)
}

// HandleJoin is invoked on a bootstrap peer when a joiner's JOIN arrives:
// admit the joiner to the active view and forward the join through the
// rest of the active neighbors (spec.md §4.5).
func (m *Manager) HandleJoin(joiner Peer) {
	if evicted := m.views.addActive(joiner); evicted != nil {
		m.transport.SendDisconnect(*evicted)
	}
	for _, neighbor := range m.views.Active() {
		if neighbor.NodeID == joiner.NodeID {
			continue
		}
		m.transport.SendForwardJoin(neighbor, joiner, arwl)
	}
}

// HandleForwardJoin is invoked when a FORWARD_JOIN arrives: at ttl 0, or
// when this node has no other active peers to forward through, the joiner
// is promoted into the active view; otherwise it is forwarded onward with
// a decremented ttl, and the node whose ttl equals the passive-walk length
// also caches the joiner in its passive view (spec.md §4.5).
func (m *Manager) HandleForwardJoin(joiner Peer, ttl int) {
	if ttl == 0 || m.views.ActiveSize() == 0 {
		if evicted := m.views.addActive(joiner); evicted != nil {
			m.transport.SendDisconnect(*evicted)
		}
		return
	}
	if ttl == prwl {
		m.views.AddPassive(joiner)
	}
	if next, ok := m.views.RandomActiveExcept(joiner.NodeID); ok {
		m.transport.SendForwardJoin(next, joiner, ttl-1)
	}
}

// OnDisconnect handles loss of a connection: the peer is dropped from the
// active view and repaired by promoting a random passive peer
// (spec.md §4.5 "Failure/recovery: connection loss demotes the peer").
func (m *Manager) OnDisconnect(id dht.ID) {
	m.views.removeActive(id)
	if promoted, ok := m.views.PromoteRandomPassive(); ok {
		m.transport.SendNeighbor(promoted)
	}
}

// Active returns the current active view.
func (m *Manager) Active() []Peer { return m.views.Active() }

// Passive returns the current passive view.
func (m *Manager) Passive() []Peer { return m.views.Passive() }

// Shuffle initiates a peer-exchange round with a random active peer,
// sampling both views (spec.md §4.5 "Shuffle operations rotate passive set
// membership").
func (m *Manager) Shuffle() {
	peer, ok := m.views.RandomActiveExcept(m.self.NodeID)
	if !ok {
		return
	}
	sample := m.sample()
	m.transport.SendShuffle(peer, sample, arwl)
}

// HandleShuffle is invoked when a SHUFFLE request arrives: merge the
// sender's sample into the passive view and reply with one of our own.
func (m *Manager) HandleShuffle(from Peer, sample []Peer, ttl int) {
	if ttl > 0 {
		if next, ok := m.views.RandomActiveExcept(from.NodeID); ok {
			m.transport.SendShuffle(next, sample, ttl-1)
			return
		}
	}
	for _, p := range sample {
		m.views.AddPassive(p)
	}
	m.transport.SendShuffleReply(from, m.sample())
}

// HandleShuffleReply merges a SHUFFLE reply's sample into the passive view.
func (m *Manager) HandleShuffleReply(sample []Peer) {
	for _, p := range sample {
		m.views.AddPassive(p)
	}
}

func (m *Manager) sample() []Peer {
	active := m.views.Active()
	passive := m.views.Passive()
	pool := append(append([]Peer{}, active...), passive...)
	rand.Shuffle(len(pool), func(i, j int) { pool[i], pool[j] = pool[j], pool[i] })
	if len(pool) > shuffleSampleSize {
		pool = pool[:shuffleSampleSize]
	}
	return pool
}

// RunShuffleLoop periodically initiates Shuffle until stop is closed.
func (m *Manager) RunShuffleLoop(stop <-chan struct{}, interval time.Duration) {
	if interval <= 0 {
		interval = DefaultShuffleInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			m.Shuffle()
			m.logger.Debug("overlay shuffle tick", zap.Int("active", m.views.ActiveSize()))
		}
	}
}
