// Copyright (C) 2025, Ember Contributors. All rights reserved.
// See the file LICENSE for licensing terms.

package multicast

import (
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/publiuspseudis/ember/internal/overlay"
	"github.com/publiuspseudis/ember/log"
)

// GraftTimeout is how long a node waits after an IHAVE before grafting the
// sender back to eager and requesting the full message
// (spec.md §4.6 "on expiry, send a graft request").
const GraftTimeout = 500 * time.Millisecond

// messageCacheTTL bounds how long a delivered payload is kept available
// for GRAFT replies.
const messageCacheTTL = 30 * time.Second

// Router resolves the next hop toward a topic's rendezvous point, or
// reports that this node is closest known to it (the floor of the tree).
// internal/core supplies the implementation (greedyRouter), which picks the
// active overlay peer whose node id is XOR-closest to the target.
type Router interface {
	NextHopToward(target [20]byte) (overlay.Peer, bool)
}

// Deliver is invoked once per unique message when it first reaches this
// node, handing the payload to the post engine for topic fan-in.
type Deliver func(topic Topic, payload []byte)

// Manager is C6: Scribe tree membership plus Plumtree dissemination.
type Manager struct {
	self      overlay.Peer
	transport Transport
	router    Router
	onDeliver Deliver
	logger    log.Logger

	mu     sync.Mutex
	topics map[Topic]*topicState
}

// NewManager constructs a Manager.
func NewManager(self overlay.Peer, transport Transport, router Router, onDeliver Deliver, logger log.Logger) *Manager {
	if logger == nil {
		logger = log.NewNoOp()
	}
	return &Manager{
		self:      self,
		transport: transport,
		router:    router,
		onDeliver: onDeliver,
		logger:    logger,
		topics:    make(map[Topic]*topicState),
	}
}

func (m *Manager) stateFor(t Topic) *topicState {
	ts, ok := m.topics[t]
	if !ok {
		ts = newTopicState()
		m.topics[t] = ts
	}
	return ts
}

// Subscribe marks this node as a subscriber of t and, if not already in the
// tree, sends SUBSCRIBE toward root(t) (spec.md §4.6 "subscribe(t) sends
// SUBSCRIBE toward root").
func (m *Manager) Subscribe(t Topic) {
	m.mu.Lock()
	ts := m.stateFor(t)
	alreadyInTree := ts.inTree()
	ts.isSubscriber = true
	m.mu.Unlock()

	if alreadyInTree {
		return
	}
	m.routeSubscribe(t)
}

func (m *Manager) routeSubscribe(t Topic) {
	next, ok := m.router.NextHopToward(Root(t))
	if !ok {
		return // this node is closest to root(t); it IS the rendezvous point
	}
	m.mu.Lock()
	ts := m.stateFor(t)
	ts.parent = &next
	m.mu.Unlock()
	m.transport.SendSubscribe(next, t)
}

// Unsubscribe clears subscriber status; the node remains in the tree if it
// still has children.
func (m *Manager) Unsubscribe(t Topic) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ts, ok := m.topics[t]
	if !ok {
		return
	}
	ts.isSubscriber = false
	if !ts.inTree() && ts.parent != nil {
		m.transport.SendUnsubscribe(*ts.parent, t)
		ts.parent = nil
	}
}

// HandleSubscribe records from as a child in topic's tree, forwarding
// SUBSCRIBE toward the root if this node wasn't already in the tree
// (spec.md §4.6 "each hop recording the sender as a child").
func (m *Manager) HandleSubscribe(from overlay.Peer, t Topic) {
	m.mu.Lock()
	ts := m.stateFor(t)
	wasInTree := ts.inTree()
	ts.children[from.NodeID] = from
	ts.eager[from.NodeID] = true
	m.mu.Unlock()

	if !wasInTree {
		m.routeSubscribe(t)
	}
}

// HandleUnsubscribe drops from as a child; if this leaves the node outside
// the tree, it in turn unsubscribes from its own parent.
func (m *Manager) HandleUnsubscribe(from overlay.Peer, t Topic) {
	m.mu.Lock()
	ts, ok := m.topics[t]
	if !ok {
		m.mu.Unlock()
		return
	}
	delete(ts.children, from.NodeID)
	delete(ts.eager, from.NodeID)
	stillInTree := ts.inTree()
	parent := ts.parent
	m.mu.Unlock()

	if !stillInTree && parent != nil {
		m.transport.SendUnsubscribe(*parent, t)
		m.mu.Lock()
		ts.parent = nil
		m.mu.Unlock()
	}
}

// Multicast disseminates payload under topic: if this node is in the tree
// it fans out along tree edges directly; otherwise it routes the message
// toward root(t) first (spec.md §4.6 "routes to root(t) then fans out
// along the tree").
func (m *Manager) Multicast(t Topic, payload []byte) {
	id := IDOf(payload)
	m.mu.Lock()
	ts := m.stateFor(t)
	inTree := ts.inTree()
	m.mu.Unlock()

	if !inTree {
		next, ok := m.router.NextHopToward(Root(t))
		if ok {
			m.transport.SendMulticast(next, t, id, payload)
			return
		}
		// This node is the rendezvous point with no subscribers yet; nothing
		// to fan out to.
		return
	}
	m.ingest(nil, t, id, payload, true)
}

// HandleMulticast processes an incoming full-message MULTICAST from a tree
// neighbor (spec.md §4.6 Plumtree "Messages travel along eager edges").
func (m *Manager) HandleMulticast(from overlay.Peer, t Topic, id MessageID, payload []byte) {
	m.ingest(&from, t, id, payload, false)
}

func (m *Manager) ingest(from *overlay.Peer, t Topic, id MessageID, payload []byte, originated bool) {
	m.mu.Lock()
	ts := m.stateFor(t)
	_, alreadySeen := ts.seen[id]
	if alreadySeen {
		m.mu.Unlock()
		if from != nil {
			// Duplicate on an eager edge: prune that peer to lazy
			// (spec.md §4.6 "Duplicates on eager edges cause a prune").
			m.transport.SendPrune(*from, t)
			m.mu.Lock()
			ts.eager[from.NodeID] = false
			m.mu.Unlock()
		}
		return
	}
	ts.seen[id] = struct{}{}
	ts.cache[id] = payload
	m.cancelGraftTimerLocked(ts, id)
	neighbors := ts.neighbors()
	eager := make(map[[20]byte]bool, len(ts.eager))
	for k, v := range ts.eager {
		eager[k] = v
	}
	m.mu.Unlock()

	if !originated {
		m.onDeliver(t, payload)
	}

	for _, n := range neighbors {
		if from != nil && n.NodeID == from.NodeID {
			continue
		}
		if eager[n.NodeID] {
			m.transport.SendMulticast(n, t, id, payload)
		} else {
			m.transport.SendIHave(n, t, id)
		}
	}

	go m.expireCacheEntry(t, id)
}

func (m *Manager) expireCacheEntry(t Topic, id MessageID) {
	time.Sleep(messageCacheTTL)
	m.mu.Lock()
	defer m.mu.Unlock()
	if ts, ok := m.topics[t]; ok {
		delete(ts.cache, id)
	}
}

// HandleIHave processes a lazy-edge message announcement: if the message
// is unseen, a graft timer starts; if it fires before the full message
// arrives, the sender is grafted back to eager (spec.md §4.6).
func (m *Manager) HandleIHave(from overlay.Peer, t Topic, id MessageID) {
	m.mu.Lock()
	ts := m.stateFor(t)
	if _, seen := ts.seen[id]; seen {
		m.mu.Unlock()
		return
	}
	if _, pending := ts.graftTimers[id]; pending {
		m.mu.Unlock()
		return
	}
	stop := make(chan struct{})
	ts.graftTimers[id] = stop
	m.mu.Unlock()

	go func() {
		timer := time.NewTimer(GraftTimeout)
		defer timer.Stop()
		select {
		case <-stop:
			return
		case <-timer.C:
			m.transport.SendGraft(from, t, id)
			m.mu.Lock()
			ts.eager[from.NodeID] = true
			delete(ts.graftTimers, id)
			m.mu.Unlock()
		}
	}()
}

func (m *Manager) cancelGraftTimerLocked(ts *topicState, id MessageID) {
	if stop, ok := ts.graftTimers[id]; ok {
		close(stop)
		delete(ts.graftTimers, id)
	}
}

// HandleGraft promotes the requester to eager and replies with the cached
// payload if available.
func (m *Manager) HandleGraft(from overlay.Peer, t Topic, id MessageID) {
	m.mu.Lock()
	ts := m.stateFor(t)
	ts.eager[from.NodeID] = true
	payload, ok := ts.cache[id]
	m.mu.Unlock()
	if ok {
		m.transport.SendMulticast(from, t, id, payload)
	}
}

// HandlePrune demotes the sender to lazy for topic t.
func (m *Manager) HandlePrune(from overlay.Peer, t Topic) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ts := m.stateFor(t)
	ts.eager[from.NodeID] = false
}

// IsSubscriber reports whether this node has subscribed to t.
func (m *Manager) IsSubscriber(t Topic) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	ts, ok := m.topics[t]
	return ok && ts.isSubscriber
}

func (m *Manager) logDebug(msg string, fields ...zap.Field) {
	m.logger.Debug(msg, fields...)
}
