// Copyright (C) 2025, Ember Contributors. All rights reserved.
// See the file LICENSE for licensing terms.

package dht

import (
	"context"
	"crypto/rand"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/publiuspseudis/ember/internal/errs"
	"github.com/publiuspseudis/ember/log"
)

// Alpha is the iterative-lookup concurrency (spec.md §4.4 "α=3").
const Alpha = 3

// DefaultRefreshInterval is the record re-store interval
// (spec.md §4.4 "REFRESH_INTERVAL, default 1 hour").
const DefaultRefreshInterval = time.Hour

// DefaultBucketRefreshInterval is how long a bucket may go untouched before
// its range is refreshed (spec.md §4.4 "Bucket refresh").
const DefaultBucketRefreshInterval = time.Hour

type storedValue struct {
	value      []byte
	lastRefresh time.Time
}

// replicationStatus tracks how many of the k-closest peers are known to
// hold a copy of a key (spec.md §4.4 "replicationStatus: key -> {replicas,
// last_check}").
type replicationStatus struct {
	replicas  int
	lastCheck time.Time
}

// Node is C4: the local participant in the Kademlia overlay.
type Node struct {
	self   ID
	table  *RoutingTable
	rpc    RPCClient
	logger log.Logger

	mu      sync.RWMutex
	storage map[ID]*storedValue
	status  map[ID]*replicationStatus
}

// NewNode constructs a DHT Node. rpc may be nil until the transport layer
// is wired up; until then lookups answer from the local routing table only
// and Put replicates to no peer.
func NewNode(self ID, rpc RPCClient, logger log.Logger) *Node {
	if logger == nil {
		logger = log.NewNoOp()
	}
	return &Node{
		self:    self,
		table:   NewRoutingTable(self),
		rpc:     rpc,
		logger:  logger,
		storage: make(map[ID]*storedValue),
		status:  make(map[ID]*replicationStatus),
	}
}

// SetRPCClient wires the transport-backed RPC client in after construction,
// once the networking layer is available.
func (n *Node) SetRPCClient(rpc RPCClient) { n.rpc = rpc }

// Table exposes the routing table for bootstrap seeding and diagnostics.
func (n *Node) Table() *RoutingTable { return n.table }

// --- local RPC handlers: invoked by internal/wire when this node receives
// a DHT RPC from a remote peer. ---

// HandlePing records the sender as alive.
func (n *Node) HandlePing(from Contact) {
	n.table.Touch(from)
}

// HandleFindNode returns this node's k closest known contacts to target.
func (n *Node) HandleFindNode(from Contact, target ID) []Contact {
	n.table.Touch(from)
	return n.table.Closest(target, K)
}

// HandleFindValue returns the locally stored value for key if present,
// otherwise the k closest known contacts.
func (n *Node) HandleFindValue(from Contact, key ID) (value []byte, closer []Contact, found bool) {
	n.table.Touch(from)
	n.mu.RLock()
	sv, ok := n.storage[key]
	n.mu.RUnlock()
	if ok {
		return sv.value, nil, true
	}
	return nil, n.table.Closest(key, K), false
}

// HandleStore persists a value pushed by a replicating peer.
func (n *Node) HandleStore(from Contact, key ID, value []byte) {
	n.table.Touch(from)
	n.mu.Lock()
	n.storage[key] = &storedValue{value: value, lastRefresh: time.Now()}
	n.mu.Unlock()
}

// --- iterative operations: this node querying the network. ---

// IterativeFindNode performs an α-parallel iterative lookup converging on
// the closest peers to target (spec.md §4.4 "Iterative lookups").
func (n *Node) IterativeFindNode(ctx context.Context, target ID) []Contact {
	return n.iterativeLookup(ctx, target, func(ctx context.Context, c Contact) ([]Contact, []byte, bool) {
		contacts, err := n.rpc.FindNode(ctx, c, target)
		if err != nil {
			return nil, nil, false
		}
		return contacts, nil, false
	})
}

// IterativeFindValue looks up key, returning its value if any queried peer
// has it, otherwise the closest contacts found.
func (n *Node) IterativeFindValue(ctx context.Context, key ID) (value []byte, closest []Contact, found bool) {
	var mu sync.Mutex
	contacts := n.iterativeLookup(ctx, key, func(ctx context.Context, c Contact) ([]Contact, []byte, bool) {
		v, closer, ok, err := n.rpc.FindValue(ctx, c, key)
		if err != nil {
			return nil, nil, false
		}
		if ok {
			mu.Lock()
			if value == nil {
				value = v
				found = true
			}
			mu.Unlock()
			return nil, v, true
		}
		return closer, nil, false
	})
	return value, contacts, found
}

// lookupFn queries a single remote contact, returning any closer contacts
// it offers plus whether it resolved the target value directly.
type lookupFn func(ctx context.Context, c Contact) (closer []Contact, value []byte, resolved bool)

// iterativeLookup is the shared α=3 convergence loop behind
// IterativeFindNode/IterativeFindValue: query the α closest unqueried
// contacts in the shortlist, merge in anything closer they return, and
// repeat until the α closest have all been queried and nothing closer
// appears (spec.md §4.4).
func (n *Node) iterativeLookup(ctx context.Context, target ID, query lookupFn) []Contact {
	if n.rpc == nil {
		return n.table.Closest(target, K)
	}

	type candidate struct {
		contact Contact
		queried bool
	}
	shortlist := map[ID]*candidate{}
	for _, c := range n.table.Closest(target, K) {
		shortlist[c.NodeID] = &candidate{contact: c}
	}

	for {
		var toQuery []Contact
		for _, c := range shortlist {
			if !c.queried {
				toQuery = append(toQuery, c.contact)
			}
		}
		sortByDistance(toQuery, target)
		if len(toQuery) > Alpha {
			toQuery = toQuery[:Alpha]
		}
		if len(toQuery) == 0 {
			break
		}

		var wg sync.WaitGroup
		var mu sync.Mutex
		resolved := false
		for _, c := range toQuery {
			shortlist[c.NodeID].queried = true
			wg.Add(1)
			go func(c Contact) {
				defer wg.Done()
				closer, _, ok := query(ctx, c)
				mu.Lock()
				defer mu.Unlock()
				if ok {
					resolved = true
				}
				for _, nc := range closer {
					if nc.NodeID == n.self {
						continue
					}
					if existing, ok := shortlist[nc.NodeID]; !ok {
						shortlist[nc.NodeID] = &candidate{contact: nc}
					} else if !existing.queried {
						existing.contact = nc
					}
				}
			}(c)
		}
		wg.Wait()
		if resolved {
			break
		}

		closest := make([]Contact, 0, len(shortlist))
		for _, c := range shortlist {
			closest = append(closest, c.contact)
		}
		sortByDistance(closest, target)
		converged := true
		for i := 0; i < len(closest) && i < Alpha; i++ {
			if !shortlist[closest[i].NodeID].queried {
				converged = false
			}
		}
		if converged {
			break
		}

		select {
		case <-ctx.Done():
			goto done
		default:
		}
	}
done:

	out := make([]Contact, 0, len(shortlist))
	for _, c := range shortlist {
		out = append(out, c.contact)
	}
	sortByDistance(out, target)
	if len(out) > K {
		out = out[:K]
	}
	return out
}

func sortByDistance(cs []Contact, target ID) {
	for i := 1; i < len(cs); i++ {
		for j := i; j > 0 && cs[j].NodeID.Xor(target).Less(cs[j-1].NodeID.Xor(target)); j-- {
			cs[j], cs[j-1] = cs[j-1], cs[j]
		}
	}
}

// Get performs an iterative find-value lookup.
func (n *Node) Get(ctx context.Context, key ID) ([]byte, error) {
	n.mu.RLock()
	if sv, ok := n.storage[key]; ok {
		n.mu.RUnlock()
		return sv.value, nil
	}
	n.mu.RUnlock()

	value, _, found := n.IterativeFindValue(ctx, key)
	if !found {
		return nil, errs.New(errs.KindNotFound, "key not found in dht")
	}
	return value, nil
}

// Put stores value locally and replicates it to the k closest known peers
// to key, returning once the replication pass completes
// (spec.md §4.4 "store(key, value, {propagate}) -> {replicas}";
// spec.md §5 "DHT store returns after the replication pass completes").
func (n *Node) Put(ctx context.Context, key ID, value []byte) (replicas int, err error) {
	n.mu.Lock()
	n.storage[key] = &storedValue{value: value, lastRefresh: time.Now()}
	n.mu.Unlock()

	closest := n.IterativeFindNode(ctx, key)
	replicas = n.replicateTo(ctx, key, value, closest)

	n.mu.Lock()
	n.status[key] = &replicationStatus{replicas: replicas, lastCheck: time.Now()}
	n.mu.Unlock()
	return replicas, nil
}

func (n *Node) replicateTo(ctx context.Context, key ID, value []byte, peers []Contact) int {
	if n.rpc == nil {
		return 0
	}
	var wg sync.WaitGroup
	var mu sync.Mutex
	replicas := 0
	for _, p := range peers {
		wg.Add(1)
		go func(p Contact) {
			defer wg.Done()
			if err := n.rpc.Store(ctx, p, key, value); err == nil {
				mu.Lock()
				replicas++
				mu.Unlock()
			}
		}(p)
	}
	wg.Wait()
	return replicas
}

// RunReplicationLoop re-stores values whose last refresh exceeds interval,
// prioritizing under-replicated keys, until ctx is cancelled
// (spec.md §4.4 "background refresh loop").
func (n *Node) RunReplicationLoop(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = DefaultRefreshInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n.refreshDueKeys(ctx, interval)
		}
	}
}

func (n *Node) refreshDueKeys(ctx context.Context, interval time.Duration) {
	type due struct {
		key   ID
		value []byte
		underReplicated bool
	}
	n.mu.RLock()
	var dueKeys []due
	for k, sv := range n.storage {
		if time.Since(sv.lastRefresh) < interval {
			continue
		}
		underReplicated := false
		if st, ok := n.status[k]; ok && st.replicas < K {
			underReplicated = true
		}
		dueKeys = append(dueKeys, due{key: k, value: sv.value, underReplicated: underReplicated})
	}
	n.mu.RUnlock()

	// Under-replicated keys refresh first (spec.md §4.4 "Under-replicated
	// keys take priority").
	for i := 1; i < len(dueKeys); i++ {
		for j := i; j > 0 && dueKeys[j].underReplicated && !dueKeys[j-1].underReplicated; j-- {
			dueKeys[j], dueKeys[j-1] = dueKeys[j-1], dueKeys[j]
		}
	}

	for _, d := range dueKeys {
		if _, err := n.Put(ctx, d.key, d.value); err != nil {
			n.logger.Warn("dht replication refresh failed", zap.Error(err))
		}
	}
}

// RunBucketRefreshLoop periodically checks for buckets untouched beyond
// threshold and issues a random lookup into each one's range
// (spec.md §4.4 "Bucket refresh").
func (n *Node) RunBucketRefreshLoop(ctx context.Context, checkEvery, staleThreshold time.Duration) {
	if checkEvery <= 0 {
		checkEvery = 5 * time.Minute
	}
	if staleThreshold <= 0 {
		staleThreshold = DefaultBucketRefreshInterval
	}
	ticker := time.NewTicker(checkEvery)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			for _, idx := range n.table.StaleBuckets(staleThreshold) {
				target := n.table.RandomIDInBucket(idx, randomBytes)
				n.IterativeFindNode(ctx, target)
			}
		}
	}
}

func randomBytes(count int) []byte {
	b := make([]byte, count)
	_, _ = rand.Read(b)
	return b
}
