// Copyright (C) 2025, Ember Contributors. All rights reserved.
// See the file LICENSE for licensing terms.

package dht

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// fakeNetwork routes RPCClient calls directly to in-process Nodes, letting
// the iterative-lookup and replication logic be tested without a real
// transport.
type fakeNetwork struct {
	nodes map[ID]*Node
}

func newFakeNetwork() *fakeNetwork {
	return &fakeNetwork{nodes: make(map[ID]*Node)}
}

type fakeRPC struct {
	net  *fakeNetwork
	from Contact
}

func (r *fakeRPC) Ping(ctx context.Context, to Contact) error {
	target, ok := r.net.nodes[to.NodeID]
	if !ok {
		return context.DeadlineExceeded
	}
	target.HandlePing(r.from)
	return nil
}

func (r *fakeRPC) FindNode(ctx context.Context, to Contact, target ID) ([]Contact, error) {
	node, ok := r.net.nodes[to.NodeID]
	if !ok {
		return nil, context.DeadlineExceeded
	}
	return node.HandleFindNode(r.from, target), nil
}

func (r *fakeRPC) FindValue(ctx context.Context, to Contact, key ID) ([]byte, []Contact, bool, error) {
	node, ok := r.net.nodes[to.NodeID]
	if !ok {
		return nil, nil, false, context.DeadlineExceeded
	}
	value, closer, found := node.HandleFindValue(r.from, key)
	return value, closer, found, nil
}

func (r *fakeRPC) Store(ctx context.Context, to Contact, key ID, value []byte) error {
	node, ok := r.net.nodes[to.NodeID]
	if !ok {
		return context.DeadlineExceeded
	}
	node.HandleStore(r.from, key, value)
	return nil
}

func (net *fakeNetwork) addNode(id ID) *Node {
	n := NewNode(id, nil, nil)
	n.SetRPCClient(&fakeRPC{net: net, from: Contact{NodeID: id, LastSeen: time.Now()}})
	net.nodes[id] = n
	return n
}

func idOf(b byte) ID {
	var id ID
	id[IDLen-1] = b
	return id
}

func TestPutGetReplicatesAcrossNetwork(t *testing.T) {
	net := newFakeNetwork()
	a := net.addNode(idOf(1))
	b := net.addNode(idOf(2))
	c := net.addNode(idOf(3))

	// Bootstrap: everyone knows everyone.
	for _, n := range []*Node{a, b, c} {
		for _, other := range []*Node{a, b, c} {
			if n != other {
				n.Table().Touch(Contact{NodeID: sentinelID(other), LastSeen: time.Now()})
			}
		}
	}

	ctx := context.Background()
	key := idOf(42)
	replicas, err := a.Put(ctx, key, []byte("hello"))
	require.NoError(t, err)
	require.GreaterOrEqual(t, replicas, 0)

	got, err := b.Get(ctx, key)
	require.NoError(t, err)
	require.Equal(t, "hello", string(got))
}

func sentinelID(n *Node) ID { return n.self }

func TestBucketIndexZeroDistance(t *testing.T) {
	require.Equal(t, 0, bucketIndex(ID{}))
}

func TestRoutingTableClosestOrdersByDistance(t *testing.T) {
	rt := NewRoutingTable(idOf(0))
	rt.Touch(Contact{NodeID: idOf(5)})
	rt.Touch(Contact{NodeID: idOf(200)})
	rt.Touch(Contact{NodeID: idOf(1)})

	closest := rt.Closest(idOf(0), 2)
	require.Len(t, closest, 2)
	require.Equal(t, idOf(1), closest[0].NodeID)
}
