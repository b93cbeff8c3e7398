// Copyright (C) 2025, Ember Contributors. All rights reserved.
// See the file LICENSE for licensing terms.

package core

import (
	"context"
	"crypto/rand"
	"sync"
	"time"

	"github.com/publiuspseudis/ember/internal/dht"
	"github.com/publiuspseudis/ember/internal/errs"
	"github.com/publiuspseudis/ember/internal/reputation"
	"github.com/publiuspseudis/ember/internal/reqtimeout"
	"github.com/publiuspseudis/ember/internal/transport"
	"github.com/publiuspseudis/ember/internal/wire"
	"github.com/publiuspseudis/ember/log"
	"github.com/publiuspseudis/ember/utils/formatting"
)

// rpcClient implements dht.RPCClient over the wire transport, correlating
// each request with its reply by rpc_id through reqtimeout.Manager
// (spec.md §5 "a slow peer is skipped and its reply, if late, is
// dropped").
type rpcClient struct {
	tp       *transport.Manager
	timeouts *reqtimeout.Manager
	rep      *reputation.Store
	self     dht.Contact
	timeout  time.Duration
	logger   log.Logger

	mu      sync.Mutex
	waiters map[string]chan []byte
}

func newRPCClient(tp *transport.Manager, timeouts *reqtimeout.Manager, rep *reputation.Store, self dht.Contact, timeout time.Duration, logger log.Logger) *rpcClient {
	return &rpcClient{
		tp:       tp,
		timeouts: timeouts,
		rep:      rep,
		self:     self,
		timeout:  timeout,
		logger:   logger,
		waiters:  make(map[string]chan []byte),
	}
}

func newRPCID() string {
	var b [16]byte
	_, _ = rand.Read(b[:])
	id, err := formatting.Encode(formatting.HexNC, b[:])
	if err != nil {
		// unreachable: HexNC never errors on a non-empty byte slice
		return ""
	}
	return id
}

func contactToWire(c dht.Contact) wire.Contact {
	return wire.Contact{NodeID: c.NodeID[:], WirePeerID: c.WirePeerID}
}

func contactFromWire(c wire.Contact) dht.Contact {
	var id dht.ID
	copy(id[:], c.NodeID)
	return dht.Contact{NodeID: id, WirePeerID: c.WirePeerID, LastSeen: time.Now()}
}

func contactsFromWire(cs []wire.Contact) []dht.Contact {
	out := make([]dht.Contact, len(cs))
	for i, c := range cs {
		out[i] = contactFromWire(c)
	}
	return out
}

// resolve delivers a reply to its waiting caller, dropping it if the
// reqtimeout deadline already fired (late/duplicate reply).
func (c *rpcClient) resolve(peer, rpcID string, raw []byte) {
	if !c.timeouts.RegisterResponse(peer, rpcID) {
		return
	}
	c.mu.Lock()
	ch, ok := c.waiters[rpcID]
	c.mu.Unlock()
	if ok {
		select {
		case ch <- raw:
		default:
		}
	}
}

func (c *rpcClient) call(ctx context.Context, to dht.Contact, reqType wire.Type, body any, rpcID string) ([]byte, error) {
	ch := make(chan []byte, 1)
	c.mu.Lock()
	c.waiters[rpcID] = ch
	c.mu.Unlock()
	defer func() {
		c.mu.Lock()
		delete(c.waiters, rpcID)
		c.mu.Unlock()
	}()

	raw, err := wire.Encode(reqType, body)
	if err != nil {
		return nil, errs.Wrap(errs.KindIntegrityError, err, "encoding dht rpc request")
	}

	c.timeouts.RegisterRequest(to.WirePeerID, rpcID, c.timeout, func() {
		select {
		case ch <- nil:
		default:
		}
	})

	if !c.tp.Send(to.WirePeerID, raw) {
		c.timeouts.Cancel(to.WirePeerID, rpcID)
		if c.rep != nil {
			c.rep.RecordFailure(to.WirePeerID)
		}
		return nil, errs.New(errs.KindUnreachable, "peer not connected")
	}

	select {
	case reply := <-ch:
		if reply == nil {
			if c.rep != nil {
				c.rep.RecordFailure(to.WirePeerID)
			}
			return nil, errs.New(errs.KindUnreachable, "dht rpc timed out")
		}
		if c.rep != nil {
			c.rep.RecordSuccess(to.WirePeerID)
		}
		return reply, nil
	case <-ctx.Done():
		c.timeouts.Cancel(to.WirePeerID, rpcID)
		return nil, ctx.Err()
	}
}

func (c *rpcClient) Ping(ctx context.Context, to dht.Contact) error {
	rpcID := newRPCID()
	_, err := c.call(ctx, to, wire.TypePing, wire.Ping{RPCID: rpcID, From: contactToWire(c.self)}, rpcID)
	return err
}

func (c *rpcClient) FindNode(ctx context.Context, to dht.Contact, target dht.ID) ([]dht.Contact, error) {
	rpcID := newRPCID()
	raw, err := c.call(ctx, to, wire.TypeFindNode, wire.FindNode{RPCID: rpcID, From: contactToWire(c.self), Target: target[:]}, rpcID)
	if err != nil {
		return nil, err
	}
	var reply wire.FindNodeReply
	if err := wire.Decode(raw, &reply); err != nil {
		return nil, errs.Wrap(errs.KindIntegrityError, err, "decoding find_node reply")
	}
	return contactsFromWire(reply.Contacts), nil
}

func (c *rpcClient) FindValue(ctx context.Context, to dht.Contact, key dht.ID) ([]byte, []dht.Contact, bool, error) {
	rpcID := newRPCID()
	raw, err := c.call(ctx, to, wire.TypeFindValue, wire.FindValue{RPCID: rpcID, From: contactToWire(c.self), Key: key[:]}, rpcID)
	if err != nil {
		return nil, nil, false, err
	}
	var reply wire.FindValueReply
	if err := wire.Decode(raw, &reply); err != nil {
		return nil, nil, false, errs.Wrap(errs.KindIntegrityError, err, "decoding find_value reply")
	}
	if len(reply.Value) > 0 {
		return reply.Value, nil, true, nil
	}
	return nil, contactsFromWire(reply.Contacts), false, nil
}

func (c *rpcClient) Store(ctx context.Context, to dht.Contact, key dht.ID, value []byte) error {
	rpcID := newRPCID()
	_, err := c.call(ctx, to, wire.TypeStore, wire.Store{RPCID: rpcID, From: contactToWire(c.self), Key: key[:], Value: value}, rpcID)
	return err
}
