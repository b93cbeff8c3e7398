// Copyright (C) 2025, Ember Contributors. All rights reserved.
// See the file LICENSE for licensing terms.

package core

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/publiuspseudis/ember/internal/blobstore"
	"github.com/publiuspseudis/ember/internal/dht"
	"github.com/publiuspseudis/ember/internal/errs"
	"github.com/publiuspseudis/ember/internal/identity"
	"github.com/publiuspseudis/ember/internal/imagecodec"
	"github.com/publiuspseudis/ember/internal/multicast"
	"github.com/publiuspseudis/ember/internal/overlay"
	"github.com/publiuspseudis/ember/internal/post"
	"github.com/publiuspseudis/ember/internal/reputation"
	"github.com/publiuspseudis/ember/internal/reqtimeout"
	"github.com/publiuspseudis/ember/internal/sigcrypto"
	"github.com/publiuspseudis/ember/internal/store"
	"github.com/publiuspseudis/ember/internal/toxicity"
	"github.com/publiuspseudis/ember/internal/transport"
	"github.com/publiuspseudis/ember/internal/wire"
	"github.com/publiuspseudis/ember/log"
)

// DefaultPostTargetMS is the baseline VDF cost target used for composing
// this node's own identity claim and its first posts (spec.md §6
// "MAX_POST_SIZE" neighbors; the identity claim cost is a separate,
// one-time proof-of-work distinct from per-post rate limiting).
const DefaultPostTargetMS = 1000

// Node is the explicit Core context (spec.md §9): every component package
// constructed once, wired together through the role-specific adapters in
// adapters.go, and driven by one dispatch table plus a handful of
// background loops instead of ad hoc goroutines reaching into shared
// globals.
type Node struct {
	cfg    Config
	logger log.Logger

	kv      store.KVStore
	signKey sigcrypto.SignKeyPair
	encKey  sigcrypto.EncKeyPair

	self        identity.Identity
	selfContact dht.Contact
	creation    *identity.Creation

	tp         *transport.Manager
	timeouts   *reqtimeout.Manager
	reputation *reputation.Store
	dispatcher *wire.Dispatcher
	rpc        *rpcClient

	dht       *dht.Node
	overlay   *overlay.Manager
	multicast *multicast.Manager
	registry  *identity.Registry
	blobs     *blobstore.Store

	arena    *post.Arena
	seen     *post.SeenSet
	pool     *post.VerifierPool
	receiver *post.Receiver
	composer *post.Composer
	strategy *post.Strategy
	gc       *post.GCRunner
	dm       *post.DMManager
	dmRoute  dmRoute

	ratingsMu sync.Mutex
	ratings   map[[16]byte]*post.RatingAggregate

	metrics *nodeMetrics

	cancel context.CancelFunc
}

// New constructs a fully wired Node. It blocks on the identity-creation
// VDF computation when cfg.Handle is not yet a confirmed identity
// (spec.md §4.7 "Local flow").
func New(ctx context.Context, cfg Config, logger log.Logger) (*Node, error) {
	cfg = cfg.withDefaults()
	if logger == nil {
		logger = log.NewNoOp()
	}

	kv, err := store.Open(cfg.DataDir)
	if err != nil {
		return nil, err
	}
	signKey, encKey, err := loadOrGenerateKeys(kv)
	if err != nil {
		return nil, err
	}

	selfNodeID := dht.ID(sigcrypto.NodeID(signKey.Public))
	selfContact := dht.Contact{NodeID: selfNodeID, WirePeerID: cfg.ListenAddr, LastSeen: time.Now()}
	selfPeer := overlay.Peer{NodeID: selfNodeID, WirePeerID: cfg.ListenAddr}

	timeouts := reqtimeout.NewManager()
	repStore, err := reputation.New(reputation.DefaultBenchThreshold, reputation.DefaultBenchDuration, logger)
	if err != nil {
		return nil, err
	}

	dispatcher := wire.NewDispatcher(logger)
	tp := transport.NewManager(func(peer string, raw []byte) {
		_ = dispatcher.Dispatch(context.Background(), wire.PeerID(peer), raw)
	}, logger)

	lc := &linkCore{tp: tp, rep: repStore, logger: logger}

	rpc := newRPCClient(tp, timeouts, repStore, selfContact, cfg.RequestTimeout, logger)
	dhtNode := dht.NewNode(selfNodeID, rpc, logger)

	overlayMgr := overlay.NewManagerWithViewSizes(selfPeer, overlayTransport{lc}, cfg.ActiveViewSize, cfg.PassiveViewSize, logger)
	router := greedyRouter{overlayMgr}
	multicastMgr := multicast.NewManager(selfPeer, multicastTransport{lc}, router, nil, logger)

	registry := identity.New(dhtNode, cfg.IdentityConfirmationThreshold, identity.DefaultClaimTTL, logger)
	registry.SetSelfHandle(cfg.Handle)

	n := &Node{
		cfg:         cfg,
		logger:      logger,
		kv:          kv,
		signKey:     signKey,
		encKey:      encKey,
		selfContact: selfContact,
		tp:          tp,
		timeouts:    timeouts,
		reputation:  repStore,
		dispatcher:  dispatcher,
		rpc:         rpc,
		dht:         dhtNode,
		overlay:     overlayMgr,
		multicast:   multicastMgr,
		registry:    registry,
	}

	self, creation, err := n.bootstrapSelf(ctx, lc)
	if err != nil {
		return nil, err
	}
	n.self = self
	n.creation = creation

	blobs := blobstore.New(kv, cfg.BlobCapBytes, chunkRequester{lc}, logger)
	checker := toxicity.NewRegexChecker(toxicity.DefaultBannedWords)

	arena := post.NewArena()
	seen := post.NewSeenSet()
	pool := post.NewVerifierPool(post.DefaultVerifierWorkers)
	emitter := attestationEmitter{linkCore: lc, self: self, signKey: signKey}
	receiver := post.NewReceiver(arena, seen, checker, repStore, pool, emitter, post.ReceptionConfig{
		MaxPostSize:        cfg.MaxPostSize,
		TrustThreshold:     cfg.TrustThreshold,
		AttestationTimeout: cfg.AttestationTimeout,
	}, func(peer string) {
		repStore.RecordFailure(peer)
		n.metrics.postsRejected.Observe(1)
	}, logger)

	composer := post.NewComposer(self, signKey, arena, blobs, imagecodec.PassThrough{}, checker, cfg.MaxPostSize)
	strategy := post.NewStrategy(postBroadcaster{linkCore: lc, overlayMgr: overlayMgr}, multicastMgr)
	gc := post.NewGCRunner(arena, self.Handle, carrierSink{lc})

	route := dmRoute{linkCore: lc, registry: registry, overlayMgr: overlayMgr, dht: dhtNode}
	dm, err := post.NewDMManager(self, encKey, registry, route, kvDMStore{kv: kv}, logger)
	if err != nil {
		return nil, err
	}

	n.blobs = blobs
	n.arena = arena
	n.seen = seen
	n.pool = pool
	n.receiver = receiver
	n.composer = composer
	n.strategy = strategy
	n.gc = gc
	n.dm = dm
	n.dmRoute = route
	n.ratings = make(map[[16]byte]*post.RatingAggregate)
	n.metrics = newNodeMetrics(logger)

	n.registerHandlers()
	return n, nil
}

// ratingAggregateFor returns this node's running tally for a post, creating
// one on first vote (spec.md §4.8 "update local aggregate").
func (n *Node) ratingAggregateFor(id [16]byte) *post.RatingAggregate {
	n.ratingsMu.Lock()
	defer n.ratingsMu.Unlock()
	agg, ok := n.ratings[id]
	if !ok {
		agg = &post.RatingAggregate{}
		n.ratings[id] = agg
	}
	return agg
}

func (n *Node) bootstrapSelf(ctx context.Context, lc *linkCore) (identity.Identity, *identity.Creation, error) {
	if existing, err := n.registry.Lookup(ctx, n.cfg.Handle); err == nil {
		return existing, nil, nil
	}
	creation := identity.NewCreation(claimBroadcaster{lc}, n.logger)
	if err := creation.Run(ctx, n.cfg.Handle, n.signKey, n.encKey, DefaultPostTargetMS); err != nil {
		return identity.Identity{}, nil, err
	}
	return creation.Claim(), creation, nil
}

// ServeWS upgrades an inbound HTTP request to a peer connection, to be
// wired into a net/http.ServeMux by the caller (cmd/ember-node).
func (n *Node) ServeWS(w http.ResponseWriter, r *http.Request, peerID string) error {
	return n.tp.Accept(w, r, peerID)
}

// Dial opens an outbound connection to a bootstrap or discovered peer.
func (n *Node) Dial(ctx context.Context, peerID, url string) error {
	return n.tp.Dial(ctx, peerID, url)
}

// Compose creates and disseminates a new post authored by this node.
func (n *Node) Compose(content string, parentID *[16]byte, imageBytes []byte) (*post.Post, error) {
	p, err := n.composer.Compose(context.Background(), content, parentID, imageBytes)
	if err != nil {
		return nil, err
	}
	p.Carriers.Add(n.self.Handle)
	p.ExplicitlyCarrying = true
	n.arena.Insert(p)
	n.metrics.postsComposed.Observe(1)

	postJSON, err := json.Marshal(p)
	if err != nil {
		return p, errs.Wrap(errs.KindIntegrityError, err, "marshaling composed post")
	}
	raw, err := wire.Encode(wire.TypeNewPost, wire.NewPost{Post: postJSON})
	if err != nil {
		return p, err
	}
	n.strategy.Disseminate(raw, p.Content)
	return p, nil
}

// Vote casts this node's up/down rating on a post, applying it locally
// before broadcasting it (spec.md §4.8 "On a user vote: update local
// aggregate, sign, and broadcast").
func (n *Node) Vote(postID [16]byte, vote string) error {
	p, ok := n.arena.Get(postID)
	if !ok {
		return errs.New(errs.KindNotFound, "unknown post")
	}
	score := n.reputation.Score(n.self.Handle)
	r, err := post.ComposeRating(postID, n.self.Handle, vote, score, p.Author, n.signKey)
	if err != nil {
		return err
	}
	if err := post.ApplyRating(n.ratingAggregateFor(postID), r, p.Author, time.Now()); err != nil {
		return err
	}
	raw, err := wire.Encode(wire.TypePostRating, wire.PostRating{
		PostID:     postID[:],
		Voter:      r.Voter,
		Vote:       r.Vote,
		Reputation: r.Reputation,
		Timestamp:  r.Timestamp,
		Signature:  r.Signature,
		VoterPK:    r.VoterPK,
	})
	if err != nil {
		return err
	}
	n.tp.Broadcast(raw)
	return nil
}

// SendDM encrypts and attempts delivery of a direct message.
func (n *Node) SendDM(ctx context.Context, recipient, text string) error {
	if err := n.dm.Send(ctx, dmEncoder{}, recipient, text); err != nil {
		return err
	}
	n.metrics.dmsSent.Observe(1)
	return nil
}

// ToggleCarry flips this node's carriage of a post, broadcasting the
// change.
func (n *Node) ToggleCarry(id [16]byte) error {
	return post.ToggleCarry(n.arena, id, n.self.Handle, carrierSink{&linkCore{tp: n.tp, rep: n.reputation, logger: n.logger}})
}

// Start brings up every background loop: DHT replication/refresh,
// overlay shuffle, post evaluation ticker and GC, DM flusher, identity GC
// (spec.md §5 "the node also runs ... periodic loops").
func (n *Node) Start(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	n.cancel = cancel

	go n.dht.RunReplicationLoop(ctx, dht.DefaultRefreshInterval)
	go n.dht.RunBucketRefreshLoop(ctx, time.Minute, dht.DefaultBucketRefreshInterval)
	go n.overlay.RunShuffleLoop(ctx.Done(), overlay.DefaultShuffleInterval)
	go n.receiver.RunTicker(ctx)
	go n.runVerifyResultLoop(ctx)
	go n.runGCLoop(ctx)
	go n.runIdentityGCLoop(ctx)
	go n.dm.RunFlusher(ctx, dmEncoder{})

	n.logger.Info("node started", zap.String("handle", n.self.Handle), zap.String("listen", n.cfg.ListenAddr))
}

// Stop tears down every background loop and connection.
func (n *Node) Stop() {
	if n.cancel != nil {
		n.cancel()
	}
	n.pool.Close()
	n.tp.CloseAll()
	_ = n.kv.Close()
}

func (n *Node) runVerifyResultLoop(ctx context.Context) {
	results := n.pool.Results()
	for {
		select {
		case <-ctx.Done():
			return
		case res, ok := <-results:
			if !ok {
				return
			}
			n.receiver.HandleVerifyResult(res)
		}
	}
}

func (n *Node) runGCLoop(ctx context.Context) {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n.gc.Sweep(time.Now())
			n.metrics.gcSweeps.Observe(1)
		}
	}
}

func (n *Node) runIdentityGCLoop(ctx context.Context) {
	ticker := time.NewTicker(time.Hour)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n.registry.GC()
		}
	}
}
