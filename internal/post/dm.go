// Copyright (C) 2025, Ember Contributors. All rights reserved.
// See the file LICENSE for licensing terms.

package post

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/publiuspseudis/ember/internal/errs"
	"github.com/publiuspseudis/ember/internal/identity"
	"github.com/publiuspseudis/ember/internal/sigcrypto"
	"github.com/publiuspseudis/ember/log"
)

// DMStatus is the lifecycle state of a pending direct message (spec.md §3
// "Pending DM" status field).
type DMStatus int

const (
	DMPending DMStatus = iota
	DMDelivered
	DMFailed
	DMExpired
)

// DMMaxAttempts is the failure threshold (spec.md §4.8 "a pending record
// whose attempts >= 10 transitions to failed").
const DMMaxAttempts = 10

// DMExpiry is the store-and-forward TTL (spec.md §4.8 "expires=7d").
const DMExpiry = 7 * 24 * time.Hour

// DMFlushInterval is how often the store-and-forward flusher retries
// undelivered messages (spec.md §5 "DM retries are rate-limited by a
// periodic flusher (every 60 s)").
const DMFlushInterval = 60 * time.Second

// DMResolveRetries/DMResolveBackoff bound identity resolution (spec.md
// §4.8 "Resolve recipient via identity registry (up to 3 retries with
// linear backoff)").
const DMResolveRetries = 3

const DMResolveBackoff = 200 * time.Millisecond

// PendingDM is a direct message awaiting delivery (spec.md §3 "Pending DM").
type PendingDM struct {
	ID            [16]byte
	Sender        string
	Recipient     string
	Ciphertext    []byte
	Nonce         []byte
	Created       time.Time
	Attempts      int
	LastAttempt   time.Time
	Status        DMStatus
	Expires       time.Time
	// RoutingHint is the recipient's DHT address as resolved at send time,
	// carried along so a relaying peer can try it first on forward
	// (spec.md §4.8 "On receipt ... routing_hint").
	RoutingHint string
}

// DMRoute is how an outbound DM reaches its recipient. The initial send
// path tries these in SendDirect, SendViaDHTHint order; the forward path
// (spec.md §4.8 "On receipt", when recipient != self) tries SendViaHint
// first instead, since a forwarded message already carries the sender's
// routing hint.
type DMRoute interface {
	// SendDirect delivers payload to recipient if a live connection exists,
	// reporting whether it was actually sent.
	SendDirect(recipient string, payload []byte) bool
	// SendViaHint delivers payload using a previously-resolved routing
	// hint (opaque to this package), without a fresh lookup.
	SendViaHint(hint string, payload []byte) bool
	// SendViaDHTHint delivers payload via the k DHT peers closest to
	// recipient, reporting whether any of them accepted it.
	SendViaDHTHint(ctx context.Context, recipient string, payload []byte) bool
}

// DMStore persists pending DMs across restarts (spec.md §3 "pending_messages/").
type DMStore interface {
	Save(d PendingDM) error
	Load() ([]PendingDM, error)
	Delete(id [16]byte) error
}

// DMManager implements the end-to-end direct message subsystem (spec.md
// §4.8 "End-to-end direct messages").
type DMManager struct {
	self     identity.Identity
	encKey   sigcrypto.EncKeyPair
	registry *identity.Registry
	route    DMRoute
	store    DMStore
	logger   log.Logger

	mu      sync.Mutex
	pending map[[16]byte]*PendingDM
}

// NewDMManager constructs a DMManager, loading any previously persisted
// pending messages from store.
func NewDMManager(self identity.Identity, encKey sigcrypto.EncKeyPair, registry *identity.Registry, route DMRoute, store DMStore, logger log.Logger) (*DMManager, error) {
	if logger == nil {
		logger = log.NewNoOp()
	}
	m := &DMManager{
		self:     self,
		encKey:   encKey,
		registry: registry,
		route:    route,
		store:    store,
		logger:   logger,
		pending:  make(map[[16]byte]*PendingDM),
	}
	if store != nil {
		existing, err := store.Load()
		if err != nil {
			return nil, err
		}
		for i := range existing {
			d := existing[i]
			m.pending[d.ID] = &d
		}
	}
	return m, nil
}

// DMPayload is the wire shape of an e2e_dm message (spec.md §6 "e2e_dm").
type DMPayload struct {
	Recipient   string   `json:"recipient"`
	Sender      string   `json:"sender"`
	Ciphertext  []byte   `json:"ciphertext"`
	Nonce       []byte   `json:"nonce"`
	Timestamp   int64    `json:"ts"`
	MessageID   [16]byte `json:"message_id"`
	IsRetry     bool     `json:"is_retry,omitempty"`
	RoutingHint string   `json:"routing_hint,omitempty"`
}

// Encoder renders a DMPayload (or a dm_delivered receipt) to wire bytes;
// internal/wire supplies the real envelope encoding.
type Encoder interface {
	EncodeDM(p DMPayload) []byte
	EncodeDelivered(messageID [16]byte, recipient string, deliveredAt time.Time) []byte
}

// Send encrypts and attempts delivery of a new direct message (spec.md
// §4.8 "send(recipient, text)").
func (m *DMManager) Send(ctx context.Context, enc Encoder, recipient, text string) error {
	var recipientIdentity identity.Identity
	var err error
	for attempt := 0; attempt < DMResolveRetries; attempt++ {
		recipientIdentity, err = m.registry.Lookup(ctx, recipient)
		if err == nil {
			break
		}
		time.Sleep(DMResolveBackoff * time.Duration(attempt+1))
	}
	if err != nil {
		return errs.Wrap(errs.KindNotFound, err, "resolving dm recipient")
	}

	ciphertext, nonce, err := sigcrypto.SealDM([]byte(text), &recipientIdentity.PKEnc, &m.encKey.Private)
	if err != nil {
		return err
	}

	var id [16]byte
	if _, err := rand.Read(id[:]); err != nil {
		return errs.Wrap(errs.KindIntegrityError, err, "generating dm id")
	}

	d := &PendingDM{
		ID:          id,
		Sender:      m.self.Handle,
		Recipient:   recipient,
		Ciphertext:  ciphertext,
		Nonce:       nonce,
		Created:     time.Now(),
		Status:      DMPending,
		Expires:     time.Now().Add(DMExpiry),
		RoutingHint: hex.EncodeToString(recipientIdentity.NodeID[:]),
	}
	m.mu.Lock()
	m.pending[id] = d
	m.mu.Unlock()
	m.persist(d)

	m.attemptDelivery(ctx, enc, d)
	return nil
}

func (m *DMManager) payloadFor(d *PendingDM) DMPayload {
	return DMPayload{
		Recipient:   d.Recipient,
		Sender:      d.Sender,
		Ciphertext:  d.Ciphertext,
		Nonce:       d.Nonce,
		Timestamp:   d.Created.UnixMilli(),
		MessageID:   d.ID,
		IsRetry:     d.Attempts > 0,
		RoutingHint: d.RoutingHint,
	}
}

// attemptDelivery tries direct, then DHT-hint, then leaves the message
// store-and-forwarded (spec.md §4.8 step 3 "Delivery ordering").
func (m *DMManager) attemptDelivery(ctx context.Context, enc Encoder, d *PendingDM) {
	payload := enc.EncodeDM(m.payloadFor(d))

	m.mu.Lock()
	d.Attempts++
	d.LastAttempt = time.Now()
	m.mu.Unlock()

	if m.route.SendDirect(d.Recipient, payload) {
		return
	}
	if m.route.SendViaDHTHint(ctx, d.Recipient, payload) {
		return
	}
	// Neither route is currently available; the message stays pending for
	// the periodic flusher.
	if d.Attempts >= DMMaxAttempts {
		m.mu.Lock()
		d.Status = DMFailed
		m.mu.Unlock()
		m.persist(d)
	}
}

// HandleDelivered applies an incoming dm_delivered receipt, flipping the
// matching pending record to delivered (spec.md §4.8 "flips the
// sender-side pending record to delivered").
func (m *DMManager) HandleDelivered(messageID [16]byte) {
	m.mu.Lock()
	d, ok := m.pending[messageID]
	if ok {
		d.Status = DMDelivered
	}
	m.mu.Unlock()
	if ok {
		m.persist(d)
	}
}

// HandleIncoming processes a received e2e_dm: forwards it if not addressed
// to self, or decrypts and reports it otherwise (spec.md §4.8 "On receipt").
//
// Forwarding tries routing_hint, then a direct connection, then the k
// closest DHT peers to the recipient — a different priority order from
// the initial send path (attemptDelivery), which tries a direct
// connection and then the DHT fan-out, and only carries the hint in the
// payload for relays.
func (m *DMManager) HandleIncoming(ctx context.Context, enc Encoder, p DMPayload, senderPK *[32]byte, onReceive func(sender, text string)) *[]byte {
	if p.Recipient != m.self.Handle {
		forwarded := enc.EncodeDM(p)
		if p.RoutingHint != "" && m.route.SendViaHint(p.RoutingHint, forwarded) {
			return nil
		}
		if m.route.SendDirect(p.Recipient, forwarded) {
			return nil
		}
		m.route.SendViaDHTHint(ctx, p.Recipient, forwarded)
		return nil
	}

	plaintext, err := sigcrypto.OpenDM(p.Ciphertext, p.Nonce, senderPK, &m.encKey.Private)
	if err != nil {
		return nil // drop silently, per spec
	}
	onReceive(p.Sender, string(plaintext))

	receipt := enc.EncodeDelivered(p.MessageID, p.Sender, time.Now())
	return &receipt
}

// FlushOnce retries every pending, non-terminal DM once (spec.md §4.8
// "a periodic flusher retries on peer visibility transitions").
func (m *DMManager) FlushOnce(ctx context.Context, enc Encoder) {
	now := time.Now()
	m.mu.Lock()
	due := make([]*PendingDM, 0, len(m.pending))
	for id, d := range m.pending {
		if d.Status != DMPending {
			continue
		}
		if now.After(d.Expires) {
			d.Status = DMExpired
			delete(m.pending, id)
			m.persist(d)
			continue
		}
		due = append(due, d)
	}
	m.mu.Unlock()

	for _, d := range due {
		m.attemptDelivery(ctx, enc, d)
	}
}

// RunFlusher drives FlushOnce every DMFlushInterval until ctx is cancelled.
func (m *DMManager) RunFlusher(ctx context.Context, enc Encoder) {
	ticker := time.NewTicker(DMFlushInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.FlushOnce(ctx, enc)
		}
	}
}

func (m *DMManager) persist(d *PendingDM) {
	if m.store == nil {
		return
	}
	if err := m.store.Save(*d); err != nil {
		m.logger.Warn("persisting pending dm failed", zap.String("id", hex.EncodeToString(d.ID[:])), zap.Error(err))
	}
}
