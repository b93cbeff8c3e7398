// Copyright (C) 2025, Ember Contributors. All rights reserved.
// See the file LICENSE for licensing terms.

package identity

import (
	"context"
	"crypto/sha1" //nolint:gosec // keyspace hash, not a security primitive
	"encoding/json"
	"strings"
	"sync"
	"time"

	"github.com/publiuspseudis/ember/internal/dht"
	"github.com/publiuspseudis/ember/internal/errs"
	"github.com/publiuspseudis/ember/internal/sigcrypto"
	"github.com/publiuspseudis/ember/internal/vdf"
	"github.com/publiuspseudis/ember/log"
	"github.com/publiuspseudis/ember/utils/constants"
)

// DHTClient is the subset of internal/dht.Node the registry depends on.
type DHTClient interface {
	Get(ctx context.Context, key dht.ID) ([]byte, error)
	Put(ctx context.Context, key dht.ID, value []byte) (int, error)
}

func identityKey(handle string) dht.ID {
	sum := sha1.Sum([]byte(constants.DHTPrefixIdentityHandle + strings.ToLower(handle))) //nolint:gosec
	return dht.ID(sum)
}

// Registry is C7: the local cache of confirmed identities plus the
// provisional-claim admission pipeline.
type Registry struct {
	dht   DHTClient
	q     int
	ttl   time.Duration
	clock func() time.Time

	logger log.Logger

	mu            sync.Mutex
	confirmed     map[string]Identity // by lowercased handle
	byPK          map[string]Identity // by hex pk_sign
	provisional   map[string]*ProvisionalClaim
	selfHandle    string
	selfRegistered bool
}

// New constructs a Registry against the given DHT client.
func New(dhtClient DHTClient, q int, ttl time.Duration, logger log.Logger) *Registry {
	if q <= 0 {
		q = DefaultConfirmationThreshold
	}
	if ttl <= 0 {
		ttl = DefaultClaimTTL
	}
	if logger == nil {
		logger = log.NewNoOp()
	}
	return &Registry{
		dht:         dhtClient,
		q:           q,
		ttl:         ttl,
		clock:       time.Now,
		logger:      logger,
		confirmed:   make(map[string]Identity),
		byPK:        make(map[string]Identity),
		provisional: make(map[string]*ProvisionalClaim),
	}
}

// SetSelfHandle records which handle this node is claiming, so it can
// notice its own promotion (spec.md §4.7 step 4).
func (r *Registry) SetSelfHandle(handle string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.selfHandle = strings.ToLower(handle)
}

// IsSelfRegistered reports whether this node has observed its own claim
// promoted to the directory.
func (r *Registry) IsSelfRegistered() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.selfRegistered
}

// Lookup resolves handle to a confirmed Identity, checking the local cache
// before falling back to a DHT read.
func (r *Registry) Lookup(ctx context.Context, handle string) (Identity, error) {
	handle = strings.ToLower(handle)
	r.mu.Lock()
	if id, ok := r.confirmed[handle]; ok {
		r.mu.Unlock()
		return id, nil
	}
	r.mu.Unlock()

	raw, err := r.dht.Get(ctx, identityKey(handle))
	if err != nil {
		return Identity{}, errs.Wrap(errs.KindNotFound, err, "identity not found for handle "+handle)
	}
	var id Identity
	if err := json.Unmarshal(raw, &id); err != nil {
		return Identity{}, errs.Wrap(errs.KindIntegrityError, err, "unmarshaling identity record")
	}
	r.cacheConfirmed(id)
	return id, nil
}

// LookupCached resolves handle against the local confirmed-identity cache
// only, reporting false rather than falling back to a DHT read.
func (r *Registry) LookupCached(handle string) (Identity, bool) {
	handle = strings.ToLower(handle)
	r.mu.Lock()
	defer r.mu.Unlock()
	id, ok := r.confirmed[handle]
	return id, ok
}

func (r *Registry) cacheConfirmed(id Identity) {
	r.mu.Lock()
	defer r.mu.Unlock()
	handle := strings.ToLower(id.Handle)
	r.confirmed[handle] = id
	r.byPK[pkHex(id.PKSign)] = id
	if handle == r.selfHandle {
		r.selfRegistered = true
	}
}

// HandleProvisionalClaim validates and admits an incoming
// provisional_identity_claim (spec.md §4.7 step 2).
func (r *Registry) HandleProvisionalClaim(ctx context.Context, claim Identity) error {
	handle := strings.ToLower(claim.Handle)
	if !HandlePattern.MatchString(claim.Handle) {
		return errs.New(errs.KindInvalidSignature, "handle fails grammar check")
	}

	if _, err := r.Lookup(ctx, handle); err == nil {
		return errs.New(errs.KindDuplicateClaim, "handle already registered")
	}

	r.mu.Lock()
	if _, exists := r.provisional[handle]; exists {
		r.mu.Unlock()
		return errs.New(errs.KindDuplicateClaim, "handle already has a provisional entry")
	}
	r.mu.Unlock()

	if !vdf.Verify(claim.VDFInput, claim.VDFProof) {
		return errs.New(errs.KindInvalidVDF, "provisional claim vdf does not verify")
	}
	signable := sigcrypto.IdentityClaimSignable{Handle: claim.Handle, PKSign: claim.PKSign, VDFProof: claim.VDFProof}
	msg, err := signable.CanonicalBytes()
	if err != nil {
		return errs.Wrap(errs.KindInvalidSignature, err, "encoding claim signable")
	}
	if !sigcrypto.Verify(claim.PKSign, msg, claim.Signature) {
		return errs.New(errs.KindInvalidSignature, "provisional claim signature invalid")
	}

	r.mu.Lock()
	r.provisional[handle] = &ProvisionalClaim{
		Claim:         claim,
		Confirmations: make(map[string]ConfirmationSlip),
		Created:       r.clock(),
	}
	r.mu.Unlock()
	return nil
}

// ClaimHash returns SHA-256 of the claim's canonical signable bytes
// (spec.md §3 "claim_hash = SHA-256 of the claim's canonical form").
func ClaimHash(claim Identity) ([]byte, error) {
	signable := sigcrypto.IdentityClaimSignable{Handle: claim.Handle, PKSign: claim.PKSign, VDFProof: claim.VDFProof}
	msg, err := signable.CanonicalBytes()
	if err != nil {
		return nil, err
	}
	sum := sigcrypto.SHA256(msg)
	return sum[:], nil
}

// CollectSlip records an incoming identity_confirmation_slip against its
// claim; once Q unique slips are gathered it promotes the claim to the
// directory (spec.md §4.7 step 3).
func (r *Registry) CollectSlip(ctx context.Context, slip ConfirmationSlip) error {
	handle := strings.ToLower(slip.Handle)

	signable := sigcrypto.ConfirmationSlipSignable{Handle: slip.Handle, ClaimHash: slip.ClaimHash}
	msg, err := signable.CanonicalBytes()
	if err != nil {
		return errs.Wrap(errs.KindInvalidSignature, err, "encoding slip signable")
	}
	if !sigcrypto.Verify(slip.ConfirmerPK, msg, slip.Signature) {
		return errs.New(errs.KindInvalidSignature, "confirmation slip signature invalid")
	}

	r.mu.Lock()
	pc, ok := r.provisional[handle]
	if !ok {
		r.mu.Unlock()
		return errs.New(errs.KindNotFound, "no provisional claim for handle")
	}
	pc.Confirmations[strings.ToLower(slip.ConfirmerHandle)] = slip
	reached := len(pc.Confirmations) >= r.q
	claim := pc.Claim
	r.mu.Unlock()

	if !reached {
		return nil
	}
	return r.promote(ctx, handle, claim)
}

// promote stores the claim at identity:handle:<handle>, first-stored-wins:
// if a replica already holds a value for this key, the existing record
// wins and the local claim is discarded (spec.md §4.7 "Failure modes").
func (r *Registry) promote(ctx context.Context, handle string, claim Identity) error {
	if existing, err := r.dht.Get(ctx, identityKey(handle)); err == nil {
		var id Identity
		if json.Unmarshal(existing, &id) == nil {
			r.cacheConfirmed(id)
			r.clearProvisional(handle)
			return nil
		}
	}

	data, err := json.Marshal(claim)
	if err != nil {
		return errs.Wrap(errs.KindIntegrityError, err, "marshaling identity for promotion")
	}
	if _, err := r.dht.Put(ctx, identityKey(handle), data); err != nil {
		return errs.Wrap(errs.KindUnreachable, err, "storing identity in dht")
	}

	r.cacheConfirmed(claim)
	r.clearProvisional(handle)
	return nil
}

func (r *Registry) clearProvisional(handle string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.provisional, handle)
}

// GC drops provisional claims older than ttl that never reached quorum
// (spec.md §4.7 "provisional entries have a TTL of 24 hours and are
// GC'd").
func (r *Registry) GC() {
	r.mu.Lock()
	defer r.mu.Unlock()
	now := r.clock()
	for handle, pc := range r.provisional {
		if now.Sub(pc.Created) > r.ttl {
			delete(r.provisional, handle)
		}
	}
}

func pkHex(pk []byte) string {
	const hexDigits = "0123456789abcdef"
	out := make([]byte, len(pk)*2)
	for i, b := range pk {
		out[i*2] = hexDigits[b>>4]
		out[i*2+1] = hexDigits[b&0x0f]
	}
	return string(out)
}
