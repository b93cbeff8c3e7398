// Copyright (C) 2025, Ember Contributors. All rights reserved.
// See the file LICENSE for licensing terms.

// Package wire defines the JSON wire envelope and every message type
// exchanged between nodes (spec.md §6 "External interfaces"). Decoding is a
// type-keyed dispatch table, not a type switch on a concrete union (spec.md
// §9 "Polymorphism over wire messages").
package wire

import (
	"encoding/json"

	"github.com/publiuspseudis/ember/codec"
	"github.com/publiuspseudis/ember/internal/errs"
)

// Type is the `type` discriminator every wire message carries.
type Type string

const (
	TypeProvisionalIdentityClaim Type = "provisional_identity_claim"
	TypeIdentityConfirmationSlip Type = "identity_confirmation_slip"
	TypeNewPost                  Type = "new_post"
	TypeParentUpdate             Type = "parent_update"
	TypeCarrierUpdate            Type = "carrier_update"
	TypePostAttestation          Type = "post_attestation"
	TypePostRating               Type = "post_rating"
	TypeE2EDM                    Type = "e2e_dm"
	TypeDMDelivered              Type = "dm_delivered"
	TypeRequestImageChunks       Type = "request_image_chunks"
	TypeImageChunk               Type = "image_chunk"
	TypePeerExchange             Type = "peer_exchange"

	TypePing      Type = "PING"
	TypePong      Type = "PONG"
	TypeFindNode  Type = "FIND_NODE"
	TypeFindValue Type = "FIND_VALUE"
	TypeStore     Type = "STORE"

	TypeFindNodeReply Type = "FIND_NODE_REPLY"
	TypeFindValueReply Type = "FIND_VALUE_REPLY"
	TypeStoreReply     Type = "STORE_REPLY"

	TypeSubscribe   Type = "SUBSCRIBE"
	TypeUnsubscribe Type = "UNSUBSCRIBE"
	TypeMulticast   Type = "MULTICAST"
	TypeGraft       Type = "GRAFT"
	TypePrune       Type = "PRUNE"
	TypeIHave       Type = "IHAVE"

	TypeJoin         Type = "JOIN"
	TypeForwardJoin  Type = "FORWARD_JOIN"
	TypeDisconnect   Type = "DISCONNECT"
	TypeNeighbor     Type = "NEIGHBOR"
	TypeShuffle      Type = "SHUFFLE"
	TypeShuffleReply Type = "SHUFFLE_REPLY"
)

// envelopeWire is the minimal shape PeekType needs: every wire message's
// `type` discriminator, decoded without paying for a full unmarshal of the
// rest of the payload.
type envelopeWire struct {
	Type Type `json:"type"`
}

// Encode wraps a typed payload with its discriminator, marshaled through
// codec.Codec so every frame on the wire carries (and is checked against)
// the codec version this node speaks. payload must be a struct whose JSON
// fields do not include "type".
func Encode(t Type, payload any) ([]byte, error) {
	body, err := codec.Codec.Marshal(codec.CurrentVersion, payload)
	if err != nil {
		return nil, errs.Wrap(errs.KindIntegrityError, err, "encoding wire payload")
	}
	var fields map[string]json.RawMessage
	if _, err := codec.Codec.Unmarshal(body, &fields); err != nil {
		return nil, errs.Wrap(errs.KindIntegrityError, err, "flattening wire payload")
	}
	typeBytes, _ := json.Marshal(t)
	fields["type"] = typeBytes
	return json.Marshal(fields)
}

// PeekType reads only the `type` field of a wire message without decoding
// the rest, so the dispatch table can route before full unmarshal.
func PeekType(raw []byte) (Type, error) {
	var w envelopeWire
	if _, err := codec.Codec.Unmarshal(raw, &w); err != nil {
		return "", errs.Wrap(errs.KindIntegrityError, err, "peeking wire message type")
	}
	return w.Type, nil
}

// Decode unmarshals raw into dest (a pointer to a concrete payload type),
// ignoring the `type` field.
func Decode(raw []byte, dest any) error {
	if _, err := codec.Codec.Unmarshal(raw, dest); err != nil {
		return errs.Wrap(errs.KindIntegrityError, err, "decoding wire message")
	}
	return nil
}
