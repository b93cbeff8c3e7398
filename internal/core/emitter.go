// Copyright (C) 2025, Ember Contributors. All rights reserved.
// See the file LICENSE for licensing terms.

package core

import (
	"encoding/json"
	"time"

	"go.uber.org/zap"

	"github.com/publiuspseudis/ember/internal/identity"
	"github.com/publiuspseudis/ember/internal/post"
	"github.com/publiuspseudis/ember/internal/sigcrypto"
	"github.com/publiuspseudis/ember/internal/wire"
)

// attestationEmitter implements post.AttestationEmitter: sign and
// broadcast a fresh attestation for a just-accepted post (spec.md §4.8
// step 6).
type attestationEmitter struct {
	*linkCore
	self    identity.Identity
	signKey sigcrypto.SignKeyPair
}

func (e attestationEmitter) EmitAttestation(p *post.Post) {
	att := post.Attestation{
		PostID:         p.ID,
		PostAuthor:     p.Author,
		Timestamp:      time.Now().UnixMilli(),
		VDFIterations:  p.VDFProof.Iterations,
		AttesterHandle: e.self.Handle,
		AttesterPK:     e.signKey.Public,
	}
	signable := sigcrypto.AttestationSignable{
		PostID:        att.PostID[:],
		PostAuthor:    att.PostAuthor,
		Timestamp:     att.Timestamp,
		VDFIterations: att.VDFIterations,
	}
	msg, err := signable.CanonicalBytes()
	if err != nil {
		e.logger.Error("encoding attestation signable", zap.Error(err))
		return
	}
	att.Signature = sigcrypto.Sign(e.signKey.Private, msg)

	attJSON, err := json.Marshal(att)
	if err != nil {
		e.logger.Error("marshaling attestation", zap.Error(err))
		return
	}
	e.broadcastEncoded(wire.TypePostAttestation, wire.PostAttestation{
		Attestation:    attJSON,
		AttesterHandle: att.AttesterHandle,
		AttesterPK:     att.AttesterPK,
		Signature:      att.Signature,
	})
}
