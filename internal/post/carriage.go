// Copyright (C) 2025, Ember Contributors. All rights reserved.
// See the file LICENSE for licensing terms.

package post

import "github.com/publiuspseudis/ember/set"

// CarrierUpdateSink broadcasts a carrier_update message (spec.md §4.8
// "toggle_carry(id): ... broadcasts carrier_update").
type CarrierUpdateSink interface {
	BroadcastCarrierUpdate(postID [16]byte, peer string, carrying bool)
}

// ToggleCarry flips self's membership in id's carrier set and broadcasts
// the change (spec.md §4.8 "Carriage / ephemerality").
func ToggleCarry(arena *Arena, id [16]byte, self string, sink CarrierUpdateSink) error {
	p, err := arena.MustGet(id)
	if err != nil {
		return err
	}
	carrying := !p.Carriers.Contains(self)

	if p.Carriers == nil {
		p.Carriers = set.Set[string]{}
	}
	if carrying {
		p.Carriers.Add(self)
	} else {
		p.Carriers.Remove(self)
	}
	p.ExplicitlyCarrying = carrying

	sink.BroadcastCarrierUpdate(id, self, carrying)
	return nil
}

// HandleCarrierUpdate applies an incoming carrier_update, dropping a
// non-reply post whose carrier set has become empty (spec.md §4.8 "On
// receipt of carrier_update: update local set; if a non-reply post's
// carriers becomes empty, drop it.").
func HandleCarrierUpdate(arena *Arena, postID [16]byte, peer string, carrying bool) {
	p, ok := arena.Get(postID)
	if !ok {
		return
	}
	if p.Carriers == nil {
		p.Carriers = set.Set[string]{}
	}
	if carrying {
		p.Carriers.Add(peer)
	} else {
		p.Carriers.Remove(peer)
	}
	if !p.IsReply() && p.Carriers.Len() == 0 {
		arena.Delete(postID)
	}
}
