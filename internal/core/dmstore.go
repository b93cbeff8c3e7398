// Copyright (C) 2025, Ember Contributors. All rights reserved.
// See the file LICENSE for licensing terms.

package core

import (
	"encoding/hex"
	"encoding/json"

	"github.com/publiuspseudis/ember/internal/errs"
	"github.com/publiuspseudis/ember/internal/post"
	"github.com/publiuspseudis/ember/internal/store"
	"github.com/publiuspseudis/ember/utils/constants"
)

// kvDMStore implements post.DMStore over the shared KVStore, keeping to
// the pending_messages/ keyspace (spec.md §3 "pending_messages/").
type kvDMStore struct {
	kv store.KVStore
}

func dmKey(id [16]byte) []byte {
	return []byte(constants.KeyspacePendingMessages + hex.EncodeToString(id[:]))
}

func (s kvDMStore) Save(d post.PendingDM) error {
	data, err := json.Marshal(d)
	if err != nil {
		return errs.Wrap(errs.KindIntegrityError, err, "marshaling pending dm")
	}
	return s.kv.Put(dmKey(d.ID), data)
}

func (s kvDMStore) Load() ([]post.PendingDM, error) {
	var out []post.PendingDM
	err := s.kv.IteratePrefix([]byte(constants.KeyspacePendingMessages), func(_, value []byte) error {
		var d post.PendingDM
		if err := json.Unmarshal(value, &d); err != nil {
			return errs.Wrap(errs.KindIntegrityError, err, "unmarshaling pending dm")
		}
		out = append(out, d)
		return nil
	})
	return out, err
}

func (s kvDMStore) Delete(id [16]byte) error {
	return s.kv.Delete(dmKey(id))
}
