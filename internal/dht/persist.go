// Copyright (C) 2025, Ember Contributors. All rights reserved.
// See the file LICENSE for licensing terms.

package dht

import (
	"encoding/hex"
	"encoding/json"
	"time"

	"github.com/publiuspseudis/ember/internal/errs"
	"github.com/publiuspseudis/ember/internal/store"
	"github.com/publiuspseudis/ember/utils/constants"
)

type persistedRecord struct {
	Value       []byte    `json:"value"`
	LastRefresh time.Time `json:"last_refresh"`
}

func storageKey(id ID) []byte {
	return append([]byte(constants.KeyspaceDHTStorage), hex.EncodeToString(id[:])...)
}

func routingKey(id ID) []byte {
	return append([]byte(constants.KeyspaceDHTRouting), hex.EncodeToString(id[:])...)
}

// Persist writes this node's storage map and known contacts to kv
// (spec.md §4.4 "Persistence: serialize()/deserialize()").
func (n *Node) Persist(kv store.KVStore) error {
	n.mu.RLock()
	defer n.mu.RUnlock()
	for key, sv := range n.storage {
		rec := persistedRecord{Value: sv.value, LastRefresh: sv.lastRefresh}
		data, err := json.Marshal(rec)
		if err != nil {
			return errs.Wrap(errs.KindIntegrityError, err, "marshaling dht record")
		}
		if err := kv.Put(storageKey(key), data); err != nil {
			return err
		}
	}
	for _, c := range n.table.Closest(n.self, n.table.Size()) {
		data, err := json.Marshal(c)
		if err != nil {
			return errs.Wrap(errs.KindIntegrityError, err, "marshaling dht contact")
		}
		if err := kv.Put(routingKey(c.NodeID), data); err != nil {
			return err
		}
	}
	return nil
}

// LoadFrom repopulates storage and routing table from kv
// (spec.md §4.4 "deserialize()").
func (n *Node) LoadFrom(kv store.KVStore) error {
	if err := kv.IteratePrefix([]byte(constants.KeyspaceDHTStorage), func(key, value []byte) error {
		id, err := idFromStorageKey(key)
		if err != nil {
			return nil // skip malformed keys rather than fail the whole load
		}
		var rec persistedRecord
		if err := json.Unmarshal(value, &rec); err != nil {
			return nil
		}
		n.mu.Lock()
		n.storage[id] = &storedValue{value: rec.Value, lastRefresh: rec.LastRefresh}
		n.mu.Unlock()
		return nil
	}); err != nil {
		return err
	}

	return kv.IteratePrefix([]byte(constants.KeyspaceDHTRouting), func(key, value []byte) error {
		var c Contact
		if err := json.Unmarshal(value, &c); err != nil {
			return nil
		}
		n.table.Touch(c)
		return nil
	})
}

func idFromStorageKey(key []byte) (ID, error) {
	hexPart := key[len(constants.KeyspaceDHTStorage):]
	raw, err := hex.DecodeString(string(hexPart))
	if err != nil || len(raw) != IDLen {
		return ID{}, errs.New(errs.KindIntegrityError, "malformed dht storage key")
	}
	var id ID
	copy(id[:], raw)
	return id, nil
}
