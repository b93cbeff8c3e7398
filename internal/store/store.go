// Copyright (C) 2025, Ember Contributors. All rights reserved.
// See the file LICENSE for licensing terms.

// Package store is the substrate's persistence surface (spec.md §6): a
// single embedded key-value store shared by every component, each keeping
// to its own keyspace prefix from utils/constants.
package store

import (
	"bytes"

	"github.com/cockroachdb/pebble"

	"github.com/publiuspseudis/ember/internal/errs"
)

// KVStore is the persistence contract every component depends on rather
// than reaching for *pebble.DB directly, so tests can swap in an in-memory
// implementation.
type KVStore interface {
	Put(key, value []byte) error
	Get(key []byte) ([]byte, error)
	Delete(key []byte) error
	IteratePrefix(prefix []byte, fn func(key, value []byte) error) error
	Close() error
}

type pebbleStore struct {
	db *pebble.DB
}

// Open opens (creating if absent) a pebble-backed KVStore at dir.
func Open(dir string) (KVStore, error) {
	db, err := pebble.Open(dir, &pebble.Options{})
	if err != nil {
		return nil, errs.Wrap(errs.KindIntegrityError, err, "opening store at "+dir)
	}
	return &pebbleStore{db: db}, nil
}

func (s *pebbleStore) Put(key, value []byte) error {
	if err := s.db.Set(key, value, pebble.Sync); err != nil {
		return errs.Wrap(errs.KindIntegrityError, err, "store put")
	}
	return nil
}

func (s *pebbleStore) Get(key []byte) ([]byte, error) {
	value, closer, err := s.db.Get(key)
	if err == pebble.ErrNotFound {
		return nil, errs.New(errs.KindNotFound, "key not found")
	}
	if err != nil {
		return nil, errs.Wrap(errs.KindIntegrityError, err, "store get")
	}
	out := append([]byte(nil), value...)
	_ = closer.Close()
	return out, nil
}

func (s *pebbleStore) Delete(key []byte) error {
	if err := s.db.Delete(key, pebble.Sync); err != nil {
		return errs.Wrap(errs.KindIntegrityError, err, "store delete")
	}
	return nil
}

func (s *pebbleStore) IteratePrefix(prefix []byte, fn func(key, value []byte) error) error {
	upper := prefixUpperBound(prefix)
	it, err := s.db.NewIter(&pebble.IterOptions{LowerBound: prefix, UpperBound: upper})
	if err != nil {
		return errs.Wrap(errs.KindIntegrityError, err, "store iterate")
	}
	defer it.Close()

	for it.First(); it.Valid(); it.Next() {
		if !bytes.HasPrefix(it.Key(), prefix) {
			break
		}
		if err := fn(append([]byte(nil), it.Key()...), append([]byte(nil), it.Value()...)); err != nil {
			return err
		}
	}
	return it.Error()
}

func (s *pebbleStore) Close() error {
	return s.db.Close()
}

// prefixUpperBound returns the smallest key that is strictly greater than
// every key with the given prefix, for use as a pebble iterator upper bound.
func prefixUpperBound(prefix []byte) []byte {
	upper := append([]byte(nil), prefix...)
	for i := len(upper) - 1; i >= 0; i-- {
		upper[i]++
		if upper[i] != 0 {
			return upper[:i+1]
		}
	}
	return nil // prefix is all 0xff bytes; no upper bound needed
}
