// Copyright (C) 2025, Ember Contributors. All rights reserved.
// See the file LICENSE for licensing terms.

package core

import (
	"encoding/json"

	"github.com/publiuspseudis/ember/internal/errs"
	"github.com/publiuspseudis/ember/internal/sigcrypto"
	"github.com/publiuspseudis/ember/internal/store"
	"github.com/publiuspseudis/ember/utils/constants"
)

var nodeKeysKey = []byte(constants.KeyspaceUserState + "node_keys")

type persistedKeys struct {
	Sign sigcrypto.SignKeyPair `json:"sign"`
	Enc  sigcrypto.EncKeyPair  `json:"enc"`
}

// loadOrGenerateKeys returns this node's persistent signing and encryption
// keypairs, generating and persisting a fresh pair on first run.
func loadOrGenerateKeys(kv store.KVStore) (sigcrypto.SignKeyPair, sigcrypto.EncKeyPair, error) {
	raw, err := kv.Get(nodeKeysKey)
	if err == nil {
		var pk persistedKeys
		if err := json.Unmarshal(raw, &pk); err != nil {
			return sigcrypto.SignKeyPair{}, sigcrypto.EncKeyPair{}, errs.Wrap(errs.KindIntegrityError, err, "unmarshaling persisted node keys")
		}
		return pk.Sign, pk.Enc, nil
	}

	signKP, err := sigcrypto.GenerateSignKeyPair()
	if err != nil {
		return sigcrypto.SignKeyPair{}, sigcrypto.EncKeyPair{}, err
	}
	encKP, err := sigcrypto.GenerateEncKeyPair()
	if err != nil {
		return sigcrypto.SignKeyPair{}, sigcrypto.EncKeyPair{}, err
	}
	data, err := json.Marshal(persistedKeys{Sign: signKP, Enc: encKP})
	if err != nil {
		return sigcrypto.SignKeyPair{}, sigcrypto.EncKeyPair{}, errs.Wrap(errs.KindIntegrityError, err, "marshaling node keys")
	}
	if err := kv.Put(nodeKeysKey, data); err != nil {
		return sigcrypto.SignKeyPair{}, sigcrypto.EncKeyPair{}, err
	}
	return signKP, encKP, nil
}
