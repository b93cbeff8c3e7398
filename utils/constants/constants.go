// Copyright (C) 2025, Ember Contributors. All rights reserved.
// See the file LICENSE for licensing terms.

// Package constants holds the fixed, non-configurable values the substrate
// relies on: persistence keyspaces and DHT key prefixes from spec.md §3/§6.
package constants

// Persistence keyspaces (spec.md §6 "Persistence surface").
const (
	KeyspacePosts           = "posts/"
	KeyspaceImageChunks     = "image_chunks/"
	KeyspaceUserState       = "user_state/"
	KeyspacePeerScores      = "peer_scores/"
	KeyspaceDHTRouting      = "dht_routing/"
	KeyspaceDHTStorage      = "dht_storage/"
	KeyspacePendingMessages = "pending_messages/"
	KeyspaceMessageReceipts = "message_receipts/"
)

// DHT key prefixes (spec.md §3 "DHT key conventions").
const (
	DHTPrefixIdentityHandle = "identity:handle:"
	DHTPrefixProfile        = "profile:"
	DHTPrefixRouting        = "routing:"
)
