// Copyright (C) 2025, Ember Contributors. All rights reserved.
// See the file LICENSE for licensing terms.

package post

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func id(b byte) [16]byte {
	var out [16]byte
	out[15] = b
	return out
}

func TestArenaInsertAttachesReplyToParent(t *testing.T) {
	a := NewArena()
	root := &Post{ID: id(1)}
	a.Insert(root)

	parentID := id(1)
	reply := &Post{ID: id(2), ParentID: &parentID}
	a.Insert(reply)

	require.Contains(t, root.Replies, id(2))
}

func TestArenaInsertResolvesOutOfOrderParent(t *testing.T) {
	a := NewArena()
	parentID := id(1)
	reply := &Post{ID: id(2), ParentID: &parentID}
	a.Insert(reply)

	root := &Post{ID: id(1)}
	a.Insert(root)

	require.Contains(t, root.Replies, id(2))
}

func TestArenaFindRootWalksParentChain(t *testing.T) {
	a := NewArena()
	rootID := id(1)
	midID := id(2)
	a.Insert(&Post{ID: rootID})
	a.Insert(&Post{ID: midID, ParentID: &rootID})
	a.Insert(&Post{ID: id(3), ParentID: &midID})

	require.Equal(t, rootID, a.FindRoot(id(3)))
}

func TestArenaThreadIncludesAllDescendants(t *testing.T) {
	a := NewArena()
	rootID := id(1)
	a.Insert(&Post{ID: rootID})
	a.Insert(&Post{ID: id(2), ParentID: &rootID})
	a.Insert(&Post{ID: id(3), ParentID: &rootID})

	thread := a.Thread(rootID)
	require.Len(t, thread, 3)
}
