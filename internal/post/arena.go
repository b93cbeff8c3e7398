// Copyright (C) 2025, Ember Contributors. All rights reserved.
// See the file LICENSE for licensing terms.

package post

import (
	"sync"

	"github.com/publiuspseudis/ember/internal/errs"
	"github.com/publiuspseudis/ember/set"
)

// Arena is the post store: a flat map keyed by id plus the reply edges
// needed to walk a thread (spec.md §9 "Represent as parent_id keys into a
// post arena; never as bidirectional pointers. Parent->reply edges are
// derived on insert.").
type Arena struct {
	mu sync.RWMutex

	posts    map[[16]byte]*Post
	children map[[16]byte]map[[16]byte]struct{} // parent_id -> set of reply ids, including unresolved parents
}

// NewArena constructs an empty post arena.
func NewArena() *Arena {
	return &Arena{
		posts:    make(map[[16]byte]*Post),
		children: make(map[[16]byte]map[[16]byte]struct{}),
	}
}

// Insert adds p to the arena, deriving the parent->reply edge if p has a
// parent (spec.md §4.8 step 6 "if parent_id is known, attach to parent's
// replies; else record an unresolved parent reference").
func (a *Arena) Insert(p *Post) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.posts[p.ID] = p
	if p.ParentID != nil {
		kids, ok := a.children[*p.ParentID]
		if !ok {
			kids = make(map[[16]byte]struct{})
			a.children[*p.ParentID] = kids
		}
		kids[p.ID] = struct{}{}
		if parent, ok := a.posts[*p.ParentID]; ok {
			if parent.Replies == nil {
				parent.Replies = set.Set[[16]byte]{}
			}
			parent.Replies.Add(p.ID)
		}
	}
	// A post arriving after its children were recorded inherits those
	// unresolved reply edges now that it exists.
	if kids, ok := a.children[p.ID]; ok {
		if p.Replies == nil {
			p.Replies = set.Set[[16]byte]{}
		}
		for k := range kids {
			p.Replies.Add(k)
		}
	}
}

// Get returns the post for id, if present.
func (a *Arena) Get(id [16]byte) (*Post, bool) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	p, ok := a.posts[id]
	return p, ok
}

// Delete removes a post from the arena.
func (a *Arena) Delete(id [16]byte) {
	a.mu.Lock()
	defer a.mu.Unlock()
	delete(a.posts, id)
}

// FindRoot walks parent_id links to the thread root (spec.md §4.8 GC
// "set of posts sharing findRoot(id)").
func (a *Arena) FindRoot(id [16]byte) [16]byte {
	a.mu.RLock()
	defer a.mu.RUnlock()
	cur := id
	for {
		p, ok := a.posts[cur]
		if !ok || p.ParentID == nil {
			return cur
		}
		cur = *p.ParentID
	}
}

// Thread returns every post in the arena sharing root's findRoot value,
// including root itself.
func (a *Arena) Thread(root [16]byte) []*Post {
	a.mu.RLock()
	defer a.mu.RUnlock()
	var out []*Post
	for id, p := range a.posts {
		cur := id
		for {
			cp, ok := a.posts[cur]
			if !ok || cp.ParentID == nil {
				break
			}
			cur = *cp.ParentID
		}
		if cur == root {
			out = append(out, p)
		}
	}
	return out
}

// Roots returns the id of every post with no parent (thread roots).
func (a *Arena) Roots() [][16]byte {
	a.mu.RLock()
	defer a.mu.RUnlock()
	var out [][16]byte
	for id, p := range a.posts {
		if p.ParentID == nil {
			out = append(out, id)
		}
	}
	return out
}

// MustGet returns the post for id or a NotFound error.
func (a *Arena) MustGet(id [16]byte) (*Post, error) {
	p, ok := a.Get(id)
	if !ok {
		return nil, errs.New(errs.KindNotFound, "post not found")
	}
	return p, nil
}
