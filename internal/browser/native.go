// Package browser mirrors a subtree of the node store into the native
// bookmark tree of a running browser profile and reconciles the two on
// demand. The native side is abstracted behind NativeStore so the same
// backend works against a live profile file or an in-memory tree.
package browser

import (
	"context"
	"time"
)

// Native bookmark kinds.
const (
	NativeBookmark  = "bookmark"
	NativeFolder    = "folder"
	NativeSeparator = "separator"
)

// Bookmark is one entry of the native tree. Children is populated by
// Tree only.
type Bookmark struct {
	ID        string      `json:"id"`
	ParentID  string      `json:"parent_id,omitempty"`
	Index     int         `json:"index"`
	Title     string      `json:"title,omitempty"`
	URL       string      `json:"url,omitempty"`
	Type      string      `json:"type"`
	DateAdded time.Time   `json:"date_added,omitzero"`
	Children  []*Bookmark `json:"children,omitempty"`
}

// Changes carries the mutable fields of a native update. Nil fields are
// left untouched.
type Changes struct {
	Title *string
	URL   *string
}

// Listener receives native tree mutations. Mutations made through the
// NativeStore itself are reported too; the backend filters its own
// writes out with its allowlist.
type Listener struct {
	Created func(b Bookmark)
	Removed func(b Bookmark)
	Changed func(b Bookmark)
	Moved   func(b Bookmark, oldParentID string, oldIndex int)
}

// NativeStore is the browser side of the bridge.
type NativeStore interface {
	// Tree returns the native root folder with all descendants attached.
	Tree(ctx context.Context) (*Bookmark, error)
	// Children lists the direct children of a folder in index order.
	Children(ctx context.Context, id string) ([]Bookmark, error)
	// Create inserts a new entry and returns it with its assigned id.
	Create(ctx context.Context, b Bookmark) (Bookmark, error)
	// Update patches the title or url of an entry.
	Update(ctx context.Context, id string, ch Changes) error
	// Move reparents an entry to parentID at the given index.
	Move(ctx context.Context, id, parentID string, index int) error
	// Remove deletes a leaf entry.
	Remove(ctx context.Context, id string) error
	// RemoveTree deletes a folder together with its descendants.
	RemoveTree(ctx context.Context, id string) error
	// SetListener installs the mutation listener. A nil listener
	// detaches the previous one.
	SetListener(l *Listener)
}
