package bookmarks

import (
	"context"
	"fmt"

	"github.com/starford/othala/internal/apperr"
	"github.com/starford/othala/internal/storage"
	"github.com/starford/othala/internal/text"
)

// AddBookmark creates a bookmark or archive node under the given parent.
// The node inherits the parent's external affiliation, gets a unique
// sibling name and has its tags split and registered.
func (m *Manager) AddBookmark(ctx context.Context, n storage.Node) (*storage.Node, error) {
	if n.ParentID == 0 {
		return nil, apperr.ErrNoParent
	}
	parent, err := m.store.GetNode(n.ParentID)
	if err != nil {
		return nil, err
	}
	if parent == nil {
		return nil, fmt.Errorf("bookmarks: add bookmark: parent %d: %w", n.ParentID, apperr.ErrNotFound)
	}

	if n.Type == 0 {
		n.Type = storage.NodeBookmark
	}
	n.External = parent.External
	n.ExternalID = ""

	n.Name, err = m.EnsureUniqueName(n.ParentID, n.Name, "")
	if err != nil {
		return nil, err
	}

	n.TagList = storage.SplitTags(n.Tags)
	if err := m.store.AddTags(n.TagList); err != nil {
		return nil, err
	}

	created, err := m.store.AddNode(n, storage.AddOptions{})
	if err != nil {
		return nil, err
	}

	m.mirror("createBookmark", func() {
		m.hub.CreateBookmark(ctx, &created, parent)
	})
	return &created, nil
}

// AddSeparator creates a separator node under the given parent.
func (m *Manager) AddSeparator(ctx context.Context, parentID int64) (*storage.Node, error) {
	if parentID == 0 {
		return nil, apperr.ErrNoParent
	}
	parent, err := m.store.GetNode(parentID)
	if err != nil {
		return nil, err
	}
	if parent == nil {
		return nil, fmt.Errorf("bookmarks: add separator: parent %d: %w", parentID, apperr.ErrNotFound)
	}

	created, err := m.store.AddNode(storage.Node{
		ParentID: parent.ID,
		External: parent.External,
		Type:     storage.NodeSeparator,
	}, storage.AddOptions{})
	if err != nil {
		return nil, err
	}
	return &created, nil
}

// AddNotesNode creates an empty notes node under the given parent.
func (m *Manager) AddNotesNode(ctx context.Context, parentID int64, name string) (*storage.Node, error) {
	if parentID == 0 {
		return nil, apperr.ErrNoParent
	}
	parent, err := m.store.GetNode(parentID)
	if err != nil {
		return nil, err
	}
	if parent == nil {
		return nil, fmt.Errorf("bookmarks: add notes: parent %d: %w", parentID, apperr.ErrNotFound)
	}

	uniqueName, err := m.EnsureUniqueName(parentID, name, "")
	if err != nil {
		return nil, err
	}
	created, err := m.store.AddNode(storage.Node{
		ParentID: parent.ID,
		External: parent.External,
		Name:     uniqueName,
		Type:     storage.NodeNotes,
	}, storage.AddOptions{})
	if err != nil {
		return nil, err
	}
	return &created, nil
}

// Update persists the node's editable fields, re-resolving name
// uniqueness against its current siblings and re-registering its tags.
// The hub is notified with the stored result.
func (m *Manager) Update(ctx context.Context, n storage.Node) (*storage.Node, error) {
	current, err := m.store.GetNode(n.ID)
	if err != nil {
		return nil, err
	}
	if current == nil {
		return nil, fmt.Errorf("bookmarks: update: node %d: %w", n.ID, apperr.ErrNotFound)
	}

	n.Name, err = m.EnsureUniqueName(current.ParentID, n.Name, current.Name)
	if err != nil {
		return nil, err
	}

	n.TagList = storage.SplitTags(n.Tags)
	if err := m.store.AddTags(n.TagList); err != nil {
		return nil, err
	}

	updated, err := m.store.UpdateNode(&n, true)
	if err != nil {
		return nil, err
	}

	m.mirror("updateBookmark", func() {
		m.hub.UpdateBookmark(ctx, updated)
		if updated.Name != current.Name {
			m.hub.RenameBookmark(ctx, updated)
		}
	})
	return updated, nil
}

// Reorder assigns consecutive positions to the given sibling nodes in
// the order supplied. The hub mirrors the new order before the store is
// updated so a backend can read the previous arrangement.
func (m *Manager) Reorder(ctx context.Context, nodes []storage.Node) error {
	for i := range nodes {
		nodes[i].Pos = i + 1
	}

	m.mirror("reorderBookmarks", func() {
		m.hub.ReorderBookmarks(ctx, nodes)
	})

	return m.store.UpdateNodes(nodes)
}

// Move reparents the given nodes under dest. Moving a container into its
// own subtree fails with ErrCircularReference. Moved nodes are renamed
// to stay unique among the new siblings and, unless order is kept, are
// placed at the end of the destination.
func (m *Manager) Move(ctx context.Context, ids []int64, destID int64, keepOrder bool) ([]storage.Node, error) {
	dest, err := m.store.GetNode(destID)
	if err != nil {
		return nil, err
	}
	if dest == nil {
		return nil, fmt.Errorf("bookmarks: move: destination %d: %w", destID, apperr.ErrNotFound)
	}

	ancestors, err := m.store.ComputePath(destID)
	if err != nil {
		return nil, err
	}
	ancestorIDs := make(map[int64]struct{}, len(ancestors))
	for _, a := range ancestors {
		ancestorIDs[a.ID] = struct{}{}
	}

	nodes, err := m.store.GetNodes(ids)
	if err != nil {
		return nil, err
	}
	for _, n := range nodes {
		if _, ok := ancestorIDs[n.ID]; ok {
			return nil, fmt.Errorf("bookmarks: move node %d into its own subtree: %w", n.ID, apperr.ErrCircularReference)
		}
	}

	moved := make([]storage.Node, 0, len(nodes))
	for _, n := range nodes {
		if n.ParentID == destID {
			moved = append(moved, n)
			continue
		}
		n.ParentID = destID
		n.Name, err = m.EnsureUniqueName(destID, n.Name, "")
		if err != nil {
			return nil, err
		}
		if !keepOrder {
			n.Pos = storage.DefaultPosition
		}
		updated, err := m.store.UpdateNode(&n, false)
		if err != nil {
			return nil, err
		}
		moved = append(moved, *updated)
	}

	// fan out after the reparent is committed: backends clearing or
	// stamping external fields write the nodes themselves, and a write
	// from a stale pre-move copy here would undo that
	m.mirror("moveBookmarks", func() {
		m.hub.MoveBookmarks(ctx, dest, moved)
	})

	m.invalidateCompletionFor(moved...)
	return moved, nil
}

// Copy clones the full subtrees of the given nodes under dest. Copies
// get fresh uuids, inherit the destination's external affiliation and
// carry over icons, archived payloads, notes and comments together with
// their word index rows. The hub receives the root copies only.
func (m *Manager) Copy(ctx context.Context, ids []int64, destID int64) ([]storage.Node, error) {
	dest, err := m.store.GetNode(destID)
	if err != nil {
		return nil, err
	}
	if dest == nil {
		return nil, fmt.Errorf("bookmarks: copy: destination %d: %w", destID, apperr.ErrNotFound)
	}

	subtree, err := m.store.QueryFullSubtree(ids, storage.SubtreeOptions{Preorder: true})
	if err != nil {
		return nil, err
	}

	rootIDs := make(map[int64]struct{}, len(ids))
	for _, id := range ids {
		rootIDs[id] = struct{}{}
	}

	// source id of each clone, resolved parent ids as clones land
	newParents := make(map[int64]int64, len(subtree))
	copies := make([]storage.Node, 0, len(ids))

	for _, source := range subtree {
		n := source
		sourceID := n.ID
		n.ID = 0
		n.UUID = ""
		_, isRoot := rootIDs[sourceID]
		if isRoot {
			n.ParentID = destID
			n.Name, err = m.EnsureUniqueName(destID, n.Name, "")
			if err != nil {
				return nil, err
			}
		} else {
			parentID, ok := newParents[n.ParentID]
			if !ok {
				return nil, fmt.Errorf("bookmarks: copy: orphan node %d", sourceID)
			}
			n.ParentID = parentID
		}
		n.External = dest.External
		n.ExternalID = ""

		created, err := m.store.AddNode(n, storage.AddOptions{KeepOrder: !isRoot, KeepDates: true})
		if err != nil {
			return nil, err
		}
		newParents[sourceID] = created.ID

		if err := m.copyContent(sourceID, created.ID); err != nil {
			return nil, err
		}
		if isRoot {
			copies = append(copies, created)
		}
	}

	m.mirror("copyBookmarks", func() {
		m.hub.CopyBookmarks(ctx, dest, copies)
	})
	m.invalidateCompletionFor(copies...)
	return copies, nil
}

// copyContent carries the side tables of a source node over to its clone.
func (m *Manager) copyContent(sourceID, destID int64) error {
	icon, err := m.store.FetchIcon(sourceID)
	if err != nil {
		return err
	}
	if icon != "" {
		if err := m.store.StoreIcon(destID, icon); err != nil {
			return err
		}
	}

	blob, err := m.store.FetchBlob(sourceID)
	if err != nil {
		return err
	}
	if blob != nil {
		if err := m.store.StoreBlob(destID, blob.Data, blob.Type, blob.ByteLength); err != nil {
			return err
		}
	}

	notes, err := m.store.FetchNotes(sourceID)
	if err != nil {
		return err
	}
	if notes != nil {
		notes.NodeID = destID
		if err := m.store.StoreNotes(*notes); err != nil {
			return err
		}
	}

	comments, err := m.store.FetchComments(sourceID)
	if err != nil {
		return err
	}
	if comments != "" {
		if err := m.store.StoreComments(destID, comments); err != nil {
			return err
		}
	}

	for _, kind := range []storage.IndexKind{storage.IndexContent, storage.IndexNotes, storage.IndexComments} {
		words, err := m.store.FetchIndex(sourceID, kind)
		if err != nil {
			return err
		}
		if len(words) > 0 {
			if err := m.store.StoreIndex(destID, kind, words); err != nil {
				return err
			}
		}
	}
	return nil
}

// Delete removes the given nodes together with their full subtrees and
// every associated payload. The hub sees the expanded subtree before the
// rows go away.
func (m *Manager) Delete(ctx context.Context, ids []int64) error {
	subtree, err := m.store.QueryFullSubtree(ids, storage.SubtreeOptions{})
	if err != nil {
		return err
	}
	if len(subtree) == 0 {
		return nil
	}

	m.mirror("deleteBookmarks", func() {
		m.hub.DeleteBookmarks(ctx, subtree)
	})
	m.invalidateCompletionFor(subtree...)

	all := make([]int64, len(subtree))
	for i, n := range subtree {
		all[i] = n.ID
	}
	return m.store.DeleteNodesLowLevel(all)
}

// DeleteChildren empties a container without removing the container
// itself.
func (m *Manager) DeleteChildren(ctx context.Context, id int64) error {
	children, err := m.store.GetChildNodes(id)
	if err != nil {
		return err
	}
	ids := make([]int64, len(children))
	for i, c := range children {
		ids[i] = c.ID
	}
	return m.Delete(ctx, ids)
}

// StoreArchive attaches an archived payload to the node, indexes its
// words and fans the payload out to the hub. Textual payloads are
// indexed from their markup-stripped form.
func (m *Manager) StoreArchive(ctx context.Context, nodeID int64, data []byte, contentType string, byteLength int64) error {
	node, err := m.store.GetNode(nodeID)
	if err != nil {
		return err
	}
	if node == nil {
		return fmt.Errorf("bookmarks: store archive: node %d: %w", nodeID, apperr.ErrNotFound)
	}

	if err := m.store.StoreBlob(nodeID, data, contentType, byteLength); err != nil {
		return err
	}

	if byteLength == 0 {
		words := text.ExtractWordsFromHTML(string(data))
		if err := m.store.UpdateIndex(nodeID, words); err != nil {
			return err
		}
	}

	m.mirror("storeBookmarkData", func() {
		m.hub.StoreBookmarkData(ctx, node, data, contentType)
	})
	return nil
}

// UpdateArchive rewrites an already stored payload in place.
func (m *Manager) UpdateArchive(ctx context.Context, nodeID int64, data []byte) error {
	node, err := m.store.GetNode(nodeID)
	if err != nil {
		return err
	}
	if node == nil {
		return fmt.Errorf("bookmarks: update archive: node %d: %w", nodeID, apperr.ErrNotFound)
	}

	if err := m.store.UpdateBlob(nodeID, data); err != nil {
		return err
	}
	words := text.ExtractWordsFromHTML(string(data))
	if err := m.store.UpdateIndex(nodeID, words); err != nil {
		return err
	}

	m.mirror("updateBookmarkData", func() {
		m.hub.UpdateBookmarkData(ctx, node, data)
	})
	return nil
}

// StoreNotes saves a node's notes, refreshes the notes word index and
// notifies the hub.
func (m *Manager) StoreNotes(ctx context.Context, notes storage.Notes) error {
	node, err := m.store.GetNode(notes.NodeID)
	if err != nil {
		return err
	}
	if node == nil {
		return fmt.Errorf("bookmarks: store notes: node %d: %w", notes.NodeID, apperr.ErrNotFound)
	}

	if err := m.store.StoreNotes(notes); err != nil {
		return err
	}

	source := notes.Content
	if notes.Format == "delta" {
		source = notes.HTML
	}
	if err := m.store.UpdateNoteIndex(notes.NodeID, text.ExtractWordsFromHTML(source)); err != nil {
		return err
	}

	m.mirror("storeBookmarkNotes", func() {
		m.hub.StoreBookmarkNotes(ctx, node, notes)
	})
	return nil
}

// StoreComments saves a node's comments, refreshes the comment word
// index and notifies the hub.
func (m *Manager) StoreComments(ctx context.Context, nodeID int64, comments string) error {
	node, err := m.store.GetNode(nodeID)
	if err != nil {
		return err
	}
	if node == nil {
		return fmt.Errorf("bookmarks: store comments: node %d: %w", nodeID, apperr.ErrNotFound)
	}

	if err := m.store.StoreComments(nodeID, comments); err != nil {
		return err
	}
	if err := m.store.UpdateCommentIndex(nodeID, text.ExtractWords(comments)); err != nil {
		return err
	}

	m.mirror("storeBookmarkComments", func() {
		m.hub.StoreBookmarkComments(ctx, node, comments)
	})
	return nil
}

// SetTodoState stamps the given nodes with a new todo state.
func (m *Manager) SetTodoState(ctx context.Context, ids []int64, state storage.TodoState) error {
	nodes, err := m.store.GetNodes(ids)
	if err != nil {
		return err
	}
	for i := range nodes {
		nodes[i].TodoState = state
	}
	if err := m.store.UpdateNodes(nodes); err != nil {
		return err
	}
	m.mirror("updateBookmarks", func() {
		m.hub.UpdateBookmarks(ctx, nodes)
	})
	return nil
}
