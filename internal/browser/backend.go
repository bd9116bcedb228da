package browser

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/starford/othala/internal/external"
	"github.com/starford/othala/internal/storage"
)

// Allowlist categories for events caused by this backend's own native
// writes.
const (
	allowAdded   = "added"
	allowChanged = "changed"
	allowMoved   = "moved"
	allowRemoved = "removed"
)

// allowTTL bounds how long an own-write marker stays valid when its
// native event never arrives.
const allowTTL = 10 * time.Second

// Backend mirrors the browser_bookmarks shelf into the native bookmark
// tree and imports native edits back into the node store.
//
// Two reentrant semaphores keep the mirroring from feeding on itself:
// the UI semaphore is held while the backend writes to the native tree,
// so its own listener callbacks are ignored, and the listener semaphore
// is held while listener callbacks or a reconciliation pass write to the
// node store, so hub hooks triggered by those writes are ignored.
type Backend struct {
	external.BaseBackend

	store  *storage.Storage
	native NativeStore
	log    *slog.Logger

	icons *iconFetcher

	mu          sync.Mutex
	enabled     bool
	uiCount     int
	listenCount int
	allow       map[string]map[string]time.Time
}

// NewBackend wires a backend over the given native store. It stays
// passive until a listener is installed by Initialize.
func NewBackend(store *storage.Storage, native NativeStore, enabled bool, log *slog.Logger) *Backend {
	if log == nil {
		log = slog.Default()
	}
	return &Backend{
		store:   store,
		native:  native,
		log:     log,
		icons:   newIconFetcher(store, log),
		enabled: enabled,
		allow:   make(map[string]map[string]time.Time),
	}
}

func (b *Backend) Name() string { return storage.BrowserExternalName }

// Initialize installs the native listeners.
func (b *Backend) Initialize(ctx context.Context) error {
	b.native.SetListener(b.listener())
	return nil
}

func (b *Backend) listener() *Listener {
	return &Listener{
		Created: b.onCreated,
		Removed: b.onRemoved,
		Changed: b.onChanged,
		Moved:   b.onMoved,
	}
}

// SetEnabled flips the integration flag. The mirrored shelf is only
// touched by the next Reconcile call.
func (b *Backend) SetEnabled(enabled bool) {
	b.mu.Lock()
	b.enabled = enabled
	b.mu.Unlock()
}

func (b *Backend) isEnabled() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.enabled
}

// muteUI runs f while the backend's own native writes are in flight.
func (b *Backend) muteUI(f func() error) error {
	b.mu.Lock()
	b.uiCount++
	b.mu.Unlock()
	defer func() {
		b.mu.Lock()
		b.uiCount--
		b.mu.Unlock()
	}()
	return f()
}

func (b *Backend) isUILocked() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.uiCount > 0
}

// muteHooks runs f while listener or reconciliation writes are in
// flight.
func (b *Backend) muteHooks(f func() error) error {
	b.mu.Lock()
	b.listenCount++
	b.mu.Unlock()
	defer func() {
		b.mu.Lock()
		b.listenCount--
		b.mu.Unlock()
	}()
	return f()
}

func (b *Backend) isLockedByListeners() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.listenCount > 0
}

// markOwn allowlists a native id for one upcoming event of the given
// category. Stale markers expire after allowTTL.
func (b *Backend) markOwn(category string, ids ...string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	set := b.allow[category]
	if set == nil {
		set = make(map[string]time.Time)
		b.allow[category] = set
	}
	deadline := time.Now().Add(allowTTL)
	for _, id := range ids {
		set[id] = deadline
	}
}

// consumeOwn reports whether the event was caused by this backend's own
// write, removing the marker on a hit.
func (b *Backend) consumeOwn(category, id string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	set := b.allow[category]
	deadline, ok := set[id]
	if !ok {
		return false
	}
	delete(set, id)
	return time.Now().Before(deadline)
}

// inBrowserTree reports whether the node belongs to the mirrored shelf.
func inBrowserTree(n *storage.Node) bool {
	if n == nil {
		return false
	}
	return n.External == storage.BrowserExternalName || n.UUID == storage.BrowserShelfUUID
}

// nativeParentID resolves the native folder a child of n lands in.
func nativeParentID(n *storage.Node) string {
	if n.UUID == storage.BrowserShelfUUID {
		return RootID
	}
	return n.ExternalID
}

func nativeType(t storage.NodeType) string {
	switch t {
	case storage.NodeFolder, storage.NodeShelf:
		return NativeFolder
	case storage.NodeSeparator:
		return NativeSeparator
	default:
		return NativeBookmark
	}
}

// createNative mirrors a single node into the native tree and stamps the
// node's external fields.
func (b *Backend) createNative(ctx context.Context, node, parent *storage.Node) error {
	created, err := b.native.Create(ctx, Bookmark{
		ParentID:  nativeParentID(parent),
		Title:     node.Name,
		URL:       node.URI,
		Type:      nativeType(node.Type),
		Index:     -1,
		DateAdded: node.DateAdded,
	})
	if err != nil {
		return err
	}
	b.markOwn(allowAdded, created.ID)

	node.External = storage.BrowserExternalName
	node.ExternalID = created.ID
	_, err = b.store.UpdateNode(node, false)
	return err
}

// createNativeTree mirrors node and its whole subtree under parent.
func (b *Backend) createNativeTree(ctx context.Context, node, parent *storage.Node) error {
	if err := b.createNative(ctx, node, parent); err != nil {
		return err
	}
	if !node.IsContainer() {
		return nil
	}
	children, err := b.store.GetChildNodes(node.ID)
	if err != nil {
		return err
	}
	for i := range children {
		if err := b.createNativeTree(ctx, &children[i], node); err != nil {
			return err
		}
	}
	return nil
}

// removeNativeTree deletes the native mirror of node and clears the
// external fields of its whole subtree.
func (b *Backend) removeNativeTree(ctx context.Context, node *storage.Node) error {
	if node.ExternalID != "" {
		b.markOwn(allowRemoved, node.ExternalID)
		var err error
		if node.IsContainer() {
			err = b.native.RemoveTree(ctx, node.ExternalID)
		} else {
			err = b.native.Remove(ctx, node.ExternalID)
		}
		if err != nil {
			return err
		}
	}

	subtree, err := b.store.QueryFullSubtree([]int64{node.ID}, storage.SubtreeOptions{})
	if err != nil {
		return err
	}
	for i := range subtree {
		subtree[i].External = ""
		subtree[i].ExternalID = ""
	}
	return b.store.UpdateNodes(subtree)
}

func (b *Backend) CreateBookmarkFolder(ctx context.Context, node, parent *storage.Node) error {
	return b.CreateBookmark(ctx, node, parent)
}

func (b *Backend) CreateBookmark(ctx context.Context, node, parent *storage.Node) error {
	if !b.isEnabled() || b.isLockedByListeners() || !inBrowserTree(parent) {
		return nil
	}
	return b.muteUI(func() error {
		return b.createNative(ctx, node, parent)
	})
}

func (b *Backend) RenameBookmark(ctx context.Context, node *storage.Node) error {
	if !b.isEnabled() || b.isLockedByListeners() || !inBrowserTree(node) || node.ExternalID == "" {
		return nil
	}
	return b.muteUI(func() error {
		b.markOwn(allowChanged, node.ExternalID)
		return b.native.Update(ctx, node.ExternalID, Changes{Title: &node.Name})
	})
}

func (b *Backend) UpdateBookmark(ctx context.Context, node *storage.Node) error {
	if !b.isEnabled() || b.isLockedByListeners() || !inBrowserTree(node) || node.ExternalID == "" {
		return nil
	}
	return b.muteUI(func() error {
		b.markOwn(allowChanged, node.ExternalID)
		return b.native.Update(ctx, node.ExternalID, Changes{Title: &node.Name, URL: &node.URI})
	})
}

func (b *Backend) UpdateBookmarks(ctx context.Context, nodes []storage.Node) error {
	for i := range nodes {
		if err := b.UpdateBookmark(ctx, &nodes[i]); err != nil {
			return err
		}
	}
	return nil
}

// MoveBookmarks keeps the native tree in step with a reparenting:
// a node entering the mirrored shelf is created natively, a node leaving
// it is removed natively, and a node staying inside is moved natively.
func (b *Backend) MoveBookmarks(ctx context.Context, dest *storage.Node, nodes []storage.Node) error {
	if !b.isEnabled() || b.isLockedByListeners() {
		return nil
	}
	intoBrowser := inBrowserTree(dest)
	return b.muteUI(func() error {
		for i := range nodes {
			n := &nodes[i]
			fromBrowser := n.External == storage.BrowserExternalName
			switch {
			case intoBrowser && !fromBrowser:
				if err := b.createNativeTree(ctx, n, dest); err != nil {
					return err
				}
			case !intoBrowser && fromBrowser:
				if err := b.removeNativeTree(ctx, n); err != nil {
					return err
				}
			case intoBrowser && fromBrowser && n.ExternalID != "":
				b.markOwn(allowMoved, n.ExternalID)
				if err := b.native.Move(ctx, n.ExternalID, nativeParentID(dest), -1); err != nil {
					return err
				}
			}
		}
		return nil
	})
}

func (b *Backend) CopyBookmarks(ctx context.Context, dest *storage.Node, nodes []storage.Node) error {
	if !b.isEnabled() || b.isLockedByListeners() || !inBrowserTree(dest) {
		return nil
	}
	return b.muteUI(func() error {
		for i := range nodes {
			if err := b.createNativeTree(ctx, &nodes[i], dest); err != nil {
				return err
			}
		}
		return nil
	})
}

func (b *Backend) DeleteBookmarks(ctx context.Context, nodes []storage.Node) error {
	if !b.isEnabled() || b.isLockedByListeners() {
		return nil
	}
	return b.muteUI(func() error {
		// Children arrive in the same batch as their ancestors; removing
		// the topmost native entries takes the rest with them.
		doomed := make(map[int64]struct{}, len(nodes))
		for i := range nodes {
			doomed[nodes[i].ID] = struct{}{}
		}
		for i := range nodes {
			n := &nodes[i]
			if n.External != storage.BrowserExternalName || n.ExternalID == "" {
				continue
			}
			if _, ok := doomed[n.ParentID]; ok {
				continue
			}
			b.markOwn(allowRemoved, n.ExternalID)
			var err error
			if n.IsContainer() {
				err = b.native.RemoveTree(ctx, n.ExternalID)
			} else {
				err = b.native.Remove(ctx, n.ExternalID)
			}
			if err != nil {
				return err
			}
		}
		return nil
	})
}

func (b *Backend) ReorderBookmarks(ctx context.Context, nodes []storage.Node) error {
	if !b.isEnabled() || b.isLockedByListeners() {
		return nil
	}
	return b.muteUI(func() error {
		index := 0
		for i := range nodes {
			n := &nodes[i]
			if n.External != storage.BrowserExternalName || n.ExternalID == "" {
				continue
			}
			parent, err := b.store.GetNode(n.ParentID)
			if err != nil {
				return err
			}
			if parent == nil {
				continue
			}
			b.markOwn(allowMoved, n.ExternalID)
			if err := b.native.Move(ctx, n.ExternalID, nativeParentID(parent), index); err != nil {
				return err
			}
			index++
		}
		return nil
	})
}

// Listener callbacks. Each one imports a native edit into the node
// store unless the integration is off, the backend itself caused the
// event, or the event was allowlisted as an own write.

func (b *Backend) onCreated(bk Bookmark) {
	if !b.isEnabled() || b.isUILocked() || b.consumeOwn(allowAdded, bk.ID) {
		return
	}
	err := b.muteHooks(func() error {
		parent, err := b.parentNode(bk.ParentID)
		if err != nil || parent == nil {
			return err
		}
		_, err = b.importNative(context.Background(), bk, parent)
		return err
	})
	if err != nil {
		b.log.Error("browser: import created bookmark", slog.String("id", bk.ID), slog.String("error", err.Error()))
	}
}

func (b *Backend) onRemoved(bk Bookmark) {
	if !b.isEnabled() || b.isUILocked() || b.consumeOwn(allowRemoved, bk.ID) {
		return
	}
	err := b.muteHooks(func() error {
		node, err := b.store.GetExternalNode(bk.ID, storage.BrowserExternalName)
		if err != nil || node == nil {
			return err
		}
		ids, err := b.store.QueryFullSubtreeIDs([]int64{node.ID})
		if err != nil {
			return err
		}
		return b.store.DeleteNodesLowLevel(ids)
	})
	if err != nil {
		b.log.Error("browser: import removed bookmark", slog.String("id", bk.ID), slog.String("error", err.Error()))
	}
}

func (b *Backend) onChanged(bk Bookmark) {
	if !b.isEnabled() || b.isUILocked() || b.consumeOwn(allowChanged, bk.ID) {
		return
	}
	err := b.muteHooks(func() error {
		node, err := b.store.GetExternalNode(bk.ID, storage.BrowserExternalName)
		if err != nil || node == nil {
			return err
		}
		node.Name = bk.Title
		if node.Type != storage.NodeFolder {
			node.URI = bk.URL
		}
		_, err = b.store.UpdateNode(node, true)
		return err
	})
	if err != nil {
		b.log.Error("browser: import changed bookmark", slog.String("id", bk.ID), slog.String("error", err.Error()))
	}
}

func (b *Backend) onMoved(bk Bookmark, oldParentID string, oldIndex int) {
	if !b.isEnabled() || b.isUILocked() || b.consumeOwn(allowMoved, bk.ID) {
		return
	}
	err := b.muteHooks(func() error {
		node, err := b.store.GetExternalNode(bk.ID, storage.BrowserExternalName)
		if err != nil || node == nil {
			return err
		}
		parent, err := b.parentNode(bk.ParentID)
		if err != nil || parent == nil {
			return err
		}
		node.ParentID = parent.ID
		node.Pos = bk.Index
		if _, err := b.store.UpdateNode(node, false); err != nil {
			return err
		}
		return b.resequenceSiblings(context.Background(), bk.ParentID)
	})
	if err != nil {
		b.log.Error("browser: import moved bookmark", slog.String("id", bk.ID), slog.String("error", err.Error()))
	}
}

// parentNode maps a native folder id to its node. The native root maps
// to the browser shelf.
func (b *Backend) parentNode(nativeID string) (*storage.Node, error) {
	if nativeID == RootID || nativeID == "" {
		return b.store.GetNodeByUUID(storage.BrowserShelfUUID)
	}
	return b.store.GetExternalNode(nativeID, storage.BrowserExternalName)
}

// importNative stores one native entry under parent.
func (b *Backend) importNative(ctx context.Context, bk Bookmark, parent *storage.Node) (storage.Node, error) {
	node := storage.Node{
		ParentID:   parent.ID,
		Pos:        bk.Index,
		Name:       bk.Title,
		External:   storage.BrowserExternalName,
		ExternalID: bk.ID,
	}
	switch bk.Type {
	case NativeFolder:
		node.Type = storage.NodeFolder
	case NativeSeparator:
		node.Type = storage.NodeSeparator
	default:
		node.Type = storage.NodeBookmark
		node.URI = bk.URL
	}
	if !bk.DateAdded.IsZero() {
		node.DateAdded = bk.DateAdded
		node.DateModified = bk.DateAdded
	}
	stored, err := b.store.AddNode(node, storage.AddOptions{KeepOrder: true, KeepDates: !bk.DateAdded.IsZero()})
	if err != nil {
		return stored, err
	}
	if stored.Type == storage.NodeBookmark && stored.URI != "" {
		b.icons.Enqueue(stored.ID, stored.URI)
	}
	return stored, nil
}

// resequenceSiblings realigns sibling positions with the native index
// order after a native move.
func (b *Backend) resequenceSiblings(ctx context.Context, nativeFolderID string) error {
	siblings, err := b.native.Children(ctx, nativeFolderID)
	if err != nil {
		return err
	}
	var updates []storage.Node
	for i, s := range siblings {
		node, err := b.store.GetExternalNode(s.ID, storage.BrowserExternalName)
		if err != nil {
			return err
		}
		if node == nil {
			continue
		}
		node.Pos = i
		updates = append(updates, *node)
	}
	return b.store.UpdateNodes(updates)
}

var _ external.Backend = (*Backend)(nil)
