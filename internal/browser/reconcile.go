package browser

import (
	"context"
	"log/slog"
	"time"

	"github.com/starford/othala/internal/storage"
)

// Reconcile brings the mirrored shelf in line with the full native tree.
// Existing mirrored nodes are patched in place, unknown native entries
// are imported, and mirrored nodes whose native entry is gone are
// removed. With the integration disabled, the mirrored shelf is dropped
// instead.
func (b *Backend) Reconcile(ctx context.Context) error {
	if !b.isEnabled() {
		return b.dropShelf()
	}

	// A profile reload firing mid-pass would replay native events
	// against the snapshot the walk is built on; the listener goes
	// away for the duration of the pass.
	b.native.SetListener(nil)
	defer b.native.SetListener(b.listener())

	start := time.Now()
	return b.muteHooks(func() error {
		shelf, err := b.ensureShelf()
		if err != nil {
			return err
		}

		mirrored, err := b.store.GetExternalNodes(storage.BrowserExternalName)
		if err != nil {
			return err
		}
		pool := make(map[string]storage.Node, len(mirrored))
		for _, n := range mirrored {
			if n.ExternalID != "" {
				pool[n.ExternalID] = n
			}
		}

		tree, err := b.native.Tree(ctx)
		if err != nil {
			return err
		}

		var visited []string
		var created int
		var walk func(parent *storage.Node, children []*Bookmark) error
		walk = func(parent *storage.Node, children []*Bookmark) error {
			for i, bk := range children {
				visited = append(visited, bk.ID)
				entry := *bk
				entry.Index = i

				var node storage.Node
				if existing, ok := pool[bk.ID]; ok {
					patched, err := b.patchMirrored(existing, entry, parent)
					if err != nil {
						return err
					}
					node = patched
				} else {
					imported, err := b.importNative(ctx, entry, parent)
					if err != nil {
						return err
					}
					node = imported
					created++
				}
				if len(bk.Children) > 0 {
					if err := walk(&node, bk.Children); err != nil {
						return err
					}
				}
			}
			return nil
		}
		if err := walk(shelf, tree.Children); err != nil {
			return err
		}

		if err := b.store.DeleteMissingExternalNodes(visited, storage.BrowserExternalName); err != nil {
			return err
		}

		b.log.Info("browser: reconciled",
			slog.Int("native", len(visited)),
			slog.Int("created", created),
			slog.Duration("took", time.Since(start)))
		return nil
	})
}

// patchMirrored realigns one already mirrored node with its native
// entry, writing only when something differs.
func (b *Backend) patchMirrored(node storage.Node, bk Bookmark, parent *storage.Node) (storage.Node, error) {
	dirty := false
	if node.Name != bk.Title {
		node.Name = bk.Title
		dirty = true
	}
	if node.Type == storage.NodeBookmark && node.URI != bk.URL {
		node.URI = bk.URL
		dirty = true
	}
	if node.ParentID != parent.ID {
		node.ParentID = parent.ID
		dirty = true
	}
	if node.Pos != bk.Index {
		node.Pos = bk.Index
		dirty = true
	}
	if !dirty {
		return node, nil
	}
	updated, err := b.store.UpdateNode(&node, false)
	if err != nil {
		return storage.Node{}, err
	}
	return *updated, nil
}

// ensureShelf returns the mirrored shelf node, creating it above the
// regular shelves on first use.
func (b *Backend) ensureShelf() (*storage.Node, error) {
	shelf, err := b.store.GetNodeByUUID(storage.BrowserShelfUUID)
	if err != nil {
		return nil, err
	}
	if shelf != nil {
		return shelf, nil
	}
	created, err := b.store.AddNode(storage.Node{
		UUID:     storage.BrowserShelfUUID,
		Name:     storage.BrowserShelfName,
		Type:     storage.NodeShelf,
		External: storage.BrowserExternalName,
		Pos:      -1,
	}, storage.AddOptions{KeepOrder: true, KeepUUID: true})
	if err != nil {
		return nil, err
	}
	return &created, nil
}

// dropShelf removes the mirrored shelf and everything under it. All of
// it carries the backend's external mark, the shelf included.
func (b *Backend) dropShelf() error {
	return b.store.DeleteExternalNodes(nil, storage.BrowserExternalName)
}
