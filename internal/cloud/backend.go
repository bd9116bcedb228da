package cloud

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/starford/othala/internal/apperr"
	"github.com/starford/othala/internal/external"
	"github.com/starford/othala/internal/storage"
)

// Backend mirrors the cloud shelf into the provider's shared document.
// Mutations under the shelf write through immediately; Reconcile merges
// in what other devices uploaded, newer node winning.
type Backend struct {
	external.BaseBackend

	store    *storage.Storage
	provider Provider
	log      *slog.Logger

	mu      sync.Mutex
	enabled bool
	muted   int       // held while a reconcile writes to the store
	remote  time.Time // remote stamp after our last download or upload
}

func NewBackend(store *storage.Storage, provider Provider, enabled bool, log *slog.Logger) *Backend {
	if log == nil {
		log = slog.Default()
	}
	return &Backend{store: store, provider: provider, log: log, enabled: enabled}
}

func (b *Backend) Name() string { return storage.CloudExternalName }

func (b *Backend) Initialize(ctx context.Context) error { return nil }

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

func (b *Backend) isMuted() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.muted > 0
}

func (b *Backend) mute(f func() error) error {
	b.mu.Lock()
	b.muted++
	b.mu.Unlock()
	defer func() {
		b.mu.Lock()
		b.muted--
		b.mu.Unlock()
	}()
	return f()
}

func (b *Backend) setRemote(t time.Time) {
	b.mu.Lock()
	b.remote = t
	b.mu.Unlock()
}

func (b *Backend) remoteStamp() time.Time {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.remote
}

// inCloudTree reports whether the node belongs to the cloud shelf.
func inCloudTree(n *storage.Node) bool {
	if n == nil {
		return false
	}
	return n.External == storage.CloudExternalName || n.UUID == storage.CloudShelfUUID
}

// withCloudDB downloads the shared document, applies f and uploads the
// result. A missing remote document starts empty.
func (b *Backend) withCloudDB(ctx context.Context, f func(doc *Document) error) error {
	var doc *Document
	data, err := b.provider.DownloadDB(ctx)
	switch {
	case errors.Is(err, apperr.ErrNotFound):
		doc = NewDocument()
	case err != nil:
		return err
	default:
		if doc, err = ParseDocument(data); err != nil {
			return err
		}
	}

	if err := f(doc); err != nil {
		return err
	}

	out, err := doc.Bytes()
	if err != nil {
		return err
	}
	if err := b.provider.UploadDB(ctx, out); err != nil {
		return err
	}
	if stamp, err := b.provider.LastModified(ctx); err == nil {
		b.setRemote(stamp)
	}
	return nil
}

// parentUUID resolves the document parent of a node: children of the
// cloud shelf are document roots.
func parentUUID(parent *storage.Node) string {
	if parent == nil || parent.UUID == storage.CloudShelfUUID {
		return ""
	}
	return parent.UUID
}

// addToDoc writes a node into the document and stamps the local node's
// external fields.
func (b *Backend) addToDoc(doc *Document, node, parent *storage.Node) error {
	stored := doc.Add(*node, parentUUID(parent))
	node.External = storage.CloudExternalName
	node.ExternalID = stored.UUID
	_, err := b.store.UpdateNode(node, false)
	return err
}

// addTreeToDoc writes node and its whole subtree into the document.
func (b *Backend) addTreeToDoc(ctx context.Context, doc *Document, node, parent *storage.Node) error {
	if err := b.addToDoc(doc, node, parent); err != nil {
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
		if err := b.addTreeToDoc(ctx, doc, &children[i], node); err != nil {
			return err
		}
	}
	return nil
}

func (b *Backend) CreateBookmarkFolder(ctx context.Context, node, parent *storage.Node) error {
	return b.CreateBookmark(ctx, node, parent)
}

func (b *Backend) CreateBookmark(ctx context.Context, node, parent *storage.Node) error {
	if !b.isEnabled() || b.isMuted() || !inCloudTree(parent) {
		return nil
	}
	return b.withCloudDB(ctx, func(doc *Document) error {
		return b.addToDoc(doc, node, parent)
	})
}

func (b *Backend) RenameBookmark(ctx context.Context, node *storage.Node) error {
	return b.UpdateBookmark(ctx, node)
}

func (b *Backend) UpdateBookmark(ctx context.Context, node *storage.Node) error {
	if !b.isEnabled() || b.isMuted() || !inCloudTree(node) || node.ExternalID == "" {
		return nil
	}
	return b.withCloudDB(ctx, func(doc *Document) error {
		doc.Update(*node)
		return nil
	})
}

func (b *Backend) UpdateBookmarks(ctx context.Context, nodes []storage.Node) error {
	relevant := false
	for i := range nodes {
		if inCloudTree(&nodes[i]) && nodes[i].ExternalID != "" {
			relevant = true
			break
		}
	}
	if !relevant || !b.isEnabled() || b.isMuted() {
		return nil
	}
	return b.withCloudDB(ctx, func(doc *Document) error {
		for i := range nodes {
			if inCloudTree(&nodes[i]) && nodes[i].ExternalID != "" {
				doc.Update(nodes[i])
			}
		}
		return nil
	})
}

func (b *Backend) ReorderBookmarks(ctx context.Context, nodes []storage.Node) error {
	return b.UpdateBookmarks(ctx, nodes)
}

// MoveBookmarks tracks nodes entering, leaving or moving inside the
// cloud shelf. A leaving node takes its document copy and assets with
// it.
func (b *Backend) MoveBookmarks(ctx context.Context, dest *storage.Node, nodes []storage.Node) error {
	if !b.isEnabled() || b.isMuted() {
		return nil
	}
	intoCloud := inCloudTree(dest)
	relevant := intoCloud
	if !relevant {
		for i := range nodes {
			if nodes[i].External == storage.CloudExternalName {
				relevant = true
				break
			}
		}
	}
	if !relevant {
		return nil
	}

	return b.withCloudDB(ctx, func(doc *Document) error {
		for i := range nodes {
			n := &nodes[i]
			fromCloud := n.External == storage.CloudExternalName
			switch {
			case intoCloud && !fromCloud:
				if err := b.addTreeToDoc(ctx, doc, n, dest); err != nil {
					return err
				}
			case !intoCloud && fromCloud:
				removed := doc.Delete([]string{n.ExternalID})
				if err := b.clearExternalTree(n); err != nil {
					return err
				}
				for _, uuid := range removed {
					if err := b.provider.DeleteAssets(ctx, uuid); err != nil {
						b.log.Warn("cloud: delete assets", slog.String("uuid", uuid), slog.String("error", err.Error()))
					}
				}
			case intoCloud && fromCloud && n.ExternalID != "":
				doc.Move(n.ExternalID, parentUUID(dest))
			}
		}
		return nil
	})
}

// clearExternalTree strips the external fields of a node's whole local
// subtree.
func (b *Backend) clearExternalTree(node *storage.Node) error {
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

func (b *Backend) CopyBookmarks(ctx context.Context, dest *storage.Node, nodes []storage.Node) error {
	if !b.isEnabled() || b.isMuted() || !inCloudTree(dest) {
		return nil
	}
	return b.withCloudDB(ctx, func(doc *Document) error {
		for i := range nodes {
			if err := b.addTreeToDoc(ctx, doc, &nodes[i], dest); err != nil {
				return err
			}
		}
		return nil
	})
}

func (b *Backend) DeleteBookmarks(ctx context.Context, nodes []storage.Node) error {
	if !b.isEnabled() || b.isMuted() {
		return nil
	}
	var uuids []string
	for i := range nodes {
		if nodes[i].External == storage.CloudExternalName && nodes[i].ExternalID != "" {
			uuids = append(uuids, nodes[i].ExternalID)
		}
	}
	if len(uuids) == 0 {
		return nil
	}
	return b.withCloudDB(ctx, func(doc *Document) error {
		for _, uuid := range doc.Delete(uuids) {
			if err := b.provider.DeleteAssets(ctx, uuid); err != nil {
				b.log.Warn("cloud: delete assets", slog.String("uuid", uuid), slog.String("error", err.Error()))
			}
		}
		return nil
	})
}

func (b *Backend) StoreBookmarkData(ctx context.Context, node *storage.Node, data []byte, contentType string) error {
	if !b.isEnabled() || b.isMuted() || node.External != storage.CloudExternalName || node.ExternalID == "" {
		return nil
	}
	if err := b.provider.StoreAsset(ctx, node.ExternalID, AssetData, data); err != nil {
		return err
	}
	return b.UpdateBookmark(ctx, node)
}

func (b *Backend) UpdateBookmarkData(ctx context.Context, node *storage.Node, data []byte) error {
	return b.StoreBookmarkData(ctx, node, data, "")
}

func (b *Backend) StoreBookmarkNotes(ctx context.Context, node *storage.Node, notes storage.Notes) error {
	if !b.isEnabled() || b.isMuted() || node.External != storage.CloudExternalName || node.ExternalID == "" {
		return nil
	}
	payload, err := encodeNotes(notes)
	if err != nil {
		return err
	}
	if err := b.provider.StoreAsset(ctx, node.ExternalID, AssetNotes, payload); err != nil {
		return err
	}
	return b.UpdateBookmark(ctx, node)
}

func (b *Backend) StoreBookmarkComments(ctx context.Context, node *storage.Node, comments string) error {
	if !b.isEnabled() || b.isMuted() || node.External != storage.CloudExternalName || node.ExternalID == "" {
		return nil
	}
	if err := b.provider.StoreAsset(ctx, node.ExternalID, AssetComments, []byte(comments)); err != nil {
		return err
	}
	return b.UpdateBookmark(ctx, node)
}

func encodeNotes(notes storage.Notes) ([]byte, error) {
	return json.Marshal(notes)
}

func decodeNotes(data []byte) (storage.Notes, error) {
	var notes storage.Notes
	err := json.Unmarshal(data, &notes)
	return notes, err
}

var _ external.Backend = (*Backend)(nil)
