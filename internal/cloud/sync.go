package cloud

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/starford/othala/internal/apperr"
	"github.com/starford/othala/internal/storage"
	"github.com/starford/othala/internal/text"
)

// Reconcile merges the remote document into the cloud shelf. Per node
// the newer side wins: a newer remote copy patches the local node, a
// newer local node is pushed back into the document. Local mirrored
// nodes absent from the document are removed. When the remote stamp has
// not moved since the last exchange the pass is skipped outright.
func (b *Backend) Reconcile(ctx context.Context) error {
	if !b.isEnabled() {
		return b.dropShelf()
	}

	stamp, err := b.provider.LastModified(ctx)
	switch {
	case errors.Is(err, apperr.ErrNotFound):
		// nothing was ever uploaded; local mutations write through on
		// their own
		return nil
	case err != nil:
		return err
	}
	if last := b.remoteStamp(); !last.IsZero() && !stamp.After(last) {
		b.log.Debug("cloud: shared document unchanged, skipping sync")
		return nil
	}

	data, err := b.provider.DownloadDB(ctx)
	if err != nil {
		return err
	}
	doc, err := ParseDocument(data)
	if err != nil {
		return err
	}

	start := time.Now()
	return b.mute(func() error {
		shelf, err := b.ensureShelf()
		if err != nil {
			return err
		}

		mirrored, err := b.store.GetExternalNodes(storage.CloudExternalName)
		if err != nil {
			return err
		}
		pool := make(map[string]storage.Node, len(mirrored))
		for _, n := range mirrored {
			if n.ExternalID != "" {
				pool[n.ExternalID] = n
			}
		}

		// doc ids → uuids, for parent resolution during the walk
		docUUID := make(map[int64]string)
		for _, n := range doc.Nodes() {
			docUUID[n.ID] = n.UUID
		}

		var visited []string
		var pushed bool
		localByUUID := make(map[string]storage.Node)

		for _, remote := range doc.Nodes() {
			visited = append(visited, remote.UUID)

			parent := *shelf
			if parentUUID, ok := docUUID[remote.ParentID]; ok {
				if p, ok := localByUUID[parentUUID]; ok {
					parent = p
				}
			}

			local, exists := pool[remote.UUID]
			switch {
			case !exists:
				created, err := b.importDocNode(ctx, remote, &parent)
				if err != nil {
					return err
				}
				localByUUID[remote.UUID] = created

			case remote.DateModified.After(local.DateModified):
				patched, err := b.patchLocal(ctx, local, remote, &parent)
				if err != nil {
					return err
				}
				localByUUID[remote.UUID] = patched

			case local.DateModified.After(remote.DateModified):
				doc.Update(local)
				pushed = true
				localByUUID[remote.UUID] = local

			default:
				localByUUID[remote.UUID] = local
			}
		}

		if err := b.store.DeleteMissingExternalNodes(visited, storage.CloudExternalName); err != nil {
			return err
		}

		if pushed {
			out, err := doc.Bytes()
			if err != nil {
				return err
			}
			if err := b.provider.UploadDB(ctx, out); err != nil {
				return err
			}
			if s, err := b.provider.LastModified(ctx); err == nil {
				stamp = s
			}
		}
		b.setRemote(stamp)

		b.log.Info("cloud: reconciled",
			slog.Int("remote", len(visited)),
			slog.Bool("pushed", pushed),
			slog.Duration("took", time.Since(start)))
		return nil
	})
}

// importDocNode stores a remote node locally, pulling its assets along.
func (b *Backend) importDocNode(ctx context.Context, remote storage.Node, parent *storage.Node) (storage.Node, error) {
	n := remote
	n.ID = 0
	n.ParentID = parent.ID
	n.External = storage.CloudExternalName
	n.ExternalID = remote.UUID
	created, err := b.store.AddNode(n, storage.AddOptions{
		KeepOrder: true,
		KeepUUID:  true,
		KeepDates: true,
	})
	if err != nil {
		return storage.Node{}, err
	}
	b.pullAssets(ctx, &created)
	return created, nil
}

// patchLocal overwrites a local node with its newer remote copy.
func (b *Backend) patchLocal(ctx context.Context, local, remote storage.Node, parent *storage.Node) (storage.Node, error) {
	n := remote
	n.ID = local.ID
	n.ParentID = parent.ID
	n.External = storage.CloudExternalName
	n.ExternalID = remote.UUID
	updated, err := b.store.UpdateNode(&n, false)
	if err != nil {
		return storage.Node{}, err
	}
	b.pullAssets(ctx, updated)
	return *updated, nil
}

// pullAssets fetches the remote payloads of a node into the local side
// tables. A missing or failing asset is logged and skipped.
func (b *Backend) pullAssets(ctx context.Context, node *storage.Node) {
	warn := func(kind string, err error) {
		if errors.Is(err, apperr.ErrNotFound) {
			return
		}
		b.log.Warn("cloud: pull asset",
			slog.String("uuid", node.UUID), slog.String("kind", kind), slog.String("error", err.Error()))
	}

	if node.Type == storage.NodeArchive {
		data, err := b.provider.FetchAsset(ctx, node.ExternalID, AssetData)
		if err != nil {
			warn(AssetData, err)
		} else {
			var byteLength int64
			if !text.IsTextContent(node.ContentType) {
				byteLength = int64(len(data))
			}
			if err := b.store.StoreBlob(node.ID, data, node.ContentType, byteLength); err != nil {
				warn(AssetData, err)
			} else if byteLength == 0 {
				if err := b.store.UpdateIndex(node.ID, text.ExtractWordsFromHTML(string(data))); err != nil {
					warn(AssetData, err)
				}
			}
		}
	}

	if node.HasNotes {
		data, err := b.provider.FetchAsset(ctx, node.ExternalID, AssetNotes)
		if err != nil {
			warn(AssetNotes, err)
		} else if notes, err := decodeNotes(data); err != nil {
			warn(AssetNotes, err)
		} else {
			notes.NodeID = node.ID
			if err := b.store.StoreNotes(notes); err != nil {
				warn(AssetNotes, err)
			}
		}
	}

	if node.HasComments {
		data, err := b.provider.FetchAsset(ctx, node.ExternalID, AssetComments)
		if err != nil {
			warn(AssetComments, err)
		} else if err := b.store.StoreComments(node.ID, string(data)); err != nil {
			warn(AssetComments, err)
		}
	}
}

// ensureShelf returns the cloud shelf node, creating it above the
// regular shelves on first use.
func (b *Backend) ensureShelf() (*storage.Node, error) {
	shelf, err := b.store.GetNodeByUUID(storage.CloudShelfUUID)
	if err != nil {
		return nil, err
	}
	if shelf != nil {
		return shelf, nil
	}
	created, err := b.store.AddNode(storage.Node{
		UUID:     storage.CloudShelfUUID,
		Name:     storage.CloudShelfName,
		Type:     storage.NodeShelf,
		External: storage.CloudExternalName,
		Pos:      -2,
	}, storage.AddOptions{KeepOrder: true, KeepUUID: true})
	if err != nil {
		return nil, err
	}
	return &created, nil
}

// dropShelf removes the cloud shelf and everything under it. All of it
// carries the backend's external mark, the shelf included.
func (b *Backend) dropShelf() error {
	return b.store.DeleteExternalNodes(nil, storage.CloudExternalName)
}

// Run reconciles on a fixed interval until ctx is cancelled. An initial
// pass runs immediately.
func (b *Backend) Run(ctx context.Context, interval time.Duration) error {
	if interval <= 0 {
		interval = 15 * time.Minute
	}
	if err := b.Reconcile(ctx); err != nil {
		b.log.Error("cloud: sync failed", slog.String("error", err.Error()))
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			b.log.Info("cloud: sync stopped")
			return nil
		case <-ticker.C:
			if err := b.Reconcile(ctx); err != nil {
				b.log.Error("cloud: sync failed", slog.String("error", err.Error()))
			}
		}
	}
}
