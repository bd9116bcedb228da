// Package exchange reads and writes the line-delimited interchange
// format: a meta header line followed by one node object per line in
// tree order, with archived payloads, notes, comments and icons embedded
// in their node's line.
package exchange

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/starford/othala/internal/bookmarks"
	"github.com/starford/othala/internal/storage"
)

// FormatVersion is the current interchange format generation.
const FormatVersion = 2

// Meta is the first line of an interchange stream.
type Meta struct {
	Version   int    `json:"version"`
	Name      string `json:"name"`
	UUID      string `json:"uuid"`
	Entities  int    `json:"entities"`
	Timestamp int64  `json:"timestamp"`
}

// BlobPayload is an embedded archive payload. Binary payloads are
// base64-encoded.
type BlobPayload struct {
	Data   string `json:"data"`
	Type   string `json:"type,omitempty"`
	Binary bool   `json:"binary,omitempty"`
}

// NodeLine is one exported node with its attached content.
type NodeLine struct {
	storage.Node
	Blob     *BlobPayload   `json:"blob,omitempty"`
	Notes    *storage.Notes `json:"notes,omitempty"`
	Comments string         `json:"comments,omitempty"`
	IconData string         `json:"icon_data,omitempty"`
}

// Exchanger imports and exports interchange streams against a manager.
type Exchanger struct {
	manager *bookmarks.Manager
}

func New(manager *bookmarks.Manager) *Exchanger {
	return &Exchanger{manager: manager}
}

// Export writes the subtree rooted at root, root line first.
func (e *Exchanger) Export(ctx context.Context, w io.Writer, root *storage.Node) error {
	store := e.manager.Store()

	subtree, err := store.QueryFullSubtree([]int64{root.ID}, storage.SubtreeOptions{Preorder: true})
	if err != nil {
		return err
	}

	enc := json.NewEncoder(w)
	meta := Meta{
		Version:   FormatVersion,
		Name:      root.Name,
		UUID:      root.UUID,
		Entities:  len(subtree),
		Timestamp: time.Now().UnixMilli(),
	}
	if err := enc.Encode(meta); err != nil {
		return fmt.Errorf("exchange: write meta: %w", err)
	}

	for i := range subtree {
		line, err := e.exportNode(&subtree[i])
		if err != nil {
			return err
		}
		if err := enc.Encode(line); err != nil {
			return fmt.Errorf("exchange: write node %d: %w", subtree[i].ID, err)
		}
	}
	return nil
}

// ExportPath exports the subtree at the given shelf path.
func (e *Exchanger) ExportPath(ctx context.Context, w io.Writer, path string) error {
	root, err := e.manager.FolderByPath(path)
	if err != nil {
		return err
	}
	if root == nil {
		return fmt.Errorf("exchange: export: no folder at %q", path)
	}
	return e.Export(ctx, w, root)
}

// exportNode attaches a node's stored content to its line.
func (e *Exchanger) exportNode(n *storage.Node) (*NodeLine, error) {
	store := e.manager.Store()
	line := &NodeLine{Node: *n}

	blob, err := store.FetchBlob(n.ID)
	if err != nil {
		return nil, err
	}
	if blob != nil {
		payload := &BlobPayload{Type: blob.Type}
		if blob.ByteLength > 0 {
			payload.Binary = true
			payload.Data = base64.StdEncoding.EncodeToString(blob.Data)
		} else {
			payload.Data = string(blob.Data)
		}
		line.Blob = payload
	}

	if n.HasNotes {
		notes, err := store.FetchNotes(n.ID)
		if err != nil {
			return nil, err
		}
		line.Notes = notes
	}
	if n.HasComments {
		comments, err := store.FetchComments(n.ID)
		if err != nil {
			return nil, err
		}
		line.Comments = comments
	}
	if n.StoredIcon {
		icon, err := store.FetchIcon(n.ID)
		if err != nil {
			return nil, err
		}
		line.IconData = icon
	}
	return line, nil
}
