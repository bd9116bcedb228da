package exchange

import (
	"bufio"
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/starford/othala/internal/apperr"
	"github.com/starford/othala/internal/storage"
	"github.com/starford/othala/internal/text"
)

// importedSuffix marks shelves whose original name is reserved.
const importedSuffix = " (imported)"

// Import reads an interchange stream and creates its tree. The whole
// stream is validated to the extent of its header before any write: a
// stream from a newer format generation is rejected with
// ErrUnsupportedFormat, a malformed stream with ErrInvalidFormat.
//
// The root shelf keeps its exported name unless that name is reserved
// or taken; the default shelf merges into the existing one instead of
// creating a copy. It returns the local root node of the import.
func (e *Exchanger) Import(ctx context.Context, r io.Reader) (*storage.Node, error) {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 64*1024*1024)

	if !sc.Scan() {
		if err := sc.Err(); err != nil {
			return nil, fmt.Errorf("exchange: read meta: %w", err)
		}
		return nil, fmt.Errorf("exchange: empty stream: %w", apperr.ErrInvalidFormat)
	}
	var meta Meta
	if err := json.Unmarshal(sc.Bytes(), &meta); err != nil || meta.Version == 0 {
		return nil, fmt.Errorf("exchange: parse meta: %w", apperr.ErrInvalidFormat)
	}
	if meta.Version > FormatVersion {
		return nil, fmt.Errorf("exchange: format version %d: %w", meta.Version, apperr.ErrUnsupportedFormat)
	}

	// ids of the stream → ids of the created nodes
	translation := make(map[int64]int64)
	var root *storage.Node

	for sc.Scan() {
		lineBytes := bytes.TrimSpace(sc.Bytes())
		if len(lineBytes) == 0 {
			continue
		}
		var line NodeLine
		if err := json.Unmarshal(lineBytes, &line); err != nil {
			return nil, fmt.Errorf("exchange: parse node: %w", apperr.ErrInvalidFormat)
		}

		if root == nil {
			created, err := e.importRoot(ctx, &line, meta)
			if err != nil {
				return nil, err
			}
			translation[line.ID] = created.ID
			root = created
			continue
		}

		newParent, ok := translation[line.ParentID]
		if !ok {
			return nil, fmt.Errorf("exchange: node %d has no parent in stream: %w", line.ID, apperr.ErrInvalidFormat)
		}
		created, err := e.importNode(ctx, &line, newParent)
		if err != nil {
			return nil, err
		}
		translation[line.ID] = created.ID
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("exchange: read stream: %w", err)
	}
	if root == nil {
		return nil, fmt.Errorf("exchange: stream has no nodes: %w", apperr.ErrInvalidFormat)
	}

	e.manager.Hub().InvalidateCompletion()
	return root, nil
}

// importRoot places the stream's root node: the default shelf merges
// into the existing one, reserved names get the imported suffix, and
// anything else becomes a new uniquely named shelf.
func (e *Exchanger) importRoot(ctx context.Context, line *NodeLine, meta Meta) (*storage.Node, error) {
	store := e.manager.Store()

	name := line.Name
	if name == "" {
		name = meta.Name
	}

	if strings.EqualFold(name, storage.DefaultShelfName) || line.UUID == storage.DefaultShelfUUID {
		return store.GetNode(storage.DefaultShelfID)
	}

	if storage.IsSpecialShelf(name) || storage.IsSpecialUUID(line.UUID) {
		name += importedSuffix
	}
	uniqueName, err := e.manager.EnsureUniqueName(0, name, "")
	if err != nil {
		return nil, err
	}

	node := line.Node
	node.ID = 0
	node.ParentID = 0
	node.Name = uniqueName
	node.Type = storage.NodeShelf
	node.External = ""
	node.ExternalID = ""

	created, err := e.addImported(node)
	if err != nil {
		return nil, err
	}
	if err := e.importContent(line, created.ID); err != nil {
		return nil, err
	}
	return &created, nil
}

func (e *Exchanger) importNode(ctx context.Context, line *NodeLine, parentID int64) (*storage.Node, error) {
	node := line.Node
	node.ID = 0
	node.ParentID = parentID
	node.External = ""
	node.ExternalID = ""

	if node.Tags != "" && len(node.TagList) == 0 {
		node.TagList = storage.SplitTags(node.Tags)
	}
	if err := e.manager.Store().AddTags(node.TagList); err != nil {
		return nil, err
	}

	created, err := e.addImported(node)
	if err != nil {
		return nil, err
	}
	if err := e.importContent(line, created.ID); err != nil {
		return nil, err
	}
	return &created, nil
}

// addImported keeps the exported uuid, order and dates, falling back to
// a fresh uuid when the exported one is already taken.
func (e *Exchanger) addImported(node storage.Node) (storage.Node, error) {
	store := e.manager.Store()
	keepUUID := node.UUID != "" && !storage.IsSpecialUUID(node.UUID)
	if keepUUID {
		taken, err := store.NodeExists(node.UUID)
		if err != nil {
			return storage.Node{}, err
		}
		keepUUID = !taken
	}
	if !keepUUID {
		node.UUID = ""
	}
	return store.AddNode(node, storage.AddOptions{
		KeepOrder: true,
		KeepUUID:  keepUUID,
		KeepDates: !node.DateAdded.IsZero(),
	})
}

// importContent restores a line's embedded payloads for the created
// node.
func (e *Exchanger) importContent(line *NodeLine, nodeID int64) error {
	store := e.manager.Store()

	if line.Blob != nil {
		data := []byte(line.Blob.Data)
		var byteLength int64
		if line.Blob.Binary {
			decoded, err := base64.StdEncoding.DecodeString(line.Blob.Data)
			if err != nil {
				return fmt.Errorf("exchange: decode blob: %w", apperr.ErrInvalidFormat)
			}
			data = decoded
			byteLength = int64(len(decoded))
		}
		if err := store.StoreBlob(nodeID, data, line.Blob.Type, byteLength); err != nil {
			return err
		}
		if byteLength == 0 {
			if err := store.UpdateIndex(nodeID, text.ExtractWordsFromHTML(string(data))); err != nil {
				return err
			}
		}
	}

	if line.Notes != nil {
		notes := *line.Notes
		notes.NodeID = nodeID
		if err := store.StoreNotes(notes); err != nil {
			return err
		}
		source := notes.Content
		if notes.Format == "delta" {
			source = notes.HTML
		}
		if err := store.UpdateNoteIndex(nodeID, text.ExtractWordsFromHTML(source)); err != nil {
			return err
		}
	}

	if line.Comments != "" {
		if err := store.StoreComments(nodeID, line.Comments); err != nil {
			return err
		}
		if err := store.UpdateCommentIndex(nodeID, text.ExtractWords(line.Comments)); err != nil {
			return err
		}
	}

	if line.IconData != "" {
		if err := store.StoreIcon(nodeID, line.IconData); err != nil {
			return err
		}
	}
	return nil
}
