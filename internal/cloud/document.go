// Package cloud mirrors the cloud shelf into a single shared bookmark
// document kept on a remote storage provider, with per-node assets
// stored next to it. Conflicts between devices resolve per node by the
// newer modification date.
package cloud

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/starford/othala/internal/apperr"
	"github.com/starford/othala/internal/storage"
)

// documentVersion is the format generation of the shared document.
const documentVersion = 1

type docMeta struct {
	Version int   `json:"version"`
	NextID  int64 `json:"next_id"`
	Date    int64 `json:"date"` // unix millis of the last mutation
}

// Document is the shared bookmark database: a meta line followed by one
// node per line. Node ids and parent links are local to the document;
// nodes are correlated across devices by uuid.
type Document struct {
	meta  docMeta
	nodes []storage.Node
}

// NewDocument returns an empty document.
func NewDocument() *Document {
	return &Document{meta: docMeta{Version: documentVersion, NextID: 1}}
}

// ParseDocument reads the line-delimited form. A document written by a
// newer format generation is rejected.
func ParseDocument(data []byte) (*Document, error) {
	sc := bufio.NewScanner(bytes.NewReader(data))
	sc.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)

	if !sc.Scan() {
		return NewDocument(), nil
	}
	d := &Document{}
	if err := json.Unmarshal(sc.Bytes(), &d.meta); err != nil {
		return nil, fmt.Errorf("cloud: parse meta: %w", apperr.ErrInvalidFormat)
	}
	if d.meta.Version > documentVersion {
		return nil, fmt.Errorf("cloud: document version %d: %w", d.meta.Version, apperr.ErrUnsupportedFormat)
	}

	for sc.Scan() {
		line := bytes.TrimSpace(sc.Bytes())
		if len(line) == 0 {
			continue
		}
		var n storage.Node
		if err := json.Unmarshal(line, &n); err != nil {
			return nil, fmt.Errorf("cloud: parse node: %w", apperr.ErrInvalidFormat)
		}
		d.nodes = append(d.nodes, n)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("cloud: read document: %w", err)
	}
	return d, nil
}

// Bytes renders the line-delimited form, parents before children.
func (d *Document) Bytes() ([]byte, error) {
	d.sortTree()
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	if err := enc.Encode(d.meta); err != nil {
		return nil, fmt.Errorf("cloud: encode meta: %w", err)
	}
	for i := range d.nodes {
		if err := enc.Encode(&d.nodes[i]); err != nil {
			return nil, fmt.Errorf("cloud: encode node: %w", err)
		}
	}
	return buf.Bytes(), nil
}

// Nodes returns the document nodes, parents before children.
func (d *Document) Nodes() []storage.Node {
	d.sortTree()
	out := make([]storage.Node, len(d.nodes))
	copy(out, d.nodes)
	return out
}

// Get looks a node up by uuid.
func (d *Document) Get(uuid string) *storage.Node {
	for i := range d.nodes {
		if d.nodes[i].UUID == uuid {
			return &d.nodes[i]
		}
	}
	return nil
}

// ModifiedAt returns the document's last mutation time.
func (d *Document) ModifiedAt() time.Time {
	return time.UnixMilli(d.meta.Date)
}

// touch stamps the document as mutated now.
func (d *Document) touch() {
	d.meta.Date = time.Now().UnixMilli()
}

// sanitize strips the fields that only make sense on the device.
func sanitize(n storage.Node) storage.Node {
	n.External = ""
	n.ExternalID = ""
	n.Level = 0
	n.TagList = nil
	return n
}

// Add inserts a sanitized copy of n under the document node with
// parentUUID (empty for a document root) and returns the stored copy.
func (d *Document) Add(n storage.Node, parentUUID string) storage.Node {
	c := sanitize(n)
	c.ID = d.meta.NextID
	d.meta.NextID++
	c.ParentID = 0
	if parent := d.Get(parentUUID); parent != nil {
		c.ParentID = parent.ID
	}
	if c.UUID == "" {
		c.UUID = storage.NewUUID()
	}
	d.nodes = append(d.nodes, c)
	d.touch()
	return c
}

// Update replaces the stored copy of the node with the same uuid.
func (d *Document) Update(n storage.Node) {
	stored := d.Get(n.UUID)
	if stored == nil {
		return
	}
	c := sanitize(n)
	c.ID = stored.ID
	c.ParentID = stored.ParentID
	*stored = c
	d.touch()
}

// Move reattaches a node under a new parent (empty for a document
// root).
func (d *Document) Move(uuid, parentUUID string) {
	stored := d.Get(uuid)
	if stored == nil {
		return
	}
	stored.ParentID = 0
	if parent := d.Get(parentUUID); parent != nil {
		stored.ParentID = parent.ID
	}
	d.touch()
}

// Delete removes the nodes with the given uuids together with their
// descendants. It returns the uuids actually removed.
func (d *Document) Delete(uuids []string) []string {
	doomed := make(map[int64]struct{})
	for _, u := range uuids {
		if n := d.Get(u); n != nil {
			doomed[n.ID] = struct{}{}
		}
	}
	if len(doomed) == 0 {
		return nil
	}

	// descendants of doomed nodes go too
	for {
		grew := false
		for i := range d.nodes {
			n := &d.nodes[i]
			if _, ok := doomed[n.ID]; ok {
				continue
			}
			if _, ok := doomed[n.ParentID]; ok {
				doomed[n.ID] = struct{}{}
				grew = true
			}
		}
		if !grew {
			break
		}
	}

	var removed []string
	kept := d.nodes[:0]
	for _, n := range d.nodes {
		if _, ok := doomed[n.ID]; ok {
			removed = append(removed, n.UUID)
			continue
		}
		kept = append(kept, n)
	}
	d.nodes = kept
	d.touch()
	return removed
}

// sortTree orders nodes parents-first, siblings by position.
func (d *Document) sortTree() {
	children := make(map[int64][]storage.Node, len(d.nodes))
	for _, n := range d.nodes {
		children[n.ParentID] = append(children[n.ParentID], n)
	}
	for _, siblings := range children {
		sort.SliceStable(siblings, func(i, j int) bool { return siblings[i].Pos < siblings[j].Pos })
	}

	ids := make(map[int64]struct{}, len(d.nodes))
	for _, n := range d.nodes {
		ids[n.ID] = struct{}{}
	}

	ordered := make([]storage.Node, 0, len(d.nodes))
	var walk func(parentID int64)
	walk = func(parentID int64) {
		for _, n := range children[parentID] {
			ordered = append(ordered, n)
			walk(n.ID)
		}
	}
	// roots are nodes whose parent is not part of the document
	for _, n := range d.nodes {
		if _, ok := ids[n.ParentID]; !ok {
			ordered = append(ordered, n)
			walk(n.ID)
		}
	}
	d.nodes = ordered
}
