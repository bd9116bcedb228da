// Package bookmarks implements the high-level bookmarking operations on
// top of the node store: name uniqueness, path resolution, and the
// create/rename/move/copy/delete/reorder operations that fan out to the
// external event hub.
package bookmarks

import (
	"fmt"
	"log/slog"
	"regexp"
	"strings"

	"github.com/starford/othala/internal/external"
	"github.com/starford/othala/internal/storage"
)

// Manager coordinates the node store and the external event hub.
type Manager struct {
	store *storage.Storage
	hub   *external.Hub
	log   *slog.Logger
}

// NewManager creates a manager over the given store and hub.
func NewManager(store *storage.Storage, hub *external.Hub, log *slog.Logger) *Manager {
	if log == nil {
		log = slog.Default()
	}
	return &Manager{store: store, hub: hub, log: log}
}

// Store exposes the underlying node store.
func (m *Manager) Store() *storage.Storage { return m.store }

// Hub exposes the external event hub.
func (m *Manager) Hub() *external.Hub { return m.hub }

var uniqueSuffixRe = regexp.MustCompile(`^(.*)( \(\d+\))$`)

// EnsureUniqueName returns name adjusted with the smallest " (n)" suffix
// that makes it unique among the current siblings of parentID,
// case-insensitive. A pre-existing " (n)" suffix is stripped before
// recomputing. When renaming, oldName itself does not count as a
// collision. A zero parentID compares against the top-level shelves.
func (m *Manager) EnsureUniqueName(parentID int64, name, oldName string) (string, error) {
	if name == "" {
		return "", nil
	}

	var siblings []storage.Node
	var err error
	if parentID != 0 {
		siblings, err = m.store.GetChildNodes(parentID)
	} else {
		siblings, err = m.store.QueryShelves()
	}
	if err != nil {
		return "", err
	}

	taken := make(map[string]struct{}, len(siblings))
	for _, s := range siblings {
		if s.Name == "" || s.Name == oldName {
			continue
		}
		taken[strings.ToUpper(s.Name)] = struct{}{}
	}

	original := name
	if ms := uniqueSuffixRe.FindStringSubmatch(original); ms != nil {
		original = ms[1]
	}

	n := 1
	for {
		if _, ok := taken[strings.ToUpper(name)]; !ok {
			return name, nil
		}
		name = fmt.Sprintf("%s (%d)", original, n)
		n++
	}
}

// Visitor is called for each node of a traversal with its parent, which
// is nil for the traversal root.
type Visitor func(parent, node *storage.Node) error

// Traverse walks root and its descendants preorder, calling visitor for
// every node.
func (m *Manager) Traverse(root *storage.Node, visitor Visitor) error {
	var walk func(parent, node *storage.Node) error
	walk = func(parent, node *storage.Node) error {
		if err := visitor(parent, node); err != nil {
			return err
		}
		if !node.IsContainer() {
			return nil
		}
		children, err := m.store.GetChildNodes(node.ID)
		if err != nil {
			return err
		}
		for i := range children {
			if err := walk(node, &children[i]); err != nil {
				return err
			}
		}
		return nil
	}
	return walk(nil, root)
}

// mirror runs an external hub fan-out, isolating its failure from the
// already committed store mutation.
func (m *Manager) mirror(op string, f func()) {
	defer func() {
		if r := recover(); r != nil {
			m.log.Error("external mirroring panicked", slog.String("op", op), slog.Any("panic", r))
		}
	}()
	f()
}

func (m *Manager) invalidateCompletionFor(nodes ...storage.Node) {
	for _, n := range nodes {
		if n.IsContainer() {
			m.hub.InvalidateCompletion()
			return
		}
	}
}

// FormatShelfName capitalizes built-in shelf names for display.
func FormatShelfName(name string) string {
	if name != "" && storage.IsSpecialShelf(name) {
		return strings.ToUpper(name[:1]) + name[1:]
	}
	return name
}
