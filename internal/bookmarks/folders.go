package bookmarks

import (
	"context"
	"strings"

	"github.com/starford/othala/internal/storage"
)

// queryFolders walks the path one segment at a time, returning every
// folder it could resolve keyed by lower-cased name. The walk stops at
// the first unresolved segment; the first segment must resolve to a
// shelf.
func (m *Manager) queryFolders(segments []string) (map[string]*storage.Node, error) {
	folders := make(map[string]*storage.Node)
	if len(segments) == 0 {
		return folders, nil
	}

	shelf, err := m.store.QueryShelf(segments[0])
	if err != nil {
		return nil, err
	}
	if shelf == nil {
		return folders, nil
	}
	folders[strings.ToLower(shelf.Name)] = shelf

	parent := shelf
	for _, name := range segments[1:] {
		if parent == nil {
			break
		}
		folder, err := m.store.QueryGroup(parent.ID, name)
		if err != nil {
			return nil, err
		}
		folders[strings.ToLower(name)] = folder
		parent = folder
	}
	return folders, nil
}

// FolderByPath returns the last folder of the path if every segment
// resolves, nil otherwise.
func (m *Manager) FolderByPath(path string) (*storage.Node, error) {
	segments := SplitPath(ExpandPath(path))
	folders, err := m.queryFolders(segments)
	if err != nil {
		return nil, err
	}
	return folders[strings.ToLower(segments[len(segments)-1])], nil
}

// GetOrCreateFolderByPath resolves the path, creating every missing
// segment on the way: the first segment as a shelf, the rest as folders.
// Every created folder is fanned out to the hub and invalidates the
// automation completion cache.
func (m *Manager) GetOrCreateFolderByPath(ctx context.Context, path string) (*storage.Node, error) {
	segments := SplitPath(ExpandPath(path))
	folders, err := m.queryFolders(segments)
	if err != nil {
		return nil, err
	}

	parent := folders[strings.ToLower(segments[0])]
	if parent == nil {
		shelf, err := m.store.AddNode(storage.Node{
			Name: segments[0],
			Type: storage.NodeShelf,
		}, storage.AddOptions{})
		if err != nil {
			return nil, err
		}
		parent = &shelf
		m.hub.InvalidateCompletion()
	}

	for _, name := range segments[1:] {
		folder := folders[strings.ToLower(name)]
		if folder != nil {
			parent = folder
			continue
		}
		node, err := m.store.AddNode(storage.Node{
			ParentID: parent.ID,
			External: parent.External,
			Name:     name,
			Type:     storage.NodeFolder,
		}, storage.AddOptions{})
		if err != nil {
			return nil, err
		}
		created := node
		m.mirror("createBookmarkFolder", func() {
			m.hub.CreateBookmarkFolder(ctx, &created, parent)
			m.hub.InvalidateCompletion()
		})
		parent = &created
	}
	return parent, nil
}

// AddFolder creates a folder under parent with a unique name and fans
// the creation out to the hub.
func (m *Manager) AddFolder(ctx context.Context, parentID int64, name string) (*storage.Node, error) {
	parent, err := m.store.GetNode(parentID)
	if err != nil {
		return nil, err
	}

	uniqueName, err := m.EnsureUniqueName(parentID, name, "")
	if err != nil {
		return nil, err
	}

	node := storage.Node{
		Name: uniqueName,
		Type: storage.NodeFolder,
	}
	if parent != nil {
		node.ParentID = parent.ID
		node.External = parent.External
	}
	created, err := m.store.AddNode(node, storage.AddOptions{})
	if err != nil {
		return nil, err
	}

	m.mirror("createBookmarkFolder", func() {
		m.hub.InvalidateCompletion()
		if parent != nil {
			m.hub.CreateBookmarkFolder(ctx, &created, parent)
		}
	})
	return &created, nil
}

// AddShelf creates a top-level shelf with a unique name.
func (m *Manager) AddShelf(ctx context.Context, name string) (*storage.Node, error) {
	uniqueName, err := m.EnsureUniqueName(0, name, "")
	if err != nil {
		return nil, err
	}
	created, err := m.store.AddNode(storage.Node{
		Name: uniqueName,
		Type: storage.NodeShelf,
	}, storage.AddOptions{})
	if err != nil {
		return nil, err
	}
	m.hub.InvalidateCompletion()
	return &created, nil
}
