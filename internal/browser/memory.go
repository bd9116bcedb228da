package browser

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/starford/othala/internal/apperr"
)

// RootID is the id of the native root folder.
const RootID = "root"

// MemoryStore is an in-process native tree. It backs the profile file
// bridge and stands in for a live browser in tests.
type MemoryStore struct {
	mu       sync.Mutex
	entries  map[string]*Bookmark
	children map[string][]string
	nextID   int
	listener *Listener
}

// NewMemoryStore returns a store holding only the root folder.
func NewMemoryStore() *MemoryStore {
	root := &Bookmark{ID: RootID, Type: NativeFolder}
	return &MemoryStore{
		entries:  map[string]*Bookmark{RootID: root},
		children: map[string][]string{RootID: nil},
	}
}

func (m *MemoryStore) SetListener(l *Listener) {
	m.mu.Lock()
	m.listener = l
	m.mu.Unlock()
}

// notify grabs the listener under the lock and fires f outside of it.
func (m *MemoryStore) notify(f func(l *Listener)) {
	m.mu.Lock()
	l := m.listener
	m.mu.Unlock()
	if l != nil {
		f(l)
	}
}

func (m *MemoryStore) Tree(ctx context.Context) (*Bookmark, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.subtreeLocked(RootID), nil
}

func (m *MemoryStore) subtreeLocked(id string) *Bookmark {
	src := m.entries[id]
	if src == nil {
		return nil
	}
	b := *src
	b.Children = nil
	for i, childID := range m.children[id] {
		child := m.subtreeLocked(childID)
		child.Index = i
		b.Children = append(b.Children, child)
	}
	return &b
}

func (m *MemoryStore) Children(ctx context.Context, id string) ([]Bookmark, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.entries[id] == nil {
		return nil, fmt.Errorf("browser: children of %s: %w", id, apperr.ErrNotFound)
	}
	var out []Bookmark
	for i, childID := range m.children[id] {
		c := *m.entries[childID]
		c.Index = i
		out = append(out, c)
	}
	return out, nil
}

func (m *MemoryStore) Create(ctx context.Context, b Bookmark) (Bookmark, error) {
	m.mu.Lock()
	if b.ParentID == "" {
		b.ParentID = RootID
	}
	parent := m.entries[b.ParentID]
	if parent == nil || parent.Type != NativeFolder {
		m.mu.Unlock()
		return Bookmark{}, fmt.Errorf("browser: create under %s: %w", b.ParentID, apperr.ErrNotFound)
	}
	if b.Type == "" {
		b.Type = NativeBookmark
	}
	m.nextID++
	b.ID = fmt.Sprintf("n%d", m.nextID)
	if b.DateAdded.IsZero() {
		b.DateAdded = time.Now()
	}

	siblings := m.children[b.ParentID]
	if b.Index < 0 || b.Index > len(siblings) {
		b.Index = len(siblings)
	}
	siblings = append(siblings, "")
	copy(siblings[b.Index+1:], siblings[b.Index:])
	siblings[b.Index] = b.ID
	m.children[b.ParentID] = siblings

	stored := b
	stored.Children = nil
	m.entries[b.ID] = &stored
	if b.Type == NativeFolder {
		m.children[b.ID] = nil
	}
	m.mu.Unlock()

	m.notify(func(l *Listener) {
		if l.Created != nil {
			l.Created(b)
		}
	})
	return b, nil
}

func (m *MemoryStore) Update(ctx context.Context, id string, ch Changes) error {
	m.mu.Lock()
	b := m.entries[id]
	if b == nil {
		m.mu.Unlock()
		return fmt.Errorf("browser: update %s: %w", id, apperr.ErrNotFound)
	}
	if ch.Title != nil {
		b.Title = *ch.Title
	}
	if ch.URL != nil {
		b.URL = *ch.URL
	}
	changed := *b
	m.mu.Unlock()

	m.notify(func(l *Listener) {
		if l.Changed != nil {
			l.Changed(changed)
		}
	})
	return nil
}

func (m *MemoryStore) Move(ctx context.Context, id, parentID string, index int) error {
	m.mu.Lock()
	b := m.entries[id]
	if b == nil {
		m.mu.Unlock()
		return fmt.Errorf("browser: move %s: %w", id, apperr.ErrNotFound)
	}
	dest := m.entries[parentID]
	if dest == nil || dest.Type != NativeFolder {
		m.mu.Unlock()
		return fmt.Errorf("browser: move %s to %s: %w", id, parentID, apperr.ErrNotFound)
	}
	oldParent := b.ParentID
	oldIndex := m.indexLocked(id)

	m.detachLocked(id)
	siblings := m.children[parentID]
	if index < 0 || index > len(siblings) {
		index = len(siblings)
	}
	siblings = append(siblings, "")
	copy(siblings[index+1:], siblings[index:])
	siblings[index] = id
	m.children[parentID] = siblings
	b.ParentID = parentID

	moved := *b
	m.mu.Unlock()

	m.notify(func(l *Listener) {
		if l.Moved != nil {
			l.Moved(moved, oldParent, oldIndex)
		}
	})
	return nil
}

func (m *MemoryStore) Remove(ctx context.Context, id string) error {
	m.mu.Lock()
	b := m.entries[id]
	if b == nil {
		m.mu.Unlock()
		return fmt.Errorf("browser: remove %s: %w", id, apperr.ErrNotFound)
	}
	if len(m.children[id]) > 0 {
		m.mu.Unlock()
		return fmt.Errorf("browser: remove %s: folder is not empty", id)
	}
	removed := *b
	m.detachLocked(id)
	delete(m.entries, id)
	delete(m.children, id)
	m.mu.Unlock()

	m.notify(func(l *Listener) {
		if l.Removed != nil {
			l.Removed(removed)
		}
	})
	return nil
}

func (m *MemoryStore) RemoveTree(ctx context.Context, id string) error {
	m.mu.Lock()
	b := m.entries[id]
	if b == nil {
		m.mu.Unlock()
		return fmt.Errorf("browser: remove tree %s: %w", id, apperr.ErrNotFound)
	}
	var removed []Bookmark
	var collect func(string)
	collect = func(cur string) {
		for _, childID := range m.children[cur] {
			collect(childID)
		}
		removed = append(removed, *m.entries[cur])
		delete(m.entries, cur)
		delete(m.children, cur)
	}
	m.detachLocked(id)
	collect(id)
	m.mu.Unlock()

	m.notify(func(l *Listener) {
		if l.Removed == nil {
			return
		}
		for _, r := range removed {
			l.Removed(r)
		}
	})
	return nil
}

// Load replaces the whole tree with the given root, keeping the ids the
// tree carries. No listener events fire. Used to seed the store from a
// parsed profile file.
func (m *MemoryStore) Load(root *Bookmark) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = map[string]*Bookmark{RootID: {ID: RootID, Type: NativeFolder}}
	m.children = map[string][]string{RootID: nil}
	m.nextID = 0
	if root == nil {
		return
	}
	var walk func(parentID string, b *Bookmark)
	walk = func(parentID string, b *Bookmark) {
		stored := *b
		stored.ParentID = parentID
		stored.Children = nil
		m.entries[b.ID] = &stored
		m.children[parentID] = append(m.children[parentID], b.ID)
		if stored.Type == NativeFolder {
			if _, ok := m.children[b.ID]; !ok {
				m.children[b.ID] = nil
			}
		}
		if n := numericSuffix(b.ID); n > m.nextID {
			m.nextID = n
		}
		for _, child := range b.Children {
			walk(b.ID, child)
		}
	}
	for _, child := range root.Children {
		walk(RootID, child)
	}
}

// numericSuffix extracts the counter from ids of the form "n<counter>".
func numericSuffix(id string) int {
	if len(id) < 2 || id[0] != 'n' {
		return 0
	}
	n := 0
	for _, r := range id[1:] {
		if r < '0' || r > '9' {
			return 0
		}
		n = n*10 + int(r-'0')
	}
	return n
}

// Snapshot returns every entry except the root, sorted by id. Used by
// the profile file bridge to diff two generations of the tree.
func (m *MemoryStore) Snapshot() []Bookmark {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Bookmark
	for id, b := range m.entries {
		if id == RootID {
			continue
		}
		c := *b
		c.Index = m.indexLocked(id)
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (m *MemoryStore) indexLocked(id string) int {
	for i, childID := range m.children[m.entries[id].ParentID] {
		if childID == id {
			return i
		}
	}
	return -1
}

func (m *MemoryStore) detachLocked(id string) {
	parentID := m.entries[id].ParentID
	siblings := m.children[parentID]
	for i, childID := range siblings {
		if childID == id {
			m.children[parentID] = append(siblings[:i], siblings[i+1:]...)
			return
		}
	}
}
