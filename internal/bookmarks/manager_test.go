package bookmarks

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"path/filepath"
	"testing"

	"github.com/starford/othala/internal/apperr"
	"github.com/starford/othala/internal/external"
	"github.com/starford/othala/internal/storage"
)

func testManager(t *testing.T) *Manager {
	t.Helper()
	store, err := storage.Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { store.Close() })
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewManager(store, external.NewHub(log), log)
}

func mustAddBookmark(t *testing.T, m *Manager, parentID int64, name, uri string) *storage.Node {
	t.Helper()
	n, err := m.AddBookmark(context.Background(), storage.Node{
		ParentID: parentID, Name: name, URI: uri, Type: storage.NodeBookmark,
	})
	if err != nil {
		t.Fatal(err)
	}
	return n
}

func TestAddBookmarkRequiresParent(t *testing.T) {
	m := testManager(t)

	_, err := m.AddBookmark(context.Background(), storage.Node{Name: "a", Type: storage.NodeBookmark})
	if !errors.Is(err, apperr.ErrNoParent) {
		t.Errorf("err = %v, want ErrNoParent", err)
	}

	_, err = m.AddBookmark(context.Background(), storage.Node{ParentID: 999, Name: "a", Type: storage.NodeBookmark})
	if !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestEnsureUniqueName(t *testing.T) {
	m := testManager(t)

	mustAddBookmark(t, m, storage.DefaultShelfID, "A", "http://a/")
	second := mustAddBookmark(t, m, storage.DefaultShelfID, "A", "http://a/")
	if second.Name != "A (1)" {
		t.Errorf("second name = %q, want %q", second.Name, "A (1)")
	}
	third := mustAddBookmark(t, m, storage.DefaultShelfID, "A", "http://a/")
	if third.Name != "A (2)" {
		t.Errorf("third name = %q, want %q", third.Name, "A (2)")
	}
}

func TestUpdateKeepsOwnName(t *testing.T) {
	m := testManager(t)

	n := mustAddBookmark(t, m, storage.DefaultShelfID, "A", "http://a/")
	n.URI = "http://b/"
	updated, err := m.Update(context.Background(), *n)
	if err != nil {
		t.Fatal(err)
	}
	// A node keeps its own name on update; the dedup only applies
	// against siblings.
	if updated.Name != "A" {
		t.Errorf("name = %q, want A", updated.Name)
	}
	if updated.URI != "http://b/" {
		t.Errorf("uri = %q", updated.URI)
	}
}

func TestGetOrCreateFolderByPath(t *testing.T) {
	m := testManager(t)

	folder, err := m.GetOrCreateFolderByPath(context.Background(), "work/projects/othala")
	if err != nil {
		t.Fatal(err)
	}
	if folder.Name != "othala" || folder.Type != storage.NodeFolder {
		t.Errorf("folder = %q type %d", folder.Name, folder.Type)
	}

	// Second resolution reuses the chain, case-insensitively.
	again, err := m.GetOrCreateFolderByPath(context.Background(), "Work/Projects/Othala")
	if err != nil {
		t.Fatal(err)
	}
	if again.ID != folder.ID {
		t.Errorf("chain duplicated: %d vs %d", again.ID, folder.ID)
	}

	shelves, _ := m.Store().QueryShelves()
	if len(shelves) != 2 {
		t.Errorf("shelves = %d, want default plus work", len(shelves))
	}
}

func TestMoveCircularReference(t *testing.T) {
	m := testManager(t)

	outer, err := m.AddFolder(context.Background(), storage.DefaultShelfID, "outer")
	if err != nil {
		t.Fatal(err)
	}
	inner, err := m.AddFolder(context.Background(), outer.ID, "inner")
	if err != nil {
		t.Fatal(err)
	}

	_, err = m.Move(context.Background(), []int64{outer.ID}, inner.ID, false)
	if !errors.Is(err, apperr.ErrCircularReference) {
		t.Errorf("err = %v, want ErrCircularReference", err)
	}
}

func TestMoveReparents(t *testing.T) {
	m := testManager(t)

	folder, err := m.AddFolder(context.Background(), storage.DefaultShelfID, "dest")
	if err != nil {
		t.Fatal(err)
	}
	n := mustAddBookmark(t, m, storage.DefaultShelfID, "a", "http://a/")

	moved, err := m.Move(context.Background(), []int64{n.ID}, folder.ID, false)
	if err != nil {
		t.Fatal(err)
	}
	if len(moved) != 1 || moved[0].ParentID != folder.ID {
		t.Errorf("moved = %v", moved)
	}
}

func TestCopyCarriesContent(t *testing.T) {
	m := testManager(t)
	ctx := context.Background()

	src := mustAddBookmark(t, m, storage.DefaultShelfID, "a", "http://a/")
	if err := m.StoreArchive(ctx, src.ID, []byte("<p>archived words</p>"), "text/html", 0); err != nil {
		t.Fatal(err)
	}
	if err := m.StoreComments(ctx, src.ID, "a remark"); err != nil {
		t.Fatal(err)
	}

	dest, err := m.AddFolder(ctx, storage.DefaultShelfID, "dest")
	if err != nil {
		t.Fatal(err)
	}
	copies, err := m.Copy(ctx, []int64{src.ID}, dest.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(copies) != 1 {
		t.Fatalf("copies = %d, want 1", len(copies))
	}
	clone := copies[0]
	if clone.ID == src.ID || clone.UUID == src.UUID {
		t.Error("clone shares identity with source")
	}

	blob, err := m.Store().FetchBlob(clone.ID)
	if err != nil {
		t.Fatal(err)
	}
	if blob == nil || string(blob.Data) != "<p>archived words</p>" {
		t.Error("archive not copied")
	}
	comments, _ := m.Store().FetchComments(clone.ID)
	if comments != "a remark" {
		t.Errorf("comments = %q", comments)
	}
	words, _ := m.Store().FetchIndex(clone.ID, storage.IndexContent)
	if len(words) == 0 {
		t.Error("content index not copied")
	}
}

func TestReorderRewritesPositions(t *testing.T) {
	m := testManager(t)

	a := mustAddBookmark(t, m, storage.DefaultShelfID, "a", "http://a/")
	b := mustAddBookmark(t, m, storage.DefaultShelfID, "b", "http://b/")
	c := mustAddBookmark(t, m, storage.DefaultShelfID, "c", "http://c/")

	if err := m.Reorder(context.Background(), []storage.Node{*c, *a, *b}); err != nil {
		t.Fatal(err)
	}

	children, err := m.Store().GetChildNodes(storage.DefaultShelfID)
	if err != nil {
		t.Fatal(err)
	}
	want := []int64{c.ID, a.ID, b.ID}
	for i, n := range children {
		if n.ID != want[i] {
			t.Errorf("children[%d] = %d, want %d", i, n.ID, want[i])
		}
	}
}

func TestDeleteRemovesSubtree(t *testing.T) {
	m := testManager(t)
	ctx := context.Background()

	folder, err := m.AddFolder(ctx, storage.DefaultShelfID, "f")
	if err != nil {
		t.Fatal(err)
	}
	leaf := mustAddBookmark(t, m, folder.ID, "leaf", "http://l/")

	if err := m.Delete(ctx, []int64{folder.ID}); err != nil {
		t.Fatal(err)
	}
	if got, _ := m.Store().GetNode(folder.ID); got != nil {
		t.Error("folder survived")
	}
	if got, _ := m.Store().GetNode(leaf.ID); got != nil {
		t.Error("leaf survived")
	}
}

func TestStoreNotesIndexesContent(t *testing.T) {
	m := testManager(t)
	ctx := context.Background()

	n := mustAddBookmark(t, m, storage.DefaultShelfID, "a", "http://a/")
	err := m.StoreNotes(ctx, storage.Notes{NodeID: n.ID, Content: "remarkable observation", Format: "text"})
	if err != nil {
		t.Fatal(err)
	}

	got, _ := m.Store().GetNode(n.ID)
	if !got.HasNotes {
		t.Error("has_notes not set")
	}
	found, err := m.Store().FilterByContent(nil, []string{"remarkable"}, storage.IndexNotes)
	if err != nil {
		t.Fatal(err)
	}
	if len(found) != 1 || found[0].ID != n.ID {
		t.Errorf("notes search = %v", found)
	}
}

func TestSetTodoState(t *testing.T) {
	m := testManager(t)
	ctx := context.Background()

	n := mustAddBookmark(t, m, storage.DefaultShelfID, "a", "http://a/")
	if err := m.SetTodoState(ctx, []int64{n.ID}, storage.TodoTodo); err != nil {
		t.Fatal(err)
	}

	todos, err := m.Store().QueryTODO()
	if err != nil {
		t.Fatal(err)
	}
	if len(todos) != 1 || todos[0].ID != n.ID {
		t.Errorf("todo list = %v", todos)
	}
}

func TestSplitPath(t *testing.T) {
	cases := []struct {
		in   string
		want int
	}{
		{"a/b/c", 3},
		{"/a/b/", 2},
		{"~", 1},
		{"", 1}, // empty maps to the default shelf
	}
	for _, c := range cases {
		if got := SplitPath(c.in); len(got) != c.want {
			t.Errorf("SplitPath(%q) = %v, want %d segments", c.in, got, c.want)
		}
	}
}
