package storage

import (
	"path/filepath"
	"testing"
)

func openTest(t *testing.T) *Storage {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func addNode(t *testing.T, s *Storage, n Node) Node {
	t.Helper()
	out, err := s.AddNode(n, AddOptions{})
	if err != nil {
		t.Fatal(err)
	}
	return out
}

func TestOpenSeedsDefaultShelf(t *testing.T) {
	s := openTest(t)

	shelf, err := s.GetNode(DefaultShelfID)
	if err != nil {
		t.Fatal(err)
	}
	if shelf == nil {
		t.Fatal("default shelf missing")
	}
	if shelf.Name != DefaultShelfName || shelf.Type != NodeShelf {
		t.Errorf("default shelf = %q type %d", shelf.Name, shelf.Type)
	}
	if shelf.UUID != DefaultShelfUUID {
		t.Errorf("default shelf uuid = %q, want %q", shelf.UUID, DefaultShelfUUID)
	}
}

func TestAddNodeDefaults(t *testing.T) {
	s := openTest(t)

	n := addNode(t, s, Node{ParentID: DefaultShelfID, Name: "a", Type: NodeBookmark, Pos: 7})
	if n.ID == 0 {
		t.Fatal("no id assigned")
	}
	if n.UUID == "" {
		t.Error("no uuid assigned")
	}
	if n.Pos != DefaultPosition {
		t.Errorf("pos = %d, want place-at-end sentinel", n.Pos)
	}
	if n.DateAdded.IsZero() || n.DateModified.IsZero() {
		t.Error("dates not stamped")
	}
}

func TestAddNodeKeepOptions(t *testing.T) {
	s := openTest(t)

	in := Node{ParentID: DefaultShelfID, Name: "a", Type: NodeBookmark, Pos: 3, UUID: "fixed-uuid"}
	n, err := s.AddNode(in, AddOptions{KeepOrder: true, KeepUUID: true})
	if err != nil {
		t.Fatal(err)
	}
	if n.Pos != 3 {
		t.Errorf("pos = %d, want 3", n.Pos)
	}
	if n.UUID != "fixed-uuid" {
		t.Errorf("uuid = %q, want fixed-uuid", n.UUID)
	}
}

func TestGetChildNodesOrderedByPos(t *testing.T) {
	s := openTest(t)

	b := addOrdered(t, s, "b", 2)
	a := addOrdered(t, s, "a", 1)
	c := addOrdered(t, s, "c", 3)

	children, err := s.GetChildNodes(DefaultShelfID)
	if err != nil {
		t.Fatal(err)
	}
	if len(children) != 3 {
		t.Fatalf("children = %d, want 3", len(children))
	}
	want := []int64{a.ID, b.ID, c.ID}
	for i, n := range children {
		if n.ID != want[i] {
			t.Errorf("children[%d] = %d, want %d", i, n.ID, want[i])
		}
	}
}

func addOrdered(t *testing.T, s *Storage, name string, pos int) Node {
	t.Helper()
	n, err := s.AddNode(Node{ParentID: DefaultShelfID, Name: name, Type: NodeBookmark, Pos: pos},
		AddOptions{KeepOrder: true})
	if err != nil {
		t.Fatal(err)
	}
	return n
}

func TestQueryFullSubtreePreorder(t *testing.T) {
	s := openTest(t)

	folder := addNode(t, s, Node{ParentID: DefaultShelfID, Name: "f", Type: NodeFolder})
	inner := addNode(t, s, Node{ParentID: folder.ID, Name: "inner", Type: NodeFolder})
	addNode(t, s, Node{ParentID: inner.ID, Name: "deep", Type: NodeBookmark})
	addNode(t, s, Node{ParentID: folder.ID, Name: "leaf", Type: NodeBookmark})

	nodes, err := s.QueryFullSubtree([]int64{folder.ID}, SubtreeOptions{Preorder: true, ComputeLevel: true})
	if err != nil {
		t.Fatal(err)
	}
	if len(nodes) != 4 {
		t.Fatalf("subtree = %d nodes, want 4", len(nodes))
	}
	if nodes[0].ID != folder.ID || nodes[0].Level != 0 {
		t.Errorf("root first, level 0, got %q level %d", nodes[0].Name, nodes[0].Level)
	}
	for _, n := range nodes[1:] {
		if n.Level == 0 {
			t.Errorf("%q should have level > 0", n.Name)
		}
	}
}

func TestQueryFullSubtreeDedup(t *testing.T) {
	s := openTest(t)

	folder := addNode(t, s, Node{ParentID: DefaultShelfID, Name: "f", Type: NodeFolder})
	leaf := addNode(t, s, Node{ParentID: folder.ID, Name: "leaf", Type: NodeBookmark})

	// Root and a node inside it: the leaf must come out once.
	nodes, err := s.QueryFullSubtree([]int64{folder.ID, leaf.ID}, SubtreeOptions{})
	if err != nil {
		t.Fatal(err)
	}
	if len(nodes) != 2 {
		t.Errorf("subtree = %d nodes, want 2", len(nodes))
	}
}

func TestDeleteNodesLowLevelCascades(t *testing.T) {
	s := openTest(t)

	n := addNode(t, s, Node{ParentID: DefaultShelfID, Name: "a", Type: NodeArchive})
	if err := s.StoreBlob(n.ID, []byte("<html>hello</html>"), "text/html", 0); err != nil {
		t.Fatal(err)
	}
	if err := s.UpdateIndex(n.ID, []string{"hello"}); err != nil {
		t.Fatal(err)
	}
	if err := s.StoreNotes(Notes{NodeID: n.ID, Content: "note", Format: "text"}); err != nil {
		t.Fatal(err)
	}
	if err := s.StoreComments(n.ID, "comment"); err != nil {
		t.Fatal(err)
	}
	if err := s.StoreIcon(n.ID, "data:image/png;base64,AA=="); err != nil {
		t.Fatal(err)
	}

	if err := s.DeleteNodesLowLevel([]int64{n.ID}); err != nil {
		t.Fatal(err)
	}

	if got, _ := s.GetNode(n.ID); got != nil {
		t.Error("node survived delete")
	}
	if blob, _ := s.FetchBlob(n.ID); blob != nil {
		t.Error("blob survived delete")
	}
	if words, _ := s.FetchIndex(n.ID, IndexContent); len(words) != 0 {
		t.Error("index rows survived delete")
	}
	if notes, _ := s.FetchNotes(n.ID); notes != nil {
		t.Error("notes survived delete")
	}
	if comments, _ := s.FetchComments(n.ID); comments != "" {
		t.Error("comments survived delete")
	}
}

func TestFilterByContentAllWordsRequired(t *testing.T) {
	s := openTest(t)

	a := addNode(t, s, Node{ParentID: DefaultShelfID, Name: "a", Type: NodeArchive})
	b := addNode(t, s, Node{ParentID: DefaultShelfID, Name: "b", Type: NodeArchive})
	if err := s.UpdateIndex(a.ID, []string{"quick", "brown", "fox"}); err != nil {
		t.Fatal(err)
	}
	if err := s.UpdateIndex(b.ID, []string{"quick", "red", "fox"}); err != nil {
		t.Fatal(err)
	}

	out, err := s.FilterByContent(nil, []string{"quick", "brown"}, IndexContent)
	if err != nil {
		t.Fatal(err)
	}
	if len(out) != 1 || out[0].ID != a.ID {
		t.Errorf("match = %v, want only node a", out)
	}

	// Prefix comparison: "qui" matches both.
	out, err = s.FilterByContent(nil, []string{"qui"}, IndexContent)
	if err != nil {
		t.Fatal(err)
	}
	if len(out) != 2 {
		t.Errorf("prefix match = %d nodes, want 2", len(out))
	}
}

func TestFilterByContentNoMatchReturnsNothing(t *testing.T) {
	s := openTest(t)

	a := addNode(t, s, Node{ParentID: DefaultShelfID, Name: "a", Type: NodeArchive})
	if err := s.UpdateIndex(a.ID, []string{"red", "car"}); err != nil {
		t.Fatal(err)
	}

	out, err := s.FilterByContent(nil, []string{"zebra"}, IndexContent)
	if err != nil {
		t.Fatal(err)
	}
	if len(out) != 0 {
		t.Errorf("unindexed word matched %d nodes, want none", len(out))
	}

	// one matching and one unmatched word must still yield nothing
	out, err = s.FilterByContent(nil, []string{"red", "zebra"}, IndexContent)
	if err != nil {
		t.Fatal(err)
	}
	if len(out) != 0 {
		t.Errorf("partial match leaked %d nodes, want none", len(out))
	}
}

func TestFilterByContentScopedToCandidates(t *testing.T) {
	s := openTest(t)

	a := addNode(t, s, Node{ParentID: DefaultShelfID, Name: "a", Type: NodeArchive})
	b := addNode(t, s, Node{ParentID: DefaultShelfID, Name: "b", Type: NodeArchive})
	_ = s.UpdateIndex(a.ID, []string{"shared"})
	_ = s.UpdateIndex(b.ID, []string{"shared"})

	out, err := s.FilterByContent([]Node{a}, []string{"shared"}, IndexContent)
	if err != nil {
		t.Fatal(err)
	}
	if len(out) != 1 || out[0].ID != a.ID {
		t.Errorf("candidates not respected: %v", out)
	}
}

func TestQueryNodesSearchAndTypes(t *testing.T) {
	s := openTest(t)

	addNode(t, s, Node{ParentID: DefaultShelfID, Name: "Go Blog", URI: "https://go.dev/blog", Type: NodeBookmark})
	addNode(t, s, Node{ParentID: DefaultShelfID, Name: "misc", Type: NodeFolder})

	out, err := s.QueryNodes(nil, QueryOptions{Search: "go blog"})
	if err != nil {
		t.Fatal(err)
	}
	if len(out) != 1 || out[0].Name != "Go Blog" {
		t.Errorf("search = %v", out)
	}

	out, err = s.QueryNodes(nil, QueryOptions{Types: []NodeType{NodeFolder}})
	if err != nil {
		t.Fatal(err)
	}
	for _, n := range out {
		if n.Type != NodeFolder {
			t.Errorf("type filter leaked %q", n.Name)
		}
	}
}

func TestQueryNodesTodoScopes(t *testing.T) {
	s := openTest(t)

	todo := addNode(t, s, Node{ParentID: DefaultShelfID, Name: "t", Type: NodeBookmark, TodoState: TodoTodo})
	done := addNode(t, s, Node{ParentID: DefaultShelfID, Name: "d", Type: NodeBookmark, TodoState: TodoDone})

	out, err := s.QueryNodes(nil, QueryOptions{Path: TodoShelfName})
	if err != nil {
		t.Fatal(err)
	}
	if len(out) != 1 || out[0].ID != todo.ID {
		t.Errorf("TODO scope = %v", out)
	}

	out, err = s.QueryNodes(nil, QueryOptions{Path: DoneShelfName})
	if err != nil {
		t.Fatal(err)
	}
	if len(out) != 1 || out[0].ID != done.ID {
		t.Errorf("DONE scope = %v", out)
	}
}

func TestQueryNodesTagPrefix(t *testing.T) {
	s := openTest(t)

	tagged := addNode(t, s, Node{ParentID: DefaultShelfID, Name: "a", Type: NodeBookmark,
		TagList: []string{"golang", "db"}})
	addNode(t, s, Node{ParentID: DefaultShelfID, Name: "b", Type: NodeBookmark})

	out, err := s.QueryNodes(nil, QueryOptions{Tags: []string{"go"}})
	if err != nil {
		t.Fatal(err)
	}
	if len(out) != 1 || out[0].ID != tagged.ID {
		t.Errorf("tag filter = %v", out)
	}
}

func TestQueryShelfCaseInsensitive(t *testing.T) {
	s := openTest(t)

	shelf, err := s.QueryShelf("DEFAULT")
	if err != nil {
		t.Fatal(err)
	}
	if shelf == nil || shelf.ID != DefaultShelfID {
		t.Errorf("shelf lookup = %v", shelf)
	}
}

func TestAddTagsInsertsOnePerCall(t *testing.T) {
	s := openTest(t)

	if err := s.AddTags([]string{"one", "two"}); err != nil {
		t.Fatal(err)
	}
	tags, err := s.QueryTags()
	if err != nil {
		t.Fatal(err)
	}
	if len(tags) != 1 {
		t.Fatalf("tags after first call = %d, want 1", len(tags))
	}

	if err := s.AddTags([]string{"one", "two"}); err != nil {
		t.Fatal(err)
	}
	tags, _ = s.QueryTags()
	if len(tags) != 2 {
		t.Errorf("tags after second call = %d, want 2", len(tags))
	}
}

func TestDeleteMissingExternalNodesKeepsShelf(t *testing.T) {
	s := openTest(t)

	shelf, err := s.AddNode(Node{UUID: BrowserShelfUUID, Name: BrowserShelfName, Type: NodeShelf,
		External: BrowserExternalName}, AddOptions{KeepUUID: true})
	if err != nil {
		t.Fatal(err)
	}
	kept, err := s.AddNode(Node{ParentID: shelf.ID, Name: "kept", Type: NodeBookmark,
		External: BrowserExternalName, ExternalID: "n1"}, AddOptions{})
	if err != nil {
		t.Fatal(err)
	}
	_, err = s.AddNode(Node{ParentID: shelf.ID, Name: "stale", Type: NodeBookmark,
		External: BrowserExternalName, ExternalID: "n2"}, AddOptions{})
	if err != nil {
		t.Fatal(err)
	}

	if err := s.DeleteMissingExternalNodes([]string{"n1"}, BrowserExternalName); err != nil {
		t.Fatal(err)
	}

	if got, _ := s.GetNode(kept.ID); got == nil {
		t.Error("surviving external node deleted")
	}
	if got, _ := s.GetExternalNode("n2", BrowserExternalName); got != nil {
		t.Error("stale external node kept")
	}
	// The shelf has no external_id and must survive.
	if got, _ := s.GetNodeByUUID(BrowserShelfUUID); got == nil {
		t.Error("mirror shelf deleted")
	}
}

func TestDeleteExternalNodes(t *testing.T) {
	s := openTest(t)

	shelf, err := s.AddNode(Node{UUID: BrowserShelfUUID, Name: BrowserShelfName, Type: NodeShelf,
		External: BrowserExternalName}, AddOptions{KeepUUID: true})
	if err != nil {
		t.Fatal(err)
	}
	addNode(t, s, Node{ParentID: shelf.ID, Name: "a", Type: NodeBookmark,
		External: BrowserExternalName, ExternalID: "n1"})
	addNode(t, s, Node{ParentID: shelf.ID, Name: "b", Type: NodeBookmark,
		External: BrowserExternalName, ExternalID: "n2"})
	local := addNode(t, s, Node{ParentID: DefaultShelfID, Name: "local", Type: NodeBookmark})

	if err := s.DeleteExternalNodes([]string{"n2"}, BrowserExternalName); err != nil {
		t.Fatal(err)
	}
	if got, _ := s.GetExternalNode("n2", BrowserExternalName); got != nil {
		t.Error("listed node kept")
	}
	if got, _ := s.GetExternalNode("n1", BrowserExternalName); got == nil {
		t.Error("unlisted node deleted")
	}

	// nil ids take the whole backend, the marked shelf included
	if err := s.DeleteExternalNodes(nil, BrowserExternalName); err != nil {
		t.Fatal(err)
	}
	if got, _ := s.GetNodeByUUID(BrowserShelfUUID); got != nil {
		t.Error("backend shelf survived full wipe")
	}
	if got, _ := s.GetNode(local.ID); got == nil {
		t.Error("unrelated node deleted")
	}
}

func TestWipeEverythingRetainsSpecialShelves(t *testing.T) {
	s := openTest(t)

	addNode(t, s, Node{ParentID: DefaultShelfID, Name: "doomed", Type: NodeBookmark})
	cloudShelf, err := s.AddNode(Node{UUID: CloudShelfUUID, Name: CloudShelfName, Type: NodeShelf,
		External: CloudExternalName}, AddOptions{KeepUUID: true})
	if err != nil {
		t.Fatal(err)
	}
	inCloud, err := s.AddNode(Node{ParentID: cloudShelf.ID, Name: "synced", Type: NodeBookmark,
		External: CloudExternalName, ExternalID: "c1"}, AddOptions{})
	if err != nil {
		t.Fatal(err)
	}

	if err := s.WipeEverything(); err != nil {
		t.Fatal(err)
	}

	if got, _ := s.GetNode(DefaultShelfID); got == nil {
		t.Error("default shelf wiped")
	}
	if got, _ := s.GetNode(inCloud.ID); got == nil {
		t.Error("cloud subtree wiped")
	}
	if out, _ := s.QueryNodes(nil, QueryOptions{Search: "doomed"}); len(out) != 0 {
		t.Error("regular node survived wipe")
	}
}

func TestComputePathRootFirst(t *testing.T) {
	s := openTest(t)

	folder := addNode(t, s, Node{ParentID: DefaultShelfID, Name: "f", Type: NodeFolder})
	leaf := addNode(t, s, Node{ParentID: folder.ID, Name: "leaf", Type: NodeBookmark})

	path, err := s.ComputePath(leaf.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(path) != 3 {
		t.Fatalf("path = %d nodes, want 3", len(path))
	}
	if path[0].ID != DefaultShelfID || path[2].ID != leaf.ID {
		t.Errorf("path order wrong: %v", path)
	}
}
