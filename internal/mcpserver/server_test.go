package mcpserver

import (
	"context"
	"encoding/base64"
	"strings"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/starford/othala/internal/bookmarks"
	"github.com/starford/othala/internal/storage"
	"github.com/starford/othala/internal/testutil"
)

func testServer(t *testing.T) (*Server, *bookmarks.Manager) {
	t.Helper()
	manager := testutil.TestManager(t)
	return New(manager), manager
}

func testBookmark(parentID int64, name, uri string) storage.Node {
	return storage.Node{
		ParentID: parentID,
		Name:     name,
		URI:      uri,
		Type:     storage.NodeBookmark,
	}
}

func callTool(t *testing.T, srv *Server, name string, args map[string]interface{}) *mcp.CallToolResult {
	t.Helper()
	ctx := context.Background()
	req := mcp.CallToolRequest{}
	req.Method = "tools/call"
	req.Params.Name = name
	req.Params.Arguments = args

	// mcp-go doesn't expose a direct "call tool" test helper, so we call
	// the handler functions directly.
	var result *mcp.CallToolResult
	var err error

	switch name {
	case "search_bookmarks":
		result, err = srv.searchBookmarks(ctx, req)
	case "query_nodes":
		result, err = srv.queryNodes(ctx, req)
	case "add_bookmark":
		result, err = srv.addBookmark(ctx, req)
	case "add_folder":
		result, err = srv.addFolder(ctx, req)
	case "list_shelves":
		result, err = srv.listShelves(ctx, req)
	case "read_notes":
		result, err = srv.readNotes(ctx, req)
	case "read_archive":
		result, err = srv.readArchive(ctx, req)
	case "attach_archive":
		result, err = srv.attachArchive(ctx, req)
	case "get_bookmark_contract":
		result, err = srv.getBookmarkContract(ctx, req)
	default:
		t.Fatalf("unknown tool: %s", name)
	}

	if err != nil {
		t.Fatalf("tool %s error: %v", name, err)
	}
	return result
}

func resultText(r *mcp.CallToolResult) string {
	if len(r.Content) > 0 {
		if tc, ok := r.Content[0].(mcp.TextContent); ok {
			return tc.Text
		}
	}
	return ""
}

func TestAddBookmarkAndQuery(t *testing.T) {
	srv, _ := testServer(t)

	r := callTool(t, srv, "add_bookmark", map[string]interface{}{
		"path": "stuff/reading",
		"name": "Example",
		"uri":  "http://example.com/",
	})
	if r.IsError {
		t.Fatalf("add_bookmark failed: %s", resultText(r))
	}
	if !strings.HasPrefix(resultText(r), "created: Example") {
		t.Errorf("add result = %q", resultText(r))
	}

	r = callTool(t, srv, "query_nodes", map[string]interface{}{
		"path": "stuff/reading",
	})
	if r.IsError {
		t.Fatalf("query_nodes failed: %s", resultText(r))
	}
	if !strings.Contains(resultText(r), "http://example.com/") {
		t.Errorf("query result missing bookmark: %s", resultText(r))
	}
}

func TestAddFolderCreatesChain(t *testing.T) {
	srv, manager := testServer(t)

	r := callTool(t, srv, "add_folder", map[string]interface{}{
		"path": "work/projects/othala",
	})
	if r.IsError {
		t.Fatalf("add_folder failed: %s", resultText(r))
	}

	folder, err := manager.FolderByPath("work/projects/othala")
	if err != nil {
		t.Fatal(err)
	}
	if folder == nil {
		t.Fatal("folder chain was not created")
	}
}

func TestListShelves(t *testing.T) {
	srv, _ := testServer(t)

	r := callTool(t, srv, "list_shelves", map[string]interface{}{})
	if !strings.Contains(resultText(r), "default") {
		t.Errorf("shelves = %q, want default listed", resultText(r))
	}
}

func TestReadNotesMissingNode(t *testing.T) {
	srv, _ := testServer(t)

	r := callTool(t, srv, "read_notes", map[string]interface{}{"uuid": "nope"})
	if !r.IsError {
		t.Error("expected error for unknown uuid")
	}
}

func TestAttachArchiveDataURI(t *testing.T) {
	srv, manager := testServer(t)

	parent, err := manager.GetOrCreateFolderByPath(context.Background(), "stuff")
	if err != nil {
		t.Fatal(err)
	}
	created, err := manager.AddBookmark(context.Background(), testBookmark(parent.ID, "Page", "http://example.com/page"))
	if err != nil {
		t.Fatal(err)
	}

	html := "<html><body>ravens remember faces</body></html>"
	uri := "data:text/html;base64," + base64.StdEncoding.EncodeToString([]byte(html))
	r := callTool(t, srv, "attach_archive", map[string]interface{}{
		"uuid": created.UUID,
		"url":  uri,
	})
	if r.IsError {
		t.Fatalf("attach_archive failed: %s", resultText(r))
	}
	if !strings.Contains(resultText(r), `"indexed":true`) {
		t.Errorf("capture result = %q, want indexed", resultText(r))
	}

	r = callTool(t, srv, "search_bookmarks", map[string]interface{}{
		"query": "ravens faces",
	})
	if !strings.Contains(resultText(r), created.UUID) {
		t.Errorf("search did not find archived page: %s", resultText(r))
	}
}

func TestReadArchive(t *testing.T) {
	srv, manager := testServer(t)

	parent, err := manager.GetOrCreateFolderByPath(context.Background(), "stuff")
	if err != nil {
		t.Fatal(err)
	}
	created, err := manager.AddBookmark(context.Background(), testBookmark(parent.ID, "Page", "http://example.com/page"))
	if err != nil {
		t.Fatal(err)
	}

	r := callTool(t, srv, "read_archive", map[string]interface{}{"uuid": created.UUID})
	if r.IsError || resultText(r) != "no archive stored" {
		t.Fatalf("empty archive = %q", resultText(r))
	}

	html := "<html><body>stored copy</body></html>"
	if err := manager.StoreArchive(context.Background(), created.ID, []byte(html), "text/html", 0); err != nil {
		t.Fatal(err)
	}
	r = callTool(t, srv, "read_archive", map[string]interface{}{"uuid": created.UUID})
	if resultText(r) != html {
		t.Errorf("archive text = %q", resultText(r))
	}

	if err := manager.StoreArchive(context.Background(), created.ID, []byte{0x1f, 0x8b}, "application/gzip", 2); err != nil {
		t.Fatal(err)
	}
	r = callTool(t, srv, "read_archive", map[string]interface{}{"uuid": created.UUID})
	if got := resultText(r); !strings.Contains(got, "binary archive") || !strings.Contains(got, "2 bytes") {
		t.Errorf("binary archive summary = %q", got)
	}
}

func TestAttachArchiveRejectsBadScheme(t *testing.T) {
	srv, manager := testServer(t)

	parent, err := manager.GetOrCreateFolderByPath(context.Background(), "stuff")
	if err != nil {
		t.Fatal(err)
	}
	created, err := manager.AddBookmark(context.Background(), testBookmark(parent.ID, "Page", "http://example.com/"))
	if err != nil {
		t.Fatal(err)
	}

	r := callTool(t, srv, "attach_archive", map[string]interface{}{
		"uuid": created.UUID,
		"url":  "file:///etc/passwd",
	})
	if !r.IsError {
		t.Error("expected error for file:// scheme")
	}
}

func TestGetBookmarkContract(t *testing.T) {
	srv, _ := testServer(t)

	r := callTool(t, srv, "get_bookmark_contract", map[string]interface{}{})
	if !strings.Contains(resultText(r), "## Paths") {
		t.Error("contract text missing path section")
	}
}
