package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/starford/othala/internal/storage"
	"github.com/starford/othala/internal/testutil"
)

func testRouter(t *testing.T) http.Handler {
	t.Helper()
	h := NewHandler(testutil.TestManager(t), nil, nil, nil)
	return NewRouter(h, false, "", nil)
}

func doJSON(t *testing.T, router http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(data)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func decodeNode(t *testing.T, rec *httptest.ResponseRecorder) storage.Node {
	t.Helper()
	var n storage.Node
	if err := json.NewDecoder(rec.Body).Decode(&n); err != nil {
		t.Fatalf("decode node: %v", err)
	}
	return n
}

func decodeList(t *testing.T, rec *httptest.ResponseRecorder) NodeListResponse {
	t.Helper()
	var list NodeListResponse
	if err := json.NewDecoder(rec.Body).Decode(&list); err != nil {
		t.Fatalf("decode list: %v", err)
	}
	return list
}

func createBookmark(t *testing.T, router http.Handler, path, name, uri string) storage.Node {
	t.Helper()
	rec := doJSON(t, router, http.MethodPost, "/nodes/bookmark", CreateBookmarkRequest{
		ParentPath: path, Name: name, URI: uri,
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("create bookmark: %d: %s", rec.Code, rec.Body)
	}
	return decodeNode(t, rec)
}

func TestAuthDisabledPassesThrough(t *testing.T) {
	router := testRouter(t)
	if rec := doJSON(t, router, http.MethodGet, "/shelves", nil); rec.Code != http.StatusOK {
		t.Fatalf("got %d, want 200", rec.Code)
	}
}

func TestAuthEnabledRequiresBearerToken(t *testing.T) {
	h := NewHandler(testutil.TestManager(t), nil, nil, nil)
	router := NewRouter(h, true, "secret", nil)

	if rec := doJSON(t, router, http.MethodGet, "/shelves", nil); rec.Code != http.StatusUnauthorized {
		t.Fatalf("no header: got %d, want 401", rec.Code)
	}

	req := httptest.NewRequest(http.MethodGet, "/shelves", nil)
	req.Header.Set("Authorization", "Bearer wrong")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("wrong token: got %d, want 401", rec.Code)
	}

	req = httptest.NewRequest(http.MethodGet, "/shelves", nil)
	req.Header.Set("Authorization", "Bearer secret")
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("valid token: got %d, want 200", rec.Code)
	}
}

func TestCreateBookmarkAndGet(t *testing.T) {
	router := testRouter(t)
	created := createBookmark(t, router, "~/reading", "arxiv", "https://arxiv.org")
	if created.UUID == "" || created.Type != storage.NodeBookmark {
		t.Fatalf("created = %+v", created)
	}

	rec := doJSON(t, router, http.MethodGet, "/nodes/"+created.UUID, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("get: %d", rec.Code)
	}
	if got := decodeNode(t, rec); got.Name != "arxiv" || got.URI != "https://arxiv.org" {
		t.Fatalf("got %+v", got)
	}
}

func TestGetNodeUnknownUUID(t *testing.T) {
	router := testRouter(t)
	if rec := doJSON(t, router, http.MethodGet, "/nodes/no-such-uuid", nil); rec.Code != http.StatusNotFound {
		t.Fatalf("got %d, want 404", rec.Code)
	}
}

func TestCreateBookmarkValidation(t *testing.T) {
	router := testRouter(t)

	rec := doJSON(t, router, http.MethodPost, "/nodes/bookmark", CreateBookmarkRequest{ParentPath: "~", URI: "https://x"})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("missing name: got %d, want 400", rec.Code)
	}
	rec = doJSON(t, router, http.MethodPost, "/nodes/bookmark", CreateBookmarkRequest{Name: "x"})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("missing parent: got %d, want 400", rec.Code)
	}
}

func TestQueryNodesByPath(t *testing.T) {
	router := testRouter(t)
	createBookmark(t, router, "~/reading", "arxiv", "https://arxiv.org")
	createBookmark(t, router, "~/reading", "acm", "https://acm.org")

	rec := doJSON(t, router, http.MethodGet, "/nodes?path=~/reading", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("query: %d: %s", rec.Code, rec.Body)
	}
	list := decodeList(t, rec)
	if list.Total != 2 {
		t.Fatalf("total = %d, want 2", list.Total)
	}

	rec = doJSON(t, router, http.MethodGet, "/nodes?path=~/reading&search=arxiv", nil)
	list = decodeList(t, rec)
	if list.Total != 1 || list.Nodes[0].Name != "arxiv" {
		t.Fatalf("filtered = %+v", list.Nodes)
	}
}

func TestUpdateNodeRename(t *testing.T) {
	router := testRouter(t)
	created := createBookmark(t, router, "~", "old", "https://example.com")

	name := "new"
	rec := doJSON(t, router, http.MethodPut, "/nodes/"+created.UUID, UpdateNodeRequest{Name: &name})
	if rec.Code != http.StatusOK {
		t.Fatalf("update: %d: %s", rec.Code, rec.Body)
	}
	if got := decodeNode(t, rec); got.Name != "new" {
		t.Fatalf("Name = %q", got.Name)
	}
}

func TestUpdateNodePatchesOnlyPresentFields(t *testing.T) {
	router := testRouter(t)
	created := createBookmark(t, router, "~", "keep-uri", "https://example.com/page")

	name := "renamed"
	rec := doJSON(t, router, http.MethodPut, "/nodes/"+created.UUID, UpdateNodeRequest{Name: &name})
	if rec.Code != http.StatusOK {
		t.Fatalf("update: %d: %s", rec.Code, rec.Body)
	}
	got := decodeNode(t, rec)
	if got.Name != "renamed" {
		t.Fatalf("Name = %q", got.Name)
	}
	if got.URI != "https://example.com/page" {
		t.Fatalf("URI clobbered by absent field: %q", got.URI)
	}

	// An explicit empty string is still an update.
	empty := ""
	rec = doJSON(t, router, http.MethodPut, "/nodes/"+created.UUID, UpdateNodeRequest{Details: &empty})
	if rec.Code != http.StatusOK {
		t.Fatalf("update: %d: %s", rec.Code, rec.Body)
	}
	got = decodeNode(t, rec)
	if got.Name != "renamed" || got.URI != "https://example.com/page" {
		t.Fatalf("unrelated fields changed: %+v", got)
	}
}

func TestMoveRejectsCircularReference(t *testing.T) {
	router := testRouter(t)

	rec := doJSON(t, router, http.MethodPost, "/folders", CreateFolderRequest{Path: "~/outer/inner"})
	if rec.Code != http.StatusCreated {
		t.Fatalf("create folders: %d", rec.Code)
	}
	inner := decodeNode(t, rec)
	rec = doJSON(t, router, http.MethodGet, "/nodes?path=~&search=outer", nil)
	list := decodeList(t, rec)
	if list.Total != 1 {
		t.Fatalf("outer lookup = %+v", list)
	}
	outer := list.Nodes[0]

	rec = doJSON(t, router, http.MethodPost, "/nodes/move", MoveCopyRequest{
		UUIDs: []string{outer.UUID}, DestUUID: inner.UUID,
	})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("got %d, want 400", rec.Code)
	}
}

func TestMoveNodes(t *testing.T) {
	router := testRouter(t)
	mark := createBookmark(t, router, "~", "wanderer", "https://example.com")
	rec := doJSON(t, router, http.MethodPost, "/folders", CreateFolderRequest{Path: "~/dest"})
	dest := decodeNode(t, rec)

	rec = doJSON(t, router, http.MethodPost, "/nodes/move", MoveCopyRequest{
		UUIDs: []string{mark.UUID}, DestUUID: dest.UUID,
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("move: %d: %s", rec.Code, rec.Body)
	}
	moved := decodeList(t, rec)
	if moved.Total != 1 || moved.Nodes[0].ParentID != dest.ID {
		t.Fatalf("moved = %+v", moved.Nodes)
	}
}

func TestDeleteNodes(t *testing.T) {
	router := testRouter(t)
	mark := createBookmark(t, router, "~", "doomed", "https://example.com")

	rec := doJSON(t, router, http.MethodPost, "/nodes/delete", DeleteNodesRequest{UUIDs: []string{mark.UUID}})
	if rec.Code != http.StatusNoContent {
		t.Fatalf("delete: %d", rec.Code)
	}
	if rec := doJSON(t, router, http.MethodGet, "/nodes/"+mark.UUID, nil); rec.Code != http.StatusNotFound {
		t.Fatalf("after delete: %d, want 404", rec.Code)
	}
}

func TestShelvesEndpoint(t *testing.T) {
	router := testRouter(t)

	rec := doJSON(t, router, http.MethodPost, "/shelves", CreateShelfRequest{Name: "research"})
	if rec.Code != http.StatusCreated {
		t.Fatalf("create shelf: %d", rec.Code)
	}
	rec = doJSON(t, router, http.MethodGet, "/shelves", nil)
	list := decodeList(t, rec)
	if list.Total != 2 {
		t.Fatalf("total = %d, want default plus research", list.Total)
	}
}

func TestArchiveRoundTripAndSearch(t *testing.T) {
	router := testRouter(t)
	mark := createBookmark(t, router, "~", "page", "https://example.com")

	req := httptest.NewRequest(http.MethodPut, "/nodes/"+mark.UUID+"/archive",
		strings.NewReader("<html><body>rare orchid species</body></html>"))
	req.Header.Set("Content-Type", "text/html")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("put archive: %d: %s", rec.Code, rec.Body)
	}

	rec = doJSON(t, router, http.MethodGet, "/nodes/"+mark.UUID+"/archive", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("get archive: %d", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "text/html" {
		t.Fatalf("Content-Type = %q", ct)
	}
	if !strings.Contains(rec.Body.String(), "orchid") {
		t.Fatalf("payload = %q", rec.Body)
	}

	rec = doJSON(t, router, http.MethodGet, "/search?q=orchid+species", nil)
	list := decodeList(t, rec)
	if list.Total != 1 || list.Nodes[0].UUID != mark.UUID {
		t.Fatalf("search = %+v", list)
	}
}

func putArchive(t *testing.T, router http.Handler, uuid, payload string) {
	t.Helper()
	req := httptest.NewRequest(http.MethodPut, "/nodes/"+uuid+"/archive", strings.NewReader(payload))
	req.Header.Set("Content-Type", "text/html")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("put archive: %d: %s", rec.Code, rec.Body)
	}
}

func TestArchivePatchRewritesPayloadAndIndex(t *testing.T) {
	router := testRouter(t)
	mark := createBookmark(t, router, "~", "page", "https://example.com")

	// a rewrite needs an existing payload
	req := httptest.NewRequest(http.MethodPatch, "/nodes/"+mark.UUID+"/archive", strings.NewReader("<p>draft</p>"))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("patch without archive: %d", rec.Code)
	}

	putArchive(t, router, mark.UUID, "<html><body>rare orchid species</body></html>")

	req = httptest.NewRequest(http.MethodPatch, "/nodes/"+mark.UUID+"/archive",
		strings.NewReader("<html><body>alpine moss survey</body></html>"))
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("patch archive: %d: %s", rec.Code, rec.Body)
	}

	rec = doJSON(t, router, http.MethodGet, "/nodes/"+mark.UUID+"/archive", nil)
	if !strings.Contains(rec.Body.String(), "moss") {
		t.Fatalf("payload = %q", rec.Body)
	}
	if list := decodeList(t, doJSON(t, router, http.MethodGet, "/search?q=orchid", nil)); list.Total != 0 {
		t.Fatalf("stale index entry: %+v", list)
	}
	if list := decodeList(t, doJSON(t, router, http.MethodGet, "/search?q=moss", nil)); list.Total != 1 {
		t.Fatalf("rewritten payload not indexed: %+v", list)
	}
}

func TestArchiveDeleteDropsPayloadAndIndex(t *testing.T) {
	router := testRouter(t)
	mark := createBookmark(t, router, "~", "page", "https://example.com")
	putArchive(t, router, mark.UUID, "<html><body>rare orchid species</body></html>")

	rec := doJSON(t, router, http.MethodDelete, "/nodes/"+mark.UUID+"/archive", nil)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("delete archive: %d: %s", rec.Code, rec.Body)
	}
	if rec := doJSON(t, router, http.MethodGet, "/nodes/"+mark.UUID+"/archive", nil); rec.Code != http.StatusNotFound {
		t.Fatalf("get after delete: %d", rec.Code)
	}
	if list := decodeList(t, doJSON(t, router, http.MethodGet, "/search?q=orchid", nil)); list.Total != 0 {
		t.Fatalf("index survived delete: %+v", list)
	}
}

func TestCreateNotesNode(t *testing.T) {
	router := testRouter(t)

	rec := doJSON(t, router, http.MethodPost, "/folders", CreateFolderRequest{Path: "~/journal"})
	folder := decodeNode(t, rec)

	rec = doJSON(t, router, http.MethodPost, "/nodes/notes", CreateNotesRequest{ParentUUID: folder.UUID, Name: "field notes"})
	if rec.Code != http.StatusCreated {
		t.Fatalf("create notes: %d: %s", rec.Code, rec.Body)
	}
	notes := decodeNode(t, rec)
	if notes.Type != storage.NodeNotes || notes.Name != "field notes" {
		t.Fatalf("notes node = %+v", notes)
	}

	rec = doJSON(t, router, http.MethodPut, "/nodes/"+notes.UUID+"/notes", NotesRequest{Content: "morning frost", Format: "text"})
	if rec.Code != http.StatusNoContent {
		t.Fatalf("put notes content: %d", rec.Code)
	}
	if list := decodeList(t, doJSON(t, router, http.MethodGet, "/search?q=frost&kind=notes", nil)); list.Total != 1 {
		t.Fatalf("notes search = %+v", list)
	}

	if rec := doJSON(t, router, http.MethodPost, "/nodes/notes", CreateNotesRequest{Name: "orphan"}); rec.Code != http.StatusBadRequest {
		t.Fatalf("missing parent: %d", rec.Code)
	}
	if rec := doJSON(t, router, http.MethodPost, "/nodes/notes", CreateNotesRequest{ParentUUID: "no-such", Name: "x"}); rec.Code != http.StatusNotFound {
		t.Fatalf("unknown parent: %d", rec.Code)
	}
}

func TestDeleteChildrenKeepsContainer(t *testing.T) {
	router := testRouter(t)

	rec := doJSON(t, router, http.MethodPost, "/folders", CreateFolderRequest{Path: "~/inbox"})
	folder := decodeNode(t, rec)
	createBookmark(t, router, "~/inbox", "one", "https://example.com/1")
	createBookmark(t, router, "~/inbox", "two", "https://example.com/2")

	rec = doJSON(t, router, http.MethodDelete, "/nodes/"+folder.UUID+"/children", nil)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("delete children: %d: %s", rec.Code, rec.Body)
	}

	if rec := doJSON(t, router, http.MethodGet, "/nodes/"+folder.UUID, nil); rec.Code != http.StatusOK {
		t.Fatalf("container removed: %d", rec.Code)
	}
	if list := decodeList(t, doJSON(t, router, http.MethodGet, "/nodes?path=~/inbox", nil)); list.Total != 0 {
		t.Fatalf("children survived: %+v", list.Nodes)
	}
}

func TestFoldersEndpoint(t *testing.T) {
	router := testRouter(t)

	rec := doJSON(t, router, http.MethodPost, "/folders", CreateFolderRequest{Path: "~/outer/inner"})
	if rec.Code != http.StatusCreated {
		t.Fatalf("create folders: %d", rec.Code)
	}

	list := decodeList(t, doJSON(t, router, http.MethodGet, "/folders", nil))
	names := make(map[string]bool, list.Total)
	for _, n := range list.Nodes {
		if n.Type != storage.NodeShelf && n.Type != storage.NodeFolder {
			t.Fatalf("non-container in folder list: %+v", n)
		}
		names[n.Name] = true
	}
	if !names[storage.DefaultShelfName] || !names["outer"] || !names["inner"] {
		t.Fatalf("folder list = %v", names)
	}
}

func TestNodePathEndpoint(t *testing.T) {
	router := testRouter(t)

	rec := doJSON(t, router, http.MethodPost, "/folders", CreateFolderRequest{Path: "~/outer/inner"})
	inner := decodeNode(t, rec)
	mark := createBookmark(t, router, "~/outer/inner", "deep", "https://example.com")

	list := decodeList(t, doJSON(t, router, http.MethodGet, "/nodes/"+mark.UUID+"/path", nil))
	if list.Total != 4 {
		t.Fatalf("path length = %d: %+v", list.Total, list.Nodes)
	}
	if list.Nodes[0].Type != storage.NodeShelf || list.Nodes[2].UUID != inner.UUID || list.Nodes[3].UUID != mark.UUID {
		t.Fatalf("path = %+v", list.Nodes)
	}

	if rec := doJSON(t, router, http.MethodGet, "/nodes/no-such/path", nil); rec.Code != http.StatusNotFound {
		t.Fatalf("unknown uuid: %d", rec.Code)
	}
}

func TestSearchRequiresQuery(t *testing.T) {
	router := testRouter(t)
	if rec := doJSON(t, router, http.MethodGet, "/search", nil); rec.Code != http.StatusBadRequest {
		t.Fatalf("got %d, want 400", rec.Code)
	}
	if rec := doJSON(t, router, http.MethodGet, "/search?q=x&kind=bogus", nil); rec.Code != http.StatusBadRequest {
		t.Fatalf("bad kind: got %d, want 400", rec.Code)
	}
}

func TestNotesAndCommentsRoundTrip(t *testing.T) {
	router := testRouter(t)
	mark := createBookmark(t, router, "~", "annotated", "https://example.com")

	rec := doJSON(t, router, http.MethodPut, "/nodes/"+mark.UUID+"/notes", NotesRequest{Content: "water weekly", Format: "text"})
	if rec.Code != http.StatusNoContent {
		t.Fatalf("put notes: %d: %s", rec.Code, rec.Body)
	}
	rec = doJSON(t, router, http.MethodGet, "/nodes/"+mark.UUID+"/notes", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("get notes: %d", rec.Code)
	}
	var notes storage.Notes
	if err := json.NewDecoder(rec.Body).Decode(&notes); err != nil || notes.Content != "water weekly" {
		t.Fatalf("notes = %+v, err=%v", notes, err)
	}

	rec = doJSON(t, router, http.MethodPut, "/nodes/"+mark.UUID+"/comments", CommentsRequest{Comments: "from the phone"})
	if rec.Code != http.StatusNoContent {
		t.Fatalf("put comments: %d", rec.Code)
	}
	rec = doJSON(t, router, http.MethodGet, "/nodes/"+mark.UUID+"/comments", nil)
	var comments CommentsRequest
	if err := json.NewDecoder(rec.Body).Decode(&comments); err != nil || comments.Comments != "from the phone" {
		t.Fatalf("comments = %+v, err=%v", comments, err)
	}

	// notes content is searchable under its own index
	rec = doJSON(t, router, http.MethodGet, "/search?q=weekly&kind=notes", nil)
	if list := decodeList(t, rec); list.Total != 1 {
		t.Fatalf("notes search = %+v", list)
	}
}

func TestTodoEndpoints(t *testing.T) {
	router := testRouter(t)
	mark := createBookmark(t, router, "~", "chore", "https://example.com")

	rec := doJSON(t, router, http.MethodPost, "/todo", TodoRequest{UUIDs: []string{mark.UUID}, State: int(storage.TodoTodo)})
	if rec.Code != http.StatusNoContent {
		t.Fatalf("set todo: %d", rec.Code)
	}
	rec = doJSON(t, router, http.MethodGet, "/todo", nil)
	if list := decodeList(t, rec); list.Total != 1 || list.Nodes[0].UUID != mark.UUID {
		t.Fatalf("todo list = %+v", list)
	}

	rec = doJSON(t, router, http.MethodPost, "/todo", TodoRequest{UUIDs: []string{mark.UUID}, State: int(storage.TodoDone)})
	if rec.Code != http.StatusNoContent {
		t.Fatalf("set done: %d", rec.Code)
	}
	rec = doJSON(t, router, http.MethodGet, "/done", nil)
	if list := decodeList(t, rec); list.Total != 1 {
		t.Fatalf("done list = %+v", list)
	}
	rec = doJSON(t, router, http.MethodGet, "/todo", nil)
	if list := decodeList(t, rec); list.Total != 0 {
		t.Fatalf("todo list after done = %+v", list)
	}
}

func TestExportImportEndpoints(t *testing.T) {
	router := testRouter(t)
	doJSON(t, router, http.MethodPost, "/shelves", CreateShelfRequest{Name: "trip"})
	createBookmark(t, router, "trip/maps", "osm", "https://osm.org")

	rec := doJSON(t, router, http.MethodGet, "/export?path=trip", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("export: %d", rec.Code)
	}
	stream := rec.Body.Bytes()
	if !bytes.Contains(stream, []byte("osm")) {
		t.Fatalf("stream missing bookmark: %s", stream)
	}

	req := httptest.NewRequest(http.MethodPost, "/import", bytes.NewReader(stream))
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusCreated {
		t.Fatalf("import: %d: %s", rec.Code, rec.Body)
	}
	if root := decodeNode(t, rec); root.Name != "trip (1)" {
		t.Fatalf("imported root = %q", root.Name)
	}
}

func TestImportRejectsUnsupportedVersion(t *testing.T) {
	router := testRouter(t)
	stream := `{"version":9,"name":"x"}` + "\n"
	req := httptest.NewRequest(http.MethodPost, "/import", strings.NewReader(stream))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("got %d, want 400", rec.Code)
	}
}

type stubSyncer struct {
	calls int
	err   error
}

func (s *stubSyncer) Reconcile(ctx context.Context) error {
	s.calls++
	return s.err
}

func TestSyncEndpoints(t *testing.T) {
	manager := testutil.TestManager(t)

	// not configured
	router := NewRouter(NewHandler(manager, nil, nil, nil), false, "", nil)
	if rec := doJSON(t, router, http.MethodPost, "/sync/browser", nil); rec.Code != http.StatusNotFound {
		t.Fatalf("unconfigured: got %d, want 404", rec.Code)
	}

	// configured and healthy
	browser := &stubSyncer{}
	router = NewRouter(NewHandler(manager, nil, browser, nil), false, "", nil)
	if rec := doJSON(t, router, http.MethodPost, "/sync/browser", nil); rec.Code != http.StatusNoContent {
		t.Fatalf("healthy: got %d, want 204", rec.Code)
	}
	if browser.calls != 1 {
		t.Fatalf("calls = %d", browser.calls)
	}

	// configured and failing
	cloud := &stubSyncer{err: errors.New("remote unreachable")}
	router = NewRouter(NewHandler(manager, nil, nil, cloud), false, "", nil)
	if rec := doJSON(t, router, http.MethodPost, "/sync/cloud", nil); rec.Code != http.StatusBadGateway {
		t.Fatalf("failing: got %d, want 502", rec.Code)
	}
}

func TestTagsEndpoint(t *testing.T) {
	router := testRouter(t)
	// the tag dictionary catches up one name per write
	for _, name := range []string{"first", "second"} {
		rec := doJSON(t, router, http.MethodPost, "/nodes/bookmark", CreateBookmarkRequest{
			ParentPath: "~", Name: name, URI: "https://example.com", Tags: "go, sqlite",
		})
		if rec.Code != http.StatusCreated {
			t.Fatalf("create %s: %d", name, rec.Code)
		}
	}

	rec := doJSON(t, router, http.MethodGet, "/tags", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("tags: %d", rec.Code)
	}
	body := rec.Body.String()
	// the dictionary holds the uppercased form tag parsing produces
	for _, tag := range []string{"GO", "SQLITE"} {
		if !strings.Contains(body, fmt.Sprintf("%q", tag)) {
			t.Fatalf("tag %q missing from %s", tag, body)
		}
	}
}
