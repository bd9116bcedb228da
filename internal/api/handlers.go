package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/starford/othala/internal/apperr"
	"github.com/starford/othala/internal/bookmarks"
	"github.com/starford/othala/internal/exchange"
	"github.com/starford/othala/internal/sse"
	"github.com/starford/othala/internal/storage"
)

// Syncer triggers an external backend reconciliation pass.
type Syncer interface {
	Reconcile(ctx context.Context) error
}

// Handler holds API route handlers.
type Handler struct {
	manager   *bookmarks.Manager
	exchanger *exchange.Exchanger
	broker    *sse.Broker
	browser   Syncer
	cloud     Syncer
}

// NewHandler creates a new Handler. broker, browser and cloud may be
// nil; the matching endpoints then degrade gracefully.
func NewHandler(manager *bookmarks.Manager, broker *sse.Broker, browser, cloud Syncer) *Handler {
	return &Handler{
		manager:   manager,
		exchanger: exchange.New(manager),
		broker:    broker,
		browser:   browser,
		cloud:     cloud,
	}
}

// notifyNode publishes a node change to connected clients.
func (h *Handler) notifyNode(kind, uuid string) {
	if h.broker != nil {
		h.broker.PublishNodeEvent(kind, uuid)
	}
}

// nodeByUUID resolves the {uuid} route parameter, writing the error
// response itself when resolution fails.
func (h *Handler) nodeByUUID(w http.ResponseWriter, r *http.Request) *storage.Node {
	uuid := chi.URLParam(r, "uuid")
	if uuid == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("uuid is required"))
		return nil
	}
	node, err := h.manager.Store().GetNodeByUUID(uuid)
	if err != nil {
		slog.Error("resolve node failed", slog.String("uuid", uuid), slog.String("error", err.Error()))
		writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
		return nil
	}
	if node == nil {
		writeJSON(w, http.StatusNotFound, errorBody("not found"))
		return nil
	}
	return node
}

// nodesByUUIDs resolves a uuid batch to ids, skipping unknown uuids.
func (h *Handler) nodesByUUIDs(uuids []string) ([]int64, error) {
	var ids []int64
	for _, uuid := range uuids {
		node, err := h.manager.Store().GetNodeByUUID(uuid)
		if err != nil {
			return nil, err
		}
		if node != nil {
			ids = append(ids, node.ID)
		}
	}
	return ids, nil
}

// QueryNodes handles GET /nodes.
func (h *Handler) QueryNodes(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	opt := storage.QueryOptions{
		Search: q.Get("search"),
		Path:   q.Get("path"),
		Depth:  q.Get("depth"),
		Order:  q.Get("order"),
	}
	opt.Limit, _ = strconv.Atoi(q.Get("limit"))
	if tags := q.Get("tags"); tags != "" {
		opt.Tags = storage.SplitTags(tags)
	}
	for _, name := range strings.Split(q.Get("types"), ",") {
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		for t, tn := range storage.NodeTypeNames {
			if tn == name {
				opt.Types = append(opt.Types, t)
			}
		}
	}

	var group *storage.Node
	if path := opt.Path; path != "" &&
		path != storage.TodoShelfName && path != storage.DoneShelfName {
		folder, err := h.manager.FolderByPath(path)
		if err != nil {
			slog.Error("query nodes failed", slog.String("error", err.Error()))
			writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
			return
		}
		group = folder
		if opt.Depth == "" {
			opt.Depth = storage.DepthGroup
		}
	}

	nodes, err := h.manager.Store().QueryNodes(group, opt)
	if err != nil {
		slog.Error("query nodes failed", slog.String("error", err.Error()))
		writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
		return
	}
	if nodes == nil {
		nodes = []storage.Node{}
	}
	writeJSON(w, http.StatusOK, NodeListResponse{Nodes: nodes, Total: len(nodes)})
}

// GetNode handles GET /nodes/{uuid}.
func (h *Handler) GetNode(w http.ResponseWriter, r *http.Request) {
	node := h.nodeByUUID(w, r)
	if node == nil {
		return
	}
	writeJSON(w, http.StatusOK, node)
}

// GetNodePath handles GET /nodes/{uuid}/path: the chain of containers
// from the shelf down to the node itself.
func (h *Handler) GetNodePath(w http.ResponseWriter, r *http.Request) {
	uuid := chi.URLParam(r, "uuid")
	path, err := h.manager.Store().ComputePathByUUID(uuid)
	if err != nil {
		slog.Error("compute path failed", slog.String("uuid", uuid), slog.String("error", err.Error()))
		writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
		return
	}
	if path == nil {
		writeJSON(w, http.StatusNotFound, errorBody("not found"))
		return
	}
	writeJSON(w, http.StatusOK, NodeListResponse{Nodes: path, Total: len(path)})
}

// CreateBookmark handles POST /nodes/bookmark.
func (h *Handler) CreateBookmark(w http.ResponseWriter, r *http.Request) {
	var req CreateBookmarkRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid JSON body"))
		return
	}
	if req.Name == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("name is required"))
		return
	}

	var parent *storage.Node
	var err error
	switch {
	case req.ParentUUID != "":
		parent, err = h.manager.Store().GetNodeByUUID(req.ParentUUID)
	case req.ParentPath != "":
		parent, err = h.manager.GetOrCreateFolderByPath(r.Context(), req.ParentPath)
	default:
		writeJSON(w, http.StatusBadRequest, errorBody("parent_path or parent_uuid is required"))
		return
	}
	if err != nil {
		slog.Error("create bookmark failed", slog.String("error", err.Error()))
		writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
		return
	}
	if parent == nil {
		writeJSON(w, http.StatusNotFound, errorBody("parent not found"))
		return
	}

	node := storage.Node{
		ParentID:  parent.ID,
		Name:      req.Name,
		URI:       req.URI,
		Tags:      req.Tags,
		Details:   req.Details,
		TodoState: storage.TodoState(req.TodoState),
		Type:      storage.NodeBookmark,
	}
	if req.Type == "archive" {
		node.Type = storage.NodeArchive
	}
	created, err := h.manager.AddBookmark(r.Context(), node)
	if err != nil {
		if errors.Is(err, apperr.ErrNoParent) || errors.Is(err, apperr.ErrNotFound) {
			writeJSON(w, http.StatusBadRequest, errorBody(err.Error()))
			return
		}
		slog.Error("create bookmark failed", slog.String("error", err.Error()))
		writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
		return
	}
	h.notifyNode("created", created.UUID)
	writeJSON(w, http.StatusCreated, created)
}

// CreateFolder handles POST /folders.
func (h *Handler) CreateFolder(w http.ResponseWriter, r *http.Request) {
	var req CreateFolderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Path == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("path is required"))
		return
	}
	folder, err := h.manager.GetOrCreateFolderByPath(r.Context(), req.Path)
	if err != nil {
		slog.Error("create folder failed", slog.String("path", req.Path), slog.String("error", err.Error()))
		writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
		return
	}
	h.notifyNode("created", folder.UUID)
	writeJSON(w, http.StatusCreated, folder)
}

// ListFolders handles GET /folders: every container node, shelves
// included, in position order.
func (h *Handler) ListFolders(w http.ResponseWriter, r *http.Request) {
	groups, err := h.manager.Store().QueryGroups(true)
	if err != nil {
		slog.Error("list folders failed", slog.String("error", err.Error()))
		writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
		return
	}
	if groups == nil {
		groups = []storage.Node{}
	}
	writeJSON(w, http.StatusOK, NodeListResponse{Nodes: groups, Total: len(groups)})
}

// ListShelves handles GET /shelves.
func (h *Handler) ListShelves(w http.ResponseWriter, r *http.Request) {
	shelves, err := h.manager.Store().QueryShelves()
	if err != nil {
		slog.Error("list shelves failed", slog.String("error", err.Error()))
		writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
		return
	}
	if shelves == nil {
		shelves = []storage.Node{}
	}
	writeJSON(w, http.StatusOK, NodeListResponse{Nodes: shelves, Total: len(shelves)})
}

// CreateShelf handles POST /shelves.
func (h *Handler) CreateShelf(w http.ResponseWriter, r *http.Request) {
	var req CreateShelfRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Name == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("name is required"))
		return
	}
	shelf, err := h.manager.AddShelf(r.Context(), req.Name)
	if err != nil {
		slog.Error("create shelf failed", slog.String("name", req.Name), slog.String("error", err.Error()))
		writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
		return
	}
	h.notifyNode("created", shelf.UUID)
	writeJSON(w, http.StatusCreated, shelf)
}

// CreateSeparator handles POST /nodes/separator.
func (h *Handler) CreateSeparator(w http.ResponseWriter, r *http.Request) {
	var req CreateSeparatorRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.ParentUUID == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("parent_uuid is required"))
		return
	}
	parent, err := h.manager.Store().GetNodeByUUID(req.ParentUUID)
	if err != nil {
		slog.Error("create separator failed", slog.String("error", err.Error()))
		writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
		return
	}
	if parent == nil {
		writeJSON(w, http.StatusNotFound, errorBody("parent not found"))
		return
	}
	sep, err := h.manager.AddSeparator(r.Context(), parent.ID)
	if err != nil {
		slog.Error("create separator failed", slog.String("error", err.Error()))
		writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
		return
	}
	h.notifyNode("created", sep.UUID)
	writeJSON(w, http.StatusCreated, sep)
}

// CreateNotes handles POST /nodes/notes.
func (h *Handler) CreateNotes(w http.ResponseWriter, r *http.Request) {
	var req CreateNotesRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.ParentUUID == "" || req.Name == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("parent_uuid and name are required"))
		return
	}
	parent, err := h.manager.Store().GetNodeByUUID(req.ParentUUID)
	if err != nil {
		slog.Error("create notes failed", slog.String("error", err.Error()))
		writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
		return
	}
	if parent == nil {
		writeJSON(w, http.StatusNotFound, errorBody("parent not found"))
		return
	}
	notes, err := h.manager.AddNotesNode(r.Context(), parent.ID, req.Name)
	if err != nil {
		slog.Error("create notes failed", slog.String("error", err.Error()))
		writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
		return
	}
	h.notifyNode("created", notes.UUID)
	writeJSON(w, http.StatusCreated, notes)
}

// UpdateNode handles PUT /nodes/{uuid}.
func (h *Handler) UpdateNode(w http.ResponseWriter, r *http.Request) {
	node := h.nodeByUUID(w, r)
	if node == nil {
		return
	}
	var req UpdateNodeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid JSON body"))
		return
	}

	if req.Name != nil {
		node.Name = *req.Name
	}
	if req.URI != nil {
		node.URI = *req.URI
	}
	if req.Tags != nil {
		node.Tags = *req.Tags
	}
	if req.Details != nil {
		node.Details = *req.Details
	}
	if req.TodoState != nil {
		node.TodoState = storage.TodoState(*req.TodoState)
	}
	if req.TodoDate != nil {
		node.TodoDate = *req.TodoDate
	}

	updated, err := h.manager.Update(r.Context(), *node)
	if err != nil {
		slog.Error("update node failed", slog.String("uuid", node.UUID), slog.String("error", err.Error()))
		writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
		return
	}
	h.notifyNode("updated", updated.UUID)
	writeJSON(w, http.StatusOK, updated)
}

// DeleteNodes handles POST /nodes/delete.
func (h *Handler) DeleteNodes(w http.ResponseWriter, r *http.Request) {
	var req DeleteNodesRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || len(req.UUIDs) == 0 {
		writeJSON(w, http.StatusBadRequest, errorBody("uuids are required"))
		return
	}
	ids, err := h.nodesByUUIDs(req.UUIDs)
	if err != nil {
		slog.Error("delete nodes failed", slog.String("error", err.Error()))
		writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
		return
	}
	if err := h.manager.Delete(r.Context(), ids); err != nil {
		slog.Error("delete nodes failed", slog.String("error", err.Error()))
		writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
		return
	}
	for _, uuid := range req.UUIDs {
		h.notifyNode("deleted", uuid)
	}
	w.WriteHeader(http.StatusNoContent)
}

// DeleteNodeChildren handles DELETE /nodes/{uuid}/children: empties a
// container without removing the container itself.
func (h *Handler) DeleteNodeChildren(w http.ResponseWriter, r *http.Request) {
	node := h.nodeByUUID(w, r)
	if node == nil {
		return
	}
	if err := h.manager.DeleteChildren(r.Context(), node.ID); err != nil {
		slog.Error("delete children failed", slog.String("uuid", node.UUID), slog.String("error", err.Error()))
		writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
		return
	}
	h.notifyNode("updated", node.UUID)
	w.WriteHeader(http.StatusNoContent)
}

// MoveNodes handles POST /nodes/move.
func (h *Handler) MoveNodes(w http.ResponseWriter, r *http.Request) {
	h.moveOrCopy(w, r, false)
}

// CopyNodes handles POST /nodes/copy.
func (h *Handler) CopyNodes(w http.ResponseWriter, r *http.Request) {
	h.moveOrCopy(w, r, true)
}

func (h *Handler) moveOrCopy(w http.ResponseWriter, r *http.Request, copyNodes bool) {
	var req MoveCopyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || len(req.UUIDs) == 0 || req.DestUUID == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("uuids and dest_uuid are required"))
		return
	}
	dest, err := h.manager.Store().GetNodeByUUID(req.DestUUID)
	if err != nil {
		slog.Error("move nodes failed", slog.String("error", err.Error()))
		writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
		return
	}
	if dest == nil {
		writeJSON(w, http.StatusNotFound, errorBody("destination not found"))
		return
	}
	ids, err := h.nodesByUUIDs(req.UUIDs)
	if err != nil {
		slog.Error("move nodes failed", slog.String("error", err.Error()))
		writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
		return
	}

	var result []storage.Node
	if copyNodes {
		result, err = h.manager.Copy(r.Context(), ids, dest.ID)
	} else {
		result, err = h.manager.Move(r.Context(), ids, dest.ID, false)
	}
	if err != nil {
		if errors.Is(err, apperr.ErrCircularReference) {
			writeJSON(w, http.StatusBadRequest, errorBody("cannot move a folder into its own subtree"))
			return
		}
		slog.Error("move nodes failed", slog.String("error", err.Error()))
		writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
		return
	}
	for i := range result {
		h.notifyNode("updated", result[i].UUID)
	}
	writeJSON(w, http.StatusOK, NodeListResponse{Nodes: result, Total: len(result)})
}

// ReorderNodes handles POST /nodes/reorder.
func (h *Handler) ReorderNodes(w http.ResponseWriter, r *http.Request) {
	var req ReorderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || len(req.UUIDs) == 0 {
		writeJSON(w, http.StatusBadRequest, errorBody("uuids are required"))
		return
	}
	var nodes []storage.Node
	for _, uuid := range req.UUIDs {
		node, err := h.manager.Store().GetNodeByUUID(uuid)
		if err != nil {
			slog.Error("reorder failed", slog.String("error", err.Error()))
			writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
			return
		}
		if node != nil {
			nodes = append(nodes, *node)
		}
	}
	if err := h.manager.Reorder(r.Context(), nodes); err != nil {
		slog.Error("reorder failed", slog.String("error", err.Error()))
		writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// SetTodo handles POST /todo.
func (h *Handler) SetTodo(w http.ResponseWriter, r *http.Request) {
	var req TodoRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || len(req.UUIDs) == 0 {
		writeJSON(w, http.StatusBadRequest, errorBody("uuids are required"))
		return
	}
	ids, err := h.nodesByUUIDs(req.UUIDs)
	if err != nil {
		slog.Error("set todo failed", slog.String("error", err.Error()))
		writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
		return
	}
	if err := h.manager.SetTodoState(r.Context(), ids, storage.TodoState(req.State)); err != nil {
		slog.Error("set todo failed", slog.String("error", err.Error()))
		writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ListTodo handles GET /todo.
func (h *Handler) ListTodo(w http.ResponseWriter, r *http.Request) {
	nodes, err := h.manager.Store().QueryTODO()
	if err != nil {
		slog.Error("list todo failed", slog.String("error", err.Error()))
		writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
		return
	}
	if nodes == nil {
		nodes = []storage.Node{}
	}
	writeJSON(w, http.StatusOK, NodeListResponse{Nodes: nodes, Total: len(nodes)})
}

// ListDone handles GET /done.
func (h *Handler) ListDone(w http.ResponseWriter, r *http.Request) {
	nodes, err := h.manager.Store().QueryDONE()
	if err != nil {
		slog.Error("list done failed", slog.String("error", err.Error()))
		writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
		return
	}
	if nodes == nil {
		nodes = []storage.Node{}
	}
	writeJSON(w, http.StatusOK, NodeListResponse{Nodes: nodes, Total: len(nodes)})
}

// ListTags handles GET /tags.
func (h *Handler) ListTags(w http.ResponseWriter, r *http.Request) {
	tags, err := h.manager.Store().QueryTags()
	if err != nil {
		slog.Error("list tags failed", slog.String("error", err.Error()))
		writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"tags": tags})
}

// Search handles GET /search: word index lookup, every term has to
// match.
func (h *Handler) Search(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query().Get("q")
	if q == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("query parameter 'q' is required"))
		return
	}
	kind := storage.IndexContent
	switch r.URL.Query().Get("kind") {
	case "", "content":
	case "notes":
		kind = storage.IndexNotes
	case "comments":
		kind = storage.IndexComments
	default:
		writeJSON(w, http.StatusBadRequest, errorBody("kind must be content, notes or comments"))
		return
	}

	words := strings.Fields(strings.ToLower(q))
	nodes, err := h.manager.Store().FilterByContent(nil, words, kind)
	if err != nil {
		slog.Error("search failed", slog.String("query", q), slog.String("error", err.Error()))
		writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
		return
	}
	if nodes == nil {
		nodes = []storage.Node{}
	}
	writeJSON(w, http.StatusOK, NodeListResponse{Nodes: nodes, Total: len(nodes)})
}

// SyncBrowser handles POST /sync/browser.
func (h *Handler) SyncBrowser(w http.ResponseWriter, r *http.Request) {
	h.runSync(w, r, h.browser, "browser")
}

// SyncCloud handles POST /sync/cloud.
func (h *Handler) SyncCloud(w http.ResponseWriter, r *http.Request) {
	h.runSync(w, r, h.cloud, "cloud")
}

func (h *Handler) runSync(w http.ResponseWriter, r *http.Request, s Syncer, name string) {
	if s == nil {
		writeJSON(w, http.StatusNotFound, errorBody(name+" sync is not configured"))
		return
	}
	if err := s.Reconcile(r.Context()); err != nil {
		slog.Error("sync failed", slog.String("backend", name), slog.String("error", err.Error()))
		writeJSON(w, http.StatusBadGateway, errorBody(name+" sync failed"))
		return
	}
	if h.broker != nil {
		h.broker.Publish(sse.Event{Type: name + ".sync.done", Data: map[string]string{}})
	}
	w.WriteHeader(http.StatusNoContent)
}
