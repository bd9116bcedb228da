package api

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/starford/othala/internal/apperr"
	"github.com/starford/othala/internal/storage"
)

const maxUploadBytes = 50 << 20 // 50 MB

// GetArchive handles GET /nodes/{uuid}/archive: the raw stored payload
// under its original content type.
func (h *Handler) GetArchive(w http.ResponseWriter, r *http.Request) {
	node := h.nodeByUUID(w, r)
	if node == nil {
		return
	}
	blob, err := h.manager.Store().FetchBlob(node.ID)
	if err != nil {
		slog.Error("fetch archive failed", slog.String("uuid", node.UUID), slog.String("error", err.Error()))
		writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
		return
	}
	if blob == nil {
		writeJSON(w, http.StatusNotFound, errorBody("no archive stored"))
		return
	}
	contentType := blob.Type
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	w.Header().Set("Content-Type", contentType)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(blob.Data)
}

// PutArchive handles PUT /nodes/{uuid}/archive: the request body is the
// payload, its Content-Type header is kept with it. Textual payloads are
// word-indexed.
func (h *Handler) PutArchive(w http.ResponseWriter, r *http.Request) {
	node := h.nodeByUUID(w, r)
	if node == nil {
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
	data, err := io.ReadAll(r.Body)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("failed to read body"))
		return
	}

	contentType := r.Header.Get("Content-Type")
	var byteLength int64
	if r.URL.Query().Get("binary") == "true" {
		byteLength = int64(len(data))
	}
	if err := h.manager.StoreArchive(r.Context(), node.ID, data, contentType, byteLength); err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			writeJSON(w, http.StatusNotFound, errorBody("not found"))
			return
		}
		slog.Error("store archive failed", slog.String("uuid", node.UUID), slog.String("error", err.Error()))
		writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
		return
	}
	h.notifyNode("updated", node.UUID)
	w.WriteHeader(http.StatusNoContent)
}

// PatchArchive handles PATCH /nodes/{uuid}/archive: rewrites an already
// stored textual payload in place and refreshes its word index.
func (h *Handler) PatchArchive(w http.ResponseWriter, r *http.Request) {
	node := h.nodeByUUID(w, r)
	if node == nil {
		return
	}
	blob, err := h.manager.Store().FetchBlob(node.ID)
	if err != nil {
		slog.Error("patch archive failed", slog.String("uuid", node.UUID), slog.String("error", err.Error()))
		writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
		return
	}
	if blob == nil {
		writeJSON(w, http.StatusNotFound, errorBody("no archive stored"))
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
	data, err := io.ReadAll(r.Body)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("failed to read body"))
		return
	}
	if err := h.manager.UpdateArchive(r.Context(), node.ID, data); err != nil {
		slog.Error("patch archive failed", slog.String("uuid", node.UUID), slog.String("error", err.Error()))
		writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
		return
	}
	h.notifyNode("updated", node.UUID)
	w.WriteHeader(http.StatusNoContent)
}

// DeleteArchive handles DELETE /nodes/{uuid}/archive: drops the stored
// payload and its content index.
func (h *Handler) DeleteArchive(w http.ResponseWriter, r *http.Request) {
	node := h.nodeByUUID(w, r)
	if node == nil {
		return
	}
	if err := h.manager.Store().DeleteBlob(node.ID); err != nil {
		slog.Error("delete archive failed", slog.String("uuid", node.UUID), slog.String("error", err.Error()))
		writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
		return
	}
	h.notifyNode("updated", node.UUID)
	w.WriteHeader(http.StatusNoContent)
}

// GetNotes handles GET /nodes/{uuid}/notes.
func (h *Handler) GetNotes(w http.ResponseWriter, r *http.Request) {
	node := h.nodeByUUID(w, r)
	if node == nil {
		return
	}
	notes, err := h.manager.Store().FetchNotes(node.ID)
	if err != nil {
		slog.Error("fetch notes failed", slog.String("uuid", node.UUID), slog.String("error", err.Error()))
		writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
		return
	}
	if notes == nil {
		writeJSON(w, http.StatusNotFound, errorBody("no notes stored"))
		return
	}
	writeJSON(w, http.StatusOK, notes)
}

// PutNotes handles PUT /nodes/{uuid}/notes.
func (h *Handler) PutNotes(w http.ResponseWriter, r *http.Request) {
	node := h.nodeByUUID(w, r)
	if node == nil {
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
	var req NotesRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid JSON body"))
		return
	}
	notes := storage.Notes{
		NodeID:  node.ID,
		Content: req.Content,
		Format:  req.Format,
		HTML:    req.HTML,
		Align:   req.Align,
	}
	if err := h.manager.StoreNotes(r.Context(), notes); err != nil {
		slog.Error("store notes failed", slog.String("uuid", node.UUID), slog.String("error", err.Error()))
		writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
		return
	}
	h.notifyNode("updated", node.UUID)
	w.WriteHeader(http.StatusNoContent)
}

// GetComments handles GET /nodes/{uuid}/comments.
func (h *Handler) GetComments(w http.ResponseWriter, r *http.Request) {
	node := h.nodeByUUID(w, r)
	if node == nil {
		return
	}
	comments, err := h.manager.Store().FetchComments(node.ID)
	if err != nil {
		slog.Error("fetch comments failed", slog.String("uuid", node.UUID), slog.String("error", err.Error()))
		writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
		return
	}
	writeJSON(w, http.StatusOK, CommentsRequest{Comments: comments})
}

// PutComments handles PUT /nodes/{uuid}/comments.
func (h *Handler) PutComments(w http.ResponseWriter, r *http.Request) {
	node := h.nodeByUUID(w, r)
	if node == nil {
		return
	}
	var req CommentsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid JSON body"))
		return
	}
	if err := h.manager.StoreComments(r.Context(), node.ID, req.Comments); err != nil {
		slog.Error("store comments failed", slog.String("uuid", node.UUID), slog.String("error", err.Error()))
		writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
		return
	}
	h.notifyNode("updated", node.UUID)
	w.WriteHeader(http.StatusNoContent)
}

// PutIcon handles PUT /nodes/{uuid}/icon with a data url body.
func (h *Handler) PutIcon(w http.ResponseWriter, r *http.Request) {
	node := h.nodeByUUID(w, r)
	if node == nil {
		return
	}
	var req struct {
		DataURL string `json:"data_url"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.DataURL == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("data_url is required"))
		return
	}
	if err := h.manager.Store().StoreIcon(node.ID, req.DataURL); err != nil {
		slog.Error("store icon failed", slog.String("uuid", node.UUID), slog.String("error", err.Error()))
		writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Export handles GET /export?path=…: the interchange stream of the
// subtree at path.
func (h *Handler) Export(w http.ResponseWriter, r *http.Request) {
	path := r.URL.Query().Get("path")
	if path == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("query parameter 'path' is required"))
		return
	}
	w.Header().Set("Content-Type", "application/x-ndjson")
	if err := h.exchanger.ExportPath(r.Context(), w, path); err != nil {
		slog.Error("export failed", slog.String("path", path), slog.String("error", err.Error()))
	}
}

// Import handles POST /import with an interchange stream body.
func (h *Handler) Import(w http.ResponseWriter, r *http.Request) {
	root, err := h.exchanger.Import(r.Context(), r.Body)
	if err != nil {
		switch {
		case errors.Is(err, apperr.ErrUnsupportedFormat):
			writeJSON(w, http.StatusBadRequest, errorBody("unsupported format version"))
		case errors.Is(err, apperr.ErrInvalidFormat):
			writeJSON(w, http.StatusBadRequest, errorBody("malformed stream"))
		default:
			slog.Error("import failed", slog.String("error", err.Error()))
			writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
		}
		return
	}
	h.notifyNode("created", root.UUID)
	writeJSON(w, http.StatusCreated, root)
}
