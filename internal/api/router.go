package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// NewRouter creates a chi router with all API routes mounted.
// authEnabled controls whether Bearer token auth is enforced.
// sseHandler, if non-nil, is mounted at GET /events inside the auth
// group.
func NewRouter(h *Handler, authEnabled bool, token string, sseHandler http.Handler) chi.Router {
	r := chi.NewRouter()
	r.Use(AuthMiddleware(authEnabled, token))

	// Node tree.
	r.Get("/nodes", h.QueryNodes)
	r.Post("/nodes/bookmark", h.CreateBookmark)
	r.Post("/nodes/separator", h.CreateSeparator)
	r.Post("/nodes/notes", h.CreateNotes)
	r.Post("/nodes/move", h.MoveNodes)
	r.Post("/nodes/copy", h.CopyNodes)
	r.Post("/nodes/reorder", h.ReorderNodes)
	r.Post("/nodes/delete", h.DeleteNodes)
	r.Get("/nodes/{uuid}", h.GetNode)
	r.Put("/nodes/{uuid}", h.UpdateNode)
	r.Get("/nodes/{uuid}/path", h.GetNodePath)
	r.Delete("/nodes/{uuid}/children", h.DeleteNodeChildren)

	// Node content.
	r.Get("/nodes/{uuid}/archive", h.GetArchive)
	r.Put("/nodes/{uuid}/archive", h.PutArchive)
	r.Patch("/nodes/{uuid}/archive", h.PatchArchive)
	r.Delete("/nodes/{uuid}/archive", h.DeleteArchive)
	r.Get("/nodes/{uuid}/notes", h.GetNotes)
	r.Put("/nodes/{uuid}/notes", h.PutNotes)
	r.Get("/nodes/{uuid}/comments", h.GetComments)
	r.Put("/nodes/{uuid}/comments", h.PutComments)
	r.Put("/nodes/{uuid}/icon", h.PutIcon)

	// Shelves and folders.
	r.Get("/shelves", h.ListShelves)
	r.Post("/shelves", h.CreateShelf)
	r.Get("/folders", h.ListFolders)
	r.Post("/folders", h.CreateFolder)

	// Search and scopes.
	r.Get("/search", h.Search)
	r.Get("/todo", h.ListTodo)
	r.Post("/todo", h.SetTodo)
	r.Get("/done", h.ListDone)
	r.Get("/tags", h.ListTags)

	// Interchange.
	r.Get("/export", h.Export)
	r.Post("/import", h.Import)

	// External backends.
	r.Post("/sync/browser", h.SyncBrowser)
	r.Post("/sync/cloud", h.SyncCloud)

	// SSE endpoint (protected by same auth middleware).
	if sseHandler != nil {
		r.Get("/events", sseHandler.ServeHTTP)
	}

	return r
}
