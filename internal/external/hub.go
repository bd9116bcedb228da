// Package external implements the fan-out dispatcher that forwards node
// store mutations to the registered external backends (browser bookmarks,
// cloud store, automation).
package external

import (
	"context"
	"log/slog"

	"github.com/starford/othala/internal/storage"
)

// Backend mirrors node store mutations into an external tree. Every hook
// is optional: concrete backends embed BaseBackend and override only the
// hooks they support. Implementations must never assume their errors
// reach the caller of the originating mutation; the hub logs and
// swallows them.
type Backend interface {
	// Name returns the external tag this backend claims on mirrored nodes.
	Name() string
	// Initialize is called once at registration time.
	Initialize(ctx context.Context) error

	CreateBookmarkFolder(ctx context.Context, node, parent *storage.Node) error
	CreateBookmark(ctx context.Context, node, parent *storage.Node) error
	RenameBookmark(ctx context.Context, node *storage.Node) error
	MoveBookmarks(ctx context.Context, dest *storage.Node, nodes []storage.Node) error
	CopyBookmarks(ctx context.Context, dest *storage.Node, nodes []storage.Node) error
	DeleteBookmarks(ctx context.Context, nodes []storage.Node) error
	UpdateBookmark(ctx context.Context, node *storage.Node) error
	UpdateBookmarks(ctx context.Context, nodes []storage.Node) error
	ReorderBookmarks(ctx context.Context, nodes []storage.Node) error
	StoreBookmarkData(ctx context.Context, node *storage.Node, data []byte, contentType string) error
	UpdateBookmarkData(ctx context.Context, node *storage.Node, data []byte) error
	StoreBookmarkNotes(ctx context.Context, node *storage.Node, notes storage.Notes) error
	StoreBookmarkComments(ctx context.Context, node *storage.Node, comments string) error
	InvalidateCompletion()
}

// Hub fans node store mutations out to every registered backend,
// sequentially in registration order. A backend failure is logged and
// never aborts delivery to the remaining backends, and never reaches the
// caller: the node store mutation that triggered the fan-out has already
// committed and is authoritative.
type Hub struct {
	backends []Backend
	log      *slog.Logger
}

// NewHub creates an empty hub.
func NewHub(log *slog.Logger) *Hub {
	if log == nil {
		log = slog.Default()
	}
	return &Hub{log: log}
}

// Register adds a backend and runs its Initialize hook once.
func (h *Hub) Register(ctx context.Context, b Backend) {
	if err := b.Initialize(ctx); err != nil {
		h.log.Error("external backend initialization failed",
			slog.String("backend", b.Name()), slog.String("error", err.Error()))
	}
	h.backends = append(h.backends, b)
}

// Unregister removes the backend with the given name.
func (h *Hub) Unregister(name string) {
	for i, b := range h.backends {
		if b.Name() == name {
			h.backends = append(h.backends[:i], h.backends[i+1:]...)
			return
		}
	}
}

// Backends returns the registered backends in registration order.
func (h *Hub) Backends() []Backend {
	return h.backends
}

func (h *Hub) dispatch(op string, f func(Backend) error) {
	for _, b := range h.backends {
		if err := f(b); err != nil {
			h.log.Error("external backend call failed",
				slog.String("backend", b.Name()),
				slog.String("op", op),
				slog.String("error", err.Error()))
		}
	}
}

func (h *Hub) CreateBookmarkFolder(ctx context.Context, node, parent *storage.Node) {
	h.dispatch("createBookmarkFolder", func(b Backend) error { return b.CreateBookmarkFolder(ctx, node, parent) })
}

func (h *Hub) CreateBookmark(ctx context.Context, node, parent *storage.Node) {
	h.dispatch("createBookmark", func(b Backend) error { return b.CreateBookmark(ctx, node, parent) })
}

func (h *Hub) RenameBookmark(ctx context.Context, node *storage.Node) {
	h.dispatch("renameBookmark", func(b Backend) error { return b.RenameBookmark(ctx, node) })
}

func (h *Hub) MoveBookmarks(ctx context.Context, dest *storage.Node, nodes []storage.Node) {
	h.dispatch("moveBookmarks", func(b Backend) error { return b.MoveBookmarks(ctx, dest, nodes) })
}

func (h *Hub) CopyBookmarks(ctx context.Context, dest *storage.Node, nodes []storage.Node) {
	h.dispatch("copyBookmarks", func(b Backend) error { return b.CopyBookmarks(ctx, dest, nodes) })
}

func (h *Hub) DeleteBookmarks(ctx context.Context, nodes []storage.Node) {
	h.dispatch("deleteBookmarks", func(b Backend) error { return b.DeleteBookmarks(ctx, nodes) })
}

func (h *Hub) UpdateBookmark(ctx context.Context, node *storage.Node) {
	h.dispatch("updateBookmark", func(b Backend) error { return b.UpdateBookmark(ctx, node) })
}

func (h *Hub) UpdateBookmarks(ctx context.Context, nodes []storage.Node) {
	h.dispatch("updateBookmarks", func(b Backend) error { return b.UpdateBookmarks(ctx, nodes) })
}

func (h *Hub) ReorderBookmarks(ctx context.Context, nodes []storage.Node) {
	h.dispatch("reorderBookmarks", func(b Backend) error { return b.ReorderBookmarks(ctx, nodes) })
}

func (h *Hub) StoreBookmarkData(ctx context.Context, node *storage.Node, data []byte, contentType string) {
	h.dispatch("storeBookmarkData", func(b Backend) error { return b.StoreBookmarkData(ctx, node, data, contentType) })
}

func (h *Hub) UpdateBookmarkData(ctx context.Context, node *storage.Node, data []byte) {
	h.dispatch("updateBookmarkData", func(b Backend) error { return b.UpdateBookmarkData(ctx, node, data) })
}

func (h *Hub) StoreBookmarkNotes(ctx context.Context, node *storage.Node, notes storage.Notes) {
	h.dispatch("storeBookmarkNotes", func(b Backend) error { return b.StoreBookmarkNotes(ctx, node, notes) })
}

func (h *Hub) StoreBookmarkComments(ctx context.Context, node *storage.Node, comments string) {
	h.dispatch("storeBookmarkComments", func(b Backend) error { return b.StoreBookmarkComments(ctx, node, comments) })
}

func (h *Hub) InvalidateCompletion() {
	for _, b := range h.backends {
		b.InvalidateCompletion()
	}
}

// BaseBackend is a no-op implementation of every optional hook. Concrete
// backends embed it and override the hooks they support.
type BaseBackend struct{}

func (BaseBackend) Initialize(context.Context) error { return nil }
func (BaseBackend) CreateBookmarkFolder(context.Context, *storage.Node, *storage.Node) error {
	return nil
}
func (BaseBackend) CreateBookmark(context.Context, *storage.Node, *storage.Node) error { return nil }
func (BaseBackend) RenameBookmark(context.Context, *storage.Node) error                { return nil }
func (BaseBackend) MoveBookmarks(context.Context, *storage.Node, []storage.Node) error { return nil }
func (BaseBackend) CopyBookmarks(context.Context, *storage.Node, []storage.Node) error { return nil }
func (BaseBackend) DeleteBookmarks(context.Context, []storage.Node) error              { return nil }
func (BaseBackend) UpdateBookmark(context.Context, *storage.Node) error                { return nil }
func (BaseBackend) UpdateBookmarks(context.Context, []storage.Node) error              { return nil }
func (BaseBackend) ReorderBookmarks(context.Context, []storage.Node) error             { return nil }
func (BaseBackend) StoreBookmarkData(context.Context, *storage.Node, []byte, string) error {
	return nil
}
func (BaseBackend) UpdateBookmarkData(context.Context, *storage.Node, []byte) error { return nil }
func (BaseBackend) StoreBookmarkNotes(context.Context, *storage.Node, storage.Notes) error {
	return nil
}
func (BaseBackend) StoreBookmarkComments(context.Context, *storage.Node, string) error { return nil }
func (BaseBackend) InvalidateCompletion()                                              {}
