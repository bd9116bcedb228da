// Package testutil provides shared test helpers for setting up node
// stores and managers.
package testutil

import (
	"io"
	"log/slog"
	"path/filepath"
	"testing"

	"github.com/starford/othala/internal/bookmarks"
	"github.com/starford/othala/internal/external"
	"github.com/starford/othala/internal/storage"
)

// Logger returns a logger that discards everything.
func Logger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// TestStorage creates a temporary SQLite node store that is
// automatically cleaned up.
func TestStorage(t *testing.T) *storage.Storage {
	t.Helper()
	dsn := filepath.Join(t.TempDir(), "othala-test.db")
	store, err := storage.Open(dsn)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

// TestManager builds a manager with an empty hub over a temporary store.
func TestManager(t *testing.T) *bookmarks.Manager {
	t.Helper()
	store := TestStorage(t)
	hub := external.NewHub(Logger())
	return bookmarks.NewManager(store, hub, Logger())
}
