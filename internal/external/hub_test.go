package external

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/starford/othala/internal/storage"
)

type recordingBackend struct {
	BaseBackend
	name  string
	calls *[]string
	fail  bool
}

func (b *recordingBackend) Name() string { return b.name }

func (b *recordingBackend) CreateBookmark(context.Context, *storage.Node, *storage.Node) error {
	*b.calls = append(*b.calls, b.name+".create")
	if b.fail {
		return errors.New("boom")
	}
	return nil
}

func (b *recordingBackend) DeleteBookmarks(context.Context, []storage.Node) error {
	*b.calls = append(*b.calls, b.name+".delete")
	return nil
}

func testHub(t *testing.T) *Hub {
	t.Helper()
	return NewHub(slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestHubDispatchOrder(t *testing.T) {
	h := testHub(t)
	var calls []string
	h.Register(context.Background(), &recordingBackend{name: "first", calls: &calls})
	h.Register(context.Background(), &recordingBackend{name: "second", calls: &calls})

	h.CreateBookmark(context.Background(), &storage.Node{}, &storage.Node{})

	want := []string{"first.create", "second.create"}
	if len(calls) != len(want) {
		t.Fatalf("calls = %v, want %v", calls, want)
	}
	for i := range want {
		if calls[i] != want[i] {
			t.Errorf("calls[%d] = %q, want %q", i, calls[i], want[i])
		}
	}
}

func TestHubFailureDoesNotStopFanOut(t *testing.T) {
	h := testHub(t)
	var calls []string
	h.Register(context.Background(), &recordingBackend{name: "broken", calls: &calls, fail: true})
	h.Register(context.Background(), &recordingBackend{name: "healthy", calls: &calls})

	h.CreateBookmark(context.Background(), &storage.Node{}, &storage.Node{})

	if len(calls) != 2 || calls[1] != "healthy.create" {
		t.Errorf("calls = %v, want both backends reached", calls)
	}
}

func TestHubUnregister(t *testing.T) {
	h := testHub(t)
	var calls []string
	h.Register(context.Background(), &recordingBackend{name: "a", calls: &calls})
	h.Register(context.Background(), &recordingBackend{name: "b", calls: &calls})

	h.Unregister("a")
	h.DeleteBookmarks(context.Background(), nil)

	if len(calls) != 1 || calls[0] != "b.delete" {
		t.Errorf("calls = %v, want only b", calls)
	}
}
