package cloud

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/starford/othala/internal/apperr"
)

// Asset kinds stored next to the shared document, one object per node
// and kind.
const (
	AssetData     = "data"
	AssetNotes    = "notes"
	AssetComments = "comments"
	AssetIcon     = "icon"
)

// Provider is remote storage for the shared document and its assets.
// DownloadDB returns apperr.ErrNotFound while no document has been
// uploaded yet.
type Provider interface {
	Name() string
	DownloadDB(ctx context.Context) ([]byte, error)
	UploadDB(ctx context.Context, data []byte) error
	// LastModified returns the remote document's modification time, or
	// apperr.ErrNotFound while no document exists.
	LastModified(ctx context.Context) (time.Time, error)
	StoreAsset(ctx context.Context, uuid, kind string, data []byte) error
	FetchAsset(ctx context.Context, uuid, kind string) ([]byte, error)
	// DeleteAssets removes every asset of the node. Missing assets are
	// not an error.
	DeleteAssets(ctx context.Context, uuid string) error
}

// MemoryProvider keeps everything in process. It backs tests and serves
// as the reference for provider semantics.
type MemoryProvider struct {
	mu       sync.Mutex
	db       []byte
	modified time.Time
	assets   map[string][]byte
}

func NewMemoryProvider() *MemoryProvider {
	return &MemoryProvider{assets: make(map[string][]byte)}
}

func (m *MemoryProvider) Name() string { return "memory" }

func (m *MemoryProvider) DownloadDB(ctx context.Context) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.db == nil {
		return nil, fmt.Errorf("cloud: no shared document: %w", apperr.ErrNotFound)
	}
	out := make([]byte, len(m.db))
	copy(out, m.db)
	return out, nil
}

func (m *MemoryProvider) UploadDB(ctx context.Context, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.db = make([]byte, len(data))
	copy(m.db, data)
	m.modified = time.Now()
	return nil
}

func (m *MemoryProvider) LastModified(ctx context.Context) (time.Time, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.db == nil {
		return time.Time{}, fmt.Errorf("cloud: no shared document: %w", apperr.ErrNotFound)
	}
	return m.modified, nil
}

func assetKey(uuid, kind string) string { return uuid + "." + kind }

func (m *MemoryProvider) StoreAsset(ctx context.Context, uuid, kind string, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	buf := make([]byte, len(data))
	copy(buf, data)
	m.assets[assetKey(uuid, kind)] = buf
	return nil
}

func (m *MemoryProvider) FetchAsset(ctx context.Context, uuid, kind string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	data, ok := m.assets[assetKey(uuid, kind)]
	if !ok {
		return nil, fmt.Errorf("cloud: asset %s: %w", assetKey(uuid, kind), apperr.ErrNotFound)
	}
	out := make([]byte, len(data))
	copy(out, data)
	return out, nil
}

func (m *MemoryProvider) DeleteAssets(ctx context.Context, uuid string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, kind := range []string{AssetData, AssetNotes, AssetComments, AssetIcon} {
		delete(m.assets, assetKey(uuid, kind))
	}
	return nil
}
