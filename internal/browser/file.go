package browser

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/starford/othala/internal/checksum"
)

// profileFile is the on-disk shape of a profile bookmarks file.
type profileFile struct {
	Version int       `json:"version"`
	Root    *Bookmark `json:"root"`
}

const profileFileVersion = 1

// FileStore is a NativeStore persisted in a browser profile bookmarks
// file. Mutations go through an in-memory tree and are written back
// atomically; outside edits of the file are picked up by Watch and
// surface as listener events, exactly like edits made in the browser UI.
type FileStore struct {
	path string
	log  *slog.Logger

	mu       sync.Mutex
	mem      *MemoryStore
	sum      string // digest of the last content we loaded or wrote
	listener *Listener
}

// NewFileStore loads (or creates) the bookmarks file at path.
func NewFileStore(path string, log *slog.Logger) (*FileStore, error) {
	if log == nil {
		log = slog.Default()
	}
	f := &FileStore{path: path, log: log, mem: NewMemoryStore()}

	data, err := os.ReadFile(path)
	switch {
	case os.IsNotExist(err):
		if err := f.persist(); err != nil {
			return nil, err
		}
	case err != nil:
		return nil, fmt.Errorf("browser: read profile: %w", err)
	default:
		root, err := parseProfile(data)
		if err != nil {
			return nil, err
		}
		f.mem.Load(root)
		f.sum = checksum.Sum(data)
	}
	return f, nil
}

func parseProfile(data []byte) (*Bookmark, error) {
	var pf profileFile
	if err := json.Unmarshal(data, &pf); err != nil {
		return nil, fmt.Errorf("browser: parse profile: %w", err)
	}
	if pf.Version > profileFileVersion {
		return nil, fmt.Errorf("browser: profile version %d is not supported", pf.Version)
	}
	return pf.Root, nil
}

func (f *FileStore) SetListener(l *Listener) {
	f.mu.Lock()
	f.listener = l
	f.mem.SetListener(l)
	f.mu.Unlock()
}

func (f *FileStore) Tree(ctx context.Context) (*Bookmark, error) {
	return f.mem.Tree(ctx)
}

func (f *FileStore) Children(ctx context.Context, id string) ([]Bookmark, error) {
	return f.mem.Children(ctx, id)
}

func (f *FileStore) Create(ctx context.Context, b Bookmark) (Bookmark, error) {
	created, err := f.mem.Create(ctx, b)
	if err != nil {
		return Bookmark{}, err
	}
	return created, f.persist()
}

func (f *FileStore) Update(ctx context.Context, id string, ch Changes) error {
	if err := f.mem.Update(ctx, id, ch); err != nil {
		return err
	}
	return f.persist()
}

func (f *FileStore) Move(ctx context.Context, id, parentID string, index int) error {
	if err := f.mem.Move(ctx, id, parentID, index); err != nil {
		return err
	}
	return f.persist()
}

func (f *FileStore) Remove(ctx context.Context, id string) error {
	if err := f.mem.Remove(ctx, id); err != nil {
		return err
	}
	return f.persist()
}

func (f *FileStore) RemoveTree(ctx context.Context, id string) error {
	if err := f.mem.RemoveTree(ctx, id); err != nil {
		return err
	}
	return f.persist()
}

// persist writes the current tree back: tmp file → fsync → rename.
func (f *FileStore) persist() error {
	root, _ := f.mem.Tree(context.Background())
	data, err := json.MarshalIndent(profileFile{Version: profileFileVersion, Root: root}, "", "  ")
	if err != nil {
		return fmt.Errorf("browser: encode profile: %w", err)
	}
	data = append(data, '\n')

	dir := filepath.Dir(f.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("browser: mkdir: %w", err)
	}
	tmp, err := os.CreateTemp(dir, ".othala-tmp-*")
	if err != nil {
		return fmt.Errorf("browser: create temp: %w", err)
	}
	tmpName := tmp.Name()

	success := false
	defer func() {
		if !success {
			_ = tmp.Close()
			_ = os.Remove(tmpName)
		}
	}()

	if _, err := tmp.Write(data); err != nil {
		return fmt.Errorf("browser: write temp: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		return fmt.Errorf("browser: fsync: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("browser: close temp: %w", err)
	}
	if err := os.Rename(tmpName, f.path); err != nil {
		return fmt.Errorf("browser: rename: %w", err)
	}
	success = true

	f.mu.Lock()
	f.sum = checksum.Sum(data)
	f.mu.Unlock()
	return nil
}

// Watch follows outside edits of the profile file until ctx is
// cancelled. Change bursts are debounced, and reloads whose content
// digest matches the last known state are skipped.
func (f *FileStore) Watch(ctx context.Context) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer w.Close()

	if err := w.Add(filepath.Dir(f.path)); err != nil {
		return err
	}
	f.log.Info("browser: watching profile", slog.String("path", f.path))

	var reloadTimer *time.Timer
	var reloadCh <-chan time.Time
	scheduleReload := func() {
		if reloadTimer == nil {
			reloadTimer = time.NewTimer(200 * time.Millisecond)
			reloadCh = reloadTimer.C
		} else {
			reloadTimer.Reset(200 * time.Millisecond)
		}
	}

	for {
		select {
		case <-ctx.Done():
			if reloadTimer != nil {
				reloadTimer.Stop()
			}
			f.log.Info("browser: profile watcher stopped")
			return nil

		case <-reloadCh:
			if err := f.reload(); err != nil {
				f.log.Warn("browser: profile reload failed", slog.String("error", err.Error()))
			}

		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(ev.Name) != filepath.Clean(f.path) {
				continue
			}
			if ev.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Rename) != 0 {
				scheduleReload()
			}

		case watchErr, ok := <-w.Errors:
			if !ok {
				return nil
			}
			f.log.Error("browser: watcher error", slog.String("error", watchErr.Error()))
		}
	}
}

// reload reparses the file and replays the difference against the
// in-memory tree as listener events.
func (f *FileStore) reload() error {
	data, err := os.ReadFile(f.path)
	if err != nil {
		return err
	}

	f.mu.Lock()
	if checksum.Match(data, f.sum) {
		f.mu.Unlock()
		return nil
	}
	listener := f.listener
	f.mu.Unlock()

	root, err := parseProfile(data)
	if err != nil {
		return err
	}

	before := f.mem.Snapshot()
	f.mem.Load(root)
	after := f.mem.Snapshot()

	f.mu.Lock()
	f.sum = checksum.Sum(data)
	f.mu.Unlock()

	if listener != nil {
		replayDiff(before, after, listener)
	}
	f.log.Debug("browser: profile reloaded", slog.Int("entries", len(after)))
	return nil
}

// replayDiff fires Created, Removed, Changed and Moved for the delta
// between two tree snapshots.
func replayDiff(before, after []Bookmark, l *Listener) {
	old := make(map[string]Bookmark, len(before))
	for _, b := range before {
		old[b.ID] = b
	}
	seen := make(map[string]struct{}, len(after))

	for _, b := range after {
		seen[b.ID] = struct{}{}
		prev, ok := old[b.ID]
		if !ok {
			if l.Created != nil {
				l.Created(b)
			}
			continue
		}
		if (prev.Title != b.Title || prev.URL != b.URL) && l.Changed != nil {
			l.Changed(b)
		}
		if (prev.ParentID != b.ParentID || prev.Index != b.Index) && l.Moved != nil {
			l.Moved(b, prev.ParentID, prev.Index)
		}
	}
	for _, b := range before {
		if _, ok := seen[b.ID]; !ok && l.Removed != nil {
			l.Removed(b)
		}
	}
}
