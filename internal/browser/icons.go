package browser

import (
	"encoding/base64"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/starford/othala/internal/storage"
)

const (
	// iconWorkers bounds concurrent favicon downloads.
	iconWorkers = 2

	// iconMaxBytes caps a downloaded favicon. Anything larger is a
	// misconfigured server, not an icon.
	iconMaxBytes = 256 * 1024

	iconQueueDepth = 64
	iconTimeout    = 10 * time.Second
)

// iconFetcher downloads favicons for bookmarks imported from the
// native tree and stores them as data URLs. Fetches run on a small
// worker pool so a slow site cannot stall a reconciliation pass.
type iconFetcher struct {
	store  *storage.Storage
	client *http.Client
	log    *slog.Logger

	once  sync.Once
	wg    sync.WaitGroup
	queue chan iconJob
}

type iconJob struct {
	nodeID  int64
	pageURL string
}

func newIconFetcher(store *storage.Storage, log *slog.Logger) *iconFetcher {
	return &iconFetcher{
		store:  store,
		client: &http.Client{Timeout: iconTimeout},
		log:    log,
		queue:  make(chan iconJob, iconQueueDepth),
	}
}

// Enqueue schedules a favicon fetch for the node. A full queue drops
// the job rather than blocking the caller.
func (f *iconFetcher) Enqueue(nodeID int64, pageURL string) {
	if pageURL == "" {
		return
	}
	f.once.Do(func() {
		for i := 0; i < iconWorkers; i++ {
			go f.worker()
		}
	})
	f.wg.Add(1)
	select {
	case f.queue <- iconJob{nodeID: nodeID, pageURL: pageURL}:
	default:
		f.wg.Done()
		f.log.Debug("browser: icon queue full", slog.String("url", pageURL))
	}
}

// Wait blocks until every enqueued fetch has finished.
func (f *iconFetcher) Wait() {
	f.wg.Wait()
}

func (f *iconFetcher) worker() {
	for job := range f.queue {
		if err := f.fetch(job); err != nil {
			f.log.Debug("browser: fetch favicon",
				slog.String("url", job.pageURL), slog.String("error", err.Error()))
		}
		f.wg.Done()
	}
}

func (f *iconFetcher) fetch(job iconJob) error {
	iconURL, err := faviconURL(job.pageURL)
	if err != nil {
		return err
	}
	resp, err := f.client.Get(iconURL)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("favicon %s: status %d", iconURL, resp.StatusCode)
	}
	ct := resp.Header.Get("Content-Type")
	if i := strings.IndexByte(ct, ';'); i >= 0 {
		ct = ct[:i]
	}
	ct = strings.TrimSpace(ct)
	if !strings.HasPrefix(ct, "image/") {
		return fmt.Errorf("favicon %s: content type %q", iconURL, ct)
	}
	payload, err := io.ReadAll(io.LimitReader(resp.Body, iconMaxBytes+1))
	if err != nil {
		return err
	}
	if len(payload) == 0 || len(payload) > iconMaxBytes {
		return fmt.Errorf("favicon %s: %d bytes", iconURL, len(payload))
	}
	dataURL := "data:" + ct + ";base64," + base64.StdEncoding.EncodeToString(payload)
	return f.store.StoreIcon(job.nodeID, dataURL)
}

// faviconURL resolves the conventional /favicon.ico location for the
// page's origin.
func faviconURL(pageURL string) (string, error) {
	u, err := url.Parse(pageURL)
	if err != nil {
		return "", err
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return "", fmt.Errorf("favicon: unsupported scheme %q", u.Scheme)
	}
	return u.Scheme + "://" + u.Host + "/favicon.ico", nil
}
