package cloud

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/starford/othala/internal/apperr"
)

const (
	dropboxTokenURL    = "https://api.dropbox.com/oauth2/token"
	dropboxAPIURL      = "https://api.dropboxapi.com/2"
	dropboxContentURL  = "https://content.dropboxapi.com/2"
	dropboxDBPath      = "/cloud.jsonl"
	dropboxAssetPrefix = "/assets/"
)

// DropboxConfig carries the app-folder credentials.
type DropboxConfig struct {
	AppKey       string
	AppSecret    string
	RefreshToken string
}

// Dropbox stores the shared document in a Dropbox app folder. Access
// tokens are minted from the long-lived refresh token and cached until
// shortly before expiry.
type Dropbox struct {
	cfg    DropboxConfig
	client *http.Client

	mu          sync.Mutex
	accessToken string
	tokenExpiry time.Time
}

// NewDropbox returns a provider using the given credentials. A nil
// client falls back to a default with a request timeout.
func NewDropbox(cfg DropboxConfig, client *http.Client) *Dropbox {
	if client == nil {
		client = &http.Client{Timeout: 60 * time.Second}
	}
	return &Dropbox{cfg: cfg, client: client}
}

func (d *Dropbox) Name() string { return "dropbox" }

// token returns a valid access token, refreshing it when needed.
func (d *Dropbox) token(ctx context.Context) (string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.accessToken != "" && time.Now().Before(d.tokenExpiry) {
		return d.accessToken, nil
	}

	form := url.Values{
		"grant_type":    {"refresh_token"},
		"refresh_token": {d.cfg.RefreshToken},
		"client_id":     {d.cfg.AppKey},
		"client_secret": {d.cfg.AppSecret},
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, dropboxTokenURL,
		strings.NewReader(form.Encode()))
	if err != nil {
		return "", fmt.Errorf("cloud: token request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := d.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("cloud: refresh token: %w: %v", apperr.ErrCloudUnavailable, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("cloud: refresh token: status %d: %w", resp.StatusCode, apperr.ErrCloudUnavailable)
	}

	var tok struct {
		AccessToken string `json:"access_token"`
		ExpiresIn   int    `json:"expires_in"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&tok); err != nil {
		return "", fmt.Errorf("cloud: decode token: %w", err)
	}
	d.accessToken = tok.AccessToken
	d.tokenExpiry = time.Now().Add(time.Duration(tok.ExpiresIn)*time.Second - time.Minute)
	return d.accessToken, nil
}

// apiArg renders the Dropbox-API-Arg header value.
func apiArg(v any) string {
	data, _ := json.Marshal(v)
	return string(data)
}

func (d *Dropbox) download(ctx context.Context, path string) ([]byte, error) {
	tok, err := d.token(ctx)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		dropboxContentURL+"/files/download", nil)
	if err != nil {
		return nil, fmt.Errorf("cloud: download request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+tok)
	req.Header.Set("Dropbox-API-Arg", apiArg(map[string]string{"path": path}))

	resp, err := d.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("cloud: download %s: %w: %v", path, apperr.ErrCloudUnavailable, err)
	}
	defer resp.Body.Close()
	switch {
	case resp.StatusCode == http.StatusConflict:
		// path/not_found
		return nil, fmt.Errorf("cloud: download %s: %w", path, apperr.ErrNotFound)
	case resp.StatusCode != http.StatusOK:
		return nil, fmt.Errorf("cloud: download %s: status %d: %w", path, resp.StatusCode, apperr.ErrCloudUnavailable)
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("cloud: download %s: %w", path, err)
	}
	return data, nil
}

func (d *Dropbox) upload(ctx context.Context, path string, data []byte) error {
	tok, err := d.token(ctx)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		dropboxContentURL+"/files/upload", bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("cloud: upload request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+tok)
	req.Header.Set("Content-Type", "application/octet-stream")
	req.Header.Set("Dropbox-API-Arg", apiArg(map[string]any{
		"path": path,
		"mode": "overwrite",
		"mute": true,
	}))

	resp, err := d.client.Do(req)
	if err != nil {
		return fmt.Errorf("cloud: upload %s: %w: %v", path, apperr.ErrCloudUnavailable, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("cloud: upload %s: status %d: %w", path, resp.StatusCode, apperr.ErrCloudUnavailable)
	}
	io.Copy(io.Discard, resp.Body)
	return nil
}

func (d *Dropbox) rpc(ctx context.Context, endpoint string, arg, out any) error {
	tok, err := d.token(ctx)
	if err != nil {
		return err
	}
	body, err := json.Marshal(arg)
	if err != nil {
		return fmt.Errorf("cloud: encode %s: %w", endpoint, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		dropboxAPIURL+endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("cloud: %s request: %w", endpoint, err)
	}
	req.Header.Set("Authorization", "Bearer "+tok)
	req.Header.Set("Content-Type", "application/json")

	resp, err := d.client.Do(req)
	if err != nil {
		return fmt.Errorf("cloud: %s: %w: %v", endpoint, apperr.ErrCloudUnavailable, err)
	}
	defer resp.Body.Close()
	switch {
	case resp.StatusCode == http.StatusConflict:
		return fmt.Errorf("cloud: %s: %w", endpoint, apperr.ErrNotFound)
	case resp.StatusCode != http.StatusOK:
		return fmt.Errorf("cloud: %s: status %d: %w", endpoint, resp.StatusCode, apperr.ErrCloudUnavailable)
	}
	if out == nil {
		io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("cloud: decode %s: %w", endpoint, err)
	}
	return nil
}

func (d *Dropbox) DownloadDB(ctx context.Context) ([]byte, error) {
	return d.download(ctx, dropboxDBPath)
}

func (d *Dropbox) UploadDB(ctx context.Context, data []byte) error {
	return d.upload(ctx, dropboxDBPath, data)
}

func (d *Dropbox) LastModified(ctx context.Context) (time.Time, error) {
	var meta struct {
		ServerModified time.Time `json:"server_modified"`
	}
	err := d.rpc(ctx, "/files/get_metadata", map[string]string{"path": dropboxDBPath}, &meta)
	if err != nil {
		return time.Time{}, err
	}
	return meta.ServerModified, nil
}

func assetPath(uuid, kind string) string {
	return dropboxAssetPrefix + uuid + "." + kind
}

func (d *Dropbox) StoreAsset(ctx context.Context, uuid, kind string, data []byte) error {
	return d.upload(ctx, assetPath(uuid, kind), data)
}

func (d *Dropbox) FetchAsset(ctx context.Context, uuid, kind string) ([]byte, error) {
	return d.download(ctx, assetPath(uuid, kind))
}

func (d *Dropbox) DeleteAssets(ctx context.Context, uuid string) error {
	for _, kind := range []string{AssetData, AssetNotes, AssetComments, AssetIcon} {
		err := d.rpc(ctx, "/files/delete_v2",
			map[string]string{"path": assetPath(uuid, kind)}, nil)
		if err != nil && !errors.Is(err, apperr.ErrNotFound) {
			return err
		}
	}
	return nil
}
