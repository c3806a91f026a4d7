package playback

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"path/filepath"
	"strings"

	"soundscape/server/audio"
)

// FileFetcher reads clips from a local resource root.
type FileFetcher struct {
	Root string
}

func (f FileFetcher) Fetch(ctx context.Context, path string) (audio.Clip, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return audio.ReadClipFile(filepath.Join(f.Root, filepath.FromSlash(path)))
}

// HTTPFetcher downloads clips from a server's /resources/ endpoint.
type HTTPFetcher struct {
	BaseURL string
	Client  *http.Client
}

func (f HTTPFetcher) Fetch(ctx context.Context, path string) (audio.Clip, error) {
	client := f.Client
	if client == nil {
		client = http.DefaultClient
	}
	u, err := url.JoinPath(strings.TrimSuffix(f.BaseURL, "/"), "resources", path)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusNotFound {
		return nil, fmt.Errorf("%w: %s", audio.ErrMissingSource, path)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch %s: %s", path, resp.Status)
	}
	return audio.DecodeWAV(resp.Body)
}
