package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"time"
)

// errBadHTTPStatus is returned when the mirror answers with a non-2xx status.
var errBadHTTPStatus = errors.New("unexpected http status")

// HTTPClient is the capability the fetcher needs from an HTTP client.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// Fetcher downloads release assets into a scratch workspace. Each download is
// a single attempt; any failure is terminal and names the failing URL.
type Fetcher struct {
	client    HTTPClient
	userAgent string
}

// Option configures a Fetcher.
type Option func(*Fetcher)

// WithHTTPClient overrides the HTTP client used for downloads.
func WithHTTPClient(client HTTPClient) Option {
	return func(f *Fetcher) {
		if client != nil {
			f.client = client
		}
	}
}

// WithTimeout bounds each download when the default client is in use.
func WithTimeout(timeout time.Duration) Option {
	return func(f *Fetcher) {
		if client, ok := f.client.(*http.Client); ok && timeout > 0 {
			client.Timeout = timeout
		}
	}
}

// NewFetcher creates a Fetcher with a bounded default client.
func NewFetcher(userAgent string, opts ...Option) *Fetcher {
	f := &Fetcher{
		client:    &http.Client{Timeout: 30 * time.Second},
		userAgent: userAgent,
	}

	for _, opt := range opts {
		opt(f)
	}

	return f
}

// Download retrieves the asset at url into destPath. The destination file is
// created fresh and synced before return so later hashing sees final bytes.
func (f *Fetcher) Download(ctx context.Context, url, destPath string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, http.NoBody)
	if err != nil {
		return fmt.Errorf("build request for %s: %w", url, err)
	}

	if f.userAgent != "" {
		req.Header.Set("User-Agent", f.userAgent)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return fmt.Errorf("fetch %s: %w", url, err)
	}

	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return fmt.Errorf("%s, %s: %w", url, resp.Status, errBadHTTPStatus)
	}

	out, err := os.Create(filepath.Clean(destPath))
	if err != nil {
		return fmt.Errorf("create %s: %w", destPath, err)
	}

	if _, err = io.Copy(out, resp.Body); err != nil {
		_ = out.Close()

		return fmt.Errorf("write %s from %s: %w", destPath, url, err)
	}

	if err = out.Sync(); err != nil {
		_ = out.Close()

		return fmt.Errorf("sync %s: %w", destPath, err)
	}

	return out.Close()
}
