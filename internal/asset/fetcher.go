// Package asset implements the loadable parts of a page: vector or raster
// content, the text layer and the link overlay.
package asset

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/go-logr/logr"

	"github.com/kdex-tech/kdex-pageview/internal/cache"
)

const maxAssetSize = 32 << 20

var (
	ErrNotFound = errors.New("asset not found")
	ErrTooLarge = errors.New("asset too large")
)

// Fetcher reads page assets from an HTTP origin or a local directory and
// keeps them in a cache.
type Fetcher struct {
	cache   cache.Cache
	client  *http.Client
	log     logr.Logger
	maxSize int64
}

func NewFetcher(c cache.Cache, client *http.Client, log logr.Logger) *Fetcher {
	if client == nil {
		client = http.DefaultClient
	}
	return &Fetcher{
		cache:   c,
		client:  client,
		log:     log,
		maxSize: maxAssetSize,
	}
}

// Join appends name to base, which is either a URL or a directory.
func Join(base, name string) string {
	if u, err := url.Parse(base); err == nil && (u.Scheme == "http" || u.Scheme == "https") {
		u.Path = path.Join(u.Path, name)
		return u.String()
	}
	return filepath.Join(base, name)
}

// Fetch returns the body of ref. A cached body of the previous generation is
// served only when the origin cannot be reached.
func (f *Fetcher) Fetch(ctx context.Context, ref string) ([]byte, error) {
	cached, found, isCurrent, err := f.cache.Get(ctx, ref)
	if err != nil {
		f.log.V(1).Info("cache read failed", "ref", ref, "error", err.Error())
		found = false
	}
	if found && isCurrent {
		return cached, nil
	}

	body, err := f.read(ctx, ref)
	if err != nil {
		if found && !errors.Is(err, ErrNotFound) {
			f.log.Info("serving stale asset", "ref", ref, "error", err.Error())
			return cached, nil
		}
		return nil, err
	}

	if err := f.cache.Set(ctx, ref, body); err != nil {
		f.log.V(1).Info("cache write failed", "ref", ref, "error", err.Error())
	}
	return body, nil
}

// Warm fetches ref into the cache.
func (f *Fetcher) Warm(ctx context.Context, ref string) error {
	_, err := f.Fetch(ctx, ref)
	return err
}

// Exists reports whether the origin has ref.
func (f *Fetcher) Exists(ctx context.Context, ref string) bool {
	if !isRemote(ref) {
		_, err := os.Stat(ref)
		return err == nil
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, ref, nil)
	if err != nil {
		return false
	}
	resp, err := f.client.Do(req)
	if err != nil {
		return false
	}
	resp.Body.Close()
	return resp.StatusCode == http.StatusOK
}

func (f *Fetcher) read(ctx context.Context, ref string) ([]byte, error) {
	if !isRemote(ref) {
		file, err := os.Open(ref)
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, ref)
		}
		if err != nil {
			return nil, err
		}
		defer file.Close()
		return f.readLimited(ref, file)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, ref, nil)
	if err != nil {
		return nil, err
	}
	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetching %s: %w", ref, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, fmt.Errorf("%w: %s", ErrNotFound, ref)
	case resp.StatusCode != http.StatusOK:
		return nil, fmt.Errorf("fetching %s: unexpected status %s", ref, resp.Status)
	}

	return f.readLimited(ref, resp.Body)
}

// readLimited fails rather than truncate a body over the size limit.
func (f *Fetcher) readLimited(ref string, r io.Reader) ([]byte, error) {
	body, err := io.ReadAll(io.LimitReader(r, f.maxSize+1))
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", ref, err)
	}
	if int64(len(body)) > f.maxSize {
		return nil, fmt.Errorf("%w: %s exceeds %d bytes", ErrTooLarge, ref, f.maxSize)
	}
	return body, nil
}

func isRemote(ref string) bool {
	return strings.HasPrefix(ref, "http://") || strings.HasPrefix(ref, "https://")
}
