// Package config loads the viewer configuration file.
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"sigs.k8s.io/yaml"

	"github.com/kdex-tech/kdex-pageview/internal/page"
)

const (
	RendererAuto   = "auto"
	RendererRaster = "raster"
	RendererVector = "vector"
)

var ErrInvalid = errors.New("invalid configuration")

type Configuration struct {
	Cache    CacheConfig    `json:"cache"`
	Document DocumentConfig `json:"document"`
	Viewer   ViewerConfig   `json:"viewer"`
}

type CacheConfig struct {
	// Address of a valkey server. Empty keeps assets in memory.
	Address string `json:"address,omitempty"`
	TTL     string `json:"ttl,omitempty"`
}

type DocumentConfig struct {
	// ConvertedUpTo is the last page whose assets exist. Later pages start
	// out converting. Zero means every page is converted.
	ConvertedUpTo int                 `json:"convertedUpTo,omitempty"`
	ID            string              `json:"id"`
	Links         map[int][]page.Link `json:"links,omitempty"`
	Pages         int                 `json:"pages"`
	Revision      int64               `json:"revision,omitempty"`
	// URL is the location of the page assets, an http(s) URL or a directory.
	URL string `json:"url"`
}

type ViewerConfig struct {
	EnableLinks bool   `json:"enableLinks,omitempty"`
	RasterWidth int    `json:"rasterWidth,omitempty"`
	Renderer    string `json:"renderer,omitempty"`
	TextEnabled bool   `json:"textEnabled,omitempty"`
}

// Load reads and validates the configuration at path.
func Load(path string) (*Configuration, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading configuration: %w", err)
	}
	return Parse(raw)
}

func Parse(raw []byte) (*Configuration, error) {
	conf := &Configuration{}
	if err := yaml.UnmarshalStrict(raw, conf); err != nil {
		return nil, fmt.Errorf("parsing configuration: %w", err)
	}
	conf.Default()
	if err := conf.Validate(); err != nil {
		return nil, err
	}
	return conf, nil
}

func (c *Configuration) Default() {
	if c.Viewer.Renderer == "" {
		c.Viewer.Renderer = RendererAuto
	}
	if c.Viewer.RasterWidth == 0 {
		c.Viewer.RasterWidth = 1280
	}
	if c.Document.ID == "" {
		c.Document.ID = "document"
	}
}

func (c *Configuration) Validate() error {
	switch {
	case c.Document.URL == "":
		return fmt.Errorf("%w: document.url is required", ErrInvalid)
	case c.Document.Pages < 1:
		return fmt.Errorf("%w: document.pages must be positive", ErrInvalid)
	case c.Document.ConvertedUpTo < 0:
		return fmt.Errorf("%w: document.convertedUpTo must not be negative", ErrInvalid)
	}

	switch c.Viewer.Renderer {
	case RendererAuto, RendererRaster, RendererVector:
	default:
		return fmt.Errorf("%w: unknown renderer %q", ErrInvalid, c.Viewer.Renderer)
	}

	for pageNum := range c.Document.Links {
		if pageNum < 1 || pageNum > c.Document.Pages {
			return fmt.Errorf("%w: links for page %d outside the document", ErrInvalid, pageNum)
		}
	}

	if _, err := c.Cache.CacheTTL(); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalid, err)
	}
	return nil
}

// CacheTTL returns the parsed cache TTL, or nil when unset.
func (c CacheConfig) CacheTTL() (*time.Duration, error) {
	if c.TTL == "" {
		return nil, nil
	}
	ttl, err := time.ParseDuration(c.TTL)
	if err != nil {
		return nil, fmt.Errorf("cache.ttl: %w", err)
	}
	return &ttl, nil
}

// PageStatus is the status a page starts out with.
func (d DocumentConfig) PageStatus(pageNum int) page.Status {
	if d.ConvertedUpTo > 0 && pageNum > d.ConvertedUpTo {
		return page.StatusConverting
	}
	return page.StatusNotLoaded
}
