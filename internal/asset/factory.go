package asset

import (
	"context"
	"fmt"
	"sync"

	"github.com/go-logr/logr"

	"github.com/kdex-tech/kdex-pageview/internal/dom"
	"github.com/kdex-tech/kdex-pageview/internal/page"
)

// Factory builds the assets of every page of one document.
type Factory struct {
	ctx         context.Context
	fetcher     *Fetcher
	location    string
	log         logr.Logger
	rasterWidth int
	tree        *dom.Tree

	supportsVector func() bool
}

var _ page.AssetFactory = (*Factory)(nil)

func NewFactory(ctx context.Context, fetcher *Fetcher, tree *dom.Tree, location string, rasterWidth int, log logr.Logger) *Factory {
	f := &Factory{
		ctx:         ctx,
		fetcher:     fetcher,
		location:    location,
		log:         log,
		rasterWidth: rasterWidth,
		tree:        tree,
	}
	f.supportsVector = sync.OnceValue(func() bool {
		ok := fetcher.Exists(ctx, Join(location, fmt.Sprintf(VectorName, 1)))
		log.V(1).Info("vector probe", "supported", ok)
		return ok
	})
	return f
}

// SupportsVector reports whether the document is served as SVG. The origin
// is probed on first use only.
func (f *Factory) SupportsVector() bool {
	return f.supportsVector()
}

func (f *Factory) RasterContent(cfg page.Config) page.ContentAsset {
	return newRaster(f.base(cfg, "raster"), f.rasterWidth)
}

func (f *Factory) VectorContent(cfg page.Config) page.ContentAsset {
	return newVector(f.base(cfg, "vector"))
}

func (f *Factory) Text(cfg page.Config) page.TextAsset {
	return newText(f.base(cfg, "text"))
}

func (f *Factory) Links(cfg page.Config) page.LinkOverlay {
	return &Links{tree: f.tree}
}

func (f *Factory) base(cfg page.Config, name string) base {
	location := cfg.URL
	if location == "" {
		location = f.location
	}
	return base{
		ctx:      f.ctx,
		fetcher:  f.fetcher,
		location: location,
		log:      f.log.WithName(name),
		tree:     f.tree,
	}
}
