package asset

import (
	"bytes"
	"context"
	"fmt"

	"github.com/go-logr/logr"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"github.com/kdex-tech/kdex-pageview/internal/dom"
)

// Asset names relative to a page's location.
const (
	RasterName = "page-%d.png"
	TextName   = "text-%d.html"
	VectorName = "page-%d.svg"
)

// Names lists every asset a page may have.
func Names(pageNum int) []string {
	return []string{
		fmt.Sprintf(RasterName, pageNum),
		fmt.Sprintf(TextName, pageNum),
		fmt.Sprintf(VectorName, pageNum),
	}
}

const (
	ClassLayer        = "content-layer"
	ClassLink         = "page-link"
	ClassTextDisabled = "text-disabled"
)

type base struct {
	ctx      context.Context
	el       *html.Node
	fetcher  *Fetcher
	location string
	log      logr.Logger
	pageNum  int
	tree     *dom.Tree
}

func (b *base) Init(el *html.Node, pageNum int) {
	b.el = el
	b.pageNum = pageNum
	b.log = b.log.WithValues("page", pageNum)
}

func (b *base) ref(name string) string {
	return Join(b.location, fmt.Sprintf(name, b.pageNum))
}

// warm fetches name into the cache in the background.
func (b *base) warm(name string) {
	ref := b.ref(name)
	go func() {
		if err := b.fetcher.Warm(b.ctx, ref); err != nil {
			b.log.V(1).Info("preload failed", "ref", ref, "error", err.Error())
		}
	}()
}

func parseFragment(body []byte) ([]*html.Node, error) {
	nodes, err := html.ParseFragment(bytes.NewReader(body), dom.Element(atom.Div))
	if err != nil {
		return nil, fmt.Errorf("parsing fragment: %w", err)
	}
	return nodes, nil
}
