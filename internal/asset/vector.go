package asset

import (
	"context"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"github.com/kdex-tech/kdex-pageview/internal/dom"
	"github.com/kdex-tech/kdex-pageview/internal/mime"
)

// Vector renders the page from its SVG asset.
type Vector struct {
	base
	loadable[[]*html.Node]
	layer *html.Node
}

func newVector(b base) *Vector {
	v := &Vector{base: b}
	v.loadable = loadable[[]*html.Node]{
		ctx:    b.ctx,
		fetch:  v.fetchSVG,
		render: v.render,
		clear:  v.clear,
	}
	return v
}

// Prepare adds the empty layer the SVG is rendered into.
func (v *Vector) Prepare() {
	v.loadable.mu.Lock()
	defer v.loadable.mu.Unlock()
	v.ensureLayer()
}

func (v *Vector) Preload() {
	v.warm(VectorName)
}

func (v *Vector) fetchSVG(ctx context.Context) ([]*html.Node, error) {
	body, err := v.fetcher.Fetch(ctx, v.ref(VectorName))
	if err != nil {
		return nil, err
	}
	if _, err := mime.Expect(body, mime.KindVector); err != nil {
		return nil, err
	}
	return parseFragment(body)
}

func (v *Vector) render(nodes []*html.Node) {
	v.ensureLayer()
	v.tree.ReplaceChildren(v.layer, nodes...)
}

func (v *Vector) clear() {
	if v.layer != nil {
		v.tree.ReplaceChildren(v.layer)
	}
}

func (v *Vector) ensureLayer() {
	if v.layer != nil {
		return
	}
	v.layer = dom.Element(atom.Div, ClassLayer, "vector")
	v.tree.Append(v.el, v.layer)
}
