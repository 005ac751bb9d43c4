package asset

import (
	"context"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"github.com/kdex-tech/kdex-pageview/internal/dom"
	"github.com/kdex-tech/kdex-pageview/internal/mime"
)

// Text renders the selectable text layer of a page.
type Text struct {
	base
	loadable[[]*html.Node]
}

func newText(b base) *Text {
	t := &Text{base: b}
	t.loadable = loadable[[]*html.Node]{
		ctx:    b.ctx,
		fetch:  t.fetchText,
		render: t.render,
		clear:  t.clear,
	}
	return t
}

func (t *Text) Prepare() {}

func (t *Text) Preload() {
	t.warm(TextName)
}

func (t *Text) Enable() {
	t.tree.RemoveClass(t.el, ClassTextDisabled)
}

func (t *Text) Disable() {
	t.tree.AddClass(t.el, ClassTextDisabled)
}

func (t *Text) Enabled() bool {
	return !t.tree.HasClass(t.el, ClassTextDisabled)
}

func (t *Text) fetchText(ctx context.Context) ([]*html.Node, error) {
	body, err := t.fetcher.Fetch(ctx, t.ref(TextName))
	if err != nil {
		return nil, err
	}
	kind, err := mime.Expect(body, mime.KindMarkup, mime.KindText)
	if err != nil {
		return nil, err
	}
	if kind == mime.KindText {
		p := dom.Element(atom.P)
		p.AppendChild(&html.Node{Type: html.TextNode, Data: string(body)})
		return []*html.Node{p}, nil
	}
	return parseFragment(body)
}

func (t *Text) render(nodes []*html.Node) {
	t.tree.ReplaceChildren(t.el, nodes...)
}

func (t *Text) clear() {
	t.tree.ReplaceChildren(t.el)
}
