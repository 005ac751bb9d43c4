package asset

import (
	"fmt"
	"strconv"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"github.com/kdex-tech/kdex-pageview/internal/dom"
	"github.com/kdex-tech/kdex-pageview/internal/page"
)

// Links renders the clickable regions of a page.
type Links struct {
	tree *dom.Tree
}

func (l *Links) Init(el *html.Node, links []page.Link) {
	for _, link := range links {
		a := dom.Element(atom.A, ClassLink)
		if link.Destination > 0 {
			a.Attr = append(a.Attr,
				html.Attribute{Key: "href", Val: fmt.Sprintf("#page-%d", link.Destination)},
				html.Attribute{Key: "data-page", Val: strconv.Itoa(link.Destination)},
			)
		} else {
			a.Attr = append(a.Attr,
				html.Attribute{Key: "href", Val: link.URL},
				html.Attribute{Key: "rel", Val: "noreferrer"},
				html.Attribute{Key: "target", Val: "_blank"},
			)
		}
		a.Attr = append(a.Attr, html.Attribute{Key: "style", Val: fmt.Sprintf(
			"left:%.2f%%;top:%.2f%%;width:%.2f%%;height:%.2f%%",
			link.Left*100, link.Top*100, link.Width*100, link.Height*100,
		)})
		l.tree.Append(el, a)
	}
}
