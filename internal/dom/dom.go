// Package dom holds the viewer's visual tree and the class-marker helpers the
// page controllers use on it.
package dom

import (
	"fmt"
	"io"
	"slices"
	"strings"
	"sync"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// Tree guards a parsed document. Every read or mutation of nodes that belong
// to it goes through its methods.
type Tree struct {
	mu   sync.RWMutex
	root *html.Node
}

func NewTree(root *html.Node) *Tree {
	return &Tree{root: root}
}

// Parse builds a tree from an HTML document.
func Parse(r io.Reader) (*Tree, error) {
	root, err := html.Parse(r)
	if err != nil {
		return nil, fmt.Errorf("parsing document: %w", err)
	}
	return NewTree(root), nil
}

func (t *Tree) Root() *html.Node {
	return t.root
}

// Element creates a detached element with the given classes.
func Element(a atom.Atom, classes ...string) *html.Node {
	n := &html.Node{
		Type:     html.ElementNode,
		Data:     a.String(),
		DataAtom: a,
	}
	if len(classes) > 0 {
		n.Attr = []html.Attribute{{Key: "class", Val: strings.Join(classes, " ")}}
	}
	return n
}

// Find returns the first descendant of container carrying class, or nil.
// Every helper below treats a nil node as empty: queries return zero values
// and edits do nothing.
func (t *Tree) Find(class string, container *html.Node) *html.Node {
	if container == nil {
		return nil
	}
	t.mu.RLock()
	defer t.mu.RUnlock()
	return find(class, container)
}

// Append adds child as the last child of parent.
func (t *Tree) Append(parent, child *html.Node) {
	if parent == nil || child == nil {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	parent.AppendChild(child)
}

func (t *Tree) AddClass(n *html.Node, class string) {
	if n == nil {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	classes := classList(n)
	if slices.Contains(classes, class) {
		return
	}
	setAttr(n, "class", strings.Join(append(classes, class), " "))
}

func (t *Tree) RemoveClass(n *html.Node, class string) {
	if n == nil {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	classes := classList(n)
	if !slices.Contains(classes, class) {
		return
	}
	setAttr(n, "class", strings.Join(slices.DeleteFunc(classes, func(c string) bool {
		return c == class
	}), " "))
}

func (t *Tree) HasClass(n *html.Node, class string) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return slices.Contains(classList(n), class)
}

// Attr returns the value of the named attribute of n.
func (t *Tree) Attr(n *html.Node, key string) (string, bool) {
	if n == nil {
		return "", false
	}
	t.mu.RLock()
	defer t.mu.RUnlock()
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val, true
		}
	}
	return "", false
}

func (t *Tree) SetAttr(n *html.Node, key, val string) {
	if n == nil {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	setAttr(n, key, val)
}

// ReplaceChildren detaches every child of parent and appends children.
func (t *Tree) ReplaceChildren(parent *html.Node, children ...*html.Node) {
	if parent == nil {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	for c := parent.FirstChild; c != nil; c = parent.FirstChild {
		parent.RemoveChild(c)
	}
	for _, c := range children {
		if c.Parent != nil {
			c.Parent.RemoveChild(c)
		}
		parent.AppendChild(c)
	}
}

// Children returns the number of direct children of n.
func (t *Tree) Children(n *html.Node) int {
	if n == nil {
		return 0
	}
	t.mu.RLock()
	defer t.mu.RUnlock()
	count := 0
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		count++
	}
	return count
}

// Render writes n and its subtree as HTML.
func (t *Tree) Render(w io.Writer, n *html.Node) error {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if n == nil {
		n = t.root
	}
	return html.Render(w, n)
}

func classList(n *html.Node) []string {
	if n == nil {
		return nil
	}
	for _, a := range n.Attr {
		if a.Key == "class" {
			return strings.Fields(a.Val)
		}
	}
	return nil
}

func find(class string, n *html.Node) *html.Node {
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == html.ElementNode && slices.Contains(classList(c), class) {
			return c
		}
		if found := find(class, c); found != nil {
			return found
		}
	}
	return nil
}

func setAttr(n *html.Node, key, val string) {
	for i := range n.Attr {
		if n.Attr[i].Key == key {
			n.Attr[i].Val = val
			return
		}
	}
	n.Attr = append(n.Attr, html.Attribute{Key: key, Val: val})
}
