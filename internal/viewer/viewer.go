// Package viewer is the document shell around the page controllers: it builds
// the page containers, owns the bus, and relays external signals onto it.
package viewer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/go-logr/logr"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"github.com/kdex-tech/kdex-pageview/internal/asset"
	"github.com/kdex-tech/kdex-pageview/internal/bus"
	"github.com/kdex-tech/kdex-pageview/internal/config"
	"github.com/kdex-tech/kdex-pageview/internal/dom"
	"github.com/kdex-tech/kdex-pageview/internal/page"
	"github.com/kdex-tech/kdex-pageview/internal/promise"
)

var (
	ErrNotLoadable  = errors.New("page cannot be loaded")
	ErrPageNotFound = errors.New("page not found")
)

const ClassViewer = "viewer"

// PageState is a snapshot of one page.
type PageState struct {
	Error   string      `json:"error,omitempty"`
	Page    int         `json:"page"`
	Status  page.Status `json:"status"`
	Visible bool        `json:"visible"`
}

type Viewer struct {
	bus     *bus.Bus
	conf    *config.Configuration
	factory *asset.Factory
	log     logr.Logger
	pages   *page.PageStore
	sub     bus.Subscription
	tree    *dom.Tree

	mu       sync.RWMutex
	failures map[int]error
	loaded   map[int]bool
}

// New builds one container and one controller per page. ctx bounds every
// asset fetch the viewer starts.
func New(ctx context.Context, conf *config.Configuration, fetcher *asset.Fetcher, log logr.Logger) *Viewer {
	root := dom.Element(atom.Div, ClassViewer)
	root.Attr = append(root.Attr, html.Attribute{Key: "data-document", Val: conf.Document.ID})

	v := &Viewer{
		bus:      bus.New(log.WithName("bus")),
		conf:     conf,
		failures: map[int]error{},
		loaded:   map[int]bool{},
		log:      log,
		tree:     dom.NewTree(root),
	}
	v.factory = asset.NewFactory(ctx, fetcher, v.tree, conf.Document.URL, conf.Viewer.RasterWidth, log.WithName("asset"))
	v.pages = page.NewPageStore(nil, log.WithName("pages"))
	v.sub = v.bus.Subscribe(v.track, bus.TopicPageLoad, bus.TopicPageUnload, bus.TopicPageFail)

	deps := page.Deps{
		Assets:         v.factory,
		Bus:            v.bus,
		Container:      v.tree,
		Log:            log,
		SupportsVector: v.supportsVector(),
	}

	for index := range conf.Document.Pages {
		pageNum := index + 1
		container := v.newContainer(pageNum)
		v.pages.Set(page.New(container, page.Config{
			EnableLinks: conf.Viewer.EnableLinks,
			Index:       index,
			Links:       conf.Document.Links[pageNum],
			Status:      conf.Document.PageStatus(pageNum),
			TextEnabled: conf.Viewer.TextEnabled,
		}, deps))
	}

	log.Info("viewer ready", "document", conf.Document.ID, "pages", v.pages.Count(), "renderer", conf.Viewer.Renderer)
	return v
}

func (v *Viewer) Bus() *bus.Bus {
	return v.bus
}

func (v *Viewer) Tree() *dom.Tree {
	return v.tree
}

func (v *Viewer) Pages() []PageState {
	states := []PageState{}
	for _, c := range v.pages.List() {
		states = append(states, v.state(c))
	}
	return states
}

func (v *Viewer) Page(pageNum int) (PageState, error) {
	c, err := v.controller(pageNum)
	if err != nil {
		return PageState{}, err
	}
	return v.state(c), nil
}

// Loaded returns the page numbers that are currently loaded.
func (v *Viewer) Loaded() []int {
	v.mu.RLock()
	defer v.mu.RUnlock()
	loaded := []int{}
	for _, c := range v.pages.List() {
		if v.loaded[c.PageNumber()] {
			loaded = append(loaded, c.PageNumber())
		}
	}
	return loaded
}

func (v *Viewer) Preload(pageNum int) error {
	c, err := v.controller(pageNum)
	if err != nil {
		return err
	}
	c.Preload()
	return nil
}

func (v *Viewer) Load(pageNum int) (*promise.Op, error) {
	c, err := v.controller(pageNum)
	if err != nil {
		return nil, err
	}
	op := c.Load()
	if op == nil {
		return nil, fmt.Errorf("%w: page %d is %s", ErrNotLoadable, pageNum, c.Status())
	}
	return op, nil
}

func (v *Viewer) Unload(pageNum int) error {
	c, err := v.controller(pageNum)
	if err != nil {
		return err
	}
	c.Unload()
	return nil
}

// Available announces converted pages.
func (v *Viewer) Available(msg bus.PageAvailable) {
	v.bus.Publish(msg)
}

func (v *Viewer) Focus(pageNum int) {
	v.bus.Publish(bus.PageFocus{Page: pageNum})
}

func (v *Viewer) Zoom(pageNum int, visiblePages []int) {
	v.bus.Publish(bus.Zoom{Page: pageNum, VisiblePages: visiblePages})
}

func (v *Viewer) SetTextEnabled(enabled bool) {
	v.bus.Publish(bus.TextEnabledChange{Enabled: enabled})
}

// Render writes the whole document tree.
func (v *Viewer) Render(w io.Writer) error {
	return v.tree.Render(w, v.tree.Root())
}

// Close destroys every page controller.
func (v *Viewer) Close() {
	for _, c := range v.pages.List() {
		v.pages.Delete(c.PageNumber())
	}
	v.sub.Unsubscribe()
	v.log.Info("viewer closed", "document", v.conf.Document.ID)
}

func (v *Viewer) controller(pageNum int) (*page.Controller, error) {
	c, ok := v.pages.Get(pageNum)
	if !ok {
		return nil, fmt.Errorf("%w: %d", ErrPageNotFound, pageNum)
	}
	return c, nil
}

func (v *Viewer) newContainer(pageNum int) *html.Node {
	container := dom.Element(atom.Div, "page", page.MarkerLoading)
	container.Attr = append(container.Attr, html.Attribute{Key: "id", Val: fmt.Sprintf("page-%d", pageNum)})
	for _, class := range []string{page.ClassContent, page.ClassText, page.ClassLinks} {
		container.AppendChild(dom.Element(atom.Div, class))
	}
	v.tree.Append(v.tree.Root(), container)
	return container
}

func (v *Viewer) state(c *page.Controller) PageState {
	s := PageState{
		Page:    c.PageNumber(),
		Status:  c.Status(),
		Visible: c.Visible(),
	}
	v.mu.RLock()
	defer v.mu.RUnlock()
	if err := v.failures[s.Page]; err != nil {
		s.Error = err.Error()
	}
	return s
}

func (v *Viewer) supportsVector() func() bool {
	switch v.conf.Viewer.Renderer {
	case config.RendererVector:
		return func() bool { return true }
	case config.RendererRaster:
		return func() bool { return false }
	default:
		return v.factory.SupportsVector
	}
}

func (v *Viewer) track(msg bus.Message) {
	v.mu.Lock()
	defer v.mu.Unlock()

	switch m := msg.(type) {
	case bus.PageLoad:
		v.loaded[m.Page] = true
	case bus.PageUnload:
		delete(v.loaded, m.Page)
	case bus.PageFail:
		delete(v.loaded, m.Page)
		v.failures[m.Page] = m.Err
		v.log.Error(m.Err, "page failed", "page", m.Page)
	}
}
