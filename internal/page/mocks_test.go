package page

import (
	"slices"
	"strings"
	"sync"

	"github.com/go-logr/logr"
	"golang.org/x/net/html"

	"github.com/kdex-tech/kdex-pageview/internal/bus"
	"github.com/kdex-tech/kdex-pageview/internal/dom"
	"github.com/kdex-tech/kdex-pageview/internal/promise"
)

type mockAsset struct {
	mu      sync.Mutex
	calls   map[string]int
	el      *html.Node
	enabled bool
	ops     []*promise.Op
	pageNum int
	// pending makes Load hand out unsettled ops the test settles itself.
	pending bool
}

func newMockAsset() *mockAsset {
	return &mockAsset{calls: map[string]int{}, enabled: true}
}

func (a *mockAsset) record(name string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.calls[name]++
}

func (a *mockAsset) Calls(name string) int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.calls[name]
}

func (a *mockAsset) Enabled() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.enabled
}

// Last returns the op handed out by the most recent Load.
func (a *mockAsset) Last() *promise.Op {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.ops[len(a.ops)-1]
}

func (a *mockAsset) Init(el *html.Node, pageNum int) {
	a.record("init")
	a.el = el
	a.pageNum = pageNum
}

func (a *mockAsset) Prepare() { a.record("prepare") }
func (a *mockAsset) Preload() { a.record("preload") }
func (a *mockAsset) Unload()  { a.record("unload") }

func (a *mockAsset) Load() *promise.Op {
	a.record("load")
	a.mu.Lock()
	defer a.mu.Unlock()
	op := promise.Resolved()
	if a.pending {
		op = promise.New()
	}
	a.ops = append(a.ops, op)
	return op
}

func (a *mockAsset) Enable() {
	a.record("enable")
	a.mu.Lock()
	a.enabled = true
	a.mu.Unlock()
}

func (a *mockAsset) Disable() {
	a.record("disable")
	a.mu.Lock()
	a.enabled = false
	a.mu.Unlock()
}

type mockLinks struct {
	el    *html.Node
	links []Link
}

func (l *mockLinks) Init(el *html.Node, links []Link) {
	l.el = el
	l.links = links
}

type mockFactory struct {
	built  []string
	links  *mockLinks
	raster *mockAsset
	text   *mockAsset
	vector *mockAsset
}

func newMockFactory() *mockFactory {
	return &mockFactory{
		links:  &mockLinks{},
		raster: newMockAsset(),
		text:   newMockAsset(),
		vector: newMockAsset(),
	}
}

func (f *mockFactory) RasterContent(cfg Config) ContentAsset {
	f.built = append(f.built, "raster")
	return f.raster
}

func (f *mockFactory) VectorContent(cfg Config) ContentAsset {
	f.built = append(f.built, "vector")
	return f.vector
}

func (f *mockFactory) Text(cfg Config) TextAsset {
	f.built = append(f.built, "text")
	return f.text
}

func (f *mockFactory) Links(cfg Config) LinkOverlay {
	f.built = append(f.built, "links")
	return f.links
}

// recorder collects what controllers broadcast.
type recorder struct {
	mu   sync.Mutex
	msgs []bus.Message
}

func record(b *bus.Bus) *recorder {
	r := &recorder{}
	b.Subscribe(func(msg bus.Message) {
		r.mu.Lock()
		defer r.mu.Unlock()
		r.msgs = append(r.msgs, msg)
	}, bus.TopicPageLoad, bus.TopicPageUnload, bus.TopicPageFail)
	return r
}

func (r *recorder) Messages() []bus.Message {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]bus.Message(nil), r.msgs...)
}

func (r *recorder) Count(topic bus.Topic) int {
	count := 0
	for _, msg := range r.Messages() {
		if msg.Topic() == topic {
			count++
		}
	}
	return count
}

const pageMarkup = `<div class="page page-loading"><div class="page-content"></div><div class="page-text"></div><div class="page-links"></div></div>`

type fixture struct {
	bus       *bus.Bus
	container *html.Node
	deps      Deps
	factory   *mockFactory
	probes    int
	tree      *dom.Tree
}

func newFixture(vector bool) *fixture {
	tree, err := dom.Parse(strings.NewReader(pageMarkup))
	if err != nil {
		panic(err)
	}
	f := &fixture{
		bus:     bus.New(logr.Discard()),
		factory: newMockFactory(),
		tree:    tree,
	}
	f.container = tree.Find("page", tree.Root())
	f.deps = Deps{
		Assets:    f.factory,
		Bus:       f.bus,
		Container: tree,
		Log:       logr.Discard(),
		SupportsVector: func() bool {
			f.probes++
			return vector
		},
	}
	return f
}

func (f *fixture) content() *mockAsset {
	if slices.Contains(f.factory.built, "vector") {
		return f.factory.vector
	}
	return f.factory.raster
}
