/*
Copyright 2025.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package page

import (
	"slices"
	"sync"

	"github.com/go-logr/logr"
	"golang.org/x/net/html"

	"github.com/kdex-tech/kdex-pageview/internal/bus"
	"github.com/kdex-tech/kdex-pageview/internal/promise"
)

var topics = []bus.Topic{
	bus.TopicPageAvailable,
	bus.TopicPageFocus,
	bus.TopicTextEnabledChange,
	bus.TopicZoom,
}

// Controller owns the load state of one page and its sub-assets.
type Controller struct {
	config    Config
	container *html.Node
	content   ContentAsset
	deps      Deps
	index     int
	inflight  *promise.Op
	links     LinkOverlay
	log       logr.Logger
	pageNum   int
	sub       bus.Subscription
	text      TextAsset

	mu            sync.Mutex
	isVisible     bool
	loadRequested bool
	status        Status
}

func New(container *html.Node, cfg Config, deps Deps) *Controller {
	c := &Controller{
		config:    cfg,
		container: container,
		deps:      deps,
		index:     cfg.Index,
		pageNum:   cfg.Index + 1,
		status:    cfg.Status,
	}
	c.log = deps.Log.WithName("page").WithValues("page", c.pageNum)

	contentEl := deps.Container.Find(ClassContent, container)
	textEl := deps.Container.Find(ClassText, container)
	linksEl := deps.Container.Find(ClassLinks, container)

	c.text = deps.Assets.Text(cfg)
	if deps.SupportsVector != nil && deps.SupportsVector() {
		c.content = deps.Assets.VectorContent(cfg)
	} else {
		c.content = deps.Assets.RasterContent(cfg)
	}

	c.text.Init(textEl, c.pageNum)
	c.content.Init(contentEl, c.pageNum)
	if !cfg.TextEnabled {
		c.text.Disable()
	}

	if cfg.EnableLinks && len(cfg.Links) > 0 {
		c.links = deps.Assets.Links(cfg)
		c.links.Init(linksEl, cfg.Links)
	}

	c.sub = deps.Bus.Subscribe(c.OnMessage, topics...)
	c.log.V(1).Info("initialized", "status", c.status, "links", c.links != nil)
	return c
}

func (c *Controller) Index() int {
	return c.index
}

func (c *Controller) PageNumber() int {
	return c.pageNum
}

func (c *Controller) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.status
}

func (c *Controller) Visible() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.isVisible
}

// HasLinks reports whether a link overlay was created.
func (c *Controller) HasLinks() bool {
	return c.links != nil
}

// Destroy unloads the page and stops listening to the bus.
func (c *Controller) Destroy() {
	c.Unload()
	c.sub.Unsubscribe()
}

// Preload warms the sub-assets of a page that is not loaded yet.
func (c *Controller) Preload() {
	c.content.Prepare()

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.status == StatusNotLoaded {
		c.content.Preload()
		c.text.Preload()
	}
}

// Load requests the page's content and text. It returns nil when the page
// has failed for good or is still converting. Otherwise the returned op
// settles after the page state reflects the outcome.
func (c *Controller) Load() *promise.Op {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.loadRequested = true

	switch c.status {
	case StatusError, StatusConverting:
		c.log.V(1).Info("load refused", "status", c.status)
		return nil
	case StatusLoaded:
		return promise.Resolved()
	case StatusLoading:
		if c.inflight != nil {
			return c.inflight
		}
	}

	c.status = StatusLoading
	op := promise.New()
	c.inflight = op
	combined := promise.When(c.content.Load(), c.text.Load())
	go c.await(combined, op)
	return op
}

// Unload releases the sub-assets. Only a loaded page changes state.
func (c *Controller) Unload() {
	c.mu.Lock()
	unloaded := c.unloadLocked()
	c.mu.Unlock()

	if unloaded {
		c.deps.Bus.Publish(bus.PageUnload{Page: c.pageNum})
	}
}

// EnableTextSelection loads the text layer right away only when the page is
// visible.
func (c *Controller) EnableTextSelection() {
	c.text.Enable()
	if !c.Visible() {
		return
	}
	if op := c.text.Load(); op != nil {
		op.Then(nil, func(err error) {
			c.log.V(1).Info("text load failed", "error", err.Error())
		})
	}
}

func (c *Controller) DisableTextSelection() {
	c.text.Disable()
}

// OnMessage dispatches one bus message. Unknown messages are ignored.
func (c *Controller) OnMessage(msg bus.Message) {
	switch m := msg.(type) {
	case bus.PageAvailable:
		if m.Covers(c.pageNum) {
			c.mu.Lock()
			if c.status == StatusConverting {
				c.status = StatusNotLoaded
				c.log.V(1).Info("available")
			}
			c.mu.Unlock()
		}
	case bus.TextEnabledChange:
		if m.Enabled {
			c.EnableTextSelection()
		} else {
			c.DisableTextSelection()
		}
	case bus.PageFocus:
		c.updateVisibility(m.Page, nil)
	case bus.Zoom:
		c.updateVisibility(m.Page, m.VisiblePages)
	}
}

func (c *Controller) updateVisibility(focused int, visiblePages []int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.isVisible = c.pageNum == focused || slices.Contains(visiblePages, c.pageNum)
}

func (c *Controller) await(combined, op *promise.Op) {
	<-combined.Done()

	var msg bus.Message
	if err := combined.Err(); err != nil {
		msg = c.loadFailed(err)
	} else {
		msg = c.loadSucceeded()
	}
	if msg != nil {
		c.deps.Bus.Publish(msg)
	}

	op.Reject(combined.Err())
}

func (c *Controller) loadFailed(err error) bus.Message {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.inflight = nil
	c.status = StatusError
	c.deps.Container.AddClass(c.container, MarkerError)
	c.log.V(1).Info("load failed", "error", err.Error())
	return bus.PageFail{Page: c.pageNum, Err: err}
}

func (c *Controller) loadSucceeded() bus.Message {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.inflight = nil

	if !c.loadRequested {
		// An unload came in while loading: keep the result only long enough
		// to release it again.
		c.log.V(1).Info("discarding superseded load")
		c.status = StatusLoaded
		if c.unloadLocked() {
			return bus.PageUnload{Page: c.pageNum}
		}
		return nil
	}

	if c.status == StatusLoaded {
		return nil
	}
	c.deps.Container.RemoveClass(c.container, MarkerLoading)
	c.status = StatusLoaded
	c.log.V(1).Info("loaded")
	return bus.PageLoad{Page: c.pageNum}
}

func (c *Controller) unloadLocked() bool {
	c.loadRequested = false
	c.content.Unload()
	c.text.Unload()

	if c.status != StatusLoaded {
		return false
	}
	c.status = StatusNotLoaded
	c.deps.Container.AddClass(c.container, MarkerLoading)
	c.deps.Container.RemoveClass(c.container, MarkerError)
	c.log.V(1).Info("unloaded")
	return true
}
