package page

import (
	"context"
	"errors"
	"math/rand/v2"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/kdex-tech/kdex-pageview/internal/bus"
	"github.com/kdex-tech/kdex-pageview/internal/metrics"
	"github.com/kdex-tech/kdex-pageview/internal/promise"
)

func settle(op *promise.Op) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return op.Wait(ctx)
}

var _ = Describe("Page Controller", func() {
	var (
		f   *fixture
		rec *recorder
	)

	BeforeEach(func() {
		f = newFixture(true)
		rec = record(f.bus)
	})

	Context("When constructing", func() {
		It("should pick the vector content asset when vectors are supported", func() {
			c := New(f.container, Config{Index: 2, TextEnabled: true}, f.deps)

			Expect(c.PageNumber()).To(Equal(3))
			Expect(c.Index()).To(Equal(2))
			Expect(c.Status()).To(Equal(StatusNotLoaded))
			Expect(f.factory.built).To(ConsistOf("text", "vector"))
			Expect(f.probes).To(Equal(1))
			Expect(f.factory.vector.pageNum).To(Equal(3))
			Expect(f.factory.vector.el).To(BeIdenticalTo(f.tree.Find(ClassContent, f.container)))
			Expect(f.factory.text.el).To(BeIdenticalTo(f.tree.Find(ClassText, f.container)))
			Expect(f.factory.text.Calls("disable")).To(Equal(0))
		})

		It("should pick the raster content asset otherwise", func() {
			f = newFixture(false)
			New(f.container, Config{}, f.deps)
			Expect(f.factory.built).To(ConsistOf("text", "raster"))
		})

		It("should fall back to raster without a capability probe", func() {
			f.deps.SupportsVector = nil
			New(f.container, Config{}, f.deps)
			Expect(f.factory.built).To(ContainElement("raster"))
		})

		It("should never query the capability again", func() {
			c := New(f.container, Config{}, f.deps)
			Expect(settle(c.Load())).To(Succeed())
			c.Unload()
			c.Preload()
			Expect(f.probes).To(Equal(1))
		})

		It("should start disabled text selection when text is not enabled", func() {
			New(f.container, Config{}, f.deps)
			Expect(f.factory.text.Enabled()).To(BeFalse())
		})

		It("should not create a link overlay for an empty link list", func() {
			c := New(f.container, Config{EnableLinks: true}, f.deps)
			Expect(c.HasLinks()).To(BeFalse())
			Expect(f.factory.built).NotTo(ContainElement("links"))
		})

		It("should not create a link overlay when links are disabled", func() {
			c := New(f.container, Config{Links: []Link{{URL: "https://example.com"}}}, f.deps)
			Expect(c.HasLinks()).To(BeFalse())
		})

		It("should create a link overlay when enabled with links", func() {
			links := []Link{{URL: "https://example.com", Width: 0.5, Height: 0.1}}
			c := New(f.container, Config{EnableLinks: true, Links: links}, f.deps)
			Expect(c.HasLinks()).To(BeTrue())
			Expect(f.factory.links.links).To(Equal(links))
			Expect(f.factory.links.el).To(BeIdenticalTo(f.tree.Find(ClassLinks, f.container)))
		})

		It("should take the initial status from the config", func() {
			c := New(f.container, Config{Status: StatusConverting}, f.deps)
			Expect(c.Status()).To(Equal(StatusConverting))
		})
	})

	Context("When loading", func() {
		It("should load content and text and broadcast pageload", func() {
			c := New(f.container, Config{}, f.deps)

			Expect(settle(c.Load())).To(Succeed())

			Expect(c.Status()).To(Equal(StatusLoaded))
			Expect(f.tree.HasClass(f.container, MarkerLoading)).To(BeFalse())
			Expect(f.content().Calls("load")).To(Equal(1))
			Expect(f.factory.text.Calls("load")).To(Equal(1))
			Expect(rec.Messages()).To(Equal([]bus.Message{bus.PageLoad{Page: 1}}))
		})

		It("should report LOADING while the assets are in flight", func() {
			f.factory.vector.pending = true
			c := New(f.container, Config{}, f.deps)

			op := c.Load()
			Expect(c.Status()).To(Equal(StatusLoading))
			Expect(op.Settled()).To(BeFalse())

			f.factory.vector.Last().Resolve()
			Expect(settle(op)).To(Succeed())
			Expect(c.Status()).To(Equal(StatusLoaded))
		})

		It("should not start a second load while one is in flight", func() {
			f.factory.vector.pending = true
			c := New(f.container, Config{}, f.deps)

			first := c.Load()
			second := c.Load()
			Expect(second).To(BeIdenticalTo(first))
			Expect(f.factory.vector.Calls("load")).To(Equal(1))

			f.factory.vector.Last().Resolve()
			Expect(settle(first)).To(Succeed())
			Expect(rec.Count(bus.TopicPageLoad)).To(Equal(1))
		})

		It("should not touch the assets when already loaded", func() {
			c := New(f.container, Config{}, f.deps)
			Expect(settle(c.Load())).To(Succeed())

			op := c.Load()
			Expect(op).NotTo(BeNil())
			Expect(op.Settled()).To(BeTrue())
			Expect(f.content().Calls("load")).To(Equal(1))
			Expect(rec.Count(bus.TopicPageLoad)).To(Equal(1))
		})

		It("should fail the page when an asset fails", func() {
			f.factory.text.pending = true
			c := New(f.container, Config{}, f.deps)
			boom := errors.New("text layer missing")

			op := c.Load()
			f.factory.text.Last().Reject(boom)

			Expect(settle(op)).To(MatchError(boom))
			Expect(c.Status()).To(Equal(StatusError))
			Expect(f.tree.HasClass(f.container, MarkerError)).To(BeTrue())
			Expect(rec.Messages()).To(Equal([]bus.Message{bus.PageFail{Page: 1, Err: boom}}))
		})

		It("should refuse to load a failed page without touching the assets", func() {
			f.factory.vector.pending = true
			c := New(f.container, Config{}, f.deps)
			op := c.Load()
			f.factory.vector.Last().Reject(errors.New("gone"))
			Expect(settle(op)).NotTo(Succeed())

			Expect(c.Load()).To(BeNil())
			Expect(c.Load()).To(BeNil())
			Expect(f.factory.vector.Calls("load")).To(Equal(1))
			Expect(f.factory.text.Calls("load")).To(Equal(1))
			Expect(c.Status()).To(Equal(StatusError))
		})

		It("should refuse to load a converting page without touching the assets", func() {
			c := New(f.container, Config{Status: StatusConverting}, f.deps)

			Expect(c.Load()).To(BeNil())
			Expect(f.content().Calls("load")).To(Equal(0))
			Expect(f.factory.text.Calls("load")).To(Equal(0))
			Expect(c.Status()).To(Equal(StatusConverting))
		})
	})

	Context("When unloading", func() {
		It("should broadcast pageunload exactly once", func() {
			c := New(f.container, Config{}, f.deps)
			Expect(settle(c.Load())).To(Succeed())

			c.Unload()
			c.Unload()

			Expect(c.Status()).To(Equal(StatusNotLoaded))
			Expect(rec.Count(bus.TopicPageUnload)).To(Equal(1))
			Expect(f.tree.HasClass(f.container, MarkerLoading)).To(BeTrue())
			Expect(f.content().Calls("unload")).To(Equal(2))
			Expect(f.factory.text.Calls("unload")).To(Equal(2))
		})

		It("should still release the assets of a page that is not loaded", func() {
			c := New(f.container, Config{}, f.deps)

			c.Unload()

			Expect(c.Status()).To(Equal(StatusNotLoaded))
			Expect(rec.Messages()).To(BeEmpty())
			Expect(f.content().Calls("unload")).To(Equal(1))
			Expect(f.factory.text.Calls("unload")).To(Equal(1))
		})

		It("should discard a load that completes after an unload", func() {
			f.factory.vector.pending = true
			c := New(f.container, Config{}, f.deps)

			op := c.Load()
			c.Unload()
			Expect(c.Status()).To(Equal(StatusLoading))
			f.factory.vector.Last().Resolve()
			Expect(settle(op)).To(Succeed())

			Expect(c.Status()).To(Equal(StatusNotLoaded))
			Expect(rec.Messages()).To(Equal([]bus.Message{bus.PageUnload{Page: 1}}))
			Expect(f.tree.HasClass(f.container, MarkerLoading)).To(BeTrue())
		})

		It("should not count a discarded load as loaded or unloaded", func() {
			m := metrics.New(prometheus.NewRegistry(), "report")
			m.Observe(f.bus)
			f.factory.vector.pending = true
			c := New(f.container, Config{}, f.deps)

			op := c.Load()
			c.Unload()
			f.factory.vector.Last().Resolve()
			Expect(settle(op)).To(Succeed())

			Expect(rec.Count(bus.TopicPageUnload)).To(Equal(1))
			Expect(testutil.ToFloat64(m.Loaded)).To(BeZero())
			Expect(testutil.ToFloat64(m.Loads)).To(BeZero())
			Expect(testutil.ToFloat64(m.Unloads)).To(BeZero())
		})

		It("should keep a load that was requested again before completing", func() {
			f.factory.vector.pending = true
			c := New(f.container, Config{}, f.deps)

			op := c.Load()
			c.Unload()
			Expect(c.Load()).To(BeIdenticalTo(op))
			f.factory.vector.Last().Resolve()
			Expect(settle(op)).To(Succeed())

			Expect(c.Status()).To(Equal(StatusLoaded))
			Expect(rec.Messages()).To(Equal([]bus.Message{bus.PageLoad{Page: 1}}))
		})

		It("should fail the page even when the load was superseded", func() {
			f.factory.vector.pending = true
			c := New(f.container, Config{}, f.deps)

			op := c.Load()
			c.Unload()
			f.factory.vector.Last().Reject(errors.New("broken"))
			Expect(settle(op)).NotTo(Succeed())

			Expect(c.Status()).To(Equal(StatusError))
			Expect(rec.Count(bus.TopicPageFail)).To(Equal(1))
		})

		It("should clear the error marker when a loaded page unloads", func() {
			c := New(f.container, Config{}, f.deps)
			f.tree.AddClass(f.container, MarkerError)
			Expect(settle(c.Load())).To(Succeed())

			c.Unload()
			Expect(f.tree.HasClass(f.container, MarkerError)).To(BeFalse())
		})

		It("should settle on the last intent for any sequence", func() {
			rng := rand.New(rand.NewPCG(1, 2))
			for range 50 {
				f = newFixture(true)
				rec = record(f.bus)
				f.factory.vector.pending = true
				c := New(f.container, Config{}, f.deps)

				var op *promise.Op
				lastLoad := false
				for range 1 + rng.IntN(6) {
					if rng.IntN(2) == 0 {
						if next := c.Load(); next != nil {
							op = next
						}
						lastLoad = true
					} else {
						c.Unload()
						lastLoad = false
					}
				}
				if op == nil {
					Expect(c.Status()).To(Equal(StatusNotLoaded))
					continue
				}
				f.factory.vector.Last().Resolve()
				Expect(settle(op)).To(Succeed())

				if lastLoad {
					Expect(c.Status()).To(Equal(StatusLoaded))
					Expect(rec.Count(bus.TopicPageLoad)).To(Equal(1))
				} else {
					Expect(c.Status()).To(Equal(StatusNotLoaded))
					Expect(rec.Count(bus.TopicPageLoad)).To(Equal(0))
				}
			}
		})
	})

	Context("When preloading", func() {
		It("should prepare and preload a page that is not loaded", func() {
			c := New(f.container, Config{}, f.deps)

			c.Preload()

			Expect(f.content().Calls("prepare")).To(Equal(1))
			Expect(f.content().Calls("preload")).To(Equal(1))
			Expect(f.factory.text.Calls("preload")).To(Equal(1))
			Expect(c.Status()).To(Equal(StatusNotLoaded))
			Expect(rec.Messages()).To(BeEmpty())
		})

		It("should only prepare a page in any other state", func() {
			c := New(f.container, Config{Status: StatusConverting}, f.deps)

			c.Preload()

			Expect(f.content().Calls("prepare")).To(Equal(1))
			Expect(f.content().Calls("preload")).To(Equal(0))
			Expect(f.factory.text.Calls("preload")).To(Equal(0))
		})
	})

	Context("When receiving messages", func() {
		It("should leave CONVERTING when all pages become available", func() {
			c := New(f.container, Config{Status: StatusConverting}, f.deps)

			f.bus.Publish(bus.PageAvailable{All: true})

			Expect(c.Status()).To(Equal(StatusNotLoaded))
			Expect(settle(c.Load())).To(Succeed())
			Expect(c.Status()).To(Equal(StatusLoaded))
		})

		It("should leave CONVERTING for its own page or an upto covering it", func() {
			c := New(f.container, Config{Index: 4, Status: StatusConverting}, f.deps)

			f.bus.Publish(bus.PageAvailable{Page: 4})
			f.bus.Publish(bus.PageAvailable{UpTo: 4})
			Expect(c.Status()).To(Equal(StatusConverting))

			f.bus.Publish(bus.PageAvailable{UpTo: 5})
			Expect(c.Status()).To(Equal(StatusNotLoaded))

			other := New(f.container, Config{Index: 1, Status: StatusConverting}, f.deps)
			f.bus.Publish(bus.PageAvailable{Page: 2})
			Expect(other.Status()).To(Equal(StatusNotLoaded))
		})

		It("should ignore availability outside CONVERTING", func() {
			c := New(f.container, Config{}, f.deps)
			op := c.Load()
			Expect(settle(op)).To(Succeed())

			f.bus.Publish(bus.PageAvailable{All: true})
			Expect(c.Status()).To(Equal(StatusLoaded))
		})

		It("should not load text for an invisible page when selection is enabled", func() {
			New(f.container, Config{}, f.deps)

			f.bus.Publish(bus.TextEnabledChange{Enabled: true})

			Expect(f.factory.text.Calls("enable")).To(Equal(1))
			Expect(f.factory.text.Calls("load")).To(Equal(0))
		})

		It("should load text for a focused page when selection is enabled", func() {
			c := New(f.container, Config{Index: 1}, f.deps)

			f.bus.Publish(bus.PageFocus{Page: 2})
			Expect(c.Visible()).To(BeTrue())
			f.bus.Publish(bus.TextEnabledChange{Enabled: true})

			Expect(f.factory.text.Calls("enable")).To(Equal(1))
			Expect(f.factory.text.Calls("load")).To(Equal(1))
		})

		It("should treat pages in the zoom visible set as visible", func() {
			c := New(f.container, Config{Index: 1}, f.deps)

			f.bus.Publish(bus.Zoom{Page: 1, VisiblePages: []int{1, 2, 3}})
			Expect(c.Visible()).To(BeTrue())
			c.EnableTextSelection()
			Expect(f.factory.text.Calls("load")).To(Equal(1))

			f.bus.Publish(bus.PageFocus{Page: 7})
			Expect(c.Visible()).To(BeFalse())
			f.bus.Publish(bus.Zoom{Page: 7, VisiblePages: []int{6, 7}})
			Expect(c.Visible()).To(BeFalse())
		})

		It("should disable text selection", func() {
			New(f.container, Config{TextEnabled: true}, f.deps)

			f.bus.Publish(bus.TextEnabledChange{Enabled: false})

			Expect(f.factory.text.Calls("disable")).To(Equal(1))
			Expect(f.factory.text.Enabled()).To(BeFalse())
		})

		It("should ignore messages it does not handle", func() {
			c := New(f.container, Config{}, f.deps)

			c.OnMessage(bus.PageLoad{Page: 1})
			c.OnMessage(bus.PageFail{Page: 1, Err: errors.New("x")})

			Expect(c.Status()).To(Equal(StatusNotLoaded))
		})
	})

	Context("When destroying", func() {
		It("should unload and stop listening", func() {
			c := New(f.container, Config{Status: StatusConverting}, f.deps)
			subscribers := f.bus.Len()

			c.Destroy()

			Expect(f.bus.Len()).To(Equal(subscribers - 1))
			Expect(f.content().Calls("unload")).To(Equal(1))
			f.bus.Publish(bus.PageAvailable{All: true})
			Expect(c.Status()).To(Equal(StatusConverting))
		})

		It("should broadcast pageunload for a loaded page", func() {
			c := New(f.container, Config{}, f.deps)
			Expect(settle(c.Load())).To(Succeed())

			c.Destroy()

			Expect(rec.Count(bus.TopicPageUnload)).To(Equal(1))
		})
	})
})
