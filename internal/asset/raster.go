package asset

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	"image/png"
	"strconv"

	_ "golang.org/x/image/bmp"
	xdraw "golang.org/x/image/draw"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"github.com/kdex-tech/kdex-pageview/internal/dom"
	"github.com/kdex-tech/kdex-pageview/internal/mime"
)

// Raster renders the page from a bitmap, scaled down to a maximum width and
// inlined as a PNG.
type Raster struct {
	base
	loadable[*html.Node]
	width int
}

func newRaster(b base, width int) *Raster {
	r := &Raster{base: b, width: width}
	r.loadable = loadable[*html.Node]{
		ctx:    b.ctx,
		fetch:  r.fetchImage,
		render: r.render,
		clear:  r.clear,
	}
	return r
}

// Prepare is a no-op; a bitmap needs no layer ahead of time.
func (r *Raster) Prepare() {}

func (r *Raster) Preload() {
	r.warm(RasterName)
}

func (r *Raster) fetchImage(ctx context.Context) (*html.Node, error) {
	body, err := r.fetcher.Fetch(ctx, r.ref(RasterName))
	if err != nil {
		return nil, err
	}
	if _, err := mime.Expect(body, mime.KindRaster); err != nil {
		return nil, err
	}

	src, format, err := image.Decode(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("decoding page %d: %w", r.pageNum, err)
	}
	img := Scale(src, r.width)

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("encoding page %d: %w", r.pageNum, err)
	}

	n := dom.Element(atom.Img, ClassLayer, "raster")
	n.Attr = append(n.Attr,
		html.Attribute{Key: "alt", Val: fmt.Sprintf("page %d", r.pageNum)},
		html.Attribute{Key: "data-format", Val: format},
		html.Attribute{Key: "height", Val: strconv.Itoa(img.Bounds().Dy())},
		html.Attribute{Key: "src", Val: "data:image/png;base64," + base64.StdEncoding.EncodeToString(buf.Bytes())},
		html.Attribute{Key: "width", Val: strconv.Itoa(img.Bounds().Dx())},
	)
	return n, nil
}

func (r *Raster) render(n *html.Node) {
	r.tree.ReplaceChildren(r.el, n)
}

func (r *Raster) clear() {
	r.tree.ReplaceChildren(r.el)
}

// Scale shrinks src proportionally to width. Narrower images and a
// non-positive width leave src untouched.
func Scale(src image.Image, width int) image.Image {
	b := src.Bounds()
	if width <= 0 || b.Dx() <= width {
		return src
	}
	height := max(b.Dy()*width/b.Dx(), 1)
	dst := image.NewRGBA(image.Rect(0, 0, width, height))
	xdraw.CatmullRom.Scale(dst, dst.Bounds(), src, b, xdraw.Over, nil)
	return dst
}
