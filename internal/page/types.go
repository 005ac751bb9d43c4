package page

import (
	"github.com/go-logr/logr"
	"golang.org/x/net/html"

	"github.com/kdex-tech/kdex-pageview/internal/bus"
	"github.com/kdex-tech/kdex-pageview/internal/promise"
)

// Classes of the page container's children and the markers the controller
// toggles on the container itself.
const (
	ClassContent = "page-content"
	ClassLinks   = "page-links"
	ClassText    = "page-text"

	MarkerError   = "page-error"
	MarkerLoading = "page-loading"
)

type Status int

const (
	StatusNotLoaded Status = iota
	StatusLoading
	StatusLoaded
	StatusConverting
	StatusError
)

var statusNames = map[Status]string{
	StatusNotLoaded:  "not-loaded",
	StatusLoading:    "loading",
	StatusLoaded:     "loaded",
	StatusConverting: "converting",
	StatusError:      "error",
}

func (s Status) String() string {
	if name, ok := statusNames[s]; ok {
		return name
	}
	return "unknown"
}

func (s Status) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

func (s *Status) UnmarshalText(text []byte) error {
	for status, name := range statusNames {
		if name == string(text) {
			*s = status
			return nil
		}
	}
	return &UnknownStatusError{Value: string(text)}
}

type UnknownStatusError struct {
	Value string
}

func (e *UnknownStatusError) Error() string {
	return "unknown page status " + e.Value
}

// Link is a clickable region of a page. Coordinates are fractions of the
// page box. Either URL or Destination (a page number) is set.
type Link struct {
	Destination int     `json:"destination,omitempty"`
	Height      float64 `json:"height"`
	Left        float64 `json:"left"`
	Top         float64 `json:"top"`
	URL         string  `json:"url,omitempty"`
	Width       float64 `json:"width"`
}

// Config is the construction snapshot of one page.
type Config struct {
	EnableLinks bool
	Index       int
	Links       []Link
	Status      Status
	TextEnabled bool
	URL         string
}

type Asset interface {
	Init(el *html.Node, pageNum int)
	// Prepare does cheap setup that is valid in any page state.
	Prepare()
	Preload()
	Load() *promise.Op
	Unload()
}

// ContentAsset renders the page surface, as vectors or as a bitmap.
type ContentAsset interface {
	Asset
}

type TextAsset interface {
	Asset
	Enable()
	Disable()
}

type LinkOverlay interface {
	Init(el *html.Node, links []Link)
}

type AssetFactory interface {
	RasterContent(cfg Config) ContentAsset
	VectorContent(cfg Config) ContentAsset
	Text(cfg Config) TextAsset
	Links(cfg Config) LinkOverlay
}

// Container is the visual tree helper.
type Container interface {
	Find(class string, container *html.Node) *html.Node
	AddClass(n *html.Node, class string)
	RemoveClass(n *html.Node, class string)
}

type Broadcaster interface {
	Publish(msg bus.Message)
	Subscribe(handler bus.Handler, topics ...bus.Topic) bus.Subscription
}

type Deps struct {
	Assets    AssetFactory
	Bus       Broadcaster
	Container Container
	Log       logr.Logger
	// SupportsVector is probed once per controller. Nil means raster only.
	SupportsVector func() bool
}
