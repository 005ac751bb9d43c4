package bus

type Topic string

const (
	TopicPageAvailable     Topic = "pageavailable"
	TopicPageFail          Topic = "pagefail"
	TopicPageFocus         Topic = "pagefocus"
	TopicPageLoad          Topic = "pageload"
	TopicPageUnload        Topic = "pageunload"
	TopicTextEnabledChange Topic = "textenabledchange"
	TopicZoom              Topic = "zoom"
)

// Message is one of the typed variants below.
type Message interface {
	Topic() Topic
}

// PageAvailable announces that converted source for one page, every page up
// to and including UpTo, or all pages is ready.
type PageAvailable struct {
	Page int
	UpTo int
	All  bool
}

type TextEnabledChange struct {
	Enabled bool
}

type PageFocus struct {
	Page int
}

type Zoom struct {
	Page         int
	VisiblePages []int
}

type PageLoad struct {
	Page int
}

type PageUnload struct {
	Page int
}

type PageFail struct {
	Page int
	Err  error
}

func (PageAvailable) Topic() Topic     { return TopicPageAvailable }
func (TextEnabledChange) Topic() Topic { return TopicTextEnabledChange }
func (PageFocus) Topic() Topic         { return TopicPageFocus }
func (Zoom) Topic() Topic              { return TopicZoom }
func (PageLoad) Topic() Topic          { return TopicPageLoad }
func (PageUnload) Topic() Topic        { return TopicPageUnload }
func (PageFail) Topic() Topic          { return TopicPageFail }

// Covers reports whether the announcement includes the given page number.
func (m PageAvailable) Covers(page int) bool {
	return m.All || m.Page == page || m.UpTo >= page
}
