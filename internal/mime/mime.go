package mime

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/gabriel-vasile/mimetype"
)

const sniffLimit = 3072

var ErrUnexpectedType = errors.New("unexpected asset type")

// Kind is the family of page asset a body belongs to.
type Kind int

const (
	KindUnknown Kind = iota
	KindVector
	KindRaster
	KindMarkup
	KindText
)

func (k Kind) String() string {
	switch k {
	case KindVector:
		return "vector"
	case KindRaster:
		return "raster"
	case KindMarkup:
		return "markup"
	case KindText:
		return "text"
	default:
		return "unknown"
	}
}

func Detect(rc io.Reader) (*mimetype.MIME, io.Reader, error) {
	// If it's already a bufio.Reader, don't wrap it again
	br, ok := rc.(*bufio.Reader)
	if !ok {
		br = bufio.NewReader(rc)
	}
	peekedBytes, err := br.Peek(sniffLimit)
	if err != nil && err != io.EOF {
		return nil, nil, err
	}

	return mimetype.Detect(peekedBytes), br, nil
}

// Classify sniffs body and maps it to a Kind.
func Classify(body []byte) (*mimetype.MIME, Kind) {
	if len(body) > sniffLimit {
		body = body[:sniffLimit]
	}
	m := mimetype.Detect(body)
	switch {
	case m.Is("image/svg+xml"):
		return m, KindVector
	case strings.HasPrefix(m.String(), "image/"):
		return m, KindRaster
	case m.Is("text/html"):
		return m, KindMarkup
	case m.Is("text/plain"):
		return m, KindText
	default:
		return m, KindUnknown
	}
}

// Expect returns the detected kind of body, or ErrUnexpectedType when it is
// none of the accepted kinds.
func Expect(body []byte, accepted ...Kind) (Kind, error) {
	m, kind := Classify(body)
	for _, a := range accepted {
		if a == kind {
			return kind, nil
		}
	}
	return kind, fmt.Errorf("%w: %s", ErrUnexpectedType, m.String())
}
