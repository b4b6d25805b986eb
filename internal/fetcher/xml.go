package fetcher

import (
	"context"
	"encoding/xml"
	"errors"
	"io"

	"github.com/rotisserie/eris"
	"golang.org/x/text/encoding/htmlindex"
)

// ErrStop may be returned by an EachXML callback to end the walk early
// without an error.
var ErrStop = errors.New("fetcher: stop")

// newLenientDecoder accepts the XHTML that command-line PDF tools emit:
// HTML entities, unclosed void elements and legacy charsets.
func newLenientDecoder(r io.Reader) *xml.Decoder {
	d := xml.NewDecoder(r)
	d.Strict = false
	d.AutoClose = xml.HTMLAutoClose
	d.Entity = xml.HTMLEntity
	d.CharsetReader = func(charset string, input io.Reader) (io.Reader, error) {
		enc, err := htmlindex.Get(charset)
		if err != nil {
			return nil, eris.Wrapf(err, "xml: unsupported charset %q", charset)
		}
		return enc.NewDecoder().Reader(input), nil
	}
	return d
}

// EachXML decodes every element named name into a T, in document order,
// and passes it to fn. Elements nested inside a matched element are not
// visited separately.
func EachXML[T any](ctx context.Context, r io.Reader, name string, fn func(T) error) error {
	d := newLenientDecoder(r)
	for {
		if err := ctx.Err(); err != nil {
			return eris.Wrap(err, "xml: context cancelled")
		}

		tok, err := d.Token()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return eris.Wrap(err, "xml: read token")
		}

		start, ok := tok.(xml.StartElement)
		if !ok || start.Name.Local != name {
			continue
		}

		var item T
		if err := d.DecodeElement(&item, &start); err != nil {
			return eris.Wrapf(err, "xml: decode <%s>", name)
		}
		if err := fn(item); err != nil {
			if errors.Is(err, ErrStop) {
				return nil
			}
			return err
		}
	}
}
