// Package document turns multi-page documents into per-page images so the
// analysis backend only ever sees formats it accepts. Pages are rendered
// lazily, one at a time, in page order.
package document

import (
	"bytes"
	"fmt"
	"image"
	"image/png"
	"io"
	"log/slog"

	"github.com/gen2brain/go-fitz"
)

// Page is one rendered page, encoded as PNG.
type Page struct {
	Index    int
	Data     []byte
	MimeType string
}

// pager abstracts the underlying rendering library.
type pager interface {
	NumPage() int
	Image(n int) (image.Image, error)
	Close() error
}

type fitzPager struct{ doc *fitz.Document }

func (p fitzPager) NumPage() int { return p.doc.NumPage() }
func (p fitzPager) Image(n int) (image.Image, error) {
	img, err := p.doc.Image(n)
	return img, err
}
func (p fitzPager) Close() error { return p.doc.Close() }

var openPagerForTest func(data []byte) (pager, error)

func openPager(data []byte) (pager, error) {
	if openPagerForTest != nil {
		return openPagerForTest(data)
	}
	doc, err := fitz.NewFromMemory(data)
	if err != nil {
		return nil, err
	}
	return fitzPager{doc: doc}, nil
}

// Renderer opens PDF bytes and yields their pages as images.
type Renderer struct {
	logger *slog.Logger
}

func NewRenderer(log *slog.Logger) *Renderer {
	return &Renderer{logger: log.With(slog.String("service", "document"))}
}

// Pages returns an iterator over the document's pages. The iterator is
// single-use and must be closed by the caller.
func (r *Renderer) Pages(data []byte) (*PageIter, error) {
	p, err := openPager(data)
	if err != nil {
		r.logger.Error("open document", slog.Any("error", err))
		return nil, fmt.Errorf("%w: %v", ErrConversion, err)
	}
	total := p.NumPage()
	if total == 0 {
		p.Close()
		return nil, fmt.Errorf("%w: document has no pages", ErrConversion)
	}
	r.logger.Debug("document opened", slog.Int("pages", total))
	return &PageIter{pager: p, total: total}, nil
}

// PageIter walks a document's pages in order. It cannot be restarted.
type PageIter struct {
	pager  pager
	next   int
	total  int
	closed bool
}

// Len reports the total number of pages in the document.
func (it *PageIter) Len() int { return it.total }

// Next renders and returns the next page. It returns io.EOF once every page
// has been produced.
func (it *PageIter) Next() (Page, error) {
	if it.closed || it.next >= it.total {
		return Page{}, io.EOF
	}
	img, err := it.pager.Image(it.next)
	if err != nil {
		return Page{}, fmt.Errorf("%w: render page %d: %v", ErrConversion, it.next+1, err)
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return Page{}, fmt.Errorf("%w: encode page %d: %v", ErrConversion, it.next+1, err)
	}
	page := Page{Index: it.next, Data: buf.Bytes(), MimeType: "image/png"}
	it.next++
	return page, nil
}

// Close releases the underlying document. Safe to call more than once.
func (it *PageIter) Close() error {
	if it.closed {
		return nil
	}
	it.closed = true
	return it.pager.Close()
}
