package document

import (
	"errors"
	"image"
	"io"
	"log/slog"
	"testing"
)

type fakePager struct {
	pages    int
	renderAt map[int]error
	closes   int
}

func (f *fakePager) NumPage() int { return f.pages }

func (f *fakePager) Image(n int) (image.Image, error) {
	if err := f.renderAt[n]; err != nil {
		return nil, err
	}
	return image.NewRGBA(image.Rect(0, 0, 2, 2)), nil
}

func (f *fakePager) Close() error {
	f.closes++
	return nil
}

func withFakePager(t *testing.T, f *fakePager, openErr error) {
	t.Helper()
	openPagerForTest = func(data []byte) (pager, error) {
		if openErr != nil {
			return nil, openErr
		}
		return f, nil
	}
	t.Cleanup(func() { openPagerForTest = nil })
}

func TestPagesYieldsEveryPageInOrder(t *testing.T) {
	fake := &fakePager{pages: 3}
	withFakePager(t, fake, nil)

	r := NewRenderer(slog.Default())
	it, err := r.Pages([]byte("pdf"))
	if err != nil {
		t.Fatalf("Pages: %v", err)
	}
	defer it.Close()

	if it.Len() != 3 {
		t.Fatalf("Len = %d, want 3", it.Len())
	}
	for i := 0; i < 3; i++ {
		page, err := it.Next()
		if err != nil {
			t.Fatalf("Next page %d: %v", i, err)
		}
		if page.Index != i {
			t.Fatalf("page index = %d, want %d", page.Index, i)
		}
		if page.MimeType != "image/png" {
			t.Fatalf("page mime = %q", page.MimeType)
		}
		if len(page.Data) == 0 {
			t.Fatalf("page %d has no data", i)
		}
	}
	if _, err := it.Next(); err != io.EOF {
		t.Fatalf("Next after last page: %v, want io.EOF", err)
	}
}

func TestPagesCorruptDocument(t *testing.T) {
	withFakePager(t, nil, errors.New("not a pdf"))

	r := NewRenderer(slog.Default())
	if _, err := r.Pages([]byte("junk")); !errors.Is(err, ErrConversion) {
		t.Fatalf("Pages on corrupt input: %v, want ErrConversion", err)
	}
}

func TestPagesEmptyDocument(t *testing.T) {
	fake := &fakePager{pages: 0}
	withFakePager(t, fake, nil)

	r := NewRenderer(slog.Default())
	if _, err := r.Pages([]byte("pdf")); !errors.Is(err, ErrConversion) {
		t.Fatalf("Pages on empty document: %v, want ErrConversion", err)
	}
	if fake.closes != 1 {
		t.Fatalf("underlying document not closed on empty input")
	}
}

func TestNextRenderFailure(t *testing.T) {
	fake := &fakePager{pages: 2, renderAt: map[int]error{1: errors.New("boom")}}
	withFakePager(t, fake, nil)

	r := NewRenderer(slog.Default())
	it, err := r.Pages([]byte("pdf"))
	if err != nil {
		t.Fatalf("Pages: %v", err)
	}
	defer it.Close()

	if _, err := it.Next(); err != nil {
		t.Fatalf("first page: %v", err)
	}
	if _, err := it.Next(); !errors.Is(err, ErrConversion) {
		t.Fatalf("second page: %v, want ErrConversion", err)
	}
}

func TestIterCloseIdempotent(t *testing.T) {
	fake := &fakePager{pages: 1}
	withFakePager(t, fake, nil)

	r := NewRenderer(slog.Default())
	it, err := r.Pages([]byte("pdf"))
	if err != nil {
		t.Fatalf("Pages: %v", err)
	}
	if err := it.Close(); err != nil {
		t.Fatalf("first Close: %v", err)
	}
	if err := it.Close(); err != nil {
		t.Fatalf("second Close: %v", err)
	}
	if fake.closes != 1 {
		t.Fatalf("Close called %d times on pager, want 1", fake.closes)
	}
	if _, err := it.Next(); err != io.EOF {
		t.Fatalf("Next after Close: %v, want io.EOF", err)
	}
}
