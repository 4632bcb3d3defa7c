// Package strategy defines how site-specific parsers turn a fetched page
// into a stream of item descriptors, and provides the generic fallback.
package strategy

import (
	"bytes"
	"context"
	"iter"
	"net/http"
	"net/url"
	"sync"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"

	"github.com/archoctopus/archoctopus-go/internal/fetch"
	"github.com/archoctopus/archoctopus-go/internal/models"
)

// Strategy extracts item descriptors from a task's root page.
type Strategy interface {
	Name() string
	// Route returns the descriptors found on page, or nil when no route
	// of the strategy matches the page URL. Nil is not a failure.
	// page.Title may be changed until the first descriptor is yielded;
	// the task is named from it at that point.
	Route(ctx context.Context, page *Page) iter.Seq2[*models.Descriptor, error]
}

// Constructor builds a strategy for one pipeline run.
type Constructor func(env *Env) Strategy

// Env is everything a strategy may use during one run. Strategies never
// touch the work queue; descriptors are only handed back by yielding.
type Env struct {
	TaskID   int64
	URL      *url.URL
	Client   *fetch.Client
	Logger   *zap.Logger
	Workers  int
	LoopMax  int
	AutoPage bool

	// Running reports whether the task is still wanted. Long paginating
	// strategies should check it between pages.
	Running func() bool
	// Wait blocks while the task is paused.
	Wait func(ctx context.Context) error
}

// Continue reports whether the strategy should keep going.
func (e *Env) Continue() bool {
	return e.Running == nil || e.Running()
}

// Request performs a retrying HTTP call for auxiliary fetches such as
// pagination or JSON APIs. Responses with status >= 400 are errors.
func (e *Env) Request(ctx context.Context, method, rawURL string, header http.Header, body []byte) (*http.Response, error) {
	return e.Client.Request(ctx, method, rawURL, header, body)
}

// Fetch GETs rawURL and returns the body.
func (e *Env) Fetch(ctx context.Context, rawURL string, header http.Header) ([]byte, error) {
	body, _, err := e.Client.Fetch(ctx, rawURL, header)
	return body, err
}

// JSONHeaders returns headers for XHR-style API calls made on behalf of
// the task page.
func (e *Env) JSONHeaders() http.Header {
	h := http.Header{}
	h.Set("Referer", e.URL.String())
	h.Set("X-Requested-With", "XMLHttpRequest")
	return h
}

// Page is a fetched root page.
type Page struct {
	URL         *url.URL
	Body        []byte
	ContentType string
	Title       string

	once   sync.Once
	doc    *goquery.Document
	docErr error
}

// NewPage wraps a response body.
func NewPage(u *url.URL, body []byte, contentType string) *Page {
	return &Page{URL: u, Body: body, ContentType: contentType}
}

// HTML returns the body as text.
func (p *Page) HTML() string {
	return string(p.Body)
}

// Document parses the body once and returns the goquery document.
func (p *Page) Document() (*goquery.Document, error) {
	p.once.Do(func() {
		p.doc, p.docErr = goquery.NewDocumentFromReader(bytes.NewReader(p.Body))
	})
	return p.doc, p.docErr
}

// Abort returns a stream holding only an abort marker with msg.
func Abort(msg string) iter.Seq2[*models.Descriptor, error] {
	return func(yield func(*models.Descriptor, error) bool) {
		yield(models.AbortDescriptor(msg), nil)
	}
}

// Items returns a stream over fixed descriptors.
func Items(descs ...*models.Descriptor) iter.Seq2[*models.Descriptor, error] {
	return func(yield func(*models.Descriptor, error) bool) {
		for _, d := range descs {
			if !yield(d, nil) {
				return
			}
		}
	}
}

// Fail returns a stream that reports err immediately.
func Fail(err error) iter.Seq2[*models.Descriptor, error] {
	return func(yield func(*models.Descriptor, error) bool) {
		yield(nil, err)
	}
}
