package strategy

import (
	"context"
	"iter"
	"regexp"

	"github.com/archoctopus/archoctopus-go/internal/models"
)

// Handler produces descriptors for a page whose path matched a route.
// match holds the regexp submatches.
type Handler func(ctx context.Context, page *Page, match []string) iter.Seq2[*models.Descriptor, error]

type route struct {
	pattern *regexp.Regexp
	handler Handler
}

// Router dispatches a page to the first route whose pattern matches the
// URL path. Patterns are unanchored regexps; anchor them explicitly.
type Router struct {
	routes []route
}

// NewRouter returns an empty router.
func NewRouter() *Router {
	return &Router{}
}

// Handle appends a route. It panics on an invalid pattern.
func (r *Router) Handle(pattern string, h Handler) *Router {
	r.routes = append(r.routes, route{pattern: regexp.MustCompile(pattern), handler: h})
	return r
}

// Dispatch runs the first matching handler, or returns nil.
func (r *Router) Dispatch(ctx context.Context, page *Page) iter.Seq2[*models.Descriptor, error] {
	path := page.URL.EscapedPath()
	if path == "" {
		path = "/"
	}
	for _, rt := range r.routes {
		if m := rt.pattern.FindStringSubmatch(path); m != nil {
			return rt.handler(ctx, page, m)
		}
	}
	return nil
}
