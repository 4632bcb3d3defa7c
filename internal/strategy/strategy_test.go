package strategy

import (
	"context"
	"errors"
	"iter"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/archoctopus/archoctopus-go/internal/models"
)

func mustURL(t *testing.T, raw string) *url.URL {
	t.Helper()
	u, err := url.Parse(raw)
	require.NoError(t, err)
	return u
}

func collect(t *testing.T, seq iter.Seq2[*models.Descriptor, error]) []*models.Descriptor {
	t.Helper()
	var out []*models.Descriptor
	for d, err := range seq {
		require.NoError(t, err)
		out = append(out, d)
	}
	return out
}

func TestGenericExtractsBestSources(t *testing.T) {
	html := `<html><body>
		<img src="/small.jpg" data-original="https://cdn.example.com/orig.jpg?w=300">
		<img data-original-src="/uploads/a-250x250.png#frag">
		<img data-src="lazy.jpg" src="placeholder.gif">
		<picture srcset="s.jpg 320w, l.jpg 1280w, m.jpg 640w"></picture>
		<img srcset="one.jpg, two.jpg 2x">
		<img src="plain.webp">
		<img src="data:image/png;base64,AAAA">
		<img alt="no source">
	</body></html>`
	page := NewPage(mustURL(t, "https://www.example.com/projects/house/"), []byte(html), "text/html")

	g := NewGeneric(&Env{URL: page.URL})
	assert.Equal(t, GenericName, g.Name())

	var urls []string
	for _, d := range collect(t, g.Route(context.Background(), page)) {
		urls = append(urls, d.URL)
	}
	assert.Equal(t, []string{
		"https://cdn.example.com/orig.jpg",
		"https://www.example.com/uploads/a.png",
		"https://www.example.com/projects/house/lazy.jpg",
		"https://www.example.com/projects/house/l.jpg",
		"https://www.example.com/projects/house/two.jpg",
		"https://www.example.com/projects/house/plain.webp",
	}, urls)
}

func TestLargestSrcset(t *testing.T) {
	tests := map[string]string{
		"a.jpg 1x, b.jpg 2x":          "b.jpg",
		"a.jpg 800w,b.jpg 400w":       "a.jpg",
		"a.jpg":                       "a.jpg",
		"a.jpg 1.5x, b.jpg, c.jpg 1x": "a.jpg",
		"a.jpg 2x, b.jpg 2x":          "b.jpg",
	}
	for in, want := range tests {
		if got := LargestSrcset(in); got != want {
			t.Errorf("LargestSrcset(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestRouterFirstMatchWins(t *testing.T) {
	var hit string
	handler := func(name string) Handler {
		return func(_ context.Context, _ *Page, m []string) iter.Seq2[*models.Descriptor, error] {
			hit = name + ":" + m[len(m)-1]
			return Items(&models.Descriptor{URL: name})
		}
	}
	r := NewRouter().
		Handle(`^/projects/(\d+)`, handler("project")).
		Handle(`^/projects/`, handler("listing")).
		Handle(`^/?$`, handler("home"))

	page := NewPage(mustURL(t, "https://example.com/projects/42/house"), nil, "text/html")
	got := collect(t, r.Dispatch(context.Background(), page))
	require.Len(t, got, 1)
	assert.Equal(t, "project:42", hit)

	page = NewPage(mustURL(t, "https://example.com"), nil, "text/html")
	collect(t, r.Dispatch(context.Background(), page))
	assert.Equal(t, "home:/", hit)

	page = NewPage(mustURL(t, "https://example.com/about"), nil, "text/html")
	assert.Nil(t, r.Dispatch(context.Background(), page), "unmatched path yields nil")
}

func TestStreamHelpers(t *testing.T) {
	got := collect(t, Abort("members only"))
	require.Len(t, got, 1)
	assert.True(t, got[0].Abort)
	assert.Equal(t, "members only", got[0].AbortMessage)

	boom := errors.New("boom")
	for d, err := range Fail(boom) {
		assert.Nil(t, d)
		assert.ErrorIs(t, err, boom)
	}
}

func TestEnvHeadersAndContinue(t *testing.T) {
	env := &Env{URL: mustURL(t, "https://example.com/a")}
	assert.True(t, env.Continue())
	env.Running = func() bool { return false }
	assert.False(t, env.Continue())

	h := env.JSONHeaders()
	assert.Equal(t, "https://example.com/a", h.Get("Referer"))
	assert.Equal(t, "XMLHttpRequest", h.Get("X-Requested-With"))
}
