package strategy

import (
	"context"
	"iter"
	"net/url"
	"regexp"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/archoctopus/archoctopus-go/internal/models"
)

// GenericName is the name of the fallback strategy.
const GenericName = "generic"

var (
	srcsetRe = regexp.MustCompile(`(\S+)(\s+([\d.]+)[xw])?(\s*(?:,|$))`)
	// Thumbnail size suffix such as -250x250 in a WordPress upload path.
	thumbRe = regexp.MustCompile(`[-_]\d+x\d+`)
)

// Generic collects every <img> and <picture> on the page.
type Generic struct {
	env    *Env
	router *Router
}

// NewGeneric is the Constructor of the fallback strategy.
func NewGeneric(env *Env) Strategy {
	g := &Generic{env: env}
	g.router = NewRouter().Handle(`.*`, g.parse)
	return g
}

func (g *Generic) Name() string { return GenericName }

func (g *Generic) Route(ctx context.Context, page *Page) iter.Seq2[*models.Descriptor, error] {
	return g.router.Dispatch(ctx, page)
}

func (g *Generic) parse(ctx context.Context, page *Page, _ []string) iter.Seq2[*models.Descriptor, error] {
	return func(yield func(*models.Descriptor, error) bool) {
		doc, err := page.Document()
		if err != nil {
			yield(nil, err)
			return
		}
		for _, u := range ImageURLs(doc, page.URL) {
			if !yield(&models.Descriptor{URL: u}, nil) {
				return
			}
		}
	}
}

// ImageURLs returns the best source of every image element in doc,
// resolved against base, without query strings or thumbnail suffixes.
func ImageURLs(doc *goquery.Document, base *url.URL) []string {
	var urls []string
	doc.Find("img, picture").Each(func(_ int, s *goquery.Selection) {
		uri := imageSource(s)
		if uri == "" || strings.HasPrefix(uri, "data:") {
			return
		}
		if u, ok := RawImageURL(base, uri); ok {
			urls = append(urls, u)
		}
	})
	return urls
}

func imageSource(s *goquery.Selection) string {
	for _, attr := range []string{"data-original", "data-original-src", "data-src"} {
		if v := strings.TrimSpace(s.AttrOr(attr, "")); v != "" {
			return v
		}
	}
	if srcset := strings.TrimSpace(s.AttrOr("srcset", "")); srcset != "" {
		return LargestSrcset(srcset)
	}
	return strings.TrimSpace(s.AttrOr("src", ""))
}

// LargestSrcset picks the candidate with the largest width or density
// descriptor. Candidates without a descriptor count as zero; on ties the
// last one wins.
func LargestSrcset(srcset string) string {
	best, bestVal := "", -1.0
	for _, m := range srcsetRe.FindAllStringSubmatch(srcset, -1) {
		val := 0.0
		if m[3] != "" {
			val, _ = strconv.ParseFloat(m[3], 64)
		}
		if val >= bestVal {
			best, bestVal = m[1], val
		}
	}
	return best
}

// RawImageURL resolves uri against base and strips the query, fragment
// and any -WxH thumbnail suffix from the path.
func RawImageURL(base *url.URL, uri string) (string, bool) {
	uri, _, _ = strings.Cut(uri, "?")
	ref, err := url.Parse(uri)
	if err != nil {
		return "", false
	}
	u := base.ResolveReference(ref)
	u.RawQuery = ""
	u.Fragment = ""
	u.Path = thumbRe.ReplaceAllString(u.Path, "")
	u.RawPath = ""
	return u.String(), true
}
