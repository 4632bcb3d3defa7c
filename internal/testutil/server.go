package testutil

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/archoctopus/archoctopus-go/internal/config"
)

// Site is a fake project site. /project lists Images() <img> tags under
// /img/ and every image is a small PNG.
type Site struct {
	*httptest.Server
	Title string

	images atomic.Int32
	hits   atomic.Int32
}

// NewSite starts a site listing n images. It is closed when the test ends.
func NewSite(t *testing.T, n int) *Site {
	t.Helper()
	s := &Site{Title: "Casa Azul"}
	s.images.Store(int32(n))
	png := PNGBytes(t, 64, 48)

	mux := http.NewServeMux()
	mux.HandleFunc("/project", func(w http.ResponseWriter, r *http.Request) {
		var b strings.Builder
		fmt.Fprintf(&b, "<html><head><title>%s</title></head><body>", s.Title)
		for i := range s.Images() {
			fmt.Fprintf(&b, `<figure><img src="/img/%d.png"></figure>`, i)
		}
		b.WriteString("</body></html>")
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		fmt.Fprint(w, b.String())
	})
	mux.HandleFunc("/img/", func(w http.ResponseWriter, r *http.Request) {
		s.hits.Add(1)
		w.Header().Set("Content-Type", "image/png")
		w.Write(png)
	})
	s.Server = httptest.NewServer(mux)
	t.Cleanup(s.Close)
	return s
}

// ProjectURL is the page to submit as a task.
func (s *Site) ProjectURL() string { return s.URL + "/project" }

// Images is the number of images listed on the project page.
func (s *Site) Images() int { return int(s.images.Load()) }

// SetImages changes the number of listed images.
func (s *Site) SetImages(n int) { s.images.Store(int32(n)) }

// Hits is the number of image requests served.
func (s *Site) Hits() int { return int(s.hits.Load()) }

// TestConfig returns the default configuration with the download folder,
// database and plugin folder moved into temporary directories and retries
// turned off.
func TestConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.Default()
	cfg.Database.Path = ":memory:"
	cfg.Download.Dir = t.TempDir()
	cfg.Download.Threads = 3
	cfg.Plugins.Path = t.TempDir()
	cfg.Network.Retries = 1
	cfg.Network.BackoffMS = 0
	cfg.Refresh.Interval = 0
	return cfg
}
