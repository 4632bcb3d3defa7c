package strategy

import (
	"bytes"
	"net/url"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// NoTitle is used when a page carries no usable title.
const NoTitle = "No_Title"

var cleanupRules = []struct {
	re   *regexp.Regexp
	repl string
}{
	{regexp.MustCompile(`&#34;|&quot;|&#39;|&apos;|&#60;|&lt;|&#62;|&gt;`), "'"},
	{regexp.MustCompile(`&#38;|&amp;`), "&"},
	{regexp.MustCompile(`&#8211;`), "–"},
	{regexp.MustCompile(`[/:*?"<>|\\\x00-\x1f]`), "_"},
	{regexp.MustCompile(`_{2,}`), "_"},
	{regexp.MustCompile(`\s{2,}`), " "},
}

// Cleanup turns a page title into a name usable as a directory on every
// desktop file system.
func Cleanup(title string) string {
	title = strings.TrimSpace(title)
	for _, r := range cleanupRules {
		title = r.re.ReplaceAllString(title, r.repl)
	}
	return strings.TrimRight(strings.TrimSpace(title), ". ")
}

// ExtractTitle returns the cleaned <title>, then og:title, then NoTitle.
func ExtractTitle(body []byte) string {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return NoTitle
	}
	if t := Cleanup(doc.Find("title").First().Text()); t != "" {
		return t
	}
	if og, ok := doc.Find(`meta[property="og:title"]`).First().Attr("content"); ok {
		if t := Cleanup(og); t != "" {
			return t
		}
	}
	return NoTitle
}

var friendlyRe = regexp.MustCompile(`www\.|\.com|\.cn`)

// FriendlyName is the per-site directory name: the host without www.,
// .com or .cn, dots turned into underscores, capitalized.
func FriendlyName(u *url.URL) string {
	host := friendlyRe.ReplaceAllString(strings.ToLower(u.Hostname()), "")
	host = strings.ReplaceAll(host, ".", "_")
	if host == "" {
		return ""
	}
	return strings.ToUpper(host[:1]) + host[1:]
}
