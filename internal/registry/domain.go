package registry

import (
	"net/url"
	"regexp"
	"strings"
)

// Hostname families that share one strategy, checked before the generic
// normalization.
var families = []struct {
	key string
	re  *regexp.Regexp
}{
	{"archdaily", regexp.MustCompile(`(?i)^(my|www).(archdaily|plataformaarquitectura)`)},
}

var (
	wwwRe    = regexp.MustCompile(`^www\.`)
	suffixRe = regexp.MustCompile(`(\.com|\.org|\.info|\.net|\.biz|\.com\.cn|\.cn|\.jp|\.tw|\.hk|\.us|\.es|\.br|\.fr|\.it|\.sg)$`)
)

// NormalizeDomain maps a hostname to its strategy key:
// www.zcool.com.cn becomes zcool, shows.vogue.com.cn becomes shows_vogue.
func NormalizeDomain(host string) string {
	host = strings.ToLower(strings.TrimSpace(host))
	for _, f := range families {
		if f.re.MatchString(host) {
			return f.key
		}
	}
	host = wwwRe.ReplaceAllString(host, "")
	host = suffixRe.ReplaceAllString(host, "")
	return strings.ReplaceAll(host, ".", "_")
}

// DomainOf returns the strategy key of a URL.
func DomainOf(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	return NormalizeDomain(u.Hostname())
}
