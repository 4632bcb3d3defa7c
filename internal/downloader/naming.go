package downloader

import (
	"net/url"
	"os"
	"path"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"github.com/archoctopus/archoctopus-go/internal/models"
)

// DefaultExt is used when neither the name nor the content tells the type.
const DefaultExt = ".jpeg"

var unsafeChars = regexp.MustCompile(`[\x00-\x1f\\/:*?"<>|]`)

// SanitizeFilename replaces characters that are not allowed in file names.
func SanitizeFilename(filename string) string {
	safe := unsafeChars.ReplaceAllString(filename, "-")
	for strings.HasPrefix(safe, ".") || strings.HasPrefix(safe, "-") {
		safe = safe[1:]
	}
	if safe == "" {
		safe = "untitled"
	}
	return safe
}

// FileName returns the base name and extension for a descriptor. An
// explicit name wins over the URL's last path segment; a positive index
// becomes a prefix.
func FileName(d *models.Descriptor) (name, ext string) {
	if d.Name != "" {
		ext = strings.ToLower(filepath.Ext(d.Name))
		name = strings.TrimSuffix(d.Name, filepath.Ext(d.Name))
		if ext == "" {
			ext = DefaultExt
		}
	} else {
		name, ext = nameFromURL(d.URL)
	}
	name = SanitizeFilename(name)
	if d.Index > 0 {
		name = strconv.Itoa(d.Index) + "_" + name
	}
	return name, ext
}

func nameFromURL(raw string) (string, string) {
	u, err := url.Parse(raw)
	if err != nil {
		return "", ""
	}
	base := path.Base(u.Path)
	if unescaped, err := url.PathUnescape(base); err == nil {
		base = unescaped
	}
	if base == "/" || base == "." {
		return "", ""
	}
	ext := path.Ext(base)
	return strings.TrimSuffix(base, ext), strings.ToLower(ext)
}

// CanonicalExt maps ".jpg" and an empty extension to ".jpeg", the form
// used for finished files.
func CanonicalExt(ext string) string {
	if ext == "" || ext == ".jpg" {
		return DefaultExt
	}
	return ext
}

// existing returns the path of a finished file with this name, if any.
func existing(dir, name, ext string) (string, bool) {
	p := filepath.Join(dir, name+CanonicalExt(ext))
	info, err := os.Stat(p)
	if err != nil || info.IsDir() {
		return "", false
	}
	return p, true
}
