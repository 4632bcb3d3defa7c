package downloader

import (
	"fmt"
	"strings"

	"github.com/archoctopus/archoctopus-go/internal/config"
)

// Filter applies the configured size, type and byte bounds. Zero bounds
// are disabled; maximum bounds are inclusive.
type Filter struct {
	MinWidth, MinHeight int
	MaxWidth, MaxHeight int
	MinBytes, MaxBytes  int64
	Types               []string
}

// NewFilter builds a filter from configuration.
func NewFilter(cfg config.Filter) Filter {
	f := Filter{
		MinWidth:  cfg.MinWidth,
		MinHeight: cfg.MinHeight,
		MaxWidth:  cfg.MaxWidth,
		MaxHeight: cfg.MaxHeight,
		MinBytes:  cfg.MinBytes,
		MaxBytes:  cfg.MaxBytes,
	}
	for _, t := range cfg.Types {
		if t = normalizeType(t); t != "" {
			f.Types = append(f.Types, t)
		}
	}
	return f
}

// normalizeType maps ".JPG", "jpg" and "jpeg" to "jpeg".
func normalizeType(t string) string {
	t = strings.ToLower(strings.TrimPrefix(strings.TrimSpace(t), "."))
	if t == "jpg" {
		return "jpeg"
	}
	return t
}

// CheckSize rejects dimensions outside the bounds. Unknown dimensions
// (both zero) pass.
func (f Filter) CheckSize(width, height int) error {
	if width == 0 && height == 0 {
		return nil
	}
	if (f.MinWidth > 0 || f.MinHeight > 0) && (width < f.MinWidth || height < f.MinHeight) {
		return fmt.Errorf("size %dx%d below minimum %dx%d", width, height, f.MinWidth, f.MinHeight)
	}
	if f.MaxWidth > 0 && width > f.MaxWidth {
		return fmt.Errorf("width %d above maximum %d", width, f.MaxWidth)
	}
	if f.MaxHeight > 0 && height > f.MaxHeight {
		return fmt.Errorf("height %d above maximum %d", height, f.MaxHeight)
	}
	return nil
}

// CheckBytes rejects byte counts outside the bounds. Zero means unknown.
func (f Filter) CheckBytes(n int64) error {
	if n == 0 {
		return nil
	}
	if f.MinBytes > 0 && n < f.MinBytes {
		return fmt.Errorf("%d bytes below minimum %d", n, f.MinBytes)
	}
	if f.MaxBytes > 0 && n > f.MaxBytes {
		return fmt.Errorf("%d bytes above maximum %d", n, f.MaxBytes)
	}
	return nil
}

// CheckType rejects formats missing from the allowed list. An empty list
// allows everything.
func (f Filter) CheckType(format string) error {
	if len(f.Types) == 0 {
		return nil
	}
	format = normalizeType(format)
	for _, t := range f.Types {
		if t == format {
			return nil
		}
	}
	return fmt.Errorf("type %s not allowed", format)
}

// Pre checks the metadata a strategy declared before anything is fetched.
func (f Filter) Pre(width, height int, bytes int64) error {
	if err := f.CheckSize(width, height); err != nil {
		return err
	}
	return f.CheckBytes(bytes)
}

// Post checks a downloaded file.
func (f Filter) Post(format string, width, height int, bytes int64) error {
	if err := f.CheckType(format); err != nil {
		return err
	}
	if err := f.CheckSize(width, height); err != nil {
		return err
	}
	return f.CheckBytes(bytes)
}
