package downloader

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/archoctopus/archoctopus-go/internal/models"
)

func TestFileName(t *testing.T) {
	tests := []struct {
		name     string
		desc     models.Descriptor
		wantName string
		wantExt  string
	}{
		{"from url", models.Descriptor{URL: "https://x.com/a/House%20One.JPG?w=1"}, "House One", ".jpg"},
		{"explicit name", models.Descriptor{URL: "https://x.com/a/1", Name: "plan.PNG"}, "plan", ".png"},
		{"explicit name without ext", models.Descriptor{URL: "https://x.com/a/1", Name: "plan"}, "plan", ".jpeg"},
		{"index prefix", models.Descriptor{URL: "https://x.com/a/b.webp", Index: 12}, "12_b", ".webp"},
		{"unsafe chars", models.Descriptor{URL: "https://x.com/", Name: `a:b*c?.gif`}, "a-b-c-", ".gif"},
		{"empty path", models.Descriptor{URL: "https://x.com/"}, "untitled", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			name, ext := FileName(&tt.desc)
			assert.Equal(t, tt.wantName, name)
			assert.Equal(t, tt.wantExt, ext)
		})
	}
}

func TestSanitizeFilename(t *testing.T) {
	assert.Equal(t, "untitled", SanitizeFilename("..."))
	assert.Equal(t, "a-b", SanitizeFilename("a/b"))
	assert.Equal(t, "hidden", SanitizeFilename(".hidden"))
}

func TestExistingUsesCanonicalExt(t *testing.T) {
	dir := t.TempDir()
	assert.NoError(t, os.WriteFile(filepath.Join(dir, "a.jpeg"), []byte("x"), 0o644))

	_, ok := existing(dir, "a", ".jpg")
	assert.True(t, ok)
	_, ok = existing(dir, "a", "")
	assert.True(t, ok)
	_, ok = existing(dir, "a", ".png")
	assert.False(t, ok)
}

func TestSniffUnknownDefaultsToJPEG(t *testing.T) {
	p := filepath.Join(t.TempDir(), "blob.tmp")
	assert.NoError(t, os.WriteFile(p, []byte("not an image"), 0o644))
	info, err := Sniff(p)
	assert.NoError(t, err)
	assert.Equal(t, "jpeg", info.Format)
	assert.Equal(t, ".jpeg", info.Ext())
	assert.Equal(t, int64(12), info.Bytes)
}

func TestFilterBounds(t *testing.T) {
	f := Filter{MinWidth: 100, MinHeight: 100, MaxWidth: 1000, MinBytes: 10, MaxBytes: 100}
	assert.NoError(t, f.CheckSize(0, 0), "unknown size passes")
	assert.NoError(t, f.CheckSize(100, 100))
	assert.NoError(t, f.CheckSize(1000, 5000))
	assert.Error(t, f.CheckSize(99, 500))
	assert.Error(t, f.CheckSize(1001, 500))
	assert.NoError(t, f.CheckBytes(100))
	assert.Error(t, f.CheckBytes(101))
	assert.Error(t, f.CheckBytes(9))
	assert.NoError(t, f.CheckBytes(0))
}
