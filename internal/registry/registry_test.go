package registry

import (
	"context"
	"iter"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/archoctopus/archoctopus-go/internal/models"
	"github.com/archoctopus/archoctopus-go/internal/strategy"
)

type stubStrategy struct{ name string }

func (s stubStrategy) Name() string { return s.name }

func (s stubStrategy) Route(context.Context, *strategy.Page) iter.Seq2[*models.Descriptor, error] {
	return nil
}

func stub(name string) strategy.Constructor {
	return func(*strategy.Env) strategy.Strategy { return stubStrategy{name: name} }
}

func TestNormalizeDomain(t *testing.T) {
	tests := map[string]string{
		"www.archdaily.com":             "archdaily",
		"my.archdaily.cn":               "archdaily",
		"WWW.ArchDaily.com":             "archdaily",
		"www.plataformaarquitectura.cl": "archdaily",
		"www.zcool.com.cn":              "zcool",
		"shows.vogue.com.cn":            "shows_vogue",
		"divisare.com":                  "divisare",
		"www.gooood.cn":                 "gooood",
		"images.example.org":            "images_example",
		"pinterest.jp":                  "pinterest",
		"localhost":                     "localhost",
		"sub.domain.example.co":         "sub_domain_example_co",
	}
	for in, want := range tests {
		assert.Equal(t, want, NormalizeDomain(in), in)
	}
	assert.Equal(t, "zcool", DomainOf("https://www.zcool.com.cn/work/1.html"))
	assert.Equal(t, "", DomainOf("://bad"))
}

func TestResolveOrder(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "zcool.js"),
		[]byte("// version: 1.0.0\nexports.route = function () { return null; };"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "archdaily.js"),
		[]byte("exports.route = function () { return null; };"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "broken.js"),
		[]byte("exports.route = function( {"), 0o644))

	r, err := New(dir, 8, zaptest.NewLogger(t))
	require.NoError(t, err)
	r.Register("archdaily", stub("archdaily"))

	t.Run("builtin beats script", func(t *testing.T) {
		res := r.Resolve("www.archdaily.com")
		assert.Equal(t, SourceBuiltin, res.Source)
		assert.Equal(t, "archdaily", res.Constructor(&strategy.Env{}).Name())
	})

	t.Run("script", func(t *testing.T) {
		res := r.Resolve("www.zcool.com.cn")
		assert.Equal(t, SourceScript, res.Source)
		assert.Equal(t, "script:zcool", res.Constructor(&strategy.Env{}).Name())
	})

	t.Run("generic fallback is not cached", func(t *testing.T) {
		before := r.Cached()
		res := r.Resolve("unknown.example.com")
		assert.Equal(t, SourceGeneric, res.Source)
		assert.Equal(t, strategy.GenericName, res.Constructor(&strategy.Env{}).Name())
		assert.Equal(t, before, r.Cached())
	})

	t.Run("broken script falls back", func(t *testing.T) {
		res := r.Resolve("broken.com")
		assert.Equal(t, SourceGeneric, res.Source)
	})

	t.Run("purge reloads", func(t *testing.T) {
		assert.Equal(t, 2, r.Cached())
		r.Purge()
		assert.Equal(t, 0, r.Cached())
		require.NoError(t, os.Remove(filepath.Join(dir, "zcool.js")))
		assert.Equal(t, SourceGeneric, r.Resolve("www.zcool.com.cn").Source)
	})
}

func TestRegisterDuplicatePanics(t *testing.T) {
	r, err := New("", 0, zaptest.NewLogger(t))
	require.NoError(t, err)
	r.Register("divisare", stub("a"))
	assert.Panics(t, func() { r.Register("divisare", stub("b")) })
}

func TestPlugins(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "zcool.js"),
		[]byte("// name: Zcool\n// version: 0.2.0\nexports.route = function () { return null; };"), 0o644))

	r, err := New(dir, 4, zaptest.NewLogger(t))
	require.NoError(t, err)
	r.Register("archdaily", stub("archdaily"))

	infos, err := r.Plugins()
	require.NoError(t, err)
	require.Len(t, infos, 2)
	assert.Equal(t, PluginInfo{Key: "archdaily", Source: SourceBuiltin, Name: "archdaily"}, infos[0])
	assert.Equal(t, PluginInfo{Key: "zcool", Source: SourceScript, Name: "Zcool", Version: "0.2.0"}, infos[1])
}

func TestConcurrentResolve(t *testing.T) {
	r, err := New(t.TempDir(), 2, zaptest.NewLogger(t))
	require.NoError(t, err)
	r.Register("a", stub("a"))
	r.Register("b", stub("b"))
	r.Register("c", stub("c"))

	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			host := []string{"a.com", "b.com", "c.com", "d.com"}[i%4]
			res := r.Resolve(host)
			if host == "d.com" {
				assert.Equal(t, SourceGeneric, res.Source)
			} else {
				assert.Equal(t, SourceBuiltin, res.Source)
			}
		}(i)
	}
	wg.Wait()
	assert.LessOrEqual(t, r.Cached(), 2)
}
