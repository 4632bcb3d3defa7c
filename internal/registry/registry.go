// Package registry resolves a domain to the strategy that parses it:
// built-in strategies first, then scripts from the plugins directory, and
// the generic strategy for everything else.
package registry

import (
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"sort"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"
	"go.uber.org/zap"

	"github.com/archoctopus/archoctopus-go/internal/strategy"
	"github.com/archoctopus/archoctopus-go/internal/strategy/script"
)

// DefaultCacheSize bounds the number of cached resolutions.
const DefaultCacheSize = 64

// Source tells where a resolved strategy comes from.
type Source string

const (
	SourceBuiltin Source = "builtin"
	SourceScript  Source = "script"
	SourceGeneric Source = "generic"
)

// Resolution is the result of Resolve.
type Resolution struct {
	Key         string
	Source      Source
	Constructor strategy.Constructor
}

// PluginInfo describes an available strategy.
type PluginInfo struct {
	Key     string `json:"key"`
	Source  Source `json:"source"`
	Name    string `json:"name"`
	Version string `json:"version,omitempty"`
}

// Registry is safe for concurrent use. Resolutions are kept in a bounded
// LRU cache; the generic fallback is never cached.
type Registry struct {
	mu         sync.RWMutex
	builtins   map[string]strategy.Constructor
	cache      *lru.Cache[string, Resolution]
	scriptsDir string
	logger     *zap.Logger
}

// New creates a registry loading scripts from scriptsDir. An empty dir
// disables scripts.
func New(scriptsDir string, cacheSize int, logger *zap.Logger) (*Registry, error) {
	if cacheSize <= 0 {
		cacheSize = DefaultCacheSize
	}
	cache, err := lru.New[string, Resolution](cacheSize)
	if err != nil {
		return nil, fmt.Errorf("create strategy cache: %w", err)
	}
	return &Registry{
		builtins:   make(map[string]strategy.Constructor),
		cache:      cache,
		scriptsDir: scriptsDir,
		logger:     logger.Named("registry"),
	}, nil
}

// Register adds a built-in strategy for a normalized domain key. It's
// called at startup.
func (r *Registry) Register(key string, c strategy.Constructor) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.builtins[key]; exists {
		panic(fmt.Sprintf("strategy for '%s' is already registered", key))
	}
	r.builtins[key] = c
	r.cache.Remove(key)
}

// Resolve returns the strategy for a hostname. It never fails: anything
// that cannot be resolved falls back to the generic strategy.
func (r *Registry) Resolve(host string) Resolution {
	key := NormalizeDomain(host)
	if res, ok := r.cache.Get(key); ok {
		r.logger.Debug("strategy cache hit", zap.String("domain", key))
		return res
	}

	r.mu.RLock()
	builtin, ok := r.builtins[key]
	r.mu.RUnlock()
	if ok {
		res := Resolution{Key: key, Source: SourceBuiltin, Constructor: builtin}
		r.cache.Add(key, res)
		return res
	}

	if s, err := r.loadScript(key); err == nil {
		res := Resolution{Key: key, Source: SourceScript, Constructor: s.Constructor()}
		r.cache.Add(key, res)
		r.logger.Info("loaded strategy script", zap.String("domain", key), zap.String("version", s.Version))
		return res
	} else if !errors.Is(err, fs.ErrNotExist) {
		r.logger.Warn("strategy script unusable, using generic", zap.String("domain", key), zap.Error(err))
	}

	return Resolution{Key: key, Source: SourceGeneric, Constructor: strategy.NewGeneric}
}

// Purge empties the cache so scripts are reloaded on next use.
func (r *Registry) Purge() {
	r.cache.Purge()
}

// Cached reports how many resolutions are cached.
func (r *Registry) Cached() int {
	return r.cache.Len()
}

// Plugins lists built-in strategies and the scripts found on disk.
func (r *Registry) Plugins() ([]PluginInfo, error) {
	r.mu.RLock()
	infos := make([]PluginInfo, 0, len(r.builtins))
	for key := range r.builtins {
		infos = append(infos, PluginInfo{Key: key, Source: SourceBuiltin, Name: key})
	}
	r.mu.RUnlock()

	var err error
	if r.scriptsDir != "" {
		var metas []script.Meta
		metas, err = script.Discover(r.scriptsDir)
		for _, m := range metas {
			infos = append(infos, PluginInfo{Key: m.Domain, Source: SourceScript, Name: m.Name, Version: m.Version})
		}
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].Key < infos[j].Key })
	return infos, err
}

func (r *Registry) loadScript(key string) (*script.Script, error) {
	if r.scriptsDir == "" || key == "" {
		return nil, fs.ErrNotExist
	}
	return script.Load(filepath.Join(r.scriptsDir, key+script.Ext))
}
