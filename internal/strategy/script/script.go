// Package script runs site strategies written in JavaScript. A script
// named <domain-key>.js exports route(page, ao) and is picked up by the
// registry when no built-in strategy exists for that domain.
//
//	// name: Example gallery
//	// version: 1.2.0
//	// requires: ^1.0
//	exports.route = function (page, ao) {
//	  if (!/^\/gallery\//.test(page.path)) return null;
//	  return ao.select(page.html, "figure img", "src").map(function (src) {
//	    return { url: ao.resolve(src) };
//	  });
//	};
package script

import (
	"bufio"
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/Masterminds/semver/v3"
	"github.com/dop251/goja"

	"github.com/archoctopus/archoctopus-go/internal/strategy"
)

// APIVersion is the version of the ao object handed to scripts. A script's
// requires header is checked against it.
const APIVersion = "1.0.0"

// Ext is the file extension of strategy scripts.
const Ext = ".js"

// Meta is the header information of a script.
type Meta struct {
	Domain   string `json:"domain"`
	Name     string `json:"name"`
	Version  string `json:"version"`
	Requires string `json:"requires,omitempty"`
	Path     string `json:"path"`
}

// Error describes a failure loading or running a script.
type Error struct {
	Script   string
	Function string
	Message  string
	Cause    error
	IsPanic  bool
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("script %s: %s: %s: %v", e.Script, e.Function, e.Message, e.Cause)
	}
	return fmt.Sprintf("script %s: %s: %s", e.Script, e.Function, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// Script is a compiled strategy script. The program is shared; every
// strategy instance runs it in its own runtime.
type Script struct {
	Meta
	program *goja.Program
}

// Load reads, validates and compiles the script at path.
func Load(path string) (*Script, error) {
	src, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	meta, err := parseMeta(path, src)
	if err != nil {
		return nil, err
	}
	if err := checkCompatible(meta); err != nil {
		return nil, err
	}

	wrapped := fmt.Sprintf("(function(exports) {\n%s\n})(exports);", src)
	program, err := goja.Compile(path, wrapped, false)
	if err != nil {
		return nil, &Error{Script: meta.Domain, Function: "compile", Message: "syntax error", Cause: err}
	}
	return &Script{Meta: meta, program: program}, nil
}

// Constructor returns a strategy constructor backed by this script.
func (s *Script) Constructor() strategy.Constructor {
	return func(env *strategy.Env) strategy.Strategy {
		return &Strategy{script: s, env: env}
	}
}

// Discover lists the scripts in dir without compiling them. Files with
// unreadable headers are skipped and reported in the returned error.
func Discover(dir string) ([]Meta, error) {
	paths, err := filepath.Glob(filepath.Join(dir, "*"+Ext))
	if err != nil {
		return nil, err
	}
	var metas []Meta
	var errs []string
	for _, p := range paths {
		src, err := os.ReadFile(p)
		if err != nil {
			errs = append(errs, err.Error())
			continue
		}
		meta, err := parseMeta(p, src)
		if err != nil {
			errs = append(errs, err.Error())
			continue
		}
		metas = append(metas, meta)
	}
	sort.Slice(metas, func(i, j int) bool { return metas[i].Domain < metas[j].Domain })
	if len(errs) > 0 {
		return metas, fmt.Errorf("discover scripts: %s", strings.Join(errs, "; "))
	}
	return metas, nil
}

// parseMeta reads the leading "// key: value" comment lines.
func parseMeta(path string, src []byte) (Meta, error) {
	domain := strings.TrimSuffix(filepath.Base(path), Ext)
	meta := Meta{Domain: domain, Name: domain, Version: "0.0.0", Path: path}

	sc := bufio.NewScanner(bytes.NewReader(src))
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		if !strings.HasPrefix(line, "//") {
			break
		}
		key, value, ok := strings.Cut(strings.TrimSpace(strings.TrimPrefix(line, "//")), ":")
		if !ok {
			continue
		}
		value = strings.TrimSpace(value)
		switch strings.ToLower(strings.TrimSpace(key)) {
		case "name":
			meta.Name = value
		case "version":
			meta.Version = strings.TrimPrefix(value, "v")
		case "requires":
			meta.Requires = value
		}
	}

	if _, err := semver.NewVersion(meta.Version); err != nil {
		return meta, &Error{Script: domain, Function: "header", Message: "invalid version " + meta.Version, Cause: err}
	}
	return meta, nil
}

func checkCompatible(meta Meta) error {
	if meta.Requires == "" {
		return nil
	}
	c, err := semver.NewConstraint(meta.Requires)
	if err != nil {
		return &Error{Script: meta.Domain, Function: "header", Message: "invalid requires constraint", Cause: err}
	}
	if !c.Check(semver.MustParse(APIVersion)) {
		return &Error{Script: meta.Domain, Function: "header",
			Message: fmt.Sprintf("requires API %s, have %s", meta.Requires, APIVersion)}
	}
	return nil
}
