package script

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"iter"
	"net/http"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/antchfx/htmlquery"
	"github.com/antchfx/xpath"
	"github.com/dop251/goja"
	"go.uber.org/zap"

	"github.com/archoctopus/archoctopus-go/internal/models"
	"github.com/archoctopus/archoctopus-go/internal/strategy"
)

const abortKey = "__abort"

// Strategy runs a script's route function in a runtime of its own.
type Strategy struct {
	script *Script
	env    *strategy.Env
}

func (s *Strategy) Name() string { return "script:" + s.script.Domain }

// Route calls exports.route(page, ao). A null or undefined result means
// the script does not handle the page.
func (s *Strategy) Route(ctx context.Context, page *strategy.Page) iter.Seq2[*models.Descriptor, error] {
	vm := goja.New()
	vm.SetFieldNameMapper(goja.TagFieldNameMapper("json", true))

	exports := vm.NewObject()
	vm.Set("exports", exports)
	if _, err := vm.RunProgram(s.script.program); err != nil {
		return strategy.Fail(s.fail("load", err))
	}

	route, ok := goja.AssertFunction(exports.Get("route"))
	if !ok {
		return strategy.Fail(&Error{Script: s.script.Domain, Function: "route", Message: "script does not export route"})
	}

	stop := context.AfterFunc(ctx, func() { vm.Interrupt(ctx.Err()) })
	defer stop()

	a := &api{ctx: ctx, vm: vm, env: s.env, page: page, logger: s.logger()}
	result, err := s.call(route, vm.ToValue(a.pageObject()), a.object())
	if err != nil {
		return strategy.Fail(err)
	}
	if goja.IsUndefined(result) || goja.IsNull(result) {
		return nil
	}

	exported := result.Export()
	var raw []any
	switch v := exported.(type) {
	case []any:
		raw = v
	case map[string]any:
		if msg, ok := abortMessage(v); ok {
			return strategy.Abort(msg)
		}
		if title, ok := v["title"].(string); ok && title != "" {
			page.Title = strategy.Cleanup(title)
		}
		items, _ := v["items"].([]any)
		raw = items
	default:
		return strategy.Fail(&Error{Script: s.script.Domain, Function: "route",
			Message: fmt.Sprintf("unexpected return type %T", exported)})
	}

	descs := make([]*models.Descriptor, 0, len(raw))
	for i, item := range raw {
		d, err := toDescriptor(item)
		if err != nil {
			return strategy.Fail(&Error{Script: s.script.Domain, Function: "route",
				Message: fmt.Sprintf("item %d", i), Cause: err})
		}
		descs = append(descs, d)
	}
	return strategy.Items(descs...)
}

func (s *Strategy) call(fn goja.Callable, args ...goja.Value) (v goja.Value, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &Error{Script: s.script.Domain, Function: "route", Message: fmt.Sprintf("panic: %v", r), IsPanic: true}
		}
	}()
	v, err = fn(goja.Undefined(), args...)
	if err != nil {
		return nil, s.fail("route", err)
	}
	return v, nil
}

func (s *Strategy) fail(function string, err error) error {
	var interrupted *goja.InterruptedError
	if errors.As(err, &interrupted) {
		if cause, ok := interrupted.Value().(error); ok {
			return &Error{Script: s.script.Domain, Function: function, Message: "interrupted", Cause: cause}
		}
	}
	return &Error{Script: s.script.Domain, Function: function, Message: "exception", Cause: err}
}

func (s *Strategy) logger() *zap.Logger {
	if s.env != nil && s.env.Logger != nil {
		return s.env.Logger.With(zap.String("script", s.script.Domain))
	}
	return zap.NewNop()
}

func abortMessage(m map[string]any) (string, bool) {
	v, ok := m[abortKey]
	if !ok {
		return "", false
	}
	msg, _ := v.(string)
	return msg, true
}

func toDescriptor(item any) (*models.Descriptor, error) {
	switch v := item.(type) {
	case string:
		return &models.Descriptor{URL: v}, nil
	case map[string]any:
		if msg, ok := abortMessage(v); ok {
			return models.AbortDescriptor(msg), nil
		}
		d := &models.Descriptor{
			URL:        str(v, "url"),
			SubDir:     str(v, "sub_dir", "subDir"),
			Name:       str(v, "name"),
			Referer:    str(v, "referer"),
			Width:      int(num(v, "width")),
			Height:     int(num(v, "height")),
			Bytes:      num(v, "bytes"),
			ResetIndex: flag(v, "reset_index", "resetIndex"),
		}
		if d.URL == "" {
			return nil, errors.New("item has no url")
		}
		return d, nil
	}
	return nil, fmt.Errorf("unsupported item type %T", item)
}

func str(m map[string]any, keys ...string) string {
	for _, k := range keys {
		if s, ok := m[k].(string); ok {
			return s
		}
	}
	return ""
}

func num(m map[string]any, key string) int64 {
	switch n := m[key].(type) {
	case int64:
		return n
	case int:
		return int64(n)
	case float64:
		return int64(n)
	}
	return 0
}

func flag(m map[string]any, keys ...string) bool {
	for _, k := range keys {
		if b, ok := m[k].(bool); ok {
			return b
		}
	}
	return false
}

// api is the ao object passed to route.
type api struct {
	ctx    context.Context
	vm     *goja.Runtime
	env    *strategy.Env
	page   *strategy.Page
	logger *zap.Logger
}

func (a *api) pageObject() map[string]any {
	query := map[string]any{}
	for k, vs := range a.page.URL.Query() {
		if len(vs) > 0 {
			query[k] = vs[0]
		}
	}
	return map[string]any{
		"url":         a.page.URL.String(),
		"path":        a.page.URL.Path,
		"query":       query,
		"html":        a.page.HTML(),
		"title":       a.page.Title,
		"contentType": a.page.ContentType,
	}
}

func (a *api) object() *goja.Object {
	ao := a.vm.NewObject()

	httpObj := a.vm.NewObject()
	httpObj.Set("get", a.httpGet)
	httpObj.Set("getJSON", a.httpGetJSON)
	ao.Set("http", httpObj)

	logObj := a.vm.NewObject()
	logObj.Set("debug", a.log(a.logger.Debug))
	logObj.Set("info", a.log(a.logger.Info))
	logObj.Set("warn", a.log(a.logger.Warn))
	logObj.Set("error", a.log(a.logger.Error))
	ao.Set("log", logObj)

	ao.Set("select", a.selectCSS)
	ao.Set("xpath", a.xpathQuery)
	ao.Set("resolve", a.resolve)
	ao.Set("abort", a.abort)
	ao.Set("running", func(goja.FunctionCall) goja.Value { return a.vm.ToValue(a.env == nil || a.env.Continue()) })

	if a.env != nil {
		ao.Set("loopMax", a.env.LoopMax)
		ao.Set("autoPage", a.env.AutoPage)
	}
	return ao
}

func (a *api) throw(err error) {
	panic(a.vm.NewGoError(err))
}

func (a *api) headers(v goja.Value) http.Header {
	h := http.Header{}
	if goja.IsUndefined(v) || goja.IsNull(v) {
		return h
	}
	if m, ok := v.Export().(map[string]any); ok {
		for k, val := range m {
			h.Set(k, fmt.Sprint(val))
		}
	}
	return h
}

func (a *api) fetch(call goja.FunctionCall) ([]byte, *http.Response) {
	if a.env == nil || a.env.Client == nil {
		a.throw(errors.New("http is not available"))
	}
	target := call.Argument(0).String()
	resp, err := a.env.Request(a.ctx, http.MethodGet, a.absolute(target), a.headers(call.Argument(1)), nil)
	if err != nil {
		a.throw(err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		a.throw(err)
	}
	return body, resp
}

// httpGet returns {status, body, headers}.
func (a *api) httpGet(call goja.FunctionCall) goja.Value {
	body, resp := a.fetch(call)
	headers := map[string]any{}
	for k := range resp.Header {
		headers[strings.ToLower(k)] = resp.Header.Get(k)
	}
	return a.vm.ToValue(map[string]any{
		"status":  resp.StatusCode,
		"body":    string(body),
		"headers": headers,
	})
}

func (a *api) httpGetJSON(call goja.FunctionCall) goja.Value {
	body, _ := a.fetch(call)
	var out any
	if err := json.Unmarshal(body, &out); err != nil {
		a.throw(fmt.Errorf("decode json: %w", err))
	}
	return a.vm.ToValue(out)
}

// selectCSS returns the text, or the named attribute, of every match.
func (a *api) selectCSS(call goja.FunctionCall) goja.Value {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(call.Argument(0).String()))
	if err != nil {
		a.throw(err)
	}
	attr := ""
	if v := call.Argument(2); !goja.IsUndefined(v) && !goja.IsNull(v) {
		attr = v.String()
	}
	out := []any{}
	doc.Find(call.Argument(1).String()).Each(func(_ int, s *goquery.Selection) {
		if attr == "" {
			out = append(out, strings.TrimSpace(s.Text()))
			return
		}
		if v, ok := s.Attr(attr); ok {
			out = append(out, v)
		}
	})
	return a.vm.ToValue(out)
}

// xpathQuery returns the inner text of every node matching the expression.
// Attribute steps such as //img/@src yield attribute values.
func (a *api) xpathQuery(call goja.FunctionCall) goja.Value {
	doc, err := htmlquery.Parse(strings.NewReader(call.Argument(0).String()))
	if err != nil {
		a.throw(fmt.Errorf("xpath: parse html: %w", err))
	}
	expr, err := xpath.Compile(call.Argument(1).String())
	if err != nil {
		a.throw(fmt.Errorf("xpath: compile: %w", err))
	}
	out := []any{}
	for _, n := range htmlquery.QuerySelectorAll(doc, expr) {
		out = append(out, strings.TrimSpace(htmlquery.InnerText(n)))
	}
	return a.vm.ToValue(out)
}

func (a *api) resolve(call goja.FunctionCall) goja.Value {
	return a.vm.ToValue(a.absolute(call.Argument(0).String()))
}

func (a *api) absolute(ref string) string {
	u, err := url.Parse(ref)
	if err != nil {
		return ref
	}
	return a.page.URL.ResolveReference(u).String()
}

func (a *api) abort(call goja.FunctionCall) goja.Value {
	return a.vm.ToValue(map[string]any{abortKey: call.Argument(0).String()})
}

func (a *api) log(fn func(string, ...zap.Field)) func(goja.FunctionCall) goja.Value {
	return func(call goja.FunctionCall) goja.Value {
		parts := make([]string, 0, len(call.Arguments))
		for _, arg := range call.Arguments {
			parts = append(parts, arg.String())
		}
		fn(strings.Join(parts, " "))
		return goja.Undefined()
	}
}
