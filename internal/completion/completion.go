// Package completion turns a call context into Laravel-aware completion
// items: config keys, route names, views, translation keys and Eloquent
// attributes or relations.
package completion

import (
	"context"
	"log/slog"
	"strings"

	"golang.org/x/text/cases"

	"github.com/doITmagic/laravel-callctx/internal/callctx"
)

// ItemKind tells the client what an item refers to
type ItemKind string

const (
	KindConfig      ItemKind = "config"
	KindRoute       ItemKind = "route"
	KindRouteParam  ItemKind = "route_parameter"
	KindView        ItemKind = "view"
	KindTranslation ItemKind = "translation"
	KindColumn      ItemKind = "column"
	KindRelation    ItemKind = "relation"
)

// Item is one completion candidate
type Item struct {
	Label         string   `json:"label"`
	Kind          ItemKind `json:"kind"`
	Detail        string   `json:"detail,omitempty"`
	Documentation string   `json:"documentation,omitempty"`
}

// Provider offers items for the call contexts it recognises
type Provider interface {
	Name() string
	Match(cc *callctx.CallContext) bool
	Items(ctx context.Context, cc *callctx.CallContext, facts Facts) ([]Item, error)
}

// Options configures an Engine
type Options struct {
	// Limit caps the number of items returned. 0 means no limit.
	Limit int
	// Locale is preferred when describing translations
	Locale string
}

// Engine dispatches a call context to the first matching provider
type Engine struct {
	facts     Facts
	providers []Provider
	opts      Options
	logger    *slog.Logger
}

// New creates an engine with the built-in providers
func New(facts Facts, opts Options, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	if opts.Locale == "" {
		opts.Locale = "en"
	}
	return &Engine{
		facts: facts,
		providers: []Provider{
			configProvider{},
			routeProvider{},
			viewProvider{},
			translationProvider{locale: opts.Locale},
			eloquentProvider{},
		},
		opts:   opts,
		logger: logger.With("component", "completion"),
	}
}

// Register adds a provider consulted after the built-in ones
func (e *Engine) Register(p Provider) {
	e.providers = append(e.providers, p)
}

// Provider returns the provider that handles cc, or nil
func (e *Engine) Provider(cc *callctx.CallContext) Provider {
	if cc == nil {
		return nil
	}
	for _, p := range e.providers {
		if p.Match(cc) {
			return p
		}
	}
	return nil
}

// Complete returns the items for cc whose label starts with typed, compared
// case-insensitively. Fact loading errors yield no items.
func (e *Engine) Complete(ctx context.Context, cc *callctx.CallContext, typed string) []Item {
	p := e.Provider(cc)
	if p == nil {
		return nil
	}

	items, err := p.Items(ctx, cc, e.facts)
	if err != nil {
		e.logger.Debug("provider failed", "provider", p.Name(), "error", err)
		return nil
	}

	out := filterPrefix(items, typed)
	if e.opts.Limit > 0 && len(out) > e.opts.Limit {
		out = out[:e.opts.Limit]
	}
	e.logger.Debug("completion", "provider", p.Name(), "typed", typed, "items", len(out))
	return out
}

// Hover describes the entity named word in the position cc points at
func (e *Engine) Hover(ctx context.Context, cc *callctx.CallContext, word string) (Item, bool) {
	if word == "" {
		return Item{}, false
	}
	for _, item := range e.Complete(ctx, cc, word) {
		if item.Label == word {
			return item, true
		}
	}
	return Item{}, false
}

// Typed returns the text already typed for the argument or array entry under
// the cursor when it is a string
func Typed(cc *callctx.CallContext) string {
	if cc == nil {
		return ""
	}
	v := cc.CurrentParam()
	if v == nil {
		return ""
	}
	if v.Kind == callctx.ValueArray {
		entry := cc.CurrentArrayEntry()
		if entry == nil {
			return ""
		}
		v = &entry.Value
	}
	if v.Kind != callctx.ValueString {
		return ""
	}
	return v.Text
}

func filterPrefix(items []Item, typed string) []Item {
	if typed == "" {
		return items
	}
	fold := cases.Fold()
	prefix := fold.String(typed)

	out := make([]Item, 0, len(items))
	for _, item := range items {
		if strings.HasPrefix(fold.String(item.Label), prefix) {
			out = append(out, item)
		}
	}
	return out
}

// callNamed reports whether cc calls one of names, ignoring case as PHP does
func callNamed(cc *callctx.CallContext, names ...string) bool {
	fn := cc.Function()
	for _, n := range names {
		if strings.EqualFold(fn, n) {
			return true
		}
	}
	return false
}

func isFunction(cc *callctx.CallContext, names ...string) bool {
	return cc.Kind() == callctx.CallFunction && callNamed(cc, names...)
}

// isFacade matches Facade::method(...) by the facade's short name, so both
// imported facades and the global aliases qualify
func isFacade(cc *callctx.CallContext, facade string, methods ...string) bool {
	return cc.Kind() == callctx.CallStatic &&
		strings.EqualFold(cc.DisplayName(), facade) &&
		callNamed(cc, methods...)
}

// onHelper matches helper()->method(...), where the receiver has no class
func onHelper(cc *callctx.CallContext, methods ...string) bool {
	return cc.Kind() == callctx.CallInstance && cc.Class() == "" && cc.Variable() == "" &&
		callNamed(cc, methods...)
}

// stringOrKey reports whether the cursor is on a string argument or on the
// key of an array argument
func stringOrKey(cc *callctx.CallContext) bool {
	if cc.CurrentParamIsArray() {
		return cc.FillingInArrayKey()
	}
	v := cc.CurrentParam()
	return v == nil || v.Kind == callctx.ValueString
}

// stringArg reports whether the cursor is on a plain string argument
func stringArg(cc *callctx.CallContext) bool {
	v := cc.CurrentParam()
	return v == nil || v.Kind == callctx.ValueString
}

// argText returns the text of completed argument i
func argText(cc *callctx.CallContext, i int) string {
	args := cc.Arguments().Arguments
	if i < 0 || i >= len(args) {
		return ""
	}
	return args[i].Text
}
