package completion

import (
	"context"
	"fmt"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"github.com/doITmagic/laravel-callctx/internal/callctx"
)

// configProvider completes config('app.name'), Config::get(...) and the
// keys of config([...])
type configProvider struct{}

func (configProvider) Name() string { return "config" }

func (configProvider) Match(cc *callctx.CallContext) bool {
	if !cc.IsParamIndex(0) || !stringOrKey(cc) {
		return false
	}
	return isFunction(cc, "config") ||
		isFacade(cc, "Config", "get", "has", "set", "string", "integer", "float", "boolean", "array", "prepend", "push")
}

func (configProvider) Items(ctx context.Context, _ *callctx.CallContext, facts Facts) ([]Item, error) {
	keys, err := facts.ConfigKeys(ctx)
	if err != nil {
		return nil, err
	}
	items := make([]Item, 0, len(keys))
	for _, k := range keys {
		detail := k.Value
		if k.IsArray {
			detail = "array"
		}
		items = append(items, Item{
			Label:         k.Key,
			Kind:          KindConfig,
			Detail:        detail,
			Documentation: fmt.Sprintf("%s:%d", filepath.Base(k.FilePath), k.Line),
		})
	}
	sortItems(items)
	return items, nil
}

// routeProvider completes route names for route(), to_route(),
// redirect()->route() and the URL/Redirect facades, and parameter names in
// the array that follows
type routeProvider struct{}

func (routeProvider) Name() string { return "route" }

func (routeProvider) Match(cc *callctx.CallContext) bool {
	switch {
	case cc.IsParamIndex(0):
		if !stringArg(cc) {
			return false
		}
	case cc.IsParamIndex(1):
		if !cc.CurrentParamIsArray() || !cc.FillingInArrayKey() {
			return false
		}
	default:
		return false
	}
	if cc.IsParamIndex(0) && (onHelper(cc, "routeIs") || isFacade(cc, "Route", "is", "has")) {
		return true
	}
	return isFunction(cc, "route", "to_route") ||
		onHelper(cc, "route") ||
		isFacade(cc, "Redirect", "route") ||
		isFacade(cc, "URL", "route", "signedRoute", "temporarySignedRoute")
}

func (routeProvider) Items(ctx context.Context, cc *callctx.CallContext, facts Facts) ([]Item, error) {
	routes, err := facts.Routes(ctx)
	if err != nil {
		return nil, err
	}

	if cc.IsParamIndex(1) {
		name := argText(cc, 0)
		for _, r := range routes {
			if r.Name != name {
				continue
			}
			var items []Item
			for _, p := range RouteParameters(r.URI) {
				items = append(items, Item{Label: p, Kind: KindRouteParam, Detail: r.URI})
			}
			return items, nil
		}
		return nil, nil
	}

	seen := make(map[string]bool)
	var items []Item
	for _, r := range routes {
		if r.Name == "" || seen[r.Name] {
			continue
		}
		seen[r.Name] = true
		doc := r.Controller
		if r.Action != "" {
			doc += "@" + r.Action
		}
		items = append(items, Item{
			Label:         r.Name,
			Kind:          KindRoute,
			Detail:        r.Method + " " + r.URI,
			Documentation: doc,
		})
	}
	sortItems(items)
	return items, nil
}

var routeParamRe = regexp.MustCompile(`\{([A-Za-z_][A-Za-z0-9_]*)\??(?::[^}]*)?\}`)

// RouteParameters returns the parameter names of a route URI, optional
// parameters included
func RouteParameters(uri string) []string {
	var out []string
	for _, m := range routeParamRe.FindAllStringSubmatch(uri, -1) {
		out = append(out, m[1])
	}
	return out
}

// viewProvider completes view names
type viewProvider struct{}

func (viewProvider) Name() string { return "view" }

func (viewProvider) Match(cc *callctx.CallContext) bool {
	if !stringArg(cc) {
		return false
	}
	if cc.IsParamIndex(1) {
		return isFacade(cc, "Route", "view")
	}
	if !cc.IsParamIndex(0) {
		return false
	}
	return isFunction(cc, "view") ||
		isFacade(cc, "View", "make", "exists", "first", "composer") ||
		onHelper(cc, "view", "make", "exists") ||
		(cc.Kind() == callctx.CallInstance && callNamed(cc, "view", "markdown"))
}

func (viewProvider) Items(ctx context.Context, _ *callctx.CallContext, facts Facts) ([]Item, error) {
	views, err := facts.Views(ctx)
	if err != nil {
		return nil, err
	}
	items := make([]Item, 0, len(views))
	for _, v := range views {
		items = append(items, Item{Label: v.Name, Kind: KindView, Detail: filepath.Base(v.FilePath), Documentation: v.FilePath})
	}
	sortItems(items)
	return items, nil
}

// translationProvider completes translation keys for __(), trans(),
// trans_choice() and the Lang facade
type translationProvider struct {
	locale string
}

func (translationProvider) Name() string { return "translation" }

func (translationProvider) Match(cc *callctx.CallContext) bool {
	if !cc.IsParamIndex(0) || !stringArg(cc) {
		return false
	}
	return isFunction(cc, "__", "trans", "trans_choice") ||
		isFacade(cc, "Lang", "get", "has", "hasForLocale", "choice")
}

func (p translationProvider) Items(ctx context.Context, _ *callctx.CallContext, facts Facts) ([]Item, error) {
	translations, err := facts.Translations(ctx)
	if err != nil {
		return nil, err
	}

	type entry struct {
		detail string
		values []string
	}
	byKey := make(map[string]*entry)
	var order []string
	for _, t := range translations {
		e, ok := byKey[t.Key]
		if !ok {
			e = &entry{}
			byKey[t.Key] = e
			order = append(order, t.Key)
		}
		if e.detail == "" || t.Locale == p.locale {
			e.detail = t.Value
		}
		e.values = append(e.values, t.Locale+": "+t.Value)
	}

	items := make([]Item, 0, len(order))
	for _, key := range order {
		e := byKey[key]
		sort.Strings(e.values)
		items = append(items, Item{
			Label:         key,
			Kind:          KindTranslation,
			Detail:        e.detail,
			Documentation: strings.Join(e.values, "\n"),
		})
	}
	sortItems(items)
	return items, nil
}

func sortItems(items []Item) {
	sort.SliceStable(items, func(i, j int) bool { return items[i].Label < items[j].Label })
}
