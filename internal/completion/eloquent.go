package completion

import (
	"context"
	"strings"

	"github.com/doITmagic/laravel-callctx/internal/callctx"
	"github.com/doITmagic/laravel-callctx/internal/laravel"
)

var columnMethods = methodSet(
	"where", "orWhere", "whereNot", "orWhereNot", "whereIn", "orWhereIn", "whereNotIn", "orWhereNotIn",
	"whereNull", "orWhereNull", "whereNotNull", "orWhereNotNull", "whereBetween", "orWhereBetween",
	"whereNotBetween", "whereDate", "whereMonth", "whereDay", "whereYear", "whereTime", "whereColumn",
	"whereLike", "firstWhere", "orderBy", "orderByDesc", "latest", "oldest", "groupBy", "pluck",
	"value", "increment", "decrement", "sum", "avg", "min", "max", "distinct",
)

// list columns anywhere in the argument list or in an array argument
var selectMethods = methodSet("select", "addSelect", "get", "only", "makeHidden", "makeVisible")

var relationMethods = methodSet(
	"with", "without", "load", "loadMissing", "loadCount", "withCount", "withExists", "withSum",
	"has", "orHas", "doesntHave", "orDoesntHave", "whereHas", "orWhereHas", "whereDoesntHave",
	"orWhereDoesntHave", "withWhereHas", "whereRelation", "orWhereRelation", "relationLoaded",
)

// attribute arrays: argument index -> takes column keys
var attributeArrayMethods = map[string][]int{
	"create":         {0},
	"make":           {0},
	"fill":           {0},
	"forcefill":      {0},
	"forcecreate":    {0},
	"update":         {0},
	"insert":         {0},
	"firstorcreate":  {0, 1},
	"firstornew":     {0, 1},
	"updateorcreate": {0, 1},
}

func methodSet(names ...string) map[string]bool {
	m := make(map[string]bool, len(names))
	for _, n := range names {
		m[strings.ToLower(n)] = true
	}
	return m
}

// eloquentProvider completes attributes and relations of Eloquent models,
// including queries inside relation closures such as
// whereHas('posts', fn ($q) => $q->where('...
type eloquentProvider struct{}

func (eloquentProvider) Name() string { return "eloquent" }

func (eloquentProvider) Match(cc *callctx.CallContext) bool {
	if cc.Kind() == callctx.CallFunction {
		return false
	}
	return queryTarget(cc) != target(0)
}

func (eloquentProvider) Items(ctx context.Context, cc *callctx.CallContext, facts Facts) ([]Item, error) {
	models, err := facts.Models(ctx)
	if err != nil {
		return nil, err
	}

	model, ok := modelFor(cc, models)
	if !ok {
		if model, ok = relationClosureModel(cc, models); !ok {
			return nil, nil
		}
	}

	switch queryTarget(cc) {
	case targetColumns:
		return withoutKeys(columnItems(model), cc.CurrentParamArrayKeys()), nil
	case targetFillable:
		return withoutKeys(fillableItems(model), cc.CurrentParamArrayKeys()), nil
	case targetRelations:
		return relationItems(model), nil
	case targetRelatedColumns:
		related, ok := followRelations(model, argText(cc, 0), models)
		if !ok {
			return nil, nil
		}
		return columnItems(related), nil
	}
	return nil, nil
}

type target int

const (
	targetColumns target = iota + 1
	targetFillable
	targetRelations
	targetRelatedColumns
)

// queryTarget classifies what the cursor position of a query method expects
func queryTarget(cc *callctx.CallContext) target {
	fn := strings.ToLower(cc.Function())
	idx := cc.ParamIndex()

	if cc.CurrentParamIsArray() {
		if !cc.FillingInArrayKey() {
			return 0
		}
		entry := cc.CurrentArrayEntry()
		listValue := entry != nil && entry.Key == nil
		for _, i := range attributeArrayMethods[fn] {
			if i == idx {
				return targetFillable
			}
		}
		switch {
		case relationMethods[fn] && idx == 0 && listValue:
			return targetRelations
		case selectMethods[fn] && listValue:
			return targetColumns
		case columnMethods[fn] && idx == 0:
			return targetColumns
		}
		return 0
	}

	if !stringArg(cc) {
		return 0
	}
	switch {
	case (fn == "whererelation" || fn == "orwhererelation") && idx == 1:
		return targetRelatedColumns
	case relationMethods[fn] && idx == 0:
		return targetRelations
	case columnMethods[fn] && idx == 0:
		return targetColumns
	case fn == "wherecolumn" && idx == 2:
		return targetColumns
	case selectMethods[fn]:
		return targetColumns
	}
	return 0
}

// modelFor finds the model the call's class refers to
func modelFor(cc *callctx.CallContext, models []laravel.EloquentModel) (laravel.EloquentModel, bool) {
	if cc.Class() == "" {
		return laravel.EloquentModel{}, false
	}
	return findModel(models, cc.FQN(), cc.FQNResolved(), cc.DisplayName())
}

// findModel matches by fully qualified name, falling back to a unique short
// name when the reference could not be resolved
func findModel(models []laravel.EloquentModel, fqn string, resolved bool, short string) (laravel.EloquentModel, bool) {
	fqn = strings.TrimPrefix(fqn, `\`)
	for _, m := range models {
		if strings.EqualFold(m.FullName, fqn) {
			return m, true
		}
	}
	if resolved {
		return laravel.EloquentModel{}, false
	}

	var found laravel.EloquentModel
	n := 0
	for _, m := range models {
		if strings.EqualFold(m.ClassName, short) {
			found = m
			n++
		}
	}
	return found, n == 1
}

// relationClosureModel walks up to a relation method such as whereHas or
// with and returns the related model its closure queries. A grouping
// closure passed to where queries the model itself.
func relationClosureModel(cc *callctx.CallContext, models []laravel.EloquentModel) (laravel.EloquentModel, bool) {
	var related laravel.EloquentModel
	var ok bool
	cc.WalkParents(func(p *callctx.CallContext) bool {
		fn := strings.ToLower(p.Function())
		if !relationMethods[fn] && !columnMethods[fn] {
			return false
		}
		owner, found := modelFor(p, models)
		if !found {
			return false
		}
		// where(function ($q) { ... }) groups conditions on the same model
		if !relationMethods[fn] {
			related, ok = owner, true
			return true
		}

		relation := ""
		if entry := p.CurrentArrayEntry(); entry != nil && entry.Key != nil {
			relation = entry.Key.Text
		} else if p.ParamIndex() > 0 {
			relation = argText(p, 0)
		}
		related, ok = followRelations(owner, relation, models)
		return true
	})
	return related, ok
}

// followRelations resolves a dotted relation path such as "posts.comments"
func followRelations(model laravel.EloquentModel, path string, models []laravel.EloquentModel) (laravel.EloquentModel, bool) {
	if path == "" {
		return laravel.EloquentModel{}, false
	}
	for _, name := range strings.Split(path, ".") {
		// "posts:id,title" limits columns; only the name matters here
		name, _, _ = strings.Cut(name, ":")
		rel, ok := relationNamed(model, name)
		if !ok {
			return laravel.EloquentModel{}, false
		}
		short := rel.RelatedModel
		if i := strings.LastIndex(short, `\`); i >= 0 {
			short = short[i+1:]
		}
		next, ok := findModel(models, rel.RelatedModel, strings.Contains(rel.RelatedModel, `\`), short)
		if !ok {
			return laravel.EloquentModel{}, false
		}
		model = next
	}
	return model, true
}

// withoutKeys drops items for array keys already written
func withoutKeys(items []Item, keys []string) []Item {
	if len(keys) == 0 {
		return items
	}
	written := make(map[string]bool, len(keys))
	for _, k := range keys {
		written[k] = true
	}
	out := items[:0:0]
	for _, it := range items {
		if !written[it.Label] {
			out = append(out, it)
		}
	}
	return out
}

func relationNamed(model laravel.EloquentModel, name string) (laravel.EloquentRelation, bool) {
	for _, r := range model.Relations {
		if r.Name == name {
			return r, true
		}
	}
	return laravel.EloquentRelation{}, false
}

func columnItems(m laravel.EloquentModel) []Item {
	cols := m.Columns()
	items := make([]Item, 0, len(cols))
	for _, c := range cols {
		items = append(items, Item{Label: c, Kind: KindColumn, Detail: columnDetail(m, c), Documentation: m.FullName})
	}
	return items
}

// fillableItems lists mass assignable attributes, or every known column
// except guarded ones when $fillable is empty
func fillableItems(m laravel.EloquentModel) []Item {
	if len(m.Fillable) > 0 {
		items := make([]Item, 0, len(m.Fillable))
		for _, c := range m.Fillable {
			items = append(items, Item{Label: c, Kind: KindColumn, Detail: columnDetail(m, c), Documentation: m.FullName})
		}
		return items
	}

	guarded := make(map[string]bool, len(m.Guarded))
	for _, g := range m.Guarded {
		guarded[g] = true
	}
	var items []Item
	for _, it := range columnItems(m) {
		if !guarded[it.Label] && !guarded["*"] {
			items = append(items, it)
		}
	}
	return items
}

func relationItems(m laravel.EloquentModel) []Item {
	items := make([]Item, 0, len(m.Relations))
	for _, r := range m.Relations {
		items = append(items, Item{
			Label:         r.Name,
			Kind:          KindRelation,
			Detail:        r.Type + " " + r.RelatedModel,
			Documentation: m.FullName,
		})
	}
	return items
}

func columnDetail(m laravel.EloquentModel, column string) string {
	if cast, ok := m.Casts[column]; ok {
		return cast
	}
	for _, a := range m.Attributes {
		if a.Name == column {
			return a.Type
		}
	}
	if column == m.PrimaryKey {
		return "primary key"
	}
	return ""
}
