package laravel

import (
	"context"
	"log/slog"
	"strings"

	"github.com/VKCOM/php-parser/pkg/ast"
	"github.com/VKCOM/php-parser/pkg/version"
	"github.com/VKCOM/php-parser/pkg/visitor"
	"github.com/VKCOM/php-parser/pkg/visitor/traverser"
)

var relationMethods = map[string]bool{
	"hasOne": true, "hasMany": true, "belongsTo": true, "belongsToMany": true,
	"hasOneThrough": true, "hasManyThrough": true, "morphTo": true, "morphOne": true,
	"morphMany": true, "morphToMany": true, "morphedByMany": true,
}

// EloquentAnalyzer extracts Eloquent model information from PHP files
type EloquentAnalyzer struct {
	astHelper *ASTPropertyExtractor
	version   *version.Version
	logger    *slog.Logger
}

// NewEloquentAnalyzer creates a new Eloquent analyzer
func NewEloquentAnalyzer(logger *slog.Logger, ver *version.Version) *EloquentAnalyzer {
	if logger == nil {
		logger = slog.Default()
	}
	return &EloquentAnalyzer{
		astHelper: NewASTPropertyExtractor(),
		version:   ver,
		logger:    logger,
	}
}

// AnalyzeModels detects Eloquent models in the given files
func (a *EloquentAnalyzer) AnalyzeModels(ctx context.Context, filePaths []string) ([]EloquentModel, error) {
	var models []EloquentModel

	for _, path := range filePaths {
		if err := ctx.Err(); err != nil {
			return models, err
		}
		root, _, err := parsePHPFile(path, a.version)
		if err != nil {
			a.logger.Warn("Error analyzing model file", "path", path, "error", err)
			continue
		}
		models = append(models, a.analyzeRoot(root, path)...)
	}

	return models, nil
}

func (a *EloquentAnalyzer) analyzeRoot(root *ast.Root, filePath string) []EloquentModel {
	collector := &modelCollector{
		analyzer: a,
		filePath: filePath,
		imports:  make(map[string]string),
	}
	traverser.NewTraverser(collector).Traverse(root)
	return collector.models
}

// modelCollector visits the AST to find model classes
type modelCollector struct {
	visitor.Null
	analyzer  *EloquentAnalyzer
	filePath  string
	namespace string
	imports   map[string]string
	models    []EloquentModel
}

// StmtNamespace handles namespace declarations
func (v *modelCollector) StmtNamespace(n *ast.StmtNamespace) {
	v.namespace = strings.TrimPrefix(nameOf(n.Name), `\`)
	v.imports = make(map[string]string)
}

// StmtUse handles use statements (imports)
func (v *modelCollector) StmtUse(n *ast.StmtUseList) {
	for _, use := range n.Uses {
		useNode, ok := use.(*ast.StmtUse)
		if !ok {
			continue
		}
		name := strings.TrimPrefix(nameOf(useNode.Use), `\`)
		alias := identifier(useNode.Alias)
		if alias == "" {
			alias = name[strings.LastIndex(name, `\`)+1:]
		}
		v.imports[alias] = name
	}
}

// StmtClass handles class declarations
func (v *modelCollector) StmtClass(n *ast.StmtClass) {
	className := identifier(n.Name)
	extends := nameOf(n.Extends)
	if className == "" || !(isEloquentModel(extends) || isEloquentModel(v.resolve(extends))) {
		return
	}
	v.models = append(v.models, v.extractModel(n, className))
}

// isEloquentModel checks if a class extends an Eloquent base model, a pivot
// or a Laravel Authenticatable user model.
func isEloquentModel(extends string) bool {
	if extends == "" {
		return false
	}
	if strings.TrimPrefix(extends, `\`) == `Illuminate\Foundation\Auth\User` {
		return true
	}
	base := extends[strings.LastIndex(extends, `\`)+1:]
	switch base {
	case "Model", "Authenticatable", "Pivot", "MorphPivot":
		return true
	}
	return false
}

func (v *modelCollector) extractModel(n *ast.StmtClass, className string) EloquentModel {
	h := v.analyzer.astHelper
	model := EloquentModel{
		ClassName:  className,
		Namespace:  v.namespace,
		FullName:   v.qualified(className),
		Table:      h.ExtractStringPropertyFromClass(n, "table"),
		PrimaryKey: h.ExtractStringPropertyFromClass(n, "primaryKey"),
		Fillable:   h.ExtractStringArrayFromClass(n, "fillable"),
		Guarded:    h.ExtractStringArrayFromClass(n, "guarded"),
		Hidden:     h.ExtractStringArrayFromClass(n, "hidden"),
		Appends:    h.ExtractStringArrayFromClass(n, "appends"),
		Casts:      h.ExtractMapFromClass(n, "casts"),
		FilePath:   v.filePath,
	}
	if pos := n.GetPosition(); pos != nil {
		model.StartLine = pos.StartLine
		model.EndLine = pos.EndLine
	}
	if model.PrimaryKey == "" {
		model.PrimaryKey = "id"
	}

	for _, stmt := range n.Stmts {
		switch s := stmt.(type) {
		case *ast.StmtTraitUse:
			for _, trait := range s.Traits {
				if strings.HasSuffix(nameOf(trait), "SoftDeletes") {
					model.SoftDeletes = true
				}
			}
		case *ast.StmtClassMethod:
			v.inspectMethod(&model, s)
		}
	}
	return model
}

func (v *modelCollector) inspectMethod(model *EloquentModel, m *ast.StmtClassMethod) {
	name := identifier(m.Name)
	if name == "" {
		return
	}
	line := startLine(m)

	switch {
	case name == "casts":
		if model.Casts == nil {
			model.Casts = make(map[string]string)
		}
		for k, val := range v.analyzer.astHelper.ExtractReturnedMap(m) {
			model.Casts[k] = val
		}
		return

	case strings.HasPrefix(name, "scope") && len(name) > 5:
		model.Scopes = append(model.Scopes, EloquentScope{
			Name:       strings.ToLower(name[5:6]) + name[6:],
			MethodName: name,
			StartLine:  line,
		})
		return

	case len(name) > 12 && strings.HasSuffix(name, "Attribute") &&
		(strings.HasPrefix(name, "get") || strings.HasPrefix(name, "set")):
		kind := "accessor"
		if name[0] == 's' {
			kind = "mutator"
		}
		model.Attributes = append(model.Attributes, EloquentAttribute{
			Name:       snakeCase(name[3 : len(name)-9]),
			MethodName: name,
			Type:       kind,
			StartLine:  line,
		})
		return
	}

	if ret := v.resolve(nameOf(m.ReturnType)); ret == "Attribute" || strings.HasSuffix(ret, `\Casts\Attribute`) {
		model.Attributes = append(model.Attributes, EloquentAttribute{
			Name:       snakeCase(name),
			MethodName: name,
			Type:       "attribute",
			StartLine:  line,
		})
		return
	}

	if rel := v.detectRelation(m, name, line); rel != nil {
		model.Relations = append(model.Relations, *rel)
	}
}

// detectRelation checks if a method body returns $this->hasMany(...) and the like
func (v *modelCollector) detectRelation(m *ast.StmtClassMethod, name string, line int) *EloquentRelation {
	for _, call := range v.analyzer.astHelper.ExtractMethodCalls(m) {
		if call.Object != "this" || !relationMethods[call.Method] {
			continue
		}

		rel := &EloquentRelation{Name: name, Type: call.Method, StartLine: line}
		if len(call.Args) > 0 && call.Args[0] != "" {
			rel.RelatedModel = v.resolve(call.Args[0])
		}
		if len(call.Args) > 1 {
			rel.ForeignKey = call.Args[1]
		}
		if len(call.Args) > 2 {
			rel.LocalKey = call.Args[2]
		}
		return rel
	}
	return nil
}

// resolve turns a short class name into a fully qualified one using the
// file's imports, falling back to the current namespace.
func (v *modelCollector) resolve(name string) string {
	if name == "" {
		return ""
	}
	if strings.HasPrefix(name, `\`) {
		return name[1:]
	}
	head, rest, qualified := strings.Cut(name, `\`)
	if full, ok := v.imports[head]; ok {
		if qualified {
			return full + `\` + rest
		}
		return full
	}
	return v.qualified(name)
}

func (v *modelCollector) qualified(name string) string {
	if v.namespace == "" {
		return name
	}
	return v.namespace + `\` + name
}

// snakeCase converts CamelCase to snake_case
func snakeCase(s string) string {
	var result strings.Builder
	for i, r := range s {
		if i > 0 && r >= 'A' && r <= 'Z' {
			result.WriteRune('_')
		}
		result.WriteRune(r)
	}
	return strings.ToLower(result.String())
}
