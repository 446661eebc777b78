package laravel

import (
	"context"
	"log/slog"
	"strings"

	"github.com/VKCOM/php-parser/pkg/ast"
	"github.com/VKCOM/php-parser/pkg/version"
)

// RouteAnalyzer parses Laravel route files
type RouteAnalyzer struct {
	astHelper *ASTPropertyExtractor
	version   *version.Version
	logger    *slog.Logger
}

// NewRouteAnalyzer creates a new route analyzer
func NewRouteAnalyzer(logger *slog.Logger, ver *version.Version) *RouteAnalyzer {
	if logger == nil {
		logger = slog.Default()
	}
	return &RouteAnalyzer{
		astHelper: NewASTPropertyExtractor(),
		version:   ver,
		logger:    logger,
	}
}

// Analyze parses the given route files and returns extracted routes.
// Files that fail to parse are logged and skipped.
func (ra *RouteAnalyzer) Analyze(ctx context.Context, filePaths []string) ([]Route, error) {
	var allRoutes []Route

	for _, path := range filePaths {
		if err := ctx.Err(); err != nil {
			return allRoutes, err
		}
		root, _, err := parsePHPFile(path, ra.version)
		if err != nil {
			ra.logger.Warn("Error analyzing route file", "path", path, "error", err)
			continue
		}
		allRoutes = append(allRoutes, ra.analyzeRoot(root, path)...)
	}

	return allRoutes, nil
}

func (ra *RouteAnalyzer) analyzeRoot(root *ast.Root, filePath string) []Route {
	c := &routeCollector{filePath: filePath, astHelper: ra.astHelper, imports: make(map[string]string)}
	c.stmts(root.Stmts, routeGroup{})
	return c.routes
}

// routeGroup holds attributes inherited from enclosing Route::group() calls
type routeGroup struct {
	prefix     string
	name       string
	middleware []string
	controller string
}

// chainLink is one call of a fluent route definition, in source order
type chainLink struct {
	method string
	args   []ast.Vertex
	line   int
}

type routeCollector struct {
	routes    []Route
	filePath  string
	astHelper *ASTPropertyExtractor
	imports   map[string]string
}

func (c *routeCollector) stmts(list []ast.Vertex, g routeGroup) {
	for _, stmt := range list {
		switch n := stmt.(type) {
		case *ast.StmtNamespace:
			c.stmts(n.Stmts, g)
		case *ast.StmtUseList:
			c.collectUses(n)
		case *ast.StmtStmtList:
			c.stmts(n.Stmts, g)
		case *ast.StmtExpression:
			c.chain(n.Expr, g)
		}
	}
}

func (c *routeCollector) collectUses(n *ast.StmtUseList) {
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
		c.imports[alias] = name
	}
}

// chain flattens $a::b()->c()->d() into links and interprets them when the
// root is a static call on the Route facade.
func (c *routeCollector) chain(expr ast.Vertex, g routeGroup) {
	var links []chainLink
	for expr != nil {
		switch n := expr.(type) {
		case *ast.ExprMethodCall:
			links = append(links, chainLink{method: identifier(n.Method), args: n.Args, line: startLine(n)})
			expr = n.Var
		case *ast.ExprStaticCall:
			class := strings.TrimPrefix(nameOf(n.Class), `\`)
			if class != "Route" && !strings.HasSuffix(class, `\Route`) {
				return
			}
			links = append(links, chainLink{method: identifier(n.Call), args: n.Args, line: startLine(n)})
			expr = nil
		default:
			return
		}
	}

	// reverse into source order
	for i, j := 0, len(links)-1; i < j; i, j = i+1, j-1 {
		links[i], links[j] = links[j], links[i]
	}
	c.interpret(links, g)
}

func (c *routeCollector) interpret(links []chainLink, g routeGroup) {
	local := g
	local.middleware = append([]string(nil), g.middleware...)

	var defined []int // indexes into c.routes created by this chain
	for _, link := range links {
		switch link.method {
		case "prefix":
			local.prefix = joinURI(local.prefix, c.arg(link.args, 0))
		case "name", "as":
			if len(defined) > 0 {
				for _, i := range defined {
					c.routes[i].Name = local.name + c.arg(link.args, 0)
				}
			} else {
				local.name += c.arg(link.args, 0)
			}
		case "middleware":
			mw := c.stringList(link.args)
			if len(defined) > 0 {
				for _, i := range defined {
					c.routes[i].Middleware = append(c.routes[i].Middleware, mw...)
				}
			} else {
				local.middleware = append(local.middleware, mw...)
			}
		case "controller":
			local.controller = c.controllerName(argExpr(link.args, 0))
		case "group":
			c.group(link.args, local)
		case "get", "post", "put", "patch", "delete", "options", "any":
			defined = append(defined, c.addRoute([]string{link.method}, c.arg(link.args, 0), argExpr(link.args, 1), local, link.line)...)
		case "match":
			methods := c.astHelper.extractStringArrayFromExpr(argExpr(link.args, 0))
			defined = append(defined, c.addRoute(methods, c.arg(link.args, 1), argExpr(link.args, 2), local, link.line)...)
		case "view", "redirect", "permanentRedirect":
			defined = append(defined, c.addRoute([]string{"get"}, c.arg(link.args, 0), nil, local, link.line)...)
		case "resource", "apiResource":
			c.addResource(link.args, local, link.line, link.method == "apiResource")
		}
	}
}

// group handles Route::group([...], fn) and ->group(fn)
func (c *routeCollector) group(args []ast.Vertex, g routeGroup) {
	var body ast.Vertex
	for _, a := range args {
		expr := argExpr([]ast.Vertex{a}, 0)
		if attrs, ok := expr.(*ast.ExprArray); ok {
			for k, v := range c.astHelper.extractMapFromExpr(attrs) {
				switch k {
				case "prefix":
					g.prefix = joinURI(g.prefix, v)
				case "as":
					g.name += v
				case "middleware":
					g.middleware = append(g.middleware, v)
				}
			}
			continue
		}
		body = expr
	}

	switch fn := body.(type) {
	case *ast.ExprClosure:
		c.stmts(fn.Stmts, g)
	case *ast.ExprArrowFunction:
		c.chain(fn.Expr, g)
	}
}

func (c *routeCollector) addRoute(methods []string, uri string, action ast.Vertex, g routeGroup, line int) []int {
	controller, act := c.action(action)
	if controller == "" && act != "" && g.controller != "" {
		controller = g.controller
	}

	var idx []int
	for _, m := range methods {
		c.routes = append(c.routes, Route{
			Method:     strings.ToUpper(m),
			URI:        joinURI(g.prefix, uri),
			Controller: controller,
			Action:     act,
			Middleware: append([]string(nil), g.middleware...),
			FilePath:   c.filePath,
			Line:       line,
		})
		idx = append(idx, len(c.routes)-1)
	}
	return idx
}

var resourceActions = []struct {
	action, method, suffix string
	api                    bool
}{
	{"index", "GET", "", true},
	{"create", "GET", "/create", false},
	{"store", "POST", "", true},
	{"show", "GET", "/{id}", true},
	{"edit", "GET", "/{id}/edit", false},
	{"update", "PUT", "/{id}", true},
	{"destroy", "DELETE", "/{id}", true},
}

func (c *routeCollector) addResource(args []ast.Vertex, g routeGroup, line int, apiOnly bool) {
	name := c.arg(args, 0)
	controller := c.controllerName(argExpr(args, 1))
	if name == "" || controller == "" {
		return
	}

	uri := strings.ReplaceAll(name, ".", "/")
	for _, ra := range resourceActions {
		if apiOnly && !ra.api {
			continue
		}
		c.routes = append(c.routes, Route{
			Method:     ra.method,
			URI:        joinURI(g.prefix, uri+ra.suffix),
			Name:       g.name + name + "." + ra.action,
			Controller: controller,
			Action:     ra.action,
			Middleware: append([]string(nil), g.middleware...),
			FilePath:   c.filePath,
			Line:       line,
		})
	}
}

// action returns controller and method for [Controller::class, 'm'],
// 'Controller@m', invokable Controller::class or a closure.
func (c *routeCollector) action(expr ast.Vertex) (string, string) {
	switch n := expr.(type) {
	case *ast.ExprArray:
		if len(n.Items) < 2 {
			return "", ""
		}
		first, _ := n.Items[0].(*ast.ExprArrayItem)
		second, _ := n.Items[1].(*ast.ExprArrayItem)
		if first == nil || second == nil {
			return "", ""
		}
		return c.controllerName(first.Val), c.astHelper.extractStringFromExpr(second.Val)
	case *ast.ScalarString:
		val := unquotePHP(string(n.Value))
		if ctrl, act, ok := strings.Cut(val, "@"); ok {
			return c.qualify(ctrl), act
		}
		// controller group shorthand: ->controller(X::class)->group(... get('/', 'index'))
		return "", val
	case *ast.ExprClassConstFetch:
		return c.controllerName(n), "__invoke"
	case *ast.ExprClosure, *ast.ExprArrowFunction:
		return "Closure", ""
	}
	return "", ""
}

func (c *routeCollector) controllerName(expr ast.Vertex) string {
	switch n := expr.(type) {
	case *ast.ExprClassConstFetch:
		name := nameOf(n.Class)
		if strings.HasPrefix(name, `\`) {
			return name[1:]
		}
		return c.qualify(name)
	case *ast.ScalarString:
		return c.qualify(unquotePHP(string(n.Value)))
	}
	return ""
}

// qualify resolves a short class name through the file's use statements
func (c *routeCollector) qualify(name string) string {
	if full, ok := c.imports[name]; ok {
		return full
	}
	return name
}

func (c *routeCollector) arg(args []ast.Vertex, i int) string {
	return c.astHelper.extractStringFromExpr(argExpr(args, i))
}

func (c *routeCollector) stringList(args []ast.Vertex) []string {
	var out []string
	for i := range args {
		expr := argExpr(args, i)
		if arr, ok := expr.(*ast.ExprArray); ok {
			out = append(out, c.astHelper.extractStringArrayFromExpr(arr)...)
			continue
		}
		if s := c.astHelper.extractStringFromExpr(expr); s != "" {
			out = append(out, s)
		}
	}
	return out
}

func argExpr(args []ast.Vertex, i int) ast.Vertex {
	if i >= len(args) {
		return nil
	}
	if arg, ok := args[i].(*ast.Argument); ok {
		return arg.Expr
	}
	return args[i]
}

// joinURI joins a group prefix and a route URI the way the router does
func joinURI(prefix, uri string) string {
	if prefix == "" {
		return uri
	}
	p := strings.Trim(prefix, "/")
	u := strings.Trim(uri, "/")
	switch {
	case p == "":
		return "/" + u
	case u == "":
		return "/" + p
	}
	return "/" + p + "/" + u
}
