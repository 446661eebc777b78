package laravel

import (
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/VKCOM/php-parser/pkg/ast"
	"github.com/VKCOM/php-parser/pkg/conf"
	"github.com/VKCOM/php-parser/pkg/errors"
	"github.com/VKCOM/php-parser/pkg/parser"
	"github.com/VKCOM/php-parser/pkg/version"
)

// parsePHPFile reads and parses a PHP file. Recoverable syntax errors are
// returned alongside the tree so callers can decide whether to keep going.
func parsePHPFile(path string, ver *version.Version) (*ast.Root, []*errors.Error, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, nil, err
	}
	return parsePHPSource(content, ver)
}

func parsePHPSource(content []byte, ver *version.Version) (*ast.Root, []*errors.Error, error) {
	if ver == nil {
		ver = &version.Version{Major: 8, Minor: 0}
	}

	var parserErrors []*errors.Error
	rootNode, err := parser.Parse(content, conf.Config{
		Version: ver,
		ErrorHandlerFunc: func(e *errors.Error) {
			parserErrors = append(parserErrors, e)
		},
	})
	if err != nil {
		return nil, parserErrors, err
	}

	root, ok := rootNode.(*ast.Root)
	if !ok {
		return nil, parserErrors, fmt.Errorf("unexpected root node %T", rootNode)
	}
	return root, parserErrors, nil
}

// ASTPropertyExtractor helps extract property values from PHP AST nodes
type ASTPropertyExtractor struct{}

// NewASTPropertyExtractor creates a new AST property extractor
func NewASTPropertyExtractor() *ASTPropertyExtractor {
	return &ASTPropertyExtractor{}
}

// findProperty returns the default value of a class property, or nil.
func (e *ASTPropertyExtractor) findProperty(classNode *ast.StmtClass, propertyName string) ast.Vertex {
	if classNode == nil {
		return nil
	}

	for _, stmt := range classNode.Stmts {
		propList, ok := stmt.(*ast.StmtPropertyList)
		if !ok {
			continue
		}
		for _, prop := range propList.Props {
			propNode, ok := prop.(*ast.StmtProperty)
			if !ok {
				continue
			}
			if variableName(propNode.Var) == propertyName {
				return propNode.Expr
			}
		}
	}
	return nil
}

// ExtractStringArrayFromClass extracts a string array property from a class node
// Example: protected $fillable = ['name', 'email'];
func (e *ASTPropertyExtractor) ExtractStringArrayFromClass(classNode *ast.StmtClass, propertyName string) []string {
	return e.extractStringArrayFromExpr(e.findProperty(classNode, propertyName))
}

// ExtractMapFromClass extracts an associative array (map) from a class property
// Example: protected $casts = ['is_admin' => 'boolean', 'age' => 'integer'];
func (e *ASTPropertyExtractor) ExtractMapFromClass(classNode *ast.StmtClass, propertyName string) map[string]string {
	return e.extractMapFromExpr(e.findProperty(classNode, propertyName))
}

// ExtractStringPropertyFromClass extracts a simple string property value
// Example: protected $table = 'users';
func (e *ASTPropertyExtractor) ExtractStringPropertyFromClass(classNode *ast.StmtClass, propertyName string) string {
	return e.extractStringFromExpr(e.findProperty(classNode, propertyName))
}

// ExtractReturnedMap extracts the array returned by a method, e.g. the
// casts() method introduced in Laravel 11.
func (e *ASTPropertyExtractor) ExtractReturnedMap(methodNode *ast.StmtClassMethod) map[string]string {
	if methodNode == nil {
		return nil
	}
	list, ok := methodNode.Stmt.(*ast.StmtStmtList)
	if !ok {
		return nil
	}
	for _, stmt := range list.Stmts {
		if ret, ok := stmt.(*ast.StmtReturn); ok {
			return e.extractMapFromExpr(ret.Expr)
		}
	}
	return nil
}

// extractStringArrayFromExpr extracts string array elements from an expression node
func (e *ASTPropertyExtractor) extractStringArrayFromExpr(expr ast.Vertex) []string {
	array, ok := expr.(*ast.ExprArray)
	if !ok {
		return nil
	}

	var result []string
	for _, item := range array.Items {
		if arrayItem, ok := item.(*ast.ExprArrayItem); ok {
			if strVal := e.extractStringFromExpr(arrayItem.Val); strVal != "" {
				result = append(result, strVal)
			}
		}
	}
	return result
}

// extractMapFromExpr extracts associative array (map) from an expression node
func (e *ASTPropertyExtractor) extractMapFromExpr(expr ast.Vertex) map[string]string {
	array, ok := expr.(*ast.ExprArray)
	if !ok {
		return nil
	}

	result := make(map[string]string)
	for _, item := range array.Items {
		if arrayItem, ok := item.(*ast.ExprArrayItem); ok {
			key := e.extractStringFromExpr(arrayItem.Key)
			val := e.extractStringFromExpr(arrayItem.Val)
			if key != "" && val != "" {
				result[key] = val
			}
		}
	}
	return result
}

// extractStringFromExpr extracts a string value from an expression node
func (e *ASTPropertyExtractor) extractStringFromExpr(expr ast.Vertex) string {
	if expr == nil {
		return ""
	}

	switch node := expr.(type) {
	case *ast.Argument:
		return e.extractStringFromExpr(node.Expr)

	case *ast.ScalarString:
		return unquotePHP(string(node.Value))

	case *ast.ScalarEncapsed:
		// Handle string interpolation - concatenate literal parts
		var result strings.Builder
		for _, part := range node.Parts {
			if strPart, ok := part.(*ast.ScalarEncapsedStringPart); ok {
				result.Write(strPart.Value)
			}
		}
		return result.String()

	case *ast.ScalarLnumber:
		return string(node.Value)

	case *ast.ScalarDnumber:
		return string(node.Value)

	case *ast.Identifier:
		return string(node.Value)

	case *ast.Name, *ast.NameFullyQualified, *ast.NameRelative:
		return nameOf(node)

	case *ast.ExprConstFetch:
		// true, false, null
		return e.extractStringFromExpr(node.Const)

	case *ast.ExprClassConstFetch:
		// Class::class
		if constName, ok := node.Const.(*ast.Identifier); ok && string(constName.Value) == "class" {
			return e.extractStringFromExpr(node.Class)
		}
	}

	return ""
}

// ExtractMethodCalls extracts method calls from a method body
// Example: return $this->hasMany(Post::class);
func (e *ASTPropertyExtractor) ExtractMethodCalls(methodNode *ast.StmtClassMethod) []MethodCall {
	var calls []MethodCall

	if methodNode == nil || methodNode.Stmt == nil {
		return calls
	}

	e.walkStmts(methodNode.Stmt, &calls)
	return calls
}

// MethodCall represents a method call found in code
type MethodCall struct {
	Object string   // Variable name without $ (this, query)
	Method string   // Method name (hasMany, belongsTo)
	Args   []string // String-valued arguments
}

// walkStmts recursively walks statements to find method calls
func (e *ASTPropertyExtractor) walkStmts(stmt ast.Vertex, calls *[]MethodCall) {
	switch node := stmt.(type) {
	case *ast.StmtStmtList:
		for _, s := range node.Stmts {
			e.walkStmts(s, calls)
		}
	case *ast.StmtReturn:
		e.walkExpr(node.Expr, calls)
	case *ast.StmtExpression:
		e.walkExpr(node.Expr, calls)
	}
}

// walkExpr walks a call chain from the outermost call inwards
func (e *ASTPropertyExtractor) walkExpr(expr ast.Vertex, calls *[]MethodCall) {
	node, ok := expr.(*ast.ExprMethodCall)
	if !ok {
		return
	}

	call := MethodCall{
		Object: variableName(node.Var),
		Method: identifier(node.Method),
	}
	for _, arg := range node.Args {
		// keep positions aligned; non-string arguments become ""
		call.Args = append(call.Args, e.extractStringFromExpr(arg))
	}
	if call.Method != "" {
		*calls = append(*calls, call)
	}

	e.walkExpr(node.Var, calls)
}

// nameOf renders a Name node; fully qualified names keep their leading backslash
func nameOf(node ast.Vertex) string {
	var parts []ast.Vertex
	prefix := ""
	switch n := node.(type) {
	case *ast.Name:
		parts = n.Parts
	case *ast.NameFullyQualified:
		parts = n.Parts
		prefix = `\`
	case *ast.NameRelative:
		parts = n.Parts
		prefix = `namespace\`
	case *ast.Identifier:
		return string(n.Value)
	default:
		return ""
	}

	names := make([]string, 0, len(parts))
	for _, part := range parts {
		if namePart, ok := part.(*ast.NamePart); ok {
			names = append(names, string(namePart.Value))
		}
	}
	return prefix + strings.Join(names, `\`)
}

func identifier(node ast.Vertex) string {
	if ident, ok := node.(*ast.Identifier); ok {
		return string(ident.Value)
	}
	return ""
}

// variableName returns the name of a simple variable without the $ sigil
func variableName(node ast.Vertex) string {
	varNode, ok := node.(*ast.ExprVariable)
	if !ok {
		return ""
	}
	return strings.TrimPrefix(identifier(varNode.Name), "$")
}

func unquotePHP(s string) string {
	if len(s) >= 2 && (s[0] == '\'' || s[0] == '"') && s[len(s)-1] == s[0] {
		return s[1 : len(s)-1]
	}
	return s
}

func startLine(n ast.Vertex) int {
	if n == nil {
		return 0
	}
	if pos := n.GetPosition(); pos != nil {
		return pos.StartLine
	}
	return 0
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
