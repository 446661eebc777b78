package laravel

import (
	"context"
	"log/slog"
	"path/filepath"
	"strings"

	"github.com/VKCOM/php-parser/pkg/ast"
	"github.com/VKCOM/php-parser/pkg/version"
)

// ConfigAnalyzer flattens config/*.php return arrays into dot keys
type ConfigAnalyzer struct {
	astHelper *ASTPropertyExtractor
	version   *version.Version
	logger    *slog.Logger
}

// NewConfigAnalyzer creates a new config analyzer
func NewConfigAnalyzer(logger *slog.Logger, ver *version.Version) *ConfigAnalyzer {
	if logger == nil {
		logger = slog.Default()
	}
	return &ConfigAnalyzer{astHelper: NewASTPropertyExtractor(), version: ver, logger: logger}
}

// Analyze returns every key of every file. The file name is the first segment.
func (ca *ConfigAnalyzer) Analyze(ctx context.Context, filePaths []string) ([]ConfigKey, error) {
	var keys []ConfigKey
	for _, path := range filePaths {
		if err := ctx.Err(); err != nil {
			return keys, err
		}
		root, _, err := parsePHPFile(path, ca.version)
		if err != nil {
			ca.logger.Warn("Error analyzing config file", "path", path, "error", err)
			continue
		}
		prefix := strings.TrimSuffix(filepath.Base(path), ".php")
		arr := returnedArray(root)
		if arr == nil {
			continue
		}
		keys = append(keys, ConfigKey{Key: prefix, IsArray: true, FilePath: path, Line: startLine(arr)})
		keys = append(keys, ca.flatten(arr, prefix, path)...)
	}
	return keys, nil
}

func (ca *ConfigAnalyzer) flatten(arr *ast.ExprArray, prefix, path string) []ConfigKey {
	var keys []ConfigKey
	walkArray(ca.astHelper, arr, prefix, func(key string, val ast.Vertex) bool {
		k := ConfigKey{Key: key, FilePath: path, Line: startLine(val)}
		if _, nested := val.(*ast.ExprArray); nested {
			k.IsArray = true
		} else {
			k.Value = ca.valueText(val)
		}
		keys = append(keys, k)
		return true
	})
	return keys
}

// valueText renders scalars; env('KEY', default) becomes its default when
// there is one, otherwise env(KEY).
func (ca *ConfigAnalyzer) valueText(val ast.Vertex) string {
	if call, ok := val.(*ast.ExprFunctionCall); ok {
		fn := nameOf(call.Function)
		if fn == "env" {
			if def := ca.astHelper.extractStringFromExpr(argExpr(call.Args, 1)); def != "" {
				return def
			}
			return "env(" + ca.astHelper.extractStringFromExpr(argExpr(call.Args, 0)) + ")"
		}
		return fn + "()"
	}
	return ca.astHelper.extractStringFromExpr(val)
}

// returnedArray finds the top-level `return [...]` of a file
func returnedArray(root *ast.Root) *ast.ExprArray {
	for _, stmt := range root.Stmts {
		if ret, ok := stmt.(*ast.StmtReturn); ok {
			arr, _ := ret.Expr.(*ast.ExprArray)
			return arr
		}
	}
	return nil
}

// walkArray visits string-keyed items depth first. Lists (items without keys)
// are not descended into. fn returning false stops descent below that key.
func walkArray(h *ASTPropertyExtractor, arr *ast.ExprArray, prefix string, fn func(key string, val ast.Vertex) bool) {
	for _, item := range arr.Items {
		it, ok := item.(*ast.ExprArrayItem)
		if !ok || it.Key == nil || it.Val == nil {
			continue
		}
		k := h.extractStringFromExpr(it.Key)
		if k == "" {
			continue
		}
		key := k
		if prefix != "" {
			key = prefix + "." + k
		}
		if !fn(key, it.Val) {
			continue
		}
		if nested, ok := it.Val.(*ast.ExprArray); ok {
			walkArray(h, nested, key, fn)
		}
	}
}
