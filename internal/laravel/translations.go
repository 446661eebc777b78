package laravel

import (
	"context"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/VKCOM/php-parser/pkg/ast"
	"github.com/VKCOM/php-parser/pkg/version"
)

// TranslationAnalyzer reads lang/<locale>/*.php and lang/<locale>.json files
type TranslationAnalyzer struct {
	astHelper *ASTPropertyExtractor
	version   *version.Version
	logger    *slog.Logger
}

// NewTranslationAnalyzer creates a new translation analyzer
func NewTranslationAnalyzer(logger *slog.Logger, ver *version.Version) *TranslationAnalyzer {
	if logger == nil {
		logger = slog.Default()
	}
	return &TranslationAnalyzer{astHelper: NewASTPropertyExtractor(), version: ver, logger: logger}
}

// Analyze walks a lang directory
func (ta *TranslationAnalyzer) Analyze(ctx context.Context, langDir string) ([]Translation, error) {
	var out []Translation
	err := filepath.WalkDir(langDir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if d.IsDir() {
			if d.Name() == "vendor" {
				return filepath.SkipDir
			}
			return nil
		}

		rel, _ := filepath.Rel(langDir, path)
		parts := strings.Split(filepath.ToSlash(rel), "/")
		switch {
		case len(parts) == 1 && strings.HasSuffix(parts[0], ".json"):
			out = append(out, ta.jsonFile(path, strings.TrimSuffix(parts[0], ".json"))...)
		case len(parts) >= 2 && strings.HasSuffix(path, ".php"):
			group := strings.TrimSuffix(strings.Join(parts[1:], "/"), ".php")
			out = append(out, ta.phpFile(path, parts[0], group)...)
		}
		return nil
	})
	if os.IsNotExist(err) {
		return nil, nil
	}
	return out, err
}

func (ta *TranslationAnalyzer) phpFile(path, locale, group string) []Translation {
	root, _, err := parsePHPFile(path, ta.version)
	if err != nil {
		ta.logger.Warn("Error analyzing translation file", "path", path, "error", err)
		return nil
	}
	arr := returnedArray(root)
	if arr == nil {
		return nil
	}

	var out []Translation
	walkArray(ta.astHelper, arr, group, func(key string, val ast.Vertex) bool {
		if _, nested := val.(*ast.ExprArray); nested {
			return true
		}
		out = append(out, Translation{
			Key:      key,
			Locale:   locale,
			Value:    ta.astHelper.extractStringFromExpr(val),
			FilePath: path,
		})
		return true
	})
	return out
}

func (ta *TranslationAnalyzer) jsonFile(path, locale string) []Translation {
	data, err := os.ReadFile(path)
	if err != nil {
		ta.logger.Warn("Error reading translation file", "path", path, "error", err)
		return nil
	}
	var entries map[string]string
	if err := json.Unmarshal(data, &entries); err != nil {
		ta.logger.Warn("Error decoding translation file", "path", path, "error", err)
		return nil
	}

	out := make([]Translation, 0, len(entries))
	for _, k := range sortedKeys(entries) {
		out = append(out, Translation{Key: k, Locale: locale, Value: entries[k], FilePath: path})
	}
	return out
}
