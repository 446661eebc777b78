package laravel

import (
	"context"
	"os"
	"path/filepath"
	"strings"
)

var viewSuffixes = []string{".blade.php", ".php"}

// ViewAnalyzer maps template files under resources/views to dot names
type ViewAnalyzer struct{}

// NewViewAnalyzer creates a new view analyzer
func NewViewAnalyzer() *ViewAnalyzer {
	return &ViewAnalyzer{}
}

// Analyze walks viewsDir. A missing directory yields no views.
func (va *ViewAnalyzer) Analyze(ctx context.Context, viewsDir string) ([]View, error) {
	var views []View
	err := filepath.WalkDir(viewsDir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if d.IsDir() {
			return nil
		}
		if name, ok := ViewName(viewsDir, path); ok {
			views = append(views, View{Name: name, FilePath: path})
		}
		return nil
	})
	if os.IsNotExist(err) {
		return nil, nil
	}
	return views, err
}

// ViewName returns the dot name of a template relative to viewsDir
func ViewName(viewsDir, path string) (string, bool) {
	rel, err := filepath.Rel(viewsDir, path)
	if err != nil || strings.HasPrefix(rel, "..") {
		return "", false
	}
	rel = filepath.ToSlash(rel)
	for _, suffix := range viewSuffixes {
		if strings.HasSuffix(rel, suffix) {
			return strings.ReplaceAll(strings.TrimSuffix(rel, suffix), "/", "."), true
		}
	}
	return "", false
}
