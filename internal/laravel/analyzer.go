package laravel

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/VKCOM/php-parser/pkg/version"
)

// Analyzer is the main Laravel project analyzer that coordinates the
// per-domain analyzers and knows the framework's directory conventions.
type Analyzer struct {
	eloquentAnalyzer    *EloquentAnalyzer
	routeAnalyzer       *RouteAnalyzer
	configAnalyzer      *ConfigAnalyzer
	viewAnalyzer        *ViewAnalyzer
	translationAnalyzer *TranslationAnalyzer
}

// NewAnalyzer creates a new Laravel project analyzer. A nil version means PHP 8.0.
func NewAnalyzer(logger *slog.Logger, ver *version.Version) *Analyzer {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "laravel")
	return &Analyzer{
		eloquentAnalyzer:    NewEloquentAnalyzer(logger, ver),
		routeAnalyzer:       NewRouteAnalyzer(logger, ver),
		configAnalyzer:      NewConfigAnalyzer(logger, ver),
		viewAnalyzer:        NewViewAnalyzer(),
		translationAnalyzer: NewTranslationAnalyzer(logger, ver),
	}
}

// Routes extracts routes from routes/*.php
func (a *Analyzer) Routes(ctx context.Context, root string) ([]Route, error) {
	files, err := phpFiles(filepath.Join(root, "routes"), true)
	if err != nil {
		return nil, err
	}
	return a.routeAnalyzer.Analyze(ctx, files)
}

// Models extracts Eloquent models from app/Models, or app/ for projects
// that predate the Models directory.
func (a *Analyzer) Models(ctx context.Context, root string) ([]EloquentModel, error) {
	dir := filepath.Join(root, "app", "Models")
	recursive := true
	if _, err := os.Stat(dir); os.IsNotExist(err) {
		dir = filepath.Join(root, "app")
		recursive = false
	}
	files, err := phpFiles(dir, recursive)
	if err != nil {
		return nil, err
	}
	return a.eloquentAnalyzer.AnalyzeModels(ctx, files)
}

// ConfigKeys extracts dot keys from config/*.php
func (a *Analyzer) ConfigKeys(ctx context.Context, root string) ([]ConfigKey, error) {
	files, err := phpFiles(filepath.Join(root, "config"), false)
	if err != nil {
		return nil, err
	}
	return a.configAnalyzer.Analyze(ctx, files)
}

// Views lists templates under resources/views
func (a *Analyzer) Views(ctx context.Context, root string) ([]View, error) {
	return a.viewAnalyzer.Analyze(ctx, filepath.Join(root, "resources", "views"))
}

// Translations reads lang/ (Laravel 9+) and falls back to resources/lang
func (a *Analyzer) Translations(ctx context.Context, root string) ([]Translation, error) {
	dir := filepath.Join(root, "lang")
	if _, err := os.Stat(dir); os.IsNotExist(err) {
		dir = filepath.Join(root, "resources", "lang")
	}
	return a.translationAnalyzer.Analyze(ctx, dir)
}

// AnalyzeProject runs every analyzer and returns the combined facts
func (a *Analyzer) AnalyzeProject(ctx context.Context, root string) (*ProjectFacts, error) {
	facts := &ProjectFacts{Root: root}
	var err error
	if facts.Routes, err = a.Routes(ctx, root); err != nil {
		return nil, err
	}
	if facts.Models, err = a.Models(ctx, root); err != nil {
		return nil, err
	}
	if facts.ConfigKeys, err = a.ConfigKeys(ctx, root); err != nil {
		return nil, err
	}
	if facts.Views, err = a.Views(ctx, root); err != nil {
		return nil, err
	}
	if facts.Translations, err = a.Translations(ctx, root); err != nil {
		return nil, err
	}
	return facts, nil
}

// Domain names the kind of fact a project file contributes to
type Domain string

const (
	DomainRoutes       Domain = "routes"
	DomainModels       Domain = "models"
	DomainConfig       Domain = "config"
	DomainViews        Domain = "views"
	DomainTranslations Domain = "translations"
)

// DomainsForPath reports which fact domains a changed file affects
func DomainsForPath(root, path string) []Domain {
	rel, err := filepath.Rel(root, path)
	if err != nil || strings.HasPrefix(rel, "..") {
		return nil
	}
	rel = filepath.ToSlash(rel)

	switch {
	case strings.HasPrefix(rel, "routes/"):
		return []Domain{DomainRoutes}
	case strings.HasPrefix(rel, "app/"):
		return []Domain{DomainModels}
	case strings.HasPrefix(rel, "config/"):
		return []Domain{DomainConfig}
	case strings.HasPrefix(rel, "resources/views/"):
		return []Domain{DomainViews}
	case strings.HasPrefix(rel, "lang/"), strings.HasPrefix(rel, "resources/lang/"):
		return []Domain{DomainTranslations}
	}
	return nil
}

// phpFiles lists .php files in dir in lexical order. A missing dir is empty.
func phpFiles(dir string, recursive bool) ([]string, error) {
	var files []string
	err := filepath.WalkDir(dir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if path != dir && !recursive {
				return filepath.SkipDir
			}
			return nil
		}
		if strings.HasSuffix(path, ".php") {
			files = append(files, path)
		}
		return nil
	})
	if os.IsNotExist(err) {
		return nil, nil
	}
	sort.Strings(files)
	return files, err
}
