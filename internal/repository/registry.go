package repository

import (
	"context"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"github.com/doITmagic/laravel-callctx/internal/laravel"
)

// domain is the type-erased view of a Repository the Registry iterates over
type domain interface {
	Name() string
	Loaded() bool
	Load(ctx context.Context) error
	Invalidate()
	save(s *Store, root string) error
	restore(s *Store, root string) (bool, error)
	count() int
}

func (r *Repository[T]) save(s *Store, root string) error {
	if !r.Loaded() {
		return nil
	}
	return s.Save(root, r.name, itemSet[T]{Items: r.Items()})
}

func (r *Repository[T]) restore(s *Store, root string) (bool, error) {
	var set itemSet[T]
	ok, err := s.LoadInto(root, r.name, &set)
	if ok {
		r.Restore(set.Items)
	}
	return ok, err
}

// itemSet wraps items so empty sets encode cleanly
type itemSet[T any] struct {
	Items []T
}

func (r *Repository[T]) count() int { return len(r.Items()) }

// Registry bundles the repositories of one Laravel project.
type Registry struct {
	Root         string
	Routes       *Repository[laravel.Route]
	Models       *Repository[laravel.EloquentModel]
	Config       *Repository[laravel.ConfigKey]
	Views        *Repository[laravel.View]
	Translations *Repository[laravel.Translation]

	store  *Store
	logger *slog.Logger
}

// NewRegistry wires repositories for root to the analyzer. store may be nil.
func NewRegistry(root string, analyzer *laravel.Analyzer, opts Options, store *Store, logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "registry", "root", root)

	return &Registry{
		Root: root,
		Routes: New(string(laravel.DomainRoutes), func(ctx context.Context) ([]laravel.Route, error) {
			return analyzer.Routes(ctx, root)
		}, opts, logger),
		Models: New(string(laravel.DomainModels), func(ctx context.Context) ([]laravel.EloquentModel, error) {
			return analyzer.Models(ctx, root)
		}, opts, logger),
		Config: New(string(laravel.DomainConfig), func(ctx context.Context) ([]laravel.ConfigKey, error) {
			return analyzer.ConfigKeys(ctx, root)
		}, opts, logger),
		Views: New(string(laravel.DomainViews), func(ctx context.Context) ([]laravel.View, error) {
			return analyzer.Views(ctx, root)
		}, opts, logger),
		Translations: New(string(laravel.DomainTranslations), func(ctx context.Context) ([]laravel.Translation, error) {
			return analyzer.Translations(ctx, root)
		}, opts, logger),
		store:  store,
		logger: logger,
	}
}

func (r *Registry) domains() []domain {
	return []domain{r.Routes, r.Models, r.Config, r.Views, r.Translations}
}

// LoadAll loads every repository in parallel and saves a snapshot when a
// store is configured.
func (r *Registry) LoadAll(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)
	for _, d := range r.domains() {
		g.Go(func() error {
			return d.Load(gctx)
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	return r.Save()
}

// Save writes a snapshot of every loaded repository.
func (r *Registry) Save() error {
	if r.store == nil {
		return nil
	}
	for _, d := range r.domains() {
		if err := d.save(r.store, r.Root); err != nil {
			return err
		}
	}
	return nil
}

// Restore installs snapshots from the store and returns how many domains
// were restored.
func (r *Registry) Restore() (int, error) {
	if r.store == nil {
		return 0, nil
	}
	restored := 0
	for _, d := range r.domains() {
		ok, err := d.restore(r.store, r.Root)
		if err != nil {
			r.logger.Warn("Snapshot restore failed", "domain", d.Name(), "error", err)
			continue
		}
		if ok {
			restored++
		}
	}
	return restored, nil
}

// InvalidatePath marks the repositories fed by path stale and returns the
// affected domains.
func (r *Registry) InvalidatePath(path string) []laravel.Domain {
	affected := laravel.DomainsForPath(r.Root, path)
	for _, name := range affected {
		for _, d := range r.domains() {
			if d.Name() == string(name) {
				d.Invalidate()
			}
		}
	}
	if len(affected) > 0 {
		r.logger.Debug("Invalidated repositories", "path", path, "domains", affected)
	}
	return affected
}

// InvalidateAll marks every repository stale.
func (r *Registry) InvalidateAll() {
	for _, d := range r.domains() {
		d.Invalidate()
	}
}

// Counts returns the item count per loaded domain.
func (r *Registry) Counts() map[string]int {
	counts := make(map[string]int)
	for _, d := range r.domains() {
		if d.Loaded() {
			counts[d.Name()] = d.count()
		}
	}
	return counts
}
