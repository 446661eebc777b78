package completion

import (
	"context"

	"github.com/doITmagic/laravel-callctx/internal/laravel"
	"github.com/doITmagic/laravel-callctx/internal/repository"
)

// Facts is the project knowledge providers draw on
type Facts interface {
	Routes(ctx context.Context) ([]laravel.Route, error)
	Models(ctx context.Context) ([]laravel.EloquentModel, error)
	ConfigKeys(ctx context.Context) ([]laravel.ConfigKey, error)
	Views(ctx context.Context) ([]laravel.View, error)
	Translations(ctx context.Context) ([]laravel.Translation, error)
}

// FromRegistry serves facts from a project's repositories, loading each
// domain on first use
func FromRegistry(reg *repository.Registry) Facts {
	return registryFacts{reg: reg}
}

type registryFacts struct {
	reg *repository.Registry
}

func whenLoaded[T any](ctx context.Context, r *repository.Repository[T]) ([]T, error) {
	var items []T
	err := r.WhenLoaded(ctx, func(v []T) { items = v })
	return items, err
}

func (f registryFacts) Routes(ctx context.Context) ([]laravel.Route, error) {
	return whenLoaded(ctx, f.reg.Routes)
}

func (f registryFacts) Models(ctx context.Context) ([]laravel.EloquentModel, error) {
	return whenLoaded(ctx, f.reg.Models)
}

func (f registryFacts) ConfigKeys(ctx context.Context) ([]laravel.ConfigKey, error) {
	return whenLoaded(ctx, f.reg.Config)
}

func (f registryFacts) Views(ctx context.Context) ([]laravel.View, error) {
	return whenLoaded(ctx, f.reg.Views)
}

func (f registryFacts) Translations(ctx context.Context) ([]laravel.Translation, error) {
	return whenLoaded(ctx, f.reg.Translations)
}

// FromProject serves facts from an already analyzed project
func FromProject(p *laravel.ProjectFacts) Facts {
	return projectFacts{p: p}
}

type projectFacts struct {
	p *laravel.ProjectFacts
}

func (f projectFacts) Routes(context.Context) ([]laravel.Route, error) { return f.p.Routes, nil }

func (f projectFacts) Models(context.Context) ([]laravel.EloquentModel, error) {
	return f.p.Models, nil
}

func (f projectFacts) ConfigKeys(context.Context) ([]laravel.ConfigKey, error) {
	return f.p.ConfigKeys, nil
}

func (f projectFacts) Views(context.Context) ([]laravel.View, error) { return f.p.Views, nil }

func (f projectFacts) Translations(context.Context) ([]laravel.Translation, error) {
	return f.p.Translations, nil
}
