package completion

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/doITmagic/laravel-callctx/internal/callctx"
	"github.com/doITmagic/laravel-callctx/internal/laravel"
)

var shopFacts = &laravel.ProjectFacts{
	Root: "/srv/shop",
	Routes: []laravel.Route{
		{Method: "GET", URI: "/", Name: "home", Controller: "Closure"},
		{Method: "GET", URI: "/users", Name: "users.index", Controller: `App\Http\Controllers\UserController`, Action: "index"},
		{Method: "GET", URI: "/users/{user}", Name: "users.show", Controller: `App\Http\Controllers\UserController`, Action: "show"},
		{Method: "GET", URI: "/posts/{post}/comments/{comment?}", Name: "comments.show"},
		{Method: "POST", URI: "/logout"},
	},
	Models: []laravel.EloquentModel{
		{
			ClassName:  "User",
			Namespace:  `App\Models`,
			FullName:   `App\Models\User`,
			PrimaryKey: "id",
			Fillable:   []string{"name", "email"},
			Casts:      map[string]string{"is_admin": "boolean"},
			Relations: []laravel.EloquentRelation{
				{Name: "posts", Type: "hasMany", RelatedModel: `App\Models\Post`},
				{Name: "team", Type: "belongsTo", RelatedModel: `App\Models\Team`},
			},
		},
		{
			ClassName:  "Post",
			Namespace:  `App\Models`,
			FullName:   `App\Models\Post`,
			PrimaryKey: "id",
			Fillable:   []string{"title", "body"},
			Relations: []laravel.EloquentRelation{
				{Name: "comments", Type: "hasMany", RelatedModel: `App\Models\Comment`},
			},
		},
		{
			ClassName:  "Comment",
			Namespace:  `App\Models`,
			FullName:   `App\Models\Comment`,
			PrimaryKey: "id",
			Guarded:    []string{"id"},
			Casts:      map[string]string{"approved": "boolean"},
		},
	},
	ConfigKeys: []laravel.ConfigKey{
		{Key: "app", IsArray: true, FilePath: "/srv/shop/config/app.php", Line: 2},
		{Key: "app.name", Value: "Shop", FilePath: "/srv/shop/config/app.php", Line: 3},
		{Key: "app.debug", Value: "false", FilePath: "/srv/shop/config/app.php", Line: 4},
		{Key: "mail.from.address", Value: "env(MAIL_FROM_ADDRESS)", FilePath: "/srv/shop/config/mail.php", Line: 7},
	},
	Views: []laravel.View{
		{Name: "welcome", FilePath: "/srv/shop/resources/views/welcome.blade.php"},
		{Name: "layouts.app", FilePath: "/srv/shop/resources/views/layouts/app.blade.php"},
		{Name: "users.show", FilePath: "/srv/shop/resources/views/users/show.blade.php"},
	},
	Translations: []laravel.Translation{
		{Key: "auth.failed", Locale: "ro", Value: "Date incorecte."},
		{Key: "auth.failed", Locale: "en", Value: "These credentials do not match our records."},
		{Key: "Welcome back", Locale: "ro", Value: "Bine ai revenit"},
	},
}

func newTestEngine(opts Options) *Engine {
	return New(FromProject(shopFacts), opts, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func labels(items []Item) []string {
	out := make([]string, 0, len(items))
	for _, it := range items {
		out = append(out, it.Label)
	}
	return out
}

func complete(t *testing.T, e *Engine, source string) []Item {
	t.Helper()
	cc := callctx.Parse(source)
	require.NotNil(t, cc, "no call context for %q", source)
	return e.Complete(context.Background(), cc, Typed(cc))
}

func TestEngine_Complete(t *testing.T) {
	tests := []struct {
		name   string
		source string
		want   []string
	}{
		{"config prefix", "config('app.", []string{"app.debug", "app.name"}},
		{"config case-insensitive", "config('APP.N", []string{"app.name"}},
		{"config facade", "Config::get('ma", []string{"mail.from.address"}},
		{"config array key", "config(['app.d", []string{"app.debug"}},
		{"route helper", "route('users.", []string{"users.index", "users.show"}},
		{"redirect route", "return redirect()->route('", []string{"comments.show", "home", "users.index", "users.show"}},
		{"to_route", "to_route('h", []string{"home"}},
		{"route parameters", "route('comments.show', ['", []string{"post", "comment"}},
		{"route parameters of unknown route", "route('nope', ['", nil},
		{"view helper", "view('layouts.", []string{"layouts.app"}},
		{"route view", "Route::view('/welcome', 'w", []string{"welcome"}},
		{"translation", "__('auth.", []string{"auth.failed"}},
		{"translation json key", "trans('Wel", []string{"Welcome back"}},
		{"eloquent where", "User::where('", []string{"id", "name", "email", "is_admin"}},
		{"eloquent where prefix", "User::where('na", []string{"name"}},
		{"eloquent orderBy on chain", "User::query()->where('a', 1)->orderBy('", []string{"id", "name", "email", "is_admin"}},
		{"eloquent with", "User::with('", []string{"posts", "team"}},
		{"eloquent with list", "User::with(['posts', '", []string{"posts", "team"}},
		{"eloquent create skips written keys", "User::create(['name' => 'x', '", []string{"email"}},
		{"eloquent fill on variable", "$user = new User;\n$user->fill(['", []string{"name", "email"}},
		{"eloquent guarded fallback", "Comment::create(['", []string{"approved"}},
		{"eloquent where array", "User::where(['em", []string{"email"}},
		{"resolved model", "use App\\Models\\Post;\nPost::orderBy('", []string{"id", "title", "body"}},
		{"whereHas closure", "use App\\Models\\User;\nUser::whereHas('posts', function ($query) {\n    $query->where('", []string{"id", "title", "body"}},
		{"with closure", "User::with(['posts' => fn ($q) => $q->orderBy('", []string{"id", "title", "body"}},
		{"nested relation closure", "User::whereHas('posts.comments', fn ($q) => $q->where('", []string{"id", "approved"}},
		{"grouping closure", "User::where(function ($q) {\n    $q->orWhere('", []string{"id", "name", "email", "is_admin"}},
		{"whereRelation column", "User::whereRelation('posts', '", []string{"id", "title", "body"}},
		{"unknown model", "Invoice::where('", nil},
		{"unrelated function", "strlen('", nil},
		{"value position", "User::where('name', '", nil},
	}

	e := newTestEngine(Options{})
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := complete(t, e, tt.source)
			if tt.want == nil {
				assert.Empty(t, got)
				return
			}
			assert.Equal(t, tt.want, labels(got))
		})
	}
}

func TestEngine_ItemDetails(t *testing.T) {
	e := newTestEngine(Options{})

	items := complete(t, e, "config('app")
	require.Len(t, items, 3)
	assert.Equal(t, Item{Label: "app", Kind: KindConfig, Detail: "array", Documentation: "app.php:2"}, items[0])

	items = complete(t, e, "route('users.show")
	require.Len(t, items, 1)
	assert.Equal(t, "GET /users/{user}", items[0].Detail)
	assert.Equal(t, `App\Http\Controllers\UserController@show`, items[0].Documentation)

	items = complete(t, e, "__('auth.failed")
	require.Len(t, items, 1)
	assert.Equal(t, "These credentials do not match our records.", items[0].Detail)
	assert.Equal(t, "en: These credentials do not match our records.\nro: Date incorecte.", items[0].Documentation)

	items = complete(t, e, "User::where('is")
	require.Len(t, items, 1)
	assert.Equal(t, Item{Label: "is_admin", Kind: KindColumn, Detail: "boolean", Documentation: `App\Models\User`}, items[0])

	items = complete(t, e, "User::with('po")
	require.Len(t, items, 1)
	assert.Equal(t, KindRelation, items[0].Kind)
	assert.Equal(t, `hasMany App\Models\Post`, items[0].Detail)
}

func TestEngine_TranslationLocale(t *testing.T) {
	e := newTestEngine(Options{Locale: "ro"})
	items := complete(t, e, "__('auth.failed")
	require.Len(t, items, 1)
	assert.Equal(t, "Date incorecte.", items[0].Detail)
}

func TestEngine_Limit(t *testing.T) {
	e := newTestEngine(Options{Limit: 2})
	items := complete(t, e, "route('")
	assert.Equal(t, []string{"comments.show", "home"}, labels(items))
}

func TestEngine_Hover(t *testing.T) {
	e := newTestEngine(Options{})

	cc := callctx.Parse("config('app.name")
	require.NotNil(t, cc)
	item, ok := e.Hover(context.Background(), cc, "app.name")
	require.True(t, ok)
	assert.Equal(t, "Shop", item.Detail)

	_, ok = e.Hover(context.Background(), cc, "app.missing")
	assert.False(t, ok)
	_, ok = e.Hover(context.Background(), cc, "")
	assert.False(t, ok)
	_, ok = e.Hover(context.Background(), nil, "app.name")
	assert.False(t, ok)
}

func TestEngine_Provider(t *testing.T) {
	e := newTestEngine(Options{})
	tests := map[string]string{
		"config('":             "config",
		"Config::has('":        "config",
		"URL::route('":         "route",
		"View::exists('":       "view",
		"Lang::get('":          "translation",
		"Post::whereIn('":      "eloquent",
		"$this->markdown('":    "view",
		"request()->routeIs('": "route",
	}
	for source, want := range tests {
		cc := callctx.Parse(source)
		require.NotNil(t, cc, source)
		p := e.Provider(cc)
		require.NotNil(t, p, source)
		assert.Equal(t, want, p.Name(), source)
	}
	assert.Nil(t, e.Provider(nil))
	assert.Nil(t, e.Provider(callctx.Parse("config('app.name', '")))
}

type failingFacts struct{ Facts }

func (failingFacts) ConfigKeys(context.Context) ([]laravel.ConfigKey, error) {
	return nil, errors.New("disk on fire")
}

func TestEngine_FactsErrorYieldsNothing(t *testing.T) {
	e := New(failingFacts{FromProject(shopFacts)}, Options{}, slog.New(slog.NewTextHandler(io.Discard, nil)))
	cc := callctx.Parse("config('")
	require.NotNil(t, cc)
	assert.Empty(t, e.Complete(context.Background(), cc, ""))

	// other domains are unaffected
	cc = callctx.Parse("view('")
	require.NotNil(t, cc)
	assert.Len(t, e.Complete(context.Background(), cc, ""), 3)
}

type staticProvider struct{}

func (staticProvider) Name() string { return "static" }
func (staticProvider) Match(cc *callctx.CallContext) bool { return cc.Function() == "asset" }
func (staticProvider) Items(context.Context, *callctx.CallContext, Facts) ([]Item, error) {
	return []Item{{Label: "css/app.css"}, {Label: "js/app.js"}}, nil
}

func TestEngine_Register(t *testing.T) {
	e := newTestEngine(Options{})
	e.Register(staticProvider{})
	assert.Equal(t, []string{"js/app.js"}, labels(complete(t, e, "asset('js")))
}

func TestTyped(t *testing.T) {
	tests := map[string]string{
		"config('app.na":           "app.na",
		"config(":                  "",
		"User::create(['na":        "na",
		"User::create(['name' => ": "",
		"foo($bar":                 "",
	}
	for source, want := range tests {
		cc := callctx.Parse(source)
		require.NotNil(t, cc, source)
		assert.Equal(t, want, Typed(cc), source)
	}
	assert.Equal(t, "", Typed(nil))
}

func TestRouteParameters(t *testing.T) {
	assert.Equal(t, []string{"post", "comment"}, RouteParameters("/posts/{post}/comments/{comment?}"))
	assert.Equal(t, []string{"user"}, RouteParameters("/users/{user:slug}"))
	assert.Empty(t, RouteParameters("/about"))
}
