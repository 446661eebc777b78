package repository

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/doITmagic/laravel-callctx/internal/laravel"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := OpenStore(filepath.Join(t.TempDir(), "nested", "facts.db"), time.Second, quietLogger())
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestStore_SaveAndLoad(t *testing.T) {
	s := openTestStore(t)

	routes := itemSet[laravel.Route]{Items: []laravel.Route{
		{Method: "GET", URI: "/", Name: "home", Controller: "Closure", Line: 3},
		{Method: "POST", URI: "/users", Middleware: []string{"auth"}},
	}}
	require.NoError(t, s.Save("/srv/app", "routes", routes))

	var got itemSet[laravel.Route]
	ok, err := s.LoadInto("/srv/app", "routes", &got)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, routes, got)

	ok, err = s.LoadInto("/srv/other", "routes", &got)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestStore_MapsSurvive(t *testing.T) {
	s := openTestStore(t)
	models := itemSet[laravel.EloquentModel]{Items: []laravel.EloquentModel{
		{ClassName: "User", Casts: map[string]string{"is_admin": "boolean"}},
	}}
	require.NoError(t, s.Save("/p", "models", models))

	var got itemSet[laravel.EloquentModel]
	ok, err := s.LoadInto("/p", "models", &got)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "boolean", got.Items[0].Casts["is_admin"])
}

func TestStore_Delete(t *testing.T) {
	s := openTestStore(t)
	for _, d := range []string{"routes", "views"} {
		require.NoError(t, s.Save("/p", d, itemSet[string]{Items: []string{d}}))
	}
	require.NoError(t, s.Save("/q", "views", itemSet[string]{Items: []string{"kept"}}))

	require.NoError(t, s.Delete("/p"))

	var got itemSet[string]
	ok, err := s.LoadInto("/p", "views", &got)
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = s.LoadInto("/q", "views", &got)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, []string{"kept"}, got.Items)
}

func TestStore_Closed(t *testing.T) {
	s := openTestStore(t)
	require.NoError(t, s.Close())
	assert.ErrorIs(t, s.Save("/p", "views", itemSet[string]{}), ErrStoreClosed)
	assert.Empty(t, s.Path())
	assert.NoError(t, s.Close())
}
