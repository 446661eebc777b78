package laravel

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const appConfig = `<?php
return [
    'name' => env('APP_NAME', 'Laravel'),
    'key' => env('APP_KEY'),
    'locale' => 'en',
    'providers' => ['A', 'B'],
    'nested' => ['deep' => ['key' => 1]],
];
`

const authLang = `<?php
return [
    'failed' => 'These credentials do not match our records.',
    'password' => ['reset' => 'Your password has been reset.'],
];
`

func sampleProject(t *testing.T) string {
	return writeProject(t, map[string]string{
		"artisan":                               "#!/usr/bin/env php\n",
		"routes/web.php":                        webRoutes,
		"app/Models/User.php":                   userModel,
		"config/app.php":                        appConfig,
		"resources/views/welcome.blade.php":     "<h1>hi</h1>",
		"resources/views/layouts/app.blade.php": "@yield('content')",
		"resources/views/emails/plain.php":      "<?php echo 1;",
		"resources/views/README.md":             "not a view",
		"lang/en/auth.php":                      authLang,
		"lang/fr.json":                          `{"Hello": "Bonjour", "Bye": "Au revoir"}`,
	})
}

func keysOf(keys []ConfigKey) map[string]ConfigKey {
	out := make(map[string]ConfigKey, len(keys))
	for _, k := range keys {
		out[k.Key] = k
	}
	return out
}

func TestAnalyzer_ConfigKeys(t *testing.T) {
	root := sampleProject(t)
	keys, err := NewAnalyzer(nil, nil).ConfigKeys(context.Background(), root)
	require.NoError(t, err)

	byKey := keysOf(keys)
	assert.True(t, byKey["app"].IsArray)
	assert.Equal(t, "Laravel", byKey["app.name"].Value)
	assert.Equal(t, "env(APP_KEY)", byKey["app.key"].Value)
	assert.Equal(t, "en", byKey["app.locale"].Value)
	assert.True(t, byKey["app.providers"].IsArray)
	assert.True(t, byKey["app.nested.deep"].IsArray)
	assert.Equal(t, "1", byKey["app.nested.deep.key"].Value)
	assert.Equal(t, 3, byKey["app.name"].Line)
	assert.NotContains(t, byKey, "app.providers.0")
}

func TestAnalyzer_Views(t *testing.T) {
	root := sampleProject(t)
	views, err := NewAnalyzer(nil, nil).Views(context.Background(), root)
	require.NoError(t, err)

	var names []string
	for _, v := range views {
		names = append(names, v.Name)
	}
	assert.ElementsMatch(t, []string{"welcome", "layouts.app", "emails.plain"}, names)
}

func TestViewName(t *testing.T) {
	dir := filepath.FromSlash("/p/resources/views")
	name, ok := ViewName(dir, filepath.FromSlash("/p/resources/views/admin/users/index.blade.php"))
	assert.True(t, ok)
	assert.Equal(t, "admin.users.index", name)

	_, ok = ViewName(dir, filepath.FromSlash("/p/app/Models/User.php"))
	assert.False(t, ok)
}

func TestAnalyzer_Translations(t *testing.T) {
	root := sampleProject(t)
	translations, err := NewAnalyzer(nil, nil).Translations(context.Background(), root)
	require.NoError(t, err)

	got := make(map[string]string)
	for _, tr := range translations {
		got[tr.Locale+":"+tr.Key] = tr.Value
	}
	assert.Equal(t, map[string]string{
		"en:auth.failed":         "These credentials do not match our records.",
		"en:auth.password.reset": "Your password has been reset.",
		"fr:Bye":                 "Au revoir",
		"fr:Hello":               "Bonjour",
	}, got)
}

func TestAnalyzer_TranslationsLegacyDirectory(t *testing.T) {
	root := writeProject(t, map[string]string{"resources/lang/en/validation.php": `<?php return ['required' => 'Required'];`})
	translations, err := NewAnalyzer(nil, nil).Translations(context.Background(), root)
	require.NoError(t, err)
	require.Len(t, translations, 1)
	assert.Equal(t, "validation.required", translations[0].Key)
}

func TestAnalyzer_AnalyzeProject(t *testing.T) {
	root := sampleProject(t)
	facts, err := NewAnalyzer(nil, nil).AnalyzeProject(context.Background(), root)
	require.NoError(t, err)

	assert.Equal(t, root, facts.Root)
	assert.NotEmpty(t, facts.Routes)
	require.Len(t, facts.Models, 1)
	assert.Equal(t, `App\Models\User`, facts.Models[0].FullName)
	assert.NotEmpty(t, facts.ConfigKeys)
	assert.Len(t, facts.Views, 3)
	assert.Len(t, facts.Translations, 4)
}

func TestAnalyzer_EmptyProject(t *testing.T) {
	facts, err := NewAnalyzer(nil, nil).AnalyzeProject(context.Background(), t.TempDir())
	require.NoError(t, err)
	assert.Empty(t, facts.Routes)
	assert.Empty(t, facts.Models)
	assert.Empty(t, facts.Views)
}

func TestAnalyzer_CancelledContext(t *testing.T) {
	root := sampleProject(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := NewAnalyzer(nil, nil).AnalyzeProject(ctx, root)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestDomainsForPath(t *testing.T) {
	root := filepath.FromSlash("/srv/app")
	tests := []struct {
		rel  string
		want []Domain
	}{
		{"routes/web.php", []Domain{DomainRoutes}},
		{"app/Models/User.php", []Domain{DomainModels}},
		{"config/app.php", []Domain{DomainConfig}},
		{"resources/views/welcome.blade.php", []Domain{DomainViews}},
		{"lang/en/auth.php", []Domain{DomainTranslations}},
		{"resources/lang/en.json", []Domain{DomainTranslations}},
		{"composer.json", nil},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, DomainsForPath(root, filepath.Join(root, filepath.FromSlash(tt.rel))), tt.rel)
	}
	assert.Nil(t, DomainsForPath(root, filepath.FromSlash("/elsewhere/routes/web.php")))
}
