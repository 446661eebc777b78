package laravel

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

// writeProject creates files relative to a fresh temp dir and returns it
func writeProject(t *testing.T, files map[string]string) string {
	t.Helper()
	root := t.TempDir()
	for rel, content := range files {
		path := filepath.Join(root, filepath.FromSlash(rel))
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	}
	return root
}

const userModel = `<?php
namespace App\Models;

use Illuminate\Database\Eloquent\Model;
use Illuminate\Database\Eloquent\SoftDeletes;
use Illuminate\Database\Eloquent\Casts\Attribute;
use App\Support\Team as Squad;

class User extends Model
{
    use SoftDeletes;

    protected $table = 'users';
    protected $fillable = ['name', 'email'];
    protected $casts = ['is_admin' => 'boolean'];

    protected function casts(): array
    {
        return ['email_verified_at' => 'datetime'];
    }

    public function posts()
    {
        return $this->hasMany(Post::class, 'author_id');
    }

    public function team()
    {
        return $this->belongsTo(Squad::class);
    }

    public function scopeActive($query)
    {
        return $query->where('active', 1);
    }

    public function getFullNameAttribute()
    {
        return $this->name;
    }

    protected function firstName(): Attribute
    {
        return Attribute::make(fn ($v) => ucfirst($v));
    }
}

class NotAModel
{
    protected $fillable = ['ignored'];
}
`

const webRoutes = `<?php
use Illuminate\Support\Facades\Route;
use App\Http\Controllers\UserController;
use App\Http\Controllers\PostController;

Route::get('/', function () {
    return view('welcome');
})->name('home');

Route::get('/users', [UserController::class, 'index']);
Route::post('/users', [UserController::class, 'store'])->name('users.store');
Route::put('/users/{id}', 'UserController@update');

Route::match(['get', 'post'], '/match', [PostController::class, 'handle']);

Route::resource('photos', PhotoController::class);

Route::prefix('admin')->name('admin.')->middleware('auth')->group(function () {
    Route::get('/users', [UserController::class, 'index'])->name('users.index');
});

Route::group(['prefix' => 'api', 'as' => 'api.'], function () {
    Route::post('/login', 'AuthController@login')->name('login');
});
`
