package laravel

import (
	"testing"

	"github.com/VKCOM/php-parser/pkg/ast"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func parseClass(t *testing.T, code string) *ast.StmtClass {
	t.Helper()
	root, _, err := parsePHPSource([]byte(code), nil)
	require.NoError(t, err)

	var find func(stmts []ast.Vertex) *ast.StmtClass
	find = func(stmts []ast.Vertex) *ast.StmtClass {
		for _, s := range stmts {
			switch n := s.(type) {
			case *ast.StmtClass:
				return n
			case *ast.StmtNamespace:
				if c := find(n.Stmts); c != nil {
					return c
				}
			}
		}
		return nil
	}
	class := find(root.Stmts)
	require.NotNil(t, class)
	return class
}

func TestASTPropertyExtractor_ExtractStringArray(t *testing.T) {
	classNode := parseClass(t, `<?php
namespace App;

class Test {
    protected $fillable = ['name', 'email', 'password'];
    protected $guarded = array('id');
}
`)
	helper := NewASTPropertyExtractor()
	assert.Equal(t, []string{"name", "email", "password"}, helper.ExtractStringArrayFromClass(classNode, "fillable"))
	assert.Equal(t, []string{"id"}, helper.ExtractStringArrayFromClass(classNode, "guarded"))
	assert.Nil(t, helper.ExtractStringArrayFromClass(classNode, "hidden"))
}

func TestASTPropertyExtractor_ExtractMap(t *testing.T) {
	classNode := parseClass(t, `<?php
class Test {
    protected $casts = [
        'is_admin' => 'boolean',
        'age' => 'integer',
        'options' => AsArrayObject::class,
    ];
}
`)
	casts := NewASTPropertyExtractor().ExtractMapFromClass(classNode, "casts")
	assert.Equal(t, "boolean", casts["is_admin"])
	assert.Equal(t, "integer", casts["age"])
	assert.Equal(t, "AsArrayObject", casts["options"])
}

func TestASTPropertyExtractor_ExtractString(t *testing.T) {
	classNode := parseClass(t, `<?php
class Test {
    protected $table = 'users';
    protected $primaryKey = "uuid";
    public $perPage = 25;
}
`)
	helper := NewASTPropertyExtractor()
	assert.Equal(t, "users", helper.ExtractStringPropertyFromClass(classNode, "table"))
	assert.Equal(t, "uuid", helper.ExtractStringPropertyFromClass(classNode, "primaryKey"))
	assert.Equal(t, "25", helper.ExtractStringPropertyFromClass(classNode, "perPage"))
	assert.Empty(t, helper.ExtractStringPropertyFromClass(classNode, "missing"))
}

func TestASTPropertyExtractor_ExtractMethodCalls(t *testing.T) {
	classNode := parseClass(t, `<?php
class Test {
    public function roles()
    {
        return $this->belongsToMany(Role::class, 'role_user')->withTimestamps();
    }
}
`)
	method, ok := classNode.Stmts[0].(*ast.StmtClassMethod)
	require.True(t, ok)

	calls := NewASTPropertyExtractor().ExtractMethodCalls(method)
	require.Len(t, calls, 2)
	assert.Equal(t, "withTimestamps", calls[0].Method)
	assert.Equal(t, MethodCall{Object: "this", Method: "belongsToMany", Args: []string{"Role", "role_user"}}, calls[1])
}

func TestNameOf(t *testing.T) {
	classNode := parseClass(t, `<?php
class A extends \Foo\Bar {}
`)
	assert.Equal(t, `\Foo\Bar`, nameOf(classNode.Extends))
	assert.Equal(t, "A", nameOf(classNode.Name))
	assert.Empty(t, nameOf(nil))
}
