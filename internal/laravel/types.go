package laravel

// ProjectFacts contains everything extracted from one Laravel project
type ProjectFacts struct {
	Root         string          `json:"root"`
	Routes       []Route         `json:"routes"`
	Models       []EloquentModel `json:"models"`
	ConfigKeys   []ConfigKey     `json:"config_keys"`
	Views        []View          `json:"views"`
	Translations []Translation   `json:"translations"`
}

// EloquentModel represents a Laravel Eloquent model with ORM features
type EloquentModel struct {
	ClassName   string              `json:"class_name"`
	Namespace   string              `json:"namespace"`
	FullName    string              `json:"full_name"`
	Table       string              `json:"table,omitempty"`       // $table property
	Fillable    []string            `json:"fillable,omitempty"`    // $fillable array
	Guarded     []string            `json:"guarded,omitempty"`     // $guarded array
	Casts       map[string]string   `json:"casts,omitempty"`       // $casts array or casts() method
	Hidden      []string            `json:"hidden,omitempty"`      // $hidden array
	Appends     []string            `json:"appends,omitempty"`     // $appends array
	Relations   []EloquentRelation  `json:"relations,omitempty"`   // Detected relations
	Scopes      []EloquentScope     `json:"scopes,omitempty"`      // Query scopes
	Attributes  []EloquentAttribute `json:"attributes,omitempty"`  // Accessors/Mutators
	PrimaryKey  string              `json:"primary_key,omitempty"` // $primaryKey
	SoftDeletes bool                `json:"soft_deletes"`          // Uses SoftDeletes trait
	FilePath    string              `json:"file_path"`
	StartLine   int                 `json:"start_line"`
	EndLine     int                 `json:"end_line"`
}

// Columns returns every attribute name known for the model, in declaration
// order and without duplicates.
func (m EloquentModel) Columns() []string {
	seen := make(map[string]bool)
	var out []string
	add := func(names ...string) {
		for _, n := range names {
			if n != "" && !seen[n] {
				seen[n] = true
				out = append(out, n)
			}
		}
	}
	if m.PrimaryKey != "" {
		add(m.PrimaryKey)
	}
	add(m.Fillable...)
	add(m.Guarded...)
	add(m.Hidden...)
	add(sortedKeys(m.Casts)...)
	for _, a := range m.Attributes {
		add(a.Name)
	}
	add(m.Appends...)
	return out
}

// EloquentRelation represents a relationship method in an Eloquent model
type EloquentRelation struct {
	Name         string `json:"name"`          // Method name (e.g., "posts")
	Type         string `json:"type"`          // hasOne, hasMany, belongsTo, belongsToMany, etc.
	RelatedModel string `json:"related_model"` // Related model class (e.g., "App\\Models\\Post")
	ForeignKey   string `json:"foreign_key,omitempty"`
	LocalKey     string `json:"local_key,omitempty"`
	StartLine    int    `json:"start_line"`
}

// EloquentScope represents a query scope (scopeMethodName)
type EloquentScope struct {
	Name       string `json:"name"`        // Scope name without "scope" prefix
	MethodName string `json:"method_name"` // Full method name (e.g., "scopeActive")
	StartLine  int    `json:"start_line"`
}

// EloquentAttribute represents an accessor or mutator
type EloquentAttribute struct {
	Name       string `json:"name"`        // Attribute name in snake_case
	MethodName string `json:"method_name"` // Method name (e.g., "getFullNameAttribute")
	Type       string `json:"type"`        // "accessor", "mutator" or "attribute"
	StartLine  int    `json:"start_line"`
}

// Route represents a Laravel route definition
type Route struct {
	Method     string   `json:"method"` // GET, POST, PUT, DELETE, etc.
	URI        string   `json:"uri"`    // Route pattern (e.g., "/users/{id}")
	Name       string   `json:"name,omitempty"`
	Controller string   `json:"controller,omitempty"` // FQCN, short name or "Closure"
	Action     string   `json:"action,omitempty"`     // Action method name
	Middleware []string `json:"middleware,omitempty"`
	FilePath   string   `json:"file_path"` // routes/web.php or routes/api.php
	Line       int      `json:"line"`
}

// ConfigKey is one dot-notation key from a config/*.php file
type ConfigKey struct {
	Key      string `json:"key"`             // e.g. "app.name"
	Value    string `json:"value,omitempty"` // scalar source text, empty for arrays
	IsArray  bool   `json:"is_array,omitempty"`
	FilePath string `json:"file_path"`
	Line     int    `json:"line"`
}

// View is a Blade or PHP template addressable by dot name
type View struct {
	Name     string `json:"name"` // e.g. "layouts.app"
	FilePath string `json:"file_path"`
}

// Translation is one translation key for one locale
type Translation struct {
	Key      string `json:"key"` // e.g. "auth.failed" or a JSON sentence key
	Locale   string `json:"locale"`
	Value    string `json:"value,omitempty"`
	FilePath string `json:"file_path"`
}
