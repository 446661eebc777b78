package config

import (
	"time"
)

// Config represents the global application configuration
type Config struct {
	// Parser configuration (call context resolution)
	Parser ParserConfig `yaml:"parser"`

	// Resolver configuration (dedup, debounce, memo cache)
	Resolver ResolverConfig `yaml:"resolver"`

	// Project configuration (Laravel root detection, file watching)
	Project ProjectConfig `yaml:"project"`

	// Repository configuration (loading application facts)
	Repository RepositoryConfig `yaml:"repository"`

	// Storage configuration
	Storage StorageConfig `yaml:"storage"`

	// Server configuration
	Server ServerConfig `yaml:"server"`

	// Logging configuration
	Logging LoggingConfig `yaml:"logging"`
}

// ParserConfig contains call context parser settings
type ParserConfig struct {
	PHPVersion string `yaml:"php_version"` // e.g. 8.0, 7.4
	Lexer      string `yaml:"lexer"`       // php, basic
	MaxDepth   int    `yaml:"max_depth"`   // parent chain limit
}

// ResolverConfig contains settings for the layer in front of the parser
type ResolverConfig struct {
	Debounce     time.Duration `yaml:"debounce"`
	ParseTimeout time.Duration `yaml:"parse_timeout"`

	// Memo cache keyed by exact source prefix. CacheMaxCost 0 disables it.
	CacheMaxCost int64         `yaml:"cache_max_cost"`
	CacheTTL     time.Duration `yaml:"cache_ttl"`
}

// ProjectConfig contains Laravel project detection and watch settings
type ProjectConfig struct {
	// Root of the Laravel project. Empty means detect from the opened file.
	Root string `yaml:"root"`

	// DetectionMarkers are files used to identify a project root
	DetectionMarkers []string `yaml:"detection_markers"`

	// Watch enables fsnotify based invalidation of repositories
	Watch         bool          `yaml:"watch"`
	WatchDebounce time.Duration `yaml:"watch_debounce"`
	SkipDirs      []string      `yaml:"skip_dirs"`
	RootCacheTTL  time.Duration `yaml:"root_cache_ttl"`
}

// RepositoryConfig contains settings for loading application facts
type RepositoryConfig struct {
	LoadOnStartup bool          `yaml:"load_on_startup"`
	MaxRetries    int           `yaml:"max_retries"`
	RetryDelay    time.Duration `yaml:"retry_delay"`
	LoadTimeout   time.Duration `yaml:"load_timeout"`
}

// StorageConfig contains storage backend settings
type StorageConfig struct {
	// Path of the bbolt snapshot file. Empty disables persistence.
	Path    string        `yaml:"path"`
	Timeout time.Duration `yaml:"timeout"`
}

// ServerConfig contains editor-facing server settings
type ServerConfig struct {
	Name    string `yaml:"name"`
	Version string `yaml:"version"`

	// CompletionLimit caps the number of completion items returned
	CompletionLimit int `yaml:"completion_limit"`
}

// LoggingConfig contains logging settings
type LoggingConfig struct {
	Level     string `yaml:"level"`  // debug, info, warn, error
	Format    string `yaml:"format"` // json, text
	Output    string `yaml:"output"` // stderr, file
	Path      string `yaml:"path"`
	MaxSizeMB int    `yaml:"max_size_mb"`
	AddSource bool   `yaml:"add_source"`
}
