package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// ErrInvalid is wrapped by every validation failure
var ErrInvalid = errors.New("invalid configuration")

// Load reads and parses the configuration file
func Load(path string) (*Config, error) {
	// Read configuration file
	data, err := os.ReadFile(path)
	if err != nil {
		// Return default config if file doesn't exist
		if os.IsNotExist(err) {
			cfg := DefaultConfig()
			applyEnvOverrides(cfg)
			return cfg, validate(cfg)
		}
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	// Parse YAML on top of the defaults so omitted keys keep their values
	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	// Apply environment variable overrides
	applyEnvOverrides(cfg)

	// Validate configuration
	if err := validate(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// DefaultConfig returns a default configuration
func DefaultConfig() *Config {
	return &Config{
		Parser: ParserConfig{
			PHPVersion: "8.0",
			Lexer:      "php",
			MaxDepth:   32,
		},
		Resolver: ResolverConfig{
			Debounce:     75 * time.Millisecond,
			ParseTimeout: 500 * time.Millisecond,
			CacheMaxCost: 4 << 20,
			CacheTTL:     2 * time.Minute,
		},
		Project: ProjectConfig{
			DetectionMarkers: []string{"artisan", "composer.json"},
			Watch:            true,
			WatchDebounce:    time.Second,
			SkipDirs:         []string{".git", "node_modules", "vendor", "storage", "bootstrap/cache", "public"},
			RootCacheTTL:     5 * time.Minute,
		},
		Repository: RepositoryConfig{
			LoadOnStartup: true,
			MaxRetries:    3,
			RetryDelay:    500 * time.Millisecond,
			LoadTimeout:   30 * time.Second,
		},
		Storage: StorageConfig{
			Path:    "",
			Timeout: time.Second,
		},
		Server: ServerConfig{
			Name:            "laravel-callctx",
			Version:         "dev",
			CompletionLimit: 200,
		},
		Logging: LoggingConfig{
			Level:     "info",
			Format:    "text",
			Output:    "stderr",
			MaxSizeMB: 10,
		},
	}
}

// applyEnvOverrides applies environment variable overrides to the configuration
func applyEnvOverrides(cfg *Config) {
	// Parser configuration overrides
	if v := os.Getenv("CALLCTX_PHP_VERSION"); v != "" {
		cfg.Parser.PHPVersion = v
	}
	if v := os.Getenv("CALLCTX_LEXER"); v != "" {
		cfg.Parser.Lexer = v
	}

	// Resolver configuration overrides
	if v := os.Getenv("CALLCTX_DEBOUNCE"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Resolver.Debounce = d
		}
	}
	if v := os.Getenv("CALLCTX_PARSE_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Resolver.ParseTimeout = d
		}
	}
	if v := os.Getenv("CALLCTX_CACHE_MAX_COST"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			cfg.Resolver.CacheMaxCost = n
		}
	}

	// Project configuration overrides
	if root := os.Getenv("CALLCTX_PROJECT_ROOT"); root != "" {
		cfg.Project.Root = root
	}
	if watch := os.Getenv("CALLCTX_WATCH"); watch != "" {
		if v, err := strconv.ParseBool(watch); err == nil {
			cfg.Project.Watch = v
		}
	}
	if dirs := os.Getenv("CALLCTX_SKIP_DIRS"); dirs != "" {
		cfg.Project.SkipDirs = cfg.Project.SkipDirs[:0]
		for _, d := range strings.Split(dirs, ",") {
			d = strings.TrimSpace(d)
			if d != "" {
				cfg.Project.SkipDirs = append(cfg.Project.SkipDirs, d)
			}
		}
	}

	// Repository configuration overrides
	if retries := os.Getenv("CALLCTX_MAX_RETRIES"); retries != "" {
		if v, err := strconv.Atoi(retries); err == nil {
			cfg.Repository.MaxRetries = v
		}
	}

	// Storage and logging overrides
	if path := os.Getenv("CALLCTX_STORAGE_PATH"); path != "" {
		cfg.Storage.Path = path
	}
	if level := os.Getenv("CALLCTX_LOG_LEVEL"); level != "" {
		cfg.Logging.Level = level
	}
	if path := os.Getenv("CALLCTX_LOG_FILE"); path != "" {
		cfg.Logging.Output = "file"
		cfg.Logging.Path = path
	}
}

// validate checks if the configuration is valid
func validate(cfg *Config) error {
	// Default to the PHP lexer if not set
	if cfg.Parser.Lexer == "" {
		cfg.Parser.Lexer = "php"
	}
	if cfg.Parser.Lexer != "php" && cfg.Parser.Lexer != "basic" {
		return fmt.Errorf("%w: parser.lexer must be 'php' or 'basic'", ErrInvalid)
	}
	if cfg.Parser.MaxDepth < 0 {
		return fmt.Errorf("%w: parser.max_depth must not be negative", ErrInvalid)
	}

	if cfg.Resolver.Debounce < 0 || cfg.Resolver.ParseTimeout < 0 {
		return fmt.Errorf("%w: resolver durations must not be negative", ErrInvalid)
	}
	if cfg.Resolver.CacheMaxCost < 0 {
		return fmt.Errorf("%w: resolver.cache_max_cost must not be negative", ErrInvalid)
	}

	if cfg.Repository.MaxRetries < 1 {
		cfg.Repository.MaxRetries = 1
	}

	if _, err := ParseLogLevel(cfg.Logging.Level); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	if cfg.Logging.Output == "file" && cfg.Logging.Path == "" {
		return fmt.Errorf("%w: logging.path is required when logging.output is 'file'", ErrInvalid)
	}

	return nil
}

// ParseLogLevel converts a level name to slog.Level
func ParseLogLevel(levelStr string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(levelStr)) {
	case "debug":
		return slog.LevelDebug, nil
	case "info", "":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error", "err":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("invalid log level: %q", levelStr)
	}
}
