package main

import (
	"bytes"
	"fmt"
	"io"
	"log"
	"log/slog"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/doITmagic/laravel-callctx/internal/callctx"
	"github.com/doITmagic/laravel-callctx/internal/config"
	"github.com/doITmagic/laravel-callctx/internal/laravel"
	"github.com/doITmagic/laravel-callctx/internal/repository"
	"github.com/doITmagic/laravel-callctx/internal/resolver"
	"github.com/doITmagic/laravel-callctx/internal/workspace"
)

// app holds what every command shares: configuration, logging and the
// lazily opened project services
type app struct {
	cfg    *config.Config
	logger *slog.Logger

	logFile *os.File
	store   *repository.Store
}

func defaultConfigPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "callctx.yaml"
	}
	return filepath.Join(dir, "laravel-callctx", "config.yaml")
}

// setup loads the configuration and builds the logger. Logs always go to
// stderr or a file because stdout carries the LSP and MCP protocols.
func setup(flags *rootFlags, stderr io.Writer) (*app, error) {
	// Set default log output to stderr to avoid interfering with stdio protocols
	log.SetOutput(stderr)

	if err := ensureConfigExists(flags.configPath); err != nil {
		fmt.Fprintf(stderr, "[WARN] Failed to create default config: %v\n", err)
	}

	cfg, err := config.Load(flags.configPath)
	if err != nil {
		return nil, err
	}
	if flags.logLevel != "" {
		cfg.Logging.Level = flags.logLevel
	}

	a := &app{cfg: cfg}
	if a.logger, err = a.newLogger(stderr); err != nil {
		return nil, err
	}
	return a, nil
}

func (a *app) newLogger(stderr io.Writer) (*slog.Logger, error) {
	level, err := config.ParseLogLevel(a.cfg.Logging.Level)
	if err != nil {
		return nil, err
	}

	out := stderr
	if a.cfg.Logging.Output == "file" {
		path := a.cfg.Logging.Path
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create log directory: %w", err)
		}
		rotateLogFile(path, a.cfg.Logging.MaxSizeMB)

		f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
		if err != nil {
			return nil, fmt.Errorf("failed to open log file %s: %w", path, err)
		}
		a.logFile = f
		out = f
	}

	opts := &slog.HandlerOptions{Level: level, AddSource: a.cfg.Logging.AddSource}
	var handler slog.Handler
	if a.cfg.Logging.Format == "json" {
		handler = slog.NewJSONHandler(out, opts)
	} else {
		handler = slog.NewTextHandler(out, opts)
	}
	return slog.New(handler), nil
}

func (a *app) parser() (*callctx.Parser, error) {
	return callctx.NewParser(callctx.Options{
		PHPVersion: a.cfg.Parser.PHPVersion,
		Lexer:      a.cfg.Parser.Lexer,
		MaxDepth:   a.cfg.Parser.MaxDepth,
	})
}

func (a *app) resolver() (*resolver.Resolver, error) {
	p, err := a.parser()
	if err != nil {
		return nil, err
	}
	return resolver.New(a.cfg.Resolver, a.logger, p.Parse), nil
}

// projects opens the snapshot store, when configured, and a project manager
func (a *app) projects() (*workspace.Manager, error) {
	ver, err := callctx.ParseVersion(a.cfg.Parser.PHPVersion)
	if err != nil {
		return nil, err
	}

	if a.cfg.Storage.Path != "" && a.store == nil {
		a.store, err = repository.OpenStore(a.cfg.Storage.Path, a.cfg.Storage.Timeout, a.logger)
		if err != nil {
			a.logger.Warn("Snapshots disabled", "error", err)
		}
	}
	return workspace.NewManager(a.cfg, laravel.NewAnalyzer(a.logger, ver), a.store, a.logger), nil
}

// saveSnapshots writes the facts of every opened project to the store
func (a *app) saveSnapshots(m *workspace.Manager) {
	if a.store == nil {
		return
	}
	for _, p := range m.Projects() {
		if err := p.Registry.Save(); err != nil {
			a.logger.Warn("Failed to save snapshot", "root", p.Info.Root, "error", err)
		}
	}
}

func (a *app) Close() {
	if a.store != nil {
		if err := a.store.Close(); err != nil {
			a.logger.Warn("Failed to close snapshot store", "error", err)
		}
	}
	if a.logFile != nil {
		a.logFile.Close()
	}
}

// ensureConfigExists writes the default configuration to configPath unless
// a file is already there
func ensureConfigExists(configPath string) error {
	if _, err := os.Stat(configPath); err == nil {
		return nil
	}

	data, err := yaml.Marshal(config.DefaultConfig())
	if err != nil {
		return fmt.Errorf("failed to render default config: %w", err)
	}
	var buf bytes.Buffer
	buf.WriteString("# laravel-callctx configuration\n")
	buf.WriteString("# Auto-generated on first run. Environment variables prefixed CALLCTX_ override these values.\n\n")
	buf.Write(data)

	dir := filepath.Dir(configPath)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create config directory: %w", err)
		}
	}
	if err := os.WriteFile(configPath, buf.Bytes(), 0o644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	log.Printf("Created default configuration file: %s", configPath)
	return nil
}

// rotateLogFile trims the oldest tenth of the log, on a line boundary, once
// it grows past maxSizeMB
func rotateLogFile(path string, maxSizeMB int) {
	if maxSizeMB <= 0 {
		return
	}
	info, err := os.Stat(path)
	if err != nil || info.Size() <= int64(maxSizeMB)*1024*1024 {
		return
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return
	}
	cut := len(data) / 10
	if i := bytes.IndexByte(data[cut:], '\n'); i >= 0 {
		cut += i + 1
	} else {
		cut = len(data)
	}

	if err := os.WriteFile(path, data[cut:], 0o644); err != nil {
		log.Printf("Failed to rotate log file %s: %v", path, err)
	}
}
