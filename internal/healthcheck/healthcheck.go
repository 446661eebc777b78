package healthcheck

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/doITmagic/laravel-callctx/internal/callctx"
	"github.com/doITmagic/laravel-callctx/internal/config"
	"github.com/doITmagic/laravel-callctx/internal/laravel"
	"github.com/doITmagic/laravel-callctx/internal/repository"
	"github.com/doITmagic/laravel-callctx/internal/workspace"
)

const (
	StatusOK      = "ok"
	StatusError   = "error"
	StatusSkipped = "skipped"
)

// CheckResult represents the result of a health check
type CheckResult struct {
	Service string
	Status  string
	Message string
	Error   error
}

func failed(result CheckResult, err error, format string, args ...any) CheckResult {
	result.Status = StatusError
	result.Error = err
	result.Message = fmt.Sprintf(format, args...)
	return result
}

// parserSample is a call the parser must always recognise
const parserSample = "<?php\nreturn config('app."

// CheckParser verifies the configured lexer can resolve a simple call
func CheckParser(cfg config.ParserConfig) CheckResult {
	result := CheckResult{Service: "Parser", Status: "unknown"}

	p, err := callctx.NewParser(callctx.Options{
		PHPVersion: cfg.PHPVersion,
		Lexer:      cfg.Lexer,
		MaxDepth:   cfg.MaxDepth,
	})
	if err != nil {
		return failed(result, err, "Invalid parser settings: %v", err)
	}

	cc := p.Parse(parserSample)
	if cc == nil || cc.Function() != "config" {
		return failed(result, nil, "Parser did not resolve the sample call with the %s lexer", cfg.Lexer)
	}

	result.Status = StatusOK
	result.Message = fmt.Sprintf("%s lexer, PHP %s", cfg.Lexer, cfg.PHPVersion)
	return result
}

// CheckProject verifies path is inside a Laravel project
func CheckProject(path string, markers []string) CheckResult {
	result := CheckResult{Service: "Project", Status: "unknown"}

	d := workspace.NewDetector(markers, nil, slog.New(slog.NewTextHandler(io.Discard, nil)))
	info, err := d.DetectRoot(path)
	if err != nil {
		return failed(result, err, "No Laravel project encloses %s", path)
	}

	result.Status = StatusOK
	result.Message = fmt.Sprintf("Laravel project at %s", info.Root)
	if info.FrameworkConstraint != "" {
		result.Message += fmt.Sprintf(" (laravel/framework %s)", info.FrameworkConstraint)
	}
	return result
}

// CheckFacts analyzes the project enclosing path and reports what it found
func CheckFacts(ctx context.Context, path string, markers []string, timeout time.Duration) CheckResult {
	result := CheckResult{Service: "Facts", Status: "unknown"}

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	info, err := workspace.NewDetector(markers, nil, logger).DetectRoot(path)
	if err != nil {
		result.Status = StatusSkipped
		result.Message = "No project to analyze"
		return result
	}

	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	facts, err := laravel.NewAnalyzer(logger, nil).AnalyzeProject(ctx, info.Root)
	if err != nil {
		return failed(result, err, "Analysis failed: %v", err)
	}

	result.Status = StatusOK
	result.Message = fmt.Sprintf("%d routes, %d models, %d config keys, %d views, %d translations",
		len(facts.Routes), len(facts.Models), len(facts.ConfigKeys), len(facts.Views), len(facts.Translations))
	return result
}

// CheckStorage verifies the snapshot store can be opened
func CheckStorage(cfg config.StorageConfig) CheckResult {
	result := CheckResult{Service: "Storage", Status: "unknown"}

	if cfg.Path == "" {
		result.Status = StatusSkipped
		result.Message = "Snapshots disabled"
		return result
	}

	store, err := repository.OpenStore(cfg.Path, cfg.Timeout, slog.New(slog.NewTextHandler(io.Discard, nil)))
	if err != nil {
		return failed(result, err, "Cannot open snapshot store at %s", cfg.Path)
	}
	defer store.Close()

	result.Status = StatusOK
	result.Message = fmt.Sprintf("Snapshot store at %s", cfg.Path)
	return result
}

// CheckAll runs all health checks for the project enclosing path
func CheckAll(ctx context.Context, cfg *config.Config, path string) []CheckResult {
	markers := cfg.Project.DetectionMarkers
	return []CheckResult{
		CheckParser(cfg.Parser),
		CheckProject(path, markers),
		CheckFacts(ctx, path, markers, cfg.Repository.LoadTimeout),
		CheckStorage(cfg.Storage),
	}
}

// Healthy reports whether no check failed
func Healthy(results []CheckResult) bool {
	for _, r := range results {
		if r.Status == StatusError {
			return false
		}
	}
	return true
}

// FormatResults formats health check results for display
func FormatResults(results []CheckResult) string {
	output := "\n=== Health Check ===\n\n"

	for _, result := range results {
		var status string
		switch result.Status {
		case StatusOK:
			status = "✓"
		case StatusError:
			status = "✗"
		case StatusSkipped:
			status = "-"
		default:
			status = "?"
		}

		output += fmt.Sprintf("%s %s: %s\n", status, result.Service, result.Message)
	}

	return output
}

// GetRemediation provides remediation steps for failed checks
func GetRemediation(results []CheckResult) string {
	var remediation string

	for _, result := range results {
		if result.Status != StatusError {
			continue
		}
		remediation += fmt.Sprintf("\n%s check failed:\n", result.Service)

		switch result.Service {
		case "Parser":
			remediation += `
  Check the parser section of the config file:
    parser:
      php_version: "8.0"   # 5.x, 7.x or 8.x
      lexer: php           # or basic
`
		case "Project":
			remediation += `
  Run from inside a Laravel project, or set its root explicitly:
    project:
      root: /path/to/laravel/app

  A project root holds an artisan file or a composer.json requiring laravel/framework.
`
		case "Facts":
			remediation += `
  Fix the PHP syntax errors reported above, or raise repository.load_timeout.
`
		case "Storage":
			remediation += `
  Another process may hold the snapshot store. Stop running language servers,
  or point storage.path at a different file.
`
		}
	}

	return remediation
}
