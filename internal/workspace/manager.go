package workspace

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"sort"
	"sync"

	"github.com/doITmagic/laravel-callctx/internal/config"
	"github.com/doITmagic/laravel-callctx/internal/laravel"
	"github.com/doITmagic/laravel-callctx/internal/repository"
)

// ErrClosed is returned by a Manager after Close
var ErrClosed = errors.New("workspace manager closed")

// Project is an opened Laravel project and its repositories
type Project struct {
	Info     *Info
	Registry *repository.Registry

	watcher *Watcher
}

// Manager maps files to projects, opening each project once
type Manager struct {
	detector *Detector
	analyzer *laravel.Analyzer
	store    *repository.Store
	cfg      *config.Config
	logger   *slog.Logger

	mu       sync.Mutex
	projects map[string]*Project // root -> project
	closed   bool
}

// NewManager creates a manager. store may be nil to disable snapshots.
func NewManager(cfg *config.Config, analyzer *laravel.Analyzer, store *repository.Store, logger *slog.Logger) *Manager {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		detector: NewDetector(cfg.Project.DetectionMarkers, NewCache(cfg.Project.RootCacheTTL), logger),
		analyzer: analyzer,
		store:    store,
		cfg:      cfg,
		logger:   logger.With("component", "workspace"),
		projects: make(map[string]*Project),
	}
}

// ProjectFor returns the project enclosing path. A configured project root
// takes precedence over detection.
func (m *Manager) ProjectFor(path string) (*Project, error) {
	if root := m.cfg.Project.Root; root != "" {
		return m.Open(root)
	}
	info, err := m.detector.DetectRoot(path)
	if err != nil {
		return nil, err
	}
	return m.open(info)
}

// Open returns the project rooted at root without walking up
func (m *Manager) Open(root string) (*Project, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("failed to get absolute path: %w", err)
	}
	return m.open(&Info{Root: abs, ID: projectID(abs)})
}

func (m *Manager) open(info *Info) (*Project, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return nil, ErrClosed
	}
	if p, ok := m.projects[info.Root]; ok {
		return p, nil
	}

	opts := repository.Options{
		MaxRetries:  m.cfg.Repository.MaxRetries,
		RetryDelay:  m.cfg.Repository.RetryDelay,
		LoadTimeout: m.cfg.Repository.LoadTimeout,
	}
	p := &Project{
		Info:     info,
		Registry: repository.NewRegistry(info.Root, m.analyzer, opts, m.store, m.logger),
	}

	if n, err := p.Registry.Restore(); err != nil {
		m.logger.Warn("snapshot restore failed", "root", info.Root, "error", err)
	} else if n > 0 {
		m.logger.Info("restored project snapshot", "root", info.Root, "domains", n)
	}

	if m.cfg.Project.Watch {
		w, err := NewWatcher(info.Root, WatchOptions{
			Debounce: m.cfg.Project.WatchDebounce,
			SkipDirs: m.cfg.Project.SkipDirs,
		}, func(paths []string) { m.changed(p, paths) }, m.logger)
		if err == nil {
			err = w.Start()
		}
		if err != nil {
			m.logger.Warn("file watching disabled", "root", info.Root, "error", err)
		} else {
			p.watcher = w
		}
	}

	m.projects[info.Root] = p
	m.logger.Info("project opened", "root", info.Root, "id", info.ID)
	return p, nil
}

// changed invalidates what the changed files feed
func (m *Manager) changed(p *Project, paths []string) {
	for _, path := range paths {
		switch filepath.Base(path) {
		case markerArtisan, markerComposer:
			m.detector.Invalidate(p.Info.Root)
		}
		p.Registry.InvalidatePath(path)
	}
}

// LoadAll loads every repository of the project enclosing path
func (m *Manager) LoadAll(ctx context.Context, path string) (*Project, error) {
	p, err := m.ProjectFor(path)
	if err != nil {
		return nil, err
	}
	return p, p.Registry.LoadAll(ctx)
}

// Projects returns the opened projects sorted by root
func (m *Manager) Projects() []*Project {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]*Project, 0, len(m.projects))
	for _, p := range m.projects {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Info.Root < out[j].Info.Root })
	return out
}

// Close stops every watcher. Opened registries stay readable.
func (m *Manager) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.closed = true
	for _, p := range m.projects {
		if p.watcher != nil {
			p.watcher.Stop()
		}
	}
}
