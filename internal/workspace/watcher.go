package workspace

import (
	"errors"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
)

// ChangeFunc receives the files changed during one quiet period
type ChangeFunc func(paths []string)

// WatchOptions configures a Watcher
type WatchOptions struct {
	// Debounce is the quiet period before pending changes are flushed
	Debounce time.Duration

	// SkipDirs are directory names, or root-relative paths such as
	// "bootstrap/cache", that are never watched
	SkipDirs []string
}

// Watcher reports file changes under a project root, batched by a debounce
// timer
type Watcher struct {
	watcher  *fsnotify.Watcher
	root     string
	opts     WatchOptions
	onChange ChangeFunc
	logger   *slog.Logger

	stopChan chan struct{}
	stopOnce sync.Once
	started  atomic.Bool
	done     chan struct{}

	eventsMu sync.Mutex
	pending  map[string]struct{}
	timer    *time.Timer
}

// NewWatcher creates a watcher for root. Nothing is watched until Start.
func NewWatcher(root string, opts WatchOptions, onChange ChangeFunc, logger *slog.Logger) (*Watcher, error) {
	if onChange == nil {
		return nil, errors.New("workspace: nil change callback")
	}
	if logger == nil {
		logger = slog.Default()
	}
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	return &Watcher{
		watcher:  w,
		root:     filepath.Clean(root),
		opts:     opts,
		onChange: onChange,
		logger:   logger.With("component", "watcher", "root", root),
		stopChan: make(chan struct{}),
		done:     make(chan struct{}),
		pending:  make(map[string]struct{}),
	}, nil
}

// Root returns the watched directory
func (fw *Watcher) Root() string {
	return fw.root
}

// Start adds the directory tree to the watcher and begins the event loop
func (fw *Watcher) Start() error {
	if !fw.started.CompareAndSwap(false, true) {
		return errors.New("workspace: watcher already started")
	}
	err := filepath.WalkDir(fw.root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if !d.IsDir() {
			return nil
		}
		if path != fw.root && fw.skip(path) {
			return filepath.SkipDir
		}
		if err := fw.watcher.Add(path); err != nil {
			fw.logger.Warn("unable to watch directory", "path", path, "error", err)
		}
		return nil
	})
	if err != nil {
		fw.watcher.Close()
		close(fw.done)
		return err
	}

	fw.logger.Info("watcher started")
	go fw.watchLoop()
	return nil
}

func (fw *Watcher) watchLoop() {
	defer close(fw.done)
	defer fw.watcher.Close()

	for {
		select {
		case event, ok := <-fw.watcher.Events:
			if !ok {
				return
			}
			fw.handle(event)

		case err, ok := <-fw.watcher.Errors:
			if !ok {
				return
			}
			fw.logger.Error("watcher error", "error", err)

		case <-fw.stopChan:
			return
		}
	}
}

func (fw *Watcher) handle(event fsnotify.Event) {
	// chmod is too noisy and never changes content
	if event.Op == fsnotify.Chmod {
		return
	}

	if event.Op.Has(fsnotify.Create) {
		if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
			if fw.skip(event.Name) {
				return
			}
			if err := fw.watcher.Add(event.Name); err != nil {
				fw.logger.Warn("unable to watch new directory", "path", event.Name, "error", err)
			}
			return
		}
	}

	if fw.skip(filepath.Dir(event.Name)) {
		return
	}
	fw.enqueue(event.Name)
}

func (fw *Watcher) enqueue(path string) {
	fw.eventsMu.Lock()
	defer fw.eventsMu.Unlock()

	fw.pending[path] = struct{}{}
	if fw.timer != nil {
		fw.timer.Stop()
	}
	fw.timer = time.AfterFunc(fw.opts.Debounce, fw.flush)
}

func (fw *Watcher) flush() {
	fw.eventsMu.Lock()
	if len(fw.pending) == 0 {
		fw.eventsMu.Unlock()
		return
	}
	paths := make([]string, 0, len(fw.pending))
	for p := range fw.pending {
		paths = append(paths, p)
	}
	fw.pending = make(map[string]struct{})
	fw.timer = nil
	fw.eventsMu.Unlock()

	select {
	case <-fw.stopChan:
		return
	default:
	}

	sort.Strings(paths)
	fw.logger.Debug("file changes detected", "count", len(paths))
	fw.onChange(paths)
}

// skip reports whether dir lies in a skipped or hidden directory
func (fw *Watcher) skip(dir string) bool {
	rel, err := filepath.Rel(fw.root, dir)
	if err != nil || rel == "." {
		return false
	}
	rel = filepath.ToSlash(rel)
	if strings.HasPrefix(rel, "../") {
		return true
	}

	segments := strings.Split(rel, "/")
	for _, seg := range segments {
		if strings.HasPrefix(seg, ".") {
			return true
		}
	}
	for _, s := range fw.opts.SkipDirs {
		s = strings.Trim(filepath.ToSlash(s), "/")
		if s == "" {
			continue
		}
		if strings.Contains(s, "/") {
			if rel == s || strings.HasPrefix(rel, s+"/") {
				return true
			}
			continue
		}
		for _, seg := range segments {
			if seg == s {
				return true
			}
		}
	}
	return false
}

// Stop ends the event loop and drops pending changes. Safe to call twice.
func (fw *Watcher) Stop() {
	fw.stopOnce.Do(func() {
		close(fw.stopChan)
		if fw.started.CompareAndSwap(false, true) {
			fw.watcher.Close()
			close(fw.done)
		}

		fw.eventsMu.Lock()
		if fw.timer != nil {
			fw.timer.Stop()
			fw.timer = nil
		}
		fw.pending = make(map[string]struct{})
		fw.eventsMu.Unlock()
	})
	<-fw.done
}
