package workspace

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"
)

// ErrNoProject is returned when no Laravel project encloses a path
var ErrNoProject = errors.New("no laravel project found")

const (
	markerArtisan  = "artisan"
	markerComposer = "composer.json"

	frameworkPackage = "laravel/framework"
)

// DefaultMarkers are checked in order at each directory level
var DefaultMarkers = []string{markerArtisan, markerComposer}

// Detector finds the Laravel project root enclosing a file
type Detector struct {
	// Markers identifying a project root, in priority order
	markers []string
	cache   *Cache
	logger  *slog.Logger
}

// NewDetector creates a detector. Empty markers means DefaultMarkers;
// a nil cache disables caching.
func NewDetector(markers []string, cache *Cache, logger *slog.Logger) *Detector {
	if len(markers) == 0 {
		markers = DefaultMarkers
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Detector{
		markers: markers,
		cache:   cache,
		logger:  logger.With("component", "workspace"),
	}
}

// DetectRoot walks up from path to the nearest directory holding a project
// marker. composer.json only counts when it requires laravel/framework.
func (d *Detector) DetectRoot(path string) (*Info, error) {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("failed to get absolute path: %w", err)
	}

	start := absPath
	if !isDir(absPath) {
		start = filepath.Dir(absPath)
	}

	if d.cache != nil {
		if info := d.cache.Get(start); info != nil {
			return info, nil
		}
	}

	for current := start; ; {
		if info := d.inspect(current); info != nil {
			d.logger.Debug("project detected", "root", current, "markers", info.Markers)
			if d.cache != nil {
				d.cache.Set(start, info)
			}
			return info, nil
		}

		parent := filepath.Dir(current)
		if parent == current {
			break
		}
		current = parent
	}

	return nil, fmt.Errorf("%w: %s", ErrNoProject, absPath)
}

// Invalidate drops cached detections that resolved to root
func (d *Detector) Invalidate(root string) {
	if d.cache != nil {
		d.cache.Forget(root)
	}
}

// inspect returns project info when dir carries at least one marker
func (d *Detector) inspect(dir string) *Info {
	var found []string
	constraint := ""

	for _, marker := range d.markers {
		markerPath := filepath.Join(dir, marker)
		if !exists(markerPath) {
			continue
		}
		if marker == markerComposer {
			c, ok := frameworkConstraint(markerPath)
			if !ok {
				continue
			}
			constraint = c
		}
		found = append(found, marker)
	}
	if len(found) == 0 {
		return nil
	}

	return &Info{
		Root:                dir,
		ID:                  projectID(dir),
		Markers:             found,
		FrameworkConstraint: constraint,
		DetectedAt:          time.Now(),
	}
}

type composerManifest struct {
	Require    map[string]string `json:"require"`
	RequireDev map[string]string `json:"require-dev"`
}

// frameworkConstraint reads composer.json and reports whether it requires
// laravel/framework
func frameworkConstraint(path string) (string, bool) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", false
	}
	var manifest composerManifest
	if err := json.Unmarshal(data, &manifest); err != nil {
		return "", false
	}
	if c, ok := manifest.Require[frameworkPackage]; ok {
		return c, true
	}
	if c, ok := manifest.RequireDev[frameworkPackage]; ok {
		return c, true
	}
	return "", false
}

// projectID creates a stable ID from the project root path
func projectID(rootPath string) string {
	h := sha256.Sum256([]byte(rootPath))
	return hex.EncodeToString(h[:])[:12]
}

func exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

func isDir(path string) bool {
	info, err := os.Stat(path)
	if err != nil {
		return false
	}
	return info.IsDir()
}
