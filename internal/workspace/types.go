package workspace

import "time"

// Info describes a detected Laravel project
type Info struct {
	// Root is the absolute path to the project root directory
	Root string `json:"root"`

	// ID is a stable identifier for this project (hash of Root)
	ID string `json:"id"`

	// Markers are the project markers found at Root (e.g. "artisan")
	Markers []string `json:"markers,omitempty"`

	// FrameworkConstraint is the laravel/framework version constraint from
	// composer.json, when present
	FrameworkConstraint string `json:"framework_constraint,omitempty"`

	// DetectedAt is when this project was first detected
	DetectedAt time.Time `json:"detected_at,omitempty"`
}

// HasMarker reports whether marker was found at the project root
func (w *Info) HasMarker(marker string) bool {
	for _, m := range w.Markers {
		if m == marker {
			return true
		}
	}
	return false
}
