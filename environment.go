package vulnlab

import (
	"slices"
	"strings"
)

// Status is the last known lifecycle state of an environment.
type Status string

const (
	StatusUnknown Status = "unknown"
	StatusRunning Status = "running"
	StatusStopped Status = "stopped"
)

// Environment is one compose-manifest directory under the scan root.
//
// ID is the manifest directory's path relative to the root, forward-slashed,
// and is the key for every lifecycle operation. It never starts with "/" and
// never contains ".." segments; the lifecycle driver re-checks containment
// before touching a subprocess.
type Environment struct {
	ID       string `json:"name"`
	Category string `json:"category"`
	Label    string `json:"label"`

	// Services in manifest declaration order.
	Services []string `json:"services"`
	// Ports maps service name to one representative host port: the first
	// recoverable one the manifest declares for that service.
	Ports map[string]string `json:"ports"`

	Status Status `json:"status"`

	HasExploit     bool `json:"has_exploit"`
	HasImages      bool `json:"has_images"`
	HasReadme      bool `json:"has_readme"`
	HasReadmeZh    bool `json:"has_readme_zh"`
	HasLocalImages bool `json:"has_docker_images"`
}

// Snapshot is the full registry listing, sorted by ID ascending.
type Snapshot []Environment

// Sort orders the snapshot by ID. Scans traverse the filesystem in an
// arbitrary order; the sorted form is the canonical one, so two scans of an
// unchanged tree serialize identically.
func (s Snapshot) Sort() {
	slices.SortFunc(s, func(a, b Environment) int {
		return strings.Compare(a.ID, b.ID)
	})
}

// Find returns the index of the environment with the given ID, or -1.
func (s Snapshot) Find(id string) int {
	return slices.IndexFunc(s, func(e Environment) bool { return e.ID == id })
}

// Clone returns a deep copy so callers can hand snapshots out without
// aliasing the cached one.
func (s Snapshot) Clone() Snapshot {
	if s == nil {
		return nil
	}
	out := make(Snapshot, len(s))
	for i, e := range s {
		e.Services = slices.Clone(e.Services)
		if e.Ports != nil {
			ports := make(map[string]string, len(e.Ports))
			for k, v := range e.Ports {
				ports[k] = v
			}
			e.Ports = ports
		}
		out[i] = e
	}
	return out
}

// SplitID derives the grouping fields from a relative identifier:
// first path segment is the category, last is the display label.
func SplitID(id string) (category, label string) {
	parts := strings.Split(id, "/")
	if len(parts) == 0 || parts[0] == "" {
		return "unknown", "unknown"
	}
	return parts[0], parts[len(parts)-1]
}
