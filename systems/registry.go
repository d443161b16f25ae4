package systems

// SystemInfo describes a per-tick system for logs and perf tracking.
type SystemInfo struct {
	ID          string // Internal identifier (used for perf tracking)
	Name        string // Display name
	Description string // What this system does
	Category    string // Grouping (e.g., "scene", "fields")
}

// SystemRegistry holds metadata about all systems.
// This centralizes system naming so logs and the perf tracker stay in sync.
type SystemRegistry struct {
	systems []SystemInfo
	byID    map[string]SystemInfo
}

// NewSystemRegistry creates a registry with all known systems.
func NewSystemRegistry() *SystemRegistry {
	reg := &SystemRegistry{
		byID: make(map[string]SystemInfo),
	}
	reg.registerDefaults()
	return reg
}

// registerDefaults adds all known systems to the registry.
// Update this when adding new systems.
func (r *SystemRegistry) registerDefaults() {
	// Scene
	r.Register(SystemInfo{ID: "lifetime", Name: "Lifetime", Description: "Activates and deactivates emitters", Category: "scene"})
	r.Register(SystemInfo{ID: "orbit", Name: "Orbit", Description: "Moves scripted emitters", Category: "scene"})
	r.Register(SystemInfo{ID: "projection", Name: "Projection", Description: "Maps emitter transforms into field space", Category: "scene"})

	// Field controllers, one entry per phase
	r.Register(SystemInfo{ID: "fieldsEarly", Name: "Fields (early)", Description: "Syncs and advances early-phase fields", Category: "fields"})
	r.Register(SystemInfo{ID: "fieldsMid", Name: "Fields (mid)", Description: "Syncs and advances mid-phase fields", Category: "fields"})
	r.Register(SystemInfo{ID: "fieldsLate", Name: "Fields (late)", Description: "Syncs and advances late-phase fields", Category: "fields"})

	// Standalone solvers
	r.Register(SystemInfo{ID: "solvers", Name: "Solvers", Description: "Advances standalone fluid solvers", Category: "solvers"})
}

// Register adds a system to the registry.
func (r *SystemRegistry) Register(info SystemInfo) {
	r.systems = append(r.systems, info)
	r.byID[info.ID] = info
}

// Get returns system info by ID.
func (r *SystemRegistry) Get(id string) (SystemInfo, bool) {
	info, ok := r.byID[id]
	return info, ok
}

// GetName returns the display name for a system ID.
// Falls back to the ID itself if not found.
func (r *SystemRegistry) GetName(id string) string {
	if info, ok := r.byID[id]; ok {
		return info.Name
	}
	return id
}

// All returns all registered systems.
func (r *SystemRegistry) All() []SystemInfo {
	return r.systems
}

// IDs returns all system IDs in registration order.
func (r *SystemRegistry) IDs() []string {
	ids := make([]string, len(r.systems))
	for i, info := range r.systems {
		ids[i] = info.ID
	}
	return ids
}
