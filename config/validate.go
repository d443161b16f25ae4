package config

import (
	"errors"
	"fmt"
)

// ErrConfiguration marks a configuration that must abort startup.
var ErrConfiguration = errors.New("configuration error")

// ThreadsPerGroup is the fixed compute workgroup edge length. Field
// resolutions must be evenly divisible by it.
const ThreadsPerGroup = 8

// Bounds on operator-tunable values.
const (
	MaxUpdatesPerTick = 10
	MinVorticity      = 0.03
	MaxVorticity      = 0.2
)

// Configf returns an error wrapping ErrConfiguration.
func Configf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrConfiguration, fmt.Sprintf(format, args...))
}

// Validate checks every section and returns all problems joined.
// Each returned error wraps ErrConfiguration.
func (c *Config) Validate() error {
	var errs []error

	if c.Sim.DT <= 0 {
		errs = append(errs, Configf("sim.dt must be positive, got %v", c.Sim.DT))
	}

	for i, s := range c.Solvers {
		if s.ID == "" {
			errs = append(errs, Configf("solvers[%d]: id is required", i))
		}
		if err := ValidateResolution(s.Resolution, 2); err != nil {
			errs = append(errs, fmt.Errorf("solver %q: %w", s.ID, err))
		}
		if s.UpdatesPerFrame < 0 || s.UpdatesPerFrame > MaxUpdatesPerTick {
			errs = append(errs, Configf("solver %q: updates_per_frame %d outside [0, %d]", s.ID, s.UpdatesPerFrame, MaxUpdatesPerTick))
		}
		if err := s.Params.Validate(); err != nil {
			errs = append(errs, fmt.Errorf("solver %q: %w", s.ID, err))
		}
	}

	for i, f := range c.Fields {
		if f.ID == "" {
			errs = append(errs, Configf("fields[%d]: id is required", i))
		}
		if f.Role != "force" && f.Role != "color" {
			errs = append(errs, Configf("field %q: role %q must be force or color", f.ID, f.Role))
		}
		if f.Dims != 2 && f.Dims != 3 {
			errs = append(errs, Configf("field %q: dims %d must be 2 or 3", f.ID, f.Dims))
		}
		if !validPhase(f.Phase) {
			errs = append(errs, Configf("field %q: phase %q must be early, mid or late", f.ID, f.Phase))
		}
		if f.UpdatesPerTick < 0 || f.UpdatesPerTick > MaxUpdatesPerTick {
			errs = append(errs, Configf("field %q: updates_per_tick %d outside [0, %d]", f.ID, f.UpdatesPerTick, MaxUpdatesPerTick))
		}
		if f.Dissipation <= 0 || f.Dissipation > 1 {
			errs = append(errs, Configf("field %q: dissipation %v outside (0, 1]", f.ID, f.Dissipation))
		}
		if err := ValidateResolution(f.Resolution, f.Dims); err != nil {
			errs = append(errs, fmt.Errorf("field %q: %w", f.ID, err))
		}
		if f.Solver != nil {
			if f.Role != "force" || f.Dims != 2 {
				errs = append(errs, Configf("field %q: a solver-backed field must be a 2D force field", f.ID))
			}
			if err := f.Solver.Validate(); err != nil {
				errs = append(errs, fmt.Errorf("field %q: %w", f.ID, err))
			}
		}
	}

	for i, e := range c.Emitters {
		name := e.Name
		if name == "" {
			name = fmt.Sprintf("emitters[%d]", i)
		}
		if e.Dims != 2 && e.Dims != 3 {
			errs = append(errs, Configf("emitter %q: dims %d must be 2 or 3", name, e.Dims))
		}
		if e.Shape != "directional" && e.Shape != "circular" {
			errs = append(errs, Configf("emitter %q: shape %q must be directional or circular", name, e.Shape))
		}
		if !validMapping(e.Mapping.Mode) {
			errs = append(errs, Configf("emitter %q: mapping mode %q must be xy, xz or yz", name, e.Mapping.Mode))
		}
		if e.Mapping.DirectionSource != "forward" && e.Mapping.DirectionSource != "velocity" {
			errs = append(errs, Configf("emitter %q: direction_source %q must be forward or velocity", name, e.Mapping.DirectionSource))
		}
		axes := 2
		if e.Dims == 3 {
			axes = 3
		}
		for a := 0; a < axes; a++ {
			if e.Mapping.Size[a] == 0 {
				errs = append(errs, Configf("emitter %q: mapping size axis %d is zero", name, a))
			}
		}
		if e.Orbit != nil && !validMapping(e.Orbit.Plane) {
			errs = append(errs, Configf("emitter %q: orbit plane %q must be xy, xz or yz", name, e.Orbit.Plane))
		}
		if e.DisableAt != 0 && e.DisableAt <= e.EnableAt {
			errs = append(errs, Configf("emitter %q: disable_at %d must be after enable_at %d", name, e.DisableAt, e.EnableAt))
		}
	}

	return errors.Join(errs...)
}

// Validate checks the solver constants against their operator bounds.
func (p SolverParams) Validate() error {
	if p.Vorticity < MinVorticity || p.Vorticity > MaxVorticity {
		return Configf("vorticity %v outside [%v, %v]", p.Vorticity, MinVorticity, MaxVorticity)
	}
	if p.DT <= 0 {
		return Configf("dt must be positive, got %v", p.DT)
	}
	if p.Dissipation <= 0 || p.Dissipation > 1 {
		return Configf("dissipation %v outside (0, 1]", p.Dissipation)
	}
	return nil
}

// ValidateResolution rejects empty sizes and sizes that do not divide into
// whole workgroups. Depth is only checked for positivity.
func ValidateResolution(r Resolution, dims int) error {
	if r.Width <= 0 || r.Height <= 0 {
		return Configf("resolution %dx%d must be positive", r.Width, r.Height)
	}
	if r.Width%ThreadsPerGroup != 0 || r.Height%ThreadsPerGroup != 0 {
		return Configf("resolution %dx%d not divisible by %d threads per group", r.Width, r.Height, ThreadsPerGroup)
	}
	if dims == 3 && r.Depth <= 0 {
		return Configf("depth %d must be positive", r.Depth)
	}
	return nil
}

func validPhase(p string) bool {
	return p == "early" || p == "mid" || p == "late"
}

func validMapping(m string) bool {
	return m == "xy" || m == "xz" || m == "yz"
}
