// Package config provides configuration loading and access for the simulation.
package config

import (
	_ "embed"
	"fmt"
	"math"
	"os"

	"github.com/crazy3lf/colorconv"
	"gopkg.in/yaml.v3"
)

//go:embed defaults.yaml
var defaultsYAML []byte

// Config holds all simulation configuration parameters.
type Config struct {
	Sim       SimConfig       `yaml:"sim"`
	Device    DeviceConfig    `yaml:"device"`
	Solvers   []SolverConfig  `yaml:"solvers"`
	Fields    []FieldConfig   `yaml:"fields"`
	Emitters  []EmitterConfig `yaml:"emitters"`
	Telemetry TelemetryConfig `yaml:"telemetry"`

	// Derived values computed after loading
	Derived DerivedConfig `yaml:"-"`
}

// SimConfig holds the tick clock.
type SimConfig struct {
	DT float64 `yaml:"dt"` // seconds of scene time per tick
}

// DeviceConfig holds CPU compute backend parameters.
type DeviceConfig struct {
	Workers           int `yaml:"workers"`            // 0 = GOMAXPROCS
	ParallelThreshold int `yaml:"parallel_threshold"` // min workgroups before fanning out
}

// Resolution is a field size in texels. Depth 0 is treated as 1.
type Resolution struct {
	Width  int `yaml:"width"`
	Height int `yaml:"height"`
	Depth  int `yaml:"depth"`
}

// SolverParams holds the numeric constants of the double-buffered solver.
// They are used as given; the solver does no stability clamping.
type SolverParams struct {
	DT          float64 `yaml:"dt"`
	Vorticity   float64 `yaml:"vorticity"`   // confinement strength, [0.03, 0.2]
	Dissipation float64 `yaml:"dissipation"` // per-step velocity retention, (0, 1]
	Seed        int64   `yaml:"seed"`
	NoiseScale  float64 `yaml:"noise_scale"` // initial velocity noise frequency (0 = still fluid)
}

// SolverConfig describes a standalone solver that is not bound to a field controller.
type SolverConfig struct {
	ID              string       `yaml:"id"`
	Resolution      Resolution   `yaml:"resolution"`
	UpdatesPerFrame int          `yaml:"updates_per_frame"`
	Params          SolverParams `yaml:",inline"`
	Debug           SolverDebug  `yaml:"debug"`
}

// SolverDebug holds operator triggers for a solver.
type SolverDebug struct {
	Step bool `yaml:"step"` // one extra fluid step on the first frame
}

// FieldConfig describes one named field controller.
type FieldConfig struct {
	ID             string        `yaml:"id"`
	Role           string        `yaml:"role"` // force | color
	Dims           int           `yaml:"dims"` // 2 | 3
	Resolution     Resolution    `yaml:"resolution"`
	Phase          string        `yaml:"phase"` // early | mid | late
	UpdatesPerTick int           `yaml:"updates_per_tick"`
	Dissipation    float64       `yaml:"dissipation"`
	VelocityFrom   string        `yaml:"velocity_from"` // color fields: advect through this field
	VelocityScale  float64       `yaml:"velocity_scale"`
	Solver         *SolverParams `yaml:"solver"` // non-nil: the controller owns a double-buffered solver
	Debug          FieldDebug    `yaml:"debug"`
}

// FieldDebug holds operator triggers for a field controller.
type FieldDebug struct {
	Reinitialize bool `yaml:"reinitialize"`
	ShowLogs     bool `yaml:"show_logs"`
}

// MappingConfig configures how an emitter's world transform maps into field space.
type MappingConfig struct {
	Mode               string     `yaml:"mode"`                // xy | xz | yz (2D only)
	Size               [3]float64 `yaml:"size"`                // field area size in world units
	Centered           bool       `yaml:"centered"`            // field area is centered on the world origin
	NormalizeDirection bool       `yaml:"normalize_direction"` // unit-length direction
	DirectionSource    string     `yaml:"direction_source"`    // forward | velocity
}

// OrbitConfig scripts a circular path for an emitter.
type OrbitConfig struct {
	Center [3]float64 `yaml:"center"`
	Radius float64    `yaml:"radius"`
	Speed  float64    `yaml:"speed"` // radians per second
	Plane  string     `yaml:"plane"` // xy | xz | yz
	Phase  float64    `yaml:"phase"` // starting angle in radians
}

// EmitterConfig describes one emitter scene object.
type EmitterConfig struct {
	Name       string        `yaml:"name"`
	FluidField string        `yaml:"fluid_field"`
	ColorField string        `yaml:"color_field"`
	Shape      string        `yaml:"shape"` // directional | circular
	Dims       int           `yaml:"dims"`
	Mapping    MappingConfig `yaml:"mapping"`

	Force       float64 `yaml:"force"`
	ForceRadius float64 `yaml:"force_radius"` // radius (2D) or falloff power (3D)

	Color       []float64 `yaml:"color"` // rgba in [0,1]
	Hue         *float64  `yaml:"hue"`   // degrees; overrides Color rgb when set
	Intensity   float64   `yaml:"intensity"`
	ColorRadius float64   `yaml:"color_radius"` // radius (2D) or falloff power (3D)

	Position [3]float64   `yaml:"position"`
	Forward  [3]float64   `yaml:"forward"`
	Orbit    *OrbitConfig `yaml:"orbit"`

	EnableAt  int `yaml:"enable_at"`  // tick of first activation
	DisableAt int `yaml:"disable_at"` // tick of deactivation (0 = never)
}

// TelemetryConfig holds stats window parameters.
type TelemetryConfig struct {
	StatsWindow float64 `yaml:"stats_window"` // seconds
	PerfWindow  int     `yaml:"perf_window"`  // ticks
}

// DerivedConfig holds computed values derived from the loaded config.
type DerivedConfig struct {
	DT32          float32        // Sim.DT as float32
	StatsWindowTk int            // Telemetry.StatsWindow in ticks
	FieldIndex    map[string]int // id -> first index into Fields
	EmitterColors [][4]float32   // resolved rgba per emitter
}

// global holds the loaded configuration.
var global *Config

// Init loads configuration from the given path, or uses embedded defaults if path is empty.
// Must be called before Cfg().
func Init(path string) error {
	cfg, err := Load(path)
	if err != nil {
		return err
	}
	global = cfg
	return nil
}

// MustInit is like Init but panics on error.
func MustInit(path string) {
	if err := Init(path); err != nil {
		panic(fmt.Sprintf("config: failed to initialize: %v", err))
	}
}

// Cfg returns the global configuration. Panics if Init was not called.
func Cfg() *Config {
	if global == nil {
		panic("config: Cfg() called before Init()")
	}
	return global
}

// Load loads configuration from a YAML file, merging with embedded defaults.
// If path is empty, only embedded defaults are used.
func Load(path string) (*Config, error) {
	cfg := &Config{}
	if err := yaml.Unmarshal(defaultsYAML, cfg); err != nil {
		return nil, fmt.Errorf("parsing embedded defaults: %w", err)
	}

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		if err := Parse(data, cfg); err != nil {
			return nil, err
		}
	}

	if err := cfg.Finalize(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Parse overlays YAML data onto cfg. Scalar fields present in data overwrite
// cfg; lists present in data replace the defaults wholesale.
func Parse(data []byte, cfg *Config) error {
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parsing config file: %w", err)
	}
	return nil
}

// Finalize applies per-entry defaults, validates, and computes derived values.
func (c *Config) Finalize() error {
	c.applyDefaults()
	if err := c.Validate(); err != nil {
		return err
	}
	return c.computeDerived()
}

// applyDefaults fills zero-valued optional fields of list entries.
func (c *Config) applyDefaults() {
	if c.Device.ParallelThreshold <= 0 {
		c.Device.ParallelThreshold = 16
	}
	for i := range c.Solvers {
		s := &c.Solvers[i]
		if s.Resolution.Depth == 0 {
			s.Resolution.Depth = 1
		}
		s.Params.applyDefaults()
	}
	for i := range c.Fields {
		f := &c.Fields[i]
		if f.Role == "" {
			f.Role = "force"
		}
		if f.Dims == 0 {
			f.Dims = 2
		}
		if f.Phase == "" {
			f.Phase = "mid"
		}
		if f.Resolution.Depth == 0 {
			f.Resolution.Depth = 1
		}
		if f.Dissipation == 0 {
			f.Dissipation = 0.99
		}
		if f.VelocityScale == 0 {
			f.VelocityScale = 1
		}
		if f.Solver != nil {
			f.Solver.applyDefaults()
		}
	}
	for i := range c.Emitters {
		e := &c.Emitters[i]
		if e.Dims == 0 {
			e.Dims = 2
		}
		if e.Shape == "" {
			e.Shape = "directional"
		}
		if e.Mapping.Mode == "" {
			e.Mapping.Mode = "xy"
		}
		if e.Mapping.DirectionSource == "" {
			e.Mapping.DirectionSource = "forward"
		}
		if e.Mapping.Size == [3]float64{} {
			e.Mapping.Size = [3]float64{1, 1, 1}
		}
		if e.Forward == [3]float64{} {
			e.Forward = [3]float64{0, 0, 1}
		}
		if len(e.Color) == 0 {
			e.Color = []float64{1, 1, 1, 1}
		}
		if e.Orbit != nil && e.Orbit.Plane == "" {
			e.Orbit.Plane = e.Mapping.Mode
		}
	}
}

func (p *SolverParams) applyDefaults() {
	if p.Dissipation == 0 {
		p.Dissipation = 0.999
	}
}

// computeDerived calculates values derived from loaded config.
func (c *Config) computeDerived() error {
	c.Derived.DT32 = float32(c.Sim.DT)

	c.Derived.StatsWindowTk = 0
	if c.Sim.DT > 0 && c.Telemetry.StatsWindow > 0 {
		c.Derived.StatsWindowTk = int(c.Telemetry.StatsWindow/c.Sim.DT + 0.5)
	}

	// First match wins, mirroring controller lookup
	c.Derived.FieldIndex = make(map[string]int, len(c.Fields))
	for i, f := range c.Fields {
		if _, ok := c.Derived.FieldIndex[f.ID]; !ok {
			c.Derived.FieldIndex[f.ID] = i
		}
	}

	c.Derived.EmitterColors = make([][4]float32, len(c.Emitters))
	for i, e := range c.Emitters {
		rgba, err := resolveColor(e)
		if err != nil {
			return fmt.Errorf("emitter %q: %w", e.Name, err)
		}
		c.Derived.EmitterColors[i] = rgba
	}
	return nil
}

// resolveColor returns the emitter's rgba, converting Hue through HSV when set.
func resolveColor(e EmitterConfig) ([4]float32, error) {
	var rgba [4]float32
	for i := 0; i < 4 && i < len(e.Color); i++ {
		rgba[i] = float32(e.Color[i])
	}
	if len(e.Color) < 4 {
		rgba[3] = 1
	}
	if e.Hue != nil {
		hue := math.Mod(*e.Hue, 360)
		if hue < 0 {
			hue += 360
		}
		r, g, b, err := colorconv.HSVToRGB(hue, 1, 1)
		if err != nil {
			return rgba, fmt.Errorf("converting hue %.1f: %w", *e.Hue, err)
		}
		rgba[0] = float32(r) / 255
		rgba[1] = float32(g) / 255
		rgba[2] = float32(b) / 255
	}
	return rgba, nil
}

// Field returns the first field with the given id.
func (c *Config) Field(id string) (FieldConfig, bool) {
	i, ok := c.Derived.FieldIndex[id]
	if !ok {
		return FieldConfig{}, false
	}
	return c.Fields[i], true
}

// WriteYAML writes the configuration to a YAML file.
func (c *Config) WriteYAML(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}
	return nil
}
