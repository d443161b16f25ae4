package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.Derived.DT32 <= 0 {
		t.Errorf("DT32 = %v", cfg.Derived.DT32)
	}
	if want := int(cfg.Telemetry.StatsWindow/cfg.Sim.DT + 0.5); cfg.Derived.StatsWindowTk != want {
		t.Errorf("StatsWindowTk = %d, want %d", cfg.Derived.StatsWindowTk, want)
	}
	if len(cfg.Derived.EmitterColors) != len(cfg.Emitters) {
		t.Fatalf("EmitterColors has %d entries for %d emitters", len(cfg.Derived.EmitterColors), len(cfg.Emitters))
	}

	fc, ok := cfg.Field("colorA")
	if !ok {
		t.Fatal("colorA missing from defaults")
	}
	if fc.VelocityFrom != "fluidA" || fc.Role != "color" {
		t.Errorf("colorA = %+v", fc)
	}
	if _, ok := cfg.Field("missing"); ok {
		t.Error("Field returned an undeclared id")
	}
}

func TestApplyDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatal(err)
	}
	// stray omits most optional fields
	var stray EmitterConfig
	for _, e := range cfg.Emitters {
		if e.Name == "stray" {
			stray = e
		}
	}
	if stray.Dims != 2 || stray.Mapping.Mode != "xy" || stray.Mapping.DirectionSource != "forward" {
		t.Errorf("stray defaults not applied: %+v", stray)
	}
	if stray.Mapping.Size != [3]float64{1, 1, 1} {
		t.Errorf("stray mapping size = %v", stray.Mapping.Size)
	}

	vortex, _ := cfg.Field("vortexB")
	if vortex.Solver == nil || vortex.Solver.Dissipation != 0.995 {
		t.Errorf("vortexB solver = %+v", vortex.Solver)
	}
	if vortex.Resolution.Depth != 1 {
		t.Errorf("vortexB depth = %d, want 1", vortex.Resolution.Depth)
	}
}

func TestHueOverridesColor(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatal(err)
	}
	for i, e := range cfg.Emitters {
		if e.Name != "swirl" {
			continue
		}
		c := cfg.Derived.EmitterColors[i]
		// hue 30 is orange: full red, half green, no blue
		if c[0] != 1 || c[2] != 0 || c[1] < 0.45 || c[1] > 0.55 || c[3] != 1 {
			t.Errorf("swirl color = %v", c)
		}
		return
	}
	t.Fatal("swirl missing from defaults")
}

func TestParseOverlay(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatal(err)
	}
	overlay := []byte(`
sim:
  dt: 0.02
fields:
  - id: only
    resolution: {width: 16, height: 8}
emitters: []
`)
	if err := Parse(overlay, cfg); err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if err := cfg.Finalize(); err != nil {
		t.Fatalf("Finalize: %v", err)
	}

	if cfg.Sim.DT != 0.02 {
		t.Errorf("dt = %v", cfg.Sim.DT)
	}
	if len(cfg.Fields) != 1 || cfg.Fields[0].ID != "only" {
		t.Fatalf("fields not replaced: %+v", cfg.Fields)
	}
	f := cfg.Fields[0]
	if f.Role != "force" || f.Dims != 2 || f.Phase != "mid" || f.Dissipation != 0.99 {
		t.Errorf("field defaults = %+v", f)
	}
	if len(cfg.Solvers) != 1 {
		t.Errorf("solvers should keep defaults, got %d", len(cfg.Solvers))
	}
}

func TestValidateErrors(t *testing.T) {
	tests := []struct {
		name    string
		overlay string
		want    string
	}{
		{"zero dt", "sim: {dt: 0}", "sim.dt"},
		{"bad role", "fields: [{id: f, role: heat, resolution: {width: 8, height: 8}}]", "role"},
		{"bad dims", "fields: [{id: f, dims: 4, resolution: {width: 8, height: 8}}]", "dims"},
		{"indivisible resolution", "fields: [{id: f, resolution: {width: 10, height: 8}}]", "divisible"},
		{"too many updates", "fields: [{id: f, updates_per_tick: 11, resolution: {width: 8, height: 8}}]", "updates_per_tick"},
		{"bad phase", "fields: [{id: f, phase: never, resolution: {width: 8, height: 8}}]", "phase"},
		{"3d solver", "fields: [{id: f, dims: 3, resolution: {width: 8, height: 8, depth: 8}, solver: {dt: 0.1, vorticity: 0.1}}]", "solver-backed"},
		{"vorticity low", "solvers: [{id: s, resolution: {width: 8, height: 8}, dt: 0.1, vorticity: 0.01}]", "vorticity"},
		{"bad shape", "emitters: [{name: e, shape: square}]", "shape"},
		{"zero mapping axis", "emitters: [{name: e, mapping: {size: [1, 0, 1]}}]", "size axis 1"},
		{"disable before enable", "emitters: [{name: e, enable_at: 10, disable_at: 5}]", "disable_at"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "config.yaml")
			if err := os.WriteFile(path, []byte(tt.overlay), 0644); err != nil {
				t.Fatal(err)
			}
			_, err := Load(path)
			if err == nil {
				t.Fatal("expected error")
			}
			if !errors.Is(err, ErrConfiguration) {
				t.Errorf("error does not wrap ErrConfiguration: %v", err)
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("error %q does not mention %q", err, tt.want)
			}
		})
	}
}

func TestWriteYAMLRoundTrip(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatal(err)
	}
	path := filepath.Join(t.TempDir(), "out.yaml")
	if err := cfg.WriteYAML(path); err != nil {
		t.Fatal(err)
	}
	again, err := Load(path)
	if err != nil {
		t.Fatalf("reloading written config: %v", err)
	}
	if len(again.Fields) != len(cfg.Fields) || len(again.Emitters) != len(cfg.Emitters) {
		t.Errorf("round trip changed list sizes")
	}
}
