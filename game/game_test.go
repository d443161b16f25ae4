package game

import (
	"path/filepath"
	"testing"

	"github.com/pthm-cable/eddy/config"
	"github.com/pthm-cable/eddy/field"
	"github.com/pthm-cable/eddy/telemetry"
)

func init() {
	config.MustInit("")
}

func newTestGame(t *testing.T, opts Options) *Game {
	t.Helper()
	g, err := NewGameWithOptions(opts)
	if err != nil {
		t.Fatalf("NewGameWithOptions: %v", err)
	}
	t.Cleanup(g.Unload)
	return g
}

func lookup(t *testing.T, g *Game, id string) *field.Controller {
	t.Helper()
	c, ok := g.Directory().Lookup(id)
	if !ok {
		t.Fatalf("field %q not registered", id)
	}
	return c
}

func TestSceneFirstTick(t *testing.T) {
	g := newTestGame(t, Options{})

	if got := len(g.Controllers()); got != 3 {
		t.Fatalf("controllers = %d, want 3", got)
	}
	if err := g.Update(); err != nil {
		t.Fatalf("Update: %v", err)
	}
	if g.Tick() != 1 {
		t.Errorf("tick = %d, want 1", g.Tick())
	}

	tests := []struct {
		id      string
		members int
	}{
		{"fluidA", 1},  // jet; swirl opens later
		{"colorA", 1},  // jet
		{"vortexB", 1}, // stirrer
	}
	for _, tt := range tests {
		c := lookup(t, g, tt.id)
		if c.State() != field.StateActive {
			t.Errorf("%s: state = %v, want active", tt.id, c.State())
		}
		if got := len(c.Members()); got != tt.members {
			t.Errorf("%s: members = %d, want %d", tt.id, got, tt.members)
		}
		if got := c.Synchronizer().Records(); got != tt.members {
			t.Errorf("%s: packed records = %d, want %d", tt.id, got, tt.members)
		}
	}

	// stray names a field that does not exist
	if g.Directory().Misses() != 1 {
		t.Errorf("misses = %d, want 1", g.Directory().Misses())
	}
	if g.ActiveEmitters() != 3 {
		t.Errorf("active emitters = %d, want 3", g.ActiveEmitters())
	}
	for _, d := range g.Solvers() {
		if !d.Initialized() {
			t.Errorf("solver %s not initialized after first update", d.ID())
		}
	}
}

func TestSceneLifetimeWindow(t *testing.T) {
	g := newTestGame(t, Options{StepsPerUpdate: 10})
	fluid := lookup(t, g, "fluidA")

	// swirl is enabled for ticks [30, 240)
	for g.Tick() < 30 {
		if err := g.Update(); err != nil {
			t.Fatal(err)
		}
	}
	if got := len(fluid.Members()); got != 1 {
		t.Fatalf("before window: members = %d, want 1", got)
	}

	if err := g.Update(); err != nil {
		t.Fatal(err)
	}
	if got := len(fluid.Members()); got != 2 {
		t.Fatalf("inside window: members = %d, want 2", got)
	}

	for g.Tick() < 250 {
		if err := g.Update(); err != nil {
			t.Fatal(err)
		}
	}
	if got := len(fluid.Members()); got != 1 {
		t.Errorf("after window: members = %d, want 1", got)
	}
	if got := fluid.Synchronizer().Records(); got != 1 {
		t.Errorf("after window: packed records = %d, want 1", got)
	}
}

func TestSceneProjectedRecordIsCurrent(t *testing.T) {
	g := newTestGame(t, Options{})
	if err := g.Update(); err != nil {
		t.Fatal(err)
	}

	fluid := lookup(t, g, "fluidA")
	jet := fluid.Members()[0]
	_, _, st, _ := g.emitterMapper.Get(jet)

	rec := fluid.Schema().Unpack(fluid.Synchronizer().Packed())
	if rec.Pos[0] != st.Position[0] || rec.Pos[1] != st.Position[1] {
		t.Errorf("packed pos = %v, sim state = %v", rec.Pos, st.Position)
	}
}

func TestSceneFieldDisable(t *testing.T) {
	g := newTestGame(t, Options{})
	if err := g.Update(); err != nil {
		t.Fatal(err)
	}
	fluid := lookup(t, g, "fluidA")
	color := lookup(t, g, "colorA")

	if !g.SetFieldEnabled("fluidA", false) {
		t.Fatal("SetFieldEnabled returned false for a known field")
	}
	if fluid.State() != field.StateReleased || fluid.Texture() != nil {
		t.Errorf("disabled field: state %v, texture %v", fluid.State(), fluid.Texture())
	}
	if _, ok := g.Directory().Lookup("fluidA"); ok {
		t.Error("disabled field still in directory")
	}

	// colorA advects through fluidA and must keep running without it
	if err := g.Update(); err != nil {
		t.Fatal(err)
	}
	if color.State() != field.StateActive {
		t.Errorf("colorA state = %v", color.State())
	}
	if fluid.State() != field.StateReleased {
		t.Errorf("disabled field ticked: state %v", fluid.State())
	}

	g.SetFieldEnabled("fluidA", true)
	if err := g.Update(); err != nil {
		t.Fatal(err)
	}
	if fluid.State() != field.StateActive {
		t.Errorf("re-enabled field: state %v", fluid.State())
	}
	if got := len(fluid.Members()); got != 1 {
		t.Errorf("re-enabled field lost members: %d", got)
	}

	if g.SetFieldEnabled("nope", false) {
		t.Error("SetFieldEnabled accepted an unknown field")
	}
}

func TestSceneUnloadReleasesDevice(t *testing.T) {
	g, err := NewGameWithOptions(Options{})
	if err != nil {
		t.Fatal(err)
	}
	if err := g.Update(); err != nil {
		t.Fatal(err)
	}
	if g.Device().Stats().LiveBytes == 0 {
		t.Fatal("expected live device memory after a tick")
	}
	g.Unload()

	stats := g.Device().Stats()
	if stats.LiveBuffers != 0 || stats.LiveTextures != 0 || stats.LiveBytes != 0 {
		t.Errorf("leaked resources after unload: %+v", stats)
	}
}

func TestSceneWritesTelemetry(t *testing.T) {
	dir := t.TempDir()
	g := newTestGame(t, Options{OutputDir: dir, StatsWindowSec: 10 * config.Cfg().Sim.DT, StepsPerUpdate: 10})
	if err := g.Update(); err != nil {
		t.Fatal(err)
	}
	if g.outputManager.Dir() != dir {
		t.Errorf("output dir = %q", g.outputManager.Dir())
	}
	if g.statsWindowTk != 10 {
		t.Errorf("stats window = %d ticks, want 10", g.statsWindowTk)
	}
}

func TestSceneSnapshotOnUnload(t *testing.T) {
	dir := t.TempDir()
	g, err := NewGameWithOptions(Options{SnapshotDir: dir, StepsPerUpdate: 3})
	if err != nil {
		t.Fatal(err)
	}
	if err := g.Update(); err != nil {
		t.Fatal(err)
	}
	g.Unload()

	snap, err := telemetry.LoadSnapshot(filepath.Join(dir, "snapshot_3.json"))
	if err != nil {
		t.Fatalf("LoadSnapshot: %v", err)
	}
	if len(snap.Fields) != len(g.Controllers()) {
		t.Errorf("snapshot has %d fields, want %d", len(snap.Fields), len(g.Controllers()))
	}
	for _, fs := range snap.Fields {
		if fs.State != "active" || fs.Texture == nil {
			t.Errorf("field %s captured after release: state %s", fs.ID, fs.State)
		}
	}
	if len(snap.Solvers) != len(g.Solvers()) {
		t.Errorf("snapshot has %d solvers, want %d", len(snap.Solvers), len(g.Solvers()))
	}
}
