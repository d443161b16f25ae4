package telemetry

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/mlange-42/ark/ecs"

	"github.com/pthm-cable/eddy/components"
	"github.com/pthm-cable/eddy/field"
	"github.com/pthm-cable/eddy/gpu"
	"github.com/pthm-cable/eddy/solver"
)

func newSnapshotController(t *testing.T) (*field.Controller, ecs.Entity) {
	t.Helper()
	w := ecs.NewWorld()
	mapper := ecs.NewMap2[components.FluidEmitter, components.SimState](w)

	dev := gpu.NewCPUDevice(gpu.CPUOptions{Workers: 1})
	t.Cleanup(dev.Close)

	tex, err := solver.NewEmitterTexture(dev, solver.TextureConfig{
		ID:          "fluid",
		Schema:      field.Force2D,
		Width:       8,
		Height:      8,
		DT:          0.1,
		Dissipation: 1,
	})
	if err != nil {
		t.Fatal(err)
	}
	c := field.NewController(dev, field.NewWorldSource(w), tex, field.Options{
		ID:             "fluid",
		UpdatesPerTick: 1,
		Schema:         field.Force2D,
	})

	em := components.FluidEmitter{Name: "jet", Force: 2, ForceRadius: 0.25}
	st := components.SimState{Position: [3]float32{0.5, 0.25, 0}, Direction: [3]float32{1, 0, 0}, Dims: 2}
	e := mapper.NewEntity(&em, &st)
	if err := c.AddEmitter(e); err != nil {
		t.Fatal(err)
	}
	if err := c.Tick(0); err != nil {
		t.Fatal(err)
	}
	return c, e
}

func TestSnapshotField(t *testing.T) {
	c, e := newSnapshotController(t)

	fs := SnapshotField(c)
	if fs.ID != "fluid" || fs.State != "active" || fs.Capacity != 1 {
		t.Errorf("header = %+v", fs)
	}
	if len(fs.Members) != 1 || fs.Members[0].Entity != e.ID() {
		t.Fatalf("members = %+v", fs.Members)
	}
	rec := fs.Members[0].Record
	if rec.Pos[0] != 0.5 || rec.Pos[1] != 0.25 || rec.Force != 2 {
		t.Errorf("record = %+v", rec)
	}
	if fs.Texture == nil || len(fs.Texture.Texels) != 8*8*gpu.Channels {
		t.Fatalf("texture = %+v", fs.Texture)
	}

	// Released controllers have no texture and no packed records
	c.Shutdown()
	fs = SnapshotField(c)
	if fs.Texture != nil {
		t.Error("released controller still has a texture snapshot")
	}
	if len(fs.Members) != 1 || fs.Members[0].Record.Force != 0 {
		t.Errorf("released members = %+v", fs.Members)
	}
}

func TestSnapshotSaveLoad(t *testing.T) {
	tmpDir := t.TempDir()
	c, _ := newSnapshotController(t)

	snapshot := &Snapshot{
		Version: SnapshotVersion,
		Tick:    1000,
		Fields:  []FieldSnapshot{SnapshotField(c)},
	}

	path, err := SaveSnapshot(snapshot, tmpDir)
	if err != nil {
		t.Fatalf("SaveSnapshot failed: %v", err)
	}
	if filepath.Base(path) != "snapshot_1000.json" {
		t.Errorf("unexpected filename %s", filepath.Base(path))
	}

	// Verify file is valid JSON
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		t.Fatalf("snapshot is not valid JSON: %v", err)
	}

	loaded, err := LoadSnapshot(path)
	if err != nil {
		t.Fatalf("LoadSnapshot failed: %v", err)
	}
	if loaded.Version != SnapshotVersion || loaded.Tick != 1000 {
		t.Errorf("header mismatch: %+v", loaded)
	}
	if len(loaded.Fields) != 1 {
		t.Fatalf("fields = %d", len(loaded.Fields))
	}
	got, want := loaded.Fields[0], snapshot.Fields[0]
	if got.Members[0].Record != want.Members[0].Record {
		t.Errorf("record mismatch: got %+v, want %+v", got.Members[0].Record, want.Members[0].Record)
	}
	if len(got.Texture.Texels) != len(want.Texture.Texels) {
		t.Errorf("texel count mismatch")
	}
}

func TestLoadSnapshotMissing(t *testing.T) {
	if _, err := LoadSnapshot(filepath.Join(t.TempDir(), "nope.json")); err == nil {
		t.Error("expected error for missing file")
	}
}
