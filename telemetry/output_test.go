package telemetry

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/pthm-cable/eddy/config"
	"github.com/pthm-cable/eddy/field"
)

func init() {
	config.MustInit("")
}

func TestFieldWindowDeltas(t *testing.T) {
	w := NewFieldWindow()

	w.Observe(field.Stats{ID: "fluidA", Members: 3})
	w.Observe(field.Stats{ID: "fluidA", Members: 1})
	first := w.Flush(100, []field.Stats{
		{ID: "fluidA", State: field.StateActive, Members: 1, Capacity: 1, Ticks: 100, Syncs: 104, Reallocations: 4},
	})
	if len(first) != 1 {
		t.Fatalf("got %d records", len(first))
	}
	if r := first[0]; r.PeakMembers != 3 || r.Ticks != 100 || r.Syncs != 104 || r.State != "active" {
		t.Errorf("first window = %+v", r)
	}

	second := w.Flush(200, []field.Stats{
		{ID: "fluidA", State: field.StateActive, Members: 2, Capacity: 2, Ticks: 200, Syncs: 205, Reallocations: 5},
	})
	if r := second[0]; r.Ticks != 100 || r.Syncs != 101 || r.Reallocations != 1 || r.PeakMembers != 2 {
		t.Errorf("second window = %+v", r)
	}
}

func TestOutputManagerDisabled(t *testing.T) {
	om, err := NewOutputManager("")
	if err != nil || om != nil {
		t.Fatalf("NewOutputManager(\"\") = %v, %v", om, err)
	}
	// Nil manager methods are no-ops
	if err := om.WritePerf(PerfStats{}, 1); err != nil {
		t.Error(err)
	}
	if err := om.WriteFields([]FieldStatsCSV{{Field: "x"}}); err != nil {
		t.Error(err)
	}
	if err := om.Close(); err != nil {
		t.Error(err)
	}
}

func TestOutputManagerWritesCSV(t *testing.T) {
	dir := t.TempDir()
	om, err := NewOutputManager(dir)
	if err != nil {
		t.Fatalf("NewOutputManager: %v", err)
	}

	stats := PerfStats{AvgTickDuration: time.Millisecond, PhasePct: map[string]float64{}}
	for _, end := range []int32{60, 120} {
		if err := om.WritePerf(stats, end); err != nil {
			t.Fatal(err)
		}
		if err := om.WriteFields([]FieldStatsCSV{{WindowEnd: end, Field: "fluidA", State: "active"}}); err != nil {
			t.Fatal(err)
		}
	}
	if err := om.WriteConfig(config.Cfg()); err != nil {
		t.Fatal(err)
	}
	if err := om.Close(); err != nil {
		t.Fatal(err)
	}

	for _, name := range []string{"perf.csv", "fields.csv"} {
		data, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil {
			t.Fatal(err)
		}
		lines := strings.Split(strings.TrimSpace(string(data)), "\n")
		if len(lines) != 3 {
			t.Errorf("%s: %d lines, want header + 2 rows", name, len(lines))
		}
		if !strings.HasPrefix(lines[0], "window_end,") {
			t.Errorf("%s header = %q", name, lines[0])
		}
	}
	if _, err := os.Stat(filepath.Join(dir, "config.yaml")); err != nil {
		t.Errorf("config.yaml not written: %v", err)
	}
}
