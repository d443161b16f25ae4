package game

import (
	"log/slog"

	"github.com/pthm-cable/eddy/field"
	"github.com/pthm-cable/eddy/telemetry"
)

// flushTelemetry writes perf and per-field window stats when a stats window
// closes.
func (g *Game) flushTelemetry() {
	if g.statsWindowTk <= 0 || int(g.tick)%g.statsWindowTk != 0 {
		return
	}

	snapshots := make([]field.Stats, len(g.controllers))
	for i, c := range g.controllers {
		snapshots[i] = c.Stats()
	}
	records := g.fieldWindow.Flush(g.tick, snapshots)
	perfStats := g.perfCollector.Stats()

	// Log stats if enabled (console output)
	if g.logStats {
		slog.Info("perf", "tick", g.tick, "stats", perfStats)
		for _, r := range records {
			slog.Info("field", "tick", g.tick, "id", r.Field, "stats", r)
		}
		slog.Info("device",
			"tick", g.tick,
			"stats", g.dev.Stats(),
			"active_emitters", g.activeEmitters,
			"lookup_misses", g.dir.Misses(),
		)
	}

	// Write to CSV if output manager is enabled
	if err := g.outputManager.WritePerf(perfStats, g.tick); err != nil {
		slog.Error("failed to write perf", "error", err)
	}
	if err := g.outputManager.WriteFields(records); err != nil {
		slog.Error("failed to write fields", "error", err)
	}
}

// createSnapshot captures every controller and standalone solver.
func (g *Game) createSnapshot() *telemetry.Snapshot {
	snapshot := &telemetry.Snapshot{
		Version: telemetry.SnapshotVersion,
		Tick:    g.tick,
	}
	for _, c := range g.controllers {
		snapshot.Fields = append(snapshot.Fields, telemetry.SnapshotField(c))
	}
	for _, d := range g.solvers {
		if ts := telemetry.SnapshotTexture(d.Texture()); ts != nil {
			snapshot.Solvers = append(snapshot.Solvers, *ts)
		}
	}
	return snapshot
}

// saveSnapshot creates and saves a snapshot to disk.
func (g *Game) saveSnapshot() {
	path, err := telemetry.SaveSnapshot(g.createSnapshot(), g.snapshotDir)
	if err != nil {
		slog.Error("failed to save snapshot", "error", err)
		return
	}

	slog.Info("snapshot saved", "path", path, "tick", g.tick)
}
