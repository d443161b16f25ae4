package game

import (
	"log/slog"

	"github.com/pthm-cable/eddy/config"
	"github.com/pthm-cable/eddy/field"
	"github.com/pthm-cable/eddy/telemetry"
)

var phaseNames = map[field.Phase]string{
	field.PhaseEarly: telemetry.PhaseFieldsEarly,
	field.PhaseMid:   telemetry.PhaseFieldsMid,
	field.PhaseLate:  telemetry.PhaseFieldsLate,
}

// simulationStep runs a single tick of the scene.
//
// Emitters are projected before any controller runs, so every sync in the
// tick packs state from this tick.
func (g *Game) simulationStep() error {
	cfg := config.Cfg()
	now := float32(float64(g.tick) * cfg.Sim.DT)

	g.perfCollector.StartTick()

	// 1. Lifetime windows
	g.perfCollector.StartPhase(telemetry.PhaseLifetime)
	g.updateLifetimes()

	// 2. Scripted motion
	g.perfCollector.StartPhase(telemetry.PhaseOrbit)
	g.orbit.Update(g.world, cfg.Sim.DT)

	// 3. World to field space
	g.perfCollector.StartPhase(telemetry.PhaseProjection)
	g.projection.Update(g.world)

	// 4. Field controllers, phase by phase
	for _, phase := range field.Phases {
		g.perfCollector.StartPhase(phaseNames[phase])
		for _, c := range g.byPhase[phase] {
			if !g.fieldEnabled(c) {
				continue
			}
			if err := c.Tick(now); err != nil && c.State() != field.StateFailed {
				slog.Warn("field_tick_failed", "field", c.ID(), "tick", g.tick, "error", err)
			}
		}
	}

	// 5. Standalone solvers
	g.perfCollector.StartPhase(telemetry.PhaseSolvers)
	for _, d := range g.solvers {
		if err := d.Update(now); err != nil {
			g.perfCollector.EndTick()
			return err
		}
	}

	// 6. Telemetry
	g.perfCollector.StartPhase(telemetry.PhaseTelemetry)
	for _, c := range g.controllers {
		g.fieldWindow.Observe(c.Stats())
	}

	g.perfCollector.EndTick()
	g.tick++

	g.flushTelemetry()
	return nil
}
