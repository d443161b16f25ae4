package game

import (
	"log/slog"
	"slices"

	"github.com/mlange-42/ark/ecs"

	"github.com/pthm-cable/eddy/field"
	"github.com/pthm-cable/eddy/systems"
)

// updateLifetimes activates and deactivates emitters whose lifetime window
// opens or closes at the current tick.
func (g *Game) updateLifetimes() {
	// First pass: collect transitions (must complete before modifying)
	var toEnable, toDisable []ecs.Entity

	query := g.emitterFilter.Query()
	for query.Next() {
		_, _, _, life := query.Get()
		want := life.ShouldBeActive(int(g.tick))
		if want == life.Active {
			continue
		}
		if want {
			toEnable = append(toEnable, query.Entity())
		} else {
			toDisable = append(toDisable, query.Entity())
		}
	}

	// Second pass: join or leave fields (query iteration complete)
	for _, e := range toDisable {
		g.deactivateEmitter(e)
	}
	for _, e := range toEnable {
		g.activateEmitter(e)
	}
}

// activateEmitter projects e so its first packed record is current, then
// adds it to its fluid and color fields. A missing field leaves that role
// unbound.
func (g *Game) activateEmitter(e ecs.Entity) {
	tr, em, st, life := g.emitterMapper.Get(e)
	systems.Project(tr, em, st)
	life.Active = true
	g.activeEmitters++

	var joined []*field.Controller
	for _, key := range []string{em.FluidKey, em.ColorKey} {
		c, err := g.dir.AddEmitter(e, key)
		if err != nil {
			slog.Error("emitter_join_failed", "emitter", em.Name, "field", key, "error", err)
			continue
		}
		if c != nil && !slices.Contains(joined, c) {
			joined = append(joined, c)
		}
	}
	g.bindings[e] = joined

	slog.Info("emitter_enabled", "emitter", em.Name, "tick", g.tick, "fields", len(joined))
}

// deactivateEmitter removes e from every field it joined.
func (g *Game) deactivateEmitter(e ecs.Entity) {
	_, em, st, life := g.emitterMapper.Get(e)
	life.Active = false
	st.PrevValid = false
	g.activeEmitters--

	for _, c := range g.bindings[e] {
		c.RemoveEmitter(e)
	}
	delete(g.bindings, e)

	slog.Info("emitter_disabled", "emitter", em.Name, "tick", g.tick)
}

// SetFieldEnabled enables or disables the field with the given id. A
// disabled field releases its resources and leaves the directory, so
// emitters activated meanwhile do not find it; its existing members are
// kept and it reinitializes on the next tick after enabling.
func (g *Game) SetFieldEnabled(id string, enabled bool) bool {
	idx := slices.IndexFunc(g.controllers, func(c *field.Controller) bool { return c.ID() == id })
	if idx < 0 {
		return false
	}
	c := g.controllers[idx]
	if enabled {
		g.dir.Register(c)
		return true
	}
	c.Shutdown()
	g.dir.Unregister(c)
	return true
}

// fieldEnabled reports whether c is in the directory.
func (g *Game) fieldEnabled(c *field.Controller) bool {
	return slices.Contains(g.dir.Controllers(), c)
}
