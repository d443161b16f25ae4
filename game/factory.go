package game

import (
	"fmt"
	"log/slog"

	"github.com/mlange-42/ark/ecs"
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/pthm-cable/eddy/components"
	"github.com/pthm-cable/eddy/config"
	"github.com/pthm-cable/eddy/field"
	"github.com/pthm-cable/eddy/projection"
	"github.com/pthm-cable/eddy/solver"
	"github.com/pthm-cable/eddy/systems"
)

// buildFields creates one controller per field entry and registers it.
// A field with solver params owns a double-buffered solver; any other
// field is an emitter texture.
func (g *Game) buildFields(cfg *config.Config) error {
	velocityFrom := make(map[string]string)

	for _, fc := range cfg.Fields {
		opts, err := field.OptionsFromConfig(fc)
		if err != nil {
			return fmt.Errorf("field %q: %w", fc.ID, err)
		}

		var sim field.Simulation
		if fc.Solver != nil {
			d, err := solver.New(g.dev, solver.ConfigFromField(fc))
			if err != nil {
				return err
			}
			sim = d
		} else {
			t, err := solver.NewEmitterTexture(g.dev, solver.TextureConfigFromField(fc, opts.Schema, cfg.Derived.DT32))
			if err != nil {
				return err
			}
			g.textures[fc.ID] = t
			if fc.VelocityFrom != "" {
				velocityFrom[fc.ID] = fc.VelocityFrom
			}
			sim = t
		}

		c := field.NewController(g.dev, g.src, sim, opts)
		g.controllers = append(g.controllers, c)
		g.byPhase[opts.Phase] = append(g.byPhase[opts.Phase], c)
		g.dir.Register(c)
	}

	// Velocity sources resolve after every controller exists so a field
	// may advect through one declared later.
	for id, from := range velocityFrom {
		src, ok := g.dir.Lookup(from)
		if !ok {
			return config.Configf("field %q: velocity_from %q names no field", id, from)
		}
		if src.Schema().Role != field.RoleForce {
			return config.Configf("field %q: velocity_from %q is not a force field", id, from)
		}
		g.textures[id].SetVelocitySource(src.Texture)
	}
	return nil
}

// buildSolvers creates the standalone solvers. They initialize on their
// first update.
func (g *Game) buildSolvers(cfg *config.Config) error {
	for _, sc := range cfg.Solvers {
		d, err := solver.New(g.dev, solver.ConfigFromSolver(sc))
		if err != nil {
			return err
		}
		g.solvers = append(g.solvers, d)
	}
	return nil
}

// spawnEmitters creates one inactive entity per emitter entry. Emitters
// join their fields when their lifetime window opens.
func (g *Game) spawnEmitters(cfg *config.Config) error {
	for i, ec := range cfg.Emitters {
		if _, err := g.spawnEmitter(ec, cfg.Derived.EmitterColors[i]); err != nil {
			return fmt.Errorf("emitter %q: %w", ec.Name, err)
		}
	}
	return nil
}

// spawnEmitter creates an emitter entity from its config entry.
func (g *Game) spawnEmitter(ec config.EmitterConfig, color [4]float32) (ecs.Entity, error) {
	settings, err := projection.FromConfig(ec)
	if err != nil {
		return ecs.Entity{}, err
	}
	shape, err := components.ParseShape(ec.Shape)
	if err != nil {
		return ecs.Entity{}, config.Configf("%v", err)
	}

	tr := components.Transform{
		Position: vec(ec.Position),
		Forward:  vec(ec.Forward),
	}
	em := components.FluidEmitter{
		Name:        ec.Name,
		Shape:       shape,
		Force:       float32(ec.Force),
		ForceRadius: float32(ec.ForceRadius),
		Color:       color,
		Intensity:   float32(ec.Intensity),
		ColorRadius: float32(ec.ColorRadius),
		FluidKey:    ec.FluidField,
		ColorKey:    ec.ColorField,
		Projection:  settings,
	}
	st := components.SimState{Dims: settings.Dims}
	life := components.Lifetime{EnableAt: ec.EnableAt, DisableAt: ec.DisableAt}

	var orb *components.Orbit
	if ec.Orbit != nil {
		plane, err := projection.ParseMapping(ec.Orbit.Plane)
		if err != nil {
			return ecs.Entity{}, err
		}
		orb = &components.Orbit{
			Center: vec(ec.Orbit.Center),
			Radius: ec.Orbit.Radius,
			Speed:  ec.Orbit.Speed,
			Phase:  ec.Orbit.Phase,
			Plane:  plane,
		}
		// Start on the path rather than at the configured position
		systems.Place(orb, &tr)
	}

	entity := g.emitterMapper.NewEntity(&tr, &em, &st, &life)
	if orb != nil {
		g.orbitMap.Add(entity, orb)
	}

	slog.Debug("emitter_spawned",
		"name", ec.Name,
		"entity", entity.ID(),
		"fluid", ec.FluidField,
		"color", ec.ColorField,
		"enable_at", ec.EnableAt,
		"disable_at", ec.DisableAt,
	)
	return entity, nil
}

func vec(a [3]float64) r3.Vec {
	return r3.Vec{X: a[0], Y: a[1], Z: a[2]}
}
