// Package game runs the headless scene: emitters moving through the world,
// the field controllers they feed and the standalone solvers, ticked in a
// fixed phase order.
package game

import (
	"fmt"
	"log/slog"

	"github.com/mlange-42/ark/ecs"

	"github.com/pthm-cable/eddy/components"
	"github.com/pthm-cable/eddy/config"
	"github.com/pthm-cable/eddy/field"
	"github.com/pthm-cable/eddy/gpu"
	"github.com/pthm-cable/eddy/solver"
	"github.com/pthm-cable/eddy/systems"
	"github.com/pthm-cable/eddy/telemetry"
)

// Options configures a game instance.
type Options struct {
	LogStats       bool    // log perf and field stats at each window flush
	StatsWindowSec float64 // 0 = use config
	OutputDir      string  // empty = no CSV output
	SnapshotDir    string  // empty = no field snapshot on unload
	StepsPerUpdate int     // ticks per Update call
}

// Game holds the complete scene state.
type Game struct {
	world *ecs.World
	dev   *gpu.CPUDevice

	// Field controllers in config order, plus the live lookup
	dir         *field.Directory
	src         *field.WorldSource
	controllers []*field.Controller
	byPhase     map[field.Phase][]*field.Controller
	textures    map[string]*solver.EmitterTexture

	// Standalone solvers
	solvers []*solver.Driver

	// Entity mappers
	emitterMapper *ecs.Map4[
		components.Transform,
		components.FluidEmitter,
		components.SimState,
		components.Lifetime,
	]
	emitterFilter *ecs.Filter4[
		components.Transform,
		components.FluidEmitter,
		components.SimState,
		components.Lifetime,
	]
	orbitMap *ecs.Map[components.Orbit]

	// Controllers each emitter joined on activation
	bindings map[ecs.Entity][]*field.Controller

	// Systems
	systemRegistry *systems.SystemRegistry
	orbit          *systems.OrbitSystem
	projection     *systems.ProjectionSystem

	// Telemetry
	perfCollector *telemetry.PerfCollector
	fieldWindow   *telemetry.FieldWindow
	outputManager *telemetry.OutputManager
	statsWindowTk int
	logStats      bool
	snapshotDir   string

	// State
	tick           int32
	stepsPerUpdate int
	activeEmitters int
}

// NewGameWithOptions builds the scene from the global config. Configuration
// errors abort construction; field allocation failures do not, since
// controllers initialize lazily and fail on their own.
func NewGameWithOptions(opts Options) (*Game, error) {
	cfg := config.Cfg()
	world := ecs.NewWorld()

	g := &Game{
		world: world,
		dev: gpu.NewCPUDevice(gpu.CPUOptions{
			Workers:           cfg.Device.Workers,
			ParallelThreshold: cfg.Device.ParallelThreshold,
		}),
		dir:      field.NewDirectory(),
		src:      field.NewWorldSource(world),
		byPhase:  make(map[field.Phase][]*field.Controller),
		textures: make(map[string]*solver.EmitterTexture),
		bindings: make(map[ecs.Entity][]*field.Controller),
		emitterMapper: ecs.NewMap4[
			components.Transform,
			components.FluidEmitter,
			components.SimState,
			components.Lifetime,
		](world),
		emitterFilter: ecs.NewFilter4[
			components.Transform,
			components.FluidEmitter,
			components.SimState,
			components.Lifetime,
		](world),
		orbitMap:       ecs.NewMap[components.Orbit](world),
		systemRegistry: systems.NewSystemRegistry(),
		orbit:          systems.NewOrbitSystem(world),
		projection:     systems.NewProjectionSystem(world),
		perfCollector:  telemetry.NewPerfCollector(cfg.Telemetry.PerfWindow),
		fieldWindow:    telemetry.NewFieldWindow(),
		logStats:       opts.LogStats,
		snapshotDir:    opts.SnapshotDir,
		stepsPerUpdate: max(opts.StepsPerUpdate, 1),
	}

	g.statsWindowTk = cfg.Derived.StatsWindowTk
	if opts.StatsWindowSec > 0 {
		g.statsWindowTk = int(opts.StatsWindowSec/cfg.Sim.DT + 0.5)
	}

	if err := g.buildFields(cfg); err != nil {
		g.dev.Close()
		return nil, err
	}
	if err := g.buildSolvers(cfg); err != nil {
		g.dev.Close()
		return nil, err
	}
	if err := g.spawnEmitters(cfg); err != nil {
		g.dev.Close()
		return nil, err
	}

	om, err := telemetry.NewOutputManager(opts.OutputDir)
	if err != nil {
		g.dev.Close()
		return nil, fmt.Errorf("output: %w", err)
	}
	g.outputManager = om
	if err := om.WriteConfig(cfg); err != nil {
		slog.Error("failed to write config snapshot", "error", err)
	}

	slog.Info("scene_ready",
		"fields", len(g.controllers),
		"solvers", len(g.solvers),
		"emitters", len(cfg.Emitters),
		"stats_window_ticks", g.statsWindowTk,
		"systems", g.systemRegistry.IDs(),
	)
	return g, nil
}

// Update runs StepsPerUpdate ticks. The first error stops the batch.
func (g *Game) Update() error {
	for i := 0; i < g.stepsPerUpdate; i++ {
		if err := g.simulationStep(); err != nil {
			return err
		}
	}
	return nil
}

// Tick returns the number of completed ticks.
func (g *Game) Tick() int32 { return g.tick }

// World returns the ECS world.
func (g *Game) World() *ecs.World { return g.world }

// Device returns the compute device.
func (g *Game) Device() *gpu.CPUDevice { return g.dev }

// Directory returns the controller directory.
func (g *Game) Directory() *field.Directory { return g.dir }

// Controllers returns every field controller in config order, including
// disabled ones.
func (g *Game) Controllers() []*field.Controller { return g.controllers }

// Solvers returns the standalone solvers.
func (g *Game) Solvers() []*solver.Driver { return g.solvers }

// ActiveEmitters returns the number of emitters inside their lifetime window.
func (g *Game) ActiveEmitters() int { return g.activeEmitters }

// Bindings returns the controllers e joined on activation.
func (g *Game) Bindings(e ecs.Entity) []*field.Controller { return g.bindings[e] }

// Unload releases every device resource and closes output files.
func (g *Game) Unload() {
	if g.snapshotDir != "" {
		g.saveSnapshot()
	}
	for _, c := range g.controllers {
		c.Shutdown()
	}
	for _, d := range g.solvers {
		d.Release()
	}
	slog.Info("scene_unloaded", "tick", g.tick, "device", g.dev.Stats())
	g.dev.Close()
	if err := g.outputManager.Close(); err != nil {
		slog.Error("failed to close output", "error", err)
	}
}
