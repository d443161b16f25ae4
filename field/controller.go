// Package field owns named simulation fields: their emitter membership, the
// packed emitter buffers kernels read, and the controller lifecycle that
// ties a field to its simulation.
package field

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/mlange-42/ark/ecs"

	"github.com/pthm-cable/eddy/components"
	"github.com/pthm-cable/eddy/config"
	"github.com/pthm-cable/eddy/gpu"
)

// Simulation advances a field texture on the device. Solver drivers and
// emitter textures implement it.
type Simulation interface {
	// Initialize allocates resources and writes the initial condition.
	Initialize() error
	// Advance runs steps sub-steps at scene time now.
	Advance(steps int, now float32) error
	// Reset rewrites the initial condition without reallocating.
	Reset() error
	// Params is the parameter set kernels read; controllers bind onto it.
	Params() *gpu.Params
	// Texture is the authoritative field, nil when not initialized.
	Texture() *gpu.Texture
	Release()
}

// Source resolves a member entity to its current emitter data.
type Source interface {
	Emitter(e ecs.Entity) (*components.FluidEmitter, *components.SimState, bool)
}

// WorldSource reads emitters from an ark world.
type WorldSource struct {
	world    *ecs.World
	emitters *ecs.Map[components.FluidEmitter]
	states   *ecs.Map[components.SimState]
}

// NewWorldSource creates a source over w.
func NewWorldSource(w *ecs.World) *WorldSource {
	return &WorldSource{
		world:    w,
		emitters: ecs.NewMap[components.FluidEmitter](w),
		states:   ecs.NewMap[components.SimState](w),
	}
}

// Emitter implements Source.
func (s *WorldSource) Emitter(e ecs.Entity) (*components.FluidEmitter, *components.SimState, bool) {
	if !s.world.Alive(e) || !s.emitters.Has(e) || !s.states.Has(e) {
		return nil, nil, false
	}
	return s.emitters.Get(e), s.states.Get(e), true
}

// Phase orders controller ticks relative to the rest of the frame.
type Phase uint8

const (
	PhaseEarly Phase = iota
	PhaseMid
	PhaseLate
)

// Phases lists every phase in tick order.
var Phases = []Phase{PhaseEarly, PhaseMid, PhaseLate}

func (p Phase) String() string {
	switch p {
	case PhaseEarly:
		return "early"
	case PhaseMid:
		return "mid"
	case PhaseLate:
		return "late"
	}
	return fmt.Sprintf("Phase(%d)", uint8(p))
}

// ParsePhase parses early, mid or late.
func ParsePhase(s string) (Phase, error) {
	switch s {
	case "early":
		return PhaseEarly, nil
	case "mid":
		return PhaseMid, nil
	case "late":
		return PhaseLate, nil
	}
	return 0, config.Configf("unknown phase %q", s)
}

// State is a controller's lifecycle state.
type State uint8

const (
	StateUninitialized State = iota
	StateInitializing
	StateActive
	StateReleased
	// StateFailed is terminal: resource allocation failed and is not retried.
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateInitializing:
		return "initializing"
	case StateActive:
		return "active"
	case StateReleased:
		return "released"
	case StateFailed:
		return "failed"
	}
	return fmt.Sprintf("State(%d)", uint8(s))
}

// Options configures a controller.
type Options struct {
	ID             string
	Phase          Phase
	UpdatesPerTick int
	Schema         Schema
	Reinitialize   bool // one-shot: reset the field on the next active tick
	ShowLogs       bool // log every packed record each tick
}

// OptionsFromConfig converts a field config entry.
func OptionsFromConfig(fc config.FieldConfig) (Options, error) {
	phase, err := ParsePhase(fc.Phase)
	if err != nil {
		return Options{}, err
	}
	role, err := ParseRole(fc.Role)
	if err != nil {
		return Options{}, err
	}
	schema, err := SchemaFor(role, fc.Dims)
	if err != nil {
		return Options{}, err
	}
	if fc.UpdatesPerTick < 0 || fc.UpdatesPerTick > config.MaxUpdatesPerTick {
		return Options{}, config.Configf("updates_per_tick %d outside [0, %d]", fc.UpdatesPerTick, config.MaxUpdatesPerTick)
	}
	return Options{
		ID:             fc.ID,
		Phase:          phase,
		UpdatesPerTick: fc.UpdatesPerTick,
		Schema:         schema,
		Reinitialize:   fc.Debug.Reinitialize,
		ShowLogs:       fc.Debug.ShowLogs,
	}, nil
}

// Controller orchestrates one named field: emitter membership, the packed
// emitter buffer and the simulation that consumes it.
//
// Released controllers keep their registry so membership survives a
// disable/enable cycle; the packed array and device buffer are dropped and
// rebuilt on the next Init.
type Controller struct {
	opts   Options
	sim    Simulation
	src    Source
	reg    Registry[ecs.Entity]
	sync   *Synchronizer[ecs.Entity]
	state  State
	err    error
	ticks  int
	logger *slog.Logger
}

// NewController creates an uninitialized controller. No resources are
// allocated until Init, Tick or AddEmitter.
func NewController(dev gpu.Device, src Source, sim Simulation, opts Options) *Controller {
	c := &Controller{
		opts:   opts,
		sim:    sim,
		src:    src,
		logger: slog.With("field", opts.ID),
	}
	c.sync = NewSynchronizer(dev, opts.ID+"/emitters", opts.Schema.Stride, c.pack)
	return c
}

func (c *Controller) pack(dst []float32, e ecs.Entity) {
	em, st, ok := c.src.Emitter(e)
	if !ok {
		clear(dst)
		return
	}
	c.opts.Schema.Pack(dst, em, st)
}

// ID returns the controller's lookup key.
func (c *Controller) ID() string { return c.opts.ID }

// Phase returns the tick phase.
func (c *Controller) Phase() Phase { return c.opts.Phase }

// Schema returns the packed record layout.
func (c *Controller) Schema() Schema { return c.opts.Schema }

// State returns the lifecycle state.
func (c *Controller) State() State { return c.state }

// Err returns the error that failed the controller, if any.
func (c *Controller) Err() error { return c.err }

// Members returns the registered emitters.
func (c *Controller) Members() []ecs.Entity { return c.reg.Items() }

// Params returns the simulation's parameter set.
func (c *Controller) Params() *gpu.Params { return c.sim.Params() }

// Synchronizer exposes the packed buffer state.
func (c *Controller) Synchronizer() *Synchronizer[ecs.Entity] { return c.sync }

// Texture returns the authoritative field texture, or nil when the
// controller is not active. Callers must not keep it across a Shutdown.
func (c *Controller) Texture() *gpu.Texture {
	if c.state != StateActive {
		return nil
	}
	return c.sim.Texture()
}

// SetReinitialize arms the one-shot reset trigger.
func (c *Controller) SetReinitialize() { c.opts.Reinitialize = true }

// SetShowLogs toggles per-tick packed record logging.
func (c *Controller) SetShowLogs(on bool) { c.opts.ShowLogs = on }

// Init allocates the simulation and the emitter buffer and runs one sync
// pass. Every resource acquired is released again if a later step fails.
// An allocation failure is terminal.
func (c *Controller) Init() (err error) {
	switch c.state {
	case StateActive:
		return nil
	case StateFailed:
		return c.err
	}

	c.state = StateInitializing
	defer func() {
		if err == nil {
			return
		}
		err = fmt.Errorf("initializing field %s: %w", c.opts.ID, err)
		c.state = StateReleased
		if errors.Is(err, gpu.ErrAllocation) || errors.Is(err, config.ErrConfiguration) {
			c.state = StateFailed
			c.err = err
		}
		c.logger.Error("field_init_failed", "error", err)
	}()

	if err := c.sim.Initialize(); err != nil {
		return err
	}
	if err := c.sync.Sync(c.reg.Items(), c.sim.Params()); err != nil {
		c.sim.Release()
		return err
	}

	c.state = StateActive
	c.logger.Info("field_active",
		"schema", c.opts.Schema.Name,
		"phase", c.opts.Phase.String(),
		"members", c.reg.Len(),
	)
	return nil
}

// Shutdown releases the simulation and the emitter buffer. Membership is
// kept. Safe to call in any state between ticks.
func (c *Controller) Shutdown() {
	if c.state != StateActive && c.state != StateInitializing {
		return
	}
	c.sync.Release(c.sim.Params())
	c.sim.Release()
	c.state = StateReleased
	c.logger.Info("field_released", "members", c.reg.Len())
}

// Tick runs one frame. An active controller stamps the scene time, syncs
// its emitters and advances its simulation; any other controller
// initializes and returns.
func (c *Controller) Tick(now float32) error {
	if c.state != StateActive {
		return c.Init()
	}

	p := c.sim.Params()
	p.SetFloat(TimeParam, now)

	if err := c.resync(); err != nil {
		return err
	}
	if c.opts.ShowLogs {
		c.logRecords()
	}

	if err := c.sim.Advance(c.opts.UpdatesPerTick, now); err != nil {
		return fmt.Errorf("field %s: advancing: %w", c.opts.ID, err)
	}

	if c.opts.Reinitialize {
		c.opts.Reinitialize = false
		if err := c.sim.Reset(); err != nil {
			return fmt.Errorf("field %s: reinitializing: %w", c.opts.ID, err)
		}
		c.logger.Info("field_reinitialized")
	}

	c.ticks++
	return nil
}

// AddEmitter registers e, initializing the controller first if needed, and
// resyncs the buffer. On error e is not registered.
func (c *Controller) AddEmitter(e ecs.Entity) error {
	if c.state != StateActive {
		if err := c.Init(); err != nil {
			return err
		}
	}
	if !c.reg.Add(e) {
		return nil
	}
	if err := c.resync(); err != nil {
		c.reg.Remove(e)
		return err
	}
	return nil
}

// RemoveEmitter unregisters e. Removing an absent emitter changes nothing
// and returns false.
func (c *Controller) RemoveEmitter(e ecs.Entity) bool {
	if !c.reg.Remove(e) {
		return false
	}
	if c.state == StateActive {
		if err := c.resync(); err != nil {
			c.logger.Warn("resync_failed", "error", err)
		}
	}
	return true
}

// resync packs the registry onto the bound buffer. An allocation failure
// releases the controller and leaves it failed; an upload failure keeps the
// previous binding.
func (c *Controller) resync() error {
	err := c.sync.Sync(c.reg.Items(), c.sim.Params())
	if err == nil {
		return nil
	}
	err = fmt.Errorf("field %s: %w", c.opts.ID, err)
	if errors.Is(err, gpu.ErrAllocation) {
		c.fail(err)
	}
	return err
}

// fail releases every resource and parks the controller in StateFailed.
func (c *Controller) fail(err error) {
	c.sync.Release(c.sim.Params())
	c.sim.Release()
	c.state = StateFailed
	c.err = err
	c.logger.Error("field_failed", "error", err)
}

func (c *Controller) logRecords() {
	stride := c.opts.Schema.Stride
	packed := c.sync.Packed()
	for i, e := range c.reg.Items() {
		rec := c.opts.Schema.Unpack(packed[i*stride : (i+1)*stride])
		c.logger.Debug("emitter_record",
			"index", i,
			"entity", e.ID(),
			"pos", rec.Pos,
			"dir", rec.Dir,
			"color", rec.Color,
			"force", rec.Force,
			"radius", rec.Radius,
		)
	}
}

// Stats returns a snapshot for telemetry.
func (c *Controller) Stats() Stats {
	capacity := 0
	if b := c.sync.Buffer(); b != nil {
		capacity = b.Count()
	}
	return Stats{
		ID:            c.opts.ID,
		State:         c.state,
		Members:       c.reg.Len(),
		Capacity:      capacity,
		Ticks:         c.ticks,
		Syncs:         c.sync.Syncs(),
		Reallocations: c.sync.Reallocations(),
	}
}

// Stats is a controller snapshot.
type Stats struct {
	ID            string
	State         State
	Members       int
	Capacity      int
	Ticks         int
	Syncs         int
	Reallocations int
}

// LogValue implements slog.LogValuer.
func (s Stats) LogValue() slog.Value {
	return slog.GroupValue(
		slog.String("state", s.State.String()),
		slog.Int("members", s.Members),
		slog.Int("capacity", s.Capacity),
		slog.Int("ticks", s.Ticks),
		slog.Int("syncs", s.Syncs),
		slog.Int("reallocations", s.Reallocations),
	)
}
