// Package solver advances fluid fields with double-buffered compute kernels.
//
// Each logical field is a read/write texture pair. A step dispatches a
// kernel from read into write and then copies write back into read, so read
// is authoritative between dispatches and the next kernel always sees the
// state the previous one produced.
package solver

import (
	"fmt"
	"log/slog"
	"math"

	"github.com/ojrac/opensimplex-go"

	"github.com/pthm-cable/eddy/config"
	"github.com/pthm-cable/eddy/field"
	"github.com/pthm-cable/eddy/gpu"
)

// Kernel and parameter names.
const (
	KernelFluidInit    = "FluidInit"
	KernelFluidUpdate  = "FluidUpdate"
	KernelOutputUpdate = "OutputUpdate"

	paramSimRead     = "_SimulationRead"
	paramSimWrite    = "_SimulationWrite"
	paramOutRead     = "_OutputRead"
	paramOutWrite    = "_OutputWrite"
	paramDeltaTime   = "_DeltaTime"
	paramVorticity   = "_Vorticity"
	paramDissipation = "_Dissipation"
)

// Config is a driver's resolution, cadence and numeric constants.
type Config struct {
	ID              string
	Width, Height   int
	UpdatesPerFrame int
	Params          config.SolverParams
	StepOnce        bool // arm the single-step trigger at creation
}

// ConfigFromSolver converts a standalone solver config entry.
func ConfigFromSolver(sc config.SolverConfig) Config {
	return Config{
		ID:              sc.ID,
		Width:           sc.Resolution.Width,
		Height:          sc.Resolution.Height,
		UpdatesPerFrame: sc.UpdatesPerFrame,
		Params:          sc.Params,
		StepOnce:        sc.Debug.Step,
	}
}

// ConfigFromField converts a solver-backed field config entry. The field's
// updates_per_tick drives the step count through Advance.
func ConfigFromField(fc config.FieldConfig) Config {
	c := Config{
		ID:     fc.ID,
		Width:  fc.Resolution.Width,
		Height: fc.Resolution.Height,
	}
	if fc.Solver != nil {
		c.Params = *fc.Solver
	}
	return c
}

var _ field.Simulation = (*Driver)(nil)

// Driver is the double-buffered fluid solver. It keeps two fields: the
// velocity simulation and a visual output advected through it.
//
// dt and vorticity are used as configured; the driver does no adaptive
// stepping or stability clamping.
type Driver struct {
	dev    gpu.Device
	cfg    Config
	params *gpu.Params
	noise  opensimplex.Noise

	simulation pingPong
	output     pingPong

	fluidInit    *gpu.Kernel
	fluidUpdate  *gpu.Kernel
	outputUpdate *gpu.Kernel
	groups       [3]int

	emitters    []field.Record
	initialized bool
	stepPending bool
	steps       int
	frames      int

	logger *slog.Logger
}

// New validates cfg and returns an uninitialized driver. A resolution not
// divisible by the workgroup size is a configuration error.
func New(dev gpu.Device, cfg Config) (*Driver, error) {
	if err := config.ValidateResolution(config.Resolution{Width: cfg.Width, Height: cfg.Height, Depth: 1}, 2); err != nil {
		return nil, fmt.Errorf("solver %s: %w", cfg.ID, err)
	}
	if cfg.UpdatesPerFrame < 0 || cfg.UpdatesPerFrame > config.MaxUpdatesPerTick {
		return nil, fmt.Errorf("solver %s: %w", cfg.ID,
			config.Configf("updates per frame %d outside [0, %d]", cfg.UpdatesPerFrame, config.MaxUpdatesPerTick))
	}
	if err := cfg.Params.Validate(); err != nil {
		return nil, fmt.Errorf("solver %s: %w", cfg.ID, err)
	}

	d := &Driver{
		dev:         dev,
		cfg:         cfg,
		params:      gpu.NewParams(),
		noise:       opensimplex.New(cfg.Params.Seed),
		stepPending: cfg.StepOnce,
		logger:      slog.With("solver", cfg.ID),
	}
	d.fluidInit = gpu.NewKernel2D(KernelFluidInit, config.ThreadsPerGroup, d.fluidInitKernel)
	d.fluidUpdate = gpu.NewKernel2D(KernelFluidUpdate, config.ThreadsPerGroup, d.fluidUpdateKernel)
	d.outputUpdate = gpu.NewKernel2D(KernelOutputUpdate, config.ThreadsPerGroup, d.outputUpdateKernel)
	d.groups = d.fluidUpdate.Groups(cfg.Width, cfg.Height, 1)
	d.applyParams()
	return d, nil
}

func (d *Driver) applyParams() {
	d.params.SetFloat(paramDeltaTime, float32(d.cfg.Params.DT))
	d.params.SetFloat(paramVorticity, float32(d.cfg.Params.Vorticity))
	d.params.SetFloat(paramDissipation, float32(d.cfg.Params.Dissipation))
}

// ID returns the solver id.
func (d *Driver) ID() string { return d.cfg.ID }

// Params returns the parameter set the kernels read.
func (d *Driver) Params() *gpu.Params { return d.params }

// Initialized reports whether textures are allocated.
func (d *Driver) Initialized() bool { return d.initialized }

// Steps returns the number of fluid steps applied since the last
// initial condition was written.
func (d *Driver) Steps() int { return d.steps }

// SetVorticity changes the confinement strength for subsequent steps.
func (d *Driver) SetVorticity(v float64) error {
	p := d.cfg.Params
	p.Vorticity = v
	if err := p.Validate(); err != nil {
		return err
	}
	d.cfg.Params = p
	d.applyParams()
	return nil
}

// SetDeltaTime changes the time step for subsequent steps.
func (d *Driver) SetDeltaTime(dt float64) error {
	p := d.cfg.Params
	p.DT = dt
	if err := p.Validate(); err != nil {
		return err
	}
	d.cfg.Params = p
	d.applyParams()
	return nil
}

// StepOnce arms a one-shot extra fluid step for the next frame.
func (d *Driver) StepOnce() { d.stepPending = true }

// Initialize allocates both fields and writes the initial condition.
func (d *Driver) Initialize() error {
	if d.initialized {
		return nil
	}
	w, h := d.cfg.Width, d.cfg.Height

	sim, err := newPingPong(d.dev, d.cfg.ID+"/simulation", w, h, 1)
	if err != nil {
		return err
	}
	out, err := newPingPong(d.dev, d.cfg.ID+"/output", w, h, 1)
	if err != nil {
		sim.release(d.dev)
		return err
	}
	d.simulation, d.output = sim, out

	d.params.SetTexture(paramSimRead, sim.read)
	d.params.SetTexture(paramSimWrite, sim.write)
	d.params.SetTexture(paramOutRead, out.read)
	d.params.SetTexture(paramOutWrite, out.write)
	d.initialized = true

	if err := d.Reset(); err != nil {
		d.Release()
		return err
	}
	d.logger.Info("solver_initialized", "width", w, "height", h, "groups", d.groups)
	return nil
}

// Reset rewrites the initial condition: seeded noise velocity and a blank
// output.
func (d *Driver) Reset() error {
	if !d.initialized {
		return d.Initialize()
	}
	if err := d.dev.Dispatch(d.fluidInit, d.params, d.groups); err != nil {
		return fmt.Errorf("%s: %w", KernelFluidInit, err)
	}
	if err := d.simulation.commit(d.dev); err != nil {
		return err
	}
	if err := d.dev.ClearTexture(d.output.read); err != nil {
		return err
	}
	d.steps = 0
	return nil
}

// Update runs one frame: UpdatesPerFrame fluid steps, one output step and
// then any pending single step. An uninitialized driver initializes first.
func (d *Driver) Update(now float32) error {
	return d.Advance(d.cfg.UpdatesPerFrame, now)
}

// Advance runs one frame with an explicit fluid step count.
func (d *Driver) Advance(steps int, now float32) error {
	if !d.initialized {
		if err := d.Initialize(); err != nil {
			return err
		}
	}
	d.params.SetFloat(field.TimeParam, now)
	d.emitters = decodeEmitters(d.params, field.Force2D, d.emitters)

	for i := 0; i < steps; i++ {
		if err := d.step(); err != nil {
			return err
		}
	}

	if err := d.dev.Dispatch(d.outputUpdate, d.params, d.groups); err != nil {
		return fmt.Errorf("%s: %w", KernelOutputUpdate, err)
	}
	if err := d.output.commit(d.dev); err != nil {
		return err
	}

	// The single step lands after the output pass, so this frame's output
	// does not see it.
	if d.stepPending {
		d.stepPending = false
		if err := d.step(); err != nil {
			return err
		}
	}
	d.frames++
	return nil
}

// step applies the fluid kernel once and commits the result.
func (d *Driver) step() error {
	if err := d.dev.Dispatch(d.fluidUpdate, d.params, d.groups); err != nil {
		return fmt.Errorf("%s: %w", KernelFluidUpdate, err)
	}
	if err := d.simulation.commit(d.dev); err != nil {
		return err
	}
	d.steps++
	return nil
}

// FluidTexture returns the authoritative velocity field, initializing the
// driver on first use.
func (d *Driver) FluidTexture() (*gpu.Texture, error) {
	if err := d.Initialize(); err != nil {
		return nil, err
	}
	return d.simulation.read, nil
}

// OutputTexture returns the authoritative output field, initializing the
// driver on first use.
func (d *Driver) OutputTexture() (*gpu.Texture, error) {
	if err := d.Initialize(); err != nil {
		return nil, err
	}
	return d.output.read, nil
}

// Texture returns the velocity field, or nil before initialization.
func (d *Driver) Texture() *gpu.Texture {
	if !d.initialized {
		return nil
	}
	return d.simulation.read
}

// Release frees every texture. The driver can be initialized again.
func (d *Driver) Release() {
	if !d.initialized {
		return
	}
	d.simulation.release(d.dev)
	d.output.release(d.dev)
	for _, name := range []string{paramSimRead, paramSimWrite, paramOutRead, paramOutWrite} {
		d.params.Unbind(name)
	}
	d.initialized = false
	d.logger.Info("solver_released", "frames", d.frames, "steps", d.steps)
}

// Kernels. Velocity is stored in RG in texels per unit time, B holds the
// curl of the previous step, A is 1.

func (d *Driver) fluidInitKernel(p *gpu.Params, x, y, _ int) {
	out := p.Texture(paramSimWrite)
	scale := d.cfg.Params.NoiseScale
	if scale == 0 {
		out.Set(x, y, 0, [4]float32{0, 0, 0, 1})
		return
	}
	u := float64(x) / float64(out.Width()) * scale
	v := float64(y) / float64(out.Height()) * scale
	vx := float32(d.noise.Eval3(u, v, 0))
	vy := float32(d.noise.Eval3(u, v, 17.31))
	out.Set(x, y, 0, [4]float32{vx, vy, 0, 1})
}

// curl returns the z component of the velocity curl at (x, y).
func curl(t *gpu.Texture, x, y int) float32 {
	r := t.At(x+1, y, 0)
	l := t.At(x-1, y, 0)
	up := t.At(x, y+1, 0)
	dn := t.At(x, y-1, 0)
	return 0.5 * ((r[1] - l[1]) - (up[0] - dn[0]))
}

func abs32(v float32) float32 {
	if v < 0 {
		return -v
	}
	return v
}

func (d *Driver) fluidUpdateKernel(p *gpu.Params, x, y, _ int) {
	read := p.Texture(paramSimRead)
	write := p.Texture(paramSimWrite)
	dt := p.Float(paramDeltaTime)
	eps := p.Float(paramVorticity)

	// Semi-Lagrangian self-advection
	v := read.At(x, y, 0)
	px := float32(x) + 0.5 - dt*v[0]
	py := float32(y) + 0.5 - dt*v[1]
	adv := read.Sample(px, py, 0)

	// Vorticity confinement from the previous state's curl
	w := curl(read, x, y)
	gx := 0.5 * (abs32(curl(read, x+1, y)) - abs32(curl(read, x-1, y)))
	gy := 0.5 * (abs32(curl(read, x, y+1)) - abs32(curl(read, x, y-1)))
	if l := float32(math.Sqrt(float64(gx*gx + gy*gy))); l > 1e-5 {
		gx /= l
		gy /= l
		adv[0] += dt * eps * gy * w
		adv[1] -= dt * eps * gx * w
	}

	if len(d.emitters) > 0 {
		u := (float32(x) + 0.5) / float32(read.Width())
		s := (float32(y) + 0.5) / float32(read.Height())
		fx, fy, _ := forceAt(u, s, 0, 2, d.emitters)
		adv[0] += dt * fx
		adv[1] += dt * fy
	}

	k := p.Float(paramDissipation)
	write.Set(x, y, 0, [4]float32{adv[0] * k, adv[1] * k, w, 1})
}

func (d *Driver) outputUpdateKernel(p *gpu.Params, x, y, _ int) {
	sim := p.Texture(paramSimRead)
	read := p.Texture(paramOutRead)
	write := p.Texture(paramOutWrite)
	dt := p.Float(paramDeltaTime)

	v := sim.At(x, y, 0)
	c := read.Sample(float32(x)+0.5-dt*v[0], float32(y)+0.5-dt*v[1], 0)

	k := p.Float(paramDissipation)
	speed := float32(math.Sqrt(float64(v[0]*v[0] + v[1]*v[1])))
	vis := [3]float32{speed, abs32(v[2]), 0.5 * speed}
	const blend = 0.1
	for i := 0; i < 3; i++ {
		c[i] = c[i]*k + (vis[i]-c[i]*k)*blend
	}
	c[3] = 1
	write.Set(x, y, 0, c)
}
